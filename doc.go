// Package distant provides a remote-execution system split into three
// subsystems: a Manager that registers outbound connections and proxies
// their auth handshakes, an RPC & Channel Layer providing framed
// transport and request/response multiplexing, and a Remote API Service
// exposing filesystem, process, and system-info verbs over SSH.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────┐
//	│  manager/      Connection registry + auth proxy          │
//	├─────────────────────────────────────────────────────────┤
//	│  netproto/     Framing, envelope, mailbox, typed client   │
//	├─────────────────────────────────────────────────────────┤
//	│  distantapi/   Remote API Service over SSH                │
//	├─────────────────────────────────────────────────────────┤
//	│  auth/         Challenge/response auth protocol           │
//	└─────────────────────────────────────────────────────────┘
//
// See DESIGN.md for the grounding of each package and SPEC_FULL.md for
// the full specification this module implements.
package distant
