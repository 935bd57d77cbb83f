package manager

import (
	"github.com/smnsjas/go-distant/auth"
	"github.com/smnsjas/go-distant/netproto"
)

// ManagerRequest variants (spec §4.5 table), each a top-level
// netproto.Variant dispatched by the Manager's Handler.

type CapabilitiesRequest struct{}

func (CapabilitiesRequest) VariantType() string { return "capabilities" }

type LaunchRequest struct {
	Destination string
	Options     string
}

func (LaunchRequest) VariantType() string { return "launch" }

type ConnectRequest struct {
	Destination string
	Options     string
}

func (ConnectRequest) VariantType() string { return "connect" }

type InfoRequest struct{ ID uint64 }

func (InfoRequest) VariantType() string { return "info" }

type ListRequest struct{}

func (ListRequest) VariantType() string { return "list" }

type KillRequest struct{ ID uint64 }

func (KillRequest) VariantType() string { return "kill" }

type OpenChannelRequest struct{ ID uint64 }

func (OpenChannelRequest) VariantType() string { return "open_channel" }

// ChannelDataMessage carries raw tunneled bytes in either direction,
// addressed by channel id.
type ChannelDataMessage struct {
	ChannelID uint64
	Frame     []byte
}

func (ChannelDataMessage) VariantType() string { return "channel_data" }

type CloseChannelRequest struct{ ChannelID uint64 }

func (CloseChannelRequest) VariantType() string { return "close_channel" }

// AuthenticateMessage carries one forwarded auth.Message, addressed by
// the auth session id the manager assigned when it began proxying a
// Launch/Connect's handshake (spec §4.5's "auth session id").
type AuthenticateMessage struct {
	AuthID uint64
	Msg    auth.Message
}

func (AuthenticateMessage) VariantType() string { return "authenticate" }

// ManagerResponse variants.

type CapabilitiesResponse struct{ Supported []Capability }

func (CapabilitiesResponse) VariantType() string { return "capabilities_response" }

type LaunchedResponse struct{ Destination string }

func (LaunchedResponse) VariantType() string { return "launched" }

type ConnectedResponse struct{ ID uint64 }

func (ConnectedResponse) VariantType() string { return "connected" }

type InfoResponse struct {
	ID          uint64
	Destination string
	Options     string
}

func (InfoResponse) VariantType() string { return "info_response" }

type ListEntry struct {
	ID          uint64
	Destination string
}

type ListResponse struct{ Entries []ListEntry }

func (ListResponse) VariantType() string { return "list_response" }

type KilledResponse struct{}

func (KilledResponse) VariantType() string { return "killed" }

type ChannelOpenedResponse struct{ ChannelID uint64 }

func (ChannelOpenedResponse) VariantType() string { return "channel_opened" }

type ChannelClosedResponse struct{ ChannelID uint64 }

func (ChannelClosedResponse) VariantType() string { return "channel_closed" }

// ErrorResponse is the uniform error carried by every manager verb,
// rendering the kind.Kind taxonomy (spec §6/§7).
type ErrorResponse struct {
	Kind        string
	Description string
}

func (ErrorResponse) VariantType() string { return "error" }

// RequestRegistry decodes inbound ManagerRequest frames.
func RequestRegistry() *netproto.Registry {
	reg := netproto.NewRegistry()
	reg.Register("capabilities", func() netproto.Variant { return &CapabilitiesRequest{} })
	reg.Register("launch", func() netproto.Variant { return &LaunchRequest{} })
	reg.Register("connect", func() netproto.Variant { return &ConnectRequest{} })
	reg.Register("info", func() netproto.Variant { return &InfoRequest{} })
	reg.Register("list", func() netproto.Variant { return &ListRequest{} })
	reg.Register("kill", func() netproto.Variant { return &KillRequest{} })
	reg.Register("open_channel", func() netproto.Variant { return &OpenChannelRequest{} })
	reg.Register("channel_data", func() netproto.Variant { return &ChannelDataMessage{} })
	reg.Register("close_channel", func() netproto.Variant { return &CloseChannelRequest{} })
	reg.Register("authenticate", func() netproto.Variant { return &AuthenticateMessage{} })
	return reg
}

// ResponseRegistry decodes inbound ManagerResponse frames (client side).
func ResponseRegistry() *netproto.Registry {
	reg := netproto.NewRegistry()
	reg.Register("capabilities_response", func() netproto.Variant { return &CapabilitiesResponse{} })
	reg.Register("launched", func() netproto.Variant { return &LaunchedResponse{} })
	reg.Register("connected", func() netproto.Variant { return &ConnectedResponse{} })
	reg.Register("info_response", func() netproto.Variant { return &InfoResponse{} })
	reg.Register("list_response", func() netproto.Variant { return &ListResponse{} })
	reg.Register("killed", func() netproto.Variant { return &KilledResponse{} })
	reg.Register("channel_opened", func() netproto.Variant { return &ChannelOpenedResponse{} })
	reg.Register("channel_data", func() netproto.Variant { return &ChannelDataMessage{} })
	reg.Register("channel_closed", func() netproto.Variant { return &ChannelClosedResponse{} })
	reg.Register("authenticate", func() netproto.Variant { return &AuthenticateMessage{} })
	reg.Register("error", func() netproto.Variant { return &ErrorResponse{} })
	return reg
}

// IsTerminal implements netproto.TerminalFunc for ManagerResponse
// variants (spec §8 invariant 2): after one of these is delivered, the
// mailbox awaiting it is closed and removed from the registry.
func IsTerminal(v netproto.Variant) bool {
	switch v.(type) {
	case *LaunchedResponse, *ConnectedResponse, *ErrorResponse, *KilledResponse,
		*CapabilitiesResponse, *InfoResponse, *ListResponse, *ChannelClosedResponse:
		return true
	default:
		return false
	}
}
