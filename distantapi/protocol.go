package distantapi

import (
	"github.com/smnsjas/go-distant/auth"
	"github.com/smnsjas/go-distant/manager"
	"github.com/smnsjas/go-distant/netproto"
)

// Request variants, one per Remote API Service verb (spec §5).

type ReadFileRequest struct{ Path string }

func (ReadFileRequest) VariantType() string { return "read_file" }

type ReadFileTextRequest struct{ Path string }

func (ReadFileTextRequest) VariantType() string { return "read_file_text" }

type WriteFileRequest struct {
	Path string
	Data []byte
}

func (WriteFileRequest) VariantType() string { return "write_file" }

type WriteFileTextRequest struct {
	Path string
	Text string
}

func (WriteFileTextRequest) VariantType() string { return "write_file_text" }

type AppendFileRequest struct {
	Path string
	Data []byte
}

func (AppendFileRequest) VariantType() string { return "append_file" }

type AppendFileTextRequest struct {
	Path string
	Text string
}

func (AppendFileTextRequest) VariantType() string { return "append_file_text" }

type ReadDirRequest struct {
	Path         string
	Depth        int
	Absolute     bool
	Canonicalize bool
	IncludeRoot  bool
}

func (ReadDirRequest) VariantType() string { return "read_dir" }

type CreateDirRequest struct {
	Path string
	All  bool
}

func (CreateDirRequest) VariantType() string { return "create_dir" }

type RemoveRequest struct {
	Path  string
	Force bool
}

func (RemoveRequest) VariantType() string { return "remove" }

type CopyRequest struct{ Src, Dst string }

func (CopyRequest) VariantType() string { return "copy" }

type ExistsRequest struct{ Path string }

func (ExistsRequest) VariantType() string { return "exists" }

type RenameRequest struct{ Src, Dst string }

func (RenameRequest) VariantType() string { return "rename" }

type MetadataRequest struct {
	Path            string
	Canonicalize    bool
	ResolveFileType bool
}

func (MetadataRequest) VariantType() string { return "metadata" }

type SetPermissionsRequest struct {
	Path string
	Perm Permissions
	Opts SetPermissionsOptions
}

func (SetPermissionsRequest) VariantType() string { return "set_permissions" }

type ProcSpawnRequest struct {
	Cmd        string
	Env        map[string]string
	CurrentDir string
	Pty        *PtySize
}

func (ProcSpawnRequest) VariantType() string { return "proc_spawn" }

type ProcKillRequest struct{ ID uint64 }

func (ProcKillRequest) VariantType() string { return "proc_kill" }

type ProcStdinRequest struct {
	ID   uint64
	Data []byte
}

func (ProcStdinRequest) VariantType() string { return "proc_stdin" }

type ProcResizePtyRequest struct {
	ID   uint64
	Size PtySize
}

func (ProcResizePtyRequest) VariantType() string { return "proc_resize_pty" }

type SystemInfoRequest struct{}

func (SystemInfoRequest) VariantType() string { return "system_info" }

type CapabilitiesRequest struct{}

func (CapabilitiesRequest) VariantType() string { return "capabilities" }

// Response variants.

type ReadFileResponse struct{ Data []byte }

func (ReadFileResponse) VariantType() string { return "read_file_response" }

type ReadFileTextResponse struct{ Text string }

func (ReadFileTextResponse) VariantType() string { return "read_file_text_response" }

type ReadDirResponse struct {
	Entries []DirEntry
	Errors  []string
}

func (ReadDirResponse) VariantType() string { return "read_dir_response" }

type ExistsResponse struct{ Exists bool }

func (ExistsResponse) VariantType() string { return "exists_response" }

type MetadataResponse struct{ Meta Metadata }

func (MetadataResponse) VariantType() string { return "metadata_response" }

type ProcSpawnResponse struct{ ID uint64 }

func (ProcSpawnResponse) VariantType() string { return "proc_spawn_response" }

// ProcOutputMessage streams one chunk of a spawned process's stdout or
// stderr back to the caller, sent asynchronously as a further reply on
// the proc_spawn request's id, mirroring api.rs's reply.clone_reply()
// callback pattern.
type ProcOutputMessage struct {
	ID     uint64
	Stream string // "stdout" or "stderr"
	Data   []byte
}

func (ProcOutputMessage) VariantType() string { return "proc_output" }

// ProcExitMessage reports a spawned process's exit code, pushed
// asynchronously once the process's session.Wait() returns.
type ProcExitMessage struct {
	ID       uint64
	ExitCode int
}

func (ProcExitMessage) VariantType() string { return "proc_exit" }

type SystemInfoResponse struct{ Info SystemInfo }

func (SystemInfoResponse) VariantType() string { return "system_info_response" }

type CapabilitiesResponse struct {
	Version string
	Caps    manager.Capabilities
}

func (CapabilitiesResponse) VariantType() string { return "capabilities_response" }

// OkResponse acknowledges a verb with no payload of its own (write_file,
// write_file_text, append_file, append_file_text, create_dir, remove,
// copy, rename, set_permissions, proc_kill, proc_stdin, proc_resize_pty).
type OkResponse struct{}

func (OkResponse) VariantType() string { return "ok" }

// ErrorResponse is the uniform error carried by every verb (spec §6/§7).
type ErrorResponse struct {
	Kind        string
	Description string
}

func (ErrorResponse) VariantType() string { return "error" }

// RequestRegistry decodes inbound request frames for a distant server.
// It also registers auth.Message under its own VariantType, since the
// manager's auth proxy (manager/authproxy.go) writes auth.Message
// values directly as Request-shaped frames to this server during the
// handshake phase (the manager's own client-facing socket runs with no
// verifier and never needs this entry; only the remote side does).
func RequestRegistry() *netproto.Registry {
	reg := netproto.NewRegistry()
	reg.Register("auth_message", func() netproto.Variant { return &auth.Message{} })
	reg.Register("read_file", func() netproto.Variant { return &ReadFileRequest{} })
	reg.Register("read_file_text", func() netproto.Variant { return &ReadFileTextRequest{} })
	reg.Register("write_file", func() netproto.Variant { return &WriteFileRequest{} })
	reg.Register("write_file_text", func() netproto.Variant { return &WriteFileTextRequest{} })
	reg.Register("append_file", func() netproto.Variant { return &AppendFileRequest{} })
	reg.Register("append_file_text", func() netproto.Variant { return &AppendFileTextRequest{} })
	reg.Register("read_dir", func() netproto.Variant { return &ReadDirRequest{} })
	reg.Register("create_dir", func() netproto.Variant { return &CreateDirRequest{} })
	reg.Register("remove", func() netproto.Variant { return &RemoveRequest{} })
	reg.Register("copy", func() netproto.Variant { return &CopyRequest{} })
	reg.Register("exists", func() netproto.Variant { return &ExistsRequest{} })
	reg.Register("rename", func() netproto.Variant { return &RenameRequest{} })
	reg.Register("metadata", func() netproto.Variant { return &MetadataRequest{} })
	reg.Register("set_permissions", func() netproto.Variant { return &SetPermissionsRequest{} })
	reg.Register("proc_spawn", func() netproto.Variant { return &ProcSpawnRequest{} })
	reg.Register("proc_kill", func() netproto.Variant { return &ProcKillRequest{} })
	reg.Register("proc_stdin", func() netproto.Variant { return &ProcStdinRequest{} })
	reg.Register("proc_resize_pty", func() netproto.Variant { return &ProcResizePtyRequest{} })
	reg.Register("system_info", func() netproto.Variant { return &SystemInfoRequest{} })
	reg.Register("capabilities", func() netproto.Variant { return &CapabilitiesRequest{} })
	return reg
}

// ResponseRegistry decodes inbound response/message frames (client side).
func ResponseRegistry() *netproto.Registry {
	reg := netproto.NewRegistry()
	reg.Register("auth_message", func() netproto.Variant { return &auth.Message{} })
	reg.Register("read_file_response", func() netproto.Variant { return &ReadFileResponse{} })
	reg.Register("read_file_text_response", func() netproto.Variant { return &ReadFileTextResponse{} })
	reg.Register("read_dir_response", func() netproto.Variant { return &ReadDirResponse{} })
	reg.Register("exists_response", func() netproto.Variant { return &ExistsResponse{} })
	reg.Register("metadata_response", func() netproto.Variant { return &MetadataResponse{} })
	reg.Register("proc_spawn_response", func() netproto.Variant { return &ProcSpawnResponse{} })
	reg.Register("proc_output", func() netproto.Variant { return &ProcOutputMessage{} })
	reg.Register("proc_exit", func() netproto.Variant { return &ProcExitMessage{} })
	reg.Register("system_info_response", func() netproto.Variant { return &SystemInfoResponse{} })
	reg.Register("capabilities_response", func() netproto.Variant { return &CapabilitiesResponse{} })
	reg.Register("ok", func() netproto.Variant { return &OkResponse{} })
	reg.Register("error", func() netproto.Variant { return &ErrorResponse{} })
	return reg
}

// IsTerminal implements netproto.TerminalFunc. A proc_spawn's mailbox
// stays open across its spawn acknowledgement and every output chunk,
// since the caller keeps listening on the same request id until the
// process exits; every other verb's single response is terminal.
func IsTerminal(v netproto.Variant) bool {
	switch v.(type) {
	case *ProcSpawnResponse, *ProcOutputMessage:
		return false
	default:
		return true
	}
}
