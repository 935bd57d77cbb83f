package distantapi

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/smnsjas/go-distant/kind"
	"github.com/smnsjas/go-distant/netproto"
)

// Handler implements netproto.Handler over one Api, dispatching every
// Remote API Service verb (spec §5) to the matching Api method and
// translating Go errors into the uniform ErrorResponse, directly
// grounded on api.rs's DistantApi trait impl dispatch table.
type Handler struct {
	api    *Api
	logger *slog.Logger
}

// NewHandler builds a Handler serving api.
func NewHandler(api *Api, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{api: api, logger: logger}
}

// OnAccept returns a fresh ConnectionState, tracking the processes this
// connection spawns so OnDisconnect can kill exactly those.
func (h *Handler) OnAccept(connID uint64) any {
	return newConnectionState()
}

// OnDisconnect kills every process the disconnecting connection spawned
// and never reaped, mirroring api.rs's ConnectionState Drop behavior
// without a weak-reference back-pointer.
func (h *Handler) OnDisconnect(connID uint64, localData any) {
	state, ok := localData.(*ConnectionState)
	if !ok {
		return
	}
	h.api.KillAll(state.snapshot())
}

func replyErr(sc *netproto.Ctx, err error) {
	_ = sc.Reply(&ErrorResponse{Kind: kind.KindOf(err).String(), Description: err.Error()})
}

// OnRequest dispatches one decoded request to the matching Api method.
func (h *Handler) OnRequest(ctx context.Context, sc *netproto.Ctx) {
	state, _ := sc.LocalData.(*ConnectionState)

	switch req := sc.Request.Payload.(type) {
	case *CapabilitiesRequest:
		version, caps := h.api.Version()
		_ = sc.Reply(&CapabilitiesResponse{Version: version, Caps: caps})

	case *SystemInfoRequest:
		info, err := h.api.SystemInfo()
		if err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&SystemInfoResponse{Info: info})

	case *ReadFileRequest:
		data, err := h.api.ReadFile(req.Path)
		if err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&ReadFileResponse{Data: data})

	case *ReadFileTextRequest:
		text, err := h.api.ReadFileText(req.Path)
		if err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&ReadFileTextResponse{Text: text})

	case *WriteFileRequest:
		if err := h.api.WriteFile(req.Path, req.Data); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *WriteFileTextRequest:
		if err := h.api.WriteFileText(req.Path, req.Text); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *AppendFileRequest:
		if err := h.api.AppendFile(req.Path, req.Data); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *AppendFileTextRequest:
		if err := h.api.AppendFileText(req.Path, req.Text); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *ReadDirRequest:
		entries, errs := h.api.ReadDir(req.Path, req.Depth, req.Absolute, req.Canonicalize, req.IncludeRoot)
		errStrs := make([]string, len(errs))
		for i, e := range errs {
			errStrs[i] = e.Error()
		}
		_ = sc.Reply(&ReadDirResponse{Entries: entries, Errors: errStrs})

	case *CreateDirRequest:
		if err := h.api.CreateDir(req.Path, req.All); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *RemoveRequest:
		if err := h.api.Remove(req.Path, req.Force); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *CopyRequest:
		if err := h.api.Copy(req.Src, req.Dst); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *ExistsRequest:
		_ = sc.Reply(&ExistsResponse{Exists: h.api.Exists(req.Path)})

	case *RenameRequest:
		if err := h.api.Rename(req.Src, req.Dst); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *MetadataRequest:
		meta, err := h.api.Metadata(req.Path, req.Canonicalize, req.ResolveFileType)
		if err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&MetadataResponse{Meta: meta})

	case *SetPermissionsRequest:
		if err := h.api.SetPermissions(req.Path, req.Perm, req.Opts); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *ProcSpawnRequest:
		h.handleProcSpawn(sc, state, req)

	case *ProcKillRequest:
		if err := h.api.ProcKill(req.ID); err != nil {
			replyErr(sc, err)
			return
		}
		if state != nil {
			state.untrack(req.ID)
		}
		_ = sc.Reply(&OkResponse{})

	case *ProcStdinRequest:
		if err := h.api.ProcStdin(req.ID, req.Data); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	case *ProcResizePtyRequest:
		if err := h.api.ProcResizePty(req.ID, req.Size); err != nil {
			replyErr(sc, err)
			return
		}
		_ = sc.Reply(&OkResponse{})

	default:
		h.logger.Warn("distantapi: unhandled request variant", "type", sc.Request.Payload.VariantType())
		_ = sc.Reply(&ErrorResponse{Kind: kind.Unsupported.String(), Description: "unsupported request"})
	}
}

// handleProcSpawn starts the process and streams its output/exit back
// over the same request id as ProcOutputMessage/ProcExitMessage
// pushes, ending with the terminal ProcExitMessage (see IsTerminal).
// idBox defers stamping the process id into each pushed message until
// ProcSpawn returns it, since the output callbacks are wired to the
// session before the id is allocated.
func (h *Handler) handleProcSpawn(sc *netproto.Ctx, state *ConnectionState, req *ProcSpawnRequest) {
	var idBox atomic.Uint64

	onStdout := func(data []byte) {
		_ = sc.Reply(&ProcOutputMessage{ID: idBox.Load(), Stream: "stdout", Data: data})
	}
	onStderr := func(data []byte) {
		_ = sc.Reply(&ProcOutputMessage{ID: idBox.Load(), Stream: "stderr", Data: data})
	}
	onExit := func(code int) {
		id := idBox.Load()
		if state != nil {
			state.untrack(id)
		}
		_ = sc.Reply(&ProcExitMessage{ID: id, ExitCode: code})
	}

	id, err := h.api.ProcSpawn(req.Cmd, req.Env, req.CurrentDir, req.Pty, onStdout, onStderr, onExit)
	if err != nil {
		replyErr(sc, err)
		return
	}
	idBox.Store(id)

	if state != nil {
		state.track(id)
	}
	_ = sc.Reply(&ProcSpawnResponse{ID: id})
}
