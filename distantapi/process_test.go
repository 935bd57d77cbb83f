package distantapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smnsjas/go-distant/kind"
)

func newTestApi() *Api {
	return &Api{processes: make(map[uint64]*process)}
}

// TestProcKillOnMissingIDReportsBrokenPipe is S7 from the testable
// properties list: a subsequent kill on an id that no longer exists
// (already reaped, or never spawned) must surface BrokenPipe, not a
// generic error.
func TestProcKillOnMissingIDReportsBrokenPipe(t *testing.T) {
	a := newTestApi()
	err := a.ProcKill(12345)
	assert.Equal(t, kind.BrokenPipe, kind.KindOf(err))
}

func TestProcStdinOnMissingIDReportsBrokenPipe(t *testing.T) {
	a := newTestApi()
	err := a.ProcStdin(12345, []byte("data"))
	assert.Equal(t, kind.BrokenPipe, kind.KindOf(err))
}

func TestProcResizePtyOnMissingIDReportsBrokenPipe(t *testing.T) {
	a := newTestApi()
	err := a.ProcResizePty(12345, PtySize{Rows: 24, Cols: 80})
	assert.Equal(t, kind.BrokenPipe, kind.KindOf(err))
}

func TestProcKillOnAlreadyExitedProcessReportsBrokenPipe(t *testing.T) {
	a := newTestApi()
	p := &process{
		kill:   make(chan struct{}),
		stdin:  make(chan []byte, 1),
		resize: make(chan PtySize, 1),
		done:   make(chan struct{}),
	}
	close(p.done) // simulate the process having already exited

	a.procMu.Lock()
	a.processes[7] = p
	a.procMu.Unlock()

	err := a.ProcKill(7)
	assert.Equal(t, kind.BrokenPipe, kind.KindOf(err))
}
