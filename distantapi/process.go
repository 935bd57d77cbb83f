package distantapi

import (
	"bufio"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/ssh"

	"github.com/smnsjas/go-distant/kind"
)

// PtySize mirrors the original's PtySize request payload.
type PtySize struct {
	Rows, Cols         uint16
	PixelWidth, PixelHeight uint16
}

// ProcSpawn starts cmd in a fresh SSH session, optionally under a PTY,
// streaming stdout/stderr chunks to onStdout/onStderr and the exit code
// to onExit as they arrive. It returns the process id used by
// ProcKill/ProcStdin/ProcResizePty, directly grounded on api.rs's
// proc_spawn/spawn_simple/spawn_pty split (collapsed here into one path
// since x/crypto/ssh sessions support both PTY and non-PTY uniformly).
func (a *Api) ProcSpawn(cmd string, env map[string]string, currentDir string, pty *PtySize, onStdout, onStderr func([]byte), onExit func(int)) (uint64, error) {
	sess, release, err := a.newSession()
	if err != nil {
		return 0, fmt.Errorf("distantapi: new session: %w", err)
	}

	for k, v := range env {
		// Best effort: many sshd configs reject SetEnv entirely via
		// AcceptEnv; a rejected Setenv is not fatal to spawning.
		_ = sess.Setenv(k, v)
	}

	if currentDir != "" {
		cmd = fmt.Sprintf("cd %q && %s", currentDir, cmd)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		release()
		return 0, err
	}

	var stdoutPipe, stderrPipe io.Reader
	if pty != nil {
		modes := ssh.TerminalModes{ssh.ECHO: 1, ssh.TTY_OP_ISPEED: 14400, ssh.TTY_OP_OSPEED: 14400}
		if err := sess.RequestPty("xterm-256color", int(pty.Rows), int(pty.Cols), modes); err != nil {
			sess.Close()
			release()
			return 0, fmt.Errorf("distantapi: request_pty: %w", err)
		}
		out, err := sess.StdoutPipe()
		if err != nil {
			sess.Close()
			release()
			return 0, err
		}
		stdoutPipe = out
	} else {
		out, err := sess.StdoutPipe()
		if err != nil {
			sess.Close()
			release()
			return 0, err
		}
		errp, err := sess.StderrPipe()
		if err != nil {
			sess.Close()
			release()
			return 0, err
		}
		stdoutPipe, stderrPipe = out, errp
	}

	if err := sess.Start(cmd); err != nil {
		sess.Close()
		release()
		return 0, fmt.Errorf("distantapi: start %q: %w", cmd, err)
	}

	id := atomic.AddUint64(&a.nextProcID, 1)
	p := &process{
		session: sess,
		stdin:   make(chan []byte, 16),
		kill:    make(chan struct{}),
		resize:  make(chan PtySize, 4),
		done:    make(chan struct{}),
	}

	a.procMu.Lock()
	a.processes[id] = p
	a.procMu.Unlock()

	go pumpReader(stdoutPipe, onStdout)
	if stderrPipe != nil {
		go pumpReader(stderrPipe, onStderr)
	}
	go p.pumpStdin(stdin)
	go p.pumpControl(sess)
	go func() {
		err := sess.Wait()
		release()
		close(p.done)
		a.procMu.Lock()
		delete(a.processes, id)
		a.procMu.Unlock()
		if onExit != nil {
			onExit(exitCodeOf(err))
		}
	}()

	return id, nil
}

func pumpReader(r io.Reader, onData func([]byte)) {
	if r == nil || onData == nil {
		return
	}
	buf := make([]byte, 32*1024)
	reader := bufio.NewReader(r)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onData(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (p *process) pumpStdin(w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case data, ok := <-p.stdin:
			if !ok {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *process) pumpControl(sess *ssh.Session) {
	for {
		select {
		case size, ok := <-p.resize:
			if !ok {
				return
			}
			_ = sess.WindowChange(int(size.Rows), int(size.Cols))
		case <-p.kill:
			_ = sess.Signal(ssh.SIGKILL)
			_ = sess.Close()
		case <-p.done:
			return
		}
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*ssh.ExitError); ok {
		return ee.ExitStatus()
	}
	return -1
}

// ProcKill sends SIGKILL to the process and closes its session. A
// missing or already-exited id surfaces BrokenPipe per spec §7/S7: the
// caller is writing to a pipe that is no longer there.
func (a *Api) ProcKill(id uint64) error {
	p, ok := a.getProcess(id)
	if !ok {
		return kind.New(kind.BrokenPipe, "distantapi: no such process %d", id)
	}
	select {
	case p.kill <- struct{}{}:
		return nil
	case <-p.done:
		return kind.New(kind.BrokenPipe, "distantapi: process %d already exited", id)
	}
}

// ProcStdin forwards data to the process's stdin.
func (a *Api) ProcStdin(id uint64, data []byte) error {
	p, ok := a.getProcess(id)
	if !ok {
		return kind.New(kind.BrokenPipe, "distantapi: no such process %d", id)
	}
	select {
	case p.stdin <- data:
		return nil
	case <-p.done:
		return kind.New(kind.BrokenPipe, "distantapi: process %d already exited", id)
	}
}

// ProcResizePty resizes the process's PTY. A process without a PTY still
// gets the window-change request; its failure is ignored and nil is
// returned.
func (a *Api) ProcResizePty(id uint64, size PtySize) error {
	p, ok := a.getProcess(id)
	if !ok {
		return kind.New(kind.BrokenPipe, "distantapi: no such process %d", id)
	}
	select {
	case p.resize <- size:
		return nil
	case <-p.done:
		return kind.New(kind.BrokenPipe, "distantapi: process %d already exited", id)
	}
}

func (a *Api) getProcess(id uint64) (*process, bool) {
	a.procMu.Lock()
	defer a.procMu.Unlock()
	p, ok := a.processes[id]
	return p, ok
}

// KillAll terminates every process still tracked, used by OnDisconnect
// to enforce "processes die with the connection that spawned them"
// without a Rust-style Weak reference: the caller passes the exact set
// of ids the disconnecting connection spawned.
func (a *Api) KillAll(ids []uint64) {
	for _, id := range ids {
		_ = a.ProcKill(id)
	}
}
