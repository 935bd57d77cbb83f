// Package distantapi implements the Remote API Service (C8): the
// filesystem, process, and system-info verbs exposed over an SSH
// backend, directly grounded on
// original_source/distant-ssh2/src/api.rs's SshDistantApi.
package distantapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// process tracks one spawned remote process so ProcKill/ProcStdin/
// ProcResizePty can reach it, mirroring the teacher's winrs.Process
// bookkeeping generalized to an SSH session/channel pair.
type process struct {
	session *ssh.Session
	stdin   chan []byte
	kill    chan struct{}
	resize  chan PtySize
	done    chan struct{}
}

// ConnectionState is the per-connection LocalData handed to every Ctx by
// the Server (mirrors the original's ConnectionState, simplified since
// Go has no weak references: instead of a Weak<..> back-reference, the
// per-connection process set is tracked directly and reconciled against
// the global set in OnDisconnect).
type ConnectionState struct {
	mu        sync.Mutex
	processes map[uint64]struct{}
}

func newConnectionState() *ConnectionState {
	return &ConnectionState{processes: make(map[uint64]struct{})}
}

func (s *ConnectionState) track(id uint64) {
	s.mu.Lock()
	s.processes[id] = struct{}{}
	s.mu.Unlock()
}

func (s *ConnectionState) untrack(id uint64) {
	s.mu.Lock()
	delete(s.processes, id)
	s.mu.Unlock()
}

func (s *ConnectionState) snapshot() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	return ids
}

// Api implements the Remote API Service's verbs against one established
// SSH connection, holding the one SFTP session used for every file
// operation and the global process registry killed on disconnect.
type Api struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client

	isWindowsOnce sync.Once
	isWindows     bool
	isWindowsErr  error

	sysInfoOnce sync.Once
	sysInfo     SystemInfo
	sysInfoErr  error

	procMu     sync.Mutex
	nextProcID uint64
	processes  map[uint64]*process

	sessions *sessionLimiter
}

// MaxConcurrentSessions bounds how many SSH sessions one Api may hold
// open at once, matching common sshd MaxSessions defaults; callers that
// need a different cap construct one with NewApiWithSessionLimit.
const MaxConcurrentSessions = 10

// NewApi wraps an already-authenticated *ssh.Client, opening the one
// SFTP subsystem session reused for every filesystem verb.
func NewApi(sshClient *ssh.Client) (*Api, error) {
	return NewApiWithSessionLimit(sshClient, MaxConcurrentSessions)
}

// NewApiWithSessionLimit is NewApi with an explicit concurrent-session
// cap (<= 0 means unbounded).
func NewApiWithSessionLimit(sshClient *ssh.Client, maxSessions int) (*Api, error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("distantapi: opening sftp subsystem: %w", err)
	}
	return &Api{
		sshClient:  sshClient,
		sftpClient: sftpClient,
		processes:  make(map[uint64]*process),
		sessions:   newSessionLimiter(maxSessions, 30*time.Second),
	}, nil
}

// Close tears down the SFTP subsystem and the underlying SSH client.
func (a *Api) Close() error {
	_ = a.sftpClient.Close()
	return a.sshClient.Close()
}

// newSession opens a fresh SSH session for one command invocation,
// blocking on a's sessionLimiter first; SSH sessions are single-use,
// unlike the SFTP subsystem session. The returned release func must be
// called exactly once, after the session (and anything it started) is
// fully done with the connection.
func (a *Api) newSession() (sess *ssh.Session, release func(), err error) {
	if err := a.sessions.acquire(context.Background()); err != nil {
		return nil, func() {}, fmt.Errorf("distantapi: waiting for a free ssh session: %w", err)
	}
	sess, err = a.sshClient.NewSession()
	if err != nil {
		a.sessions.release()
		return nil, func() {}, err
	}
	return sess, a.sessions.release, nil
}
