// Command distant-manager runs the Manager service (spec §4.5/§4.6): a
// connection registry and auth proxy that launches or connects to remote
// distant servers over SSH, fronted by a Unix-domain (or TCP) control
// socket. Thin front-end, grounded on cmd/psrp-demo/main.go's flag-parse
// + construct + run shape; CLI parsing depth itself is out of scope
// (spec.md §1 Non-goals).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/smnsjas/go-distant/config"
	"github.com/smnsjas/go-distant/distantapi"
	internallog "github.com/smnsjas/go-distant/internal/log"
	"github.com/smnsjas/go-distant/manager"
	"github.com/smnsjas/go-distant/netproto"
)

func main() {
	socketPath := flag.String("socket", defaultSocketPath(), "Unix-domain socket path for the control connection")
	tcpAddr := flag.String("tcp", "", "Listen on this TCP address instead of a Unix socket (e.g. 127.0.0.1:9000)")
	sshUser := flag.String("ssh-user", "", "Default SSH username, used when a destination omits one")
	sshKeyPath := flag.String("ssh-key", "", "Path to an SSH private key (falls back to password auth when empty)")
	sshKnownHosts := flag.String("known-hosts", defaultKnownHosts(), "Path to a known_hosts file for host key verification")
	sshInsecure := flag.Bool("ssh-insecure", false, "Skip SSH host key verification (testing only)")
	logLevel := flag.String("loglevel", "info", "Log level: debug, info, warn, error")
	logFile := flag.String("logfile", "", "Rotate logs to this file instead of stderr")
	flag.Parse()

	logger, closeLog, err := newLogger(*logLevel, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	hostKeyCallback, err := buildHostKeyCallback(*sshKnownHosts, *sshInsecure)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading known_hosts: %v\n", err)
		os.Exit(1)
	}

	sshConfigFor := func(dest manager.Destination) (*ssh.ClientConfig, error) {
		user := dest.User
		if user == "" {
			user = *sshUser
		}
		auths, err := sshAuthMethods(*sshKeyPath, user)
		if err != nil {
			return nil, err
		}
		return &ssh.ClientConfig{
			User:            user,
			Auth:            auths,
			HostKeyCallback: hostKeyCallback,
		}, nil
	}

	serverCfg := config.DefaultServerConfig()
	dialer := distantapi.NewSSHDialer(sshConfigFor, serverCfg, logger)

	mgr := manager.NewManager(dialer, serverCfg, logger)
	srv := netproto.NewServer(mgr, nil, netproto.NewCodec(), manager.RequestRegistry(), serverCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ref netproto.ServerRef
	if *tcpAddr != "" {
		tcpRef, err := srv.ServeTCP(ctx, *tcpAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listening on %s: %v\n", *tcpAddr, err)
			os.Exit(1)
		}
		logger.Info("distant-manager: listening", "addr", tcpRef.Addr())
		ref = tcpRef
	} else {
		_ = os.Remove(*socketPath)
		unixRef, err := srv.ServeUnix(ctx, *socketPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listening on %s: %v\n", *socketPath, err)
			os.Exit(1)
		}
		logger.Info("distant-manager: listening", "socket", unixRef.Path())
		ref = unixRef
	}

	<-ctx.Done()
	logger.Info("distant-manager: shutting down")
	ref.Shutdown()
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "distant-manager.sock")
	}
	return filepath.Join(os.TempDir(), "distant-manager.sock")
}

func defaultKnownHosts() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

func buildHostKeyCallback(path string, insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if path == "" {
		return nil, fmt.Errorf("no known_hosts file configured; pass -ssh-insecure for testing")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return cb, nil
}

// sshAuthMethods prefers a private key when one is configured, and
// otherwise prompts for a password on the controlling terminal — the
// manager process runs interactively in this distribution, matching
// cmd/psrp-client's stdin password prompt.
func sshAuthMethods(keyPath, user string) ([]ssh.AuthMethod, error) {
	if keyPath != "" {
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading ssh key %s: %w", keyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing ssh key %s: %w", keyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	fmt.Fprintf(os.Stderr, "SSH password for %s: ", user)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading ssh password: %w", err)
	}
	return []ssh.AuthMethod{ssh.Password(string(passBytes))}, nil
}

// newLogger builds a structured logger whose handler redacts credential-
// shaped attributes (password, token, secret, ...) before they reach
// output, since auth proxying and SSH dialing routinely carry those keys
// in their log.With() context. When logFile is set, output rotates
// through internal/log.RotatingFile instead of going to stderr.
func newLogger(level, logFile string) (*slog.Logger, func(), error) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if logFile != "" {
		rf, err := internallog.NewRotatingFile(logFile, 10*1024*1024, 5)
		if err != nil {
			return nil, nil, err
		}
		w = rf
		closeFn = func() { _ = rf.Close() }
	}

	handler := internallog.NewRedactingHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
	return slog.New(handler), closeFn, nil
}
