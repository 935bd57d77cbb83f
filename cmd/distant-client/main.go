// Command distant-client is an example control-socket client: it drives
// a running distant-manager's launch/connect/info/list/kill/capabilities
// verbs and answers whatever auth challenges the chosen remote requires.
// Thin front-end, grounded on cmd/psrp-client/main.go's flag-parse +
// construct + run shape; CLI parsing depth itself is out of scope
// (spec.md §1 Non-goals).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/smnsjas/go-distant/auth"
	"github.com/smnsjas/go-distant/config"
	internallog "github.com/smnsjas/go-distant/internal/log"
	"github.com/smnsjas/go-distant/manager"
	"github.com/smnsjas/go-distant/netproto"
	"github.com/smnsjas/go-distant/transport"
)

func main() {
	socketPath := flag.String("socket", defaultSocketPath(), "Unix-domain socket path of the manager's control connection")
	tcpAddr := flag.String("tcp", "", "Connect over TCP instead of a Unix socket (e.g. 127.0.0.1:9000)")
	op := flag.String("op", "", "Operation: capabilities, launch, connect, info, list, kill")
	destination := flag.String("destination", "", "Destination URI, e.g. ssh://user@host:22 (launch/connect)")
	options := flag.String("options", "", "Comma-separated k=v options forwarded to the remote dialer")
	connID := flag.Uint64("id", 0, "Connection id (info/kill)")
	logLevel := flag.String("loglevel", "warn", "Log level: debug, info, warn, error")
	logFile := flag.String("logfile", "", "Rotate logs to this file instead of stderr")
	flag.Parse()

	if *op == "" {
		fmt.Fprintln(os.Stderr, "Usage: distant-client -op <capabilities|launch|connect|info|list|kill> [...]")
		flag.Usage()
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(*logLevel, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	ctx := context.Background()

	conn, err := dial(ctx, *tcpAddr, *socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to manager: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultClientConfig()
	framed := netproto.NewFramedConn(conn, cfg.Frame.MaxFrameSize)
	client := manager.NewManagerClient(framed, cfg, logger)
	defer client.Close()

	handler := consoleAuthHandler{}

	switch *op {
	case "capabilities":
		caps, err := client.Capabilities(ctx)
		must(err)
		for _, c := range caps.List() {
			fmt.Println(c)
		}

	case "launch":
		dest, err := requireDestination(*destination)
		must(err)
		opts, err := manager.ParseMap(*options)
		must(err)
		launched, err := client.Launch(ctx, dest, opts, handler)
		must(err)
		fmt.Printf("Launched: %s\n", launched.String())

	case "connect":
		dest, err := requireDestination(*destination)
		must(err)
		opts, err := manager.ParseMap(*options)
		must(err)
		id, err := client.Connect(ctx, dest, opts, handler)
		must(err)
		fmt.Printf("Connected: id=%d\n", id)

	case "info":
		info, err := client.Info(ctx, *connID)
		must(err)
		fmt.Printf("id=%d destination=%s options=%s\n", info.ID, info.Destination.String(), info.Options.String())

	case "list":
		list, err := client.List(ctx)
		must(err)
		for _, e := range list.Entries() {
			fmt.Printf("%d\t%s\n", e.ID, e.Destination.String())
		}

	case "kill":
		must(client.Kill(ctx, *connID))
		fmt.Println("Killed.")

	default:
		fmt.Fprintf(os.Stderr, "Unknown -op %q\n", *op)
		os.Exit(1)
	}
}

func requireDestination(s string) (manager.Destination, error) {
	if s == "" {
		return manager.Destination{}, fmt.Errorf("-destination is required for this operation")
	}
	return manager.ParseDestination(s)
}

func dial(ctx context.Context, tcpAddr, socketPath string) (net.Conn, error) {
	if tcpAddr != "" {
		return transport.DialTCP(ctx, tcpAddr)
	}
	return transport.DialUnix(ctx, socketPath)
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/distant-manager.sock"
	}
	return os.TempDir() + "/distant-manager.sock"
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a structured logger whose handler redacts credential-
// shaped attributes (password, token, secret, ...), since auth challenge
// answers can end up in a caller's log.With() context. When logFile is
// set, output rotates through internal/log.RotatingFile instead of
// going to stderr.
func newLogger(level, logFile string) (*slog.Logger, func(), error) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
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

// consoleAuthHandler answers auth prompts proxied through the manager on
// the terminal, mirroring cmd/psrp-client's interactive password prompt
// and SSO/Kerberos auto-answer conventions.
type consoleAuthHandler struct{}

func (consoleAuthHandler) OnInitialization(ctx context.Context, methods []string) (string, error) {
	if len(methods) == 0 {
		return "", fmt.Errorf("distant-client: remote offered no auth methods")
	}
	return methods[0], nil
}

func (consoleAuthHandler) OnChallenge(ctx context.Context, questions []auth.Question) ([]string, error) {
	answers := make([]string, len(questions))
	for i, q := range questions {
		label := q.Label
		if label == "" {
			label = "Response"
		}
		fmt.Fprintf(os.Stderr, "%s: ", label)
		if strings.Contains(strings.ToLower(label), "password") {
			pass, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", label, err)
			}
			answers[i] = string(pass)
			continue
		}
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", label, err)
		}
		answers[i] = strings.TrimRight(line, "\r\n")
	}
	return answers, nil
}

func (consoleAuthHandler) OnVerification(ctx context.Context, kindText, text string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s: %s [y/N] ", kindText, text)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}

func (consoleAuthHandler) OnInfo(ctx context.Context, text string) {
	fmt.Fprintln(os.Stderr, text)
}

func (consoleAuthHandler) OnError(ctx context.Context, k auth.ErrorKind, text string) {
	fmt.Fprintf(os.Stderr, "auth error (%s): %s\n", k, text)
}
