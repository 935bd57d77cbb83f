// Package config holds the validated, defaulted option structs consumed
// by the manager and the typed client. Parsing these from flags or
// environment variables for a standalone binary is out of scope; cmd/
// front-ends construct these structs directly.
package config

import (
	"errors"
	"time"
)

// FrameConfig bounds the framed transport (C1).
type FrameConfig struct {
	// MaxFrameSize caps a single frame's payload length. Frames that
	// declare a larger length fail the connection with a protocol error.
	MaxFrameSize uint64
}

// DefaultFrameConfig returns the 8 MiB default cap named in spec §4.1.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{MaxFrameSize: 8 * 1024 * 1024}
}

func (c FrameConfig) Validate() error {
	if c.MaxFrameSize == 0 {
		return errors.New("config: MaxFrameSize must be greater than zero")
	}
	return nil
}

// MailboxConfig bounds the untyped client's queues (C3).
type MailboxConfig struct {
	// OutboundQueueSize bounds the writer task's outbound mpsc queue.
	OutboundQueueSize int

	// MailboxBufferSize bounds each per-request mailbox's channel.
	MailboxBufferSize int

	// SendTimeout bounds how long send() waits for a one-shot reply.
	// Zero means wait forever (the caller's context governs cancellation).
	SendTimeout time.Duration
}

// DefaultMailboxConfig returns sensible defaults, grounded on the
// teacher's poolSemaphore sizing conventions.
func DefaultMailboxConfig() MailboxConfig {
	return MailboxConfig{
		OutboundQueueSize: 64,
		MailboxBufferSize: 16,
		SendTimeout:       30 * time.Second,
	}
}

func (c MailboxConfig) Validate() error {
	if c.OutboundQueueSize <= 0 {
		return errors.New("config: OutboundQueueSize must be greater than zero")
	}
	if c.MailboxBufferSize <= 0 {
		return errors.New("config: MailboxBufferSize must be greater than zero")
	}
	return nil
}

// RetryPolicy configures manager-client command retry behavior for
// transient failures. Mirrors the teacher's client.RetryPolicy.
type RetryPolicy struct {
	Enabled      bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultRetryPolicy returns a conservative default, disabled by default
// since ManagerRequest verbs are not all idempotent (Launch is not).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:      false,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// ReconnectPolicy configures automatic reconnection of a ManagerClient.
type ReconnectPolicy struct {
	Enabled      bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

// DefaultReconnectPolicy mirrors the teacher's opt-in default.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:      false,
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       0.2,
	}
}

// CircuitBreakerPolicy configures the failure threshold and recovery
// timeout for a ManagerClient's non-streaming send calls.
type CircuitBreakerPolicy struct {
	Enabled          bool
	FailureThreshold int
	ResetTimeout     time.Duration
	SuccessThreshold int
}

// DefaultCircuitBreakerPolicy mirrors the teacher's defaults.
func DefaultCircuitBreakerPolicy() CircuitBreakerPolicy {
	return CircuitBreakerPolicy{
		Enabled:          true,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 1,
	}
}

// ClientConfig is the top-level configuration for a ManagerClient.
type ClientConfig struct {
	Frame          FrameConfig
	Mailbox        MailboxConfig
	Retry          RetryPolicy
	Reconnect      ReconnectPolicy
	CircuitBreaker CircuitBreakerPolicy
}

// DefaultClientConfig returns a Config with sensible defaults, following
// the teacher's DefaultConfig() idiom in client/client.go.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Frame:          DefaultFrameConfig(),
		Mailbox:        DefaultMailboxConfig(),
		Retry:          DefaultRetryPolicy(),
		Reconnect:      DefaultReconnectPolicy(),
		CircuitBreaker: DefaultCircuitBreakerPolicy(),
	}
}

// Validate checks that the configuration is internally consistent.
func (c *ClientConfig) Validate() error {
	if err := c.Frame.Validate(); err != nil {
		return err
	}
	if err := c.Mailbox.Validate(); err != nil {
		return err
	}
	if c.Retry.Enabled && c.Retry.MaxAttempts < 1 {
		return errors.New("config: Retry.MaxAttempts must be at least 1 when enabled")
	}
	if c.Reconnect.Enabled && c.Reconnect.MaxAttempts < 0 {
		return errors.New("config: Reconnect.MaxAttempts must not be negative")
	}
	return nil
}

// ServerConfig is the top-level configuration for a Server (C5) / Manager
// (C6) instance.
type ServerConfig struct {
	Frame FrameConfig

	// HandlerQueueSize is checked by Validate but not consulted by
	// netproto.Server, which starts one goroutine per decoded request
	// with no bound on how many run at once.
	HandlerQueueSize int
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Frame:            DefaultFrameConfig(),
		HandlerQueueSize: 32,
	}
}

func (c *ServerConfig) Validate() error {
	if err := c.Frame.Validate(); err != nil {
		return err
	}
	if c.HandlerQueueSize <= 0 {
		return errors.New("config: HandlerQueueSize must be greater than zero")
	}
	return nil
}
