// This file implements NIST SP 800-92 style security event logging for
// the manager's connection registry, adapted from the teacher's
// client/security_events.go (there scoped to a PSRP session; here scoped
// to manager connection lifecycle and auth proxy outcomes).
package manager

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Security event types.
const (
	EventAuthentication = "authentication"
	EventConnection     = "connection"
	EventChannel        = "channel"
)

// Security event subtypes.
const (
	SubtypeAuthAttempt     = "attempt"
	SubtypeAuthSuccess     = "success"
	SubtypeAuthFailure     = "failure"
	SubtypeConnLaunched    = "launched"
	SubtypeConnConnected   = "connected"
	SubtypeConnKilled      = "killed"
	SubtypeConnLost        = "lost"
	SubtypeChannelOpened   = "opened"
	SubtypeChannelClosed   = "closed"
)

// Event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Severity levels.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// SecurityEvent is one structured, correlatable audit log entry.
type SecurityEvent struct {
	Timestamp     string
	EventType     string
	Subtype       string
	CorrelationID string
	ConnectionID  uint64
	Target        string
	Outcome       string
	Severity      string
	Details       map[string]any
}

func newSecurityEvent(eventType, subtype, correlationID string, connID uint64, target, outcome, severity string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		EventType:     eventType,
		Subtype:       subtype,
		CorrelationID: correlationID,
		ConnectionID:  connID,
		Target:        target,
		Outcome:       outcome,
		Severity:      severity,
		Details:       make(map[string]any),
	}
}

func (e *SecurityEvent) withDetail(key string, value any) *SecurityEvent {
	e.Details[key] = value
	return e
}

func (e *SecurityEvent) log(logger *slog.Logger) {
	if logger == nil {
		return
	}
	var logFunc func(msg string, args ...any)
	switch e.Severity {
	case SeverityCritical, SeverityError:
		logFunc = logger.Error
	case SeverityWarning:
		logFunc = logger.Warn
	default:
		logFunc = logger.Info
	}
	logFunc("security_event",
		"event_type", e.EventType,
		"subtype", e.Subtype,
		"correlation_id", e.CorrelationID,
		"connection_id", e.ConnectionID,
		"target", e.Target,
		"outcome", e.Outcome,
		"severity", e.Severity,
		"details", e.Details,
	)
}

// securityLogger emits correlated manager audit events.
type securityLogger struct {
	logger *slog.Logger
}

func newSecurityLogger(logger *slog.Logger) *securityLogger {
	return &securityLogger{logger: logger}
}

func (sl *securityLogger) logAuth(subtype, outcome, severity string, connID uint64, target string, details map[string]any) {
	event := newSecurityEvent(EventAuthentication, subtype, uuid.New().String(), connID, target, outcome, severity)
	for k, v := range details {
		event.withDetail(k, v)
	}
	event.log(sl.logger)
}

func (sl *securityLogger) logConnection(subtype, outcome, severity string, connID uint64, target string, details map[string]any) {
	event := newSecurityEvent(EventConnection, subtype, uuid.New().String(), connID, target, outcome, severity)
	for k, v := range details {
		event.withDetail(k, v)
	}
	event.log(sl.logger)
}

func (sl *securityLogger) logChannel(subtype string, connID, channelID uint64) {
	event := newSecurityEvent(EventChannel, subtype, uuid.New().String(), connID, "", OutcomeSuccess, SeverityInfo)
	event.withDetail("channel_id", channelID)
	event.log(sl.logger)
}
