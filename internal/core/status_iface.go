package core

import "time"

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseConnecting       Phase = "connecting"
	PhaseRetrying         Phase = "retrying"
	PhaseConnected        Phase = "connected"
	PhasePlaying          Phase = "playing"
	PhaseNeedsInteraction Phase = "needs_interaction"
	PhaseFailed           Phase = "failed"
	PhaseClosed           Phase = "closed"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Status is one user-visible status update of a Session.
type Status struct {
	SessionID SessionID `json:"session_id"`
	Phase     Phase     `json:"phase"`
	State     State     `json:"state"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Attempt   int       `json:"attempt,omitempty"`
	At        time.Time `json:"at"`
}

// StatusReporter receives every status transition of a Session.
type StatusReporter interface {
	Report(Status)
}

// StatusFunc adapts a plain func to StatusReporter.
type StatusFunc func(Status)

func (f StatusFunc) Report(s Status) { f(s) }
