package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingEndpoint = errors.New("WHEP URL is required")
	ErrSessionClosed   = errors.New("session closed")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrRateLimited     = errors.New("too many players attached")
)

// ConfigError reports an unusable Session configuration. It is raised
// before any network activity.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %v", e.Field, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// NegotiationError is a failed offer/answer exchange. Status is zero
// when the failure happened before an HTTP response was received.
type NegotiationError struct {
	Status     int
	StatusText string
	Body       string
	Err        error
}

func (e *NegotiationError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("WHEP negotiation failed: %v", e.Err)
	}
	msg := fmt.Sprintf("WHEP request failed: %d %s", e.Status, e.StatusText)
	if e.Body != "" {
		msg += " - " + e.Body
	}
	return msg
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Conflict reports whether the endpoint answered 409, meaning the stream
// is not available yet.
func (e *NegotiationError) Conflict() bool { return e.Status == http.StatusConflict }

// TransportFailure is an asynchronous failure reported by the media connection.
type TransportFailure struct {
	State string
}

func (e *TransportFailure) Error() string { return "connection " + e.State }

// PlaybackError means the sink refused to start. It is recoverable by a
// user gesture.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string { return fmt.Sprintf("playback blocked: %v", e.Err) }
func (e *PlaybackError) Unwrap() error { return e.Err }
