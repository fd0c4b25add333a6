package whep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dkeye/whep-player/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 10
	DefaultBackoff     = 2 * time.Second

	// maxAnswerSize bounds the answer body read from the endpoint.
	maxAnswerSize = 1 << 20
	// maxErrorBody bounds the diagnostic excerpt kept from a failed response.
	maxErrorBody = 512
)

// RetryPolicy governs restarts on HTTP 409. The delay is fixed.
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is the disabled policy with the standard limits, so
// enabling it is a one-field change.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

func (p RetryPolicy) schedule() backoff.BackOff {
	if !p.Enabled || p.MaxAttempts <= 1 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(p.MaxAttempts-1))
}

// Answer is the endpoint's reply to an offer.
type Answer struct {
	SDP string
	// Location is the WHEP resource URL, when the endpoint sent one.
	Location string
}

// PrepareFunc builds a fresh offer for the given attempt number.
type PrepareFunc func(ctx context.Context, attempt int) (offerSDP string, err error)

// RetryFunc is told about every scheduled restart before the delay.
type RetryFunc func(attempt int, delay time.Duration, cause error)

// Exchange performs the HTTP half of WHEP negotiation.
type Exchange struct {
	client *http.Client
	clock  Clock
	logger zerolog.Logger
}

func NewExchange(client *http.Client, clock Clock) *Exchange {
	if client == nil {
		client = http.DefaultClient
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Exchange{
		client: client,
		clock:  clock,
		logger: log.With().Str("module", "app.whep.exchange").Logger(),
	}
}

// Post sends offerSDP to endpoint and returns the answer. Any non-2xx
// response is returned as *core.NegotiationError.
func (e *Exchange) Post(ctx context.Context, endpoint, offerSDP string) (Answer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return Answer{}, &core.NegotiationError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Accept", "application/sdp")

	e.logger.Debug().Str("endpoint", endpoint).Int("offer_bytes", len(offerSDP)).Msg("sending WHEP request")
	resp, err := e.client.Do(req)
	if err != nil {
		return Answer{}, &core.NegotiationError{Err: fmt.Errorf("posting offer: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		negErr := &core.NegotiationError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(bytes.TrimSpace(body)),
		}
		e.logger.Warn().Str("endpoint", endpoint).Int("status", resp.StatusCode).Str("body", negErr.Body).Msg("WHEP error response")
		return Answer{}, negErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return Answer{}, &core.NegotiationError{Status: resp.StatusCode, StatusText: statusText(resp), Err: fmt.Errorf("reading answer: %w", err)}
	}
	return Answer{SDP: string(body), Location: resolveLocation(resp)}, nil
}

// Negotiate runs prepare and Post until an answer arrives. A 409 restarts
// the whole attempt, including prepare, while policy allows it; every
// other failure is returned immediately. The loop is sequential and
// checks ctx before each attempt.
func (e *Exchange) Negotiate(ctx context.Context, endpoint string, policy RetryPolicy, prepare PrepareFunc, onRetry RetryFunc) (Answer, error) {
	schedule := policy.schedule()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Answer{}, err
		}

		offer, err := prepare(ctx, attempt)
		if err != nil {
			return Answer{}, err
		}

		answer, err := e.Post(ctx, endpoint, offer)
		if err == nil {
			return answer, nil
		}

		var negErr *core.NegotiationError
		if !errors.As(err, &negErr) || !negErr.Conflict() {
			return Answer{}, err
		}
		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			return Answer{}, err
		}

		e.logger.Info().Int("attempt", attempt).Int("max_attempts", policy.MaxAttempts).Dur("delay", delay).Msg("stream not ready, retrying")
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if err := e.clock.Sleep(ctx, delay); err != nil {
			return Answer{}, err
		}
	}
}

func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func resolveLocation(resp *http.Response) string {
	loc, err := resp.Location()
	if err != nil {
		return ""
	}
	return loc.String()
}
