package judge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Failure classifies the outcome of one judge attempt.
type Failure int

const (
	FailureNone Failure = iota
	FailureParse
	FailureRateLimit
	FailureBadRequest
	FailurePermissionDenied
	FailureInternalServer
	FailureConnection
	FailureAuthentication
	FailureUnclassified
)

var failureNames = map[Failure]string{
	FailureNone:             "none",
	FailureParse:            "parse",
	FailureRateLimit:        "rate_limit",
	FailureBadRequest:       "bad_request",
	FailurePermissionDenied: "permission_denied",
	FailureInternalServer:   "internal_server",
	FailureConnection:       "connection",
	FailureAuthentication:   "authentication",
	FailureUnclassified:     "unclassified",
}

func (f Failure) String() string {
	if s, ok := failureNames[f]; ok {
		return s
	}
	return "unknown"
}

// Fatal reports whether the failure ends the call loop immediately.
func (f Failure) Fatal() bool {
	return f == FailureAuthentication || f == FailureUnclassified
}

// Classify maps a judge call error to its failure class.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}
	var apierr *APIError
	if errors.As(err, &apierr) {
		switch code := apierr.StatusCode; {
		case code == http.StatusTooManyRequests:
			return FailureRateLimit
		case code == http.StatusBadRequest:
			return FailureBadRequest
		case code == http.StatusUnauthorized:
			return FailureAuthentication
		case code == http.StatusForbidden:
			return FailurePermissionDenied
		case code >= http.StatusInternalServerError:
			return FailureInternalServer
		}
		return FailureUnclassified
	}
	if errors.Is(err, context.Canceled) {
		return FailureUnclassified
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return FailureConnection
	}
	return FailureUnclassified
}

// Phase is a state of the judge call loop.
type Phase int

const (
	PhaseCalling Phase = iota
	PhaseParsing
	PhaseSucceeded
	PhaseRetrying
	PhaseFatal
)

func (p Phase) String() string {
	switch p {
	case PhaseCalling:
		return "calling"
	case PhaseParsing:
		return "parsing"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseRetrying:
		return "retrying"
	case PhaseFatal:
		return "fatal"
	}
	return "unknown"
}

// Step is the next state chosen after an attempt.
type Step struct {
	Phase     Phase
	Backoff   time.Duration
	Exhausted bool
}

// RetryPolicy bounds the call loop.
type RetryPolicy struct {
	MaxAttempts      int
	RateLimitBackoff time.Duration
	OutageBackoff    time.Duration
}

// DefaultRetryPolicy allows 50 attempts, sleeping 5s after rate limits and
// rejected requests and 60s after outages.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      50,
		RateLimitBackoff: 5 * time.Second,
		OutageBackoff:    60 * time.Second,
	}
}

// Validate checks that the policy has usable values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if p.RateLimitBackoff < 0 || p.OutageBackoff < 0 {
		return errors.New("backoff cannot be negative")
	}
	return nil
}

// Transition decides what follows attempt number attempt (1-based) ending
// with failure f.
func (p RetryPolicy) Transition(attempt int, f Failure) Step {
	switch {
	case f == FailureNone:
		return Step{Phase: PhaseSucceeded}
	case f.Fatal():
		return Step{Phase: PhaseFatal}
	case attempt >= p.MaxAttempts:
		return Step{Phase: PhaseFatal, Exhausted: true}
	}
	return Step{Phase: PhaseRetrying, Backoff: p.backoff(f)}
}

func (p RetryPolicy) backoff(f Failure) time.Duration {
	switch f {
	case FailureRateLimit, FailureBadRequest:
		return p.RateLimitBackoff
	case FailurePermissionDenied, FailureInternalServer, FailureConnection:
		return p.OutageBackoff
	}
	return 0
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
