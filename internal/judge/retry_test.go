package judge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{"nil", nil, FailureNone},
		{"rate limit", &APIError{StatusCode: 429}, FailureRateLimit},
		{"bad request", &APIError{StatusCode: 400}, FailureBadRequest},
		{"unauthorized", &APIError{StatusCode: 401}, FailureAuthentication},
		{"forbidden", &APIError{StatusCode: 403}, FailurePermissionDenied},
		{"not found", &APIError{StatusCode: 404}, FailureUnclassified},
		{"internal", &APIError{StatusCode: 500}, FailureInternalServer},
		{"bad gateway", &APIError{StatusCode: 502}, FailureInternalServer},
		{"wrapped", fmt.Errorf("call: %w", &APIError{StatusCode: 429}), FailureRateLimit},
		{"connection", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, FailureConnection},
		{"timeout", context.DeadlineExceeded, FailureConnection},
		{"canceled", context.Canceled, FailureUnclassified},
		{"other", errors.New("boom"), FailureUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransition(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		name    string
		attempt int
		failure Failure
		want    Step
	}{
		{"success", 1, FailureNone, Step{Phase: PhaseSucceeded}},
		{"success at ceiling", 50, FailureNone, Step{Phase: PhaseSucceeded}},
		{"parse retries immediately", 1, FailureParse, Step{Phase: PhaseRetrying}},
		{"rate limit", 3, FailureRateLimit, Step{Phase: PhaseRetrying, Backoff: 5 * time.Second}},
		{"bad request", 3, FailureBadRequest, Step{Phase: PhaseRetrying, Backoff: 5 * time.Second}},
		{"permission denied", 3, FailurePermissionDenied, Step{Phase: PhaseRetrying, Backoff: time.Minute}},
		{"internal", 3, FailureInternalServer, Step{Phase: PhaseRetrying, Backoff: time.Minute}},
		{"connection", 3, FailureConnection, Step{Phase: PhaseRetrying, Backoff: time.Minute}},
		{"authentication", 1, FailureAuthentication, Step{Phase: PhaseFatal}},
		{"unclassified", 1, FailureUnclassified, Step{Phase: PhaseFatal}},
		{"last attempt", 49, FailureParse, Step{Phase: PhaseRetrying}},
		{"ceiling", 50, FailureParse, Step{Phase: PhaseFatal, Exhausted: true}},
		{"ceiling transient", 50, FailureRateLimit, Step{Phase: PhaseFatal, Exhausted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Transition(tt.attempt, tt.failure); got != tt.want {
				t.Errorf("Transition(%d, %s) = %+v, want %+v", tt.attempt, tt.failure, got, tt.want)
			}
		})
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	if err := DefaultRetryPolicy().Validate(); err != nil {
		t.Errorf("default policy: %v", err)
	}
	if err := (RetryPolicy{}).Validate(); err == nil {
		t.Error("expected error for zero attempts")
	}
	if err := (RetryPolicy{MaxAttempts: 1, OutageBackoff: -1}).Validate(); err == nil {
		t.Error("expected error for negative backoff")
	}
}

func TestSleepContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
