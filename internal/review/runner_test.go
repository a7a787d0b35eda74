package review

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"PaperTriage/internal/domain"
)

type scriptedBackend struct {
	calls   atomic.Int32
	replies []func(ctx context.Context) (string, error)
}

func (b *scriptedBackend) Name() string  { return "claude" }
func (b *scriptedBackend) Model() string { return "test-model" }

func (b *scriptedBackend) Complete(ctx context.Context, _ Prompt) (string, error) {
	n := int(b.calls.Add(1)) - 1
	if n >= len(b.replies) {
		n = len(b.replies) - 1
	}
	return b.replies[n](ctx)
}

func reply(s string, err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return s, err }
}

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		Timeout:     time.Second,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}
}

var testPub = domain.Publication{ID: "p1", Title: "Breath VOC screening", Abstract: "Prospective cohort."}

func TestRunnerSuccess(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []func(context.Context) (string, error){reply(validV3, nil)}}
	res := NewRunner(backend, VersionV3, fastPolicy(2), nil).Review(context.Background(), testPub)

	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Attempts != 1 || res.Reviewer != "claude" || res.Model != "test-model" || res.PromptVersion != VersionV3 {
		t.Fatalf("unexpected metadata %+v", res)
	}
	if res.ReviewedAt.IsZero() {
		t.Fatal("ReviewedAt not set")
	}
}

func TestRunnerRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []func(context.Context) (string, error){
		reply("", &StatusError{Code: http.StatusServiceUnavailable}),
		reply(validV3, nil),
	}}
	res := NewRunner(backend, VersionV3, fastPolicy(2), nil).Review(context.Background(), testPub)

	if !res.Succeeded() || res.Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %+v", res)
	}
}

func TestRunnerNeverFabricatesScore(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []func(context.Context) (string, error){reply("not json at all", nil)}}
	res := NewRunner(backend, VersionV3, fastPolicy(2), nil).Review(context.Background(), testPub)

	if res.Success || res.Judgment != nil {
		t.Fatalf("malformed output must not produce a judgment: %+v", res)
	}
	if res.FailureKind != domain.FailureMalformed {
		t.Fatalf("expected malformed, got %s", res.FailureKind)
	}
	if res.Attempts != 2 || backend.calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestRunnerDoesNotRetryMisconfigured(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []func(context.Context) (string, error){
		reply("", &StatusError{Code: http.StatusUnauthorized}),
	}}
	res := NewRunner(backend, VersionV3, fastPolicy(3), nil).Review(context.Background(), testPub)

	if res.FailureKind != domain.FailureMisconfigured {
		t.Fatalf("expected misconfigured, got %s", res.FailureKind)
	}
	if backend.calls.Load() != 1 {
		t.Fatalf("misconfigured backend called %d times", backend.calls.Load())
	}
}

func TestRunnerTimeout(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []func(context.Context) (string, error){
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}}
	policy := fastPolicy(1)
	policy.Timeout = 10 * time.Millisecond
	res := NewRunner(backend, VersionV3, policy, nil).Review(context.Background(), testPub)

	if res.FailureKind != domain.FailureTimeout {
		t.Fatalf("expected timeout, got %s (%s)", res.FailureKind, res.Error)
	}
}

func TestRunnerInvalidInputSkipsBackend(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []func(context.Context) (string, error){reply(validV3, nil)}}
	res := NewRunner(backend, VersionV3, fastPolicy(2), nil).Review(context.Background(), domain.Publication{ID: "empty"})

	if res.FailureKind != domain.FailureInvalidInput || backend.calls.Load() != 0 {
		t.Fatalf("expected invalid input without calls, got %+v", res)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want domain.FailureKind
	}{
		{&StatusError{Code: http.StatusTooManyRequests}, domain.FailureRateLimited},
		{&StatusError{Code: http.StatusForbidden}, domain.FailureMisconfigured},
		{&StatusError{Code: http.StatusBadGateway}, domain.FailureTransport},
		{context.DeadlineExceeded, domain.FailureTimeout},
		{context.Canceled, domain.FailureCanceled},
		{errors.New("connection reset"), domain.FailureTransport},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
	if Retryable(&StatusError{Code: http.StatusBadRequest}) {
		t.Fatal("4xx should not be retryable")
	}
	if !Retryable(&StatusError{Code: http.StatusTooManyRequests}) {
		t.Fatal("429 should be retryable")
	}
}
