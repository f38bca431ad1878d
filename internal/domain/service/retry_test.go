package service

import (
	"errors"
	"testing"
	"time"

	"github.com/steerdev/steer/pkg/cancel"
)

func fastRetry(budget int) RetryPolicy {
	return RetryPolicy{MaxRetries: budget, BaseWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

func TestRetryUpperBound(t *testing.T) {
	calls := 0
	boom := &ApiError{Kind: ErrKindServerError, Message: "boom"}

	_, err := fastRetry(3).Do(cancel.NewToken(), testLogger(), func() (*CompletionResponse, error) {
		calls++
		return nil, boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected final error, got %v", err)
	}
	// Budget N means at most N+1 calls.
	if calls != 4 {
		t.Errorf("expected 4 calls for budget 3, got %d", calls)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	resp, err := fastRetry(3).Do(cancel.NewToken(), testLogger(), func() (*CompletionResponse, error) {
		calls++
		if calls < 3 {
			return nil, &ApiError{Kind: ErrKindNetwork, Message: "flaky"}
		}
		return &CompletionResponse{Model: "m"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Model != "m" || calls != 3 {
		t.Errorf("expected success on call 3, got calls=%d", calls)
	}
}

func TestRetryNonRetriableSurfacesImmediately(t *testing.T) {
	cases := []ApiErrorKind{
		ErrKindAuthentication,
		ErrKindInvalidRequest,
		ErrKindCancelled,
		ErrKindResponseParsing,
		ErrKindNoChoices,
		ErrKindRequestBlocked,
		ErrKindUnknown,
	}
	for _, kind := range cases {
		t.Run(kind.String(), func(t *testing.T) {
			calls := 0
			_, err := fastRetry(3).Do(cancel.NewToken(), testLogger(), func() (*CompletionResponse, error) {
				calls++
				return nil, &ApiError{Kind: kind, Message: "nope"}
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if calls != 1 {
				t.Errorf("%s should not be retried, got %d calls", kind, calls)
			}
		})
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseWait: time.Hour, MaxWait: time.Hour}
	rateLimited := &ApiError{Kind: ErrKindRateLimited, RetryAfterSeconds: 0}
	// With no server delay the exponential backoff would sleep an hour;
	// a provided delay takes precedence. Check the computed backoff
	// directly rather than sleeping.
	rateLimited.RetryAfterSeconds = 1
	if got := policy.backoff(1, rateLimited); got != time.Second {
		t.Errorf("server delay should win, got %v", got)
	}

	plain := &ApiError{Kind: ErrKindServerError}
	if got := policy.backoff(1, plain); got != time.Hour {
		t.Errorf("capped exponential expected, got %v", got)
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	token := cancel.NewToken()
	policy := RetryPolicy{MaxRetries: 2, BaseWait: time.Hour, MaxWait: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := policy.Do(token, testLogger(), func() (*CompletionResponse, error) {
			calls++
			return nil, &ApiError{Kind: ErrKindNetwork, Message: "flaky"}
		})
		done <- err
	}()

	// Let the first call fail and the backoff sleep begin.
	time.Sleep(50 * time.Millisecond)
	token.Cancel()

	select {
	case err := <-done:
		if !IsCancelled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation during backoff was not observed")
	}
	if calls != 1 {
		t.Errorf("no further calls after cancellation, got %d", calls)
	}
}
