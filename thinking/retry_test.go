package thinking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.expected {
			t.Errorf("Delay(%d) = %v, expected %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestRetryPolicyDelayWithMaxCap(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		MaxDelay:          5.0,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}

	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, expected cap at 5s", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         2.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	// With +/- 50% jitter, Delay(0) must land in [1s, 3s].
	for i := 0; i < 100; i++ {
		d := policy.Delay(0)
		if d < 1*time.Second || d > 3*time.Second {
			t.Fatalf("Delay(0) with jitter = %v, expected within [1s, 3s]", d)
		}
	}
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         0.001,
		MaxDelay:          0.01,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, expected %q", result, "ok")
	}
	if calls != 1 {
		t.Errorf("calls = %d, expected 1", calls)
	}
}

func TestRetryRecoverFromRetryableError(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServerError{ProviderError: ProviderError{
				StageError: StageError{Message: "upstream 500"},
				StatusCode: 500,
			}}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %q, expected %q", result, "recovered")
	}
	if calls != 3 {
		t.Errorf("calls = %d, expected 3", calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ProviderError: ProviderError{
			StageError: StageError{Message: "bad key"},
			StatusCode: 401,
		}}
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("error = %T, expected *AuthenticationError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, expected 1", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ProviderError: ProviderError{
			StageError: StageError{Message: "slow down"},
			StatusCode: 429,
		}}
	})
	if err == nil {
		t.Fatal("expected an error after budget exhaustion")
	}
	// One initial call plus MaxRetries retries.
	if calls != 3 {
		t.Errorf("calls = %d, expected 3", calls)
	}
}

func TestRetryOnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy(2)
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &NetworkError{StageError: StageError{Message: "connection reset"}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Errorf("OnRetry attempts = %v, expected [1]", attempts)
	}
}

func TestRetryAbortsOnContextCancel(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         10.0, // long enough that cancellation wins the wait
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return "", &ServerError{ProviderError: ProviderError{
			StageError: StageError{Message: "upstream 500"},
			StatusCode: 500,
		}}
	})
	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("error = %T (%v), expected *AbortError", err, err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected the abort error to wrap context.Canceled")
	}
}
