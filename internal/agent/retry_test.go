package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlasserver/atlasai/internal/api"
)

// recordSleep records waits without sleeping
type recordSleep struct {
	waits []time.Duration
}

func (s *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func rateLimited() error {
	return &api.ProviderError{Kind: api.ErrRateLimited, Provider: "p", StatusCode: 429}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"attempt 0", 0, InitialBackoff},
		{"attempt 1", 1, InitialBackoff * 2},
		{"attempt 2", 2, InitialBackoff * 4},
		{"attempt large", 10, MaxBackoff}, // Should cap at max
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateBackoff(tt.attempt)
			if got != tt.want {
				t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestWithRetry_Success(t *testing.T) {
	callCount := 0
	r := NewRetrier(2, (&recordSleep{}).sleep, nil)

	result, err := WithRetry(context.Background(), r, func() (string, error) {
		callCount++
		return "success", nil
	})

	if err != nil {
		t.Errorf("WithRetry() unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("WithRetry() = %v, want %v", result, "success")
	}
	if callCount != 1 {
		t.Errorf("WithRetry() called %d times, want 1", callCount)
	}
}

func TestWithRetry_RetryableError(t *testing.T) {
	callCount := 0
	rs := &recordSleep{}
	var retries []int
	r := NewRetrier(2, rs.sleep, func(attempt int, wait time.Duration, err error) {
		retries = append(retries, attempt)
	})

	_, err := WithRetry(context.Background(), r, func() (string, error) {
		callCount++
		return "", rateLimited()
	})

	if !api.IsRetryable(err) {
		t.Errorf("WithRetry() error = %v, want the provider error wrapped", err)
	}
	if callCount != 3 {
		t.Errorf("WithRetry() called %d times, want 3", callCount)
	}
	if len(rs.waits) != 2 || rs.waits[0] != 500*time.Millisecond || rs.waits[1] != time.Second {
		t.Errorf("waits = %v, want [500ms 1s]", rs.waits)
	}
	if len(retries) != 2 || retries[1] != 2 {
		t.Errorf("onRetry attempts = %v, want [1 2]", retries)
	}
}

func TestWithRetry_NonRetryableError(t *testing.T) {
	callCount := 0
	r := NewRetrier(3, (&recordSleep{}).sleep, nil)

	_, err := WithRetry(context.Background(), r, func() (string, error) {
		callCount++
		return "", &api.ProviderError{Kind: api.ErrAuthFailure, Provider: "p", StatusCode: 401}
	})

	if err == nil {
		t.Error("WithRetry() expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("WithRetry() called %d times, want 1 (no retry for auth failures)", callCount)
	}
}

func TestWithRetry_PermanentMalformed(t *testing.T) {
	tests := []struct {
		name      string
		permanent bool
		wantCalls int
	}{
		{"undecodable payload is retried", false, 4},
		{"missing user turn is not", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			r := NewRetrier(3, (&recordSleep{}).sleep, nil)
			_, err := WithRetry(context.Background(), r, func() (string, error) {
				calls++
				return "", &api.ProviderError{Kind: api.ErrMalformed, Provider: "p", Permanent: tt.permanent}
			})
			if err == nil {
				t.Fatal("WithRetry() expected error, got nil")
			}
			if calls != tt.wantCalls {
				t.Errorf("WithRetry() called %d times, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestWithRetry_NonProviderError(t *testing.T) {
	callCount := 0
	r := NewRetrier(3, (&recordSleep{}).sleep, nil)

	_, err := WithRetry(context.Background(), r, func() (string, error) {
		callCount++
		return "", errors.New("some other error")
	})

	if err == nil {
		t.Error("WithRetry() expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("WithRetry() called %d times, want 1", callCount)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := WithRetry(ctx, NewRetrier(2, nil, nil), func() (string, error) {
		called = true
		return "success", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithRetry() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn should not run on a cancelled context")
	}
}

func TestWithRetry_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(5, nil, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := WithRetry(ctx, r, func() (string, error) {
		return "", rateLimited()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithRetry() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Error("cancellation should interrupt the backoff wait")
	}
}

func TestWithRetry_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	r := NewRetrier(2, (&recordSleep{}).sleep, nil)

	result, err := WithRetry(context.Background(), r, func() (string, error) {
		callCount++
		if callCount < 2 {
			return "", rateLimited()
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("WithRetry() unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("WithRetry() = %v, want %v", result, "success")
	}
	if callCount != 2 {
		t.Errorf("WithRetry() called %d times, want 2", callCount)
	}
}

func TestWithRetry_TotalBudget(t *testing.T) {
	rs := &recordSleep{}
	r := NewRetrier(10, rs.sleep, nil)

	// 0.5 + 1 + 2 + 4 + 5 = 12.5s, then 2.5s remain, then the budget is spent
	calls := 0
	_, err := WithRetry(context.Background(), r, func() (string, error) {
		calls++
		return "", rateLimited()
	})
	if err == nil {
		t.Fatal("WithRetry() expected error")
	}
	if r.Waited() != MaxTotalBackoff {
		t.Errorf("Waited() = %v, want %v", r.Waited(), MaxTotalBackoff)
	}
	if last := rs.waits[len(rs.waits)-1]; last != 2500*time.Millisecond {
		t.Errorf("last wait = %v, want 2.5s", last)
	}

	// budget is shared across calls on the same branch
	calls = 0
	_, _ = WithRetry(context.Background(), r, func() (string, error) {
		calls++
		return "", rateLimited()
	})
	if calls != 1 {
		t.Errorf("calls after budget exhausted = %d, want 1", calls)
	}
}
