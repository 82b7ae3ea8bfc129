package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/pkg/logging"
)

func testParams() *chain.Params {
	return &chain.Params{
		Name:          "testchain",
		Family:        chain.FamilyEVM,
		MaxRetries:    2,
		BaseDelay:     time.Second,
		RateLimitWait: 30 * time.Second,
	}
}

// recordingSleep records requested waits without sleeping.
func recordingSleep(waits *[]time.Duration) sleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestFailoverRateLimitedEndpoint(t *testing.T) {
	var waits []time.Duration
	set := newEndpointSet(testParams(), []string{"a", "b"}, recordingSleep(&waits), logging.Default())

	var calls []string
	err := set.do(context.Background(), "op", func(ctx context.Context, url string) error {
		calls = append(calls, url)
		if url == "a" {
			return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}

	// Endpoint a gets both retries before b is contacted at all.
	wantCalls := []string{"a", "a", "b"}
	if len(calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", calls, wantCalls)
	}
	for i := range wantCalls {
		if calls[i] != wantCalls[i] {
			t.Fatalf("calls = %v, want %v", calls, wantCalls)
		}
	}

	// Rate-limit waits honor base*2^attempt plus the penalty, including
	// after the endpoint's final attempt.
	wantWaits := []time.Duration{31 * time.Second, 32 * time.Second}
	if len(waits) != len(wantWaits) {
		t.Fatalf("waits = %v, want %v", waits, wantWaits)
	}
	for i := range wantWaits {
		if waits[i] != wantWaits[i] {
			t.Errorf("waits[%d] = %v, want %v", i, waits[i], wantWaits[i])
		}
	}

	if set.Active() != "b" {
		t.Errorf("Active() = %q, want %q", set.Active(), "b")
	}
}

func TestFailoverPlainFailureSkipsFinalSleep(t *testing.T) {
	var waits []time.Duration
	set := newEndpointSet(testParams(), []string{"a", "b"}, recordingSleep(&waits), logging.Default())

	err := set.do(context.Background(), "op", func(ctx context.Context, url string) error {
		if url == "a" {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}

	// One sleep between a's attempts, none before moving to b.
	if len(waits) != 1 {
		t.Fatalf("waits = %v, want exactly one", waits)
	}
	if waits[0] != time.Second {
		t.Errorf("waits[0] = %v, want 1s", waits[0])
	}
}

func TestFailoverAllEndpointsExhausted(t *testing.T) {
	var waits []time.Duration
	set := newEndpointSet(testParams(), []string{"a", "b"}, recordingSleep(&waits), logging.Default())

	wantErr := errors.New("boom")
	err := set.do(context.Background(), "op", func(ctx context.Context, url string) error {
		return wantErr
	})
	if err == nil {
		t.Fatal("do() should fail when every endpoint fails")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error %v should wrap the last endpoint error", err)
	}
	if set.Active() != "" {
		t.Errorf("Active() = %q, want empty after total failure", set.Active())
	}
}

func TestFailoverContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	set := newEndpointSet(testParams(), []string{"a", "b"}, nil, logging.Default())

	calls := 0
	err := set.do(ctx, "op", func(ctx context.Context, url string) error {
		calls++
		cancel()
		return fmt.Errorf("%w: slow down", ErrRateLimited)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries after cancellation)", calls)
	}
}

func TestIsRateLimit(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrRateLimited, true},
		{fmt.Errorf("wrapped: %w", ErrRateLimited), true},
		{errors.New("HTTP 429 from somewhere"), true},
		{errors.New("Too Many Requests"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := isRateLimit(tc.err); got != tc.want {
			t.Errorf("isRateLimit(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
