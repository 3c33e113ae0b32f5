package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var errRefused = fmt.Errorf("dial tcp 127.0.0.1:9000: %w", syscall.ECONNREFUSED)

func TestDoFirstTrySucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errRefused
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoTerminalErrorStopsImmediately(t *testing.T) {
	terminal := errors.New("tool not found")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		return errRefused
	})
	require.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 3, calls)
}

func TestDoStopsWhenBudgetNearlySpent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Budget: 500 * time.Millisecond}, func() error {
		calls++
		return errRefused
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "under a second of budget leaves no room to retry")
}

func TestDoDerivesBudgetFromDeadline(t *testing.T) {
	// Deadline 5.2s out leaves a 200ms budget after the 5s reserve.
	ctx, cancel := context.WithTimeout(context.Background(), 5200*time.Millisecond)
	defer cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		return errRefused
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 2, BaseDelay: 10 * time.Second}, func() error {
		calls++
		return errRefused
	})
	require.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "cancel should cut the backoff sleep short")
}

func TestBackoffDelayBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempt := rapid.IntRange(0, 6).Draw(t, "attempt")
		base := time.Duration(rapid.Int64Range(int64(10*time.Millisecond), int64(2*time.Second)).Draw(t, "base"))

		remaining := time.Duration(-1)
		if rapid.Bool().Draw(t, "bounded") {
			remaining = time.Duration(rapid.Int64Range(int64(2100*time.Millisecond), int64(2*time.Minute)).Draw(t, "remaining"))
		}

		ceiling := maxDelay
		if remaining >= 0 && remaining/2 < ceiling {
			ceiling = remaining / 2
		}
		raw := base * time.Duration(1<<uint(attempt))
		if raw <= 0 || raw > ceiling {
			raw = ceiling
		}

		got := backoffDelay(base, attempt, remaining)
		slack := time.Microsecond
		if got < time.Duration(0.75*float64(raw))-slack || got > time.Duration(1.25*float64(raw))+slack {
			t.Fatalf("backoffDelay(%v, %d, %v) = %v, want within ±25%% of %v", base, attempt, remaining, got, raw)
		}
	})
}

func TestBackoffDelayCapsAtHalfRemaining(t *testing.T) {
	// Remaining 4s caps the delay at 2s before jitter.
	got := backoffDelay(time.Second, 5, 4*time.Second)
	assert.LessOrEqual(t, got, 2500*time.Millisecond)
	assert.GreaterOrEqual(t, got, 1500*time.Millisecond)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "operation timed out" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestTransientSystemErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"timed out", fmt.Errorf("connect: %w", syscall.ETIMEDOUT), true},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"net unreachable", fmt.Errorf("connect: %w", syscall.ENETUNREACH), true},
		{"host unreachable", fmt.Errorf("connect: %w", syscall.EHOSTUNREACH), true},
		{"permission denied", fmt.Errorf("open: %w", syscall.EACCES), false},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "mcp.example.com", IsNotFound: true}, true},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", Name: "mcp.example.com", IsTemporary: true}, true},
		{"net timeout interface", timeoutErr{}, true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(tt.err))
		})
	}
}

func TestTransientMessages(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"502", true},
		{"  503 from upstream", true},
		{"HTTP 502", true},
		{"http: 504", true},
		{"status 429", true},
		{"status code 503", true},
		{"upstream returned 502 Bad Gateway", true},
		{"429 Too Many Requests", true},
		{"503 Service Unavailable", true},
		{"504 Gateway Time-out", true},
		{"520", false},
		{"line 502 of file", false},
		{"error 1502", false},
		{"rate limited: 429", false},
		{"request timeout", true},
		{"network error during read", true},
		{"network request failed", true},
		{"the network is unavailable", true},
		{"connection reset by peer", true},
		{"connection refused", true},
		{"connection to host timed out", true},
		{"permission denied", false},
		{"tool not found", false},
		{"invalid arguments", false},
		{"context canceled", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(errors.New(tt.msg)), "message %q", tt.msg)
		})
	}
}
