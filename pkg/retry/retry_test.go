package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		Enabled:         true,
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		BackoffStrategy: BackoffConstant,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	r, err := NewRetryer(fastConfig())
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	err = r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoNonRetryableBubblesImmediately(t *testing.T) {
	r, _ := NewRetryer(fastConfig())

	calls := 0
	permanent := errors.New("duplicate key value violates unique constraint")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for constraint violations)", calls)
	}
}

func TestDoMaxAttemptsExceeded(t *testing.T) {
	r, _ := NewRetryer(fastConfig())

	calls := 0
	transient := errors.New("i/o timeout")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return transient
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, transient) {
		t.Errorf("wrapped error lost: %v", err)
	}
	if !strings.Contains(err.Error(), "max retry attempts (3) exceeded") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDoDisabledRunsOnce(t *testing.T) {
	r, _ := NewRetryer(Config{Enabled: false})

	calls := 0
	r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 when disabled", calls)
	}
}

func TestDoContextCancellation(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour // delay must be interrupted, not waited out
	r, _ := NewRetryer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(ctx context.Context) error {
			return errors.New("connection reset")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "context cancelled") {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoOnRetryCallback(t *testing.T) {
	cfg := fastConfig()
	var attempts []int
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	r, _ := NewRetryer(cfg)

	r.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("deadlock detected")
	})
	// Callback fires before retries 2 and 3, not after the final failure
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		name     string
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{"constant 1", BackoffConstant, 1, 100 * time.Millisecond},
		{"constant 3", BackoffConstant, 3, 100 * time.Millisecond},
		{"linear 1", BackoffLinear, 1, 100 * time.Millisecond},
		{"linear 3", BackoffLinear, 3, 300 * time.Millisecond},
		{"exponential 1", BackoffExponential, 1, 100 * time.Millisecond},
		{"exponential 2", BackoffExponential, 2, 200 * time.Millisecond},
		{"exponential 4", BackoffExponential, 4, 800 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Retryer{config: Config{
				InitialDelay:      100 * time.Millisecond,
				BackoffStrategy:   tt.strategy,
				BackoffMultiplier: 2.0,
			}}
			if got := r.calculateDelay(tt.attempt); got != tt.want {
				t.Errorf("delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateDelayMaxCap(t *testing.T) {
	r := &Retryer{config: Config{
		InitialDelay:      time.Second,
		MaxDelay:          2 * time.Second,
		BackoffStrategy:   BackoffExponential,
		BackoffMultiplier: 2.0,
	}}
	if got := r.calculateDelay(10); got != 2*time.Second {
		t.Errorf("delay = %v, want capped at 2s", got)
	}
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	r := &Retryer{config: Config{
		InitialDelay:    100 * time.Millisecond,
		BackoffStrategy: BackoffConstant,
		Jitter:          0.5,
	}}
	for i := 0; i < 50; i++ {
		d := r.calculateDelay(1)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [50ms, 150ms]", d)
		}
	}
}

func TestIsRetryableCustomPatterns(t *testing.T) {
	r := &Retryer{config: Config{RetryablePatterns: []string{"ora-12541"}}}

	if !r.isRetryableError(errors.New("ORA-12541: TNS no listener")) {
		t.Error("custom pattern must match case-insensitively")
	}
	if r.isRetryableError(errors.New("connection refused")) {
		t.Error("custom patterns replace the default set")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Jitter = 5 }, true},
		{"negative attempts", func(c *Config) { c.MaxAttempts = -1 }, false},
		{"negative delay", func(c *Config) { c.InitialDelay = -time.Second }, false},
		{"max below initial", func(c *Config) { c.MaxDelay = time.Millisecond }, false},
		{"jitter out of range", func(c *Config) { c.Jitter = 1.5 }, false},
		{"unknown strategy", func(c *Config) { c.BackoffStrategy = "fibonacci" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}
