package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "zero attempts", cfg: Config{MaxAttempts: 0, BaseDelay: time.Second, MaxDelay: time.Second}, wantErr: true},
		{name: "zero base delay", cfg: Config{MaxAttempts: 3, BaseDelay: 0, MaxDelay: time.Second}, wantErr: true},
		{name: "max below base", cfg: Config{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	cfg := Config{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}

	// 1s, 2s, 4s, 8s, 16s, then capped at 30s.
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for i, expected := range want {
		attempt := i + 1
		if got := cfg.Delay(attempt); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestDelayCapNotPowerOfTwo(t *testing.T) {
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
	}

	if got := cfg.Delay(3); got != 4*time.Second {
		t.Errorf("Delay(3) = %v, want 4s", got)
	}
	if got := cfg.Delay(4); got != 5*time.Second {
		t.Errorf("Delay(4) = %v, want capped 5s", got)
	}
}

func TestDo(t *testing.T) {
	t.Run("succeeds first attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(5), nil, "op", func(ctx context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(5), nil, "op", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		sentinel := errors.New("down")
		calls := 0
		err := Do(context.Background(), fastConfig(5), nil, "fetch logs", func(ctx context.Context) error {
			calls++
			return sentinel
		})
		if err == nil {
			t.Fatal("Do() error = nil, want exhaustion error")
		}
		if calls != 5 {
			t.Errorf("calls = %d, want 5", calls)
		}
		if !errors.Is(err, sentinel) {
			t.Errorf("error %v should wrap %v", err, sentinel)
		}
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		fatal := errors.New("bad request")
		cfg := fastConfig(5)
		cfg.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

		calls := 0
		err := Do(context.Background(), cfg, nil, "op", func(ctx context.Context) error {
			calls++
			return fatal
		})
		if !errors.Is(err, fatal) {
			t.Errorf("Do() error = %v, want %v", err, fatal)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		err := Do(ctx, Config{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}, nil, "op", func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("transient")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		err := Do(context.Background(), Config{}, nil, "op", func(ctx context.Context) error {
			t.Fatal("op should not run with invalid config")
			return nil
		})
		if err == nil {
			t.Error("Do() error = nil, want validation error")
		}
	})
}
