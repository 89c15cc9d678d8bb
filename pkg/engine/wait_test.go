package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WaitConfig
		wantErr bool
	}{
		{"defaults", DefaultWaitConfig(), false},
		{"zero interval", WaitConfig{Timeout: time.Minute}, true},
		{"negative interval", WaitConfig{Timeout: time.Minute, SleepInterval: -time.Second}, true},
		{"interval exceeds timeout", WaitConfig{Timeout: 10 * time.Second, SleepInterval: 30 * time.Second}, true},
		{"interval equals timeout", WaitConfig{Timeout: 10 * time.Second, SleepInterval: 10 * time.Second}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestPollRunsUntilDone(t *testing.T) {
	cfg := WaitConfig{Timeout: time.Second, SleepInterval: time.Millisecond}
	attempts := 0
	err := Poll(context.Background(), cfg, "widget active", func(ctx context.Context) (bool, error) {
		attempts++
		return attempts >= 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestPollTimesOut(t *testing.T) {
	cfg := WaitConfig{Timeout: 10 * time.Millisecond, SleepInterval: 5 * time.Millisecond}
	err := Poll(context.Background(), cfg, "widget active", func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !IsTimeout(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestPollInvalidConfigFailsBeforePolling(t *testing.T) {
	cfg := WaitConfig{Timeout: time.Second, SleepInterval: 2 * time.Second}
	polled := false
	err := Poll(context.Background(), cfg, "widget active", func(ctx context.Context) (bool, error) {
		polled = true
		return true, nil
	})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if polled {
		t.Error("poll function must not run when the wait config is invalid")
	}
}

func TestPollPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	cfg := WaitConfig{Timeout: time.Second, SleepInterval: time.Millisecond}
	err := Poll(context.Background(), cfg, "widget active", func(ctx context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected poll error propagated, got %v", err)
	}
}

func TestPollHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := WaitConfig{Timeout: time.Minute, SleepInterval: time.Millisecond}
	err := Poll(ctx, cfg, "widget active", func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if err == nil || IsTimeout(err) {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		class  ErrorClass
		code   string
	}{
		{401, ErrorClassPermanent, ErrCodeUnauthorized},
		{403, ErrorClassPermanent, ErrCodeUnauthorized},
		{404, ErrorClassPermanent, ErrCodeNotFound},
		{409, ErrorClassPermanent, ErrCodeConflict},
		{422, ErrorClassPermanent, ErrCodeAPIError},
		{429, ErrorClassThrottled, ErrCodeRateLimited},
		{500, ErrorClassTransient, ErrCodeAPIError},
		{503, ErrorClassTransient, ErrCodeAPIError},
	}
	for _, tt := range tests {
		e := FromHTTPStatus(tt.status, "nope", nil)
		if e.Class != tt.class || e.Code != tt.code {
			t.Errorf("FromHTTPStatus(%d) = %s/%s, want %s/%s", tt.status, e.Class, e.Code, tt.class, tt.code)
		}
	}
}
