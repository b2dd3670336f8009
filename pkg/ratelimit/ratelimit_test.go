package ratelimit

import (
	"context"
	"testing"
)

func TestLimiter_DisabledNeverBlocks(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("disabled limiter returned %v", err)
		}
	}
}

func TestLimiter_NilSafe(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait = %v, want nil", err)
	}
	if err := l.WaitForHost(context.Background(), "a.example"); err != nil {
		t.Errorf("nil limiter WaitForHost = %v, want nil", err)
	}
	l.ClearHost("a.example") // must not panic
	if got := l.HostCount(); got != 0 {
		t.Errorf("nil limiter HostCount = %d, want 0", got)
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := New(1).Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
	if err := New(0).Wait(ctx); err == nil {
		t.Error("disabled limiter must still honor cancellation")
	}
}

func TestLimiter_PerHostTracking(t *testing.T) {
	l := NewPerHost(100)

	for _, host := range []string{"a.example", "b.example", "a.example"} {
		if err := l.WaitForHost(context.Background(), host); err != nil {
			t.Fatalf("WaitForHost(%s): %v", host, err)
		}
	}
	if got := l.HostCount(); got != 2 {
		t.Errorf("HostCount = %d, want 2", got)
	}

	l.ClearHost("a.example")
	if got := l.HostCount(); got != 1 {
		t.Errorf("HostCount after ClearHost = %d, want 1", got)
	}
}

func TestLimiter_GlobalIgnoresHost(t *testing.T) {
	l := New(100)
	if err := l.WaitForHost(context.Background(), "a.example"); err != nil {
		t.Fatal(err)
	}
	if got := l.HostCount(); got != 0 {
		t.Errorf("global limiter tracked %d hosts, want 0", got)
	}
}

func TestLimiter_PerHostEmptyHostFallsThrough(t *testing.T) {
	l := NewPerHost(100)
	if err := l.WaitForHost(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if got := l.HostCount(); got != 0 {
		t.Errorf("empty host created a per-host limiter, HostCount = %d", got)
	}
}

func TestBurstFor(t *testing.T) {
	tests := []struct {
		rps  int
		want int
	}{
		{0, 1},
		{5, 1},
		{10, 1},
		{50, 5},
		{100, 10},
	}
	for _, tt := range tests {
		if got := burstFor(tt.rps); got != tt.want {
			t.Errorf("burstFor(%d) = %d, want %d", tt.rps, got, tt.want)
		}
	}
}
