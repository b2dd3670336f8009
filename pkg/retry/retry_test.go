package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeSleeper records requested delays instead of sleeping.
type fakeSleeper struct {
	delays []time.Duration
	err    error
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitDelay: time.Second}
	fs := &fakeSleeper{}

	calls := 0
	err := doWithSleeper(context.Background(), cfg, func() error {
		calls++
		return nil
	}, fs)

	if err != nil {
		t.Fatalf("Do = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if len(fs.delays) != 0 {
		t.Errorf("slept %d times, want 0", len(fs.delays))
	}
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitDelay: time.Second}
	fs := &fakeSleeper{}

	calls := 0
	err := doWithSleeper(context.Background(), cfg, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, fs)

	if err != nil {
		t.Fatalf("Do = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
	if len(fs.delays) != 1 {
		t.Errorf("slept %d times, want 1", len(fs.delays))
	}
}

func TestDo_AllFail(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitDelay: time.Second}
	fs := &fakeSleeper{}
	wantErr := errors.New("persistent")

	calls := 0
	err := doWithSleeper(context.Background(), cfg, func() error {
		calls++
		return wantErr
	}, fs)

	if !errors.Is(err, wantErr) {
		t.Errorf("Do = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	// No sleep after the final attempt.
	if len(fs.delays) != 2 {
		t.Errorf("slept %d times, want 2", len(fs.delays))
	}
}

func TestDo_StopError(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitDelay: time.Second}
	fs := &fakeSleeper{}
	wantErr := errors.New("permanent")

	calls := 0
	err := doWithSleeper(context.Background(), cfg, func() error {
		calls++
		return Stop(wantErr)
	}, fs)

	if !errors.Is(err, wantErr) {
		t.Errorf("Do = %v, want unwrapped %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 (no retry after Stop)", calls)
	}
}

func TestDo_ZeroAttempts(t *testing.T) {
	err := Do(context.Background(), Config{}, func() error {
		t.Error("fn must not run with zero attempts")
		return nil
	})
	if err != nil {
		t.Errorf("Do = %v, want nil", err)
	}
}

func TestDo_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{MaxAttempts: 3, InitDelay: time.Second}, func() error {
		t.Error("fn must not run with cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do = %v, want context.Canceled", err)
	}
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitDelay: time.Second}
	fs := &fakeSleeper{err: context.Canceled}

	calls := 0
	err := doWithSleeper(context.Background(), cfg, func() error {
		calls++
		return errors.New("transient")
	}, fs)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 (cancelled in first backoff)", calls)
	}
}

func TestDo_ExponentialBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts: 4,
		InitDelay:   time.Second,
		MaxDelay:    time.Minute,
		Strategy:    Exponential,
	}
	fs := &fakeSleeper{}

	doWithSleeper(context.Background(), cfg, func() error {
		return errors.New("fail")
	}, fs)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(fs.delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(fs.delays), len(want))
	}
	for i, d := range want {
		if fs.delays[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, fs.delays[i], d)
		}
	}
}

func TestDo_MaxDelayCap(t *testing.T) {
	cfg := Config{
		MaxAttempts: 5,
		InitDelay:   time.Second,
		MaxDelay:    3 * time.Second,
		Strategy:    Exponential,
	}
	fs := &fakeSleeper{}

	doWithSleeper(context.Background(), cfg, func() error {
		return errors.New("fail")
	}, fs)

	for i, d := range fs.delays {
		if d > cfg.MaxDelay {
			t.Errorf("delay[%d] = %v exceeds cap %v", i, d, cfg.MaxDelay)
		}
	}
}

func TestCalcDelay_Constant(t *testing.T) {
	cfg := Config{InitDelay: 2 * time.Second, MaxDelay: time.Minute, Strategy: Constant}
	for attempt := 0; attempt < 5; attempt++ {
		if d := CalcDelay(cfg, attempt); d != 2*time.Second {
			t.Errorf("CalcDelay(attempt=%d) = %v, want 2s", attempt, d)
		}
	}
}

func TestCalcDelay_JitterBounds(t *testing.T) {
	cfg := Config{
		InitDelay: time.Second,
		MaxDelay:  time.Minute,
		Strategy:  Constant,
		Jitter:    true,
	}
	lo, hi := 750*time.Millisecond, 1250*time.Millisecond
	for i := 0; i < 200; i++ {
		d := CalcDelay(cfg, 0)
		if d < lo || d > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestProbeConfig(t *testing.T) {
	cfg := ProbeConfig()
	if cfg.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2 (one retry)", cfg.MaxAttempts)
	}
	if !cfg.Jitter {
		t.Error("probe retries must jitter")
	}
}
