package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoller_RunsImmediatelyAndOnInterval(t *testing.T) {
	var calls atomic.Int32
	p := New(20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, Options{})

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool { return calls.Load() >= 3 })

	st := p.Status()
	if !st.IsRunning {
		t.Errorf("expected running")
	}
	if st.ConsecutiveFailures != 0 || st.LastError != "" {
		t.Errorf("unexpected failure state: %+v", st)
	}
	if st.LastSuccessTime.IsZero() {
		t.Errorf("last success not recorded")
	}
}

func TestPoller_FailureCountingAndRecovery(t *testing.T) {
	fail := errors.New("gateway unreachable")
	var mu sync.Mutex
	next := fail

	p := New(time.Hour, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return next
	}, Options{})

	for i := 0; i < 2; i++ {
		if err := p.PollNow(context.Background()); !errors.Is(err, fail) {
			t.Fatalf("poll %d: err = %v", i, err)
		}
	}
	st := p.Status()
	if st.ConsecutiveFailures != 2 || st.TotalFailures != 2 || st.LastError != fail.Error() {
		t.Fatalf("status after failures: %+v", st)
	}

	mu.Lock()
	next = nil
	mu.Unlock()
	if err := p.PollNow(context.Background()); err != nil {
		t.Fatalf("PollNow: %v", err)
	}
	st = p.Status()
	if st.ConsecutiveFailures != 0 || st.TotalPolls != 3 || st.TotalFailures != 2 || st.LastError != "" {
		t.Fatalf("status after recovery: %+v", st)
	}
}

func TestPoller_RetryDelayAfterFailure(t *testing.T) {
	var calls atomic.Int32
	p := New(time.Hour, func(context.Context) error {
		calls.Add(1)
		return errors.New("setup failed")
	}, Options{
		RetryDelay: func(error) time.Duration { return 10 * time.Millisecond },
	})

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool { return calls.Load() >= 3 })
}

func TestPoller_OnUnhealthyFiresOnce(t *testing.T) {
	var fired atomic.Int32
	p := New(time.Hour, func(context.Context) error { return errors.New("x") }, Options{
		MaxConsecutiveFailures: 2,
		OnUnhealthy:            func(int) { fired.Add(1) },
	})
	for i := 0; i < 4; i++ {
		_ = p.PollNow(context.Background())
	}
	if fired.Load() != 1 {
		t.Fatalf("OnUnhealthy fired %d times", fired.Load())
	}
}

func TestPoller_StopAndContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(time.Hour, func(context.Context) error { return nil }, Options{InitialDelay: time.Hour})
	p.Start(ctx)
	p.Start(ctx)
	cancel()
	p.Stop()
	if p.IsRunning() {
		t.Fatal("still running after Stop")
	}
	p.Stop()
}

func TestPoller_PollTimeoutBoundsContext(t *testing.T) {
	p := New(time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{PollTimeout: 10 * time.Millisecond})

	err := p.PollNow(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestPoller_AbandonedPollNotCountedAsFailure(t *testing.T) {
	p := New(time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := p.PollNow(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}

	st := p.Status()
	if st.ConsecutiveFailures != 0 || st.TotalFailures != 0 || st.LastError != "" {
		t.Fatalf("abandoned poll recorded as failure: %+v", st)
	}
}
