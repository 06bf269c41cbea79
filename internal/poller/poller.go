// Package poller runs a poll function on a fixed schedule and keeps its status.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pvs_monitor/internal/logger"
)

// PollFunc returns nil on success.
type PollFunc func(ctx context.Context) error

// Status is the scheduler view exposed over the API.
type Status struct {
	IsRunning           bool          `json:"is_running"`
	Interval            time.Duration `json:"interval_ns"`
	LastPollTime        time.Time     `json:"last_poll_time,omitempty"`
	LastSuccessTime     time.Time     `json:"last_success_time,omitempty"`
	LastErrorTime       time.Time     `json:"last_error_time,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalPolls          int64         `json:"total_polls"`
	TotalFailures       int64         `json:"total_failures"`
}

type Options struct {
	Logger *logger.Logger

	// InitialDelay before the first poll.
	InitialDelay time.Duration

	// RetryDelay picks the wait after a failed poll. Nil or a non-positive result falls
	// back to the regular interval.
	RetryDelay func(err error) time.Duration

	// MaxConsecutiveFailures before OnUnhealthy fires (0 = never).
	MaxConsecutiveFailures int
	OnUnhealthy            func(failures int)

	// PollTimeout bounds a single poll. Defaults to the interval.
	PollTimeout time.Duration
}

type Poller struct {
	interval time.Duration
	pollFn   PollFunc
	opts     Options
	log      *logger.Logger

	mu                  sync.RWMutex
	running             atomic.Bool
	lastPollTime        time.Time
	lastSuccessTime     time.Time
	lastErrorTime       time.Time
	lastError           error
	consecutiveFailures int
	totalPolls          int64
	totalFailures       int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(interval time.Duration, pollFn PollFunc, opts Options) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{
		interval: interval,
		pollFn:   pollFn,
		opts:     opts,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the loop; a second call while running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop ends the loop and waits for an in-flight poll to return.
func (p *Poller) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) IsRunning() bool { return p.running.Load() }

func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Status{
		IsRunning:           p.running.Load(),
		Interval:            p.interval,
		LastPollTime:        p.lastPollTime,
		LastSuccessTime:     p.lastSuccessTime,
		LastErrorTime:       p.lastErrorTime,
		ConsecutiveFailures: p.consecutiveFailures,
		TotalPolls:          p.totalPolls,
		TotalFailures:       p.totalFailures,
	}
	if p.lastError != nil {
		s.LastError = p.lastError.Error()
	}
	return s
}

// PollNow runs one poll synchronously and records it like a scheduled one.
func (p *Poller) PollNow(ctx context.Context) error {
	return p.doPoll(ctx)
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	timer := time.NewTimer(p.opts.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			err := p.doPoll(ctx)
			timer.Reset(p.nextDelay(err))
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) nextDelay(err error) time.Duration {
	if err != nil && p.opts.RetryDelay != nil {
		if d := p.opts.RetryDelay(err); d > 0 {
			return d
		}
	}
	return p.interval
}

func (p *Poller) doPoll(parent context.Context) error {
	timeout := p.opts.PollTimeout
	if timeout <= 0 {
		timeout = p.interval
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	p.mu.Lock()
	p.lastPollTime = time.Now()
	p.totalPolls++
	p.mu.Unlock()

	err := p.pollFn(ctx)

	if err != nil && parent.Err() != nil {
		// the caller went away; the gateway did not fail
		p.log.Debugw("poll_abandoned", "error", err)
		return err
	}

	p.mu.Lock()
	if err == nil {
		p.lastError = nil
		p.lastSuccessTime = time.Now()
		p.consecutiveFailures = 0
		p.mu.Unlock()
		return nil
	}
	p.lastError = err
	p.lastErrorTime = time.Now()
	p.consecutiveFailures++
	p.totalFailures++
	failures := p.consecutiveFailures
	p.mu.Unlock()

	p.log.Warnw("poll_failed", "error", err, "consecutive_failures", failures)

	if p.opts.MaxConsecutiveFailures > 0 && failures == p.opts.MaxConsecutiveFailures && p.opts.OnUnhealthy != nil {
		p.opts.OnUnhealthy(failures)
	}
	return err
}
