package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pvs_monitor/internal/logger"
	"pvs_monitor/internal/models"
	"pvs_monitor/internal/mqtt"
	"pvs_monitor/internal/poller"
	"pvs_monitor/internal/pvs"
	"pvs_monitor/internal/repository"

	"golang.org/x/sync/singleflight"
)

// Monitor is the gateway-facing core the poll service drives.
type Monitor interface {
	Initialize(ctx context.Context) (models.Capability, error)
	Poll(ctx context.Context) (pvs.PollResult, error)
	Capability() (models.Capability, bool)
}

// StatePublisher receives device state after every poll.
type StatePublisher interface {
	PublishDeviceState(s mqtt.DeviceState) error
	PublishAvailability(online bool) error
}

type nopPublisher struct{}

func (nopPublisher) PublishDeviceState(mqtt.DeviceState) error { return nil }
func (nopPublisher) PublishAvailability(bool) error            { return nil }

// cycleGrace lets a cycle's own deadline fire before the scheduler stops waiting for it.
const cycleGrace = 5 * time.Second

// storeTimeout bounds writes that record a cycle's outcome after its deadline may have passed.
const storeTimeout = 5 * time.Second

func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

type PollOptions struct {
	Interval           time.Duration
	SetupRetryInterval time.Duration
	// PollTimeout bounds one cycle against the gateway. Defaults to Interval.
	PollTimeout        time.Duration
	Naming             NamingOptions
	Logger             *logger.Logger
}

// PollService owns the poll loop and the in-memory view of the latest poll.
type PollService struct {
	monitor   Monitor
	snapshots repository.SnapshotRepo
	events    repository.EventRepo
	pub       StatePublisher
	naming    NamingOptions
	log       *logger.Logger
	poller    *poller.Poller
	timeout   time.Duration

	group singleflight.Group

	// cycles run under life, not under the caller's context
	lifeMu     sync.Mutex
	life       context.Context
	cancelLife context.CancelFunc

	mu          sync.RWMutex
	snap        models.Snapshot
	initialized bool
	subs        map[int]chan models.Snapshot
	nextSub     int
}

func NewPollService(m Monitor, repos *repository.Repository, pub StatePublisher, opts PollOptions) *PollService {
	if pub == nil {
		pub = nopPublisher{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = opts.Interval
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &PollService{
		timeout:   timeout,
		monitor:   m,
		snapshots: repos.Snapshots,
		events:    repos.Events,
		pub:       pub,
		naming:    opts.Naming,
		log:       log,
		snap:      models.Snapshot{Devices: []models.DeviceRecord{}},
		subs:      make(map[int]chan models.Snapshot),
	}
	s.life, s.cancelLife = context.WithCancel(context.Background())
	s.poller = poller.New(opts.Interval, func(ctx context.Context) error {
		_, err := s.PollOnce(ctx)
		return err
	}, poller.Options{
		Logger:      log.Named("poller"),
		PollTimeout: timeout + cycleGrace,
		RetryDelay: func(err error) time.Duration {
			var se *pvs.SetupError
			if errors.As(err, &se) {
				return opts.SetupRetryInterval
			}
			return 0
		},
	})
	return s
}

// Restore seeds the in-memory snapshot from the last persisted poll. The devices are
// reported unavailable until a live poll succeeds.
func (s *PollService) Restore(ctx context.Context) error {
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap.Devices == nil {
		snap.Devices = []models.DeviceRecord{}
	}
	snap.Available = false
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

// Start runs the scheduler until ctx ends or Stop is called.
func (s *PollService) Start(ctx context.Context) { s.poller.Start(ctx) }

// Stop aborts an in-flight cycle and ends the scheduler. A later Start or Trigger runs
// fresh cycles.
func (s *PollService) Stop() {
	s.lifeMu.Lock()
	s.cancelLife()
	s.life, s.cancelLife = context.WithCancel(context.Background())
	s.lifeMu.Unlock()
	s.poller.Stop()
}

func (s *PollService) cycleContext() (context.Context, context.CancelFunc) {
	s.lifeMu.Lock()
	life := s.life
	s.lifeMu.Unlock()
	return context.WithTimeout(life, s.timeout)
}

// Trigger runs a poll now and counts it in the scheduler status.
func (s *PollService) Trigger(ctx context.Context) (models.Snapshot, error) {
	err := s.poller.PollNow(ctx)
	return s.Snapshot(), err
}

func (s *PollService) Status() poller.Status { return s.poller.Status() }

// Snapshot returns a copy of the latest view.
func (s *PollService) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Devices = append([]models.DeviceRecord(nil), s.snap.Devices...)
	return out
}

func (s *PollService) Capability() (models.Capability, bool) {
	return s.monitor.Capability()
}

// Subscribe delivers every new snapshot. Slow readers only see the latest one.
func (s *PollService) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// PollOnce runs one cycle. Concurrent callers share a single cycle against the gateway.
// The cycle does not inherit ctx: a caller that gives up stops waiting, but the cycle
// still completes for everyone else.
func (s *PollService) PollOnce(ctx context.Context) (models.Snapshot, error) {
	ch := s.group.DoChan("poll", func() (any, error) {
		cycleCtx, cancel := s.cycleContext()
		defer cancel()
		return s.pollOnce(cycleCtx)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return s.Snapshot(), r.Err
		}
		return r.Val.(models.Snapshot), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

func (s *PollService) pollOnce(ctx context.Context) (models.Snapshot, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		s.markUnavailable()
		return models.Snapshot{}, err
	}

	res, err := s.monitor.Poll(ctx)
	if err != nil {
		s.record(ctx, models.EventPollFailed, "poll failed: "+err.Error(), nil)
		s.markUnavailable()
		return models.Snapshot{}, err
	}

	now := time.Now().UTC()
	saveCtx, cancel := storeContext(ctx)
	err = s.snapshots.Save(saveCtx, res.Devices, now)
	cancel()
	if err != nil {
		s.log.Errorw("snapshot_save_failed", "error", err)
	}

	snap := models.Snapshot{
		Devices:   append([]models.DeviceRecord{}, res.Devices...),
		Available: true,
		UpdatedAt: now,
	}
	s.store(snap)

	meta := map[string]any{
		"protocol":    res.Protocol,
		"devices":     len(res.Devices),
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.Partial() {
		failed := make([]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			failed = append(failed, f.Category)
		}
		meta["failed_categories"] = failed
		s.record(ctx, models.EventPollPartial, fmt.Sprintf("poll completed with %d failed categories", len(failed)), meta)
	} else {
		s.record(ctx, models.EventPollOK, fmt.Sprintf("poll completed with %d devices", len(res.Devices)), meta)
	}

	s.publish(snap)
	return snap, nil
}

func (s *PollService) ensureInitialized(ctx context.Context) error {
	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		return nil
	}

	capability, err := s.monitor.Initialize(ctx)
	if err != nil {
		s.log.Errorw("pvs_setup_failed", "error", err)
		s.record(ctx, models.EventSetupFailed, "setup failed: "+err.Error(), nil)
		return err
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.record(ctx, models.EventInitialized,
		fmt.Sprintf("gateway ready, protocol %s", capability.Protocol),
		map[string]any{"protocol": capability.Protocol, "firmware_build": capability.FirmwareBuild, "serial": capability.Serial})
	if capability.Degraded {
		s.record(ctx, models.EventDetectionDegraded, capability.DegradedReason, map[string]any{"protocol": capability.Protocol})
	}
	return nil
}

func (s *PollService) store(snap models.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	subs := make([]chan models.Snapshot, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// markUnavailable keeps the last known values but flags them stale.
func (s *PollService) markUnavailable() {
	snap := s.Snapshot()
	snap.Available = false
	s.store(snap)
	if err := s.pub.PublishAvailability(false); err != nil {
		s.log.Warnw("mqtt_publish_failed", "topic", "availability", "error", err)
	}
}

func (s *PollService) publish(snap models.Snapshot) {
	for _, d := range snap.Devices {
		err := s.pub.PublishDeviceState(mqtt.DeviceState{
			Serial:     d.Serial,
			DeviceType: d.DeviceType,
			Model:      d.Model,
			Name:       DisplayName(d, s.naming),
			State:      d.State,
			Metrics:    d.Metrics,
			UpdatedAt:  snap.UpdatedAt,
		})
		if err != nil {
			s.log.Warnw("mqtt_publish_failed", "serial", d.Serial, "error", err)
		}
	}
	if err := s.pub.PublishAvailability(true); err != nil {
		s.log.Warnw("mqtt_publish_failed", "topic", "availability", "error", err)
	}
}

func (s *PollService) record(ctx context.Context, typ, description string, meta any) {
	ctx, cancel := storeContext(ctx)
	defer cancel()
	err := s.events.Append(ctx, models.PollEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: description,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Warnw("event_append_failed", "type", typ, "error", err)
	}
}
