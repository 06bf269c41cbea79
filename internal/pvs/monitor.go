package pvs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pvs_monitor/internal/logger"
	"pvs_monitor/internal/models"
)

// Options configures a Monitor.
type Options struct {
	Host           string
	SerialSuffix   string // overrides discovery when set
	RequestTimeout time.Duration
	SessionTTL     time.Duration
	Retry          RetryPolicy
	Logger         *logger.Logger
}

// CategoryFailure is a category that could not be fetched during a poll.
type CategoryFailure struct {
	Category string
	Err      error
}

// PollResult is one poll cycle's outcome. Failures lists categories that were skipped;
// Devices holds everything that was fetched and translated.
type PollResult struct {
	Protocol models.Protocol
	Devices  []models.DeviceRecord
	Failures []CategoryFailure
	Duration time.Duration
}

// Partial reports whether some categories failed while others produced data.
func (r PollResult) Partial() bool {
	return len(r.Failures) > 0
}

// Monitor is the single entry point for the host. It selects a protocol once, at
// Initialize, and keeps it for its lifetime. Initialize and Poll are serialised so polls
// never overlap against the device.
type Monitor struct {
	opts      Options
	log       *logger.Logger
	transport *Transport
	detector  *Detector
	legacy    *LegacyClient

	// mu serialises Initialize and Poll against the device.
	mu   sync.Mutex
	vars *VarStore

	// state is written only while mu is held; readers take state alone so they never
	// wait on a device round-trip.
	state       sync.RWMutex
	initialized bool
	capability  models.Capability
	session     *Session
}

// NewMonitor builds an uninitialised monitor.
func NewMonitor(opts Options) *Monitor {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	t := NewTransport(opts.Host, opts.RequestTimeout, log)
	return &Monitor{
		opts:      opts,
		log:       log,
		transport: t,
		detector:  NewDetector(t, opts.SerialSuffix, log),
		legacy:    NewLegacyClient(t, log),
	}
}

// Initialize detects the protocol and, for the local API, logs in eagerly. A second call
// returns the cached capability.
func (m *Monitor) Initialize(ctx context.Context) (models.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cpb, ok := m.Capability(); ok {
		return cpb, nil
	}

	cpb := m.detector.Detect(ctx)
	var session *Session
	switch cpb.Protocol {
	case models.ProtocolLocalAPI:
		session = NewSession(m.transport, cpb.SerialSuffix, m.opts.SessionTTL, m.log)
		if err := m.opts.Retry.Run(ctx, session.Login, m.retryLogger("login")); err != nil {
			m.log.Errorw("pvs_setup_failed", "protocol", cpb.Protocol, "error", err)
			return cpb, &SetupError{Host: m.opts.Host, Err: err}
		}
		m.vars = NewVarStore(m.transport, session, m.log)
	default:
		if cpb.Degraded {
			// Detection told us nothing; make sure the legacy endpoint is really there.
			probe := func(ctx context.Context) error {
				_, err := m.legacy.DeviceList(ctx)
				return err
			}
			if err := m.opts.Retry.Run(ctx, probe, m.retryLogger("probe")); err != nil {
				m.log.Errorw("pvs_setup_failed", "protocol", cpb.Protocol, "error", err)
				return cpb, &SetupError{Host: m.opts.Host, Err: err}
			}
		}
	}

	m.state.Lock()
	m.capability = cpb
	m.session = session
	m.initialized = true
	m.state.Unlock()

	m.log.Infow("pvs_initialized",
		"host", m.opts.Host,
		"protocol", cpb.Protocol,
		"build", cpb.FirmwareBuild,
		"degraded", cpb.Degraded,
	)
	return cpb, nil
}

// Capability returns the detected capability once Initialize has succeeded.
func (m *Monitor) Capability() (models.Capability, bool) {
	m.state.RLock()
	defer m.state.RUnlock()
	return m.capability, m.initialized
}

// SessionState reports the local-API session state; legacy monitors stay UNAUTHENTICATED.
func (m *Monitor) SessionState() SessionState {
	m.state.RLock()
	session := m.session
	m.state.RUnlock()
	if session == nil {
		return StateUnauthenticated
	}
	return session.State()
}

// Poll fetches the unified device set for the active protocol.
func (m *Monitor) Poll(ctx context.Context) (PollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpb, ok := m.Capability()
	if !ok {
		return PollResult{}, &PollError{Err: ErrNotInitialized}
	}

	start := time.Now()
	var (
		res PollResult
		err error
	)
	switch cpb.Protocol {
	case models.ProtocolLocalAPI:
		res, err = m.pollLocalAPI(ctx, cpb)
	default:
		res, err = m.pollLegacy(ctx)
	}
	res.Protocol = cpb.Protocol
	res.Duration = time.Since(start)
	if err != nil {
		m.log.Errorw("pvs_poll_failed", "protocol", res.Protocol, "error", err, "elapsed", res.Duration)
		return res, &PollError{Protocol: res.Protocol, Err: err}
	}

	if vm, ok := VirtualMeter(res.Devices); ok {
		res.Devices = append(res.Devices, vm)
	}

	for _, f := range res.Failures {
		m.log.Warnw("pvs_category_failed", "category", f.Category, "error", f.Err)
	}
	m.log.Infow("pvs_poll_complete",
		"protocol", res.Protocol,
		"devices", len(res.Devices),
		"failed_categories", len(res.Failures),
		"elapsed", res.Duration,
	)
	return res, nil
}

func (m *Monitor) pollLocalAPI(ctx context.Context, cpb models.Capability) (PollResult, error) {
	var res PollResult
	attempted := 0
	for i, cat := range Categories {
		if cat == CategoryLivedata && hasDeviceType(res.Devices, models.DeviceTypeESS) {
			continue
		}
		attempted++

		var values map[string]any
		query := func(ctx context.Context) error {
			v, err := m.vars.Query(ctx, string(cat))
			values = v
			return err
		}
		if err := m.opts.Retry.Run(ctx, query, m.retryLogger(string(cat))); err != nil {
			if IsAuthFailure(err) {
				return res, fmt.Errorf("category %s: %w", cat, err)
			}
			res.Failures = append(res.Failures, CategoryFailure{Category: string(cat), Err: err})
			if ctxErr := ctx.Err(); ctxErr != nil {
				// out of time: keep what was fetched, list the rest as failed
				for _, rest := range Categories[i+1:] {
					if rest == CategoryLivedata && hasDeviceType(res.Devices, models.DeviceTypeESS) {
						continue
					}
					attempted++
					res.Failures = append(res.Failures, CategoryFailure{Category: string(rest), Err: ctxErr})
				}
				break
			}
			continue
		}

		records := Translate(cat, values)
		if cat == CategoryInfo {
			for i := range records {
				m.fillPVSIdentity(&records[i], cpb.Serial)
			}
		}
		res.Devices = append(res.Devices, records...)
	}

	if len(res.Failures) == attempted {
		return res, allFailed(res.Failures)
	}
	return res, nil
}

func (m *Monitor) pollLegacy(ctx context.Context) (PollResult, error) {
	var res PollResult

	list := func(ctx context.Context) error {
		devices, err := m.legacy.DeviceList(ctx)
		res.Devices = devices
		return err
	}
	if err := m.opts.Retry.Run(ctx, list, m.retryLogger("device_list")); err != nil {
		return res, err
	}

	var storage []models.DeviceRecord
	status := func(ctx context.Context) error {
		recs, err := m.legacy.StorageStatus(ctx)
		storage = recs
		return err
	}
	if err := m.opts.Retry.Run(ctx, status, m.retryLogger("storage_status")); err != nil {
		res.Failures = append(res.Failures, CategoryFailure{Category: "storage_status", Err: err})
		return res, nil
	}
	res.Devices = mergeRecords(res.Devices, storage)
	return res, nil
}

// fillPVSIdentity falls back to the detected serial, then to the host, when sysinfo omits it.
func (m *Monitor) fillPVSIdentity(rec *models.DeviceRecord, detectedSerial string) {
	if rec.Serial == "" {
		rec.Serial = detectedSerial
	}
	if rec.Serial == "" {
		rec.Serial = "PVS-" + m.opts.Host
	}
	if rec.Description == "" {
		rec.Description = rec.Model + " " + rec.Serial
	}
}

func (m *Monitor) retryLogger(op string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		m.log.Warnw("pvs_retry", "operation", op, "attempt", attempt, "wait", wait, "error", err)
	}
}

func hasDeviceType(records []models.DeviceRecord, dt models.DeviceType) bool {
	for _, r := range records {
		if r.DeviceType == dt {
			return true
		}
	}
	return false
}

func allFailed(failures []CategoryFailure) error {
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Category, f.Err))
	}
	return fmt.Errorf("all %d categories failed: %w", len(failures), errors.Join(errs...))
}
