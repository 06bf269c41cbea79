package pvs

import (
	"context"
	"fmt"
	"strings"

	"pvs_monitor/internal/logger"
	"pvs_monitor/internal/models"
)

const (
	// MinLocalAPIBuild is the first firmware build that serves /auth and /vars.
	MinLocalAPIBuild = 61840

	// DefaultSerialSuffix is used when the suffix is neither configured nor discoverable.
	DefaultSerialSuffix = "A1651"

	serialSuffixLen = 5

	pathSupervisorInfo = "/cgi-bin/dl_cgi/supervisor/info"
)

type supervisorInfoResponse struct {
	Supervisor map[string]any `json:"supervisor"`
}

// Detector resolves the protocol generation and login suffix of a PVS.
type Detector struct {
	transport *Transport
	suffix    string
	log       *logger.Logger
}

// NewDetector creates a detector. configuredSuffix overrides discovery when non-empty.
func NewDetector(t *Transport, configuredSuffix string, log *logger.Logger) *Detector {
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{transport: t, suffix: strings.TrimSpace(configuredSuffix), log: log}
}

// Detect never fails: an unreachable or malformed info endpoint yields a degraded
// LEGACY capability with the fallback suffix.
func (d *Detector) Detect(ctx context.Context) models.Capability {
	cpb := models.Capability{Protocol: models.ProtocolLegacy}

	info, err := d.fetchSupervisor(ctx)
	if err != nil {
		cpb.Degraded = true
		cpb.DegradedReason = err.Error()
		cpb.SerialSuffix = d.resolveSuffix("")
		d.log.Warnw("pvs_detection_degraded", "error", err, "protocol", cpb.Protocol)
		return cpb
	}

	cpb.Serial = stringField(info, "SERIAL")
	cpb.SoftwareVersion = stringField(info, "SWVER")
	cpb.SerialSuffix = d.resolveSuffix(SerialSuffix(cpb.Serial))

	build, ok := models.ToFloat(info["BUILD"])
	if !ok {
		cpb.Degraded = true
		cpb.DegradedReason = fmt.Errorf("%w: supervisor info has no usable BUILD", ErrDetectionDegraded).Error()
		d.log.Warnw("pvs_detection_degraded", "reason", cpb.DegradedReason, "serial", cpb.Serial)
		return cpb
	}
	cpb.FirmwareBuild = int(build)
	cpb.Protocol = ProtocolForBuild(cpb.FirmwareBuild)

	d.log.Infow("pvs_detected",
		"build", cpb.FirmwareBuild,
		"protocol", cpb.Protocol,
		"serial", cpb.Serial,
		"sw_version", cpb.SoftwareVersion,
	)
	return cpb
}

func (d *Detector) fetchSupervisor(ctx context.Context) (map[string]any, error) {
	var resp supervisorInfoResponse
	if err := d.transport.GetJSON(ctx, pathSupervisorInfo, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectionDegraded, err)
	}
	if resp.Supervisor == nil {
		return nil, fmt.Errorf("%w: %w: missing supervisor object", ErrDetectionDegraded, ErrMalformedResponse)
	}
	return resp.Supervisor, nil
}

func (d *Detector) resolveSuffix(discovered string) string {
	switch {
	case d.suffix != "":
		return d.suffix
	case discovered != "":
		return discovered
	default:
		return DefaultSerialSuffix
	}
}

// ProtocolForBuild applies the firmware threshold.
func ProtocolForBuild(build int) models.Protocol {
	if build >= MinLocalAPIBuild {
		return models.ProtocolLocalAPI
	}
	return models.ProtocolLegacy
}

// SerialSuffix returns the last five characters of serial, or "" for shorter serials.
func SerialSuffix(serial string) string {
	serial = strings.TrimSpace(serial)
	if len(serial) < serialSuffixLen {
		return ""
	}
	return serial[len(serial)-serialSuffixLen:]
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
