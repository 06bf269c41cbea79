package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"pvs_monitor/internal/models"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrUnknownDeviceType = errors.New("unknown device type")
	ErrNotInitialized    = errors.New("gateway not initialized")
)

// SnapshotSource is what the read side needs from the poll service.
type SnapshotSource interface {
	Snapshot() models.Snapshot
	Capability() (models.Capability, bool)
}

// DeviceView is a device as returned by the API.
type DeviceView struct {
	models.DeviceRecord
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MonitoringService struct {
	src    SnapshotSource
	naming NamingOptions
}

func NewMonitoringService(src SnapshotSource, naming NamingOptions) *MonitoringService {
	return &MonitoringService{src: src, naming: naming}
}

var knownDeviceTypes = map[models.DeviceType]bool{
	models.DeviceTypePVS:          true,
	models.DeviceTypePowerMeter:   true,
	models.DeviceTypeInverter:     true,
	models.DeviceTypeHubPlus:      true,
	models.DeviceTypeBMS:          true,
	models.DeviceTypeESS:          true,
	models.DeviceTypeVirtualMeter: true,
}

// Devices lists the latest devices, optionally restricted to one device type.
func (s *MonitoringService) Devices(_ context.Context, deviceType string) ([]DeviceView, error) {
	filter := models.DeviceType(strings.ToUpper(strings.TrimSpace(deviceType)))
	if filter != "" && !knownDeviceTypes[filter] {
		return nil, ErrUnknownDeviceType
	}

	snap := s.src.Snapshot()
	out := make([]DeviceView, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		if filter != "" && d.DeviceType != filter {
			continue
		}
		out = append(out, s.view(d, snap))
	}
	return out, nil
}

func (s *MonitoringService) Device(_ context.Context, serial string) (DeviceView, error) {
	snap := s.src.Snapshot()
	for _, d := range snap.Devices {
		if d.Serial == serial {
			return s.view(d, snap), nil
		}
	}
	return DeviceView{}, ErrDeviceNotFound
}

func (s *MonitoringService) Capability() (models.Capability, error) {
	c, ok := s.src.Capability()
	if !ok {
		return models.Capability{}, ErrNotInitialized
	}
	return c, nil
}

func (s *MonitoringService) Snapshot() models.Snapshot {
	return s.src.Snapshot()
}

func (s *MonitoringService) view(d models.DeviceRecord, snap models.Snapshot) DeviceView {
	return DeviceView{
		DeviceRecord: d,
		Name:         DisplayName(d, s.naming),
		Available:    snap.Available,
		UpdatedAt:    toUTC(snap.UpdatedAt),
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
