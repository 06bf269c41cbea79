package models

import (
	"strconv"
	"strings"
	"time"
)

// DeviceType is the normalized device category exposed to the host.
type DeviceType string

const (
	DeviceTypePVS          DeviceType = "PVS"
	DeviceTypePowerMeter   DeviceType = "POWER_METER"
	DeviceTypeInverter     DeviceType = "INVERTER"
	DeviceTypeHubPlus      DeviceType = "HUB_PLUS"
	DeviceTypeBMS          DeviceType = "BMS"
	DeviceTypeESS          DeviceType = "ESS"
	DeviceTypeVirtualMeter DeviceType = "VIRTUAL_METER"
)

// StateWorking is the STATE value a healthy device reports.
const StateWorking = "working"

// DeviceRecord is one device as exposed to the host, independent of the protocol it came from.
type DeviceRecord struct {
	Serial      string         `json:"serial"`
	DeviceType  DeviceType     `json:"device_type"`
	Model       string         `json:"model"`
	Type        string         `json:"type,omitempty"`  // legacy TYPE label, e.g. PVS-METER-P
	Description string         `json:"descr,omitempty"` // legacy DESCR
	State       string         `json:"state,omitempty"` // legacy STATE, "working" when healthy
	Metrics     map[string]any `json:"metrics"`
}

// Faulted reports whether the device reported a non-working state.
func (d DeviceRecord) Faulted() bool {
	return d.State != "" && !strings.EqualFold(d.State, StateWorking)
}

// Float returns a metric as float64. Devices report numbers either as JSON numbers or as
// numeric strings; both are accepted.
func (d DeviceRecord) Float(key string) (float64, bool) {
	v, ok := d.Metrics[key]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// ToFloat converts a scalar device value into a float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Snapshot is the latest poll outcome as seen by the host side.
type Snapshot struct {
	Devices   []DeviceRecord `json:"devices"`
	Available bool           `json:"available"`
	UpdatedAt time.Time      `json:"updated_at"`
}
