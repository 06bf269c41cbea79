package models

// Protocol is the device API generation selected for a monitor's lifetime.
type Protocol string

const (
	ProtocolLegacy   Protocol = "LEGACY"
	ProtocolLocalAPI Protocol = "LOCAL_API"
)

// Capability is resolved once per monitor from the supervisor info endpoint.
type Capability struct {
	FirmwareBuild   int      `json:"firmware_build"`
	Protocol        Protocol `json:"protocol"`
	SerialSuffix    string   `json:"-"` // login secret, never exposed
	Serial          string   `json:"serial,omitempty"`
	SoftwareVersion string   `json:"software_version,omitempty"`
	Degraded        bool     `json:"degraded"`
	DegradedReason  string   `json:"degraded_reason,omitempty"`
}
