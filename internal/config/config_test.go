package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "9090"
pvs:
  host: 172.27.153.1
  poll_interval: 90s
auth:
  signing_key: secret
mqtt:
  enabled: true
  broker: tcp://broker:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.PVS.Host != "172.27.153.1" {
		t.Errorf("host = %q", cfg.PVS.Host)
	}
	if cfg.PVS.PollInterval != 90*time.Second {
		t.Errorf("poll interval = %s", cfg.PVS.PollInterval)
	}
	if cfg.PVS.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout default = %s", cfg.PVS.RequestTimeout)
	}
	if cfg.PVS.PollTimeout != 0 {
		t.Errorf("poll timeout default = %s", cfg.PVS.PollTimeout)
	}
	if cfg.PVS.RetryAttempts != 3 {
		t.Errorf("retry attempts default = %d", cfg.PVS.RetryAttempts)
	}
	if !cfg.Naming.Descriptive || cfg.Naming.ProductNames {
		t.Errorf("naming defaults = %+v", cfg.Naming)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != "pvs" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics path = %q", cfg.Metrics.Path)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
pvs:
  host: 172.27.153.1
auth:
  signing_key: secret
`)
	t.Setenv("PVS_PVS_HOST", "pvs6.local")
	t.Setenv("PVS_PVS_SERIAL_SUFFIX", "A1B2C")
	t.Setenv("PVS_PORT", "8181")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PVS.Host != "pvs6.local" {
		t.Errorf("host = %q, want env override", cfg.PVS.Host)
	}
	if cfg.PVS.SerialSuffix != "A1B2C" {
		t.Errorf("suffix = %q", cfg.PVS.SerialSuffix)
	}
	if cfg.Port != "8181" {
		t.Errorf("port = %q", cfg.Port)
	}
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("PVS_PVS_HOST", "10.0.0.5")
	t.Setenv("PVS_AUTH_SIGNING_KEY", "k")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PVS.Host != "10.0.0.5" {
		t.Errorf("host = %q", cfg.PVS.Host)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing host",
			body:    "auth:\n  signing_key: k\n",
			wantErr: "pvs.host",
		},
		{
			name:    "bad host",
			body:    "pvs:\n  host: -bad-.local\nauth:\n  signing_key: k\n",
			wantErr: "pvs.host",
		},
		{
			name:    "interval below minimum",
			body:    "pvs:\n  host: 10.0.0.5\n  poll_interval: 30s\nauth:\n  signing_key: k\n",
			wantErr: "pvs.poll_interval",
		},
		{
			name:    "poll timeout below request timeout",
			body:    "pvs:\n  host: 10.0.0.5\n  poll_timeout: 5s\nauth:\n  signing_key: k\n",
			wantErr: "pvs.poll_timeout",
		},
		{
			name:    "zero retries",
			body:    "pvs:\n  host: 10.0.0.5\n  retry_attempts: 0\nauth:\n  signing_key: k\n",
			wantErr: "pvs.retry_attempts",
		},
		{
			name:    "short suffix",
			body:    "pvs:\n  host: 10.0.0.5\n  serial_suffix: AB\nauth:\n  signing_key: k\n",
			wantErr: "pvs.serial_suffix",
		},
		{
			name:    "missing signing key",
			body:    "pvs:\n  host: 10.0.0.5\n",
			wantErr: "auth.signing_key",
		},
		{
			name:    "bad qos",
			body:    "pvs:\n  host: 10.0.0.5\nauth:\n  signing_key: k\nmqtt:\n  qos: 3\n",
			wantErr: "mqtt.qos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"172.27.153.1", true},
		{"pvs6.local", true},
		{"pvs", true},
		{"192.168.1.10:8080", true},
		{"", false},
		{"   ", false},
		{"bad host", false},
		{"-pvs.local", false},
		{"pvs-.local", false},
		{"pvs..local", false},
		{"http://pvs.local", false},
		{strings.Repeat("a", 64) + ".local", false},
	}
	for _, tt := range tests {
		if got := ValidHost(tt.host); got != tt.want {
			t.Errorf("ValidHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}
