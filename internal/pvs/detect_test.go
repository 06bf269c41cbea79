package pvs

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvs_monitor/internal/models"
)

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name         string
		build        any
		infoStatus   int
		configured   string
		wantProtocol models.Protocol
		wantBuild    int
		wantSuffix   string
		wantDegraded bool
	}{
		{"at threshold", MinLocalAPIBuild, 0, "", models.ProtocolLocalAPI, MinLocalAPIBuild, "A1B2C", false},
		{"above threshold", 61845, 0, "", models.ProtocolLocalAPI, 61845, "A1B2C", false},
		{"below threshold", 61000, 0, "", models.ProtocolLegacy, 61000, "A1B2C", false},
		{"build as string", "61900", 0, "", models.ProtocolLocalAPI, 61900, "A1B2C", false},
		{"configured suffix wins", 61845, 0, "ZZZZZ", models.ProtocolLocalAPI, 61845, "ZZZZZ", false},
		{"missing build", nil, 0, "", models.ProtocolLegacy, 0, "A1B2C", true},
		{"info endpoint error", 61845, http.StatusInternalServerError, "", models.ProtocolLegacy, 0, DefaultSerialSuffix, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakePVS(t)
			f.set(func(f *fakePVS) {
				f.build = tt.build
				f.infoStatus = tt.infoStatus
			})

			d := NewDetector(NewTransport(srv.URL, time.Second, nil), tt.configured, nil)
			cpb := d.Detect(context.Background())

			assert.Equal(t, tt.wantProtocol, cpb.Protocol)
			assert.Equal(t, tt.wantBuild, cpb.FirmwareBuild)
			assert.Equal(t, tt.wantSuffix, cpb.SerialSuffix)
			assert.Equal(t, tt.wantDegraded, cpb.Degraded)
			if tt.wantDegraded {
				assert.NotEmpty(t, cpb.DegradedReason)
			}
		})
	}
}

func TestDetector_UnreachableFallsBack(t *testing.T) {
	_, srv := newFakePVS(t)
	url := srv.URL
	srv.Close()

	d := NewDetector(NewTransport(url, 200*time.Millisecond, nil), "", nil)
	cpb := d.Detect(context.Background())

	assert.Equal(t, models.ProtocolLegacy, cpb.Protocol)
	assert.Equal(t, DefaultSerialSuffix, cpb.SerialSuffix)
	assert.True(t, cpb.Degraded)
	assert.Contains(t, cpb.DegradedReason, ErrDetectionDegraded.Error())
}

func TestDetector_ReadsIdentity(t *testing.T) {
	_, srv := newFakePVS(t)
	d := NewDetector(NewTransport(srv.URL, time.Second, nil), "", nil)

	cpb := d.Detect(context.Background())
	require.False(t, cpb.Degraded)
	assert.Equal(t, "ZT01234567890A1B2C", cpb.Serial)
	assert.Equal(t, "2025.06, Build 61845", cpb.SoftwareVersion)
}

func TestSerialSuffix(t *testing.T) {
	assert.Equal(t, "A1B2C", SerialSuffix("ZT01234567890A1B2C"))
	assert.Equal(t, "12345", SerialSuffix("12345"))
	assert.Equal(t, "", SerialSuffix("1234"))
	assert.Equal(t, "", SerialSuffix(""))
}

func TestProtocolForBuild(t *testing.T) {
	assert.Equal(t, models.ProtocolLegacy, ProtocolForBuild(MinLocalAPIBuild-1))
	assert.Equal(t, models.ProtocolLocalAPI, ProtocolForBuild(MinLocalAPIBuild))
	assert.Equal(t, models.ProtocolLegacy, ProtocolForBuild(0))
}
