package pvs

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvs_monitor/internal/models"
)

// fullGroup builds a local-API variable set for one device carrying every known field.
func fullGroup(category Category, table keyTable, idx int) map[string]any {
	values := map[string]any{
		fmt.Sprintf("/sys/devices/%s/%d/%s", category, idx, fieldSerial): fmt.Sprintf("SN%d", idx),
		fmt.Sprintf("/sys/devices/%s/%d/%s", category, idx, fieldModel):  "MODEL",
	}
	for modern := range table {
		values[fmt.Sprintf("/sys/devices/%s/%d/%s", category, idx, modern)] = 1.0
	}
	return values
}

// fullLegacyDevice builds a DeviceList entry carrying every vocabulary key plus noise.
func fullLegacyDevice(label string, dt models.DeviceType) map[string]any {
	dev := map[string]any{
		"DEVICE_TYPE": label,
		"SERIAL":      "LEG1",
		"MODEL":       "M",
		"TYPE":        "T",
		"STATE":       "working",
		"CURTIME":     "2026,01,01,12,00,00",
		"origin":      "data_logger",
	}
	for _, k := range Vocabulary(dt) {
		dev[k] = "1"
	}
	return dev
}

func metricKeys(rec models.DeviceRecord) []string {
	keys := make([]string, 0, len(rec.Metrics))
	for k := range rec.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestTranslate_VocabularyMatchesLegacy(t *testing.T) {
	cases := []struct {
		category Category
		label    string
		dt       models.DeviceType
		table    keyTable
	}{
		{CategoryMeter, "Power Meter", models.DeviceTypePowerMeter, meterTable},
		{CategoryInverter, "Inverter", models.DeviceTypeInverter, inverterTable},
		{CategoryHubPlus, "HubPlus", models.DeviceTypeHubPlus, hubPlusTable},
		{CategoryBMS, "Battery", models.DeviceTypeBMS, bmsTable},
		{CategoryESS, "ESS", models.DeviceTypeESS, essTable},
	}

	for _, tc := range cases {
		t.Run(string(tc.category), func(t *testing.T) {
			modern := Translate(tc.category, fullGroup(tc.category, tc.table, 0))
			require.Len(t, modern, 1)
			assert.Equal(t, tc.dt, modern[0].DeviceType)

			legacy := projectLegacy(tc.dt, fullLegacyDevice(tc.label, tc.dt))

			assert.Equal(t, Vocabulary(tc.dt), metricKeys(modern[0]))
			assert.Equal(t, metricKeys(legacy), metricKeys(modern[0]))
		})
	}
}

func TestTranslate_PVSVocabularyMatchesLegacy(t *testing.T) {
	modern := Translate(CategoryInfo, map[string]any{
		varInfoSerial:      "ZT1",
		varInfoModel:       "PVS6",
		"/sys/info/sw_rev": "2025.06",
		"/sys/info/uptime": 100,
	})
	require.Len(t, modern, 1)

	legacy := projectLegacy(models.DeviceTypePVS, map[string]any{
		"DEVICE_TYPE": "PVS",
		"SERIAL":      "ZT1",
		"SWVER":       "2025.06",
		"dl_uptime":   "100",
	})

	assert.Equal(t, metricKeys(legacy), metricKeys(modern[0]))
	assert.Equal(t, "2025.06", modern[0].Metrics["sw_ver"])
	assert.Equal(t, "ZT1", modern[0].Serial)
	assert.Equal(t, "PVS6 ZT1", modern[0].Description)
}

func TestTranslate_Meters(t *testing.T) {
	records := Translate(CategoryMeter, twoMeterVars())

	require.Len(t, records, 2)
	p, c := records[0], records[1]
	assert.Equal(t, "PVS6M0400p", p.Serial)
	assert.Equal(t, models.DeviceTypePowerMeter, p.DeviceType)
	assert.Equal(t, "PVS-METER", p.Type)
	assert.Equal(t, "Power Meter PVS6M0400p", p.Description)
	assert.Equal(t, map[string]any{
		"net_ltea_3phsum_kwh": 1234.5,
		"p_3phsum_kw":         3.2,
		"freq_hz":             60.0,
	}, p.Metrics, "ctSclFctr has no legacy name and is dropped")

	assert.Equal(t, "PVS6M0400c", c.Serial)
	assert.Equal(t, 4.5, c.Metrics["i1_a"])
	_, hasFreq := c.Metrics["freq_hz"]
	assert.False(t, hasFreq, "missing fields are omitted")
}

func TestTranslate_InverterCurrentAnalogue(t *testing.T) {
	records := Translate(CategoryInverter, map[string]any{
		"/sys/devices/inverter/0/sn":      "E1",
		"/sys/devices/inverter/0/iMppt1A": 1.25,
	})
	require.Len(t, records, 1)
	assert.Equal(t, 1.25, records[0].Metrics["i_3phsum_a"])
}

func TestTranslate_MissingSerialUsesIndex(t *testing.T) {
	records := Translate(CategoryBMS, map[string]any{"/sys/devices/bms/1/vBattV": 51.2})
	require.Len(t, records, 1)
	assert.Equal(t, "BMS-1", records[0].Serial)
	assert.Equal(t, "Unknown", records[0].Model)
}

func TestTranslate_EmptyCategories(t *testing.T) {
	assert.Empty(t, Translate(CategoryInfo, nil))
	assert.Empty(t, Translate(CategoryHubPlus, map[string]any{}))
	assert.Empty(t, Translate(CategoryESS, twoMeterVars()))
	assert.Empty(t, Translate(CategoryLivedata, map[string]any{"/sys/livedata/pv_p": 2.0}))
	assert.Empty(t, Translate(Category("unknown"), twoMeterVars()))
}

func TestTranslate_LivedataAggregate(t *testing.T) {
	records := Translate(CategoryLivedata, map[string]any{
		varLiveESSP: -1.5,
		varLiveSOC:  0.82,
	})
	require.Len(t, records, 1)
	assert.Equal(t, AggregateESSSerial, records[0].Serial)
	assert.Equal(t, models.DeviceTypeESS, records[0].DeviceType)
	assert.Equal(t, map[string]any{"agg_power": -1.5}, records[0].Metrics)

	socOnly := Translate(CategoryLivedata, map[string]any{varLiveSOC: 0.5})
	require.Len(t, socOnly, 1)
	assert.Equal(t, 0.0, socOnly[0].Metrics["agg_power"])
}

func TestVocabulary_TablesAreInjective(t *testing.T) {
	for dt, table := range tablesByType {
		seen := map[string]string{}
		for modern, legacy := range table {
			if prev, dup := seen[legacy]; dup {
				t.Errorf("%s: %s and %s both map to %s", dt, prev, modern, legacy)
			}
			seen[legacy] = modern
		}
	}
}

func TestVocabulary_Livedata(t *testing.T) {
	for _, legacy := range livedataTable {
		assert.True(t, InVocabulary(models.DeviceTypeESS, legacy), legacy)
	}
}
