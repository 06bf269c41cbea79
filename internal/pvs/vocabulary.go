package pvs

import (
	"sort"

	"pvs_monitor/internal/models"
)

// keyTable maps a local-API field name to its legacy DeviceList key.
type keyTable map[string]string

// Identity fields of a local-API device group.
const (
	fieldSerial = "sn"
	fieldModel  = "prodMdlNm"
)

// Sysinfo and livedata variables are not indexed by device.
const (
	varInfoSerial = "/sys/info/serialnum"
	varInfoModel  = "/sys/info/model"
	varLiveSOC    = "/sys/livedata/soc"
	varLiveESSP   = "/sys/livedata/ess_p"
)

var pvsTable = keyTable{
	"/sys/info/sw_rev": "sw_ver",
}

var meterTable = keyTable{
	"netLtea3phsumKwh": "net_ltea_3phsum_kwh",
	"p3phsumKw":        "p_3phsum_kw",
	"q3phsumKvar":      "q_3phsum_kvar",
	"s3phsumKva":       "s_3phsum_kva",
	"totPfRto":         "tot_pf_rto",
	"v12V":             "v12_v",
	"v1nV":             "v1n_v",
	"v2nV":             "v2n_v",
	"freqHz":           "freq_hz",
	"i1A":              "i1_a",
	"i2A":              "i2_a",
	"p1Kw":             "p1_kw",
	"p2Kw":             "p2_kw",
	"negLtea3phsumKwh": "neg_ltea_3phsum_kwh",
	"posLtea3phsumKwh": "pos_ltea_3phsum_kwh",
}

var inverterTable = keyTable{
	"ltea3phsumKwh": "ltea_3phsum_kwh",
	"pMppt1Kw":      "p_mppt1_kw",
	"vln3phavgV":    "vln_3phavg_v",
	"iMppt1A":       "i_3phsum_a", // closest analogue the local API offers
	"vMppt1V":       "v_mppt1_v",
	"tHtsnkDegc":    "t_htsnk_degc",
	"freqHz":        "freq_hz",
	"pMpptsumKw":    "p_mpptsum_kw",
}

var hubPlusTable = keyTable{
	"contactorPos": "contactor_position",
	"vGridPh1V":    "grid_phase1_voltage",
	"vGridPh2V":    "grid_phase2_voltage",
	"rhHubPct":     "hub_humidity",
	"tHubDegc":     "hub_temperature",
	"vInvConnV":    "inverter_connection_voltage",
	"vLoadPh1V":    "load_phase1_voltage",
	"vLoadPh2V":    "load_phase2_voltage",
}

var bmsTable = keyTable{
	"iBattA":     "battery_amperage",
	"vBattV":     "battery_voltage",
	"socCustPct": "customer_state_of_charge",
	"socSysPct":  "system_state_of_charge",
	"tDegc":      "temperature",
}

var essTable = keyTable{
	"pAggKw":    "agg_power",
	"iMeterAA":  "meter_a_current",
	"pMeterAKw": "meter_a_power",
	"vMeterAV":  "meter_a_voltage",
	"iMeterBA":  "meter_b_current",
	"pMeterBKw": "meter_b_power",
	"vMeterBV":  "meter_b_voltage",
	"rhEnclPct": "enclosure_humidity",
	"tEnclDegc": "enclosure_temperature",
}

var livedataTable = keyTable{
	varLiveESSP: "agg_power",
}

// virtualMeterKeys are produced by the inverter aggregation, not by a device.
var virtualMeterKeys = []string{
	"net_ltea_3phsum_kwh",
	"p_3phsum_kw",
	"i_a",
	"freq_hz",
	"v12_v",
	"t_htsnk_degc",
}

var tablesByType = map[models.DeviceType]keyTable{
	models.DeviceTypePVS:        pvsTable,
	models.DeviceTypePowerMeter: meterTable,
	models.DeviceTypeInverter:   inverterTable,
	models.DeviceTypeHubPlus:    hubPlusTable,
	models.DeviceTypeBMS:        bmsTable,
	models.DeviceTypeESS:        essTable,
}

var vocabulary = buildVocabulary()

func buildVocabulary() map[models.DeviceType]map[string]struct{} {
	vocab := make(map[models.DeviceType]map[string]struct{}, len(tablesByType)+1)
	for dt, table := range tablesByType {
		keys := make(map[string]struct{}, len(table))
		for _, legacy := range table {
			keys[legacy] = struct{}{}
		}
		vocab[dt] = keys
	}
	vm := make(map[string]struct{}, len(virtualMeterKeys))
	for _, k := range virtualMeterKeys {
		vm[k] = struct{}{}
	}
	vocab[models.DeviceTypeVirtualMeter] = vm
	return vocab
}

// Vocabulary returns the sorted metric keys a device type may carry under either protocol.
func Vocabulary(dt models.DeviceType) []string {
	keys := make([]string, 0, len(vocabulary[dt]))
	for k := range vocabulary[dt] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InVocabulary reports whether key belongs to the metric vocabulary of dt.
func InVocabulary(dt models.DeviceType, key string) bool {
	_, ok := vocabulary[dt][key]
	return ok
}
