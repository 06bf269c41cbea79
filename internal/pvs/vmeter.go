package pvs

import "pvs_monitor/internal/models"

const (
	virtualMeterSuffix = "pv"
	virtualMeterType   = "PVS-METER-P"
	virtualMeterModel  = "Virtual"
)

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }

func (m mean) value() (float64, bool) {
	if m.n == 0 {
		return 0, false
	}
	return m.sum / float64(m.n), true
}

// VirtualMeter aggregates inverter records into a production meter. Energy, power and
// current are summed; frequency, voltage and heatsink temperature are averaged over the
// inverters that report them. The first faulted inverter's state becomes the meter state.
// It needs a PVS record for its serial and at least one inverter.
func VirtualMeter(records []models.DeviceRecord) (models.DeviceRecord, bool) {
	var pvs *models.DeviceRecord
	for i := range records {
		if records[i].DeviceType == models.DeviceTypePVS && records[i].Serial != "" {
			pvs = &records[i]
			break
		}
	}
	if pvs == nil {
		return models.DeviceRecord{}, false
	}

	var (
		kwh, kw, amps    float64
		freq, volts, tmp mean
		inverters        int
		state            = models.StateWorking
	)
	for _, rec := range records {
		if rec.DeviceType != models.DeviceTypeInverter {
			continue
		}
		inverters++
		if rec.Faulted() && state == models.StateWorking {
			state = rec.State
		}
		if v, ok := rec.Float("ltea_3phsum_kwh"); ok {
			kwh += v
		}
		if v, ok := rec.Float("p_mppt1_kw"); ok {
			kw += v
		}
		if v, ok := rec.Float("i_3phsum_a"); ok {
			amps += v
		}
		if v, ok := rec.Float("freq_hz"); ok {
			freq.add(v)
		}
		if v, ok := rec.Float("vln_3phavg_v"); ok {
			volts.add(v)
		}
		if v, ok := rec.Float("t_htsnk_degc"); ok {
			tmp.add(v)
		}
	}
	if inverters == 0 {
		return models.DeviceRecord{}, false
	}

	metrics := map[string]any{
		"net_ltea_3phsum_kwh": kwh,
		"p_3phsum_kw":         kw,
		"i_a":                 amps,
	}
	if v, ok := freq.value(); ok {
		metrics["freq_hz"] = v
	}
	if v, ok := volts.value(); ok {
		metrics["v12_v"] = v
	}
	if v, ok := tmp.value(); ok {
		metrics["t_htsnk_degc"] = v
	}

	serial := pvs.Serial + virtualMeterSuffix
	return models.DeviceRecord{
		Serial:      serial,
		DeviceType:  models.DeviceTypeVirtualMeter,
		Model:       virtualMeterModel,
		Type:        virtualMeterType,
		Description: "Power Meter " + serial,
		State:       state,
		Metrics:     metrics,
	}, true
}
