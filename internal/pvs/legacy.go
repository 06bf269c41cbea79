package pvs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pvs_monitor/internal/logger"
	"pvs_monitor/internal/models"
)

const (
	pathDeviceList = "/cgi-bin/dl_cgi?Command=DeviceList"
	pathESSStatus  = "/cgi-bin/dl_cgi/energy-storage-system/status"
)

// legacyAliases renames legacy fields whose DeviceList spelling differs from the vocabulary.
var legacyAliases = map[models.DeviceType]map[string]string{
	models.DeviceTypePVS: {"SWVER": "sw_ver"},
}

// legacyDeviceTypes maps DeviceList DEVICE_TYPE labels (lowercased).
var legacyDeviceTypes = map[string]models.DeviceType{
	"pvs":                   models.DeviceTypePVS,
	"power meter":           models.DeviceTypePowerMeter,
	"inverter":              models.DeviceTypeInverter,
	"hubplus":               models.DeviceTypeHubPlus,
	"hub+":                  models.DeviceTypeHubPlus,
	"ess hub":               models.DeviceTypeHubPlus,
	"battery":               models.DeviceTypeBMS,
	"bms":                   models.DeviceTypeBMS,
	"ess bms":               models.DeviceTypeBMS,
	"ess":                   models.DeviceTypeESS,
	"energy storage system": models.DeviceTypeESS,
}

type deviceListResponse struct {
	Devices []map[string]any `json:"devices"`
}

type essStatusResponse struct {
	Report struct {
		BatteryStatus []map[string]any `json:"battery_status"`
		ESSStatus     []map[string]any `json:"ess_status"`
		HubPlusStatus map[string]any   `json:"hub_plus_status"`
	} `json:"ess_report"`
}

// LegacyClient speaks the unauthenticated CGI protocol.
type LegacyClient struct {
	transport *Transport
	log       *logger.Logger
}

func NewLegacyClient(t *Transport, log *logger.Logger) *LegacyClient {
	if log == nil {
		log = logger.Nop()
	}
	return &LegacyClient{transport: t, log: log}
}

// DeviceList fetches the device list and projects each entry onto the shared vocabulary.
// Entries with an unrecognised DEVICE_TYPE are skipped.
func (c *LegacyClient) DeviceList(ctx context.Context) ([]models.DeviceRecord, error) {
	var resp deviceListResponse
	if err := c.transport.GetJSON(ctx, pathDeviceList, nil, &resp); err != nil {
		return nil, fmt.Errorf("device list: %w", err)
	}
	if resp.Devices == nil {
		return nil, fmt.Errorf("device list: %w: missing devices array", ErrMalformedResponse)
	}

	records := make([]models.DeviceRecord, 0, len(resp.Devices))
	for _, dev := range resp.Devices {
		label := scalarString(dev["DEVICE_TYPE"])
		dt, ok := legacyDeviceTypes[strings.ToLower(label)]
		if !ok {
			c.log.Debugw("legacy_device_skipped", "device_type", label, "serial", scalarString(dev["SERIAL"]))
			continue
		}
		records = append(records, projectLegacy(dt, dev))
	}
	return records, nil
}

func projectLegacy(dt models.DeviceType, dev map[string]any) models.DeviceRecord {
	rec := models.DeviceRecord{
		Serial:      scalarString(dev["SERIAL"]),
		DeviceType:  dt,
		Model:       scalarString(dev["MODEL"]),
		Type:        scalarString(dev["TYPE"]),
		Description: scalarString(dev["DESCR"]),
		State:       scalarString(dev["STATE"]),
		Metrics:     make(map[string]any),
	}
	aliases := legacyAliases[dt]
	for k, v := range dev {
		if v == nil {
			continue
		}
		key := k
		if alias, ok := aliases[k]; ok {
			key = alias
		}
		if InVocabulary(dt, key) {
			rec.Metrics[key] = normalizeScalar(v)
		}
	}
	return rec
}

// StorageStatus fetches battery, ESS and hub records. PV-only systems answer 404, which
// yields no records.
func (c *LegacyClient) StorageStatus(ctx context.Context) ([]models.DeviceRecord, error) {
	var resp essStatusResponse
	err := c.transport.GetJSON(ctx, pathESSStatus, nil, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("storage status: %w", err)
	}

	var records []models.DeviceRecord
	for _, b := range resp.Report.BatteryStatus {
		records = appendStorage(records, models.DeviceTypeBMS, "BMS", "Battery", b)
	}
	for _, e := range resp.Report.ESSStatus {
		records = appendStorage(records, models.DeviceTypeESS, "ESS", "Energy Storage System", e)
	}
	if len(resp.Report.HubPlusStatus) > 0 {
		records = appendStorage(records, models.DeviceTypeHubPlus, "HUBPLUS", "Hub Plus", resp.Report.HubPlusStatus)
	}
	return records, nil
}

func appendStorage(records []models.DeviceRecord, dt models.DeviceType, label, descr string, report map[string]any) []models.DeviceRecord {
	serial := scalarString(report["serial_number"])
	if serial == "" {
		return records
	}
	flat := make(map[string]any)
	flattenReport(report, "", flat)
	metrics := make(map[string]any, len(flat))
	for k, v := range flat {
		if InVocabulary(dt, k) {
			metrics[k] = normalizeScalar(v)
		}
	}
	model := scalarString(report["model"])
	if model == "" {
		model = label
	}
	return append(records, models.DeviceRecord{
		Serial:      serial,
		DeviceType:  dt,
		Model:       model,
		Type:        label,
		Description: descr + " " + serial,
		State:       models.StateWorking,
		Metrics:     metrics,
	})
}

// flattenReport turns nested {"value": x} readings into flat keys: meter_a.reading.current
// becomes meter_a_current; container levels named *reading are transparent.
func flattenReport(obj map[string]any, prefix string, out map[string]any) {
	for k, v := range obj {
		sub, ok := v.(map[string]any)
		if !ok {
			out[prefix+k] = v
			continue
		}
		if val, ok := sub["value"]; ok {
			out[prefix+k] = val
			continue
		}
		next := prefix + k + "_"
		if strings.HasSuffix(k, "reading") {
			next = prefix
		}
		flattenReport(sub, next, out)
	}
}

// mergeRecords adds extra to base, merging metrics into an existing record with the same
// serial and device type.
func mergeRecords(base, extra []models.DeviceRecord) []models.DeviceRecord {
	for _, rec := range extra {
		merged := false
		for i := range base {
			if base[i].Serial == rec.Serial && base[i].DeviceType == rec.DeviceType {
				if base[i].Metrics == nil {
					base[i].Metrics = make(map[string]any)
				}
				for k, v := range rec.Metrics {
					base[i].Metrics[k] = v
				}
				merged = true
				break
			}
		}
		if !merged {
			base = append(base, rec)
		}
	}
	return base
}
