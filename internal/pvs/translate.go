package pvs

import (
	"fmt"
	"strings"

	"pvs_monitor/internal/models"
)

// Category is one family of local-API variables, queried with one match pattern.
type Category string

const (
	CategoryInfo     Category = "info"
	CategoryMeter    Category = "meter"
	CategoryInverter Category = "inverter"
	CategoryHubPlus  Category = "hubplus"
	CategoryBMS      Category = "bms"
	CategoryESS      Category = "ess"
	CategoryLivedata Category = "livedata"
)

// Categories is the fixed order in which a local-API poll walks the variable store.
var Categories = []Category{
	CategoryInfo,
	CategoryMeter,
	CategoryInverter,
	CategoryHubPlus,
	CategoryBMS,
	CategoryESS,
	CategoryLivedata,
}

// AggregateESSSerial identifies the ESS record built from livedata totals.
const AggregateESSSerial = "ESS-AGG"

type deviceCategory struct {
	deviceType models.DeviceType
	table      keyTable
	typeLabel  string
	descr      string
}

var deviceCategories = map[Category]deviceCategory{
	CategoryMeter:    {models.DeviceTypePowerMeter, meterTable, "PVS-METER", "Power Meter"},
	CategoryInverter: {models.DeviceTypeInverter, inverterTable, "MICRO-INVERTER", "Inverter"},
	CategoryHubPlus:  {models.DeviceTypeHubPlus, hubPlusTable, "HUBPLUS", "Hub Plus"},
	CategoryBMS:      {models.DeviceTypeBMS, bmsTable, "BMS", "Battery"},
	CategoryESS:      {models.DeviceTypeESS, essTable, "ESS", "Energy Storage System"},
}

// Translate maps the variables returned for a category into legacy-shaped records.
// Unknown fields are dropped and absent fields are omitted; values are not converted.
func Translate(category Category, values map[string]any) []models.DeviceRecord {
	switch category {
	case CategoryInfo:
		return translateInfo(values)
	case CategoryLivedata:
		return translateLivedata(values)
	}

	dc, ok := deviceCategories[category]
	if !ok {
		return nil
	}
	groups := GroupByIndex(values, string(category))
	if len(groups) == 0 {
		return nil
	}

	records := make([]models.DeviceRecord, 0, len(groups))
	for _, g := range groups {
		serial := scalarString(g.Fields[fieldSerial])
		if serial == "" {
			serial = fmt.Sprintf("%s-%s", strings.ToUpper(string(category)), g.Index)
		}
		model := scalarString(g.Fields[fieldModel])
		if model == "" {
			model = "Unknown"
		}
		records = append(records, models.DeviceRecord{
			Serial:      serial,
			DeviceType:  dc.deviceType,
			Model:       model,
			Type:        dc.typeLabel,
			Description: dc.descr + " " + serial,
			State:       models.StateWorking,
			Metrics:     applyTable(dc.table, g.Fields),
		})
	}
	return records
}

func translateInfo(values map[string]any) []models.DeviceRecord {
	if len(values) == 0 {
		return nil
	}
	serial := scalarString(values[varInfoSerial])
	model := scalarString(values[varInfoModel])
	if model == "" {
		model = "PVS"
	}
	rec := models.DeviceRecord{
		Serial:     serial,
		DeviceType: models.DeviceTypePVS,
		Model:      model,
		Type:       "PVS",
		State:      models.StateWorking,
		Metrics:    applyTable(pvsTable, values),
	}
	if serial != "" {
		rec.Description = model + " " + serial
	}
	return []models.DeviceRecord{rec}
}

// translateLivedata builds the aggregate ESS record from site-level totals. Systems without
// storage report neither value and get no record.
func translateLivedata(values map[string]any) []models.DeviceRecord {
	_, hasSOC := values[varLiveSOC]
	essP, hasESSP := values[varLiveESSP]
	if !hasSOC && !hasESSP {
		return nil
	}
	metrics := applyTable(livedataTable, values)
	if !hasESSP || essP == nil {
		metrics["agg_power"] = 0.0
	}
	return []models.DeviceRecord{{
		Serial:      AggregateESSSerial,
		DeviceType:  models.DeviceTypeESS,
		Model:       "ESS",
		Type:        "ESS",
		Description: "Energy Storage System " + AggregateESSSerial,
		State:       models.StateWorking,
		Metrics:     metrics,
	}}
}

func applyTable(table keyTable, fields map[string]any) map[string]any {
	metrics := make(map[string]any, len(table))
	for modern, legacy := range table {
		v, ok := fields[modern]
		if !ok || v == nil {
			continue
		}
		metrics[legacy] = v
	}
	return metrics
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return fmt.Sprint(s)
	}
}
