package service

import "pvs_monitor/internal/models"

// NamingOptions only change how devices are labelled, never what is polled.
type NamingOptions struct {
	Descriptive  bool
	ProductNames bool
}

const productPrefix = "SunPower "

var typeLabels = map[models.DeviceType]string{
	models.DeviceTypePVS:          "PVS",
	models.DeviceTypePowerMeter:   "Power Meter",
	models.DeviceTypeInverter:     "Inverter",
	models.DeviceTypeHubPlus:      "Hub Plus",
	models.DeviceTypeBMS:          "Battery",
	models.DeviceTypeESS:          "Energy Storage System",
	models.DeviceTypeVirtualMeter: "Virtual Production Meter",
}

// DisplayName is the human-facing name of a device. Descriptive names prefer the gateway's
// own description and fall back to "<type label> <serial>"; otherwise the serial is used.
func DisplayName(rec models.DeviceRecord, opts NamingOptions) string {
	name := rec.Serial
	if opts.Descriptive {
		switch {
		case rec.Description != "":
			name = rec.Description
		case typeLabels[rec.DeviceType] != "":
			name = typeLabels[rec.DeviceType] + " " + rec.Serial
		}
	}
	if opts.ProductNames {
		name = productPrefix + name
	}
	return name
}
