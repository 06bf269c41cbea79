// Package metrics exposes the latest device snapshot as Prometheus metrics.
package metrics

import (
	"sort"

	"pvs_monitor/internal/models"
	"pvs_monitor/internal/poller"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pvs"

// Source is read on every scrape; it must not block on the gateway.
type Source interface {
	Snapshot() models.Snapshot
	Status() poller.Status
}

// Collector implements prometheus.Collector over the in-memory snapshot.
type Collector struct {
	src Source

	deviceValue     *prometheus.Desc
	deviceUp        *prometheus.Desc
	deviceInfo      *prometheus.Desc
	available       *prometheus.Desc
	lastSuccess     *prometheus.Desc
	consecutiveFail *prometheus.Desc
	pollsTotal      *prometheus.Desc
	failuresTotal   *prometheus.Desc
}

func NewCollector(src Source) *Collector {
	deviceLabels := []string{"serial", "device_type"}
	return &Collector{
		src: src,
		deviceValue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "value"),
			"Numeric value reported by a device, keyed by its normalized field name",
			append(deviceLabels, "field"),
			nil,
		),
		deviceUp: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "up"),
			"Device reported a working state in the last successful poll (1=yes, 0=no)",
			deviceLabels,
			nil,
		),
		deviceInfo: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "info"),
			"Static device information",
			append(deviceLabels, "model", "state"),
			nil,
		),
		available: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "available"),
			"Whether the last poll cycle reached the gateway",
			nil,
			nil,
		),
		lastSuccess: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "last_poll_success_timestamp_seconds"),
			"Unix time of the last successful poll",
			nil,
			nil,
		),
		consecutiveFail: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "consecutive_poll_failures"),
			"Poll failures since the last success",
			nil,
			nil,
		),
		pollsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "polls_total"),
			"Poll cycles run since start",
			nil,
			nil,
		),
		failuresTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "poll_failures_total"),
			"Poll cycles that failed since start",
			nil,
			nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.deviceValue
	ch <- c.deviceUp
	ch <- c.deviceInfo
	ch <- c.available
	ch <- c.lastSuccess
	ch <- c.consecutiveFail
	ch <- c.pollsTotal
	ch <- c.failuresTotal
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.Snapshot()
	st := c.src.Status()

	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, boolToFloat(snap.Available))
	ch <- prometheus.MustNewConstMetric(c.consecutiveFail, prometheus.GaugeValue, float64(st.ConsecutiveFailures))
	ch <- prometheus.MustNewConstMetric(c.pollsTotal, prometheus.CounterValue, float64(st.TotalPolls))
	ch <- prometheus.MustNewConstMetric(c.failuresTotal, prometheus.CounterValue, float64(st.TotalFailures))
	if !st.LastSuccessTime.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue, float64(st.LastSuccessTime.Unix()))
	}

	for _, d := range snap.Devices {
		dt := string(d.DeviceType)
		ch <- prometheus.MustNewConstMetric(c.deviceInfo, prometheus.GaugeValue, 1, d.Serial, dt, d.Model, d.State)
		ch <- prometheus.MustNewConstMetric(c.deviceUp, prometheus.GaugeValue,
			boolToFloat(snap.Available && !d.Faulted()), d.Serial, dt)

		// stable order keeps scrape output diffable
		keys := make([]string, 0, len(d.Metrics))
		for k := range d.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, ok := models.ToFloat(d.Metrics[k])
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.deviceValue, prometheus.GaugeValue, v, d.Serial, dt, k)
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
