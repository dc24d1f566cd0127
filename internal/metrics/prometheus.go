package metrics

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
)

// Metrics holds the collectors for one run of the command.
type Metrics struct {
	Registry *prometheus.Registry

	APIRequests *prometheus.CounterVec
	Changed     prometheus.Gauge
	Records     prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zone_records_api_requests_total",
				Help: "Number of zone-records calls to the DNS provider.",
			},
			[]string{"operation", "outcome"},
		),
		Changed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zone_records_changed",
			Help: "1 if the last run changed the zone's records, 0 otherwise.",
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zone_records_count",
			Help: "Number of records in the zone after the last run.",
		}),
	}
	m.Registry.MustRegister(m.APIRequests, m.Changed, m.Records)
	return m
}

// ObserveResult records the outcome of a successful run.
func (m *Metrics) ObserveResult(changed bool, records int) {
	if changed {
		m.Changed.Set(1)
	} else {
		m.Changed.Set(0)
	}
	m.Records.Set(float64(records))
}

// WriteTextfile writes every collector in the text exposition format, for
// the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

// Instrument wraps c so that every call is counted.
func (m *Metrics) Instrument(c dns.Client) dns.Client {
	return &instrumented{next: c, requests: m.APIRequests}
}

type instrumented struct {
	next     dns.Client
	requests *prometheus.CounterVec
}

func (i *instrumented) observe(op string, err error) {
	i.requests.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var se *dns.ServiceError
	if errors.As(err, &se) {
		return strconv.Itoa(se.StatusCode)
	}
	return "error"
}

func (i *instrumented) GetZoneRecords(ctx context.Context, zone dns.ZoneRef, compartmentID string) ([]dns.Record, error) {
	records, err := i.next.GetZoneRecords(ctx, zone, compartmentID)
	i.observe("GetZoneRecords", err)
	return records, err
}

func (i *instrumented) UpdateZoneRecords(ctx context.Context, zone dns.ZoneRef, items []dns.RecordDetails) ([]dns.Record, error) {
	records, err := i.next.UpdateZoneRecords(ctx, zone, items)
	i.observe("UpdateZoneRecords", err)
	return records, err
}

func (i *instrumented) PatchZoneRecords(ctx context.Context, zone dns.ZoneRef, ops []dns.RecordOperation) ([]dns.Record, error) {
	records, err := i.next.PatchZoneRecords(ctx, zone, ops)
	i.observe("PatchZoneRecords", err)
	return records, err
}
