package metrics

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns/dnstest"
)

func TestInstrument_CountsOutcomes(t *testing.T) {
	m := New()
	zone := dnstest.NewZone("example.com", "zone-1")
	c := m.Instrument(zone)
	ctx := context.Background()

	if _, err := c.GetZoneRecords(ctx, dns.ZoneRef{Name: "example.com"}, ""); err != nil {
		t.Fatalf("GetZoneRecords: %v", err)
	}
	if _, err := c.GetZoneRecords(ctx, dns.ZoneRef{Name: "missing.com"}, ""); err == nil {
		t.Fatal("expected error for unknown zone")
	}
	zone.FailNext("PatchZoneRecords", &dns.ServiceError{StatusCode: http.StatusTooManyRequests})
	if _, err := c.PatchZoneRecords(ctx, dns.ZoneRef{Name: "example.com"}, nil); err == nil {
		t.Fatal("expected injected error")
	}

	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("GetZoneRecords", "success")); got != 1 {
		t.Errorf("expected 1 successful GetZoneRecords, got %v", got)
	}
	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("GetZoneRecords", "404")); got != 1 {
		t.Errorf("expected 1 GetZoneRecords with 404, got %v", got)
	}
	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("PatchZoneRecords", "429")); got != 1 {
		t.Errorf("expected 1 PatchZoneRecords with 429, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveResult(true, 3)

	path := filepath.Join(t.TempDir(), "zone_records.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "zone_records_changed 1") {
		t.Errorf("expected changed gauge in output, got:\n%s", out)
	}
	if !strings.Contains(out, "zone_records_count 3") {
		t.Errorf("expected count gauge in output, got:\n%s", out)
	}
}
