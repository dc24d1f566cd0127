package oci

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/oracle/oci-go-sdk/v65/common"
	ocidns "github.com/oracle/oci-go-sdk/v65/dns"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
)

// fakeServiceError satisfies common.ServiceError.
type fakeServiceError struct {
	status    int
	code      string
	message   string
	requestID string
}

func (e fakeServiceError) Error() string {
	return fmt.Sprintf("Error returned by DNS Service. Http Status Code: %d. Error Code: %s. Message: %s", e.status, e.code, e.message)
}
func (e fakeServiceError) GetHTTPStatusCode() int  { return e.status }
func (e fakeServiceError) GetMessage() string      { return e.message }
func (e fakeServiceError) GetCode() string         { return e.code }
func (e fakeServiceError) GetOpcRequestID() string { return e.requestID }

type fakeAPI struct {
	pages    map[string]ocidns.GetZoneRecordsResponse
	getReqs  []ocidns.GetZoneRecordsRequest
	updates  []ocidns.UpdateZoneRecordsRequest
	patches  []ocidns.PatchZoneRecordsRequest
	errs     []error
	response []ocidns.Record
}

func (f *fakeAPI) nextErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeAPI) GetZoneRecords(_ context.Context, req ocidns.GetZoneRecordsRequest) (ocidns.GetZoneRecordsResponse, error) {
	f.getReqs = append(f.getReqs, req)
	if err := f.nextErr(); err != nil {
		return ocidns.GetZoneRecordsResponse{}, err
	}
	page := ""
	if req.Page != nil {
		page = *req.Page
	}
	return f.pages[page], nil
}

func (f *fakeAPI) UpdateZoneRecords(_ context.Context, req ocidns.UpdateZoneRecordsRequest) (ocidns.UpdateZoneRecordsResponse, error) {
	f.updates = append(f.updates, req)
	if err := f.nextErr(); err != nil {
		return ocidns.UpdateZoneRecordsResponse{}, err
	}
	return ocidns.UpdateZoneRecordsResponse{RecordCollection: ocidns.RecordCollection{Items: f.response}}, nil
}

func (f *fakeAPI) PatchZoneRecords(_ context.Context, req ocidns.PatchZoneRecordsRequest) (ocidns.PatchZoneRecordsResponse, error) {
	f.patches = append(f.patches, req)
	if err := f.nextErr(); err != nil {
		return ocidns.PatchZoneRecordsResponse{}, err
	}
	return ocidns.PatchZoneRecordsResponse{RecordCollection: ocidns.RecordCollection{Items: f.response}}, nil
}

func newTestProvider(t *testing.T, api zoneRecordsAPI, settings map[string]string) *Provider {
	t.Helper()
	p, err := newProvider(logr.Discard(), api, settings)
	if err != nil {
		t.Fatalf("newProvider: %v", err)
	}
	p.backoff.Duration = 0
	return p
}

func sdkRecord(domain, rtype, rdata string, ttl int) ocidns.Record {
	return ocidns.Record{
		Domain:       common.String(domain),
		Rtype:        common.String(rtype),
		Rdata:        common.String(rdata),
		Ttl:          common.Int(ttl),
		RecordHash:   common.String(domain + "/" + rtype),
		RrsetVersion: common.String("1"),
		IsProtected:  common.Bool(false),
	}
}

func TestNewProvider_Settings(t *testing.T) {
	tests := []struct {
		name      string
		settings  map[string]string
		wantLimit int64
		wantSteps int
		wantErr   bool
	}{
		{"defaults", map[string]string{}, 100, dns.DefaultMaxRetries + 1, false},
		{"zero page limit uses default", map[string]string{"page_limit": "0"}, 100, dns.DefaultMaxRetries + 1, false},
		{"custom", map[string]string{"page_limit": "20", "max_retries": "1"}, 20, 2, false},
		{"bad page limit", map[string]string{"page_limit": "x"}, 0, 0, true},
		{"negative retries", map[string]string{"max_retries": "-2"}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newProvider(logr.Discard(), &fakeAPI{}, tt.settings)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.pageLimit != tt.wantLimit {
				t.Errorf("page limit: got %d, want %d", p.pageLimit, tt.wantLimit)
			}
			if p.backoff.Steps != tt.wantSteps {
				t.Errorf("steps: got %d, want %d", p.backoff.Steps, tt.wantSteps)
			}
		})
	}
}

func TestConfigurationProvider_UnsupportedAuth(t *testing.T) {
	if _, err := configurationProvider(map[string]string{"auth": "password"}); err == nil {
		t.Fatal("expected error for unsupported auth")
	}
}

func TestConfigurationProvider_MissingConfigFile(t *testing.T) {
	settings := map[string]string{"config_file": t.TempDir() + "/missing", "profile": "DEFAULT"}
	if _, err := configurationProvider(settings); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGetZoneRecords_FollowsPages(t *testing.T) {
	api := &fakeAPI{pages: map[string]ocidns.GetZoneRecordsResponse{
		"": {
			RecordCollection: ocidns.RecordCollection{Items: []ocidns.Record{sdkRecord("ex.com", "A", "1.2.3.4", 30)}},
			OpcNextPage:      common.String("next"),
		},
		"next": {
			RecordCollection: ocidns.RecordCollection{Items: []ocidns.Record{sdkRecord("ex.com", "TXT", "hello", 60)}},
		},
	}}
	p := newTestProvider(t, api, map[string]string{"page_limit": "1"})

	records, err := p.GetZoneRecords(context.Background(), dns.ZoneRef{Name: "ex.com"}, "ocid1.compartment.oc1..x")
	if err != nil {
		t.Fatalf("GetZoneRecords: %v", err)
	}

	want := []dns.Record{
		{Domain: "ex.com", Rtype: "A", Rdata: "1.2.3.4", TTL: 30, RecordHash: "ex.com/A", RrsetVersion: "1"},
		{Domain: "ex.com", Rtype: "TXT", Rdata: "hello", TTL: 60, RecordHash: "ex.com/TXT", RrsetVersion: "1"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if len(api.getReqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(api.getReqs))
	}
	first := api.getReqs[0]
	if *first.ZoneNameOrId != "ex.com" || *first.Limit != 1 || *first.CompartmentId != "ocid1.compartment.oc1..x" {
		t.Errorf("unexpected first request %+v", first)
	}
	if api.getReqs[1].Page == nil || *api.getReqs[1].Page != "next" {
		t.Errorf("expected second request for page 'next', got %v", api.getReqs[1].Page)
	}
}

func TestGetZoneRecords_NoCompartment(t *testing.T) {
	api := &fakeAPI{pages: map[string]ocidns.GetZoneRecordsResponse{}}
	p := newTestProvider(t, api, nil)

	records, err := p.GetZoneRecords(context.Background(), dns.ZoneRef{ID: "ocid1.dns-zone.oc1..z"}, "")
	if err != nil {
		t.Fatalf("GetZoneRecords: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	if api.getReqs[0].CompartmentId != nil {
		t.Errorf("expected no compartment id, got %q", *api.getReqs[0].CompartmentId)
	}
	if *api.getReqs[0].ZoneNameOrId != "ocid1.dns-zone.oc1..z" {
		t.Errorf("expected zone id to be sent, got %q", *api.getReqs[0].ZoneNameOrId)
	}
}

func TestUpdateZoneRecords_ConvertsDetails(t *testing.T) {
	api := &fakeAPI{response: []ocidns.Record{sdkRecord("ex.com", "A", "1.2.3.4", 30)}}
	p := newTestProvider(t, api, nil)

	domain, rtype, rdata, ttl := "ex.com", "A", "1.2.3.4", 30
	records, err := p.UpdateZoneRecords(context.Background(), dns.ZoneRef{Name: "ex.com"}, []dns.RecordDetails{
		{Domain: &domain, Rtype: &rtype, Rdata: &rdata, TTL: &ttl},
	})
	if err != nil {
		t.Fatalf("UpdateZoneRecords: %v", err)
	}
	if len(records) != 1 || records[0].Rdata != "1.2.3.4" {
		t.Errorf("unexpected records %+v", records)
	}

	items := api.updates[0].UpdateZoneRecordsDetails.Items
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if *items[0].Domain != "ex.com" || *items[0].Ttl != 30 || items[0].RecordHash != nil {
		t.Errorf("unexpected sdk item %+v", items[0])
	}
}

func TestPatchZoneRecords_MapsOperations(t *testing.T) {
	api := &fakeAPI{}
	p := newTestProvider(t, api, nil)

	domain, rtype := "ex.com", "A"
	ops := []dns.RecordOperation{
		{RecordDetails: dns.RecordDetails{Domain: &domain, Rtype: &rtype}, Operation: dns.OperationRequire},
		{RecordDetails: dns.RecordDetails{Domain: &domain, Rtype: &rtype}, Operation: dns.OperationProhibit},
		{RecordDetails: dns.RecordDetails{Domain: &domain, Rtype: &rtype}, Operation: dns.OperationAdd},
		{RecordDetails: dns.RecordDetails{Domain: &domain, Rtype: &rtype}, Operation: dns.OperationRemove},
		{RecordDetails: dns.RecordDetails{Domain: &domain}},
	}
	records, err := p.PatchZoneRecords(context.Background(), dns.ZoneRef{Name: "ex.com"}, ops)
	if err != nil {
		t.Fatalf("PatchZoneRecords: %v", err)
	}
	if records == nil {
		t.Error("expected non-nil records")
	}

	want := []ocidns.RecordOperationOperationEnum{
		ocidns.RecordOperationOperationRequire,
		ocidns.RecordOperationOperationProhibit,
		ocidns.RecordOperationOperationAdd,
		ocidns.RecordOperationOperationRemove,
		"",
	}
	items := api.patches[0].PatchZoneRecordsDetails.Items
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, w := range want {
		if items[i].Operation != w {
			t.Errorf("items[%d]: got operation %q, want %q", i, items[i].Operation, w)
		}
	}
}

func TestPatchZoneRecords_UnknownOperation(t *testing.T) {
	api := &fakeAPI{}
	p := newTestProvider(t, api, nil)

	_, err := p.PatchZoneRecords(context.Background(), dns.ZoneRef{Name: "ex.com"}, []dns.RecordOperation{{Operation: "UPSERT"}})
	if err == nil {
		t.Fatal("expected error for unknown operation")
	}
	if len(api.patches) != 0 {
		t.Errorf("expected no request to be sent, got %d", len(api.patches))
	}
}

func TestServiceErrorsAreConverted(t *testing.T) {
	api := &fakeAPI{errs: []error{fakeServiceError{status: 404, code: "NotAuthorizedOrNotFound", message: "zone not found", requestID: "r-1"}}}
	p := newTestProvider(t, api, nil)

	_, err := p.GetZoneRecords(context.Background(), dns.ZoneRef{Name: "missing.com"}, "")

	var se *dns.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *dns.ServiceError, got %T: %v", err, err)
	}
	want := &dns.ServiceError{StatusCode: 404, Code: "NotAuthorizedOrNotFound", Message: "zone not found", RequestID: "r-1"}
	if diff := cmp.Diff(want, se); diff != "" {
		t.Errorf("service error mismatch (-want +got):\n%s", diff)
	}
	if len(api.getReqs) != 1 {
		t.Errorf("expected 404 not to be retried, got %d requests", len(api.getReqs))
	}
}

func TestThrottlingIsRetried(t *testing.T) {
	api := &fakeAPI{
		errs: []error{
			fakeServiceError{status: 429, code: "TooManyRequests", message: "slow down"},
			fakeServiceError{status: 500, code: "InternalServerError", message: "oops"},
		},
		response: []ocidns.Record{sdkRecord("ex.com", "A", "1.2.3.4", 30)},
	}
	p := newTestProvider(t, api, map[string]string{"max_retries": "2"})

	records, err := p.UpdateZoneRecords(context.Background(), dns.ZoneRef{Name: "ex.com"}, nil)
	if err != nil {
		t.Fatalf("UpdateZoneRecords: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
	if len(api.updates) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(api.updates))
	}
}

func TestConvertError_PassesThroughOtherErrors(t *testing.T) {
	base := errors.New("connection reset")
	if got := convertError(base); got != base {
		t.Errorf("expected error unchanged, got %v", got)
	}
	if convertError(nil) != nil {
		t.Error("expected nil for nil")
	}
}
