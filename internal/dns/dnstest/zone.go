// Package dnstest provides an in-memory zone that behaves like the DNS
// service's zone-records resource, for tests.
//
// Update replaces every unprotected record. Patch applies operations in
// order and atomically: REQUIRE and PROHIBIT match on domain, rtype and,
// when given, rdata; ADD and REMOVE succeed without change when the zone
// already satisfies them. Every record of an RRSet shares one TTL, so an ADD
// sets the TTL of the whole RRSet. RRSets that change get the next zone
// version as their rrset_version.
package dnstest

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
)

// Zone is an in-memory zone implementing dns.Client.
type Zone struct {
	Name string
	ID   string

	mu       sync.Mutex
	version  int
	records  []dns.Record
	calls    []string
	failures map[string]error
}

var _ dns.Client = (*Zone)(nil)

// NewZone returns a zone holding records. RecordHash and RrsetVersion are
// filled in when empty.
func NewZone(name, id string, records ...dns.Record) *Zone {
	z := &Zone{Name: name, ID: id, version: 1, failures: map[string]error{}}
	for _, r := range records {
		if r.RrsetVersion == "" {
			r.RrsetVersion = "1"
		}
		if r.RecordHash == "" {
			r.RecordHash = recordHash(r)
		}
		z.records = append(z.records, r)
	}
	sortRecords(z.records)
	return z
}

// Protected returns the apex SOA and NS records every zone carries.
func Protected(apex string) []dns.Record {
	return []dns.Record{
		{Domain: apex, Rtype: "SOA", Rdata: "ns1.example.net. hostmaster." + apex + ". 1 3600 600 604800 1800", TTL: 300, IsProtected: true},
		{Domain: apex, Rtype: "NS", Rdata: "ns1.example.net.", TTL: 86400, IsProtected: true},
	}
}

// Records returns a copy of the zone's current records.
func (z *Zone) Records() []dns.Record {
	z.mu.Lock()
	defer z.mu.Unlock()
	return append([]dns.Record(nil), z.records...)
}

// Calls returns the operations invoked so far, in order.
func (z *Zone) Calls() []string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return append([]string(nil), z.calls...)
}

// FailNext makes the next call of op ("GetZoneRecords", "UpdateZoneRecords"
// or "PatchZoneRecords") return err without touching the zone.
func (z *Zone) FailNext(op string, err error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.failures[op] = err
}

func (z *Zone) begin(op string, zone dns.ZoneRef) error {
	z.calls = append(z.calls, op)
	if err, ok := z.failures[op]; ok {
		delete(z.failures, op)
		return err
	}
	if (zone.Name != "" && strings.EqualFold(strings.TrimSuffix(zone.Name, "."), strings.TrimSuffix(z.Name, "."))) ||
		(zone.Name == "" && zone.ID != "" && zone.ID == z.ID) {
		return nil
	}
	return &dns.ServiceError{
		StatusCode: http.StatusNotFound,
		Code:       "NotAuthorizedOrNotFound",
		Message:    fmt.Sprintf("zone %s not found", zone.String()),
	}
}

// GetZoneRecords returns the zone's records.
func (z *Zone) GetZoneRecords(_ context.Context, zone dns.ZoneRef, _ string) ([]dns.Record, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if err := z.begin("GetZoneRecords", zone); err != nil {
		return nil, err
	}
	return append([]dns.Record(nil), z.records...), nil
}

// UpdateZoneRecords replaces every unprotected record with items.
func (z *Zone) UpdateZoneRecords(_ context.Context, zone dns.ZoneRef, items []dns.RecordDetails) ([]dns.Record, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if err := z.begin("UpdateZoneRecords", zone); err != nil {
		return nil, err
	}

	var next []dns.Record
	for _, r := range z.records {
		if r.IsProtected {
			next = append(next, r)
		}
	}
	for i, it := range items {
		r, err := detailsToRecord(it)
		if err != nil {
			return nil, invalidParameter("items[%d]: %v", i, err)
		}
		if idx := find(next, r.Domain, r.Rtype, r.Rdata); idx >= 0 && next[idx].IsProtected {
			continue
		}
		next = append(next, r)
	}
	z.commit(next)
	return append([]dns.Record(nil), z.records...), nil
}

// PatchZoneRecords applies ops in order. Nothing changes if any op fails.
func (z *Zone) PatchZoneRecords(_ context.Context, zone dns.ZoneRef, ops []dns.RecordOperation) ([]dns.Record, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if err := z.begin("PatchZoneRecords", zone); err != nil {
		return nil, err
	}

	next := append([]dns.Record(nil), z.records...)
	for i, op := range ops {
		var err error
		next, err = applyOp(next, op)
		if err != nil {
			if se, ok := err.(*dns.ServiceError); ok {
				se.Message = fmt.Sprintf("items[%d]: %s", i, se.Message)
				return nil, se
			}
			return nil, err
		}
	}
	z.commit(next)
	return append([]dns.Record(nil), z.records...), nil
}

func applyOp(records []dns.Record, op dns.RecordOperation) ([]dns.Record, error) {
	domain, rtype, rdata := deref(op.Domain), strings.ToUpper(deref(op.Rtype)), deref(op.Rdata)

	matches := func(r dns.Record) bool {
		if domain != "" && !strings.EqualFold(r.Domain, domain) {
			return false
		}
		if rtype != "" && !strings.EqualFold(r.Rtype, rtype) {
			return false
		}
		return rdata == "" || r.Rdata == rdata
	}
	anyMatch := func() bool {
		for _, r := range records {
			if matches(r) {
				return true
			}
		}
		return false
	}

	switch op.Operation {
	case dns.OperationRequire:
		if !anyMatch() {
			return nil, preconditionFailed("required record %s %s %s does not exist", domain, rtype, rdata)
		}
		return records, nil
	case dns.OperationProhibit:
		if anyMatch() {
			return nil, preconditionFailed("prohibited record %s %s %s exists", domain, rtype, rdata)
		}
		return records, nil
	case dns.OperationAdd:
		if domain == "" || rtype == "" || op.TTL == nil {
			return nil, invalidParameter("ADD requires domain, rtype and ttl")
		}
		if rdata != "" && find(records, domain, rtype, rdata) < 0 {
			records = append(records, dns.Record{Domain: domain, Rtype: rtype, Rdata: rdata, TTL: *op.TTL})
		}
		for i := range records {
			if strings.EqualFold(records[i].Domain, domain) && strings.EqualFold(records[i].Rtype, rtype) {
				records[i].TTL = *op.TTL
			}
		}
		return records, nil
	case dns.OperationRemove:
		if domain == "" || rtype == "" {
			return nil, invalidParameter("REMOVE requires domain and rtype")
		}
		kept := records[:0:0]
		for _, r := range records {
			if !matches(r) {
				kept = append(kept, r)
				continue
			}
			if r.IsProtected {
				return nil, invalidParameter("record %s %s is protected", r.Domain, r.Rtype)
			}
		}
		return kept, nil
	default:
		return nil, invalidParameter("unknown operation %q", op.Operation)
	}
}

// commit stores next as the zone's records, bumping the version of every
// RRSet whose contents changed.
func (z *Zone) commit(next []dns.Record) {
	before := rrsets(z.records)
	after := rrsets(next)
	versions := map[string]string{}
	for _, r := range z.records {
		versions[rrsetKey(r)] = r.RrsetVersion
	}

	changed := map[string]bool{}
	for key, sig := range after {
		if before[key] != sig {
			changed[key] = true
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changed[key] = true
		}
	}

	if len(changed) > 0 {
		z.version++
		v := strconv.Itoa(z.version)
		for i := range next {
			if changed[rrsetKey(next[i])] {
				next[i].RrsetVersion = v
			}
		}
	}
	for i := range next {
		if !changed[rrsetKey(next[i])] {
			next[i].RrsetVersion = versions[rrsetKey(next[i])]
		}
		next[i].RecordHash = recordHash(next[i])
	}
	sortRecords(next)
	z.records = next
}

func rrsetKey(r dns.Record) string {
	return strings.ToLower(r.Domain) + "/" + strings.ToUpper(r.Rtype)
}

// rrsets returns a content signature per RRSet.
func rrsets(records []dns.Record) map[string]string {
	parts := map[string][]string{}
	for _, r := range records {
		k := rrsetKey(r)
		parts[k] = append(parts[k], fmt.Sprintf("%s|%d", r.Rdata, r.TTL))
	}
	out := make(map[string]string, len(parts))
	for k, p := range parts {
		sort.Strings(p)
		out[k] = strings.Join(p, ",")
	}
	return out
}

func find(records []dns.Record, domain, rtype, rdata string) int {
	for i, r := range records {
		if strings.EqualFold(r.Domain, domain) && strings.EqualFold(r.Rtype, rtype) && r.Rdata == rdata {
			return i
		}
	}
	return -1
}

func detailsToRecord(d dns.RecordDetails) (dns.Record, error) {
	switch {
	case d.Domain == nil:
		return dns.Record{}, fmt.Errorf("domain is required")
	case d.Rdata == nil:
		return dns.Record{}, fmt.Errorf("rdata is required")
	case d.Rtype == nil:
		return dns.Record{}, fmt.Errorf("rtype is required")
	case d.TTL == nil:
		return dns.Record{}, fmt.Errorf("ttl is required")
	}
	return dns.Record{Domain: *d.Domain, Rdata: *d.Rdata, Rtype: strings.ToUpper(*d.Rtype), TTL: *d.TTL}, nil
}

func recordHash(r dns.Record) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s|%d", strings.ToLower(r.Domain), r.Rtype, r.Rdata, r.TTL)))
	return fmt.Sprintf("%x", sum)
}

func sortRecords(records []dns.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Rtype != b.Rtype {
			return a.Rtype < b.Rtype
		}
		return a.Rdata < b.Rdata
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func invalidParameter(format string, args ...interface{}) *dns.ServiceError {
	return &dns.ServiceError{StatusCode: http.StatusBadRequest, Code: "InvalidParameter", Message: fmt.Sprintf(format, args...)}
}

func preconditionFailed(format string, args ...interface{}) *dns.ServiceError {
	return &dns.ServiceError{StatusCode: http.StatusPreconditionFailed, Code: "PreconditionFailed", Message: fmt.Sprintf(format, args...)}
}
