package zonerecords

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
)

// Payload is the body of a zone-records mutation: either an UpdatePayload
// or a PatchPayload.
type Payload interface {
	// Kind names the remote call the payload is sent with.
	Kind() string
}

// UpdatePayload replaces every record of the zone.
type UpdatePayload struct {
	Items []dns.RecordDetails
}

// Kind implements Payload.
func (UpdatePayload) Kind() string { return "update" }

// PatchPayload applies record operations to the zone.
type PatchPayload struct {
	Items []dns.RecordOperation
}

// Kind implements Payload.
func (PatchPayload) Kind() string { return "patch" }

// setter copies one user value onto a record.
type setter func(d *dns.RecordDetails, v interface{}) error

// recordFields is the schema shared by update items and patch items.
// Both spellings of the RRSet version are accepted; rrset_version wins when
// both are given.
var recordFields = []struct {
	key string
	set setter
}{
	{"domain", stringField(func(d *dns.RecordDetails, s string) { d.Domain = &s })},
	{"record_hash", stringField(func(d *dns.RecordDetails, s string) { d.RecordHash = &s })},
	{"is_protected", boolField(func(d *dns.RecordDetails, b bool) { d.IsProtected = &b })},
	{"rdata", stringField(func(d *dns.RecordDetails, s string) { d.Rdata = &s })},
	{"rr_set_version", stringField(func(d *dns.RecordDetails, s string) { d.RrsetVersion = &s })},
	{"rrset_version", stringField(func(d *dns.RecordDetails, s string) { d.RrsetVersion = &s })},
	{"rtype", stringField(func(d *dns.RecordDetails, s string) { d.Rtype = &s })},
	{"ttl", intField(func(d *dns.RecordDetails, n int) { d.TTL = &n })},
}

// BuildUpdatePayload maps update items onto record details, in order.
// Keys outside the record schema are ignored and absent keys stay unset;
// required fields are left for the service to enforce.
func BuildUpdatePayload(items []map[string]interface{}) (UpdatePayload, error) {
	out := UpdatePayload{Items: make([]dns.RecordDetails, 0, len(items))}
	for i, item := range items {
		d, err := buildDetails(item)
		if err != nil {
			return UpdatePayload{}, fmt.Errorf("%w: update_items[%d]: %w", ErrInvalidArgument, i, err)
		}
		out.Items = append(out.Items, d)
	}
	return out, nil
}

// BuildPatchPayload maps patch items onto record operations, in order.
// It copies fields the way BuildUpdatePayload does and also carries the
// operation, which must be one of REQUIRE, PROHIBIT, ADD or REMOVE.
func BuildPatchPayload(items []map[string]interface{}) (PatchPayload, error) {
	out := PatchPayload{Items: make([]dns.RecordOperation, 0, len(items))}
	for i, item := range items {
		d, err := buildDetails(item)
		if err != nil {
			return PatchPayload{}, fmt.Errorf("%w: patch_items[%d]: %w", ErrInvalidArgument, i, err)
		}
		op := dns.RecordOperation{RecordDetails: d}
		if v, ok := item["operation"]; ok && v != nil {
			s, err := toString(v)
			if err != nil {
				return PatchPayload{}, fmt.Errorf("%w: patch_items[%d].operation: %w", ErrInvalidArgument, i, err)
			}
			if op.Operation, err = dns.ParseOperation(s); err != nil {
				return PatchPayload{}, fmt.Errorf("%w: patch_items[%d]: %w", ErrInvalidArgument, i, err)
			}
		}
		out.Items = append(out.Items, op)
	}
	return out, nil
}

func buildDetails(item map[string]interface{}) (dns.RecordDetails, error) {
	var d dns.RecordDetails
	for _, f := range recordFields {
		v, ok := item[f.key]
		if !ok || v == nil {
			continue
		}
		if err := f.set(&d, v); err != nil {
			return dns.RecordDetails{}, fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return d, nil
}

func stringField(assign func(*dns.RecordDetails, string)) setter {
	return func(d *dns.RecordDetails, v interface{}) error {
		s, err := toString(v)
		if err != nil {
			return err
		}
		assign(d, s)
		return nil
	}
}

func boolField(assign func(*dns.RecordDetails, bool)) setter {
	return func(d *dns.RecordDetails, v interface{}) error {
		switch b := v.(type) {
		case bool:
			assign(d, b)
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return fmt.Errorf("expected a boolean, got %q", b)
			}
			assign(d, parsed)
		default:
			return fmt.Errorf("expected a boolean, got %T", v)
		}
		return nil
	}
}

func intField(assign func(*dns.RecordDetails, int)) setter {
	return func(d *dns.RecordDetails, v interface{}) error {
		var n int64
		switch x := v.(type) {
		case int:
			n = int64(x)
		case int64:
			n = x
		case uint64:
			if x > math.MaxInt32 {
				return fmt.Errorf("integer %d out of range", x)
			}
			n = int64(x)
		case float64:
			if x != math.Trunc(x) {
				return fmt.Errorf("expected an integer, got %v", x)
			}
			if x > math.MaxInt32 || x < math.MinInt32 {
				return fmt.Errorf("integer %v out of range", x)
			}
			n = int64(x)
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return fmt.Errorf("expected an integer, got %q", x)
			}
			n = parsed
		default:
			return fmt.Errorf("expected an integer, got %T", v)
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return fmt.Errorf("integer %d out of range", n)
		}
		assign(d, int(n))
		return nil
	}
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case uint64:
		return strconv.FormatUint(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("expected a string, got %T", v)
	}
}
