package dns

import (
	"context"
	"fmt"
	"strings"
)

// Record is a resource record as returned by the DNS service.
type Record struct {
	Domain       string `json:"domain"`
	RecordHash   string `json:"record_hash"`
	IsProtected  bool   `json:"is_protected"`
	Rdata        string `json:"rdata"`
	RrsetVersion string `json:"rrset_version"`
	Rtype        string `json:"rtype"`
	TTL          int    `json:"ttl"`
}

// RecordDetails is one item of a full zone-records replacement.
// Nil fields are left for the service to default.
type RecordDetails struct {
	Domain       *string
	RecordHash   *string
	IsProtected  *bool
	Rdata        *string
	RrsetVersion *string
	Rtype        *string
	TTL          *int
}

// Operation describes how a RecordOperation relates to a patch.
type Operation string

const (
	// OperationRequire asserts that the described records already exist.
	OperationRequire Operation = "REQUIRE"
	// OperationProhibit asserts that the described records do not exist.
	OperationProhibit Operation = "PROHIBIT"
	// OperationAdd makes the described records exist after the patch.
	OperationAdd Operation = "ADD"
	// OperationRemove makes the described records absent after the patch.
	OperationRemove Operation = "REMOVE"
)

// ParseOperation maps a user supplied value onto an Operation.
// Matching is case-insensitive.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToUpper(strings.TrimSpace(s))); op {
	case OperationRequire, OperationProhibit, OperationAdd, OperationRemove:
		return op, nil
	default:
		return "", fmt.Errorf("unknown record operation %q", s)
	}
}

// RecordOperation is one item of a zone-records patch.
type RecordOperation struct {
	RecordDetails
	Operation Operation
}

// ZoneRef identifies a zone either by name or by identifier.
type ZoneRef struct {
	Name string
	ID   string
}

// String returns the value the service accepts as zoneNameOrId.
func (z ZoneRef) String() string {
	if z.Name != "" {
		return z.Name
	}
	return z.ID
}

// IsZero reports whether neither a name nor an identifier is set.
func (z ZoneRef) IsZero() bool {
	return z.Name == "" && z.ID == ""
}

// Client is the set of zone-records calls a DNS provider must implement.
type Client interface {
	// GetZoneRecords returns every record in the zone, following pagination.
	GetZoneRecords(ctx context.Context, zone ZoneRef, compartmentID string) ([]Record, error)
	// UpdateZoneRecords replaces the zone's records with items.
	UpdateZoneRecords(ctx context.Context, zone ZoneRef, items []RecordDetails) ([]Record, error)
	// PatchZoneRecords applies ops to the zone's records.
	PatchZoneRecords(ctx context.Context, zone ZoneRef, ops []RecordOperation) ([]Record, error)
}
