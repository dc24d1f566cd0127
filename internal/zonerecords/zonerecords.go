// Package zonerecords updates or patches the record collection of a DNS
// zone and reports whether the operation changed it.
package zonerecords

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/config"
	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
)

var (
	// ErrMissingArgument is returned when a required parameter is absent.
	ErrMissingArgument = errors.New("missing required arguments")
	// ErrInvalidArgument is returned when a parameter has an unusable value.
	ErrInvalidArgument = errors.New("invalid argument")
)

// StatePresent is the only supported state.
const StatePresent = "present"

var supportedStates = sets.New(StatePresent)

// Result is what a run reports back.
type Result struct {
	Changed     bool         `json:"changed"`
	ZoneRecords []dns.Record `json:"zone_records"`
}

// Validate checks params before anything is sent to the service.
// All problems are reported together.
func Validate(p *config.Params) error {
	var errs []error

	if p.Name == "" && p.ZoneName == "" && p.ZoneID == "" && p.ID == "" {
		errs = append(errs, fmt.Errorf("%w: one of the following is required: zone_id, name", ErrMissingArgument))
	}

	switch {
	case p.UpdateItems != nil && p.PatchItems != nil:
		errs = append(errs, fmt.Errorf("%w: parameters are mutually exclusive: update_items, patch_items", ErrInvalidArgument))
	case p.UpdateItems == nil && p.PatchItems == nil:
		errs = append(errs, fmt.Errorf("%w: one of the following is required: update_items, patch_items", ErrMissingArgument))
	}

	if p.State != "" && !supportedStates.Has(p.State) {
		errs = append(errs, fmt.Errorf("%w: state must be one of %v, got %q", ErrInvalidArgument, sets.List(supportedStates), p.State))
	}

	return utilerrors.NewAggregate(errs)
}

// ResolveZoneRef picks the zone to operate on. A name wins over an
// identifier when both are given; aliases are consulted after their
// primary parameter.
func ResolveZoneRef(p *config.Params) (dns.ZoneRef, error) {
	switch {
	case p.Name != "":
		return dns.ZoneRef{Name: p.Name}, nil
	case p.ZoneName != "":
		return dns.ZoneRef{Name: p.ZoneName}, nil
	case p.ZoneID != "":
		return dns.ZoneRef{ID: p.ZoneID}, nil
	case p.ID != "":
		return dns.ZoneRef{ID: p.ID}, nil
	default:
		return dns.ZoneRef{}, fmt.Errorf("%w: one of the following is required: zone_id, name", ErrMissingArgument)
	}
}

// BuildPayload builds the request selected by params.
func BuildPayload(p *config.Params) (Payload, error) {
	if p.UpdateItems != nil {
		return BuildUpdatePayload(p.UpdateItems)
	}
	return BuildPatchPayload(p.PatchItems)
}

// Mutator sends zone-records mutations and detects their effect.
type Mutator struct {
	Client dns.Client
	Log    logr.Logger
}

// Run validates params, builds the request and applies it.
func (m *Mutator) Run(ctx context.Context, p *config.Params) (Result, error) {
	if err := Validate(p); err != nil {
		return Result{}, err
	}
	zone, err := ResolveZoneRef(p)
	if err != nil {
		return Result{}, err
	}
	payload, err := BuildPayload(p)
	if err != nil {
		return Result{}, err
	}
	return m.Apply(ctx, zone, p.CompartmentID, payload)
}

// Apply snapshots the zone, sends payload, snapshots the zone again and
// reports the records returned by the mutation together with whether the
// two snapshots differ. A failure at any step aborts the run; nothing is
// retried or rolled back here.
func (m *Mutator) Apply(ctx context.Context, zone dns.ZoneRef, compartmentID string, payload Payload) (Result, error) {
	log := m.Log.WithValues("zone", zone.String(), "kind", payload.Kind())

	before, err := m.Client.GetZoneRecords(ctx, zone, compartmentID)
	if err != nil {
		return Result{}, fmt.Errorf("getting zone records: %w", err)
	}
	log.V(1).Info("fetched zone records before mutation", "count", len(before))

	var records []dns.Record
	switch pl := payload.(type) {
	case UpdatePayload:
		records, err = m.Client.UpdateZoneRecords(ctx, zone, pl.Items)
		if err != nil {
			return Result{}, fmt.Errorf("updating zone records: %w", err)
		}
	case PatchPayload:
		records, err = m.Client.PatchZoneRecords(ctx, zone, pl.Items)
		if err != nil {
			return Result{}, fmt.Errorf("patching zone records: %w", err)
		}
	default:
		return Result{}, fmt.Errorf("%w: unsupported payload %T", ErrInvalidArgument, payload)
	}

	after, err := m.Client.GetZoneRecords(ctx, zone, compartmentID)
	if err != nil {
		return Result{}, fmt.Errorf("getting zone records: %w", err)
	}

	changed := !EqualMultiset(before, after)
	log.Info("zone records applied", "changed", changed, "before", len(before), "after", len(after))

	if records == nil {
		records = []dns.Record{}
	}
	return Result{Changed: changed, ZoneRecords: records}, nil
}

// EqualMultiset reports whether a and b hold the same records the same
// number of times, in any order.
func EqualMultiset(a, b []dns.Record) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[dns.Record]int, len(a))
	for _, r := range a {
		counts[r]++
	}
	for _, r := range b {
		if counts[r] == 0 {
			return false
		}
		counts[r]--
	}
	return true
}
