package oci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	ocidns "github.com/oracle/oci-go-sdk/v65/dns"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
)

func init() {
	dns.Register("oci", func(log logr.Logger, settings map[string]string) (dns.Client, error) {
		return New(log, settings)
	})
}

const defaultPageLimit = 100

// zoneRecordsAPI is the part of ocidns.DnsClient the provider calls.
type zoneRecordsAPI interface {
	GetZoneRecords(ctx context.Context, request ocidns.GetZoneRecordsRequest) (ocidns.GetZoneRecordsResponse, error)
	UpdateZoneRecords(ctx context.Context, request ocidns.UpdateZoneRecordsRequest) (ocidns.UpdateZoneRecordsResponse, error)
	PatchZoneRecords(ctx context.Context, request ocidns.PatchZoneRecordsRequest) (ocidns.PatchZoneRecordsResponse, error)
}

// Provider implements dns.Client for the OCI DNS service.
type Provider struct {
	api       zoneRecordsAPI
	pageLimit int64
	backoff   wait.Backoff
	log       logr.Logger
}

// New creates an OCI DNS provider from the given settings map.
// Optional settings: auth ("api_key" default, or "instance_principal"),
// config_file (default the SDK's lookup), profile (default DEFAULT), region,
// endpoint, page_limit (default 100), max_retries (default 4).
//
// The configuration is validated here, so a missing key file or tenancy is
// reported before any request is sent.
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	cp, err := configurationProvider(settings)
	if err != nil {
		return nil, err
	}

	client, err := ocidns.NewDnsClientWithConfigurationProvider(cp)
	if err != nil {
		return nil, fmt.Errorf("oci: create dns client: %w", err)
	}
	if region := settings["region"]; region != "" {
		client.SetRegion(region)
	}
	if endpoint := settings["endpoint"]; endpoint != "" {
		client.Host = endpoint
	}

	return newProvider(log, client, settings)
}

func newProvider(log logr.Logger, api zoneRecordsAPI, settings map[string]string) (*Provider, error) {
	pageLimit, err := dns.IntSetting(settings, "page_limit", defaultPageLimit)
	if err != nil {
		return nil, fmt.Errorf("oci: %w", err)
	}
	if pageLimit == 0 {
		pageLimit = defaultPageLimit
	}
	maxRetries, err := dns.IntSetting(settings, "max_retries", dns.DefaultMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("oci: %w", err)
	}
	return &Provider{
		api:       api,
		pageLimit: int64(pageLimit),
		backoff:   dns.NewBackoff(maxRetries),
		log:       log,
	}, nil
}

func configurationProvider(settings map[string]string) (common.ConfigurationProvider, error) {
	switch authType := strings.ToLower(settings["auth"]); authType {
	case "instance_principal":
		cp, err := auth.InstancePrincipalConfigurationProvider()
		if err != nil {
			return nil, fmt.Errorf("oci: instance principal: %w", err)
		}
		return cp, nil
	case "", "api_key":
	default:
		return nil, fmt.Errorf("oci: unsupported auth %q", authType)
	}

	var cp common.ConfigurationProvider
	if path := settings["config_file"]; path != "" {
		profile := settings["profile"]
		if profile == "" {
			profile = "DEFAULT"
		}
		expanded, err := expandHome(path)
		if err != nil {
			return nil, fmt.Errorf("oci: config_file: %w", err)
		}
		cp = common.CustomProfileConfigProvider(expanded, profile)
	} else {
		cp = common.DefaultConfigProvider()
	}

	if ok, err := common.IsConfigurationProviderValid(cp); !ok {
		return nil, fmt.Errorf("oci: invalid configuration: %w", err)
	}
	return cp, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// convertError turns SDK service failures into *dns.ServiceError and leaves
// every other error untouched.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var se common.ServiceError
	if errors.As(err, &se) {
		return &dns.ServiceError{
			StatusCode: se.GetHTTPStatusCode(),
			Code:       se.GetCode(),
			Message:    se.GetMessage(),
			RequestID:  se.GetOpcRequestID(),
		}
	}
	return err
}

// GetZoneRecords lists every record in the zone, one page at a time.
func (p *Provider) GetZoneRecords(ctx context.Context, zone dns.ZoneRef, compartmentID string) ([]dns.Record, error) {
	var (
		all  []dns.Record
		page *string
	)
	for {
		req := ocidns.GetZoneRecordsRequest{
			ZoneNameOrId: common.String(zone.String()),
			Limit:        common.Int64(p.pageLimit),
			Page:         page,
		}
		if compartmentID != "" {
			req.CompartmentId = common.String(compartmentID)
		}

		var resp ocidns.GetZoneRecordsResponse
		err := dns.CallWithBackoff(p.log, p.backoff, "GetZoneRecords", func() error {
			var err error
			resp, err = p.api.GetZoneRecords(ctx, req)
			return convertError(err)
		})
		if err != nil {
			return nil, err
		}

		p.log.V(1).Info("fetched zone records page", "zone", zone.String(), "count", len(resp.Items), "hasNext", resp.OpcNextPage != nil)
		all = append(all, fromSDKRecords(resp.Items)...)
		if resp.OpcNextPage == nil || *resp.OpcNextPage == "" {
			return all, nil
		}
		page = resp.OpcNextPage
	}
}

// UpdateZoneRecords replaces the zone's records with items.
func (p *Provider) UpdateZoneRecords(ctx context.Context, zone dns.ZoneRef, items []dns.RecordDetails) ([]dns.Record, error) {
	p.log.Info("updating zone records", "zone", zone.String(), "items", len(items))

	req := ocidns.UpdateZoneRecordsRequest{
		ZoneNameOrId: common.String(zone.String()),
		UpdateZoneRecordsDetails: ocidns.UpdateZoneRecordsDetails{
			Items: toSDKDetails(items),
		},
	}
	var resp ocidns.UpdateZoneRecordsResponse
	err := dns.CallWithBackoff(p.log, p.backoff, "UpdateZoneRecords", func() error {
		var err error
		resp, err = p.api.UpdateZoneRecords(ctx, req)
		return convertError(err)
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("zone records updated", "zone", zone.String(), "records", len(resp.Items))
	return fromSDKRecords(resp.Items), nil
}

// PatchZoneRecords applies ops to the zone's records.
func (p *Provider) PatchZoneRecords(ctx context.Context, zone dns.ZoneRef, ops []dns.RecordOperation) ([]dns.Record, error) {
	p.log.Info("patching zone records", "zone", zone.String(), "operations", len(ops))

	sdkOps, err := toSDKOperations(ops)
	if err != nil {
		return nil, err
	}
	req := ocidns.PatchZoneRecordsRequest{
		ZoneNameOrId: common.String(zone.String()),
		PatchZoneRecordsDetails: ocidns.PatchZoneRecordsDetails{
			Items: sdkOps,
		},
	}
	var resp ocidns.PatchZoneRecordsResponse
	err = dns.CallWithBackoff(p.log, p.backoff, "PatchZoneRecords", func() error {
		var err error
		resp, err = p.api.PatchZoneRecords(ctx, req)
		return convertError(err)
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("zone records patched", "zone", zone.String(), "records", len(resp.Items))
	return fromSDKRecords(resp.Items), nil
}

func toSDKDetails(items []dns.RecordDetails) []ocidns.RecordDetails {
	out := make([]ocidns.RecordDetails, 0, len(items))
	for _, it := range items {
		out = append(out, ocidns.RecordDetails{
			Domain:       it.Domain,
			RecordHash:   it.RecordHash,
			IsProtected:  it.IsProtected,
			Rdata:        it.Rdata,
			RrsetVersion: it.RrsetVersion,
			Rtype:        it.Rtype,
			Ttl:          it.TTL,
		})
	}
	return out
}

func toSDKOperations(ops []dns.RecordOperation) ([]ocidns.RecordOperation, error) {
	out := make([]ocidns.RecordOperation, 0, len(ops))
	for i, op := range ops {
		sdkOp := ocidns.RecordOperation{
			Domain:       op.Domain,
			RecordHash:   op.RecordHash,
			IsProtected:  op.IsProtected,
			Rdata:        op.Rdata,
			RrsetVersion: op.RrsetVersion,
			Rtype:        op.Rtype,
			Ttl:          op.TTL,
		}
		if op.Operation != "" {
			enum, ok := ocidns.GetMappingRecordOperationOperationEnum(string(op.Operation))
			if !ok {
				return nil, fmt.Errorf("oci: items[%d]: unsupported operation %q", i, op.Operation)
			}
			sdkOp.Operation = enum
		}
		out = append(out, sdkOp)
	}
	return out, nil
}

func fromSDKRecords(items []ocidns.Record) []dns.Record {
	out := make([]dns.Record, 0, len(items))
	for _, it := range items {
		r := dns.Record{}
		if it.Domain != nil {
			r.Domain = *it.Domain
		}
		if it.RecordHash != nil {
			r.RecordHash = *it.RecordHash
		}
		if it.IsProtected != nil {
			r.IsProtected = *it.IsProtected
		}
		if it.Rdata != nil {
			r.Rdata = *it.Rdata
		}
		if it.RrsetVersion != nil {
			r.RrsetVersion = *it.RrsetVersion
		}
		if it.Rtype != nil {
			r.Rtype = *it.Rtype
		}
		if it.Ttl != nil {
			r.TTL = *it.Ttl
		}
		out = append(out, r)
	}
	return out
}
