package httpapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
)

func init() {
	dns.Register("httpapi", func(log logr.Logger, settings map[string]string) (dns.Client, error) {
		return New(log, settings)
	})
}

const defaultPageLimit = 100

// Provider implements dns.Client over the zone-records REST resource
// (/zones/{zoneNameOrId}/records) using plain HTTP authentication.
type Provider struct {
	baseURL   string
	token     string
	apiKey    string
	apiSecret string
	pageLimit int
	backoff   wait.Backoff
	client    *http.Client
	log       logr.Logger
}

// New creates an HTTP zone-records provider from the given settings map.
// Required settings: base_url, and either token or api_key plus api_secret.
// Optional settings: page_limit (default 100), max_retries (default 4),
// timeout (Go duration, default none), skip_tls_verify (default false).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		return nil, fmt.Errorf("httpapi: missing required setting 'base_url'")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("httpapi: invalid base_url %q: %w", baseURL, err)
	}

	token := settings["token"]
	apiKey := settings["api_key"]
	apiSecret := settings["api_secret"]
	if token == "" && (apiKey == "" || apiSecret == "") {
		return nil, fmt.Errorf("httpapi: either 'token' or both 'api_key' and 'api_secret' must be set")
	}

	pageLimit, err := dns.IntSetting(settings, "page_limit", defaultPageLimit)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	if pageLimit == 0 {
		pageLimit = defaultPageLimit
	}
	maxRetries, err := dns.IntSetting(settings, "max_retries", dns.DefaultMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}

	var timeout time.Duration
	if v := settings["timeout"]; v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("httpapi: invalid timeout %q: %w", v, err)
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if dns.BoolSetting(settings, "skip_tls_verify") {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Provider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		pageLimit: pageLimit,
		backoff:   dns.NewBackoff(maxRetries),
		client:    &http.Client{Transport: transport, Timeout: timeout},
		log:       log,
	}, nil
}

// record is the wire shape of a record and of a record operation.
type record struct {
	Domain       *string `json:"domain,omitempty"`
	RecordHash   *string `json:"recordHash,omitempty"`
	IsProtected  *bool   `json:"isProtected,omitempty"`
	Rdata        *string `json:"rdata,omitempty"`
	RrsetVersion *string `json:"rrsetVersion,omitempty"`
	Rtype        *string `json:"rtype,omitempty"`
	TTL          *int    `json:"ttl,omitempty"`
	Operation    string  `json:"operation,omitempty"`
}

// recordCollection is the body of every zone-records request and response.
type recordCollection struct {
	Items []record `json:"items"`
}

// errorBody is the shape of a service error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func fromDetails(d dns.RecordDetails) record {
	return record{
		Domain:       d.Domain,
		RecordHash:   d.RecordHash,
		IsProtected:  d.IsProtected,
		Rdata:        d.Rdata,
		RrsetVersion: d.RrsetVersion,
		Rtype:        d.Rtype,
		TTL:          d.TTL,
	}
}

func (r record) toRecord() dns.Record {
	out := dns.Record{}
	if r.Domain != nil {
		out.Domain = *r.Domain
	}
	if r.RecordHash != nil {
		out.RecordHash = *r.RecordHash
	}
	if r.IsProtected != nil {
		out.IsProtected = *r.IsProtected
	}
	if r.Rdata != nil {
		out.Rdata = *r.Rdata
	}
	if r.RrsetVersion != nil {
		out.RrsetVersion = *r.RrsetVersion
	}
	if r.Rtype != nil {
		out.Rtype = *r.Rtype
	}
	if r.TTL != nil {
		out.TTL = *r.TTL
	}
	return out
}

func toRecords(items []record) []dns.Record {
	out := make([]dns.Record, 0, len(items))
	for _, it := range items {
		out = append(out, it.toRecord())
	}
	return out
}

func (p *Provider) recordsPath(zone dns.ZoneRef) string {
	return "zones/" + url.PathEscape(zone.String()) + "/records"
}

// doRequest builds and executes an HTTP request against the zone-records API.
func (p *Provider) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, dns.Permanent(fmt.Errorf("httpapi: marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	u := p.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, dns.Permanent(fmt.Errorf("httpapi: build request: %w", err))
	}

	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	} else {
		req.SetBasicAuth(p.apiKey, p.apiSecret)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// decode reads a successful response into v, or turns an error response
// into a *dns.ServiceError.
func decode(resp *http.Response, v interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, readErr := io.ReadAll(resp.Body)
		se := &dns.ServiceError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("opc-request-id"),
		}
		var eb errorBody
		if err := json.Unmarshal(data, &eb); err == nil && (eb.Code != "" || eb.Message != "") {
			se.Code = eb.Code
			se.Message = eb.Message
		} else {
			se.Message = strings.TrimSpace(string(data))
		}
		if readErr != nil {
			se.Message = strings.TrimSpace(se.Message + " (reading error body: " + readErr.Error() + ")")
		}
		return se
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return dns.Permanent(fmt.Errorf("httpapi: decode response: %w", err))
	}
	return nil
}

// GetZoneRecords lists every record in the zone, one page at a time.
func (p *Provider) GetZoneRecords(ctx context.Context, zone dns.ZoneRef, compartmentID string) ([]dns.Record, error) {
	var (
		all  []dns.Record
		page string
	)
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(p.pageLimit))
		if compartmentID != "" {
			query.Set("compartmentId", compartmentID)
		}
		if page != "" {
			query.Set("page", page)
		}

		var coll recordCollection
		var next string
		err := dns.CallWithBackoff(p.log, p.backoff, "GetZoneRecords", func() error {
			resp, err := p.doRequest(ctx, http.MethodGet, p.recordsPath(zone), query, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			coll = recordCollection{}
			if err := decode(resp, &coll); err != nil {
				return err
			}
			next = resp.Header.Get("opc-next-page")
			return nil
		})
		if err != nil {
			return nil, err
		}

		p.log.V(1).Info("fetched zone records page", "zone", zone.String(), "count", len(coll.Items), "hasNext", next != "")
		all = append(all, toRecords(coll.Items)...)
		if next == "" {
			return all, nil
		}
		page = next
	}
}

// UpdateZoneRecords replaces the zone's records with items.
func (p *Provider) UpdateZoneRecords(ctx context.Context, zone dns.ZoneRef, items []dns.RecordDetails) ([]dns.Record, error) {
	p.log.Info("updating zone records", "zone", zone.String(), "items", len(items))

	body := recordCollection{Items: make([]record, 0, len(items))}
	for _, it := range items {
		body.Items = append(body.Items, fromDetails(it))
	}
	return p.modify(ctx, http.MethodPut, "UpdateZoneRecords", zone, body)
}

// PatchZoneRecords applies ops to the zone's records.
func (p *Provider) PatchZoneRecords(ctx context.Context, zone dns.ZoneRef, ops []dns.RecordOperation) ([]dns.Record, error) {
	p.log.Info("patching zone records", "zone", zone.String(), "operations", len(ops))

	body := recordCollection{Items: make([]record, 0, len(ops))}
	for _, op := range ops {
		r := fromDetails(op.RecordDetails)
		r.Operation = string(op.Operation)
		body.Items = append(body.Items, r)
	}
	return p.modify(ctx, http.MethodPatch, "PatchZoneRecords", zone, body)
}

func (p *Provider) modify(ctx context.Context, method, op string, zone dns.ZoneRef, body recordCollection) ([]dns.Record, error) {
	var coll recordCollection
	err := dns.CallWithBackoff(p.log, p.backoff, op, func() error {
		resp, err := p.doRequest(ctx, method, p.recordsPath(zone), nil, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		coll = recordCollection{}
		return decode(resp, &coll)
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("zone records modified", "zone", zone.String(), "operation", op, "records", len(coll.Items))
	return toRecords(coll.Items), nil
}
