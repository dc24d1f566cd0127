package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/config"
	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
	_ "github.com/yuriy-kovalchuk/yk-zone-records/internal/dns/providers"
	"github.com/yuriy-kovalchuk/yk-zone-records/internal/metrics"
	"github.com/yuriy-kovalchuk/yk-zone-records/internal/zonerecords"
)

var Version = "dev"

type options struct {
	paramsPath      string
	providerConfig  string
	name            string
	zoneID          string
	compartmentID   string
	timeout         time.Duration
	metricsTextfile string
}

func main() {
	var o options
	pflag.StringVar(&o.paramsPath, "params", "-", "path to the parameters document (YAML or JSON), or - for stdin.")
	pflag.StringVar(&o.providerConfig, "provider-config", "", "path to the DNS provider config. defaults to $DNS_PROVIDER_PATH, then "+config.DefaultProviderConfigPath+".")
	pflag.StringVar(&o.name, "name", "", "zone name. overrides name in the parameters document.")
	pflag.StringVar(&o.zoneID, "zone-id", "", "zone OCID. overrides zone_id in the parameters document.")
	pflag.StringVar(&o.compartmentID, "compartment-id", "", "compartment OCID used when reading the zone.")
	pflag.DurationVar(&o.timeout, "timeout", 0, "abort the run after this long. 0 means no limit.")
	pflag.StringVar(&o.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run.")

	opts := zap.Options{
		Development: true,
		DestWriter:  os.Stderr,
	}
	opts.BindFlags(flag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	ctrllog.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	result, err := run(o)
	if err != nil {
		if werr := writeFailure(os.Stdout, err); werr != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", werr)
		}
		os.Exit(1)
	}
	if err := writeResult(os.Stdout, result); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) (zonerecords.Result, error) {
	log := ctrllog.Log.WithName("setup")
	log.Info("starting zone-records", "version", Version)

	params, err := config.LoadParamsFromPath(o.paramsPath)
	if err != nil {
		return zonerecords.Result{}, fmt.Errorf("unable to load parameters: %w", err)
	}
	o.applyOverrides(params)
	if err := zonerecords.Validate(params); err != nil {
		return zonerecords.Result{}, err
	}

	providerPath := config.ProviderConfigPath(o.providerConfig)
	providerCfg, err := config.LoadProviderConfig(providerPath)
	if err != nil {
		return zonerecords.Result{}, fmt.Errorf("%w: unable to load provider config: %w", dns.ErrProviderUnavailable, err)
	}
	log.Info("loaded provider config", "path", providerPath, "provider", providerCfg.Provider)

	client, err := dns.NewClient(providerCfg.Provider, ctrllog.Log.WithName("dns-"+providerCfg.Provider), providerCfg.Settings)
	if err != nil {
		return zonerecords.Result{}, err
	}

	m := metrics.New()
	mutator := &zonerecords.Mutator{
		Client: m.Instrument(client),
		Log:    ctrllog.Log.WithName("zone-records"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result, runErr := mutator.Run(ctx, params)
	if runErr == nil {
		m.ObserveResult(result.Changed, len(result.ZoneRecords))
	}
	if o.metricsTextfile != "" {
		if err := m.WriteTextfile(o.metricsTextfile); err != nil {
			log.Error(err, "unable to write metrics textfile", "path", o.metricsTextfile)
		}
	}
	if runErr != nil {
		var se *dns.ServiceError
		if errors.As(runErr, &se) {
			log.Error(runErr, "zone records request failed", "status", se.StatusCode, "code", se.Code, "requestID", se.RequestID)
		}
		return zonerecords.Result{}, runErr
	}
	return result, nil
}

// applyOverrides copies zone flags onto params. A flag replaces the
// document's value together with its alias.
func (o options) applyOverrides(p *config.Params) {
	if o.name != "" {
		p.Name, p.ZoneName = o.name, ""
	}
	if o.zoneID != "" {
		p.ZoneID, p.ID = o.zoneID, ""
	}
	if o.compartmentID != "" {
		p.CompartmentID = o.compartmentID
	}
}
