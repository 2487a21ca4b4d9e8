// Package migration moves legacy device configuration to attachments.
//
// Attachment payloads embedded in device tags are assigned as they are. When enabled, the
// configuration of the first iBeacon advertiser of a device is turned into an attachment too.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/estimote/attachments-migration/internal/cloud"
	"github.com/estimote/attachments-migration/internal/constants"
	"github.com/estimote/attachments-migration/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidParallel is returned when the number of concurrent devices is out of bounds.
var ErrInvalidParallel = fmt.Errorf("parallel must be between 1 and %d", constants.MaxParallel)

var tracer = otel.Tracer(constants.TracerName)

type cloudClient interface {
	ListDevices(ctx context.Context) ([]cloud.Device, error)
	UpsertAttachment(ctx context.Context, deviceID string, payload cloud.Payload) (cloud.Outcome, error)
}

// Config is the configuration of a migration run.
type Config struct {
	// IncludeIBeacon enables the iBeacon attachments.
	IncludeIBeacon bool
	// Parallel is the number of devices migrated concurrently.
	Parallel uint
	// DryRun is only reported in the summary: the client decides whether writes happen.
	DryRun bool
}

// Migrator migrates every device of an application.
type Migrator struct {
	client cloudClient
	conf   Config
	runID  string
	log    *slog.Logger
}

type options struct {
	logger *slog.Logger
	runID  string
}

// Options represents an optional function to override Migrator default values.
type Options func(*options)

// WithLogger sets the logger used by the migrator.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a new Migrator using client to read devices and write attachments.
func New(client cloudClient, conf Config, args ...Options) (Migrator, error) {
	if conf.Parallel < 1 || conf.Parallel > constants.MaxParallel {
		return Migrator{}, ErrInvalidParallel
	}

	opts := options{
		logger: slog.Default(),
		runID:  uuid.NewString(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Migrator{
		client: client,
		conf:   conf,
		runID:  opts.runID,
		log:    opts.logger.With("run", opts.runID),
	}, nil
}

// Run migrates every device listed by the cloud.
//
// The first error aborts the run and is returned along with the summary of what was done
// until then. Devices already migrated are left as they are.
func (m Migrator) Run(ctx context.Context) (s Summary, err error) {
	ctx, span := tracer.Start(ctx, "migrate")
	span.SetAttributes(attribute.String("run", m.runID), attribute.Bool("ibeacon", m.conf.IncludeIBeacon))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	s = Summary{RunID: m.runID, DryRun: m.conf.DryRun, IBeaconIncluded: m.conf.IncludeIBeacon}
	m.log.Info("Starting migration", "ibeacon", m.conf.IncludeIBeacon, "parallel", m.conf.Parallel, "dryRun", m.conf.DryRun)

	devices, err := m.client.ListDevices(ctx)
	if err != nil {
		return s, err
	}
	s.Devices = len(devices)

	if m.conf.Parallel == 1 {
		for _, d := range devices {
			if err := ctx.Err(); err != nil {
				return s, err
			}
			r, err := m.migrateDevice(ctx, d)
			s.add(r)
			if err != nil {
				return s, err
			}
		}
	} else if err := m.runConcurrently(ctx, devices, &s); err != nil {
		return s, err
	}

	m.log.Info("Migration done", "devices", s.Devices, "created", s.Created, "updated", s.Updated)
	return s, nil
}

// runConcurrently migrates devices over a bounded number of goroutines.
// All the requests of a device are sent in order by the same goroutine.
func (m Migrator) runConcurrently(ctx context.Context, devices []cloud.Device, s *Summary) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(int(m.conf.Parallel))

	mu := &sync.Mutex{}
	for _, d := range devices {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := m.migrateDevice(gctx, d)

			mu.Lock()
			defer mu.Unlock()
			s.add(r)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// migrateDevice assigns every attachment found in the device configuration.
func (m Migrator) migrateDevice(ctx context.Context, d cloud.Device) (r deviceResult, err error) {
	id := d.Key()

	ctx, span := tracer.Start(ctx, "migrate-device")
	span.SetAttributes(attribute.String("device", id))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := m.log.With("device", id)
	if id == "" {
		log.Warn("Skipping device without identifier")
		r.skippedDevice = true
		return r, nil
	}
	log.Debug("Migrating device", "tags", len(d.Shadow.Tags))

	for i, tag := range d.Shadow.Tags {
		p, ok, err := ParseTag(tag)
		if errors.Is(err, ErrMalformedTag) {
			log.Warn("Skipping malformed tag", "index", i, "error", err)
			r.skippedTags++
			continue
		}
		if !ok {
			continue
		}

		o, err := m.client.UpsertAttachment(ctx, id, p)
		if err != nil {
			return r, err
		}
		r.record(o)
		r.tags++
	}

	if !m.conf.IncludeIBeacon {
		return r, nil
	}

	beacons := d.Settings.Advertisers.IBeacon
	if len(beacons) == 0 {
		log.Debug("No iBeacon advertiser, skipping iBeacon attachment")
		return r, nil
	}
	if !beacons[0].Enabled {
		log.Debug("iBeacon advertiser disabled, skipping iBeacon attachment")
		return r, nil
	}

	payload, err := IBeaconPayload(beacons[0])
	if err != nil {
		log.Warn("Skipping iBeacon attachment", "error", err)
		return r, nil
	}

	o, err := m.client.UpsertAttachment(ctx, id, payload)
	if err != nil {
		return r, err
	}
	r.record(o)
	r.ibeacon++

	return r, nil
}
