// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires configuration, fix providers, geocoding and output into the one-shot
// location query and the long-running watch mode.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/wneessen/place/internal/config"
	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geocode"
	"github.com/wneessen/place/internal/http"
	"github.com/wneessen/place/internal/location"
	"github.com/wneessen/place/internal/logger"
	"github.com/wneessen/place/internal/metrics"
	"github.com/wneessen/place/internal/presenter"
)

const (
	trackKey         = "place"
	subscriberBuffer = 32
)

type Service struct {
	SignalSrc signalSource

	config       *config.Config
	logger       *logger.Logger
	http         *http.Client
	geobus       *geobus.GeoBus
	orchestrator *geobus.Orchestrator
	geocoder     geocode.Geocoder
	locator      *location.Locator
	presenter    *presenter.Presenter
	metrics      *metrics.Metrics
	scheduler    gocron.Scheduler
	closers      []io.Closer

	outputLock sync.Mutex
	output     io.Writer

	locationLock sync.RWMutex
	location     *location.Location
}

type Option func(*Service)

// WithHTTPClient replaces the HTTP client shared by the network providers and geocoders.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.http = client
		}
	}
}

// WithOutput sets the writer rendered locations are written to. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Service) {
		if w != nil {
			s.output = w
		}
	}
}

func New(ctx context.Context, conf *config.Config, log *logger.Logger, pres *presenter.Presenter,
	opts ...Option,
) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if pres == nil {
		return nil, errors.New("presenter is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	service := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		logger:    log,
		http:      http.New(log),
		geobus:    geobus.New(log),
		presenter: pres,
		metrics:   metrics.New(),
		scheduler: scheduler,
		output:    os.Stdout,
	}
	for _, opt := range opts {
		opt(service)
	}

	service.geocoder, err = service.selectGeocodeProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocoder: %w", err)
	}
	provider, err := service.selectGeobusProviders(service.geocoder)
	if err != nil {
		_ = service.Close()
		return nil, fmt.Errorf("failed to create geolocation providers: %w", err)
	}
	service.orchestrator = service.geobus.NewOrchestrator(provider)
	service.locator = location.New(service.orchestrator,
		location.WithAuthorizer(service.selectAuthorizer()),
		location.WithGeocoder(service.geocoder),
		location.WithRecorder(service.metrics),
		location.WithLogger(log),
		location.WithTimeout(conf.Locate.Timeout),
		location.WithGeocodeTimeout(conf.GeoCoder.Timeout),
	)

	return service, nil
}

// Options returns the query options configured for the service.
func (s *Service) Options() location.Options {
	return location.Options{
		WithPlacemark:   s.config.Locate.Placemark,
		Timeout:         s.config.Locate.Timeout,
		DesiredAccuracy: s.config.Locate.DesiredAccuracy,
	}
}

// CurrentLocation runs a single location query. The returned error is nil or a location.Status.
func (s *Service) CurrentLocation(ctx context.Context, opts location.Options) (*location.Location, error) {
	return s.locator.CurrentLocation(ctx, opts)
}

// Render writes loc to the output of the service.
func (s *Service) Render(loc *location.Location) error {
	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	return s.presenter.Render(s.output, loc)
}

// Run tracks the location until ctx is done, printing every significant change and
// re-printing the current location every output interval.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Watch.OutputInterval, s.printLocation,
		"location_output_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	if addr := s.config.Watch.MetricsAddr; addr != "" {
		go func() {
			if err := s.metrics.Serve(ctx, addr, s.logger); err != nil {
				s.logger.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	sub, unsub := s.geobus.SubscribeAll(subscriberBuffer)
	go s.processLocationUpdates(ctx, sub)
	go s.orchestrator.Track(ctx, trackKey)
	go s.monitorSleepResume(ctx)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1)
	go s.HandleSignals(ctx, sigChan)

	<-ctx.Done()
	s.SignalSrc.Stop(sigChan)
	unsub()
	return s.scheduler.Shutdown()
}

// Close releases the resources held by the geocoder cache.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// printLocation re-prints the last location while the fix behind it has not expired.
func (s *Service) printLocation(context.Context) {
	if _, ok := s.geobus.Best(trackKey); !ok {
		s.logger.Debug("no current location fix, skipping output")
		return
	}
	s.locationLock.RLock()
	loc := s.location
	s.locationLock.RUnlock()
	if loc == nil {
		return
	}
	if err := s.Render(loc); err != nil {
		s.logger.Error("failed to render location", logger.Err(err))
	}
}

func (s *Service) setLocation(loc *location.Location) {
	s.locationLock.Lock()
	s.location = loc
	s.locationLock.Unlock()
	if err := s.Render(loc); err != nil {
		s.logger.Error("failed to render location", logger.Err(err))
	}
}

// processLocationUpdates turns the fixes published on the bus into locations.
func (s *Service) processLocationUpdates(ctx context.Context, sub <-chan geobus.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-sub:
			if !ok {
				return
			}
			s.metrics.FixPublished(r.Source)
			s.logger.Debug("received geolocation update", slog.Float64("lat", r.Lat),
				slog.Float64("lon", r.Lon), slog.Float64("accuracy", r.AccuracyMeters),
				slog.String("source", r.Source))
			s.setLocation(s.locator.Describe(ctx, r, s.config.Locate.Placemark))
		}
	}
}

// refreshLocation runs a one-shot query outside of the tracking loop.
func (s *Service) refreshLocation(ctx context.Context) {
	loc, err := s.CurrentLocation(ctx, s.Options())
	if err != nil {
		s.logger.Warn("failed to refresh location", slog.String("status", location.StatusOf(err).String()),
			logger.Err(err))
		return
	}
	s.setLocation(loc)
}
