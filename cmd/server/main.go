// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the StreamWarden server.
//
// StreamWarden polls configured Plex and Jellyfin servers for active playback
// sessions, tracks their lifecycle in DuckDB, evaluates anomaly-detection
// rules (impossible travel, simultaneous locations, device velocity,
// concurrent streams, geo restriction), and publishes lifecycle and violation
// events over NATS.
//
// The server initializes in this order:
//
//  1. Configuration: Koanf v2 layered load (defaults, YAML file, env vars)
//  2. Database: DuckDB session, user, rule, and violation storage
//  3. Cache: Badger (or in-memory) active-session snapshot
//  4. Geolocation: MMDB / MaxMind web / ip-api.com provider chain
//  5. Events: NATS publisher, optionally over an embedded server
//  6. Poller and HTTP admin API, both under a suture supervisor
//
// Shutdown is graceful on SIGINT/SIGTERM: the in-flight poll tick completes,
// the HTTP server drains, then storage closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/streamwarden/streamwarden/internal/api"
	"github.com/streamwarden/streamwarden/internal/cache"
	"github.com/streamwarden/streamwarden/internal/config"
	"github.com/streamwarden/streamwarden/internal/detection"
	"github.com/streamwarden/streamwarden/internal/events"
	"github.com/streamwarden/streamwarden/internal/geo"
	"github.com/streamwarden/streamwarden/internal/identity"
	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/models"
	"github.com/streamwarden/streamwarden/internal/poller"
	"github.com/streamwarden/streamwarden/internal/provider"
	"github.com/streamwarden/streamwarden/internal/store"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Int("servers", len(cfg.Servers)).Msg("starting streamwarden")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("database close failed")
		}
	}()

	c, err := openCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logging.Warn().Err(err).Msg("cache close failed")
		}
	}()

	geoResolver, closeGeo, err := buildGeoResolver(cfg.GeoIP, st)
	if err != nil {
		return fmt.Errorf("build geo resolver: %w", err)
	}
	defer closeGeo()

	registry, err := provider.NewRegistry(configuredServers(cfg))
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}

	publisher, closeEvents, err := buildPublisher(cfg.NATS)
	if err != nil {
		return fmt.Errorf("build event publisher: %w", err)
	}
	defer closeEvents()

	orch := poller.New(
		poller.Config{
			Interval:           cfg.Poller.Interval,
			HistoryWindowHours: cfg.Poller.HistoryWindowHours,
			SeedFromStore:      cfg.Poller.SeedFromStore,
		},
		registry.Adapters(),
		st,
		identity.NewResolver(st),
		geoResolver,
		c,
		detection.NewSink(st, st),
		publisher,
	)

	router := api.NewRouter(api.Config{
		RateLimitRequests: cfg.HTTP.RateLimitRequests,
		RateLimitWindow:   cfg.HTTP.RateLimitWindow,
	}, orch)

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	sup := suture.New("streamwarden", suture.Spec{
		EventHook: handler.MustHook(),
	})
	sup.Add(orch)
	sup.Add(&httpService{
		addr:    net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		handler: router.Handler(),
	})

	err = sup.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("shutdown complete")
	return nil
}

func configuredServers(cfg *config.Config) []models.Server {
	servers := make([]models.Server, 0, len(cfg.Servers))
	for i := range cfg.Servers {
		sc := &cfg.Servers[i]
		servers = append(servers, models.Server{
			ID:    sc.DerivedID(),
			Name:  sc.Name,
			Type:  models.ProviderType(sc.Type),
			URL:   sc.URL,
			Token: sc.Token,
		})
	}
	return servers
}

func openCache(cfg config.CacheConfig) (cache.Cache, error) {
	if cfg.Path == "" {
		logging.Info().Msg("using in-memory session cache")
		return cache.NewMemoryCache(), nil
	}
	return cache.NewBadgerCache(cfg.Path)
}

// buildGeoResolver assembles the provider chain in preference order: local
// MMDB, MaxMind web service, ip-api.com. The returned closer releases the
// MMDB handle.
func buildGeoResolver(cfg config.GeoIPConfig, st *store.Store) (*geo.Resolver, func(), error) {
	var providers []geo.Provider
	closer := func() {}

	if cfg.MMDBPath != "" {
		mmdb, err := geo.NewMMDBProvider(cfg.MMDBPath)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, mmdb)
		closer = func() {
			if err := mmdb.Close(); err != nil {
				logging.Warn().Err(err).Msg("mmdb close failed")
			}
		}
	}
	if cfg.MaxMindAccountID != "" && cfg.MaxMindLicenseKey != "" {
		providers = append(providers, geo.NewMaxMindWebProvider(cfg.MaxMindAccountID, cfg.MaxMindLicenseKey))
	}
	if cfg.IPAPIEnabled {
		providers = append(providers, geo.NewIPAPIProvider())
	}
	if len(providers) == 0 {
		logging.Warn().Msg("no geolocation providers configured; sessions will have unknown locations")
	}

	return geo.NewResolver(st, cfg.CacheTTL, providers...), closer, nil
}

// buildPublisher wires the NATS event publisher. With NATS disabled events
// are dropped; with the embedded option an in-process server is started and
// the publisher connects to it.
func buildPublisher(cfg config.NATSConfig) (*events.Publisher, func(), error) {
	if !cfg.Enabled {
		return events.NewPublisher(nil), func() {}, nil
	}

	url := cfg.URL
	closer := func() {}
	if cfg.Embedded {
		embedded, err := events.NewEmbeddedServer()
		if err != nil {
			return nil, nil, err
		}
		url = embedded.ClientURL()
		closer = embedded.Shutdown
		logging.Info().Str("url", url).Msg("embedded NATS server started")
	}

	transport, err := events.NewNATSPublisher(url)
	if err != nil {
		closer()
		return nil, nil, err
	}
	pub := events.NewPublisher(transport)
	return pub, func() {
		if err := pub.Close(); err != nil {
			logging.Warn().Err(err).Msg("event publisher close failed")
		}
		closer()
	}, nil
}

// httpService runs the admin HTTP server under suture supervision.
type httpService struct {
	addr    string
	handler http.Handler
}

func (s *httpService) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http shutdown failed")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *httpService) String() string { return "http-server" }

var _ suture.Service = (*httpService)(nil)
var _ api.PollerControl = (*poller.Orchestrator)(nil)
