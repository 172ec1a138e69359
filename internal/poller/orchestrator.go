// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamwarden/streamwarden/internal/cache"
	"github.com/streamwarden/streamwarden/internal/detection"
	"github.com/streamwarden/streamwarden/internal/events"
	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/models"
	"github.com/streamwarden/streamwarden/internal/provider"
	"github.com/streamwarden/streamwarden/internal/store"
)

// SessionStore is the slice of the store the orchestrator needs.
type SessionStore interface {
	InsertSession(ctx context.Context, session *models.Session) (string, error)
	PatchSession(ctx context.Context, serverID, sessionKey string, patch *store.SessionPatch) error
	CloseSession(ctx context.Context, id string, stoppedAt time.Time, durationMs int64) error
	FindRecentByUser(ctx context.Context, userID string, sinceHours int) ([]models.Session, error)
	FindOpenSessions(ctx context.Context) ([]models.Session, error)
	FindActiveRules(ctx context.Context) ([]detection.Rule, error)
}

// IdentityResolver maps provider accounts to local user ids.
type IdentityResolver interface {
	Resolve(ctx context.Context, serverID, externalID, username, thumbURL string) (string, error)
}

// GeoResolver maps IP addresses to locations. Never fails; unknown addresses
// come back as the zero location.
type GeoResolver interface {
	Resolve(ctx context.Context, rawIP string) models.Geolocation
}

// ViolationRecorder persists a violated rule result and applies the trust
// penalty.
type ViolationRecorder interface {
	Record(ctx context.Context, session *models.Session, result *detection.Result) (*detection.Violation, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Interval between timer-driven ticks.
	Interval time.Duration

	// HistoryWindowHours bounds the per-user history fed to rule
	// evaluation.
	HistoryWindowHours int

	// SeedFromStore preloads the cache with the store's open sessions on
	// startup. Off by default: after downtime, open rows in the store may
	// be long dead, and seeding them suppresses the started events a
	// fresh observation would emit.
	SeedFromStore bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:           30 * time.Second,
		HistoryWindowHours: 24,
	}
}

// Status is a point-in-time snapshot of the orchestrator for the admin API.
type Status struct {
	Running      bool       `json:"running"`
	Enabled      bool       `json:"enabled"`
	TickCount    uint64     `json:"tick_count"`
	LastTickAt   *time.Time `json:"last_tick_at,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// Orchestrator owns the tick loop. It implements suture.Service; run it
// under a supervisor.
type Orchestrator struct {
	cfg       Config
	adapters  []provider.Adapter
	sessions  SessionStore
	identity  IdentityResolver
	geo       GeoResolver
	cache     cache.Cache
	engine    *detection.Engine
	sink      ViolationRecorder
	publisher *events.Publisher

	// tickMu serializes ticks: timer, manual trigger, and seed never
	// overlap.
	tickMu  sync.Mutex
	trigger chan struct{}
	enabled atomic.Bool
	running atomic.Bool

	statusMu     sync.RWMutex
	tickCount    uint64
	lastTickAt   time.Time
	lastDuration time.Duration
	lastError    string
}

// New creates an orchestrator. All collaborators are required except the
// publisher, which may wrap a nil transport.
func New(cfg Config, adapters []provider.Adapter, sessions SessionStore, identity IdentityResolver,
	geo GeoResolver, c cache.Cache, sink ViolationRecorder, publisher *events.Publisher) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.HistoryWindowHours <= 0 {
		cfg.HistoryWindowHours = DefaultConfig().HistoryWindowHours
	}
	o := &Orchestrator{
		cfg:       cfg,
		adapters:  adapters,
		sessions:  sessions,
		identity:  identity,
		geo:       geo,
		cache:     c,
		engine:    detection.NewEngine(),
		sink:      sink,
		publisher: publisher,
		trigger:   make(chan struct{}, 1),
	}
	o.enabled.Store(true)
	return o
}

// Serve runs the tick loop until the context is canceled. An in-flight tick
// always runs to completion: aborting mid-tick would leave the cache updated
// for some servers but not others and desynchronize the next diff.
func (o *Orchestrator) Serve(ctx context.Context) error {
	o.running.Store(true)
	defer o.running.Store(false)

	if o.cfg.SeedFromStore {
		o.seed(ctx)
	}

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", o.cfg.Interval).Msg("poller started")

	// First tick immediately; waiting a full interval after startup just
	// delays the first observation.
	if o.enabled.Load() {
		o.runTick(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("poller stopping")
			return ctx.Err()
		case <-ticker.C:
			if o.enabled.Load() {
				o.runTick(ctx, "timer")
			}
		case <-o.trigger:
			o.runTick(ctx, "manual")
		}
	}
}

// Start enables timer-driven ticking.
func (o *Orchestrator) Start() {
	o.enabled.Store(true)
	logging.Info().Msg("poller enabled")
}

// Stop disables timer-driven ticking. The loop keeps running so a later
// Start or Trigger works; an in-flight tick finishes normally.
func (o *Orchestrator) Stop() {
	o.enabled.Store(false)
	logging.Info().Msg("poller disabled")
}

// Trigger requests an immediate tick. It works even while ticking is
// disabled, since it is an explicit administrative action. Returns false if
// the loop is not running or a trigger is already pending.
func (o *Orchestrator) Trigger() bool {
	if !o.running.Load() {
		return false
	}
	select {
	case o.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status reports the orchestrator's current state.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	s := Status{
		Running:   o.running.Load(),
		Enabled:   o.enabled.Load(),
		TickCount: o.tickCount,
		LastError: o.lastError,
	}
	if !o.lastTickAt.IsZero() {
		at := o.lastTickAt
		s.LastTickAt = &at
		s.LastDuration = o.lastDuration.String()
	}
	return s
}

// seed preloads the cache from the store's open sessions so a restart does
// not re-announce everything as started.
func (o *Orchestrator) seed(ctx context.Context) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	cached, err := o.cache.GetAll(ctx)
	if err != nil || len(cached) > 0 {
		// A persistent cache that survived the restart wins over the store.
		return
	}

	open, err := o.sessions.FindOpenSessions(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("cache seed from store failed")
		return
	}
	if len(open) == 0 {
		return
	}
	if err := o.cache.ReplaceAll(ctx, open); err != nil {
		logging.Warn().Err(err).Msg("cache seed write failed")
		return
	}
	for i := range open {
		if err := o.cache.AddUserSession(ctx, open[i].UserID, open[i].ID); err != nil {
			logging.Warn().Err(err).Str("session_id", open[i].ID).Msg("cache seed user index failed")
		}
	}
	logging.Info().Int("sessions", len(open)).Msg("cache seeded from open sessions")
}
