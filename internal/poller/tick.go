// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package poller

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamwarden/streamwarden/internal/detection"
	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/metrics"
	"github.com/streamwarden/streamwarden/internal/models"
	"github.com/streamwarden/streamwarden/internal/provider"
	"github.com/streamwarden/streamwarden/internal/store"
)

// violationRecord pairs a stored violation with the context its event needs.
type violationRecord struct {
	violation *detection.Violation
	rule      *detection.Rule
	session   models.Session
}

// serverResult is one server worker's isolated output. Nothing in it is
// shared with other workers; results merge only in the serialized phase.
type serverResult struct {
	serverID string
	ok       bool

	// active is the server's slice of the next cache snapshot (sessions
	// classified new or updated this tick).
	active     []models.Session
	started    []models.Session
	updated    []models.Session
	stopped    []models.Session
	violations []violationRecord
}

// runTick executes one full poll cycle. Serialized by tickMu against the
// timer, manual triggers, and seeding. The tick deliberately detaches from
// the loop context: cancellation stops future ticks, but an in-flight tick
// must complete to keep the cache consistent across all servers.
func (o *Orchestrator) runTick(ctx context.Context, trigger string) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	start := time.Now()
	tickCtx := context.WithoutCancel(ctx)

	err := o.tick(tickCtx)

	elapsed := time.Since(start)
	metrics.PollTicksTotal.WithLabelValues(trigger).Inc()
	metrics.PollTickDuration.Observe(elapsed.Seconds())

	o.statusMu.Lock()
	o.tickCount++
	o.lastTickAt = start.UTC()
	o.lastDuration = elapsed
	if err != nil {
		o.lastError = err.Error()
	} else {
		o.lastError = ""
	}
	o.statusMu.Unlock()

	if err != nil {
		logging.Error().Err(err).Str("trigger", trigger).Dur("elapsed", elapsed).Msg("poll tick failed")
		return
	}
	logging.Debug().Str("trigger", trigger).Dur("elapsed", elapsed).Msg("poll tick complete")
}

func (o *Orchestrator) tick(ctx context.Context) error {
	// Rules are read once and immutable for the whole tick, even if they
	// change in storage mid-cycle.
	rules, err := o.sessions.FindActiveRules(ctx)
	if err != nil {
		// Lifecycle tracking still works without rules; evaluation is
		// skipped this tick.
		logging.Warn().Err(err).Msg("active rules unavailable, skipping evaluation this tick")
		rules = nil
	}

	cached, err := o.cache.GetAll(ctx)
	if err != nil {
		// Without the previous snapshot there is nothing safe to diff
		// against; a partial diff would mass-close live sessions.
		return err
	}

	cachedByServer := make(map[string]map[string]models.Session)
	cachedByUser := make(map[string][]models.Session)
	for i := range cached {
		s := cached[i]
		byKey, ok := cachedByServer[s.ServerID]
		if !ok {
			byKey = make(map[string]models.Session)
			cachedByServer[s.ServerID] = byKey
		}
		byKey[s.SessionKey] = s
		cachedByUser[s.UserID] = append(cachedByUser[s.UserID], s)
	}

	adapters := o.adapters
	results := make([]serverResult, len(adapters))

	// One worker per server; each works only on its own result slot.
	var g errgroup.Group
	for i := range adapters {
		g.Go(func() error {
			adapter := adapters[i]
			results[i] = o.processServer(ctx, adapter, cachedByServer[adapter.Server().ID], cachedByUser, rules)
			return nil
		})
	}
	_ = g.Wait()

	o.merge(ctx, results, cachedByServer)
	return nil
}

// processServer runs FETCH through EVALUATE for one server. Everything it
// touches is either read-only shared state (cached snapshot, rules) or its
// own result.
func (o *Orchestrator) processServer(ctx context.Context, adapter provider.Adapter,
	cachedByKey map[string]models.Session, cachedByUser map[string][]models.Session,
	rules []detection.Rule) serverResult {

	srv := adapter.Server()
	res := serverResult{serverID: srv.ID}

	reported, err := adapter.FetchSessions(ctx)
	if err != nil {
		// Fetch failure is not "no sessions": the server's cached
		// sessions stay untouched and nothing is closed.
		metrics.ProviderFetchErrors.WithLabelValues(srv.Name).Inc()
		logging.Warn().Err(err).Str("server", srv.Name).Msg("session fetch failed")
		return res
	}
	res.ok = true

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(reported))

	for i := range reported {
		ns := reported[i]
		seen[ns.SessionKey] = struct{}{}

		if prev, ok := cachedByKey[ns.SessionKey]; ok {
			o.handleUpdated(ctx, &res, prev, ns)
		} else {
			o.handleStarted(ctx, &res, srv.ID, ns, now, rules, cachedByUser)
		}
	}

	// Cached but no longer reported -> stopped.
	for key, prev := range cachedByKey {
		if _, ok := seen[key]; ok {
			continue
		}
		o.handleStopped(ctx, &res, prev, now)
	}

	return res
}

// handleUpdated patches the mutable fields of a session that is still
// active. On a patch failure the previous cached entry is kept so the patch
// retries next tick instead of silently losing progress updates.
func (o *Orchestrator) handleUpdated(ctx context.Context, res *serverResult, prev models.Session, ns models.NormalizedSession) {
	next := prev
	next.State = ns.State
	next.Bitrate = ns.Bitrate
	next.IsTranscode = ns.IsTranscode
	next.QualityLabel = ns.QualityLabel
	next.ProgressMs = ns.ProgressMs

	patch := &store.SessionPatch{
		State:        ns.State,
		Bitrate:      ns.Bitrate,
		IsTranscode:  ns.IsTranscode,
		QualityLabel: ns.QualityLabel,
		ProgressMs:   ns.ProgressMs,
	}
	if err := o.sessions.PatchSession(ctx, prev.ServerID, prev.SessionKey, patch); err != nil {
		logging.Warn().Err(err).Str("session_id", prev.ID).Msg("session patch failed, keeping previous state")
		res.active = append(res.active, prev)
		return
	}

	res.active = append(res.active, next)
	res.updated = append(res.updated, next)
}

// handleStarted resolves identity and location for a newly observed session,
// persists it, and evaluates the active rules against it. Any persistence
// failure skips the session for this tick; since it stays out of the cache,
// the next tick retries it as new.
func (o *Orchestrator) handleStarted(ctx context.Context, res *serverResult, serverID string,
	ns models.NormalizedSession, now time.Time, rules []detection.Rule,
	cachedByUser map[string][]models.Session) {

	userID, err := o.identity.Resolve(ctx, serverID, ns.ExternalUserID, ns.Username, ns.UserThumb)
	if err != nil {
		logging.Warn().Err(err).Str("server_id", serverID).Str("session_key", ns.SessionKey).
			Msg("identity resolution failed, session deferred to next tick")
		return
	}

	geo := o.geo.Resolve(ctx, ns.IPAddress)

	session := models.Session{
		NormalizedSession: ns,
		ServerID:          serverID,
		UserID:            userID,
		City:              geo.City,
		Country:           geo.Country,
		Latitude:          geo.Latitude,
		Longitude:         geo.Longitude,
		StartedAt:         now,
	}

	if _, err := o.sessions.InsertSession(ctx, &session); err != nil {
		logging.Warn().Err(err).Str("server_id", serverID).Str("session_key", ns.SessionKey).
			Msg("session insert failed, deferred to next tick")
		return
	}

	res.active = append(res.active, session)
	res.started = append(res.started, session)

	if len(rules) == 0 {
		return
	}

	hist := o.buildHistory(ctx, &session, cachedByUser)
	for _, result := range o.engine.Evaluate(&session, rules, hist) {
		if !result.Violated {
			continue
		}
		violation, err := o.sink.Record(ctx, &session, &result)
		if err != nil {
			logging.Error().Err(err).Str("rule", result.Rule.Name).Str("session_id", session.ID).
				Msg("violation record failed")
			continue
		}
		res.violations = append(res.violations, violationRecord{
			violation: violation,
			rule:      &result.Rule,
			session:   session,
		})
	}
}

// handleStopped closes a session the provider no longer reports. If the
// close fails the entry stays cached so the close retries next tick; a
// session must never vanish from the cache while its row is still open.
func (o *Orchestrator) handleStopped(ctx context.Context, res *serverResult, prev models.Session, now time.Time) {
	durationMs := now.Sub(prev.StartedAt).Milliseconds()
	if err := o.sessions.CloseSession(ctx, prev.ID, now, durationMs); err != nil {
		logging.Warn().Err(err).Str("session_id", prev.ID).Msg("session close failed, retrying next tick")
		res.active = append(res.active, prev)
		return
	}

	closed := prev
	closed.StoppedAt = &now
	closed.DurationMs = &durationMs
	res.stopped = append(res.stopped, closed)
}

// buildHistory assembles the evaluation window for one user: recent sessions
// from the store (excluding the triggering session's own fresh row) plus the
// user's currently cached active sessions.
func (o *Orchestrator) buildHistory(ctx context.Context, session *models.Session,
	cachedByUser map[string][]models.Session) detection.History {

	var hist detection.History

	recent, err := o.sessions.FindRecentByUser(ctx, session.UserID, o.cfg.HistoryWindowHours)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", session.UserID).Msg("history lookup failed, evaluating with active sessions only")
	} else {
		hist.Recent = make([]models.Session, 0, len(recent))
		for i := range recent {
			if recent[i].ID == session.ID {
				continue
			}
			hist.Recent = append(hist.Recent, recent[i])
		}
	}

	hist.Active = cachedByUser[session.UserID]
	return hist
}

// merge is the serialized CACHE-UPDATE and PUBLISH phase. The next snapshot
// is the union of every succeeding server's active sessions and the previous
// entries of every failing server.
func (o *Orchestrator) merge(ctx context.Context, results []serverResult, cachedByServer map[string]map[string]models.Session) {
	var snapshot []models.Session
	for i := range results {
		res := &results[i]
		if res.ok {
			snapshot = append(snapshot, res.active...)
			metrics.ActiveSessions.WithLabelValues(res.serverID).Set(float64(len(res.active)))
			continue
		}
		for _, prev := range cachedByServer[res.serverID] {
			snapshot = append(snapshot, prev)
		}
	}

	if err := o.cache.ReplaceAll(ctx, snapshot); err != nil {
		// The store already holds the truth; next tick re-diffs against
		// whatever the cache still says. Worst case is duplicate events,
		// not data loss.
		logging.Error().Err(err).Msg("cache snapshot write failed")
		return
	}

	for i := range results {
		res := &results[i]
		for j := range res.started {
			s := &res.started[j]
			if err := o.cache.AddUserSession(ctx, s.UserID, s.ID); err != nil {
				logging.Warn().Err(err).Str("session_id", s.ID).Msg("user index add failed")
			}
		}
		for j := range res.stopped {
			s := &res.stopped[j]
			if err := o.cache.RemoveUserSession(ctx, s.UserID, s.ID); err != nil {
				logging.Warn().Err(err).Str("session_id", s.ID).Msg("user index remove failed")
			}
		}
	}

	// PUBLISH is last: consumers only ever see events for state the cache
	// and store already agree on.
	for i := range results {
		res := &results[i]
		for j := range res.started {
			o.publisher.SessionStarted(&res.started[j])
		}
		for j := range res.updated {
			o.publisher.SessionUpdated(&res.updated[j])
		}
		for j := range res.stopped {
			o.publisher.SessionStopped(&res.stopped[j])
		}
		metrics.SessionEvents.WithLabelValues("started").Add(float64(len(res.started)))
		metrics.SessionEvents.WithLabelValues("updated").Add(float64(len(res.updated)))
		metrics.SessionEvents.WithLabelValues("stopped").Add(float64(len(res.stopped)))

		for j := range res.violations {
			v := &res.violations[j]
			o.publisher.ViolationNew(v.violation, v.rule, &v.session)
		}
	}
}
