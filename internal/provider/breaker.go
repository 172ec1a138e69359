// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/metrics"
	"github.com/streamwarden/streamwarden/internal/models"
)

// breakerAdapter wraps an Adapter with a circuit breaker so that a server
// that is down or timing out stops being polled for a cooldown period instead
// of burning a fetch timeout on every tick.
//
// The breaker uses real time for its interval and timeout bookkeeping. That
// is intentional: the timing controls recovery, not data integrity. Tests
// exercise the wrapped clients directly.
type breakerAdapter struct {
	inner Adapter
	cb    *gobreaker.CircuitBreaker[[]models.NormalizedSession]
}

func newBreakerAdapter(inner Adapter) *breakerAdapter {
	name := inner.Server().Name
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]models.NormalizedSession](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// With one fetch per tick there is no request volume to compute
		// a failure ratio over; trip on a short run of consecutive
		// failures instead.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("server", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &breakerAdapter{inner: inner, cb: cb}
}

func (b *breakerAdapter) Server() *models.Server {
	return b.inner.Server()
}

func (b *breakerAdapter) FetchSessions(ctx context.Context) ([]models.NormalizedSession, error) {
	return b.cb.Execute(func() ([]models.NormalizedSession, error) {
		return b.inner.FetchSessions(ctx)
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
