// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package poller drives the recurring poll tick.
//
// Each tick walks every configured server through
// FETCH -> NORMALIZE -> DIFF -> PERSIST -> EVALUATE -> CACHE-UPDATE -> PUBLISH.
// Servers are fetched and diffed in parallel worker tasks with fully isolated
// results; the cache update and event publication are serialized afterwards.
// Ticks never overlap: a tick finishes (or fails) before the next is allowed
// to start, and manual triggers serialize against the timer through the same
// lock.
//
// A fetch failure on one server contributes nothing for that server and
// leaves its previously cached sessions untouched -- it is explicitly not the
// same as the server reporting zero sessions.
package poller
