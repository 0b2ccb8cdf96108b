// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch tracks in-flight reads so that optimistic writes can pre-empt
// them.
//
// Every fetch that will write into the cache registers a Ticket. The ticket
// pins the target key's version when the fetch starts, and its Commit refuses
// to write when either:
//
//   - a mutation cancelled the fetch (ErrCancelled), or
//   - the key was written after the fetch started (cache.ErrStaleData).
//
// Both checks run inside the same store batch as the write, so a result can
// never land on top of an optimistic value.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/querykey"
)

// ErrCancelled is returned by Commit when a mutation pre-empted the fetch.
var ErrCancelled = errors.New("fetch cancelled by a newer write")

// Controller is the registry of in-flight fetches for one Store.
//
// Thread Safety: Safe for concurrent use.
type Controller struct {
	store  *cache.Store
	logger *slog.Logger

	mu      sync.Mutex
	flights map[uint64]*flight
	seq     uint64
}

type flight struct {
	id      uint64
	key     querykey.Key
	token   cache.Token
	cancel  context.CancelCauseFunc
	started time.Time
}

// NewController creates a Controller over store. If logger is nil, uses
// slog.Default().
func NewController(store *cache.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   store,
		logger:  logger.With(slog.String("component", "fetch_controller")),
		flights: make(map[uint64]*flight),
	}
}

// Ticket is one registered fetch.
type Ticket struct {
	c   *Controller
	f   *flight
	ctx context.Context

	once sync.Once
}

// Begin registers a fetch that will write key. The returned context is
// cancelled when a mutation pre-empts the fetch; pass it to the transport.
// Callers must call Done when the fetch ends.
func (c *Controller) Begin(ctx context.Context, key querykey.Key) *Ticket {
	fctx, cancel := context.WithCancelCause(ctx)

	c.mu.Lock()
	c.seq++
	f := &flight{
		id:      c.seq,
		key:     key,
		token:   c.store.Token(key),
		cancel:  cancel,
		started: time.Now(),
	}
	c.flights[f.id] = f
	n := len(c.flights)
	c.mu.Unlock()

	fetchesInFlight.Set(float64(n))
	return &Ticket{c: c, f: f, ctx: fctx}
}

// Context returns the fetch's context.
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// Key returns the key the fetch writes.
func (t *Ticket) Key() querykey.Key {
	return t.f.key
}

// Commit runs fn in a store batch if the fetch is still current.
//
// Outputs:
//
//	error - ErrCancelled if pre-empted, cache.ErrStaleData if the key was
//	written since Begin, the context error if the caller gave up, or fn's
//	error. Any error means nothing was written.
func (t *Ticket) Commit(fn func(tx *cache.Tx) error) error {
	err := t.c.store.Batch(func(tx *cache.Tx) error {
		if err := t.ctx.Err(); err != nil {
			if cause := context.Cause(t.ctx); errors.Is(cause, ErrCancelled) {
				return ErrCancelled
			}
			return err
		}
		if err := tx.Check(t.f.token); err != nil {
			return err
		}
		return fn(tx)
	})
	switch {
	case err == nil:
		fetchResults.WithLabelValues("committed").Inc()
		return nil
	case errors.Is(err, ErrCancelled):
		fetchResults.WithLabelValues("cancelled").Inc()
		t.c.logger.Debug("fetch result dropped: cancelled", slog.String("key", t.f.key.String()))
		return ErrCancelled
	case errors.Is(err, cache.ErrStaleData):
		fetchResults.WithLabelValues("stale").Inc()
		t.c.logger.Debug("fetch result dropped: stale", slog.String("key", t.f.key.String()))
		return cache.ErrStaleData
	default:
		fetchResults.WithLabelValues("error").Inc()
		return fmt.Errorf("commit %s: %w", t.f.key.String(), err)
	}
}

// Done unregisters the fetch and releases its context. Safe to call more
// than once.
func (t *Ticket) Done() {
	t.once.Do(func() {
		t.c.mu.Lock()
		delete(t.c.flights, t.f.id)
		n := len(t.c.flights)
		t.c.mu.Unlock()

		t.f.cancel(nil)
		fetchesInFlight.Set(float64(n))
		fetchDuration.Observe(time.Since(t.f.started).Seconds())
	})
}

// CancelMatching cancels every in-flight fetch whose key matches pred and
// returns how many were cancelled.
func (c *Controller) CancelMatching(pred querykey.Predicate) int {
	c.mu.Lock()
	var hit []*flight
	for _, f := range c.flights {
		if pred(f.key) {
			hit = append(hit, f)
		}
	}
	c.mu.Unlock()

	for _, f := range hit {
		f.cancel(ErrCancelled)
	}
	if len(hit) > 0 {
		fetchesCancelled.Add(float64(len(hit)))
		c.logger.Info("in-flight fetches cancelled", slog.Int("count", len(hit)))
	}
	return len(hit)
}

// InFlight reports how many registered fetches match pred.
func (c *Controller) InFlight(pred querykey.Predicate) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, f := range c.flights {
		if pred(f.key) {
			n++
		}
	}
	return n
}
