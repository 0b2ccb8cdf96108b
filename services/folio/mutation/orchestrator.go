// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mutation runs optimistic writes against the remote API.
//
// Every user intent goes through Run:
//
//  1. cancel in-flight fetches under the mutation's prefixes
//  2. capture the prior state      ┐ one store batch
//  3. apply the optimistic state   ┘
//  4. call the remote API (no lock held)
//  5. success: optionally reconcile with the server's value
//     failure: restore the captured state          ┐ one store batch
//  6. always: mark the settle prefixes stale       ┘
//
// While the call is in flight the mutated canonical keys are held in the
// view registry, so a page fetched meanwhile shows the optimistic value
// instead of overwriting it.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/entity"
	"github.com/AleutianAI/Folio/services/folio/fetch"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/views"
)

var tracer = otel.Tracer("folio.mutation")

var (
	// ErrNilContext is returned when Run is given a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrIncomplete is returned for a Mutation without Apply or Call.
	ErrIncomplete = errors.New("mutation needs Apply and Call")
)

// Mutation describes one optimistic write.
type Mutation[R any] struct {
	// Name identifies the intent in logs, spans and metrics, e.g. "like.toggle".
	Name string

	// Hold lists the canonical keys the mutation owns until it settles.
	Hold []querykey.Key

	// Cancel lists key prefixes whose in-flight fetches are pre-empted.
	Cancel []querykey.Key

	// Apply captures the prior state and writes the optimistic one. An
	// error aborts the mutation before the remote call; nothing is written.
	Apply func(tx *cache.Tx) (entity.Undo, error)

	// Call performs the remote write.
	Call func(ctx context.Context) (R, error)

	// Commit, if set, reconciles the cache with the server's result.
	Commit func(tx *cache.Tx, result R)

	// Settle lists key prefixes marked stale once the mutation ends.
	Settle []querykey.Key
}

// Orchestrator runs mutations against one store.
//
// Thread Safety: Safe for concurrent use. Mutations on the same entity are
// last-write-wins: a second mutation started before the first settles
// captures the first one's optimistic state as its prior.
type Orchestrator struct {
	store   *cache.Store
	fetches *fetch.Controller
	views   *views.Registry
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator. If logger is nil, uses
// slog.Default().
func NewOrchestrator(store *cache.Store, fetches *fetch.Controller, reg *views.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:   store,
		fetches: fetches,
		views:   reg,
		logger:  logger.With(slog.String("component", "mutation_orchestrator")),
	}
}

// Run executes m.
//
// Outputs:
//
//	R - The remote call's result on success.
//	error - Apply's or Call's error wrapped with the intent name. After a
//	Call error the cache holds the exact pre-mutation state again.
func Run[R any](ctx context.Context, o *Orchestrator, m Mutation[R]) (R, error) {
	var zero R
	if ctx == nil {
		return zero, ErrNilContext
	}
	if m.Apply == nil || m.Call == nil {
		return zero, ErrIncomplete
	}

	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "mutation."+m.Name,
		trace.WithAttributes(
			attribute.String("mutation.id", id),
			attribute.String("mutation.intent", m.Name),
		),
	)
	defer span.End()
	start := time.Now()
	logger := o.logger.With(slog.String("mutation_id", id), slog.String("intent", m.Name))

	if len(m.Cancel) > 0 {
		if n := o.fetches.CancelMatching(querykey.AnyPrefix(m.Cancel...)); n > 0 {
			span.SetAttributes(attribute.Int("mutation.fetches_cancelled", n))
		}
	}

	release := o.views.Hold(m.Hold...)
	defer release()

	var undo entity.Undo
	err := o.store.Batch(func(tx *cache.Tx) error {
		u, err := m.Apply(tx)
		if err != nil {
			return err
		}
		undo = u
		return nil
	})
	if err != nil {
		mutationsTotal.WithLabelValues(m.Name, "rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("mutation rejected", slog.String("error", err.Error()))
		return zero, fmt.Errorf("%s: %w", m.Name, err)
	}

	result, callErr := m.Call(ctx)

	if callErr != nil {
		_ = o.store.Batch(func(tx *cache.Tx) error {
			undo.Restore(tx)
			settle(tx, m.Settle)
			return nil
		})
		mutationsTotal.WithLabelValues(m.Name, "rolled_back").Inc()
		mutationDuration.WithLabelValues(m.Name).Observe(time.Since(start).Seconds())
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		logger.Warn("mutation rolled back",
			slog.String("error", callErr.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return zero, fmt.Errorf("%s: %w", m.Name, callErr)
	}

	_ = o.store.Batch(func(tx *cache.Tx) error {
		if m.Commit != nil {
			m.Commit(tx, result)
		}
		settle(tx, m.Settle)
		return nil
	})
	mutationsTotal.WithLabelValues(m.Name, "committed").Inc()
	mutationDuration.WithLabelValues(m.Name).Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "")
	logger.Debug("mutation committed", slog.Duration("duration", time.Since(start)))
	return result, nil
}

func settle(tx *cache.Tx, prefixes []querykey.Key) {
	if len(prefixes) == 0 {
		return
	}
	tx.MarkStale(querykey.AnyPrefix(prefixes...))
}
