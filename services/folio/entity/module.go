// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package entity holds the canonical optimistic state of each logical fact.
//
// One module exists per fact: Likes, Follows, Blocks, Notifications, ToRead
// and the Viewer's own counters. A module owns the canonical key of every
// entity id of its type, computes next states with pure transition
// functions, and writes them through the view registry so every embedded
// copy follows.
//
// Canonical state is created lazily. Until an entity is observed in a
// fetched page or mutated, reads fall back to an embedded copy and then to
// the module's default.
//
// Every intent method captures what it is about to overwrite and returns it
// as an Undo. Restoring an Undo reinstates the exact prior values, including
// the absence of keys that did not exist yet.
package entity

import (
	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/views"
)

// Undo restores what one or more intents overwrote.
type Undo struct {
	steps []func(tx *cache.Tx)
}

func (u *Undo) add(step func(tx *cache.Tx)) {
	u.steps = append(u.steps, step)
}

// Then appends other, captured after u. Restore undoes other first.
func (u Undo) Then(other Undo) Undo {
	steps := make([]func(tx *cache.Tx), 0, len(u.steps)+len(other.steps))
	steps = append(steps, u.steps...)
	steps = append(steps, other.steps...)
	return Undo{steps: steps}
}

// Restore applies the captured state in tx.
func (u Undo) Restore(tx *cache.Tx) {
	for i := len(u.steps) - 1; i >= 0; i-- {
		u.steps[i](tx)
	}
}

// Empty reports whether the Undo has nothing to restore.
func (u Undo) Empty() bool {
	return len(u.steps) == 0
}

// Module is the canonical state of one entity type.
type Module[S comparable] struct {
	entity querykey.EntityType
	def    S
	store  *cache.Store
	views  *views.Registry
}

func newModule[S comparable](entity querykey.EntityType, def S, store *cache.Store, reg *views.Registry) Module[S] {
	return Module[S]{entity: entity, def: def, store: store, views: reg}
}

// Entity returns the module's entity type.
func (m *Module[S]) Entity() querykey.EntityType {
	return m.entity
}

// Key returns the canonical key of id.
func (m *Module[S]) Key(id model.ID) querykey.Key {
	return querykey.Canonical(m.entity, id.String())
}

// Get returns the current state of id without creating it.
func (m *Module[S]) Get(id model.ID) S {
	var s S
	m.store.Read(func(tx *cache.Tx) {
		s = m.Current(tx, id)
	})
	return s
}

// Set writes state as canonical and fans it out in one batch.
func (m *Module[S]) Set(id model.ID, state S) {
	_ = m.store.Batch(func(tx *cache.Tx) error {
		m.Write(tx, id, state)
		return nil
	})
}

// Current returns canonical state, else the first embedded copy, else the
// default.
func (m *Module[S]) Current(tx *cache.Tx, id model.ID) S {
	s, _ := m.Known(tx, id)
	return s
}

// Known is Current, reporting whether the state came from the cache rather
// than the default.
func (m *Module[S]) Known(tx *cache.Tx, id model.ID) (S, bool) {
	if v, ok := tx.Get(m.Key(id)); ok {
		if s, ok := v.(S); ok {
			return s, true
		}
	}
	if v, ok := m.views.Lookup(tx, m.entity, id); ok {
		if s, ok := v.(S); ok {
			return s, true
		}
	}
	return m.def, false
}

// Write stores state as canonical and syncs every embedded copy. It
// returns the number of views rewritten.
func (m *Module[S]) Write(tx *cache.Tx, id model.ID, state S) int {
	tx.Put(m.Key(id), state)
	return m.views.Sync(tx, m.entity, id, state)
}

// capture records the canonical entry of id (or its absence) and the state
// the views currently show.
func (m *Module[S]) capture(tx *cache.Tx, id model.ID) Undo {
	key := m.Key(id)
	prev, present := tx.Get(key)
	shown := m.Current(tx, id)

	var u Undo
	u.add(func(tx *cache.Tx) {
		if present {
			tx.Put(key, prev)
		} else {
			tx.Remove(key)
		}
		m.views.Sync(tx, m.entity, id, shown)
	})
	return u
}

// apply captures id, then writes next.
func (m *Module[S]) apply(tx *cache.Tx, id model.ID, next S) Undo {
	u := m.capture(tx, id)
	m.Write(tx, id, next)
	return u
}
