// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package views keeps denormalized copies of entity state consistent.
//
// Cached list pages and detail entries embed full copies of entity fields.
// When the canonical state of one entity changes, Sync rewrites the owned
// field group of every embedded copy, and nothing else. All functions take
// a cache.Tx so that a fan-out is part of the caller's batch and is never
// observed half-done.
package views

import (
	"log/slog"
	"sync"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
)

// Registry holds the binding table and the set of canonical keys held by
// in-flight mutations.
//
// Thread Safety: Safe for concurrent use. Methods taking a Tx must only be
// called from inside that Tx's batch.
type Registry struct {
	bindings map[querykey.EntityType]Binding
	byKind   map[model.ItemKind][]Binding
	logger   *slog.Logger

	mu    sync.Mutex
	holds map[string]int
}

// NewRegistry creates a Registry over bindings. If bindings is empty,
// DefaultBindings is used. If logger is nil, uses slog.Default().
func NewRegistry(logger *slog.Logger, bindings ...Binding) *Registry {
	if len(bindings) == 0 {
		bindings = DefaultBindings()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		bindings: make(map[querykey.EntityType]Binding, len(bindings)),
		byKind:   make(map[model.ItemKind][]Binding),
		logger:   logger.With(slog.String("component", "view_registry")),
		holds:    make(map[string]int),
	}
	for _, b := range bindings {
		r.bindings[b.Entity] = b
		r.byKind[b.Kind] = append(r.byKind[b.Kind], b)
	}
	return r
}

// Namespaces returns the view namespaces that embed entity.
func (r *Registry) Namespaces(entity querykey.EntityType) []querykey.Namespace {
	b, ok := r.bindings[entity]
	if !ok {
		return nil
	}
	out := make([]querykey.Namespace, len(b.Namespaces))
	copy(out, b.Namespaces)
	return out
}

// Sync writes state into every embedded copy of (entity, id).
//
// Description:
//
//	Scans every entry in the entity's namespaces. For each item of the
//	binding's kind with a matching id that carries the owned group, the
//	group is replaced with state. Every other field of the item, and every
//	other item, is left as is. Entries are copied on write: the previous
//	value object is never mutated. Entries already holding state are not
//	rewritten, so repeating a sync is a no-op.
//
// Outputs:
//
//	int - Number of entries rewritten.
func (r *Registry) Sync(tx *cache.Tx, entity querykey.EntityType, id model.ID, state any) int {
	b, ok := r.bindings[entity]
	if !ok {
		return 0
	}
	patch := func(it model.Item) (model.Item, bool) {
		if it.Kind != b.Kind || it.ID != id {
			return it, false
		}
		cur, ok := b.Get(it)
		if !ok || cur == state {
			return it, false
		}
		next := it.Clone()
		b.Set(&next, state)
		return next, true
	}

	n := 0
	for _, e := range tx.FindAll(querykey.InNamespace(b.Namespaces...)) {
		if next, changed := rewrite(e.Value, patch); changed {
			tx.Put(e.Key, next)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("synced views",
			slog.String("entity", string(entity)),
			slog.String("id", id.String()),
			slog.Int("entries", n),
		)
	}
	return n
}

// LookupItem returns the first embedded copy of (entity, id) that carries
// the entity's owned group.
func (r *Registry) LookupItem(tx *cache.Tx, entity querykey.EntityType, id model.ID) (model.Item, bool) {
	b, ok := r.bindings[entity]
	if !ok {
		return model.Item{}, false
	}
	for _, e := range tx.FindAll(querykey.InNamespace(b.Namespaces...)) {
		found, ok := findItem(e.Value, func(it model.Item) bool {
			if it.Kind != b.Kind || it.ID != id {
				return false
			}
			_, has := b.Get(it)
			return has
		})
		if ok {
			return found, true
		}
	}
	return model.Item{}, false
}

// Lookup returns the owned state of the first embedded copy of (entity, id).
func (r *Registry) Lookup(tx *cache.Tx, entity querykey.EntityType, id model.ID) (any, bool) {
	it, ok := r.LookupItem(tx, entity, id)
	if !ok {
		return nil, false
	}
	return r.bindings[entity].Get(it)
}

// Observe reconciles freshly fetched items with canonical state.
//
// Description:
//
//	For each owned group carried by an item: if a mutation holds the
//	canonical key, the item is patched with the canonical (optimistic)
//	state; otherwise the fetched state becomes canonical and is synced to
//	every other cached view.
//
// Outputs:
//
//	[]model.Item - items to store; patched items are copies.
func (r *Registry) Observe(tx *cache.Tx, items []model.Item) []model.Item {
	out := make([]model.Item, len(items))
	for i, it := range items {
		for _, b := range r.byKind[it.Kind] {
			observed, ok := b.Get(it)
			if !ok {
				continue
			}
			key := querykey.Canonical(b.Entity, it.ID.String())
			cur, exists := tx.Get(key)
			if r.held(key) {
				if exists && cur != observed {
					it = it.Clone()
					b.Set(&it, cur)
				}
				continue
			}
			if exists && cur == observed {
				continue
			}
			tx.Put(key, observed)
			r.Sync(tx, b.Entity, it.ID, observed)
		}
		out[i] = it
	}
	return out
}

// RemoveItems deletes every item matching match from the views in
// namespaces. Page totals shrink accordingly. It returns the number of items
// removed.
func (r *Registry) RemoveItems(tx *cache.Tx, namespaces []querykey.Namespace, match func(model.Item) bool) int {
	removed := 0
	for _, e := range tx.FindAll(querykey.InNamespace(namespaces...)) {
		v, ok := e.Value.(*model.PaginatedView)
		if !ok {
			continue
		}
		next, n := filterView(v, match)
		if n > 0 {
			tx.Put(e.Key, next)
			removed += n
		}
	}
	return removed
}

// InsertFirst prepends it to the first page of the list at key. Lists that
// are not cached, or already contain the item, are left alone.
func (r *Registry) InsertFirst(tx *cache.Tx, key querykey.Key, it model.Item) bool {
	cur, ok := tx.Get(key)
	if !ok {
		return false
	}
	v, ok := cur.(*model.PaginatedView)
	if !ok || len(v.Pages) == 0 {
		return false
	}
	if _, dup := findItem(v, func(x model.Item) bool { return x.Kind == it.Kind && x.ID == it.ID }); dup {
		return false
	}

	next := &model.PaginatedView{Pages: append([]model.Page(nil), v.Pages...)}
	first := next.Pages[0]
	data := make([]model.Item, 0, len(first.Data)+1)
	data = append(data, it)
	data = append(data, first.Data...)
	first.Data = data
	first.Meta.Total++
	next.Pages[0] = first
	tx.Put(key, next)
	return true
}

// Hold marks canonical keys as owned by an in-flight mutation until the
// returned release is called. Holds nest.
func (r *Registry) Hold(keys ...querykey.Key) (release func()) {
	r.mu.Lock()
	for _, k := range keys {
		r.holds[k.String()]++
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for _, k := range keys {
				s := k.String()
				if r.holds[s] <= 1 {
					delete(r.holds, s)
					continue
				}
				r.holds[s]--
			}
		})
	}
}

func (r *Registry) held(key querykey.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holds[key.String()] > 0
}
