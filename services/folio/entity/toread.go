// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package entity

import (
	"sort"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/views"
)

// ToReadListKey addresses the literal paginated reading list.
func ToReadListKey() querykey.Key {
	return querykey.New(querykey.ToRead)
}

// ToRead owns reading-list membership. The membership set is the set of
// canonical entries with InList; the literal list is kept alongside it.
type ToRead struct {
	Module[model.ToReadState]
}

// NewToRead creates the reading-list module.
func NewToRead(store *cache.Store, reg *views.Registry) *ToRead {
	return &ToRead{Module: newModule(querykey.ToReadEntity, model.DefaultToRead, store, reg)}
}

// IsInList reports whether book id is in the reading list.
func (r *ToRead) IsInList(id model.ID) bool {
	return r.Get(id).InList
}

// Members returns the ids of every book known to be in the list, sorted.
func (r *ToRead) Members(tx *cache.Tx) []model.ID {
	var out []model.ID
	for _, e := range tx.FindAll(querykey.Prefix(querykey.CanonicalPrefix(r.entity))) {
		if s, ok := e.Value.(model.ToReadState); ok && s.InList {
			out = append(out, model.ID(e.Key.Last()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Add puts book id in the reading list. When the book record is known (book
// is non-nil, or a cached view embeds it) it is also prepended to the
// cached list.
func (r *ToRead) Add(tx *cache.Tx, id model.ID, book *model.Item) (model.ToReadState, Undo) {
	next := model.ToReadState{InList: true}
	state := r.apply(tx, id, next)

	var rec model.Item
	switch {
	case book != nil && book.Kind == model.KindBook && book.ID == id:
		rec = book.Clone()
	default:
		found, ok := r.views.LookupItem(tx, r.entity, id)
		if !ok {
			return next, state
		}
		rec = found.Clone()
	}
	rec.ToRead = &next

	var u Undo
	if r.views.InsertFirst(tx, ToReadListKey(), rec) {
		u.add(func(tx *cache.Tx) {
			r.views.RemoveItems(tx, []querykey.Namespace{querykey.ToRead}, func(it model.Item) bool {
				return it.Kind == model.KindBook && it.ID == id
			})
		})
	}
	return next, u.Then(state)
}

// Remove takes book id out of the reading list and the cached list. Undo
// puts the book back where it was.
func (r *ToRead) Remove(tx *cache.Tx, id model.ID) (model.ToReadState, Undo) {
	removed := r.views.Extract(tx, []querykey.Namespace{querykey.ToRead}, func(it model.Item) bool {
		return it.Kind == model.KindBook && it.ID == id
	})
	var u Undo
	u.add(func(tx *cache.Tx) { r.views.Reinsert(tx, removed) })

	next := model.ToReadState{InList: false}
	return next, u.Then(r.apply(tx, id, next))
}
