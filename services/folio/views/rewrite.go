// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package views

import (
	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
)

// rewrite applies fn to every item of a view value. Only the pages and
// items fn changes are copied.
func rewrite(value any, fn func(model.Item) (model.Item, bool)) (any, bool) {
	switch v := value.(type) {
	case *model.PaginatedView:
		if v == nil {
			return value, false
		}
		var out *model.PaginatedView
		var copied []bool
		for pi, p := range v.Pages {
			for ii, it := range p.Data {
				next, changed := fn(it)
				if !changed {
					continue
				}
				if out == nil {
					out = &model.PaginatedView{Pages: append([]model.Page(nil), v.Pages...)}
					copied = make([]bool, len(v.Pages))
				}
				if !copied[pi] {
					out.Pages[pi].Data = append([]model.Item(nil), p.Data...)
					copied[pi] = true
				}
				out.Pages[pi].Data[ii] = next
			}
		}
		if out == nil {
			return value, false
		}
		return out, true

	case model.Detail:
		next, changed := fn(v.Item)
		if !changed {
			return value, false
		}
		return model.Detail{Item: next}, true
	}
	return value, false
}

func findItem(value any, match func(model.Item) bool) (model.Item, bool) {
	switch v := value.(type) {
	case *model.PaginatedView:
		if v == nil {
			return model.Item{}, false
		}
		for _, p := range v.Pages {
			for _, it := range p.Data {
				if match(it) {
					return it, true
				}
			}
		}
	case model.Detail:
		if match(v.Item) {
			return v.Item, true
		}
	}
	return model.Item{}, false
}

// filterView drops matching items. It returns the original view and zero
// when nothing matched.
func filterView(v *model.PaginatedView, match func(model.Item) bool) (*model.PaginatedView, int) {
	if v == nil {
		return v, 0
	}
	var out *model.PaginatedView
	removed := 0
	for pi, p := range v.Pages {
		var kept []model.Item
		n := 0
		for ii, it := range p.Data {
			if !match(it) {
				if kept != nil {
					kept = append(kept, it)
				}
				continue
			}
			if kept == nil {
				kept = append(make([]model.Item, 0, len(p.Data)-1), p.Data[:ii]...)
			}
			n++
		}
		if n == 0 {
			continue
		}
		if out == nil {
			out = &model.PaginatedView{Pages: append([]model.Page(nil), v.Pages...)}
		}
		np := p
		np.Data = kept
		np.Meta.Total = max(0, np.Meta.Total-n)
		out.Pages[pi] = np
		removed += n
	}
	if out == nil {
		return v, 0
	}
	return out, removed
}

// Removal records where extracted items sat, so they can be put back into
// whatever the views hold at undo time.
type Removal struct {
	spots []spot
}

// spot is one extracted item. prev is the item just before it and next the
// first following item that stayed; either may be missing. page and index
// are the fallback when neither neighbour is found again.
type spot struct {
	key   querykey.Key
	page  int
	index int
	item  model.Item
	prev  *model.Item
	next  *model.Item
}

// Len returns the number of items extracted.
func (rm Removal) Len() int {
	return len(rm.spots)
}

// Extract is RemoveItems, recording the neighbours and position of every
// removed item.
func (r *Registry) Extract(tx *cache.Tx, namespaces []querykey.Namespace, match func(model.Item) bool) Removal {
	var rm Removal
	for _, e := range tx.FindAll(querykey.InNamespace(namespaces...)) {
		v, ok := e.Value.(*model.PaginatedView)
		if !ok || v == nil {
			continue
		}
		var prev *model.Item
		var pending []int
		for pi, p := range v.Pages {
			for ii, it := range p.Data {
				if !match(it) {
					for _, k := range pending {
						rm.spots[k].next = &it
					}
					pending = pending[:0]
					prev = &it
					continue
				}
				pending = append(pending, len(rm.spots))
				rm.spots = append(rm.spots, spot{key: e.Key, page: pi, index: ii, item: it, prev: prev})
				prev = &it
			}
		}
		if next, n := filterView(v, match); n > 0 {
			tx.Put(e.Key, next)
		}
	}
	return rm
}

// Reinsert puts extracted items back next to the neighbours they had in the
// current views. Only the reinserted items are touched: changes other
// entities made to the views since the extraction survive. Each item's
// owned groups are refreshed from canonical state. Views that are gone, and
// items already present again, are skipped.
func (r *Registry) Reinsert(tx *cache.Tx, rm Removal) int {
	n := 0
	for i := 0; i < len(rm.spots); {
		j := i
		for j < len(rm.spots) && rm.spots[j].key.String() == rm.spots[i].key.String() {
			j++
		}
		n += r.reinsert(tx, rm.spots[i:j])
		i = j
	}
	return n
}

// reinsert handles the spots of one key, recorded in list order.
func (r *Registry) reinsert(tx *cache.Tx, spots []spot) int {
	key := spots[0].key
	cur, ok := tx.Get(key)
	if !ok {
		return 0
	}
	v, ok := cur.(*model.PaginatedView)
	if !ok || v == nil || len(v.Pages) == 0 {
		return 0
	}

	next := &model.PaginatedView{Pages: append([]model.Page(nil), v.Pages...)}
	copied := make([]bool, len(next.Pages))
	n := 0
	for _, s := range spots {
		if _, _, dup := locate(next, s.item); dup {
			continue
		}
		pi, idx := s.position(next)
		p := next.Pages[pi]
		if !copied[pi] {
			p.Data = append([]model.Item(nil), p.Data...)
			copied[pi] = true
		}
		idx = min(idx, len(p.Data))
		p.Data = append(p.Data, model.Item{})
		copy(p.Data[idx+1:], p.Data[idx:])
		p.Data[idx] = r.current(tx, s.item)
		p.Meta.Total++
		next.Pages[pi] = p
		n++
	}
	if n > 0 {
		tx.Put(key, next)
	}
	return n
}

// position picks where s goes in v: after its previous neighbour, else
// before its next one, else at its recorded place clamped to v.
func (s spot) position(v *model.PaginatedView) (page, index int) {
	if s.prev != nil {
		if pi, ii, ok := locate(v, *s.prev); ok {
			return pi, ii + 1
		}
	}
	if s.next != nil {
		if pi, ii, ok := locate(v, *s.next); ok {
			return pi, ii
		}
	}
	if s.page >= len(v.Pages) {
		last := len(v.Pages) - 1
		return last, len(v.Pages[last].Data)
	}
	return s.page, s.index
}

// locate finds the item with the kind and ID of it.
func locate(v *model.PaginatedView, it model.Item) (page, index int, ok bool) {
	for pi, p := range v.Pages {
		for ii, x := range p.Data {
			if x.Kind == it.Kind && x.ID == it.ID {
				return pi, ii, true
			}
		}
	}
	return 0, 0, false
}

// current returns it with every owned group replaced by canonical state,
// where canonical state exists.
func (r *Registry) current(tx *cache.Tx, it model.Item) model.Item {
	cloned := false
	for _, b := range r.byKind[it.Kind] {
		embedded, ok := b.Get(it)
		if !ok {
			continue
		}
		canon, exists := tx.Get(querykey.Canonical(b.Entity, it.ID.String()))
		if !exists || canon == embedded {
			continue
		}
		if !cloned {
			it = it.Clone()
			cloned = true
		}
		b.Set(&it, canon)
	}
	return it
}

// Items returns every embedded item of the entity's kind, across all its
// namespaces, in key then page order.
func (r *Registry) Items(tx *cache.Tx, entity querykey.EntityType) []model.Item {
	b, ok := r.bindings[entity]
	if !ok {
		return nil
	}
	var out []model.Item
	for _, e := range tx.FindAll(querykey.InNamespace(b.Namespaces...)) {
		_, _ = findItem(e.Value, func(it model.Item) bool {
			if it.Kind == b.Kind {
				if _, has := b.Get(it); has {
					out = append(out, it)
				}
			}
			return false
		})
	}
	return out
}
