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
	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/views"
)

// SelfID is the canonical id of the signed-in viewer.
const SelfID model.ID = "self"

// Viewer owns the signed-in viewer's own counters. No view embeds them.
type Viewer struct {
	Module[model.ViewerState]
}

// NewViewer creates the viewer module.
func NewViewer(store *cache.Store, reg *views.Registry) *Viewer {
	return &Viewer{Module: newModule(querykey.ViewerEntity, model.DefaultViewer, store, reg)}
}

// State returns the viewer's counters.
func (v *Viewer) State() model.ViewerState {
	return v.Get(SelfID)
}

// adjustFollowing adds delta (±1) to the following count, saturating at zero.
func (v *Viewer) adjustFollowing(tx *cache.Tx, delta int) Undo {
	cur := v.Current(tx, SelfID)
	next := cur
	if delta > 0 {
		next.FollowingCount++
	} else if delta < 0 {
		next.FollowingCount = model.Dec(cur.FollowingCount)
	}
	if next == cur {
		return Undo{}
	}
	exact := v.apply(tx, SelfID, next)

	var u Undo
	u.add(func(tx *cache.Tx) {
		now := v.Current(tx, SelfID)
		if now == next {
			exact.Restore(tx)
			return
		}
		back := now
		if delta > 0 {
			back.FollowingCount = model.Dec(now.FollowingCount)
		} else {
			back.FollowingCount++
		}
		_ = v.apply(tx, SelfID, back)
	})
	return u
}
