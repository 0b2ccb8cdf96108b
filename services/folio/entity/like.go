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

// NextToggle returns the like state after the viewer toggles a like.
func NextToggle(cur model.LikeState) model.LikeState {
	if cur.IsLiked {
		return model.LikeState{IsLiked: false, LikesCount: model.Dec(cur.LikesCount)}
	}
	return model.LikeState{IsLiked: true, LikesCount: cur.LikesCount + 1}
}

// Likes owns the like state of reviews.
type Likes struct {
	Module[model.LikeState]
}

// NewLikes creates the like module.
func NewLikes(store *cache.Store, reg *views.Registry) *Likes {
	return &Likes{Module: newModule(querykey.LikeEntity, model.DefaultLike, store, reg)}
}

// Toggle flips the viewer's like on review id.
func (l *Likes) Toggle(tx *cache.Tx, id model.ID) (model.LikeState, Undo) {
	next := NextToggle(l.Current(tx, id))
	return next, l.apply(tx, id, next)
}
