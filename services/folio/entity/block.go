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

// Blocks owns the block relationship with other users.
type Blocks struct {
	Module[model.BlockState]
	follows *Follows
}

// NewBlocks creates the block module. Blocking also rewrites follow state,
// so it needs the follow module.
func NewBlocks(store *cache.Store, reg *views.Registry, follows *Follows) *Blocks {
	return &Blocks{
		Module:  newModule(querykey.BlockEntity, model.DefaultBlock, store, reg),
		follows: follows,
	}
}

// Block blocks user id and forces the viewer's follow relationship with
// them to none.
func (b *Blocks) Block(tx *cache.Tx, id model.ID) (model.BlockState, Undo) {
	next := b.Current(tx, id)
	next.IsBlocked = true
	u := b.apply(tx, id, next)
	_, fu := b.follows.ForceNotFollowing(tx, id)
	return next, u.Then(fu)
}

// Unblock lifts the viewer's block on user id.
func (b *Blocks) Unblock(tx *cache.Tx, id model.ID) (model.BlockState, Undo) {
	next := b.Current(tx, id)
	next.IsBlocked = false
	return next, b.apply(tx, id, next)
}
