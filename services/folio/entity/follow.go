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

// Follow relationship transitions.
//
//	none ──follow(public)──▶ following
//	none ──follow(private)─▶ pending ──accepted──▶ following (status accepted)
//	                                 ──rejected──▶ rejected
//	                                 ──cancel────▶ none
//	following ──unfollow──▶ none

// NextFollow returns the state after following a user. Following an account
// already followed, or re-requesting a pending one, changes nothing.
func NextFollow(cur model.FollowState, targetIsPrivate bool) model.FollowState {
	if cur.IsFollowing {
		return cur
	}
	if targetIsPrivate {
		if cur.FollowRequestStatus == model.RequestPending {
			return cur
		}
		return model.FollowState{
			IsFollowing:         false,
			FollowersCount:      cur.FollowersCount,
			FollowRequestStatus: model.RequestPending,
		}
	}
	return model.FollowState{
		IsFollowing:         true,
		FollowersCount:      cur.FollowersCount + 1,
		FollowRequestStatus: model.RequestNone,
	}
}

// NextUnfollow returns the state after unfollowing. The follower count only
// drops when the viewer was actually following.
func NextUnfollow(cur model.FollowState) model.FollowState {
	count := cur.FollowersCount
	if cur.IsFollowing {
		count = model.Dec(count)
	}
	return model.FollowState{
		IsFollowing:         false,
		FollowersCount:      count,
		FollowRequestStatus: model.RequestNone,
	}
}

// NextCancelRequest withdraws a follow request. Counts are untouched.
func NextCancelRequest(cur model.FollowState) model.FollowState {
	cur.FollowRequestStatus = model.RequestNone
	return cur
}

// NextRequestOutcome resolves a pending request. Non-pending states and
// unknown outcomes are returned unchanged.
func NextRequestOutcome(cur model.FollowState, outcome model.FollowRequestStatus) model.FollowState {
	if cur.FollowRequestStatus != model.RequestPending {
		return cur
	}
	switch outcome {
	case model.RequestAccepted:
		return model.FollowState{
			IsFollowing:         true,
			FollowersCount:      cur.FollowersCount + 1,
			FollowRequestStatus: model.RequestAccepted,
		}
	case model.RequestRejected, model.RequestNone:
		cur.FollowRequestStatus = outcome
		return cur
	}
	return cur
}

// Follows owns the follow relationship with other users.
type Follows struct {
	Module[model.FollowState]
	viewer *Viewer
}

// NewFollows creates the follow module.
func NewFollows(store *cache.Store, reg *views.Registry, viewer *Viewer) *Follows {
	return &Follows{
		Module: newModule(querykey.FollowEntity, model.DefaultFollow, store, reg),
		viewer: viewer,
	}
}

// Follow follows user id, or requests to when the account is private.
func (f *Follows) Follow(tx *cache.Tx, id model.ID, targetIsPrivate bool) (model.FollowState, Undo) {
	cur := f.Current(tx, id)
	next := NextFollow(cur, targetIsPrivate)
	return next, f.transition(tx, id, cur, next)
}

// Unfollow stops following user id and drops their reviews from the
// viewer's feed.
func (f *Follows) Unfollow(tx *cache.Tx, id model.ID) (model.FollowState, Undo) {
	removed := f.views.Extract(tx, []querykey.Namespace{querykey.Feed}, func(it model.Item) bool {
		return it.Kind == model.KindReview && it.AuthorID == id
	})
	var u Undo
	u.add(func(tx *cache.Tx) { f.views.Reinsert(tx, removed) })

	cur := f.Current(tx, id)
	next := NextUnfollow(cur)
	return next, u.Then(f.transition(tx, id, cur, next))
}

// CancelRequest withdraws a pending follow request.
func (f *Follows) CancelRequest(tx *cache.Tx, id model.ID) (model.FollowState, Undo) {
	cur := f.Current(tx, id)
	next := NextCancelRequest(cur)
	return next, f.transition(tx, id, cur, next)
}

// ApplyRequestOutcome resolves a pending request with the server's answer.
func (f *Follows) ApplyRequestOutcome(tx *cache.Tx, id model.ID, outcome model.FollowRequestStatus) (model.FollowState, Undo) {
	cur := f.Current(tx, id)
	next := NextRequestOutcome(cur, outcome)
	return next, f.transition(tx, id, cur, next)
}

// Reconcile writes the server's authoritative state for user id. The
// viewer's following count moves if the server disagrees with the
// optimistic relationship.
func (f *Follows) Reconcile(tx *cache.Tx, id model.ID, st model.FollowState) {
	cur := f.Current(tx, id)
	if cur == st {
		return
	}
	_ = f.transition(tx, id, cur, st)
}

// ForceNotFollowing clears the relationship without touching counts.
func (f *Follows) ForceNotFollowing(tx *cache.Tx, id model.ID) (model.FollowState, Undo) {
	cur := f.Current(tx, id)
	next := cur
	next.IsFollowing = false
	next.FollowRequestStatus = model.RequestNone
	return next, f.apply(tx, id, next)
}

// transition writes next and keeps the viewer's following count in step.
func (f *Follows) transition(tx *cache.Tx, id model.ID, cur, next model.FollowState) Undo {
	u := f.apply(tx, id, next)
	switch {
	case !cur.IsFollowing && next.IsFollowing:
		u = u.Then(f.viewer.adjustFollowing(tx, +1))
	case cur.IsFollowing && !next.IsFollowing:
		u = u.Then(f.viewer.adjustFollowing(tx, -1))
	}
	return u
}
