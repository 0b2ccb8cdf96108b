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
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
)

// Binding says where copies of one entity type are embedded and which field
// group of an item is owned by it.
type Binding struct {
	// Entity is the canonical entity type.
	Entity querykey.EntityType

	// Kind is the item variant that embeds the entity. Items of any other
	// kind never match, even with an equal id.
	Kind model.ItemKind

	// Namespaces lists every view family that may embed a copy.
	Namespaces []querykey.Namespace

	// Get returns the owned group of it, if present.
	Get func(it model.Item) (any, bool)

	// Set replaces the owned group of it with state.
	Set func(it *model.Item, state any)
}

// DefaultBindings returns the namespace tables for every entity module.
func DefaultBindings() []Binding {
	return []Binding{
		{
			Entity: querykey.LikeEntity,
			Kind:   model.KindReview,
			Namespaces: []querykey.Namespace{
				querykey.Feed, querykey.Review, querykey.UserReviews,
				querykey.MyReviews, querykey.BookReviews,
			},
			Get: func(it model.Item) (any, bool) {
				if it.Like == nil {
					return nil, false
				}
				return *it.Like, true
			},
			Set: func(it *model.Item, state any) {
				s := state.(model.LikeState)
				it.Like = &s
			},
		},
		{
			Entity: querykey.FollowEntity,
			Kind:   model.KindUser,
			Namespaces: []querykey.Namespace{
				querykey.UserProfile, querykey.Followers, querykey.Following, querykey.UserSearch,
			},
			Get: func(it model.Item) (any, bool) {
				if it.Follow == nil {
					return nil, false
				}
				return *it.Follow, true
			},
			Set: func(it *model.Item, state any) {
				s := state.(model.FollowState)
				it.Follow = &s
			},
		},
		{
			Entity: querykey.BlockEntity,
			Kind:   model.KindUser,
			Namespaces: []querykey.Namespace{
				querykey.UserProfile, querykey.Followers, querykey.Following,
				querykey.UserSearch, querykey.Blocks,
			},
			Get: func(it model.Item) (any, bool) {
				if it.Block == nil {
					return nil, false
				}
				return *it.Block, true
			},
			Set: func(it *model.Item, state any) {
				s := state.(model.BlockState)
				it.Block = &s
			},
		},
		{
			Entity:     querykey.NotificationEntity,
			Kind:       model.KindNotification,
			Namespaces: []querykey.Namespace{querykey.Notifications},
			Get: func(it model.Item) (any, bool) {
				if it.Notification == nil {
					return nil, false
				}
				return *it.Notification, true
			},
			Set: func(it *model.Item, state any) {
				s := state.(model.NotificationState)
				it.Notification = &s
			},
		},
		{
			Entity:     querykey.ToReadEntity,
			Kind:       model.KindBook,
			Namespaces: []querykey.Namespace{querykey.ToRead, querykey.Book},
			Get: func(it model.Item) (any, bool) {
				if it.ToRead == nil {
					return nil, false
				}
				return *it.ToRead, true
			},
			Set: func(it *model.Item, state any) {
				s := state.(model.ToReadState)
				it.ToRead = &s
			},
		},
	}
}
