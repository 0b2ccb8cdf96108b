// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport is the boundary to the remote API.
//
// The engine only depends on the API interface. HTTPClient is the reference
// implementation against the JSON API served by the mock server; tests use
// in-memory fakes.
package transport

import (
	"context"
	"net/url"
	"strings"

	"github.com/AleutianAI/Folio/services/folio/model"
)

// API is the set of remote calls the engine makes.
//
// Mutation calls may return the server's authoritative state; a nil state
// means the server did not send one and the optimistic value is kept.
type API interface {
	SetLike(ctx context.Context, reviewID model.ID, liked bool) (*model.LikeState, error)

	Follow(ctx context.Context, userID model.ID) (*model.FollowState, error)
	Unfollow(ctx context.Context, userID model.ID) (*model.FollowState, error)
	CancelFollowRequest(ctx context.Context, userID model.ID) error

	Block(ctx context.Context, userID model.ID) error
	Unblock(ctx context.Context, userID model.ID) error

	AddToReadList(ctx context.Context, bookID model.ID) error
	RemoveFromReadList(ctx context.Context, bookID model.ID) error

	MarkNotificationRead(ctx context.Context, id model.ID) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id model.ID) error
	UnreadCount(ctx context.Context) (uint, error)

	// FetchPage returns one page (1-based) of a list resource.
	FetchPage(ctx context.Context, r Resource, page int) (model.Page, error)

	// FetchItem returns a single record.
	FetchItem(ctx context.Context, r Resource) (model.Item, error)
}

// Resource names a remote collection or record and the kind of its items.
type Resource struct {
	Path string
	Kind model.ItemKind
}

func resource(kind model.ItemKind, parts ...string) Resource {
	return Resource{Path: join(parts...), Kind: kind}
}

// join escapes each part as one path segment. Dot segments are percent
// encoded so nothing on the way resolves them against their parent.
func join(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		switch p {
		case ".":
			b.WriteString("%2E")
		case "..":
			b.WriteString("%2E%2E")
		default:
			b.WriteString(url.PathEscape(p))
		}
	}
	return b.String()
}

// Resources of the remote API.
func FeedResource() Resource { return resource(model.KindReview, "feed") }

func ReviewResource(id model.ID) Resource {
	return resource(model.KindReview, "reviews", id.String())
}

func UserReviewsResource(userID model.ID) Resource {
	return resource(model.KindReview, "users", userID.String(), "reviews")
}

func MyReviewsResource() Resource { return resource(model.KindReview, "me", "reviews") }

func BookReviewsResource(bookID model.ID) Resource {
	return resource(model.KindReview, "books", bookID.String(), "reviews")
}

func BookResource(bookID model.ID) Resource {
	return resource(model.KindBook, "books", bookID.String())
}

func UserResource(userID model.ID) Resource {
	return resource(model.KindUser, "users", userID.String())
}

func FollowersResource(userID model.ID) Resource {
	return resource(model.KindUser, "users", userID.String(), "followers")
}

func FollowingResource(userID model.ID) Resource {
	return resource(model.KindUser, "users", userID.String(), "following")
}

func UserSearchResource(query string) Resource {
	r := resource(model.KindUser, "users")
	r.Path += "?q=" + url.QueryEscape(query)
	return r
}

func BlocksResource() Resource { return resource(model.KindUser, "blocks") }

func NotificationsResource() Resource {
	return resource(model.KindNotification, "notifications")
}

func ToReadResource() Resource { return resource(model.KindBook, "to-read") }
