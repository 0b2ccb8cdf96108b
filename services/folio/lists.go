// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package folio

import (
	"context"
	"fmt"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/entity"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/pagination"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/transport"
)

// list returns the List for key, creating it on first use. One List exists
// per key so concurrent LoadMore calls from different callers coalesce.
func (c *Client) list(key querykey.Key, r transport.Resource) *pagination.List {
	c.listsMu.Lock()
	defer c.listsMu.Unlock()
	if l, ok := c.lists[key.String()]; ok {
		return l
	}
	l := pagination.NewList(key, func(ctx context.Context, page int) (model.Page, error) {
		return c.api.FetchPage(ctx, r, page)
	}, c.listDeps())
	c.lists[key.String()] = l
	return l
}

// listDeps is called with listsMu held.
func (c *Client) listDeps() pagination.Deps {
	deps := pagination.Deps{
		Store:   c.store,
		Fetches: c.fetches,
		Views:   c.views,
		Logger:  c.logger,
	}
	if !c.manual {
		deps.Background = c.bg
	}
	return deps
}

// Feed is the viewer's home feed.
func (c *Client) Feed() *pagination.List {
	return c.list(querykey.New(querykey.Feed), transport.FeedResource())
}

// MyReviews lists reviews written by the viewer.
func (c *Client) MyReviews() *pagination.List {
	return c.list(querykey.New(querykey.MyReviews), transport.MyReviewsResource())
}

// UserReviews lists reviews written by a user.
func (c *Client) UserReviews(userID model.ID) *pagination.List {
	return c.list(querykey.New(querykey.UserReviews, userID.String()), transport.UserReviewsResource(userID))
}

// BookReviews lists reviews of a book.
func (c *Client) BookReviews(bookID model.ID) *pagination.List {
	return c.list(querykey.New(querykey.BookReviews, bookID.String()), transport.BookReviewsResource(bookID))
}

// Followers lists a user's followers.
func (c *Client) Followers(userID model.ID) *pagination.List {
	return c.list(querykey.New(querykey.Followers, userID.String()), transport.FollowersResource(userID))
}

// Following lists the users a user follows.
func (c *Client) Following(userID model.ID) *pagination.List {
	return c.list(querykey.New(querykey.Following, userID.String()), transport.FollowingResource(userID))
}

// SearchUsers lists users matching query.
func (c *Client) SearchUsers(query string) *pagination.List {
	return c.list(querykey.New(querykey.UserSearch, query), transport.UserSearchResource(query))
}

// Blocks lists the users the viewer blocked.
func (c *Client) Blocks() *pagination.List {
	return c.list(querykey.New(querykey.Blocks), transport.BlocksResource())
}

// Notifications lists the viewer's notifications, newest first.
func (c *Client) Notifications() *pagination.List {
	return c.list(entity.NotificationListKey(), transport.NotificationsResource())
}

// ToReadList is the viewer's reading list.
func (c *Client) ToReadList() *pagination.List {
	return c.list(entity.ToReadListKey(), transport.ToReadResource())
}

// LoadReview fetches a review into the review detail cache.
func (c *Client) LoadReview(ctx context.Context, reviewID model.ID) (model.Item, error) {
	return c.loadDetail(ctx, querykey.New(querykey.Review, reviewID.String()), transport.ReviewResource(reviewID))
}

// LoadUser fetches a user into the profile cache.
func (c *Client) LoadUser(ctx context.Context, userID model.ID) (model.Item, error) {
	return c.loadDetail(ctx, querykey.New(querykey.UserProfile, userID.String()), transport.UserResource(userID))
}

// LoadBook fetches a book into the book detail cache.
func (c *Client) LoadBook(ctx context.Context, bookID model.ID) (model.Item, error) {
	return c.loadDetail(ctx, querykey.New(querykey.Book, bookID.String()), transport.BookResource(bookID))
}

// loadDetail fetches one record and stores it at key. The stored item is
// what Observe returns, so a field held by an in-flight mutation shows the
// optimistic value.
func (c *Client) loadDetail(ctx context.Context, key querykey.Key, r transport.Resource) (model.Item, error) {
	tk := c.fetches.Begin(ctx, key)
	defer tk.Done()

	it, err := c.api.FetchItem(tk.Context(), r)
	if err != nil {
		return model.Item{}, fmt.Errorf("load %s: %w", key.String(), err)
	}
	var stored model.Item
	err = tk.Commit(func(tx *cache.Tx) error {
		stored = c.views.Observe(tx, []model.Item{it})[0]
		tx.Put(key, model.Detail{Item: stored})
		return nil
	})
	if err != nil {
		return model.Item{}, err
	}
	return stored, nil
}

// RefreshUnreadCount fetches the server's unread count.
func (c *Client) RefreshUnreadCount(ctx context.Context) (uint, error) {
	tk := c.fetches.Begin(ctx, entity.UnreadKey())
	defer tk.Done()

	n, err := c.api.UnreadCount(tk.Context())
	if err != nil {
		return 0, fmt.Errorf("refresh unread count: %w", err)
	}
	err = tk.Commit(func(tx *cache.Tx) error {
		c.modules.Notifications.SetUnread(tx, n)
		return nil
	})
	if err != nil {
		return c.UnreadCount(), err
	}
	return n, nil
}
