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

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/entity"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/mutation"
	"github.com/AleutianAI/Folio/services/folio/querykey"
)

// Every intent below returns the state the cache holds once the mutation
// has settled: the server's value on success, the pre-mutation value after
// a rollback. Errors from the remote call are wrapped with the intent name
// and match transport errors with errors.Is.

func prefixes(namespaces ...querykey.Namespace) []querykey.Key {
	out := make([]querykey.Key, len(namespaces))
	for i, ns := range namespaces {
		out[i] = querykey.New(ns)
	}
	return out
}

// bound returns the namespace prefixes embedding entity, plus extra.
func (c *Client) bound(entity querykey.EntityType, extra ...querykey.Namespace) []querykey.Key {
	return prefixes(append(c.views.Namespaces(entity), extra...)...)
}

func noResult(call func(ctx context.Context) error) func(ctx context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	}
}

// ToggleLike likes a review the viewer has not liked, and unlikes it
// otherwise.
func (c *Client) ToggleLike(ctx context.Context, reviewID model.ID) (model.LikeState, error) {
	const intent = "like.toggle"
	if err := checkID(intent, "review id", &reviewID); err != nil {
		return model.LikeState{}, err
	}
	likes := c.modules.Likes
	var liked bool
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[*model.LikeState]{
		Name:   intent,
		Hold:   []querykey.Key{likes.Key(reviewID)},
		Cancel: c.bound(querykey.LikeEntity),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			next, u := likes.Toggle(tx, reviewID)
			liked = next.IsLiked
			return u, nil
		},
		Call: func(ctx context.Context) (*model.LikeState, error) {
			return c.api.SetLike(ctx, reviewID, liked)
		},
		Commit: func(tx *cache.Tx, st *model.LikeState) {
			if st != nil {
				likes.Write(tx, reviewID, *st)
			}
		},
		Settle: c.bound(querykey.LikeEntity),
	})
	return c.LikeState(reviewID), err
}

// Follow follows a user. For a private account a follow request is filed
// instead and the viewer is not following until it is accepted.
func (c *Client) Follow(ctx context.Context, userID model.ID, targetIsPrivate bool) (model.FollowState, error) {
	const intent = "follow.follow"
	if err := checkID(intent, "user id", &userID); err != nil {
		return model.FollowState{}, err
	}
	follows := c.modules.Follows
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[*model.FollowState]{
		Name:   intent,
		Hold:   []querykey.Key{follows.Key(userID), c.modules.Viewer.Key(entity.SelfID)},
		Cancel: c.bound(querykey.FollowEntity),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := follows.Follow(tx, userID, targetIsPrivate)
			return u, nil
		},
		Call: func(ctx context.Context) (*model.FollowState, error) {
			return c.api.Follow(ctx, userID)
		},
		Commit: func(tx *cache.Tx, st *model.FollowState) {
			if st != nil {
				follows.Reconcile(tx, userID, *st)
			}
		},
		Settle: c.bound(querykey.FollowEntity, querykey.Feed),
	})
	return c.FollowState(userID), err
}

// Unfollow stops following a user and drops their reviews from the feed.
func (c *Client) Unfollow(ctx context.Context, userID model.ID) (model.FollowState, error) {
	const intent = "follow.unfollow"
	if err := checkID(intent, "user id", &userID); err != nil {
		return model.FollowState{}, err
	}
	follows := c.modules.Follows
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[*model.FollowState]{
		Name:   intent,
		Hold:   []querykey.Key{follows.Key(userID), c.modules.Viewer.Key(entity.SelfID)},
		Cancel: c.bound(querykey.FollowEntity, querykey.Feed),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := follows.Unfollow(tx, userID)
			return u, nil
		},
		Call: func(ctx context.Context) (*model.FollowState, error) {
			return c.api.Unfollow(ctx, userID)
		},
		Commit: func(tx *cache.Tx, st *model.FollowState) {
			if st != nil {
				follows.Reconcile(tx, userID, *st)
			}
		},
		Settle: c.bound(querykey.FollowEntity, querykey.Feed),
	})
	return c.FollowState(userID), err
}

// CancelFollowRequest withdraws a pending follow request.
func (c *Client) CancelFollowRequest(ctx context.Context, userID model.ID) (model.FollowState, error) {
	const intent = "follow.cancel_request"
	if err := checkID(intent, "user id", &userID); err != nil {
		return model.FollowState{}, err
	}
	follows := c.modules.Follows
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name:   intent,
		Hold:   []querykey.Key{follows.Key(userID)},
		Cancel: c.bound(querykey.FollowEntity),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := follows.CancelRequest(tx, userID)
			return u, nil
		},
		Call: noResult(func(ctx context.Context) error {
			return c.api.CancelFollowRequest(ctx, userID)
		}),
		Settle: prefixes(querykey.UserProfile),
	})
	return c.FollowState(userID), err
}

// BlockUser blocks a user. Any follow relationship with them ends.
func (c *Client) BlockUser(ctx context.Context, userID model.ID) (model.BlockState, error) {
	const intent = "block.block"
	if err := checkID(intent, "user id", &userID); err != nil {
		return model.BlockState{}, err
	}
	blocks := c.modules.Blocks
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name: intent,
		Hold: []querykey.Key{
			blocks.Key(userID),
			c.modules.Follows.Key(userID),
			c.modules.Viewer.Key(entity.SelfID),
		},
		Cancel: c.bound(querykey.BlockEntity, querykey.Feed),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := blocks.Block(tx, userID)
			return u, nil
		},
		Call: noResult(func(ctx context.Context) error {
			return c.api.Block(ctx, userID)
		}),
		Settle: append(
			prefixes(querykey.Feed, querykey.Followers, querykey.Following, querykey.Blocks),
			querykey.New(querykey.UserProfile, userID.String()),
		),
	})
	return c.BlockState(userID), err
}

// UnblockUser lifts the viewer's block on a user.
func (c *Client) UnblockUser(ctx context.Context, userID model.ID) (model.BlockState, error) {
	const intent = "block.unblock"
	if err := checkID(intent, "user id", &userID); err != nil {
		return model.BlockState{}, err
	}
	blocks := c.modules.Blocks
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name:   intent,
		Hold:   []querykey.Key{blocks.Key(userID)},
		Cancel: c.bound(querykey.BlockEntity),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := blocks.Unblock(tx, userID)
			return u, nil
		},
		Call: noResult(func(ctx context.Context) error {
			return c.api.Unblock(ctx, userID)
		}),
		Settle: append(prefixes(querykey.Blocks), querykey.New(querykey.UserProfile, userID.String())),
	})
	return c.BlockState(userID), err
}

// AddToReadList puts a book in the reading list. book is the record to
// show at the top of the cached list; when nil, a cached copy is used if
// one exists.
func (c *Client) AddToReadList(ctx context.Context, bookID model.ID, book *model.Item) (bool, error) {
	const intent = "to_read.add"
	if err := checkID(intent, "book id", &bookID); err != nil {
		return false, err
	}
	toRead := c.modules.ToRead
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name:   intent,
		Hold:   []querykey.Key{toRead.Key(bookID)},
		Cancel: c.bound(querykey.ToReadEntity),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := toRead.Add(tx, bookID, book)
			return u, nil
		},
		Call: noResult(func(ctx context.Context) error {
			return c.api.AddToReadList(ctx, bookID)
		}),
		Settle: append(prefixes(querykey.ToRead), querykey.New(querykey.Book, bookID.String())),
	})
	return c.IsBookInList(bookID), err
}

// RemoveFromReadList takes a book out of the reading list.
func (c *Client) RemoveFromReadList(ctx context.Context, bookID model.ID) (bool, error) {
	const intent = "to_read.remove"
	if err := checkID(intent, "book id", &bookID); err != nil {
		return false, err
	}
	toRead := c.modules.ToRead
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name:   intent,
		Hold:   []querykey.Key{toRead.Key(bookID)},
		Cancel: c.bound(querykey.ToReadEntity),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := toRead.Remove(tx, bookID)
			return u, nil
		},
		Call: noResult(func(ctx context.Context) error {
			return c.api.RemoveFromReadList(ctx, bookID)
		}),
		Settle: append(prefixes(querykey.ToRead), querykey.New(querykey.Book, bookID.String())),
	})
	return c.IsBookInList(bookID), err
}

// notificationKeys are the prefixes every notification intent cancels and
// settles.
func notificationKeys() []querykey.Key {
	return prefixes(querykey.Notifications, querykey.UnreadCount)
}

// MarkNotificationRead marks one notification read. Marking a read
// notification again changes nothing.
func (c *Client) MarkNotificationRead(ctx context.Context, id model.ID) (uint, error) {
	const intent = "notification.mark_read"
	if err := checkID(intent, "notification id", &id); err != nil {
		return 0, err
	}
	n := c.modules.Notifications
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name:   intent,
		Hold:   []querykey.Key{n.Key(id)},
		Cancel: notificationKeys(),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := n.MarkRead(tx, id)
			return u, nil
		},
		Call: noResult(func(ctx context.Context) error {
			return c.api.MarkNotificationRead(ctx, id)
		}),
		Settle: notificationKeys(),
	})
	return c.UnreadCount(), err
}

// MarkAllNotificationsRead marks every notification read and zeroes the
// unread count.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (uint, error) {
	const intent = "notification.mark_all_read"
	n := c.modules.Notifications
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name:   intent,
		Cancel: notificationKeys(),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := n.MarkAllRead(tx)
			return u, nil
		},
		Call:   noResult(c.api.MarkAllNotificationsRead),
		Settle: notificationKeys(),
	})
	return c.UnreadCount(), err
}

// DeleteNotification removes a notification from every cached list.
func (c *Client) DeleteNotification(ctx context.Context, id model.ID) (uint, error) {
	const intent = "notification.delete"
	if err := checkID(intent, "notification id", &id); err != nil {
		return 0, err
	}
	n := c.modules.Notifications
	_, err := mutation.Run(ctx, c.orch, mutation.Mutation[struct{}]{
		Name:   intent,
		Hold:   []querykey.Key{n.Key(id)},
		Cancel: notificationKeys(),
		Apply: func(tx *cache.Tx) (entity.Undo, error) {
			_, u := n.Remove(tx, id)
			return u, nil
		},
		Call: noResult(func(ctx context.Context) error {
			return c.api.DeleteNotification(ctx, id)
		}),
		Settle: notificationKeys(),
	})
	return c.UnreadCount(), err
}
