// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model holds the value types cached by Folio: canonical entity
// states, the tagged item variant embedded in views, and paginated pages.
//
// Every value stored in the cache is treated as immutable. Code that needs a
// changed value builds a new one (see Item.Clone and PaginatedView.Clone).
package model

import (
	"strconv"
)

// ID identifies a review, user, book or notification. Numeric server ids are
// normalised to their decimal string.
type ID string

// IntID converts a numeric id.
func IntID(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// String returns the id text.
func (id ID) String() string {
	return string(id)
}

// LikeState is the canonical like fact for one review.
type LikeState struct {
	IsLiked    bool `json:"is_liked"`
	LikesCount uint `json:"likes_count"`
}

// FollowRequestStatus tracks a follow request sent to a private account.
type FollowRequestStatus string

const (
	RequestNone     FollowRequestStatus = "none"
	RequestPending  FollowRequestStatus = "pending"
	RequestAccepted FollowRequestStatus = "accepted"
	RequestRejected FollowRequestStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s FollowRequestStatus) Valid() bool {
	switch s {
	case RequestNone, RequestPending, RequestAccepted, RequestRejected:
		return true
	}
	return false
}

// FollowState is the canonical follow relationship between the viewer and one user.
type FollowState struct {
	IsFollowing         bool                `json:"is_following"`
	FollowersCount      uint                `json:"followers_count"`
	FollowRequestStatus FollowRequestStatus `json:"follow_request_status"`
}

// BlockState is the canonical block relationship between the viewer and one user.
type BlockState struct {
	IsBlocked    bool `json:"is_blocked"`
	HasBlockedMe bool `json:"has_blocked_me"`
}

// NotificationState is the owned part of a notification record.
type NotificationState struct {
	IsRead bool `json:"is_read"`
}

// ToReadState records whether a book is in the viewer's reading list.
type ToReadState struct {
	InList bool `json:"in_list"`
}

// ViewerState holds the signed-in viewer's own counters.
type ViewerState struct {
	FollowingCount uint `json:"following_count"`
}

// Defaults used when canonical state is created by a first mutation.
var (
	DefaultLike         = LikeState{}
	DefaultFollow       = FollowState{FollowRequestStatus: RequestNone}
	DefaultBlock        = BlockState{}
	DefaultNotification = NotificationState{}
	DefaultToRead       = ToReadState{}
	DefaultViewer       = ViewerState{}
)

// Dec returns n-1, saturating at zero.
func Dec(n uint) uint {
	if n == 0 {
		return 0
	}
	return n - 1
}
