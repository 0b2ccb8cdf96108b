// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ItemKind tags the variant of an embedded record.
type ItemKind string

const (
	KindReview       ItemKind = "review"
	KindComment      ItemKind = "comment"
	KindUser         ItemKind = "user"
	KindNotification ItemKind = "notification"
	KindBook         ItemKind = "book"
)

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	switch k {
	case KindReview, KindComment, KindUser, KindNotification, KindBook:
		return true
	}
	return false
}

// ErrMissingID is returned when a wire record has no usable id.
var ErrMissingID = errors.New("record has no id")

// Item is one record embedded in a view.
//
// The owned field groups (Like, Follow, Block, Notification, ToRead) are the
// only parts cross-view sync may rewrite. Everything else the server sent is
// kept verbatim in Attrs. Which groups may be present depends on Kind:
//
//	review, comment   Like
//	user              Follow, Block
//	notification      Notification
//	book              ToRead
type Item struct {
	Kind     ItemKind
	ID       ID
	AuthorID ID

	Like         *LikeState
	Follow       *FollowState
	Block        *BlockState
	Notification *NotificationState
	ToRead       *ToReadState

	// Attrs is shared between clones and must not be mutated.
	Attrs map[string]any
}

// Clone returns a copy whose owned groups can be replaced independently.
func (it Item) Clone() Item {
	out := it
	if it.Like != nil {
		v := *it.Like
		out.Like = &v
	}
	if it.Follow != nil {
		v := *it.Follow
		out.Follow = &v
	}
	if it.Block != nil {
		v := *it.Block
		out.Block = &v
	}
	if it.Notification != nil {
		v := *it.Notification
		out.Notification = &v
	}
	if it.ToRead != nil {
		v := *it.ToRead
		out.ToRead = &v
	}
	return out
}

// Attr returns a display attribute.
func (it Item) Attr(name string) (any, bool) {
	v, ok := it.Attrs[name]
	return v, ok
}

// wire field names owned by typed groups; never copied into Attrs.
var ownedFields = map[string]struct{}{
	"id": {}, "kind": {}, "author_id": {},
	"is_liked": {}, "likes_count": {},
	"is_following": {}, "followers_count": {}, "follow_request_status": {},
	"is_blocked": {}, "has_blocked_me": {},
	"is_read":    {},
	"is_in_list": {},
}

// DecodeItem parses one wire record. kind is used when the record does not
// carry its own "kind" field.
func DecodeItem(kind ItemKind, raw json.RawMessage) (Item, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Item{}, fmt.Errorf("decode item: %w", err)
	}

	it := Item{Kind: kind}
	if k, ok := fields["kind"]; ok {
		var s string
		if err := json.Unmarshal(k, &s); err == nil && ItemKind(s).Valid() {
			it.Kind = ItemKind(s)
		}
	}
	if !it.Kind.Valid() {
		return Item{}, fmt.Errorf("decode item: unknown kind %q", it.Kind)
	}

	id, err := decodeID(fields["id"])
	if err != nil || id == "" {
		return Item{}, ErrMissingID
	}
	it.ID = id
	if a, ok := fields["author_id"]; ok {
		if author, err := decodeID(a); err == nil {
			it.AuthorID = author
		}
	}

	switch it.Kind {
	case KindReview, KindComment:
		if has(fields, "is_liked", "likes_count") {
			var s LikeState
			decodeInto(fields, "is_liked", &s.IsLiked)
			decodeInto(fields, "likes_count", &s.LikesCount)
			it.Like = &s
		}
	case KindUser:
		if has(fields, "is_following", "followers_count", "follow_request_status") {
			s := DefaultFollow
			decodeInto(fields, "is_following", &s.IsFollowing)
			decodeInto(fields, "followers_count", &s.FollowersCount)
			decodeInto(fields, "follow_request_status", &s.FollowRequestStatus)
			if !s.FollowRequestStatus.Valid() {
				s.FollowRequestStatus = RequestNone
			}
			it.Follow = &s
		}
		if has(fields, "is_blocked", "has_blocked_me") {
			var s BlockState
			decodeInto(fields, "is_blocked", &s.IsBlocked)
			decodeInto(fields, "has_blocked_me", &s.HasBlockedMe)
			it.Block = &s
		}
	case KindNotification:
		if has(fields, "is_read") {
			var s NotificationState
			decodeInto(fields, "is_read", &s.IsRead)
			it.Notification = &s
		}
	case KindBook:
		if has(fields, "is_in_list") {
			var s ToReadState
			decodeInto(fields, "is_in_list", &s.InList)
			it.ToRead = &s
		}
	}

	attrs := make(map[string]any, len(fields))
	for name, v := range fields {
		if _, owned := ownedFields[name]; owned {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return Item{}, fmt.Errorf("decode item attr %s: %w", name, err)
		}
		attrs[name] = decoded
	}
	it.Attrs = attrs

	return it, nil
}

// MarshalJSON writes the flat wire shape DecodeItem reads.
func (it Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Attrs)+8)
	for k, v := range it.Attrs {
		out[k] = v
	}
	out["id"] = it.ID
	out["kind"] = it.Kind
	if it.AuthorID != "" {
		out["author_id"] = it.AuthorID
	}
	if it.Like != nil {
		out["is_liked"] = it.Like.IsLiked
		out["likes_count"] = it.Like.LikesCount
	}
	if it.Follow != nil {
		out["is_following"] = it.Follow.IsFollowing
		out["followers_count"] = it.Follow.FollowersCount
		out["follow_request_status"] = it.Follow.FollowRequestStatus
	}
	if it.Block != nil {
		out["is_blocked"] = it.Block.IsBlocked
		out["has_blocked_me"] = it.Block.HasBlockedMe
	}
	if it.Notification != nil {
		out["is_read"] = it.Notification.IsRead
	}
	if it.ToRead != nil {
		out["is_in_list"] = it.ToRead.InList
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire shape. The record must carry "kind".
func (it *Item) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeItem("", data)
	if err != nil {
		return err
	}
	*it = decoded
	return nil
}

func has(fields map[string]json.RawMessage, names ...string) bool {
	for _, n := range names {
		if _, ok := fields[n]; ok {
			return true
		}
	}
	return false
}

func decodeInto(fields map[string]json.RawMessage, name string, dst any) {
	if raw, ok := fields[name]; ok {
		_ = json.Unmarshal(raw, dst)
	}
}

// decodeID accepts a JSON number or string.
func decodeID(raw json.RawMessage) (ID, error) {
	if len(raw) == 0 {
		return "", ErrMissingID
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ID(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		return IntID(i), nil
	}
	return ID(n.String()), nil
}
