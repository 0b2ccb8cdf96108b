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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeItem_Review(t *testing.T) {
	raw := json.RawMessage(`{"id": 42, "author_id": 9, "is_liked": false, "likes_count": 3,
		"title": "Dune", "content": "spice", "book": {"title": "Dune"}}`)

	it, err := DecodeItem(KindReview, raw)
	require.NoError(t, err)

	assert.Equal(t, KindReview, it.Kind)
	assert.Equal(t, ID("42"), it.ID)
	assert.Equal(t, ID("9"), it.AuthorID)
	require.NotNil(t, it.Like)
	assert.Equal(t, LikeState{IsLiked: false, LikesCount: 3}, *it.Like)
	assert.Nil(t, it.Follow)
	assert.Equal(t, "Dune", it.Attrs["title"])
	assert.Equal(t, "spice", it.Attrs["content"])
	_, owned := it.Attrs["likes_count"]
	assert.False(t, owned, "owned fields must not leak into Attrs")
}

func TestDecodeItem_UserFollowAndBlock(t *testing.T) {
	raw := json.RawMessage(`{"id": "u7", "kind": "user", "is_following": false,
		"followers_count": 12, "follow_request_status": "pending", "is_blocked": true}`)

	it, err := DecodeItem(KindReview, raw)
	require.NoError(t, err)

	assert.Equal(t, KindUser, it.Kind, "record kind wins over the endpoint default")
	require.NotNil(t, it.Follow)
	assert.Equal(t, RequestPending, it.Follow.FollowRequestStatus)
	assert.Equal(t, uint(12), it.Follow.FollowersCount)
	require.NotNil(t, it.Block)
	assert.True(t, it.Block.IsBlocked)
	assert.Nil(t, it.Like)
}

func TestDecodeItem_Errors(t *testing.T) {
	_, err := DecodeItem(KindReview, json.RawMessage(`{"title": "no id"}`))
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = DecodeItem("", json.RawMessage(`{"id": 1}`))
	assert.Error(t, err)

	_, err = DecodeItem(KindReview, json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestItem_JSONRoundTrip(t *testing.T) {
	orig := Item{
		Kind:     KindNotification,
		ID:       "n1",
		AuthorID: "3",
		Notification: &NotificationState{
			IsRead: true,
		},
		Attrs: map[string]any{"message": "hello"},
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Item
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, orig, back)
}

func TestItem_CloneIsIndependent(t *testing.T) {
	it := Item{Kind: KindReview, ID: "1", Like: &LikeState{IsLiked: true, LikesCount: 1}}
	c := it.Clone()
	c.Like.LikesCount = 99

	assert.Equal(t, uint(1), it.Like.LikesCount)
}

func TestDecodePage(t *testing.T) {
	raw := []byte(`{"data": [{"id": 1, "likes_count": 2}, {"id": 2}],
		"meta": {"total": 30, "per_page": 2, "current_page": 1, "last_page": 15}}`)

	page, err := DecodePage(KindReview, raw)
	require.NoError(t, err)

	assert.Len(t, page.Data, 2)
	assert.Equal(t, PageMeta{Total: 30, PerPage: 2, CurrentPage: 1, LastPage: 15}, page.Meta)
	assert.True(t, page.Meta.HasMore())
	assert.NotNil(t, page.Data[0].Like)
	assert.Nil(t, page.Data[1].Like)
}

func TestPaginatedView_Clone(t *testing.T) {
	v := &PaginatedView{Pages: []Page{{Data: []Item{{Kind: KindReview, ID: "1", Like: &LikeState{}}}}}}
	c := v.Clone()
	c.Pages[0].Data[0].Like.LikesCount = 5
	c.Pages[0].Data = append(c.Pages[0].Data, Item{ID: "2"})

	assert.Len(t, v.Pages[0].Data, 1)
	assert.Equal(t, uint(0), v.Pages[0].Data[0].Like.LikesCount)
	assert.Len(t, c.Items(), 2)

	var nilView *PaginatedView
	assert.Nil(t, nilView.Clone())
	_, ok := nilView.LastMeta()
	assert.False(t, ok)
}

func TestDec_Saturates(t *testing.T) {
	assert.Equal(t, uint(0), Dec(0))
	assert.Equal(t, uint(4), Dec(5))
}
