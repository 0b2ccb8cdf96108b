// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupServer(t *testing.T) (*Backend, *httptest.Server) {
	t.Helper()
	b := NewBackend()
	b.Seed(6, 25)
	srv := httptest.NewServer(NewRouter(b, nil))
	t.Cleanup(srv.Close)
	return b, srv
}

func serve(t *testing.T, b *Backend, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	NewRouter(b, nil).ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	w := serve(t, NewBackend(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestPagination(t *testing.T) {
	b := NewBackend()
	b.Seed(3, 25)

	w := serve(t, b, http.MethodGet, "/books/2/reviews?per_page=3&page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp PageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// reviews 1,4,7,...,25 are by user 2: nine in all.
	assert.Equal(t, 9, resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.LastPage)
	assert.Equal(t, 2, resp.Meta.CurrentPage)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "16", resp.Data[0]["id"])

	w = serve(t, b, http.MethodGet, "/books/2/reviews?per_page=3&page=9", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
	assert.NotContains(t, w.Body.String(), `"data":null`)

	w = serve(t, b, http.MethodGet, "/blocks", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Meta.LastPage)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestErrors(t *testing.T) {
	b := NewBackend()
	b.Seed(2, 2)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing review", http.MethodGet, "/reviews/99", nil, http.StatusNotFound, "NOT_FOUND"},
		{"follow self", http.MethodPost, "/users/1/follow", nil, http.StatusForbidden, "FORBIDDEN"},
		{"missing followers", http.MethodGet, "/users/99/followers", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad to-read body", http.MethodPost, "/to-read", map[string]any{}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"remove absent book", http.MethodDelete, "/to-read/2", nil, http.StatusNotFound, "NOT_FOUND"},
		{"no pending request", http.MethodPost, "/admin/follow-requests/2", map[string]any{"accept": true}, http.StatusConflict, "NO_REQUEST"},
		{"bad fail status", http.MethodPost, "/admin/fail", map[string]any{"op": "like", "status": 200}, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, b, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestInjectedFailure(t *testing.T) {
	b := NewBackend()
	b.Seed(2, 2)

	w := serve(t, b, http.MethodPost, "/admin/fail", map[string]any{"op": "like", "status": 503, "count": 2})
	require.Equal(t, http.StatusNoContent, w.Code)

	for i := 0; i < 2; i++ {
		w = serve(t, b, http.MethodPost, "/reviews/1/like", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "INJECTED")
	}
	w = serve(t, b, http.MethodPost, "/reviews/1/like", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Other operations are unaffected.
	b.FailNext("follow", 500, 1)
	w = serve(t, b, http.MethodGet, "/reviews/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBackend_FollowPrivateAndResolve(t *testing.T) {
	b := NewBackend()
	b.Seed(3, 0) // user 4 is private

	st, err := b.Follow("4")
	require.NoError(t, err)
	assert.Equal(t, "pending", st["follow_request_status"])
	assert.Equal(t, false, st["is_following"])

	ok, err := b.ResolveFollowRequest("4", true)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := b.User("4")
	require.NoError(t, err)
	assert.Equal(t, true, u["is_following"])
	assert.Equal(t, 1, u["followers_count"])

	ok, err = b.ResolveFollowRequest("4", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_BlockHidesAndForbids(t *testing.T) {
	b := NewBackend()
	b.Seed(2, 4)

	_, err := b.Follow("2")
	require.NoError(t, err)
	assert.Len(t, b.Feed(), 2)

	require.NoError(t, b.Block("2"))
	assert.Empty(t, b.Feed())
	assert.Empty(t, b.UserReviews("2"))
	assert.Len(t, b.Blocks(), 1)

	_, err = b.Follow("2")
	assert.ErrorIs(t, err, errForbidden)

	require.NoError(t, b.Unblock("2"))
	assert.Len(t, b.UserReviews("2"), 2)
	assert.Empty(t, b.Feed(), "block dropped the follow")
}

func TestBackend_Notifications(t *testing.T) {
	b := NewBackend()
	first := b.Notify("one")
	b.Notify("two")
	assert.Equal(t, 2, b.UnreadCount())

	list := b.Notifications()
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0]["message"])

	require.NoError(t, b.MarkRead(first["id"].(string)))
	assert.Equal(t, 1, b.UnreadCount())
	b.MarkAllRead()
	assert.Equal(t, 0, b.UnreadCount())

	require.NoError(t, b.DeleteNotification(first["id"].(string)))
	assert.ErrorIs(t, b.DeleteNotification(first["id"].(string)), errNotFound)
	assert.Len(t, b.Notifications(), 1)
}

// The HTTP client and the mock server agree on the wire contract.
func TestHTTPClient_AgainstMock(t *testing.T) {
	b, srv := setupServer(t)
	ctx := context.Background()
	api := transport.NewHTTPClient(srv.URL)

	like, err := api.SetLike(ctx, "3", true)
	require.NoError(t, err)
	require.NotNil(t, like)
	assert.Equal(t, model.LikeState{IsLiked: true, LikesCount: 1}, *like)

	st, err := api.Follow(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, st.FollowRequestStatus)
	require.NoError(t, api.CancelFollowRequest(ctx, "4"))

	st, err = api.Follow(ctx, "2")
	require.NoError(t, err)
	assert.True(t, st.IsFollowing)
	assert.Equal(t, uint(1), st.FollowersCount)

	page, err := api.FetchPage(ctx, transport.FeedResource(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Meta.Total)
	require.NotEmpty(t, page.Data)
	assert.Equal(t, model.KindReview, page.Data[0].Kind)
	assert.Equal(t, model.ID("2"), page.Data[0].AuthorID)

	users, err := api.FetchPage(ctx, transport.UserSearchResource("reader 2"), 1)
	require.NoError(t, err)
	require.Len(t, users.Data, 1)
	require.NotNil(t, users.Data[0].Follow)
	assert.True(t, users.Data[0].Follow.IsFollowing)

	require.NoError(t, api.AddToReadList(ctx, "5"))
	book, err := api.FetchItem(ctx, transport.BookResource("5"))
	require.NoError(t, err)
	require.NotNil(t, book.ToRead)
	assert.True(t, book.ToRead.InList)
	require.NoError(t, api.RemoveFromReadList(ctx, "5"))

	n := b.Notify("hello")
	count, err := api.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), count)
	require.NoError(t, api.MarkNotificationRead(ctx, model.ID(n["id"].(string))))
	count, err = api.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, api.Block(ctx, "2"))
	_, err = api.Follow(ctx, "2")
	assert.ErrorIs(t, err, transport.ErrUnauthorized)

	_, err = api.FetchItem(ctx, transport.ReviewResource("404"))
	assert.ErrorIs(t, err, transport.ErrNotFound)
}

func TestHandlePush(t *testing.T) {
	b, srv := setupServer(t)
	_, err := b.Follow("4")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return b.hub.count() == 1 }, time.Second, 10*time.Millisecond)

	b.Notify("new follower")
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification.created", msg.Type)
	it, err := model.DecodeItem(model.KindNotification, msg.Data)
	require.NoError(t, err)
	require.NotNil(t, it.Notification)
	assert.False(t, it.Notification.IsRead)

	ok, err := b.ResolveFollowRequest("4", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "follow_request.resolved", msg.Type)
	assert.JSONEq(t, `{"user_id":"4","status":"rejected"}`, string(msg.Data))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return b.hub.count() == 0 }, time.Second, 10*time.Millisecond)
}
