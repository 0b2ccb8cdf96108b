// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Folio/services/folio/model"
)

func TestHTTPClient_SetLike(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"is_liked":true,"likes_count":4}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", WithAuthToken("secret"))
	st, err := c.SetLike(context.Background(), "42", true)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, model.LikeState{IsLiked: true, LikesCount: 4}, *st)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/reviews/42/like", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)

	_, err = c.SetLike(context.Background(), "42", false)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestHTTPClient_EmptyBodyMeansNoState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st, err := NewHTTPClient(srv.URL).Follow(context.Background(), "7")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestHTTPClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		sentinel  error
		retryable bool
	}{
		{"not found", http.StatusNotFound, ErrNotFound, false},
		{"forbidden", http.StatusForbidden, ErrUnauthorized, false},
		{"server", http.StatusBadGateway, ErrServer, true},
		{"throttled", http.StatusTooManyRequests, ErrServer, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := NewHTTPClient(srv.URL).Block(context.Background(), "3")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.status, te.Status)
			assert.Equal(t, "block", te.Op)
			assert.Equal(t, tt.retryable, te.Retryable())
			assert.Contains(t, te.Error(), "nope")
		})
	}
}

func TestHTTPClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewHTTPClient(url).Unblock(context.Background(), "3")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.Status)
	assert.True(t, te.Retryable())
}

func TestHTTPClient_FetchPage(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{
			"data": [{"id": 1, "author_id": 9, "is_liked": false, "likes_count": 2, "content": "great"}],
			"meta": {"total": 3, "per_page": 1, "current_page": 2, "last_page": 3}
		}`))
	}))
	defer srv.Close()

	p, err := NewHTTPClient(srv.URL).FetchPage(context.Background(), FeedResource(), 2)
	require.NoError(t, err)
	assert.Equal(t, "page=2", gotQuery)
	assert.Equal(t, model.PageMeta{Total: 3, PerPage: 1, CurrentPage: 2, LastPage: 3}, p.Meta)
	require.Len(t, p.Data, 1)
	it := p.Data[0]
	assert.Equal(t, model.KindReview, it.Kind)
	assert.Equal(t, model.ID("1"), it.ID)
	assert.Equal(t, model.ID("9"), it.AuthorID)
	assert.Equal(t, uint(2), it.Like.LikesCount)
	assert.Equal(t, "great", it.Attrs["content"])
}

func TestHTTPClient_FetchPageWithQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[],"meta":{"current_page":1,"last_page":1}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).FetchPage(context.Background(), UserSearchResource("ann lee"), 1)
	require.NoError(t, err)
	assert.Equal(t, "q=ann+lee&page=1", gotQuery)

	_, err = NewHTTPClient(srv.URL, WithPageSize(5)).FetchPage(context.Background(), FeedResource(), 3)
	require.NoError(t, err)
	assert.Equal(t, "page=3&per_page=5", gotQuery)
}

func TestHTTPClient_FetchItemAndBody(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/5":
			_, _ = w.Write([]byte(`{"data":{"id":"5","is_following":true,"followers_count":10,"name":"ann"}}`))
		case "/to-read":
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
		case "/notifications/unread-count":
			_, _ = w.Write([]byte(`{"count":3}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := NewHTTPClient(srv.URL)
	ctx := context.Background()

	it, err := c.FetchItem(ctx, UserResource("5"))
	require.NoError(t, err)
	assert.Equal(t, model.KindUser, it.Kind)
	assert.True(t, it.Follow.IsFollowing)
	assert.Equal(t, model.RequestNone, it.Follow.FollowRequestStatus)

	require.NoError(t, c.AddToReadList(ctx, "11"))
	assert.Equal(t, map[string]string{"book_id": "11"}, body)

	n, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(3), n)

	_, err = c.FetchItem(ctx, ReviewResource("404"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPClient_RateLimitHonoursContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithRateLimit(0.001, 1))
	require.NoError(t, c.MarkAllNotificationsRead(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.MarkAllNotificationsRead(ctx)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	err := NewHTTPClient("http://example.invalid").Block(nil, "1")
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestResources(t *testing.T) {
	assert.Equal(t, "/users/a%2Fb/followers", FollowersResource("a/b").Path)
	assert.Equal(t, "/me/reviews", MyReviewsResource().Path)
	assert.Equal(t, "/reviews/%2E%2E", ReviewResource("..").Path, "dot segments are not collapsed")
	assert.Equal(t, model.KindBook, ToReadResource().Kind)
	assert.Equal(t, model.KindNotification, NotificationsResource().Kind)
}

func TestHTTPClient_EscapesIDsInPaths(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := NewHTTPClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, c.RemoveFromReadList(ctx, "a/b"))
	require.NoError(t, c.MarkNotificationRead(ctx, "7?all=1"))
	require.NoError(t, c.DeleteNotification(ctx, ".."))
	require.NoError(t, c.Block(ctx, "."))

	assert.Equal(t, []string{
		"DELETE /to-read/a%2Fb",
		"POST /notifications/7%3Fall=1/read",
		"DELETE /notifications/%2E%2E",
		"POST /users/%2E/block",
	}, got)
}
