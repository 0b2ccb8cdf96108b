// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
)

func seed(t *testing.T) *cache.Store {
	t.Helper()
	store := cache.NewStore()
	require.NoError(t, store.Batch(func(tx *cache.Tx) error {
		tx.Put(querykey.Canonical(querykey.LikeEntity, "1"), model.LikeState{IsLiked: true, LikesCount: 3})
		tx.Put(querykey.Canonical(querykey.FollowEntity, "2"), model.FollowState{FollowersCount: 8, FollowRequestStatus: model.RequestPending})
		tx.Put(querykey.Canonical(querykey.BlockEntity, "2"), model.BlockState{IsBlocked: true})
		tx.Put(querykey.Canonical(querykey.ToReadEntity, "9"), model.ToReadState{InList: true})
		tx.Put(querykey.Canonical(querykey.ViewerEntity, "self"), model.ViewerState{FollowingCount: 4})
		tx.Put(querykey.New(querykey.UnreadCount), uint(5))
		tx.Put(querykey.New(querykey.Feed), &model.PaginatedView{})
		return nil
	}))
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestSaveAndHydrate(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	stats, err := db.Save(ctx, seed(t))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Entries)
	assert.True(t, stats.HasUnread)

	fresh := cache.NewStore()
	n, err := db.Hydrate(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	v, ok := fresh.Get(querykey.Canonical(querykey.LikeEntity, "1"))
	require.True(t, ok)
	assert.Equal(t, model.LikeState{IsLiked: true, LikesCount: 3}, v)

	v, ok = fresh.Get(querykey.Canonical(querykey.FollowEntity, "2"))
	require.True(t, ok)
	assert.Equal(t, model.FollowState{FollowersCount: 8, FollowRequestStatus: model.RequestPending}, v)

	v, ok = fresh.Get(querykey.New(querykey.UnreadCount))
	require.True(t, ok)
	assert.Equal(t, uint(5), v)

	_, ok = fresh.Get(querykey.New(querykey.Feed))
	assert.False(t, ok, "views are not persisted")
}

func TestHydrate_KeepsNewerInMemoryState(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.Save(ctx, seed(t))
	require.NoError(t, err)

	live := cache.NewStore()
	key := querykey.Canonical(querykey.LikeEntity, "1")
	live.Put(key, model.LikeState{LikesCount: 10})

	_, err = db.Hydrate(ctx, live)
	require.NoError(t, err)
	v, _ := live.Get(key)
	assert.Equal(t, model.LikeState{LikesCount: 10}, v)
}

func TestSave_ReplacesPreviousSnapshot(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.Save(ctx, seed(t))
	require.NoError(t, err)

	small := cache.NewStore()
	small.Put(querykey.Canonical(querykey.LikeEntity, "7"), model.LikeState{LikesCount: 1})
	stats, err := db.Save(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)

	fresh := cache.NewStore()
	_, err = db.Hydrate(ctx, fresh)
	require.NoError(t, err)
	_, ok := fresh.Get(querykey.Canonical(querykey.LikeEntity, "1"))
	assert.False(t, ok)
	_, ok = fresh.Get(querykey.Canonical(querykey.LikeEntity, "7"))
	assert.True(t, ok)
	assert.False(t, stats.HasUnread)
	_, ok = fresh.Get(querykey.New(querykey.UnreadCount))
	assert.False(t, ok, "an unread count no longer cached is not restored")
}

func TestSave_FailureKeepsPreviousSnapshot(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.Save(ctx, seed(t))
	require.NoError(t, err)

	broken := cache.NewStore()
	broken.Put(querykey.Canonical(querykey.LikeEntity, "7"), model.LikeState{LikesCount: 1})
	broken.Put(querykey.Canonical(querykey.LikeEntity, "8"), make(chan int))
	_, err = db.Save(ctx, broken)
	require.Error(t, err)

	fresh := cache.NewStore()
	n, err := db.Hydrate(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, ok := fresh.Get(querykey.Canonical(querykey.LikeEntity, "7"))
	assert.False(t, ok)
	v, ok := fresh.Get(querykey.New(querykey.UnreadCount))
	require.True(t, ok)
	assert.Equal(t, uint(5), v)
}

func TestWipe(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.Save(ctx, seed(t))
	require.NoError(t, err)
	require.NoError(t, db.Wipe(ctx))

	fresh := cache.NewStore()
	n, err := db.Hydrate(ctx, fresh)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersistsAcrossReopen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.SyncWrites = false
	ctx := context.Background()

	db, err := Open(cfg)
	require.NoError(t, err)
	_, err = db.Save(ctx, seed(t))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "second close is a no-op")

	db2, err := Open(cfg)
	require.NoError(t, err)
	defer db2.Close()
	fresh := cache.NewStore()
	n, err := db2.Hydrate(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestCancelledContext(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.Save(ctx, cache.NewStore())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = db.Hydrate(ctx, cache.NewStore())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, db.Wipe(ctx), context.Canceled)
}
