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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
)

const (
	canonicalPrefix = "canon/"
	unreadKey       = "meta/unread"
)

// record is the stored form of one canonical entry.
type record struct {
	Entity querykey.EntityType `json:"entity"`
	ID     model.ID            `json:"id"`
	State  json.RawMessage     `json:"state"`
}

// SaveStats reports what Save wrote.
type SaveStats struct {
	Entries   int
	HasUnread bool
}

// Save replaces the stored snapshot with the store's current canonical
// entries and unread count.
func (d *DB) Save(ctx context.Context, store *cache.Store) (SaveStats, error) {
	if err := ctx.Err(); err != nil {
		return SaveStats{}, fmt.Errorf("context cancelled: %w", err)
	}

	var (
		entries []cache.Entry
		unread  any
		hasUnr  bool
	)
	store.Read(func(tx *cache.Tx) {
		entries = tx.FindAll(querykey.Prefix(querykey.New(querykey.EntityNamespace)))
		unread, hasUnr = tx.Get(querykey.New(querykey.UnreadCount))
	})

	writes := make(map[string][]byte, len(entries))
	var stats SaveStats
	for _, e := range entries {
		if !e.Key.IsCanonical() {
			continue
		}
		state, err := json.Marshal(e.Value)
		if err != nil {
			return SaveStats{}, fmt.Errorf("encode %s: %w", e.Key, err)
		}
		val, err := json.Marshal(record{
			Entity: querykey.EntityType(e.Key.At(1)),
			ID:     model.ID(e.Key.At(2)),
			State:  state,
		})
		if err != nil {
			return SaveStats{}, fmt.Errorf("encode %s: %w", e.Key, err)
		}
		writes[canonicalPrefix+e.Key.String()] = val
		stats.Entries++
	}
	var unreadVal []byte
	if n, ok := unread.(uint); hasUnr && ok {
		unreadVal, _ = json.Marshal(map[string]uint{"count": n})
		stats.HasUnread = true
	}

	// One transaction: a failed save leaves the previous snapshot whole.
	err := d.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(canonicalPrefix)})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			if _, keep := writes[string(it.Item().Key())]; !keep {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		for k, v := range writes {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("write %s: %w", k, err)
			}
		}
		if unreadVal == nil {
			return txn.Delete([]byte(unreadKey))
		}
		return txn.Set([]byte(unreadKey), unreadVal)
	})
	if err != nil {
		return SaveStats{}, fmt.Errorf("write snapshot: %w", err)
	}

	d.logger.Debug("snapshot saved",
		slog.Int("entries", stats.Entries),
		slog.Bool("unread", stats.HasUnread),
	)
	return stats, nil
}

// Hydrate loads the stored snapshot into store in one batch. Keys already
// present in the store are left alone. Returns the number of entries written.
func (d *DB) Hydrate(ctx context.Context, store *cache.Store) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	type loaded struct {
		key   querykey.Key
		value any
	}
	var items []loaded

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: []byte(canonicalPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				d.logger.Warn("skipping unreadable record", slog.String("key", string(it.Item().Key())), slog.String("error", err.Error()))
				continue
			}
			v, err := decodeState(rec.Entity, rec.State)
			if err != nil {
				d.logger.Warn("skipping unreadable record", slog.String("key", string(it.Item().Key())), slog.String("error", err.Error()))
				continue
			}
			items = append(items, loaded{key: querykey.Canonical(rec.Entity, rec.ID.String()), value: v})
		}

		item, err := txn.Get([]byte(unreadKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var body struct {
				Count uint `json:"count"`
			}
			if err := json.Unmarshal(val, &body); err != nil {
				return fmt.Errorf("decode unread count: %w", err)
			}
			items = append(items, loaded{key: querykey.New(querykey.UnreadCount), value: body.Count})
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}

	written := 0
	err = store.Batch(func(tx *cache.Tx) error {
		for _, l := range items {
			if _, ok := tx.Get(l.key); ok {
				continue
			}
			tx.Put(l.key, l.value)
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.logger.Debug("snapshot hydrated", slog.Int("entries", written))
	return written, nil
}

// Wipe deletes everything stored.
func (d *DB) Wipe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := d.db.DropAll(); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	return nil
}

// decodeState returns the typed canonical value for entity.
func decodeState(entity querykey.EntityType, raw json.RawMessage) (any, error) {
	switch entity {
	case querykey.LikeEntity:
		return decodeAs[model.LikeState](raw)
	case querykey.FollowEntity:
		return decodeAs[model.FollowState](raw)
	case querykey.BlockEntity:
		return decodeAs[model.BlockState](raw)
	case querykey.NotificationEntity:
		return decodeAs[model.NotificationState](raw)
	case querykey.ToReadEntity:
		return decodeAs[model.ToReadState](raw)
	case querykey.ViewerEntity:
		return decodeAs[model.ViewerState](raw)
	}
	return nil, fmt.Errorf("unknown entity type %q", entity)
}

func decodeAs[S any](raw json.RawMessage) (any, error) {
	var s S
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}
