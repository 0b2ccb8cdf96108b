// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/Folio/services/folio/querykey"
)

// entry is the stored form of an Entry.
type entry struct {
	key            querykey.Key
	value          any
	version        uint64
	updatedAtMilli int64
	stale          bool
}

func (e *entry) snapshot(stale bool) Entry {
	return Entry{
		Key:            e.key,
		Value:          e.value,
		Version:        e.version,
		UpdatedAtMilli: e.updatedAtMilli,
		Stale:          stale,
	}
}

type subscription struct {
	id   uint64
	pred querykey.Predicate
	cb   func(Event)
}

// Store is the keyed cache shared by every Folio component.
//
// One Store is created per signed-in session and injected into every module.
// All access is serialised behind one mutex: a Batch is the unit of
// atomicity, and no partial batch is ever observable. Subscriber callbacks
// run after the batch commits, outside the lock, in registration order.
//
// Thread Safety:
//
//	Safe for concurrent use. Callbacks passed to Batch must not call back
//	into the same Store; they receive a Tx for that.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	versions map[string]uint64 // survives removal so tokens see deletes
	seq      uint64
	epoch    uint64

	subs   []*subscription
	subSeq uint64

	options StoreOptions
	logger  *slog.Logger

	// Stats
	hits          int64
	misses        int64
	writes        int64
	batches       int64
	aborted       int64
	staleDiscards int64
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	options := DefaultStoreOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		entries:  make(map[string]*entry),
		versions: make(map[string]uint64),
		options:  options,
		logger:   logger.With(slog.String("component", "cache_store")),
	}
}

// Get returns the value at key.
func (s *Store) Get(key querykey.Key) (any, bool) {
	e, ok := s.Entry(key)
	return e.Value, ok
}

// Entry returns the full entry at key.
func (s *Store) Entry(key querykey.Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		recordStoreRead(context.Background(), false)
		return Entry{}, false
	}
	atomic.AddInt64(&s.hits, 1)
	recordStoreRead(context.Background(), true)
	return e.snapshot(s.isStaleLocked(e)), true
}

// Set applies updater to the value at key and stores the result.
func (s *Store) Set(key querykey.Key, updater Updater) Entry {
	var done *Tx
	_ = s.Batch(func(tx *Tx) error {
		tx.Update(key, updater)
		done = tx
		return nil
	})
	return done.committed[key.String()]
}

// Put stores value at key.
func (s *Store) Put(key querykey.Key, value any) {
	_ = s.Batch(func(tx *Tx) error {
		tx.Put(key, value)
		return nil
	})
}

// Remove deletes key. It reports whether the key existed.
func (s *Store) Remove(key querykey.Key) bool {
	var existed bool
	_ = s.Batch(func(tx *Tx) error {
		_, existed = tx.Get(key)
		tx.Remove(key)
		return nil
	})
	return existed
}

// FindAll returns every entry whose key matches pred, sorted by key.
//
// Complexity: O(active keys).
func (s *Store) FindAll(pred querykey.Predicate) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if pred(e.key) {
			out = append(out, e.snapshot(s.isStaleLocked(e)))
		}
	}
	sortEntries(out)
	return out
}

// Version returns the write version of key. Zero means never written since
// the last Clear.
func (s *Store) Version(key querykey.Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[key.String()]
}

// Token pins key at its current version.
func (s *Store) Token(key querykey.Key) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Token{Key: key, Version: s.versions[key.String()], Epoch: s.epoch}
}

// MarkStale flags every matching entry for revalidation and returns how many
// entries were flagged.
func (s *Store) MarkStale(pred querykey.Predicate) int {
	var n int
	_ = s.Batch(func(tx *Tx) error {
		n = tx.MarkStale(pred)
		return nil
	})
	return n
}

// IsStale reports whether key holds a value that needs revalidation.
// Missing keys are not stale; they are absent.
func (s *Store) IsStale(key querykey.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok {
		return false
	}
	return s.isStaleLocked(e)
}

// Subscribe registers cb for every committed change whose key matches pred.
// Clear events are delivered to every subscriber. The returned function
// removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(pred querykey.Predicate, cb func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	s.subSeq++
	sub := &subscription{id: s.subSeq, pred: pred, cb: cb}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, other := range s.subs {
				if other.id == sub.id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Clear drops every entry and invalidates every outstanding Token.
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*entry)
	s.versions = make(map[string]uint64)
	s.epoch++
	subs := s.subsSnapshotLocked()
	s.mu.Unlock()

	s.logger.Info("store cleared", slog.Int("entries", n))
	s.dispatch(subs, []Event{{Type: EventClear}})
}

// Stats returns current store statistics.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StoreStats{
		EntryCount:    len(s.entries),
		Subscribers:   len(s.subs),
		Hits:          atomic.LoadInt64(&s.hits),
		Misses:        atomic.LoadInt64(&s.misses),
		Writes:        atomic.LoadInt64(&s.writes),
		Batches:       atomic.LoadInt64(&s.batches),
		Aborted:       atomic.LoadInt64(&s.aborted),
		StaleDiscards: atomic.LoadInt64(&s.staleDiscards),
	}
}

// Batch runs fn with exclusive access to the store and commits its writes
// atomically. If fn returns an error or panics, nothing is written.
//
// Description:
//
//	Batch is the only write path. Single-key helpers (Set, Put, Remove,
//	MarkStale) are one-operation batches. A sync pass that rewrites many
//	views for one entity runs inside one batch, so readers observe either
//	none or all of it.
//
// Outputs:
//
//	error - nil on commit; otherwise wraps ErrBatchAborted and fn's error.
//
// Thread Safety:
//
//	Safe for concurrent use. fn must not call methods on s.
func (s *Store) Batch(fn func(tx *Tx) error) error {
	events, subs, err := s.runBatch(fn)
	if err != nil {
		atomic.AddInt64(&s.aborted, 1)
		recordBatchAborted(context.Background())
		return err
	}
	s.dispatch(subs, events)
	return nil
}

// Read runs fn with a consistent view of the store. Writes staged by fn are
// discarded.
func (s *Store) Read(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)
	defer func() { tx.closed = true }()
	fn(tx)
}

func (s *Store) runBatch(fn func(tx *Tx) error) ([]Event, []*subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)
	defer func() { tx.closed = true }()

	if err := fn(tx); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBatchAborted, err)
	}

	events := tx.commitLocked()
	atomic.AddInt64(&s.batches, 1)
	if len(events) == 0 {
		return nil, nil, nil
	}
	return events, s.subsSnapshotLocked(), nil
}

func (s *Store) subsSnapshotLocked() []*subscription {
	out := make([]*subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *Store) dispatch(subs []*subscription, events []Event) {
	if len(events) == 0 {
		return
	}
	ctx := context.Background()
	for _, ev := range events {
		for _, sub := range subs {
			if ev.Type == EventClear || sub.pred(ev.Key) {
				sub.cb(ev)
				recordNotification(ctx, ev.Type)
			}
		}
	}
}

func (s *Store) isStaleLocked(e *entry) bool {
	if e.stale {
		return true
	}
	if s.options.StaleAfter <= 0 {
		return false
	}
	age := s.options.Now().Sub(time.UnixMilli(e.updatedAtMilli))
	return age > s.options.StaleAfter
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})
}
