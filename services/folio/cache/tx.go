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
	"sync/atomic"

	"github.com/AleutianAI/Folio/services/folio/querykey"
)

type pending struct {
	key     querykey.Key
	value   any
	removed bool
}

// Tx is the view of the store inside a Batch. Reads see the batch's own
// staged writes. A Tx must not be used after its batch returns.
type Tx struct {
	s          *Store
	writes     map[string]*pending
	order      []string
	staleMarks map[string]querykey.Key
	staleOrder []string
	committed  map[string]Entry
	closed     bool
}

func newTx(s *Store) *Tx {
	return &Tx{
		s:          s,
		writes:     make(map[string]*pending),
		staleMarks: make(map[string]querykey.Key),
		committed:  make(map[string]Entry),
	}
}

func (tx *Tx) mustOpen() {
	if tx.closed {
		panic("cache: Tx used after its batch returned")
	}
}

// Get returns the value at key as seen by this batch.
func (tx *Tx) Get(key querykey.Key) (any, bool) {
	tx.mustOpen()
	k := key.String()
	if p, ok := tx.writes[k]; ok {
		if p.removed {
			return nil, false
		}
		return p.value, true
	}
	e, ok := tx.s.entries[k]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Entry returns the entry at key as seen by this batch. Staged writes report
// the version they replace; the new version is assigned at commit.
func (tx *Tx) Entry(key querykey.Key) (Entry, bool) {
	tx.mustOpen()
	k := key.String()
	if p, ok := tx.writes[k]; ok {
		if p.removed {
			return Entry{}, false
		}
		return Entry{Key: key, Value: p.value, Version: tx.s.versions[k]}, true
	}
	e, ok := tx.s.entries[k]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(tx.s.isStaleLocked(e)), true
}

// Put stages value at key.
func (tx *Tx) Put(key querykey.Key, value any) {
	tx.mustOpen()
	tx.stage(key, value, false)
}

// Update stages updater's result at key.
func (tx *Tx) Update(key querykey.Key, updater Updater) {
	cur, ok := tx.Get(key)
	tx.stage(key, updater(cur, ok), false)
}

// Remove stages the removal of key.
func (tx *Tx) Remove(key querykey.Key) {
	tx.mustOpen()
	tx.stage(key, nil, true)
}

func (tx *Tx) stage(key querykey.Key, value any, removed bool) {
	k := key.String()
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = &pending{key: key, value: value, removed: removed}
}

// FindAll returns every entry matching pred as seen by this batch, sorted by key.
func (tx *Tx) FindAll(pred querykey.Predicate) []Entry {
	tx.mustOpen()
	var out []Entry
	for k, e := range tx.s.entries {
		if _, staged := tx.writes[k]; staged {
			continue
		}
		if pred(e.key) {
			out = append(out, e.snapshot(tx.s.isStaleLocked(e)))
		}
	}
	for _, k := range tx.order {
		p := tx.writes[k]
		if p.removed || !pred(p.key) {
			continue
		}
		out = append(out, Entry{Key: p.key, Value: p.value, Version: tx.s.versions[k]})
	}
	sortEntries(out)
	return out
}

// MarkStale flags every matching entry for revalidation when the batch
// commits. It returns the number of entries flagged.
func (tx *Tx) MarkStale(pred querykey.Predicate) int {
	tx.mustOpen()
	n := 0
	for _, e := range tx.FindAll(pred) {
		k := e.Key.String()
		if _, ok := tx.staleMarks[k]; !ok {
			tx.staleMarks[k] = e.Key
			tx.staleOrder = append(tx.staleOrder, k)
		}
		n++
	}
	return n
}

// Check fails with ErrStaleData when key was written, removed or cleared
// after tok was taken.
func (tx *Tx) Check(tok Token) error {
	tx.mustOpen()
	if tok.Epoch != tx.s.epoch || tx.s.versions[tok.Key.String()] != tok.Version {
		atomic.AddInt64(&tx.s.staleDiscards, 1)
		recordStaleDiscard(context.Background())
		return ErrStaleData
	}
	return nil
}

// Version returns the committed write version of key.
func (tx *Tx) Version(key querykey.Key) uint64 {
	tx.mustOpen()
	return tx.s.versions[key.String()]
}

// commitLocked applies staged writes and stale marks. Caller holds s.mu.
func (tx *Tx) commitLocked() []Event {
	s := tx.s
	now := s.options.Now().UnixMilli()
	events := make([]Event, 0, len(tx.order)+len(tx.staleOrder))

	for _, k := range tx.order {
		p := tx.writes[k]
		if p.removed {
			if _, ok := s.entries[k]; !ok {
				continue
			}
			delete(s.entries, k)
			s.seq++
			s.versions[k] = s.seq
			atomic.AddInt64(&s.writes, 1)
			events = append(events, Event{Type: EventRemove, Key: p.key, Version: s.seq})
			continue
		}

		s.seq++
		s.versions[k] = s.seq
		e := &entry{key: p.key, value: p.value, version: s.seq, updatedAtMilli: now}
		s.entries[k] = e
		atomic.AddInt64(&s.writes, 1)
		tx.committed[k] = e.snapshot(false)
		events = append(events, Event{Type: EventSet, Key: p.key, Value: p.value, Version: s.seq})
	}

	for _, k := range tx.staleOrder {
		e, ok := s.entries[k]
		if !ok || e.stale {
			continue
		}
		e.stale = true
		events = append(events, Event{Type: EventStale, Key: e.key, Value: e.value, Version: e.version})
	}

	return events
}
