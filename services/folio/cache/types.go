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
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/Folio/services/folio/querykey"
)

// Default configuration values.
const (
	// DefaultStaleAfter is how long a written entry is considered fresh.
	// Zero disables time-based staleness; entries then go stale only when
	// marked explicitly.
	DefaultStaleAfter = 0 * time.Second
)

var (
	// ErrStaleData is returned when a fetch result is committed after a newer
	// write to the same key. The result must be discarded.
	ErrStaleData = errors.New("stale fetch result discarded")

	// ErrBatchAborted wraps the error that made a batch discard its writes.
	ErrBatchAborted = errors.New("cache batch aborted")
)

// Entry is a snapshot of one cache entry.
type Entry struct {
	// Key addresses the entry.
	Key querykey.Key

	// Value is the cached snapshot. Values are immutable; writers replace
	// them instead of mutating them in place.
	Value any

	// Version increases on every write or removal of the key.
	Version uint64

	// UpdatedAtMilli is when the value was last written (Unix millis).
	UpdatedAtMilli int64

	// Stale is true once the entry was marked for revalidation.
	Stale bool
}

// Updater computes the next value from the current one. ok is false when the
// key holds no value.
type Updater func(current any, ok bool) any

// EventType describes a change delivered to subscribers.
type EventType int

const (
	// EventSet is a write of a new value.
	EventSet EventType = iota

	// EventRemove is the removal of a key.
	EventRemove

	// EventStale is an entry being marked stale.
	EventStale

	// EventClear is the whole store being cleared. Key is zero.
	EventClear
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventSet:
		return "set"
	case EventRemove:
		return "remove"
	case EventStale:
		return "stale"
	case EventClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Event is one change notification.
type Event struct {
	Type    EventType
	Key     querykey.Key
	Value   any
	Version uint64
}

// Token pins the state of a key at one moment. A write made after the token
// was taken makes Check fail with ErrStaleData.
type Token struct {
	Key     querykey.Key
	Version uint64
	Epoch   uint64
}

// StoreStats contains statistics about the store.
type StoreStats struct {
	// EntryCount is the number of live entries.
	EntryCount int

	// Subscribers is the number of active subscriptions.
	Subscribers int

	// Hits and Misses count exact-key reads.
	Hits   int64
	Misses int64

	// Writes counts committed key writes and removals.
	Writes int64

	// Batches counts committed batches; Aborted counts discarded ones.
	Batches int64
	Aborted int64

	// StaleDiscards counts token checks that failed.
	StaleDiscards int64
}

// HitRate returns the read hit rate as a percentage.
func (s StoreStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// StaleAfter marks entries stale once they are older than this.
	StaleAfter time.Duration

	// Logger receives store events. Nil uses slog.Default().
	Logger *slog.Logger

	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// DefaultStoreOptions returns sensible defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		StaleAfter: DefaultStaleAfter,
	}
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*StoreOptions)

// WithStaleAfter sets the freshness window.
func WithStaleAfter(d time.Duration) StoreOption {
	return func(o *StoreOptions) {
		if d >= 0 {
			o.StaleAfter = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(o *StoreOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(o *StoreOptions) {
		if now != nil {
			o.Now = now
		}
	}
}
