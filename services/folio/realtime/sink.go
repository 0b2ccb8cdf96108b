// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package realtime

import (
	"log/slog"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/entity"
	"github.com/AleutianAI/Folio/services/folio/model"
)

// Sink applies pushes to the cache, one batch per message.
type Sink struct {
	store   *cache.Store
	modules *entity.Modules
	logger  *slog.Logger
}

// NewSink creates a Sink writing through modules.
func NewSink(store *cache.Store, modules *entity.Modules, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, modules: modules, logger: logger.With(slog.String("component", "realtime_sink"))}
}

// OnNotification inserts a new notification. Duplicates are ignored.
func (s *Sink) OnNotification(it model.Item) error {
	return s.store.Batch(func(tx *cache.Tx) error {
		if !s.modules.Notifications.Insert(tx, it) {
			s.logger.Debug("duplicate notification ignored", slog.String("id", it.ID.String()))
		}
		return nil
	})
}

// OnFollowRequestOutcome resolves a pending follow request.
func (s *Sink) OnFollowRequestOutcome(o FollowRequestOutcome) error {
	return s.store.Batch(func(tx *cache.Tx) error {
		s.modules.Follows.ApplyRequestOutcome(tx, o.UserID, o.Status)
		return nil
	})
}

// OnUnreadCount stores the server's unread count.
func (s *Sink) OnUnreadCount(n uint) error {
	return s.store.Batch(func(tx *cache.Tx) error {
		s.modules.Notifications.SetUnread(tx, n)
		return nil
	})
}

var _ Handler = (*Sink)(nil)
