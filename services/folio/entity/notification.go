// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package entity

import (
	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/views"
)

// UnreadKey addresses the cached unread notification count.
func UnreadKey() querykey.Key {
	return querykey.New(querykey.UnreadCount)
}

// NotificationListKey addresses the viewer's notification list.
func NotificationListKey() querykey.Key {
	return querykey.New(querykey.Notifications)
}

// Notifications owns per-record read flags and the unread count. The count
// is cached independently and only moves when a record's flag flips.
type Notifications struct {
	Module[model.NotificationState]
}

// NewNotifications creates the notification module.
func NewNotifications(store *cache.Store, reg *views.Registry) *Notifications {
	return &Notifications{Module: newModule(querykey.NotificationEntity, model.DefaultNotification, store, reg)}
}

// UnreadCount returns the cached unread count.
func (n *Notifications) UnreadCount() uint {
	var c uint
	n.store.Read(func(tx *cache.Tx) {
		c = n.Unread(tx)
	})
	return c
}

// Unread returns the unread count as seen by tx. Zero when never fetched.
func (n *Notifications) Unread(tx *cache.Tx) uint {
	if v, ok := tx.Get(UnreadKey()); ok {
		if c, ok := v.(uint); ok {
			return c
		}
	}
	return 0
}

// SetUnread stores an authoritative unread count.
func (n *Notifications) SetUnread(tx *cache.Tx, count uint) {
	tx.Put(UnreadKey(), count)
}

// setUnread writes count. If nothing else moved the count by the time the
// Undo runs, the prior value is reinstated exactly; otherwise only this
// change is given back.
func (n *Notifications) setUnread(tx *cache.Tx, count uint) Undo {
	key := UnreadKey()
	prev, present := tx.Get(key)
	old := n.Unread(tx)
	tx.Put(key, count)

	var u Undo
	u.add(func(tx *cache.Tx) {
		now := n.Unread(tx)
		switch {
		case now != count:
			tx.Put(key, uint(max(0, int(now)+int(old)-int(count))))
		case present:
			tx.Put(key, prev)
		default:
			tx.Remove(key)
		}
	})
	return u
}

// MarkRead marks notification id read. It is idempotent: the unread count
// only drops when a known record flips from unread to read.
func (n *Notifications) MarkRead(tx *cache.Tx, id model.ID) (bool, Undo) {
	cur, known := n.Known(tx, id)
	if cur.IsRead {
		return false, Undo{}
	}
	u := n.apply(tx, id, model.NotificationState{IsRead: true})
	if known {
		u = u.Then(n.setUnread(tx, model.Dec(n.Unread(tx))))
	}
	return true, u
}

// MarkAllRead marks every cached notification read and zeroes the unread
// count. It returns the number of records that changed.
func (n *Notifications) MarkAllRead(tx *cache.Tx) (int, Undo) {
	seen := make(map[model.ID]struct{})
	var ids []model.ID
	addID := func(id model.ID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, e := range tx.FindAll(querykey.Prefix(querykey.CanonicalPrefix(n.entity))) {
		addID(model.ID(e.Key.Last()))
	}
	for _, it := range n.views.Items(tx, n.entity) {
		addID(it.ID)
	}

	var u Undo
	changed := 0
	read := model.NotificationState{IsRead: true}
	for _, id := range ids {
		if n.Current(tx, id).IsRead {
			continue
		}
		u = u.Then(n.apply(tx, id, read))
		changed++
	}
	return changed, u.Then(n.setUnread(tx, 0))
}

// Remove deletes notification id from every notification view. The unread
// count drops only if the record was known and unread.
func (n *Notifications) Remove(tx *cache.Tx, id model.ID) (bool, Undo) {
	cur, known := n.Known(tx, id)

	key := n.Key(id)
	prev, hadKey := tx.Get(key)

	removed := n.views.Extract(tx, []querykey.Namespace{querykey.Notifications}, func(it model.Item) bool {
		return it.Kind == model.KindNotification && it.ID == id
	})
	tx.Remove(key)

	var u Undo
	u.add(func(tx *cache.Tx) { n.views.Reinsert(tx, removed) })
	u.add(func(tx *cache.Tx) {
		if hadKey {
			tx.Put(key, prev)
		}
	})

	if known && !cur.IsRead {
		u = u.Then(n.setUnread(tx, model.Dec(n.Unread(tx))))
	}
	return known || removed.Len() > 0, u
}

// Insert adds a server-pushed notification to the top of the cached list.
// Records already known are ignored.
func (n *Notifications) Insert(tx *cache.Tx, it model.Item) bool {
	if it.Kind != model.KindNotification || it.ID == "" {
		return false
	}
	if _, known := n.Known(tx, it.ID); known {
		return false
	}
	if it.Notification == nil {
		it = it.Clone()
		st := model.DefaultNotification
		it.Notification = &st
	}

	tx.Put(n.Key(it.ID), *it.Notification)
	n.views.InsertFirst(tx, NotificationListKey(), it)
	if !it.Notification.IsRead {
		n.SetUnread(tx, n.Unread(tx)+1)
	}
	return true
}
