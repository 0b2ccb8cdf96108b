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
	"github.com/AleutianAI/Folio/services/folio/views"
)

// Modules groups every entity module over one store.
type Modules struct {
	Likes         *Likes
	Follows       *Follows
	Blocks        *Blocks
	Notifications *Notifications
	ToRead        *ToRead
	Viewer        *Viewer
}

// NewModules wires all modules to store and reg.
func NewModules(store *cache.Store, reg *views.Registry) *Modules {
	viewer := NewViewer(store, reg)
	follows := NewFollows(store, reg, viewer)
	return &Modules{
		Likes:         NewLikes(store, reg),
		Follows:       follows,
		Blocks:        NewBlocks(store, reg, follows),
		Notifications: NewNotifications(store, reg),
		ToRead:        NewToRead(store, reg),
		Viewer:        viewer,
	}
}
