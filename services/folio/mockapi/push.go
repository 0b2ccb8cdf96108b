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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type pushMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// client is one connected websocket. Writes are serialised by mu.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(msg pushMessage) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := c.conn.WriteJSON(msg)
		c.mu.Unlock()
		if err != nil {
			slog.Warn("Failed to write WebSocket JSON", "error", err)
			h.remove(c)
			_ = c.conn.Close()
		}
	}
}

// HandlePush handles GET /ws/notifications.
func (h *Handlers) HandlePush(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}
	cl := &client{conn: ws}
	h.backend.hub.add(cl)
	h.logger.Info("push client connected")
	defer func() {
		h.backend.hub.remove(cl)
		_ = ws.Close()
		h.logger.Info("push client disconnected")
	}()

	// Clients never send; reading only detects the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
