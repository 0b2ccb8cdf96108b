// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package realtime feeds server pushes into the cache.
//
// A Listener keeps a websocket open to the notification stream and hands
// each decoded message to a Handler. Sink is the Handler that writes pushes
// through the entity modules, so a new notification bumps the unread count
// and shows up at the top of the cached list, and a resolved follow request
// updates every view of that user.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/Folio/services/folio/model"
)

// MessageType names a push.
type MessageType string

const (
	// MsgNotification carries a new notification record.
	MsgNotification MessageType = "notification.created"

	// MsgFollowRequest carries {"user_id", "status"} for a resolved request.
	MsgFollowRequest MessageType = "follow_request.resolved"

	// MsgUnreadCount carries {"count"}, the server's authoritative total.
	MsgUnreadCount MessageType = "notification.unread_count"
)

// Message is one push frame.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// FollowRequestOutcome is the payload of MsgFollowRequest.
type FollowRequestOutcome struct {
	UserID model.ID                  `json:"user_id"`
	Status model.FollowRequestStatus `json:"status"`
}

// Handler receives decoded pushes.
type Handler interface {
	OnNotification(it model.Item) error
	OnFollowRequestOutcome(o FollowRequestOutcome) error
	OnUnreadCount(n uint) error
}

// ErrUnknownMessage is returned by Dispatch for an unrecognised type.
var ErrUnknownMessage = errors.New("unknown message type")

// Dispatch decodes msg and routes it to h.
func Dispatch(h Handler, msg Message) error {
	switch msg.Type {
	case MsgNotification:
		it, err := model.DecodeItem(model.KindNotification, msg.Data)
		if err != nil {
			return err
		}
		return h.OnNotification(it)
	case MsgFollowRequest:
		var o FollowRequestOutcome
		if err := json.Unmarshal(msg.Data, &o); err != nil {
			return fmt.Errorf("decode follow request outcome: %w", err)
		}
		if o.UserID == "" || !o.Status.Valid() {
			return fmt.Errorf("decode follow request outcome: invalid payload %s", msg.Data)
		}
		return h.OnFollowRequestOutcome(o)
	case MsgUnreadCount:
		var body struct {
			Count uint `json:"count"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			return fmt.Errorf("decode unread count: %w", err)
		}
		return h.OnUnreadCount(body.Count)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// URL is the ws:// or wss:// address of the push stream.
	URL string

	// Header is sent with the handshake, e.g. Authorization.
	Header http.Header

	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	Logger *slog.Logger
}

// Listener consumes the push stream and reconnects when it drops.
//
// Thread Safety: Run must be called once.
type Listener struct {
	cfg     ListenerConfig
	handler Handler
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewListener creates a Listener delivering to h.
func NewListener(cfg ListenerConfig, h Handler) *Listener {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:     cfg,
		handler: h,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger.With(slog.String("component", "realtime_listener")),
	}
}

// Run connects and delivers messages until ctx ends. It always returns
// ctx's error.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.cfg.MinBackoff
	for {
		connected, err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = l.cfg.MinBackoff
		}
		l.logger.Warn("push stream disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, l.cfg.MaxBackoff)
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded.
func (l *Listener) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := l.dialer.DialContext(ctx, l.cfg.URL, l.cfg.Header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	l.logger.Info("push stream connected", slog.String("url", l.cfg.URL))

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("closed by server")
			}
			return true, err
		}
		if err := Dispatch(l.handler, msg); err != nil {
			l.logger.Warn("push dropped",
				slog.String("type", string(msg.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}
