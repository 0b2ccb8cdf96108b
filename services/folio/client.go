// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package folio is the client data core of the Folio reading app.
//
// A Client owns one cache store and the engine built over it: the fetch
// controller, the view registry, one module per entity and the mutation
// orchestrator. Reads never block on the network. Every user intent is an
// optimistic mutation: the expected state is visible in every cached view
// at once, and is rolled back exactly if the remote call fails.
//
// Example:
//
//	api := transport.NewHTTPClient("https://api.example.com")
//	c, err := folio.New(folio.Options{API: api})
//	if err != nil {
//	    return err
//	}
//	feed := c.Feed()
//	if err := feed.LoadFirst(ctx); err != nil {
//	    return err
//	}
//	st, err := c.ToggleLike(ctx, "42")
package folio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/entity"
	"github.com/AleutianAI/Folio/services/folio/fetch"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/mutation"
	"github.com/AleutianAI/Folio/services/folio/pagination"
	"github.com/AleutianAI/Folio/services/folio/persist"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/realtime"
	"github.com/AleutianAI/Folio/services/folio/transport"
	"github.com/AleutianAI/Folio/services/folio/views"
)

var (
	// ErrNoAPI is returned by New when Options.API is nil.
	ErrNoAPI = errors.New("options: API is required")

	// ErrNoPersistence is returned by Persist and Hydrate without a DB.
	ErrNoPersistence = errors.New("persistence is not configured")
)

// Options configures a Client.
type Options struct {
	// API is the remote API. Required.
	API transport.API

	// DB, if set, backs Persist, Hydrate and the wipe on SignOut. The
	// Client does not close it.
	DB *persist.DB

	// StaleAfter marks cached entries stale once they are this old. Zero
	// uses the store default.
	StaleAfter time.Duration

	// Clock replaces time.Now in the store, for tests.
	Clock func() time.Time

	// Logger for every component. Nil uses slog.Default().
	Logger *slog.Logger

	// ManualRevalidate stops reads of a stale list from refetching it in
	// the background. Lists are still marked stale; call Revalidate.
	ManualRevalidate bool
}

// Client is the public surface of the engine.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	api     transport.API
	db      *persist.DB
	store   *cache.Store
	fetches *fetch.Controller
	views   *views.Registry
	modules *entity.Modules
	orch    *mutation.Orchestrator
	logger  *slog.Logger

	listsMu sync.Mutex
	lists   map[string]*pagination.List
	manual  bool
	bg      context.Context
	stopBg  context.CancelFunc
}

// New creates a Client with an empty cache.
func New(opts Options) (*Client, error) {
	if opts.API == nil {
		return nil, ErrNoAPI
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	storeOpts := []cache.StoreOption{cache.WithLogger(logger), cache.WithClock(opts.Clock)}
	if opts.StaleAfter > 0 {
		storeOpts = append(storeOpts, cache.WithStaleAfter(opts.StaleAfter))
	}
	store := cache.NewStore(storeOpts...)
	reg := views.NewRegistry(logger)
	fetches := fetch.NewController(store, logger)

	c := &Client{
		api:     opts.API,
		db:      opts.DB,
		store:   store,
		fetches: fetches,
		views:   reg,
		modules: entity.NewModules(store, reg),
		orch:    mutation.NewOrchestrator(store, fetches, reg, logger),
		logger:  logger.With(slog.String("component", "folio_client")),
		lists:   make(map[string]*pagination.List),
		manual:  opts.ManualRevalidate,
	}
	c.bg, c.stopBg = context.WithCancel(context.Background())
	return c, nil
}

// Close stops background revalidation. Cached state stays readable.
func (c *Client) Close() {
	c.listsMu.Lock()
	defer c.listsMu.Unlock()
	c.stopBg()
}

// Store returns the client's cache store.
func (c *Client) Store() *cache.Store {
	return c.store
}

// --- reads ---

// LikeState returns the like state of a review.
func (c *Client) LikeState(reviewID model.ID) model.LikeState {
	return c.modules.Likes.Get(reviewID)
}

// FollowState returns the viewer's follow relationship with a user.
func (c *Client) FollowState(userID model.ID) model.FollowState {
	return c.modules.Follows.Get(userID)
}

// BlockState returns the viewer's block relationship with a user.
func (c *Client) BlockState(userID model.ID) model.BlockState {
	return c.modules.Blocks.Get(userID)
}

// UnreadCount returns the cached unread notification count.
func (c *Client) UnreadCount() uint {
	return c.modules.Notifications.UnreadCount()
}

// IsBookInList reports whether a book is in the reading list.
func (c *Client) IsBookInList(bookID model.ID) bool {
	return c.modules.ToRead.IsInList(bookID)
}

// ViewerState returns the viewer's own counters.
func (c *Client) ViewerState() model.ViewerState {
	return c.modules.Viewer.State()
}

// Subscribe calls cb after every change to a key in namespace. Callbacks run
// after the change is committed, outside the store lock.
func (c *Client) Subscribe(namespace querykey.Namespace, cb func(cache.Event)) (unsubscribe func()) {
	return c.store.Subscribe(querykey.InNamespace(namespace), cb)
}

// --- session ---

// SignOut cancels every fetch, drops all cached state and wipes the
// persisted snapshot. Lists obtained before SignOut no longer revalidate in
// the background; fetch them again from the Client.
func (c *Client) SignOut(ctx context.Context) error {
	c.listsMu.Lock()
	c.stopBg()
	c.bg, c.stopBg = context.WithCancel(context.Background())
	c.lists = make(map[string]*pagination.List)
	c.listsMu.Unlock()

	n := c.fetches.CancelMatching(querykey.All())
	c.store.Clear()
	c.logger.Info("signed out", slog.Int("fetches_cancelled", n))
	if c.db == nil {
		return nil
	}
	if err := c.db.Wipe(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Persist writes canonical state to the DB.
func (c *Client) Persist(ctx context.Context) (persist.SaveStats, error) {
	if c.db == nil {
		return persist.SaveStats{}, ErrNoPersistence
	}
	return c.db.Save(ctx, c.store)
}

// Hydrate loads persisted canonical state. Keys already cached are kept.
func (c *Client) Hydrate(ctx context.Context) (int, error) {
	if c.db == nil {
		return 0, ErrNoPersistence
	}
	return c.db.Hydrate(ctx, c.store)
}

// Listen applies server pushes from the stream at cfg.URL until ctx ends.
// It always returns ctx's error.
func (c *Client) Listen(ctx context.Context, cfg realtime.ListenerConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	sink := realtime.NewSink(c.store, c.modules, cfg.Logger)
	return realtime.NewListener(cfg, sink).Run(ctx)
}
