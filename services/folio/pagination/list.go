// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pagination assembles server pages into one ordered list per view.
//
// A List owns one cache key holding a *model.PaginatedView. Pages are only
// appended in order; LoadMore asks for currentPage+1 and concurrent calls
// share one request. Every commit goes through a fetch.Ticket, so a page
// that arrives after an optimistic write to the list is dropped rather than
// applied, and through views.Observe, so canonical state stays in step with
// what the server sent.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/fetch"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/views"
)

var tracer = otel.Tracer("folio.pagination")

// MaxParallelRevalidate bounds concurrent page fetches during Revalidate.
const MaxParallelRevalidate = 4

// ErrOutOfOrder is returned when a fetched page no longer follows the last
// cached page, typically because the list was refreshed meanwhile.
var ErrOutOfOrder = errors.New("page does not follow the cached list")

// PageFetcher fetches one page (1-based) of a list.
type PageFetcher func(ctx context.Context, page int) (model.Page, error)

// Deps are the shared components every List uses.
type Deps struct {
	Store   *cache.Store
	Fetches *fetch.Controller
	Views   *views.Registry
	Logger  *slog.Logger

	// Background, when set, makes a read of a stale list start a
	// revalidation bound to it. Nil leaves revalidation to the caller.
	Background context.Context
}

// List is the infinite list bound to one cache key.
//
// Thread Safety: Safe for concurrent use.
type List struct {
	key     querykey.Key
	fetcher PageFetcher
	deps    Deps
	logger  *slog.Logger

	flight     singleflight.Group
	refreshing atomic.Bool

	watchMu sync.Mutex
	unwatch func()
}

// NewList creates a List for key.
func NewList(key querykey.Key, fetcher PageFetcher, deps Deps) *List {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &List{
		key:     key,
		fetcher: fetcher,
		deps:    deps,
		logger:  logger.With(slog.String("component", "list"), slog.String("list", key.String())),
	}
}

// Key returns the list's cache key.
func (l *List) Key() querykey.Key {
	return l.key
}

// View returns the cached pages, or nil before the first load. Reading a
// stale list serves the cached pages and starts a background revalidation
// when Deps.Background is set.
func (l *List) View() *model.PaginatedView {
	pv := l.cached()
	l.revalidateIfStale()
	return pv
}

func (l *List) cached() *model.PaginatedView {
	v, ok := l.deps.Store.Get(l.key)
	if !ok {
		return nil
	}
	pv, _ := v.(*model.PaginatedView)
	return pv
}

// Items returns every loaded item in order.
func (l *List) Items() []model.Item {
	return l.View().Items()
}

// HasMore reports whether a page after the last loaded one exists. It is
// true before the first load.
func (l *List) HasMore() bool {
	meta, ok := l.cached().LastMeta()
	if !ok {
		return true
	}
	return meta.HasMore()
}

// LoadFirst fetches page 1 and replaces the list with it. Concurrent calls
// share one request.
func (l *List) LoadFirst(ctx context.Context) error {
	_, err, shared := l.flight.Do("first", func() (any, error) {
		l.refreshing.Store(true)
		defer l.refreshing.Store(false)
		return nil, l.load(ctx, 1, func(cur *model.PaginatedView, page model.Page) (*model.PaginatedView, error) {
			return &model.PaginatedView{Pages: []model.Page{page}}, nil
		})
	})
	if shared {
		loadsCoalesced.WithLabelValues("first").Inc()
	}
	return err
}

// LoadMore fetches and appends the next page.
//
// Description:
//
//	Requests currentPage+1 only if currentPage < lastPage and no refresh
//	of this list is in flight. Concurrent calls made before the first one
//	resolves share a single network call and append a single page. Before
//	anything is cached, LoadMore loads the first page.
//
// Outputs:
//
//	bool - true if a page was appended by this call or the one it joined.
//	error - Fetch failure, fetch.ErrCancelled, cache.ErrStaleData or
//	ErrOutOfOrder. Nothing is written on error.
func (l *List) LoadMore(ctx context.Context) (bool, error) {
	l.revalidateIfStale()
	meta, ok := l.cached().LastMeta()
	if !ok {
		if err := l.LoadFirst(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	if !meta.HasMore() || l.refreshing.Load() {
		return false, nil
	}

	v, err, shared := l.flight.Do("more", func() (any, error) {
		meta, ok := l.cached().LastMeta()
		if !ok || !meta.HasMore() {
			return false, nil
		}
		next := meta.CurrentPage + 1
		err := l.load(ctx, next, func(cur *model.PaginatedView, page model.Page) (*model.PaginatedView, error) {
			last, ok := cur.LastMeta()
			if !ok || last.CurrentPage != next-1 {
				return nil, ErrOutOfOrder
			}
			out := &model.PaginatedView{Pages: make([]model.Page, 0, len(cur.Pages)+1)}
			out.Pages = append(out.Pages, cur.Pages...)
			out.Pages = append(out.Pages, page)
			return out, nil
		})
		return err == nil, err
	})
	if shared {
		loadsCoalesced.WithLabelValues("more").Inc()
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Revalidate refetches every loaded page when the list is stale and
// replaces the list with the result in one commit.
func (l *List) Revalidate(ctx context.Context) error {
	if !l.deps.Store.IsStale(l.key) {
		return nil
	}
	_, err, shared := l.flight.Do("revalidate", func() (any, error) {
		l.refreshing.Store(true)
		defer l.refreshing.Store(false)
		return nil, l.revalidate(ctx)
	})
	if shared {
		loadsCoalesced.WithLabelValues("revalidate").Inc()
	}
	return err
}

func (l *List) revalidate(ctx context.Context) error {
	n := len(l.cached().Pages)
	if n == 0 {
		n = 1
	}

	ctx, span := tracer.Start(ctx, "pagination.Revalidate",
		trace.WithAttributes(
			attribute.String("list.key", l.key.String()),
			attribute.Int("list.pages", n),
		),
	)
	defer span.End()

	tk := l.deps.Fetches.Begin(ctx, l.key)
	defer tk.Done()

	pages := make([]model.Page, n)
	g, gctx := errgroup.WithContext(tk.Context())
	g.SetLimit(MaxParallelRevalidate)
	for i := range pages {
		g.Go(func() error {
			p, err := l.fetcher(gctx, i+1)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// The server may have shrunk the list.
	if last := pages[0].Meta.LastPage; last > 0 && last < len(pages) {
		pages = pages[:last]
	}

	err := tk.Commit(func(tx *cache.Tx) error {
		out := &model.PaginatedView{Pages: make([]model.Page, len(pages))}
		for i, p := range pages {
			p.Data = l.deps.Views.Observe(tx, p.Data)
			out.Pages[i] = p
		}
		tx.Put(l.key, out)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Debug("revalidation dropped", slog.String("error", err.Error()))
		return err
	}
	pagesLoaded.WithLabelValues("revalidate").Add(float64(len(pages)))
	l.logger.Debug("revalidated", slog.Int("pages", len(pages)))
	return nil
}

// revalidateIfStale starts Revalidate in the background when the list is
// cached, stale and not already being refreshed.
func (l *List) revalidateIfStale() {
	ctx := l.deps.Background
	if ctx == nil || ctx.Err() != nil || l.refreshing.Load() || !l.deps.Store.IsStale(l.key) {
		return
	}
	go l.revalidateLogged(ctx)
}

func (l *List) revalidateLogged(ctx context.Context) {
	err := l.Revalidate(ctx)
	if err == nil || errors.Is(err, fetch.ErrCancelled) || ctx.Err() != nil {
		return
	}
	l.logger.Warn("background revalidation failed", slog.String("error", err.Error()))
}

// load fetches page and commits merge(current, page).
func (l *List) load(ctx context.Context, page int, merge func(cur *model.PaginatedView, p model.Page) (*model.PaginatedView, error)) error {
	ctx, span := tracer.Start(ctx, "pagination.Load",
		trace.WithAttributes(
			attribute.String("list.key", l.key.String()),
			attribute.Int("list.page", page),
		),
	)
	defer span.End()

	tk := l.deps.Fetches.Begin(ctx, l.key)
	defer tk.Done()

	p, err := l.fetcher(tk.Context(), page)
	if err != nil {
		if errors.Is(context.Cause(tk.Context()), fetch.ErrCancelled) {
			err = fetch.ErrCancelled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = tk.Commit(func(tx *cache.Tx) error {
		var cur *model.PaginatedView
		if v, ok := tx.Get(l.key); ok {
			cur, _ = v.(*model.PaginatedView)
		}
		p.Data = l.deps.Views.Observe(tx, p.Data)
		next, err := merge(cur, p)
		if err != nil {
			return err
		}
		tx.Put(l.key, next)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			err = ErrOutOfOrder
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Debug("page dropped", slog.Int("page", page), slog.String("error", err.Error()))
		return err
	}

	kind := "more"
	if page == 1 {
		kind = "first"
	}
	pagesLoaded.WithLabelValues(kind).Inc()
	span.SetStatus(codes.Ok, "")
	return nil
}

// WatchStale revalidates the list in the background each time it is marked
// stale, until the returned stop function is called or ctx ends.
func (l *List) WatchStale(ctx context.Context) (stop func()) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.unwatch != nil {
		return l.unwatch
	}

	unsub := l.deps.Store.Subscribe(querykey.Exact(l.key), func(ev cache.Event) {
		if ev.Type != cache.EventStale || ctx.Err() != nil {
			return
		}
		go l.revalidateLogged(ctx)
	})

	var once sync.Once
	l.unwatch = func() {
		once.Do(func() {
			unsub()
			l.watchMu.Lock()
			l.unwatch = nil
			l.watchMu.Unlock()
		})
	}
	return l.unwatch
}
