// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Folio/services/folio"
	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/config"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/persist"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/realtime"
	"github.com/AleutianAI/Folio/services/folio/transport"
)

// session is a Client plus the snapshot DB behind it, if any.
type session struct {
	*folio.Client
	db     *persist.DB
	logger *slog.Logger
}

// openSession builds a Client from the loaded config and hydrates it from
// the snapshot when persistence is enabled.
func (a *app) openSession(ctx context.Context) (*session, error) {
	api := transport.NewHTTPClient(a.cfg.API.BaseURL,
		transport.WithTimeout(a.cfg.API.Timeout),
		transport.WithRateLimit(a.cfg.API.RateLimit, a.cfg.API.Burst),
		transport.WithAuthToken(a.cfg.API.Token),
		transport.WithPageSize(a.cfg.Cache.PageSize),
		transport.WithHTTPLogger(a.logger),
	)

	s := &session{logger: a.logger}
	if a.cfg.Persist.Enabled {
		dbCfg := persist.DefaultConfig()
		dbCfg.Path = a.cfg.Persist.Path
		dbCfg.InMemory = a.cfg.Persist.InMemory
		dbCfg.SyncWrites = a.cfg.Persist.SyncWrites
		dbCfg.GCInterval = a.cfg.Persist.GCInterval
		dbCfg.Logger = a.logger
		db, err := persist.Open(dbCfg)
		if err != nil {
			return nil, err
		}
		s.db = db
	}

	c, err := folio.New(folio.Options{
		API:        api,
		DB:         s.db,
		StaleAfter: a.cfg.Cache.StaleAfter,
		Logger:     a.logger,
	})
	if err != nil {
		s.closeDB()
		return nil, err
	}
	s.Client = c

	if s.db != nil {
		n, err := c.Hydrate(ctx)
		if err != nil {
			a.logger.Warn("hydrate failed", slog.String("error", err.Error()))
		} else {
			a.logger.Debug("hydrated", slog.Int("entries", n))
		}
	}
	return s, nil
}

// Close stops background work, saves the snapshot and closes the DB.
func (s *session) Close() {
	s.Client.Close()
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if st, err := s.Persist(ctx); err != nil {
		s.logger.Warn("persist failed", slog.String("error", err.Error()))
	} else {
		s.logger.Debug("persisted", slog.Int("entries", st.Entries))
	}
	s.closeDB()
}

func (s *session) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("close db failed", slog.String("error", err.Error()))
	}
}

// withSession runs fn with an open session and a printer on the command's
// output.
func (a *app) withSession(fn func(ctx context.Context, s *session, p printer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := a.openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s, newPrinter(cmd.OutOrStdout()), args)
	}
}

func (a *app) feedCmd() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the home feed",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.RunE = a.withSession(func(ctx context.Context, s *session, p printer, _ []string) error {
		feed := s.Feed()
		if err := feed.LoadFirst(ctx); err != nil {
			return err
		}
		for i := 1; i < pages; i++ {
			more, err := feed.LoadMore(ctx)
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
		p.title("Feed")
		p.items(feed.Items())
		if feed.HasMore() {
			fmt.Fprintln(p.w, p.paint(styles.Muted, "… more with --pages"))
		}
		return nil
	})
	return cmd
}

func (a *app) likeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "like <review-id>",
		Short: "Toggle the like on a review",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
			id := model.ID(args[0])
			if _, err := s.LoadReview(ctx, id); err != nil {
				return err
			}
			st, err := s.ToggleLike(ctx, id)
			if err != nil {
				p.failed(err)
				return err
			}
			verb := "unliked"
			if st.IsLiked {
				verb = "liked"
			}
			p.ok("%s review %s (%d likes)", verb, id, st.LikesCount)
			return nil
		}),
	}
}

func (a *app) followCmd() *cobra.Command {
	var private bool
	cmd := &cobra.Command{
		Use:   "follow <user-id>",
		Short: "Follow a user, or request to follow a private account",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&private, "private", false, "treat the account as private without asking the API")
	cmd.RunE = a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
		id := model.ID(args[0])
		if !private {
			u, err := s.LoadUser(ctx, id)
			if err != nil {
				return err
			}
			private = isPrivate(u)
		}
		st, err := s.Follow(ctx, id, private)
		if err != nil {
			p.failed(err)
			return err
		}
		p.ok("%s: %s", id, followLabel(st))
		return nil
	})
	return cmd
}

func isPrivate(u model.Item) bool {
	v, ok := u.Attr("is_private")
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (a *app) unfollowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow <user-id>",
		Short: "Unfollow a user or withdraw a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
			id := model.ID(args[0])
			if _, err := s.LoadUser(ctx, id); err != nil {
				return err
			}
			var (
				st  model.FollowState
				err error
			)
			if s.FollowState(id).FollowRequestStatus == model.RequestPending {
				st, err = s.CancelFollowRequest(ctx, id)
			} else {
				st, err = s.Unfollow(ctx, id)
			}
			if err != nil {
				p.failed(err)
				return err
			}
			p.ok("%s: %s", id, followLabel(st))
			return nil
		}),
	}
}

func (a *app) blockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <user-id>",
		Short: "Block a user",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
			id := model.ID(args[0])
			if _, err := s.BlockUser(ctx, id); err != nil {
				p.failed(err)
				return err
			}
			p.ok("blocked %s", id)
			return nil
		}),
	}
}

func (a *app) unblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <user-id>",
		Short: "Unblock a user",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
			id := model.ID(args[0])
			if _, err := s.UnblockUser(ctx, id); err != nil {
				p.failed(err)
				return err
			}
			p.ok("unblocked %s", id)
			return nil
		}),
	}
}

func (a *app) toReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "to-read",
		Short: "Show or edit the reading list",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, _ []string) error {
			list := s.ToReadList()
			if err := list.LoadFirst(ctx); err != nil {
				return err
			}
			p.title("To read")
			p.items(list.Items())
			return nil
		}),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <book-id>",
			Short: "Add a book to the reading list",
			Args:  cobra.ExactArgs(1),
			RunE: a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
				id := model.ID(args[0])
				book, err := s.LoadBook(ctx, id)
				if err != nil {
					return err
				}
				if _, err := s.AddToReadList(ctx, id, &book); err != nil {
					p.failed(err)
					return err
				}
				p.ok("added %s to the reading list", attr(book, "title"))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove <book-id>",
			Short: "Remove a book from the reading list",
			Args:  cobra.ExactArgs(1),
			RunE: a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
				id := model.ID(args[0])
				if err := s.ToReadList().LoadFirst(ctx); err != nil {
					return err
				}
				if _, err := s.RemoveFromReadList(ctx, id); err != nil {
					p.failed(err)
					return err
				}
				p.ok("removed %s from the reading list", id)
				return nil
			}),
		},
	)
	return cmd
}

func (a *app) notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notifs"},
		Short:   "List notifications",
		Args:    cobra.NoArgs,
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, _ []string) error {
			list := s.Notifications()
			if err := list.LoadFirst(ctx); err != nil {
				return err
			}
			n, err := s.RefreshUnreadCount(ctx)
			if err != nil {
				return err
			}
			p.title(fmt.Sprintf("Notifications (%d unread)", n))
			p.items(list.Items())
			return nil
		}),
	}

	var all bool
	read := &cobra.Command{
		Use:   "read [notification-id]",
		Short: "Mark one or all notifications read",
		Args:  cobra.MaximumNArgs(1),
	}
	read.Flags().BoolVar(&all, "all", false, "mark every notification read")
	read.RunE = a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
		if err := s.Notifications().LoadFirst(ctx); err != nil {
			return err
		}
		if _, err := s.RefreshUnreadCount(ctx); err != nil {
			return err
		}
		var (
			n   uint
			err error
		)
		switch {
		case all:
			n, err = s.MarkAllNotificationsRead(ctx)
		case len(args) == 1:
			n, err = s.MarkNotificationRead(ctx, model.ID(args[0]))
		default:
			return fmt.Errorf("give a notification id or --all")
		}
		if err != nil {
			p.failed(err)
			return err
		}
		p.ok("%d unread", n)
		return nil
	})

	del := &cobra.Command{
		Use:   "delete <notification-id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, args []string) error {
			if err := s.Notifications().LoadFirst(ctx); err != nil {
				return err
			}
			if _, err := s.RefreshUnreadCount(ctx); err != nil {
				return err
			}
			n, err := s.DeleteNotification(ctx, model.ID(args[0]))
			if err != nil {
				p.failed(err)
				return err
			}
			p.ok("deleted, %d unread", n)
			return nil
		}),
	}

	cmd.AddCommand(read, del)
	return cmd
}

func (a *app) unreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Print the unread notification count",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(ctx context.Context, s *session, p printer, _ []string) error {
			n, err := s.RefreshUnreadCount(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(p.w, strconv.FormatUint(uint64(n), 10))
			return nil
		}),
	}
}

// watchCmd follows the push stream and prints unread count changes. When a
// config file is in use, edits to its log level apply without a restart.
func (a *app) watchCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the push stream and print unread count changes",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&url, "url", "", "push stream URL (default from config)")
	cmd.RunE = a.withSession(func(ctx context.Context, s *session, p printer, _ []string) error {
		if url == "" {
			url = a.cfg.Realtime.URL
		}
		if url == "" {
			return fmt.Errorf("no push stream URL: set realtime.url or --url")
		}
		if _, err := s.RefreshUnreadCount(ctx); err != nil {
			return err
		}

		unsubscribe := s.Subscribe(querykey.UnreadCount, func(ev cache.Event) {
			if n, ok := ev.Value.(uint); ok {
				p.ok("%d unread", n)
			}
		})
		defer unsubscribe()

		header := http.Header{}
		if a.cfg.API.Token != "" {
			header.Set("Authorization", "Bearer "+a.cfg.API.Token)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return s.Listen(gctx, realtime.ListenerConfig{
				URL:        url,
				Header:     header,
				MinBackoff: a.cfg.Realtime.MinBackoff,
				MaxBackoff: a.cfg.Realtime.MaxBackoff,
			})
		})
		if a.configPath != "" {
			g.Go(func() error {
				return config.Watch(gctx, a.configPath, a.logger, func(cfg config.Config) {
					a.level.Set(cfg.Observability.SlogLevel())
				})
			})
		}
		p.title("Watching " + url)
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	return cmd
}
