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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter returns a gin engine serving b, with tracing middleware,
// /metrics and /health.
func NewRouter(b *Backend, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("folio-mock-api"))

	h := NewHandlers(b, logger)
	RegisterRoutes(&router.RouterGroup, h)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", h.HandleHealth)
	return router
}

// RegisterRoutes registers the API routes.
//
// Routes:
//
//	GET    /feed                          Reviews by followed users
//	GET    /me/reviews                    Viewer's reviews
//	GET    /reviews/:id                   One review
//	POST   /reviews/:id/like              Like
//	DELETE /reviews/:id/like              Unlike
//	GET    /books/:id                     One book
//	GET    /books/:id/reviews             Reviews of a book
//	GET    /users?q=                      User search
//	GET    /users/:id                     One user
//	GET    /users/:id/reviews             Reviews by a user
//	GET    /users/:id/followers           Followers
//	GET    /users/:id/following           Following
//	POST   /users/:id/follow              Follow or request
//	DELETE /users/:id/follow              Unfollow
//	DELETE /users/:id/follow-request      Cancel request
//	POST   /users/:id/block               Block
//	DELETE /users/:id/block               Unblock
//	GET    /blocks                        Blocked users
//	GET    /to-read                       Reading list
//	POST   /to-read                       Add {book_id}
//	DELETE /to-read/:id                   Remove
//	GET    /notifications                 Notifications
//	GET    /notifications/unread-count    {count}
//	POST   /notifications/read-all        Mark all read
//	POST   /notifications/:id/read        Mark one read
//	DELETE /notifications/:id             Delete
//	GET    /ws/notifications              Push stream
//	POST   /admin/notifications           Create and push {message}
//	POST   /admin/follow-requests/:id     Resolve {accept}
//	POST   /admin/fail                    Inject failures {op, status, count}
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	b := h.backend

	// Reviews
	rg.GET("/feed", h.op("feed", h.list(func(*gin.Context) ([]map[string]any, error) {
		return b.Feed(), nil
	})))
	rg.GET("/me/reviews", h.op("my_reviews", h.list(func(*gin.Context) ([]map[string]any, error) {
		return b.UserReviews(ViewerID), nil
	})))
	reviews := rg.Group("/reviews")
	{
		reviews.GET("/:id", h.op("review", h.record(b.Review)))
		reviews.POST("/:id/like", h.op("like", h.HandleLike))
		reviews.DELETE("/:id/like", h.op("like", h.HandleLike))
	}

	// Books
	books := rg.Group("/books")
	{
		books.GET("/:id", h.op("book", h.record(b.Book)))
		books.GET("/:id/reviews", h.op("book_reviews", h.list(func(c *gin.Context) ([]map[string]any, error) {
			return b.BookReviews(c.Param("id")), nil
		})))
	}

	// Users
	users := rg.Group("/users")
	{
		users.GET("", h.op("user_search", h.list(func(c *gin.Context) ([]map[string]any, error) {
			return b.SearchUsers(c.Query("q")), nil
		})))
		users.GET("/:id", h.op("user", h.record(b.User)))
		users.GET("/:id/reviews", h.op("user_reviews", h.list(func(c *gin.Context) ([]map[string]any, error) {
			return b.UserReviews(c.Param("id")), nil
		})))
		users.GET("/:id/followers", h.op("followers", h.list(func(c *gin.Context) ([]map[string]any, error) {
			return b.Followers(c.Param("id"))
		})))
		users.GET("/:id/following", h.op("following", h.list(func(c *gin.Context) ([]map[string]any, error) {
			return b.Following(c.Param("id"))
		})))
		users.POST("/:id/follow", h.op("follow", h.HandleFollow))
		users.DELETE("/:id/follow", h.op("unfollow", h.HandleUnfollow))
		users.DELETE("/:id/follow-request", h.op("cancel_follow_request", h.noContent(b.CancelFollowRequest)))
		users.POST("/:id/block", h.op("block", h.noContent(b.Block)))
		users.DELETE("/:id/block", h.op("unblock", h.noContent(b.Unblock)))
	}
	rg.GET("/blocks", h.op("blocks", h.list(func(*gin.Context) ([]map[string]any, error) {
		return b.Blocks(), nil
	})))

	// Reading list
	toRead := rg.Group("/to-read")
	{
		toRead.GET("", h.op("to_read", h.list(func(*gin.Context) ([]map[string]any, error) {
			return b.ToRead(), nil
		})))
		toRead.POST("", h.op("to_read_add", h.HandleAddToRead))
		toRead.DELETE("/:id", h.op("to_read_remove", h.noContent(b.RemoveFromRead)))
	}

	// Notifications
	notifications := rg.Group("/notifications")
	{
		notifications.GET("", h.op("notifications", h.list(func(*gin.Context) ([]map[string]any, error) {
			return b.Notifications(), nil
		})))
		notifications.GET("/unread-count", h.op("unread_count", h.HandleUnreadCount))
		notifications.POST("/read-all", h.op("notification_read_all", h.HandleReadAll))
		notifications.POST("/:id/read", h.op("notification_read", h.noContent(b.MarkRead)))
		notifications.DELETE("/:id", h.op("notification_delete", h.noContent(b.DeleteNotification)))
	}
	rg.GET("/ws/notifications", h.HandlePush)

	// Test controls
	admin := rg.Group("/admin")
	{
		admin.POST("/notifications", h.HandleNotify)
		admin.POST("/follow-requests/:id", h.HandleResolveRequest)
		admin.POST("/fail", h.HandleFail)
	}
}
