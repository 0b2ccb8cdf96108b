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
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultPerPage is the page size when the request names none.
const DefaultPerPage = 10

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Meta is the pagination envelope.
type Meta struct {
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

// PageResponse is the body of every list endpoint.
type PageResponse struct {
	Data []map[string]any `json:"data"`
	Meta Meta             `json:"meta"`
}

// Handlers serves the mock API over a Backend.
type Handlers struct {
	backend *Backend
	logger  *slog.Logger
}

// NewHandlers creates handlers for b. If logger is nil, uses slog.Default().
func NewHandlers(b *Backend, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{backend: b, logger: logger.With(slog.String("component", "mock_api"))}
}

// op wraps a handler with the backend's latency and injected failures.
func (h *Handlers) op(name string, fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d := h.backend.delay(); d > 0 {
			select {
			case <-time.After(d):
			case <-c.Request.Context().Done():
				c.AbortWithStatus(http.StatusRequestTimeout)
				return
			}
		}
		if status, ok := h.backend.takeFailure(name); ok {
			h.logger.Debug("injected failure", slog.String("op", name), slog.Int("status", status))
			c.AbortWithStatusJSON(status, ErrorResponse{Error: "injected failure", Code: "INJECTED"})
			return
		}
		fn(c)
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, errForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "FORBIDDEN"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL"})
	}
}

// page slices all by the page and per_page query parameters.
func page(c *gin.Context, all []map[string]any) PageResponse {
	p, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if p < 1 {
		p = 1
	}
	per, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(DefaultPerPage)))
	if per < 1 || per > 100 {
		per = DefaultPerPage
	}
	last := (len(all) + per - 1) / per
	if last < 1 {
		last = 1
	}
	start := min((p-1)*per, len(all))
	end := min(start+per, len(all))
	data := all[start:end]
	if data == nil {
		data = []map[string]any{}
	}
	return PageResponse{
		Data: data,
		Meta: Meta{Total: len(all), PerPage: per, CurrentPage: p, LastPage: last},
	}
}

func (h *Handlers) list(fn func(c *gin.Context) ([]map[string]any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := fn(c)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, page(c, all))
	}
}

func (h *Handlers) record(fn func(id string) (map[string]any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := fn(c.Param("id"))
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rec})
	}
}

func (h *Handlers) noContent(fn func(id string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Param("id")); err != nil {
			h.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// HandleLike handles POST and DELETE /reviews/:id/like.
func (h *Handlers) HandleLike(c *gin.Context) {
	st, err := h.backend.SetLike(c.Param("id"), c.Request.Method == http.MethodPost)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

// HandleFollow handles POST /users/:id/follow.
func (h *Handlers) HandleFollow(c *gin.Context) {
	st, err := h.backend.Follow(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

// HandleUnfollow handles DELETE /users/:id/follow.
func (h *Handlers) HandleUnfollow(c *gin.Context) {
	st, err := h.backend.Unfollow(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

// HandleAddToRead handles POST /to-read.
func (h *Handlers) HandleAddToRead(c *gin.Context) {
	var req struct {
		BookID string `json:"book_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if err := h.backend.AddToRead(req.BookID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// HandleUnreadCount handles GET /notifications/unread-count.
func (h *Handlers) HandleUnreadCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.backend.UnreadCount()})
}

// HandleReadAll handles POST /notifications/read-all.
func (h *Handlers) HandleReadAll(c *gin.Context) {
	h.backend.MarkAllRead()
	c.Status(http.StatusNoContent)
}

// HandleNotify handles POST /admin/notifications.
func (h *Handlers) HandleNotify(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": h.backend.Notify(req.Message)})
}

// HandleResolveRequest handles POST /admin/follow-requests/:id.
func (h *Handlers) HandleResolveRequest(c *gin.Context) {
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	ok, err := h.backend.ResolveFollowRequest(c.Param("id"), req.Accept)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no pending request", Code: "NO_REQUEST"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleFail handles POST /admin/fail.
func (h *Handlers) HandleFail(c *gin.Context) {
	var req struct {
		Op     string `json:"op" binding:"required"`
		Status int    `json:"status" binding:"required,gte=400,lte=599"`
		Count  int    `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	h.backend.FailNext(req.Op, req.Status, req.Count)
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "push_clients": h.backend.hub.count()})
}
