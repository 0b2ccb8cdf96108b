// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/Folio/services/folio/model"
)

var tracer = otel.Tracer("folio.transport")

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 15 * time.Second

	// maxErrorBody caps how much of an error response is read into the error.
	maxErrorBody = 512
)

// ErrNilContext is returned when a call is made with a nil context.
var ErrNilContext = errors.New("context must not be nil")

// HTTPClient implements API over JSON/HTTP.
//
// # Description
//
// Every request carries the trace context of ctx, an optional bearer token
// and waits on a client-side rate limiter before it is sent. Non-2xx
// responses come back as *TransportError.
//
// # Thread Safety
//
// Safe for concurrent use.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	pageSize   int
	logger     *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit allows rps requests per second with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAuthToken sends token as a bearer credential.
func WithAuthToken(token string) HTTPOption {
	return func(c *HTTPClient) {
		c.token = token
	}
}

// WithPageSize asks list endpoints for n items per page. Zero leaves the
// server default.
func WithPageSize(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithHTTPLogger sets the client's logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRoundTripper replaces the underlying transport.
func WithRoundTripper(rt http.RoundTripper) HTTPOption {
	return func(c *HTTPClient) {
		c.httpClient.Transport = rt
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "http_transport"))
	return c
}

// SetLike likes or unlikes a review.
func (c *HTTPClient) SetLike(ctx context.Context, reviewID model.ID, liked bool) (*model.LikeState, error) {
	method := http.MethodPost
	if !liked {
		method = http.MethodDelete
	}
	var out struct {
		Data *model.LikeState `json:"data"`
	}
	path := ReviewResource(reviewID).Path + "/like"
	if err := c.do(ctx, "like", method, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Follow follows a user, or sends a request when the account is private.
func (c *HTTPClient) Follow(ctx context.Context, userID model.ID) (*model.FollowState, error) {
	return c.follow(ctx, "follow", http.MethodPost, userID)
}

// Unfollow stops following a user.
func (c *HTTPClient) Unfollow(ctx context.Context, userID model.ID) (*model.FollowState, error) {
	return c.follow(ctx, "unfollow", http.MethodDelete, userID)
}

func (c *HTTPClient) follow(ctx context.Context, op, method string, userID model.ID) (*model.FollowState, error) {
	var out struct {
		Data *model.FollowState `json:"data"`
	}
	if err := c.do(ctx, op, method, UserResource(userID).Path+"/follow", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CancelFollowRequest withdraws a pending follow request.
func (c *HTTPClient) CancelFollowRequest(ctx context.Context, userID model.ID) error {
	return c.do(ctx, "cancel_follow_request", http.MethodDelete, UserResource(userID).Path+"/follow-request", nil, nil)
}

// Block blocks a user.
func (c *HTTPClient) Block(ctx context.Context, userID model.ID) error {
	return c.do(ctx, "block", http.MethodPost, UserResource(userID).Path+"/block", nil, nil)
}

// Unblock unblocks a user.
func (c *HTTPClient) Unblock(ctx context.Context, userID model.ID) error {
	return c.do(ctx, "unblock", http.MethodDelete, UserResource(userID).Path+"/block", nil, nil)
}

// AddToReadList adds a book to the viewer's reading list.
func (c *HTTPClient) AddToReadList(ctx context.Context, bookID model.ID) error {
	body := map[string]string{"book_id": bookID.String()}
	return c.do(ctx, "to_read_add", http.MethodPost, ToReadResource().Path, body, nil)
}

// RemoveFromReadList removes a book from the viewer's reading list.
func (c *HTTPClient) RemoveFromReadList(ctx context.Context, bookID model.ID) error {
	path := ToReadResource().Path + join(bookID.String())
	return c.do(ctx, "to_read_remove", http.MethodDelete, path, nil, nil)
}

// MarkNotificationRead marks one notification read.
func (c *HTTPClient) MarkNotificationRead(ctx context.Context, id model.ID) error {
	path := NotificationsResource().Path + join(id.String(), "read")
	return c.do(ctx, "notification_read", http.MethodPost, path, nil, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (c *HTTPClient) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, "notification_read_all", http.MethodPost, NotificationsResource().Path+"/read-all", nil, nil)
}

// DeleteNotification deletes one notification.
func (c *HTTPClient) DeleteNotification(ctx context.Context, id model.ID) error {
	path := NotificationsResource().Path + join(id.String())
	return c.do(ctx, "notification_delete", http.MethodDelete, path, nil, nil)
}

// UnreadCount returns the server's unread notification count.
func (c *HTTPClient) UnreadCount(ctx context.Context) (uint, error) {
	var out struct {
		Count uint `json:"count"`
	}
	if err := c.do(ctx, "unread_count", http.MethodGet, NotificationsResource().Path+"/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// FetchPage returns one page of a list resource.
func (c *HTTPClient) FetchPage(ctx context.Context, r Resource, page int) (model.Page, error) {
	sep := "?"
	if strings.Contains(r.Path, "?") {
		sep = "&"
	}
	query := sep + "page=" + strconv.Itoa(page)
	if c.pageSize > 0 {
		query += "&per_page=" + strconv.Itoa(c.pageSize)
	}
	var raw json.RawMessage
	if err := c.do(ctx, "fetch_page", http.MethodGet, r.Path+query, nil, &raw); err != nil {
		return model.Page{}, err
	}
	p, err := model.DecodePage(r.Kind, raw)
	if err != nil {
		return model.Page{}, &TransportError{Op: "fetch_page", Err: err}
	}
	return p, nil
}

// FetchItem returns a single record.
func (c *HTTPClient) FetchItem(ctx context.Context, r Resource) (model.Item, error) {
	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, "fetch_item", http.MethodGet, r.Path, nil, &out); err != nil {
		return model.Item{}, err
	}
	it, err := model.DecodeItem(r.Kind, out.Data)
	if err != nil {
		return model.Item{}, &TransportError{Op: "fetch_item", Err: err}
	}
	return it, nil
}

// do sends one request and decodes a JSON response into out when out is
// non-nil and the body is non-empty.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	if ctx == nil {
		return ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "transport."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(&TransportError{Op: op, Err: err})
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fail(fmt.Errorf("%s: marshal request: %w", op, err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fail(fmt.Errorf("%s: build request: %w", op, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return fail(&TransportError{Op: op, Err: err})
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("request rejected",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", time.Since(start)),
		)
		return fail(statusError(op, resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(&TransportError{Op: op, Status: resp.StatusCode, Err: err})
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fail(&TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)})
		}
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

var _ API = (*HTTPClient)(nil)
