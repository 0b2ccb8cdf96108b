// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mockapi is an in-memory implementation of the remote API for
// development and tests.
//
// It serves the JSON contract transport.HTTPClient speaks, as seen by one
// signed-in viewer, pushes notifications over a websocket, and can be told
// to fail the next calls of an operation so rollback paths can be exercised
// end to end.
package mockapi

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViewerID is the id of the signed-in user.
const ViewerID = "1"

var (
	errNotFound  = errors.New("not found")
	errForbidden = errors.New("forbidden")
)

type user struct {
	id        string
	name      string
	private   bool
	followers map[string]bool
	requests  map[string]bool
	blocked   map[string]bool
}

type review struct {
	id       string
	authorID string
	bookID   string
	content  string
	likes    map[string]bool
}

type book struct {
	id    string
	title string
}

type notification struct {
	id        string
	message   string
	read      bool
	createdAt time.Time
}

// injected is a pending failure for an operation.
type injected struct {
	status int
	count  int
}

// Backend holds the mock API's state.
//
// Thread Safety: Safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	users         map[string]*user
	reviews       map[string]*review
	reviewOrder   []string
	books         map[string]*book
	toRead        []string
	notifications []*notification

	failures map[string]*injected
	latency  time.Duration

	hub *hub
}

// NewBackend returns an empty backend with only the viewer.
func NewBackend() *Backend {
	b := &Backend{
		users:    make(map[string]*user),
		reviews:  make(map[string]*review),
		books:    make(map[string]*book),
		failures: make(map[string]*injected),
		hub:      newHub(),
	}
	b.users[ViewerID] = newUser(ViewerID, "viewer", false)
	return b
}

func newUser(id, name string, private bool) *user {
	return &user{
		id:        id,
		name:      name,
		private:   private,
		followers: make(map[string]bool),
		requests:  make(map[string]bool),
		blocked:   make(map[string]bool),
	}
}

// Seed fills the backend with users 2..users+1 (every third one private),
// one book per user and reviews reviews spread over them.
func (b *Backend) Seed(users, reviews int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < users; i++ {
		id := strconv.Itoa(i + 2)
		b.users[id] = newUser(id, "reader "+id, i%3 == 2)
		b.books[id] = &book{id: id, title: "Book " + id}
	}
	for i := 0; i < reviews && users > 0; i++ {
		id := strconv.Itoa(i + 1)
		author := strconv.Itoa(i%users + 2)
		b.reviews[id] = &review{
			id:       id,
			authorID: author,
			bookID:   author,
			content:  fmt.Sprintf("review %s by %s", id, author),
			likes:    make(map[string]bool),
		}
		b.reviewOrder = append(b.reviewOrder, id)
	}
}

// AddReview creates a review and returns its id.
func (b *Backend) AddReview(authorID, bookID, content string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := strconv.Itoa(len(b.reviewOrder) + 1)
	b.reviews[id] = &review{id: id, authorID: authorID, bookID: bookID, content: content, likes: make(map[string]bool)}
	b.reviewOrder = append(b.reviewOrder, id)
	return id
}

// FailNext makes the next count calls of op answer with status.
func (b *Backend) FailNext(op string, status, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count <= 0 {
		delete(b.failures, op)
		return
	}
	b.failures[op] = &injected{status: status, count: count}
}

// SetLatency delays every API response by d.
func (b *Backend) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

// takeFailure consumes one injected failure for op.
func (b *Backend) takeFailure(op string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.failures[op]
	if !ok {
		return 0, false
	}
	f.count--
	if f.count <= 0 {
		delete(b.failures, op)
	}
	return f.status, true
}

func (b *Backend) delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latency
}

// --- rendering ---

func (b *Backend) renderReview(r *review) map[string]any {
	return map[string]any{
		"id":          r.id,
		"kind":        "review",
		"author_id":   r.authorID,
		"book_id":     r.bookID,
		"content":     r.content,
		"is_liked":    r.likes[ViewerID],
		"likes_count": len(r.likes),
	}
}

func (b *Backend) followStatus(u *user) string {
	switch {
	case u.followers[ViewerID]:
		return "accepted"
	case u.requests[ViewerID]:
		return "pending"
	}
	return "none"
}

func (b *Backend) renderUser(u *user) map[string]any {
	return map[string]any{
		"id":                    u.id,
		"kind":                  "user",
		"name":                  u.name,
		"is_private":            u.private,
		"is_following":          u.followers[ViewerID],
		"followers_count":       len(u.followers),
		"follow_request_status": b.followStatus(u),
		"is_blocked":            b.users[ViewerID].blocked[u.id],
		"has_blocked_me":        u.blocked[ViewerID],
	}
}

func (b *Backend) renderBook(bk *book) map[string]any {
	in := false
	for _, id := range b.toRead {
		if id == bk.id {
			in = true
			break
		}
	}
	return map[string]any{"id": bk.id, "kind": "book", "title": bk.title, "is_in_list": in}
}

func (b *Backend) renderNotification(n *notification) map[string]any {
	return map[string]any{
		"id":         n.id,
		"kind":       "notification",
		"message":    n.message,
		"is_read":    n.read,
		"created_at": n.createdAt.UTC().Format(time.RFC3339),
	}
}

func (b *Backend) followState(u *user) map[string]any {
	return map[string]any{
		"is_following":          u.followers[ViewerID],
		"followers_count":       len(u.followers),
		"follow_request_status": b.followStatus(u),
	}
}

// --- lists ---

// listReviews returns rendered reviews, newest first, matching keep and not
// written by someone the viewer blocked or who blocked the viewer.
func (b *Backend) listReviews(keep func(r *review) bool) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewer := b.users[ViewerID]
	var out []map[string]any
	for i := len(b.reviewOrder) - 1; i >= 0; i-- {
		r := b.reviews[b.reviewOrder[i]]
		if viewer.blocked[r.authorID] {
			continue
		}
		if a, ok := b.users[r.authorID]; ok && a.blocked[ViewerID] {
			continue
		}
		if keep(r) {
			out = append(out, b.renderReview(r))
		}
	}
	return out
}

// Feed lists reviews by users the viewer follows, plus the viewer's own.
func (b *Backend) Feed() []map[string]any {
	return b.listReviews(func(r *review) bool {
		if r.authorID == ViewerID {
			return true
		}
		u, ok := b.users[r.authorID]
		return ok && u.followers[ViewerID]
	})
}

// UserReviews lists reviews written by userID.
func (b *Backend) UserReviews(userID string) []map[string]any {
	return b.listReviews(func(r *review) bool { return r.authorID == userID })
}

// BookReviews lists reviews of bookID.
func (b *Backend) BookReviews(bookID string) []map[string]any {
	return b.listReviews(func(r *review) bool { return r.bookID == bookID })
}

func (b *Backend) listUsers(keep func(u *user) bool) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.users))
	for id := range b.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return numLess(ids[i], ids[j]) })
	var out []map[string]any
	for _, id := range ids {
		u := b.users[id]
		if id != ViewerID && keep(u) {
			out = append(out, b.renderUser(u))
		}
	}
	return out
}

// Followers lists users following userID.
func (b *Backend) Followers(userID string) ([]map[string]any, error) {
	b.mu.Lock()
	target, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return nil, errNotFound
	}
	return b.listUsers(func(u *user) bool { return target.followers[u.id] }), nil
}

// Following lists users userID follows.
func (b *Backend) Following(userID string) ([]map[string]any, error) {
	b.mu.Lock()
	_, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return nil, errNotFound
	}
	return b.listUsers(func(u *user) bool { return u.followers[userID] }), nil
}

// SearchUsers lists users whose name contains q.
func (b *Backend) SearchUsers(q string) []map[string]any {
	return b.listUsers(func(u *user) bool { return strings.Contains(u.name, q) })
}

// Blocks lists users the viewer blocked.
func (b *Backend) Blocks() []map[string]any {
	return b.listUsers(func(u *user) bool { return b.users[ViewerID].blocked[u.id] })
}

// ToRead lists the reading list, most recently added first.
func (b *Backend) ToRead() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.toRead))
	for i := len(b.toRead) - 1; i >= 0; i-- {
		if bk, ok := b.books[b.toRead[i]]; ok {
			out = append(out, b.renderBook(bk))
		}
	}
	return out
}

// Notifications lists notifications, newest first.
func (b *Backend) Notifications() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.notifications))
	for i := len(b.notifications) - 1; i >= 0; i-- {
		out = append(out, b.renderNotification(b.notifications[i]))
	}
	return out
}

// --- records ---

// Review returns one rendered review.
func (b *Backend) Review(id string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reviews[id]
	if !ok {
		return nil, errNotFound
	}
	return b.renderReview(r), nil
}

// User returns one rendered user.
func (b *Backend) User(id string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return nil, errNotFound
	}
	return b.renderUser(u), nil
}

// Book returns one rendered book.
func (b *Backend) Book(id string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.books[id]
	if !ok {
		return nil, errNotFound
	}
	return b.renderBook(bk), nil
}

// --- mutations ---

// SetLike likes or unlikes a review and returns its like state.
func (b *Backend) SetLike(id string, liked bool) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reviews[id]
	if !ok {
		return nil, errNotFound
	}
	if liked {
		r.likes[ViewerID] = true
	} else {
		delete(r.likes, ViewerID)
	}
	return map[string]any{"is_liked": liked, "likes_count": len(r.likes)}, nil
}

// Follow follows userID, or files a request when the account is private.
func (b *Backend) Follow(id string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.other(id)
	if err != nil {
		return nil, err
	}
	if u.blocked[ViewerID] || b.users[ViewerID].blocked[id] {
		return nil, errForbidden
	}
	if !u.followers[ViewerID] {
		if u.private {
			u.requests[ViewerID] = true
		} else {
			u.followers[ViewerID] = true
		}
	}
	return b.followState(u), nil
}

// Unfollow stops following userID.
func (b *Backend) Unfollow(id string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.other(id)
	if err != nil {
		return nil, err
	}
	delete(u.followers, ViewerID)
	delete(u.requests, ViewerID)
	return b.followState(u), nil
}

// CancelFollowRequest withdraws a pending request.
func (b *Backend) CancelFollowRequest(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.other(id)
	if err != nil {
		return err
	}
	delete(u.requests, ViewerID)
	return nil
}

// ResolveFollowRequest answers the viewer's pending request to userID and
// pushes the outcome. It reports whether a request was pending.
func (b *Backend) ResolveFollowRequest(id string, accept bool) (bool, error) {
	b.mu.Lock()
	u, err := b.other(id)
	if err != nil {
		b.mu.Unlock()
		return false, err
	}
	if !u.requests[ViewerID] {
		b.mu.Unlock()
		return false, nil
	}
	delete(u.requests, ViewerID)
	status := "rejected"
	if accept {
		u.followers[ViewerID] = true
		status = "accepted"
	}
	b.mu.Unlock()

	b.hub.broadcast(pushMessage{Type: "follow_request.resolved", Data: map[string]any{"user_id": id, "status": status}})
	return true, nil
}

// Block blocks userID and drops any follow relationship both ways.
func (b *Backend) Block(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.other(id)
	if err != nil {
		return err
	}
	viewer := b.users[ViewerID]
	viewer.blocked[id] = true
	delete(u.followers, ViewerID)
	delete(u.requests, ViewerID)
	delete(viewer.followers, id)
	return nil
}

// Unblock unblocks userID.
func (b *Backend) Unblock(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.other(id); err != nil {
		return err
	}
	delete(b.users[ViewerID].blocked, id)
	return nil
}

// AddToRead adds bookID to the reading list.
func (b *Backend) AddToRead(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.books[id]; !ok {
		return errNotFound
	}
	for _, have := range b.toRead {
		if have == id {
			return nil
		}
	}
	b.toRead = append(b.toRead, id)
	return nil
}

// RemoveFromRead removes bookID from the reading list.
func (b *Backend) RemoveFromRead(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, have := range b.toRead {
		if have == id {
			b.toRead = append(b.toRead[:i], b.toRead[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

// MarkRead marks one notification read.
func (b *Backend) MarkRead(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.notification(id)
	if n == nil {
		return errNotFound
	}
	n.read = true
	return nil
}

// MarkAllRead marks every notification read.
func (b *Backend) MarkAllRead() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notifications {
		n.read = true
	}
}

// DeleteNotification removes one notification.
func (b *Backend) DeleteNotification(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notifications {
		if n.id == id {
			b.notifications = append(b.notifications[:i], b.notifications[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

// UnreadCount counts unread notifications.
func (b *Backend) UnreadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := 0
	for _, n := range b.notifications {
		if !n.read {
			c++
		}
	}
	return c
}

// Notify creates a notification and pushes it to connected clients.
func (b *Backend) Notify(message string) map[string]any {
	b.mu.Lock()
	n := &notification{id: uuid.NewString(), message: message, createdAt: time.Now()}
	b.notifications = append(b.notifications, n)
	rendered := b.renderNotification(n)
	b.mu.Unlock()

	b.hub.broadcast(pushMessage{Type: "notification.created", Data: rendered})
	return rendered
}

func (b *Backend) notification(id string) *notification {
	for _, n := range b.notifications {
		if n.id == id {
			return n
		}
	}
	return nil
}

// other returns a user other than the viewer. Caller holds mu.
func (b *Backend) other(id string) (*user, error) {
	if id == ViewerID {
		return nil, errForbidden
	}
	u, ok := b.users[id]
	if !ok {
		return nil, errNotFound
	}
	return u, nil
}

func numLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
