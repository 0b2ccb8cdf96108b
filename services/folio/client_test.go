// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package folio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Folio/services/folio/cache"
	"github.com/AleutianAI/Folio/services/folio/model"
	"github.com/AleutianAI/Folio/services/folio/persist"
	"github.com/AleutianAI/Folio/services/folio/querykey"
	"github.com/AleutianAI/Folio/services/folio/transport"
)

// fakeAPI serves canned pages and records calls. hook, if set, runs inside
// every call while the mutation is in flight.
type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	pages    map[string][]model.Page
	items    map[string]model.Item
	like     *model.LikeState
	follow   *model.FollowState
	unread   uint
	pageGate chan struct{}
	hook     func(op string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls: make(map[string]int),
		fail:  make(map[string]error),
		pages: make(map[string][]model.Page),
		items: make(map[string]model.Item),
	}
}

func (f *fakeAPI) call(op string) error {
	f.mu.Lock()
	f.calls[op]++
	err := f.fail[op]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) SetLike(_ context.Context, _ model.ID, _ bool) (*model.LikeState, error) {
	return f.like, f.call("like")
}

func (f *fakeAPI) Follow(_ context.Context, _ model.ID) (*model.FollowState, error) {
	return f.follow, f.call("follow")
}

func (f *fakeAPI) Unfollow(_ context.Context, _ model.ID) (*model.FollowState, error) {
	return f.follow, f.call("unfollow")
}

func (f *fakeAPI) CancelFollowRequest(context.Context, model.ID) error {
	return f.call("cancel_follow_request")
}
func (f *fakeAPI) Block(context.Context, model.ID) error   { return f.call("block") }
func (f *fakeAPI) Unblock(context.Context, model.ID) error { return f.call("unblock") }
func (f *fakeAPI) AddToReadList(context.Context, model.ID) error {
	return f.call("to_read_add")
}
func (f *fakeAPI) RemoveFromReadList(context.Context, model.ID) error {
	return f.call("to_read_remove")
}
func (f *fakeAPI) MarkNotificationRead(context.Context, model.ID) error {
	return f.call("notification_read")
}
func (f *fakeAPI) MarkAllNotificationsRead(context.Context) error {
	return f.call("notification_read_all")
}
func (f *fakeAPI) DeleteNotification(context.Context, model.ID) error {
	return f.call("notification_delete")
}

func (f *fakeAPI) UnreadCount(context.Context) (uint, error) {
	return f.unread, f.call("unread_count")
}

func (f *fakeAPI) FetchPage(ctx context.Context, r transport.Resource, page int) (model.Page, error) {
	if err := f.call("fetch_page"); err != nil {
		return model.Page{}, err
	}
	f.mu.Lock()
	gate := f.pageGate
	pages := f.pages[r.Path]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Page{}, ctx.Err()
		}
	}
	if page < 1 || page > len(pages) {
		return model.Page{}, &transport.TransportError{Op: "fetch_page", Status: 404, Err: transport.ErrNotFound}
	}
	return pages[page-1], nil
}

func (f *fakeAPI) FetchItem(_ context.Context, r transport.Resource) (model.Item, error) {
	if err := f.call("fetch_item"); err != nil {
		return model.Item{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[r.Path]
	if !ok {
		return model.Item{}, &transport.TransportError{Op: "fetch_item", Status: 404, Err: transport.ErrNotFound}
	}
	return it, nil
}

var _ transport.API = (*fakeAPI)(nil)

func serverDown(op string) error {
	return &transport.TransportError{Op: op, Status: 503, Err: transport.ErrServer}
}

func review(id, author string, liked bool, count uint) model.Item {
	return model.Item{
		Kind:     model.KindReview,
		ID:       model.ID(id),
		AuthorID: model.ID(author),
		Like:     &model.LikeState{IsLiked: liked, LikesCount: count},
		Attrs:    map[string]any{"content": "review " + id, "book_title": "Dune"},
	}
}

func userItem(id string, st model.FollowState) model.Item {
	return model.Item{
		Kind:   model.KindUser,
		ID:     model.ID(id),
		Follow: &st,
		Block:  &model.BlockState{},
		Attrs:  map[string]any{"name": "user " + id},
	}
}

func onePage(cur, last int, items ...model.Item) model.Page {
	return model.Page{
		Data: items,
		Meta: model.PageMeta{Total: len(items) * last, PerPage: len(items), CurrentPage: cur, LastPage: last},
	}
}

// newClient returns a Client that only revalidates when told to, so the
// canned pages are fetched a predictable number of times.
func newClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(Options{API: api, ManualRevalidate: true})
	require.NoError(t, err)
	return c
}

func ids(items []model.Item) []model.ID {
	out := make([]model.ID, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestNew_RequiresAPI(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoAPI)
}

func TestValidation(t *testing.T) {
	api := newFakeAPI()
	c := newClient(t, api)
	ctx := context.Background()

	_, err := c.ToggleLike(ctx, "")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "like.toggle: invalid review id")

	_, err = c.Follow(ctx, "  ", false)
	assert.True(t, IsValidation(err))

	_, err = c.AddToReadList(ctx, model.ID(make([]byte, 200)), nil)
	assert.True(t, IsValidation(err))

	assert.Zero(t, api.count("like"))
	assert.Zero(t, api.count("follow"))
	assert.Zero(t, api.count("to_read_add"))
	assert.Empty(t, c.Store().FindAll(querykey.All()))
}

func TestIntents_TrimIDs(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("42", "9", false, 3))}
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Feed().LoadFirst(ctx))

	st, err := c.ToggleLike(ctx, " 42\t")
	require.NoError(t, err)
	assert.True(t, st.IsLiked)
	assert.Equal(t, st, c.LikeState("42"))
	assert.True(t, c.Feed().Items()[0].Like.IsLiked)

	_, ok := c.Store().Get(querykey.Canonical(querykey.LikeEntity, " 42\t"))
	assert.False(t, ok, "padded ids do not get their own entry")
	assert.Len(t, c.Store().FindAll(querykey.Prefix(querykey.CanonicalPrefix(querykey.LikeEntity))), 1)
}

// Scenario A: a like shows up in every cached copy at once.
func TestToggleLike_FansOutToFeedAndDetail(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("42", "9", false, 3), review("43", "9", false, 1))}
	api.items["/reviews/42"] = review("42", "9", false, 3)
	c := newClient(t, api)
	ctx := context.Background()

	require.NoError(t, c.Feed().LoadFirst(ctx))
	_, err := c.LoadReview(ctx, "42")
	require.NoError(t, err)

	want := model.LikeState{IsLiked: true, LikesCount: 4}
	api.hook = func(string) {
		assert.Equal(t, want, c.LikeState("42"), "optimistic while in flight")
	}
	st, err := c.ToggleLike(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, want, st)

	feed := c.Feed().Items()
	assert.Equal(t, want, *feed[0].Like)
	assert.Equal(t, "Dune", feed[0].Attrs["book_title"])
	assert.Equal(t, model.LikeState{IsLiked: false, LikesCount: 1}, *feed[1].Like)

	v, ok := c.Store().Get(querykey.New(querykey.Review, "42"))
	require.True(t, ok)
	assert.Equal(t, want, *v.(model.Detail).Item.Like)

	assert.True(t, c.Store().IsStale(querykey.New(querykey.Feed)), "settled")
}

func TestToggleLike_ServerValueWins(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("42", "9", false, 3))}
	api.like = &model.LikeState{IsLiked: true, LikesCount: 10}
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Feed().LoadFirst(ctx))

	st, err := c.ToggleLike(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, *api.like, st)
	assert.Equal(t, *api.like, *c.Feed().Items()[0].Like)
}

func TestToggleLike_RollbackIsExact(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("42", "9", false, 3))}
	api.fail["like"] = serverDown("like")
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Feed().LoadFirst(ctx))
	before := c.Feed().View()

	st, err := c.ToggleLike(ctx, "42")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrServer)
	assert.Equal(t, model.LikeState{IsLiked: false, LikesCount: 3}, st)
	assert.Equal(t, before, c.Feed().View())
}

// Scenario B: a request to a private account never touches counts.
func TestFollowPrivate_ThenCancel(t *testing.T) {
	api := newFakeAPI()
	api.pages["/users/7/followers"] = []model.Page{onePage(1, 1,
		userItem("7", model.FollowState{FollowersCount: 12, FollowRequestStatus: model.RequestNone}))}
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Followers("7").LoadFirst(ctx))

	st, err := c.Follow(ctx, "7", true)
	require.NoError(t, err)
	assert.Equal(t, model.FollowState{FollowersCount: 12, FollowRequestStatus: model.RequestPending}, st)
	assert.Zero(t, c.ViewerState().FollowingCount)

	st, err = c.CancelFollowRequest(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, model.FollowState{FollowersCount: 12, FollowRequestStatus: model.RequestNone}, st)
	assert.Equal(t, uint(12), c.Followers("7").Items()[0].Follow.FollowersCount)
	assert.Zero(t, c.ViewerState().FollowingCount)
}

func TestFollowPublic_ServerSaysPending(t *testing.T) {
	api := newFakeAPI()
	api.follow = &model.FollowState{FollowersCount: 2, FollowRequestStatus: model.RequestPending}
	c := newClient(t, api)

	api.hook = func(string) {
		assert.Equal(t, uint(1), c.ViewerState().FollowingCount)
	}
	st, err := c.Follow(context.Background(), "8", false)
	require.NoError(t, err)
	assert.Equal(t, *api.follow, st)
	assert.Zero(t, c.ViewerState().FollowingCount)
}

// Scenario C: unfollow drops the author's reviews, and a failure puts all of
// them back in order.
func TestUnfollow_RollbackRestoresFeedOrder(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1,
		review("1", "9", false, 0),
		review("2", "3", false, 0),
		review("3", "9", false, 0),
		review("4", "9", false, 0),
		review("5", "4", false, 0),
	)}
	api.fail["unfollow"] = serverDown("unfollow")
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Feed().LoadFirst(ctx))

	api.hook = func(string) {
		assert.Equal(t, []model.ID{"2", "5"}, ids(c.Feed().Items()))
		assert.Equal(t, 2, c.Feed().View().Pages[0].Meta.Total)
	}
	_, err := c.Unfollow(ctx, "9")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrServer)
	assert.Equal(t, []model.ID{"1", "2", "3", "4", "5"}, ids(c.Feed().Items()))
	assert.Equal(t, 5, c.Feed().View().Pages[0].Meta.Total)
}

func TestUnfollow_RollbackKeepsLikeMadeMeanwhile(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1,
		review("1", "9", false, 0),
		review("2", "3", false, 5),
	)}
	api.fail["unfollow"] = serverDown("unfollow")
	api.like = &model.LikeState{IsLiked: true, LikesCount: 6}
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Feed().LoadFirst(ctx))

	var once sync.Once
	api.hook = func(op string) {
		if op != "unfollow" {
			return
		}
		once.Do(func() {
			_, err := c.ToggleLike(ctx, "2")
			assert.NoError(t, err)
		})
	}
	_, err := c.Unfollow(ctx, "9")
	require.Error(t, err)

	want := model.LikeState{IsLiked: true, LikesCount: 6}
	assert.Equal(t, want, c.LikeState("2"))
	items := c.Feed().Items()
	assert.Equal(t, []model.ID{"1", "2"}, ids(items))
	require.NotNil(t, items[1].Like)
	assert.Equal(t, want, *items[1].Like, "feed copy matches canonical state")
	assert.Equal(t, 2, c.Feed().View().Pages[0].Meta.Total)
}

func TestBlockUser_ForcesFollowState(t *testing.T) {
	api := newFakeAPI()
	api.pages["/users/7/followers"] = []model.Page{onePage(1, 1,
		userItem("7", model.FollowState{IsFollowing: true, FollowersCount: 4, FollowRequestStatus: model.RequestNone}))}
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Followers("7").LoadFirst(ctx))

	st, err := c.BlockUser(ctx, "7")
	require.NoError(t, err)
	assert.True(t, st.IsBlocked)
	item := c.Followers("7").Items()[0]
	assert.True(t, item.Block.IsBlocked)
	assert.False(t, item.Follow.IsFollowing)
	assert.Equal(t, uint(4), item.Follow.FollowersCount)
	assert.True(t, c.Store().IsStale(querykey.New(querykey.Followers, "7")))

	api.fail["unblock"] = serverDown("unblock")
	st, err = c.UnblockUser(ctx, "7")
	require.Error(t, err)
	assert.True(t, st.IsBlocked, "rolled back")
}

// Scenario D: reading-list membership reverts on failure.
func TestAddToReadList_Rollback(t *testing.T) {
	api := newFakeAPI()
	api.fail["to_read_add"] = serverDown("to_read_add")
	c := newClient(t, api)

	api.hook = func(string) {
		assert.True(t, c.IsBookInList("bk1"))
	}
	in, err := c.AddToReadList(context.Background(), "bk1", nil)
	require.Error(t, err)
	assert.False(t, in)
	assert.False(t, c.IsBookInList("bk1"))
	assert.Equal(t, 1, api.count("to_read_add"))
}

func TestToReadList_AddAndRemove(t *testing.T) {
	api := newFakeAPI()
	book := func(id string, in bool) model.Item {
		return model.Item{Kind: model.KindBook, ID: model.ID(id), ToRead: &model.ToReadState{InList: in}, Attrs: map[string]any{"title": id}}
	}
	api.pages["/to-read"] = []model.Page{onePage(1, 1, book("b1", true), book("b2", true))}
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.ToReadList().LoadFirst(ctx))

	nb := book("b3", false)
	in, err := c.AddToReadList(ctx, "b3", &nb)
	require.NoError(t, err)
	assert.True(t, in)
	assert.Equal(t, []model.ID{"b3", "b1", "b2"}, ids(c.ToReadList().Items()))

	api.fail["to_read_remove"] = serverDown("to_read_remove")
	_, err = c.RemoveFromReadList(ctx, "b1")
	require.Error(t, err)
	assert.Equal(t, []model.ID{"b3", "b1", "b2"}, ids(c.ToReadList().Items()))
	assert.True(t, c.IsBookInList("b1"))
}

func TestNotifications(t *testing.T) {
	api := newFakeAPI()
	note := func(id string, read bool) model.Item {
		return model.Item{Kind: model.KindNotification, ID: model.ID(id), Notification: &model.NotificationState{IsRead: read}}
	}
	api.pages["/notifications"] = []model.Page{onePage(1, 1, note("n1", false), note("n2", false), note("n3", true))}
	api.unread = 2
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Notifications().LoadFirst(ctx))

	n, err := c.RefreshUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), n)

	n, err = c.MarkNotificationRead(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n)
	n, err = c.MarkNotificationRead(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n, "idempotent")

	n, err = c.DeleteNotification(ctx, "n3")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n, "deleting a read notification keeps the count")
	assert.Equal(t, []model.ID{"n1", "n2"}, ids(c.Notifications().Items()))

	api.fail["notification_read_all"] = serverDown("notification_read_all")
	n, err = c.MarkAllNotificationsRead(ctx)
	require.Error(t, err)
	assert.Equal(t, uint(1), n)
	assert.False(t, c.Notifications().Items()[1].Notification.IsRead)

	delete(api.fail, "notification_read_all")
	n, err = c.MarkAllNotificationsRead(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, c.Notifications().Items()[1].Notification.IsRead)
}

// Scenario E: two LoadMore calls in flight together fetch one page.
func TestFeed_LoadMoreCoalesces(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{
		onePage(1, 3, review("1", "2", false, 0)),
		onePage(2, 3, review("2", "2", false, 0)),
		onePage(3, 3, review("3", "2", false, 0)),
	}
	c := newClient(t, api)
	ctx := context.Background()
	require.NoError(t, c.Feed().LoadFirst(ctx))
	require.Same(t, c.Feed(), c.Feed())

	gate := make(chan struct{})
	api.mu.Lock()
	api.pageGate = gate
	api.mu.Unlock()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Feed().LoadMore(ctx)
			assert.NoError(t, err)
			results[i] = ok
		}()
		if i == 0 {
			require.Eventually(t, func() bool { return api.count("fetch_page") == 2 }, time.Second, 5*time.Millisecond)
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 2, api.count("fetch_page"), "one call for page 1, one for page 2")
	assert.Equal(t, []bool{true, true}, results)
	assert.Equal(t, []model.ID{"1", "2"}, ids(c.Feed().Items()))
}

func TestSubscribe(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("42", "9", false, 3))}
	c := newClient(t, api)
	ctx := context.Background()

	var mu sync.Mutex
	var events []cache.EventType
	unsub := c.Subscribe(querykey.Feed, func(ev cache.Event) {
		mu.Lock()
		events = append(events, ev.Type)
		mu.Unlock()
	})
	require.NoError(t, c.Feed().LoadFirst(ctx))
	_, err := c.ToggleLike(ctx, "42")
	require.NoError(t, err)
	unsub()

	mu.Lock()
	seen := append([]cache.EventType(nil), events...)
	mu.Unlock()
	assert.Contains(t, seen, cache.EventSet)
	assert.Contains(t, seen, cache.EventStale)

	_, err = c.ToggleLike(ctx, "42")
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, events, len(seen), "no events after unsubscribe")
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newFakeAPI())
	_, err := c.Persist(ctx)
	assert.ErrorIs(t, err, ErrNoPersistence)
	_, err = c.Hydrate(ctx)
	assert.ErrorIs(t, err, ErrNoPersistence)

	db, err := persist.Open(persist.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("42", "9", false, 3))}
	first, err := New(Options{API: api, DB: db})
	require.NoError(t, err)
	require.NoError(t, first.Feed().LoadFirst(ctx))
	_, err = first.ToggleLike(ctx, "42")
	require.NoError(t, err)
	stats, err := first.Persist(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)

	second, err := New(Options{API: newFakeAPI(), DB: db})
	require.NoError(t, err)
	n, err := second.Hydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.LikeState{IsLiked: true, LikesCount: 4}, second.LikeState("42"))

	require.NoError(t, second.SignOut(ctx))
	assert.Equal(t, model.DefaultLike, second.LikeState("42"))
	third, err := New(Options{API: newFakeAPI(), DB: db})
	require.NoError(t, err)
	n, err = third.Hydrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sign out wiped the snapshot")
}

func TestSignOut_CancelsFetches(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("1", "2", false, 0))}
	api.pageGate = make(chan struct{})
	c := newClient(t, api)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Feed().LoadFirst(ctx) }()
	require.Eventually(t, func() bool { return api.count("fetch_page") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SignOut(ctx))
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not cancelled")
	}
	assert.Nil(t, c.Feed().View())
}

func TestStaleList_RevalidatesOnNextRead(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 2, review("42", "9", false, 3)), onePage(2, 2, review("43", "9", false, 1))}
	c, err := New(Options{API: api})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()
	feed := querykey.New(querykey.Feed)

	require.NoError(t, c.Feed().LoadFirst(ctx))
	_, err = c.ToggleLike(ctx, "42")
	require.NoError(t, err)
	require.True(t, c.Store().IsStale(feed))
	assert.Equal(t, 1, api.count("fetch_page"), "settling only marks the list stale")

	assert.Len(t, c.Feed().Items(), 1, "the stale copy is served at once")
	assert.Eventually(t, func() bool {
		return api.count("fetch_page") == 2 && !c.Store().IsStale(feed)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignOut_StopsBackgroundRevalidation(t *testing.T) {
	api := newFakeAPI()
	api.pages["/feed"] = []model.Page{onePage(1, 1, review("42", "9", false, 3))}
	c, err := New(Options{API: api})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()
	feed := querykey.New(querykey.Feed)

	old := c.Feed()
	require.NoError(t, old.LoadFirst(ctx))
	require.NoError(t, c.SignOut(ctx))
	assert.NotSame(t, old, c.Feed())

	require.NoError(t, old.LoadFirst(ctx))
	c.Store().MarkStale(querykey.Exact(feed))
	old.Items()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, api.count("fetch_page"))
	assert.True(t, c.Store().IsStale(feed))

	c.Feed().Items()
	assert.Eventually(t, func() bool {
		return api.count("fetch_page") == 3 && !c.Store().IsStale(feed)
	}, 2*time.Second, 10*time.Millisecond)
}
