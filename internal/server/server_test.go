package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameday/event-chat/internal/chat"
	"github.com/gameday/event-chat/internal/chatlog"
	"github.com/gameday/event-chat/internal/messaging"
	"github.com/gameday/event-chat/internal/ratelimit"
)

type fakeLimiter struct {
	mu    sync.Mutex
	count map[string]int
	limit int
}

func (l *fakeLimiter) Allow(_ context.Context, id string, _ ratelimit.Rule) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count[id]++
	return l.count[id] <= l.limit, nil
}

type fakeFeed struct {
	mu     sync.Mutex
	events []messaging.ChatEvent
	err    error
}

func (f *fakeFeed) PublishChatEvent(ev messaging.ChatEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeFeed) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type failingStore struct{ chatlog.Store }

func (failingStore) List(context.Context, string, *time.Time, int) ([]chat.Message, error) {
	return nil, errors.New("db down")
}
func (failingStore) Ping(context.Context) error { return errors.New("db down") }

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	store  *chatlog.Memory
	feed   *fakeFeed
	client *http.Client
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	t.Helper()
	store := chatlog.NewMemory()
	feed := &fakeFeed{}
	s := New(DefaultConfig(), store, append([]Option{WithPublisher(feed)}, opts...)...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, store: store, feed: feed, client: srv.Client()}
}

func (a *testAPI) do(method, path, user string, body any) *http.Response {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, r)
	require.NoError(a.t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	resp, err := a.client.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func detail(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[map[string]string](t, resp)["detail"]
}

func (a *testAPI) send(user, eventID, text string) chat.Message {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/event-chats/", user, map[string]string{"eventId": eventID, "messageText": text})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	return decode[chat.Message](a.t, resp)
}

func TestCreateAndList(t *testing.T) {
	api := newTestAPI(t)
	eventID := uuid.NewString()

	m1 := api.send("u1", eventID, "  kickoff  ")
	assert.Equal(t, "kickoff", m1.Text)
	assert.Equal(t, "u1", m1.AuthorID)
	assert.Equal(t, eventID, m1.EventID)
	m2 := api.send("u2", eventID, "goal")

	resp := api.do(http.MethodGet, "/event-chats/event/"+eventID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[chat.Page](t, resp)

	require.Len(t, page.Messages, 2)
	assert.Equal(t, m1.ID, page.Messages[0].ID)
	assert.Equal(t, m2.ID, page.Messages[1].ID)
	assert.Equal(t, chat.CursorAt(m2.Timestamp), page.NextCursor)
}

func TestListSinceAndLimit(t *testing.T) {
	api := newTestAPI(t)
	eventID := uuid.NewString()
	var sent []chat.Message
	for _, text := range []string{"a", "b", "c", "d"} {
		sent = append(sent, api.send("u1", eventID, text))
	}

	q := url.Values{"since": {string(chat.CursorAt(sent[1].Timestamp))}}
	page := decode[chat.Page](t, api.do(http.MethodGet, "/event-chats/event/"+eventID+"?"+q.Encode(), "", nil))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "c", page.Messages[0].Text)
	assert.Equal(t, "d", page.Messages[1].Text)

	page = decode[chat.Page](t, api.do(http.MethodGet, "/event-chats/event/"+eventID+"?limit=2", "", nil))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "c", page.Messages[0].Text)
	assert.Equal(t, "d", page.Messages[1].Text)
}

func TestListEmptyHasNullCursor(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/event-chats/event/"+uuid.NewString(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":[],"nextCursor":null}`, string(body))
}

func TestListValidation(t *testing.T) {
	api := newTestAPI(t)
	eventID := uuid.NewString()

	tests := []struct {
		name  string
		path  string
		want  int
		wantD string
	}{
		{"bad since", "/event-chats/event/" + eventID + "?since=yesterday", http.StatusUnprocessableEntity, "Invalid 'since' timestamp; use ISO-8601 format"},
		{"limit zero", "/event-chats/event/" + eventID + "?limit=0", http.StatusUnprocessableEntity, "limit must be between 1 and 200"},
		{"limit too big", "/event-chats/event/" + eventID + "?limit=201", http.StatusUnprocessableEntity, "limit must be between 1 and 200"},
		{"limit not a number", "/event-chats/event/" + eventID + "?limit=ten", http.StatusUnprocessableEntity, "limit must be between 1 and 200"},
		{"bad event id", "/event-chats/event/not-a-uuid", http.StatusUnprocessableEntity, "Invalid event id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, tt.wantD, detail(t, resp))
		})
	}

	resp := api.do(http.MethodGet, "/event-chats/event/"+eventID+"?limit=200&since=2025-03-01T18:00:00%2B00:00", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateValidation(t *testing.T) {
	api := newTestAPI(t)
	eventID := uuid.NewString()

	resp := api.do(http.MethodPost, "/event-chats/", "", map[string]string{"eventId": eventID, "messageText": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authenticated", detail(t, resp))

	resp = api.do(http.MethodPost, "/event-chats/", "u1", map[string]string{"eventId": eventID, "messageText": "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = api.do(http.MethodPost, "/event-chats/", "u1", map[string]string{"eventId": eventID, "messageText": strings.Repeat("é", 1001)})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Message text must be at most 1000 characters", detail(t, resp))

	resp = api.do(http.MethodPost, "/event-chats/", "u1", map[string]string{"eventId": "nope", "messageText": "hi"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = api.do(http.MethodPost, "/event-chats", "u1", map[string]string{"eventId": eventID, "messageText": strings.Repeat("é", 1000)})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, []string{messaging.TypeMessageCreated}, api.feed.types())
}

func TestDeleteOwnership(t *testing.T) {
	api := newTestAPI(t)
	m := api.send("owner", uuid.NewString(), "mine")

	resp := api.do(http.MethodDelete, "/event-chats/"+m.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = api.do(http.MethodDelete, "/event-chats/"+m.ID, "intruder", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You can only delete your own messages", detail(t, resp))

	resp = api.do(http.MethodDelete, "/event-chats/"+m.ID, "owner", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.do(http.MethodDelete, "/event-chats/"+m.ID, "owner", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, []string{messaging.TypeMessageCreated, messaging.TypeMessageDeleted}, api.feed.types())
}

func TestGetMessage(t *testing.T) {
	api := newTestAPI(t)
	m := api.send("u1", uuid.NewString(), "hello")

	resp := api.do(http.MethodGet, "/event-chats/"+m.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, m.ID, decode[chat.Message](t, resp).ID)

	resp = api.do(http.MethodGet, "/event-chats/"+uuid.NewString(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "null", strings.TrimSpace(string(body)))

	resp = api.do(http.MethodGet, "/event-chats/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSendRateLimit(t *testing.T) {
	api := newTestAPI(t, WithLimiter(&fakeLimiter{count: map[string]int{}, limit: 2}))
	eventID := uuid.NewString()

	api.send("u1", eventID, "one")
	api.send("u1", eventID, "two")

	resp := api.do(http.MethodPost, "/event-chats/", "u1", map[string]string{"eventId": eventID, "messageText": "three"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "10", resp.Header.Get("Retry-After"))

	api.send("u2", eventID, "other user")
}

type windowLimiter struct {
	fakeLimiter
	retry time.Duration
}

func (l *windowLimiter) RetryAfter(context.Context, string, ratelimit.Rule) (time.Duration, error) {
	return l.retry, nil
}

func TestRateLimitUsesRemainingWindow(t *testing.T) {
	api := newTestAPI(t, WithLimiter(&windowLimiter{
		fakeLimiter: fakeLimiter{count: map[string]int{}, limit: 1},
		retry:       2300 * time.Millisecond,
	}))
	eventID := uuid.NewString()
	msg := api.send("u1", eventID, "one")

	resp := api.do(http.MethodPost, "/event-chats/", "u1", map[string]string{"eventId": eventID, "messageText": "two"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get("Retry-After"))

	// Deletes are counted under their own rule but share the fake's counter.
	resp = api.do(http.MethodDelete, "/event-chats/"+msg.ID, "u1", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestFeedFailureDoesNotFailRequest(t *testing.T) {
	api := newTestAPI(t)
	api.feed.err = errors.New("nats down")

	api.send("u1", uuid.NewString(), "still stored")
}

func TestRequestIDAndHealth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	req, _ := http.NewRequest(http.MethodGet, api.srv.URL+"/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp2, err := api.client.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "abc-123", resp2.Header.Get(requestIDHeader))

	resp = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStoreFailures(t *testing.T) {
	s := New(DefaultConfig(), failingStore{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/event-chats/event/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, health.StatusCode)
}
