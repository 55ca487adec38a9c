package chatlog

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameday/event-chat/internal/chat"
)

func texts(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

// runStoreContract exercises behaviour every Store must share.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("create assigns id and timestamp", func(t *testing.T) {
		eventID := uuid.NewString()
		before := time.Now().Add(-time.Second)

		m, err := s.Create(ctx, NewMessage{EventID: eventID, AuthorID: "u1", AuthorName: "sam", Text: "hello"})
		require.NoError(t, err)

		_, err = uuid.Parse(m.ID)
		assert.NoError(t, err)
		assert.Equal(t, eventID, m.EventID)
		assert.Equal(t, "u1", m.AuthorID)
		assert.Equal(t, "sam", m.AuthorName)
		assert.Equal(t, "hello", m.Text)
		assert.True(t, m.Timestamp.After(before))

		got, err := s.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
		assert.True(t, m.Timestamp.Equal(got.Timestamp))
	})

	t.Run("list newest page ascending", func(t *testing.T) {
		eventID := uuid.NewString()
		for i := 1; i <= 5; i++ {
			_, err := s.Create(ctx, NewMessage{EventID: eventID, AuthorID: "u1", Text: fmt.Sprintf("m%d", i)})
			require.NoError(t, err)
		}

		msgs, err := s.List(ctx, eventID, nil, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m4", "m5"}, texts(msgs))

		all, err := s.List(ctx, eventID, nil, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, texts(all))
	})

	t.Run("list since is strictly after", func(t *testing.T) {
		eventID := uuid.NewString()
		var created []chat.Message
		for i := 1; i <= 4; i++ {
			m, err := s.Create(ctx, NewMessage{EventID: eventID, AuthorID: "u1", Text: fmt.Sprintf("m%d", i)})
			require.NoError(t, err)
			created = append(created, m)
		}

		since := created[1].Timestamp
		msgs, err := s.List(ctx, eventID, &since, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m4"}, texts(msgs))

		msgs, err = s.List(ctx, eventID, &since, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"m3"}, texts(msgs))

		last := created[3].Timestamp
		msgs, err = s.List(ctx, eventID, &last, 50)
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	})

	t.Run("list unknown event is empty", func(t *testing.T) {
		msgs, err := s.List(ctx, uuid.NewString(), nil, 50)
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	})

	t.Run("events are isolated", func(t *testing.T) {
		a, b := uuid.NewString(), uuid.NewString()
		_, err := s.Create(ctx, NewMessage{EventID: a, AuthorID: "u1", Text: "in a"})
		require.NoError(t, err)
		_, err = s.Create(ctx, NewMessage{EventID: b, AuthorID: "u1", Text: "in b"})
		require.NoError(t, err)

		msgs, err := s.List(ctx, a, nil, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"in a"}, texts(msgs))
	})

	t.Run("delete checks ownership", func(t *testing.T) {
		eventID := uuid.NewString()
		m, err := s.Create(ctx, NewMessage{EventID: eventID, AuthorID: "owner", Text: "mine"})
		require.NoError(t, err)

		_, err = s.Delete(ctx, m.ID, "intruder")
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = s.Get(ctx, m.ID)
		require.NoError(t, err)

		deleted, err := s.Delete(ctx, m.ID, "owner")
		require.NoError(t, err)
		assert.Equal(t, m.ID, deleted.ID)
		assert.Equal(t, eventID, deleted.EventID)

		_, err = s.Get(ctx, m.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Delete(ctx, m.ID, "owner")
		assert.ErrorIs(t, err, ErrNotFound)

		msgs, err := s.List(ctx, eventID, nil, 50)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryTimestampsStrictlyIncrease(t *testing.T) {
	s := NewMemory()
	fixed := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	var prev time.Time
	for i := 0; i < 5; i++ {
		m, err := s.Create(context.Background(), NewMessage{EventID: "e", AuthorID: "u", Text: "x"})
		require.NoError(t, err)
		assert.True(t, m.Timestamp.After(prev))
		prev = m.Timestamp
	}
	assert.Equal(t, fixed.Add(4*time.Microsecond), prev)
}

func TestMemoryListReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.Create(ctx, NewMessage{EventID: "e", AuthorID: "u", Text: "original"})
	require.NoError(t, err)

	msgs, err := s.List(ctx, "e", nil, 10)
	require.NoError(t, err)
	msgs[0].Text = "mutated"

	again, err := s.List(ctx, "e", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

// TestPostgresStore runs the contract against the database named by
// CHATSERVER_TEST_DATABASE_URL and is skipped otherwise.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHATSERVER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CHATSERVER_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, Migrate(s.DB()))
	require.NoError(t, Migrate(s.DB()), "migrating twice is a no-op")

	runStoreContract(t, s)
}
