package chatlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/gameday/event-chat/internal/chat"
)

// Postgres is a Store backed by the event_chats table.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to the database at dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("chatlog: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("chatlog: ping: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// DB exposes the handle, e.g. for Migrate.
func (s *Postgres) DB() *sql.DB {
	return s.db
}

const selectColumns = `message_id, event_id, user_id, COALESCE(user_name, ''), message_text, timestamp`

// List implements Store.
func (s *Postgres) List(ctx context.Context, eventID string, since *time.Time, limit int) ([]chat.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if since == nil {
		// Newest page, flipped back to ascending order.
		const query = `
			SELECT ` + selectColumns + ` FROM (
				SELECT * FROM event_chats
				WHERE event_id = $1
				ORDER BY timestamp DESC, message_id DESC
				LIMIT $2
			) AS newest
			ORDER BY timestamp ASC, message_id ASC`
		rows, err = s.db.QueryContext(ctx, query, eventID, limit)
	} else {
		const query = `
			SELECT ` + selectColumns + `
			FROM event_chats
			WHERE event_id = $1 AND timestamp > $2
			ORDER BY timestamp ASC, message_id ASC
			LIMIT $3`
		rows, err = s.db.QueryContext(ctx, query, eventID, since.UTC(), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("chatlog: list: %w", err)
	}
	defer rows.Close()

	msgs := []chat.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("chatlog: list scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatlog: list rows: %w", err)
	}
	return msgs, nil
}

// Create implements Store.
func (s *Postgres) Create(ctx context.Context, m NewMessage) (chat.Message, error) {
	const query = `
		INSERT INTO event_chats (message_id, event_id, user_id, user_name, message_text)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING ` + selectColumns

	row := s.db.QueryRowContext(ctx, query, uuid.NewString(), m.EventID, m.AuthorID, m.AuthorName, m.Text)
	msg, err := scanMessage(row)
	if err != nil {
		return chat.Message{}, fmt.Errorf("chatlog: insert: %w", err)
	}
	return msg, nil
}

// Get implements Store.
func (s *Postgres) Get(ctx context.Context, messageID string) (chat.Message, error) {
	const query = `SELECT ` + selectColumns + ` FROM event_chats WHERE message_id = $1`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, ErrNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("chatlog: get: %w", err)
	}
	return msg, nil
}

// Delete implements Store.
func (s *Postgres) Delete(ctx context.Context, messageID, userID string) (chat.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, fmt.Errorf("chatlog: delete begin: %w", err)
	}
	defer tx.Rollback()

	const lookup = `SELECT ` + selectColumns + ` FROM event_chats WHERE message_id = $1 FOR UPDATE`
	msg, err := scanMessage(tx.QueryRowContext(ctx, lookup, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, ErrNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("chatlog: delete lookup: %w", err)
	}
	if msg.AuthorID != userID {
		return chat.Message{}, ErrForbidden
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_chats WHERE message_id = $1`, messageID); err != nil {
		return chat.Message{}, fmt.Errorf("chatlog: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return chat.Message{}, fmt.Errorf("chatlog: delete commit: %w", err)
	}
	return msg, nil
}

// Ping implements Store.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *Postgres) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (chat.Message, error) {
	var m chat.Message
	if err := row.Scan(&m.ID, &m.EventID, &m.AuthorID, &m.AuthorName, &m.Text, &m.Timestamp); err != nil {
		return chat.Message{}, err
	}
	m.Timestamp = m.Timestamp.UTC()
	return m, nil
}
