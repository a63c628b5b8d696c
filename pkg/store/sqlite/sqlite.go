// Package sqlite implements the subscriber directory, lock writer and message
// log on an embedded SQLite database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"linerelay/pkg/store"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// OpenDB opens the database file with WAL journaling and a busy timeout.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", withPragmas(path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// One writer at a time; readers share the pool.
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	return db, nil
}

// NewSQLiteStores creates the store bundle backed by SQLite.
func NewSQLiteStores(path string, queryTimeout time.Duration) (*store.Stores, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := New(db, queryTimeout)
	return store.NewStores(s, s, db.Close), nil
}

// DSN returns the connection string used for path, for migration tooling.
func DSN(path string) string {
	return withPragmas(path)
}

func withPragmas(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Store implements store.SubscriberStore and store.MessageStore.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

func New(db *sql.DB, queryTimeout time.Duration) *Store {
	return &Store{db: db, timeout: queryTimeout}
}

func (s *Store) LoadActiveSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	return s.querySubscribers(ctx, `
		SELECT user_id, channel, is_active, active_chat_target, updated_at
		  FROM subscribers
		 WHERE is_active = 1
		 ORDER BY user_id`)
}

func (s *Store) ListSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	return s.querySubscribers(ctx, `
		SELECT user_id, channel, is_active, active_chat_target, updated_at
		  FROM subscribers
		 ORDER BY user_id`)
}

func (s *Store) querySubscribers(ctx context.Context, query string) ([]store.Subscriber, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []store.Subscriber
	for rows.Next() {
		var (
			sub       store.Subscriber
			active    int64
			target    sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&sub.UserID, &sub.Channel, &active, &target, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		sub.IsActive = active != 0
		if target.Valid {
			sub.ActiveChatTarget = store.StringPtr(target.String)
		}
		if parsed, err := time.Parse(timeLayout, updatedAt); err == nil {
			sub.UpdatedAt = parsed
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	return subs, nil
}

func (s *Store) SetActiveTarget(ctx context.Context, adminID string, targetID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET active_chat_target = ?, updated_at = ? WHERE user_id = ?`,
		targetID, formatTime(time.Now()), adminID,
	)
	if err != nil {
		return fmt.Errorf("update active target: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update active target: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set active target for %s: %w", adminID, store.ErrSubscriberNotFound)
	}

	return nil
}

func (s *Store) UpsertSubscriber(ctx context.Context, sub store.Subscriber) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	active := 0
	if sub.IsActive {
		active = 1
	}

	var target any
	if sub.ActiveChatTarget != nil {
		target = *sub.ActiveChatTarget
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (user_id, channel, is_active, active_chat_target, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			channel = excluded.channel,
			is_active = excluded.is_active,
			active_chat_target = excluded.active_chat_target,
			updated_at = excluded.updated_at`,
		sub.UserID, store.ChannelOrDefault(sub.Channel), active, target, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}

	return nil
}

func (s *Store) InsertMessage(ctx context.Context, msg store.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, user_name, content, channel, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.UserID, msg.UserName, msg.Content, msg.Channel, formatTime(createdAt),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]store.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, user_name, content, channel, created_at
		  FROM messages
		 ORDER BY id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var (
			msg       store.Message
			createdAt string
		)
		if err := rows.Scan(&msg.UserID, &msg.UserName, &msg.Content, &msg.Channel, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if parsed, err := time.Parse(timeLayout, createdAt); err == nil {
			msg.CreatedAt = parsed
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
