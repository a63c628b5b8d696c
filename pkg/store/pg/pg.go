// Package pg implements the subscriber directory, lock writer and message log
// on Postgres through the pgx database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"linerelay/pkg/store"
)

const pingTimeout = 3 * time.Second

// OpenDB opens a pooled Postgres connection and verifies it with a ping.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	return db, nil
}

// NewPGStores creates the store bundle backed by Postgres.
func NewPGStores(dsn string, queryTimeout time.Duration) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	s := New(db, queryTimeout)
	return store.NewStores(s, s, db.Close), nil
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
		 WHERE is_active = TRUE
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
			sub    store.Subscriber
			target sql.NullString
		)
		if err := rows.Scan(&sub.UserID, &sub.Channel, &sub.IsActive, &target, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if target.Valid {
			sub.ActiveChatTarget = store.StringPtr(target.String)
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
		`UPDATE subscribers SET active_chat_target = $1, updated_at = now() WHERE user_id = $2`,
		targetID, adminID,
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

func (s *Store) InsertMessage(ctx context.Context, msg store.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, user_name, content, channel, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.UserID, msg.UserName, msg.Content, msg.Channel, createdAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func (s *Store) UpsertSubscriber(ctx context.Context, sub store.Subscriber) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var target any
	if sub.ActiveChatTarget != nil {
		target = *sub.ActiveChatTarget
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (user_id, channel, is_active, active_chat_target, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			channel = EXCLUDED.channel,
			is_active = EXCLUDED.is_active,
			active_chat_target = EXCLUDED.active_chat_target,
			updated_at = EXCLUDED.updated_at`,
		sub.UserID, store.ChannelOrDefault(sub.Channel), sub.IsActive, target,
	); err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
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
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.UserID, &msg.UserName, &msg.Content, &msg.Channel, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
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
