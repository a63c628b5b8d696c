// Package store defines the persisted records and storage contracts shared by
// the subscriber directory, the lock writer and the message log.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrSubscriberNotFound is returned when a keyed update matches no subscriber row.
var ErrSubscriberNotFound = errors.New("subscriber not found")

// DefaultChannel is the platform assumed for subscriber rows that name none.
const DefaultChannel = "line"

// Subscriber is one administrator record.
type Subscriber struct {
	UserID string
	// Channel is the platform the administrator is reached on; user ids are
	// only meaningful within it.
	Channel  string
	IsActive bool
	// ActiveChatTarget is the end-user this administrator relays to; nil when unlocked.
	ActiveChatTarget *string
	UpdatedAt        time.Time
}

// Target returns the locked target id, or "" when unlocked.
func (s Subscriber) Target() string {
	if s.ActiveChatTarget == nil {
		return ""
	}
	return *s.ActiveChatTarget
}

// Message is one message-log row.
type Message struct {
	UserID    string
	UserName  string
	Content   string
	Channel   string
	CreatedAt time.Time
}

// SubscriberStore reads and updates administrator records.
type SubscriberStore interface {
	LoadActiveSubscribers(ctx context.Context) ([]Subscriber, error)
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
	SetActiveTarget(ctx context.Context, adminID string, targetID string) error
	// UpsertSubscriber creates or replaces one administrator row. An empty
	// Channel is stored as DefaultChannel.
	UpsertSubscriber(ctx context.Context, sub Subscriber) error
}

// MessageStore appends to and reads back the message log.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg Message) error
	// RecentMessages returns up to limit rows, newest first.
	RecentMessages(ctx context.Context, limit int) ([]Message, error)
}

// Stores is the top-level container for one storage backend.
type Stores struct {
	Subscribers SubscriberStore
	Messages    MessageStore
	close       func() error
}

// NewStores bundles a backend with its close function.
func NewStores(subscribers SubscriberStore, messages MessageStore, closeFn func() error) *Stores {
	return &Stores{Subscribers: subscribers, Messages: messages, close: closeFn}
}

// Close releases backend resources.
func (s *Stores) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// ChannelOrDefault returns channel, or DefaultChannel when it is blank.
func ChannelOrDefault(channel string) string {
	if channel == "" {
		return DefaultChannel
	}
	return channel
}

// StringPtr returns a pointer to value, or nil for "".
func StringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
