// Package memory keeps subscribers and the message log in process memory.
// It backs tests and single-process deployments seeded from config.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"linerelay/pkg/store"
)

// Store implements store.SubscriberStore and store.MessageStore.
type Store struct {
	mu          sync.RWMutex
	subscribers map[string]store.Subscriber
	messages    []store.Message
	now         func() time.Time
}

func New(seed ...store.Subscriber) *Store {
	s := &Store{
		subscribers: make(map[string]store.Subscriber, len(seed)),
		now:         time.Now,
	}
	for _, sub := range seed {
		sub.Channel = store.ChannelOrDefault(sub.Channel)
		s.subscribers[sub.UserID] = cloneSubscriber(sub)
	}
	return s
}

// NewStores wraps a memory store as a store.Stores bundle.
func NewStores(seed ...store.Subscriber) *store.Stores {
	s := New(seed...)
	return store.NewStores(s, s, nil)
}

func (s *Store) LoadActiveSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]store.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if sub.IsActive {
			active = append(active, cloneSubscriber(sub))
		}
	}
	sortByUserID(active)
	return active, nil
}

func (s *Store) ListSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]store.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		all = append(all, cloneSubscriber(sub))
	}
	sortByUserID(all)
	return all, nil
}

func (s *Store) SetActiveTarget(ctx context.Context, adminID string, targetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[adminID]
	if !ok {
		return fmt.Errorf("set active target for %s: %w", adminID, store.ErrSubscriberNotFound)
	}
	sub.ActiveChatTarget = store.StringPtr(targetID)
	sub.UpdatedAt = s.now().UTC()
	s.subscribers[adminID] = sub
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, msg store.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *Store) UpsertSubscriber(ctx context.Context, sub store.Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sub.Channel = store.ChannelOrDefault(sub.Channel)
	sub.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub.UserID] = cloneSubscriber(sub)
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make([]store.Message, 0, min(limit, len(s.messages)))
	for i := len(s.messages) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, s.messages[i])
	}
	return recent, nil
}

// Messages returns a copy of the message log in insertion order.
func (s *Store) Messages() []store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

func cloneSubscriber(sub store.Subscriber) store.Subscriber {
	if sub.ActiveChatTarget != nil {
		target := *sub.ActiveChatTarget
		sub.ActiveChatTarget = &target
	}
	return sub
}

func sortByUserID(subs []store.Subscriber) {
	slices.SortFunc(subs, func(a, b store.Subscriber) int {
		return strings.Compare(a.UserID, b.UserID)
	})
}
