package relay

import (
	"context"
	"errors"
	"sync"

	"linerelay/pkg/store"
)

type sentMessage struct {
	To  string
	Msg OutboundMessage
}

type fakeMessenger struct {
	mu sync.Mutex

	replies    []sentMessage
	pushes     []sentMessage
	multicasts [][]string
	cards      []Card

	replyErr     error
	pushErr      error
	multicastErr error
}

func (m *fakeMessenger) Reply(_ context.Context, replyToken string, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, sentMessage{To: replyToken, Msg: msg})
	return m.replyErr
}

func (m *fakeMessenger) Push(_ context.Context, userID string, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, sentMessage{To: userID, Msg: msg})
	return m.pushErr
}

func (m *fakeMessenger) Multicast(_ context.Context, userIDs []string, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.multicasts = append(m.multicasts, append([]string(nil), userIDs...))
	if msg.Card != nil {
		m.cards = append(m.cards, *msg.Card)
	}
	return m.multicastErr
}

type fakeDirectory struct {
	subscribers []store.Subscriber
	err         error
	calls       int
}

func (d *fakeDirectory) LoadActiveSubscribers(context.Context) ([]store.Subscriber, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	active := make([]store.Subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		if sub.IsActive {
			active = append(active, sub)
		}
	}
	return active, nil
}

type fakeProfiles struct {
	names map[string]string
	err   error
}

func (p fakeProfiles) DisplayName(_ context.Context, userID string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	name, ok := p.names[userID]
	if !ok {
		return "", errors.New("profile not found")
	}
	return name, nil
}

type fakeLog struct {
	mu       sync.Mutex
	messages []store.Message
	err      error
}

func (l *fakeLog) InsertMessage(_ context.Context, msg store.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	return l.err
}

type fakeLocks struct {
	mu     sync.Mutex
	writes map[string]string
	err    error
}

func (l *fakeLocks) SetActiveTarget(_ context.Context, adminID string, targetID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.writes == nil {
		l.writes = make(map[string]string)
	}
	l.writes[adminID] = targetID
	return nil
}

func admin(id string, target string) store.Subscriber {
	return store.Subscriber{UserID: id, IsActive: true, ActiveChatTarget: store.StringPtr(target)}
}

func textEvent(sender string, text string) InboundEvent {
	return InboundEvent{
		Channel:    "line",
		EventID:    "ev-" + sender,
		Kind:       KindTextMessage,
		SenderID:   sender,
		ReplyToken: "rt-" + sender,
		Text:       text,
	}
}

func actionEvent(sender string, data string) InboundEvent {
	return InboundEvent{
		Channel:    "line",
		EventID:    "ev-" + sender,
		Kind:       KindButtonAction,
		SenderID:   sender,
		ReplyToken: "rt-" + sender,
		Action:     ParseAction(data),
	}
}
