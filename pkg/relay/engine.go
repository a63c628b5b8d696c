package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"linerelay/pkg/store"
)

// DefaultSelfIDCommands are the texts answered with the sender's own id.
var DefaultSelfIDCommands = []string{"myid", "查ID"}

// SubscriberDirectory is a read view over active administrator records.
type SubscriberDirectory interface {
	// LoadActiveSubscribers returns only records with IsActive set.
	LoadActiveSubscribers(ctx context.Context) ([]store.Subscriber, error)
}

// ProfileFetcher resolves a platform user's display name.
type ProfileFetcher interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// EngineOptions configures routing texts and commands.
type EngineOptions struct {
	Messages       Messages
	SelfIDCommands []string
	Logger         *slog.Logger
}

// Engine decides what to do with one inbound event. It holds no mutable state;
// everything it knows about administrators comes from the directory passed to Route.
type Engine struct {
	profiles ProfileFetcher
	messages Messages
	selfID   []string
	log      *slog.Logger
}

func NewEngine(profiles ProfileFetcher, opts EngineOptions) *Engine {
	messages := DefaultMessages().Merge(opts.Messages)

	commands := opts.SelfIDCommands
	if len(commands) == 0 {
		commands = DefaultSelfIDCommands
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		profiles: profiles,
		messages: messages,
		selfID:   commands,
		log:      log.With("component", "relay.engine"),
	}
}

// Route returns exactly one decision for ev.
func (e *Engine) Route(ctx context.Context, ev InboundEvent, dir SubscriberDirectory) Decision {
	if ev.SenderID == "" && ev.Kind != KindIgnored {
		return NoOp{Reason: ReasonMissingSender}
	}

	switch ev.Kind {
	case KindTextMessage:
		return e.routeText(ctx, ev, dir)
	case KindButtonAction:
		return e.routeAction(ev)
	default:
		return NoOp{Reason: ReasonIgnored}
	}
}

func (e *Engine) routeText(ctx context.Context, ev InboundEvent, dir SubscriberDirectory) Decision {
	// The self-id command never touches the directory.
	if e.isSelfIDCommand(ev.Text) {
		return ReplyOnly{Text: format(e.messages.SelfID, ev.SenderID)}
	}

	subscribers, err := dir.LoadActiveSubscribers(ctx)
	if err != nil {
		e.log.Error("Failed to load subscribers", "channel", ev.Channel, "event_id", ev.EventID, "error", fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err))
		return NoOp{Reason: ReasonDirectoryUnavailable}
	}

	adminIDs := make([]string, 0, len(subscribers))
	var sender *store.Subscriber
	for i := range subscribers {
		sub := subscribers[i]
		if !sub.IsActive {
			continue
		}
		adminIDs = append(adminIDs, sub.UserID)
		if sub.UserID == ev.SenderID {
			sender = &subscribers[i]
		}
	}

	if sender != nil {
		target := sender.Target()
		if target == "" {
			return ReplyOnly{Text: e.messages.NoTarget}
		}
		return ForwardToUser{
			TargetID:      target,
			Text:          ev.Text,
			FallbackReply: e.messages.ForwardFailed,
		}
	}

	name := e.displayName(ctx, ev)
	return BroadcastToAdmins{
		AdminIDs: adminIDs,
		Card:     e.messages.card(ev.SenderID, name, ev.Text),
		Log: store.Message{
			UserID:   ev.SenderID,
			UserName: name,
			Content:  ev.Text,
			Channel:  ev.Channel,
		},
	}
}

func (e *Engine) routeAction(ev InboundEvent) Decision {
	if ev.Action.Name != ActionSetTarget {
		e.log.Debug("Dropping unknown action", "channel", ev.Channel, "action", ev.Action.Name)
		return NoOp{Reason: ReasonUnknownAction}
	}
	if ev.Action.TargetID == "" {
		return NoOp{Reason: ReasonInvalidAction}
	}

	name := ev.Action.TargetName
	if name == "" {
		name = e.messages.DefaultTargetName
	}

	return SetLock{
		AdminID:      ev.SenderID,
		TargetID:     ev.Action.TargetID,
		TargetName:   name,
		Confirmation: format(e.messages.LockConfirmed, name),
		FailureReply: e.messages.LockFailed,
	}
}

func (e *Engine) isSelfIDCommand(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, command := range e.selfID {
		if strings.EqualFold(trimmed, command) {
			return true
		}
	}
	return false
}

// displayName never fails; lookup errors fall back to the unknown-user placeholder.
func (e *Engine) displayName(ctx context.Context, ev InboundEvent) string {
	if e.profiles == nil {
		return e.messages.UnknownUser
	}

	name, err := e.profiles.DisplayName(ctx, ev.SenderID)
	if err != nil {
		e.log.Warn("Could not get profile", "channel", ev.Channel, "sender_id", ev.SenderID, "error", fmt.Errorf("%w: %w", ErrProfileLookupFailed, err))
		return e.messages.UnknownUser
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return e.messages.UnknownUser
	}
	return name
}
