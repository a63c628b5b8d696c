package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"linerelay/pkg/store"
)

// OutboundMessage is either plain text or an admin notification card.
type OutboundMessage struct {
	Text string
	Card *Card
}

// Messenger is the outbound side of one messaging platform.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, msg OutboundMessage) error
	Push(ctx context.Context, userID string, msg OutboundMessage) error
	// Multicast is one call from the caller's perspective; per-recipient
	// failures are not distinguished.
	Multicast(ctx context.Context, userIDs []string, msg OutboundMessage) error
}

// MessageLog records end-user messages.
type MessageLog interface {
	InsertMessage(ctx context.Context, msg store.Message) error
}

// LockStoreWriter persists an administrator's target lock. Writes for
// different administrators are independent.
type LockStoreWriter interface {
	SetActiveTarget(ctx context.Context, adminID string, targetID string) error
}

const (
	StatusOK              = "ok"
	StatusNoOp            = "noop"
	StatusReplyFailed     = "reply_failed"
	StatusForwardFailed   = "forward_failed"
	StatusBroadcastFailed = "broadcast_failed"
	StatusLogFailed       = "log_failed"
	StatusLockFailed      = "lock_failed"
	StatusFailed          = "failed"
)

// Outcome is the settled result of dispatching one decision.
type Outcome struct {
	Status string
	Err    error
}

// Dispatcher executes decisions against the messenger, the log and the lock store.
type Dispatcher struct {
	messenger Messenger
	messages  MessageLog
	locks     LockStoreWriter
	log       *slog.Logger
}

func NewDispatcher(messenger Messenger, messages MessageLog, locks LockStoreWriter, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		messenger: messenger,
		messages:  messages,
		locks:     locks,
		log:       log.With("component", "relay.dispatcher"),
	}
}

// Dispatch runs every side effect of decision and waits for all of them to settle.
// Failures are logged and reported in the outcome, never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, ev InboundEvent, decision Decision) Outcome {
	reply := &replyGuard{token: ev.ReplyToken, messenger: d.messenger}
	log := d.log.With("channel", ev.Channel, "event_id", ev.EventID, "decision", decision.Name())

	switch dec := decision.(type) {
	case ReplyOnly:
		if err := reply.send(ctx, OutboundMessage{Text: dec.Text}); err != nil {
			log.Error("Failed to reply", "error", err)
			return Outcome{Status: StatusReplyFailed, Err: err}
		}
		return Outcome{Status: StatusOK}

	case ForwardToUser:
		return d.forward(ctx, log, reply, dec)

	case BroadcastToAdmins:
		return d.broadcast(ctx, log, dec)

	case SetLock:
		return d.setLock(ctx, log, reply, dec)

	default:
		return Outcome{Status: StatusNoOp}
	}
}

func (d *Dispatcher) forward(ctx context.Context, log *slog.Logger, reply *replyGuard, dec ForwardToUser) Outcome {
	err := d.messenger.Push(ctx, dec.TargetID, OutboundMessage{Text: dec.Text})
	if err == nil {
		// No reply on success so the admin's view reads as a direct conversation.
		return Outcome{Status: StatusOK}
	}

	err = fmt.Errorf("%w: push to %s: %w", ErrDispatchFailed, dec.TargetID, err)
	log.Error("Failed to forward to user", "target_id", dec.TargetID, "error", err)

	if dec.FallbackReply != "" {
		if replyErr := reply.send(ctx, OutboundMessage{Text: dec.FallbackReply}); replyErr != nil {
			log.Error("Failed to send forward failure notice", "error", replyErr)
			err = errors.Join(err, replyErr)
		}
	}

	return Outcome{Status: StatusForwardFailed, Err: err}
}

// broadcast issues the multicast and the log insert concurrently; neither
// waits on or cancels the other.
func (d *Dispatcher) broadcast(ctx context.Context, log *slog.Logger, dec BroadcastToAdmins) Outcome {
	var (
		wg        sync.WaitGroup
		pushErr   error
		insertErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if len(dec.AdminIDs) == 0 {
			log.Warn("No active administrators to notify", "sender_id", dec.Card.SenderID)
			return
		}
		card := dec.Card
		if err := d.messenger.Multicast(ctx, dec.AdminIDs, OutboundMessage{Card: &card}); err != nil {
			pushErr = fmt.Errorf("%w: multicast to %d admins: %w", ErrDispatchFailed, len(dec.AdminIDs), err)
			log.Error("Failed to forward message to admins", "error", pushErr)
		}
	}()
	go func() {
		defer wg.Done()
		if d.messages == nil {
			return
		}
		if err := d.messages.InsertMessage(ctx, dec.Log); err != nil {
			insertErr = fmt.Errorf("%w: insert message log: %w", ErrPersistenceFailed, err)
			log.Error("Failed to store message", "sender_id", dec.Log.UserID, "error", insertErr)
		}
	}()
	wg.Wait()

	switch {
	case pushErr != nil:
		return Outcome{Status: StatusBroadcastFailed, Err: errors.Join(pushErr, insertErr)}
	case insertErr != nil:
		return Outcome{Status: StatusLogFailed, Err: insertErr}
	default:
		return Outcome{Status: StatusOK}
	}
}

func (d *Dispatcher) setLock(ctx context.Context, log *slog.Logger, reply *replyGuard, dec SetLock) Outcome {
	if err := d.writeLock(ctx, dec); err != nil {
		log.Error("Failed to update admin target", "admin_id", dec.AdminID, "target_id", dec.TargetID, "error", err)
		if replyErr := reply.send(ctx, OutboundMessage{Text: dec.FailureReply}); replyErr != nil {
			log.Error("Failed to send lock failure notice", "error", replyErr)
			err = errors.Join(err, replyErr)
		}
		return Outcome{Status: StatusLockFailed, Err: err}
	}

	log.Info("Target locked", "admin_id", dec.AdminID, "target_id", dec.TargetID)
	if err := reply.send(ctx, OutboundMessage{Text: dec.Confirmation}); err != nil {
		log.Error("Failed to send lock confirmation", "error", err)
		return Outcome{Status: StatusReplyFailed, Err: err}
	}
	return Outcome{Status: StatusOK}
}

func (d *Dispatcher) writeLock(ctx context.Context, dec SetLock) error {
	if d.locks == nil {
		return ErrLockImmutable
	}
	if err := d.locks.SetActiveTarget(ctx, dec.AdminID, dec.TargetID); err != nil {
		return fmt.Errorf("%w: set active target: %w", ErrPersistenceFailed, err)
	}
	return nil
}

// replyGuard allows at most one reply per event.
type replyGuard struct {
	token     string
	messenger Messenger
	used      atomic.Bool
}

func (g *replyGuard) send(ctx context.Context, msg OutboundMessage) error {
	if g.token == "" {
		return ErrNoReplyToken
	}
	if !g.used.CompareAndSwap(false, true) {
		return ErrReplyTokenUsed
	}
	if err := g.messenger.Reply(ctx, g.token, msg); err != nil {
		return fmt.Errorf("%w: reply: %w", ErrDispatchFailed, err)
	}
	return nil
}
