package relay

import (
	"context"
	"fmt"

	"linerelay/pkg/store"
)

// Mode selects how the directory and the lock writer behave.
type Mode string

const (
	// ModeLock is per-administrator lock routing.
	ModeLock Mode = "lock"
	// ModeBroadcast ignores stored locks and rejects lock changes, so every
	// end-user message is broadcast and administrators cannot reply.
	ModeBroadcast Mode = "broadcast"
	// ModeFixed routes through a single administrator with an immutable lock.
	ModeFixed Mode = "fixed"
)

// ModeOptions carries the ids used by ModeFixed.
type ModeOptions struct {
	FixedAdminID  string
	FixedTargetID string
}

// ApplyMode wraps the stored directory and lock writer for mode. The broadcast
// and fixed variants are degenerate configurations of the same state machine.
func ApplyMode(mode Mode, dir SubscriberDirectory, locks LockStoreWriter, opts ModeOptions) (SubscriberDirectory, LockStoreWriter, error) {
	switch mode {
	case ModeLock, "":
		return dir, locks, nil
	case ModeBroadcast:
		return unlockedDirectory{next: dir}, immutableLocks{}, nil
	case ModeFixed:
		if opts.FixedAdminID == "" || opts.FixedTargetID == "" {
			return nil, nil, fmt.Errorf("fixed mode requires an admin id and a target id")
		}
		fixed := FixedTarget{AdminID: opts.FixedAdminID, TargetID: opts.FixedTargetID}
		return fixed, fixed, nil
	default:
		return nil, nil, fmt.Errorf("unsupported relay mode %q", mode)
	}
}

// FixedTarget is a one-entry directory whose administrator is permanently
// locked onto TargetID.
type FixedTarget struct {
	AdminID  string
	TargetID string
}

func (f FixedTarget) LoadActiveSubscribers(context.Context) ([]store.Subscriber, error) {
	return []store.Subscriber{{
		UserID:           f.AdminID,
		IsActive:         true,
		ActiveChatTarget: store.StringPtr(f.TargetID),
	}}, nil
}

func (f FixedTarget) SetActiveTarget(context.Context, string, string) error {
	return ErrLockImmutable
}

// ForChannel narrows dir to administrators reached on channel. Subscriber ids
// are platform-scoped, so each channel's handler sees only its own admins.
// Rows without a channel count as store.DefaultChannel.
func ForChannel(dir SubscriberDirectory, channel string) SubscriberDirectory {
	return channelDirectory{next: dir, channel: channel}
}

type channelDirectory struct {
	next    SubscriberDirectory
	channel string
}

func (c channelDirectory) LoadActiveSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	subs, err := c.next.LoadActiveSubscribers(ctx)
	if err != nil {
		return nil, err
	}

	scoped := make([]store.Subscriber, 0, len(subs))
	for _, sub := range subs {
		if store.ChannelOrDefault(sub.Channel) == c.channel {
			scoped = append(scoped, sub)
		}
	}
	return scoped, nil
}

type unlockedDirectory struct {
	next SubscriberDirectory
}

func (u unlockedDirectory) LoadActiveSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	subs, err := u.next.LoadActiveSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].ActiveChatTarget = nil
	}
	return subs, nil
}

type immutableLocks struct{}

func (immutableLocks) SetActiveTarget(context.Context, string, string) error {
	return ErrLockImmutable
}
