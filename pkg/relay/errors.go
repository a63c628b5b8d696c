package relay

import (
	"context"
	"errors"

	"linerelay/pkg/store"
)

var (
	// ErrDirectoryUnavailable means the subscriber directory could not be read.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	// ErrProfileLookupFailed means the sender's display name could not be resolved.
	ErrProfileLookupFailed = errors.New("profile lookup failed")
	// ErrDispatchFailed wraps reply, push and multicast failures.
	ErrDispatchFailed = errors.New("dispatch failed")
	// ErrPersistenceFailed wraps message-log and lock-write failures.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrReplyTokenUsed is returned for a second reply attempt on one event.
	ErrReplyTokenUsed = errors.New("reply token already used")
	// ErrNoReplyToken is returned when a reply is attempted on an event without a token.
	ErrNoReplyToken = errors.New("event has no reply token")
	// ErrLockImmutable is returned by lock writers that do not accept target changes.
	ErrLockImmutable = errors.New("target lock is immutable in this mode")
)

const (
	CategoryDirectoryUnavailable = "directory_unavailable"
	CategoryProfileLookupFailed  = "profile_lookup_failed"
	CategoryDispatchFailed       = "dispatch_failed"
	CategoryPersistenceFailed    = "persistence_failed"
	CategoryReplyTokenUsed       = "reply_token_used"
	CategoryNoReplyToken         = "no_reply_token"
	CategoryLockImmutable        = "lock_immutable"
	CategorySubscriberNotFound   = "subscriber_not_found"
	CategoryCanceled             = "canceled"
	CategoryInternal             = "internal"
)

// Category returns a stable label for err, suitable for results and log fields.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReplyTokenUsed):
		return CategoryReplyTokenUsed
	case errors.Is(err, ErrNoReplyToken):
		return CategoryNoReplyToken
	case errors.Is(err, ErrLockImmutable):
		return CategoryLockImmutable
	case errors.Is(err, store.ErrSubscriberNotFound):
		return CategorySubscriberNotFound
	case errors.Is(err, ErrDirectoryUnavailable):
		return CategoryDirectoryUnavailable
	case errors.Is(err, ErrProfileLookupFailed):
		return CategoryProfileLookupFailed
	case errors.Is(err, ErrPersistenceFailed):
		return CategoryPersistenceFailed
	case errors.Is(err, ErrDispatchFailed):
		return CategoryDispatchFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	default:
		return CategoryInternal
	}
}
