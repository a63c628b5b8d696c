package relay

import "linerelay/pkg/store"

// Decision is the routing engine's output for one event. The variants are
// NoOp, ReplyOnly, ForwardToUser, BroadcastToAdmins and SetLock.
type Decision interface {
	Name() string
	isDecision()
}

const (
	ReasonIgnored              = "ignored"
	ReasonDirectoryUnavailable = "directory_unavailable"
	ReasonUnknownAction        = "unknown_action"
	ReasonInvalidAction        = "invalid_action"
	ReasonMissingSender        = "missing_sender"
)

// NoOp drops the event without side effects.
type NoOp struct {
	Reason string
}

// ReplyOnly answers the sender through the event's reply token.
type ReplyOnly struct {
	Text string
}

// ForwardToUser pushes an administrator's text to their locked target.
// FallbackReply is sent to the administrator only when the push fails.
type ForwardToUser struct {
	TargetID      string
	Text          string
	FallbackReply string
}

// BroadcastToAdmins multicasts a card to every active administrator and
// records the original message in the log, independently of each other.
type BroadcastToAdmins struct {
	AdminIDs []string
	Card     Card
	Log      store.Message
}

// SetLock persists AdminID's target, then replies with Confirmation, or with
// FailureReply when the write fails.
type SetLock struct {
	AdminID      string
	TargetID     string
	TargetName   string
	Confirmation string
	FailureReply string
}

// Card is the platform-neutral admin notification for one end-user message.
type Card struct {
	SenderID   string
	SenderName string
	Title      string
	Body       string
	AltText    string
	// Button locks the viewing administrator onto SenderID.
	ButtonLabel       string
	ButtonData        string
	ButtonDisplayText string
}

func (NoOp) Name() string              { return "noop" }
func (ReplyOnly) Name() string         { return "reply_only" }
func (ForwardToUser) Name() string     { return "forward_to_user" }
func (BroadcastToAdmins) Name() string { return "broadcast_to_admins" }
func (SetLock) Name() string           { return "set_lock" }

func (NoOp) isDecision()              {}
func (ReplyOnly) isDecision()         {}
func (ForwardToUser) isDecision()     {}
func (BroadcastToAdmins) isDecision() {}
func (SetLock) isDecision()           {}
