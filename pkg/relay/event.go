package relay

import (
	"net/url"
	"strings"
)

// Kind classifies an inbound platform event.
type Kind string

const (
	KindTextMessage  Kind = "text_message"
	KindButtonAction Kind = "button_action"
	KindIgnored      Kind = "ignored"
)

// ActionSetTarget is the postback action that locks an administrator onto a user.
const ActionSetTarget = "set_target"

const (
	actionKey     = "action"
	userIDKey     = "user_id"
	userNameKey   = "user_name"
	maxActionName = 64
)

// InboundEvent is one classified, platform-neutral unit of work.
type InboundEvent struct {
	Channel  string
	EventID  string
	Kind     Kind
	SenderID string
	// ReplyToken is single use. Telegram events carry the chat id here.
	ReplyToken string
	Text       string
	Action     Action
}

// Action is decoded postback data.
type Action struct {
	Name       string
	TargetID   string
	TargetName string
	Raw        string
}

// ParseAction decodes key=value&key=value postback data.
// Malformed data yields an Action with only Raw set.
func ParseAction(data string) Action {
	action := Action{Raw: data}

	values, err := url.ParseQuery(data)
	if err != nil {
		return action
	}

	action.Name = strings.TrimSpace(values.Get(actionKey))
	if len(action.Name) > maxActionName {
		action.Name = action.Name[:maxActionName]
	}
	action.TargetID = strings.TrimSpace(values.Get(userIDKey))
	action.TargetName = strings.TrimSpace(values.Get(userNameKey))
	return action
}

// EncodeLockAction builds the postback data of a "reply to this user" button.
func EncodeLockAction(targetID string, targetName string) string {
	values := url.Values{}
	values.Set(actionKey, ActionSetTarget)
	values.Set(userIDKey, targetID)
	if targetName != "" {
		values.Set(userNameKey, targetName)
	}
	return values.Encode()
}
