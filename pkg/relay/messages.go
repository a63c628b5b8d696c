package relay

import (
	"strings"
)

// Messages holds every user-visible text the relay sends. Fields containing %s
// receive one argument: a user id or a display name.
type Messages struct {
	SelfID            string
	NoTarget          string
	ForwardFailed     string
	LockConfirmed     string
	LockFailed        string
	UnknownUser       string
	DefaultTargetName string
	CardTitle         string
	CardAltText       string
	CardButtonLabel   string
	CardDisplayText   string
}

// DefaultMessages returns the built-in reply texts.
func DefaultMessages() Messages {
	return Messages{
		SelfID:            "Your user ID is:\n%s",
		NoTarget:          "⚠️ You have not locked a reply target yet.\nTap \"Reply\" under a user's message first.",
		ForwardFailed:     "❌ Delivery failed. The user may have blocked the bot.",
		LockConfirmed:     "🔒 Now chatting with: %s\n\nMessages you send go straight to them.\nTap \"Reply\" on another message to switch.",
		LockFailed:        "❌ System error, could not lock the target.",
		UnknownUser:       "Unknown User",
		DefaultTargetName: "User",
		CardTitle:         "📩 From: %s",
		CardAltText:       "Message from %s",
		CardButtonLabel:   "Reply",
		CardDisplayText:   "I want to reply to %s",
	}
}

// Merge returns m with every non-empty field of override applied.
func (m Messages) Merge(override Messages) Messages {
	pick := func(base *string, value string) {
		if strings.TrimSpace(value) != "" {
			*base = value
		}
	}

	pick(&m.SelfID, override.SelfID)
	pick(&m.NoTarget, override.NoTarget)
	pick(&m.ForwardFailed, override.ForwardFailed)
	pick(&m.LockConfirmed, override.LockConfirmed)
	pick(&m.LockFailed, override.LockFailed)
	pick(&m.UnknownUser, override.UnknownUser)
	pick(&m.DefaultTargetName, override.DefaultTargetName)
	pick(&m.CardTitle, override.CardTitle)
	pick(&m.CardAltText, override.CardAltText)
	pick(&m.CardButtonLabel, override.CardButtonLabel)
	pick(&m.CardDisplayText, override.CardDisplayText)
	return m
}

// format substitutes arg for the first %s in template. Other % sequences are
// left as written.
func format(template string, arg string) string {
	return strings.Replace(template, "%s", arg, 1)
}

// card builds the admin notification for one end-user message.
func (m Messages) card(senderID string, senderName string, text string) Card {
	return Card{
		SenderID:          senderID,
		SenderName:        senderName,
		Title:             format(m.CardTitle, senderName),
		Body:              text,
		AltText:           format(m.CardAltText, senderName),
		ButtonLabel:       m.CardButtonLabel,
		ButtonData:        EncodeLockAction(senderID, senderName),
		ButtonDisplayText: format(m.CardDisplayText, senderName),
	}
}
