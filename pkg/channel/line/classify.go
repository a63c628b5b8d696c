package line

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"linerelay/pkg/relay"
)

// Classify maps one webhook event to a platform-neutral event. Anything other
// than a text message or a postback is ignored.
func Classify(raw webhook.EventInterface) relay.InboundEvent {
	ev := relay.InboundEvent{Channel: channelName, Kind: relay.KindIgnored}

	switch e := raw.(type) {
	case webhook.MessageEvent:
		ev.EventID = e.WebhookEventId
		text, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			return ev
		}
		sender := senderID(e.Source)
		if sender == "" || text.Text == "" {
			return ev
		}
		ev.Kind = relay.KindTextMessage
		ev.SenderID = sender
		ev.ReplyToken = e.ReplyToken
		ev.Text = text.Text

	case webhook.PostbackEvent:
		ev.EventID = e.WebhookEventId
		sender := senderID(e.Source)
		if sender == "" || e.Postback == nil {
			return ev
		}
		ev.Kind = relay.KindButtonAction
		ev.SenderID = sender
		ev.ReplyToken = e.ReplyToken
		ev.Action = relay.ParseAction(e.Postback.Data)
	}

	return ev
}

func senderID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}
