package line

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"linerelay/pkg/relay"
)

const (
	cardAccentColor = "#1DB446"
	cardMutedColor  = "#555555"
)

// altTextLimit is the Messaging API cap on flex alt text.
const altTextLimit = 400

func render(msg relay.OutboundMessage) messaging_api.MessageInterface {
	if msg.Card != nil {
		return flexCard(*msg.Card)
	}
	return &messaging_api.TextMessage{Text: msg.Text}
}

// flexCard renders the admin notification bubble with a postback button that
// locks the tapping administrator onto the sender.
func flexCard(card relay.Card) *messaging_api.FlexMessage {
	altText := card.AltText
	if altText == "" {
		altText = card.Title
	}
	if runes := []rune(altText); len(runes) > altTextLimit {
		altText = string(runes[:altTextLimit])
	}

	return &messaging_api.FlexMessage{
		AltText: altText,
		Contents: &messaging_api.FlexBubble{
			Body: &messaging_api.FlexBox{
				Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexText{
						Text:   card.Title,
						Weight: messaging_api.FlexTextWEIGHT_BOLD,
						Color:  cardAccentColor,
						Size:   "sm",
					},
					&messaging_api.FlexSeparator{Margin: "md"},
					&messaging_api.FlexText{
						Text:   card.Body,
						Wrap:   true,
						Margin: "md",
						Color:  cardMutedColor,
					},
				},
			},
			Footer: &messaging_api.FlexBox{
				Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexButton{
						Style: messaging_api.FlexButtonSTYLE_PRIMARY,
						Color: cardAccentColor,
						Action: &messaging_api.PostbackAction{
							Label:       card.ButtonLabel,
							Data:        card.ButtonData,
							DisplayText: card.ButtonDisplayText,
						},
					},
				},
			},
		},
	}
}
