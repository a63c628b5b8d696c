// Package line connects the relay to the LINE Messaging API: webhook
// verification and classification inbound, reply/push/multicast outbound.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"linerelay/pkg/channel"
	"linerelay/pkg/config"
	"linerelay/pkg/relay"
)

const channelName = "line"

// multicastLimit is the Messaging API's per-call recipient cap.
const multicastLimit = 500

// Channel is the LINE webhook parser, messenger and profile fetcher.
type Channel struct {
	secret string
	api    *messaging_api.MessagingApiAPI
	log    *slog.Logger
}

// Option customizes the Messaging API client.
type Option = messaging_api.MessagingApiAPIOption

// WithEndpoint points the Messaging API client at endpoint instead of api.line.me.
func WithEndpoint(endpoint string) Option {
	return messaging_api.WithEndpoint(endpoint)
}

// New validates LINE credentials and constructs the channel.
func New(cfg config.LineConfig, log *slog.Logger, opts ...Option) (*Channel, error) {
	secret := strings.TrimSpace(cfg.ChannelSecret)
	if secret == "" {
		return nil, errors.New("channels.line.channel_secret is required")
	}
	token := strings.TrimSpace(cfg.ChannelAccessToken)
	if token == "" {
		return nil, errors.New("channels.line.channel_access_token is required")
	}

	api, err := messaging_api.NewMessagingApiAPI(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize messaging api client: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Channel{
		secret: secret,
		api:    api,
		log:    log.With("component", "channel.line"),
	}, nil
}

// Name returns the channel identifier used in results and logs.
func (c *Channel) Name() string {
	return channelName
}

// ParseRequest verifies the X-Line-Signature header and classifies every
// event in the delivery, preserving order.
func (c *Channel) ParseRequest(r *http.Request) ([]relay.InboundEvent, error) {
	cb, err := webhook.ParseRequest(c.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, channel.ErrInvalidSignature
		}
		return nil, fmt.Errorf("parse webhook: %w", err)
	}

	events := make([]relay.InboundEvent, 0, len(cb.Events))
	for _, raw := range cb.Events {
		ev := Classify(raw)
		if ev.EventID == "" {
			ev.EventID = uuid.NewString()
		}
		events = append(events, ev)
	}

	c.log.Debug("Parsed webhook delivery", "destination", cb.Destination, "events", len(events))
	return events, nil
}

func (c *Channel) Reply(ctx context.Context, replyToken string, msg relay.OutboundMessage) error {
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{render(msg)},
	})
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}

func (c *Channel) Push(ctx context.Context, userID string, msg relay.OutboundMessage) error {
	_, err := c.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: []messaging_api.MessageInterface{render(msg)},
	}, "")
	if err != nil {
		return fmt.Errorf("line push to %s: %w", userID, err)
	}
	return nil
}

// Multicast sends msg to every id, split into API-sized chunks.
func (c *Channel) Multicast(ctx context.Context, userIDs []string, msg relay.OutboundMessage) error {
	api := c.api.WithContext(ctx)
	message := render(msg)

	var errs []error
	for start := 0; start < len(userIDs); start += multicastLimit {
		end := min(start+multicastLimit, len(userIDs))
		_, err := api.Multicast(&messaging_api.MulticastRequest{
			To:       userIDs[start:end],
			Messages: []messaging_api.MessageInterface{message},
		}, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("line multicast to %d recipients: %w", end-start, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Channel) DisplayName(ctx context.Context, userID string) (string, error) {
	profile, err := c.api.WithContext(ctx).GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("line get profile %s: %w", userID, err)
	}
	return profile.DisplayName, nil
}
