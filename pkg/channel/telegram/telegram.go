package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"linerelay/pkg/channel"
	"linerelay/pkg/config"
	"linerelay/pkg/relay"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// callbackDataLimit is the Bot API cap on inline button callback data.
const callbackDataLimit = 64

// botAPI is the subset of *telego.Bot used for sending.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error)
}

// Adapter bridges Telegram long polling into the relay and sends its replies.
// Telegram has no reply tokens; the chat id stands in for one.
type Adapter struct {
	bot     *telego.Bot
	api     botAPI
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	adapter := newAdapter(bot, cfg.SendRatePerSecond, log)
	adapter.bot = bot
	return adapter, nil
}

func newAdapter(api botAPI, sendRate float64, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if sendRate <= 0 {
		sendRate = 25
	}

	return &Adapter{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(sendRate), 1),
		log:     log.With("component", "channel.telegram"),
	}
}

// Name returns the channel identifier used in results and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and hands every update to handler.
func (a *Adapter) Run(ctx context.Context, handler channel.BatchHandler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if a.bot == nil {
		return errors.New("telegram bot is not initialized")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			a.handleUpdate(ctx, handler, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, handler channel.BatchHandler, update telego.Update) {
	ev := Classify(update)
	if ev.Kind == relay.KindIgnored {
		a.log.Debug("Ignoring update", "update_id", update.UpdateID)
		return
	}

	a.log.Info("Received event", "event_id", ev.EventID, "kind", ev.Kind, "sender_id", ev.SenderID, "content", previewText(ev.Text))

	results, err := handler.HandleBatch(ctx, []relay.InboundEvent{ev})
	if err != nil {
		a.log.Error("Failed to process update", "update_id", update.UpdateID, "error", err)
	}
	for _, result := range results {
		a.log.Debug("Event handled", "event_id", result.EventID, "decision", result.Decision, "status", result.Status)
	}

	if query := update.CallbackQuery; query != nil {
		// Clears the button's loading state in the client.
		if err := a.api.AnswerCallbackQuery(ctx, tu.CallbackQuery(query.ID)); err != nil {
			a.log.Debug("Failed to answer callback query", "error", err)
		}
	}
}

// Classify maps one update to a platform-neutral event. Text messages and
// inline button presses are relayed; everything else is ignored.
func Classify(update telego.Update) relay.InboundEvent {
	ev := relay.InboundEvent{
		Channel: channelName,
		EventID: strconv.Itoa(update.UpdateID),
		Kind:    relay.KindIgnored,
	}

	switch {
	case update.Message != nil:
		message := update.Message
		if message.Text == "" || message.From == nil {
			return ev
		}
		ev.Kind = relay.KindTextMessage
		ev.SenderID = strconv.FormatInt(message.From.ID, 10)
		ev.ReplyToken = strconv.FormatInt(message.Chat.ID, 10)
		ev.Text = message.Text

	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		ev.Kind = relay.KindButtonAction
		ev.SenderID = strconv.FormatInt(query.From.ID, 10)
		// Buttons are pressed in the administrator's private chat with the bot.
		ev.ReplyToken = ev.SenderID
		ev.Action = relay.ParseAction(query.Data)
	}

	return ev
}

func (a *Adapter) Reply(ctx context.Context, replyToken string, msg relay.OutboundMessage) error {
	return a.send(ctx, replyToken, msg)
}

func (a *Adapter) Push(ctx context.Context, userID string, msg relay.OutboundMessage) error {
	return a.send(ctx, userID, msg)
}

// Multicast sends msg to each id in turn under the send rate limit.
func (a *Adapter) Multicast(ctx context.Context, userIDs []string, msg relay.OutboundMessage) error {
	var errs []error
	for _, id := range userIDs {
		if err := a.send(ctx, id, msg); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) DisplayName(ctx context.Context, userID string) (string, error) {
	chatID, err := parseChatID(userID)
	if err != nil {
		return "", err
	}

	chat, err := a.api.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return "", fmt.Errorf("telegram get chat %s: %w", userID, err)
	}

	name := strings.TrimSpace(strings.TrimSpace(chat.FirstName) + " " + strings.TrimSpace(chat.LastName))
	if name == "" && chat.Username != "" {
		name = "@" + chat.Username
	}
	return name, nil
}

func (a *Adapter) send(ctx context.Context, to string, msg relay.OutboundMessage) error {
	chatID, err := parseChatID(to)
	if err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram send to %s: %w", to, err)
	}

	params := buildMessage(chatID, msg)
	a.log.Debug("Sending message", "chat_id", chatID, "content", previewText(params.Text))

	if _, err := a.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send to %s: %w", to, err)
	}
	return nil
}

// buildMessage renders a card as text with a single inline "reply" button.
func buildMessage(chatID int64, msg relay.OutboundMessage) *telego.SendMessageParams {
	if msg.Card == nil {
		return tu.Message(tu.ID(chatID), msg.Text)
	}

	card := msg.Card
	text := card.Title
	if card.Body != "" {
		text += "\n\n" + card.Body
	}

	data := card.ButtonData
	if len(data) > callbackDataLimit {
		data = relay.EncodeLockAction(card.SenderID, "")
	}

	return tu.Message(tu.ID(chatID), text).WithReplyMarkup(tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton(card.ButtonLabel).WithCallbackData(data)),
	))
}

func parseChatID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", value, err)
	}
	return id, nil
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
