package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"linerelay/pkg/bus"
	"linerelay/pkg/channel/line"
	"linerelay/pkg/channel/telegram"
	"linerelay/pkg/config"
	"linerelay/pkg/gateway"
	"linerelay/pkg/logger"
	"linerelay/pkg/relay"
	"linerelay/pkg/store"
	"linerelay/pkg/tracing"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the relay gateway",
	Long:  "Serves the LINE webhook, polls Telegram when enabled, and relays messages between end-users and administrators.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := tracing.Setup(runCtx, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Warn("Failed to flush traces", "error", err)
			}
		}()

		stores, err := openStores(cfg.Store, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := stores.Close(); err != nil {
				log.Warn("Failed to close store", "error", err)
			}
		}()

		eventBus := bus.NewEventBus()
		defer eventBus.Close()

		webhooks, pollers, err := buildChannels(cfg, stores, eventBus, appLogger)
		if err != nil {
			return err
		}

		gin.SetMode(gin.ReleaseMode)
		svc, err := gateway.NewService(cfg.Gateway, webhooks, pollers, eventBus, appLogger)
		if err != nil {
			return fmt.Errorf("initialize gateway service: %w", err)
		}

		log.Info("Gateway started", "channels", channelNames(webhooks, pollers), "mode", cfg.Relay.Mode, "store", cfg.Store.Driver)
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway runtime failed: %w", err)
		}

		log.Info("Gateway stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

// buildChannels wires one relay handler per enabled platform. Each handler
// reads only its own platform's administrators; the relay mode then wraps
// that view and the shared lock writer.
func buildChannels(cfg *config.Config, stores *store.Stores, eventBus *bus.EventBus, log *slog.Logger) ([]gateway.Webhook, []gateway.Poller, error) {
	engineOptions := relay.EngineOptions{
		Messages:       engineMessages(cfg.Relay.Messages),
		SelfIDCommands: cfg.Relay.SelfIDCommands,
	}

	newHandler := func(name string, messenger relay.Messenger, profiles relay.ProfileFetcher) (*relay.Handler, error) {
		directory, locks, err := applyMode(cfg.Relay, relay.ForChannel(stores.Subscribers, name), stores.Subscribers)
		if err != nil {
			return nil, err
		}

		return relay.NewHandler(relay.HandlerConfig{
			Channel:       name,
			Directory:     directory,
			Locks:         locks,
			Log:           stores.Messages,
			Messenger:     messenger,
			Profiles:      profiles,
			EngineOptions: engineOptions,
			Bus:           eventBus,
			Logger:        log,
		})
	}

	var (
		webhooks []gateway.Webhook
		pollers  []gateway.Poller
	)

	if cfg.Channels.Line.Enabled {
		ch, err := line.New(cfg.Channels.Line, log)
		if err != nil {
			return nil, nil, fmt.Errorf("configure line channel: %w", err)
		}
		handler, err := newHandler(ch.Name(), ch, ch)
		if err != nil {
			return nil, nil, err
		}
		webhooks = append(webhooks, gateway.Webhook{Path: cfg.Channels.Line.CallbackPath, Parser: ch, Handler: handler})
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		handler, err := newHandler(adapter.Name(), adapter, adapter)
		if err != nil {
			return nil, nil, err
		}
		pollers = append(pollers, gateway.Poller{Adapter: adapter, Handler: handler})
	}

	if len(webhooks) == 0 && len(pollers) == 0 {
		return nil, nil, errors.New("no channels are enabled")
	}

	return webhooks, pollers, nil
}

func applyMode(cfg config.RelayConfig, directory relay.SubscriberDirectory, locks relay.LockStoreWriter) (relay.SubscriberDirectory, relay.LockStoreWriter, error) {
	return relay.ApplyMode(relay.Mode(cfg.Mode), directory, locks, relay.ModeOptions{
		FixedAdminID:  cfg.FixedAdminID,
		FixedTargetID: cfg.FixedTargetID,
	})
}

func engineMessages(cfg config.MessagesConfig) relay.Messages {
	return relay.Messages{
		SelfID:            cfg.SelfID,
		NoTarget:          cfg.NoTarget,
		ForwardFailed:     cfg.ForwardFailed,
		LockConfirmed:     cfg.LockConfirmed,
		LockFailed:        cfg.LockFailed,
		UnknownUser:       cfg.UnknownUser,
		DefaultTargetName: cfg.DefaultTargetName,
	}
}

func channelNames(webhooks []gateway.Webhook, pollers []gateway.Poller) string {
	names := make([]string, 0, len(webhooks)+len(pollers))
	for _, hook := range webhooks {
		names = append(names, hook.Parser.Name())
	}
	for _, poller := range pollers {
		names = append(names, poller.Adapter.Name())
	}

	return strings.Join(names, ",")
}
