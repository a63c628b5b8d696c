package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"linerelay/pkg/config"
	"linerelay/pkg/store"
	"linerelay/pkg/ui"
)

const operatorTimeout = 10 * time.Second

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Inspect and manage administrators",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List administrators and their target locks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, _ *config.Config, stores *store.Stores) error {
			subs, err := stores.Subscribers.ListSubscribers(ctx)
			if err != nil {
				return fmt.Errorf("list subscribers: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.SubscriberTable(subs))
			return nil
		})
	},
}

var (
	addChannel  string
	addTarget   string
	addInactive bool
)

var subscribersAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Create or replace an administrator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(args[0])
		if userID == "" {
			return fmt.Errorf("user id is required")
		}
		channel := strings.ToLower(strings.TrimSpace(addChannel))
		switch channel {
		case "line", "telegram":
		default:
			return fmt.Errorf("unsupported channel %q", addChannel)
		}

		sub := store.Subscriber{
			UserID:           userID,
			Channel:          channel,
			IsActive:         !addInactive,
			ActiveChatTarget: store.StringPtr(strings.TrimSpace(addTarget)),
		}

		return withStores(cmd.Context(), func(ctx context.Context, _ *config.Config, stores *store.Stores) error {
			if err := stores.Subscribers.UpsertSubscriber(ctx, sub); err != nil {
				return fmt.Errorf("add subscriber %s: %w", userID, err)
			}
			subs, err := stores.Subscribers.ListSubscribers(ctx)
			if err != nil {
				return fmt.Errorf("list subscribers: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.SubscriberTable(subs))
			return nil
		})
	},
}

var subscribersLockCmd = &cobra.Command{
	Use:   "lock <admin-id> <target-id>",
	Short: "Lock an administrator onto an end-user",
	Long:  "Performs the same lock change as the card's reply button. It is refused when relay.mode does not allow lock changes.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminID := strings.TrimSpace(args[0])
		targetID := strings.TrimSpace(args[1])
		if adminID == "" || targetID == "" {
			return fmt.Errorf("admin id and target id are required")
		}

		return withStores(cmd.Context(), func(ctx context.Context, cfg *config.Config, stores *store.Stores) error {
			_, locks, err := applyMode(cfg.Relay, stores.Subscribers, stores.Subscribers)
			if err != nil {
				return err
			}
			if err := locks.SetActiveTarget(ctx, adminID, targetID); err != nil {
				return fmt.Errorf("lock %s onto %s: %w", adminID, targetID, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.LockConfirmation(adminID, targetID))
			return nil
		})
	},
}

func init() {
	subscribersAddCmd.Flags().StringVar(&addChannel, "channel", store.DefaultChannel, "platform the administrator is reached on (line or telegram)")
	subscribersAddCmd.Flags().StringVar(&addTarget, "target", "", "initial target lock")
	subscribersAddCmd.Flags().BoolVar(&addInactive, "inactive", false, "store the administrator as inactive")

	subscribersCmd.AddCommand(subscribersListCmd, subscribersAddCmd, subscribersLockCmd)
	rootCmd.AddCommand(subscribersCmd)
}

// withStores opens the configured store for one operator command.
func withStores(parent context.Context, fn func(context.Context, *config.Config, *store.Stores) error) error {
	cfg, err := config.LoadOperatorConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stores, err := openStores(cfg.Store, slog.Default().With("component", "cmd.operator"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, operatorTimeout)
	defer cancel()

	return fn(ctx, cfg, stores)
}
