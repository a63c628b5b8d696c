package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"linerelay/pkg/config"
	"linerelay/pkg/store"
	"linerelay/pkg/ui"
)

const previewRunes = 60

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Inspect the end-user message log",
}

var recentLimit int

var messagesRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the newest logged end-user messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if recentLimit <= 0 {
			return fmt.Errorf("--limit must be positive, got %d", recentLimit)
		}

		return withStores(cmd.Context(), func(ctx context.Context, _ *config.Config, stores *store.Stores) error {
			messages, err := stores.Messages.RecentMessages(ctx, recentLimit)
			if err != nil {
				return fmt.Errorf("read message log: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.MessageTable(messages, previewRunes))
			return nil
		})
	},
}

func init() {
	messagesRecentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 20, "number of messages to show")

	messagesCmd.AddCommand(messagesRecentCmd)
	rootCmd.AddCommand(messagesCmd)
}
