package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/just-amazing/vps-sentinel/internal/notify"
	"github.com/just-amazing/vps-sentinel/pkg/shared/logger"
)

var testNotificationCmd = &cobra.Command{
	Use:                   "test-notification",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Send a test message to every configured Slack webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger(AppConfig, "vps-sentinel")

		notifier := notify.NewSlackNotifier(AppConfig, log.Named("notify"))
		if err := notifier.SendTest(cmd.Context()); err != nil {
			return fmt.Errorf("test notification failed: %w", err)
		}
		fmt.Println("Test notification delivered.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testNotificationCmd)
}
