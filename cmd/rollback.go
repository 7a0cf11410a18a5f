package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/just-amazing/vps-sentinel/internal/journal"
	"github.com/just-amazing/vps-sentinel/pkg/shared/errors"
	"github.com/just-amazing/vps-sentinel/pkg/shared/logger"
)

var rollbackCmd = &cobra.Command{
	Use:                   "rollback SESSION_ID",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Undo the changes recorded in a remediation session",
	Args:                  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger(AppConfig, "vps-sentinel")

		result, err := journal.Rollback(AppConfig.Remediation.BackupDir, args[0], log.Named("rollback"))
		if err != nil {
			return err
		}

		for _, line := range result.RolledBack {
			fmt.Println(line)
		}
		for _, line := range result.ManualReview {
			fmt.Printf("MANUAL REVIEW: %s\n", line)
		}
		for _, line := range result.Errors {
			fmt.Printf("ERROR: %s\n", line)
		}

		if !result.Success() {
			return errors.NewExitError(1,
				fmt.Sprintf("rollback of session %s finished with %d error(s)", result.SessionID, len(result.Errors)))
		}
		fmt.Printf("Session %s rolled back: %d change(s) restored, %d for manual review.\n",
			result.SessionID, len(result.RolledBack), len(result.ManualReview))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}
