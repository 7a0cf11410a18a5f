package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/just-amazing/vps-sentinel/internal/journal"
)

var listSessionsCmd = &cobra.Command{
	Use:                   "list-sessions",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "List stored rollback sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := journal.ListSessions(AppConfig.Remediation.BackupDir)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No rollback sessions stored.")
			return nil
		}

		for _, session := range sessions {
			if session.Created.IsZero() {
				fmt.Printf("%s  (unreadable session file)\n", session.ID)
				continue
			}
			fmt.Printf("%s  %s  %d change(s)\n",
				session.ID, session.Created.Format("2006-01-02 15:04:05"), session.ChangeCount)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listSessionsCmd)
}
