package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/internal/journal"
	"github.com/just-amazing/vps-sentinel/internal/notify"
	"github.com/just-amazing/vps-sentinel/internal/orchestrator"
	"github.com/just-amazing/vps-sentinel/internal/remediation"
	"github.com/just-amazing/vps-sentinel/internal/sarifreport"
	"github.com/just-amazing/vps-sentinel/pkg/shared/errors"
	"github.com/just-amazing/vps-sentinel/pkg/shared/logger"
)

// RunOptionsScan holds the command-line flag values for the scan command.
type RunOptionsScan struct {
	DryRun    bool
	Verbose   bool
	SARIFPath string
}

var (
	allScanOptions RunOptionsScan
	scanCmd        = &cobra.Command{
		Use:                   "scan",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Run every security check and auto-fix eligible findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewLogger(AppConfig, "vps-sentinel")

			runner := execcmd.NewRunner(AppConfig.CommandTimeout, log.Named("exec"))
			jrnl, err := journal.New(AppConfig.Remediation.BackupDir, AppConfig.Remediation.MaxSessions, log.Named("journal"))
			if err != nil {
				return fmt.Errorf("failed to prepare rollback journal: %w", err)
			}

			orch := orchestrator.New(
				check.All(AppConfig, runner, log.Named("check")),
				remediation.NewDispatcher(AppConfig, jrnl, runner, log.Named("remediation")),
				notify.NewSlackNotifier(AppConfig, log.Named("notify")),
				log.Named("orchestrator"),
			)

			summary := orch.Run(cmd.Context(), allScanOptions.DryRun)
			printSummary(summary, allScanOptions.Verbose)

			if allScanOptions.SARIFPath != "" {
				if err := sarifreport.WriteFile(allScanOptions.SARIFPath, summary.Results); err != nil {
					return fmt.Errorf("failed to write SARIF report: %w", err)
				}
				fmt.Printf("SARIF report written to %s\n", allScanOptions.SARIFPath)
			}

			if summary.ExitCode != 0 {
				// The summary is already printed; the error only carries the
				// exit status.
				return errors.NewExitError(summary.ExitCode, "")
			}
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&allScanOptions.DryRun, "dry-run", false, "run checks only, without remediation or notifications")
	scanCmd.Flags().BoolVarP(&allScanOptions.Verbose, "verbose", "v", false, "print every check result including passing ones")
	scanCmd.Flags().StringVar(&allScanOptions.SARIFPath, "sarif", "", "write the scan results as a SARIF report to the given path")
}

func printSummary(summary orchestrator.Summary, verbose bool) {
	if verbose {
		fmt.Println("Check results:")
		for _, finding := range summary.Results {
			fmt.Printf("  [%s] %s: %s\n", finding.Severity, finding.CheckName, finding.Message)
			for _, detail := range finding.Details {
				fmt.Printf("      %s\n", detail)
			}
		}
	}

	for _, fixed := range summary.Fixed {
		fmt.Printf("FIXED %s: %s", fixed.Finding.CheckName, fixed.Outcome.Action)
		if fixed.Outcome.RollbackID != "" {
			fmt.Printf(" (rollback session %s)", fixed.Outcome.RollbackID)
		}
		fmt.Println()
	}

	for _, alert := range summary.Alerts {
		fmt.Printf("%s %s: %s\n", alert.Severity, alert.CheckName, alert.Message)
		if verbose {
			continue // details were printed above
		}
		for _, detail := range alert.Details {
			fmt.Printf("    %s\n", detail)
		}
	}

	if len(summary.Fixed) == 0 && len(summary.Alerts) == 0 {
		fmt.Println("All checks passed.")
	}
}
