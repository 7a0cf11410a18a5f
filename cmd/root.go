package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/just-amazing/vps-sentinel/cmd/version"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
	"github.com/just-amazing/vps-sentinel/pkg/shared/errors"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "vps-sentinel [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Vps-sentinel audits a host's security posture and fixes what it safely can.",
		Long: `Vps-sentinel runs a catalog of host security checks (firewall, sshd hardening,
exposed database ports, secret file permissions, SSL expiry, brute-force activity,
suspicious processes, pending updates), auto-remediates the eligible findings behind
a rollback journal, and reports the rest.
`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/vps-sentinel/config.yml)")
	rootCmd.AddCommand(version.NewVersionCmd())
}

// Execute runs the selected command and maps its error to a process exit
// status. Unresolved findings surface as *errors.ExitError so the status
// contract (0 clean, 1 warnings, 2 critical) survives cobra's error path.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		var exitErr *errors.ExitError
		if stderrors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			return exitErr.Code
		}
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		return 1
	}
	return 0
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "/etc/vps-sentinel/config.yml"
		if _, err := os.Stat(cfgFile); err != nil {
			cfgFile = "config.yml"
		}
		if _, err := os.Stat(cfgFile); err != nil {
			// No config anywhere on the host. Run on the built-in
			// defaults so commands like version still work; an
			// explicit --config that cannot be read stays fatal.
			AppConfig = config.Default()
			return
		}
	}

	var err error
	AppConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize config: %v\n", err)
		os.Exit(1)
	}
}
