package check

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// SSHSecurityCheck verifies sshd is configured according to the required
// hardening directives.
type SSHSecurityCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger
}

// NewSSHSecurityCheck creates the SSH configuration check.
func NewSSHSecurityCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &SSHSecurityCheck{cfg: cfg, runner: runner, logger: logger}
}

func (c *SSHSecurityCheck) Name() string { return "ssh-security" }

func (c *SSHSecurityCheck) Run(ctx context.Context) (Finding, error) {
	path := c.cfg.SSH.ConfigPath

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return warningFinding(c.Name(),
			fmt.Sprintf("SSH config not found at %s", path),
			[]string{"Cannot verify SSH security settings"}), nil
	}
	if os.IsPermission(err) {
		return warningFinding(c.Name(),
			"Cannot read SSH config (permission denied)",
			[]string{"Run as root to check SSH configuration"}), nil
	}
	if err != nil {
		return Finding{}, err
	}

	settings := ParseSSHDConfig(string(content))

	var issues []string
	directives := make([]string, 0, len(c.cfg.SSH.Requirements))
	for directive := range c.cfg.SSH.Requirements {
		directives = append(directives, directive)
	}
	sort.Strings(directives)

	for _, directive := range directives {
		required := c.cfg.SSH.Requirements[directive]
		actual, present := settings[strings.ToLower(directive)]
		switch {
		case !present:
			// sshd defaults for these are the insecure direction.
			issues = append(issues, fmt.Sprintf("%s not set (sshd default is insecure)", directive))
		case !strings.EqualFold(actual, required):
			issues = append(issues, fmt.Sprintf("%s is %q (should be %q)", directive, actual, required))
		}
	}

	if len(issues) > 0 {
		severity := SeverityWarning
		for _, issue := range issues {
			if strings.Contains(issue, "PasswordAuthentication") || strings.Contains(issue, "PermitRootLogin") {
				severity = SeverityCritical
				break
			}
		}
		return Finding{
			CheckName:   c.Name(),
			Severity:    severity,
			Message:     fmt.Sprintf("SSH security issues found: %d", len(issues)),
			Details:     issues,
			AutoFixable: true,
			FixAction:   "fix_ssh_config",
		}, nil
	}

	return okFinding(c.Name(),
		"SSH configuration is secure",
		"All required sshd directives are at their secure values",
	), nil
}

// ParseSSHDConfig extracts effective "Directive Value" pairs from
// sshd_config content. Keys are lowercased; comments are skipped.
func ParseSSHDConfig(content string) map[string]string {
	settings := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		key := strings.ToLower(parts[0])
		value := strings.Join(parts[1:], " ")
		// First occurrence wins, as in sshd itself.
		if _, seen := settings[key]; !seen {
			settings[key] = value
		}
	}
	return settings
}
