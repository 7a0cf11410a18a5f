package check

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// FailedLoginsCheck monitors failed SSH authentication volume to detect
// brute-force activity.
type FailedLoginsCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger
}

// NewFailedLoginsCheck creates the failed login check.
func NewFailedLoginsCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &FailedLoginsCheck{cfg: cfg, runner: runner, logger: logger}
}

func (c *FailedLoginsCheck) Name() string { return "failed-logins" }

var sourceIPPattern = regexp.MustCompile(`from\s+(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)

func (c *FailedLoginsCheck) Run(ctx context.Context) (Finding, error) {
	window := fmt.Sprintf("%d hours ago", c.cfg.FailedLogins.WindowHours)
	res := c.runner.Run(ctx, "journalctl", "-u", "ssh", "-u", "sshd", "--since", window, "--no-pager")
	if res.Failed() {
		// journald may be absent; lastb reads btmp directly.
		res = c.runner.Run(ctx, "lastb", "--since", window)
	}
	if res.Failed() {
		return infoFinding(c.Name(),
			"Could not check failed login attempts",
			[]string{"Neither journalctl nor lastb produced output", res.Stderr}), nil
	}

	total, topAttackers := countFailedLogins(res.Stdout)

	fail2banActive := c.fail2banActive(ctx)

	details := []string{
		fmt.Sprintf("Failed login attempts in last %dh: %d", c.cfg.FailedLogins.WindowHours, total),
	}
	if fail2banActive {
		details = append(details, "fail2ban is active and protecting SSH")
	} else {
		details = append(details, "fail2ban is NOT running - consider installing it")
	}

	if total >= c.cfg.FailedLogins.WarningThreshold {
		details = append(details, "Top attacking IPs:")
		for i, attacker := range topAttackers {
			if i == 5 {
				break
			}
			details = append(details, fmt.Sprintf("  %4d attempts from %s", attacker.count, attacker.ip))
		}
		if !fail2banActive {
			details = append(details,
				"Install fail2ban to auto-block attackers:",
				"  apt install fail2ban && systemctl enable --now fail2ban")
		}

		message := fmt.Sprintf("High failed login rate: %d in last %dh", total, c.cfg.FailedLogins.WindowHours)
		if total >= c.cfg.FailedLogins.CriticalThreshold {
			return criticalFinding(c.Name(), message, details), nil
		}
		return warningFinding(c.Name(), message, details), nil
	}

	details = append(details, fmt.Sprintf("Below threshold of %d", c.cfg.FailedLogins.WarningThreshold))
	return okFinding(c.Name(),
		fmt.Sprintf("Normal login attempt rate: %d", total), details...), nil
}

type attackerCount struct {
	ip    string
	count int
}

// countFailedLogins counts "Failed password"-style lines and groups them by
// source address, most active first.
func countFailedLogins(output string) (int, []attackerCount) {
	total := 0
	byIP := make(map[string]int)

	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(strings.ToLower(line), "failed") {
			continue
		}
		total++
		if m := sourceIPPattern.FindStringSubmatch(line); m != nil {
			byIP[m[1]]++
		}
	}

	attackers := make([]attackerCount, 0, len(byIP))
	for ip, count := range byIP {
		attackers = append(attackers, attackerCount{ip: ip, count: count})
	}
	sort.Slice(attackers, func(i, j int) bool {
		if attackers[i].count != attackers[j].count {
			return attackers[i].count > attackers[j].count
		}
		return attackers[i].ip < attackers[j].ip
	})
	return total, attackers
}

func (c *FailedLoginsCheck) fail2banActive(ctx context.Context) bool {
	if res := c.runner.Run(ctx, "which", "fail2ban-client"); res.Failed() {
		return false
	}
	res := c.runner.Run(ctx, "fail2ban-client", "status")
	return !res.Failed() && strings.Contains(res.Stdout, "Number of jail")
}
