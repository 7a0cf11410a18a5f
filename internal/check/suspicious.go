package check

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// SuspiciousActivityCheck looks for crypto miners, unexplained high-CPU
// processes and outbound connections to known-bad ports. Findings are never
// auto-fixable; killing processes unattended is how monitoring tools cause
// outages.
type SuspiciousActivityCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger
}

// defaultMinerNames are matched when the config lists none.
var defaultMinerNames = []string{
	"xmrig", "minerd", "cpuminer", "cryptonight", "stratum",
	"xmr-stak", "ccminer", "ethminer", "nbminer", "phoenixminer",
}

// legitimateHighCPU are services expected to spike; they are skipped by the
// high-CPU heuristic to cut alert noise.
var legitimateHighCPU = []string{"docker", "mysql", "postgres", "nginx", "apache", "node", "python"}

// NewSuspiciousActivityCheck creates the suspicious activity check.
func NewSuspiciousActivityCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &SuspiciousActivityCheck{cfg: cfg, runner: runner, logger: logger}
}

func (c *SuspiciousActivityCheck) Name() string { return "suspicious-activity" }

func (c *SuspiciousActivityCheck) Run(ctx context.Context) (Finding, error) {
	var issues []string
	minerFound := false

	ps := c.runner.Run(ctx, "ps", "aux", "--no-headers")
	if !ps.Failed() {
		minerIssues := c.scanForMiners(ps.Stdout)
		if len(minerIssues) > 0 {
			minerFound = true
			issues = append(issues, minerIssues...)
		}
		issues = append(issues, c.scanHighCPU(ps.Stdout)...)
	} else {
		c.logger.Warn("could not list processes", "stderr", ps.Stderr)
	}

	if len(c.cfg.Suspicious.SuspiciousPorts) > 0 {
		issues = append(issues, c.scanConnections(ctx)...)
	}

	if len(issues) > 0 {
		message := fmt.Sprintf("Suspicious activity detected: %d issue(s)", len(issues))
		if minerFound {
			return criticalFinding(c.Name(), message, issues), nil
		}
		return warningFinding(c.Name(), message, issues), nil
	}

	return okFinding(c.Name(),
		"No suspicious activity detected",
		"No known crypto mining processes found",
		"No unexplained high-CPU processes",
	), nil
}

func (c *SuspiciousActivityCheck) minerNames() []string {
	if len(c.cfg.Suspicious.ProcessNames) > 0 {
		return c.cfg.Suspicious.ProcessNames
	}
	return defaultMinerNames
}

func (c *SuspiciousActivityCheck) scanForMiners(psOutput string) []string {
	var issues []string
	for _, line := range strings.Split(strings.TrimSpace(psOutput), "\n") {
		lower := strings.ToLower(line)
		for _, name := range c.minerNames() {
			if !strings.Contains(lower, strings.ToLower(name)) {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 11 {
				issues = append(issues,
					fmt.Sprintf("SUSPICIOUS PROCESS: %s (PID %s, user %s, CPU %s%%)", name, fields[1], fields[0], fields[2]),
					fmt.Sprintf("  Command: %s", truncate(strings.Join(fields[10:], " "), 80)),
				)
			}
		}
	}
	return issues
}

func (c *SuspiciousActivityCheck) scanHighCPU(psOutput string) []string {
	var issues []string
	for _, line := range strings.Split(strings.TrimSpace(psOutput), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 11 {
			continue
		}
		cpu, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || cpu < c.cfg.Suspicious.CPUThreshold {
			continue
		}
		command := strings.Join(fields[10:], " ")
		if isLegitimateHighCPU(command) {
			continue
		}
		issues = append(issues,
			fmt.Sprintf("HIGH CPU PROCESS: PID %s using %.1f%% CPU (user %s)", fields[1], cpu, fields[0]),
			fmt.Sprintf("  Command: %s", truncate(command, 80)),
		)
	}
	return issues
}

func (c *SuspiciousActivityCheck) scanConnections(ctx context.Context) []string {
	var issues []string
	res := c.runner.Run(ctx, "ss", "-tn", "state", "established")
	if res.Failed() {
		c.logger.Debug("could not list connections", "stderr", res.Stderr)
		return issues
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		peer := fields[len(fields)-1]
		idx := strings.LastIndex(peer, ":")
		if idx < 0 {
			continue
		}
		port, err := strconv.Atoi(peer[idx+1:])
		if err != nil {
			continue
		}
		for _, bad := range c.cfg.Suspicious.SuspiciousPorts {
			if port == bad {
				issues = append(issues,
					fmt.Sprintf("SUSPICIOUS CONNECTION: established to %s (port %d)", peer, port))
			}
		}
	}
	return issues
}

func isLegitimateHighCPU(command string) bool {
	lower := strings.ToLower(command)
	for _, legit := range legitimateHighCPU {
		if strings.Contains(lower, legit) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
