package check

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// FirewallCheck verifies UFW is active and only allows necessary ports.
type FirewallCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger
}

// NewFirewallCheck creates the firewall check.
func NewFirewallCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &FirewallCheck{cfg: cfg, runner: runner, logger: logger}
}

func (c *FirewallCheck) Name() string { return "firewall" }

var ufwRulePattern = regexp.MustCompile(`^(\d+)(?:/tcp|/udp)?`)

func (c *FirewallCheck) Run(ctx context.Context) (Finding, error) {
	if res := c.runner.Run(ctx, "which", "ufw"); res.Failed() {
		return criticalFinding(c.Name(),
			"UFW firewall is not installed",
			[]string{
				"Server has no firewall protection",
				"Install with: apt install ufw",
			}), nil
	}

	status := c.runner.Run(ctx, "ufw", "status", "verbose")
	if status.Failed() {
		return warningFinding(c.Name(),
			"Could not determine UFW status",
			[]string{status.Stderr}), nil
	}

	if strings.Contains(status.Stdout, "Status: inactive") {
		f := criticalFinding(c.Name(),
			"UFW firewall is DISABLED",
			[]string{
				"Server has no active firewall protection",
				"All ports are potentially exposed to the internet",
			})
		f.AutoFixable = true
		f.FixAction = "enable_ufw"
		return f, nil
	}

	allowed := parseUFWRules(status.Stdout)
	expected := intSet(c.cfg.Firewall.AllowedPorts)
	dangerous := intSet(c.cfg.Firewall.DangerousPorts)

	// Database ports reachable from the internet are never auto-fixed;
	// deleting rules unattended could break a legitimate (if unwise) setup.
	if exposed := intersect(allowed, dangerous); len(exposed) > 0 {
		details := []string{
			fmt.Sprintf("These database ports are allowed: %v", exposed),
			"These ports should never be reachable from the internet.",
		}
		for _, p := range exposed {
			details = append(details, fmt.Sprintf("  ufw delete allow %d", p))
		}
		return criticalFinding(c.Name(), "Dangerous ports allowed through firewall", details), nil
	}

	if unexpected := subtract(allowed, expected, c.cfg.Firewall.ManagementPort); len(unexpected) > 0 {
		details := []string{
			fmt.Sprintf("Ports not in config but allowed: %v", unexpected),
			"Review these rules and remove if not needed:",
		}
		for _, p := range unexpected {
			details = append(details, fmt.Sprintf("  ufw delete allow %d", p))
		}
		return warningFinding(c.Name(), "Unexpected ports allowed through firewall", details), nil
	}

	if missing := subtract(expected, allowed, 0); len(missing) > 0 {
		details := []string{
			fmt.Sprintf("Missing port rules: %v", missing),
			"These ports should be allowed but are not.",
		}
		f := warningFinding(c.Name(), "Some expected ports not in firewall rules", details)
		f.AutoFixable = true
		f.FixAction = "add_missing_rules"
		f.Payload = &FixData{Ports: missing}
		return f, nil
	}

	return okFinding(c.Name(),
		"UFW firewall active with correct rules",
		"Status: active",
		fmt.Sprintf("Allowed ports: %v", sortedKeys(allowed)),
		"No dangerous database ports exposed",
	), nil
}

// parseUFWRules extracts the allowed port numbers from "ufw status" output.
// Rule lines look like "22/tcp  ALLOW IN  Anywhere".
func parseUFWRules(output string) map[int]bool {
	allowed := make(map[int]bool)
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "ALLOW") {
			continue
		}
		m := ufwRulePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		port, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		allowed[port] = true
	}
	return allowed
}

func intSet(ports []int) map[int]bool {
	set := make(map[int]bool, len(ports))
	for _, p := range ports {
		set[p] = true
	}
	return set
}

func intersect(a, b map[int]bool) []int {
	var out []int
	for p := range a {
		if b[p] {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

// subtract returns the sorted members of a that are missing from b.
// A nonzero managementPort is excluded from the result; the unexpected-ports
// pass uses it so the management port never reads as unexpected, while the
// missing-ports pass passes 0 so an absent management rule is still flagged.
func subtract(a, b map[int]bool, managementPort int) []int {
	var out []int
	for p := range a {
		if !b[p] && p != managementPort {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
