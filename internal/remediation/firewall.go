package remediation

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/internal/journal"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// FirewallHandler enables UFW and adds missing allow-rules. Activation is
// fail closed: the filter is never enabled unless the management port is
// confirmed allowed first, because a default-deny firewall without it cuts
// off remote administration permanently.
type FirewallHandler struct {
	cfg     *config.Config
	journal *journal.Journal
	runner  execcmd.Runner
	logger  hclog.Logger
}

func (h *FirewallHandler) Apply(ctx context.Context, finding check.Finding) Outcome {
	switch finding.FixAction {
	case "enable_ufw":
		return h.enable(ctx)
	case "add_missing_rules":
		var ports []int
		if finding.Payload != nil {
			ports = finding.Payload.Ports
		}
		return h.addMissingRules(ctx, ports)
	default:
		return failure("Firewall remediation",
			fmt.Sprintf("unrecognized fix action %q", finding.FixAction), nil)
	}
}

func (h *FirewallHandler) enable(ctx context.Context) Outcome {
	const action = "Enable UFW firewall"
	var details []string

	// Undo backup first: the rule listing as it stands now.
	rulesBefore := h.runner.Run(ctx, "ufw", "status", "numbered")
	if err := h.journal.RecordFirewallChange("enable_ufw", rulesBefore.Stdout); err != nil {
		return failure(action, fmt.Sprintf("could not record undo backup: %v", err), nil)
	}

	mgmt := h.cfg.Firewall.ManagementPort
	h.logger.Info("ensuring management port is allowed before enabling UFW", "port", mgmt)
	if res := h.allowPort(ctx, mgmt); res.Failed() {
		return failure(action,
			fmt.Sprintf("failed to allow management port %d: %s", mgmt, strings.TrimSpace(res.Stderr)),
			[]string{fmt.Sprintf("ABORTED: refusing to enable UFW without port %d guaranteed", mgmt)})
	}
	details = append(details, fmt.Sprintf("Allowed port %d/tcp", mgmt))

	// Individual extra-port failures are logged, not fatal; they do not
	// threaten remote access.
	for _, port := range h.cfg.Firewall.AllowedPorts {
		if port == mgmt {
			continue
		}
		if res := h.allowPort(ctx, port); res.Failed() {
			h.logger.Warn("failed to allow port", "port", port, "stderr", res.Stderr)
			continue
		}
		details = append(details, fmt.Sprintf("Allowed port %d/tcp", port))
	}

	if res := h.runner.Run(ctx, "ufw", "--force", "enable"); res.Failed() {
		return failure(action,
			fmt.Sprintf("failed to enable UFW: %s", strings.TrimSpace(res.Stderr)), details)
	}
	details = append(details, "Enabled UFW firewall")

	// Trust the status query, not the enable command's exit code.
	status := h.runner.Run(ctx, "ufw", "status")
	if !strings.Contains(status.Stdout, "Status: active") {
		return failure(action, "UFW reports inactive after enable command", details)
	}
	details = append(details, "Verified UFW is active")

	h.journal.RecordCommand("ufw --force enable", "Enabled UFW firewall")
	return success(action, details, h.journal.SessionID())
}

func (h *FirewallHandler) addMissingRules(ctx context.Context, ports []int) Outcome {
	const action = "Add missing firewall rules"
	if len(ports) == 0 {
		return success(action, []string{"No missing rules to add"}, "")
	}

	rulesBefore := h.runner.Run(ctx, "ufw", "status", "numbered")
	if err := h.journal.RecordFirewallChange("add_missing_rules", rulesBefore.Stdout); err != nil {
		return failure(action, fmt.Sprintf("could not record undo backup: %v", err), nil)
	}

	var details []string
	var errs []string
	for _, port := range ports {
		if res := h.allowPort(ctx, port); res.Failed() {
			errs = append(errs, fmt.Sprintf("failed to allow port %d: %s", port, strings.TrimSpace(res.Stderr)))
			continue
		}
		details = append(details, fmt.Sprintf("Allowed port %d/tcp", port))
		h.journal.RecordCommand(fmt.Sprintf("ufw allow %d/tcp", port),
			fmt.Sprintf("Added firewall rule for port %d", port))
	}

	if len(errs) > 0 {
		return failure(action, strings.Join(errs, "; "), details)
	}
	return success(fmt.Sprintf("Added %d firewall rule(s)", len(details)), details, h.journal.SessionID())
}

func (h *FirewallHandler) allowPort(ctx context.Context, port int) execcmd.Result {
	return h.runner.Run(ctx, "ufw", "allow", fmt.Sprintf("%d/tcp", port))
}
