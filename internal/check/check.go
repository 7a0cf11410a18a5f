// Package check defines the contract every security detector implements
// and the finding model the rest of the system consumes. Checks only read
// system state; anything that mutates lives in internal/remediation.
package check

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// Finding is the structured output of one check describing one potential
// issue and how it may be fixed. Immutable once produced.
type Finding struct {
	CheckName   string   `json:"check_name"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Details     []string `json:"details"`
	AutoFixable bool     `json:"auto_fixable"`
	// FixAction names the remediation class able to resolve this finding.
	// Empty when no automatic fix exists.
	FixAction string `json:"fix_action,omitempty"`
	// Payload carries the parameters that fix needs.
	Payload *FixData `json:"payload,omitempty"`
}

// FixData is the structured payload handed to a remediation handler.
type FixData struct {
	// Ports to allow through the firewall (add_missing_rules).
	Ports []int `json:"ports,omitempty"`
	// Files whose permissions must be tightened (fix_env_permissions).
	Files []string `json:"files,omitempty"`
}

// Check produces exactly one Finding from current system state using only
// read operations.
type Check interface {
	Name() string
	Run(ctx context.Context) (Finding, error)
}

// Constructor builds one check wired to the shared configuration, command
// runner and logger.
type Constructor func(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check

// catalog is the closed, ordered set of registered checks. New detectors
// are added here and nowhere else.
var catalog = []struct {
	name  string
	build Constructor
}{
	{"firewall", NewFirewallCheck},
	{"ssh-security", NewSSHSecurityCheck},
	{"docker-ports", NewDockerPortsCheck},
	{"file-permissions", NewFilePermissionsCheck},
	{"ssl-certificates", NewSSLCertificatesCheck},
	{"failed-logins", NewFailedLoginsCheck},
	{"suspicious-activity", NewSuspiciousActivityCheck},
	{"package-updates", NewPackageUpdatesCheck},
}

// All instantiates every registered check in catalog order.
func All(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) []Check {
	checks := make([]Check, 0, len(catalog))
	for _, entry := range catalog {
		checks = append(checks, entry.build(cfg, runner, logger.Named(entry.name)))
	}
	return checks
}

// Names lists the registered check names in catalog order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		names = append(names, entry.name)
	}
	return names
}

func okFinding(name, message string, details ...string) Finding {
	return Finding{CheckName: name, Severity: SeverityOK, Message: message, Details: details}
}

func infoFinding(name, message string, details []string) Finding {
	return Finding{CheckName: name, Severity: SeverityInfo, Message: message, Details: details}
}

func warningFinding(name, message string, details []string) Finding {
	return Finding{CheckName: name, Severity: SeverityWarning, Message: message, Details: details}
}

func criticalFinding(name, message string, details []string) Finding {
	return Finding{CheckName: name, Severity: SeverityCritical, Message: message, Details: details}
}
