// Package remediation turns eligible findings into guarded, reversible
// fixes. Every handler follows the same protocol: capture undo state and
// journal it, mutate, validate, and restore on validation failure.
package remediation

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/internal/journal"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// Outcome is the immutable result of one remediation attempt.
type Outcome struct {
	Success bool     `json:"success"`
	Action  string   `json:"action"`
	Details []string `json:"details"`
	// RollbackID names the journal session holding the undo records.
	RollbackID string `json:"rollback_id,omitempty"`
	Err        string `json:"error,omitempty"`
}

// Handler applies one class of automatic fix.
type Handler interface {
	Apply(ctx context.Context, finding check.Finding) Outcome
}

// Fixed pairs a finding with the outcome that resolved it.
type Fixed struct {
	Finding check.Finding
	Outcome Outcome
}

// actionClass maps each fix identifier to the coarser action class used in
// the remediation.auto_fix allow-list. The catalog is closed: an unlisted
// fix identifier is never auto-applied.
var actionClass = map[string]string{
	"enable_ufw":          "firewall_disabled",
	"add_missing_rules":   "firewall_missing_rules",
	"fix_ssh_config":      "ssh_config",
	"fix_env_permissions": "file_permissions",
}

// Dispatcher routes findings to guarded-apply handlers, gated by the
// configured allow-list. Dispatch is strictly sequential; handlers mutate
// shared subsystems and must never interleave.
type Dispatcher struct {
	cfg      *config.Config
	journal  *journal.Journal
	handlers map[string]Handler
	logger   hclog.Logger
}

// NewDispatcher registers the full handler catalog.
func NewDispatcher(cfg *config.Config, jrnl *journal.Journal, runner execcmd.Runner, logger hclog.Logger) *Dispatcher {
	firewall := &FirewallHandler{cfg: cfg, journal: jrnl, runner: runner, logger: logger.Named("firewall")}
	return &Dispatcher{
		cfg:     cfg,
		journal: jrnl,
		handlers: map[string]Handler{
			"enable_ufw":          firewall,
			"add_missing_rules":   firewall,
			"fix_ssh_config":      &SSHConfigHandler{cfg: cfg, journal: jrnl, runner: runner, logger: logger.Named("ssh")},
			"fix_env_permissions": &PermissionHandler{cfg: cfg, journal: jrnl, logger: logger.Named("permissions")},
		},
		logger: logger,
	}
}

// Process walks the findings in order and applies each eligible fix.
// Successfully fixed findings are excluded from the returned alerts; a
// failed fix leaves the original finding as an alert at its original
// severity. OK findings are dropped entirely.
func (d *Dispatcher) Process(ctx context.Context, findings []check.Finding) (fixed []Fixed, alerts []check.Finding) {
	for _, finding := range findings {
		if finding.Severity == check.SeverityOK {
			continue
		}

		if !d.eligible(finding) {
			alerts = append(alerts, finding)
			continue
		}

		// A journal that can no longer persist means new mutations would
		// be unrecorded and therefore not undoable. Fail closed.
		if d.journal.PersistFailed() {
			d.logger.Error("skipping remediation: journal persistence failed earlier in this run",
				"check", finding.CheckName, "fix_action", finding.FixAction)
			alerts = append(alerts, finding)
			continue
		}

		d.logger.Info("auto-remediating", "check", finding.CheckName, "fix_action", finding.FixAction)
		outcome := d.handlers[finding.FixAction].Apply(ctx, finding)

		if outcome.Success {
			d.logger.Info("fixed", "action", outcome.Action, "session", outcome.RollbackID)
			fixed = append(fixed, Fixed{Finding: finding, Outcome: outcome})
		} else {
			d.logger.Error("remediation failed", "action", outcome.Action, "error", outcome.Err)
			alerts = append(alerts, finding)
		}
	}
	return fixed, alerts
}

// eligible applies the full gate: auto-fixable, a fix identifier present,
// the identifier (or its action class) allow-listed, and a handler
// registered. Any miss turns the finding into an alert, unmodified.
func (d *Dispatcher) eligible(finding check.Finding) bool {
	if !d.cfg.Remediation.Enabled {
		return false
	}
	if !finding.AutoFixable || finding.FixAction == "" {
		return false
	}
	if _, ok := d.handlers[finding.FixAction]; !ok {
		return false
	}
	class := actionClass[finding.FixAction]
	for _, allowed := range d.cfg.Remediation.AutoFix {
		if allowed == finding.FixAction || (class != "" && allowed == class) {
			return true
		}
	}
	return false
}

func success(action string, details []string, rollbackID string) Outcome {
	return Outcome{Success: true, Action: action, Details: details, RollbackID: rollbackID}
}

func failure(action, errMsg string, details []string) Outcome {
	return Outcome{Success: false, Action: action, Details: details, Err: errMsg}
}
