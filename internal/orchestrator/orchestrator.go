// Package orchestrator drives one audit run end to end: execute every
// registered check, dispatch eligible findings to remediation, and hand the
// outcome to the notifier.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/remediation"
)

// Notifier delivers the end-of-run summary. Implementations must tolerate
// being called with empty slices.
type Notifier interface {
	SendSummary(ctx context.Context, fixed []remediation.Fixed, alerts []check.Finding) error
}

// Dispatcher routes findings to automatic fixes. Satisfied by
// remediation.Dispatcher; narrowed to an interface so dry runs and tests can
// substitute it.
type Dispatcher interface {
	Process(ctx context.Context, findings []check.Finding) (fixed []remediation.Fixed, alerts []check.Finding)
}

// Summary is the complete result of one audit run.
type Summary struct {
	// Results holds one finding per check, in catalog order, OK included.
	Results []check.Finding
	// Fixed holds the findings resolved by auto-remediation this run.
	Fixed []remediation.Fixed
	// Alerts holds the non-OK findings that remain after remediation.
	Alerts []check.Finding
	// ExitCode follows the severity contract: 0 clean, 1 warnings,
	// 2 critical.
	ExitCode int
}

// Orchestrator owns one run's check list, dispatcher and notifier.
type Orchestrator struct {
	checks     []check.Check
	dispatcher Dispatcher
	notifier   Notifier
	logger     hclog.Logger
}

func New(checks []check.Check, dispatcher Dispatcher, notifier Notifier, logger hclog.Logger) *Orchestrator {
	return &Orchestrator{
		checks:     checks,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
	}
}

// Run executes the full audit. In dry-run mode checks still execute (they
// are read-only) but nothing is remediated and nothing is notified.
func (o *Orchestrator) Run(ctx context.Context, dryRun bool) Summary {
	results := o.runChecks(ctx)

	summary := Summary{Results: results}
	if dryRun {
		for _, finding := range results {
			if finding.Severity != check.SeverityOK {
				summary.Alerts = append(summary.Alerts, finding)
			}
		}
	} else {
		summary.Fixed, summary.Alerts = o.dispatcher.Process(ctx, results)
	}

	summary.ExitCode = check.ExitCode(check.AggregateSeverity(summary.Alerts))

	if !dryRun && (len(summary.Fixed) > 0 || len(summary.Alerts) > 0) {
		if err := o.notifier.SendSummary(ctx, summary.Fixed, summary.Alerts); err != nil {
			// Notification failure never alters the audit outcome.
			o.logger.Error("failed to send notification", "error", err)
		}
	}
	return summary
}

// runChecks executes every check sequentially. A check that errors or
// panics is isolated: the run continues and the failure surfaces as a
// WARNING finding so a broken detector cannot silently mask the host.
func (o *Orchestrator) runChecks(ctx context.Context) []check.Finding {
	results := make([]check.Finding, 0, len(o.checks))
	for _, c := range o.checks {
		o.logger.Debug("running check", "check", c.Name())
		finding := o.safeRun(ctx, c)
		o.logger.Info("check finished", "check", c.Name(), "severity", finding.Severity.String())
		results = append(results, finding)
	}
	return results
}

func (o *Orchestrator) safeRun(ctx context.Context, c check.Check) (finding check.Finding) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("check panicked", "check", c.Name(), "panic", r)
			finding = check.Finding{
				CheckName: c.Name(),
				Severity:  check.SeverityWarning,
				Message:   fmt.Sprintf("Check failed to run: %v", r),
			}
		}
	}()

	finding, err := c.Run(ctx)
	if err != nil {
		o.logger.Error("check failed", "check", c.Name(), "error", err)
		return check.Finding{
			CheckName: c.Name(),
			Severity:  check.SeverityWarning,
			Message:   fmt.Sprintf("Check failed to run: %v", err),
		}
	}
	return finding
}
