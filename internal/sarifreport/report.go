// Package sarifreport renders audit findings as a SARIF 2.1.0 report, one
// run per audit with one rule per check.
package sarifreport

import (
	"fmt"
	"os"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/just-amazing/vps-sentinel/internal/check"
)

const toolInformationURI = "https://github.com/just-amazing/vps-sentinel"

// Build converts one audit's findings into a SARIF report. OK findings carry
// no result; their rule still appears so the report lists every check that
// ran.
func Build(findings []check.Finding) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI("vps-sentinel", toolInformationURI)
	for _, finding := range findings {
		rule := run.AddRule(finding.CheckName).
			WithDescription(finding.CheckName).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{
				Level: toSarifLevel(finding.Severity),
			})

		if finding.Severity == check.SeverityOK {
			continue
		}

		message := finding.Message
		for _, detail := range finding.Details {
			message += "\n" + detail
		}

		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(finding.CheckName)),
		)

		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(message)).
			WithLevel(toSarifLevel(finding.Severity)).
			WithLocations([]*sarif.Location{location})
		run.AddResult(result)
	}
	report.AddRun(run)
	return report, nil
}

// WriteFile builds the report and pretty-prints it to outputPath.
func WriteFile(outputPath string, findings []check.Finding) error {
	report, err := Build(findings)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error writing SARIF report: %v", err)
	}
	defer func() { _ = file.Close() }()
	return report.PrettyWrite(file)
}

func toSarifLevel(severity check.Severity) string {
	switch severity {
	case check.SeverityCritical:
		return "error"
	case check.SeverityWarning:
		return "warning"
	case check.SeverityInfo:
		return "note"
	default:
		return "none"
	}
}
