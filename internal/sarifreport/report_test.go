package sarifreport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-amazing/vps-sentinel/internal/check"
)

func sampleFindings() []check.Finding {
	return []check.Finding{
		{CheckName: "firewall", Severity: check.SeverityOK, Message: "UFW firewall active with correct rules"},
		{CheckName: "ssh-security", Severity: check.SeverityCritical, Message: "SSH security issues found: 1",
			Details: []string{`PasswordAuthentication is "yes" (should be "no")`}},
		{CheckName: "package-updates", Severity: check.SeverityWarning, Message: "2 security update(s) available"},
	}
}

func TestBuildOneRunOneRulePerCheck(t *testing.T) {
	report, err := Build(sampleFindings())
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)

	run := report.Runs[0]
	assert.Equal(t, "vps-sentinel", run.Tool.Driver.Name)
	assert.Len(t, run.Tool.Driver.Rules, 3)

	// OK findings list a rule but produce no result.
	require.Len(t, run.Results, 2)
}

func TestBuildSeverityLevels(t *testing.T) {
	report, err := Build(sampleFindings())
	require.NoError(t, err)

	run := report.Runs[0]
	levels := make(map[string]string)
	for _, result := range run.Results {
		levels[*result.RuleID] = *result.Level
	}
	assert.Equal(t, "error", levels["ssh-security"])
	assert.Equal(t, "warning", levels["package-updates"])
}

func TestBuildResultMessageIncludesDetails(t *testing.T) {
	report, err := Build(sampleFindings())
	require.NoError(t, err)

	var sshMessage string
	for _, result := range report.Runs[0].Results {
		if *result.RuleID == "ssh-security" {
			sshMessage = *result.Message.Text
		}
	}
	assert.Contains(t, sshMessage, "PasswordAuthentication")
}

func TestWriteFileProducesValidSARIF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.sarif")
	require.NoError(t, WriteFile(path, sampleFindings()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.1.0"`)
	assert.Contains(t, string(data), "vps-sentinel")
}
