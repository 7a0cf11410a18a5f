package check

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

func firewallConfig() *config.Config {
	return &config.Config{
		Firewall: config.Firewall{
			ManagementPort: 22,
			AllowedPorts:   []int{80, 443},
			DangerousPorts: []int{5432, 3306, 6379},
		},
	}
}

func TestFirewallCheckNotInstalled(t *testing.T) {
	fake := execcmd.NewFake().
		On("which ufw", execcmd.Result{ExitCode: 1})

	c := NewFirewallCheck(firewallConfig(), fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityCritical, finding.Severity)
	assert.False(t, finding.AutoFixable)
	assert.Contains(t, finding.Message, "not installed")
}

func TestFirewallCheckInactiveIsAutoFixable(t *testing.T) {
	fake := execcmd.NewFake().
		On("which ufw", execcmd.Result{ExitCode: 0, Stdout: "/usr/sbin/ufw"}).
		On("ufw status verbose", execcmd.Result{ExitCode: 0, Stdout: "Status: inactive\n"})

	c := NewFirewallCheck(firewallConfig(), fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityCritical, finding.Severity)
	assert.True(t, finding.AutoFixable)
	assert.Equal(t, "enable_ufw", finding.FixAction)
}

func TestFirewallCheckDangerousPortExposed(t *testing.T) {
	out := `Status: active

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW IN    Anywhere
80/tcp                     ALLOW IN    Anywhere
443/tcp                    ALLOW IN    Anywhere
5432/tcp                   ALLOW IN    Anywhere
`
	fake := execcmd.NewFake().
		On("which ufw", execcmd.Result{ExitCode: 0, Stdout: "/usr/sbin/ufw"}).
		On("ufw status verbose", execcmd.Result{ExitCode: 0, Stdout: out})

	c := NewFirewallCheck(firewallConfig(), fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	// Exposed database ports must never be auto-fixed.
	assert.Equal(t, SeverityCritical, finding.Severity)
	assert.False(t, finding.AutoFixable)
	assert.Contains(t, finding.Details[0], "5432")
}

func TestFirewallCheckMissingPortsCarriesPayload(t *testing.T) {
	out := `Status: active

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW IN    Anywhere
80/tcp                     ALLOW IN    Anywhere
`
	fake := execcmd.NewFake().
		On("which ufw", execcmd.Result{ExitCode: 0, Stdout: "/usr/sbin/ufw"}).
		On("ufw status verbose", execcmd.Result{ExitCode: 0, Stdout: out})

	c := NewFirewallCheck(firewallConfig(), fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityWarning, finding.Severity)
	assert.True(t, finding.AutoFixable)
	assert.Equal(t, "add_missing_rules", finding.FixAction)
	require.NotNil(t, finding.Payload)
	assert.Equal(t, []int{443}, finding.Payload.Ports)
}

func TestFirewallCheckAllCorrect(t *testing.T) {
	out := `Status: active

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW IN    Anywhere
80/tcp                     ALLOW IN    Anywhere
443/tcp                    ALLOW IN    Anywhere
`
	fake := execcmd.NewFake().
		On("which ufw", execcmd.Result{ExitCode: 0, Stdout: "/usr/sbin/ufw"}).
		On("ufw status verbose", execcmd.Result{ExitCode: 0, Stdout: out})

	c := NewFirewallCheck(firewallConfig(), fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityOK, finding.Severity)
}

func TestParseUFWRules(t *testing.T) {
	out := `Status: active

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW IN    Anywhere
443                        ALLOW IN    Anywhere
80/tcp (v6)                ALLOW IN    Anywhere (v6)
Anywhere                   DENY IN     203.0.113.7
`
	allowed := parseUFWRules(out)
	assert.True(t, allowed[22])
	assert.True(t, allowed[443])
	assert.True(t, allowed[80])
	assert.Len(t, allowed, 3)
}
