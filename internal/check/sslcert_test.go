package check

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

func TestSSLCertificatesCheckNoDomains(t *testing.T) {
	c := NewSSLCertificatesCheck(&config.Config{}, execcmd.NewFake(), hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityOK, finding.Severity)
}

func TestSSLCertificatesCheckUnreachableDomain(t *testing.T) {
	cfg := &config.Config{
		SSL: config.SSL{
			// Reserved TEST-NET address: the handshake fails fast and the
			// openssl fallback has no canned response either.
			Domains:      []string{"203.0.113.1"},
			WarningDays:  14,
			CriticalDays: 7,
		},
	}

	c := NewSSLCertificatesCheck(cfg, execcmd.NewFake(), hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	// An uncheckable certificate is reported, not escalated.
	assert.Equal(t, SeverityOK, finding.Severity)
	require.NotEmpty(t, finding.Details)
	assert.Contains(t, finding.Details[0], "could not check certificate")
}

func TestParseOpenSSLExpiry(t *testing.T) {
	expiry, err := parseOpenSSLExpiry("notAfter=Jun 15 12:00:00 2024 GMT\n", "example.com")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC), expiry.UTC())

	_, err = parseOpenSSLExpiry("unexpected output", "example.com")
	assert.Error(t, err)
}

func TestSSLCertificatesSeverityThresholds(t *testing.T) {
	base := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		daysLeft int
		expected Severity
	}{
		{"plenty of time", 60, SeverityOK},
		{"inside warning window", 10, SeverityWarning},
		{"inside critical window", 3, SeverityCritical},
		{"already expired", -2, SeverityCritical},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expiry := base.AddDate(0, 0, tc.daysLeft)
			fake := execcmd.NewFake().
				On("openssl s_client -servername cert.test -connect cert.test:443 -showcerts",
					execcmd.Result{ExitCode: 0, Stdout: "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"}).
				On("openssl x509 -noout -enddate",
					execcmd.Result{ExitCode: 0, Stdout: "notAfter=" + expiry.Format("Jan 2 15:04:05 2006 MST") + "\n"})

			cfg := &config.Config{
				SSL: config.SSL{Domains: []string{"cert.test"}, WarningDays: 14, CriticalDays: 7},
			}
			c := &SSLCertificatesCheck{cfg: cfg, runner: fake, logger: hclog.NewNullLogger(), now: func() time.Time { return base }}

			finding, err := c.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.expected, finding.Severity, "days left: %d", tc.daysLeft)
		})
	}
}
