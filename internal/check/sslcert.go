package check

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// SSLCertificatesCheck monitors TLS certificate expiry for the configured
// domains via a live handshake, falling back to the openssl CLI when the
// handshake fails (e.g. legacy TLS stacks).
type SSLCertificatesCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewSSLCertificatesCheck creates the certificate expiry check.
func NewSSLCertificatesCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &SSLCertificatesCheck{cfg: cfg, runner: runner, logger: logger, now: time.Now}
}

func (c *SSLCertificatesCheck) Name() string { return "ssl-certificates" }

func (c *SSLCertificatesCheck) Run(ctx context.Context) (Finding, error) {
	domains := c.cfg.SSL.Domains
	if len(domains) == 0 {
		return okFinding(c.Name(),
			"No SSL domains configured to monitor",
			"Add domains under ssl.domains in the config file",
		), nil
	}

	var details []string
	criticalCount := 0
	warningCount := 0
	okCount := 0

	for _, domain := range domains {
		expiry, err := c.certExpiry(ctx, domain)
		if err != nil {
			details = append(details, fmt.Sprintf("%s: could not check certificate (%v)", domain, err))
			continue
		}

		daysLeft := int(expiry.Sub(c.now()).Hours() / 24)
		switch {
		case daysLeft <= 0:
			criticalCount++
			details = append(details, fmt.Sprintf("%s: EXPIRED %d day(s) ago", domain, -daysLeft))
		case daysLeft <= c.cfg.SSL.CriticalDays:
			criticalCount++
			details = append(details, fmt.Sprintf("%s: CRITICAL - expires in %d day(s)", domain, daysLeft))
		case daysLeft <= c.cfg.SSL.WarningDays:
			warningCount++
			details = append(details, fmt.Sprintf("%s: WARNING - expires in %d day(s)", domain, daysLeft))
		default:
			okCount++
			details = append(details, fmt.Sprintf("%s: OK - expires in %d day(s)", domain, daysLeft))
		}
	}

	switch {
	case criticalCount > 0:
		details = append(details, "Renew with: certbot renew")
		return criticalFinding(c.Name(),
			fmt.Sprintf("SSL certificates expiring soon: %d", criticalCount), details), nil
	case warningCount > 0:
		details = append(details, "Consider renewing soon: certbot renew")
		return warningFinding(c.Name(),
			fmt.Sprintf("SSL certificates expiring within %d days: %d", c.cfg.SSL.WarningDays, warningCount), details), nil
	default:
		return okFinding(c.Name(),
			fmt.Sprintf("All %d SSL certificate(s) valid", okCount), details...), nil
	}
}

func (c *SSLCertificatesCheck) certExpiry(ctx context.Context, domain string) (time.Time, error) {
	expiry, err := c.certExpiryTLS(ctx, domain)
	if err == nil {
		return expiry, nil
	}
	c.logger.Debug("TLS handshake failed, trying openssl fallback", "domain", domain, "error", err)
	return c.certExpiryOpenSSL(ctx, domain)
}

func (c *SSLCertificatesCheck) certExpiryTLS(ctx context.Context, domain string) (time.Time, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(domain, "443"), &tls.Config{
		ServerName: domain,
	})
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, fmt.Errorf("no peer certificates presented by %s", domain)
	}
	return certs[0].NotAfter, nil
}

func (c *SSLCertificatesCheck) certExpiryOpenSSL(ctx context.Context, domain string) (time.Time, error) {
	res := c.runner.Run(ctx, "openssl", "s_client",
		"-servername", domain, "-connect", domain+":443", "-showcerts")
	if res.Failed() {
		return time.Time{}, fmt.Errorf("openssl s_client failed: %s", strings.TrimSpace(res.Stderr))
	}

	// Pull the leaf certificate out of the handshake transcript and ask
	// openssl for its notAfter date.
	const beginMarker = "-----BEGIN CERTIFICATE-----"
	const endMarker = "-----END CERTIFICATE-----"
	begin := strings.Index(res.Stdout, beginMarker)
	end := strings.Index(res.Stdout, endMarker)
	if begin < 0 || end < 0 {
		return time.Time{}, fmt.Errorf("no certificate in openssl output for %s", domain)
	}
	pem := res.Stdout[begin : end+len(endMarker)]

	enddate := c.runner.RunWithInput(ctx, pem, "openssl", "x509", "-noout", "-enddate")
	if enddate.Failed() {
		return time.Time{}, fmt.Errorf("openssl x509 failed: %s", strings.TrimSpace(enddate.Stderr))
	}
	return parseOpenSSLExpiry(enddate.Stdout, domain)
}

// parseOpenSSLExpiry extracts "notAfter=..." from openssl output.
func parseOpenSSLExpiry(output, domain string) (time.Time, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "notAfter=") {
			// Format: "Jun 15 12:00:00 2024 GMT"
			return time.Parse("Jan 2 15:04:05 2006 MST", strings.TrimPrefix(line, "notAfter="))
		}
	}
	return time.Time{}, fmt.Errorf("no notAfter in openssl output for %s", domain)
}
