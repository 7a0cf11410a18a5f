package check

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// PackageUpdatesCheck reports pending apt updates, highlighting security
// and kernel packages. Updates are never applied automatically.
type PackageUpdatesCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger
}

// NewPackageUpdatesCheck creates the package updates check.
func NewPackageUpdatesCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &PackageUpdatesCheck{cfg: cfg, runner: runner, logger: logger}
}

func (c *PackageUpdatesCheck) Name() string { return "package-updates" }

func (c *PackageUpdatesCheck) Run(ctx context.Context) (Finding, error) {
	// Refresh the package index first; failure here is tolerable, the
	// upgradable list is just staler.
	if res := c.runner.Run(ctx, "apt", "update", "-qq"); res.Failed() {
		c.logger.Debug("apt update failed", "stderr", res.Stderr)
	}

	res := c.runner.Run(ctx, "apt", "list", "--upgradable")
	if res.Failed() {
		return infoFinding(c.Name(),
			"Could not check for package updates",
			[]string{"apt command failed or not available"}), nil
	}

	var packages []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Listing") {
			continue
		}
		packages = append(packages, line)
	}

	if len(packages) == 0 {
		return okFinding(c.Name(),
			"System packages are up to date",
			"No pending updates",
		), nil
	}

	var security, kernel []string
	for _, pkg := range packages {
		lower := strings.ToLower(pkg)
		switch {
		case strings.Contains(lower, "security") || strings.Contains(pkg, "CVE"):
			security = append(security, pkg)
		case strings.Contains(lower, "linux-image") || strings.Contains(lower, "linux-headers"):
			kernel = append(kernel, pkg)
		}
	}

	details := []string{fmt.Sprintf("Total packages to update: %d", len(packages))}
	if len(security) > 0 {
		details = append(details, fmt.Sprintf("Security updates: %d", len(security)))
		for i, pkg := range security {
			if i == 5 {
				details = append(details, fmt.Sprintf("  ... and %d more security updates", len(security)-5))
				break
			}
			details = append(details, "  - "+packageName(pkg))
		}
	}
	if len(kernel) > 0 {
		details = append(details, fmt.Sprintf("Kernel updates: %d", len(kernel)))
	}
	details = append(details,
		"To update all packages: apt update && apt upgrade -y")

	if len(security) > 0 {
		return warningFinding(c.Name(),
			fmt.Sprintf("%d security update(s) available", len(security)), details), nil
	}
	return infoFinding(c.Name(),
		fmt.Sprintf("%d package update(s) available", len(packages)), details), nil
}

// packageName strips the "pkg/source version" apt list format down to the
// package name.
func packageName(aptLine string) string {
	if idx := strings.Index(aptLine, "/"); idx > 0 {
		return aptLine[:idx]
	}
	return aptLine
}
