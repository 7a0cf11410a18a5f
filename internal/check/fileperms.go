package check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// FilePermissionsCheck audits .env files and configured sensitive files for
// modes looser than allowed, and looks for world-writable files under /opt.
type FilePermissionsCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger
}

// NewFilePermissionsCheck creates the file permissions check.
func NewFilePermissionsCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &FilePermissionsCheck{cfg: cfg, runner: runner, logger: logger}
}

func (c *FilePermissionsCheck) Name() string { return "file-permissions" }

func (c *FilePermissionsCheck) Run(ctx context.Context) (Finding, error) {
	maxMode, err := config.ParseOctalMode(c.cfg.FilePerms.MaxMode)
	if err != nil {
		return Finding{}, fmt.Errorf("invalid max_mode: %w", err)
	}

	var issues []string
	var fixable []string

	var candidates []string
	for _, project := range c.cfg.Projects {
		if project.Path == "" {
			continue
		}
		candidates = append(candidates, filepath.Join(project.Path, ".env"))
	}
	candidates = append(candidates, c.cfg.FilePerms.SensitiveFiles...)

	for _, path := range candidates {
		issue, isFixable := c.checkFile(path, maxMode)
		if issue != "" {
			issues = append(issues, issue)
			if isFixable {
				fixable = append(fixable, path)
			}
		}
	}

	if worldWritable := c.findWorldWritable(ctx, "/opt", 50); len(worldWritable) > 0 {
		issues = append(issues, fmt.Sprintf("Found %d world-writable file(s) in /opt:", len(worldWritable)))
		for i, f := range worldWritable {
			if i == 10 {
				issues = append(issues, fmt.Sprintf("  ... and %d more", len(worldWritable)-10))
				break
			}
			issues = append(issues, "  "+f)
		}
	}

	if len(issues) > 0 {
		f := warningFinding(c.Name(),
			fmt.Sprintf("File permission issues found: %d", len(issues)), issues)
		if len(fixable) > 0 {
			f.AutoFixable = true
			f.FixAction = "fix_env_permissions"
			f.Payload = &FixData{Files: fixable}
		}
		return f, nil
	}

	return okFinding(c.Name(),
		"All file permissions are correct",
		fmt.Sprintf("All secret files at mode %s or tighter", c.cfg.FilePerms.MaxMode),
		"No world-writable files in /opt",
	), nil
}

// checkFile returns a non-empty issue string when path exists and is more
// permissive than maxMode. The second return reports whether the issue can
// be fixed by tightening the mode.
func (c *FilePermissionsCheck) checkFile(path string, maxMode os.FileMode) (string, bool) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		return fmt.Sprintf("%s - cannot check permissions: %v", path, err), false
	}

	mode := info.Mode().Perm()
	// Any bit set beyond the allowed mask means the file is too open.
	if mode&^maxMode != 0 {
		return fmt.Sprintf("%s has mode %03o (should be %03o or more restrictive)", path, mode, maxMode), true
	}
	return "", false
}

func (c *FilePermissionsCheck) findWorldWritable(ctx context.Context, dir string, limit int) []string {
	res := c.runner.Run(ctx, "find", dir, "-type", "f", "-perm", "-0002")
	if res.Failed() {
		c.logger.Debug("world-writable scan failed", "dir", dir, "stderr", res.Stderr)
		return nil
	}

	var found []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		found = append(found, line)
		if len(found) >= limit {
			break
		}
	}
	return found
}
