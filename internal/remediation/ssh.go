package remediation

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/internal/journal"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// SSHConfigHandler forces the configured hardening directives into
// sshd_config. The daemon is never restarted with an unvalidated
// configuration, and a failed restart restores the original text and
// restarts again so the service stays reachable.
type SSHConfigHandler struct {
	cfg     *config.Config
	journal *journal.Journal
	runner  execcmd.Runner
	logger  hclog.Logger
}

func (h *SSHConfigHandler) Apply(ctx context.Context, _ check.Finding) Outcome {
	const action = "Fix SSH configuration"
	path := h.cfg.SSH.ConfigPath

	original, err := os.ReadFile(path)
	if os.IsPermission(err) {
		return failure(action, "permission denied reading sshd config - must run as root", nil)
	}
	if err != nil {
		return failure(action, fmt.Sprintf("cannot read sshd config: %v", err), nil)
	}

	updated, changed := applyRequiredSettings(string(original), h.cfg.SSH.Requirements)
	if len(changed) == 0 {
		return success(action, []string{"SSH configuration already secure"}, "")
	}

	// Snapshot the full original text before touching the file.
	if err := h.journal.RecordFileChange(path, string(original)); err != nil {
		return failure(action, fmt.Sprintf("could not record undo backup: %v", err), nil)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(updated), mode); err != nil {
		return failure(action, fmt.Sprintf("cannot write sshd config: %v", err), changed)
	}
	h.logger.Info("updated sshd config", "path", path, "changes", len(changed))

	// sshd's own syntax validator is the gate before any restart.
	if res := h.runner.Run(ctx, "sshd", "-t"); res.Failed() {
		h.restoreOriginal(path, original, mode)
		return failure(action,
			fmt.Sprintf("config validation failed, original restored: %s", strings.TrimSpace(res.Stderr)),
			changed)
	}

	if ok, msg := h.restartSSHD(ctx); !ok {
		h.restoreOriginal(path, original, mode)
		// Second restart attempt with the known-good original config to
		// recover service availability.
		if recovered, _ := h.restartSSHD(ctx); !recovered {
			h.logger.Error("sshd did not recover after restore; manual intervention required")
		}
		return failure(action,
			fmt.Sprintf("sshd restart failed, original restored: %s", msg), changed)
	}

	details := append(changed, "sshd restarted successfully")
	return success(fmt.Sprintf("Fixed SSH security (%d setting(s))", len(changed)), details, h.journal.SessionID())
}

func (h *SSHConfigHandler) restoreOriginal(path string, original []byte, mode os.FileMode) {
	if err := os.WriteFile(path, original, mode); err != nil {
		// Restoration is best effort; its failure is logged, never looped.
		h.logger.Error("failed to restore original sshd config", "path", path, "error", err)
	}
}

// restartSSHD tries the systemctl unit names first, then legacy service
// scripts. The unit name differs between Debian and RHEL families.
func (h *SSHConfigHandler) restartSSHD(ctx context.Context) (bool, string) {
	attempts := [][]string{
		{"systemctl", "restart", "sshd"},
		{"systemctl", "restart", "ssh"},
		{"service", "sshd", "restart"},
		{"service", "ssh", "restart"},
	}
	var lastErr string
	for _, attempt := range attempts {
		res := h.runner.Run(ctx, attempt[0], attempt[1:]...)
		if !res.Failed() {
			return true, ""
		}
		lastErr = strings.TrimSpace(res.Stderr)
	}
	if lastErr == "" {
		lastErr = "failed to restart sshd"
	}
	return false, lastErr
}

// applyRequiredSettings rewrites content so each directive carries its
// required value: an existing directive line (commented or not) is replaced
// in place, a missing one is appended. Directives already at their secure
// value are left untouched and not reported as changes.
func applyRequiredSettings(content string, requirements map[string]string) (string, []string) {
	directives := make([]string, 0, len(requirements))
	for directive := range requirements {
		directives = append(directives, directive)
	}
	sort.Strings(directives)

	var changed []string
	for _, directive := range directives {
		value := requirements[directive]

		correct := regexp.MustCompile(`(?mi)^` + regexp.QuoteMeta(directive) + `\s+` + regexp.QuoteMeta(value) + `\s*$`)
		if correct.MatchString(content) {
			continue
		}

		replacement := directive + " " + value
		existing := regexp.MustCompile(`(?mi)^#?\s*` + regexp.QuoteMeta(directive) + `\s+\S+.*$`)
		if existing.MatchString(content) {
			content = existing.ReplaceAllString(content, replacement)
		} else {
			if !strings.HasSuffix(content, "\n") {
				content += "\n"
			}
			content += fmt.Sprintf("\n# Added by vps-sentinel (%s)\n%s\n",
				time.Now().Format("2006-01-02 15:04"), replacement)
		}
		changed = append(changed, directive+" = "+value)
	}
	return content, changed
}
