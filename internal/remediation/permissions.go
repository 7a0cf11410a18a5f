package remediation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/journal"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// PermissionHandler tightens secret files to the configured maximum mode.
// Idempotent: a file already at the target mode is skipped and produces no
// journal record.
type PermissionHandler struct {
	cfg     *config.Config
	journal *journal.Journal
	logger  hclog.Logger
}

func (h *PermissionHandler) Apply(_ context.Context, finding check.Finding) Outcome {
	const action = "Fix secret file permissions"

	var paths []string
	if finding.Payload != nil {
		paths = finding.Payload.Files
	}
	if len(paths) == 0 {
		return success(action, []string{"No files to fix"}, "")
	}

	targetMode, err := config.ParseOctalMode(h.cfg.FilePerms.MaxMode)
	if err != nil {
		return failure(action, fmt.Sprintf("invalid max_mode in config: %v", err), nil)
	}

	var fixedDetails []string
	var errs []string
	changes := 0

	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("file not found: %s", path))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("cannot stat %s: %v", path, err))
			continue
		}

		currentMode := info.Mode().Perm()
		// A mode at or tighter than the target is left alone; tightening must
		// never loosen.
		if currentMode&^targetMode == 0 {
			fixedDetails = append(fixedDetails, fmt.Sprintf("%s: already at %03o or tighter", path, currentMode))
			continue
		}

		// Record before chmod so the mutation is always undoable.
		h.journal.RecordPermissionChange(path,
			fmt.Sprintf("%03o", currentMode), fmt.Sprintf("%03o", targetMode))

		if err := os.Chmod(path, targetMode); err != nil {
			if os.IsPermission(err) {
				errs = append(errs, fmt.Sprintf("permission denied: %s", path))
			} else {
				errs = append(errs, fmt.Sprintf("error fixing %s: %v", path, err))
			}
			continue
		}

		changes++
		fixedDetails = append(fixedDetails, fmt.Sprintf("%s: %03o -> %03o", path, currentMode, targetMode))
		h.logger.Info("tightened file permissions", "path", path,
			"from", fmt.Sprintf("%03o", currentMode), "to", fmt.Sprintf("%03o", targetMode))
	}

	if len(errs) > 0 && changes == 0 {
		return failure(action, strings.Join(errs, "; "), fixedDetails)
	}

	if len(errs) > 0 {
		// Partial success still counts as fixed; the leftover errors ride
		// along in the details.
		details := fixedDetails
		for _, e := range errs {
			details = append(details, "ERROR: "+e)
		}
		return success(fmt.Sprintf("Fixed %d file(s), %d error(s)", changes, len(errs)),
			details, h.journal.SessionID())
	}

	if changes == 0 {
		return success(action, fixedDetails, "")
	}
	return success(fmt.Sprintf("Fixed permissions on %d file(s)", changes), fixedDetails, h.journal.SessionID())
}
