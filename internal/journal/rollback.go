package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
	"github.com/just-amazing/vps-sentinel/pkg/shared/files"
)

// SessionInfo summarizes one stored session for listing.
type SessionInfo struct {
	ID          string
	Created     time.Time
	ChangeCount int
}

// ListSessions returns every stored session newest-first.
func ListSessions(backupDir string) ([]SessionInfo, error) {
	ids, err := sessionIDsOldestFirst(backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sessions := make([]SessionInfo, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		data, err := readSessionFile(backupDir, ids[i])
		if err != nil {
			// A corrupt session file should not hide the others.
			sessions = append(sessions, SessionInfo{ID: ids[i]})
			continue
		}
		sessions = append(sessions, SessionInfo{
			ID:          data.SessionID,
			Created:     data.Created,
			ChangeCount: len(data.Changes),
		})
	}
	return sessions, nil
}

// RollbackResult aggregates the outcome of replaying one session in
// reverse. Errors on one record never stop attempts on the rest.
type RollbackResult struct {
	SessionID    string
	RolledBack   []string
	ManualReview []string
	Errors       []string
}

// Success reports whether the session was fully rolled back.
func (r RollbackResult) Success() bool {
	return len(r.Errors) == 0
}

// Rollback replays the named session's change records in reverse
// chronological order, restoring the pre-session state for every record
// type that declares itself reversible.
func Rollback(backupDir, sessionID string, logger hclog.Logger) (RollbackResult, error) {
	result := RollbackResult{SessionID: sessionID}

	data, err := readSessionFile(backupDir, sessionID)
	if os.IsNotExist(err) {
		return result, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return result, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	for i := len(data.Changes) - 1; i >= 0; i-- {
		change := data.Changes[i]
		switch change.Type {
		case ChangePermission:
			if err := restorePermission(change); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.RolledBack = append(result.RolledBack,
				fmt.Sprintf("Restored mode %s on %s", change.OriginalMode, change.Path))

		case ChangeFile:
			if err := restoreFile(change); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.RolledBack = append(result.RolledBack,
				fmt.Sprintf("Restored file %s", change.Path))

		case ChangeFirewall:
			// Replaying rule deltas against a live firewall is not safe to
			// automate; hand the operator the saved listing instead.
			result.ManualReview = append(result.ManualReview,
				fmt.Sprintf("Firewall change %q requires manual review; prior rules saved at %s",
					change.Action, change.BackupFile))

		case ChangeCommand:
			result.ManualReview = append(result.ManualReview,
				fmt.Sprintf("Command %q (%s) has no automated undo; review manually",
					change.Command, change.Description))

		default:
			result.Errors = append(result.Errors,
				fmt.Sprintf("unknown change type %q at record %d", change.Type, i))
		}
	}

	logger.Info("rollback finished",
		"session", sessionID,
		"rolled_back", len(result.RolledBack),
		"manual_review", len(result.ManualReview),
		"errors", len(result.Errors))
	return result, nil
}

func restorePermission(change Change) error {
	mode, err := config.ParseOctalMode(change.OriginalMode)
	if err != nil {
		return fmt.Errorf("record for %s has invalid original mode %q", change.Path, change.OriginalMode)
	}
	if err := os.Chmod(change.Path, mode); err != nil {
		return fmt.Errorf("restore mode on %s: %v", change.Path, err)
	}
	return nil
}

func restoreFile(change Change) error {
	if change.BackupFile == "" {
		return fmt.Errorf("record for %s has no backup file", change.Path)
	}
	if err := files.ValidatePath(change.BackupFile); err != nil {
		return fmt.Errorf("backup for %s unusable: %v", change.Path, err)
	}
	if err := files.Copy(change.BackupFile, change.Path); err != nil {
		return fmt.Errorf("restore %s: %v", change.Path, err)
	}
	return nil
}

func readSessionFile(backupDir, sessionID string) (sessionFile, error) {
	var data sessionFile
	raw, err := os.ReadFile(filepath.Join(backupDir, "session_"+sessionID+".json"))
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("corrupt session file: %w", err)
	}
	return data, nil
}
