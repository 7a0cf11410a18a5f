// Package journal is the durable, append-only record of every
// state-changing action the remediation handlers perform. Each process
// invocation owns one session; the session file is rewritten atomically
// after every single change append so a crash mid-run loses at most the
// change in flight.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/pkg/shared/files"
)

// ChangeType discriminates the undo strategy for a recorded change.
type ChangeType string

const (
	// ChangePermission records a chmod; fully reversible.
	ChangePermission ChangeType = "permission"
	// ChangeFile records a file content rewrite; fully reversible via the
	// saved backup copy.
	ChangeFile ChangeType = "file"
	// ChangeFirewall records a firewall rule-set mutation. Best effort:
	// rollback surfaces the saved rule listing for manual review.
	ChangeFirewall ChangeType = "firewall"
	// ChangeCommand records a command execution for the audit trail.
	// Not reversible.
	ChangeCommand ChangeType = "command"
)

// Change is one write-once journal record, carrying enough data to undo
// the mutation it precedes.
type Change struct {
	Type         ChangeType `json:"type"`
	Path         string     `json:"path,omitempty"`
	OriginalMode string     `json:"original_mode,omitempty"`
	NewMode      string     `json:"new_mode,omitempty"`
	BackupFile   string     `json:"backup_file,omitempty"`
	Action       string     `json:"action,omitempty"`
	Command      string     `json:"command,omitempty"`
	Description  string     `json:"description,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

type sessionFile struct {
	SessionID string    `json:"session_id"`
	Created   time.Time `json:"created"`
	Changes   []Change  `json:"changes"`
}

// Journal owns the current run's session. The session identifier is fixed
// at construction; the session file materializes on the first append.
type Journal struct {
	backupDir   string
	maxSessions int
	sessionID   string
	created     time.Time
	changes     []Change
	persistErr  error
	logger      hclog.Logger
}

// New prepares a journal rooted at backupDir, evicting the oldest sessions
// (with their backup artifacts) so that at most maxSessions remain once the
// current run's session is counted.
func New(backupDir string, maxSessions int, logger hclog.Logger) (*Journal, error) {
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir %q: %w", backupDir, err)
	}

	now := time.Now()
	j := &Journal{
		backupDir:   backupDir,
		maxSessions: maxSessions,
		sessionID:   now.Format("20060102_150405"),
		created:     now,
		logger:      logger,
	}
	j.evictOldSessions()
	return j, nil
}

// SessionID returns the identifier of the current run's session.
func (j *Journal) SessionID() string {
	return j.sessionID
}

// PersistFailed reports whether any session write has failed. Once true,
// the dispatcher stops applying further automatic remediations: a mutation
// the journal cannot record is a mutation the operator cannot undo.
func (j *Journal) PersistFailed() bool {
	return j.persistErr != nil
}

// RecordFileChange saves originalContent as a backup artifact and appends a
// file-content change record. Callers must invoke this before rewriting the
// file at path. A backup write failure is returned as an error because no
// undo copy exists; the caller must abort its mutation.
func (j *Journal) RecordFileChange(path, originalContent string) error {
	backupPath := j.artifactPath("backup", filepath.Base(path))
	if err := os.WriteFile(backupPath, []byte(originalContent), 0o600); err != nil {
		return fmt.Errorf("write backup of %q: %w", path, err)
	}

	j.append(Change{
		Type:       ChangeFile,
		Path:       path,
		BackupFile: backupPath,
		Timestamp:  time.Now(),
	})
	return nil
}

// RecordPermissionChange appends a permission change record. Callers must
// invoke this before chmodding path.
func (j *Journal) RecordPermissionChange(path, originalMode, newMode string) {
	j.append(Change{
		Type:         ChangePermission,
		Path:         path,
		OriginalMode: originalMode,
		NewMode:      newMode,
		Timestamp:    time.Now(),
	})
}

// RecordFirewallChange saves the prior rule listing as a backup artifact
// and appends a firewall change record. Rollback of this type is manual
// review, not automated replay.
func (j *Journal) RecordFirewallChange(action, rulesBefore string) error {
	backupPath := j.artifactPath("ufw_backup", "rules.txt")
	if err := os.WriteFile(backupPath, []byte(rulesBefore), 0o600); err != nil {
		return fmt.Errorf("write firewall rule backup: %w", err)
	}

	j.append(Change{
		Type:       ChangeFirewall,
		Action:     action,
		BackupFile: backupPath,
		Timestamp:  time.Now(),
	})
	return nil
}

// RecordCommand appends an informational command record for the audit
// trail. Not reversible.
func (j *Journal) RecordCommand(command, description string) {
	j.append(Change{
		Type:        ChangeCommand,
		Command:     command,
		Description: description,
		Timestamp:   time.Now(),
	})
}

// append adds the change and persists the session file immediately. A
// persistence failure is remembered (PersistFailed) but the in-memory
// record is kept so the remediation can still report its true outcome.
func (j *Journal) append(change Change) {
	j.changes = append(j.changes, change)
	if err := j.save(); err != nil {
		j.persistErr = err
		j.logger.Error("failed to persist session file; halting further automatic remediation",
			"session", j.sessionID, "error", err)
	}
}

func (j *Journal) save() error {
	data, err := json.MarshalIndent(sessionFile{
		SessionID: j.sessionID,
		Created:   j.created,
		Changes:   j.changes,
	}, "", "  ")
	if err != nil {
		return err
	}
	return files.WriteFileAtomic(j.sessionPath(j.sessionID), data, 0o600)
}

func (j *Journal) sessionPath(sessionID string) string {
	return filepath.Join(j.backupDir, "session_"+sessionID+".json")
}

// artifactPath builds a backup artifact name tied to the current session.
// The uuid fragment keeps two backups of files sharing a basename apart.
func (j *Journal) artifactPath(prefix, basename string) string {
	frag := strings.Split(uuid.New().String(), "-")[0]
	return filepath.Join(j.backupDir, fmt.Sprintf("%s_%s_%s_%s", prefix, j.sessionID, frag, basename))
}

// evictOldSessions removes the oldest session files together with every
// backup artifact carrying their session identifier, keeping one slot free
// for the session this run will create. Eviction trouble is logged, never
// fatal; a full disk of backups must not block a scan.
func (j *Journal) evictOldSessions() {
	ids, err := sessionIDsOldestFirst(j.backupDir)
	if err != nil {
		j.logger.Warn("could not list sessions for eviction", "error", err)
		return
	}

	for len(ids) >= j.maxSessions {
		oldest := ids[0]
		ids = ids[1:]

		if err := os.Remove(j.sessionPath(oldest)); err != nil {
			j.logger.Warn("could not remove old session file", "session", oldest, "error", err)
			continue
		}
		removeSessionArtifacts(j.backupDir, oldest, j.logger)
		j.logger.Info("evicted old backup session", "session", oldest)
	}
}

// removeSessionArtifacts deletes every non-session file in backupDir whose
// name embeds the given session identifier, so eviction never leaves
// orphaned backups behind.
func removeSessionArtifacts(backupDir, sessionID string, logger hclog.Logger) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		logger.Warn("could not scan backup dir for artifacts", "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "session_") {
			continue
		}
		if strings.Contains(name, "_"+sessionID+"_") || strings.HasSuffix(name, "_"+sessionID) {
			if err := os.Remove(filepath.Join(backupDir, name)); err != nil {
				logger.Warn("could not remove backup artifact", "artifact", name, "error", err)
			}
		}
	}
}

func sessionIDsOldestFirst(backupDir string) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "session_"), ".json"))
	}
	// Session identifiers are zero-padded timestamps, so the
	// lexicographic order is the chronological order.
	sort.Strings(ids)
	return ids, nil
}
