package remediation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-amazing/vps-sentinel/internal/check"
	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/internal/journal"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

func sshHandler(t *testing.T, configContent string, fake *execcmd.Fake) (*SSHConfigHandler, string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sshd_config")
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o644))

	backupDir := t.TempDir()
	jrnl, err := journal.New(backupDir, 10, hclog.NewNullLogger())
	require.NoError(t, err)
	h := &SSHConfigHandler{
		cfg: &config.Config{
			SSH: config.SSH{
				ConfigPath: path,
				Requirements: map[string]string{
					"PasswordAuthentication": "no",
					"PermitRootLogin":        "no",
				},
			},
		},
		journal: jrnl,
		runner:  fake,
		logger:  hclog.NewNullLogger(),
	}
	return h, path, backupDir
}

func TestSSHFixRewritesAndRestarts(t *testing.T) {
	fake := execcmd.NewFake().
		On("sshd -t", execcmd.Result{ExitCode: 0}).
		On("systemctl restart sshd", execcmd.Result{ExitCode: 0})

	h, path, _ := sshHandler(t, "PasswordAuthentication yes\n#PermitRootLogin prohibit-password\n", fake)
	outcome := h.Apply(context.Background(), check.Finding{FixAction: "fix_ssh_config"})

	require.True(t, outcome.Success, "outcome: %+v", outcome)
	assert.NotEmpty(t, outcome.RollbackID)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "PasswordAuthentication no")
	assert.Contains(t, string(updated), "PermitRootLogin no")
	assert.NotContains(t, string(updated), "PasswordAuthentication yes")
	assert.Equal(t, 1, fake.CallCount("systemctl restart sshd"))
}

func TestSSHFixAlreadySecureIsNoOp(t *testing.T) {
	fake := execcmd.NewFake()
	h, path, backupDir := sshHandler(t, "PasswordAuthentication no\nPermitRootLogin no\n", fake)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	outcome := h.Apply(context.Background(), check.Finding{FixAction: "fix_ssh_config"})

	assert.True(t, outcome.Success)
	assert.Empty(t, outcome.RollbackID)
	// Nothing executed, nothing journaled, nothing rewritten.
	assert.Empty(t, fake.Calls)
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a no-op fix must not create a session file or backups")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSSHFixRestoresOnValidationFailure(t *testing.T) {
	fake := execcmd.NewFake().
		On("sshd -t", execcmd.Result{ExitCode: 1, Stderr: "Bad configuration option"})

	original := "PasswordAuthentication yes\n"
	h, path, _ := sshHandler(t, original, fake)
	outcome := h.Apply(context.Background(), check.Finding{FixAction: "fix_ssh_config"})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Err, "validation failed")

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(restored))
	// sshd was never restarted with a broken config.
	assert.Zero(t, fake.CallCount("systemctl restart sshd"))
	assert.Zero(t, fake.CallCount("systemctl restart ssh"))
}

func TestSSHFixRestoresAndRestartsAgainOnRestartFailure(t *testing.T) {
	fake := execcmd.NewFake().
		On("sshd -t", execcmd.Result{ExitCode: 0})
	// Every restart attempt fails; the handler must still restore the
	// original text and try to bring sshd back with it.

	original := "PasswordAuthentication yes\nPermitRootLogin yes\n"
	h, path, _ := sshHandler(t, original, fake)
	outcome := h.Apply(context.Background(), check.Finding{FixAction: "fix_ssh_config"})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Err, "restart failed")

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(restored), "original config must be restored byte for byte")

	// Two full restart rounds: one with the new config, one after restore.
	assert.Equal(t, 2, fake.CallCount("systemctl restart sshd"))
}

func TestSSHFixRestartFallsBackThroughServiceNames(t *testing.T) {
	fake := execcmd.NewFake().
		On("sshd -t", execcmd.Result{ExitCode: 0}).
		On("systemctl restart sshd", execcmd.Result{ExitCode: 1, Stderr: "Unit sshd.service not found"}).
		On("systemctl restart ssh", execcmd.Result{ExitCode: 0})

	h, _, _ := sshHandler(t, "PasswordAuthentication yes\n", fake)
	outcome := h.Apply(context.Background(), check.Finding{FixAction: "fix_ssh_config"})

	assert.True(t, outcome.Success)
	assert.Equal(t, 1, fake.CallCount("systemctl restart ssh"))
}

func TestApplyRequiredSettings(t *testing.T) {
	content := `# sshd_config
#PasswordAuthentication yes
PermitRootLogin prohibit-password
MaxAuthTries 6
`
	updated, changed := applyRequiredSettings(content, map[string]string{
		"PasswordAuthentication": "no",
		"PermitRootLogin":        "no",
		"MaxAuthTries":           "3",
		"X11Forwarding":          "no",
	})

	assert.Len(t, changed, 4)
	assert.Contains(t, updated, "PasswordAuthentication no")
	assert.Contains(t, updated, "PermitRootLogin no")
	assert.Contains(t, updated, "MaxAuthTries 3")
	// Missing directives are appended.
	assert.Contains(t, updated, "X11Forwarding no")
	assert.NotContains(t, updated, "prohibit-password")
}

func TestApplyRequiredSettingsNoChangesWhenSecure(t *testing.T) {
	content := "PasswordAuthentication no\nPermitRootLogin no\n"
	updated, changed := applyRequiredSettings(content, map[string]string{
		"PasswordAuthentication": "no",
		"PermitRootLogin":        "no",
	})

	assert.Empty(t, changed)
	assert.Equal(t, content, updated)
}
