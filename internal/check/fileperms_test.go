package check

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

func TestFilePermissionsCheckFlagsLooseEnvFile(t *testing.T) {
	projectDir := t.TempDir()
	envPath := filepath.Join(projectDir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("SECRET=x\n"), 0o644))

	fake := execcmd.NewFake().
		On("find /opt -type f -perm -0002", execcmd.Result{ExitCode: 0, Stdout: ""})

	cfg := &config.Config{
		FilePerms: config.FilePerms{MaxMode: "600"},
		Projects:  []config.Project{{Name: "app", Path: projectDir}},
	}
	c := NewFilePermissionsCheck(cfg, fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityWarning, finding.Severity)
	assert.True(t, finding.AutoFixable)
	assert.Equal(t, "fix_env_permissions", finding.FixAction)
	require.NotNil(t, finding.Payload)
	assert.Equal(t, []string{envPath}, finding.Payload.Files)
}

func TestFilePermissionsCheckTightFileIsClean(t *testing.T) {
	projectDir := t.TempDir()
	envPath := filepath.Join(projectDir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("SECRET=x\n"), 0o600))

	fake := execcmd.NewFake().
		On("find /opt -type f -perm -0002", execcmd.Result{ExitCode: 0, Stdout: ""})

	cfg := &config.Config{
		FilePerms: config.FilePerms{MaxMode: "600"},
		Projects:  []config.Project{{Name: "app", Path: projectDir}},
	}
	c := NewFilePermissionsCheck(cfg, fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityOK, finding.Severity)
}

func TestFilePermissionsCheckMissingFileIgnored(t *testing.T) {
	fake := execcmd.NewFake().
		On("find /opt -type f -perm -0002", execcmd.Result{ExitCode: 0, Stdout: ""})

	cfg := &config.Config{
		FilePerms: config.FilePerms{
			MaxMode:        "600",
			SensitiveFiles: []string{filepath.Join(t.TempDir(), "absent.key")},
		},
	}
	c := NewFilePermissionsCheck(cfg, fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeverityOK, finding.Severity)
}

func TestFilePermissionsCheckWorldWritableNotFixable(t *testing.T) {
	fake := execcmd.NewFake().
		On("find /opt -type f -perm -0002", execcmd.Result{
			ExitCode: 0,
			Stdout:   "/opt/app/cache.tmp\n/opt/app/upload.bin\n",
		})

	cfg := &config.Config{FilePerms: config.FilePerms{MaxMode: "600"}}
	c := NewFilePermissionsCheck(cfg, fake, hclog.NewNullLogger())
	finding, err := c.Run(context.Background())
	require.NoError(t, err)

	// World-writable files need a human decision; no payload, no auto-fix.
	assert.Equal(t, SeverityWarning, finding.Severity)
	assert.False(t, finding.AutoFixable)
	assert.Nil(t, finding.Payload)
}
