package findings

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/app"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/testutil"
)

func testRunner(t *testing.T) runner {
	t.Helper()
	dir := t.TempDir()
	settings := &conf.Settings{
		Security: conf.SecuritySettings{JWTSecret: "cli-test-secret-0123456789abcdef"},
		Database: conf.DatabaseSettings{
			Driver: conf.DriverSQLite,
			SQLite: conf.SQLiteSettings{Path: filepath.Join(dir, "hse.db")},
		},
		Attachments: conf.AttachmentSettings{Path: filepath.Join(dir, "uploads"), URLPrefix: "/uploads", MaxFileSize: 1024, Workers: 1},
	}
	return func(fn func(ctx context.Context, a *app.App) error) error {
		return withApp(settings, &buildinfo.Context{Version: "test"}, fn)
	}
}

func execute(t *testing.T, run runner, args ...string) (string, error) {
	t.Helper()
	cmd := Command(nil, nil)
	cmd.ResetCommands()
	cmd.AddCommand(listCommand(run), summaryCommand(run), verifyCommand(run))
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFindingsCommands(t *testing.T) {
	run := testRunner(t)

	require.NoError(t, run(func(ctx context.Context, a *app.App) error {
		testutil.CreateFinding(t, a.Repo, "electrical")
		testutil.CreateFinding(t, a.Repo, "fire")
		return nil
	}))

	out, err := execute(t, run, "verify", "1", "--as", "ops-admin", "--comment", "seen")
	require.NoError(t, err)
	assert.Contains(t, out, "finding 1 verified by ops-admin")

	_, err = execute(t, run, "verify", "1", "--as", "ops-admin", "--decision", "rejected")
	require.Error(t, err, "second decision must conflict")

	out, err = execute(t, run, "list", "--verified")
	require.NoError(t, err)
	assert.Contains(t, out, "electrical")
	assert.NotContains(t, out, "fire")

	out, err = execute(t, run, "list", "--category", "fire")
	require.NoError(t, err)
	assert.Contains(t, out, "fire")

	out, err = execute(t, run, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Open    2")
	assert.Contains(t, out, "electrical")
	assert.NotContains(t, out, "fire")
}

func TestVerifyRequiresAdminID(t *testing.T) {
	_, err := execute(t, testRunner(t), "verify", "1")
	require.Error(t, err)
}
