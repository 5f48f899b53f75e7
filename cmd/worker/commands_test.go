package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_PATH", filepath.Join(dir, "worker.db"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "tick", "sweep", "start", "stop", "status", "cleanup", "seed"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestSeedAndStatus(t *testing.T) {
	fixture, err := filepath.Abs("../../internal/catalog/testdata/shirts.yaml")
	require.NoError(t, err)
	setupEnv(t)

	out, err := execute(t, "seed", "--file", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded")

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "idle"`)
}

func TestSeedRequiresFile(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "seed")
	assert.Error(t, err)
}

func TestCleanup(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "cleanup", "--type", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "cleaned 0 jobs (completed)")

	_, err = execute(t, "cleanup", "--type", "bogus")
	assert.Error(t, err)

	out, err = execute(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, `"stuck": 0`)
}

func TestSweepSkipsWhileRunning(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "sweep")
	require.NoError(t, err)

	out, err := execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "sweep skipped")
}
