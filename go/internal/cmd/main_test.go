package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestDotEnvCredentialsReachFlags(t *testing.T) {
	for _, key := range []string{"TEAMSYNC_EMAIL", "TEAMSYNC_PASSWORD", "TEAMSYNC_TOKEN"} {
		unsetEnv(t, key)
	}
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEAMSYNC_EMAIL=coach@example.com\nTEAMSYNC_PASSWORD=hunter22\n"), 0o600))

	loadEnv(path)
	opts, err := parseFlags([]string{"--session", "S1"})
	require.NoError(t, err)

	assert.Equal(t, "coach@example.com", opts.email)
	assert.Equal(t, "hunter22", opts.password)
	assert.Empty(t, opts.token)
	assert.Equal(t, "S1", opts.sessionID)
	assert.Equal(t, time.Hour, opts.videoLength)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("TEAMSYNC_EMAIL", "env@example.com")
	unsetEnv(t, "TEAMSYNC_TOKEN")

	opts, err := parseFlags([]string{"--email", "flag@example.com", "-s", "S2", "--video-length", "90s"})
	require.NoError(t, err)

	assert.Equal(t, "flag@example.com", opts.email)
	assert.Equal(t, "S2", opts.sessionID)
	assert.Equal(t, 90*time.Second, opts.videoLength)
	assert.Equal(t, "teamsync.yaml", opts.configPath)
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	unsetEnv(t, "TEAMSYNC_TOKEN")

	loadEnv(filepath.Join(t.TempDir(), "absent.env"))
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Empty(t, opts.token)
}
