package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dashrpc/dashboard"
	"dashrpc/dashboard/demo"
	"dashrpc/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDemo serves the demo backend and returns its WebSocket URL.
func startDemo(t *testing.T) string {
	t.Helper()
	svr := server.NewServer(server.Options{})
	require.NoError(t, demo.Register(svr, demo.NewStore()))
	ts := httptest.NewServer(svr)
	t.Cleanup(func() {
		svr.Shutdown(time.Second)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// run executes dashctl with a config that logs to a temp file and exposes
// metrics on an ephemeral port.
func run(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dashrpc.yaml")
	body := "call_timeout: 2s\n" +
		"retry:\n  max_retries: 1\n  base_delay: 10ms\n" +
		"rate_limit:\n  enable: true\n  rps: 100\n  burst: 10\n" +
		"metrics:\n  enable: true\n  listen: 127.0.0.1:0\n" +
		"log:\n  outputs: [" + filepath.Join(dir, "dashctl.log") + "]\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--endpoint", endpoint}, args...))
	err := rootCmd.Execute()
	if current != nil {
		current.Close()
		current = nil
	}
	return out.String(), err
}

func TestLoginCommand(t *testing.T) {
	url := startDemo(t)

	out, err := run(t, url, "login", "ada@example.com", "correct-horse")
	require.NoError(t, err)
	var user dashboard.User
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "u-1", user.ID)

	_, err = run(t, url, "login", "ada@example.com", "wrong")
	assert.ErrorIs(t, err, dashboard.ErrInvalidCredentials)
}

func TestListCommands(t *testing.T) {
	url := startDemo(t)

	out, err := run(t, url, "messages", "c-1")
	require.NoError(t, err)
	var msgs []dashboard.Message
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "m-1", msgs[0].ID)

	out, err = run(t, url, "profiles", "--min-width", "60", "--max-width", "80")
	require.NoError(t, err)
	var profiles []dashboard.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &profiles))
	assert.NotEmpty(t, profiles)
	for _, p := range profiles {
		assert.GreaterOrEqual(t, p.Width, 60.0)
		assert.LessOrEqual(t, p.Width, 80.0)
	}
}

func TestBoqCommandWritesFile(t *testing.T) {
	url := startDemo(t)
	path := filepath.Join(t.TempDir(), "boq.pdf")

	_, err := run(t, url, "boq", "proj-123456", "--out", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRoutesCommand(t *testing.T) {
	out, err := run(t, "ws://127.0.0.1:1/rpc", "routes")
	require.NoError(t, err)
	for _, op := range dashboard.Operations() {
		assert.Contains(t, out, op.Route)
	}
	assert.Nil(t, current, "routes never connects")
}
