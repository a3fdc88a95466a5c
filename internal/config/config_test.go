package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corstester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFileAppliesPresentKeys(t *testing.T) {
	path := writeConfig(t, `
scan:
  threads: 20
  timeout: 3s
  methods: [PUT, DELETE]
  credentials: false
  header:
    Cookie: session=abc
  fail-on: high
server:
  listen: ":9090"
  allowed-origin: ["https://failwarn.com"]
  block-private: false
`)

	f, err := LoadFile(path)
	require.NoError(t, err)

	opts := Options{Threads: DefaultThreads, Timeout: DefaultTimeout, Credentials: true, UserAgent: "keep-me"}
	f.ApplyScan(&opts, func(string) bool { return false })

	assert.Equal(t, 20, opts.Threads)
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.Equal(t, []string{"PUT", "DELETE"}, opts.Methods)
	assert.False(t, opts.Credentials, "explicit false in the file overrides the default")
	assert.Equal(t, map[string]string{"Cookie": "session=abc"}, opts.Headers)
	assert.Equal(t, "high", opts.FailOn)
	assert.Equal(t, "keep-me", opts.UserAgent, "absent keys are left alone")

	srv := ServerOptions{Listen: DefaultListen, BlockPrivate: true}
	f.ApplyServer(&srv, nil)
	assert.Equal(t, ":9090", srv.Listen)
	assert.Equal(t, []string{"https://failwarn.com"}, srv.AllowedOrigins)
	assert.False(t, srv.BlockPrivate)
}

func TestLoadFileFlagsWin(t *testing.T) {
	path := writeConfig(t, "scan:\n  threads: 20\n  format: json\n")
	f, err := LoadFile(path)
	require.NoError(t, err)

	opts := Options{Threads: 3, OutputFormat: "text"}
	f.ApplyScan(&opts, func(name string) bool { return name == "threads" })

	assert.Equal(t, 3, opts.Threads)
	assert.Equal(t, "json", opts.OutputFormat)
}

func TestLoadFileEmpty(t *testing.T) {
	f, err := LoadFile(writeConfig(t, ""))
	require.NoError(t, err)

	opts := Options{Threads: 7}
	f.ApplyScan(&opts, nil)
	assert.Equal(t, 7, opts.Threads)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "scan:\n  threadz: 5\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = LoadFile(writeConfig(t, "scan:\n  threads: -1\n"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = LoadFile(writeConfig(t, "server:\n  max-body-bytes: -5\n"))
	assert.ErrorIs(t, err, ErrInvalidValue)
}
