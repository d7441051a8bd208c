package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"id=7", ":state=paid", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": "7", ":state": "paid", "note": "a=b"}, params)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func writeConfig(t *testing.T, s *miniredis.Miniredis) string {
	t.Helper()
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "broker.yaml")
	data := "log:\n  level: error\nconnections:\n" +
		"  cacheA:\n    type: keyvalue\n    host: " + s.Host() + "\n    port: " + strconv.Itoa(port) + "\n    db: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configFile, debugMode, logLevel = "", false, ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCallCommand(t *testing.T) {
	s := miniredis.RunT(t)
	path := writeConfig(t, s)

	_, err := run(t, "--config", path, "call", "cacheA", "set", "k", "v")
	require.NoError(t, err)

	out, err := run(t, "--config", path, "call", "cacheA", "get", "k")
	require.NoError(t, err)
	assert.Contains(t, out, `"result": "v"`)

	got, err := s.DB(1).Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestCallUnknownName(t *testing.T) {
	s := miniredis.RunT(t)
	path := writeConfig(t, s)

	_, err := run(t, "--config", path, "call", "nope", "get", "k")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	s := miniredis.RunT(t)
	path := writeConfig(t, s)

	out, err := run(t, "--config", path, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "cacheA")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "1 names, 1 physical connections")
}

func TestCheckCommandReportsUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	path := writeConfig(t, s)
	s.Close()

	out, err := run(t, "--config", path, "check")
	require.Error(t, err)
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, err.Error(), "1 of 1 connections failed")
}
