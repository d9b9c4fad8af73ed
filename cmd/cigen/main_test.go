package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectRepos(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.txt")
	require.NoError(t, os.WriteFile(path, []byte("# fleet\nhttps://github.com/acme/b\n\n  https://github.com/acme/c  \n"), 0o600))

	repos, err := collectRepos([]string{"https://github.com/acme/a"}, path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://github.com/acme/a",
		"https://github.com/acme/b",
		"https://github.com/acme/c",
	}, repos)

	_, err = collectRepos(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorContains(t, err, "opening repos file")
}

func TestModelOrDefault(t *testing.T) {
	assert.Equal(t, "gpt-4o", modelOrDefault("gpt-4o", "gpt-4o-mini"))
	assert.Equal(t, "gpt-4o-mini", modelOrDefault("", "gpt-4o-mini"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "batch", "worker", "submit", "status"} {
		assert.True(t, names[want], want)
	}
}
