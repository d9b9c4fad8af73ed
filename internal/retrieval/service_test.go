package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/cigen/internal/logging"
)

// keywordEmbedder maps text onto counts of a few keywords, which makes
// similarity deterministic.
type keywordEmbedder struct {
	mu      sync.Mutex
	batches int
	err     error
}

var keywords = []string{"make", "test", "license", "docker"}

func vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(keywords)+1)
	for i, k := range keywords {
		v[i] = float32(strings.Count(lower, k))
	}
	v[len(keywords)] = 0.01
	return v
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return vector(text), nil
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func sampleRepo(t *testing.T) string {
	return writeRepo(t, map[string]string{
		"README.md":                  "# Widget\n\nRun make test to execute the test suite.",
		"LICENSE":                    "MIT license text",
		"docs/license.md":            "This project uses the MIT license.",
		"docs/docker.md":             "Use docker build for the image.",
		"Makefile":                   "test:\n\tgo test ./...",
		"main.go":                    "package main",
		"node_modules/lib/README.md": "make test make test make test",
		".gitignore":                 "build/\n",
		"build/README.md":            "make test make test",
	})
}

func TestService_Lookup(t *testing.T) {
	emb := &keywordEmbedder{}
	s, err := New(emb, WithResults(2))
	require.NoError(t, err)
	dir := sampleRepo(t)

	got, err := s.Lookup(context.Background(), dir, "how do I run make test?")
	require.NoError(t, err)

	parts := strings.Split(got, "\n\nFrom ")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(got, "From "))
	assert.Contains(t, got, "From README.md:\n# Widget")
	assert.Contains(t, got, "From Makefile:\ntest:")
	assert.NotContains(t, got, "node_modules")
	assert.NotContains(t, got, "docker")

	_, err = s.Lookup(context.Background(), dir, "docker image")
	require.NoError(t, err)
	assert.Equal(t, 1, emb.batches, "index is built once per working copy")
}

func TestService_LookupNoDocs(t *testing.T) {
	s, err := New(&keywordEmbedder{})
	require.NoError(t, err)
	dir := writeRepo(t, map[string]string{"main.go": "package main"})

	got, err := s.Lookup(context.Background(), dir, "how is this built?")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_LookupErrors(t *testing.T) {
	s, err := New(&keywordEmbedder{err: errors.New("embedding endpoint down")})
	require.NoError(t, err)
	dir := sampleRepo(t)

	_, err = s.Lookup(context.Background(), dir, "build")
	assert.ErrorContains(t, err, "embedding endpoint down")

	_, err = s.Lookup(context.Background(), dir, "  ")
	assert.Error(t, err)
}

func TestService_IndexAndForget(t *testing.T) {
	emb := &keywordEmbedder{}
	s, err := New(emb, WithChunkSize(40))
	require.NoError(t, err)
	dir := sampleRepo(t)

	n, err := s.Index(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "README splits in two, plus Makefile, license and docker docs")

	files, err := s.docFiles(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Makefile", "README.md", "docs/docker.md", "docs/license.md"}, files)

	s.Forget(dir)
	_, err = s.Lookup(context.Background(), dir, "make")
	require.NoError(t, err)
	assert.Equal(t, 2, emb.batches, "forgotten working copies are indexed again")
}

func TestService_LookupSkipsInvalidIgnorePatterns(t *testing.T) {
	logger := logging.NewTestLogger()
	s, err := New(&keywordEmbedder{}, WithLogger(logger.Logger))
	require.NoError(t, err)
	dir := writeRepo(t, map[string]string{
		"README.md":       "Run make test.",
		".gitignore":      "*.py[co\nbuild/\n",
		"build/README.md": "make test",
	})

	got, err := s.Lookup(context.Background(), dir, "make test")
	require.NoError(t, err)
	assert.Contains(t, got, "From README.md:")
	assert.NotContains(t, got, "build/")
	logger.AssertLogged(t, zapcore.WarnLevel, "skipping invalid .gitignore patterns")
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoEmbedder)

	_, err = New(&keywordEmbedder{}, WithPatterns("docs/[.md"))
	assert.Error(t, err)
}

func TestChunkText(t *testing.T) {
	text := "alpha beta\n\ngamma\n\n\n" + strings.Repeat("x", 25) + "\n\ndelta"
	assert.Equal(t, []string{"alpha beta\n\ngamma", strings.Repeat("x", 20), "xxxxx\n\ndelta"}, chunkText(text, 20))
	assert.Equal(t, []string{"one\n\ntwo"}, chunkText("one\r\n\r\ntwo\n", 100))
	assert.Empty(t, chunkText(" \n\n ", 10))
}
