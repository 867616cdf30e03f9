package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestCatalogLoaderLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeCatalog(t, path, `
agents:
  - id: chunk-analyzer
    instructions: "Answer strictly from the provided context."
    model: gpt-4o-mini
`)

	loader := NewCatalogLoader(path)
	cat, err := loader.Load()
	require.NoError(t, err)
	require.Contains(t, cat, "chunk-analyzer")
	require.Equal(t, "gpt-4o-mini", cat["chunk-analyzer"].Model)

	// Second load without touching the file returns the cached value.
	cat2, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, cat, cat2)
}

func TestCatalogLoaderReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeCatalog(t, path, `
agents:
  - id: chunk-analyzer
    model: gpt-4o-mini
`)
	loader := NewCatalogLoader(path)
	cat, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", cat["chunk-analyzer"].Model)

	// Ensure the mtime actually advances on filesystems with coarse
	// resolution before rewriting.
	time.Sleep(10 * time.Millisecond)
	writeCatalog(t, path, `
agents:
  - id: chunk-analyzer
    model: claude-3-7-sonnet-latest
`)
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	cat2, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "claude-3-7-sonnet-latest", cat2["chunk-analyzer"].Model)
}

func TestCatalogLoaderMissingFile(t *testing.T) {
	loader := NewCatalogLoader("/nonexistent/path/catalog.yaml")
	_, err := loader.Load()
	require.Error(t, err)
}
