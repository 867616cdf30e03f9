package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// StorageBinding names the store a catalog entry reads and writes.
type StorageBinding struct {
	DBPath       string `yaml:"dbPath"`
	SessionTable string `yaml:"sessionTable"`
	History      bool   `yaml:"history"`
}

// AgentSpec is one entry in the declarative agent catalog: instructions,
// allowed tools, model settings (either a single model or a rotation pool),
// and an optional storage binding.
type AgentSpec struct {
	ID           string         `yaml:"id"`
	Instructions string         `yaml:"instructions"`
	Tools        []string       `yaml:"tools"`
	Model        string         `yaml:"model"`
	Rotation     []ModelConfig  `yaml:"rotation"`
	CallsPerModel int           `yaml:"callsPerModel"`
	Storage      StorageBinding `yaml:"storage"`
}

// Catalog is the parsed agent catalog, keyed by agent id.
type Catalog map[string]AgentSpec

type catalogFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

// CatalogLoader reads a YAML agent catalog and caches it by the file's
// modification time, reloading transparently when the file changes on disk
// (spec.md §4.11).
type CatalogLoader struct {
	path string

	mu      sync.Mutex
	modTime int64
	cached  Catalog
}

// NewCatalogLoader returns a loader bound to path. The file is not read
// until the first call to Load.
func NewCatalogLoader(path string) *CatalogLoader {
	return &CatalogLoader{path: path}
}

// Load returns the current catalog, re-reading the file only if its mtime
// has advanced since the last call.
func (l *CatalogLoader) Load() (Catalog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat agent catalog %q: %w", l.path, err)
	}
	mt := info.ModTime().UnixNano()
	if l.cached != nil && mt == l.modTime {
		return l.cached, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read agent catalog %q: %w", l.path, err)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse agent catalog %q: %w", l.path, err)
	}

	cat := make(Catalog, len(cf.Agents))
	for _, a := range cf.Agents {
		if a.ID == "" {
			continue
		}
		cat[a.ID] = a
	}

	l.cached = cat
	l.modTime = mt
	return cat, nil
}
