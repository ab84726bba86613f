// Package pkgjson reads package manifests and rewrites them for publishing.
package pkgjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileName is the manifest file name inside a package directory.
const FileName = "package.json"

// Manifest is the parsed package.json of the package being built.
type Manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
	DevDependencies  map[string]string `json:"devDependencies,omitempty"`
	BuildConfig      BuildConfig       `json:"buildConfig"`

	// doc keeps every field of the original file, in order, for the publish rewrite.
	doc *Document
}

// BuildConfig holds the per-kind enable flags and the export map.
type BuildConfig struct {
	ESM     *bool                  `json:"esm,omitempty"`
	CJS     *bool                  `json:"cjs,omitempty"`
	Types   *bool                  `json:"types,omitempty"`
	Exports map[string]EntryConfig `json:"exports,omitempty"`
}

// EntryConfig is the build rule set of one export-map key.
type EntryConfig struct {
	// Generator references a module producing the entry source text.
	Generator string `json:"generator,omitempty"`
	// IIFE requests a standalone browser bundle for the entry.
	IIFE *IIFEConfig `json:"iife,omitempty"`
}

// IIFEConfig configures the standalone browser bundle of an entry.
type IIFEConfig struct {
	Name      string            `json:"name,omitempty"`
	Globals   map[string]string `json:"globals,omitempty"`
	Generator string            `json:"generator,omitempty"`
}

// ESMEnabled reports whether ESM output is requested (default true).
func (c BuildConfig) ESMEnabled() bool { return enabled(c.ESM) }

// CJSEnabled reports whether CJS output is requested (default true).
func (c BuildConfig) CJSEnabled() bool { return enabled(c.CJS) }

// TypesEnabled reports whether declaration output is requested (default true).
func (c BuildConfig) TypesEnabled() bool { return enabled(c.Types) }

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

// EntryIDs returns the export-map keys in sorted order.
func (c BuildConfig) EntryIDs() []string {
	ids := make([]string, 0, len(c.Exports))
	for id := range c.Exports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsExternalPackage reports whether a package name is a runtime or peer dependency.
// Development dependencies are never external.
func (m *Manifest) IsExternalPackage(name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	_, ok := m.PeerDependencies[name]
	return ok
}

// Document returns the ordered raw manifest.
func (m *Manifest) Document() *Document {
	return m.doc
}

// Parse decodes manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.doc = doc
	return &m, nil
}

// Read loads the manifest of the package in dir.
func Read(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
