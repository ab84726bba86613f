// Package bundler turns an analyzed package into library modules, standalone
// browser bundles and declaration files.
package bundler

import (
	"path/filepath"
	"sort"
)

// Metafile represents the esbuild metafile JSON structure
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"` // "cjs" or "esm"
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib represents the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// OutputFiles lists the written files with absolute paths, sorted by path.
// Metafile paths are relative to the build working directory.
func (m *Metafile) OutputFiles(workDir string) []OutputFile {
	files := make([]OutputFile, 0, len(m.Outputs))
	for path, out := range m.Outputs {
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, filepath.FromSlash(path))
		}
		files = append(files, OutputFile{Path: path, Bytes: out.Bytes, EntryPoint: out.EntryPoint})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// ExternalImports returns the unique external import paths of one output.
func (o MetafileOutput) ExternalImports() []string {
	seen := make(map[string]bool)
	var externals []string
	for _, imp := range o.Imports {
		if imp.External && !seen[imp.Path] {
			seen[imp.Path] = true
			externals = append(externals, imp.Path)
		}
	}
	sort.Strings(externals)
	return externals
}
