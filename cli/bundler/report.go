package bundler

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Artifact is one file written by a build.
type Artifact struct {
	Pipeline  string   `json:"pipeline" yaml:"pipeline"`
	Path      string   `json:"path" yaml:"path"`
	Bytes     int      `json:"bytes" yaml:"bytes"`
	Inputs    int      `json:"inputs" yaml:"inputs"`
	Externals []string `json:"externals,omitempty" yaml:"externals,omitempty"`
}

// Report collects the artifacts of a build. It is safe for concurrent use.
type Report struct {
	mu        sync.Mutex
	dir       string
	artifacts []Artifact
}

// NewReport creates a report with paths relative to the package directory.
func NewReport(pkgDir string) *Report {
	return &Report{dir: pkgDir}
}

// AddOutput records every file of a written bundle.
func (r *Report) AddOutput(pipeline string, out *Output) {
	if out == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, file := range out.Files {
		artifact := Artifact{Pipeline: pipeline, Path: r.relative(file.Path), Bytes: file.Bytes}
		if out.Metafile != nil {
			for key, meta := range out.Metafile.Outputs {
				if filepath.Join(r.dir, filepath.FromSlash(key)) != file.Path && key != file.Path {
					continue
				}
				artifact.Inputs = len(meta.Inputs)
				artifact.Externals = meta.ExternalImports()
			}
		}
		r.artifacts = append(r.artifacts, artifact)
	}
}

// AddFile records a file written outside an engine, such as a minified bundle.
func (r *Report) AddFile(pipeline, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, Artifact{Pipeline: pipeline, Path: r.relative(path), Bytes: int(info.Size())})
	return nil
}

// Artifacts returns the recorded artifacts ordered by pipeline and path.
func (r *Report) Artifacts() []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()

	artifacts := make([]Artifact, len(r.artifacts))
	copy(artifacts, r.artifacts)
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].Pipeline != artifacts[j].Pipeline {
			return artifacts[i].Pipeline < artifacts[j].Pipeline
		}
		return artifacts[i].Path < artifacts[j].Path
	})
	return artifacts
}

// TotalBytes sums the size of every recorded artifact.
func (r *Report) TotalBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, artifact := range r.artifacts {
		total += artifact.Bytes
	}
	return total
}

func (r *Report) relative(path string) string {
	if rel, err := filepath.Rel(r.dir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
