package pkgjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// strippedFields only matter while building inside the monorepo.
var strippedFields = []string{"scripts", "devDependencies", "buildConfig"}

// PublishOptions describes the artifacts a publish manifest must point at.
type PublishOptions struct {
	// PackageDir is the directory of the package being published.
	PackageDir string
	// MonorepoRoot, when set, is used to rewrite repository.directory.
	MonorepoRoot string
	// OutputIDs lists every module output identifier.
	OutputIDs []string
	// TypedOutputIDs lists the output identifiers that get a declaration file.
	TypedOutputIDs []string
	// IIFEOutputIDs lists the output identifiers that get a browser bundle.
	IIFEOutputIDs []string
}

type repository struct {
	Type      string `json:"type,omitempty"`
	URL       string `json:"url,omitempty"`
	Directory string `json:"directory,omitempty"`
}

// Publish returns the manifest to ship inside the dist directory.
func Publish(m *Manifest, opts PublishOptions) (*Document, error) {
	if m.doc == nil {
		return nil, fmt.Errorf("manifest has no source document")
	}
	if m.Version != "" && !validVersion(m.Version) {
		return nil, fmt.Errorf("invalid version %q in %s", m.Version, m.Name)
	}

	doc := m.doc.Clone()
	for _, field := range strippedFields {
		doc.Delete(field)
	}

	cfg := m.BuildConfig
	typed := toSet(opts.TypedOutputIDs)
	iife := toSet(opts.IIFEOutputIDs)

	if err := doc.Set("type", "module"); err != nil {
		return nil, err
	}
	if containsString(opts.OutputIDs, "index") {
		if cfg.CJSEnabled() {
			if err := doc.Set("main", "./index.cjs"); err != nil {
				return nil, err
			}
		}
		if cfg.ESMEnabled() {
			if err := doc.Set("module", "./index.js"); err != nil {
				return nil, err
			}
		}
		if cfg.TypesEnabled() && typed["index"] {
			if err := doc.Set("types", "./index.d.ts"); err != nil {
				return nil, err
			}
		}
		if iife["index"] {
			for _, field := range []string{"unpkg", "jsdelivr"} {
				if err := doc.Set(field, "./index.global.min.js"); err != nil {
					return nil, err
				}
			}
		}
	}

	exports, err := buildExports(cfg, opts.OutputIDs, typed)
	if err != nil {
		return nil, err
	}
	if err := doc.Set("exports", exports); err != nil {
		return nil, err
	}

	if opts.MonorepoRoot != "" {
		if err := rewriteRepository(doc, opts.MonorepoRoot, opts.PackageDir); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// WritePublished writes the publish manifest to <pkg>/dist/package.json.
func WritePublished(doc *Document, distDir string) error {
	data, err := doc.Indented()
	if err != nil {
		return fmt.Errorf("failed to encode publish manifest: %w", err)
	}
	if err := os.MkdirAll(distDir, 0750); err != nil {
		return fmt.Errorf("failed to create %s: %w", distDir, err)
	}
	path := filepath.Join(distDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // published manifest is world readable
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func buildExports(cfg BuildConfig, outputIDs []string, typed map[string]bool) (*Document, error) {
	ids := append([]string(nil), outputIDs...)
	sort.Slice(ids, func(i, j int) bool {
		// The root entry leads the map.
		if ids[i] == "index" || ids[j] == "index" {
			return ids[i] == "index" && ids[j] != "index"
		}
		return ids[i] < ids[j]
	})

	exports := &Document{}
	if err := exports.Set("./package.json", "./package.json"); err != nil {
		return nil, err
	}
	for _, id := range ids {
		conditions := &Document{}
		if cfg.TypesEnabled() && typed[id] {
			if err := conditions.Set("types", "./"+id+".d.ts"); err != nil {
				return nil, err
			}
		}
		if cfg.CJSEnabled() {
			if err := conditions.Set("require", "./"+id+".cjs"); err != nil {
				return nil, err
			}
		}
		if cfg.ESMEnabled() {
			if err := conditions.Set("import", "./"+id+".js"); err != nil {
				return nil, err
			}
		}
		def := "./" + id + ".js"
		if !cfg.ESMEnabled() {
			def = "./" + id + ".cjs"
		}
		if err := conditions.Set("default", def); err != nil {
			return nil, err
		}

		key := "./" + id
		if id == "index" {
			key = "."
		}
		if err := exports.Set(key, conditions); err != nil {
			return nil, err
		}
	}
	return exports, nil
}

func rewriteRepository(doc *Document, root, pkgDir string) error {
	raw, ok := doc.Get("repository")
	if !ok {
		return nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve monorepo root: %w", err)
	}
	absPkg, err := filepath.Abs(pkgDir)
	if err != nil {
		return fmt.Errorf("failed to resolve package directory: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPkg)
	if err != nil {
		return fmt.Errorf("package %s is not inside %s: %w", absPkg, absRoot, err)
	}

	var repo repository
	var url string
	if err := json.Unmarshal(raw, &url); err == nil {
		repo = repository{Type: "git", URL: url}
	} else if err := json.Unmarshal(raw, &repo); err != nil {
		return fmt.Errorf("failed to parse repository field: %w", err)
	}
	repo.Directory = filepath.ToSlash(rel)
	return doc.Set("repository", repo)
}

// validVersion accepts full major.minor.patch versions with optional
// prerelease and build suffixes, the form npm publishes.
func validVersion(version string) bool {
	v := "v" + version
	return semver.IsValid(v) && semver.Canonical(v) == strings.TrimSuffix(v, semver.Build(v))
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
