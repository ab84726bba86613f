// Package analysis resolves a package's export map into the concrete and generated
// sources every bundling pipeline consumes.
package analysis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/minio/highwayhash"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/pkgkit/internal/generator"
	"github.com/fluxbase-eu/pkgkit/internal/pkgjson"
	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

// fingerprintKey is the fixed highwayhash key; fingerprints only need to be stable.
var fingerprintKey = []byte("pkgkit-analysis-fingerprint-key!")

// Analysis is the resolved, ready-to-bundle view of one package. It is built once
// per manifest version and never mutated afterwards.
type Analysis struct {
	// Dir is the absolute package directory.
	Dir      string
	Manifest *pkgjson.Manifest
	// Entries is the export map of the manifest.
	Entries map[string]pkgjson.EntryConfig
	// Sources maps an entry identifier to its sorted relative source paths.
	Sources map[string][]string
	// Generated maps an expanded entry identifier to generated library source.
	Generated map[string]string
	// IIFEGenerated maps an expanded entry identifier to generated browser-bundle source.
	IIFEGenerated map[string]string
}

type entryResult struct {
	entryID       string
	sources       []string
	generated     map[string]string
	iifeGenerated map[string]string
}

// Analyze reads the manifest in dir and resolves every declared entry. Entries
// resolve concurrently; the first failure aborts the whole analysis.
func Analyze(ctx context.Context, dir string, runner generator.Runner) (*Analysis, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve package directory: %w", err)
	}

	manifest, err := pkgjson.Read(absDir)
	if err != nil {
		return nil, err
	}

	entryIDs := manifest.BuildConfig.EntryIDs()
	results := make([]entryResult, len(entryIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, entryID := range entryIDs {
		i, entryID := i, entryID
		cfg := manifest.BuildConfig.Exports[entryID]
		g.Go(func() error {
			res, err := resolveEntry(gctx, absDir, entryID, cfg, runner)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := &Analysis{
		Dir:           absDir,
		Manifest:      manifest,
		Entries:       make(map[string]pkgjson.EntryConfig, len(entryIDs)),
		Sources:       make(map[string][]string, len(entryIDs)),
		Generated:     make(map[string]string),
		IIFEGenerated: make(map[string]string),
	}
	for _, res := range results {
		a.Entries[res.entryID] = manifest.BuildConfig.Exports[res.entryID]
		a.Sources[res.entryID] = res.sources
		for id, text := range res.generated {
			a.Generated[id] = text
		}
		for id, text := range res.iifeGenerated {
			a.IIFEGenerated[id] = text
		}
	}

	log.Debug().
		Str("package", manifest.Name).
		Int("entries", len(a.Entries)).
		Int("generated", len(a.Generated)).
		Msg("Package analyzed")

	return a, nil
}

func resolveEntry(ctx context.Context, dir, entryID string, cfg pkgjson.EntryConfig, runner generator.Runner) (entryResult, error) {
	res := entryResult{entryID: entryID}

	if err := validateEntryID(entryID); err != nil {
		return res, err
	}

	if cfg.Generator != "" {
		if runner == nil {
			return res, &generator.ConfigError{EntryID: entryID, Reference: cfg.Generator, Reason: "no generator runtime available"}
		}
		content, err := runner.Generate(ctx, entryID, resolveRef(dir, cfg.Generator))
		if err != nil {
			return res, err
		}
		res.generated = content
		for expandedID := range content {
			res.sources = append(res.sources, pkgpath.SourcePathFromEntryID(expandedID))
		}
	} else {
		sources, err := globSources(dir, entryID)
		if err != nil {
			return res, err
		}
		res.sources = sources
	}

	res.sources = sortedUnique(res.sources)
	if len(res.sources) == 0 && !pkgpath.HasWildcard(entryID) {
		return res, fmt.Errorf("entry %q: no source files match %s.{ts,tsx} in %s",
			entryID, pkgpath.EntryBase(entryID), pkgpath.SrcDir(dir))
	}

	if cfg.IIFE != nil && cfg.IIFE.Generator != "" {
		if runner == nil {
			return res, &generator.ConfigError{EntryID: entryID, Reference: cfg.IIFE.Generator, Reason: "no generator runtime available"}
		}
		ref := resolveRef(dir, cfg.IIFE.Generator)
		res.iifeGenerated = make(map[string]string)
		for _, source := range res.sources {
			expandedID := pkgpath.EntryIDFromOutputID(pkgpath.OutputID(source))
			content, err := runner.Generate(ctx, expandedID, ref)
			if err != nil {
				return res, err
			}
			for id, text := range content {
				res.iifeGenerated[id] = text
			}
		}
	}

	return res, nil
}

// globSources finds <entry>.{ts,tsx} below the source directory.
func globSources(dir, entryID string) ([]string, error) {
	pattern := pkgpath.EntryBase(entryID) + ".{ts,tsx}"
	matches, err := doublestar.Glob(os.DirFS(pkgpath.SrcDir(dir)), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("entry %q: invalid source pattern %s: %w", entryID, pattern, err)
	}
	sources := make([]string, 0, len(matches))
	for _, match := range matches {
		if strings.HasSuffix(match, ".d.ts") {
			continue
		}
		sources = append(sources, "./"+match)
	}
	return sources, nil
}

// validateEntryID accepts concrete subpaths and subpaths with exactly one
// wildcard occupying a whole segment.
func validateEntryID(entryID string) error {
	switch strings.Count(entryID, pkgpath.Wildcard) {
	case 0:
		return nil
	case 1:
		for _, segment := range strings.Split(entryID, "/") {
			if strings.Contains(segment, pkgpath.Wildcard) && segment != pkgpath.Wildcard {
				return &generator.ConfigError{EntryID: entryID, Reason: "the wildcard must be a whole path segment"}
			}
		}
		return nil
	default:
		return &generator.ConfigError{EntryID: entryID, Reason: "at most one wildcard segment is allowed"}
	}
}

func resolveRef(dir, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(dir, filepath.FromSlash(ref))
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	sort.Strings(values)
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// EntryIDs returns the entry identifiers in sorted order.
func (a *Analysis) EntryIDs() []string {
	ids := make([]string, 0, len(a.Entries))
	for id := range a.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsGenerated reports whether the source path was produced by a generator
// rather than found on disk.
func (a *Analysis) IsGenerated(sourcePath string) bool {
	_, ok := a.Generated[pkgpath.EntryIDFromOutputID(pkgpath.OutputID(sourcePath))]
	return ok
}

// OutputIDs returns the output identifier of every resolved source, sorted.
func (a *Analysis) OutputIDs() []string {
	var ids []string
	for _, sources := range a.Sources {
		for _, source := range sources {
			ids = append(ids, pkgpath.OutputID(source))
		}
	}
	return sortedUnique(ids)
}

// Fingerprint returns a stable digest of the analysis structure. Two analyses of
// an unchanged manifest share the same fingerprint.
func (a *Analysis) Fingerprint() (string, error) {
	payload, err := json.Marshal(struct {
		Entries       map[string]pkgjson.EntryConfig
		Sources       map[string][]string
		Generated     map[string]string
		IIFEGenerated map[string]string
	}{a.Entries, a.Sources, a.Generated, a.IIFEGenerated})
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis: %w", err)
	}
	hash, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return "", err
	}
	if _, err := hash.Write(payload); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
