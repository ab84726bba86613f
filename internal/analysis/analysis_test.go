package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/pkgkit/internal/generator"
)

// writePackage lays out a package directory from a manifest and a set of files
// relative to the package root.
func writePackage(t *testing.T, manifest string, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0644))
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

type countingRunner struct {
	calls    atomic.Int32
	registry *generator.Registry
}

func newCountingRunner() *countingRunner {
	return &countingRunner{registry: generator.NewRegistry()}
}

func (c *countingRunner) Generate(ctx context.Context, entryID, ref string) (map[string]string, error) {
	c.calls.Add(1)
	return c.registry.Generate(ctx, entryID, ref)
}

func TestAnalyze_FileEntries(t *testing.T) {
	dir := writePackage(t, `{
		"name": "demo",
		"buildConfig": {"exports": {".": {}, "./widget": {}, "./locales/*": {}}}
	}`, map[string]string{
		"src/index.ts":         "export const x = 1",
		"src/widget.tsx":       "export const w = 1",
		"src/locales/fr.ts":    "export default 'fr'",
		"src/locales/de.ts":    "export default 'de'",
		"src/locales/all.d.ts": "export {}",
	})

	runner := newCountingRunner()
	a, err := Analyze(context.Background(), dir, runner)
	require.NoError(t, err)

	assert.Equal(t, []string{"./index.ts"}, a.Sources["."])
	assert.Equal(t, []string{"./widget.tsx"}, a.Sources["./widget"])
	assert.Equal(t, []string{"./locales/de.ts", "./locales/fr.ts"}, a.Sources["./locales/*"])
	assert.Empty(t, a.Generated)
	assert.Equal(t, int32(0), runner.calls.Load(), "generators must not run for file entries")
	assert.Equal(t, []string{".", "./locales/*", "./widget"}, a.EntryIDs())
	assert.Equal(t, []string{"index", "locales/de", "locales/fr", "widget"}, a.OutputIDs())
}

func TestAnalyze_MissingSource(t *testing.T) {
	dir := writePackage(t, `{"name": "demo", "buildConfig": {"exports": {"./missing": {}}}}`, nil)

	_, err := Analyze(context.Background(), dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source files")
}

func TestAnalyze_WildcardGenerator(t *testing.T) {
	dir := writePackage(t, `{
		"name": "demo",
		"buildConfig": {"exports": {"./plugins/*": {"generator": "./gen.js"}}}
	}`, nil)

	runner := newCountingRunner()
	runner.registry.Register(filepath.Join(dir, "gen.js"), func(_ context.Context, entryID string) (any, error) {
		return map[string]string{"a": "export const a = 1", "b": "export const b = 2"}, nil
	})

	a, err := Analyze(context.Background(), dir, runner)
	require.NoError(t, err)

	assert.Equal(t, []string{"./plugins/a.ts", "./plugins/b.ts"}, a.Sources["./plugins/*"])
	assert.Equal(t, map[string]string{
		"./plugins/a": "export const a = 1",
		"./plugins/b": "export const b = 2",
	}, a.Generated)
	assert.True(t, a.IsGenerated("./plugins/a.ts"))
	assert.Equal(t, []string{"plugins/a", "plugins/b"}, a.OutputIDs())
}

func TestAnalyze_GeneratorShapeMismatch(t *testing.T) {
	tests := []struct {
		name    string
		entryID string
		result  any
	}{
		{name: "string for wildcard", entryID: "./plugins/*", result: "export {}"},
		{name: "mapping for concrete entry", entryID: "./all", result: map[string]string{"a": "x"}},
		{name: "unsupported type", entryID: "./all", result: []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writePackage(t, `{"name": "demo", "buildConfig": {"exports": {"`+tt.entryID+`": {"generator": "./gen.js"}}}}`, nil)
			runner := newCountingRunner()
			runner.registry.Register(filepath.Join(dir, "gen.js"), func(context.Context, string) (any, error) {
				return tt.result, nil
			})

			_, err := Analyze(context.Background(), dir, runner)
			require.Error(t, err)
			assert.True(t, errors.Is(err, generator.ErrConfig), "got %v", err)
		})
	}
}

func TestAnalyze_IIFEGenerator(t *testing.T) {
	dir := writePackage(t, `{
		"name": "demo",
		"buildConfig": {"exports": {
			".": {"iife": {"name": "Demo", "generator": "./iife.js"}}
		}}
	}`, map[string]string{"src/index.ts": "export const x = 1"})

	var seen []string
	runner := newCountingRunner()
	runner.registry.Register(filepath.Join(dir, "iife.js"), func(_ context.Context, entryID string) (any, error) {
		seen = append(seen, entryID)
		return "import * as Demo from './index.js'; globalThis.Demo = Demo", nil
	})

	a, err := Analyze(context.Background(), dir, runner)
	require.NoError(t, err)

	assert.Equal(t, []string{"."}, seen)
	assert.Empty(t, a.Generated)
	assert.Contains(t, a.IIFEGenerated["."], "globalThis.Demo")
}

func TestAnalyze_InvalidEntryIDs(t *testing.T) {
	for _, entryID := range []string{"./a/*/*", "./plugins/x*"} {
		t.Run(entryID, func(t *testing.T) {
			dir := writePackage(t, `{"name": "demo", "buildConfig": {"exports": {"`+entryID+`": {}}}}`, nil)
			_, err := Analyze(context.Background(), dir, nil)
			assert.True(t, errors.Is(err, generator.ErrConfig), "got %v", err)
		})
	}
}

func TestAnalyze_MissingManifest(t *testing.T) {
	_, err := Analyze(context.Background(), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestAnalyze_RoundTrip(t *testing.T) {
	dir := writePackage(t, `{
		"name": "demo",
		"buildConfig": {"exports": {".": {}, "./plugins/*": {"generator": "./gen.js"}}}
	}`, map[string]string{"src/index.ts": "export const x = 1"})

	runner := newCountingRunner()
	runner.registry.Register(filepath.Join(dir, "gen.js"), func(context.Context, string) (any, error) {
		return map[string]any{"a": "A", "b": "B"}, nil
	})

	first, err := Analyze(context.Background(), dir, runner)
	require.NoError(t, err)
	second, err := Analyze(context.Background(), dir, runner)
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, first.Generated, second.Generated)

	fp1, err := first.Fingerprint()
	require.NoError(t, err)
	fp2, err := second.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 16)
}
