package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/generator"
)

func writePackage(t *testing.T, dir, manifest string, files map[string]string) {
	t.Helper()
	files["package.json"] = manifest
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestPackageDir(t *testing.T) {
	assert.Equal(t, ".", packageDir(nil))
	assert.Equal(t, ".", packageDir([]string{""}))
	assert.Equal(t, "packages/core", packageDir([]string{"packages/core/"}))
}

func TestSummarizeAnalysis(t *testing.T) {
	dir := t.TempDir()
	writePackage(t, dir, `{
		"name": "@demo/core",
		"buildConfig": {"exports": {
			".": {"iife": {"name": "Core"}},
			"./icons/*": {"generator": "./gen.js"}
		}}
	}`, map[string]string{"src/index.ts": "export {}"})
	registry := generator.NewRegistry()
	registry.Register(filepath.Join(dir, "gen.js"), func(_ context.Context, _ string) (any, error) {
		return map[string]string{"star": "export {}"}, nil
	})

	a, err := analysis.Analyze(context.Background(), dir, registry)
	require.NoError(t, err)
	summary, err := summarizeAnalysis(a)
	require.NoError(t, err)

	assert.Equal(t, "@demo/core", summary.Package)
	assert.Len(t, summary.Fingerprint, 16)
	require.Len(t, summary.Entries, 2)
	assert.Equal(t, entrySummary{
		Entry:     ".",
		Sources:   []string{"./index.ts"},
		OutputIDs: []string{"index"},
		IIFE:      "Core",
	}, summary.Entries[0])
	assert.Equal(t, entrySummary{
		Entry:     "./icons/*",
		Sources:   []string{"./icons/star.ts"},
		OutputIDs: []string{"icons/star"},
		Generated: true,
	}, summary.Entries[1])
}

func TestManifestCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	dir := filepath.Join(root, "packages", "core")
	writePackage(t, dir, `{
		"name": "@demo/core",
		"version": "1.2.3",
		"scripts": {"build": "pkgkit build"},
		"repository": {"type": "git", "url": "https://example.com/demo.git"},
		"buildConfig": {"exports": {".": {}, "./icons/*": {"generator": "./gen.js"}}}
	}`, map[string]string{"src/index.ts": "export {}"})
	generator.Default.Register(filepath.Join(dir, "gen.js"), func(context.Context, string) (any, error) {
		return map[string]string{"star": "export const star = 1;"}, nil
	})

	rootCmd.SetArgs([]string{"manifest", dir, "--root", root, "--quiet"})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(filepath.Join(dir, "dist", "package.json"))
	require.NoError(t, err)
	var published map[string]any
	require.NoError(t, json.Unmarshal(data, &published))

	assert.Equal(t, "./index.js", published["module"])
	exports, ok := published["exports"].(map[string]any)
	require.True(t, ok)
	icons, ok := exports["./icons/star"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "./icons/star.d.ts", icons["types"], "generated entries publish declarations")
	assert.NotContains(t, published, "scripts")
	assert.NotContains(t, published, "buildConfig")
	repo, ok := published["repository"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "packages/core", repo["directory"])
}
