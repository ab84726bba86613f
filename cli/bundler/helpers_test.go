package bundler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/generator"
	"github.com/fluxbase-eu/pkgkit/internal/pkgjson"
)

// writePackage lays out a package directory from a manifest and a set of files
// relative to the package root.
func writePackage(t *testing.T, manifest string, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"package.json": manifest})
	writeFiles(t, dir, files)
	return dir
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func analyze(t *testing.T, dir string, registry *generator.Registry) *analysis.Analysis {
	t.Helper()
	if registry == nil {
		registry = generator.NewRegistry()
	}
	a, err := analysis.Analyze(context.Background(), dir, registry)
	require.NoError(t, err)
	return a
}

func parseManifest(t *testing.T, data string) *pkgjson.Manifest {
	t.Helper()
	m, err := pkgjson.Parse([]byte(data))
	require.NoError(t, err)
	return m
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
