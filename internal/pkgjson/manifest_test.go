package pkgjson

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
  "name": "@demo/core",
  "version": "6.1.0",
  "scripts": {"build": "pkgkit build"},
  "dependencies": {"preact": "^10.0.0"},
  "peerDependencies": {"@demo/base": "*"},
  "devDependencies": {"typescript": "^5.0.0"},
  "repository": {"type": "git", "url": "https://github.com/demo/demo.git"},
  "buildConfig": {
    "types": false,
    "exports": {
      ".": {"iife": {"name": "Demo", "globals": {"preact": "preact"}}},
      "./plugins/*": {"generator": "./scripts/plugins.js"}
    }
  }
}`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "@demo/core", m.Name)
	assert.True(t, m.BuildConfig.ESMEnabled())
	assert.True(t, m.BuildConfig.CJSEnabled())
	assert.False(t, m.BuildConfig.TypesEnabled())
	assert.Equal(t, []string{".", "./plugins/*"}, m.BuildConfig.EntryIDs())

	root := m.BuildConfig.Exports["."]
	require.NotNil(t, root.IIFE)
	assert.Equal(t, "Demo", root.IIFE.Name)
	assert.Equal(t, "preact", root.IIFE.Globals["preact"])
	assert.Equal(t, "./scripts/plugins.js", m.BuildConfig.Exports["./plugins/*"].Generator)

	assert.Equal(t, []string{"name", "version", "scripts", "dependencies", "peerDependencies",
		"devDependencies", "repository", "buildConfig"}, m.Document().Keys())
}

func TestIsExternalPackage(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.True(t, m.IsExternalPackage("preact"))
	assert.True(t, m.IsExternalPackage("@demo/base"))
	assert.False(t, m.IsExternalPackage("typescript"), "dev dependencies are inlined")
	assert.False(t, m.IsExternalPackage("lodash"))
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(sampleManifest), 0644))

	m, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "6.1.0", m.Version)

	_, err = Read(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestDocument_RoundTripKeepsOrder(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"z": 1, "a": {"b": true}, "m": "x"}`), &doc))
	assert.Equal(t, []string{"z", "a", "m"}, doc.Keys())

	require.NoError(t, doc.Set("a", "replaced"))
	require.NoError(t, doc.Set("new", 2))
	doc.Delete("z")

	out, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":"replaced","m":"x","new":2}`, string(out))
}
