package bundler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/pkgkit/internal/generator"
	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

func TestInputMaps(t *testing.T) {
	dir := writePackage(t, `{
		"name": "demo",
		"buildConfig": {"exports": {
			".": {"iife": {"name": "Demo"}},
			"./locales/*": {},
			"./plugins/*": {"generator": "./gen.js"}
		}}
	}`, map[string]string{
		"src/index.ts":      "export {}",
		"src/locales/en.ts": "export {}",
		"src/locales/fr.ts": "export {}",
	})
	registry := generator.NewRegistry()
	registry.Register(filepath.Join(dir, "gen.js"), func(context.Context, string) (any, error) {
		return map[string]any{"a": "export {}"}, nil
	})
	a := analyze(t, dir, registry)
	tsc := pkgpath.TscDir(a.Dir)

	modules := ModuleInputMap(a)
	assert.Equal(t, InputMap{
		"index":      filepath.Join(tsc, "index.js"),
		"locales/en": filepath.Join(tsc, "locales", "en.js"),
		"locales/fr": filepath.Join(tsc, "locales", "fr.js"),
		"plugins/a":  filepath.Join(tsc, "plugins", "a.js"),
	}, modules)
	assert.Equal(t, []string{"index", "locales/en", "locales/fr", "plugins/a"}, modules.OutputIDs())

	types := TypesInputMap(a)
	assert.Equal(t, InputMap{
		"index":      filepath.Join(tsc, "index.d.ts"),
		"locales/en": filepath.Join(tsc, "locales", "en.d.ts"),
		"locales/fr": filepath.Join(tsc, "locales", "fr.d.ts"),
		"plugins/a":  filepath.Join(tsc, "plugins", "a.d.ts"),
	}, types)
	assert.Equal(t, modules.OutputIDs(), types.OutputIDs(), "every source gets a declaration entry")

	assert.Equal(t, InputMap{"index": filepath.Join(tsc, "index.js")}, IIFEInputMap(a))
	assert.Equal(t, modules, ModuleInputMap(a), "input maps are deterministic")
}

func TestIIFETargets(t *testing.T) {
	dir := writePackage(t, `{
		"name": "demo",
		"buildConfig": {"exports": {
			"./widgets/*": {"iife": {"name": "Widgets", "globals": {"react": "React"}, "generator": "./iife.js"}},
			"./plain": {"iife": {"name": "Plain"}},
			"./lib": {}
		}}
	}`, map[string]string{
		"src/widgets/button.ts": "export {}",
		"src/widgets/card.tsx":  "export {}",
		"src/plain.ts":          "export {}",
		"src/lib.ts":            "export {}",
	})
	registry := generator.NewRegistry()
	registry.Register(filepath.Join(dir, "iife.js"), func(_ context.Context, entryID string) (any, error) {
		return "export const id = '" + entryID + "'", nil
	})
	a := analyze(t, dir, registry)
	tsc := pkgpath.TscDir(a.Dir)

	targets := IIFETargets(a)
	require.Len(t, targets, 3)

	assert.Equal(t, "plain", targets[0].OutputID)
	assert.Equal(t, filepath.Join(tsc, "plain.js"), targets[0].Input)
	assert.Equal(t, "Plain", targets[0].Config.Name)

	assert.Equal(t, "widgets/button", targets[1].OutputID)
	assert.Equal(t, "./widgets/*", targets[1].EntryID)
	assert.Equal(t, "./widgets/button.ts", targets[1].Source)
	assert.Equal(t, filepath.Join(tsc, "widgets", "button.global.js"), targets[1].Input)
	assert.Equal(t, map[string]string{"react": "React"}, targets[1].Config.Globals)

	assert.Equal(t, "widgets/card", targets[2].OutputID)
	assert.Equal(t, filepath.Join(tsc, "widgets", "card.global.js"), targets[2].Input)
}
