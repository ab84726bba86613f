package pkgpath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputID(t *testing.T) {
	tests := []struct {
		sourcePath string
		expected   string
	}{
		{"./foo/bar.ts", "foo/bar"},
		{"./index.tsx", "index"},
		{"./index.ts", "index"},
		{"foo.d.ts", "foo"},
		{"./plugins/a.js", "plugins/a"},
		{"./no-ext", "no-ext"},
	}

	for _, tt := range tests {
		t.Run(tt.sourcePath, func(t *testing.T) {
			result := OutputID(tt.sourcePath)
			if result != tt.expected {
				t.Errorf("OutputID(%q) = %q, want %q", tt.sourcePath, result, tt.expected)
			}
			// Repeated calls must yield the same identifier so watch rebuilds keep filenames.
			if again := OutputID(tt.sourcePath); again != result {
				t.Errorf("OutputID(%q) not stable: %q then %q", tt.sourcePath, result, again)
			}
		})
	}
}

func TestIsPathAsset(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"foo.css", true},
		{"./styles/main.css", true},
		{"foo.ts", false},
		{"foo.csst", false},
		{"css", false},
		{"foo.js", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if result := IsPathAsset(tt.path); result != tt.expected {
				t.Errorf("IsPathAsset(%q) = %v, want %v", tt.path, result, tt.expected)
			}
		})
	}
}

func TestSpecifierClassification(t *testing.T) {
	assert.True(t, IsRelative("./foo"))
	assert.True(t, IsRelative("../foo"))
	assert.True(t, IsRelative("."))
	assert.False(t, IsRelative("lodash"))
	assert.False(t, IsRelative(".hidden"))

	assert.True(t, IsBare("lodash/debounce"))
	assert.True(t, IsBare("@scope/pkg"))
	assert.False(t, IsBare("./foo"))
	assert.False(t, IsBare("/abs/path.js"))
	assert.False(t, IsBare("node:fs"))
	assert.False(t, IsBare("https://cdn.example.com/x.js"))
}

func TestPackageName(t *testing.T) {
	assert.Equal(t, "lodash", PackageName("lodash/debounce"))
	assert.Equal(t, "lodash", PackageName("lodash"))
	assert.Equal(t, "@scope/pkg", PackageName("@scope/pkg/sub/path"))
	assert.Equal(t, "@scope/pkg", PackageName("@scope/pkg"))
}

func TestEntryIdentifiers(t *testing.T) {
	assert.Equal(t, "index", EntryBase("."))
	assert.Equal(t, "plugins/*", EntryBase("./plugins/*"))
	assert.Equal(t, ".", EntryIDFromOutputID("index"))
	assert.Equal(t, "./plugins/a", EntryIDFromOutputID("plugins/a"))
	assert.Equal(t, "./index.ts", SourcePathFromEntryID("."))
	assert.Equal(t, "./plugins/a.ts", SourcePathFromEntryID("./plugins/a"))
	assert.Equal(t, "./plugins/a", ExpandWildcard("./plugins/*", "a"))
	assert.True(t, HasWildcard("./plugins/*"))
	assert.False(t, HasWildcard("./plugins/a"))
}

func TestTscPath(t *testing.T) {
	pkg := filepath.FromSlash("/repo/packages/core")
	assert.Equal(t, filepath.FromSlash("/repo/packages/core/dist/.tsc/plugins/a.js"), TscPath(pkg, "plugins/a", ".js"))
	assert.Equal(t, filepath.FromSlash("/repo/packages/core/dist/.tsc/index.d.ts"), TscPath(pkg, "index", ".d.ts"))
}

func TestWithin(t *testing.T) {
	dir := filepath.FromSlash("/repo/dist/.tsc")
	assert.True(t, Within(dir, filepath.FromSlash("/repo/dist/.tsc/a/b.css")))
	assert.True(t, Within(dir, dir))
	assert.False(t, Within(dir, filepath.FromSlash("/repo/src/b.css")))
	assert.False(t, Within(dir, filepath.FromSlash("/repo/dist/.tscx/b.css")))
}
