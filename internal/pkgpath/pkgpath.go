// Package pkgpath maps export-map entries and source files to the identifiers and
// directories used by the bundling pipeline.
package pkgpath

import (
	"path"
	"path/filepath"
	"strings"
)

const (
	// SrcDirName holds the package sources.
	SrcDirName = "src"
	// DistDirName holds the final artifacts.
	DistDirName = "dist"
	// TscDirName holds the intermediate compiled tree, relative to the dist directory.
	TscDirName = ".tsc"

	// Wildcard is the placeholder segment of a wildcard entry identifier.
	Wildcard = "*"
)

// assetExtensions lists extensions of files that are never compiled by the upstream
// compile step and therefore only exist under the source directory.
var assetExtensions = []string{".css"}

// sourceExtensions are stripped when deriving an output identifier.
var sourceExtensions = []string{".d.ts", ".tsx", ".ts", ".jsx", ".mjs", ".cjs", ".js"}

// SrcDir returns the source directory of a package.
func SrcDir(pkgDir string) string {
	return filepath.Join(pkgDir, SrcDirName)
}

// DistDir returns the artifact directory of a package.
func DistDir(pkgDir string) string {
	return filepath.Join(pkgDir, DistDirName)
}

// TscDir returns the intermediate compiled directory of a package.
func TscDir(pkgDir string) string {
	return filepath.Join(pkgDir, DistDirName, TscDirName)
}

// OutputID derives the canonical output identifier of a relative source path:
// the leading "./" and the extension are stripped.
//
//	OutputID("./foo/bar.ts") == "foo/bar"
func OutputID(sourcePath string) string {
	id := strings.TrimPrefix(filepath.ToSlash(sourcePath), "./")
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(id, ext) {
			return strings.TrimSuffix(id, ext)
		}
	}
	return strings.TrimSuffix(id, path.Ext(id))
}

// TscPath returns the absolute intermediate path for an output identifier.
func TscPath(pkgDir, outputID, ext string) string {
	return filepath.Join(TscDir(pkgDir), filepath.FromSlash(outputID)+ext)
}

// EntryBase converts an entry identifier into a path relative to the source
// directory without extension. The root entry "." maps to "index".
func EntryBase(entryID string) string {
	if entryID == "." || entryID == "./" || entryID == "" {
		return "index"
	}
	return strings.TrimSuffix(strings.TrimPrefix(entryID, "./"), "/")
}

// EntryIDFromOutputID is the inverse of EntryBase.
func EntryIDFromOutputID(outputID string) string {
	if outputID == "index" {
		return "."
	}
	return "./" + outputID
}

// SourcePathFromEntryID returns the relative virtual source path used for
// generated entries.
func SourcePathFromEntryID(entryID string) string {
	return "./" + EntryBase(entryID) + ".ts"
}

// HasWildcard reports whether an entry identifier contains the wildcard segment.
func HasWildcard(entryID string) bool {
	return strings.Contains(entryID, Wildcard)
}

// ExpandWildcard substitutes key for the wildcard segment of entryID.
func ExpandWildcard(entryID, key string) string {
	return strings.Replace(entryID, Wildcard, key, 1)
}

// IsRelative reports whether an import specifier is relative to its importer.
func IsRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// IsBare reports whether an import specifier is package-style, e.g. "lodash/debounce".
func IsBare(specifier string) bool {
	if specifier == "" || IsRelative(specifier) || path.IsAbs(specifier) || filepath.IsAbs(specifier) {
		return false
	}
	// Protocol specifiers such as "node:fs" or "https://..." are not package names.
	return !strings.Contains(strings.SplitN(specifier, "/", 2)[0], ":")
}

// PackageName returns the leading package-name segment of a bare specifier,
// keeping the scope for scoped packages.
//
//	PackageName("lodash/debounce") == "lodash"
//	PackageName("@scope/pkg/sub") == "@scope/pkg"
func PackageName(specifier string) string {
	parts := strings.Split(specifier, "/")
	if strings.HasPrefix(specifier, "@") && len(parts) > 1 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// IsPathAsset reports whether a path points at a non-code asset.
func IsPathAsset(p string) bool {
	ext := path.Ext(p)
	for _, assetExt := range assetExtensions {
		if ext == assetExt {
			return true
		}
	}
	return false
}

// StripExtension removes a known source extension from p, if any.
func StripExtension(p string) string {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(p, ext) {
			return strings.TrimSuffix(p, ext)
		}
	}
	return p
}

// Within reports whether target is dir itself or lives beneath it.
func Within(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
