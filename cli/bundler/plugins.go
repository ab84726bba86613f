package bundler

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/pkgjson"
	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

// iifeExtension names generated browser-bundle sources and written browser bundles.
const iifeExtension = ".global.js"

// sourceMappingURLRegex matches a trailing sourceMappingURL comment.
var sourceMappingURLRegex = regexp.MustCompile(`(?m)^//# sourceMappingURL=.*$`)

// GeneratedContent serves generator output from the intermediate path the entry
// would have occupied on disk, so virtual entries bundle like real files.
func GeneratedContent(a *analysis.Analysis) Plugin {
	contents := make(map[string]string, len(a.Generated)+len(a.IIFEGenerated))
	for entryID, text := range a.Generated {
		outputID := pkgpath.OutputID(pkgpath.SourcePathFromEntryID(entryID))
		contents[pkgpath.TscPath(a.Dir, outputID, ".js")] = text
	}
	for entryID, text := range a.IIFEGenerated {
		outputID := pkgpath.OutputID(pkgpath.SourcePathFromEntryID(entryID))
		contents[pkgpath.TscPath(a.Dir, outputID, iifeExtension)] = text
	}

	return Plugin{
		Name: "generated-content",
		ResolveID: func(args ResolveArgs) (Resolution, error) {
			path := args.Specifier
			if pkgpath.IsRelative(path) {
				path = filepath.Join(resolveDir(args), path)
			}
			if !filepath.IsAbs(path) {
				return Deferred(), nil
			}
			path = filepath.Clean(path)
			if _, ok := contents[path]; ok {
				return Claimed(path), nil
			}
			return Deferred(), nil
		},
		Load: func(path string) (Loaded, error) {
			if text, ok := contents[path]; ok {
				return Served(text, LoaderTS), nil
			}
			return NotLoaded(), nil
		},
	}
}

// GeneratedDeclarations serves a declaration for every generated entry that
// has no compiled declaration on disk. Each export of the generated source is
// declared with type any.
func GeneratedDeclarations(a *analysis.Analysis) Plugin {
	sources := make(map[string]string, len(a.Generated))
	for entryID, text := range a.Generated {
		outputID := pkgpath.OutputID(pkgpath.SourcePathFromEntryID(entryID))
		sources[pkgpath.TscPath(a.Dir, outputID, DeclarationExtension)] = text
	}

	return Plugin{
		Name: "generated-declarations",
		Load: func(path string) (Loaded, error) {
			text, ok := sources[path]
			if !ok {
				return NotLoaded(), nil
			}
			if _, err := os.Stat(path); err == nil {
				return NotLoaded(), nil
			}
			exports, err := moduleExports(text, filepath.Base(path))
			if err != nil {
				return Loaded{}, fmt.Errorf("generated entry %s: %w", path, err)
			}
			return Served(declareExports(exports), LoaderTS), nil
		},
	}
}

func declareExports(exports []string) string {
	var sb strings.Builder
	hasDefault := false
	for _, name := range exports {
		if name == "default" {
			hasDefault = true
			continue
		}
		fmt.Fprintf(&sb, "export declare const %s: any;\n", name)
	}
	if hasDefault {
		sb.WriteString("declare const _default: any;\nexport default _default;\n")
	}
	if sb.Len() == 0 {
		sb.WriteString("export {};\n")
	}
	return sb.String()
}

// ExternalizeDependencies keeps imports of runtime and peer dependencies out of
// the bundle. Development dependencies are inlined.
func ExternalizeDependencies(m *pkgjson.Manifest) Plugin {
	return Plugin{
		Name: "externalize-dependencies",
		ResolveID: func(args ResolveArgs) (Resolution, error) {
			if pkgpath.IsBare(args.Specifier) && m.IsExternalPackage(pkgpath.PackageName(args.Specifier)) {
				return External(args.Specifier), nil
			}
			return Deferred(), nil
		},
	}
}

// ExternalizeGlobals keeps imports satisfied by browser globals out of a
// standalone bundle.
func ExternalizeGlobals(globals map[string]string) Plugin {
	return Plugin{
		Name: "externalize-globals",
		ResolveID: func(args ResolveArgs) (Resolution, error) {
			if _, ok := globals[args.Specifier]; ok {
				return External(args.Specifier), nil
			}
			return Deferred(), nil
		},
	}
}

// ExternalizeExports turns declaration imports of the package's other entry
// points into external imports of their runtime files, so each declaration
// bundle references its siblings instead of inlining them.
func ExternalizeExports(inputs InputMap) Plugin {
	entries := make(map[string]bool, len(inputs))
	for _, path := range inputs {
		entries[pkgpath.StripExtension(filepath.Clean(path))] = true
	}

	return Plugin{
		Name: "externalize-exports",
		ResolveID: func(args ResolveArgs) (Resolution, error) {
			if args.Importer == "" || !pkgpath.IsRelative(args.Specifier) {
				return Deferred(), nil
			}
			target := pkgpath.StripExtension(filepath.Join(filepath.Dir(args.Importer), args.Specifier))
			if !entries[target] || target == pkgpath.StripExtension(args.Importer) {
				return Deferred(), nil
			}
			return External(pkgpath.StripExtension(args.Specifier) + ".js"), nil
		},
	}
}

// ExternalizeAssets keeps asset imports out of declaration bundles.
func ExternalizeAssets() Plugin {
	return Plugin{
		Name: "externalize-assets",
		ResolveID: func(args ResolveArgs) (Resolution, error) {
			if pkgpath.IsPathAsset(args.Specifier) {
				return External(args.Specifier), nil
			}
			return Deferred(), nil
		},
	}
}

// RerootAssets points asset imports that resolve into the intermediate tree back
// at the source directory; the upstream compile step does not copy assets.
func RerootAssets(pkgDir string) Plugin {
	tscDir := pkgpath.TscDir(pkgDir)
	srcDir := pkgpath.SrcDir(pkgDir)

	return Plugin{
		Name: "reroot-assets",
		ResolveID: func(args ResolveArgs) (Resolution, error) {
			if !pkgpath.IsRelative(args.Specifier) || !pkgpath.IsPathAsset(args.Specifier) {
				return Deferred(), nil
			}
			path := filepath.Join(resolveDir(args), args.Specifier)
			if !pkgpath.Within(tscDir, path) {
				return Deferred(), nil
			}
			rel, err := filepath.Rel(tscDir, path)
			if err != nil {
				return Deferred(), nil //nolint:nilerr // not inside the intermediate tree
			}
			return Claimed(filepath.Join(srcDir, rel)), nil
		},
	}
}

// SourcemapLoader feeds source maps written by the upstream compile step into
// the engine by inlining them into the compiled module.
func SourcemapLoader(pkgDir string) Plugin {
	tscDir := pkgpath.TscDir(pkgDir)

	return Plugin{
		Name: "sourcemaps",
		Load: func(path string) (Loaded, error) {
			if !strings.HasSuffix(path, ".js") || !pkgpath.Within(tscDir, path) {
				return NotLoaded(), nil
			}
			sourceMap, err := os.ReadFile(path + ".map")
			if err != nil {
				return NotLoaded(), nil //nolint:nilerr // no map next to the module
			}
			code, err := os.ReadFile(path)
			if err != nil {
				return Loaded{}, err
			}
			text := strings.TrimRight(sourceMappingURLRegex.ReplaceAllString(string(code), ""), "\n")
			text += "\n//# sourceMappingURL=data:application/json;base64," +
				base64.StdEncoding.EncodeToString(sourceMap) + "\n"
			return Served(text, LoaderJS), nil
		},
	}
}

func resolveDir(args ResolveArgs) string {
	if args.ResolveDir != "" {
		return args.ResolveDir
	}
	return filepath.Dir(args.Importer)
}
