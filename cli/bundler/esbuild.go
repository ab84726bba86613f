package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// globalNamespace holds externals satisfied by a browser global.
const globalNamespace = "pkgkit-global"

// DefaultTarget is the language level used when none is configured.
const DefaultTarget = "es2020"

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

var platforms = map[string]api.Platform{
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

var loaders = map[Loader]api.Loader{
	LoaderJS:   api.LoaderJS,
	LoaderTS:   api.LoaderTS,
	LoaderTSX:  api.LoaderTSX,
	LoaderJSON: api.LoaderJSON,
	LoaderCSS:  api.LoaderCSS,
	LoaderText: api.LoaderText,
}

// ParseTarget maps a target name onto an esbuild language level.
func ParseTarget(name string) (api.Target, error) {
	if name == "" {
		name = DefaultTarget
	}
	target, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown target %q", name)
	}
	return target, nil
}

// EsbuildEngine bundles modules and browser bundles with esbuild.
type EsbuildEngine struct{}

// NewEsbuildEngine creates an esbuild-backed engine.
func NewEsbuildEngine() *EsbuildEngine {
	return &EsbuildEngine{}
}

// Build validates the options; esbuild resolves and writes in a single step,
// so the work happens once per Write.
func (e *EsbuildEngine) Build(ctx context.Context, opts BuildOptions) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs to bundle")
	}
	if _, err := ParseTarget(opts.Target); err != nil {
		return nil, err
	}
	return &esbuildBundle{opts: opts}, nil
}

// Watch starts one esbuild context per output and keeps rebuilding on source
// changes until the session is closed.
func (e *EsbuildEngine) Watch(ctx context.Context, opts BuildOptions, outputs []OutputOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session := &esbuildSession{}
	for _, out := range outputs {
		buildOpts, err := esbuildOptions(opts, out)
		if err != nil {
			_ = session.Close()
			return nil, err
		}
		buildOpts.Plugins = append(buildOpts.Plugins, rebuildLogger(out))

		buildCtx, ctxErr := api.Context(buildOpts)
		if ctxErr != nil {
			_ = session.Close()
			return nil, fmt.Errorf("failed to create build context: %s", strings.Join(formatMessages(ctxErr.Errors), "\n"))
		}
		session.contexts = append(session.contexts, buildCtx)

		if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("failed to start watch: %w", err)
		}
	}
	return session, nil
}

type esbuildBundle struct {
	opts BuildOptions
}

func (b *esbuildBundle) Write(ctx context.Context, out OutputOptions) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buildOpts, err := esbuildOptions(b.opts, out)
	if err != nil {
		return nil, err
	}

	result := api.Build(buildOpts)
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(formatMessages(result.Errors), "\n"))
	}

	var meta Metafile
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	return &Output{Files: meta.OutputFiles(b.opts.PackageDir), Metafile: &meta}, nil
}

func (b *esbuildBundle) Close() error { return nil }

type esbuildSession struct {
	contexts []api.BuildContext
}

func (s *esbuildSession) Close() error {
	for _, buildCtx := range s.contexts {
		buildCtx.Dispose()
	}
	s.contexts = nil
	return nil
}

func esbuildOptions(opts BuildOptions, out OutputOptions) (api.BuildOptions, error) {
	target, err := ParseTarget(opts.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}

	cfg := Config{Platform: "neutral"}
	opts.Plugins.Configure(&cfg)
	platform, ok := platforms[cfg.Platform]
	if !ok {
		return api.BuildOptions{}, fmt.Errorf("unknown platform %q", cfg.Platform)
	}

	entries := make([]api.EntryPoint, 0, len(opts.Inputs))
	for _, id := range opts.Inputs.OutputIDs() {
		entries = append(entries, api.EntryPoint{InputPath: opts.Inputs[id], OutputPath: id})
	}

	buildOpts := api.BuildOptions{
		EntryPointsAdvanced: entries,
		Outdir:              out.Dir,
		Bundle:              true,
		Write:               true,
		Metafile:            true,
		Platform:            platform,
		Conditions:          cfg.Conditions,
		MainFields:          cfg.MainFields,
		Target:              target,
		LogLevel:            api.LogLevelSilent,
		AbsWorkingDir:       opts.PackageDir,
		Plugins:             []api.Plugin{pipelinePlugin(opts.Plugins, out.Globals)},
	}
	if out.Extension != "" && out.Extension != ".js" {
		buildOpts.OutExtension = map[string]string{".js": out.Extension}
	}
	if out.Sourcemap {
		buildOpts.Sourcemap = api.SourceMapLinked
	}

	switch out.Format {
	case FormatESM:
		buildOpts.Format = api.FormatESModule
		buildOpts.Splitting = len(entries) > 1
	case FormatCJS:
		buildOpts.Format = api.FormatCommonJS
	case FormatIIFE:
		buildOpts.Format = api.FormatIIFE
		buildOpts.GlobalName = out.GlobalName
	default:
		return api.BuildOptions{}, fmt.Errorf("unknown output format %q", out.Format)
	}
	return buildOpts, nil
}

// pipelinePlugin runs a Pipeline inside esbuild. Externals with a configured
// global are replaced by a module reading that global.
func pipelinePlugin(pipeline Pipeline, globals map[string]string) api.Plugin {
	return api.Plugin{
		Name: "pkgkit-pipeline",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					res, name, err := pipeline.Resolve(ResolveArgs{
						Specifier:  args.Path,
						Importer:   args.Importer,
						ResolveDir: args.ResolveDir,
						Entry:      args.Kind == api.ResolveEntryPoint,
					})
					if err != nil || !res.IsClaimed() {
						return api.OnResolveResult{}, err
					}
					if !res.External {
						return api.OnResolveResult{Path: res.Path, PluginName: name}, nil
					}
					if global, ok := globals[res.Path]; ok {
						return api.OnResolveResult{
							Path:       res.Path,
							Namespace:  globalNamespace,
							PluginData: global,
							PluginName: name,
						}, nil
					}
					return api.OnResolveResult{Path: res.Path, External: true, PluginName: name}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: globalNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					global, _ := args.PluginData.(string)
					contents := fmt.Sprintf("module.exports = globalThis[%q];\n", global)
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					loaded, name, err := pipeline.Load(args.Path)
					if err != nil || !loaded.IsClaimed() {
						return api.OnLoadResult{}, err
					}
					loader, ok := loaders[loaded.Loader]
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("plugin %s: unknown loader %q", name, loaded.Loader)
					}
					resolveDir := loaded.ResolveDir
					if resolveDir == "" {
						resolveDir = filepath.Dir(args.Path)
					}
					contents := loaded.Contents
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     loader,
						ResolveDir: resolveDir,
						PluginName: name,
					}, nil
				})
		},
	}
}

// rebuildLogger reports the outcome of every watch rebuild.
func rebuildLogger(out OutputOptions) api.Plugin {
	return api.Plugin{
		Name: "pkgkit-rebuild-log",
		Setup: func(build api.PluginBuild) {
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					log.Error().
						Str("format", string(out.Format)).
						Str("output", out.Dir).
						Msg(strings.Join(formatMessages(result.Errors), "\n"))
					return api.OnEndResult{}, nil
				}
				log.Info().
					Str("format", string(out.Format)).
					Str("output", out.Dir).
					Msg("Rebuilt bundle")
				return api.OnEndResult{}, nil
			})
		},
	}
}

// moduleExports lists the names a TypeScript module exports, sorted. Star
// re-exports of other modules are not followed.
func moduleExports(contents, sourcefile string) ([]string, error) {
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   contents,
			Sourcefile: sourcefile,
			Loader:     api.LoaderTS,
		},
		Outfile:  "exports.js",
		Format:   api.FormatESModule,
		Metafile: true,
		Write:    false,
		LogLevel: api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(formatMessages(result.Errors), "\n"))
	}

	var meta Metafile
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	var exports []string
	for _, out := range meta.Outputs {
		exports = append(exports, out.Exports...)
	}
	sort.Strings(exports)
	return exports, nil
}

// EsbuildMinifier minifies written browser bundles with esbuild's transform API.
type EsbuildMinifier struct {
	Target string
}

// Minify writes a minified copy of src to dest.
func (m EsbuildMinifier) Minify(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := ParseTarget(m.Target)
	if err != nil {
		return err
	}
	code, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}

	result := api.Transform(string(code), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            target,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcefile:        filepath.Base(src),
	})
	if len(result.Errors) > 0 {
		return fmt.Errorf("failed to minify %s: %s", src, strings.Join(formatMessages(result.Errors), "\n"))
	}
	if err := os.WriteFile(dest, result.Code, 0o644); err != nil { //nolint:gosec // published artifact
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func formatMessages(msgs []api.Message) []string {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	for i, msg := range formatted {
		formatted[i] = strings.TrimSpace(msg)
	}
	return formatted
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
