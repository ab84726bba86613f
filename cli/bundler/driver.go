package bundler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/generator"
	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

// Pipeline names used in logs and reports.
const (
	PipelineModule = "module"
	PipelineIIFE   = "iife"
	PipelineTypes  = "types"
)

const minifiedIIFEExtension = ".global.min.js"

// Options controls one build or watch run.
type Options struct {
	// Dev skips CommonJS output and minification and emits source maps.
	Dev bool
	// Target is the language level of emitted code.
	Target string
}

// Driver runs the bundling pipelines of a package.
type Driver struct {
	// Engine bundles library modules and browser bundles.
	Engine Engine
	// Declarations bundles declaration files.
	Declarations Engine
	// Minifier produces the minified browser bundle.
	Minifier Minifier
	// Runner resolves generated entries when watch mode re-analyzes a package.
	Runner generator.Runner
}

// NewDriver creates a driver backed by esbuild and the declaration bundler.
func NewDriver(runner generator.Runner, target string) *Driver {
	return &Driver{
		Engine:       NewEsbuildEngine(),
		Declarations: NewDeclarationEngine(),
		Minifier:     EsbuildMinifier{Target: target},
		Runner:       runner,
	}
}

// Build runs the module, browser-bundle and declaration pipelines concurrently.
// A failing pipeline does not stop its siblings; the first error is returned
// once all of them have finished.
func (d *Driver) Build(ctx context.Context, a *analysis.Analysis, opts Options) (*Report, error) {
	report := NewReport(a.Dir)

	var g errgroup.Group
	g.Go(func() error { return d.buildModules(ctx, a, opts, report) })
	g.Go(func() error { return d.buildIIFEs(ctx, a, opts, report) })
	g.Go(func() error { return d.buildTypes(ctx, a, report) })

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (d *Driver) buildModules(ctx context.Context, a *analysis.Analysis, opts Options, report *Report) error {
	outputs := moduleOutputs(a, opts)
	if len(outputs) == 0 {
		log.Debug().Str("pipeline", PipelineModule).Msg("Module output disabled, skipping")
		return nil
	}

	inputs := ModuleInputMap(a)
	log.Info().Str("pipeline", PipelineModule).Int("entries", len(inputs)).Msg("Bundling modules")

	bundle, err := d.Engine.Build(ctx, BuildOptions{
		PackageDir: a.Dir,
		Inputs:     inputs,
		Plugins:    modulePlugins(a, opts.Dev),
		Target:     opts.Target,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", PipelineModule, err)
	}
	defer func() { _ = bundle.Close() }()

	for _, out := range outputs {
		written, err := bundle.Write(ctx, out)
		if err != nil {
			return fmt.Errorf("%s (%s): %w", PipelineModule, out.Format, err)
		}
		report.AddOutput(PipelineModule, written)
		log.Info().
			Str("pipeline", PipelineModule).
			Str("format", string(out.Format)).
			Str("output", out.Dir).
			Int("files", len(written.Files)).
			Msg("Wrote modules")
	}
	return nil
}

func (d *Driver) buildIIFEs(ctx context.Context, a *analysis.Analysis, opts Options, report *Report) error {
	var g errgroup.Group
	for _, target := range IIFETargets(a) {
		target := target
		g.Go(func() error {
			if err := d.buildIIFE(ctx, a, target, opts, report); err != nil {
				return fmt.Errorf("%s %s: %w", PipelineIIFE, target.OutputID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) buildIIFE(ctx context.Context, a *analysis.Analysis, target IIFETarget, opts Options, report *Report) error {
	log.Info().Str("pipeline", PipelineIIFE).Str("entry", target.EntryID).Str("output", target.OutputID).Msg("Bundling browser bundle")

	bundle, err := d.Engine.Build(ctx, BuildOptions{
		PackageDir: a.Dir,
		Inputs:     InputMap{target.OutputID: target.Input},
		Plugins:    iifePlugins(a, target),
		Target:     opts.Target,
	})
	if err != nil {
		return err
	}
	defer func() { _ = bundle.Close() }()

	written, err := bundle.Write(ctx, iifeOutput(a, target, opts))
	if err != nil {
		return err
	}
	report.AddOutput(PipelineIIFE, written)

	if opts.Dev {
		return nil
	}
	distDir := pkgpath.DistDir(a.Dir)
	src := filepath.Join(distDir, filepath.FromSlash(target.OutputID)+iifeExtension)
	dest := filepath.Join(distDir, filepath.FromSlash(target.OutputID)+minifiedIIFEExtension)
	if err := d.Minifier.Minify(ctx, src, dest); err != nil {
		return err
	}
	return report.AddFile(PipelineIIFE, dest)
}

func (d *Driver) buildTypes(ctx context.Context, a *analysis.Analysis, report *Report) error {
	if !a.Manifest.BuildConfig.TypesEnabled() {
		log.Debug().Str("pipeline", PipelineTypes).Msg("Declaration output disabled, skipping")
		return nil
	}
	inputs := TypesInputMap(a)
	if len(inputs) == 0 {
		return nil
	}
	log.Info().Str("pipeline", PipelineTypes).Int("entries", len(inputs)).Msg("Bundling declarations")

	bundle, err := d.Declarations.Build(ctx, BuildOptions{
		PackageDir: a.Dir,
		Inputs:     inputs,
		Plugins:    typesPlugins(a, inputs),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", PipelineTypes, err)
	}
	defer func() { _ = bundle.Close() }()

	written, err := bundle.Write(ctx, OutputOptions{Dir: pkgpath.DistDir(a.Dir), Extension: DeclarationExtension})
	if err != nil {
		return fmt.Errorf("%s: %w", PipelineTypes, err)
	}
	report.AddOutput(PipelineTypes, written)
	return nil
}

// moduleOutputs lists the module formats to write. CommonJS is skipped in
// development mode.
func moduleOutputs(a *analysis.Analysis, opts Options) []OutputOptions {
	cfg := a.Manifest.BuildConfig
	distDir := pkgpath.DistDir(a.Dir)

	var outputs []OutputOptions
	if cfg.ESMEnabled() {
		outputs = append(outputs, OutputOptions{
			Dir:       distDir,
			Format:    FormatESM,
			Extension: ".js",
			Sourcemap: opts.Dev,
		})
	}
	if cfg.CJSEnabled() && !opts.Dev {
		outputs = append(outputs, OutputOptions{
			Dir:       distDir,
			Format:    FormatCJS,
			Extension: ".cjs",
		})
	}
	return outputs
}

func iifeOutput(a *analysis.Analysis, target IIFETarget, opts Options) OutputOptions {
	return OutputOptions{
		Dir:        pkgpath.DistDir(a.Dir),
		Format:     FormatIIFE,
		Extension:  iifeExtension,
		Sourcemap:  opts.Dev,
		GlobalName: target.Config.Name,
		Globals:    target.Config.Globals,
	}
}

// modulePlugins composes the module pipeline. Compiled source maps are only
// inlined for one-shot development builds.
func modulePlugins(a *analysis.Analysis, sourcemaps bool) Pipeline {
	plugins := Pipeline{
		GeneratedContent(a),
		ExternalizeDependencies(a.Manifest),
		RerootAssets(a.Dir),
	}
	if sourcemaps {
		plugins = append(plugins, SourcemapLoader(a.Dir))
	}
	return append(plugins, ContentProcessing()...)
}

func iifePlugins(a *analysis.Analysis, target IIFETarget) Pipeline {
	plugins := Pipeline{
		GeneratedContent(a),
		ExternalizeGlobals(target.Config.Globals),
		RerootAssets(a.Dir),
	}
	return append(plugins, ContentProcessing()...)
}

func typesPlugins(a *analysis.Analysis, inputs InputMap) Pipeline {
	return Pipeline{
		GeneratedDeclarations(a),
		ExternalizeDependencies(a.Manifest),
		ExternalizeExports(inputs),
		ExternalizeAssets(),
	}
}
