package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/pkgkit/cli/bundler"
	"github.com/fluxbase-eu/pkgkit/cli/output"
	"github.com/fluxbase-eu/pkgkit/internal/analysis"
)

var (
	buildDev   bool
	buildWatch bool
)

var buildCmd = &cobra.Command{
	Use:   "build [dir]",
	Short: "Bundle a package",
	Long: `Bundle the package in dir (default: the current directory).

The package must already be compiled into dist/.tsc. Library modules,
standalone browser bundles and type declarations are written to dist/.

In watch mode, modules and browser bundles are rebuilt whenever their inputs
change, and the package is re-analyzed whenever package.json changes.
Declarations are not rebuilt in watch mode.

Unknown flags are ignored so build scripts can pass their own options through.`,
	Example: `  # Production build
  pkgkit build packages/core

  # Development build (no CommonJS, no minification, with source maps)
  pkgkit build packages/core --dev

  # Rebuild on changes until interrupted
  pkgkit build packages/core --dev --watch`,
	Args:               cobra.MaximumNArgs(1),
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	RunE:               runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildDev, "dev", false, "development build: skip CommonJS and minification, emit source maps")
	buildCmd.Flags().BoolVarP(&buildWatch, "watch", "w", false, "rebuild on changes until interrupted")
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir := packageDir(args)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := newDriver()
	opts := bundler.Options{Dev: buildDev, Target: cfg.Target}

	if buildWatch {
		log.Info().Str("dir", dir).Msg("Starting watch mode, press Ctrl+C to stop")
		return driver.Watch(ctx, dir, opts)
	}

	start := time.Now()
	a, err := analysis.Analyze(ctx, dir, driver.Runner)
	if err != nil {
		return err
	}
	report, err := driver.Build(ctx, a, opts)
	if err != nil {
		return err
	}
	log.Info().
		Str("package", a.Manifest.Name).
		Dur("duration", time.Since(start)).
		Msg("Build complete")

	f := GetFormatter()
	if f.Quiet {
		return nil
	}
	if f.Format == output.FormatTable {
		bundler.DisplayReport(f.Writer, report)
		return nil
	}
	return f.Print(report.Artifacts())
}

// packageDir returns the package directory argument, defaulting to the
// current directory.
func packageDir(args []string) string {
	if len(args) == 0 || args[0] == "" {
		return "."
	}
	return filepath.Clean(args[0])
}
