// Package cmd provides the Cobra commands for the pkgkit CLI.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/pkgkit/cli/bundler"
	cliconfig "github.com/fluxbase-eu/pkgkit/cli/config"
	"github.com/fluxbase-eu/pkgkit/cli/output"
	"github.com/fluxbase-eu/pkgkit/internal/generator"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	cfg       *cliconfig.Config
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pkgkit",
	Short: "pkgkit - Build and publish monorepo packages",
	Long: `pkgkit bundles the packages of a monorepo into publishable artifacts.

Each package declares its export map under "buildConfig" in package.json.
pkgkit turns it into:
  - Library modules (ESM and CommonJS)
  - Standalone browser bundles (IIFE, minified)
  - Consolidated type declarations

Get started:
  pkgkit build packages/core          Build a package once
  pkgkit build packages/core --watch  Rebuild on every change
  pkgkit --help                       Show available commands`,
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./pkgkit.yaml or ~/.pkgkit/pkgkit.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(manifestCmd)
}

// initialize loads configuration and sets up logging and output for every
// command.
func initialize(cmd *cobra.Command, args []string) error {
	// Silence errors only when --quiet is used
	cmd.SilenceErrors = quiet

	var err error
	cfg, err = cliconfig.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Debug {
		debug = true
	}
	setupLogger(cfg.LogFormat)

	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	return nil
}

func setupLogger(format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if format == cliconfig.LogFormatJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch {
	case debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case quiet:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// newRunner prefers in-process generators and falls back to running generator
// scripts with node when it is installed.
func newRunner() generator.Runner {
	scripts, err := generator.NewScriptRunner(cfg.NodePath, cfg.GeneratorTimeout)
	if err != nil {
		log.Debug().Err(err).Msg("Script generators unavailable")
		return generator.NewRunner(generator.Default, nil)
	}
	return generator.NewRunner(generator.Default, scripts)
}

func newDriver() *bundler.Driver {
	return bundler.NewDriver(newRunner(), cfg.Target)
}

// GetFormatter returns the output formatter (for use by subcommands)
func GetFormatter() *output.Formatter {
	if formatter == nil {
		format, _ := output.ParseFormat(outputFmt)
		formatter = output.NewFormatter(format, noHeaders, quiet)
	}
	return formatter
}
