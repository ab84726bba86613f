package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/pkgkit/cli/bundler"
	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/pkgjson"
	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

var manifestRoot string

var manifestCmd = &cobra.Command{
	Use:   "manifest [dir]",
	Short: "Write the publish manifest of a package",
	Long: `Write dist/package.json for the package in dir.

The publish manifest points main, module, types and exports at the built
artifacts, drops scripts, devDependencies and buildConfig, and rewrites
repository.directory relative to the monorepo root.`,
	Example: `  pkgkit manifest packages/core --root .`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runManifest,
}

func init() {
	manifestCmd.Flags().StringVar(&manifestRoot, "root", "", "monorepo root (default: monorepo_root from config)")
}

func runManifest(cmd *cobra.Command, args []string) error {
	a, err := analysis.Analyze(cmd.Context(), packageDir(args), newRunner())
	if err != nil {
		return err
	}

	root := manifestRoot
	if root == "" {
		root = cfg.MonorepoRoot
	}
	if root != "" {
		if root, err = filepath.Abs(root); err != nil {
			return err
		}
	} else {
		GetFormatter().PrintWarning("no monorepo root configured, repository.directory is left unchanged")
	}

	opts := pkgjson.PublishOptions{
		PackageDir:    a.Dir,
		MonorepoRoot:  root,
		OutputIDs:     a.OutputIDs(),
		IIFEOutputIDs: bundler.IIFEInputMap(a).OutputIDs(),
	}
	if a.Manifest.BuildConfig.TypesEnabled() {
		opts.TypedOutputIDs = bundler.TypesInputMap(a).OutputIDs()
	}

	doc, err := pkgjson.Publish(a.Manifest, opts)
	if err != nil {
		return err
	}
	distDir := pkgpath.DistDir(a.Dir)
	if err := pkgjson.WritePublished(doc, distDir); err != nil {
		return err
	}

	GetFormatter().PrintSuccess(fmt.Sprintf("Wrote %s", filepath.Join(distDir, pkgjson.FileName)))
	return nil
}
