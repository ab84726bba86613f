package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/pkgkit/cli/output"
	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [dir]",
	Short: "Show the resolved entries of a package",
	Long: `Resolve the export map of the package in dir and print every entry with
its source files, without bundling anything. Generators are run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

type entrySummary struct {
	Entry     string   `json:"entry" yaml:"entry"`
	Sources   []string `json:"sources" yaml:"sources"`
	OutputIDs []string `json:"outputIds" yaml:"outputIds"`
	Generated bool     `json:"generated" yaml:"generated"`
	IIFE      string   `json:"iife,omitempty" yaml:"iife,omitempty"`
}

type analysisSummary struct {
	Package     string         `json:"package" yaml:"package"`
	Fingerprint string         `json:"fingerprint" yaml:"fingerprint"`
	Entries     []entrySummary `json:"entries" yaml:"entries"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := analysis.Analyze(cmd.Context(), packageDir(args), newRunner())
	if err != nil {
		return err
	}
	summary, err := summarizeAnalysis(a)
	if err != nil {
		return err
	}

	f := GetFormatter()
	if f.Format != output.FormatTable {
		return f.Print(summary)
	}

	data := output.TableData{Headers: []string{"ENTRY", "SOURCES", "OUTPUTS", "GENERATED", "IIFE"}}
	for _, entry := range summary.Entries {
		generated := "no"
		if entry.Generated {
			generated = "yes"
		}
		iife := entry.IIFE
		if iife == "" {
			iife = "-"
		}
		data.Rows = append(data.Rows, []string{
			entry.Entry,
			strings.Join(entry.Sources, ", "),
			strings.Join(entry.OutputIDs, ", "),
			generated,
			iife,
		})
	}
	f.PrintTable(data)
	return nil
}

func summarizeAnalysis(a *analysis.Analysis) (*analysisSummary, error) {
	fingerprint, err := a.Fingerprint()
	if err != nil {
		return nil, err
	}
	summary := &analysisSummary{Package: a.Manifest.Name, Fingerprint: fingerprint}
	for _, entryID := range a.EntryIDs() {
		entry := entrySummary{Entry: entryID, Sources: a.Sources[entryID]}
		for _, source := range entry.Sources {
			entry.OutputIDs = append(entry.OutputIDs, pkgpath.OutputID(source))
			if a.IsGenerated(source) {
				entry.Generated = true
			}
		}
		if cfg := a.Entries[entryID]; cfg.IIFE != nil {
			entry.IIFE = cfg.IIFE.Name
			if entry.IIFE == "" {
				entry.IIFE = "(anonymous)"
			}
		}
		summary.Entries = append(summary.Entries, entry)
	}
	return summary, nil
}
