package bundler

import (
	"fmt"
	"io"
	"strings"
)

// DisplayReport prints a compact summary of the artifacts of a build
func DisplayReport(w io.Writer, report *Report) {
	artifacts := report.Artifacts()
	if len(artifacts) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w, "\n=== Build Summary ===")

	// Calculate max path length for alignment
	maxPathLen := 8 // minimum "ARTIFACT" header length
	for _, a := range artifacts {
		if l := len(truncatePath(a.Path, 50)); l > maxPathLen {
			maxPathLen = l
		}
	}

	// Print header
	pathPadding := strings.Repeat(" ", maxPathLen-8)
	_, _ = fmt.Fprintf(w, "ARTIFACT%s  PIPELINE  SIZE         INPUTS  EXTERNALS\n", pathPadding)
	_, _ = fmt.Fprintf(w, "%s  --------  -----------  ------  ---------\n", strings.Repeat("-", maxPathLen))

	for _, a := range artifacts {
		displayPath := truncatePath(a.Path, 50)
		padding := strings.Repeat(" ", maxPathLen-len(displayPath))
		_, _ = fmt.Fprintf(w, "%s%s  %-8s  %11s  %6d  %9d\n",
			displayPath,
			padding,
			a.Pipeline,
			formatBytesHuman(a.Bytes),
			a.Inputs,
			len(a.Externals),
		)
	}

	// Print total
	_, _ = fmt.Fprintf(w, "%s  --------  -----------\n", strings.Repeat("-", maxPathLen))
	totalPadding := strings.Repeat(" ", maxPathLen-5)
	_, _ = fmt.Fprintf(w, "TOTAL%s            %11s\n", totalPadding, formatBytesHuman(report.TotalBytes()))
	_, _ = fmt.Fprintln(w)
}

// formatBytesHuman formats bytes in human-readable format
func formatBytesHuman(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// truncatePath shortens a path if it's too long
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
