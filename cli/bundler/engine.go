package bundler

import (
	"context"
	"errors"
)

// ErrWatchUnsupported is returned by engines that cannot rebuild continuously.
var ErrWatchUnsupported = errors.New("engine does not support watch mode")

// Format is the module format of a written bundle.
type Format string

const (
	FormatESM  Format = "esm"
	FormatCJS  Format = "cjs"
	FormatIIFE Format = "iife"
)

// BuildOptions describes one bundler invocation.
type BuildOptions struct {
	// PackageDir is the absolute package directory; output paths are reported
	// relative to it.
	PackageDir string
	Inputs     InputMap
	Plugins    Pipeline
	// Target is the language level of emitted code, e.g. "es2020".
	Target string
}

// OutputOptions describes one written artifact set of a bundle.
type OutputOptions struct {
	Dir    string
	Format Format
	// Extension replaces ".js" on every written file.
	Extension string
	Sourcemap bool
	// GlobalName is the variable an IIFE bundle assigns its exports to.
	GlobalName string
	// Globals maps external specifiers to the browser globals that satisfy them.
	Globals map[string]string
}

// OutputFile is one file written by a bundle.
type OutputFile struct {
	Path       string `json:"path"`
	Bytes      int    `json:"bytes"`
	EntryPoint string `json:"entryPoint,omitempty"`
}

// Output lists what a write produced.
type Output struct {
	Files    []OutputFile
	Metafile *Metafile
}

// Bundle is a prepared build that can be written in several formats.
type Bundle interface {
	Write(ctx context.Context, out OutputOptions) (*Output, error)
	Close() error
}

// Session is a running continuous build.
type Session interface {
	Close() error
}

// Engine is the bundler the drivers delegate to.
type Engine interface {
	Build(ctx context.Context, opts BuildOptions) (Bundle, error)
	Watch(ctx context.Context, opts BuildOptions, outputs []OutputOptions) (Session, error)
}

// Minifier produces a minified copy of a written browser bundle.
type Minifier interface {
	Minify(ctx context.Context, src, dest string) error
}
