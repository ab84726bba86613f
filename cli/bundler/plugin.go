package bundler

import (
	"fmt"
)

// Loader tells the engine how to parse content served by a plugin.
type Loader string

const (
	LoaderJS   Loader = "js"
	LoaderTS   Loader = "ts"
	LoaderTSX  Loader = "tsx"
	LoaderJSON Loader = "json"
	LoaderCSS  Loader = "css"
	LoaderText Loader = "text"
)

// ResolveArgs describes one module specifier the engine needs resolved.
type ResolveArgs struct {
	// Specifier is the import specifier, or the absolute input path for entries.
	Specifier string
	// Importer is the absolute path of the importing module, empty for entries.
	Importer string
	// ResolveDir is the directory relative specifiers are resolved against.
	ResolveDir string
	// Entry marks entry-point resolution.
	Entry bool
}

// Resolution is the outcome of a resolve hook: either deferred to the next
// plugin, or claimed as a path or an external specifier.
type Resolution struct {
	claimed bool
	// Path is the resolved absolute path, or the specifier to keep for externals.
	Path string
	// External leaves the import in the output instead of bundling it.
	External bool
}

// Deferred lets the next plugin, or the engine default, resolve the specifier.
func Deferred() Resolution { return Resolution{} }

// Claimed resolves the specifier to an absolute path.
func Claimed(path string) Resolution { return Resolution{claimed: true, Path: path} }

// External excludes the specifier from the bundle, keeping it as a live import.
func External(specifier string) Resolution {
	return Resolution{claimed: true, Path: specifier, External: true}
}

// IsClaimed reports whether a plugin produced the resolution.
func (r Resolution) IsClaimed() bool { return r.claimed }

// Loaded is the outcome of a load hook.
type Loaded struct {
	claimed    bool
	Contents   string
	Loader     Loader
	ResolveDir string
}

// NotLoaded lets the next plugin, or the engine default, load the path.
func NotLoaded() Loaded { return Loaded{} }

// Served provides the contents of a path.
func Served(contents string, loader Loader) Loaded {
	return Loaded{claimed: true, Contents: contents, Loader: loader}
}

// IsClaimed reports whether a plugin served the content.
func (l Loaded) IsClaimed() bool { return l.claimed }

// Config holds engine-level resolution settings plugins may adjust.
type Config struct {
	Platform   string
	Conditions []string
	MainFields []string
}

// Plugin customizes module resolution and loading. Every hook is optional.
type Plugin struct {
	Name      string
	Configure func(cfg *Config)
	ResolveID func(args ResolveArgs) (Resolution, error)
	Load      func(path string) (Loaded, error)
}

// Pipeline is an ordered plugin list. The first plugin to claim a specifier or
// a path wins; unclaimed ones fall through to the engine.
type Pipeline []Plugin

// Names lists the plugin names in order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, plugin := range p {
		names[i] = plugin.Name
	}
	return names
}

// Configure lets every plugin adjust cfg, in order.
func (p Pipeline) Configure(cfg *Config) {
	for _, plugin := range p {
		if plugin.Configure != nil {
			plugin.Configure(cfg)
		}
	}
}

// Resolve asks each plugin in turn and returns the first claimed resolution
// together with the name of the plugin that produced it.
func (p Pipeline) Resolve(args ResolveArgs) (Resolution, string, error) {
	for _, plugin := range p {
		if plugin.ResolveID == nil {
			continue
		}
		res, err := plugin.ResolveID(args)
		if err != nil {
			return Resolution{}, plugin.Name, fmt.Errorf("plugin %s: resolve %q: %w", plugin.Name, args.Specifier, err)
		}
		if res.IsClaimed() {
			return res, plugin.Name, nil
		}
	}
	return Deferred(), "", nil
}

// Load asks each plugin in turn and returns the first served content.
func (p Pipeline) Load(path string) (Loaded, string, error) {
	for _, plugin := range p {
		if plugin.Load == nil {
			continue
		}
		loaded, err := plugin.Load(path)
		if err != nil {
			return Loaded{}, plugin.Name, fmt.Errorf("plugin %s: load %s: %w", plugin.Name, path, err)
		}
		if loaded.IsClaimed() {
			return loaded, plugin.Name, nil
		}
	}
	return NotLoaded(), "", nil
}
