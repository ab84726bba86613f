package bundler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// styleInjectTemplate injects a processed stylesheet when the module is evaluated.
const styleInjectTemplate = `(function () {
  if (typeof document === "undefined") return;
  var style = document.createElement("style");
  style.setAttribute("data-pkgkit", %s);
  style.textContent = %s;
  document.head.appendChild(style);
})();
`

// ContentProcessing returns the plugins shared by the module and browser-bundle
// passes: browser-aware resolution, JSON modules and stylesheet processing.
func ContentProcessing() Pipeline {
	return Pipeline{NodeResolve(), JSONModules(), Stylesheets()}
}

// NodeResolve selects browser-appropriate package entry points. CommonJS
// dependencies are converted by the engine once resolved.
func NodeResolve() Plugin {
	return Plugin{
		Name: "node-resolve",
		Configure: func(cfg *Config) {
			cfg.Platform = "browser"
			cfg.Conditions = []string{"browser", "module"}
			cfg.MainFields = []string{"browser", "module", "main"}
		},
	}
}

// JSONModules loads .json imports as modules after validating them.
func JSONModules() Plugin {
	return Plugin{
		Name: "json",
		Load: func(path string) (Loaded, error) {
			if filepath.Ext(path) != ".json" {
				return NotLoaded(), nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return Loaded{}, err
			}
			if !json.Valid(data) {
				return Loaded{}, fmt.Errorf("%s is not valid JSON", path)
			}
			return Served(string(data), LoaderJSON), nil
		},
	}
}

// Stylesheets minifies imported stylesheets and turns them into modules that
// inject the result into the document.
func Stylesheets() Plugin {
	return Plugin{
		Name: "css",
		Load: func(path string) (Loaded, error) {
			if filepath.Ext(path) != ".css" {
				return NotLoaded(), nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return Loaded{}, err
			}
			result := api.Transform(string(data), api.TransformOptions{
				Loader:           api.LoaderCSS,
				MinifyWhitespace: true,
				MinifySyntax:     true,
				Sourcefile:       path,
			})
			if len(result.Errors) > 0 {
				return Loaded{}, fmt.Errorf("%s", strings.Join(formatMessages(result.Errors), "\n"))
			}
			name, _ := json.Marshal(filepath.Base(path))
			css, _ := json.Marshal(strings.TrimSpace(string(result.Code)))
			return Served(fmt.Sprintf(styleInjectTemplate, name, css), LoaderJS), nil
		},
	}
}
