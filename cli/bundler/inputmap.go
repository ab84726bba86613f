package bundler

import (
	"sort"

	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/pkgjson"
	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

// InputMap maps an output identifier to the absolute intermediate file the
// engine bundles for it.
type InputMap map[string]string

// OutputIDs returns the identifiers of the map in sorted order.
func (m InputMap) OutputIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ModuleInputMap returns the compiled module of every resolved source.
func ModuleInputMap(a *analysis.Analysis) InputMap {
	return inputMap(a, ".js")
}

// TypesInputMap returns the compiled declaration of every resolved source.
// Generated entries point at the path their declaration would occupy; the
// types pipeline serves it with GeneratedDeclarations.
func TypesInputMap(a *analysis.Analysis) InputMap {
	return inputMap(a, DeclarationExtension)
}

func inputMap(a *analysis.Analysis, ext string) InputMap {
	inputs := make(InputMap)
	for _, sources := range a.Sources {
		for _, source := range sources {
			outputID := pkgpath.OutputID(source)
			inputs[outputID] = pkgpath.TscPath(a.Dir, outputID, ext)
		}
	}
	return inputs
}

// IIFETarget is one standalone browser bundle to produce.
type IIFETarget struct {
	EntryID  string
	Source   string
	OutputID string
	Input    string
	Config   pkgjson.IIFEConfig
}

// IIFETargets returns one target per source of every entry with an iife
// configuration, ordered by output identifier. A target reads generated
// browser-bundle content when its generator produced some, and the compiled
// module otherwise.
func IIFETargets(a *analysis.Analysis) []IIFETarget {
	var targets []IIFETarget
	for entryID, cfg := range a.Entries {
		if cfg.IIFE == nil {
			continue
		}
		for _, source := range a.Sources[entryID] {
			outputID := pkgpath.OutputID(source)
			input := pkgpath.TscPath(a.Dir, outputID, ".js")
			if _, ok := a.IIFEGenerated[pkgpath.EntryIDFromOutputID(outputID)]; ok {
				input = pkgpath.TscPath(a.Dir, outputID, iifeExtension)
			}
			targets = append(targets, IIFETarget{
				EntryID:  entryID,
				Source:   source,
				OutputID: outputID,
				Input:    input,
				Config:   *cfg.IIFE,
			})
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].OutputID < targets[j].OutputID
	})
	return targets
}

// IIFEInputMap flattens IIFETargets into an input map. Targets sharing an
// output identifier collapse onto the last one.
func IIFEInputMap(a *analysis.Analysis) InputMap {
	inputs := make(InputMap)
	for _, target := range IIFETargets(a) {
		inputs[target.OutputID] = target.Input
	}
	return inputs
}
