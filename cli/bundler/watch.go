package bundler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/pkgkit/internal/analysis"
	"github.com/fluxbase-eu/pkgkit/internal/pkgjson"
	"github.com/fluxbase-eu/pkgkit/internal/watch"
)

// Watch analyzes the package in dir, starts continuous module and browser
// bundle builds, and restarts them whenever the manifest changes. Declarations
// are not watched. Watch blocks until ctx is cancelled, then closes every
// session.
func (d *Driver) Watch(ctx context.Context, dir string, opts Options) error {
	a, err := analysis.Analyze(ctx, dir, d.Runner)
	if err != nil {
		return err
	}

	sessions, err := d.startSessions(ctx, a, opts)
	if err != nil {
		return err
	}
	defer func() { closeSessions(sessions) }()
	logAnalysis(a, "Watching package")

	watcher, err := watch.New(watch.Config{
		Path: filepath.Join(a.Dir, pkgjson.FileName),
		OnChange: func(ctx context.Context) error {
			next, err := analysis.Analyze(ctx, a.Dir, d.Runner)
			if err != nil {
				return fmt.Errorf("failed to re-analyze package: %w", err)
			}
			closeSessions(sessions)
			sessions = nil

			started, err := d.startSessions(ctx, next, opts)
			if err != nil {
				return fmt.Errorf("failed to restart watch sessions: %w", err)
			}
			sessions = started
			logAnalysis(next, "Restarted watch sessions")
			return nil
		},
	})
	if err != nil {
		return err
	}
	return watcher.Run(ctx)
}

func (d *Driver) startSessions(ctx context.Context, a *analysis.Analysis, opts Options) ([]Session, error) {
	var sessions []Session

	if outputs := moduleOutputs(a, opts); len(outputs) > 0 {
		session, err := d.Engine.Watch(ctx, BuildOptions{
			PackageDir: a.Dir,
			Inputs:     ModuleInputMap(a),
			Plugins:    modulePlugins(a, false),
			Target:     opts.Target,
		}, outputs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", PipelineModule, err)
		}
		sessions = append(sessions, session)
	}

	for _, target := range IIFETargets(a) {
		session, err := d.Engine.Watch(ctx, BuildOptions{
			PackageDir: a.Dir,
			Inputs:     InputMap{target.OutputID: target.Input},
			Plugins:    iifePlugins(a, target),
			Target:     opts.Target,
		}, []OutputOptions{iifeOutput(a, target, opts)})
		if err != nil {
			closeSessions(sessions)
			return nil, fmt.Errorf("%s %s: %w", PipelineIIFE, target.OutputID, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func closeSessions(sessions []Session) {
	var errs []error
	for _, session := range sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Failed to close watch sessions")
	}
}

func logAnalysis(a *analysis.Analysis, msg string) {
	event := log.Info().Str("package", a.Manifest.Name).Int("entries", len(a.Entries))
	if fingerprint, err := a.Fingerprint(); err == nil {
		event = event.Str("fingerprint", fingerprint)
	}
	event.Msg(msg)
}
