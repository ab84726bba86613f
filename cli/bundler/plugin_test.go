package bundler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveTo(res Resolution) func(ResolveArgs) (Resolution, error) {
	return func(ResolveArgs) (Resolution, error) { return res, nil }
}

func TestPipelineResolve_FirstClaimWins(t *testing.T) {
	var secondCalled bool
	pipeline := Pipeline{
		{Name: "defer", ResolveID: resolveTo(Deferred())},
		{Name: "no-hooks"},
		{Name: "claim", ResolveID: resolveTo(Claimed("/abs/a.js"))},
		{Name: "never", ResolveID: func(ResolveArgs) (Resolution, error) {
			secondCalled = true
			return External("x"), nil
		}},
	}

	res, name, err := pipeline.Resolve(ResolveArgs{Specifier: "./a"})
	require.NoError(t, err)
	assert.True(t, res.IsClaimed())
	assert.False(t, res.External)
	assert.Equal(t, "/abs/a.js", res.Path)
	assert.Equal(t, "claim", name)
	assert.False(t, secondCalled)
}

func TestPipelineResolve_AllDeferred(t *testing.T) {
	pipeline := Pipeline{{Name: "a", ResolveID: resolveTo(Deferred())}}

	res, name, err := pipeline.Resolve(ResolveArgs{Specifier: "react"})
	require.NoError(t, err)
	assert.False(t, res.IsClaimed())
	assert.Empty(t, name)
}

func TestPipelineResolve_External(t *testing.T) {
	pipeline := Pipeline{{Name: "ext", ResolveID: resolveTo(External("react"))}}

	res, _, err := pipeline.Resolve(ResolveArgs{Specifier: "react"})
	require.NoError(t, err)
	assert.True(t, res.IsClaimed())
	assert.True(t, res.External)
	assert.Equal(t, "react", res.Path)
}

func TestPipelineResolve_ErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	pipeline := Pipeline{
		{Name: "fails", ResolveID: func(ResolveArgs) (Resolution, error) { return Resolution{}, boom }},
		{Name: "claim", ResolveID: resolveTo(Claimed("/x"))},
	}

	_, name, err := pipeline.Resolve(ResolveArgs{Specifier: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "fails", name)
	assert.Contains(t, err.Error(), "plugin fails")
}

func TestPipelineLoad(t *testing.T) {
	pipeline := Pipeline{
		{Name: "skip", Load: func(string) (Loaded, error) { return NotLoaded(), nil }},
		{Name: "serve", Load: func(path string) (Loaded, error) {
			if path == "/virtual.js" {
				return Served("export {}", LoaderTS), nil
			}
			return NotLoaded(), nil
		}},
	}

	loaded, name, err := pipeline.Load("/virtual.js")
	require.NoError(t, err)
	assert.True(t, loaded.IsClaimed())
	assert.Equal(t, "export {}", loaded.Contents)
	assert.Equal(t, LoaderTS, loaded.Loader)
	assert.Equal(t, "serve", name)

	loaded, _, err = pipeline.Load("/other.js")
	require.NoError(t, err)
	assert.False(t, loaded.IsClaimed())
}

func TestPipelineConfigure(t *testing.T) {
	pipeline := Pipeline{
		{Name: "a", Configure: func(cfg *Config) { cfg.Platform = "node" }},
		{Name: "b"},
		{Name: "c", Configure: func(cfg *Config) { cfg.Platform = "browser" }},
	}

	cfg := Config{Platform: "neutral"}
	pipeline.Configure(&cfg)
	assert.Equal(t, "browser", cfg.Platform)
	assert.Equal(t, []string{"a", "b", "c"}, pipeline.Names())
}
