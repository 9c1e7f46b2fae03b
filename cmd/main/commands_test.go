package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CTAG07/Trellis/pkg/render"
	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings(t *testing.T) {
	settings, err := parseSettings(`{"heading":"From JSON","height":300}`, []string{"heading=Override", "show=true", "count=3"})
	require.NoError(t, err)
	assert.Equal(t, sections.String("Override"), settings["heading"])
	assert.Equal(t, sections.Number(300), settings["height"])
	assert.Equal(t, sections.Bool(true), settings["show"])
	assert.Equal(t, sections.Number(3), settings["count"])

	settings, err = parseSettings("", nil)
	require.NoError(t, err)
	assert.Nil(t, settings)

	_, err = parseSettings("{", nil)
	assert.Error(t, err)
	_, err = parseSettings("", []string{"novalue"})
	assert.Error(t, err)
}

func TestWriteRenderResult(t *testing.T) {
	var out, errOut bytes.Buffer
	res := render.Result{HTML: "<p>x</p>", CSS: "p{}", Errors: []string{"bad value"}, RenderTimeMs: 4}

	require.NoError(t, writeRenderResult(&out, &errOut, res, false))
	assert.Equal(t, "<style>\np{}\n</style>\n<p>x</p>\n", out.String())
	assert.Contains(t, errOut.String(), "warning: bad value")
	assert.Contains(t, errOut.String(), "rendered in 4ms (cached: false)")

	out.Reset()
	require.NoError(t, writeRenderResult(&out, &errOut, res, true))
	assert.Contains(t, out.String(), `"html": "<p>x</p>"`)
}

func TestWriteStats(t *testing.T) {
	var out bytes.Buffer
	sum := GlobalStatsSummary{TotalRenders: 12345, CacheHits: 6000, HitRatio: 0.486, Sections: 2, AvgRenderMs: 3.25}
	list := []SectionStats{{SectionSlug: "hero-banner", Renders: 12000, CacheHits: 5990, AvgRenderMs: 3.2, LastSeen: time.Now().Add(-2 * time.Hour)}}

	require.NoError(t, writeStats(&out, sum, list, 3, 1, 2048))
	s := out.String()
	assert.Contains(t, s, "renders:     12,345 (2 sections)")
	assert.Contains(t, s, "cache hits:  6,000 (48.6%)")
	assert.Contains(t, s, "2.0 kB")
	assert.Contains(t, s, "hero-banner")
	assert.Contains(t, s, "2 hours ago")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "trellis version "+Version))
	assert.Contains(t, out.String(), versionInfo().EngineVersion)
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	writeLibrary(t, filepath.Join(dir, "library"))
	configPath := writeTestConfig(t, dir, nil)

	runCLI := func(args ...string) (string, string, error) {
		cmd := newRootCmd()
		var out, errOut bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetArgs(append([]string{"--config", configPath}, args...))
		err := cmd.Execute()
		return out.String(), errOut.String(), err
	}

	out, _, err := runCLI("render", "hero-banner", "--set", "heading=CLI")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>CLI</h1>")
	assert.Contains(t, out, "min-height:480px")

	_, errOut, err := runCLI("render", "hero-banner", "--set", "heading=CLI")
	require.NoError(t, err)
	assert.Contains(t, errOut, "cached: true")

	_, _, err = runCLI("render", "missing")
	assert.Error(t, err)

	out, _, err = runCLI("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "renders:     3")

	out, _, err = runCLI("sweep", "--purge")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 previews\n", out)
}
