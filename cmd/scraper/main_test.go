package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-tululu/pipeline"
)

func TestBuildConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scraper.yaml")
	require.NoError(t, os.WriteFile(file, []byte("start_page: 2\nend_page: 9\nparallelism: 8\ndest_folder: from-file\n"), 0o644))
	t.Setenv("SCRAPER_END_PAGE", "6")
	t.Setenv("SCRAPER_SKIP_IMGS", "true")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", file, "--start-page", "3", "--skip-txt"}))
	cfg, err := buildConfig(cmd.Flags())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.StartPage, "flag beats file")
	assert.Equal(t, 6, cfg.EndPage, "env beats file")
	assert.Equal(t, 8, cfg.Parallelism, "file beats default")
	assert.Equal(t, "from-file", cfg.DestFolder)
	assert.True(t, cfg.SkipImages)
	assert.True(t, cfg.SkipText)
}

func TestBuildConfigRejectsInvertedRange(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--start-page", "5", "--end-page", "4"}))

	_, err := buildConfig(cmd.Flags())
	assert.Error(t, err)
}

func TestBuildConfigUnsetFlagsKeepDefaults(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := buildConfig(cmd.Flags())
	require.NoError(t, err)
	assert.Zero(t, cfg.StartPage)
	assert.Zero(t, cfg.EndPage)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestManifestFile(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--json-path", "out", "--format", "CSV"}))
	cfg, err := buildConfig(cmd.Flags())
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.OutputFormat)
	assert.Equal(t, filepath.Join("out", "books_description.csv"), manifestFile(cfg))

	cfg.OutputFormat = "json"
	assert.Equal(t, filepath.Join("out", "books_description.json"), manifestFile(cfg))
}

func TestCreateWriterDualDerivesBothManifests(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--json-path", dir, "--format", "dual"}))
	cfg, err := buildConfig(cmd.Flags())
	require.NoError(t, err)

	writer, err := createWriter(cfg)
	require.NoError(t, err)
	dual, ok := writer.(*pipeline.DualWriter)
	require.True(t, ok, "dual format must build a DualWriter")

	jsonPath, csvPath := dual.Paths()
	assert.Equal(t, filepath.Join(dir, pipeline.ManifestName), jsonPath)
	assert.Equal(t, filepath.Join(dir, pipeline.CSVManifestName), csvPath)
	assert.Equal(t, jsonPath, manifestFile(cfg))
}
