package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/jarshade"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("target", "", "")
	fs.StringSlice("root", nil, "")
	fs.String("out", "", "")
	fs.Int("jobs", 0, "")
	fs.String("cache-dir", "", "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, used, err := Load(LoadOptions{SearchPaths: []string{t.TempDir()}})
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, Default(), cfg)

	shade, err := cfg.Shade()
	require.NoError(t, err)
	assert.Equal(t, jarshade.DefaultConfig(), shade)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "jarshade.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target: shaded/deps/
roots:
  - org/objectweb/asm/
  - com/google/gson/
resources: all
compression_level: 9
cache:
  dir: /tmp/jarshade-cache
  max_bytes: 1048576
`), 0o600))

	cfg, used, err := Load(LoadOptions{SearchPaths: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "shaded/deps/", cfg.Target)
	assert.Equal(t, []string{"org/objectweb/asm/", "com/google/gson/"}, cfg.Roots)
	assert.Equal(t, 9, cfg.CompressionLevel)
	assert.Equal(t, "/tmp/jarshade-cache", cfg.Cache.Dir)
	assert.Equal(t, int64(1<<20), cfg.Cache.MaxBytes)
	// Unset keys keep their defaults.
	assert.Equal(t, Default().ArchiveConcurrency, cfg.ArchiveConcurrency)

	shade, err := cfg.Shade()
	require.NoError(t, err)
	assert.Equal(t, jarshade.ResourcesAll, shade.Resources)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	t.Parallel()

	_, _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jarshade.yaml"), []byte("roots: [unclosed"), 0o600))

	_, _, err := Load(LoadOptions{SearchPaths: []string{dir}})
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resources: some\n"), 0o600))

	_, _, err := Load(LoadOptions{ConfigFile: path})
	assert.ErrorIs(t, err, jarshade.ErrInvalidConfig)
}

func TestLoadPrecedence(t *testing.T) {
	// t.Setenv forbids t.Parallel.
	dir := t.TempDir()
	path := filepath.Join(dir, "jarshade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target: from/file/\nout_dir: file-out\narchive_concurrency: 3\n"), 0o600))

	t.Setenv("JARSHADE_OUT_DIR", "env-out")
	t.Setenv("JARSHADE_CACHE_DIR", "env-cache")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--target", "from.flag", "--root", "a/b/,c.d"}))

	cfg, _, err := Load(LoadOptions{ConfigFile: path, Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "from.flag", cfg.Target)
	assert.Equal(t, []string{"a/b/", "c.d"}, cfg.Roots)
	assert.Equal(t, "env-out", cfg.OutDir)
	assert.Equal(t, "env-cache", cfg.Cache.Dir)
	// Unchanged flags do not mask the file.
	assert.Equal(t, 3, cfg.ArchiveConcurrency)

	shade, err := cfg.Shade()
	require.NoError(t, err)
	assert.Equal(t, "from/flag/", shade.TargetPrefix)
	assert.Equal(t, []string{"a/b/", "c/d/"}, shade.Roots)
}

func TestShadeNormalizesPrefixes(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Target = " shaded.asm "
	cfg.Roots = []string{"org.objectweb.asm", " ", "kotlinx/metadata/"}

	shade, err := cfg.Shade()
	require.NoError(t, err)
	assert.Equal(t, "shaded/asm/", shade.TargetPrefix)
	assert.Equal(t, []string{"org/objectweb/asm/", "kotlinx/metadata/"}, shade.Roots)

	cfg.Target = ""
	_, err = cfg.Shade()
	assert.ErrorIs(t, err, jarshade.ErrInvalidConfig)
}
