package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/jarshade/internal/testutil"
)

// run executes the CLI with an explicit, empty config file so the host's
// jarshade.yaml never leaks into tests.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runCapture(t, args...)
	return stdout, err
}

// runCapture is run that also returns what was logged to stderr.
func runCapture(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "jarshade.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}\n"), 0o600))

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestShadeCommand(t *testing.T) {
	t.Parallel()

	inDir, outDir := t.TempDir(), t.TempDir()
	testutil.WriteJar(t, inDir, "asm.jar",
		testutil.Class(testutil.NewClass("org/objectweb/asm/Type")),
		testutil.Resource("META-INF/MANIFEST.MF", "Manifest-Version: 1.0\n"),
	)
	// Outputs of an earlier run are not picked up again.
	testutil.WriteJar(t, inDir, "old-repackaged.jar", testutil.Resource("a/b", "x"))

	out, err := run(t, "shade", "-o", outDir, "--target", "shaded.deps", inDir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(outDir, "asm-repackaged.jar"))
	assert.Contains(t, out, "renamed=1")
	assert.Equal(t, 1, strings.Count(out, "\n"))

	entries := testutil.ReadJarFile(t, filepath.Join(outDir, "asm-repackaged.jar"))
	assert.Equal(t, []string{
		"shaded/deps/org/objectweb/asm/Type.class",
		"META-INF/MANIFEST.MF",
	}, testutil.Names(entries))
}

func TestShadeCommandFailure(t *testing.T) {
	t.Parallel()

	inDir, outDir := t.TempDir(), t.TempDir()
	good := testutil.WriteJar(t, inDir, "good.jar",
		testutil.Class(testutil.NewClass("org/objectweb/asm/Type")))
	missing := filepath.Join(inDir, "missing.jar")

	out, err := run(t, "shade", "-o", outDir, good, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.Contains(t, out, "good-repackaged.jar")
	assert.FileExists(t, filepath.Join(outDir, "good-repackaged.jar"))
}

func TestShadeCommandConcurrentLogging(t *testing.T) {
	t.Parallel()

	inDir, outDir := t.TempDir(), t.TempDir()
	for i := range 6 {
		testutil.WriteJar(t, inDir, fmt.Sprintf("lib%d.jar", i),
			testutil.Class(testutil.NewClass("org/objectweb/asm/Type")),
			testutil.Resource("org/objectweb/asm/res.txt", "x"),
		)
	}
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "broken.jar"), []byte("garbage"), 0o600))

	out, logs, err := runCapture(t, "shade", "-v", "-j", "4", "-o", outDir, inDir)
	require.Error(t, err)
	assert.Equal(t, 6, strings.Count(out, "\n"))
	assert.Equal(t, 6, strings.Count(logs, "shaded archive"))
	assert.Contains(t, logs, "shading failed")
}

func TestSyncWriterSerializesWrites(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := &syncWriter{w: &buf}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, strings.Count(buf.String(), "line\n"))
}

func TestShadeCommandCache(t *testing.T) {
	t.Parallel()

	inDir, cacheDir := t.TempDir(), t.TempDir()
	in := testutil.WriteJar(t, inDir, "asm.jar",
		testutil.Class(testutil.NewClass("org/objectweb/asm/Type")))

	first, err := run(t, "shade", "-o", t.TempDir(), "--cache-dir", cacheDir, in)
	require.NoError(t, err)
	assert.NotContains(t, first, "(cached)")

	second, err := run(t, "shade", "-o", t.TempDir(), "--cache-dir", cacheDir, in)
	require.NoError(t, err)
	assert.Contains(t, second, "(cached)")
}

func TestShadeCommandInvalidFlags(t *testing.T) {
	t.Parallel()

	in := testutil.WriteJar(t, t.TempDir(), "asm.jar", testutil.Resource("a/b", "x"))

	_, err := run(t, "shade", "--resources", "some", in)
	require.Error(t, err)

	_, err = run(t, "shade", "--level", "12", in)
	require.Error(t, err)

	_, err = run(t, "shade")
	require.Error(t, err)

	_, err = run(t, "shade", t.TempDir())
	require.ErrorContains(t, err, "no archives found")
}

func TestConfigCommand(t *testing.T) {
	t.Parallel()

	out, err := run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "# config file: ")
	assert.Contains(t, out, "target: com/nasller/asm/libs/")
	assert.Contains(t, out, "- org/objectweb/asm/")
}

func TestExpandInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.jar", "a.jar", "a-repackaged.jar", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	got, err := expandInputs([]string{dir, "explicit.jar"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jar"),
		filepath.Join(dir, "b.jar"),
		"explicit.jar",
	}, got)
}
