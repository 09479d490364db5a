package jarshade

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/jarshade/internal/testutil"
)

func TestShadeAll(t *testing.T) {
	t.Parallel()

	inDir, outDir := t.TempDir(), t.TempDir()
	core := testutil.WriteJar(t, inDir, "asm.jar",
		testutil.Class(testutil.NewClass("org/objectweb/asm/ClassVisitor")))
	// asm-tree references asm core types it does not define; the root
	// prefix still relocates them.
	tree := testutil.WriteJar(t, inDir, "asm-tree.jar",
		testutil.Class(testutil.NewClass("org/objectweb/asm/tree/ClassNode").Extends("org/objectweb/asm/ClassVisitor")))

	s := newShader(t, WithArchiveConcurrency(2))
	results, err := s.ShadeAll(context.Background(), []string{core, tree}, outDir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	entries := testutil.ReadJarFile(t, results[1].Output)
	require.Len(t, entries, 1)
	assert.Equal(t, relocated+"org/objectweb/asm/tree/ClassNode.class", entries[0].Name)
	super, err := decodeClass(t, entries[0].Data).SuperName()
	require.NoError(t, err)
	assert.Equal(t, relocated+"org/objectweb/asm/ClassVisitor", super)

	_, err = os.Stat(filepath.Join(outDir, "asm-repackaged.jar"))
	assert.NoError(t, err)
}

func TestShadeAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	inDir, outDir := t.TempDir(), t.TempDir()
	good := testutil.WriteJar(t, inDir, "good.jar",
		testutil.Class(testutil.NewClass("org/objectweb/asm/Type")))
	bad := filepath.Join(inDir, "bad.jar")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o600))
	badClass := testutil.WriteJar(t, inDir, "badclass.jar",
		testutil.JarEntry{Name: "org/objectweb/asm/X.class", Data: []byte{1, 2, 3}})

	results, err := newShader(t, WithArchiveConcurrency(3)).ShadeAll(context.Background(), []string{good, bad, badClass}, outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveRead)
	assert.ErrorIs(t, err, ErrClassDecode)
	assert.Contains(t, err.Error(), bad)

	require.Len(t, results, 3)
	assert.FileExists(t, results[0].Output)
	assert.NoFileExists(t, results[1].Output)
	assert.NoFileExists(t, results[2].Output)
}

func TestShadeAllOutputCollision(t *testing.T) {
	t.Parallel()

	a := testutil.WriteJar(t, t.TempDir(), "lib.jar", testutil.Resource("x/y", "1"))
	b := testutil.WriteJar(t, t.TempDir(), "lib.jar", testutil.Resource("x/y", "2"))
	outDir := t.TempDir()

	results, err := newShader(t).ShadeAll(context.Background(), []string{a, b}, outDir)
	require.ErrorIs(t, err, ErrDuplicateEntry)
	assert.FileExists(t, results[0].Output)

	data := testutil.ReadJarFile(t, results[0].Output)
	assert.Equal(t, "1", string(data[0].Data))
}
