package classfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/jarshade/internal/testutil"
)

// prefixRemapper relocates types and string literals under from.
type prefixRemapper struct {
	from, to string
	values   bool
}

func (r prefixRemapper) MapType(name string) string {
	if strings.HasPrefix(name, r.from) {
		return r.to + name
	}
	return name
}

func (r prefixRemapper) MapValue(v string) string {
	if r.values && strings.HasPrefix(v, r.from) {
		return r.to + v
	}
	return v
}

func utf8Values(t *testing.T, cf *ClassFile) map[string]bool {
	t.Helper()
	vals := make(map[string]bool)
	for _, c := range cf.Pool {
		if u, ok := c.(*ConstantUtf8); ok {
			vals[u.Value] = true
		}
	}
	return vals
}

func remapBytes(t *testing.T, data []byte, r Remapper) (*ClassFile, bool) {
	t.Helper()
	cf, err := Decode(data)
	require.NoError(t, err)
	changed, err := Remap(cf, r)
	require.NoError(t, err)
	out, err := cf.Encode()
	require.NoError(t, err)
	again, err := Decode(out)
	require.NoError(t, err)
	return again, changed
}

func TestRemapRelocatesEverySite(t *testing.T) {
	t.Parallel()

	r := prefixRemapper{from: "org/objectweb/asm/", to: "shaded/", values: true}
	cf, changed := remapBytes(t, richClass().Bytes(), r)
	require.True(t, changed)

	name, err := cf.Name()
	require.NoError(t, err)
	assert.Equal(t, "shaded/org/objectweb/asm/ClassReader", name)
	super, err := cf.SuperName()
	require.NoError(t, err)
	assert.Equal(t, "shaded/org/objectweb/asm/Base", super)

	sites, err := cf.Sites()
	require.NoError(t, err)
	for _, s := range sites {
		v, err := cf.Pool.Utf8(s.Index())
		require.NoError(t, err)
		if s.Kind == SiteString {
			continue
		}
		assert.NotContains(t, strings.ReplaceAll(v, "shaded/org/objectweb/asm/", ""), "org/objectweb/asm/",
			"%s site still refers to the old namespace: %q", s.Kind, v)
	}

	vals := utf8Values(t, cf)
	assert.True(t, vals["shaded/org/objectweb/asm/util/Printer"])
	assert.True(t, vals["shaded/org/objectweb/asm/Type"])
	assert.True(t, vals["some.org/objectweb/asm/note"], "literal not starting with the prefix is untouched")
	assert.True(t, vals["(Lshaded/org/objectweb/asm/ClassVisitor;I)V"])
	assert.True(t, vals["Ljava/util/List<Lshaded/org/objectweb/asm/Label;>;"])
	assert.True(t, vals["ClassReader.java"])
	assert.True(t, vals["FIELD"])
}

func TestRemapNoChangeKeepsBytes(t *testing.T) {
	t.Parallel()

	data := richClass().Bytes()
	cf, err := Decode(data)
	require.NoError(t, err)

	changed, err := Remap(cf, prefixRemapper{from: "com/unrelated/", to: "shaded/", values: true})
	require.NoError(t, err)
	assert.False(t, changed)

	out, err := cf.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestRemapSplitsSharedUtf8(t *testing.T) {
	t.Parallel()

	// The class name and the string literal share one Utf8 constant, but
	// only type names are relocated.
	b := testutil.NewClass("a/Main")
	b.AddMethod(testutil.Method{
		Name: "run",
		Desc: "()V",
		Code: []testutil.Insn{
			testutil.CheckCast("org/Dep"),
			testutil.LdcString("org/Dep"),
		},
	})
	r := prefixRemapper{from: "org/", to: "shaded/"}
	cf, changed := remapBytes(t, b.Bytes(), r)
	require.True(t, changed)

	var className, literal string
	for _, c := range cf.Pool {
		switch c := c.(type) {
		case *ConstantClass:
			n, err := cf.Pool.Utf8(c.NameIndex)
			require.NoError(t, err)
			if strings.HasSuffix(n, "Dep") {
				className = n
			}
		case *ConstantString:
			v, err := cf.Pool.Utf8(c.StringIndex)
			require.NoError(t, err)
			literal = v
		}
	}
	assert.Equal(t, "shaded/org/Dep", className)
	assert.Equal(t, "org/Dep", literal)
}

func TestRemapKeepsPinnedNames(t *testing.T) {
	t.Parallel()

	// A field name and a string literal share a Utf8 constant; rewriting
	// the literal must not rename the field.
	b := testutil.NewClass("a/Main")
	b.AddField(testutil.Field{Name: "org", Desc: "I"})
	b.AddMethod(testutil.Method{
		Name: "run",
		Desc: "()V",
		Code: []testutil.Insn{testutil.LdcString("org")},
	})
	r := prefixRemapper{from: "org", to: "shaded/", values: true}
	cf, changed := remapBytes(t, b.Bytes(), r)
	require.True(t, changed)

	fieldName, err := cf.Pool.Utf8(cf.Fields[0].NameIndex)
	require.NoError(t, err)
	assert.Equal(t, "org", fieldName)

	vals := utf8Values(t, cf)
	assert.True(t, vals["shaded/org"])
}

func TestRemapReusesExistingUtf8(t *testing.T) {
	t.Parallel()

	// "shaded/org/Dep" already exists as a literal, so splitting the class
	// name off the shared constant must reuse it instead of growing the pool.
	b := testutil.NewClass("a/Main")
	b.AddMethod(testutil.Method{
		Name: "run",
		Desc: "()V",
		Code: []testutil.Insn{
			testutil.CheckCast("org/Dep"),
			testutil.LdcString("org/Dep"),
			testutil.LdcString("shaded/org/Dep"),
		},
	})
	cf, err := Decode(b.Bytes())
	require.NoError(t, err)
	before := len(cf.Pool)

	changed, err := Remap(cf, prefixRemapper{from: "org/", to: "shaded/"})
	require.NoError(t, err)
	require.True(t, changed)
	assert.Len(t, cf.Pool, before)
}

func TestRemapRejectsMalformedDescriptor(t *testing.T) {
	t.Parallel()

	b := testutil.NewClass("a/Main")
	b.AddField(testutil.Field{Name: "f", Desc: "Lorg/Broken"})
	cf, err := Decode(b.Bytes())
	require.NoError(t, err)

	_, err = Remap(cf, prefixRemapper{from: "org/", to: "shaded/"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeRejectsOversizedUtf8(t *testing.T) {
	t.Parallel()

	cf, err := Decode(testutil.NewClass("a/Main").Bytes())
	require.NoError(t, err)
	cf.Pool[1].(*ConstantUtf8).Value = strings.Repeat("x", 1<<16) //nolint:forcetypeassert // index 1 is the class name
	_, err = cf.Encode()
	assert.ErrorIs(t, err, ErrPoolOverflow)
}

func TestRemapCopiesUnknownAttributeBytes(t *testing.T) {
	t.Parallel()

	b := testutil.NewClass("org/objectweb/asm/Type")
	idx := b.Utf8("org/objectweb/asm/Type")
	payload := []byte{byte(idx >> 8), byte(idx)}
	b.RawAttribute("Vendor", payload)

	r := prefixRemapper{from: "org/objectweb/asm/", to: "shaded/"}
	cf, changed := remapBytes(t, b.Bytes(), r)
	require.True(t, changed)

	var vendor []byte
	for _, a := range cf.Attributes {
		if name, err := cf.Pool.Utf8(a.NameIndex); err == nil && name == "Vendor" {
			vendor = a.Info
		}
	}
	// The layout of an unknown attribute is opaque: its bytes are copied as
	// they are, so an index it holds follows whatever the constant becomes.
	assert.Equal(t, payload, vendor)
	got, err := cf.Pool.Utf8(idx)
	require.NoError(t, err)
	assert.Equal(t, "shaded/org/objectweb/asm/Type", got)
}
