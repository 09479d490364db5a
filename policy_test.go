package jarshade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func asmPolicy(names ...string) *Policy {
	return NewPolicy(DefaultConfig(), NewEntryIndex(names...))
}

func TestRelocateType(t *testing.T) {
	t.Parallel()

	p := asmPolicy("org/objectweb/asm/Type.class", "com/acme/Helper.class", "Top.class", "META-INF/versions/9/x/Y.class")

	tests := []struct {
		name, in, want string
	}{
		{"root prefix", "org/objectweb/asm/Type", "com/nasller/asm/libs/org/objectweb/asm/Type"},
		{"root prefix not in archive", "org/objectweb/asm/tree/ClassNode", "com/nasller/asm/libs/org/objectweb/asm/tree/ClassNode"},
		{"defined in archive", "com/acme/Helper", "com/nasller/asm/libs/com/acme/Helper"},
		{"jdk type", "java/lang/String", "java/lang/String"},
		{"unrelated third party", "com/acme/Other", "com/acme/Other"},
		{"already relocated", "com/nasller/asm/libs/org/objectweb/asm/Type", "com/nasller/asm/libs/org/objectweb/asm/Type"},
		{"default package", "Top", "Top"},
		{"meta-inf class", "META-INF/versions/9/x/Y", "META-INF/versions/9/x/Y"},
		{"empty", "", ""},
		{"root without slash is not under root", "org/objectweb/asmx/Foo", "org/objectweb/asmx/Foo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.RelocateType(tt.in))
		})
	}
}

func TestRelocateTypeIdempotent(t *testing.T) {
	t.Parallel()

	p := asmPolicy("org/objectweb/asm/Type.class", "com/acme/Helper.class")
	for _, n := range []string{
		"org/objectweb/asm/Type",
		"org/objectweb/asm/util/Printer",
		"com/acme/Helper",
		"java/util/List",
		"Top",
		"com/nasller/asm/libs/com/acme/Helper",
	} {
		once := p.RelocateType(n)
		assert.Equal(t, once, p.RelocateType(once), "name %q", n)
	}
}

func TestRelocateTypePassthrough(t *testing.T) {
	t.Parallel()

	p := asmPolicy()
	for _, n := range []string{"java/lang/Object", "kotlin/Unit", "com/google/common/base/Strings"} {
		assert.Equal(t, n, p.RelocateType(n))
	}
}

func TestRelocateConstant(t *testing.T) {
	t.Parallel()

	p := asmPolicy("com/acme/Helper.class")
	tests := []struct {
		in, want string
	}{
		{"org/objectweb/asm/util/Printer", "com/nasller/asm/libs/org/objectweb/asm/util/Printer"},
		{"org/objectweb/asm/", "com/nasller/asm/libs/org/objectweb/asm/"},
		{"some.org/objectweb/asm/note", "some.org/objectweb/asm/note"},
		{"org.objectweb.asm.Type", "org.objectweb.asm.Type"},
		// Archive membership only affects type names, never literals.
		{"com/acme/Helper", "com/acme/Helper"},
		{"com/nasller/asm/libs/org/objectweb/asm/Type", "com/nasller/asm/libs/org/objectweb/asm/Type"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.RelocateConstant(tt.in), "constant %q", tt.in)
	}
}

func TestRelocateEntryName(t *testing.T) {
	t.Parallel()

	names := []string{
		"org/objectweb/asm/Type.class",
		"com/acme/Helper.class",
		"com/acme/Plain.txt",
		"org/objectweb/asm/res.properties",
		"META-INF/MANIFEST.MF",
		"META-INF/services/org.objectweb.asm.SomePlugin",
		"META-INF/versions/9/org/objectweb/asm/Type.class",
		"MANIFEST.MF",
		"Top.class",
		"org/objectweb/asm/",
	}

	roots := asmPolicy(names...)
	all := NewPolicy(Config{
		TargetPrefix: DefaultTargetPrefix,
		Roots:        []string{DefaultRoot},
		Resources:    ResourcesAll,
	}, NewEntryIndex(names...))

	tests := []struct {
		in, wantRoots, wantAll string
	}{
		{"org/objectweb/asm/Type.class", "com/nasller/asm/libs/org/objectweb/asm/Type.class", "com/nasller/asm/libs/org/objectweb/asm/Type.class"},
		{"com/acme/Helper.class", "com/nasller/asm/libs/com/acme/Helper.class", "com/nasller/asm/libs/com/acme/Helper.class"},
		{"com/acme/Plain.txt", "com/acme/Plain.txt", "com/nasller/asm/libs/com/acme/Plain.txt"},
		{"org/objectweb/asm/res.properties", "com/nasller/asm/libs/org/objectweb/asm/res.properties", "com/nasller/asm/libs/org/objectweb/asm/res.properties"},
		{"META-INF/MANIFEST.MF", "META-INF/MANIFEST.MF", "META-INF/MANIFEST.MF"},
		{"META-INF/services/org.objectweb.asm.SomePlugin", "META-INF/services/org.objectweb.asm.SomePlugin", "META-INF/services/org.objectweb.asm.SomePlugin"},
		{"META-INF/versions/9/org/objectweb/asm/Type.class", "META-INF/versions/9/org/objectweb/asm/Type.class", "META-INF/versions/9/org/objectweb/asm/Type.class"},
		{"MANIFEST.MF", "MANIFEST.MF", "MANIFEST.MF"},
		{"Top.class", "Top.class", "Top.class"},
		{"org/objectweb/asm/", "com/nasller/asm/libs/org/objectweb/asm/", "com/nasller/asm/libs/org/objectweb/asm/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantRoots, roots.RelocateEntryName(tt.in), "roots mode: %q", tt.in)
		assert.Equal(t, tt.wantAll, all.RelocateEntryName(tt.in), "all mode: %q", tt.in)
	}
}

func TestRelocateEntryNameSelfConsistent(t *testing.T) {
	t.Parallel()

	names := []string{
		"org/objectweb/asm/Type.class",
		"org/objectweb/asm/Type$1.class",
		"com/acme/Helper.class",
		"Top.class",
	}
	p := asmPolicy(names...)
	for _, n := range names {
		typeName := n[:len(n)-len(classSuffix)]
		assert.Equal(t, p.RelocateType(typeName)+classSuffix, p.RelocateEntryName(n), "entry %q", n)
	}
}

func TestMultipleRoots(t *testing.T) {
	t.Parallel()

	cfg := Config{
		TargetPrefix: "shaded/",
		Roots:        []string{"org/objectweb/asm/", "org/objectweb/asm/tree/"},
	}
	p := NewPolicy(cfg, nil)
	assert.Equal(t, "shaded/org/objectweb/asm/tree/ClassNode", p.RelocateType("org/objectweb/asm/tree/ClassNode"))
	assert.Equal(t, "shaded/org/objectweb/asm/Type", p.RelocateType("shaded/org/objectweb/asm/Type"))
	assert.Equal(t, "shaded/org/objectweb/asm/Type", p.RelocateConstant("org/objectweb/asm/Type"))
}
