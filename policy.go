package jarshade

import "strings"

const (
	metaInf     = "META-INF/"
	classSuffix = ".class"
)

// Policy decides which names are relocated for one archive.
//
// A Policy is immutable and safe for concurrent use.
type Policy struct {
	target string
	roots  []string
	mode   ResourceMode
	index  *EntryIndex
}

// NewPolicy returns the relocation policy for an archive with the given
// index. A nil index behaves as an empty archive.
func NewPolicy(cfg Config, index *EntryIndex) *Policy {
	return &Policy{
		target: cfg.TargetPrefix,
		roots:  cfg.Roots,
		mode:   cfg.Resources,
		index:  index,
	}
}

// RelocateType returns the relocated internal name for name.
//
// A name is relocated when the archive defines name+".class" or when it
// starts with one of the roots. Names already under the target prefix are
// returned unchanged, which makes RelocateType idempotent. Names whose
// class entry would be exempt from renaming (default package, META-INF/)
// are never relocated, even when the archive defines them: their entries
// keep their names, and a reference must resolve to the name the class is
// stored under.
func (p *Policy) RelocateType(name string) string {
	if name == "" || strings.HasPrefix(name, p.target) || exempt(name) {
		return name
	}
	if p.underRoot(name) || p.index.Has(name+classSuffix) {
		return p.target + name
	}
	return name
}

// RelocateConstant returns the relocated form of a string literal.
//
// Only literals that start with a root are rewritten; literals that merely
// contain one are left alone. This is a textual heuristic: it cannot tell a
// type name from unrelated text that shares the prefix, and it misses names
// assembled at run time.
func (p *Policy) RelocateConstant(value string) string {
	if strings.HasPrefix(value, p.target) || !p.underRoot(value) {
		return value
	}
	return p.target + value
}

// RelocateEntryName returns the output name for an archive entry.
//
// Entries without a '/' and entries under META-INF/ keep their names. Class
// entries move to RelocateType of the class name they are stored under.
// Resources move when they are under a root, or always with ResourcesAll.
func (p *Policy) RelocateEntryName(name string) string {
	if exempt(name) || strings.HasPrefix(name, p.target) {
		return name
	}
	if strings.HasSuffix(name, classSuffix) {
		return p.RelocateType(strings.TrimSuffix(name, classSuffix)) + classSuffix
	}
	if p.mode == ResourcesAll || p.underRoot(name) {
		return p.target + name
	}
	return name
}

func (p *Policy) underRoot(name string) bool {
	for _, r := range p.roots {
		if strings.HasPrefix(name, r) {
			return true
		}
	}
	return false
}

// exempt reports whether an entry name must not be renamed.
func exempt(name string) bool {
	return !strings.Contains(name, "/") || strings.HasPrefix(name, metaInf)
}

// remapper adapts a Policy to classfile.Remapper.
type remapper struct {
	p *Policy
}

func (r remapper) MapType(internalName string) string {
	return r.p.RelocateType(internalName)
}

func (r remapper) MapValue(value string) string {
	return r.p.RelocateConstant(value)
}
