package classfile

import (
	"fmt"
	"math"
)

// Remapper supplies the two rewrite functions applied to a class.
//
// MapType receives internal names (e.g. "org/objectweb/asm/Type"), including
// names found inside descriptors and signatures. MapValue receives string
// literals. Both must be pure and total.
type Remapper interface {
	MapType(internalName string) string
	MapValue(value string) string
}

// mapSite computes the new value for a site of the given kind.
func mapSite(kind SiteKind, value string, r Remapper) (string, error) {
	switch kind {
	case SiteClassName:
		return MapClassName(value, r.MapType)
	case SiteDescriptor, SiteSignature:
		return MapSignature(value, r.MapType)
	case SiteString:
		return r.MapValue(value), nil
	default:
		return "", fmt.Errorf("%w: unknown site kind %d", ErrMalformed, kind)
	}
}

type siteValue struct {
	site  Site
	value string
}

// Remap rewrites every site of cf through r and reports whether anything
// changed. A class for which it returns false is untouched.
//
// Utf8 constants are shared, so two sites referencing the same constant may
// want different values (a class name and an unrelated string literal, for
// example). A constant is rewritten in place when all its sites agree and it
// is not also used as a member, attribute or element name; otherwise the
// sites that need a different value are pointed at a new or existing Utf8
// constant holding it.
func Remap(cf *ClassFile, r Remapper) (bool, error) {
	w := &siteWalker{pool: cf.Pool, pinned: make(map[uint16]struct{})}
	if err := w.walk(cf); err != nil {
		return false, err
	}

	var order []uint16
	wants := make(map[uint16][]siteValue)
	changed := false
	for _, s := range w.sites {
		idx := s.Index()
		cur, err := cf.Pool.Utf8(idx)
		if err != nil {
			return false, fmt.Errorf("%s site: %w", s.Kind, err)
		}
		mapped, err := mapSite(s.Kind, cur, r)
		if err != nil {
			return false, err
		}
		if mapped != cur {
			changed = true
		}
		if _, seen := wants[idx]; !seen {
			order = append(order, idx)
		}
		wants[idx] = append(wants[idx], siteValue{site: s, value: mapped})
	}
	if !changed {
		return false, nil
	}

	// In-place rewrites first so that interning below sees final values.
	var split []uint16
	for _, idx := range order {
		cur := cf.Pool[idx].(*ConstantUtf8) //nolint:forcetypeassert // checked by Utf8 above
		sv := wants[idx]
		if !anyDiffers(sv, cur.Value) {
			continue
		}
		_, pinned := w.pinned[idx]
		if !pinned && allAgree(sv) {
			cur.Value = sv[0].value
			continue
		}
		split = append(split, idx)
	}
	if len(split) == 0 {
		return true, nil
	}

	interned := make(map[string]uint16)
	for i, c := range cf.Pool {
		if u, ok := c.(*ConstantUtf8); ok {
			if _, dup := interned[u.Value]; !dup {
				interned[u.Value] = uint16(i) //nolint:gosec // pool size bounded by decode
			}
		}
	}
	for _, idx := range split {
		cur := cf.Pool[idx].(*ConstantUtf8) //nolint:forcetypeassert // checked by Utf8 above
		for _, sv := range wants[idx] {
			if sv.value == cur.Value {
				continue
			}
			ni, ok := interned[sv.value]
			if !ok {
				if len(cf.Pool) >= math.MaxUint16 {
					return false, fmt.Errorf("%w: cannot add constant for %q", ErrPoolOverflow, sv.value)
				}
				ni = uint16(len(cf.Pool)) //nolint:gosec // checked above
				cf.Pool = append(cf.Pool, &ConstantUtf8{Value: sv.value})
				interned[sv.value] = ni
			}
			sv.site.setIndex(ni)
		}
	}
	return true, nil
}

func anyDiffers(sv []siteValue, cur string) bool {
	for _, v := range sv {
		if v.value != cur {
			return true
		}
	}
	return false
}

func allAgree(sv []siteValue) bool {
	for _, v := range sv[1:] {
		if v.value != sv[0].value {
			return false
		}
	}
	return true
}
