package classfile

import (
	"encoding/binary"
	"fmt"
)

// SiteKind says how the Utf8 value behind a Site is interpreted.
type SiteKind uint8

const (
	// SiteClassName is the name of a Class constant: an internal name, or an
	// array descriptor for array classes.
	SiteClassName SiteKind = iota

	// SiteDescriptor is a field, method or return descriptor.
	SiteDescriptor

	// SiteSignature is a generic class, method or field signature.
	SiteSignature

	// SiteString is a string literal: a String constant or an annotation
	// string value.
	SiteString
)

// String returns the kind name.
func (k SiteKind) String() string {
	switch k {
	case SiteClassName:
		return "class name"
	case SiteDescriptor:
		return "descriptor"
	case SiteSignature:
		return "signature"
	case SiteString:
		return "string"
	default:
		return "unknown"
	}
}

// Site is one place in a class file that holds the index of a Utf8 constant
// whose value may need rewriting.
type Site struct {
	Kind SiteKind

	slot *uint16 // field of a decoded structure
	raw  []byte  // or big-endian u2 at raw[off:] inside an attribute payload
	off  int
}

// Index returns the constant pool index stored at the site.
func (s Site) Index() uint16 {
	if s.slot != nil {
		return *s.slot
	}
	return binary.BigEndian.Uint16(s.raw[s.off:])
}

func (s Site) setIndex(i uint16) {
	if s.slot != nil {
		*s.slot = i
		return
	}
	binary.BigEndian.PutUint16(s.raw[s.off:], i)
}

// siteWalker collects sites and the Utf8 indices that are referenced from
// places that must keep their value (names of members, attributes and
// annotation elements).
type siteWalker struct {
	pool   Pool
	sites  []Site
	pinned map[uint16]struct{}
}

// Sites returns every rewritable site in the class, in file order: constant
// pool first, then fields, methods and class attributes.
func (cf *ClassFile) Sites() ([]Site, error) {
	w := &siteWalker{pool: cf.Pool, pinned: make(map[uint16]struct{})}
	if err := w.walk(cf); err != nil {
		return nil, err
	}
	return w.sites, nil
}

func (w *siteWalker) add(kind SiteKind, slot *uint16) {
	w.sites = append(w.sites, Site{Kind: kind, slot: slot})
}

func (w *siteWalker) addRaw(kind SiteKind, raw []byte, off int) {
	w.sites = append(w.sites, Site{Kind: kind, raw: raw, off: off})
}

func (w *siteWalker) pin(i uint16) {
	w.pinned[i] = struct{}{}
}

func (w *siteWalker) walk(cf *ClassFile) error {
	for _, c := range cf.Pool {
		switch c := c.(type) {
		case *ConstantClass:
			w.add(SiteClassName, &c.NameIndex)
		case *ConstantString:
			w.add(SiteString, &c.StringIndex)
		case *ConstantNameAndType:
			w.pin(c.NameIndex)
			w.add(SiteDescriptor, &c.DescriptorIndex)
		case *ConstantMethodType:
			w.add(SiteDescriptor, &c.DescriptorIndex)
		case *ConstantNamed:
			w.pin(c.NameIndex)
		}
	}
	for i := range cf.Fields {
		if err := w.member(&cf.Fields[i]); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	for i := range cf.Methods {
		if err := w.member(&cf.Methods[i]); err != nil {
			return fmt.Errorf("method %d: %w", i, err)
		}
	}
	return w.attributes(cf.Attributes)
}

func (w *siteWalker) member(m *Member) error {
	w.pin(m.NameIndex)
	w.add(SiteDescriptor, &m.DescriptorIndex)
	return w.attributes(m.Attributes)
}

func (w *siteWalker) attributes(attrs []Attribute) error {
	for _, a := range attrs {
		name, err := w.pool.Utf8(a.NameIndex)
		if err != nil {
			return fmt.Errorf("attribute name: %w", err)
		}
		w.pin(a.NameIndex)
		if err := w.attribute(name, a.Info); err != nil {
			return fmt.Errorf("%s attribute: %w", name, err)
		}
	}
	return nil
}

func (w *siteWalker) attribute(name string, info []byte) error {
	r := &rawReader{buf: info}
	switch name {
	case "Signature":
		w.addRaw(SiteSignature, info, r.skip(2))
	case "SourceFile":
		w.pin(r.u2())
	case "Code":
		return w.code(r)
	case "LocalVariableTable", "LocalVariableTypeTable":
		kind := SiteDescriptor
		if name == "LocalVariableTypeTable" {
			kind = SiteSignature
		}
		n := int(r.u2())
		for range n {
			r.skip(4) // start_pc, length
			w.pin(r.u2())
			w.addRaw(kind, info, r.skip(2))
			r.skip(2) // index
		}
	case "InnerClasses":
		n := int(r.u2())
		for range n {
			r.skip(4) // inner_class_info_index, outer_class_info_index
			if inner := r.u2(); inner != 0 {
				w.pin(inner)
			}
			r.skip(2) // flags
		}
	case "MethodParameters":
		n := int(r.u1())
		for range n {
			if pname := r.u2(); pname != 0 {
				w.pin(pname)
			}
			r.skip(2)
		}
	case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
		n := int(r.u2())
		for range n {
			w.annotation(r, info)
		}
	case "RuntimeVisibleParameterAnnotations", "RuntimeInvisibleParameterAnnotations":
		params := int(r.u1())
		for range params {
			n := int(r.u2())
			for range n {
				w.annotation(r, info)
			}
		}
	case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
		n := int(r.u2())
		for range n {
			w.typeAnnotation(r, info)
		}
	case "AnnotationDefault":
		w.elementValue(r, info)
	case "Record":
		n := int(r.u2())
		for range n {
			w.pin(r.u2())
			w.addRaw(SiteDescriptor, info, r.skip(2))
			if err := w.nested(r); err != nil {
				return err
			}
		}
	default:
		return nil
	}
	if r.err != nil {
		return r.err
	}
	if r.off != len(info) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(info)-r.off)
	}
	return nil
}

// code walks a Code attribute: bytecode and exception table reference the
// pool only through Class and member constants, so only the nested
// attributes carry sites.
func (w *siteWalker) code(r *rawReader) error {
	r.skip(4) // max_stack, max_locals
	r.skip(int(r.u4()))
	r.skip(8 * int(r.u2()))
	if err := w.nested(r); err != nil {
		return err
	}
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.buf)-r.off)
	}
	return nil
}

// nested walks an attributes_count-prefixed attribute table embedded in r.
func (w *siteWalker) nested(r *rawReader) error {
	n := int(r.u2())
	for range n {
		nameIndex := r.u2()
		size := int(r.u4())
		start := r.skip(size)
		if r.err != nil {
			return r.err
		}
		name, err := w.pool.Utf8(nameIndex)
		if err != nil {
			return fmt.Errorf("attribute name: %w", err)
		}
		w.pin(nameIndex)
		if err := w.attribute(name, r.buf[start:start+size]); err != nil {
			return fmt.Errorf("%s attribute: %w", name, err)
		}
	}
	return nil
}

func (w *siteWalker) annotation(r *rawReader, info []byte) {
	w.addRaw(SiteDescriptor, info, r.skip(2)) // type_index
	n := int(r.u2())
	for range n {
		w.pin(r.u2()) // element_name_index
		w.elementValue(r, info)
	}
}

func (w *siteWalker) elementValue(r *rawReader, info []byte) {
	tag := r.u1()
	if r.err != nil {
		return
	}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		r.skip(2)
	case 's':
		w.addRaw(SiteString, info, r.skip(2))
	case 'e':
		w.addRaw(SiteDescriptor, info, r.skip(2))
		w.pin(r.u2())
	case 'c':
		w.addRaw(SiteDescriptor, info, r.skip(2))
	case '@':
		w.annotation(r, info)
	case '[':
		n := int(r.u2())
		for range n {
			w.elementValue(r, info)
		}
	default:
		r.fail(fmt.Errorf("%w: element_value tag %q", ErrMalformed, tag))
	}
}

func (w *siteWalker) typeAnnotation(r *rawReader, info []byte) {
	target := r.u1()
	switch {
	case target == 0x00 || target == 0x01 || target == 0x16:
		r.skip(1)
	case target == 0x10 || target == 0x17 || (target >= 0x42 && target <= 0x46):
		r.skip(2)
	case target == 0x11 || target == 0x12:
		r.skip(2)
	case target >= 0x13 && target <= 0x15:
	case target == 0x40 || target == 0x41:
		r.skip(6 * int(r.u2()))
	case target >= 0x47 && target <= 0x4B:
		r.skip(3)
	default:
		r.fail(fmt.Errorf("%w: type annotation target 0x%02x", ErrMalformed, target))
		return
	}
	r.skip(2 * int(r.u1())) // type_path
	w.annotation(r, info)
}

// rawReader walks an attribute payload. Offsets returned by skip point into
// buf so sites can patch the payload in place.
type rawReader struct {
	buf []byte
	off int
	err error
}

func (r *rawReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// skip advances n bytes and returns the offset of the first skipped byte.
func (r *rawReader) skip(n int) int {
	start := r.off
	if r.err != nil {
		return 0
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.fail(fmt.Errorf("%w: attribute needs %d bytes at offset %d", ErrTruncated, n, r.off))
		return 0
	}
	r.off += n
	return start
}

func (r *rawReader) u1() uint8 {
	off := r.skip(1)
	if r.err != nil {
		return 0
	}
	return r.buf[off]
}

func (r *rawReader) u2() uint16 {
	off := r.skip(2)
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(r.buf[off:])
}

func (r *rawReader) u4() uint32 {
	off := r.skip(4)
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(r.buf[off:])
}
