package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Magic is the class file signature.
const Magic = 0xCAFEBABE

// Supported major versions: JDK 1.1 through JDK 25.
const (
	MinMajorVersion = 45
	MaxMajorVersion = 69
)

// ClassFile is the structural model of a decoded class.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         Pool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []Member
	Methods      []Member
	Attributes   []Attribute
}

// Member is a field_info or method_info structure.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

// Attribute is an attribute with its payload kept as raw bytes.
type Attribute struct {
	NameIndex uint16
	Info      []byte
}

// Name returns the class's own internal name.
func (cf *ClassFile) Name() (string, error) {
	return cf.Pool.ClassName(cf.ThisClass)
}

// SuperName returns the superclass internal name, or "" for java/lang/Object
// and module-info.
func (cf *ClassFile) SuperName() (string, error) {
	if cf.SuperClass == 0 {
		return "", nil
	}
	return cf.Pool.ClassName(cf.SuperClass)
}

// InterfaceNames returns the internal names of the direct superinterfaces.
func (cf *ClassFile) InterfaceNames() ([]string, error) {
	names := make([]string, 0, len(cf.Interfaces))
	for _, i := range cf.Interfaces {
		name, err := cf.Pool.ClassName(i)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Decode parses a class file payload.
//
// The returned model does not alias data.
func Decode(data []byte) (*ClassFile, error) {
	d := &decoder{buf: data}
	if magic := d.u4(); d.err == nil && magic != Magic {
		return nil, ErrBadMagic
	}
	cf := &ClassFile{
		MinorVersion: d.u2(),
		MajorVersion: d.u2(),
	}
	if d.err != nil {
		return nil, d.err
	}
	if cf.MajorVersion < MinMajorVersion || cf.MajorVersion > MaxMajorVersion {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, cf.MajorVersion, cf.MinorVersion)
	}

	cf.Pool = d.pool()
	cf.AccessFlags = d.u2()
	cf.ThisClass = d.u2()
	cf.SuperClass = d.u2()
	n := int(d.u2())
	cf.Interfaces = make([]uint16, 0, n)
	for range n {
		cf.Interfaces = append(cf.Interfaces, d.u2())
	}
	cf.Fields = d.members()
	cf.Methods = d.members()
	cf.Attributes = d.attributes()
	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(d.buf)-d.off)
	}
	if _, err := cf.Name(); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	return cf, nil
}

// Encode serializes the class file.
func (cf *ClassFile) Encode() ([]byte, error) {
	if len(cf.Pool) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d entries", ErrPoolOverflow, len(cf.Pool))
	}
	var e encoder
	e.u4(Magic)
	e.u2(cf.MinorVersion)
	e.u2(cf.MajorVersion)
	if err := e.pool(cf.Pool); err != nil {
		return nil, err
	}
	e.u2(cf.AccessFlags)
	e.u2(cf.ThisClass)
	e.u2(cf.SuperClass)
	e.u2(uint16(len(cf.Interfaces))) //nolint:gosec // bounded by decode
	for _, i := range cf.Interfaces {
		e.u2(i)
	}
	e.members(cf.Fields)
	e.members(cf.Methods)
	e.attributes(cf.Attributes)
	return e.buf.Bytes(), nil
}

// decoder reads big-endian values and latches the first error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, d.off)
		return false
	}
	return true
}

func (d *decoder) u1() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) u2() uint16 {
	if !d.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v
}

func (d *decoder) u4() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u8() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) bytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	v := bytes.Clone(d.buf[d.off : d.off+n])
	d.off += n
	return v
}

func (d *decoder) pool() Pool {
	count := int(d.u2())
	if d.err != nil {
		return nil
	}
	if count == 0 {
		d.err = fmt.Errorf("%w: constant_pool_count is 0", ErrMalformed)
		return nil
	}
	p := make(Pool, count)
	for i := 1; i < count && d.err == nil; i++ {
		tag := Tag(d.u1())
		switch tag {
		case TagUtf8:
			n := int(d.u2())
			p[i] = &ConstantUtf8{Value: string(d.bytes(n))}
		case TagInteger:
			p[i] = &ConstantInteger{Bits: d.u4()}
		case TagFloat:
			p[i] = &ConstantFloat{Bits: d.u4()}
		case TagLong, TagDouble:
			if tag == TagLong {
				p[i] = &ConstantLong{Bits: d.u8()}
			} else {
				p[i] = &ConstantDouble{Bits: d.u8()}
			}
			i++
			if i >= count {
				d.err = fmt.Errorf("%w: 8-byte constant in last pool slot", ErrMalformed)
			}
		case TagClass:
			p[i] = &ConstantClass{NameIndex: d.u2()}
		case TagString:
			p[i] = &ConstantString{StringIndex: d.u2()}
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			p[i] = &ConstantMemberref{Kind: tag, ClassIndex: d.u2(), NameAndTypeIndex: d.u2()}
		case TagNameAndType:
			p[i] = &ConstantNameAndType{NameIndex: d.u2(), DescriptorIndex: d.u2()}
		case TagMethodHandle:
			p[i] = &ConstantMethodHandle{ReferenceKind: d.u1(), ReferenceIndex: d.u2()}
		case TagMethodType:
			p[i] = &ConstantMethodType{DescriptorIndex: d.u2()}
		case TagDynamic, TagInvokeDynamic:
			p[i] = &ConstantDynamic{Kind: tag, BootstrapMethodAttrIndex: d.u2(), NameAndTypeIndex: d.u2()}
		case TagModule, TagPackage:
			p[i] = &ConstantNamed{Kind: tag, NameIndex: d.u2()}
		default:
			if d.err == nil {
				d.err = fmt.Errorf("%w: unknown constant tag %d at index %d", ErrMalformed, tag, i)
			}
		}
	}
	return p
}

func (d *decoder) members() []Member {
	n := int(d.u2())
	if d.err != nil {
		return nil
	}
	ms := make([]Member, 0, n)
	for range n {
		m := Member{
			AccessFlags:     d.u2(),
			NameIndex:       d.u2(),
			DescriptorIndex: d.u2(),
		}
		m.Attributes = d.attributes()
		if d.err != nil {
			return nil
		}
		ms = append(ms, m)
	}
	return ms
}

func (d *decoder) attributes() []Attribute {
	n := int(d.u2())
	if d.err != nil {
		return nil
	}
	attrs := make([]Attribute, 0, n)
	for range n {
		name := d.u2()
		size := d.u4()
		if size > math.MaxInt32 {
			d.err = fmt.Errorf("%w: attribute length %d", ErrMalformed, size)
			return nil
		}
		info := d.bytes(int(size))
		if d.err != nil {
			return nil
		}
		attrs = append(attrs, Attribute{NameIndex: name, Info: info})
	}
	return attrs
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u1(v uint8) {
	e.buf.WriteByte(v)
}

func (e *encoder) u2(v uint16) {
	e.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

func (e *encoder) u4(v uint32) {
	e.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (e *encoder) u8(v uint64) {
	e.buf.Write(binary.BigEndian.AppendUint64(nil, v))
}

func (e *encoder) pool(p Pool) error {
	e.u2(uint16(len(p))) //nolint:gosec // checked by caller
	for i := 1; i < len(p); i++ {
		c := p[i]
		if c == nil {
			return fmt.Errorf("%w: empty constant slot %d", ErrMalformed, i)
		}
		e.u1(uint8(c.Tag()))
		switch c := c.(type) {
		case *ConstantUtf8:
			if len(c.Value) > math.MaxUint16 {
				return fmt.Errorf("%w: Utf8 constant %d is %d bytes", ErrPoolOverflow, i, len(c.Value))
			}
			e.u2(uint16(len(c.Value)))
			e.buf.WriteString(c.Value)
		case *ConstantInteger:
			e.u4(c.Bits)
		case *ConstantFloat:
			e.u4(c.Bits)
		case *ConstantLong:
			e.u8(c.Bits)
			i++
		case *ConstantDouble:
			e.u8(c.Bits)
			i++
		case *ConstantClass:
			e.u2(c.NameIndex)
		case *ConstantString:
			e.u2(c.StringIndex)
		case *ConstantMemberref:
			e.u2(c.ClassIndex)
			e.u2(c.NameAndTypeIndex)
		case *ConstantNameAndType:
			e.u2(c.NameIndex)
			e.u2(c.DescriptorIndex)
		case *ConstantMethodHandle:
			e.u1(c.ReferenceKind)
			e.u2(c.ReferenceIndex)
		case *ConstantMethodType:
			e.u2(c.DescriptorIndex)
		case *ConstantDynamic:
			e.u2(c.BootstrapMethodAttrIndex)
			e.u2(c.NameAndTypeIndex)
		case *ConstantNamed:
			e.u2(c.NameIndex)
		default:
			return fmt.Errorf("%w: unknown constant type %T", ErrMalformed, c)
		}
	}
	return nil
}

func (e *encoder) members(ms []Member) {
	e.u2(uint16(len(ms))) //nolint:gosec // bounded by decode
	for _, m := range ms {
		e.u2(m.AccessFlags)
		e.u2(m.NameIndex)
		e.u2(m.DescriptorIndex)
		e.attributes(m.Attributes)
	}
}

func (e *encoder) attributes(attrs []Attribute) {
	e.u2(uint16(len(attrs))) //nolint:gosec // bounded by decode
	for _, a := range attrs {
		e.u2(a.NameIndex)
		e.u4(uint32(len(a.Info))) //nolint:gosec // bounded by decode
		e.buf.Write(a.Info)
	}
}
