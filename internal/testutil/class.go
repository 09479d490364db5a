package testutil

import (
	"bytes"
	"encoding/binary"
	"strconv"
)

// Constant pool tags used by ClassBuilder.
const (
	tagUtf8        = 1
	tagInteger     = 3
	tagLong        = 5
	tagClass       = 7
	tagString      = 8
	tagFieldref    = 9
	tagMethodref   = 10
	tagNameAndType = 12
	tagMethodType  = 16
)

// ClassBuilder assembles minimal but structurally valid class files. The
// bytecode it emits is never verified or run; it only has to parse.
type ClassBuilder struct {
	major uint16
	name  string

	pool  bytes.Buffer
	count uint16
	keys  map[string]uint16

	thisClass  uint16
	superClass uint16
	interfaces []uint16
	fields     [][]byte
	methods    [][]byte
	attrs      [][]byte
}

// NewClass starts a public class extending java/lang/Object, version 52.
func NewClass(name string) *ClassBuilder {
	b := &ClassBuilder{major: 52, name: name, count: 1, keys: make(map[string]uint16)}
	b.thisClass = b.ClassRef(name)
	b.superClass = b.ClassRef("java/lang/Object")
	return b
}

// Name returns the internal name of the class.
func (b *ClassBuilder) Name() string {
	return b.name
}

// Version sets the major version.
func (b *ClassBuilder) Version(major uint16) *ClassBuilder {
	b.major = major
	return b
}

// Extends sets the superclass.
func (b *ClassBuilder) Extends(name string) *ClassBuilder {
	b.superClass = b.ClassRef(name)
	return b
}

// Implements adds a superinterface.
func (b *ClassBuilder) Implements(name string) *ClassBuilder {
	b.interfaces = append(b.interfaces, b.ClassRef(name))
	return b
}

func (b *ClassBuilder) intern(key string, write func()) uint16 {
	if i, ok := b.keys[key]; ok {
		return i
	}
	write()
	i := b.count
	b.keys[key] = i
	b.count++
	return i
}

// Utf8 interns a Utf8 constant.
func (b *ClassBuilder) Utf8(s string) uint16 {
	return b.intern("u:"+s, func() {
		b.pool.WriteByte(tagUtf8)
		b.u2(&b.pool, uint16(len(s))) //nolint:gosec // test strings are short
		b.pool.WriteString(s)
	})
}

// ClassRef interns a Class constant.
func (b *ClassBuilder) ClassRef(name string) uint16 {
	ni := b.Utf8(name)
	return b.intern("c:"+name, func() {
		b.pool.WriteByte(tagClass)
		b.u2(&b.pool, ni)
	})
}

// StringRef interns a String constant.
func (b *ClassBuilder) StringRef(s string) uint16 {
	si := b.Utf8(s)
	return b.intern("s:"+s, func() {
		b.pool.WriteByte(tagString)
		b.u2(&b.pool, si)
	})
}

// IntegerRef adds an Integer constant.
func (b *ClassBuilder) IntegerRef(v int32) uint16 {
	return b.intern("i:"+strconv.Itoa(int(v)), func() {
		b.pool.WriteByte(tagInteger)
		b.u4(&b.pool, uint32(v)) //nolint:gosec // bit pattern
	})
}

// LongRef adds a Long constant, which takes two pool slots.
func (b *ClassBuilder) LongRef(v int64) uint16 {
	b.pool.WriteByte(tagLong)
	b.u4(&b.pool, uint32(uint64(v)>>32)) //nolint:gosec // bit pattern
	b.u4(&b.pool, uint32(v))             //nolint:gosec // bit pattern
	i := b.count
	b.count += 2
	return i
}

// MethodTypeRef interns a MethodType constant.
func (b *ClassBuilder) MethodTypeRef(desc string) uint16 {
	di := b.Utf8(desc)
	return b.intern("t:"+desc, func() {
		b.pool.WriteByte(tagMethodType)
		b.u2(&b.pool, di)
	})
}

func (b *ClassBuilder) nameAndType(name, desc string) uint16 {
	ni, di := b.Utf8(name), b.Utf8(desc)
	return b.intern("n:"+name+":"+desc, func() {
		b.pool.WriteByte(tagNameAndType)
		b.u2(&b.pool, ni)
		b.u2(&b.pool, di)
	})
}

func (b *ClassBuilder) memberRef(tag byte, owner, name, desc string) uint16 {
	ci, nt := b.ClassRef(owner), b.nameAndType(name, desc)
	return b.intern(strconv.Itoa(int(tag))+":"+owner+"."+name+":"+desc, func() {
		b.pool.WriteByte(tag)
		b.u2(&b.pool, ci)
		b.u2(&b.pool, nt)
	})
}

// Insn emits one instruction, interning what it references.
type Insn func(b *ClassBuilder) []byte

// LdcString loads a string literal and pops it.
func LdcString(s string) Insn {
	return func(b *ClassBuilder) []byte {
		i := b.StringRef(s)
		return []byte{0x13, byte(i >> 8), byte(i), 0x57} // ldc_w, pop
	}
}

// InvokeStatic calls a static method.
func InvokeStatic(owner, name, desc string) Insn {
	return func(b *ClassBuilder) []byte {
		i := b.memberRef(tagMethodref, owner, name, desc)
		return []byte{0xb8, byte(i >> 8), byte(i)}
	}
}

// GetStatic reads a static field and pops it.
func GetStatic(owner, name, desc string) Insn {
	return func(b *ClassBuilder) []byte {
		i := b.memberRef(tagFieldref, owner, name, desc)
		return []byte{0xb2, byte(i >> 8), byte(i), 0x57}
	}
}

// CheckCast references a class through checkcast.
func CheckCast(name string) Insn {
	return func(b *ClassBuilder) []byte {
		i := b.ClassRef(name)
		return []byte{0x01, 0xc0, byte(i >> 8), byte(i), 0x57} // aconst_null, checkcast, pop
	}
}

// LdcMethodType loads a MethodType constant and pops it.
func LdcMethodType(desc string) Insn {
	return func(b *ClassBuilder) []byte {
		i := b.MethodTypeRef(desc)
		return []byte{0x13, byte(i >> 8), byte(i), 0x57}
	}
}

// Local is a LocalVariableTable entry; Signature adds a
// LocalVariableTypeTable entry.
type Local struct {
	Name, Desc, Signature string
}

// Element is one annotation element. Tag is 's' (string), 'c' (class
// descriptor), 'e' (enum: Value is the type descriptor, Const the constant)
// or 'I' (int, Value ignored).
type Element struct {
	Name  string
	Tag   byte
	Value string
	Const string
}

// Annotation is a runtime-visible annotation.
type Annotation struct {
	Desc     string
	Elements []Element
}

// Field describes a field.
type Field struct {
	Name, Desc, Signature string
	Annotations           []Annotation
}

// Method describes a method with an optional body.
type Method struct {
	Name, Desc, Signature string
	Code                  []Insn
	Locals                []Local
	Exceptions            []string
	Annotations           []Annotation
}

// AddField appends a private field.
func (b *ClassBuilder) AddField(f Field) *ClassBuilder {
	var attrs [][]byte
	if f.Signature != "" {
		attrs = append(attrs, b.signatureAttr(f.Signature))
	}
	if len(f.Annotations) > 0 {
		attrs = append(attrs, b.annotationsAttr(f.Annotations))
	}
	b.fields = append(b.fields, b.member(0x0002, f.Name, f.Desc, attrs))
	return b
}

// AddMethod appends a public static method.
func (b *ClassBuilder) AddMethod(m Method) *ClassBuilder {
	var attrs [][]byte
	if m.Code != nil || m.Locals != nil {
		attrs = append(attrs, b.codeAttr(m))
	}
	if len(m.Exceptions) > 0 {
		var body bytes.Buffer
		b.u2(&body, uint16(len(m.Exceptions))) //nolint:gosec // test sized
		for _, e := range m.Exceptions {
			b.u2(&body, b.ClassRef(e))
		}
		attrs = append(attrs, b.attr("Exceptions", body.Bytes()))
	}
	if m.Signature != "" {
		attrs = append(attrs, b.signatureAttr(m.Signature))
	}
	if len(m.Annotations) > 0 {
		attrs = append(attrs, b.annotationsAttr(m.Annotations))
	}
	b.methods = append(b.methods, b.member(0x0009, m.Name, m.Desc, attrs))
	return b
}

// Signature adds a class Signature attribute.
func (b *ClassBuilder) Signature(sig string) *ClassBuilder {
	b.attrs = append(b.attrs, b.signatureAttr(sig))
	return b
}

// SourceFile adds a SourceFile attribute.
func (b *ClassBuilder) SourceFile(name string) *ClassBuilder {
	var body bytes.Buffer
	b.u2(&body, b.Utf8(name))
	b.attrs = append(b.attrs, b.attr("SourceFile", body.Bytes()))
	return b
}

// Annotate adds class-level runtime-visible annotations.
func (b *ClassBuilder) Annotate(anns ...Annotation) *ClassBuilder {
	b.attrs = append(b.attrs, b.annotationsAttr(anns))
	return b
}

// RawAttribute adds a class attribute with an opaque payload.
func (b *ClassBuilder) RawAttribute(name string, payload []byte) *ClassBuilder {
	b.attrs = append(b.attrs, b.attr(name, payload))
	return b
}

// Bytes serializes the class file.
func (b *ClassBuilder) Bytes() []byte {
	var out bytes.Buffer
	b.u4(&out, 0xCAFEBABE)
	b.u2(&out, 0)
	b.u2(&out, b.major)
	b.u2(&out, b.count)
	out.Write(b.pool.Bytes())
	b.u2(&out, 0x0021) // public super
	b.u2(&out, b.thisClass)
	b.u2(&out, b.superClass)
	b.u2(&out, uint16(len(b.interfaces))) //nolint:gosec // test sized
	for _, i := range b.interfaces {
		b.u2(&out, i)
	}
	b.table(&out, b.fields)
	b.table(&out, b.methods)
	b.table(&out, b.attrs)
	return out.Bytes()
}

func (b *ClassBuilder) member(flags uint16, name, desc string, attrs [][]byte) []byte {
	var m bytes.Buffer
	b.u2(&m, flags)
	b.u2(&m, b.Utf8(name))
	b.u2(&m, b.Utf8(desc))
	b.table(&m, attrs)
	return m.Bytes()
}

func (b *ClassBuilder) attr(name string, body []byte) []byte {
	var a bytes.Buffer
	b.u2(&a, b.Utf8(name))
	b.u4(&a, uint32(len(body))) //nolint:gosec // test sized
	a.Write(body)
	return a.Bytes()
}

func (b *ClassBuilder) signatureAttr(sig string) []byte {
	var body bytes.Buffer
	b.u2(&body, b.Utf8(sig))
	return b.attr("Signature", body.Bytes())
}

func (b *ClassBuilder) codeAttr(m Method) []byte {
	var code bytes.Buffer
	for _, insn := range m.Code {
		code.Write(insn(b))
	}
	code.WriteByte(0xb1) // return

	var nested [][]byte
	if len(m.Locals) > 0 {
		var lvt, lvtt bytes.Buffer
		var typed int
		b.u2(&lvt, uint16(len(m.Locals))) //nolint:gosec // test sized
		for i, l := range m.Locals {
			b.u2(&lvt, 0)
			b.u2(&lvt, uint16(code.Len())) //nolint:gosec // test sized
			b.u2(&lvt, b.Utf8(l.Name))
			b.u2(&lvt, b.Utf8(l.Desc))
			b.u2(&lvt, uint16(i)) //nolint:gosec // test sized
			if l.Signature != "" {
				typed++
			}
		}
		nested = append(nested, b.attr("LocalVariableTable", lvt.Bytes()))
		if typed > 0 {
			b.u2(&lvtt, uint16(typed)) //nolint:gosec // test sized
			for i, l := range m.Locals {
				if l.Signature == "" {
					continue
				}
				b.u2(&lvtt, 0)
				b.u2(&lvtt, uint16(code.Len())) //nolint:gosec // test sized
				b.u2(&lvtt, b.Utf8(l.Name))
				b.u2(&lvtt, b.Utf8(l.Signature))
				b.u2(&lvtt, uint16(i)) //nolint:gosec // test sized
			}
			nested = append(nested, b.attr("LocalVariableTypeTable", lvtt.Bytes()))
		}
	}

	var body bytes.Buffer
	b.u2(&body, 4) // max_stack
	b.u2(&body, uint16(max(len(m.Locals), 1))) //nolint:gosec // test sized
	b.u4(&body, uint32(code.Len()))            //nolint:gosec // test sized
	body.Write(code.Bytes())
	b.u2(&body, 0) // exception_table_length
	b.table(&body, nested)
	return b.attr("Code", body.Bytes())
}

func (b *ClassBuilder) annotationsAttr(anns []Annotation) []byte {
	var body bytes.Buffer
	b.u2(&body, uint16(len(anns))) //nolint:gosec // test sized
	for _, a := range anns {
		b.annotation(&body, a)
	}
	return b.attr("RuntimeVisibleAnnotations", body.Bytes())
}

func (b *ClassBuilder) annotation(w *bytes.Buffer, a Annotation) {
	b.u2(w, b.Utf8(a.Desc))
	b.u2(w, uint16(len(a.Elements))) //nolint:gosec // test sized
	for _, e := range a.Elements {
		b.u2(w, b.Utf8(e.Name))
		w.WriteByte(e.Tag)
		switch e.Tag {
		case 's', 'c':
			b.u2(w, b.Utf8(e.Value))
		case 'e':
			b.u2(w, b.Utf8(e.Value))
			b.u2(w, b.Utf8(e.Const))
		default:
			b.u2(w, b.IntegerRef(0))
		}
	}
}

func (b *ClassBuilder) table(w *bytes.Buffer, items [][]byte) {
	b.u2(w, uint16(len(items))) //nolint:gosec // test sized
	for _, it := range items {
		w.Write(it)
	}
}

func (b *ClassBuilder) u2(w *bytes.Buffer, v uint16) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func (b *ClassBuilder) u4(w *bytes.Buffer, v uint32) {
	_ = binary.Write(w, binary.BigEndian, v)
}
