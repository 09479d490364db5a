package classfile

import "fmt"

// Tag identifies a constant pool entry kind.
type Tag uint8

// Constant pool tags.
const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// Constant is implemented by all constant pool entry types.
type Constant interface {
	Tag() Tag
}

// ConstantUtf8 holds a modified UTF-8 string. Value keeps the raw bytes so
// that unchanged entries re-encode identically.
type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() Tag { return TagUtf8 }

// ConstantInteger, ConstantFloat, ConstantLong and ConstantDouble keep their
// raw big-endian bits.
type ConstantInteger struct {
	Bits uint32
}

func (c *ConstantInteger) Tag() Tag { return TagInteger }

type ConstantFloat struct {
	Bits uint32
}

func (c *ConstantFloat) Tag() Tag { return TagFloat }

type ConstantLong struct {
	Bits uint64
}

func (c *ConstantLong) Tag() Tag { return TagLong }

type ConstantDouble struct {
	Bits uint64
}

func (c *ConstantDouble) Tag() Tag { return TagDouble }

type ConstantClass struct {
	NameIndex uint16
}

func (c *ConstantClass) Tag() Tag { return TagClass }

type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() Tag { return TagString }

// ConstantMemberref covers Fieldref, Methodref and InterfaceMethodref.
type ConstantMemberref struct {
	Kind             Tag
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMemberref) Tag() Tag { return c.Kind }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() Tag { return TagNameAndType }

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() Tag { return TagMethodHandle }

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() Tag { return TagMethodType }

// ConstantDynamic covers Dynamic and InvokeDynamic.
type ConstantDynamic struct {
	Kind                     Tag
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() Tag { return c.Kind }

// ConstantNamed covers Module and Package, which only carry a name.
type ConstantNamed struct {
	Kind      Tag
	NameIndex uint16
}

func (c *ConstantNamed) Tag() Tag { return c.Kind }

// Pool is a constant pool indexed the way the class file indexes it: slot 0
// is unused and the slot after a Long or Double is nil.
type Pool []Constant

// Count returns the constant_pool_count value for the pool.
func (p Pool) Count() int {
	return len(p)
}

// Get returns the constant at index i.
func (p Pool) Get(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p) || p[i] == nil {
		return nil, fmt.Errorf("%w: constant index %d out of range", ErrMalformed, i)
	}
	return p[i], nil
}

// Utf8 returns the string value of the Utf8 constant at index i.
func (p Pool) Utf8(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	u, ok := c.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("%w: constant %d is tag %d, want Utf8", ErrMalformed, i, c.Tag())
	}
	return u.Value, nil
}

// ClassName returns the name referenced by the Class constant at index i.
func (p Pool) ClassName(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	cls, ok := c.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("%w: constant %d is tag %d, want Class", ErrMalformed, i, c.Tag())
	}
	return p.Utf8(cls.NameIndex)
}
