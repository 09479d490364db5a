package classfile

import (
	"errors"
	"fmt"
	"strings"
)

var errSyntax = errors.New("syntax error")

// MapSignature rewrites every class name in a descriptor or generic
// signature through mapType. It accepts field and method descriptors,
// return descriptors ("V"), and class, method and field signatures; all of
// them are sentences of the signature grammar.
//
// Only the outermost name of a class type is mapped. Inner class suffixes
// after '.' are simple names and are kept as written.
func MapSignature(sig string, mapType func(string) string) (string, error) {
	p := &sigParser{s: sig, mapType: mapType}
	p.out.Grow(len(sig))
	if err := p.signature(); err != nil {
		return "", fmt.Errorf("%w: %q at offset %d: %v", ErrMalformed, sig, p.pos, err)
	}
	return p.out.String(), nil
}

// MapClassName rewrites the name stored in a Class constant, which is an
// internal name or, for array classes, an array descriptor.
func MapClassName(name string, mapType func(string) string) (string, error) {
	if strings.HasPrefix(name, "[") {
		return MapSignature(name, mapType)
	}
	return mapType(name), nil
}

type sigParser struct {
	s       string
	pos     int
	out     strings.Builder
	mapType func(string) string
}

func (p *sigParser) eof() bool {
	return p.pos >= len(p.s)
}

func (p *sigParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

// copyByte emits the current byte and advances.
func (p *sigParser) copyByte() {
	p.out.WriteByte(p.s[p.pos])
	p.pos++
}

func (p *sigParser) expect(c byte) error {
	if p.peek() != c {
		return errSyntax
	}
	p.copyByte()
	return nil
}

// ident reads up to (not including) the first byte in stop.
func (p *sigParser) ident(stop string) (string, error) {
	start := p.pos
	for !p.eof() && strings.IndexByte(stop, p.s[p.pos]) < 0 {
		p.pos++
	}
	if p.eof() || p.pos == start {
		return "", errSyntax
	}
	return p.s[start:p.pos], nil
}

func (p *sigParser) signature() error {
	if p.eof() {
		return errSyntax
	}
	if p.peek() == '<' {
		if err := p.typeParameters(); err != nil {
			return err
		}
	}
	if p.peek() != '(' {
		// Field descriptor/signature or class signature: one or more types.
		for !p.eof() {
			if err := p.typeSig(); err != nil {
				return err
			}
		}
		return nil
	}

	p.copyByte()
	for p.peek() != ')' {
		if p.eof() {
			return errSyntax
		}
		if err := p.typeSig(); err != nil {
			return err
		}
	}
	p.copyByte()
	if err := p.typeSig(); err != nil {
		return err
	}
	for p.peek() == '^' {
		p.copyByte()
		if err := p.referenceTypeSig(); err != nil {
			return err
		}
	}
	if !p.eof() {
		return errSyntax
	}
	return nil
}

func (p *sigParser) typeParameters() error {
	p.copyByte() // '<'
	for p.peek() != '>' {
		name, err := p.ident(":>;")
		if err != nil {
			return err
		}
		p.out.WriteString(name)
		if p.peek() != ':' {
			return errSyntax
		}
		for p.peek() == ':' {
			p.copyByte()
			switch p.peek() {
			case 'L', 'T', '[':
				if err := p.referenceTypeSig(); err != nil {
					return err
				}
			}
		}
	}
	p.copyByte() // '>'
	return nil
}

func (p *sigParser) typeSig() error {
	switch p.peek() {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
		p.copyByte()
		return nil
	default:
		return p.referenceTypeSig()
	}
}

func (p *sigParser) referenceTypeSig() error {
	switch p.peek() {
	case 'L':
		return p.classTypeSig()
	case 'T':
		p.copyByte()
		name, err := p.ident(";")
		if err != nil {
			return err
		}
		p.out.WriteString(name)
		return p.expect(';')
	case '[':
		p.copyByte()
		return p.typeSig()
	default:
		return errSyntax
	}
}

func (p *sigParser) classTypeSig() error {
	p.copyByte() // 'L'
	name, err := p.ident("<.;")
	if err != nil {
		return err
	}
	p.out.WriteString(p.mapType(name))
	for {
		switch p.peek() {
		case '<':
			if err := p.typeArguments(); err != nil {
				return err
			}
		case '.':
			p.copyByte()
			inner, err := p.ident("<.;")
			if err != nil {
				return err
			}
			p.out.WriteString(inner)
		case ';':
			p.copyByte()
			return nil
		default:
			return errSyntax
		}
	}
}

func (p *sigParser) typeArguments() error {
	p.copyByte() // '<'
	if p.peek() == '>' {
		return errSyntax
	}
	for p.peek() != '>' {
		switch p.peek() {
		case '*':
			p.copyByte()
			continue
		case '+', '-':
			p.copyByte()
		}
		if err := p.referenceTypeSig(); err != nil {
			return err
		}
	}
	p.copyByte() // '>'
	return nil
}
