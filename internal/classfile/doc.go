// Package classfile decodes and re-encodes JVM class files with just enough
// structure to find every place a type name, descriptor, signature or string
// literal is stored.
//
// The model keeps attribute payloads as raw bytes. Sites inside attributes
// are located by walking the payload and are patched in place; since every
// site is a fixed-width constant pool index, attribute lengths never change.
// All variable-length data lives in the constant pool, which is rebuilt on
// [ClassFile.Encode].
package classfile
