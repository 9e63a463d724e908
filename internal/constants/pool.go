// Package constants implements the append-only, deduplicating constants
// pool of spec.md §4.2: each literal is emitted once and referenced
// thereafter by the byte offset it was written at.
package constants

import (
	"bytes"
	"encoding/binary"
	"math"

	"muf/internal/bytecode"
)

// Kind tags one constants-pool entry, written as the entry's leading byte.
// It reuses bytecode.Tag directly so a pool offset is RDMEM-readable as-is:
// the code generator pushes an absolute address into the pool and the VM
// reads a normal tagged memory cell, no separate decoding path needed.
type Kind = bytecode.Tag

const (
	KindReal   = bytecode.TagReal
	KindInt    = bytecode.TagInt
	KindString = bytecode.TagStr
)

// entry is the value-equality key used for deduplication.
type entry struct {
	kind Kind
	r    float64
	i    int64
	s    string
	rarr string // joined float64 bits: a real array's elements, or "i:" plus a complex value's imaginary part
}

// Pool is the deduplicating byte-stream builder.
type Pool struct {
	buf     bytes.Buffer
	offsets map[entry]int
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{offsets: make(map[entry]int)}
}

// AddReal returns the offset of v's encoding, writing it the first time it
// is seen and reusing the prior offset on an exact repeat.
func (p *Pool) AddReal(v float64) int {
	return p.add(entry{kind: KindReal, r: v}, func() {
		p.buf.WriteByte(byte(KindReal))
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		p.buf.Write(b[:])
	})
}

// AddInt returns the offset of v's encoding.
func (p *Pool) AddInt(v int64) int {
	return p.add(entry{kind: KindInt, i: v}, func() {
		p.buf.WriteByte(byte(KindInt))
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		p.buf.Write(b[:])
	})
}

// AddString returns the offset of v's encoding: kind byte, 4-byte
// little-endian length, then raw bytes.
func (p *Pool) AddString(v string) int {
	return p.add(entry{kind: KindString, s: v}, func() {
		p.buf.WriteByte(byte(KindString))
		var lenb [4]byte
		binary.LittleEndian.PutUint32(lenb[:], uint32(len(v)))
		p.buf.Write(lenb[:])
		p.buf.WriteString(v)
	})
}

// AddComplex returns the offset of v's encoding: kind byte then two
// little-endian float64s (real, imaginary), matching internal/vm.Memory's
// ReadCplx layout so a pushed address into this pool is RDMEM-readable.
func (p *Pool) AddComplex(v complex128) int {
	return p.add(entry{kind: bytecode.TagCplx, r: real(v), rarr: "i:" + joinFloats([]float64{imag(v)})}, func() {
		p.buf.WriteByte(byte(bytecode.TagCplx))
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(real(v)))
		p.buf.Write(b[:])
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(imag(v)))
		p.buf.Write(b[:])
	})
}

// AddRealArray returns the offset of vals' encoding: kind byte, 4-byte
// element count, then that many little-endian float64s, matching
// internal/vm.Memory's ReadRealArray layout.
func (p *Pool) AddRealArray(vals []float64) int {
	key := entry{kind: bytecode.TagRealArr, rarr: joinFloats(vals)}
	return p.add(key, func() {
		p.buf.WriteByte(byte(bytecode.TagRealArr))
		var lenb [4]byte
		binary.LittleEndian.PutUint32(lenb[:], uint32(len(vals)))
		p.buf.Write(lenb[:])
		var b [8]byte
		for _, v := range vals {
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
			p.buf.Write(b[:])
		}
	})
}

func joinFloats(vals []float64) string {
	var buf bytes.Buffer
	for _, v := range vals {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	}
	return buf.String()
}

func (p *Pool) add(key entry, write func()) int {
	if off, ok := p.offsets[key]; ok {
		return off
	}
	off := p.buf.Len()
	write()
	p.offsets[key] = off
	return off
}

// TakeBytes returns the whole serialized blob.
func (p *Pool) TakeBytes() []byte {
	return p.buf.Bytes()
}

// Len reports the current size of the serialized blob in bytes.
func (p *Pool) Len() int {
	return p.buf.Len()
}

// ReadAt decodes the constant stored at byte offset off within data (the
// bytes previously returned by TakeBytes, or the equivalent slice of a
// loaded image). r, i and s carry a real, integer or string entry's value.
// For a complex entry r and c hold the real and imaginary parts; for a
// real-array entry i holds the element count and the elements themselves
// are not decoded. Results the entry's kind does not use are zero.
func ReadAt(data []byte, off int) (kind Kind, r float64, i int64, s string, c float64) {
	kind = Kind(data[off])
	off++
	switch kind {
	case KindReal:
		r = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
	case KindInt:
		i = int64(binary.LittleEndian.Uint64(data[off : off+8]))
	case KindString:
		n := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		s = string(data[off : off+int(n)])
	case bytecode.TagCplx:
		r = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
		c = math.Float64frombits(binary.LittleEndian.Uint64(data[off+8 : off+16]))
	case bytecode.TagRealArr:
		n := binary.LittleEndian.Uint32(data[off : off+4])
		i = int64(n)
	}
	return
}
