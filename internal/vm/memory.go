package vm

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"muf/internal/bytecode"
	mufErr "muf/internal/errors"
)

// Memory is the VM's flat, byte-addressed address space: code, constants
// table and a downward-growing stack all share one buffer, per spec.md §3
// ("byte-addressed memory ... the stack grows downward").
type Memory struct {
	Bytes []byte
}

// NewMemory allocates a zeroed address space of the given size.
func NewMemory(size int) *Memory {
	return &Memory{Bytes: make([]byte, size)}
}

func (m *Memory) checkBounds(addr, size int) error {
	if addr < 0 || size < 0 || addr+size > len(m.Bytes) {
		return errors.WithStack(mufErr.Newf(mufErr.RuntimeError, "", 0, 0,
			"memory access out of bounds: addr=%d size=%d memsize=%d", addr, size, len(m.Bytes)))
	}
	return nil
}

// ReadByte reads one raw byte (used for tag bytes).
func (m *Memory) ReadByte(addr int) (byte, error) {
	if err := m.checkBounds(addr, 1); err != nil {
		return 0, err
	}
	return m.Bytes[addr], nil
}

// WriteByte writes one raw byte.
func (m *Memory) WriteByte(addr int, b byte) error {
	if err := m.checkBounds(addr, 1); err != nil {
		return err
	}
	m.Bytes[addr] = b
	return nil
}

// ReadI32 decodes a little-endian 4-byte signed integer, used for address
// payloads and array/string length prefixes.
func (m *Memory) ReadI32(addr int) (int32, error) {
	if err := m.checkBounds(addr, 4); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(m.Bytes[addr : addr+4])), nil
}

// WriteI32 encodes v little-endian at addr.
func (m *Memory) WriteI32(addr int, v int32) error {
	if err := m.checkBounds(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.Bytes[addr:addr+4], uint32(v))
	return nil
}

// ReadReal/WriteReal handle the 8-byte float64 payload (bytecode.SizeReal).
func (m *Memory) ReadReal(addr int) (float64, error) {
	if err := m.checkBounds(addr, bytecode.SizeReal); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(m.Bytes[addr : addr+8])), nil
}

func (m *Memory) WriteReal(addr int, v float64) error {
	if err := m.checkBounds(addr, bytecode.SizeReal); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.Bytes[addr:addr+8], math.Float64bits(v))
	return nil
}

// ReadInt/WriteInt handle the 8-byte int64 payload (bytecode.SizeInt).
func (m *Memory) ReadInt(addr int) (int64, error) {
	if err := m.checkBounds(addr, bytecode.SizeInt); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(m.Bytes[addr : addr+8])), nil
}

func (m *Memory) WriteInt(addr int, v int64) error {
	if err := m.checkBounds(addr, bytecode.SizeInt); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.Bytes[addr:addr+8], uint64(v))
	return nil
}

// ReadBool/WriteBool handle the 1-byte bool payload.
func (m *Memory) ReadBool(addr int) (bool, error) {
	b, err := m.ReadByte(addr)
	return b != 0, err
}

func (m *Memory) WriteBool(addr int, v bool) error {
	var b byte
	if v {
		b = 1
	}
	return m.WriteByte(addr, b)
}

// ReadCplx/WriteCplx handle the 16-byte complex128 payload (two float64s).
func (m *Memory) ReadCplx(addr int) (complex128, error) {
	re, err := m.ReadReal(addr)
	if err != nil {
		return 0, err
	}
	im, err := m.ReadReal(addr + 8)
	if err != nil {
		return 0, err
	}
	return complex(re, im), nil
}

func (m *Memory) WriteCplx(addr int, v complex128) error {
	if err := m.WriteReal(addr, real(v)); err != nil {
		return err
	}
	return m.WriteReal(addr+8, imag(v))
}

// ReadRealArray/WriteRealArray handle a length-prefixed flat real array, the
// raw layout original_source/src/vm/mem.h calls "vector": a 4-byte element
// count followed by that many 8-byte reals.
func (m *Memory) ReadRealArray(addr int) ([]float64, error) {
	n, err := m.ReadI32(addr)
	if err != nil {
		return nil, err
	}
	addr += 4
	out := make([]float64, n)
	for i := range out {
		v, err := m.ReadReal(addr)
		if err != nil {
			return nil, err
		}
		out[i] = v
		addr += 8
	}
	return out, nil
}

func (m *Memory) WriteRealArray(addr int, vals []float64) error {
	if err := m.WriteI32(addr, int32(len(vals))); err != nil {
		return err
	}
	addr += 4
	for _, v := range vals {
		if err := m.WriteReal(addr, v); err != nil {
			return err
		}
		addr += 8
	}
	return nil
}

// ReadIntArray/WriteIntArray mirror ReadRealArray/WriteRealArray for
// integer-element arrays (each element stored as an 8-byte int64).
func (m *Memory) ReadIntArray(addr int) ([]int64, error) {
	n, err := m.ReadI32(addr)
	if err != nil {
		return nil, err
	}
	addr += 4
	out := make([]int64, n)
	for i := range out {
		v, err := m.ReadInt(addr)
		if err != nil {
			return nil, err
		}
		out[i] = v
		addr += 8
	}
	return out, nil
}

func (m *Memory) WriteIntArray(addr int, vals []int64) error {
	if err := m.WriteI32(addr, int32(len(vals))); err != nil {
		return err
	}
	addr += 4
	for _, v := range vals {
		if err := m.WriteInt(addr, v); err != nil {
			return err
		}
		addr += 8
	}
	return nil
}

// ReadComplexArray/WriteComplexArray mirror ReadRealArray/WriteRealArray
// for complex-element arrays (each element stored as two 8-byte reals).
func (m *Memory) ReadComplexArray(addr int) ([]complex128, error) {
	n, err := m.ReadI32(addr)
	if err != nil {
		return nil, err
	}
	addr += 4
	out := make([]complex128, n)
	for i := range out {
		v, err := m.ReadCplx(addr)
		if err != nil {
			return nil, err
		}
		out[i] = v
		addr += 16
	}
	return out, nil
}

func (m *Memory) WriteComplexArray(addr int, vals []complex128) error {
	if err := m.WriteI32(addr, int32(len(vals))); err != nil {
		return err
	}
	addr += 4
	for _, v := range vals {
		if err := m.WriteCplx(addr, v); err != nil {
			return err
		}
		addr += 16
	}
	return nil
}

// ReadString/WriteString handle a length-prefixed byte string.
func (m *Memory) ReadString(addr int) (string, error) {
	n, err := m.ReadI32(addr)
	if err != nil {
		return "", err
	}
	addr += 4
	if err := m.checkBounds(addr, int(n)); err != nil {
		return "", err
	}
	return string(m.Bytes[addr : addr+int(n)]), nil
}

func (m *Memory) WriteString(addr int, s string) error {
	if err := m.WriteI32(addr, int32(len(s))); err != nil {
		return err
	}
	addr += 4
	if err := m.checkBounds(addr, len(s)); err != nil {
		return err
	}
	copy(m.Bytes[addr:addr+len(s)], s)
	return nil
}

// RealArraySize and StringSize return the total on-wire byte size of an
// already-encoded array/string at addr, used to size WRARRR-style range
// copies and memory dumps.
func (m *Memory) RealArraySize(addr int) (int, error) {
	n, err := m.ReadI32(addr)
	if err != nil {
		return 0, err
	}
	return 4 + int(n)*8, nil
}

func (m *Memory) StringSize(addr int) (int, error) {
	n, err := m.ReadI32(addr)
	if err != nil {
		return 0, err
	}
	return 4 + int(n), nil
}
