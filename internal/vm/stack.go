package vm

import (
	"github.com/pkg/errors"

	"muf/internal/bytecode"
)

// Tagged stack cells place the one-byte tag at the lowest address of the
// cell, payload immediately above it (spec.md §3). Pushing allocates the
// whole cell in one downward SP move; popping reads tag then payload and
// moves SP back up.

func (v *VM) push(val Value) error {
	switch val.Tag {
	case bytecode.TagReal:
		return v.pushFixed(val.Tag, bytecode.SizeReal, func(addr int) error { return v.Mem.WriteReal(addr, val.Real) })
	case bytecode.TagInt:
		return v.pushFixed(val.Tag, bytecode.SizeInt, func(addr int) error { return v.Mem.WriteInt(addr, val.Int) })
	case bytecode.TagBool:
		return v.pushFixed(val.Tag, bytecode.SizeBool, func(addr int) error { return v.Mem.WriteBool(addr, val.Bool) })
	case bytecode.TagCplx:
		return v.pushFixed(val.Tag, bytecode.SizeCplx, func(addr int) error { return v.Mem.WriteCplx(addr, val.Cplx) })
	case bytecode.TagAddrMem, bytecode.TagAddrIP, bytecode.TagAddrSP, bytecode.TagAddrBP, bytecode.TagAddrGBP:
		return v.pushFixed(val.Tag, bytecode.SizeAddr, func(addr int) error { return v.Mem.WriteI32(addr, val.Addr) })
	case bytecode.TagStr:
		size := 4 + len(val.Str)
		return v.pushVar(val.Tag, size, func(addr int) error { return v.Mem.WriteString(addr, val.Str) })
	case bytecode.TagRealArr:
		size := 4 + len(val.RArr)*8
		return v.pushVar(val.Tag, size, func(addr int) error { return v.Mem.WriteRealArray(addr, val.RArr) })
	case bytecode.TagIntArr:
		size := 4 + len(val.IArr)*8
		return v.pushVar(val.Tag, size, func(addr int) error { return v.Mem.WriteIntArray(addr, val.IArr) })
	case bytecode.TagCplxArr:
		size := 4 + len(val.CArr)*16
		return v.pushVar(val.Tag, size, func(addr int) error {
			if err := v.Mem.WriteI32(addr, int32(len(val.CArr))); err != nil {
				return err
			}
			off := addr + 4
			for _, c := range val.CArr {
				if err := v.Mem.WriteCplx(off, c); err != nil {
					return err
				}
				off += 16
			}
			return nil
		})
	default:
		return errors.Errorf("push: unsupported tag %s", val.Tag)
	}
}

func (v *VM) pushFixed(tag bytecode.Tag, payloadSize int, write func(addr int) error) error {
	total := int32(1 + payloadSize)
	v.SP -= total
	if v.CheckBounds && v.SP < 0 {
		return errors.New("stack overflow")
	}
	if err := v.Mem.WriteByte(int(v.SP), byte(tag)); err != nil {
		return err
	}
	return write(int(v.SP) + 1)
}

func (v *VM) pushVar(tag bytecode.Tag, payloadSize int, write func(addr int) error) error {
	return v.pushFixed(tag, payloadSize, write)
}

// pop reads and removes the cell at SP, returning its decoded Value.
func (v *VM) pop() (Value, error) {
	tagByte, err := v.Mem.ReadByte(int(v.SP))
	if err != nil {
		return Value{}, err
	}
	tag := bytecode.Tag(tagByte)
	base := int(v.SP) + 1

	var val Value
	var total int32

	switch tag {
	case bytecode.TagReal:
		r, err := v.Mem.ReadReal(base)
		if err != nil {
			return Value{}, err
		}
		val = realValue(r)
		total = 1 + bytecode.SizeReal
	case bytecode.TagInt:
		i, err := v.Mem.ReadInt(base)
		if err != nil {
			return Value{}, err
		}
		val = intValue(i)
		total = 1 + bytecode.SizeInt
	case bytecode.TagBool:
		b, err := v.Mem.ReadBool(base)
		if err != nil {
			return Value{}, err
		}
		val = boolValue(b)
		total = 1 + bytecode.SizeBool
	case bytecode.TagCplx:
		c, err := v.Mem.ReadCplx(base)
		if err != nil {
			return Value{}, err
		}
		val = cplxValue(c)
		total = 1 + bytecode.SizeCplx
	case bytecode.TagAddrMem, bytecode.TagAddrIP, bytecode.TagAddrSP, bytecode.TagAddrBP, bytecode.TagAddrGBP:
		a, err := v.Mem.ReadI32(base)
		if err != nil {
			return Value{}, err
		}
		val = Value{Tag: tag, Addr: a}
		total = 1 + bytecode.SizeAddr
	case bytecode.TagStr:
		s, err := v.Mem.ReadString(base)
		if err != nil {
			return Value{}, err
		}
		val = strValue(s)
		total = int32(1 + 4 + len(s))
	case bytecode.TagRealArr:
		a, err := v.Mem.ReadRealArray(base)
		if err != nil {
			return Value{}, err
		}
		val = realArrValue(a)
		total = int32(1 + 4 + len(a)*8)
	case bytecode.TagCplxArr:
		n, err := v.Mem.ReadI32(base)
		if err != nil {
			return Value{}, err
		}
		arr := make([]complex128, n)
		off := base + 4
		for i := range arr {
			c, err := v.Mem.ReadCplx(off)
			if err != nil {
				return Value{}, err
			}
			arr[i] = c
			off += 16
		}
		val = cplxArrValue(arr)
		total = int32(1 + 4 + int(n)*16)
	default:
		return Value{}, errors.Errorf("pop: unknown tag byte %#x at sp=%d", tagByte, v.SP)
	}

	if v.ZeroOnPop {
		for i := v.SP; i < v.SP+total; i++ {
			v.Mem.Bytes[i] = 0
		}
	}
	v.SP += total
	return val, nil
}

func (v *VM) popInt() (int64, error) {
	val, err := v.pop()
	if err != nil {
		return 0, err
	}
	if val.Tag != bytecode.TagInt {
		return 0, errors.Errorf("expected integer on stack, got %s", val.Tag)
	}
	return val.Int, nil
}

func (v *VM) popBool() (bool, error) {
	val, err := v.pop()
	if err != nil {
		return false, err
	}
	if val.Tag != bytecode.TagBool {
		return false, errors.Errorf("expected boolean on stack, got %s", val.Tag)
	}
	return val.Bool, nil
}

func (v *VM) popStr() (string, error) {
	val, err := v.pop()
	if err != nil {
		return "", err
	}
	if val.Tag != bytecode.TagStr {
		return "", errors.Errorf("expected string on stack, got %s", val.Tag)
	}
	return val.Str, nil
}

// popAddr pops an address-tagged value without resolving it.
func (v *VM) popAddr() (Value, error) {
	val, err := v.pop()
	if err != nil {
		return Value{}, err
	}
	if !val.Tag.IsAddr() {
		return Value{}, errors.Errorf("expected address on stack, got %s", val.Tag)
	}
	return val, nil
}

// resolveAddr turns a tagged address payload into an absolute byte offset,
// per spec.md's five address-tag variants.
func (v *VM) resolveAddr(val Value) int32 {
	switch val.Tag {
	case bytecode.TagAddrMem:
		return val.Addr
	case bytecode.TagAddrIP:
		return v.IP + val.Addr
	case bytecode.TagAddrSP:
		return v.SP + val.Addr
	case bytecode.TagAddrBP:
		return v.BP + val.Addr
	case bytecode.TagAddrGBP:
		return v.GBP + val.Addr
	}
	return val.Addr
}

// popAddrResolved pops an address value and resolves it to an absolute
// offset, used by JMP/JMPCND/CALL.
func (v *VM) popAddrResolved() (int32, error) {
	val, err := v.popAddr()
	if err != nil {
		return 0, err
	}
	return v.resolveAddr(val), nil
}
