package vm

import "muf/internal/bytecode"

// Value is one decoded stack/memory cell: a type tag plus the payload for
// that tag, per spec.md §3 ("VM stack values"). Only the field matching Tag
// is meaningful; the others are left zero.
type Value struct {
	Tag  bytecode.Tag
	Real float64
	Int  int64
	Bool bool
	Cplx complex128
	Str  string
	RArr []float64
	IArr []int64
	CArr []complex128
	Addr int32 // payload of an address-tagged value, interpreted per Tag
}

// IsNumeric reports whether v holds one of the three scalar number kinds.
func (v Value) IsNumeric() bool {
	switch v.Tag {
	case bytecode.TagReal, bytecode.TagInt, bytecode.TagCplx:
		return true
	}
	return false
}

// AsComplex widens any scalar numeric value to complex128, the top of the
// promotion lattice for mixed real/int/complex arithmetic (spec.md §4.3).
func (v Value) AsComplex() complex128 {
	switch v.Tag {
	case bytecode.TagCplx:
		return v.Cplx
	case bytecode.TagReal:
		return complex(v.Real, 0)
	case bytecode.TagInt:
		return complex(float64(v.Int), 0)
	}
	return 0
}

// AsReal widens int/real to float64; complex is truncated to its real part.
func (v Value) AsReal() float64 {
	switch v.Tag {
	case bytecode.TagReal:
		return v.Real
	case bytecode.TagInt:
		return float64(v.Int)
	case bytecode.TagCplx:
		return real(v.Cplx)
	}
	return 0
}

// AsInt truncates a real/int value to int64.
func (v Value) AsInt() int64 {
	switch v.Tag {
	case bytecode.TagInt:
		return v.Int
	case bytecode.TagReal:
		return int64(v.Real)
	case bytecode.TagCplx:
		return int64(real(v.Cplx))
	}
	return 0
}

func realValue(r float64) Value     { return Value{Tag: bytecode.TagReal, Real: r} }
func intValue(i int64) Value        { return Value{Tag: bytecode.TagInt, Int: i} }
func boolValue(b bool) Value        { return Value{Tag: bytecode.TagBool, Bool: b} }
func cplxValue(c complex128) Value  { return Value{Tag: bytecode.TagCplx, Cplx: c} }
func strValue(s string) Value       { return Value{Tag: bytecode.TagStr, Str: s} }
func realArrValue(a []float64) Value    { return Value{Tag: bytecode.TagRealArr, RArr: a} }
func intArrValue(a []int64) Value       { return Value{Tag: bytecode.TagIntArr, IArr: a} }
func cplxArrValue(a []complex128) Value { return Value{Tag: bytecode.TagCplxArr, CArr: a} }
