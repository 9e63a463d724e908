package vm

import (
	"math"
	"testing"

	"muf/internal/bytecode"
)

// asm is a minimal test-only assembler: it appends opcodes/immediates
// directly to an Image so arithmetic/control-flow tests can build small
// programs without going through internal/compiler.
type asm struct {
	im *bytecode.Image
}

func newAsm() *asm { return &asm{im: bytecode.NewImage()} }

func (a *asm) op(op bytecode.OpCode) *asm { a.im.WriteOp(op); return a }

func (a *asm) pushReal(v float64) *asm {
	a.im.WriteOp(bytecode.PUSH)
	a.im.WriteByte(byte(bytecode.TagReal))
	a.im.WriteI64(int64(math.Float64bits(v)))
	return a
}

func (a *asm) pushInt(v int64) *asm {
	a.im.WriteOp(bytecode.PUSH)
	a.im.WriteByte(byte(bytecode.TagInt))
	a.im.WriteI64(v)
	return a
}

func (a *asm) halt() *asm { a.im.WriteOp(bytecode.HALT); return a }

func (a *asm) run(t *testing.T) *VM {
	t.Helper()
	v, err := New(a.im.Code, 4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return v
}

func TestArithmeticReal(t *testing.T) {
	tests := []struct {
		name     string
		op       bytecode.OpCode
		a, b     float64
		expected float64
	}{
		{"addition", bytecode.ADD, 10, 20, 30},
		{"subtraction", bytecode.SUB, 50, 20, 30},
		{"multiplication", bytecode.MUL, 5, 6, 30},
		{"division", bytecode.DIV, 60, 2, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAsm().pushReal(tt.a).pushReal(tt.b).op(tt.op).halt()
			v := a.run(t)
			got, err := v.pop()
			if err != nil {
				t.Fatalf("pop: %v", err)
			}
			if got.Tag != bytecode.TagReal || got.Real != tt.expected {
				t.Errorf("got %+v, want real %v", got, tt.expected)
			}
		})
	}
}

func TestArithmeticIntDivMod(t *testing.T) {
	a := newAsm().pushInt(17).pushInt(5).op(bytecode.MOD).halt()
	v := a.run(t)
	got, err := v.pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got.Tag != bytecode.TagInt || got.Int != 2 {
		t.Errorf("17 mod 5 = %+v, want 2", got)
	}
}

func TestCallReturn(t *testing.T) {
	// A tiny add(a, b) function at a fixed address, invoked from the
	// caller: push args (reverse), push target, push frame size, CALL.
	im := bytecode.NewImage()

	// main: push 6, push 4, push target(func), push frameSize=0, CALL,
	// then RET with argBytes cleanup handled by the callee.
	im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagInt))
	im.WriteI64(6) // second arg pushed first (reverse order)
	im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagInt))
	im.WriteI64(4) // first arg

	// CALL pops frame size first, then target address, so the target must
	// be pushed before the frame size.
	funcAddrSlotBase := im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagAddrMem))
	targetSlot := im.WriteI32(0) // patched below
	_ = funcAddrSlotBase

	im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagInt))
	im.WriteI64(0) // frame size (no locals)

	im.WriteOp(bytecode.CALL)
	im.WriteOp(bytecode.HALT)

	funcAddr := int32(im.Pos())
	im.PatchI32(targetSlot, funcAddr)

	// func body: CALL leaves [savedBP][savedIP] immediately below BP (9
	// bytes each), then the caller's arguments above that: first arg "4"
	// at BP+18, second arg "6" at BP+27.
	im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagAddrBP))
	im.WriteI32(18)
	im.WriteOp(bytecode.RDMEM)

	im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagAddrBP))
	im.WriteI32(27)
	im.WriteOp(bytecode.RDMEM)

	im.WriteOp(bytecode.ADD)

	// RET resets SP to BP before unwinding, so a scalar result can't ride
	// the stack across it; stash it in global memory instead.
	im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagAddrGBP))
	im.WriteI32(-16)
	im.WriteOp(bytecode.WRMEM)

	im.WriteOp(bytecode.PUSH)
	im.WriteByte(byte(bytecode.TagInt))
	im.WriteI64(18) // pop both args (2*9 bytes) on return
	im.WriteOp(bytecode.RET)

	v, err := New(im.Code, 4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	result, err := v.Mem.ReadInt(int(v.GBP) - 15)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if result != 10 {
		t.Errorf("add(4,6) = %d, want 10", result)
	}
}

func TestMatMul(t *testing.T) {
	im := bytecode.NewImage()
	lhs := []float64{1, 2, 3, 4}
	rhs := []float64{5, 6, 7, 8}

	pushMat := func(m []float64) {
		for _, x := range m {
			im.WriteOp(bytecode.PUSH)
			im.WriteByte(byte(bytecode.TagReal))
			im.WriteI64(int64(math.Float64bits(x)))
		}
		im.WriteOp(bytecode.PUSH)
		im.WriteByte(byte(bytecode.TagInt))
		im.WriteI64(int64(len(m)))
		im.WriteOp(bytecode.MAKEREALARR)
	}
	pushMat(lhs)
	pushMat(rhs)

	pushDim := func(n int64) {
		im.WriteOp(bytecode.PUSH)
		im.WriteByte(byte(bytecode.TagInt))
		im.WriteI64(n)
	}
	pushDim(2) // r1
	pushDim(2) // c1
	pushDim(2) // r2
	pushDim(2) // c2
	im.WriteOp(bytecode.MATMUL)
	im.WriteOp(bytecode.HALT)

	v, err := New(im.Code, 4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := v.pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	want := []float64{19, 22, 43, 50}
	if got.Tag != bytecode.TagRealArr || len(got.RArr) != len(want) {
		t.Fatalf("got %+v, want real array of len %d", got, len(want))
	}
	for i := range want {
		if got.RArr[i] != want[i] {
			t.Errorf("element %d = %v, want %v", i, got.RArr[i], want[i])
		}
	}
}
