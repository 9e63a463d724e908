// Package vm implements the muF byte-addressed stack machine of spec.md
// §4.4: flat memory, IP/SP/BP/GBP registers, a tagged-cell stack, 16
// interrupt lines plus a periodic timer, and an external-call table.
package vm

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"muf/internal/bytecode"
	mufErr "muf/internal/errors"
)

// DebugHook is invoked by the fetch loop before every instruction and
// around calls/returns/traps, mirroring the teacher's DebugHook interface
// (generalized from Sentra's tree-walking hook points to this VM's
// byte-addressed fetch/decode/execute cycle). internal/debugger implements
// this to stream a live trace over a websocket.
type DebugHook interface {
	OnInstruction(v *VM, ip int32, op bytecode.OpCode) (cont bool)
	OnCall(v *VM, target int32)
	OnReturn(v *VM, ip int32)
	OnTrap(v *VM, err error)
}

// ExternalFunc is one EXTCALL target: it pops its own arguments off the VM
// stack and pushes its own result(s), per spec.md's EXTCALL description.
type ExternalFunc func(v *VM) error

// VM is the byte-addressed machine. Field names mirror the register set of
// original_source/src/vm/vm.h (m_ip, m_sp, m_bp, m_gbp) rather than the
// teacher's slice-based EnhancedVM, since the teacher's interpreter has no
// flat memory to ground those fields on; the struct shape, fetch loop and
// DebugHook wiring are otherwise the teacher's idiom.
type VM struct {
	Mem *Memory

	IP  int32
	SP  int32
	BP  int32
	GBP int32

	CodeEnd int32 // first byte past the instruction stream (constants table starts here)

	Eps  float64 // equality tolerance for real/complex comparisons
	Prec int     // string-conversion precision

	CheckBounds   bool
	ZeroOnPop     bool
	Debug         bool
	Hook          DebugHook

	externals map[string]ExternalFunc

	irqs      [NumInterrupts]atomic.Bool
	isrs      [NumInterrupts]*int32
	timer     *timerState

	RunID uuid.UUID

	halted bool
}

// New allocates a VM over memsize bytes of address space, loads image at
// address 0, and sets GBP/BP/SP to the top of memory (the stack starts
// empty, growing downward from the end of RAM, per spec.md §4.4).
func New(image []byte, memsize int32) (*VM, error) {
	if int(memsize) < len(image) {
		return nil, errors.Errorf("memory size %d too small for image of %d bytes", memsize, len(image))
	}
	v := &VM{
		Mem:         NewMemory(int(memsize)),
		Eps:         math.Nextafter(1, 2) - 1, // machine epsilon, matches original_source's numeric_limits<t_real>::epsilon()
		Prec:        6,
		CheckBounds: true,
		CodeEnd:     int32(len(image)),
		RunID:       uuid.New(),
	}
	copy(v.Mem.Bytes, image)
	v.SP = memsize
	v.BP = memsize
	v.GBP = memsize
	v.registerExternals()
	return v, nil
}

// Reset rewinds registers without reloading the image, used between
// debugger single-step sessions.
func (v *VM) Reset() {
	v.SP = int32(len(v.Mem.Bytes))
	v.BP = v.SP
	v.GBP = v.SP
	v.IP = 0
	v.halted = false
}

// Run executes from the current IP until HALT, an unhandled trap, or the
// program counter runs off the end of the loaded image.
func (v *VM) Run() error {
	for !v.halted {
		if v.timer != nil {
			v.serviceInterrupts()
		}
		if v.IP < 0 || v.IP >= v.CodeEnd {
			return errors.WithStack(mufErr.Newf(mufErr.RuntimeError, "", 0, 0,
				"instruction pointer %d ran past the end of code (%d)", v.IP, v.CodeEnd))
		}
		opByte, err := v.Mem.ReadByte(int(v.IP))
		if err != nil {
			return v.trap(err)
		}
		op := bytecode.OpCode(opByte)

		if v.Hook != nil {
			if cont := v.Hook.OnInstruction(v, v.IP, op); !cont {
				return nil
			}
		}

		v.IP++
		if err := v.exec(op); err != nil {
			return v.trap(err)
		}
	}
	return nil
}

func (v *VM) trap(err error) error {
	wrapped := errors.WithStack(err)
	if v.Hook != nil {
		v.Hook.OnTrap(v, wrapped)
	}
	return wrapped
}

// exec dispatches a single decoded opcode. Operand bytes (typed immediates,
// address slots) are consumed directly from the code stream at v.IP, which
// is advanced past them before returning.
func (v *VM) exec(op bytecode.OpCode) error {
	switch op {
	case bytecode.HALT:
		v.halted = true
		return nil

	case bytecode.NOP:
		return nil

	case bytecode.PUSH:
		return v.execPush()

	case bytecode.WRMEM:
		return v.execWrMem()
	case bytecode.RDMEM:
		return v.execRdMem()

	case bytecode.USUB:
		return v.execUnaryMinus()
	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.MOD, bytecode.POW:
		return v.execArith(op)

	case bytecode.TOI, bytecode.TOR, bytecode.TOC, bytecode.TOS, bytecode.TOB:
		return v.execCast(op)
	case bytecode.TOREALARR, bytecode.TOINTARR, bytecode.TOCPLXARR:
		return v.execArrayCast(op)

	case bytecode.JMP:
		target, err := v.popAddrResolved()
		if err != nil {
			return err
		}
		v.IP = target
		return nil

	case bytecode.JMPCND:
		target, err := v.popAddrResolved()
		if err != nil {
			return err
		}
		cond, err := v.popBool()
		if err != nil {
			return err
		}
		if cond {
			v.IP = target
		}
		return nil

	case bytecode.AND, bytecode.OR, bytecode.XOR:
		return v.execBoolBinary(op)
	case bytecode.NOT:
		return v.execNot()

	case bytecode.GT, bytecode.LT, bytecode.GEQU, bytecode.LEQU, bytecode.EQU, bytecode.NEQU:
		return v.execCompare(op)

	case bytecode.CALL:
		return v.execCall()
	case bytecode.RET:
		return v.execRet()
	case bytecode.EXTCALL:
		return v.execExtCall()

	case bytecode.BINAND, bytecode.BINOR, bytecode.BINXOR, bytecode.SHL, bytecode.SHR, bytecode.ROTL, bytecode.ROTR:
		return v.execBinOp(op)
	case bytecode.BINNOT:
		return v.execBinNot()

	case bytecode.MAKEREALARR, bytecode.MAKEINTARR, bytecode.MAKECPLXARR:
		return v.execMakeArray(op)
	case bytecode.MATMUL:
		return v.execMatMul()

	case bytecode.RDARR:
		return v.execRdArr(false)
	case bytecode.RDARRR:
		return v.execRdArr(true)
	case bytecode.WRARR:
		return v.execWrArr(false)
	case bytecode.WRARRR:
		return v.execWrArr(true)

	case bytecode.ADDFRAME:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		v.SP -= int32(n)
		return nil
	case bytecode.REMFRAME:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		v.SP += int32(n)
		return nil

	default:
		return errors.Errorf("unimplemented opcode %#x (%s)", byte(op), op.Name())
	}
}

// readOperandByte/readOperandI32 consume one immediate from the code stream
// at the current IP, advancing it past the operand.
func (v *VM) readOperandByte() (byte, error) {
	b, err := v.Mem.ReadByte(int(v.IP))
	if err != nil {
		return 0, err
	}
	v.IP++
	return b, nil
}

func (v *VM) readOperandI32() (int32, error) {
	n, err := v.Mem.ReadI32(int(v.IP))
	if err != nil {
		return 0, err
	}
	v.IP += 4
	return n, nil
}

// String renders a one-line register snapshot for debug traces.
func (v *VM) String() string {
	return fmt.Sprintf("ip=%d sp=%d bp=%d gbp=%d", v.IP, v.SP, v.BP, v.GBP)
}
