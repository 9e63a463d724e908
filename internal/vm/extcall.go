package vm

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"muf/internal/bytecode"
)

var stdinReader = bufio.NewReader(os.Stdin)

// registerExternals builds the EXTCALL dispatch table, grounded on
// original_source/src/vm/extfuncs.cpp's CallExternal: each entry pops its
// own arguments and pushes its own result, matching that function's
// per-name argument/return shape one for one.
func (v *VM) registerExternals() {
	v.externals = map[string]ExternalFunc{
		"abs":  extAbsNorm,
		"fabs": extAbsNorm,
		"norm": extAbsNorm,

		"sqrt": extUnaryMath(math.Sqrt),
		"sin":  extUnaryMath(math.Sin),
		"cos":  extUnaryMath(math.Cos),
		"tan":  extUnaryMath(math.Tan),
		"exp":  extUnaryMath(math.Exp),

		"pow": extPow,

		"set_eps": extSetEps,
		"get_eps": extGetEps,
		"set_prec": extSetPrec,

		"to_str":     extToStr,
		"flt_to_str": extToStr,
		"int_to_str": extToStr,
		"strlen":     extStrlen,

		"print": extPrint,

		"getflt": extGetFlt,
		"getint": extGetInt,

		"set_isr":   extSetISR,
		"sleep":     extSleep,
		"set_timer": extSetTimer,
		"set_debug": extSetDebug,
	}
}

// RegisterExternal installs or overrides an EXTCALL entry, letting code
// outside this package (such as the compiler tests' print capture) add or
// replace builtins without modifying this package.
func (v *VM) RegisterExternal(name string, fn ExternalFunc) {
	if v.externals == nil {
		v.externals = make(map[string]ExternalFunc)
	}
	v.externals[name] = fn
}

func (v *VM) execExtCall() error {
	name, err := v.popStr()
	if err != nil {
		return err
	}
	fn, ok := v.externals[name]
	if !ok {
		return errors.Errorf("unknown external function %q", name)
	}
	if v.Debug {
		fmt.Fprintf(os.Stderr, "calling external function %q.\n", name)
	}
	return fn(v)
}

func extAbsNorm(v *VM) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	switch val.Tag {
	case bytecode.TagReal:
		return v.push(realValue(math.Abs(val.Real)))
	case bytecode.TagInt:
		n := val.Int
		if n < 0 {
			n = -n
		}
		return v.push(intValue(n))
	case bytecode.TagRealArr:
		var sumSq float64
		for _, x := range val.RArr {
			sumSq += x * x
		}
		return v.push(realValue(math.Sqrt(sumSq)))
	default:
		return v.push(val)
	}
}

func extUnaryMath(f func(float64) float64) ExternalFunc {
	return func(v *VM) error {
		val, err := v.pop()
		if err != nil {
			return err
		}
		return v.push(realValue(f(val.AsReal())))
	}
}

func extPow(v *VM) error {
	arg2, err := v.pop()
	if err != nil {
		return err
	}
	arg1, err := v.pop()
	if err != nil {
		return err
	}
	return v.push(realValue(math.Pow(arg1.AsReal(), arg2.AsReal())))
}

func extSetEps(v *VM) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	v.Eps = val.AsReal()
	return nil
}

func extGetEps(v *VM) error {
	return v.push(realValue(v.Eps))
}

func extSetPrec(v *VM) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	v.Prec = int(val.AsInt())
	return nil
}

func extToStr(v *VM) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	return v.push(strValue(v.formatScalar(val)))
}

func extStrlen(v *VM) error {
	s, err := v.popStr()
	if err != nil {
		return err
	}
	return v.push(intValue(int64(len(s))))
}

func extPrint(v *VM) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	fmt.Println(v.formatScalar(val))
	return nil
}

func extGetFlt(v *VM) error {
	prompt, err := v.popStr()
	if err != nil {
		return err
	}
	fmt.Print(prompt)
	var val float64
	if _, err := fmt.Fscan(stdinReader, &val); err != nil {
		return errors.Wrap(err, "getflt: failed to read a real value")
	}
	return v.push(realValue(val))
}

func extGetInt(v *VM) error {
	prompt, err := v.popStr()
	if err != nil {
		return err
	}
	fmt.Print(prompt)
	var val int64
	if _, err := fmt.Fscan(stdinReader, &val); err != nil {
		return errors.Wrap(err, "getint: failed to read an integer value")
	}
	return v.push(intValue(val))
}

func extSetISR(v *VM) error {
	addrVal, err := v.popAddr()
	if err != nil {
		return err
	}
	num, err := v.popInt()
	if err != nil {
		return err
	}
	return v.SetISR(int(num), v.resolveAddr(addrVal))
}

func extSleep(v *VM) error {
	ms, err := v.popInt()
	if err != nil {
		return err
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return nil
}

func extSetTimer(v *VM) error {
	delay, err := v.popInt()
	if err != nil {
		return err
	}
	if delay < 0 {
		return v.StopTimer()
	}
	v.StartTimer(time.Duration(delay) * time.Millisecond)
	return nil
}

func extSetDebug(v *VM) error {
	val, err := v.popInt()
	if err != nil {
		return err
	}
	v.Debug = val != 0
	return nil
}

// IsInteractiveStdin reports whether stdin is a terminal, used by cmd/vm to
// decide whether getflt/getint prompts should be echoed interactively.
func IsInteractiveStdin() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}
