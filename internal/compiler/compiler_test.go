package compiler_test

import (
	"fmt"
	"testing"

	"muf/internal/bytecode"
	"muf/internal/compiler"
	"muf/internal/parser"
	"muf/internal/symtab"
	"muf/internal/vm"
)

// popScalar reads and removes the tagged cell at the VM's stack pointer
// using only the exported Memory API, mirroring cmd/vm's own stack-dumping
// logic. Test-only stand-in for the unexported pop() method package vm
// itself uses, since external print overrides registered here can't reach
// across the package boundary.
func popScalar(v *vm.VM) (string, error) {
	tagByte, err := v.Mem.ReadByte(int(v.SP))
	if err != nil {
		return "", err
	}
	tag := bytecode.Tag(tagByte)
	payload := int(v.SP) + 1

	var rendered string
	var size int
	switch tag {
	case bytecode.TagReal:
		f, err := v.Mem.ReadReal(payload)
		if err != nil {
			return "", err
		}
		rendered = fmt.Sprintf("%g", f)
		size = bytecode.PayloadSize(tag)
	case bytecode.TagInt:
		n, err := v.Mem.ReadInt(payload)
		if err != nil {
			return "", err
		}
		rendered = fmt.Sprintf("%d", n)
		size = bytecode.PayloadSize(tag)
	case bytecode.TagBool:
		b, err := v.Mem.ReadBool(payload)
		if err != nil {
			return "", err
		}
		rendered = fmt.Sprintf("%t", b)
		size = bytecode.PayloadSize(tag)
	case bytecode.TagStr:
		s, err := v.Mem.ReadString(payload)
		if err != nil {
			return "", err
		}
		rendered = s
		n, err := v.Mem.StringSize(payload)
		if err != nil {
			return "", err
		}
		size = n
	case bytecode.TagRealArr:
		a, err := v.Mem.ReadRealArray(payload)
		if err != nil {
			return "", err
		}
		rendered = "[ "
		for i, x := range a {
			if i > 0 {
				rendered += ", "
			}
			rendered += fmt.Sprintf("%g", x)
		}
		rendered += " ]"
		size = 4 + len(a)*8
	default:
		return "", fmt.Errorf("popScalar: unsupported tag %s", tag)
	}
	v.SP += int32(1 + size)
	return rendered, nil
}

// compileAndRun parses src, generates a byte image through the code
// generator under test, then runs it on a real VM with "print" overridden
// to capture output instead of writing to stdout — an end-to-end check
// that Generate's output is not just well-formed but executes correctly.
func compileAndRun(t *testing.T, src string) []string {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parser.Parse: %v", err)
	}

	gen := compiler.New(symtab.New())
	image, err := gen.Generate(prog.Functions, prog.Body)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	machine, err := vm.New(image.Code, 65536)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}

	var out []string
	machine.RegisterExternal("print", func(v *vm.VM) error {
		s, err := popScalar(v)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})

	if err := machine.Run(); err != nil {
		t.Fatalf("Run: %v\noutput so far: %v", err, out)
	}
	return out
}

func TestGenerateArithmeticAndPrint(t *testing.T) {
	out := compileAndRun(t, `program arith
		integer :: x = 2
		integer :: y = 3
		print(x + y)
	end program arith`)

	if len(out) != 1 || out[0] != "5" {
		t.Fatalf("output = %v, want [5]", out)
	}
}

func TestGenerateCountedLoopSum(t *testing.T) {
	out := compileAndRun(t, `program loopsum
		integer :: i
		integer :: s = 0
		do i = 1, 5
			s = s + i
		end do
		print(s)
	end program loopsum`)

	if len(out) != 1 || out[0] != "15" {
		t.Fatalf("output = %v, want [15]", out)
	}
}

func TestGenerateConditionalBranches(t *testing.T) {
	out := compileAndRun(t, `program branch
		integer :: x = 7
		if x > 5 then
			print(1)
		else
			print(0)
		end if
	end program branch`)

	if len(out) != 1 || out[0] != "1" {
		t.Fatalf("output = %v, want [1]", out)
	}
}

func TestGenerateFunctionCallAndReturn(t *testing.T) {
	out := compileAndRun(t, `function double(integer :: n) result(integer)
		return n + n
	end function double

	program withfunc
		integer :: r
		r = double(4)
		print(r)
	end program withfunc`)

	if len(out) != 1 || out[0] != "8" {
		t.Fatalf("output = %v, want [8]", out)
	}
}

func TestGenerateEmitsHaltAfterMainBody(t *testing.T) {
	prog, err := parser.Parse(`program justhalt
		integer :: x = 1
		print(x)
	end program justhalt`)
	if err != nil {
		t.Fatalf("parser.Parse: %v", err)
	}

	gen := compiler.New(symtab.New())
	image, err := gen.Generate(prog.Functions, prog.Body)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(image.Code) == 0 {
		t.Fatal("Generate produced an empty image")
	}

	// The constants pool is appended right after the code, so the last code
	// byte sits just before it.
	haltPos := len(image.Code) - gen.Const.Len() - 1
	if haltPos < 0 {
		t.Fatal("generated image is shorter than its constants pool")
	}
	if op := bytecode.OpCode(image.Code[haltPos]); op != bytecode.HALT {
		t.Errorf("last code byte before the constants pool is %s, want HALT", op.Name())
	}
}

func TestGenerateReportsUndefinedFunctionCall(t *testing.T) {
	prog, err := parser.Parse(`program badcall
		print(nosuchfunction(1))
	end program badcall`)
	if err != nil {
		t.Fatalf("parser.Parse: %v", err)
	}

	gen := compiler.New(symtab.New())
	if _, err := gen.Generate(prog.Functions, prog.Body); err == nil {
		t.Fatal("Generate succeeded on a call to an undefined function, want error")
	}
}
