// cmd/vm is the muF virtual machine front end: loads a compiled byte
// image and runs it to completion, per spec.md §6.
//
// Usage: vm [-d] [-t] [-z] [-c BOOL] [-m SIZE] PROGRAM.bin
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"muf/internal/bytecode"
	"muf/internal/vm"
)

const defaultMemSize = 4096 // 4 KiB, matching spec.md's VM default address space

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		debug        bool
		timeIt       bool
		zeroOnPop    bool
		checkBounds  = true
		memSize      = defaultMemSize
		programPath  string
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-d":
			debug = true
		case "-t":
			timeIt = true
		case "-z":
			zeroOnPop = true
		case "-c":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "vm: -c requires a boolean argument")
				return -1
			}
			i++
			b, err := strconv.ParseBool(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "vm: invalid -c argument %q\n", args[i])
				return -1
			}
			checkBounds = b
		case "-m":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "vm: -m requires a size argument")
				return -1
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "vm: invalid -m argument %q\n", args[i])
				return -1
			}
			memSize = n
		default:
			if strings.HasPrefix(args[i], "-") {
				fmt.Fprintf(os.Stderr, "vm: unknown flag %s\n", args[i])
				return -1
			}
			programPath = args[i]
		}
	}

	if programPath == "" {
		fmt.Fprintln(os.Stderr, "usage: vm [-d] [-t] [-z] [-c BOOL] [-m SIZE] PROGRAM.bin")
		return -1
	}

	image, err := os.ReadFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vm: %v\n", err)
		return -1
	}

	machine, err := vm.New(image, int32(memSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vm: %v\n", err)
		return -1
	}
	machine.Debug = debug
	machine.ZeroOnPop = zeroOnPop
	machine.CheckBounds = checkBounds

	if !vm.IsInteractiveStdin() && debug {
		fmt.Fprintln(os.Stderr, "vm: stdin is not a terminal; getflt/getint prompts will not be echoed interactively")
	}

	if debug {
		machine.Hook = traceHook{}
	}

	start := time.Now()
	runErr := machine.Run()
	elapsed := time.Since(start)

	if timeIt {
		fmt.Fprintf(os.Stderr, "vm: run took %s\n", elapsed)
	}

	dumpStack(machine)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "vm: %v\n", runErr)
		return -1
	}
	return 0
}

// traceHook prints each instruction's opcode and registers before it
// executes, the "-d" trace mode of spec.md §7 ("Debug mode prints each
// instruction's effect before execution"). The fuller breakpoint/watch
// session in internal/debugger builds on the same vm.DebugHook interface
// for interactive use; this is the CLI's lightweight always-on variant.
type traceHook struct{}

func (traceHook) OnInstruction(v *vm.VM, ip int32, op bytecode.OpCode) bool {
	fmt.Fprintf(os.Stderr, "trace: ip=%d %s (%s)\n", ip, op.Name(), v.String())
	return true
}

func (traceHook) OnCall(v *vm.VM, target int32) {
	fmt.Fprintf(os.Stderr, "trace: call -> %d\n", target)
}

func (traceHook) OnReturn(v *vm.VM, ip int32) {
	fmt.Fprintf(os.Stderr, "trace: return -> %d\n", ip)
}

func (traceHook) OnTrap(v *vm.VM, err error) {
	fmt.Fprintf(os.Stderr, "trace: trap: %v\n", err)
}

// dumpStack prints the VM's remaining stack contents with type tags on
// exit, per spec.md §6 ("On exit the VM prints remaining stack contents
// with type tags").
func dumpStack(v *vm.VM) {
	fmt.Printf("-- remaining stack (sp=%d) --\n", v.SP)
	addr := int(v.SP)
	memEnd := len(v.Mem.Bytes)
	for addr < memEnd {
		tagByte, err := v.Mem.ReadByte(addr)
		if err != nil {
			return
		}
		tag := bytecode.Tag(tagByte)
		size, ok := cellSize(v, addr, tag)
		if !ok {
			fmt.Printf("  [%d] <unknown tag 0x%02x>\n", addr, tagByte)
			return
		}
		fmt.Printf("  [%d] %s\n", addr, formatCell(v, addr, tag))
		addr += 1 + size
	}
}

func cellSize(v *vm.VM, addr int, tag bytecode.Tag) (int, bool) {
	switch tag {
	case bytecode.TagReal, bytecode.TagInt, bytecode.TagBool, bytecode.TagCplx:
		return bytecode.PayloadSize(tag), true
	case bytecode.TagStr:
		n, err := v.Mem.StringSize(addr + 1)
		if err != nil {
			return 0, false
		}
		return n, true
	case bytecode.TagRealArr, bytecode.TagIntArr:
		// RealArraySize's 8-bytes-per-element formula also fits integer
		// arrays: both store 8-byte elements, only the tag differs.
		n, err := v.Mem.RealArraySize(addr + 1)
		if err != nil {
			return 0, false
		}
		return n, true
	case bytecode.TagCplxArr:
		count, err := v.Mem.ReadI32(addr + 1)
		if err != nil {
			return 0, false
		}
		return 4 + int(count)*16, true
	default:
		if tag.IsAddr() {
			return bytecode.PayloadSize(tag), true
		}
		return 0, false
	}
}

func formatCell(v *vm.VM, addr int, tag bytecode.Tag) string {
	payload := addr + 1
	switch tag {
	case bytecode.TagReal:
		f, _ := v.Mem.ReadReal(payload)
		return fmt.Sprintf("%s %g", tag, f)
	case bytecode.TagInt:
		n, _ := v.Mem.ReadInt(payload)
		return fmt.Sprintf("%s %d", tag, n)
	case bytecode.TagBool:
		b, _ := v.Mem.ReadBool(payload)
		return fmt.Sprintf("%s %t", tag, b)
	case bytecode.TagCplx:
		c, _ := v.Mem.ReadCplx(payload)
		return fmt.Sprintf("%s %g", tag, c)
	case bytecode.TagStr:
		s, _ := v.Mem.ReadString(payload)
		return fmt.Sprintf("%s %q", tag, s)
	default:
		return tag.String()
	}
}
