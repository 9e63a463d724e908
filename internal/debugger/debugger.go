// Package debugger provides an interactive, breakpoint-driven front end
// over internal/vm's DebugHook, plus a websocket trace feed external tools
// can subscribe to, per spec.md §4.5 ("Debugger: external consumer of VM
// execution ... out of scope for the core spec, but exercised here"). The
// breakpoint/watch/step command set and the interactive REPL loop are the
// teacher's (internal/debugger, pre-transformation); VMDebugHook is
// re-grounded on this module's byte-addressed VM and its DebugInfo-indexed
// bytecode.Image rather than the teacher's tree-walking EnhancedVM.
package debugger

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"muf/internal/bytecode"
	"muf/internal/vm"
)

// BreakpointType distinguishes how a Breakpoint is matched.
type BreakpointType int

const (
	LineBreakpoint BreakpointType = iota
	FunctionBreakpoint
)

// Breakpoint is one user-set stop condition, matched against the
// bytecode.DebugInfo recorded for the instruction about to execute.
type Breakpoint struct {
	ID       int
	Type     BreakpointType
	File     string
	Line     int
	Function string
	Enabled  bool
	HitCount int
}

// DebugState is the debugger's run state, driving VMDebugHook.OnInstruction's
// decision to pause the fetch loop.
type DebugState int

const (
	Running DebugState = iota
	Paused
	StepInto
	StepOver
	StepOut
	Terminated
)

// StackFrame is one entry of the debugger's view of the VM's call stack.
// The VM itself keeps no frame list (spec.md's VM is a flat BP/SP machine),
// so the debugger's hook keeps a shadow stack, pushing a frame in OnCall
// and popping it in OnReturn.
type StackFrame struct {
	Function string
	File     string
	Line     int
	IP       int32
}

// Debugger drives one debugging session over a loaded VM. Image is kept
// alongside the VM because DebugInfo lives on the compiled bytecode.Image,
// not on the VM's raw memory copy.
type Debugger struct {
	VM    *vm.VM
	Image *bytecode.Image

	breakpoints  map[int]*Breakpoint
	nextBpID     int
	state        DebugState
	currentFrame int
	reader       *bufio.Reader
	sourceLines  map[string][]string
	watches      map[string]bool
	callStack    []StackFrame

	trace *TraceServer // nil unless websocket streaming was enabled
}

// New creates a debugger paused at the VM's current IP.
func New(v *vm.VM, image *bytecode.Image) *Debugger {
	d := &Debugger{
		VM:          v,
		Image:       image,
		breakpoints: make(map[int]*Breakpoint),
		nextBpID:    1,
		state:       Paused,
		reader:      bufio.NewReader(os.Stdin),
		sourceLines: make(map[string][]string),
		watches:     make(map[string]bool),
	}
	v.Hook = &vmDebugHook{d: d}
	return d
}

// EnableTrace starts a websocket server at addr streaming one JSON event per
// executed instruction to every connected client; see trace_server.go.
func (d *Debugger) EnableTrace(addr string) error {
	ts, err := newTraceServer(addr)
	if err != nil {
		return err
	}
	d.trace = ts
	return nil
}

// LoadSourceFile registers source text so breakpoint hits can render a
// source-line listing.
func (d *Debugger) LoadSourceFile(filename, content string) {
	d.sourceLines[filename] = strings.Split(content, "\n")
}

func (d *Debugger) AddBreakpoint(file string, line int) int {
	bp := &Breakpoint{ID: d.nextBpID, Type: LineBreakpoint, File: file, Line: line, Enabled: true}
	d.breakpoints[d.nextBpID] = bp
	d.nextBpID++
	fmt.Printf("breakpoint %d set at %s:%d\n", bp.ID, file, line)
	return bp.ID
}

func (d *Debugger) AddFunctionBreakpoint(fn string) int {
	bp := &Breakpoint{ID: d.nextBpID, Type: FunctionBreakpoint, Function: fn, Enabled: true}
	d.breakpoints[d.nextBpID] = bp
	d.nextBpID++
	fmt.Printf("breakpoint %d set at function %s\n", bp.ID, fn)
	return bp.ID
}

func (d *Debugger) RemoveBreakpoint(id int) bool {
	if bp, ok := d.breakpoints[id]; ok {
		delete(d.breakpoints, id)
		fmt.Printf("breakpoint %d removed (%s:%d)\n", bp.ID, bp.File, bp.Line)
		return true
	}
	fmt.Printf("breakpoint %d not found\n", id)
	return false
}

func (d *Debugger) ListBreakpoints() {
	if len(d.breakpoints) == 0 {
		fmt.Println("no breakpoints set")
		return
	}
	for _, bp := range d.breakpoints {
		status := "enabled"
		if !bp.Enabled {
			status = "disabled"
		}
		if bp.Type == FunctionBreakpoint {
			fmt.Printf("  %d: func %s (%s) hits: %d\n", bp.ID, bp.Function, status, bp.HitCount)
			continue
		}
		fmt.Printf("  %d: %s:%d (%s) hits: %d\n", bp.ID, bp.File, bp.Line, status, bp.HitCount)
	}
}

// checkBreakpoint reports whether execution should pause at debug, bumping
// HitCount on the matching breakpoint.
func (d *Debugger) checkBreakpoint(debug bytecode.DebugInfo) bool {
	for _, bp := range d.breakpoints {
		if !bp.Enabled {
			continue
		}
		matched := (bp.Type == LineBreakpoint && bp.File == debug.File && bp.Line == debug.Line) ||
			(bp.Type == FunctionBreakpoint && bp.Function == debug.Function)
		if matched {
			bp.HitCount++
			fmt.Printf("\nbreakpoint %d hit at %s:%d (hits: %d)\n", bp.ID, debug.File, debug.Line, bp.HitCount)
			d.state = Paused
			return true
		}
	}
	return false
}

func (d *Debugger) showLocation(debug bytecode.DebugInfo) {
	fmt.Printf("\n%s:%d (in %s)\n", debug.File, debug.Line, debug.Function)
	lines, ok := d.sourceLines[debug.File]
	if !ok {
		return
	}
	start, end := debug.Line-3, debug.Line+2
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	for i := start; i < end; i++ {
		marker := "   "
		if i+1 == debug.Line {
			marker = "-> "
		}
		fmt.Printf("%s%4d | %s\n", marker, i+1, lines[i])
	}
}

func (d *Debugger) AddWatch(name string) {
	d.watches[name] = true
	fmt.Printf("watching %s\n", name)
}

func (d *Debugger) RemoveWatch(name string) {
	if _, ok := d.watches[name]; ok {
		delete(d.watches, name)
		fmt.Printf("unwatched %s\n", name)
		return
	}
	fmt.Printf("watch not found: %s\n", name)
}

func (d *Debugger) ShowWatches() {
	if len(d.watches) == 0 {
		fmt.Println("no watches set")
		return
	}
	for name := range d.watches {
		fmt.Printf("  %s = %s\n", name, d.evalWatch(name))
	}
}

// evalWatch resolves a watch expression naming either a register (ip, sp,
// bp, gbp) or, in a future extension, a symbol name; unknown names report
// as such rather than guessing.
func (d *Debugger) evalWatch(name string) string {
	switch name {
	case "ip":
		return strconv.Itoa(int(d.VM.IP))
	case "sp":
		return strconv.Itoa(int(d.VM.SP))
	case "bp":
		return strconv.Itoa(int(d.VM.BP))
	case "gbp":
		return strconv.Itoa(int(d.VM.GBP))
	}
	return "<unresolved>"
}

func (d *Debugger) ShowCallStack() {
	fmt.Println("call stack:")
	for i, frame := range d.callStack {
		marker := "   "
		if i == d.currentFrame {
			marker = "-> "
		}
		fmt.Printf("%s%d: %s (%s:%d)\n", marker, i, frame.Function, frame.File, frame.Line)
	}
}

// armStep records the current call depth as the step-over/step-out
// baseline; a no-op if the VM's hook was never installed through New.
func (d *Debugger) armStep() {
	if h, ok := d.VM.Hook.(*vmDebugHook); ok {
		h.armStep()
	}
}

// Run drives the VM to completion, dropping into the interactive REPL each
// time VMDebugHook.OnInstruction decides to pause.
func (d *Debugger) Run() error {
	d.state = Running
	err := d.VM.Run()
	if d.trace != nil {
		d.trace.close()
	}
	return err
}

// repl reads and executes debugger commands from stdin until the state
// changes away from Paused (continue/step/quit).
func (d *Debugger) repl() {
	for d.state == Paused {
		fmt.Print("(muf-debug) ")
		line, err := d.reader.ReadString('\n')
		if err != nil {
			d.state = Terminated
			return
		}
		d.execute(strings.TrimSpace(line))
	}
}

func (d *Debugger) execute(command string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return
	}
	cmd, args := parts[0], parts[1:]
	switch cmd {
	case "help", "h":
		d.help()
	case "break", "b":
		if len(args) < 2 {
			fmt.Println("usage: break <file> <line>")
			return
		}
		line, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Printf("invalid line number: %s\n", args[1])
			return
		}
		d.AddBreakpoint(args[0], line)
	case "fbreak":
		if len(args) < 1 {
			fmt.Println("usage: fbreak <function>")
			return
		}
		d.AddFunctionBreakpoint(args[0])
	case "delete", "d":
		if len(args) < 1 {
			fmt.Println("usage: delete <breakpoint_id>")
			return
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("invalid breakpoint id: %s\n", args[0])
			return
		}
		d.RemoveBreakpoint(id)
	case "list", "l":
		d.ListBreakpoints()
	case "continue", "c":
		d.state = Running
	case "step", "s":
		d.state = StepInto
	case "next", "n":
		d.armStep()
		d.state = StepOver
	case "finish", "f":
		d.armStep()
		d.state = StepOut
	case "where", "w":
		d.ShowCallStack()
	case "watch":
		if len(args) < 1 {
			d.ShowWatches()
			return
		}
		d.AddWatch(args[0])
	case "unwatch":
		if len(args) < 1 {
			fmt.Println("usage: unwatch <name>")
			return
		}
		d.RemoveWatch(args[0])
	case "regs", "r":
		fmt.Println(d.VM.String())
	case "quit", "q":
		d.state = Terminated
	default:
		fmt.Printf("unknown command: %s (type 'help')\n", cmd)
	}
}

func (d *Debugger) help() {
	fmt.Println(`available commands:
  help, h                 show this help
  break, b <file> <line>  set a line breakpoint
  fbreak <function>       set a function-entry breakpoint
  delete, d <id>          remove a breakpoint
  list, l                 list breakpoints
  continue, c             resume execution
  step, s                 step into the next instruction
  next, n                 step over the next instruction
  finish, f               run until the current function returns
  where, w                show the call stack
  watch [name]            add (or list) a watched register: ip/sp/bp/gbp
  unwatch <name>          remove a watch
  regs, r                 print the register snapshot
  quit, q                 terminate the session`)
}
