package debugger

import (
	"fmt"

	"muf/internal/bytecode"
	"muf/internal/vm"
)

// vmDebugHook implements muf/internal/vm.DebugHook, translating the VM's
// byte-addressed fetch/decode/execute hook points into the debugger's
// breakpoint/step/call-stack model. This is the teacher's VMDebugHook
// reworked against the new hook shape: the old hook received a resolved
// bytecode.DebugInfo at every call site, this one resolves it itself from
// the Debugger's retained *bytecode.Image, since the VM carries no debug
// metadata of its own.
type vmDebugHook struct {
	d         *Debugger
	stepDepth int // call depth captured when a step-over/step-out begins
	depth     int // current call depth, maintained via OnCall/OnReturn
}

func (h *vmDebugHook) OnInstruction(v *vm.VM, ip int32, op bytecode.OpCode) bool {
	d := h.d
	debug := d.Image.GetDebugInfo(int(ip))

	if d.trace != nil {
		d.trace.publish(traceEvent{
			IP:       int(ip),
			Op:       op.Name(),
			File:     debug.File,
			Line:     debug.Line,
			Function: debug.Function,
		})
	}

	stop := false
	switch d.state {
	case StepInto:
		stop = true
	case StepOver:
		stop = h.depth <= h.stepDepth
	case StepOut:
		stop = h.depth < h.stepDepth
	}
	if !stop {
		stop = d.checkBreakpoint(debug)
	}
	if !stop {
		return true
	}

	d.state = Paused
	d.showLocation(debug)
	d.repl()
	return d.state != Terminated
}

func (h *vmDebugHook) OnCall(v *vm.VM, target int32) {
	h.depth++
	debug := h.d.Image.GetDebugInfo(int(target))
	h.d.callStack = append(h.d.callStack, StackFrame{
		Function: debug.Function,
		File:     debug.File,
		Line:     debug.Line,
		IP:       target,
	})
}

func (h *vmDebugHook) OnReturn(v *vm.VM, ip int32) {
	if n := len(h.d.callStack); n > 0 {
		h.d.callStack = h.d.callStack[:n-1]
	}
	if h.depth > 0 {
		h.depth--
	}
}

func (h *vmDebugHook) OnTrap(v *vm.VM, err error) {
	fmt.Printf("\ntrap at ip=%d: %v\n", v.IP, err)
	h.d.state = Paused
	h.d.showLocation(h.d.Image.GetDebugInfo(int(v.IP)))
	h.d.repl()
}

// armStep records the current call depth as the baseline for a step-over
// or step-out request, called right before resuming the VM in that mode.
func (h *vmDebugHook) armStep() {
	h.stepDepth = h.depth
}
