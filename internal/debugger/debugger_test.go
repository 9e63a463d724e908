package debugger

import (
	"testing"

	"muf/internal/bytecode"
	"muf/internal/vm"
)

// buildProgram assembles two HALT-terminated instructions tagged with
// distinct source lines, mirroring internal/vm's test-only asm helper.
func buildProgram(t *testing.T) (*vm.VM, *bytecode.Image) {
	t.Helper()
	im := bytecode.NewImage()
	im.WriteOpDebug(bytecode.PUSH, bytecode.DebugInfo{File: "prog.muf", Line: 1, Function: "main"})
	im.WriteByte(byte(bytecode.TagInt))
	im.WriteI64(1)
	im.WriteOpDebug(bytecode.HALT, bytecode.DebugInfo{File: "prog.muf", Line: 2, Function: "main"})

	v, err := vm.New(im.Code, 4096)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	return v, im
}

func TestAddAndRemoveBreakpoint(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)

	id := d.AddBreakpoint("prog.muf", 2)
	if len(d.breakpoints) != 1 {
		t.Fatalf("breakpoints = %d, want 1", len(d.breakpoints))
	}
	if !d.RemoveBreakpoint(id) {
		t.Fatalf("RemoveBreakpoint(%d) = false, want true", id)
	}
	if len(d.breakpoints) != 0 {
		t.Fatalf("breakpoints after remove = %d, want 0", len(d.breakpoints))
	}
}

func TestCheckBreakpointMatchesLineAndCountsHits(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)
	d.AddBreakpoint("prog.muf", 2)

	hit := d.checkBreakpoint(bytecode.DebugInfo{File: "prog.muf", Line: 2, Function: "main"})
	if !hit {
		t.Fatalf("checkBreakpoint on matching line = false, want true")
	}
	miss := d.checkBreakpoint(bytecode.DebugInfo{File: "prog.muf", Line: 1, Function: "main"})
	if miss {
		t.Fatalf("checkBreakpoint on non-matching line = true, want false")
	}
	if d.breakpoints[1].HitCount != 1 {
		t.Fatalf("hit count = %d, want 1", d.breakpoints[1].HitCount)
	}
}

func TestFunctionBreakpointMatchesByName(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)
	d.AddFunctionBreakpoint("main")

	if !d.checkBreakpoint(bytecode.DebugInfo{File: "other.muf", Line: 99, Function: "main"}) {
		t.Fatalf("function breakpoint should match on function name regardless of file/line")
	}
}

func TestDisabledBreakpointNeverMatches(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)
	d.AddBreakpoint("prog.muf", 2)
	d.breakpoints[1].Enabled = false

	if d.checkBreakpoint(bytecode.DebugInfo{File: "prog.muf", Line: 2, Function: "main"}) {
		t.Fatalf("disabled breakpoint matched")
	}
}

func TestWatchRegisters(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)
	d.AddWatch("ip")

	if got := d.evalWatch("ip"); got != "0" {
		t.Fatalf("evalWatch(ip) = %q, want 0", got)
	}
	if got := d.evalWatch("nonsense"); got != "<unresolved>" {
		t.Fatalf("evalWatch(nonsense) = %q, want <unresolved>", got)
	}
	d.RemoveWatch("ip")
	if _, ok := d.watches["ip"]; ok {
		t.Fatalf("watch still present after RemoveWatch")
	}
}

func TestCallStackTracksOnCallOnReturn(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)
	hook := v.Hook.(*vmDebugHook)

	hook.OnCall(v, 0)
	if len(d.callStack) != 1 || d.callStack[0].Function != "main" {
		t.Fatalf("callStack after OnCall = %+v", d.callStack)
	}
	hook.OnReturn(v, 0)
	if len(d.callStack) != 0 {
		t.Fatalf("callStack after OnReturn = %+v, want empty", d.callStack)
	}
}

func TestArmStepCapturesDepth(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)
	hook := v.Hook.(*vmDebugHook)

	hook.OnCall(v, 0)
	d.armStep()
	if hook.stepDepth != 1 {
		t.Fatalf("stepDepth = %d, want 1", hook.stepDepth)
	}
}

func TestExecuteCommandDispatch(t *testing.T) {
	v, im := buildProgram(t)
	d := New(v, im)

	d.execute("break prog.muf 2")
	if len(d.breakpoints) != 1 {
		t.Fatalf("break command did not register a breakpoint")
	}
	d.execute("continue")
	if d.state != Running {
		t.Fatalf("state after continue = %v, want Running", d.state)
	}
	d.execute("quit")
	if d.state != Terminated {
		t.Fatalf("state after quit = %v, want Terminated", d.state)
	}
}
