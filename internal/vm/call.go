package vm

// Call frames follow original_source/src/vm/run.cpp's CALL/RET mechanics:
// the caller pushes arguments in reverse, then the target address and the
// frame size (CALL pops the frame size first); CALL saves the return IP and the caller's BP, makes the new
// frame's BP the post-save stack top, then reserves local storage by
// moving SP down by frameSize. RET undoes exactly that, then pops the
// argument bytes the caller pushed so the caller's SP lands right after
// the call as if it had never happened.

func (v *VM) execCall() error {
	frameSize, err := v.popInt()
	if err != nil {
		return err
	}
	targetAddr, err := v.popAddrResolved()
	if err != nil {
		return err
	}

	if err := v.push(intValue(int64(v.IP))); err != nil {
		return err
	}
	if err := v.push(intValue(int64(v.BP))); err != nil {
		return err
	}
	v.BP = v.SP
	v.SP -= int32(frameSize)

	if v.Hook != nil {
		v.Hook.OnCall(v, targetAddr)
	}
	v.IP = targetAddr
	return nil
}

func (v *VM) execRet() error {
	argBytes, err := v.popInt()
	if err != nil {
		return err
	}

	v.SP = v.BP
	savedBP, err := v.popInt()
	if err != nil {
		return err
	}
	savedIP, err := v.popInt()
	if err != nil {
		return err
	}
	v.BP = int32(savedBP)
	v.IP = int32(savedIP)
	v.SP += int32(argBytes)

	if v.Hook != nil {
		v.Hook.OnReturn(v, v.IP)
	}
	return nil
}
