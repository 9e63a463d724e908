package vm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pkg/errors"
)

// NumInterrupts is the number of IRQ lines, per
// original_source/src/vm/vm.h's m_num_interrupts.
const NumInterrupts = 16

// TimerInterrupt is the reserved line the periodic timer raises.
const TimerInterrupt = 0

type timerState struct {
	mu      sync.Mutex
	period  time.Duration
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// SetISR installs the service routine address for interrupt line num.
func (v *VM) SetISR(num int, addr int32) error {
	if num < 0 || num >= NumInterrupts {
		return errors.Errorf("interrupt line %d out of range [0,%d)", num, NumInterrupts)
	}
	a := addr
	v.isrs[num] = &a
	return nil
}

// RequestInterrupt raises interrupt line num, serviced on the next
// instruction boundary.
func (v *VM) RequestInterrupt(num int) error {
	if num < 0 || num >= NumInterrupts {
		return errors.Errorf("interrupt line %d out of range [0,%d)", num, NumInterrupts)
	}
	v.irqs[num].Store(true)
	return nil
}

// StartTimer launches a goroutine that raises TimerInterrupt every period,
// supervised by an errgroup so StopTimer can cleanly join it (generalizing
// original_source's dedicated std::thread into the teacher's
// errgroup-based goroutine-lifecycle idiom used elsewhere in this module
// for concurrent/background work).
func (v *VM) StartTimer(period time.Duration) {
	if v.timer != nil && v.timer.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	v.timer = &timerState{period: period, cancel: cancel, group: g, running: true}

	g.Go(func() error {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				_ = v.RequestInterrupt(TimerInterrupt)
			}
		}
	})
}

// StopTimer cancels the timer goroutine and waits for it to exit.
func (v *VM) StopTimer() error {
	if v.timer == nil || !v.timer.running {
		return nil
	}
	v.timer.cancel()
	err := v.timer.group.Wait()
	v.timer.running = false
	return err
}

// serviceInterrupts is polled once per fetch cycle: the lowest-numbered
// pending line with an installed ISR is dispatched as a CALL to that
// address, pushing the current IP as the return address exactly like a
// normal call (zero-argument, zero-local frame). Only one line is serviced
// per cycle; the rest stay pending for subsequent cycles.
func (v *VM) serviceInterrupts() {
	for num := 0; num < NumInterrupts; num++ {
		if !v.irqs[num].Swap(false) {
			continue
		}
		isr := v.isrs[num]
		if isr == nil {
			continue
		}
		_ = v.push(intValue(int64(v.IP)))
		_ = v.push(intValue(int64(v.BP)))
		v.BP = v.SP
		v.IP = *isr
		break
	}
}
