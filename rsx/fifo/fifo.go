/*
 * RSX - FIFO command processor.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package fifo implements the FIFO command processor's main loop:
// command-word classification, jump/call/return control flow, fault
// recovery, and dispatch into the method-register file and draw batcher.
package fifo

import (
	"log/slog"
	"time"

	"github.com/go-rsx/rsxcore/rsx/backend"
	"github.com/go-rsx/rsxcore/rsx/capture"
	"github.com/go-rsx/rsxcore/rsx/membridge"
	"github.com/go-rsx/rsxcore/rsx/register"
	"github.com/go-rsx/rsxcore/rsx/schedule"
	"github.com/go-rsx/rsxcore/rsx/zcull"
)

// Command word masks and flags.
const (
	oldJumpMask  uint32 = 0x20000003
	oldJumpMatch uint32 = 0x20000000
	oldJumpAddr  uint32 = 0x1ffffffc

	newJumpFlag uint32 = 0x80000000
	newJumpAddr uint32 = 0xfffffffc

	callMask  uint32 = 0x00000003
	callMatch uint32 = 0x00000002

	returnFlag uint32 = 0x00020000

	nonIncrementFlag uint32 = 0x40000000

	maxConsecutiveFaults = 3
	faultRetryDelay      = 10 * time.Millisecond
	callStackDepth       = 64
)

type cmdKind int

const (
	cmdNop cmdKind = iota
	cmdOldJump
	cmdNewJump
	cmdCall
	cmdReturn
	cmdMethod
)

func classify(word uint32) (cmdKind, uint32) {
	switch {
	case word == 0:
		return cmdNop, 0
	case word&oldJumpMask == oldJumpMatch:
		return cmdOldJump, word & oldJumpAddr
	case word&newJumpFlag != 0:
		return cmdNewJump, word & newJumpAddr
	case word&callMask == callMatch:
		return cmdCall, word &^ 3
	case word&returnFlag != 0:
		return cmdReturn, 0
	default:
		return cmdMethod, 0
	}
}

// MalformedCommandError reports a command Step cannot follow; it is
// returned for a CALL that would overflow the call stack. A jump past put
// is only logged, a RETURN with an empty stack drains to put, and an
// unaligned word with an interrupt raised resumes from the restore point;
// none of those return this error.
type MalformedCommandError struct {
	Reason string
}

func (e *MalformedCommandError) Error() string { return "fifo: malformed command: " + e.Reason }

// Interpreter is the FIFO command processor.
type Interpreter struct {
	mem     *membridge.Bridge
	regs    *register.File
	zcull   *zcull.Controller
	backend backend.Backend
	capture *capture.Sink
	batcher *batcher
	sched   *schedule.Queue
	log     *slog.Logger

	controlBlockAddr uint32 // guest address of {put, get, reserved}

	internalGet  uint32
	restorePoint uint32
	callStack    []uint32

	memFaultsCount int
	lastFaultAddr  uint32

	invalidCommandInterruptRaised bool
	syncPointRequest              bool

	externalInterruptLock bool
	externalInterruptAck  bool

	running bool

	idleSince time.Time
}

// New builds an interpreter reading its FIFO from controlBlockAddr.
func New(mem *membridge.Bridge, regs *register.File, zc *zcull.Controller, be backend.Backend, cap *capture.Sink, controlBlockAddr uint32, log *slog.Logger) *Interpreter {
	if log == nil {
		log = slog.Default()
	}
	ip := &Interpreter{
		mem:              mem,
		regs:             regs,
		zcull:            zc,
		backend:          be,
		capture:          cap,
		sched:            schedule.New(),
		log:              log,
		controlBlockAddr: controlBlockAddr,
		callStack:        make([]uint32, 0, callStackDepth),
	}
	if be != nil && be.SupportsMultidraw() {
		ip.batcher = newBatcher(regs, be, zc, cap, log)
	} else if be != nil {
		registerUnbatchedDrawHandlers(regs, be, zc)
	}
	registerReportHandlers(regs, zc)
	mem.Faults().Register(ip)
	return ip
}

// Report-path method ids. As with the draw-path ids, only distinctness
// matters to this package, not the numeric assignment.
const (
	RegZcullCountEnable uint32 = 0x1d84 >> 2
	RegGetReport        uint32 = 0x1d88 >> 2
	RegClearReportValue uint32 = 0x1d8c >> 2
)

// registerReportHandlers wires the occlusion lifecycle to the command
// stream: pixel-count enable/disable, report reads (type in the top byte,
// sink offset in the low 24 bits), and statistics epoch clears.
func registerReportHandlers(regs *register.File, zc *zcull.Controller) {
	regs.Register(RegZcullCountEnable, func(_ *register.File, _, value uint32) {
		zc.SetActive(value != 0)
	})
	regs.Register(RegGetReport, func(_ *register.File, _, value uint32) {
		zc.ReadReport(value&0x00ffffff, zcull.StatType(value>>24))
	})
	regs.Register(RegClearReportValue, func(_ *register.File, _, value uint32) {
		zc.Clear()
	})
}

// OnAccessFault records the faulting guest address, delivered through the
// bridge's fault bus rather than a process-wide hook.
func (ip *Interpreter) OnAccessFault(addr uint32) {
	ip.lastFaultAddr = addr
}

// Close unregisters the interpreter from the bridge's fault bus. The
// interpreter must not be stepped after Close.
func (ip *Interpreter) Close() {
	ip.mem.Faults().Unregister(ip)
}

// registerUnbatchedDrawHandlers wires BEGIN/END and DRAW_ARRAYS/
// DRAW_INDEX_ARRAY directly to the backend when multidraw batching is
// unsupported: every END immediately emits one Draw call.
func registerUnbatchedDrawHandlers(regs *register.File, be backend.Backend, zc *zcull.Controller) {
	regs.Register(RegDrawArrays, func(f *register.File, _, value uint32) {
		f.Clause.Command = register.DrawArray
		f.AppendFirstCount(value&0x00ffffff, (value>>24)&0xff)
	})
	regs.Register(RegDrawIndexArray, func(f *register.File, _, value uint32) {
		f.Clause.Command = register.DrawIndexed
		f.AppendFirstCount(value&0x00ffffff, (value>>24)&0xff)
	})
	regs.Register(RegBeginEnd, func(f *register.File, _, value uint32) {
		if value != 0 {
			f.Begin(register.Primitive(value))
			return
		}
		ranges := make([]backend.Range, 0, len(f.Clause.FirstCountCommands))
		for _, r := range f.Clause.FirstCountCommands {
			ranges = append(ranges, backend.Range{First: r.First, Count: r.Count})
		}
		be.Draw(int(f.Clause.Primitive), ranges, f.Clause.Command == register.DrawIndexed)
		if zc != nil {
			zc.OnDraw()
		}
		f.Clause.Reset()
	})
}

// Start marks the interpreter running.
func (ip *Interpreter) Start() { ip.running = true }

// Stop marks the interpreter halted; Step becomes a pure idle pulse.
func (ip *Interpreter) Stop() { ip.running = false }

// ScheduleInternalTask queues cb behind delay idle iterations. Internal
// tasks only run while the FIFO has no commands to consume; a zero delay
// runs cb at once.
func (ip *Interpreter) ScheduleInternalTask(key any, delay int, cb func()) {
	ip.sched.Add(key, delay, cb)
}

// CancelInternalTask drops a task queued under key, if still pending.
func (ip *Interpreter) CancelInternalTask(key any) {
	ip.sched.Cancel(key)
}

// RequestSyncPoint asks the next Step to snapshot restorePoint if
// internalGet currently translates.
func (ip *Interpreter) RequestSyncPoint() { ip.syncPointRequest = true }

// Pause sets the external interrupt lock; the interpreter acknowledges on
// its next Step and the caller should poll Acknowledged.
func (ip *Interpreter) Pause() { ip.externalInterruptLock = true }

// Unpause releases the lock.
func (ip *Interpreter) Unpause() {
	ip.externalInterruptLock = false
	ip.externalInterruptAck = false
}

// Acknowledged reports whether the interpreter has acked a pending pause.
func (ip *Interpreter) Acknowledged() bool { return ip.externalInterruptAck }

// Get returns the interpreter's current internal get pointer.
func (ip *Interpreter) Get() uint32 { return ip.internalGet }

// SetGet forcibly repositions the interpreter (used by tests and the
// console's inject command).
func (ip *Interpreter) SetGet(addr uint32) {
	ip.internalGet = addr
	ip.restorePoint = addr
}

func (ip *Interpreter) readControlBlock() (put, get uint32, err error) {
	put, err = ip.mem.Read32(ip.controlBlockAddr)
	if err != nil {
		return 0, 0, err
	}
	get, err = ip.mem.Read32(ip.controlBlockAddr + 4)
	return put, get, err
}

func (ip *Interpreter) publishGet() error {
	return ip.mem.Write32(ip.controlBlockAddr+4, ip.internalGet)
}

// Step runs one iteration of the main loop.
func (ip *Interpreter) Step() error {
	// 1. Honor the external interrupt lock.
	if ip.externalInterruptLock {
		ip.externalInterruptAck = true
		return nil
	}
	ip.externalInterruptAck = false

	put, _, err := ip.readControlBlock()
	idle := err == nil && put == ip.internalGet

	// 2. Backend-local tasks.
	if ip.backend != nil {
		ip.backend.DoLocalTask(idle)
	}

	// 3. Tick ZCULL.
	ip.zcull.Update()

	// 4. Sync point snapshot.
	if ip.syncPointRequest {
		if _, rerr := ip.mem.Read32(ip.internalGet); rerr == nil {
			ip.restorePoint = ip.internalGet
		} else {
			ip.log.Warn("fifo: sync point requested on unmapped get", slog.Uint64("get", uint64(ip.internalGet)))
		}
		ip.syncPointRequest = false
	}

	// 5. Publish internal_get.
	if perr := ip.publishGet(); perr != nil {
		ip.log.Error("fifo: failed publishing get", slog.Any("error", perr))
	}

	// 6. Idle handling.
	if idle || !ip.running {
		if ip.batcher != nil && ip.batcher.hasDeferred() {
			ip.batcher.flush()
		} else if idle {
			if ip.idleSince.IsZero() {
				ip.idleSince = time.Now()
			}
			if !ip.sched.Empty() {
				ip.sched.Advance(1)
			}
		}
		return nil
	}
	ip.idleSince = time.Time{}
	ip.invalidCommandInterruptRaised = false

	// 7. Translate internal_get.
	word, err := ip.mem.Read32(ip.internalGet)
	if err != nil {
		return ip.handleFault(err)
	}
	ip.memFaultsCount = 0

	// 8. Dispatch JUMP/CALL/RETURN/nop.
	kind, target := classify(word)
	switch kind {
	case cmdNop:
		ip.internalGet += 4
		return nil
	case cmdOldJump, cmdNewJump:
		if target > put {
			ip.log.Warn("fifo: jump past put",
				slog.Uint64("target", uint64(target)), slog.Uint64("put", uint64(put)))
		}
		ip.internalGet = target
		return nil
	case cmdCall:
		if len(ip.callStack) >= callStackDepth {
			return &MalformedCommandError{Reason: "call stack overflow"}
		}
		ip.callStack = append(ip.callStack, ip.internalGet+4)
		ip.internalGet = target
		return nil
	case cmdReturn:
		if len(ip.callStack) == 0 {
			// RETURN with empty stack discards the rest of the queue.
			put, _, _ := ip.readControlBlock()
			ip.internalGet = put
			return nil
		}
		n := len(ip.callStack) - 1
		ip.internalGet = ip.callStack[n]
		ip.callStack = ip.callStack[:n]
		return nil
	}

	// 9. Translate args pointer.
	argsAddr := ip.internalGet + 4

	// 10. Extract first method and alignment.
	firstMethod := (word & 0xfffc) >> 2
	unaligned := word&0x3 != 0
	nonIncrement := word&nonIncrementFlag != 0
	count := (word >> 18) & 0x7ff

	if unaligned {
		ip.log.Warn("fifo: unaligned command", slog.Uint64("word", uint64(word)), slog.Uint64("get", uint64(ip.internalGet)))
	}

	// 11. Apply each argument.
	for i := uint32(0); i < count; i++ {
		value, aerr := ip.mem.Read32(argsAddr + i*4)
		if aerr != nil {
			if herr := ip.handleFault(aerr); herr != nil {
				return herr
			}
			if !ip.invalidCommandInterruptRaised {
				// Transient fault: leave get in place so the whole
				// command retries next iteration.
				return nil
			}
			break
		}
		reg := firstMethod
		if !nonIncrement {
			reg = firstMethod + i
		}

		suppress := false
		if ip.batcher != nil {
			suppress = ip.batcher.route(reg, value)
		}
		ip.regs.Decode(reg, value, suppress)
		if ip.capture != nil {
			ip.capture.RecordWrite(reg, value)
		}

		if ip.invalidCommandInterruptRaised {
			break
		}
	}

	// 12. An interrupt aborts the rest of the command chain; with an
	// unaligned word the stream itself is suspect, so resume from the
	// restore point.
	if ip.invalidCommandInterruptRaised {
		ip.invalidCommandInterruptRaised = false
		if unaligned {
			ip.internalGet = ip.restorePoint
		}
		return nil
	}

	// 13. Advance.
	ip.internalGet += (count + 1) * 4
	return nil
}

// handleFault implements the transient-memory-fault policy: retry up to
// 3 times with a short sleep between attempts, then reset to restorePoint.
func (ip *Interpreter) handleFault(err error) error {
	ip.memFaultsCount++
	ip.log.Warn("fifo: memory fault", slog.Any("error", err),
		slog.Uint64("addr", uint64(ip.lastFaultAddr)), slog.Int("count", ip.memFaultsCount))
	if ip.memFaultsCount < maxConsecutiveFaults {
		time.Sleep(faultRetryDelay)
		return nil
	}
	ip.internalGet = ip.restorePoint
	ip.invalidCommandInterruptRaised = true
	ip.memFaultsCount = 0
	return nil
}

// Run drives Step in a loop until the stop channel is closed, or the step
// function reports a fatal (non-recoverable) error. Stop does not end Run;
// it only turns each Step into an idle pulse.
func (ip *Interpreter) Run(stop <-chan struct{}) error {
	if ip.backend != nil {
		ip.backend.OnInitThread()
		defer ip.backend.OnExit()
	}
	ip.running = true
	for {
		select {
		case <-stop:
			ip.running = false
			return nil
		default:
		}
		if err := ip.Step(); err != nil {
			return err
		}
	}
}
