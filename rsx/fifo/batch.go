/*
 * RSX - Draw batcher.
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

// Draw batcher: deferred BEGIN/END collapsing and continuity detection,
// active only when the backend reports multidraw support.
package fifo

import (
	"log/slog"

	"github.com/go-rsx/rsxcore/rsx/backend"
	"github.com/go-rsx/rsxcore/rsx/capture"
	"github.com/go-rsx/rsxcore/rsx/register"
	"github.com/go-rsx/rsxcore/rsx/zcull"
)

// Register identifiers the batcher treats specially. Real hardware wires
// these to specific method offsets; this package only needs stable,
// distinct ids to dispatch on.
const (
	RegBeginEnd             uint32 = 0x1808 >> 2
	RegInvalidateVertexFile uint32 = 0x1710 >> 2
	RegDrawArrays           uint32 = 0x1814 >> 2
	RegDrawIndexArray       uint32 = 0x1818 >> 2
)

// skippable register windows: texture configuration, vertex-texture
// offsets, and surface configuration. Expressed as half-open [start, end)
// ranges of register ids.
var skippableWindows = [][2]uint32{
	{0x1a00 >> 2, (0x1a00 + 16*8*4) >> 2}, // texture offsets/controls, 16 slots x 8 words
	{0x1e00 >> 2, (0x1e00 + 16*4) >> 2},   // texture control A, 16 words
	{0x1f00 >> 2, (0x1f00 + 16*4) >> 2},   // texture control B, 16 words
	{0x1900 >> 2, (0x1900 + 16*4) >> 2},   // vertex-texture offsets
	{0x0200 >> 2, (0x0200 + 20*4) >> 2},   // surface configuration block
}

func isSkippable(reg uint32) bool {
	for _, w := range skippableWindows {
		if reg >= w[0] && reg < w[1] {
			return true
		}
	}
	return false
}

type batcher struct {
	regs    *register.File
	backend backend.Backend
	zcull   *zcull.Controller
	capture *capture.Sink
	log     *slog.Logger

	active           bool
	primitiveType    register.Primitive
	deferredBeginEnd int
	hasDeferredCall  bool
	batchStartIdx    int
	indexed          bool
}

func newBatcher(regs *register.File, be backend.Backend, zc *zcull.Controller, cap *capture.Sink, log *slog.Logger) *batcher {
	return &batcher{regs: regs, backend: be, zcull: zc, capture: cap, log: log}
}

func (b *batcher) hasDeferred() bool {
	return b.active || b.hasDeferredCall
}

// route applies one incoming (reg, value) write to the batcher's state
// machine and reports whether the register file's normal handler should
// be suppressed for this write.
func (b *batcher) route(reg, value uint32) bool {
	switch reg {
	case RegBeginEnd:
		return b.onBeginEnd(value)

	case RegInvalidateVertexFile:
		// Keep batch alive; nothing else to do.
		return false

	case RegDrawArrays:
		if b.regs.Clause.Command != register.DrawArray && b.regs.Clause.Command != register.DrawNone {
			// Draw-kind switch: emit the old batch, then start the new one.
			b.flush()
		}
		b.regs.Clause.Command = register.DrawArray
		b.appendRange(value)
		return true

	case RegDrawIndexArray:
		if b.regs.Clause.Command != register.DrawIndexed && b.regs.Clause.Command != register.DrawNone {
			b.flush()
		}
		b.regs.Clause.Command = register.DrawIndexed
		b.indexed = true
		b.appendRange(value)
		return true

	default:
		if b.active && isSkippable(reg) && b.regs.Test(reg, value) {
			return true
		}
		if b.active {
			b.flush()
		}
		return false
	}
}

// appendRange decodes a packed (first, count) draw-arrays payload: low 24
// bits first, high 8 bits count.
func (b *batcher) appendRange(value uint32) {
	first := value & 0x00ffffff
	count := (value >> 24) & 0xff
	b.regs.AppendFirstCount(first, count)
}

func (b *batcher) onBeginEnd(value uint32) bool {
	if value != 0 {
		if b.active && register.Primitive(value) != b.primitiveType {
			// A different topology cannot join the live batch.
			b.flush()
		}
		b.deferredBeginEnd++
		if !b.active {
			b.active = true
			b.primitiveType = register.Primitive(value)
			b.batchStartIdx = len(b.regs.Clause.FirstCountCommands)
			b.regs.Begin(b.primitiveType)
		}
		return true
	}

	b.deferredBeginEnd--
	b.hasDeferredCall = true
	if !b.primitiveType.IsDisjoint() {
		b.coalesce()
	}
	return true
}

// coalesce merges adjacent (first, count) ranges accumulated since the
// batch's first new entry; the first non-adjacent entry starts a split
// and is logged.
func (b *batcher) coalesce() {
	ranges := b.regs.Clause.FirstCountCommands
	if b.batchStartIdx >= len(ranges) {
		return
	}
	merged := ranges[:b.batchStartIdx:b.batchStartIdx]
	cur := ranges[b.batchStartIdx]
	for _, r := range ranges[b.batchStartIdx+1:] {
		if cur.First+cur.Count == r.First {
			cur.Count += r.Count
			continue
		}
		b.log.Warn("fifo: non-continuous draw range, splitting batch",
			slog.Uint64("prev_first", uint64(cur.First)), slog.Uint64("prev_count", uint64(cur.Count)),
			slog.Uint64("next_first", uint64(r.First)))
		merged = append(merged, cur)
		cur = r
	}
	merged = append(merged, cur)
	b.regs.Clause.FirstCountCommands = merged
}

// flush emits the deferred batch. A disjoint primitive tolerates range
// gaps, so all accumulated ranges go down in a single Draw (one BEGIN/END
// pair); a non-disjoint primitive gets one
// Draw per coalesced range, since each gap forced a topology split. A
// hanging BEGIN re-opens a fresh batch afterward so subsequent writes
// remain inside a primitive.
func (b *batcher) flush() {
	if !b.active && !b.hasDeferredCall {
		return
	}

	ranges := make([]backend.Range, 0, len(b.regs.Clause.FirstCountCommands))
	for _, r := range b.regs.Clause.FirstCountCommands {
		ranges = append(ranges, backend.Range{First: r.First, Count: r.Count})
	}
	if b.primitiveType.IsDisjoint() {
		b.emitDraw(ranges)
	} else {
		for _, r := range ranges {
			b.emitDraw([]backend.Range{r})
		}
	}

	b.regs.Clause.Reset()
	b.active = false
	b.hasDeferredCall = false
	b.indexed = false

	if b.deferredBeginEnd > 0 {
		b.active = true
		b.batchStartIdx = 0
		b.regs.Begin(b.primitiveType)
	}
}

// emitDraw issues one BEGIN/END pair's worth of work to the backend and
// accounts for it in the occlusion pipeline and the capture sink.
func (b *batcher) emitDraw(ranges []backend.Range) {
	if len(ranges) == 0 {
		return
	}
	b.backend.Draw(int(b.primitiveType), ranges, b.indexed)
	if b.zcull != nil {
		b.zcull.OnDraw()
	}
	if b.capture != nil && b.capture.Active {
		var verts uint32
		for _, r := range ranges {
			verts += r.Count
		}
		b.capture.RecordDraw(capture.DrawState{
			State:       b.regs.Snapshot(),
			VertexCount: verts,
		})
	}
}
