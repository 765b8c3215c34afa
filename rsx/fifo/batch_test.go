/*
 * RSX - Draw batcher test cases.
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

package fifo

import (
	"log/slog"
	"testing"

	"github.com/go-rsx/rsxcore/rsx/backend/fake"
	"github.com/go-rsx/rsxcore/rsx/register"
)

func newTestBatcher(multidraw bool) (*batcher, *register.File, *fake.Backend) {
	regs := register.New()
	be := fake.New(multidraw)
	b := newBatcher(regs, be, nil, nil, slog.Default())
	return b, regs, be
}

// TestBatchCoalescesContiguousStripRanges: adjacent (first,count) ranges
// on a strip primitive merge into a single contiguous draw.
func TestBatchCoalescesContiguousStripRanges(t *testing.T) {
	b, _, be := newTestBatcher(true)

	b.route(RegBeginEnd, uint32(register.TriangleStrip))
	b.route(RegDrawArrays, (3<<24)|0) // first=0, count=3
	b.route(RegBeginEnd, 0)
	b.route(RegBeginEnd, uint32(register.TriangleStrip))
	b.route(RegDrawArrays, (3<<24)|3) // first=3, count=3 (contiguous)
	b.route(RegBeginEnd, 0)
	b.flush()

	if len(be.Draws) != 1 {
		t.Fatalf("got %d draw calls, want 1 (coalesced)", len(be.Draws))
	}
	r := be.Draws[0].Ranges
	if len(r) != 1 || r[0].First != 0 || r[0].Count != 6 {
		t.Errorf("ranges = %+v, want single [0,6)", r)
	}
}

// TestBatchSplitsNonContiguousStripRanges: a gap between ranges on a
// non-disjoint primitive forces two separate BEGIN/END pairs.
func TestBatchSplitsNonContiguousStripRanges(t *testing.T) {
	b, _, be := newTestBatcher(true)

	b.route(RegBeginEnd, uint32(register.TriangleStrip))
	b.route(RegDrawArrays, (3<<24)|0) // first=0, count=3
	b.route(RegBeginEnd, 0)
	b.route(RegBeginEnd, uint32(register.TriangleStrip))
	b.route(RegDrawArrays, (3<<24)|10) // first=10, count=3 (gap)
	b.route(RegBeginEnd, 0)
	b.flush()

	if len(be.Draws) != 2 {
		t.Fatalf("got %d draw calls, want 2 (split at the gap)", len(be.Draws))
	}
	if be.Draws[0].Ranges[0].First != 0 || be.Draws[0].Ranges[0].Count != 3 {
		t.Errorf("first range = %+v, want [0,3)", be.Draws[0].Ranges[0])
	}
	if be.Draws[1].Ranges[0].First != 10 || be.Draws[1].Ranges[0].Count != 3 {
		t.Errorf("second range = %+v, want [10,3)", be.Draws[1].Ranges[0])
	}
}

// TestBatchDisjointPrimitiveGapsStayInOneDraw: a disjoint primitive admits
// arbitrary range gaps, so both ranges ride a single multidraw call.
func TestBatchDisjointPrimitiveGapsStayInOneDraw(t *testing.T) {
	b, _, be := newTestBatcher(true)

	b.route(RegBeginEnd, uint32(register.Triangles))
	b.route(RegDrawArrays, (5<<24)|0)
	b.route(RegDrawArrays, (5<<24)|100)
	b.route(RegBeginEnd, 0)
	b.flush()

	if len(be.Draws) != 1 {
		t.Fatalf("got %d draws, want 1 (disjoint primitive multidraw)", len(be.Draws))
	}
	r := be.Draws[0].Ranges
	if len(r) != 2 || r[0].First != 0 || r[1].First != 100 {
		t.Errorf("ranges = %+v, want [0,5) and [100,5) preserved", r)
	}
}

// TestBatchPrimitiveChangeFlushes: a BEGIN with a different topology cannot
// join the live batch and flushes it first.
func TestBatchPrimitiveChangeFlushes(t *testing.T) {
	b, _, be := newTestBatcher(true)

	b.route(RegBeginEnd, uint32(register.Triangles))
	b.route(RegDrawArrays, (5<<24)|0)
	b.route(RegBeginEnd, 0)
	b.route(RegBeginEnd, uint32(register.Lines))
	b.route(RegDrawArrays, (2<<24)|0)
	b.route(RegBeginEnd, 0)
	b.flush()

	if len(be.Draws) != 2 {
		t.Fatalf("got %d draws, want 2 (one per primitive)", len(be.Draws))
	}
	if be.Draws[0].Primitive != int(register.Triangles) {
		t.Errorf("first draw primitive = %d, want triangles", be.Draws[0].Primitive)
	}
	if be.Draws[1].Primitive != int(register.Lines) {
		t.Errorf("second draw primitive = %d, want lines", be.Draws[1].Primitive)
	}
}

// TestBatchSuppressesNoopSkippableWrite: a repeated write of the same
// value to a skippable register window is absorbed without forcing a
// flush while a batch is open.
func TestBatchSuppressesNoopSkippableWrite(t *testing.T) {
	b, regs, be := newTestBatcher(true)
	texReg := uint32(0x1a00 >> 2)

	regs.Decode(texReg, 0xcafe, true) // seed the current value directly
	b.route(RegBeginEnd, uint32(register.Triangles))
	b.route(RegDrawArrays, (5<<24)|0)

	suppressed := b.route(texReg, 0xcafe)
	if !suppressed {
		t.Fatal("expected a repeated skippable write to be suppressed")
	}
	if len(be.Draws) != 0 {
		t.Errorf("no-op write should not force a flush, got %d draws", len(be.Draws))
	}

	b.route(RegBeginEnd, 0)
	b.flush()
	if len(be.Draws) != 1 {
		t.Errorf("END should still flush exactly once, got %d draws", len(be.Draws))
	}
}

// TestBatchFlushesOnChangedSkippableWrite: a skippable-window write that
// actually changes the register's value forces a flush instead.
func TestBatchFlushesOnChangedSkippableWrite(t *testing.T) {
	b, regs, be := newTestBatcher(true)
	texReg := uint32(0x1a00 >> 2)

	regs.Decode(texReg, 0xcafe, true)
	b.route(RegBeginEnd, uint32(register.Triangles))
	b.route(RegDrawArrays, (5<<24)|0)

	suppressed := b.route(texReg, 0xbeef)
	if suppressed {
		t.Error("a value-changing write to a skippable register should not be suppressed")
	}
	if len(be.Draws) != 1 {
		t.Errorf("changed write should force a flush, got %d draws", len(be.Draws))
	}
}

// TestBatchHangingBeginReopens: flushing while a BEGIN is still open
// re-emits a fresh BEGIN so subsequent writes stay inside a primitive.
func TestBatchHangingBeginReopens(t *testing.T) {
	b, regs, be := newTestBatcher(true)

	b.route(RegBeginEnd, uint32(register.Triangles))
	b.route(RegDrawArrays, (5<<24)|0)
	b.flush()

	if len(be.Draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(be.Draws))
	}
	if !b.active {
		t.Error("batch should reopen after flushing through a hanging BEGIN")
	}
	if regs.Clause.Primitive != register.Triangles {
		t.Errorf("reopened primitive = %v, want triangles", regs.Clause.Primitive)
	}
}

func TestIsSkippable(t *testing.T) {
	if !isSkippable(0x1a00 >> 2) {
		t.Error("expected texture offset register to be skippable")
	}
	if isSkippable(0) {
		t.Error("register 0 should not be in any skippable window")
	}
}
