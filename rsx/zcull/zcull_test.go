/*
 * RSX - ZCULL occlusion report controller test cases.
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

package zcull

import "testing"

type fakeBackend struct {
	result       uint32
	beginCount   int
	endCount     int
	discardCount int
}

func newFakeBackend() *fakeBackend { return &fakeBackend{} }

func (b *fakeBackend) BeginOcclusionQuery(q *Query) { b.beginCount++ }
func (b *fakeBackend) EndOcclusionQuery(q *Query) { b.endCount++ }
func (b *fakeBackend) CheckOcclusionQueryStatus(q *Query) bool { return true }
func (b *fakeBackend) GetOcclusionQueryResult(q *Query) uint32 { return b.result }
func (b *fakeBackend) DiscardOcclusionQuery(q *Query) { b.discardCount++ }

type fakeMem struct {
	writes []uint32 // every written address, in order
	values map[uint32]uint32
}

func newFakeMem() *fakeMem {
	return &fakeMem{values: make(map[uint32]uint32)}
}

func (m *fakeMem) Write32(addr, value uint32) error {
	m.writes = append(m.writes, addr)
	m.values[addr] = value
	return nil
}

// sinkOrder filters the raw write log down to the given report sinks,
// dropping the padding and timer words each report also writes.
func (m *fakeMem) sinkOrder(sinks ...uint32) []uint32 {
	want := make(map[uint32]bool, len(sinks))
	for _, s := range sinks {
		want[s] = true
	}
	var out []uint32
	for _, addr := range m.writes {
		if want[addr] {
			out = append(out, addr)
		}
	}
	return out
}

func newTestController(be *fakeBackend, mem *fakeMem, poolSize int) *Controller {
	return New(be, mem, Config{PoolSize: poolSize, MinCyclesDelay: 1, MaxZcullCyclesDelay: 4})
}

func TestSetActiveGatedByEnabled(t *testing.T) {
	be := newFakeBackend()
	c := newTestController(be, newFakeMem(), 2)

	c.SetActive(true) // enabled is false by default
	if be.beginCount != 0 {
		t.Error("SetActive(true) should be a no-op while disabled")
	}
}

func TestSetActiveDiscardsWhenNoDraws(t *testing.T) {
	be := newFakeBackend()
	c := newTestController(be, newFakeMem(), 2)
	c.SetEnabled(true)

	c.SetActive(true)
	c.SetActive(false) // no OnDraw call: num_draws == 0

	if be.discardCount != 1 {
		t.Errorf("discardCount = %d, want 1", be.discardCount)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 (discarded, not enqueued)", c.PendingCount())
	}
}

func TestSetActiveEnqueuesPendingStubWhenDrawsOccurred(t *testing.T) {
	be := newFakeBackend()
	c := newTestController(be, newFakeMem(), 2)
	c.SetEnabled(true)

	c.SetActive(true)
	c.OnDraw()
	c.SetActive(false)

	if be.endCount != 1 {
		t.Errorf("endCount = %d, want 1", be.endCount)
	}
	if c.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1 (stub awaiting claim)", c.PendingCount())
	}
}

// TestReadReportOrdering: pending writes retire in the exact order their
// ReadReport was invoked.
func TestReadReportOrdering(t *testing.T) {
	be := newFakeBackend()
	be.result = 1
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()

	c.ReadReport(0x1000, ZPassPixelCnt)
	c.OnDraw()
	c.ReadReport(0x2000, ZPassPixelCnt)
	c.OnDraw()
	c.ReadReport(0x3000, ZPassPixelCnt)

	c.Sync()

	want := []uint32{0x1000, 0x2000, 0x3000}
	got := mem.sinkOrder(want...)
	if len(got) != len(want) {
		t.Fatalf("got %d sink writes, want %d: %v", len(got), len(want), got)
	}
	for i, sink := range want {
		if got[i] != sink {
			t.Errorf("write %d targeted %#x, want %#x", i, got[i], sink)
		}
	}
}

// TestReadReportClaimsTrailingStub: disabling the active task leaves an
// unclaimed stub carrying the ended query; the next ReadReport claims it,
// the stub forwards its emission to the newest writer, and exactly the
// terminal writer emits to guest memory.
func TestReadReportClaimsTrailingStub(t *testing.T) {
	be := newFakeBackend()
	be.result = 9
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()
	c.SetActive(false) // stub: query ended with draws, sink not yet known

	if c.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 (stub)", c.PendingCount())
	}

	c.ReadReport(0x2000, ZPassPixelCnt)

	if c.PendingCount() != 2 {
		t.Fatalf("pending = %d, want 2 (claimed stub + terminal)", c.PendingCount())
	}

	c.Sync()

	got := mem.sinkOrder(0x2000)
	if len(got) != 1 {
		t.Fatalf("sink received %d writes, want exactly 1 (terminal only)", len(got))
	}
	if mem.values[0x2000] != 0xFFFF {
		t.Errorf("sink value = %#x, want 0xFFFF (stub's query result forwarded)", mem.values[0x2000])
	}
}

func TestNormalizeZPassPixelCntNonzero(t *testing.T) {
	be := newFakeBackend()
	be.result = 42
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()

	c.ReadReport(0x100, ZPassPixelCnt)
	c.Sync()

	if mem.values[0x100] != 0xFFFF {
		t.Errorf("got %#x, want 0xFFFF for nonzero ZPASS result", mem.values[0x100])
	}
}

func TestNormalizeZPassPixelCntZero(t *testing.T) {
	be := newFakeBackend()
	be.result = 0
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()

	c.ReadReport(0x100, ZPassPixelCnt)
	c.Sync()

	if mem.values[0x100] != 0 {
		t.Errorf("got %#x, want 0 for zero ZPASS result", mem.values[0x100])
	}
}

func TestNormalizeZCullStats3(t *testing.T) {
	be := newFakeBackend()
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()

	be.result = 0
	c.ReadReport(0x200, ZCullStats3)
	c.Sync()
	if mem.values[0x200] != 0xFFFF {
		t.Errorf("got %#x, want 0xFFFF for zero ZCULL_STATS3 result", mem.values[0x200])
	}
}

func TestNormalizeOtherStatsSentinel(t *testing.T) {
	be := newFakeBackend()
	be.result = 123
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()

	c.ReadReport(0x300, ZCullStats)
	c.Sync()
	if mem.values[0x300] != sentinelValue {
		t.Errorf("got %#x, want sentinel %#x", mem.values[0x300], uint32(sentinelValue))
	}
}

// TestReadBarrierTriggersSyncForTargetedSink: a barrier over a range
// containing a pending sink drains the queue before returning.
func TestReadBarrierTriggersSyncForTargetedSink(t *testing.T) {
	be := newFakeBackend()
	be.result = 1
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()
	c.ReadReport(0x5000, ZPassPixelCnt)

	if c.PendingCount() == 0 {
		t.Fatal("expected a pending write before the barrier")
	}

	c.ReadBarrier(0x4000, 0x2000) // [0x4000, 0x6000) contains 0x5000
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after barrier-triggered sync", c.PendingCount())
	}
	if _, wrote := mem.values[0x5000]; !wrote {
		t.Error("expected sink to receive a write after the barrier-triggered sync")
	}
}

func TestReadBarrierNoMatchDoesNotSync(t *testing.T) {
	be := newFakeBackend()
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()
	c.ReadReport(0x5000, ZPassPixelCnt)

	c.ReadBarrier(0x9000, 0x10)
	if c.PendingCount() == 0 {
		t.Error("pending write should survive a barrier targeting an unrelated range")
	}
}

// TestAllocateOverflowDiscardsPendingWrites: when the pool stays full
// after an update pass, allocation discards all pending writes and seeds
// the statistics sentinel.
func TestAllocateOverflowDiscardsPendingWrites(t *testing.T) {
	be := newFakeBackend()
	mem := newFakeMem()
	c := newTestController(be, mem, 1)
	c.SetEnabled(true)

	c.SetActive(true)
	c.OnDraw()
	c.SetActive(false) // ends with draws > 0: leaves a pending stub occupying the only slot

	if c.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 (stub)", c.PendingCount())
	}

	c.SetActive(true) // allocateNewQuery must overflow: the only slot is still pending

	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after overflow discard", c.PendingCount())
	}
}

func TestClearAdvancesTagAndDropsTrailingUnclaimed(t *testing.T) {
	be := newFakeBackend()
	mem := newFakeMem()
	c := newTestController(be, mem, 2)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()
	c.SetActive(false) // leaves a sink==0 stub

	if c.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", c.PendingCount())
	}
	c.Clear()
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after Clear discards the trailing stub", c.PendingCount())
	}
}

func TestSyncResetsCyclesDelayToMinimum(t *testing.T) {
	be := newFakeBackend()
	mem := newFakeMem()
	c := newTestController(be, mem, 4)
	c.SetEnabled(true)
	c.SetActive(true)
	c.OnDraw()
	c.ReadReport(0x10, ZPassPixelCnt)

	c.cyclesDelay = 999
	c.Sync()
	if c.cyclesDelay != c.minCyclesDelay {
		t.Errorf("cyclesDelay = %d, want reset to min %d", c.cyclesDelay, c.minCyclesDelay)
	}
}
