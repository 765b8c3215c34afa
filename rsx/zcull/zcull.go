/*
 * RSX - ZCULL occlusion report controller.
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

// Package zcull implements the ZCULL occlusion-query controller: query
// pool lifecycle, a pending-writes queue with forward chaining,
// tag-scoped statistics buckets, and read barriers.
package zcull

import (
	"log/slog"
	"sync"
)

// StatType names the kind of occlusion report a read_report call asks for.
type StatType int

const (
	ZPassPixelCnt StatType = iota
	ZCullStats
	ZCullStats1
	ZCullStats2
	ZCullStats3
)

const sentinelValue = 0xFFFFFFFF

// Query is one slot of the fixed occlusion-query pool.
type Query struct {
	Active        bool
	Pending       bool
	Owned         bool
	NumDraws      uint32
	Result        uint32
	SyncTimestamp uint64
}

// PendingWrite is a queued report waiting to retire to guest memory.
// Forwarder, when set, is the later entry that emits to the sink on this
// entry's behalf; this entry's query result still folds into the
// statistics bucket both read from.
type PendingWrite struct {
	Sink       uint32
	CounterTag uint32
	Type       StatType
	DueTSC     uint64
	Query      *Query
	Forwarder  *PendingWrite
}

// Backend is the subset of the rendering backend the ZCULL controller
// drives.
type Backend interface {
	BeginOcclusionQuery(q *Query)
	EndOcclusionQuery(q *Query)
	CheckOcclusionQueryStatus(q *Query) bool
	GetOcclusionQueryResult(q *Query) uint32
	DiscardOcclusionQuery(q *Query)
}

// MemWriter is where a retired report's value lands in guest memory.
type MemWriter interface {
	Write32(addr, value uint32) error
}

// Controller owns the occlusion-query pool and the pending-write queue.
type Controller struct {
	backend Backend
	mem     MemWriter

	pool    []Query
	pending []*PendingWrite
	current *Query

	tsc             uint64
	statisticsTagID uint32
	statisticsMap   map[uint32]uint32

	cyclesDelay         uint64
	minCyclesDelay      uint64
	maxZcullCyclesDelay uint64

	enabled bool
	active  bool

	statsWarnOnce sync.Once
}

// Config tunes the controller's pool size and timing.
type Config struct {
	PoolSize            int
	MinCyclesDelay      uint64
	MaxZcullCyclesDelay uint64
}

// New builds a controller with an empty pool of the configured size.
func New(backend Backend, mem MemWriter, cfg Config) *Controller {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 128
	}
	if cfg.MinCyclesDelay == 0 {
		cfg.MinCyclesDelay = 8
	}
	if cfg.MaxZcullCyclesDelay == 0 {
		cfg.MaxZcullCyclesDelay = 512
	}
	return &Controller{
		backend:             backend,
		mem:                 mem,
		pool:                make([]Query, cfg.PoolSize),
		statisticsMap:       make(map[uint32]uint32),
		cyclesDelay:         cfg.MinCyclesDelay,
		minCyclesDelay:      cfg.MinCyclesDelay,
		maxZcullCyclesDelay: cfg.MaxZcullCyclesDelay,
	}
}

// SetEnabled toggles whether occlusion queries are honored at all.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// SetActive transitions the currently active task, gated by enabled.
// Exactly one task is active at a time.
func (c *Controller) SetActive(state bool) {
	if !c.enabled {
		return
	}
	if state {
		if c.current == nil {
			q := c.allocateNewQuery()
			c.beginQuery(q)
		}
		c.active = true
		return
	}

	c.active = false
	if c.current == nil {
		return
	}
	q := c.current
	c.current = nil
	if q.NumDraws > 0 {
		c.endQuery(q)
		c.pending = append(c.pending, &PendingWrite{Query: q})
	} else {
		c.discardQuery(q)
	}
}

func (c *Controller) beginQuery(q *Query) {
	q.Active = true
	q.NumDraws = 0
	c.current = q
	c.backend.BeginOcclusionQuery(q)
}

func (c *Controller) endQuery(q *Query) {
	q.Active = false
	q.Pending = true
	q.SyncTimestamp = c.tsc
	c.backend.EndOcclusionQuery(q)
}

func (c *Controller) discardQuery(q *Query) {
	*q = Query{}
	c.backend.DiscardOcclusionQuery(q)
}

// OnDraw accumulates one draw into the active query, if any.
func (c *Controller) OnDraw() {
	if c.current != nil {
		c.current.NumDraws++
	}
}

// allocateNewQuery linearly scans the fixed pool for a free slot. When
// the pool is full it advances the logical clock and calls Update to
// retire writes, then retries once before declaring overflow.
func (c *Controller) allocateNewQuery() *Query {
	if q := c.scanFreeSlot(); q != nil {
		q.Pending = false
		return q
	}

	c.tsc += c.maxZcullCyclesDelay
	c.Update()

	if q := c.scanFreeSlot(); q != nil {
		q.Pending = false
		return q
	}

	c.overflow()
	return &c.pool[0]
}

func (c *Controller) scanFreeSlot() *Query {
	for i := range c.pool {
		if !c.pool[i].Active && !c.pool[i].Pending {
			return &c.pool[i]
		}
	}
	return nil
}

// overflow handles a second unsuccessful pool scan: log, discard all
// pending writes, and seed the current statistics bucket.
func (c *Controller) overflow() {
	slog.Warn("zcull: query pool overflow, discarding pending writes")
	for _, w := range c.pending {
		if w.Query != nil {
			c.discardQuery(w.Query)
		}
	}
	c.pending = c.pending[:0]
	c.statisticsMap[c.statisticsTagID] = 1
}

// ReadReport enqueues a pending write for sink. If a ZPASS_PIXEL_CNT
// query is currently active, it is ended and a new one begun so
// subsequent draws keep accumulating. Other types ride the pipeline with
// a null query and copy the last result through.
func (c *Controller) ReadReport(sink uint32, typ StatType) {
	if typ == ZPassPixelCnt && c.current != nil {
		q := c.current
		q.Owned = true
		c.endQuery(q)
		c.pending = append(c.pending, &PendingWrite{Query: q})
		c.beginQuery(c.allocateNewQuery())
	} else {
		c.pending = append(c.pending, &PendingWrite{})
	}

	// Back-propagate: walk from the tail claiming unclaimed stubs (left
	// behind by SetActive(false) with draws outstanding). Each gets this
	// report's sink/tag/deadline and forwards its emission to the newest
	// writer, which becomes the terminal one for the chain. Stop at the
	// first already-claimed writer.
	terminal := c.pending[len(c.pending)-1]
	for i := len(c.pending) - 1; i >= 0; i-- {
		w := c.pending[i]
		if w.Sink != 0 {
			break
		}
		w.Sink = sink
		w.CounterTag = c.statisticsTagID
		w.DueTSC = c.tsc + c.cyclesDelay
		w.Type = typ
		if w != terminal {
			w.Forwarder = terminal
			if w.Query != nil {
				w.Query.Owned = true
			}
		}
	}
}

// normalize maps a raw counter value to the per-type wire value.
func normalize(typ StatType, value uint32) uint32 {
	switch typ {
	case ZPassPixelCnt:
		if value != 0 {
			return 0xFFFF
		}
		return 0
	case ZCullStats3:
		if value != 0 {
			return 0
		}
		return 0xFFFF
	default:
		return sentinelValue
	}
}

// write emits {value, padding=0, timer} to the sink.
func (c *Controller) write(w *PendingWrite, timestamp uint64, value uint32) {
	if w.Type != ZPassPixelCnt && w.Type != ZCullStats3 {
		c.statsWarnOnce.Do(func() {
			slog.Warn("zcull: unimplemented statistics type, emitting sentinel", slog.Int("type", int(w.Type)))
		})
	}
	_ = c.mem.Write32(w.Sink, normalize(w.Type, value))
	_ = c.mem.Write32(w.Sink+4, 0)
	_ = c.mem.Write32(w.Sink+8, uint32(timestamp))
}

// retire resolves one claimed pending write: fold its query's result into
// the statistics bucket for its tag (the bucket only needs one hit; later
// queries under the same tag are discarded unread), and, if it is a
// terminal writer (no forwarder), emit the bucket's value to guest memory.
func (c *Controller) retire(w *PendingWrite) {
	result := c.statisticsMap[w.CounterTag]
	if q := w.Query; q != nil {
		if result == 0 && q.NumDraws > 0 {
			q.Result = c.backend.GetOcclusionQueryResult(q)
			result += q.Result
			c.statisticsMap[w.CounterTag] = result
		} else {
			c.backend.DiscardOcclusionQuery(q)
		}
		q.Pending = false
		*q = Query{}
	}
	if w.Forwarder == nil {
		c.write(w, c.tsc, result)
	}
}

// Sync drains all claimed pending writes in order.
func (c *Controller) Sync() {
	var trailing []*PendingWrite
	for _, w := range c.pending {
		if w.Sink == 0 {
			trailing = append(trailing, w)
			continue
		}
		c.retire(w)
	}
	c.pending = trailing

	c.pruneStatistics()
	c.cyclesDelay = c.minCyclesDelay
}

func (c *Controller) pruneStatistics() {
	for tag := range c.statisticsMap {
		if tag != c.statisticsTagID {
			delete(c.statisticsMap, tag)
		}
	}
}

// Update advances the logical clock by one and retires due writers from
// the front of the queue. A writer that is not yet due is still retired
// when its query's status check reports completion; the walk stops
// (back-pressure) at the first writer that is neither due nor complete.
func (c *Controller) Update() {
	c.tsc++

	var prevTag uint32
	havePrevTag := false

	i := 0
	for ; i < len(c.pending); i++ {
		w := c.pending[i]
		if w.Sink == 0 {
			break
		}
		if havePrevTag && w.CounterTag != prevTag && prevTag != c.statisticsTagID {
			delete(c.statisticsMap, prevTag)
		}
		prevTag = w.CounterTag
		havePrevTag = true

		if c.tsc < w.DueTSC {
			if w.Query == nil || !c.backend.CheckOcclusionQueryStatus(w.Query) {
				break
			}
		}
		c.retire(w)
	}
	c.pending = c.pending[i:]
}

// ReadBarrier forces a full sync if any pending writer targets a sink in
// [addr, addr+length).
func (c *Controller) ReadBarrier(addr, length uint32) {
	for _, w := range c.pending {
		if w.Sink >= addr && w.Sink < addr+length {
			c.Sync()
			return
		}
	}
}

// Clear advances the statistics epoch, discarding any trailing unclaimed
// writers.
func (c *Controller) Clear() {
	c.statisticsTagID++
	delete(c.statisticsMap, c.statisticsTagID)

	kept := c.pending[:0]
	for _, w := range c.pending {
		if w.Sink != 0 {
			kept = append(kept, w)
		}
	}
	c.pending = kept
}

// PendingCount reports the current queue depth, for tests and diagnostics.
func (c *Controller) PendingCount() int {
	return len(c.pending)
}

// Active reports whether an occlusion task is currently accumulating draws.
func (c *Controller) Active() bool {
	return c.active
}
