/*
 * RSX - Recording backend for tests.
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

// Package fake provides a hand-written recording backend used by tests:
// a plain struct that implements the consumed interface and records what
// it was asked to do.
package fake

import (
	"github.com/go-rsx/rsxcore/rsx/backend"
	"github.com/go-rsx/rsxcore/rsx/zcull"
)

// DrawCall records one call into Draw.
type DrawCall struct {
	Primitive int
	Ranges    []backend.Range
	Indexed   bool
}

// Backend is a recording, no-op implementation of backend.Backend.
type Backend struct {
	Multidraw  bool
	NativeUI   bool
	Draws      []DrawCall
	InitCount  int
	ExitCount  int
	TaskCount  int
	IdlePulses int
	BusyPulses int

	nextResult uint32
}

// New builds a fake backend. multidraw controls whether the draw batcher
// is active.
func New(multidraw bool) *Backend {
	return &Backend{Multidraw: multidraw}
}

func (b *Backend) OnInitThread() { b.InitCount++ }
func (b *Backend) OnExit() { b.ExitCount++ }
func (b *Backend) OnTask() { b.TaskCount++ }

func (b *Backend) DoLocalTask(idle bool) {
	if idle {
		b.IdlePulses++
	} else {
		b.BusyPulses++
	}
}

func (b *Backend) CopyRenderTargetsToMemory() {}
func (b *Backend) CopyDepthStencilBufferToMemory() {}

func (b *Backend) SupportsMultidraw() bool { return b.Multidraw }
func (b *Backend) SupportsNativeUI() bool  { return b.NativeUI }

func (b *Backend) Draw(primitive int, ranges []backend.Range, indexed bool) {
	cp := make([]backend.Range, len(ranges))
	copy(cp, ranges)
	b.Draws = append(b.Draws, DrawCall{Primitive: primitive, Ranges: cp, Indexed: indexed})
}

// Occlusion query hooks (zcull.Backend).
func (b *Backend) BeginOcclusionQuery(q *zcull.Query) {}
func (b *Backend) EndOcclusionQuery(q *zcull.Query) {}

func (b *Backend) CheckOcclusionQueryStatus(q *zcull.Query) bool { return true }

// SetNextResult sets the value the next GetOcclusionQueryResult call returns.
func (b *Backend) SetNextResult(v uint32) { b.nextResult = v }

func (b *Backend) GetOcclusionQueryResult(q *zcull.Query) uint32 { return b.nextResult }

func (b *Backend) DiscardOcclusionQuery(q *zcull.Query) {}
