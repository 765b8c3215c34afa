/*
 * RSX - Rendering backend interface.
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

// Package backend defines the abstract rendering capabilities the FIFO
// interpreter calls into. The concrete renderer lives elsewhere; this
// package only names the contract and, in its fake subpackage, a
// recording test double.
package backend

import "github.com/go-rsx/rsxcore/rsx/zcull"

// Backend is the full set of hooks the interpreter drives. It embeds
// zcull.Backend so one implementation satisfies both the draw pipeline and
// the occlusion-query controller.
type Backend interface {
	zcull.Backend

	OnInitThread()
	OnExit()
	OnTask()

	// DoLocalTask is the per-loop pulse; idle reports whether the FIFO was
	// empty this iteration.
	DoLocalTask(idle bool)

	CopyRenderTargetsToMemory()
	CopyDepthStencilBufferToMemory()

	SupportsMultidraw() bool
	SupportsNativeUI() bool

	// Draw is the actual draw call: one BEGIN/END span, possibly covering
	// several coalesced (first,count) ranges.
	Draw(primitive int, ranges []Range, indexed bool)
}

// Range is a (first, count) vertex span.
type Range struct {
	First uint32
	Count uint32
}
