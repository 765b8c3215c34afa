/*
 * RSX - Method-register file.
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

// Package register implements the method-register file: a bank of
// emulated GPU command registers plus the draw clause they accumulate.
package register

import (
	"encoding/binary"
	"math"
)

// DrawCommand tags what kind of draw the clause currently describes.
type DrawCommand int

const (
	DrawNone DrawCommand = iota
	DrawArray
	DrawIndexed
	DrawInlinedArray
)

// Primitive enumerates the primitive topologies a BEGIN/END pair can
// name. Zero is not a primitive: a BEGIN_END write of 0 is an END.
type Primitive int

const (
	Points Primitive = iota + 1
	Lines
	LineStrip
	LineLoop
	Triangles
	TriangleStrip
	TriangleFan
	Quads
	QuadStrip
	Polygon
)

// IsDisjoint reports whether (first, count) ranges for this primitive can
// be concatenated independently without corrupting topology. Polygon is
// treated conservatively as non-disjoint.
func (p Primitive) IsDisjoint() bool {
	switch p {
	case LineLoop, LineStrip, Polygon, QuadStrip, TriangleFan, TriangleStrip:
		return false
	default:
		return true
	}
}

// FirstCount is a single (first, count) vertex range.
type FirstCount struct {
	First uint32
	Count uint32
}

// DrawClause is the draw-state accumulated by register writes between a
// BEGIN and the point the FIFO interpreter flushes it.
type DrawClause struct {
	Command            DrawCommand
	Primitive          Primitive
	FirstCountCommands []FirstCount
	InlineVertexArray  []byte
	ImmediateDraw      bool
}

// Reset clears the clause back to its idle state, called once a flush has
// been fully emitted.
func (c *DrawClause) Reset() {
	c.Command = DrawNone
	c.FirstCountCommands = c.FirstCountCommands[:0]
	c.InlineVertexArray = c.InlineVertexArray[:0]
	c.ImmediateDraw = false
}

// PushBuffer is one of the 16 immediate-mode vertex attribute slots.
type PushBuffer struct {
	Size        uint32
	Type        uint32
	VertexCount uint32
	Data        []byte
}

// AppendVertexData grows the push buffer with one element's worth of raw
// bytes: big-endian when byteSwapped is set, little-endian otherwise. The
// buffer does not record which order an element was stored in.
func (p *PushBuffer) AppendVertexData(value uint32, byteSwapped bool) {
	var buf [4]byte
	if byteSwapped {
		binary.BigEndian.PutUint32(buf[:], value)
	} else {
		binary.LittleEndian.PutUint32(buf[:], value)
	}
	p.Data = append(p.Data, buf[:]...)
	p.VertexCount++
}

// Handler is a side-effect function run after a register's raw value has
// been stored.
type Handler func(f *File, reg, value uint32)

// File is the method-register file: ~4,000 addressable registers plus the
// draw clause and push buffers they feed. Dispatch is a sparse map, since
// only a fraction of the register ids carry side effects.
type File struct {
	regs        map[uint32]uint32
	handlers    map[uint32]Handler
	Clause      DrawClause
	PushBuffers [16]PushBuffer
}

// Draw-path method ids whose side effects the register file installs
// itself; the FIFO interpreter layers batching on top of these.
const (
	RegInlineArray  uint32 = 0x1810 >> 2
	RegVertexData4f uint32 = 0x1c00 >> 2 // 16 slots x 4 words
)

// New builds a register file with the draw-path side effects installed.
func New() *File {
	f := &File{
		regs:     make(map[uint32]uint32),
		handlers: make(map[uint32]Handler),
	}
	f.Register(RegInlineArray, func(f *File, _, value uint32) {
		f.AppendInlineVertexData(value)
	})
	for slot := uint32(0); slot < 16; slot++ {
		s := slot
		for w := uint32(0); w < 4; w++ {
			f.Register(RegVertexData4f+s*4+w, func(f *File, _, value uint32) {
				f.PushBuffers[s].AppendVertexData(value, false)
				f.Clause.ImmediateDraw = true
			})
		}
	}
	return f
}

// Register installs a side-effect handler for a register id.
func (f *File) Register(reg uint32, h Handler) {
	f.handlers[reg] = h
}

// Get returns the last value decoded into reg (0 if never written).
func (f *File) Get(reg uint32) uint32 {
	return f.regs[reg]
}

// Test reports whether writing value to reg would be a no-op, used by the
// draw batcher to suppress flushes on whitelisted register windows.
func (f *File) Test(reg, value uint32) bool {
	cur, ok := f.regs[reg]
	return ok && cur == value
}

// Decode stores value at reg and, unless the caller has already handled the
// write (the draw batcher may suppress it), invokes the registered handler.
// suppressHandler lets the batcher record the raw value without re-running
// side effects it has already accounted for.
func (f *File) Decode(reg, value uint32, suppressHandler bool) {
	f.regs[reg] = value
	if suppressHandler {
		return
	}
	if h, ok := f.handlers[reg]; ok {
		h(f, reg, value)
	}
}

// Begin starts a primitive. Disjointness is derived from the primitive on
// demand rather than cached here.
func (f *File) Begin(p Primitive) {
	f.Clause.Primitive = p
}

// PushBufferVertexCount returns the maximum vertex count across all 16
// push buffers, used to size an immediate draw when no explicit count was
// supplied.
func (f *File) PushBufferVertexCount() uint32 {
	var max uint32
	for i := range f.PushBuffers {
		if f.PushBuffers[i].VertexCount > max {
			max = f.PushBuffers[i].VertexCount
		}
	}
	return max
}

// AppendInlineVertexData appends one 32-bit word of inlined vertex data
// as its raw bit pattern in little-endian order, and tags the clause as an
// inlined-array draw.
func (f *File) AppendInlineVertexData(value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	f.Clause.InlineVertexArray = append(f.Clause.InlineVertexArray, buf[:]...)
	f.Clause.Command = DrawInlinedArray
}

// AppendFirstCount appends a raw (first, count) range in arrival order.
func (f *File) AppendFirstCount(first, count uint32) {
	f.Clause.FirstCountCommands = append(f.Clause.FirstCountCommands, FirstCount{First: first, Count: count})
}

// Snapshot copies the raw register bank, used by the frame-capture sink.
func (f *File) Snapshot() map[uint32]uint32 {
	out := make(map[uint32]uint32, len(f.regs))
	for reg, value := range f.regs {
		out[reg] = value
	}
	return out
}

// Register ids for the accessors below. The surface clip pair heads the
// surface configuration block; the viewport scale vector sits on its own.
const (
	RegSurfaceClipHorizontal uint32 = 0x0200 >> 2
	RegSurfaceClipVertical   uint32 = 0x0204 >> 2
	RegViewportScaleX        uint32 = 0x0af0 >> 2
	RegViewportScaleY        uint32 = 0x0af4 >> 2
	RegViewportScaleZ        uint32 = 0x0af8 >> 2
)

// SurfaceClipWidth returns the clip width packed into the high half of the
// horizontal clip word.
func (f *File) SurfaceClipWidth() uint32 {
	return f.regs[RegSurfaceClipHorizontal] >> 16
}

// SurfaceClipHeight returns the clip height packed into the high half of
// the vertical clip word.
func (f *File) SurfaceClipHeight() uint32 {
	return f.regs[RegSurfaceClipVertical] >> 16
}

// SurfaceClipOriginX returns the clip origin in the low half of the
// horizontal clip word.
func (f *File) SurfaceClipOriginX() uint32 {
	return f.regs[RegSurfaceClipHorizontal] & 0xffff
}

// SurfaceClipOriginY returns the clip origin in the low half of the
// vertical clip word.
func (f *File) SurfaceClipOriginY() uint32 {
	return f.regs[RegSurfaceClipVertical] & 0xffff
}

// ViewportScaleX returns the viewport scale vector's X component. The
// register holds the IEEE-754 bit pattern of the float.
func (f *File) ViewportScaleX() float32 {
	return math.Float32frombits(f.regs[RegViewportScaleX])
}

// ViewportScaleY returns the viewport scale vector's Y component.
func (f *File) ViewportScaleY() float32 {
	return math.Float32frombits(f.regs[RegViewportScaleY])
}

// ViewportScaleZ returns the viewport scale vector's Z component.
func (f *File) ViewportScaleZ() float32 {
	return math.Float32frombits(f.regs[RegViewportScaleZ])
}
