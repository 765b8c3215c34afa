/*
 * RSX - Frame capture sink.
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

// Package capture implements the frame-capture sink: an optional,
// append-only record of decoded draw states and the raw (reg, value)
// trace that produced them.
package capture

// RegisterWrite is one decoded (reg, value) pair in the linear trace.
type RegisterWrite struct {
	Reg   uint32
	Value uint32
}

// DrawState is one draw-state snapshot. IndexBytes carries the raw index
// buffer bytes for an indexed draw.
type DrawState struct {
	State        map[uint32]uint32
	ColorBuffer  []byte
	DepthStencil []byte
	VertexCount  uint32
	IndexBytes   []byte
	Programs     []string
	Name         string
}

// Sink accumulates draw states and the register trace while capture is
// active.
type Sink struct {
	Active bool
	Draws  []DrawState
	Trace  []RegisterWrite
}

// New returns an inactive sink.
func New() *Sink {
	return &Sink{}
}

// Start begins recording.
func (s *Sink) Start() {
	s.Active = true
	s.Draws = s.Draws[:0]
	s.Trace = s.Trace[:0]
}

// Stop ends recording; accumulated data remains readable.
func (s *Sink) Stop() {
	s.Active = false
}

// RecordWrite appends one decoded register write to the trace, a no-op
// when capture is inactive.
func (s *Sink) RecordWrite(reg, value uint32) {
	if !s.Active {
		return
	}
	s.Trace = append(s.Trace, RegisterWrite{Reg: reg, Value: value})
}

// RecordDraw appends a draw-state snapshot, a no-op when capture is
// inactive.
func (s *Sink) RecordDraw(d DrawState) {
	if !s.Active {
		return
	}
	s.Draws = append(s.Draws, d)
}
