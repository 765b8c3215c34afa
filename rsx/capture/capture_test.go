/*
 * RSX - Frame capture sink test cases.
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

package capture

import "testing"

func TestInactiveSinkRecordsNothing(t *testing.T) {
	s := New()

	s.RecordWrite(0x10, 1)
	s.RecordDraw(DrawState{VertexCount: 3})

	if len(s.Trace) != 0 || len(s.Draws) != 0 {
		t.Errorf("inactive sink recorded trace=%d draws=%d, want none",
			len(s.Trace), len(s.Draws))
	}
}

func TestActiveSinkRecordsTraceInOrder(t *testing.T) {
	s := New()
	s.Start()

	s.RecordWrite(0x10, 1)
	s.RecordWrite(0x20, 2)
	s.RecordDraw(DrawState{VertexCount: 3, Name: "draw0"})

	if len(s.Trace) != 2 {
		t.Fatalf("trace length = %d, want 2", len(s.Trace))
	}
	if s.Trace[0].Reg != 0x10 || s.Trace[1].Reg != 0x20 {
		t.Errorf("trace order wrong: %+v", s.Trace)
	}
	if len(s.Draws) != 1 || s.Draws[0].VertexCount != 3 {
		t.Errorf("draws = %+v, want one with 3 vertices", s.Draws)
	}
}

func TestStartClearsPreviousRecording(t *testing.T) {
	s := New()
	s.Start()
	s.RecordWrite(0x10, 1)
	s.Stop()

	s.Start()
	if len(s.Trace) != 0 {
		t.Error("Start should clear the previous trace")
	}
}

func TestStopFreezesRecording(t *testing.T) {
	s := New()
	s.Start()
	s.RecordWrite(0x10, 1)
	s.Stop()

	s.RecordWrite(0x20, 2)
	if len(s.Trace) != 1 {
		t.Errorf("trace length = %d, want 1 (stopped sink must not grow)", len(s.Trace))
	}
}
