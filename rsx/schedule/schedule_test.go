/*
 * RSX - Internal task delay queue test cases.
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

package schedule

import "testing"

type recorder struct {
	fired []string
}

func (r *recorder) cb(name string) Callback {
	return func() { r.fired = append(r.fired, name) }
}

func TestAddZeroDelayFiresImmediately(t *testing.T) {
	q := New()
	r := &recorder{}

	q.Add("a", 0, r.cb("a"))

	if len(r.fired) != 1 || r.fired[0] != "a" {
		t.Errorf("fired = %v, want [a]", r.fired)
	}
	if !q.Empty() {
		t.Error("queue should stay empty after a zero-delay add")
	}
}

func TestAdvanceFiresInDelayOrder(t *testing.T) {
	q := New()
	r := &recorder{}

	q.Add("c", 30, r.cb("c"))
	q.Add("a", 10, r.cb("a"))
	q.Add("b", 20, r.cb("b"))

	q.Advance(10)
	if len(r.fired) != 1 || r.fired[0] != "a" {
		t.Fatalf("after 10 ticks fired = %v, want [a]", r.fired)
	}
	q.Advance(10)
	q.Advance(10)
	want := []string{"a", "b", "c"}
	if len(r.fired) != 3 {
		t.Fatalf("fired = %v, want %v", r.fired, want)
	}
	for i := range want {
		if r.fired[i] != want[i] {
			t.Errorf("fired[%d] = %s, want %s", i, r.fired[i], want[i])
		}
	}
	if !q.Empty() {
		t.Error("queue should be empty after all tasks fired")
	}
}

func TestAdvanceFiresSimultaneousTasks(t *testing.T) {
	q := New()
	r := &recorder{}

	q.Add("a", 5, r.cb("a"))
	q.Add("b", 5, r.cb("b"))

	q.Advance(5)
	if len(r.fired) != 2 {
		t.Errorf("fired = %v, want both tasks at the same tick", r.fired)
	}
}

func TestCancelRemovesPendingTask(t *testing.T) {
	q := New()
	r := &recorder{}

	q.Add("a", 10, r.cb("a"))
	q.Add("b", 20, r.cb("b"))
	q.Cancel("a")

	q.Advance(20)
	if len(r.fired) != 1 || r.fired[0] != "b" {
		t.Errorf("fired = %v, want [b] (a cancelled)", r.fired)
	}
}

func TestCancelHeadPreservesRelativeTimes(t *testing.T) {
	q := New()
	r := &recorder{}

	q.Add("a", 10, r.cb("a"))
	q.Add("b", 25, r.cb("b"))
	q.Cancel("a")

	q.Advance(24)
	if len(r.fired) != 0 {
		t.Fatalf("fired = %v, want none before b's absolute delay", r.fired)
	}
	q.Advance(1)
	if len(r.fired) != 1 || r.fired[0] != "b" {
		t.Errorf("fired = %v, want [b] at 25 ticks", r.fired)
	}
}

func TestCancelMiddlePreservesTail(t *testing.T) {
	q := New()
	r := &recorder{}

	q.Add("a", 10, r.cb("a"))
	q.Add("b", 20, r.cb("b"))
	q.Add("c", 30, r.cb("c"))
	q.Cancel("b")

	q.Advance(10)
	q.Advance(20)
	want := []string{"a", "c"}
	if len(r.fired) != 2 || r.fired[0] != want[0] || r.fired[1] != want[1] {
		t.Errorf("fired = %v, want %v", r.fired, want)
	}
}
