/*
 * RSX - Internal task delay queue.
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

// Package schedule provides the internal task delay queue the FIFO
// interpreter's idle path runs: a doubly-linked relative-time delay list
// keyed by an opaque cancellation token.
package schedule

// Callback runs when a scheduled task's delay elapses.
type Callback func()

type task struct {
	key  any
	time int
	cb   Callback
	prev *task
	next *task
}

// Queue is a relative-time delay list: each task for which time==0 fires
// immediately; otherwise tasks are stored in sorted relative-delta order
// so Advance only has to walk from the head.
type Queue struct {
	head *task
	tail *task
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Add schedules cb to run after delay ticks, keyed by key for cancellation.
// A zero delay runs cb immediately.
func (q *Queue) Add(key any, delay int, cb Callback) {
	if delay == 0 {
		cb()
		return
	}

	t := &task{key: key, time: delay, cb: cb}

	cur := q.head
	if cur == nil {
		q.head = t
		q.tail = t
		return
	}

	for cur != nil {
		if t.time <= cur.time {
			cur.time -= t.time
			t.prev = cur.prev
			t.next = cur
			cur.prev = t
			if t.prev != nil {
				t.prev.next = t
			} else {
				q.head = t
			}
			return
		}
		t.time -= cur.time
		cur = cur.next
	}

	t.prev = q.tail
	q.tail.next = t
	q.tail = t
}

// Cancel removes a pending task registered under key, if any.
func (q *Queue) Cancel(key any) {
	cur := q.head
	for cur != nil {
		if cur.key == key {
			if cur.next != nil {
				cur.next.time += cur.time
				cur.next.prev = cur.prev
			} else {
				q.tail = cur.prev
			}
			if cur.prev != nil {
				cur.prev.next = cur.next
			} else {
				q.head = cur.next
			}
			return
		}
		cur = cur.next
	}
}

// Advance decrements the head task's remaining time by t ticks and fires
// every task whose time has reached zero.
func (q *Queue) Advance(t int) {
	cur := q.head
	if cur == nil {
		return
	}
	cur.time -= t
	for cur != nil && cur.time <= 0 {
		cur.cb()
		q.head = cur.next
		cur = q.head
		if cur != nil {
			cur.prev = nil
		} else {
			q.tail = nil
		}
	}
}

// Empty reports whether any task is pending.
func (q *Queue) Empty() bool {
	return q.head == nil
}
