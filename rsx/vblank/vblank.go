/*
 * RSX - Vblank driver.
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

// Package vblank implements the vblank driver: an independent ticker
// that issues guest-side interrupts at ~60Hz.
package vblank

import (
	"log/slog"
	"sync"
	"time"
)

const tickInterval = 16666667 * time.Nanosecond // ~60Hz

// Handler receives the vblank callback. arg is always 1, mirroring the
// guest-side callback argument the original issues.
type Handler func(arg int)

// Driver ticks a monotonic vblank counter while running.
type Driver struct {
	wg      sync.WaitGroup
	running bool
	handler Handler
	paused  func() bool

	enable chan bool
	done   chan struct{}
	ticker *time.Ticker

	count    uint64
	lastTick time.Duration
	mu       sync.Mutex
}

// LastTick returns the monotonic timestamp of the most recent tick
// delivered, read via clock_gettime(CLOCK_MONOTONIC) rather than
// time.Now() (see clock_unix.go).
func (d *Driver) LastTick() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTick
}

// New builds a vblank driver. paused, if non-nil, is consulted each tick
// and suppresses the callback while it returns true.
func New(handler Handler, paused func() bool) *Driver {
	d := &Driver{
		handler: handler,
		paused:  paused,
		enable:  make(chan bool, 1),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Start begins delivering ~60Hz vblank ticks.
func (d *Driver) Start() {
	d.enable <- true
}

// Stop suspends delivery without tearing down the goroutine.
func (d *Driver) Stop() {
	d.enable <- false
}

// Shutdown terminates the driver goroutine.
func (d *Driver) Shutdown() {
	close(d.done)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(time.Second):
		slog.Warn("vblank: timed out waiting for driver to finish")
	}
}

// Count returns the current vblank counter.
func (d *Driver) Count() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func (d *Driver) run() {
	defer d.wg.Done()
	d.ticker = time.NewTicker(tickInterval)
	defer d.ticker.Stop()

	for {
		select {
		case <-d.ticker.C:
			if !d.running {
				continue
			}
			if d.paused != nil && d.paused() {
				continue
			}
			d.mu.Lock()
			d.count++
			d.lastTick = monotonicNow()
			d.mu.Unlock()
			if d.handler != nil {
				d.handler(1)
			}
		case d.running = <-d.enable:
			if d.running {
				d.ticker.Reset(tickInterval)
			}
		case <-d.done:
			return
		}
	}
}
