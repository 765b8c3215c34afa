/*
 * RSX - Memory bridge.
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

// Package membridge translates RSX DMA offsets into host-addressable
// locations and provides the flat guest-memory view the FIFO interpreter
// reads command words from.
package membridge

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Context names the DMA context a (offset, context) pair is resolved
// against, mirroring the context_dma classification the command processor
// is handed by the guest.
type Context int

const (
	ContextLocal Context = iota
	ContextFrameBuffer
	ContextMain
	ContextHostBuffer
	ContextReportLocal
	ContextReportMain
	ContextSemaphoreRSX
	ContextSemaphoreMain
	ContextDeviceRSX
	ContextDeviceMain
)

const (
	baseFrameBuffer  = 0xC0000000
	baseReportLocal  = 0x40301400
	baseReportMain   = 0x0e000000
	baseSemaphore    = 0x40300000
	baseDevice       = 0x40000000
)

// InvalidLocationError reports a context the bridge does not know how to
// classify; per the error handling design this is always fatal.
type InvalidLocationError struct {
	Offset  uint32
	Context Context
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("membridge: invalid location: offset=%#x context=%d", e.Offset, e.Context)
}

// UnimplementedContextDmaError reports a MAIN/HOST_BUFFER offset with no
// entry in the bridge's I/O map.
type UnimplementedContextDmaError struct {
	Offset uint32
}

func (e *UnimplementedContextDmaError) Error() string {
	return fmt.Sprintf("membridge: unmapped context dma offset=%#x", e.Offset)
}

// UnmappedGuestMemoryError reports a guest read/write past the bridge's
// flat memory view.
type UnmappedGuestMemoryError struct {
	Addr uint32
}

func (e *UnmappedGuestMemoryError) Error() string {
	return fmt.Sprintf("membridge: unmapped guest address %#x", e.Addr)
}

// FaultHandler receives access-violation notifications raised by the
// bridge when a guest address misses the backing store.
type FaultHandler interface {
	OnAccessFault(addr uint32)
}

// FaultBus fans access violations out to registered handlers. Handlers
// register at init and must unregister at teardown; registration is
// per-instance, not a process-wide function slot.
type FaultBus struct {
	mu       sync.Mutex
	handlers []FaultHandler
}

// Register adds h to the bus.
func (b *FaultBus) Register(h FaultHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes h from the bus, a no-op if h was never registered.
func (b *FaultBus) Unregister(h FaultHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.handlers {
		if cur == h {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Raise notifies every registered handler of a fault at addr.
func (b *FaultBus) Raise(addr uint32) {
	b.mu.Lock()
	handlers := append([]FaultHandler(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		h.OnAccessFault(addr)
	}
}

// Bridge is a flat little-endian guest address space plus an I/O map
// used to translate MAIN/HOST_BUFFER offsets into that space.
type Bridge struct {
	ram    []byte
	ioMap  map[uint32]uint32 // guest dma offset -> ram offset
	faults FaultBus
}

// New allocates a bridge backing store of the given size in bytes.
func New(size uint32) *Bridge {
	return &Bridge{
		ram:   make([]byte, size),
		ioMap: make(map[uint32]uint32),
	}
}

// Faults returns the bridge's fault bus.
func (b *Bridge) Faults() *FaultBus {
	return &b.faults
}

// MapIO registers a translation from a MAIN/HOST_BUFFER dma offset to an
// address inside the bridge's flat memory.
func (b *Bridge) MapIO(dmaOffset, ramOffset uint32) {
	b.ioMap[dmaOffset] = ramOffset
}

// PhysAddr classifies (offset, context) into a host-addressable location.
func (b *Bridge) PhysAddr(offset uint32, ctx Context) (uint32, error) {
	switch ctx {
	case ContextLocal, ContextFrameBuffer:
		return baseFrameBuffer + offset, nil
	case ContextMain, ContextHostBuffer:
		ram, ok := b.ioMap[offset]
		if !ok {
			return 0, &UnimplementedContextDmaError{Offset: offset}
		}
		return ram, nil
	case ContextReportLocal:
		return baseReportLocal + offset, nil
	case ContextReportMain:
		ram, ok := b.ioMap[baseReportMain+offset]
		if !ok {
			return 0, &UnimplementedContextDmaError{Offset: offset}
		}
		return ram, nil
	case ContextSemaphoreRSX, ContextSemaphoreMain:
		return baseSemaphore + offset, nil
	case ContextDeviceRSX, ContextDeviceMain:
		return baseDevice + offset, nil
	default:
		return 0, &InvalidLocationError{Offset: offset, Context: ctx}
	}
}

// Read32 reads a little-endian 32-bit word from the flat guest memory view.
func (b *Bridge) Read32(addr uint32) (uint32, error) {
	if int64(addr)+4 > int64(len(b.ram)) {
		b.faults.Raise(addr)
		return 0, &UnmappedGuestMemoryError{Addr: addr}
	}
	return binary.LittleEndian.Uint32(b.ram[addr : addr+4]), nil
}

// Write32 writes a little-endian 32-bit word into the flat guest memory view.
func (b *Bridge) Write32(addr, value uint32) error {
	if int64(addr)+4 > int64(len(b.ram)) {
		b.faults.Raise(addr)
		return &UnmappedGuestMemoryError{Addr: addr}
	}
	binary.LittleEndian.PutUint32(b.ram[addr:addr+4], value)
	return nil
}

// ReadBytes copies n bytes starting at addr out of the flat guest memory.
func (b *Bridge) ReadBytes(addr uint32, n int) ([]byte, error) {
	if int64(addr)+int64(n) > int64(len(b.ram)) {
		b.faults.Raise(addr)
		return nil, &UnmappedGuestMemoryError{Addr: addr}
	}
	out := make([]byte, n)
	copy(out, b.ram[addr:int(addr)+n])
	return out, nil
}

// WriteBytes copies data into the flat guest memory starting at addr.
func (b *Bridge) WriteBytes(addr uint32, data []byte) error {
	if int64(addr)+int64(len(data)) > int64(len(b.ram)) {
		b.faults.Raise(addr)
		return &UnmappedGuestMemoryError{Addr: addr}
	}
	copy(b.ram[addr:], data)
	return nil
}

// Size returns the size of the flat memory view in bytes.
func (b *Bridge) Size() uint32 {
	return uint32(len(b.ram))
}
