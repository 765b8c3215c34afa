/*
 * RSX - Vertex input layout analyzer.
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

// Package vertex implements the vertex input layout analyzer:
// classification of the 16 attribute slots into interleaved persistent
// blocks, volatile push buffers, or referenced registers, plus the memory
// size calculation and descriptor emission that follow from that
// classification.
package vertex

import (
	"fmt"
	"math"

	"github.com/go-rsx/rsxcore/rsx/register"
)

// BaseType names a vertex element's host-side numeric format.
type BaseType int

const (
	F32 BaseType = iota
	S16K
	S1
	SF
	UB
	CMP
	UB256
)

// BadVertexDataTypeError indicates a structural decode error, not a
// transient I/O fault.
type BadVertexDataTypeError struct {
	Type BaseType
}

func (e *BadVertexDataTypeError) Error() string {
	return fmt.Sprintf("vertex: bad vertex data type %d", e.Type)
}

// WrongVectorSizeError reports a vector width the type cannot carry.
type WrongVectorSizeError struct {
	Type BaseType
	Size uint32
}

func (e *WrongVectorSizeError) Error() string {
	return fmt.Sprintf("vertex: wrong vector size %d for type %d", e.Size, e.Type)
}

// HostSize returns the number of bytes one vertex's worth of this
// attribute occupies on the host.
func HostSize(t BaseType, size uint32) (uint32, error) {
	if t == CMP {
		return 4, nil
	}
	if t == UB256 {
		if size != 4 {
			return 0, &WrongVectorSizeError{Type: t, Size: size}
		}
		return 4, nil
	}
	var elem uint32
	switch t {
	case F32:
		elem = 4
	case S16K, S1, SF:
		elem = 2
	case UB:
		elem = 1
	default:
		return 0, &BadVertexDataTypeError{Type: t}
	}
	switch size {
	case 1, 2, 4:
		return elem * size, nil
	case 3:
		return elem * 4, nil
	default:
		return 0, &WrongVectorSizeError{Type: t, Size: size}
	}
}

// Location names where an interleaved block's backing bytes live.
type Location int

const (
	LocationLocal Location = iota
	LocationMain
)

// Placement classifies how a slot's data reaches the backend.
type Placement int

const (
	PlacementNone Placement = iota
	PlacementPersistent
	PlacementTransient
)

// InterleavedRange is a set of attributes sharing a stride and base
// address in guest memory.
type InterleavedRange struct {
	BaseOffset      uint32
	Location        Location
	AttributeStride uint32
	Slots           []int
	Interleaved     bool
	SingleVertex    bool
	MinDivisor      uint32
	AllModulus      bool
	RealHostAddress uint32
}

// VolatileBlock is a push-buffer-backed attribute.
type VolatileBlock struct {
	Slot      int
	SizeBytes uint32
}

// Layout is the full classification of the 16 attribute slots.
type Layout struct {
	InterleavedBlocks   []InterleavedRange
	VolatileBlocks      []VolatileBlock
	ReferencedRegisters []int
	AttributePlacement  [16]Placement
}

// AttributeInfo describes one slot's configured array/register/push-buffer
// state, the input the analyzer classifies.
type AttributeInfo struct {
	ArraySize              uint32 // 0 if no array bound
	RegisterVertexInfoSize uint32 // 0 if no constant register bound
	Stride                 uint32
	BaseAddress            uint32
	Location               Location
	Type                   BaseType
	ElementSize            uint32 // vector width: 1,2,3,4
	Divisor                uint32
	Modulo                 bool
	BigEndianSource        bool
}

// SourceKind tags where a slot's vertex data comes from.
type SourceKind int

const (
	SourceEmpty SourceKind = iota
	SourceArrayBuffer
	SourceRegister
)

// Source classifies the attribute as a tagged sum over its configured
// state: an array buffer in guest memory, a constant register, or nothing.
func (a AttributeInfo) Source() SourceKind {
	switch {
	case a.ArraySize > 0:
		return SourceArrayBuffer
	case a.RegisterVertexInfoSize > 0:
		return SourceRegister
	default:
		return SourceEmpty
	}
}

// AnalyzeInputs classifies the 16 slots for the current draw clause.
// pushBytes holds each slot's push-buffer byte size, zero when the
// slot has no immediate-mode data. For an inlined_array draw, every
// enabled slot collapses into one synthesized transient interleaved block.
func AnalyzeInputs(f *register.File, attrs [16]AttributeInfo, pushBytes [16]uint32) (Layout, error) {
	var layout Layout

	if f.Clause.Command == register.DrawInlinedArray {
		var slots []int
		var stride uint32
		for slot := 0; slot < 16; slot++ {
			if attrs[slot].ElementSize == 0 {
				continue
			}
			sz, err := HostSize(attrs[slot].Type, attrs[slot].ElementSize)
			if err != nil {
				return layout, err
			}
			slots = append(slots, slot)
			stride += sz
			layout.AttributePlacement[slot] = PlacementTransient
		}
		layout.InterleavedBlocks = append(layout.InterleavedBlocks, InterleavedRange{
			Slots:           slots,
			AttributeStride: stride,
			Interleaved:     true,
		})
		return layout, nil
	}

	for slot := 0; slot < 16; slot++ {
		a := attrs[slot]
		switch {
		case pushBytes[slot] > 0:
			layout.AttributePlacement[slot] = PlacementTransient
			layout.VolatileBlocks = append(layout.VolatileBlocks, VolatileBlock{Slot: slot, SizeBytes: pushBytes[slot]})

		case a.Source() == SourceRegister:
			layout.AttributePlacement[slot] = PlacementTransient
			layout.ReferencedRegisters = append(layout.ReferencedRegisters, slot)

		case a.Source() == SourceArrayBuffer:
			layout.AttributePlacement[slot] = PlacementPersistent
			if !mergeIntoBlock(&layout, slot, a) {
				sz, err := HostSize(a.Type, a.ElementSize)
				if err != nil {
					return layout, err
				}
				blk := InterleavedRange{
					BaseOffset:      a.BaseAddress,
					Location:        a.Location,
					AttributeStride: a.Stride,
					Slots:           []int{slot},
					Interleaved:     false,
					MinDivisor:      divisorOrOne(a.Divisor),
					AllModulus:      a.Modulo,
				}
				if blk.AttributeStride == 0 {
					blk.SingleVertex = true
					blk.AttributeStride = sz
				}
				layout.InterleavedBlocks = append(layout.InterleavedBlocks, blk)
			}

		default:
			layout.AttributePlacement[slot] = PlacementNone
		}
	}
	return layout, nil
}

func divisorOrOne(d uint32) uint32 {
	if d == 0 {
		return 1
	}
	return d
}

// mergeIntoBlock tries to fold slot into an existing interleaved block
// with the same stride and a nearby base address.
func mergeIntoBlock(layout *Layout, slot int, a AttributeInfo) bool {
	for i := range layout.InterleavedBlocks {
		blk := &layout.InterleavedBlocks[i]
		if blk.AttributeStride != a.Stride {
			continue
		}
		diff := int64(a.BaseAddress) - int64(blk.BaseOffset)
		if diff < 0 {
			diff = -diff
		}
		if uint32(diff) > blk.AttributeStride {
			continue
		}
		if a.BaseAddress < blk.BaseOffset {
			blk.BaseOffset = a.BaseAddress
		}
		blk.Slots = append(blk.Slots, slot)
		blk.Interleaved = true
		if a.Divisor != 0 && (blk.MinDivisor == 0 || a.Divisor < blk.MinDivisor) {
			blk.MinDivisor = a.Divisor
		}
		blk.AllModulus = blk.AllModulus && a.Modulo
		return true
	}
	return false
}

// uniqueVerts is the number of distinct vertices a block actually stores.
func uniqueVerts(blk InterleavedRange, vertexCount uint32) uint32 {
	switch {
	case blk.SingleVertex:
		return 1
	case blk.AllModulus:
		return blk.MinDivisor
	case blk.MinDivisor > 1:
		return uint32(math.Ceil(float64(vertexCount) / float64(blk.MinDivisor)))
	default:
		return vertexCount
	}
}

// MemoryRequirement computes persistent and volatile byte totals for the
// layout at the given vertex count. A transient interleaved
// block (the one synthesized for an inlined_array draw) counts against the
// volatile total; array-backed blocks are persistent.
func MemoryRequirement(layout Layout, vertexCount uint32) (persistent, volatile uint32) {
	for _, blk := range layout.InterleavedBlocks {
		bytes := blk.AttributeStride * uniqueVerts(blk, vertexCount)
		if len(blk.Slots) > 0 && layout.AttributePlacement[blk.Slots[0]] == PlacementTransient {
			volatile += bytes
		} else {
			persistent += bytes
		}
	}
	for _, vb := range layout.VolatileBlocks {
		volatile += vb.SizeBytes
	}
	volatile += 16 * uint32(len(layout.ReferencedRegisters))
	return persistent, volatile
}

// Descriptor is the 4-integer per-slot record emitted to the backend:
// {type, size, offset_in_layout, attribute_word}.
type Descriptor struct {
	Type          BaseType
	Size          uint32
	Offset        uint32
	AttributeWord uint32
}

const (
	attrBitSwap      = 1 << 8
	attrBitVolatile  = 1 << 9
	attrFreqShift    = 10
	attrFreqMask     = 0x3 << attrFreqShift
	attrBitModulo    = 1 << 12
	attrStrideShift  = 16
)

func attributeWord(stride uint32, freq uint32, modulo, volatile, swap bool) uint32 {
	w := (stride & 0xffff) << attrStrideShift
	w |= (freq << attrFreqShift) & attrFreqMask
	if modulo {
		w |= attrBitModulo
	}
	if volatile {
		w |= attrBitVolatile
	}
	if swap {
		w |= attrBitSwap
	}
	return w
}

// swapBit decides the descriptor's byte-swap flag: set for big-endian
// source types, but cleared for byte-granularity types stored transient.
func swapBit(a AttributeInfo, placement Placement) bool {
	if placement == PlacementTransient && (a.Type == UB || a.Type == UB256) {
		return false
	}
	return a.BigEndianSource
}

// FillVertexLayoutState emits a descriptor per enabled slot and the byte
// offset within the destination buffer it will occupy, then returns the
// total buffer size required. Offsets are assigned by walking slots in
// order, each attribute given its own contiguous region, a simplification
// of real hardware interleaving, which this package does not reproduce
// bit-for-bit (full register side-effect fidelity is an explicit
// non-goal), but which preserves the round-trip property write/read
// depends on.
func FillVertexLayoutState(layout Layout, attrs [16]AttributeInfo, vertexCount uint32) ([16]Descriptor, uint32, error) {
	var descs [16]Descriptor
	var offset uint32

	blockOf := make(map[int]*InterleavedRange)
	for i := range layout.InterleavedBlocks {
		blk := &layout.InterleavedBlocks[i]
		for _, s := range blk.Slots {
			blockOf[s] = blk
		}
	}

	for slot := 0; slot < 16; slot++ {
		placement := layout.AttributePlacement[slot]
		if placement == PlacementNone {
			continue
		}
		a := attrs[slot]
		sz, err := HostSize(a.Type, a.ElementSize)
		if err != nil {
			return descs, 0, err
		}

		var stride uint32
		var verts uint32
		switch {
		case placement == PlacementPersistent:
			blk := blockOf[slot]
			stride = blk.AttributeStride
			verts = uniqueVerts(*blk, vertexCount)
		default:
			stride = sz
			verts = vertexCount
		}

		descs[slot] = Descriptor{
			Type:   a.Type,
			Size:   sz,
			Offset: offset,
			AttributeWord: attributeWord(stride, a.Divisor&0x3, a.Modulo,
				placement == PlacementTransient, swapBit(a, placement)),
		}
		offset += sz * verts
	}
	return descs, offset, nil
}

// WriteVertexDataToMemory copies each enabled slot's source bytes into dst
// at the offset FillVertexLayoutState assigned it.
// src supplies each slot's raw per-vertex source bytes in the same order
// the descriptor's size/offset describe.
func WriteVertexDataToMemory(dst []byte, descs [16]Descriptor, layout Layout, src [16][]byte, vertexCount uint32) error {
	for slot := 0; slot < 16; slot++ {
		if layout.AttributePlacement[slot] == PlacementNone {
			continue
		}
		d := descs[slot]
		data := src[slot]
		if int(d.Offset)+len(data) > len(dst) {
			return fmt.Errorf("vertex: destination buffer too small for slot %d", slot)
		}
		copy(dst[d.Offset:], data)
	}
	return nil
}
