/*
 * RSX - Tiled region codec.
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

// Package tile implements the tiled-region codec: read/write of
// compressed tiled surface regions.
package tile

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// CompMode names a tile's color compression mode.
type CompMode int

const (
	Disabled CompMode = iota
	C32_2X1
	C32_2X2
)

// UnsupportedCompressionError reports a compression mode the codec does
// not handle.
type UnsupportedCompressionError struct {
	Mode CompMode
}

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("tile: unsupported compression mode %d", e.Mode)
}

// Region describes a tiled rectangular area of video memory.
type Region struct {
	Mode      CompMode
	Pitch     uint32 // tile_pitch, in bytes
	OffsetX   uint32
	OffsetY   uint32
	Width     uint32
	Height    uint32
}

var c32x1Warned sync.Once

// warnC32_2X1 flags, once per process, that C32_2X1 is approximated as a
// linear copy.
func warnC32_2X1() {
	c32x1Warned.Do(func() {
		slog.Debug("tile: C32_2X1 approximated as DISABLED linear copy")
	})
}

// rowOffset computes the byte offset of row y within the tiled region:
// (offset_y + y) * tile_pitch + offset_x.
func rowOffset(r Region, y uint32) uint32 {
	return (r.OffsetY+y)*r.Pitch + r.OffsetX
}

// Write copies src (one little-endian 32-bit pixel per Width columns, row
// major) into dst according to the region's compression mode. For C32_2X2
// each source pixel replicates to a 2x2 host pattern.
func Write(dst []byte, r Region, src []uint32) error {
	switch r.Mode {
	case Disabled, C32_2X1:
		if r.Mode == C32_2X1 {
			warnC32_2X1()
		}
		for y := uint32(0); y < r.Height; y++ {
			base := rowOffset(r, y)
			for x := uint32(0); x < r.Width; x++ {
				off := base + x*4
				if int(off)+4 > len(dst) {
					return fmt.Errorf("tile: write out of bounds at row %d col %d", y, x)
				}
				binary.LittleEndian.PutUint32(dst[off:off+4], src[y*r.Width+x])
			}
		}
		return nil

	case C32_2X2:
		for y := uint32(0); y < r.Height; y++ {
			for x := uint32(0); x < r.Width; x++ {
				px := src[y*r.Width+x]
				for dy := uint32(0); dy < 2; dy++ {
					base := rowOffset(r, y*2+dy)
					for dx := uint32(0); dx < 2; dx++ {
						off := base + (x*2+dx)*4
						if int(off)+4 > len(dst) {
							return fmt.Errorf("tile: write out of bounds at row %d col %d", y, x)
						}
						binary.LittleEndian.PutUint32(dst[off:off+4], px)
					}
				}
			}
		}
		return nil

	default:
		return &UnsupportedCompressionError{Mode: r.Mode}
	}
}

// Read copies a region's worth of pixels out of src into dst (row-major,
// one 32-bit pixel per column). For C32_2X2 the top-left sample of each
// 2x2 host block is taken.
func Read(src []byte, r Region, dst []uint32) error {
	switch r.Mode {
	case Disabled, C32_2X1:
		if r.Mode == C32_2X1 {
			warnC32_2X1()
		}
		for y := uint32(0); y < r.Height; y++ {
			base := rowOffset(r, y)
			for x := uint32(0); x < r.Width; x++ {
				off := base + x*4
				if int(off)+4 > len(src) {
					return fmt.Errorf("tile: read out of bounds at row %d col %d", y, x)
				}
				dst[y*r.Width+x] = binary.LittleEndian.Uint32(src[off : off+4])
			}
		}
		return nil

	case C32_2X2:
		for y := uint32(0); y < r.Height; y++ {
			base := rowOffset(r, y*2)
			for x := uint32(0); x < r.Width; x++ {
				off := base + (x*2)*4
				if int(off)+4 > len(src) {
					return fmt.Errorf("tile: read out of bounds at row %d col %d", y, x)
				}
				dst[y*r.Width+x] = binary.LittleEndian.Uint32(src[off : off+4])
			}
		}
		return nil

	default:
		return &UnsupportedCompressionError{Mode: r.Mode}
	}
}
