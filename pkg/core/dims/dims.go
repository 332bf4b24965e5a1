// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dims defines Dims, the shape of a buffer and the work size of a kernel enqueue.
//
// A Dims is one of a closed set of variants: 1-D (a count), 2-D or 3-D, each axis with a
// non-negative extent. Dims values are comparable with ==, which is how buffers are checked
// to have the same shape.
//
// Example:
//
//	d := dims.Two(2, 3)
//	n, err := d.Multiply() // 6, nil
//	ws := d.WorkSize()     // [2 3]
package dims

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/pkg/errors"
)

// MaxRank is the maximum number of axes of a Dims.
const MaxRank = 3

var (
	// ErrOverflow is returned when the product of the extents doesn't fit an int.
	ErrOverflow = errors.New("dimensions product overflows")

	// ErrInvalid is returned for negative extents or an invalid rank.
	ErrInvalid = errors.New("invalid dimensions")
)

// Dims is the shape of a buffer: 1, 2 or 3 axes.
//
// The zero value is invalid (rank 0).
type Dims struct {
	rank    int
	extents [MaxRank]int
}

// One creates a 1-D Dims with n elements.
func One(n int) Dims {
	return Dims{rank: 1, extents: [MaxRank]int{n, 0, 0}}
}

// Two creates a 2-D Dims.
func Two(x, y int) Dims {
	return Dims{rank: 2, extents: [MaxRank]int{x, y, 0}}
}

// Three creates a 3-D Dims.
func Three(x, y, z int) Dims {
	return Dims{rank: 3, extents: [MaxRank]int{x, y, z}}
}

// Make creates a Dims from 1 to 3 extents.
func Make(extents ...int) (Dims, error) {
	switch len(extents) {
	case 1:
		return One(extents[0]), nil
	case 2:
		return Two(extents[0], extents[1]), nil
	case 3:
		return Three(extents[0], extents[1], extents[2]), nil
	}
	return Dims{}, errors.Wrapf(ErrInvalid, "%d axes given, only 1 to %d are supported", len(extents), MaxRank)
}

// Rank returns the number of axes.
func (d Dims) Rank() int { return d.rank }

// Extents returns a copy of the per-axis extents.
func (d Dims) Extents() []int {
	extents := make([]int, d.rank)
	copy(extents, d.extents[:d.rank])
	return extents
}

// Extent of the given axis.
func (d Dims) Extent(axis int) int {
	if axis < 0 || axis >= d.rank {
		exceptions.Panicf("axis %d out of range for %s", axis, d)
	}
	return d.extents[axis]
}

// Validate checks that the rank is 1 to 3 and the extents are non-negative.
func (d Dims) Validate() error {
	if d.rank < 1 || d.rank > MaxRank {
		return errors.Wrapf(ErrInvalid, "rank %d, only 1 to %d axes are supported", d.rank, MaxRank)
	}
	for axis, extent := range d.extents[:d.rank] {
		if extent < 0 {
			return errors.Wrapf(ErrInvalid, "negative extent %d for axis %d in %s", extent, axis, d)
		}
	}
	return nil
}

// Multiply returns the total number of elements: the product of the extents.
//
// The product is computed exactly: it returns ErrOverflow instead of wrapping around.
// A zero extent gives a valid product of 0.
func (d Dims) Multiply() (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	product := uint64(1)
	for _, extent := range d.extents[:d.rank] {
		hi, lo := bits.Mul64(product, uint64(extent))
		if hi != 0 || lo > math.MaxInt {
			return 0, errors.Wrapf(ErrOverflow, "%s", d)
		}
		product = lo
	}
	return int(product), nil
}

// MustMultiply is like Multiply, but panics on error.
func (d Dims) MustMultiply() int {
	n, err := d.Multiply()
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return n
}

// AllocLength returns the number of elements to allocate for a buffer of these dimensions:
// the same as Multiply, except that empty dimensions allocate one element, since backends
// reject zero-length allocations.
func (d Dims) AllocLength() (int, error) {
	n, err := d.Multiply()
	if err != nil {
		return 0, err
	}
	return max(n, 1), nil
}

// WorkSize converts the extents to a backend work size, with the same axes in the same order.
func (d Dims) WorkSize() backends.WorkSize {
	ws := make(backends.WorkSize, d.rank)
	for axis, extent := range d.extents[:d.rank] {
		ws[axis] = uint64(max(extent, 0))
	}
	return ws
}

// String implements fmt.Stringer. E.g.: "(4)", "(2, 3)".
func (d Dims) String() string {
	if d.rank == 0 {
		return "(invalid)"
	}
	parts := make([]string, d.rank)
	for axis, extent := range d.extents[:d.rank] {
		parts[axis] = fmt.Sprint(extent)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Parse parses dimensions written as "4", "2x3" or "2x3x4".
func Parse(text string) (Dims, error) {
	parts := strings.Split(strings.TrimSpace(text), "x")
	extents := make([]int, len(parts))
	for i, part := range parts {
		extent, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Dims{}, errors.Wrapf(ErrInvalid, "can't parse %q as dimensions (e.g. \"4\", \"2x3\", \"2x3x4\")", text)
		}
		extents[i] = extent
	}
	d, err := Make(extents...)
	if err != nil {
		return Dims{}, err
	}
	if err := d.Validate(); err != nil {
		return Dims{}, err
	}
	return d, nil
}
