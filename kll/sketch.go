/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package kll implements the KLL streaming quantile sketch: a compact,
// bounded-memory summary of an unbounded stream that answers approximate
// quantile queries with a priori error bounds.
//
// Reference: https://arxiv.org/abs/1603.05346v2 Optimal Quantile Approximation in Streams
//
// Items live in a single buffer partitioned into levels; an item at level i
// stands in for 2^i inserted items. When the buffer fills, one level is
// compacted: half its items survive (chosen by a coin flip) and move one
// level up, so total weight is preserved while memory stays bounded.
// Sketches built from disjoint parts of a stream merge into a sketch of
// the whole, which makes partial aggregation across workers natural.
//
// The default k of 200 yields a single-sided rank error of about 1.33%
// with 99% confidence. Larger k means smaller error and a larger sketch.
package kll

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/quantilekit/kllsketch/common"
	"github.com/quantilekit/kllsketch/internal"
)

const (
	// DefaultK is the accuracy parameter used when callers have no
	// specific error target.
	DefaultK = uint16(200)

	_MIN_K          = uint16(8)
	_MAX_K          = (1 << 16) - 1
	_MIN_LEVEL_SIZE = uint8(8)
)

var (
	ErrEmptySketch        = errors.New("operation is undefined for an empty sketch")
	ErrFractionOutOfRange = errors.New("quantile fraction must be between 0 and 1 inclusive")
	ErrInvalidK           = errors.New("k must be >= 8 and <= 65535")
	ErrNoCompareFn        = errors.New("no compare function provided")
	ErrNoSerDe            = errors.New("no SerDe provided")
)

// Sketch is a KLL quantile sketch over items of type C. The zero value is
// not usable; construct with New, NewWithSeed, NewOrdered, FromSlice or
// FromRepeatedValue.
//
// A Sketch is not safe for concurrent use. The intended multi-worker
// pattern is one sketch per goroutine and a final Merge.
type Sketch[C comparable] struct {
	// k controls the accuracy of the sketch and its memory footprint.
	k                 uint16
	numLevels         uint8
	isLevelZeroSorted bool
	n                 uint64
	// levels[i] is the offset of the first item of level i in items;
	// level i occupies items[levels[i]:levels[i+1]). levels has exactly
	// numLevels+1 entries and levels[numLevels] == len(items). Level 0
	// grows downward toward index 0, so levels[0] is also the free space
	// at the bottom of the buffer.
	levels    []uint32
	items     []C
	minItem   *C
	maxItem   *C
	random    bitSource
	serde     common.ItemSketchSerde[C]
	compareFn common.CompareFn[C]
}

// New creates an empty sketch with the given accuracy parameter k,
// seeding the compaction coin from the process random source. Use
// NewWithSeed when runs must be reproducible.
//
// serde may be nil if the sketch is never serialized.
func New[C comparable](k uint16, compareFn common.CompareFn[C], serde common.ItemSketchSerde[C]) (*Sketch[C], error) {
	return NewWithSeed(k, rand.Uint64(), compareFn, serde)
}

// NewWithSeed creates an empty sketch whose compaction coin flips are
// fully determined by seed. Two sketches with the same seed fed the same
// operations hold identical state.
func NewWithSeed[C comparable](k uint16, seed uint64, compareFn common.CompareFn[C], serde common.ItemSketchSerde[C]) (*Sketch[C], error) {
	if k < _MIN_K || k > _MAX_K {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}
	if compareFn == nil {
		return nil, ErrNoCompareFn
	}
	return &Sketch[C]{
		k:         k,
		numLevels: 1,
		levels:    []uint32{uint32(k), uint32(k)},
		items:     make([]C, k),
		random:    bitSource{seed: seed},
		serde:     serde,
		compareFn: compareFn,
	}, nil
}

// NewOrdered creates a sketch over a naturally ordered type, sparing the
// caller the comparator boilerplate.
func NewOrdered[C constraints.Ordered](k uint16, serde common.ItemSketchSerde[C]) (*Sketch[C], error) {
	return New(k, common.NaturalComparator[C](false), serde)
}

// FromRepeatedValue builds a sketch representing count copies of value
// without inserting them one by one. The count is decomposed into powers
// of two: one copy of value is placed at each level whose bit is set, so
// the total weight equals count exactly. This is the building block for
// weighted inserts.
func FromRepeatedValue[C comparable](value C, count uint64, k uint16, seed uint64, compareFn common.CompareFn[C], serde common.ItemSketchSerde[C]) (*Sketch[C], error) {
	s, err := NewWithSeed(k, seed, compareFn, serde)
	if err != nil {
		return nil, err
	}
	if count == 0 || internal.IsNil(value) {
		return s, nil
	}
	numLevels := uint8(bits.Len64(count))
	totalCap := computeTotalCapacity(k, numLevels)
	items := make([]C, totalCap)
	levels := make([]uint32, numLevels+1)
	levels[numLevels] = totalCap
	pos := totalCap
	for level := int(numLevels) - 1; level >= 0; level-- {
		if count&(uint64(1)<<uint(level)) != 0 {
			pos--
			items[pos] = value
		}
		levels[level] = pos
	}
	s.n = count
	s.numLevels = numLevels
	s.levels = levels
	s.items = items
	s.minItem = &value
	s.maxItem = &value
	s.isLevelZeroSorted = true
	return s, nil
}

// Insert adds one item to the sketch. It cannot fail: when the buffer is
// full a level is compacted first, which always frees at least one slot.
// Nil items of reference types are ignored.
func (s *Sketch[C]) Insert(item C) {
	if internal.IsNil(item) {
		return
	}
	if s.IsEmpty() {
		s.minItem = &item
		s.maxItem = &item
	} else {
		if s.compareFn(item, *s.minItem) {
			s.minItem = &item
		}
		if s.compareFn(*s.maxItem, item) {
			s.maxItem = &item
		}
	}
	s.items[s.insertPosition()] = item
}

// insertPosition claims the next free slot at the bottom of the buffer,
// compacting one level first if there is none. Shared by Insert and by
// Merge's absorption of bottom-level items: both paths account identically
// against the capacity schedule.
func (s *Sketch[C]) insertPosition() uint32 {
	if s.levels[0] == 0 {
		s.compactOneLevel()
	}
	s.n++
	s.isLevelZeroSorted = false
	s.levels[0]--
	return s.levels[0]
}

// compactOneLevel compacts the lowest level that has reached capacity,
// freeing halfAdjPop slots for level zero.
func (s *Sketch[C]) compactOneLevel() {
	level := findLevelToCompact(s.k, s.numLevels, s.levels)

	// Growing must happen before compacting the top level: it shifts the
	// whole buffer and every level boundary.
	if level == s.numLevels-1 {
		s.addEmptyTopLevel()
	}

	rawBeg := s.levels[level]
	rawLim := s.levels[level+1]
	// level+2 is in range because a new top level was just added if needed.
	popAbove := s.levels[level+2] - rawLim
	rawPop := rawLim - rawBeg
	oddPop := rawPop%2 == 1
	adjBeg := rawBeg
	adjPop := rawPop
	if oddPop {
		adjBeg++
		adjPop--
	}
	halfAdjPop := adjPop / 2

	if level == 0 && !s.isLevelZeroSorted {
		sortItems(s.items[adjBeg:adjBeg+adjPop], s.compareFn)
	}
	if popAbove == 0 {
		randomlyHalveUp(s.items, adjBeg, adjPop, &s.random)
	} else {
		randomlyHalveDown(s.items, adjBeg, adjPop, &s.random)
		mergeOverlap(s.items, adjBeg, halfAdjPop, rawLim, popAbove, adjBeg+halfAdjPop, s.compareFn)
	}

	// The level above absorbed the survivors.
	s.levels[level+1] -= halfAdjPop

	if oddPop {
		// The compacted level keeps exactly the leftover item.
		s.levels[level] = s.levels[level+1] - 1
		if s.levels[level] != rawBeg {
			s.items[s.levels[level]] = s.items[rawBeg]
		}
	} else {
		s.levels[level] = s.levels[level+1]
	}

	// Shift the levels below up into the freed space so the gap ends up
	// at the bottom where level zero grows.
	if level > 0 {
		amount := rawBeg - s.levels[0]
		copy(s.items[s.levels[0]+halfAdjPop:], s.items[s.levels[0]:s.levels[0]+amount])
		for lvl := uint8(0); lvl < level; lvl++ {
			s.levels[lvl] += halfAdjPop
		}
	}
}

// addEmptyTopLevel grows a completely full sketch by one level. The new
// capacity opens at the bottom of the buffer; the new top level starts
// empty and zero-width until a compaction promotes items into it.
func (s *Sketch[C]) addEmptyTopLevel() {
	curTotalCap := s.levels[s.numLevels]
	deltaCap := levelCapacity(s.k, s.numLevels+1, 0)
	newTotalCap := curTotalCap + deltaCap

	newItems := make([]C, newTotalCap)
	copy(newItems[deltaCap:], s.items[:curTotalCap])
	s.items = newItems

	for i := range s.levels {
		s.levels[i] += deltaCap
	}
	s.levels = append(s.levels, newTotalCap)
	s.numLevels++
}

// Reset returns the sketch to its freshly constructed empty state. k, the
// comparator, the SerDe and the random seed are kept, so a reset sketch
// replays the same compaction decisions as a new one.
func (s *Sketch[C]) Reset() {
	s.n = 0
	s.numLevels = 1
	s.isLevelZeroSorted = false
	s.levels = []uint32{uint32(s.k), uint32(s.k)}
	s.items = make([]C, s.k)
	s.minItem = nil
	s.maxItem = nil
	s.random = bitSource{seed: s.random.seed}
}

// IsEmpty returns true if no items have been inserted.
func (s *Sketch[C]) IsEmpty() bool {
	return s.n == 0
}

// K returns the accuracy parameter the sketch was built with.
func (s *Sketch[C]) K() uint16 {
	return s.k
}

// N returns the total number of items the sketch represents, including
// every item dropped by compaction.
func (s *Sketch[C]) N() uint64 {
	return s.n
}

// NumRetained returns the number of items currently held in the buffer.
func (s *Sketch[C]) NumRetained() uint32 {
	return s.levels[s.numLevels] - s.levels[0]
}

// NumLevels returns the current number of levels.
func (s *Sketch[C]) NumLevels() uint8 {
	return s.numLevels
}

// IsEstimationMode returns true once compaction has happened, i.e. when
// quantile answers are estimates rather than exact.
func (s *Sketch[C]) IsEstimationMode() bool {
	return s.numLevels > 1
}

// Seed returns the seed of the sketch's random bit source.
func (s *Sketch[C]) Seed() uint64 {
	return s.random.seed
}

// MinItem returns the smallest item ever inserted, tracked exactly.
func (s *Sketch[C]) MinItem() (C, error) {
	if s.IsEmpty() {
		var zero C
		return zero, ErrEmptySketch
	}
	return *s.minItem, nil
}

// MaxItem returns the largest item ever inserted, tracked exactly.
func (s *Sketch[C]) MaxItem() (C, error) {
	if s.IsEmpty() {
		var zero C
		return zero, ErrEmptySketch
	}
	return *s.maxItem, nil
}

// levelSize returns the population of a level, treating levels at or above
// numLevels as empty.
func (s *Sketch[C]) levelSize(level uint8) uint32 {
	if level >= s.numLevels {
		return 0
	}
	return s.levels[level+1] - s.levels[level]
}

// String returns a human readable summary of the sketch.
func (s *Sketch[C]) String() string {
	var sb strings.Builder
	sb.WriteString("### KLL sketch summary:\n")
	sb.WriteString(fmt.Sprintf("   K              : %d\n", s.k))
	sb.WriteString(fmt.Sprintf("   N              : %d\n", s.n))
	sb.WriteString(fmt.Sprintf("   Levels         : %d\n", s.numLevels))
	sb.WriteString(fmt.Sprintf("   Retained items : %d\n", s.NumRetained()))
	sb.WriteString(fmt.Sprintf("   Capacity items : %d\n", s.levels[s.numLevels]))
	sb.WriteString(fmt.Sprintf("   Sorted level 0 : %v\n", s.isLevelZeroSorted))
	sb.WriteString(fmt.Sprintf("   Estimation mode: %v\n", s.IsEstimationMode()))
	if !s.IsEmpty() {
		sb.WriteString(fmt.Sprintf("   Min item       : %v\n", *s.minItem))
		sb.WriteString(fmt.Sprintf("   Max item       : %v\n", *s.maxItem))
	}
	sb.WriteString("### End sketch summary\n")
	return sb.String()
}
