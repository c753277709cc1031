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

package kll

import (
	"fmt"
	"math"
	"sort"
)

// weightedEntry pairs a retained item with a weight. While building the
// estimation view the weight is the item's own 2^level; after the prefix
// pass it holds the total weight of all strictly smaller entries.
type weightedEntry[C comparable] struct {
	item   C
	weight uint64
}

// EstimateQuantile returns the approximate value at the given normalized
// rank. Fraction 0 and 1 return the exact minimum and maximum.
//
// Returns ErrEmptySketch on an empty sketch and ErrFractionOutOfRange if
// fraction is outside [0, 1].
func (s *Sketch[C]) EstimateQuantile(fraction float64) (C, error) {
	out, err := s.EstimateQuantiles([]float64{fraction})
	if err != nil {
		var zero C
		return zero, err
	}
	return out[0], nil
}

// EstimateQuantiles answers several normalized ranks against one snapshot
// of the sketch, cheaper than repeated EstimateQuantile calls because the
// weighted view is built once.
func (s *Sketch[C]) EstimateQuantiles(fractions []float64) ([]C, error) {
	if s.IsEmpty() {
		return nil, ErrEmptySketch
	}
	for _, q := range fractions {
		if math.IsNaN(q) || q < 0 || q > 1 {
			return nil, fmt.Errorf("%w, got %v", ErrFractionOutOfRange, q)
		}
	}

	s.sortLevelZero()
	entries := s.weightedEntries()

	// Exclusive prefix sum: each entry's weight becomes the total weight
	// of the entries strictly before it.
	totalWeight := uint64(0)
	for i := range entries {
		w := entries[i].weight
		entries[i].weight = totalWeight
		totalWeight += w
	}

	out := make([]C, len(fractions))
	for i, q := range fractions {
		if q == 0 {
			out[i] = *s.minItem
			continue
		}
		if q == 1 {
			out[i] = *s.maxItem
			continue
		}
		maxWeight := uint64(q * float64(totalWeight))
		idx := sort.Search(len(entries), func(j int) bool {
			return entries[j].weight >= maxWeight
		})
		if idx == len(entries) {
			out[i] = entries[len(entries)-1].item
		} else {
			out[i] = entries[idx].item
		}
	}
	return out, nil
}

// sortLevelZero sorts the unsorted bottom level in place and remembers
// that it did, so back-to-back estimations pay for the sort once.
func (s *Sketch[C]) sortLevelZero() {
	if !s.isLevelZeroSorted {
		sortItems(s.items[s.levels[0]:s.levels[1]], s.compareFn)
		s.isLevelZeroSorted = true
	}
}

// weightedEntries flattens the levels into one value-sorted slice of
// (item, 2^level) pairs. Levels are folded in cumulatively: each level is
// a sorted run, so a stable two-run merge per level keeps the whole
// prefix sorted, with ties resolved in favor of lower levels.
func (s *Sketch[C]) weightedEntries() []weightedEntry[C] {
	entries := make([]weightedEntry[C], 0, s.NumRetained())
	var scratch []weightedEntry[C]
	for level := uint8(0); level < s.numLevels; level++ {
		oldLen := len(entries)
		weight := uint64(1) << level
		for i := s.levels[level]; i < s.levels[level+1]; i++ {
			entries = append(entries, weightedEntry[C]{item: s.items[i], weight: weight})
		}
		if oldLen == 0 || oldLen == len(entries) {
			continue
		}
		if scratch == nil {
			scratch = make([]weightedEntry[C], 0, s.NumRetained())
		}
		scratch = scratch[:0]
		a, b := entries[:oldLen], entries[oldLen:]
		i, j := 0, 0
		for i < len(a) && j < len(b) {
			if s.compareFn(b[j].item, a[i].item) {
				scratch = append(scratch, b[j])
				j++
			} else {
				scratch = append(scratch, a[i])
				i++
			}
		}
		scratch = append(scratch, a[i:]...)
		scratch = append(scratch, b[j:]...)
		copy(entries, scratch)
	}
	return entries
}
