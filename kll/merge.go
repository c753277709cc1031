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
	"container/heap"

	"github.com/quantilekit/kllsketch/common"
)

// runCursor tracks one sorted level run during the multi-way merge.
type runCursor[C comparable] struct {
	buf []C
	pos uint32
	end uint32
}

// runHeap is a min-heap of level runs ordered by each run's head item.
type runHeap[C comparable] struct {
	runs      []runCursor[C]
	compareFn common.CompareFn[C]
}

func (h *runHeap[C]) Len() int { return len(h.runs) }

func (h *runHeap[C]) Less(i, j int) bool {
	return h.compareFn(h.runs[i].buf[h.runs[i].pos], h.runs[j].buf[h.runs[j].pos])
}

func (h *runHeap[C]) Swap(i, j int) {
	h.runs[i], h.runs[j] = h.runs[j], h.runs[i]
}

func (h *runHeap[C]) Push(x any) {
	h.runs = append(h.runs, x.(runCursor[C]))
}

func (h *runHeap[C]) Pop() any {
	old := h.runs
	n := len(old)
	x := old[n-1]
	h.runs = old[:n-1]
	return x
}

// Merge folds the state of the other sketches into this one in a single
// pass. The result represents the concatenation of all the input streams:
// n is the sum of the input counts and min/max are the true extremes, both
// independent of merge order. The other sketches are not modified.
//
// All participants must share the same ordering of C. Merging a sketch
// into itself is undefined.
func (s *Sketch[C]) Merge(others ...*Sketch[C]) {
	newN := s.n
	for _, other := range others {
		if other.n == 0 {
			continue
		}
		if newN == 0 {
			minV, maxV := *other.minItem, *other.maxItem
			s.minItem = &minV
			s.maxItem = &maxV
		} else {
			if s.compareFn(*other.minItem, *s.minItem) {
				minV := *other.minItem
				s.minItem = &minV
			}
			if s.compareFn(*s.maxItem, *other.maxItem) {
				maxV := *other.maxItem
				s.maxItem = &maxV
			}
		}
		newN += other.n
	}
	if newN == s.n {
		return
	}

	// Absorb the other sketches' bottom levels through the ordinary
	// insert slot path so compactions follow the usual schedule.
	for _, other := range others {
		for j := other.levels[0]; j < other.levels[1]; j++ {
			s.items[s.insertPosition()] = other.items[j]
		}
	}

	// Combine the higher levels, if anyone has them.
	tmpNumItems := s.NumRetained()
	provisionalNumLevels := s.numLevels
	for _, other := range others {
		if other.numLevels >= 2 {
			tmpNumItems += other.levels[other.numLevels] - other.levels[1]
			provisionalNumLevels = max(provisionalNumLevels, other.numLevels)
		}
	}
	if tmpNumItems > s.NumRetained() {
		workbuf := make([]C, tmpNumItems)
		ub := ubOnNumLevels(newN)
		worklevels := make([]uint32, ub+2)
		outlevels := make([]uint32, ub+2)

		// Level 0 is already fully in this sketch after the absorption
		// above; the levels from 1 up are merged run-wise, one sorted run
		// per participant per level.
		worklevels[0] = 0
		copy(workbuf, s.items[s.levels[0]:s.levels[1]])
		worklevels[1] = s.levelSize(0)
		for lvl := uint8(1); lvl < provisionalNumLevels; lvl++ {
			h := &runHeap[C]{compareFn: s.compareFn}
			if sz := s.levelSize(lvl); sz > 0 {
				h.runs = append(h.runs, runCursor[C]{buf: s.items, pos: s.levels[lvl], end: s.levels[lvl] + sz})
			}
			for _, other := range others {
				if sz := other.levelSize(lvl); sz > 0 {
					h.runs = append(h.runs, runCursor[C]{buf: other.items, pos: other.levels[lvl], end: other.levels[lvl] + sz})
				}
			}
			heap.Init(h)
			out := worklevels[lvl]
			for h.Len() > 0 {
				run := &h.runs[0]
				workbuf[out] = run.buf[run.pos]
				out++
				run.pos++
				if run.pos == run.end {
					heap.Pop(h)
				} else {
					heap.Fix(h, 0)
				}
			}
			worklevels[lvl+1] = out
		}

		finalNumLevels, finalCapacity, finalNumItems := generalCompress(
			s.k, provisionalNumLevels, workbuf, worklevels, workbuf, outlevels,
			s.isLevelZeroSorted, s.compareFn, &s.random)

		// Transfer the compressed result back, free space at the bottom.
		newItems := make([]C, finalCapacity)
		freeSpaceAtBottom := finalCapacity - finalNumItems
		copy(newItems[freeSpaceAtBottom:], workbuf[outlevels[0]:outlevels[0]+finalNumItems])
		offset := freeSpaceAtBottom - outlevels[0]
		newLevels := make([]uint32, finalNumLevels+1)
		for lvl := range newLevels {
			newLevels[lvl] = outlevels[lvl] + offset
		}
		s.items = newItems
		s.levels = newLevels
		s.numLevels = finalNumLevels
	}
	s.n = newN
}

// MergeSlice absorbs a serialized sketch, the worker-to-coordinator path:
// workers ship partial sketches as bytes and the coordinator folds them in
// without the caller deserializing first. The payload must have been
// produced by ToSlice on a sketch of the same item type.
func (s *Sketch[C]) MergeSlice(data []byte) error {
	other, err := FromSlice(data, s.compareFn, s.serde)
	if err != nil {
		return err
	}
	s.Merge(other)
	return nil
}
