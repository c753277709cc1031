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

import "slices"

// Iterator walks the retained items of a sketch together with their
// weights. The traversal order is the internal buffer order, which is not
// sorted across levels. The iterator works on a snapshot, so the sketch
// may keep receiving items while an iteration is in progress.
type Iterator[C comparable] struct {
	items     []C
	levels    []uint32
	numLevels uint8
	level     uint8
	index     uint32
	weight    uint64
	isInitial bool
}

// Iterator returns a new iterator over a snapshot of the current state.
func (s *Sketch[C]) Iterator() *Iterator[C] {
	return &Iterator[C]{
		items:     slices.Clone(s.items),
		levels:    slices.Clone(s.levels),
		numLevels: s.numLevels,
		isInitial: true,
	}
}

// Next advances to the next retained item and returns false when the
// iteration is exhausted.
func (i *Iterator[C]) Next() bool {
	if i.isInitial {
		i.level = 0
		i.index = i.levels[0]
		i.weight = 1
		i.isInitial = false
	} else {
		i.index++
	}
	if i.index < i.levels[i.level+1] {
		return true
	}
	// find the next non-empty level
	for {
		i.level++
		if i.level == i.numLevels {
			return false
		}
		i.weight <<= 1
		i.index = i.levels[i.level]
		if i.index < i.levels[i.level+1] {
			return true
		}
	}
}

// Item returns the item at the current position. Next must have been
// called and have returned true.
func (i *Iterator[C]) Item() C {
	return i.items[i.index]
}

// Weight returns the number of stream items the current item represents.
func (i *Iterator[C]) Weight() uint64 {
	return i.weight
}
