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
	"slices"

	"github.com/quantilekit/kllsketch/common"
)

func sortItems[C comparable](items []C, compareFn common.CompareFn[C]) {
	slices.SortFunc(items, func(a, b C) int {
		if compareFn(a, b) {
			return -1
		}
		return 1
	})
}

// randomlyHalveDown keeps the items at either the even or the odd offsets
// of buf[start:start+length], collected into the first half of the range.
// length must be even; one coin flip chooses the surviving offsets.
func randomlyHalveDown[C comparable](buf []C, start, length uint32, random *bitSource) {
	halfLength := length / 2
	offset := random.next()
	j := start + offset
	for i := start; i < start+halfLength; i++ {
		buf[i] = buf[j]
		j += 2
	}
}

// randomlyHalveUp is randomlyHalveDown's mirror: the survivors are
// collected into the second half of the range.
func randomlyHalveUp[C comparable](buf []C, start, length uint32, random *bitSource) {
	halfLength := length / 2
	offset := random.next()
	j := (start + length) - 1 - offset
	for i := (start + length) - 1; i >= start+halfLength; i-- {
		buf[i] = buf[j]
		j -= 2
	}
}

// mergeOverlap merges the two sorted runs buf[startA:startA+lenA] and
// buf[startB:startB+lenB] into buf starting at startC. The destination may
// overlap run B, which is why this cannot defer to a library merge: writing
// front to back, position c never passes read position b because run A ends
// at or before startC and startC+lenA does not reach startB.
func mergeOverlap[C comparable](buf []C, startA, lenA, startB, lenB, startC uint32, compareFn common.CompareFn[C]) {
	limA := startA + lenA
	limB := startB + lenB
	a := startA
	b := startB
	c := startC
	for a < limA && b < limB {
		if compareFn(buf[a], buf[b]) {
			buf[c] = buf[a]
			a++
		} else {
			buf[c] = buf[b]
			b++
		}
		c++
	}
	for a < limA {
		buf[c] = buf[a]
		a++
		c++
	}
	for b < limB {
		buf[c] = buf[b]
		b++
		c++
	}
}

// generalCompress repeatedly compacts the level-partitioned buffer until it
// fits the capacity schedule, no matter how much data was passed in.
//
// For each level: if the sketch as a whole or the level itself is under
// capacity, the level is copied over as is. Otherwise the level is
// compacted: an odd leftover item moves over for free, the rest is halved
// by coin flip, and the survivors are either promoted up into an empty
// level above or merged into a non-empty one. Compacting the top level
// grows the sketch by one level, which also raises the capacity target.
//
// inBuf and outBuf may be the same slice; data only ever moves downward.
// All levels except level zero must arrive sorted and leave sorted. Level
// zero is sorted on demand right before it is compacted.
//
// Returns the final number of levels, the final total capacity for that
// many levels, and the number of items that survived.
func generalCompress[C comparable](
	k uint16,
	numLevelsIn uint8,
	inBuf []C,
	inLevels []uint32,
	outBuf []C,
	outLevels []uint32,
	isLevelZeroSorted bool,
	compareFn common.CompareFn[C],
	random *bitSource,
) (finalNumLevels uint8, finalCapacity, finalNumItems uint32) {
	numLevels := numLevelsIn
	currentItemCount := inLevels[numLevels] - inLevels[0]
	targetItemCount := computeTotalCapacity(k, numLevels)
	outLevels[0] = 0
	for level := uint8(0); level < numLevels; level++ {
		// At the current top level, open an empty level above it for
		// uniform popAbove bookkeeping. numLevels is bumped only if the
		// top actually compacts.
		if level == numLevels-1 {
			inLevels[level+2] = inLevels[level+1]
		}
		rawBeg := inLevels[level]
		rawLim := inLevels[level+1]
		rawPop := rawLim - rawBeg
		if currentItemCount < targetItemCount || rawPop < levelCapacity(k, numLevels, level) {
			copy(outBuf[outLevels[level]:], inBuf[rawBeg:rawLim])
			outLevels[level+1] = outLevels[level] + rawPop
		} else {
			popAbove := inLevels[level+2] - rawLim
			oddPop := rawPop%2 == 1
			adjBeg := rawBeg
			adjPop := rawPop
			if oddPop {
				adjBeg++
				adjPop--
			}
			halfAdjPop := adjPop / 2

			if oddPop { // the leftover item survives for free
				outBuf[outLevels[level]] = inBuf[rawBeg]
				outLevels[level+1] = outLevels[level] + 1
			} else {
				outLevels[level+1] = outLevels[level]
			}

			if level == 0 && !isLevelZeroSorted {
				sortItems(inBuf[adjBeg:adjBeg+adjPop], compareFn)
			}

			if popAbove == 0 {
				randomlyHalveUp(inBuf, adjBeg, adjPop, random)
			} else {
				randomlyHalveDown(inBuf, adjBeg, adjPop, random)
				mergeOverlap(inBuf, adjBeg, halfAdjPop, rawLim, popAbove, adjBeg+halfAdjPop, compareFn)
			}

			currentItemCount -= halfAdjPop
			inLevels[level+1] -= halfAdjPop

			if level == numLevels-1 {
				numLevels++
				targetItemCount += levelCapacity(k, numLevels, 0)
			}
		}
	}
	return numLevels, targetItemCount, currentItemCount
}
