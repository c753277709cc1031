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

import "math/bits"

// powersOfThree is the precomputed table of 3^0 through 3^30, the exact
// denominators of the (2/3)^depth capacity decay.
var powersOfThree = []uint64{1, 3, 9, 27, 81, 243, 729, 2187, 6561, 19683, 59049, 177147, 531441,
	1594323, 4782969, 14348907, 43046721, 129140163, 387420489, 1162261467,
	3486784401, 10460353203, 31381059609, 94143178827, 282429536481,
	847288609443, 2541865828329, 7625597484987, 22876792454961, 68630377364883,
	205891132094649}

// levelCapacity returns the item capacity of a single level.
// The level at the top has capacity k; each level below it shrinks by a
// factor of 2/3, and no level ever shrinks below _MIN_LEVEL_SIZE.
// The same schedule drives both the insert path and the merge path.
func levelCapacity(k uint16, numLevels uint8, level uint8) uint32 {
	depth := numLevels - level - 1
	return max(uint32(_MIN_LEVEL_SIZE), intCapAux(k, depth))
}

// computeTotalCapacity returns the item capacity of the whole buffer,
// the sum of the capacities of all numLevels levels.
func computeTotalCapacity(k uint16, numLevels uint8) uint32 {
	total := uint32(0)
	for level := uint8(0); level < numLevels; level++ {
		total += levelCapacity(k, numLevels, level)
	}
	return total
}

func intCapAux(k uint16, depth uint8) uint32 {
	if depth <= 30 {
		return intCapAuxAux(k, depth)
	}
	half := depth / 2
	rest := depth - half
	tmp := intCapAuxAux(k, half)
	return intCapAuxAux(uint16(tmp), rest)
}

// intCapAuxAux computes round(k * (2/3)^depth) in exact integer arithmetic.
func intCapAuxAux(k uint16, depth uint8) uint32 {
	twok := uint64(k) << 1 // pre-multiply by 2 for rounding, divide by 2 at the end
	tmp := (twok << depth) / powersOfThree[depth]
	result := (tmp + 1) >> 1 // round up on odd
	if result <= uint64(k) {
		return uint32(result)
	}
	return uint32(k)
}

// findLevelToCompact returns the lowest level whose population has reached
// its capacity. The caller guarantees at least one such level exists.
func findLevelToCompact(k uint16, numLevels uint8, levels []uint32) uint8 {
	for level := uint8(0); ; level++ {
		pop := levels[level+1] - levels[level]
		if pop >= levelCapacity(k, numLevels, level) {
			return level
		}
	}
}

// ubOnNumLevels returns an upper bound on the number of levels a sketch
// holding n items can have, used to size merge work arrays.
func ubOnNumLevels(n uint64) int {
	return bits.Len64(n | 1)
}

// sumSampleWeights returns the total stream weight represented by the
// levels array: each item at level i stands in for 2^i inserted items.
// It must always equal n.
func sumSampleWeights(numLevels uint8, levels []uint32) uint64 {
	total := uint64(0)
	weight := uint64(1)
	for level := uint8(0); level < numLevels; level++ {
		total += weight * uint64(levels[level+1]-levels[level])
		weight *= 2
	}
	return total
}
