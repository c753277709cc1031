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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelCapacity_DecaySchedule(t *testing.T) {
	// Depth d below the top level holds round(k * (2/3)^d) items,
	// never fewer than the minimum level size.
	expected := []uint32{200, 133, 89, 59, 40, 26, 18, 12, 8, 8, 8}
	numLevels := uint8(len(expected))
	for level := uint8(0); level < numLevels; level++ {
		depth := numLevels - level - 1
		assert.Equal(t, expected[depth], levelCapacity(200, numLevels, level), "depth %d", depth)
	}
}

func TestLevelCapacity_MinLevelSizeFloor(t *testing.T) {
	for numLevels := uint8(1); numLevels < 20; numLevels++ {
		for level := uint8(0); level < numLevels; level++ {
			assert.GreaterOrEqual(t, levelCapacity(8, numLevels, level), uint32(_MIN_LEVEL_SIZE))
		}
	}
}

func TestLevelCapacity_TopLevelIsK(t *testing.T) {
	for _, k := range []uint16{8, 50, 200, 1000, 65535} {
		for numLevels := uint8(1); numLevels < 10; numLevels++ {
			assert.Equal(t, uint32(k), levelCapacity(k, numLevels, numLevels-1))
		}
	}
}

func TestComputeTotalCapacity(t *testing.T) {
	assert.Equal(t, uint32(200), computeTotalCapacity(200, 1))
	assert.Equal(t, uint32(333), computeTotalCapacity(200, 2))
	assert.Equal(t, uint32(422), computeTotalCapacity(200, 3))
	assert.Equal(t, uint32(577), computeTotalCapacity(200, 8))
}

func TestComputeTotalCapacity_Monotone(t *testing.T) {
	prev := uint32(0)
	for numLevels := uint8(1); numLevels < 30; numLevels++ {
		cur := computeTotalCapacity(200, numLevels)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestUbOnNumLevels(t *testing.T) {
	assert.Equal(t, 1, ubOnNumLevels(0))
	assert.Equal(t, 1, ubOnNumLevels(1))
	assert.Equal(t, 2, ubOnNumLevels(2))
	assert.Equal(t, 2, ubOnNumLevels(3))
	assert.Equal(t, 3, ubOnNumLevels(4))
	assert.Equal(t, 20, ubOnNumLevels(1000000))
}

func TestSumSampleWeights(t *testing.T) {
	// 3 items at level 0, 2 at level 1, 1 at level 2
	levels := []uint32{2, 5, 7, 8}
	assert.Equal(t, uint64(3*1+2*2+1*4), sumSampleWeights(3, levels))

	empty := []uint32{8, 8}
	assert.Equal(t, uint64(0), sumSampleWeights(1, empty))
}

func TestFindLevelToCompact(t *testing.T) {
	// k=8: every level capacity is the minimum level size of 8
	assert.Equal(t, uint8(0), findLevelToCompact(8, 2, []uint32{0, 8, 16}))
	assert.Equal(t, uint8(1), findLevelToCompact(8, 2, []uint32{4, 4, 12}))
	assert.Equal(t, uint8(2), findLevelToCompact(8, 3, []uint32{2, 5, 10, 18}))
}
