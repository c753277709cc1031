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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSketch_ExactQuantilesBelowK(t *testing.T) {
	s := newIntSketch(t, 200, 1)
	for _, v := range shuffledInt64s(100, 7) {
		s.Insert(v)
	}
	// with no compaction yet the answers are exact order statistics
	cases := []struct {
		fraction float64
		want     int64
	}{
		{0, 1},
		{0.005, 1},
		{0.25, 26},
		{0.5, 51},
		{0.75, 76},
		{0.999, 100},
		{1, 100},
	}
	for _, c := range cases {
		v, err := s.EstimateQuantile(c.fraction)
		assert.NoError(t, err)
		assert.Equal(t, c.want, v, "fraction %v", c.fraction)
	}
}

func TestSketch_QuantileFractionOutOfRange(t *testing.T) {
	s := newIntSketch(t, 200, 1)
	s.Insert(1)
	for _, q := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := s.EstimateQuantile(q)
		assert.ErrorIs(t, err, ErrFractionOutOfRange, "fraction %v", q)
	}
	_, err := s.EstimateQuantiles([]float64{0.5, 2})
	assert.ErrorIs(t, err, ErrFractionOutOfRange)
}

func TestSketch_QuantilesBatchMatchesSingle(t *testing.T) {
	s := newIntSketch(t, 200, 1)
	for _, v := range shuffledInt64s(10000, 7) {
		s.Insert(v)
	}
	fractions := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1}
	batch, err := s.EstimateQuantiles(fractions)
	assert.NoError(t, err)
	assert.Len(t, batch, len(fractions))
	for i, q := range fractions {
		single, err := s.EstimateQuantile(q)
		assert.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestSketch_QuantilesMonotone(t *testing.T) {
	s := newIntSketch(t, 8, 3)
	for _, v := range shuffledInt64s(100000, 7) {
		s.Insert(v)
	}
	fractions, err := evenlySpacedDoubles(0, 1, 101)
	assert.NoError(t, err)
	out, err := s.EstimateQuantiles(fractions)
	assert.NoError(t, err)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i-1], out[i])
	}
}

func TestSketch_EndpointsAlwaysExact(t *testing.T) {
	s := newIntSketch(t, 8, 5)
	for _, v := range shuffledInt64s(100000, 13) {
		s.Insert(v)
	}
	lo, err := s.EstimateQuantile(0)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), lo)
	hi, err := s.EstimateQuantile(1)
	assert.NoError(t, err)
	assert.Equal(t, int64(100000), hi)
}

func TestSketch_HeavyDuplicates(t *testing.T) {
	s := newIntSketch(t, 200, 1)
	// 90% fives, 10% tens, interleaved
	for i := 0; i < 10000; i++ {
		if i%10 == 9 {
			s.Insert(10)
		} else {
			s.Insert(5)
		}
	}
	v, err := s.EstimateQuantile(0.5)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), v)
	v, err = s.EstimateQuantile(0.99)
	assert.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestSketch_LevelZeroSortCaching(t *testing.T) {
	s := newIntSketch(t, 200, 1)
	for _, v := range shuffledInt64s(50, 7) {
		s.Insert(v)
	}
	assert.False(t, s.isLevelZeroSorted)
	_, err := s.EstimateQuantile(0.5)
	assert.NoError(t, err)
	assert.True(t, s.isLevelZeroSorted)

	// the next insert invalidates the cached sort
	s.Insert(51)
	assert.False(t, s.isLevelZeroSorted)
	v, err := s.EstimateQuantile(1)
	assert.NoError(t, err)
	assert.Equal(t, int64(51), v)
}

func TestSketch_InsertionOrderInsensitive(t *testing.T) {
	asc := newIntSketch(t, 200, 9)
	desc := newIntSketch(t, 200, 9)
	const n = 50000
	for i := int64(1); i <= n; i++ {
		asc.Insert(i)
		desc.Insert(n + 1 - i)
	}
	tolerance := 3 * NormalizedRankError(200, false) * n
	for _, q := range []float64{0.1, 0.5, 0.9} {
		v1, err := asc.EstimateQuantile(q)
		assert.NoError(t, err)
		v2, err := desc.EstimateQuantile(q)
		assert.NoError(t, err)
		assert.InDelta(t, q*n, float64(v1), tolerance)
		assert.InDelta(t, q*n, float64(v2), tolerance)
	}
}

func TestSketch_QuantilesDoNotChangeN(t *testing.T) {
	s := newIntSketch(t, 8, 3)
	for _, v := range shuffledInt64s(10000, 7) {
		s.Insert(v)
	}
	before := s.N()
	_, err := s.EstimateQuantiles([]float64{0.1, 0.5, 0.9})
	assert.NoError(t, err)
	assert.Equal(t, before, s.N())
	checkStructure(t, s)
}
