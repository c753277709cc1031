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

	"github.com/quantilekit/kllsketch/common"
)

func TestSketch_MergeDisjointRanges(t *testing.T) {
	s1 := newIntSketch(t, 200, 1)
	s2 := newIntSketch(t, 200, 2)
	for v := int64(1); v <= 1000; v++ {
		s1.Insert(v)
		s2.Insert(v + 1000)
	}
	s1.Merge(s2)

	assert.Equal(t, uint64(2000), s1.N())
	minV, err := s1.MinItem()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), minV)
	maxV, err := s1.MaxItem()
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), maxV)
	checkStructure(t, s1)

	median, err := s1.EstimateQuantile(0.5)
	assert.NoError(t, err)
	assert.InDelta(t, 1000, float64(median), 3*NormalizedRankError(200, false)*2000)
}

func TestSketch_MergeLeavesOtherUntouched(t *testing.T) {
	s1 := newIntSketch(t, 200, 1)
	s2 := newIntSketch(t, 200, 2)
	for _, v := range shuffledInt64s(5000, 7) {
		s1.Insert(v)
		s2.Insert(v)
	}
	before := newIntSketch(t, 200, 2)
	for _, v := range shuffledInt64s(5000, 7) {
		before.Insert(v)
	}
	s1.Merge(s2)
	assertSameState(t, before, s2)
}

func TestSketch_MergeEmptyIntoEmpty(t *testing.T) {
	s1 := newIntSketch(t, 200, 1)
	s2 := newIntSketch(t, 200, 2)
	s1.Merge(s2)
	assert.True(t, s1.IsEmpty())
	checkStructure(t, s1)
}

func TestSketch_MergeEmptyIntoFull(t *testing.T) {
	s1 := newIntSketch(t, 200, 1)
	for _, v := range shuffledInt64s(10000, 7) {
		s1.Insert(v)
	}
	snapshot := newIntSketch(t, 200, 1)
	for _, v := range shuffledInt64s(10000, 7) {
		snapshot.Insert(v)
	}
	s1.Merge(newIntSketch(t, 200, 2))
	// absorbing an empty sketch must not move a single item or flip a coin
	assertSameState(t, snapshot, s1)
}

func TestSketch_MergeFullIntoEmpty(t *testing.T) {
	s1 := newIntSketch(t, 200, 1)
	s2 := newIntSketch(t, 200, 2)
	for _, v := range shuffledInt64s(10000, 7) {
		s2.Insert(v)
	}
	s1.Merge(s2)
	assert.Equal(t, uint64(10000), s1.N())
	checkStructure(t, s1)
	median, err := s1.EstimateQuantile(0.5)
	assert.NoError(t, err)
	assert.InDelta(t, 5000, float64(median), 3*NormalizedRankError(200, false)*10000)
}

func TestSketch_MergeVariadic(t *testing.T) {
	const workers = 8
	const perWorker = 5000
	coordinator := newIntSketch(t, 200, 1)
	parts := make([]*Sketch[int64], workers)
	for w := 0; w < workers; w++ {
		parts[w] = newIntSketch(t, 200, uint64(w+2))
		base := int64(w * perWorker)
		for _, v := range shuffledInt64s(perWorker, int64(w+11)) {
			parts[w].Insert(base + v)
		}
	}
	coordinator.Merge(parts...)

	const total = workers * perWorker
	assert.Equal(t, uint64(total), coordinator.N())
	checkStructure(t, coordinator)
	minV, err := coordinator.MinItem()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), minV)
	maxV, err := coordinator.MaxItem()
	assert.NoError(t, err)
	assert.Equal(t, int64(total), maxV)

	tolerance := 3 * NormalizedRankError(200, false) * total
	for _, q := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		v, err := coordinator.EstimateQuantile(q)
		assert.NoError(t, err)
		assert.InDelta(t, q*total, float64(v), tolerance)
	}
}

func TestSketch_MergeSequentialMatchesAccuracy(t *testing.T) {
	// merging one by one and all at once walk different compaction paths
	// but both must stay inside the error envelope
	const workers = 4
	const perWorker = 10000
	build := func() []*Sketch[int64] {
		parts := make([]*Sketch[int64], workers)
		for w := 0; w < workers; w++ {
			parts[w] = newIntSketch(t, 200, uint64(w+2))
			base := int64(w * perWorker)
			for _, v := range shuffledInt64s(perWorker, int64(w+11)) {
				parts[w].Insert(base + v)
			}
		}
		return parts
	}

	variadic := newIntSketch(t, 200, 1)
	variadic.Merge(build()...)
	sequential := newIntSketch(t, 200, 1)
	for _, p := range build() {
		sequential.Merge(p)
	}

	assert.Equal(t, variadic.N(), sequential.N())
	const total = workers * perWorker
	tolerance := 3 * NormalizedRankError(200, false) * total
	for _, q := range []float64{0.25, 0.5, 0.75} {
		v1, err := variadic.EstimateQuantile(q)
		assert.NoError(t, err)
		v2, err := sequential.EstimateQuantile(q)
		assert.NoError(t, err)
		assert.InDelta(t, q*total, float64(v1), tolerance)
		assert.InDelta(t, q*total, float64(v2), tolerance)
	}
}

func TestSketch_MergeAggressiveCompaction(t *testing.T) {
	// small k forces deep level stacks on both sides of the merge
	s1 := newIntSketch(t, 8, 1)
	s2 := newIntSketch(t, 8, 2)
	for _, v := range shuffledInt64s(50000, 17) {
		s1.Insert(v)
	}
	for _, v := range shuffledInt64s(50000, 19) {
		s2.Insert(v + 50000)
	}
	s1.Merge(s2)
	assert.Equal(t, uint64(100000), s1.N())
	checkStructure(t, s1)
}

func TestSketch_MergeDifferentK(t *testing.T) {
	s1 := newIntSketch(t, 200, 1)
	s2 := newIntSketch(t, 64, 2)
	for _, v := range shuffledInt64s(20000, 7) {
		s1.Insert(v)
	}
	for _, v := range shuffledInt64s(20000, 9) {
		s2.Insert(v + 20000)
	}
	s1.Merge(s2)
	assert.Equal(t, uint64(40000), s1.N())
	// the target keeps its own accuracy parameter
	assert.Equal(t, uint16(200), s1.K())
	checkStructure(t, s1)
}

func TestSketch_MergeSlice(t *testing.T) {
	worker := newIntSketch(t, 200, 2)
	for _, v := range shuffledInt64s(10000, 7) {
		worker.Insert(v + 10000)
	}
	bytes, err := worker.ToSlice()
	assert.NoError(t, err)

	baseStream := shuffledInt64s(10000, 5)
	viaSlice := newIntSketch(t, 200, 1)
	viaSketch := newIntSketch(t, 200, 1)
	for _, v := range baseStream {
		viaSlice.Insert(v)
		viaSketch.Insert(v)
	}

	assert.NoError(t, viaSlice.MergeSlice(bytes))
	restored, err := FromSlice[int64](bytes, common.NaturalComparator[int64](false), common.Int64SerDe{})
	assert.NoError(t, err)
	viaSketch.Merge(restored)

	// merging the bytes and merging the deserialized sketch are the same thing
	assertSameState(t, viaSketch, viaSlice)
	assert.Equal(t, uint64(20000), viaSlice.N())
}

func TestSketch_MergeSliceErrors(t *testing.T) {
	s := newIntSketch(t, 200, 1)
	assert.Error(t, s.MergeSlice(nil))
	assert.Error(t, s.MergeSlice([]byte{1, 2, 3}))

	noSerde, err := New[int64](200, common.NaturalComparator[int64](false), nil)
	assert.NoError(t, err)
	assert.ErrorIs(t, noSerde.MergeSlice(make([]byte, 64)), ErrNoSerDe)
}
