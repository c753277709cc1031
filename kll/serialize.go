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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/quantilekit/kllsketch/common"
	"github.com/quantilekit/kllsketch/internal"
)

// Serialized layout, little endian. The preamble is fixed size; the data
// section is present only for non-empty sketches. The trailing checksum
// covers every byte before it.
//
//	byte 0     preamble ints (8)
//	byte 1     serial version (1)
//	byte 2     family id (15)
//	byte 3     flags
//	bytes 4-5  k
//	byte 6     numLevels
//	byte 7     reserved
//	bytes 8-15   n
//	bytes 16-23  random bit source seed
//	bytes 24-31  random bit source call count
//	bytes 32..   levels array ((numLevels+1) x 4), min item, max item,
//	             retained items in buffer order
//	last 8     xxhash64 checksum
const (
	_PREAMBLE_INTS_BYTE_ADR = 0
	_SER_VER_BYTE_ADR       = 1
	_FAMILY_BYTE_ADR        = 2
	_FLAGS_BYTE_ADR         = 3
	_K_SHORT_ADR            = 4 // to 5
	_NUM_LEVELS_BYTE_ADR    = 6
	_N_LONG_ADR             = 8  // to 15
	_SEED_LONG_ADR          = 16 // to 23
	_RANDOM_CALLS_LONG_ADR  = 24 // to 31
	_DATA_START_ADR         = 32

	_PREAMBLE_INTS  = 8
	_SERIAL_VERSION = 1
	_CHECKSUM_BYTES = 8

	// Flag bit masks
	_EMPTY_BIT_MASK             = 1
	_LEVEL_ZERO_SORTED_BIT_MASK = 2
)

var (
	errSketchTypeMismatch = errors.New("sketch type mismatch")
	errSerVerMismatch     = errors.New("unsupported serial version")
	errInsufficientData   = errors.New("insufficient data")
	errSizeMismatch       = errors.New("serialized size does not match payload")
	errChecksumMismatch   = errors.New("payload checksum mismatch")
	errCorruptState       = errors.New("serialized sketch state is corrupted")
)

// ToSlice serializes the sketch. The byte form carries everything needed
// to reconstruct the sketch exactly: k, n, the random source state, the
// level boundaries, the retained items in their current buffer order and
// the exact min/max. A deserialized sketch therefore behaves identically
// to this one, down to future compaction coin flips.
func (s *Sketch[C]) ToSlice() ([]byte, error) {
	if s.serde == nil {
		return nil, ErrNoSerDe
	}
	out := make([]byte, s.currentSerializedSizeBytes())

	flags := byte(0)
	if s.IsEmpty() {
		flags |= _EMPTY_BIT_MASK
	}
	if s.isLevelZeroSorted {
		flags |= _LEVEL_ZERO_SORTED_BIT_MASK
	}
	out[_PREAMBLE_INTS_BYTE_ADR] = _PREAMBLE_INTS
	out[_SER_VER_BYTE_ADR] = _SERIAL_VERSION
	out[_FAMILY_BYTE_ADR] = byte(internal.FamilyEnum.Kll.Id)
	out[_FLAGS_BYTE_ADR] = flags
	binary.LittleEndian.PutUint16(out[_K_SHORT_ADR:], s.k)
	out[_NUM_LEVELS_BYTE_ADR] = s.numLevels
	binary.LittleEndian.PutUint64(out[_N_LONG_ADR:], s.n)
	binary.LittleEndian.PutUint64(out[_SEED_LONG_ADR:], s.random.seed)
	binary.LittleEndian.PutUint64(out[_RANDOM_CALLS_LONG_ADR:], s.random.calls)

	offset := _DATA_START_ADR
	if !s.IsEmpty() {
		for _, bound := range s.levels {
			binary.LittleEndian.PutUint32(out[offset:], bound)
			offset += 4
		}
		offset += copy(out[offset:], s.serde.SerializeOneToSlice(*s.minItem))
		offset += copy(out[offset:], s.serde.SerializeOneToSlice(*s.maxItem))
		retained := s.items[s.levels[0]:s.levels[s.numLevels]]
		offset += copy(out[offset:], s.serde.SerializeManyToSlice(retained))
	}
	binary.LittleEndian.PutUint64(out[offset:], xxhash.Sum64(out[:offset]))
	return out, nil
}

// SerializedSizeBytes returns the exact size of the ToSlice output for the
// current state.
func (s *Sketch[C]) SerializedSizeBytes() (int, error) {
	if s.serde == nil {
		return 0, ErrNoSerDe
	}
	return s.currentSerializedSizeBytes(), nil
}

func (s *Sketch[C]) currentSerializedSizeBytes() int {
	totalBytes := _DATA_START_ADR + _CHECKSUM_BYTES
	if !s.IsEmpty() {
		totalBytes += len(s.levels) * 4
		totalBytes += s.serde.SizeOf(*s.minItem) + s.serde.SizeOf(*s.maxItem)
		for _, item := range s.items[s.levels[0]:s.levels[s.numLevels]] {
			totalBytes += s.serde.SizeOf(item)
		}
	}
	return totalBytes
}

// FromSlice reconstructs a sketch serialized by ToSlice. The decode is
// strict: the family, version and checksum are verified and the level
// boundaries are cross-checked against the capacity schedule and n before
// any state is accepted.
func FromSlice[C comparable](data []byte, compareFn common.CompareFn[C], serde common.ItemSketchSerde[C]) (*Sketch[C], error) {
	if serde == nil {
		return nil, ErrNoSerDe
	}
	if compareFn == nil {
		return nil, ErrNoCompareFn
	}
	if len(data) < _DATA_START_ADR+_CHECKSUM_BYTES {
		return nil, errInsufficientData
	}
	if data[_PREAMBLE_INTS_BYTE_ADR] != _PREAMBLE_INTS ||
		data[_FAMILY_BYTE_ADR] != byte(internal.FamilyEnum.Kll.Id) {
		return nil, errSketchTypeMismatch
	}
	if data[_SER_VER_BYTE_ADR] != _SERIAL_VERSION {
		return nil, fmt.Errorf("%w: %d", errSerVerMismatch, data[_SER_VER_BYTE_ADR])
	}
	payload := data[:len(data)-_CHECKSUM_BYTES]
	if xxhash.Sum64(payload) != binary.LittleEndian.Uint64(data[len(payload):]) {
		return nil, errChecksumMismatch
	}

	flags := data[_FLAGS_BYTE_ADR]
	k := binary.LittleEndian.Uint16(data[_K_SHORT_ADR:])
	numLevels := data[_NUM_LEVELS_BYTE_ADR]
	n := binary.LittleEndian.Uint64(data[_N_LONG_ADR:])
	seed := binary.LittleEndian.Uint64(data[_SEED_LONG_ADR:])
	randomCalls := binary.LittleEndian.Uint64(data[_RANDOM_CALLS_LONG_ADR:])

	s, err := NewWithSeed(k, seed, compareFn, serde)
	if err != nil {
		return nil, err
	}
	s.random.calls = randomCalls
	s.isLevelZeroSorted = flags&_LEVEL_ZERO_SORTED_BIT_MASK != 0

	if flags&_EMPTY_BIT_MASK != 0 {
		if n != 0 || numLevels != 1 {
			return nil, errCorruptState
		}
		if len(payload) != _DATA_START_ADR {
			return nil, errSizeMismatch
		}
		return s, nil
	}

	if n == 0 || numLevels < 1 || int(numLevels) > ubOnNumLevels(n) {
		return nil, errCorruptState
	}
	offset := _DATA_START_ADR
	levelsBytes := (int(numLevels) + 1) * 4
	if offset+levelsBytes > len(payload) {
		return nil, errInsufficientData
	}
	levels := make([]uint32, numLevels+1)
	for i := range levels {
		levels[i] = binary.LittleEndian.Uint32(data[offset:])
		offset += 4
	}
	totalCap := computeTotalCapacity(k, numLevels)
	if levels[numLevels] != totalCap {
		return nil, errCorruptState
	}
	for i := 0; i < int(numLevels); i++ {
		if levels[i] > levels[i+1] {
			return nil, errCorruptState
		}
	}
	if sumSampleWeights(numLevels, levels) != n {
		return nil, errCorruptState
	}

	minItem, offset, err := decodeOne(payload, offset, serde)
	if err != nil {
		return nil, err
	}
	maxItem, offset, err := decodeOne(payload, offset, serde)
	if err != nil {
		return nil, err
	}
	numRetained := int(levels[numLevels] - levels[0])
	retainedLen, err := serde.SizeOfMany(payload, offset, numRetained)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptState, err)
	}
	if offset+retainedLen > len(payload) {
		return nil, errInsufficientData
	}
	retained, err := serde.DeserializeManyFromSlice(payload, offset, numRetained)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptState, err)
	}
	offset += retainedLen
	if offset != len(payload) {
		return nil, errSizeMismatch
	}

	items := make([]C, totalCap)
	copy(items[levels[0]:], retained)
	s.n = n
	s.numLevels = numLevels
	s.levels = levels
	s.items = items
	s.minItem = &minItem
	s.maxItem = &maxItem
	return s, nil
}

// decodeOne deserializes a single item at offset and returns the new
// offset right past it.
func decodeOne[C comparable](payload []byte, offset int, serde common.ItemSketchSerde[C]) (C, int, error) {
	var zero C
	size, err := serde.SizeOfMany(payload, offset, 1)
	if err != nil {
		return zero, 0, fmt.Errorf("%w: %v", errCorruptState, err)
	}
	if offset+size > len(payload) {
		return zero, 0, errInsufficientData
	}
	one, err := serde.DeserializeManyFromSlice(payload, offset, 1)
	if err != nil {
		return zero, 0, fmt.Errorf("%w: %v", errCorruptState, err)
	}
	return one[0], offset + size, nil
}
