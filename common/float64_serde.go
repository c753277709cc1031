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

package common

import (
	"encoding/binary"
	"errors"
	"math"
)

// Float64SerDe serializes float64 items as their IEEE 754 bit patterns in
// 8 byte little endian words.
type Float64SerDe struct{}

func (f Float64SerDe) SizeOf(item float64) int {
	return 8
}

func (f Float64SerDe) SizeOfMany(mem []byte, offsetBytes int, numItems int) (int, error) {
	if numItems < 0 {
		return 0, errors.New("numItems must not be negative")
	}
	return numItems * 8, nil
}

func (f Float64SerDe) SerializeOneToSlice(item float64) []byte {
	bytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(bytes, math.Float64bits(item))
	return bytes
}

func (f Float64SerDe) SerializeManyToSlice(items []float64) []byte {
	if len(items) == 0 {
		return []byte{}
	}
	bytes := make([]byte, 8*len(items))
	offset := 0
	for i := 0; i < len(items); i++ {
		binary.LittleEndian.PutUint64(bytes[offset:], math.Float64bits(items[i]))
		offset += 8
	}
	return bytes
}

func (f Float64SerDe) DeserializeManyFromSlice(mem []byte, offsetBytes int, numItems int) ([]float64, error) {
	if numItems <= 0 {
		return []float64{}, nil
	}
	if !checkBounds(offsetBytes, numItems*8, len(mem)) {
		return nil, errors.New("offset out of bounds")
	}
	array := make([]float64, 0, numItems)
	for i := 0; i < numItems; i++ {
		array = append(array, math.Float64frombits(binary.LittleEndian.Uint64(mem[offsetBytes:])))
		offsetBytes += 8
	}
	return array, nil
}
