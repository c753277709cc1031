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

// Float32SerDe serializes float32 items as their IEEE 754 bit patterns in
// 4 byte little endian words.
type Float32SerDe struct{}

func (f Float32SerDe) SizeOf(item float32) int {
	return 4
}

func (f Float32SerDe) SizeOfMany(mem []byte, offsetBytes int, numItems int) (int, error) {
	if numItems < 0 {
		return 0, errors.New("numItems must not be negative")
	}
	return numItems * 4, nil
}

func (f Float32SerDe) SerializeOneToSlice(item float32) []byte {
	bytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(bytes, math.Float32bits(item))
	return bytes
}

func (f Float32SerDe) SerializeManyToSlice(items []float32) []byte {
	if len(items) == 0 {
		return []byte{}
	}
	bytes := make([]byte, 4*len(items))
	offset := 0
	for i := 0; i < len(items); i++ {
		binary.LittleEndian.PutUint32(bytes[offset:], math.Float32bits(items[i]))
		offset += 4
	}
	return bytes
}

func (f Float32SerDe) DeserializeManyFromSlice(mem []byte, offsetBytes int, numItems int) ([]float32, error) {
	if numItems <= 0 {
		return []float32{}, nil
	}
	if !checkBounds(offsetBytes, numItems*4, len(mem)) {
		return nil, errors.New("offset out of bounds")
	}
	array := make([]float32, 0, numItems)
	for i := 0; i < numItems; i++ {
		array = append(array, math.Float32frombits(binary.LittleEndian.Uint32(mem[offsetBytes:])))
		offsetBytes += 4
	}
	return array, nil
}
