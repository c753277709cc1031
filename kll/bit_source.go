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

	"github.com/twmb/murmur3"
)

// bitSource produces the unbiased coin flips that decide which half of a
// level survives a compaction. Each sketch owns its own source, so two
// sketches never share a random stream and a fixed seed replays the exact
// sequence of compaction decisions.
//
// The state is just (seed, calls): flip number i is the low bit of
// murmur3(seed, i). Both words serialize, so a deserialized sketch
// continues the identical bit stream.
type bitSource struct {
	seed  uint64
	calls uint64
}

func (b *bitSource) next() uint32 {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], b.calls)
	b.calls++
	return uint32(murmur3.SeedSum64(b.seed, scratch[:]) & 1)
}
