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
	"errors"
	"math"
	"strconv"
)

// Empirical error-curve fit constants from the KLL paper authors.
const (
	_PMF_COEF = 2.446
	_PMF_EXP  = 0.9433
	_CDF_COEF = 2.296
	_CDF_EXP  = 0.9723

	_EPS_DELTA_THRESHOLD   = 1e-6
	_ERROR_ROUNDING_FACTOR = 1e-6
)

// NormalizedRankError returns the approximate rank error for parameter k,
// normalized as a fraction between zero and one with roughly 99%
// confidence. If pmf is true the value is the double-sided error suitable
// for histogram style queries, otherwise the single-sided error of
// quantile estimation.
func NormalizedRankError(k uint16, pmf bool) float64 {
	if pmf {
		return _PMF_COEF / math.Pow(float64(k), _PMF_EXP)
	}
	return _CDF_COEF / math.Pow(float64(k), _CDF_EXP)
}

// KFromEpsilon returns the smallest k that yields a normalized rank error
// no larger than epsilon. This is the inverse of NormalizedRankError, with
// the result clamped to the valid k range.
func KFromEpsilon(epsilon float64, pmf bool) uint16 {
	eps := math.Max(epsilon, _EPS_DELTA_THRESHOLD)
	var kdbl float64
	if pmf {
		kdbl = math.Exp(math.Log(_PMF_COEF/eps) / _PMF_EXP)
	} else {
		kdbl = math.Exp(math.Log(_CDF_COEF/eps) / _CDF_EXP)
	}
	// if the fractional part is within the rounding tolerance, round instead
	// of taking the ceiling
	krnd := math.Round(kdbl)
	var k float64
	if math.Abs(krnd-kdbl) < _ERROR_ROUNDING_FACTOR {
		k = krnd
	} else {
		k = math.Ceil(kdbl)
	}
	k = math.Max(float64(_MIN_K), math.Min(float64(_MAX_K), k))
	return uint16(k)
}

func numDigits(n int) int {
	if n%10 == 0 {
		n++
	}
	l := math.Log(float64(n))
	return int(math.Ceil(l / math.Log(10)))
}

func intToFixedLengthString(number int, length int) string {
	num := strconv.Itoa(number)
	return characterPad(num, length, ' ', false)
}

func characterPad(s string, fieldLength int, padChar byte, postpend bool) string {
	sLen := len(s)
	if sLen < fieldLength {
		addstr := ""
		for i := 0; i < fieldLength-sLen; i++ {
			addstr += string(padChar)
		}
		if postpend {
			return s + addstr
		}
		return addstr + s
	}
	return s
}

func evenlySpacedDoubles(value1 float64, value2 float64, num int) ([]float64, error) {
	if num < 2 {
		return nil, errors.New("num must be >= 2")
	}
	out := make([]float64, num)
	out[0] = value1
	out[num-1] = value2
	if num == 2 {
		return out, nil
	}

	delta := (value2 - value1) / float64(num-1)

	for i := 1; i < num-1; i++ {
		out[i] = float64(i)*delta + value1
	}
	return out, nil
}
