//
// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package clip bounds the sensitivity of per-example contributions. Clipping
// must happen before per-example vectors are aggregated across a batch:
// composition theorems require a bound on each example's contribution, not on
// the aggregate.
package clip

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Norm rescales v in place so that its p-norm does not exceed bound, and
// returns the norm v had before clipping. Vectors already within the bound are
// left unchanged, and a zero vector stays zero. The value of bound must be
// strictly positive and p must be 1 or 2.
func Norm(v []float64, bound, p float64) (float64, error) {
	if bound <= 0 {
		return 0, fmt.Errorf("clip.Norm: bound is %f, must be strictly positive", bound)
	}
	if p != 1 && p != 2 {
		return 0, fmt.Errorf("clip.Norm: p is %f, only L1 and L2 clipping are supported", p)
	}
	norm := floats.Norm(v, p)
	if norm > bound {
		floats.Scale(bound/norm, v)
	}
	return norm, nil
}

// L2 rescales v in place so that its Euclidean norm does not exceed bound.
func L2(v []float64, bound float64) (float64, error) {
	return Norm(v, bound, 2)
}

// L1 rescales v in place so that its L1 norm does not exceed bound.
func L1(v []float64, bound float64) (float64, error) {
	return Norm(v, bound, 1)
}
