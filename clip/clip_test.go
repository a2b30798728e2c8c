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

package clip

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/floats"
)

func TestNormBoundsResult(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		v     []float64
		bound float64
		p     float64
	}{
		{"long vector is rescaled", []float64{3, 4}, 1, 2},
		{"bound above norm", []float64{3, 4}, 10, 2},
		{"exactly at bound", []float64{3, 4}, 5, 2},
		{"L1 clipping", []float64{1, -1, 1, -1}, 2, 1},
		{"single coordinate", []float64{-7}, 0.5, 2},
	} {
		v := append([]float64(nil), tc.v...)
		if _, err := Norm(v, tc.bound, tc.p); err != nil {
			t.Fatalf("%s: Norm returned error %v", tc.desc, err)
		}
		if norm := floats.Norm(v, tc.p); norm > tc.bound*(1+1e-12) {
			t.Errorf("%s: clipped norm is %f, want at most %f", tc.desc, norm, tc.bound)
		}
	}
}

func TestNormKeepsDirection(t *testing.T) {
	v := []float64{3, 4}
	if _, err := L2(v, 1); err != nil {
		t.Fatalf("L2 returned error %v", err)
	}
	want := []float64{0.6, 0.8}
	if diff := cmp.Diff(want, v, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("clipped vector mismatch (-want +got):\n%s", diff)
	}
}

func TestNormLeavesShortVectorsUnchanged(t *testing.T) {
	v := []float64{0.1, -0.2, 0.05}
	want := append([]float64(nil), v...)
	preNorm, err := L2(v, 1)
	if err != nil {
		t.Fatalf("L2 returned error %v", err)
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("vector within bound was modified (-want +got):\n%s", diff)
	}
	if math.Abs(preNorm-floats.Norm(want, 2)) > 1e-12 {
		t.Errorf("got pre-clipping norm %f, want %f", preNorm, floats.Norm(want, 2))
	}
}

func TestNormZeroVector(t *testing.T) {
	v := []float64{0, 0, 0}
	if _, err := L2(v, 1); err != nil {
		t.Fatalf("L2 returned error %v", err)
	}
	for i, x := range v {
		if x != 0 {
			t.Errorf("coordinate %d of clipped zero vector is %f, want 0", i, x)
		}
	}
}

func TestNormRejectsBadArguments(t *testing.T) {
	if _, err := Norm([]float64{1}, 0, 2); err == nil {
		t.Errorf("Norm with zero bound should fail")
	}
	if _, err := Norm([]float64{1}, -1, 2); err == nil {
		t.Errorf("Norm with negative bound should fail")
	}
	if _, err := Norm([]float64{1}, 1, 3); err == nil {
		t.Errorf("Norm with unsupported p should fail")
	}
}
