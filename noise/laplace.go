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

package noise

import (
	"math"

	"github.com/dplearn/dptrain/rand"
)

type laplace struct{}

// Laplace returns a Mechanism that adds Laplace noise to its input. Unlike
// the Gaussian mechanism it provides a pure ε-DP guarantee, so it remains
// usable with δ = 0. Per-example contributions must be clipped in L1 norm.
func Laplace() Mechanism {
	return laplace{}
}

func (laplace) Name() string {
	return "laplace"
}

// NormOrder is 1: the Laplace analysis bounds L1 sensitivity.
func (laplace) NormOrder() float64 {
	return 1
}

// AddNoise adds independent Laplace noise of scale σC to every coordinate of
// v, where C is the clipping norm applied upstream and σ the noise multiplier.
func (laplace) AddNoise(v []float64, clippingNorm, noiseMultiplier float64, src rand.Source) error {
	if err := checkAddNoiseArgs("laplace.AddNoise", clippingNorm, noiseMultiplier, src); err != nil {
		return err
	}
	if noiseMultiplier == 0 {
		return nil
	}
	scale := noiseMultiplier * clippingNorm
	for i := range v {
		// A Laplace variate is an exponential variate with a random sign.
		sign := 1.0
		if src.Uniform() <= 0.5 {
			sign = -1.0
		}
		v[i] += sign * scale * (-math.Log(src.Uniform()))
	}
	return nil
}

// RenyiLoss returns the RDP bound of integer order alpha for one application
// of the Laplace mechanism with noise multiplier σ (scale relative to the L1
// sensitivity), following the closed form of Mironov's "Rényi Differential
// Privacy":
//
//	(1/(α-1)) · log( α/(2α-1)·exp((α-1)/σ) + (α-1)/(2α-1)·exp(-α/σ) )
//
// The sampling rate is ignored: subsampling never increases the Rényi loss,
// so the unamplified value is a valid (if loose) upper bound.
func (laplace) RenyiLoss(alpha int, samplingRate, noiseMultiplier float64) float64 {
	sigma := noiseMultiplier
	if alpha <= 1 || sigma == 0 {
		return math.Inf(1)
	}
	a := float64(alpha)
	first := math.Log(a/(2*a-1)) + (a-1)/sigma
	second := math.Log((a-1)/(2*a-1)) - a/sigma
	return logAddExp(first, second) / (a - 1)
}

// SupportsPureEpsilon is true: Laplace noise of scale σC on an L1-bounded
// quantity is (1/σ)-DP.
func (laplace) SupportsPureEpsilon() bool {
	return true
}

// PureLoss returns the per-step pure ε, 1/σ.
func (laplace) PureLoss(noiseMultiplier float64) float64 {
	if noiseMultiplier == 0 {
		return math.Inf(1)
	}
	return 1 / noiseMultiplier
}
