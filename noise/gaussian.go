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
	"fmt"
	"math"

	"github.com/dplearn/dptrain/checks"
	"github.com/dplearn/dptrain/rand"
)

type gaussian struct{}

// Gaussian returns a Mechanism that adds Gaussian noise to its input. It is
// the mechanism of choice for iterative training: the privacy loss of the
// Poisson-subsampled Gaussian has a tight Rényi characterization, which the
// accountant composes across steps.
func Gaussian() Mechanism {
	return gaussian{}
}

func (gaussian) Name() string {
	return "gaussian"
}

// NormOrder is 2: the Gaussian analysis bounds L2 sensitivity.
func (gaussian) NormOrder() float64 {
	return 2
}

// AddNoise adds independent N(0, (σC)²) noise to every coordinate of v, where
// C is the clipping norm applied upstream and σ the noise multiplier.
func (gaussian) AddNoise(v []float64, clippingNorm, noiseMultiplier float64, src rand.Source) error {
	if err := checkAddNoiseArgs("gaussian.AddNoise", clippingNorm, noiseMultiplier, src); err != nil {
		return err
	}
	if noiseMultiplier == 0 {
		return nil
	}
	scale := noiseMultiplier * clippingNorm
	for i := range v {
		v[i] += scale * src.Normal()
	}
	return nil
}

// RenyiLoss returns the RDP bound of integer order alpha for one application
// of the Poisson-subsampled Gaussian mechanism with sampling rate q and noise
// multiplier σ. For q = 1 this is the exact Gaussian value α/(2σ²); for q < 1
// it evaluates the binomial expansion
//
//	(1/(α-1)) · log( Σ_{i=0..α} C(α,i) qⁱ (1-q)^(α-i) exp((i²-i)/(2σ²)) )
//
// in log space to stay numerically stable for large α and small q.
func (gaussian) RenyiLoss(alpha int, samplingRate, noiseMultiplier float64) float64 {
	q, sigma := samplingRate, noiseMultiplier
	if alpha <= 1 {
		return math.Inf(1)
	}
	if sigma == 0 {
		return math.Inf(1)
	}
	if q == 0 {
		return 0
	}
	if q == 1 {
		return float64(alpha) / (2 * sigma * sigma)
	}
	a := float64(alpha)
	logQ, logOneMinusQ := math.Log(q), math.Log1p(-q)
	logSum := math.Inf(-1)
	for i := 0; i <= alpha; i++ {
		fi := float64(i)
		term := logBinomial(alpha, i) + fi*logQ + (fi*fi-fi)/(2*sigma*sigma)
		if i < alpha {
			term += (a - fi) * logOneMinusQ
		}
		logSum = logAddExp(logSum, term)
	}
	return logSum / (a - 1)
}

// SupportsPureEpsilon is false: the Gaussian mechanism cannot achieve δ = 0.
func (gaussian) SupportsPureEpsilon() bool {
	return false
}

// PureLoss is +∞ for the Gaussian mechanism.
func (gaussian) PureLoss(noiseMultiplier float64) float64 {
	return math.Inf(1)
}

func checkAddNoiseArgs(label string, clippingNorm, noiseMultiplier float64, src rand.Source) error {
	if err := checks.CheckClippingNorm(label, clippingNorm); err != nil {
		return err
	}
	if err := checks.CheckNoiseMultiplier(label, noiseMultiplier); err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("%s: rand source must not be nil", label)
	}
	return nil
}
