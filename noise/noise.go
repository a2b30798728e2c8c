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

// Package noise contains mechanisms that perturb bounded quantities to make
// them differentially private, together with the analytic characterization of
// their per-step privacy loss.
package noise

import (
	"math"

	log "github.com/golang/glog"

	"github.com/dplearn/dptrain/rand"
)

// Kind is an enum type. Its values are the supported noise distribution types
// for differentially private training.
type Kind int

// Noise distributions used to achieve differential privacy.
const (
	GaussianNoise Kind = iota
	LaplaceNoise
	Unrecognised
)

// ToMechanism converts a Kind into a Mechanism instance.
func ToMechanism(k Kind) Mechanism {
	switch k {
	case GaussianNoise:
		return Gaussian()
	case LaplaceNoise:
		return Laplace()
	case Unrecognised:
		log.Warningf("ToMechanism: Unrecognised noise specified, returning nil")
	default:
		log.Warningf("ToMechanism: unknown kind (%v) specified, returning nil", k)
	}
	return nil
}

// ToKind converts a Mechanism instance into a Kind.
func ToKind(m Mechanism) Kind {
	switch m {
	case Gaussian():
		return GaussianNoise
	case Laplace():
		return LaplaceNoise
	case nil:
		log.Warningf("ToKind: nil mechanism specified, returning Unrecognised")
	default:
		log.Warningf("ToKind: unknown Mechanism (%v) specified, returning Unrecognised", m)
	}
	return Unrecognised
}

// Mechanism perturbs aggregated, sensitivity-bounded quantities with fresh
// random noise. A Mechanism is stateless aside from the rand.Source passed to
// AddNoise; every invocation draws independent noise.
type Mechanism interface {
	// Name identifies the mechanism in privacy reports.
	Name() string

	// NormOrder returns the norm order p in which per-example contributions
	// must be clipped before aggregation for the mechanism's privacy analysis
	// to hold: 2 for Gaussian, 1 for Laplace.
	NormOrder() float64

	// AddNoise perturbs every coordinate of v in place with independent noise
	// of scale noiseMultiplier·clippingNorm, drawn from src. A noiseMultiplier
	// of zero leaves v unchanged (and provides no privacy).
	AddNoise(v []float64, clippingNorm, noiseMultiplier float64, src rand.Source) error

	// RenyiLoss returns the Rényi divergence bound of order alpha for a single
	// application of the mechanism with the given Poisson sampling rate and
	// noise multiplier. The order must be an integer greater than 1.
	RenyiLoss(alpha int, samplingRate, noiseMultiplier float64) float64

	// SupportsPureEpsilon reports whether the mechanism provides a pure
	// ε-DP guarantee (δ = 0).
	SupportsPureEpsilon() bool

	// PureLoss returns the per-step pure ε spent by one application of the
	// mechanism, or +∞ if the mechanism has no pure-ε guarantee.
	PureLoss(noiseMultiplier float64) float64
}

// logAddExp computes log(exp(a) + exp(b)) without overflowing for large a, b.
func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	max, min := a, b
	if b > a {
		max, min = b, a
	}
	return max + math.Log1p(math.Exp(min-max))
}

// logBinomial computes log(C(n, k)) via the log-gamma function.
func logBinomial(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}
