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

// Package checks contains checks for the parameters of differentially
// private training.
package checks

import (
	"fmt"
	"math"
)

// CheckEpsilonStrict returns an error if ε is nonpositive or +∞.
func CheckEpsilonStrict(label string, epsilon float64) error {
	if epsilon <= 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("%s: Epsilon is %f, must be strictly positive and finite", label, epsilon)
	}
	return nil
}

// CheckDelta returns an error if δ is negative or greater than or equal to 1.
func CheckDelta(label string, delta float64) error {
	if math.IsNaN(delta) {
		return fmt.Errorf("%s: Delta is %e, cannot be NaN", label, delta)
	}
	if delta < 0 {
		return fmt.Errorf("%s: Delta is %e, cannot be negative", label, delta)
	}
	if delta >= 1 {
		return fmt.Errorf("%s: Delta is %e, must be strictly less than 1", label, delta)
	}
	return nil
}

// CheckDeltaStrict returns an error if δ is nonpositive or greater than or equal to 1.
func CheckDeltaStrict(label string, delta float64) error {
	if math.IsNaN(delta) {
		return fmt.Errorf("%s: Delta is %e, cannot be NaN", label, delta)
	}
	if delta <= 0 {
		return fmt.Errorf("%s: Delta is %e, must be strictly positive", label, delta)
	}
	if delta >= 1 {
		return fmt.Errorf("%s: Delta is %e, must be strictly less than 1", label, delta)
	}
	return nil
}

// CheckSamplingRate returns an error if the sampling rate q is outside (0, 1].
func CheckSamplingRate(label string, q float64) error {
	if math.IsNaN(q) {
		return fmt.Errorf("%s: SamplingRate is %f, cannot be NaN", label, q)
	}
	if q <= 0 || q > 1 {
		return fmt.Errorf("%s: SamplingRate is %f, must be in (0, 1]", label, q)
	}
	return nil
}

// CheckClippingNorm returns an error if the clipping norm is nonpositive or +∞.
func CheckClippingNorm(label string, clippingNorm float64) error {
	if clippingNorm <= 0 || math.IsInf(clippingNorm, 0) || math.IsNaN(clippingNorm) {
		return fmt.Errorf("%s: ClippingNorm is %f, must be strictly positive and finite", label, clippingNorm)
	}
	return nil
}

// CheckNumSteps returns an error if the number of steps is nonpositive.
func CheckNumSteps(label string, numSteps int) error {
	if numSteps <= 0 {
		return fmt.Errorf("%s: NumSteps is %d, must be strictly positive", label, numSteps)
	}
	return nil
}

// CheckNoiseMultiplier returns an error if σ is negative, NaN or +∞. A σ of
// zero is accepted: it disables the mechanism, which callers use as a
// non-private baseline.
func CheckNoiseMultiplier(label string, sigma float64) error {
	if sigma < 0 || math.IsInf(sigma, 0) || math.IsNaN(sigma) {
		return fmt.Errorf("%s: NoiseMultiplier is %f, must be nonnegative and finite", label, sigma)
	}
	return nil
}

// CheckNoiseMultiplierStrict returns an error if σ is nonpositive, NaN or +∞.
func CheckNoiseMultiplierStrict(label string, sigma float64) error {
	if sigma <= 0 || math.IsInf(sigma, 0) || math.IsNaN(sigma) {
		return fmt.Errorf("%s: NoiseMultiplier is %f, must be strictly positive and finite", label, sigma)
	}
	return nil
}

// CheckLearningRate returns an error if the learning rate is nonpositive or +∞.
func CheckLearningRate(label string, learningRate float64) error {
	if learningRate <= 0 || math.IsInf(learningRate, 0) || math.IsNaN(learningRate) {
		return fmt.Errorf("%s: LearningRate is %f, must be strictly positive and finite", label, learningRate)
	}
	return nil
}

// CheckZCDPRho returns an error if the zCDP parameter ρ is nonpositive or +∞.
func CheckZCDPRho(label string, rho float64) error {
	if rho <= 0 || math.IsInf(rho, 0) || math.IsNaN(rho) {
		return fmt.Errorf("%s: Rho is %f, must be strictly positive and finite", label, rho)
	}
	return nil
}
