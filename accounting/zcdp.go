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

package accounting

import (
	"math"

	"github.com/dplearn/dptrain/checks"
)

// ZCDPEpsilon converts a total zero-concentrated DP budget ρ to the ε of an
// (ε, delta) guarantee, using the standard conversion
//
//	ε = ρ + 2·sqrt(ρ·log(1/δ))
//
// zCDP budgets add across Gaussian releases, which makes this the natural
// currency for multi-release estimators such as iterative private means.
func ZCDPEpsilon(rho, delta float64) (float64, error) {
	if err := checks.CheckZCDPRho("ZCDPEpsilon", rho); err != nil {
		return 0, err
	}
	if err := checks.CheckDeltaStrict("ZCDPEpsilon", delta); err != nil {
		return 0, err
	}
	return rho + 2*math.Sqrt(rho*math.Log(1/delta)), nil
}

// SolveZCDPRho inverts ZCDPEpsilon: it returns the largest ρ whose conversion
// at delta does not exceed epsilon. The inversion is closed-form: with
// L = log(1/δ), sqrt(ρ) = sqrt(L+ε) - sqrt(L).
func SolveZCDPRho(epsilon, delta float64) (float64, error) {
	if err := checks.CheckEpsilonStrict("SolveZCDPRho", epsilon); err != nil {
		return 0, err
	}
	if err := checks.CheckDeltaStrict("SolveZCDPRho", delta); err != nil {
		return 0, err
	}
	logInvDelta := math.Log(1 / delta)
	root := math.Sqrt(logInvDelta+epsilon) - math.Sqrt(logInvDelta)
	return root * root, nil
}

// GaussianSigmaForZCDP returns the noise multiplier (noise scale relative to
// sensitivity) of a single Gaussian release satisfying ρ-zCDP:
// ρ = 1/(2σ²), so σ = 1/sqrt(2ρ).
func GaussianSigmaForZCDP(rho float64) (float64, error) {
	if err := checks.CheckZCDPRho("GaussianSigmaForZCDP", rho); err != nil {
		return 0, err
	}
	return 1 / math.Sqrt(2*rho), nil
}
