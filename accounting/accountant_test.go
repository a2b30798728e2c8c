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
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dplearn/dptrain/noise"
)

func TestEpsilonWithoutStepsIsZero(t *testing.T) {
	a := NewAccountant(noise.Gaussian())
	eps, err := a.Epsilon(1e-5)
	if err != nil {
		t.Fatalf("Epsilon failed with %v", err)
	}
	if eps != 0 {
		t.Errorf("Epsilon of an empty account = %v, want 0", eps)
	}
}

func TestEpsilonMonotoneInSteps(t *testing.T) {
	const (
		q     = 0.05
		sigma = 1.2
		delta = 1e-5
	)
	a := NewAccountant(noise.Gaussian())
	prev := 0.0
	for step := 1; step <= 200; step++ {
		if err := a.ComposeStep(q, sigma); err != nil {
			t.Fatalf("step %d: ComposeStep failed with %v", step, err)
		}
		eps, err := a.Epsilon(delta)
		if err != nil {
			t.Fatalf("step %d: Epsilon failed with %v", step, err)
		}
		if eps < prev {
			t.Fatalf("step %d: epsilon decreased from %v to %v", step, prev, eps)
		}
		prev = eps
	}
}

func TestEpsilonIsPureFunctionOfStepLog(t *testing.T) {
	a := NewAccountant(noise.Gaussian())
	b := NewAccountant(noise.Gaussian())
	steps := []StepRecord{{0.1, 1.5}, {0.05, 1.5}, {0.1, 2}, {1, 4}}
	for _, s := range steps {
		if err := a.ComposeStep(s.SamplingRate, s.NoiseMultiplier); err != nil {
			t.Fatalf("ComposeStep failed with %v", err)
		}
		if err := b.ComposeStep(s.SamplingRate, s.NoiseMultiplier); err != nil {
			t.Fatalf("ComposeStep failed with %v", err)
		}
	}
	epsA, err := a.Epsilon(1e-6)
	if err != nil {
		t.Fatalf("Epsilon failed with %v", err)
	}
	epsB, err := b.Epsilon(1e-6)
	if err != nil {
		t.Fatalf("Epsilon failed with %v", err)
	}
	if epsA != epsB {
		t.Errorf("accountants with identical logs disagree: %v != %v", epsA, epsB)
	}
	if diff := cmp.Diff(steps, a.Steps()); diff != "" {
		t.Errorf("step log mismatch (-want +got):\n%s", diff)
	}
}

func TestEpsilonTighterThanLinearScaling(t *testing.T) {
	// Composing n subsampled steps must cost less than n times the ε of a
	// single step, which is what basic composition would charge.
	const (
		n     = 100
		q     = 0.05
		sigma = 1.2
		delta = 1e-5
	)
	single := NewAccountant(noise.Gaussian())
	if err := single.ComposeStep(q, sigma); err != nil {
		t.Fatalf("ComposeStep failed with %v", err)
	}
	epsSingle, err := single.Epsilon(delta)
	if err != nil {
		t.Fatalf("Epsilon failed with %v", err)
	}
	composed := NewAccountant(noise.Gaussian())
	for i := 0; i < n; i++ {
		if err := composed.ComposeStep(q, sigma); err != nil {
			t.Fatalf("ComposeStep failed with %v", err)
		}
	}
	epsComposed, err := composed.Epsilon(delta)
	if err != nil {
		t.Fatalf("Epsilon failed with %v", err)
	}
	if epsComposed >= float64(n)*epsSingle {
		t.Errorf("composed epsilon %v is not tighter than linear scaling %v", epsComposed, float64(n)*epsSingle)
	}
}

func TestEpsilonZeroDeltaGaussianFails(t *testing.T) {
	a := NewAccountant(noise.Gaussian())
	if err := a.ComposeStep(1, 1); err != nil {
		t.Fatalf("ComposeStep failed with %v", err)
	}
	_, err := a.Epsilon(0)
	var accErr *AccountingError
	if !errors.As(err, &accErr) {
		t.Errorf("Epsilon(0) with Gaussian noise returned %v, want AccountingError", err)
	}
}

func TestEpsilonZeroDeltaLaplace(t *testing.T) {
	a := NewAccountant(noise.Laplace())
	for i := 0; i < 10; i++ {
		if err := a.ComposeStep(1, 2); err != nil {
			t.Fatalf("ComposeStep failed with %v", err)
		}
	}
	eps, err := a.Epsilon(0)
	if err != nil {
		t.Fatalf("Epsilon(0) failed with %v", err)
	}
	// 10 steps of Laplace noise with multiplier 2 spend 10 · 1/2 in pure ε.
	if math.Abs(eps-5) > 1e-12 {
		t.Errorf("Epsilon(0) = %v, want 5", eps)
	}
}

func TestEpsilonInfiniteWhenMechanismDisabled(t *testing.T) {
	a := NewAccountant(noise.Gaussian())
	if err := a.ComposeStep(0.1, 0); err != nil {
		t.Fatalf("ComposeStep failed with %v", err)
	}
	eps, err := a.Epsilon(1e-5)
	if err != nil {
		t.Fatalf("Epsilon failed with %v", err)
	}
	if !math.IsInf(eps, 1) {
		t.Errorf("Epsilon after a noiseless step = %v, want +Inf", eps)
	}
}

func TestComposeStepRejectsBadArguments(t *testing.T) {
	a := NewAccountant(noise.Gaussian())
	if err := a.ComposeStep(0, 1); err == nil {
		t.Errorf("ComposeStep with zero sampling rate should fail")
	}
	if err := a.ComposeStep(1.5, 1); err == nil {
		t.Errorf("ComposeStep with sampling rate above 1 should fail")
	}
	if err := a.ComposeStep(0.1, -1); err == nil {
		t.Errorf("ComposeStep with negative sigma should fail")
	}
	if a.NumSteps() != 0 {
		t.Errorf("rejected steps must not be recorded, got %d records", a.NumSteps())
	}
}

func TestSolveNoiseMultiplierMeetsTarget(t *testing.T) {
	for _, tc := range []struct {
		desc          string
		epsilonTarget float64
		deltaTarget   float64
		numSteps      int
		samplingRate  float64
	}{
		{"moderate budget", 3.0, 1e-5, 100, 0.05},
		{"tight budget", 0.5, 1e-6, 1000, 0.01},
		{"full batch", 2.0, 1e-5, 50, 1.0},
	} {
		sigma, err := SolveNoiseMultiplier(noise.Gaussian(), tc.epsilonTarget, tc.deltaTarget, tc.numSteps, tc.samplingRate)
		if err != nil {
			t.Fatalf("%s: SolveNoiseMultiplier failed with %v", tc.desc, err)
		}
		a := NewAccountant(noise.Gaussian())
		for i := 0; i < tc.numSteps; i++ {
			if err := a.ComposeStep(tc.samplingRate, sigma); err != nil {
				t.Fatalf("%s: ComposeStep failed with %v", tc.desc, err)
			}
		}
		eps, err := a.Epsilon(tc.deltaTarget)
		if err != nil {
			t.Fatalf("%s: Epsilon failed with %v", tc.desc, err)
		}
		if eps > tc.epsilonTarget {
			t.Errorf("%s: composed epsilon %v exceeds target %v at solved sigma %v", tc.desc, eps, tc.epsilonTarget, sigma)
		}
		// Reducing σ below the solution must overshoot the target: the
		// solution is minimal up to the solver tolerance.
		smaller := sigma * 0.99
		if got := epsilonForSteps(noise.Gaussian(), tc.numSteps, tc.samplingRate, smaller, tc.deltaTarget); got <= tc.epsilonTarget {
			t.Errorf("%s: epsilon %v at sigma %v is still within target, solution not minimal", tc.desc, got, smaller)
		}
	}
}

func TestSolveNoiseMultiplierLaplacePure(t *testing.T) {
	// Pure ε composition is additive, so the minimal σ is numSteps/ε.
	sigma, err := SolveNoiseMultiplier(noise.Laplace(), 5, 0, 10, 1)
	if err != nil {
		t.Fatalf("SolveNoiseMultiplier failed with %v", err)
	}
	if math.Abs(sigma-2) > 2*sigmaTolerance*2 {
		t.Errorf("got sigma %v, want approximately 2", sigma)
	}
}

func TestSolveNoiseMultiplierInfeasible(t *testing.T) {
	for _, tc := range []struct {
		desc          string
		mechanism     noise.Mechanism
		epsilonTarget float64
		deltaTarget   float64
		numSteps      int
		samplingRate  float64
	}{
		{"pure epsilon from gaussian", noise.Gaussian(), 1e-9, 0.0, 1000000000, 1.0},
		{"pure epsilon beyond ceiling", noise.Laplace(), 1e-9, 0.0, 1000000000, 1.0},
	} {
		_, err := SolveNoiseMultiplier(tc.mechanism, tc.epsilonTarget, tc.deltaTarget, tc.numSteps, tc.samplingRate)
		var infErr *InfeasibleBudgetError
		if !errors.As(err, &infErr) {
			t.Errorf("%s: got error %v, want InfeasibleBudgetError", tc.desc, err)
		}
	}
}

func TestSolveNoiseMultiplierRejectsBadArguments(t *testing.T) {
	if _, err := SolveNoiseMultiplier(noise.Gaussian(), 0, 1e-5, 100, 0.1); err == nil {
		t.Errorf("zero epsilon target should fail")
	}
	if _, err := SolveNoiseMultiplier(noise.Gaussian(), 1, 1e-5, 0, 0.1); err == nil {
		t.Errorf("zero steps should fail")
	}
	if _, err := SolveNoiseMultiplier(noise.Gaussian(), 1, 1e-5, 100, 0); err == nil {
		t.Errorf("zero sampling rate should fail")
	}
	if _, err := SolveNoiseMultiplier(noise.Gaussian(), 1, 1, 100, 0.1); err == nil {
		t.Errorf("delta of 1 should fail")
	}
}

func TestZCDPRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		epsilon float64
		delta   float64
	}{
		{1, 1e-5},
		{3, 1e-6},
		{0.1, 1e-8},
	} {
		rho, err := SolveZCDPRho(tc.epsilon, tc.delta)
		if err != nil {
			t.Fatalf("SolveZCDPRho(%f, %e) failed with %v", tc.epsilon, tc.delta, err)
		}
		eps, err := ZCDPEpsilon(rho, tc.delta)
		if err != nil {
			t.Fatalf("ZCDPEpsilon failed with %v", err)
		}
		if math.Abs(eps-tc.epsilon) > 1e-9 {
			t.Errorf("round trip of epsilon %f gave %f", tc.epsilon, eps)
		}
	}
}

func TestZCDPMatchesAccountantOnGaussianReleases(t *testing.T) {
	// A ρ-zCDP Gaussian release is a full-batch Gaussian step with
	// σ = 1/sqrt(2ρ), whose Rényi loss at order α is exactly ρα. The
	// accountant therefore realizes ε(α) = nρα + log(1/δ)/(α-1) minimized
	// over its integer order grid. The closed-form zCDP conversion minimizes
	// the same curve over continuous α, so it lower-bounds the accountant,
	// and restricting to integer orders loses at most a small fraction.
	const (
		rho   = 0.05
		n     = 4
		delta = 1e-6
	)
	sigma, err := GaussianSigmaForZCDP(rho)
	if err != nil {
		t.Fatalf("GaussianSigmaForZCDP failed with %v", err)
	}
	a := NewAccountant(noise.Gaussian())
	for i := 0; i < n; i++ {
		if err := a.ComposeStep(1, sigma); err != nil {
			t.Fatalf("ComposeStep failed with %v", err)
		}
	}
	accounted, err := a.Epsilon(delta)
	if err != nil {
		t.Fatalf("Epsilon failed with %v", err)
	}
	total := float64(n) * rho
	logInvDelta := math.Log(1 / delta)
	gridOptimum := math.Inf(1)
	for _, alpha := range defaultOrders {
		candidate := total*float64(alpha) + logInvDelta/float64(alpha-1)
		if candidate < gridOptimum {
			gridOptimum = candidate
		}
	}
	if math.Abs(accounted-gridOptimum) > 1e-9 {
		t.Errorf("accountant epsilon %v disagrees with the zCDP curve's grid optimum %v", accounted, gridOptimum)
	}
	closedForm, err := ZCDPEpsilon(total, delta)
	if err != nil {
		t.Fatalf("ZCDPEpsilon failed with %v", err)
	}
	if accounted < closedForm-1e-9 {
		t.Errorf("accountant epsilon %v is below the continuous optimum %v", accounted, closedForm)
	}
	if accounted > 1.01*closedForm {
		t.Errorf("accountant epsilon %v exceeds the zCDP closed form %v by more than 1%%", accounted, closedForm)
	}
}
