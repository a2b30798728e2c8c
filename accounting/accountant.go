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

// Package accounting tracks the privacy loss of iterative noise applications
// and composes it into an overall (ε, δ) guarantee.
//
// Composition uses a Rényi differential privacy accountant over a fixed grid
// of integer orders: each step contributes its mechanism's Rényi loss at every
// order, losses add across steps, and the (ε, δ) conversion
//
//	ε(δ) = min_α [ rdp(α) + log(1/δ)/(α-1) ]
//
// picks the tightest order. This is substantially tighter than summing
// per-step (ε, δ) pairs and remains stable over millions of steps.
package accounting

import (
	"fmt"
	"math"

	"github.com/dplearn/dptrain/checks"
	"github.com/dplearn/dptrain/noise"
)

// defaultOrders is the grid of Rényi orders the accountant tracks. Integer
// orders keep the subsampled Gaussian bound exact; the large tail orders
// cover high-noise and low-sampling-rate regimes.
var defaultOrders = func() []int {
	orders := make([]int, 0, 68)
	for alpha := 2; alpha <= 64; alpha++ {
		orders = append(orders, alpha)
	}
	return append(orders, 72, 96, 128, 256, 512)
}()

// solver limits for SolveNoiseMultiplier. The ceiling caps the bracket
// doubling: a budget that still cannot be met with σ = 1e10 is infeasible for
// any practical purpose.
const (
	sigmaCeiling       = 1e10
	sigmaTolerance     = 1e-4
	solverIterationCap = 200
)

// StepRecord is one append-only log entry of the accountant, describing a
// single mechanism application. Records are never mutated after they are
// appended.
type StepRecord struct {
	SamplingRate    float64
	NoiseMultiplier float64
}

// Accountant composes the privacy loss of a sequence of noise mechanism
// applications. The realized ε at any point is a pure function of the
// accumulated step records and is monotonically nondecreasing as steps are
// appended.
//
// Not thread-safe: steps must be registered sequentially.
type Accountant struct {
	mechanism noise.Mechanism
	orders    []int
	rdp       []float64 // accumulated Rényi loss, aligned with orders
	pure      float64   // accumulated pure ε, +Inf if the mechanism has none
	records   []StepRecord
}

// NewAccountant returns an empty Accountant for the given mechanism. A nil
// mechanism defaults to Gaussian noise.
func NewAccountant(m noise.Mechanism) *Accountant {
	if m == nil {
		m = noise.Gaussian()
	}
	return &Accountant{
		mechanism: m,
		orders:    defaultOrders,
		rdp:       make([]float64, len(defaultOrders)),
	}
}

// Mechanism returns the noise mechanism this accountant composes.
func (a *Accountant) Mechanism() noise.Mechanism {
	return a.mechanism
}

// ComposeStep appends one mechanism application with the given Poisson
// sampling rate and noise multiplier to the account. History is strictly
// additive: records are never removed or rewritten.
func (a *Accountant) ComposeStep(samplingRate, noiseMultiplier float64) error {
	if err := checks.CheckSamplingRate("Accountant.ComposeStep", samplingRate); err != nil {
		return err
	}
	if err := checks.CheckNoiseMultiplier("Accountant.ComposeStep", noiseMultiplier); err != nil {
		return err
	}
	for i, alpha := range a.orders {
		a.rdp[i] += a.mechanism.RenyiLoss(alpha, samplingRate, noiseMultiplier)
	}
	if a.mechanism.SupportsPureEpsilon() {
		a.pure += a.mechanism.PureLoss(noiseMultiplier)
	} else {
		a.pure = math.Inf(1)
	}
	a.records = append(a.records, StepRecord{SamplingRate: samplingRate, NoiseMultiplier: noiseMultiplier})
	return nil
}

// NumSteps returns the number of composed steps.
func (a *Accountant) NumSteps() int {
	return len(a.records)
}

// Steps returns a copy of the append-only step log.
func (a *Accountant) Steps() []StepRecord {
	return append([]StepRecord(nil), a.records...)
}

// Epsilon returns the smallest ε tracked by the accountant such that the
// composition of all registered steps is (ε, delta)-differentially private.
// With no registered steps it returns 0.
//
// Requesting delta = 0 from a mechanism without a pure-ε guarantee fails with
// an AccountingError.
func (a *Accountant) Epsilon(delta float64) (float64, error) {
	if err := checks.CheckDelta("Accountant.Epsilon", delta); err != nil {
		return 0, err
	}
	if len(a.records) == 0 {
		return 0, nil
	}
	if delta == 0 {
		if !a.mechanism.SupportsPureEpsilon() {
			return 0, &AccountingError{
				Op:     "Accountant.Epsilon",
				Reason: fmt.Sprintf("mechanism %q provides no pure-epsilon guarantee, delta must be strictly positive", a.mechanism.Name()),
			}
		}
		return a.pure, nil
	}
	return convertRDP(a.orders, a.rdp, a.pure, delta), nil
}

// convertRDP converts accumulated Rényi losses to the tightest (ε, delta)
// guarantee on the order grid. An accumulated pure ε is a valid candidate for
// any delta and participates in the minimum.
func convertRDP(orders []int, rdp []float64, pure, delta float64) float64 {
	logInvDelta := math.Log(1 / delta)
	eps := pure
	for i, alpha := range orders {
		candidate := rdp[i] + logInvDelta/float64(alpha-1)
		if candidate < eps {
			eps = candidate
		}
	}
	return eps
}

// epsilonForSteps computes the ε(delta) realized by numSteps identical
// applications of mechanism m without materializing the step log, so the
// solver stays cheap for very large step counts.
func epsilonForSteps(m noise.Mechanism, numSteps int, samplingRate, sigma, delta float64) float64 {
	n := float64(numSteps)
	pure := math.Inf(1)
	if m.SupportsPureEpsilon() {
		pure = n * m.PureLoss(sigma)
	}
	if delta == 0 {
		return pure
	}
	rdp := make([]float64, len(defaultOrders))
	for i, alpha := range defaultOrders {
		rdp[i] = n * m.RenyiLoss(alpha, samplingRate, sigma)
	}
	return convertRDP(defaultOrders, rdp, pure, delta)
}

// SolveNoiseMultiplier returns the smallest noise multiplier σ such that
// numSteps applications of mechanism m at the given sampling rate compose to
// at most epsilonTarget at deltaTarget. The realized ε is strictly decreasing
// in σ, so the search brackets a feasible σ by doubling and then bisects down
// to a relative tolerance.
//
// It fails with an InfeasibleBudgetError if no σ up to the solver's ceiling
// satisfies the target. A nil mechanism defaults to Gaussian noise.
func SolveNoiseMultiplier(m noise.Mechanism, epsilonTarget, deltaTarget float64, numSteps int, samplingRate float64) (float64, error) {
	if m == nil {
		m = noise.Gaussian()
	}
	label := "SolveNoiseMultiplier"
	if err := checks.CheckEpsilonStrict(label, epsilonTarget); err != nil {
		return 0, err
	}
	if err := checks.CheckDelta(label, deltaTarget); err != nil {
		return 0, err
	}
	if err := checks.CheckNumSteps(label, numSteps); err != nil {
		return 0, err
	}
	if err := checks.CheckSamplingRate(label, samplingRate); err != nil {
		return 0, err
	}
	infeasible := func(reason string) *InfeasibleBudgetError {
		return &InfeasibleBudgetError{
			EpsilonTarget: epsilonTarget,
			DeltaTarget:   deltaTarget,
			NumSteps:      numSteps,
			SamplingRate:  samplingRate,
			Reason:        reason,
		}
	}
	if deltaTarget == 0 && !m.SupportsPureEpsilon() {
		return 0, infeasible(fmt.Sprintf("mechanism %q provides no pure-epsilon guarantee", m.Name()))
	}

	feasible := func(sigma float64) bool {
		return epsilonForSteps(m, numSteps, samplingRate, sigma, deltaTarget) <= epsilonTarget
	}

	// Bracket: double σ until the target is met or the ceiling is hit.
	var lower float64
	upper := 1.0
	for !feasible(upper) {
		lower = upper
		upper *= 2
		if upper > sigmaCeiling {
			return 0, infeasible(fmt.Sprintf("target not reachable with noise multiplier up to %e", sigmaCeiling))
		}
	}

	// Bisect down to relative tolerance; upper stays feasible throughout.
	for i := 0; i < solverIterationCap && upper-lower > sigmaTolerance*upper; i++ {
		middle := lower*0.5 + upper*0.5
		if feasible(middle) {
			upper = middle
		} else {
			lower = middle
		}
	}
	return upper, nil
}
