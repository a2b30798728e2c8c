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

// Package prototype computes differentially private per-class feature means
// ("prototypes") over frozen embeddings, using iterative private mean
// estimation: each iteration projects the points into a shrinking ball around
// the current center estimate and releases a noisy mean whose noise is
// calibrated to a per-iteration zCDP budget.
//
// The resulting prototype matrix supports a simple nearest-prototype
// classifier, an alternative head to the gradient-trained linear model.
package prototype

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/dplearn/dptrain/accounting"
	"github.com/dplearn/dptrain/checks"
	"github.com/dplearn/dptrain/rand"
)

// Budget split schedules over iterations. Later iterations see a smaller
// ball, so spending more budget on them tightens the final estimate.
const (
	SplitEqual       = "eq"
	SplitLinear      = "lin"
	SplitLogarithmic = "log"
	SplitExponential = "exp"
)

// Options configures private prototype estimation.
type Options struct {
	// Epsilon and Delta form the overall privacy budget. Required.
	Epsilon float64
	Delta   float64
	// Steps is the number of mean-refinement iterations. Defaults to 10.
	Steps int
	// Dist selects how the total budget is split across iterations: one of
	// "eq", "lin", "log", "exp". Defaults to "exp".
	Dist string
	// SamplingRate optionally Poisson-subsamples each class before
	// estimation. Defaults to 1 (use every example). Subsampling here is
	// preprocessing; no amplification of the guarantee is claimed for it.
	SamplingRate float64
	// Radius is the initial ball radius the class means are assumed to lie
	// in. Defaults to 3·sqrt(d).
	Radius float64
	// Rand is the source of noise randomness. Defaults to a secure source.
	Rand rand.Source
}

// Result holds the private prototypes and the budget actually spent.
type Result struct {
	// Prototypes is the numClasses × d matrix of private class means.
	Prototypes *mat.Dense
	// Epsilon and Delta are the realized guarantee, converted from the total
	// zCDP budget. Classes partition the data, so by parallel composition the
	// cost is that of a single class estimate.
	Epsilon float64
	Delta   float64
	// Rhos is the per-iteration zCDP schedule that was used.
	Rhos []float64
}

// Prototypes returns a differentially private prototype for each class.
// Features are borrowed read-only; labels must be in [0, numClasses).
func Prototypes(features *mat.Dense, labels []int, numClasses int, opt *Options) (*Result, error) {
	if features == nil {
		return nil, fmt.Errorf("Prototypes: features must be set")
	}
	if opt == nil {
		opt = &Options{} // Prevents panicking due to a nil pointer dereference.
	}
	numExamples, numFeatures := features.Dims()
	if len(labels) != numExamples {
		return nil, fmt.Errorf("Prototypes: got %d labels for %d examples", len(labels), numExamples)
	}
	if numClasses < 1 {
		return nil, fmt.Errorf("Prototypes: numClasses is %d, must be at least 1", numClasses)
	}
	if err := checks.CheckEpsilonStrict("Prototypes", opt.Epsilon); err != nil {
		return nil, err
	}
	if err := checks.CheckDeltaStrict("Prototypes", opt.Delta); err != nil {
		return nil, err
	}
	steps := opt.Steps
	if steps == 0 {
		steps = 10
	}
	if err := checks.CheckNumSteps("Prototypes", steps); err != nil {
		return nil, err
	}
	samplingRate := opt.SamplingRate
	if samplingRate == 0 {
		samplingRate = 1
	}
	if err := checks.CheckSamplingRate("Prototypes", samplingRate); err != nil {
		return nil, err
	}
	radius := opt.Radius
	if radius == 0 {
		radius = 3 * math.Sqrt(float64(numFeatures))
	}
	if radius < 0 || math.IsInf(radius, 0) || math.IsNaN(radius) {
		return nil, fmt.Errorf("Prototypes: Radius is %f, must be positive and finite", radius)
	}
	src := opt.Rand
	if src == nil {
		src = rand.NewSecureSource()
	}

	totalRho, err := accounting.SolveZCDPRho(opt.Epsilon, opt.Delta)
	if err != nil {
		return nil, fmt.Errorf("Prototypes: %w", err)
	}
	rhos, err := splitBudget(totalRho, steps, opt.Dist)
	if err != nil {
		return nil, err
	}

	byClass := make([][]int, numClasses)
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("Prototypes: label %d of example %d is outside [0, %d)", label, i, numClasses)
		}
		byClass[label] = append(byClass[label], i)
	}

	protos := mat.NewDense(numClasses, numFeatures, nil)
	row := make([]float64, numFeatures)
	for class, indices := range byClass {
		if samplingRate < 1 {
			indices = poissonSubsample(indices, samplingRate, src)
		}
		if len(indices) == 0 {
			return nil, fmt.Errorf("Prototypes: class %d has no examples after subsampling", class)
		}
		classPoints := mat.NewDense(len(indices), numFeatures, nil)
		for j, idx := range indices {
			mat.Row(row, idx, features)
			classPoints.SetRow(j, row)
		}
		mean, err := PrivateMean(classPoints, rhos, radius, src)
		if err != nil {
			return nil, fmt.Errorf("Prototypes: class %d: %w", class, err)
		}
		protos.SetRow(class, mean)
	}

	epsilon, err := accounting.ZCDPEpsilon(totalRho, opt.Delta)
	if err != nil {
		return nil, err
	}
	return &Result{Prototypes: protos, Epsilon: epsilon, Delta: opt.Delta, Rhos: rhos}, nil
}

// PrivateMean estimates the mean of the rows of X under a per-iteration zCDP
// schedule. The total cost is the sum of rhos. X is borrowed read-only; the
// iterative projection works on an internal copy.
func PrivateMean(X *mat.Dense, rhos []float64, radius float64, src rand.Source) ([]float64, error) {
	if len(rhos) == 0 {
		return nil, fmt.Errorf("PrivateMean: rhos must not be empty")
	}
	for _, rho := range rhos {
		if err := checks.CheckZCDPRho("PrivateMean", rho); err != nil {
			return nil, err
		}
	}
	if src == nil {
		src = rand.NewSecureSource()
	}
	numExamples, numFeatures := X.Dims()
	if numExamples == 0 {
		return nil, fmt.Errorf("PrivateMean: need at least one example")
	}
	points := mat.DenseCopyOf(X)
	center := make([]float64, numFeatures)
	for _, rho := range rhos {
		center, radius = meanStep(points, center, radius, rho, src)
	}
	return center, nil
}

// meanStep performs one refinement: project all points into a ball slightly
// larger than the current estimate, release the noisy mean of the projected
// points, and shrink the radius to a high-probability bound on the new
// estimate's error.
func meanStep(points *mat.Dense, center []float64, radius, rho float64, src rand.Source) ([]float64, float64) {
	numExamples, numFeatures := points.Dims()
	n := float64(numExamples)
	gamma := gaussianTailBound(numFeatures, 0.01)
	clipThresh := math.Min(math.Sqrt(radius*radius+2*radius*gamma+gamma*gamma), radius+gamma)

	diff := make([]float64, numFeatures)
	for i := 0; i < numExamples; i++ {
		row := points.RawRowView(i)
		floats.SubTo(diff, row, center)
		if norm := floats.Norm(diff, 2); norm > clipThresh {
			scale := clipThresh / norm
			for j := range row {
				row[j] = center[j] + diff[j]*scale
			}
		}
	}

	// Replacing one projected point moves the mean by at most 2·clipThresh/n,
	// and Gaussian noise of scale sens/sqrt(2ρ) makes the release ρ-zCDP.
	sens := 2 * clipThresh / n
	sd := sens / math.Sqrt(2*rho)
	newCenter := make([]float64, numFeatures)
	for j := 0; j < numFeatures; j++ {
		var sum float64
		for i := 0; i < numExamples; i++ {
			sum += points.At(i, j)
		}
		newCenter[j] = sum/n + sd*src.Normal()
	}
	newRadius := math.Sqrt(1/n+sd*sd) * gamma
	return newCenter, newRadius
}

// gaussianTailBound returns a radius containing a d-dimensional standard
// Gaussian with probability at least 1-b.
func gaussianTailBound(d int, b float64) float64 {
	logInvB := math.Log(1 / b)
	return math.Sqrt(float64(d) + 2*math.Sqrt(float64(d)*logInvB) + 2*logInvB)
}

// splitBudget divides rho over steps according to the schedule name, with
// later steps weighted at least as heavily as earlier ones.
func splitBudget(rho float64, steps int, dist string) ([]float64, error) {
	weights := make([]float64, steps)
	switch dist {
	case SplitEqual:
		for i := range weights {
			weights[i] = 1
		}
	case SplitLinear:
		for i := range weights {
			weights[i] = float64(i + 1)
		}
	case SplitLogarithmic:
		for i := range weights {
			weights[i] = math.Log(float64(i + 2))
		}
	case SplitExponential, "":
		for i := range weights {
			weights[i] = math.Exp2(float64(i))
		}
	default:
		return nil, fmt.Errorf("splitBudget: unknown schedule %q, must be one of eq, lin, log, exp", dist)
	}
	total := floats.Sum(weights)
	rhos := make([]float64, steps)
	for i, w := range weights {
		rhos[i] = rho * w / total
	}
	return rhos, nil
}

// poissonSubsample keeps each index independently with probability q.
func poissonSubsample(indices []int, q float64, src rand.Source) []int {
	kept := make([]int, 0, len(indices))
	for _, idx := range indices {
		if src.Uniform() <= q {
			kept = append(kept, idx)
		}
	}
	return kept
}

// Nearest returns the class whose prototype is closest in Euclidean distance
// to the feature vector x.
func Nearest(prototypes *mat.Dense, x []float64) int {
	numClasses, numFeatures := prototypes.Dims()
	best, bestDist := 0, math.Inf(1)
	diff := make([]float64, numFeatures)
	for class := 0; class < numClasses; class++ {
		floats.SubTo(diff, prototypes.RawRowView(class), x)
		if dist := floats.Norm(diff, 2); dist < bestDist {
			best, bestDist = class, dist
		}
	}
	return best
}
