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

// Package training trains a linear classifier head on frozen, pre-extracted
// feature representations with a differential privacy guarantee on the
// training procedure.
//
// Each step Poisson-samples a minibatch, clips every example's gradient to a
// fixed norm, aggregates, perturbs the aggregate with calibrated noise, and
// registers the mechanism application with a privacy accountant. The
// accountant's composed (ε, δ) is reported alongside the trained parameters.
package training

import (
	"context"
	"fmt"

	log "github.com/golang/glog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/dplearn/dptrain/accounting"
	"github.com/dplearn/dptrain/checks"
	"github.com/dplearn/dptrain/clip"
	"github.com/dplearn/dptrain/noise"
	"github.com/dplearn/dptrain/rand"
)

// Budget is the immutable privacy target of a training run.
type Budget struct {
	// EpsilonTarget and DeltaTarget define the (ε, δ) guarantee the whole run
	// must satisfy. EpsilonTarget must be strictly positive and DeltaTarget
	// must lie in [0, 1).
	EpsilonTarget float64
	DeltaTarget   float64
	// NumSteps is the number of training steps the run performs. Required.
	NumSteps int
	// SamplingRate is the per-example Poisson inclusion probability of each
	// minibatch, i.e. expected batch size divided by dataset size. Must lie
	// in (0, 1].
	SamplingRate float64
	// ClippingNorm bounds each example's gradient contribution. Required.
	ClippingNorm float64
}

// TrainerOptions contains the options necessary to initialize a Trainer.
type TrainerOptions struct {
	// Features is the n × d matrix of frozen feature vectors, one row per
	// example. Borrowed read-only; the trainer never mutates it. Required.
	Features *mat.Dense
	// Labels holds one class index per example, aligned with Features.
	// Required.
	Labels []int
	// NumClasses is the number of output classes. Defaults to the largest
	// label plus one.
	NumClasses int
	// Budget is the privacy target. Required unless DisableNoise is set.
	Budget Budget
	// LearningRate of the SGD updates. Defaults to 0.1.
	LearningRate float64
	// Mechanism is the noise mechanism. Defaults to Gaussian noise.
	Mechanism noise.Mechanism
	// Rand is the source of noise randomness. Defaults to a secure source.
	// Only replace it in tests.
	Rand rand.Source
	// DisableNoise runs plain minibatch SGD with clipping but no noise and
	// no privacy guarantee. Intended as a correctness baseline.
	DisableNoise bool
}

// Trainer is the differentially private optimization loop. It owns the model
// parameters while training and the privacy accountant for its entire
// lifetime.
//
// Not thread-safe: steps are strictly sequential by design, since composition
// requires the exact order and count of mechanism applications.
type Trainer struct {
	features     *mat.Dense
	labels       []int
	budget       Budget
	learningRate float64
	mechanism    noise.Mechanism
	src          rand.Source
	disableNoise bool

	accountant      *accounting.Accountant
	model           *Model
	noiseMultiplier float64
	state           trainingState
	stepsDone       int
}

// NewTrainer validates the data and configuration and returns a Trainer in
// the Uninitialized state. Shape errors are detected here, before any step
// executes.
func NewTrainer(opt *TrainerOptions) (*Trainer, error) {
	if opt == nil {
		opt = &TrainerOptions{} // Prevents panicking due to a nil pointer dereference.
	}
	if opt.Features == nil {
		return nil, fmt.Errorf("NewTrainer: Features must be set")
	}
	numExamples, numFeatures := opt.Features.Dims()
	if numExamples == 0 || numFeatures == 0 {
		return nil, &DimensionMismatchError{Reason: fmt.Sprintf("feature matrix is %d×%d, both dimensions must be positive", numExamples, numFeatures)}
	}
	if len(opt.Labels) != numExamples {
		return nil, &DimensionMismatchError{Reason: fmt.Sprintf("got %d labels for %d examples", len(opt.Labels), numExamples)}
	}
	numClasses := opt.NumClasses
	for i, label := range opt.Labels {
		if label < 0 {
			return nil, &DimensionMismatchError{Reason: fmt.Sprintf("label %d of example %d is negative", label, i)}
		}
		if opt.NumClasses > 0 && label >= numClasses {
			return nil, &DimensionMismatchError{Reason: fmt.Sprintf("label %d of example %d exceeds NumClasses %d", label, i, numClasses)}
		}
		if opt.NumClasses == 0 && label >= numClasses {
			numClasses = label + 1
		}
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("NewTrainer: need at least 2 classes, got %d", numClasses)
	}

	if err := checks.CheckNumSteps("NewTrainer", opt.Budget.NumSteps); err != nil {
		return nil, err
	}
	if err := checks.CheckSamplingRate("NewTrainer", opt.Budget.SamplingRate); err != nil {
		return nil, err
	}
	if err := checks.CheckClippingNorm("NewTrainer", opt.Budget.ClippingNorm); err != nil {
		return nil, err
	}
	if !opt.DisableNoise {
		if err := checks.CheckEpsilonStrict("NewTrainer", opt.Budget.EpsilonTarget); err != nil {
			return nil, err
		}
		if err := checks.CheckDelta("NewTrainer", opt.Budget.DeltaTarget); err != nil {
			return nil, err
		}
	}

	learningRate := opt.LearningRate
	if learningRate == 0 {
		learningRate = 0.1
	}
	if err := checks.CheckLearningRate("NewTrainer", learningRate); err != nil {
		return nil, err
	}
	mechanism := opt.Mechanism
	if mechanism == nil {
		mechanism = noise.Gaussian()
	}
	src := opt.Rand
	if src == nil {
		src = rand.NewSecureSource()
	}

	return &Trainer{
		features:     opt.Features,
		labels:       append([]int(nil), opt.Labels...),
		budget:       opt.Budget,
		learningRate: learningRate,
		mechanism:    mechanism,
		src:          src,
		disableNoise: opt.DisableNoise,
		accountant:   accounting.NewAccountant(mechanism),
		model:        newModel(numClasses, numFeatures),
		state:        Uninitialized,
	}, nil
}

// Calibrate fixes the noise multiplier for the entire run by solving for the
// smallest σ that satisfies the budget, and moves the trainer to the
// Calibrated state. If the budget is infeasible the trainer stays
// Uninitialized and no budget is consumed.
//
// Once training has started the multiplier is never changed: increasing noise
// retroactively would invalidate the already-spent steps.
func (t *Trainer) Calibrate() error {
	switch t.state {
	case Uninitialized:
	case Finalized:
		return &AlreadyFinalizedError{Op: "Trainer.Calibrate"}
	default:
		return fmt.Errorf("Trainer.Calibrate: trainer is already %v", t.state)
	}
	if t.disableNoise {
		log.Warningf("Trainer.Calibrate: noise is disabled, the run provides no privacy guarantee")
		t.noiseMultiplier = 0
		t.state = Calibrated
		return nil
	}
	sigma, err := accounting.SolveNoiseMultiplier(t.mechanism, t.budget.EpsilonTarget, t.budget.DeltaTarget, t.budget.NumSteps, t.budget.SamplingRate)
	if err != nil {
		return fmt.Errorf("Trainer.Calibrate: %w", err)
	}
	t.noiseMultiplier = sigma
	t.state = Calibrated
	return nil
}

// NoiseMultiplier returns the σ fixed by Calibrate, or 0 before calibration.
func (t *Trainer) NoiseMultiplier() float64 {
	return t.noiseMultiplier
}

// Run performs the remaining budgeted training steps. It may be cancelled
// between steps through ctx; steps whose accounting was already registered
// count against the budget even if the run is abandoned. Run may be called
// again after a cancellation to resume the remaining steps.
//
// When the configured number of steps completes, the trainer becomes
// Finalized and further Run calls fail with an AlreadyFinalizedError.
func (t *Trainer) Run(ctx context.Context) error {
	switch t.state {
	case Calibrated, Training:
	case Finalized:
		return &AlreadyFinalizedError{Op: "Trainer.Run"}
	default:
		return fmt.Errorf("Trainer.Run: trainer is %v, must be calibrated first", t.state)
	}
	t.state = Training
	for t.stepsDone < t.budget.NumSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.step(); err != nil {
			return fmt.Errorf("Trainer.Run: step %d: %w", t.stepsDone, err)
		}
	}
	t.state = Finalized
	return nil
}

// step executes one DP-SGD step: Poisson-sample a minibatch, clip each
// example's gradient, aggregate, perturb, register the application with the
// accountant, and only then apply the update. Registering first means an
// interruption can over-count, but never under-count, the spent budget.
func (t *Trainer) step() error {
	numExamples, _ := t.features.Dims()
	q := t.budget.SamplingRate
	sum := make([]float64, t.model.gradientLen())
	grad := make([]float64, t.model.gradientLen())
	row := make([]float64, t.model.NumFeatures())
	for i := 0; i < numExamples; i++ {
		if q < 1 && t.src.Uniform() > q {
			continue
		}
		mat.Row(row, i, t.features)
		t.model.exampleGradient(row, t.labels[i], grad)
		if _, err := clip.Norm(grad, t.budget.ClippingNorm, t.mechanism.NormOrder()); err != nil {
			return err
		}
		floats.Add(sum, grad)
	}
	if err := t.mechanism.AddNoise(sum, t.budget.ClippingNorm, t.noiseMultiplier, t.src); err != nil {
		return err
	}
	if err := t.accountant.ComposeStep(q, t.noiseMultiplier); err != nil {
		return err
	}
	// Normalize by the expected lot size, the standard estimator under
	// Poisson sampling.
	lot := q * float64(numExamples)
	t.model.applyUpdate(sum, -t.learningRate/lot)
	t.stepsDone++
	return nil
}

// StepsDone returns the number of completed (and accounted) steps.
func (t *Trainer) StepsDone() int {
	return t.stepsDone
}

// Result returns the trained model. It can only be called once training is
// Finalized; the returned model is read-only from the trainer's perspective
// and is no longer mutated.
func (t *Trainer) Result() (*Model, error) {
	if t.state != Finalized {
		return nil, fmt.Errorf("Trainer.Result: trainer is %v, results are available once Finalized", t.state)
	}
	return t.model, nil
}
