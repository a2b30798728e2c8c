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

package training

// PrivacyReport is the auditable output artifact of a run: the realized
// (ε, δ) of the composed mechanism together with the parameters that
// produced it. It is a derived snapshot, recomputed on demand from the
// accountant's step log, and is independent of the trained model.
type PrivacyReport struct {
	// Epsilon realized by the steps accounted so far, at Delta.
	Epsilon float64
	// Delta is the δ the report is evaluated at (the budget's target).
	Delta float64
	// MechanismName identifies the noise mechanism used.
	MechanismName string
	// NoiseMultiplier is the σ fixed at calibration time.
	NoiseMultiplier float64
	// NumSteps is the number of mechanism applications accounted so far.
	NumSteps int
	// SamplingRate is the Poisson sampling rate of each step.
	SamplingRate float64
	// Partial is true if the trainer has not finalized yet: the reported ε
	// covers only the steps taken so far and will keep growing.
	Partial bool
}

// Report computes the privacy report from the accountant's step log.
// Computing it before finalization is legal and useful for mid-training
// introspection; the result is then explicitly marked Partial.
func (t *Trainer) Report() (PrivacyReport, error) {
	epsilon, err := t.accountant.Epsilon(t.budget.DeltaTarget)
	if err != nil {
		return PrivacyReport{}, err
	}
	return PrivacyReport{
		Epsilon:         epsilon,
		Delta:           t.budget.DeltaTarget,
		MechanismName:   t.mechanism.Name(),
		NoiseMultiplier: t.noiseMultiplier,
		NumSteps:        t.accountant.NumSteps(),
		SamplingRate:    t.budget.SamplingRate,
		Partial:         t.state != Finalized,
	}, nil
}
