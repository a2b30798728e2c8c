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

import "fmt"

// InfeasibleBudgetError indicates that a requested (ε, δ, steps, sampling
// rate) combination cannot be reached by the mechanism family, no matter how
// much noise is added. It is surfaced at calibration time, before any budget
// is consumed.
type InfeasibleBudgetError struct {
	EpsilonTarget float64
	DeltaTarget   float64
	NumSteps      int
	SamplingRate  float64
	Reason        string
}

func (e *InfeasibleBudgetError) Error() string {
	return fmt.Sprintf("infeasible privacy budget (epsilon=%e, delta=%e, steps=%d, sampling rate=%f): %s",
		e.EpsilonTarget, e.DeltaTarget, e.NumSteps, e.SamplingRate, e.Reason)
}

// AccountingError indicates invalid accounting inputs, e.g. requesting a pure
// ε guarantee (δ = 0) from a mechanism that has none.
type AccountingError struct {
	Op     string
	Reason string
}

func (e *AccountingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
