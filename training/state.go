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

type trainingState int

// States of a Trainer. Transitions only ever move forward:
// Uninitialized → Calibrated → Training → Finalized.
const (
	Uninitialized trainingState = iota
	Calibrated
	Training
	Finalized
)

var stateName = map[trainingState]string{
	Uninitialized: "Uninitialized",
	Calibrated:    "Calibrated",
	Training:      "Training",
	Finalized:     "Finalized",
}

func (s trainingState) String() string {
	return stateName[s]
}
