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

import "fmt"

// AlreadyFinalizedError indicates an attempt to train or recalibrate a
// Trainer that has already been finalized. Resuming after finalization would
// invalidate the accumulated privacy account.
type AlreadyFinalizedError struct {
	Op string
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("%s: trainer is already finalized", e.Op)
}

// DimensionMismatchError indicates that feature, label and parameter shapes
// disagree. It is detected at construction time, before any step executes.
type DimensionMismatchError struct {
	Reason string
}

func (e *DimensionMismatchError) Error() string {
	return "dimension mismatch: " + e.Reason
}
