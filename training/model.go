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

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model is a multinomial logistic classifier head over frozen features:
// a numClasses × numFeatures weight matrix plus a per-class bias.
type Model struct {
	weights *mat.Dense
	bias    *mat.VecDense
}

func newModel(numClasses, numFeatures int) *Model {
	return &Model{
		weights: mat.NewDense(numClasses, numFeatures, nil),
		bias:    mat.NewVecDense(numClasses, nil),
	}
}

// NumClasses returns the number of output classes.
func (m *Model) NumClasses() int {
	r, _ := m.weights.Dims()
	return r
}

// NumFeatures returns the input feature dimensionality.
func (m *Model) NumFeatures() int {
	_, c := m.weights.Dims()
	return c
}

// Weights returns a copy of the weight matrix.
func (m *Model) Weights() *mat.Dense {
	return mat.DenseCopyOf(m.weights)
}

// Bias returns a copy of the bias vector.
func (m *Model) Bias() *mat.VecDense {
	return mat.VecDenseCopyOf(m.bias)
}

// Logits returns the unnormalized class scores w·x + b for a feature vector.
func (m *Model) Logits(x []float64) []float64 {
	numClasses, numFeatures := m.weights.Dims()
	logits := make([]float64, numClasses)
	for k := 0; k < numClasses; k++ {
		logits[k] = m.bias.AtVec(k) + floats.Dot(m.weights.RawRowView(k), x[:numFeatures])
	}
	return logits
}

// Predict returns the class with the highest score for a feature vector.
func (m *Model) Predict(x []float64) int {
	return floats.MaxIdx(m.Logits(x))
}

// softmaxInPlace converts logits to probabilities, shifting by the maximum
// logit so the exponentials cannot overflow.
func softmaxInPlace(logits []float64) {
	max := floats.Max(logits)
	var sum float64
	for i, l := range logits {
		logits[i] = math.Exp(l - max)
		sum += logits[i]
	}
	floats.Scale(1/sum, logits)
}

// exampleGradient writes the cross-entropy gradient of a single example into
// grad, which is laid out as the flattened weight matrix (row-major) followed
// by the bias. A flat layout lets the whole per-example contribution be
// clipped as one vector.
func (m *Model) exampleGradient(x []float64, label int, grad []float64) {
	numClasses, numFeatures := m.weights.Dims()
	probs := m.Logits(x)
	softmaxInPlace(probs)
	probs[label]--
	for k := 0; k < numClasses; k++ {
		row := grad[k*numFeatures : (k+1)*numFeatures]
		for j := 0; j < numFeatures; j++ {
			row[j] = probs[k] * x[j]
		}
		grad[numClasses*numFeatures+k] = probs[k]
	}
}

// gradientLen returns the length of the flat gradient layout.
func (m *Model) gradientLen() int {
	numClasses, numFeatures := m.weights.Dims()
	return numClasses*numFeatures + numClasses
}

// applyUpdate adds scale·grad to the parameters, with grad in the flat layout
// produced by exampleGradient.
func (m *Model) applyUpdate(grad []float64, scale float64) {
	numClasses, numFeatures := m.weights.Dims()
	for k := 0; k < numClasses; k++ {
		row := m.weights.RawRowView(k)
		floats.AddScaled(row, scale, grad[k*numFeatures:(k+1)*numFeatures])
		m.bias.SetVec(k, m.bias.AtVec(k)+scale*grad[numClasses*numFeatures+k])
	}
}
