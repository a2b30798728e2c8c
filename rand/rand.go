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

// Package rand provides sources of randomness for differentially private
// training. Randomness is always drawn through an explicit Source instance so
// that mechanisms and training loops can be made deterministic in tests by
// injecting a seeded source.
package rand

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"math/bits"
	mathrand "math/rand"
	"sync"

	log "github.com/golang/glog"
)

// Source yields the random primitives the noise mechanisms are built on.
// A Source must be used by at most one training step at a time.
type Source interface {
	// Uniform returns a float64 drawn uniformly from (0, 1].
	Uniform() float64

	// Normal returns a float64 drawn from the standard normal distribution.
	Normal() float64
}

// secureSource reads from a buffered crypto/rand reader. It is safe for
// concurrent use, though DP training only ever draws from one step at a time.
type secureSource struct {
	mu  sync.Mutex
	buf io.Reader
}

// NewSecureSource returns a Source backed by the operating system's
// cryptographically secure random number generator. This is the source that
// should back any noise that carries a privacy guarantee.
func NewSecureSource() Source {
	return &secureSource{buf: bufio.NewReaderSize(cryptorand.Reader, 65536)}
}

func (s *secureSource) read(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.ReadFull(s.buf, b); err != nil {
		log.Fatalf("out of randomness, should never happen: %v", err)
	}
}

// u64 returns a uniformly random uint64.
func (s *secureSource) u64() uint64 {
	var r [8]uint8
	s.read(r[:])
	return binary.LittleEndian.Uint64(r[:])
}

// geometric returns a float64 that counts the number of Bernoulli trials until
// the first success for a success probability of 0.5.
func (s *secureSource) geometric() float64 {
	// 1 plus the number of leading zeros from an infinite stream of random bits
	// follows the desired geometric distribution.
	b := 1
	var r [1]uint8
	for r[0] == 0 {
		s.read(r[:])
		b += bits.LeadingZeros8(r[0])
	}
	return float64(b)
}

// Uniform returns a float64 from the interval (0,1] such that each float
// in the interval is returned with positive probability and the resulting
// distribution simulates a continuous uniform distribution on (0, 1].
func (s *secureSource) Uniform() float64 {
	i := s.u64() % (1 << 53)
	r := (1 + float64(i)/(1<<53)) / math.Pow(2, s.geometric())
	// We want to avoid returning 0, since callers may take the log of the output.
	if r == 0 {
		return 1
	}
	return r
}

// Normal returns a normally distributed float with mean 0 and standard deviation 1.
func (s *secureSource) Normal() float64 {
	return mathrand.New((*cryptoSource)(s)).NormFloat64()
}

// cryptoSource adapts secureSource to math/rand's Source interface so that
// NormFloat64's ziggurat sampling can run on secure bits.
type cryptoSource secureSource

// Int63 returns a uniformly random int64 in [0, 1<<63).
func (cs *cryptoSource) Int63() int64 {
	return int64((*secureSource)(cs).u64() & 0x7fffffffffffffff)
}

// Seed is a no-op.
func (cs *cryptoSource) Seed(_ int64) {}

// seededSource wraps math/rand for reproducible tests. It must not back noise
// that carries a real privacy guarantee.
type seededSource struct {
	rng *mathrand.Rand
}

// NewSeededSource returns a deterministic Source for tests and debugging.
func NewSeededSource(seed int64) Source {
	return &seededSource{rng: mathrand.New(mathrand.NewSource(seed))}
}

func (s *seededSource) Uniform() float64 {
	// Shift [0, 1) to (0, 1] to match the secure source's support.
	return 1 - s.rng.Float64()
}

func (s *seededSource) Normal() float64 {
	return s.rng.NormFloat64()
}
