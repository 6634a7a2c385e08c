package particlefilter

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Neff returns the effective sample size (sum w)^2 / sum(w^2), which is
// 1/sum(w^2) for normalized weights. It is len(w) for uniform weights and 1
// when a single particle holds all mass. Empty or all-zero weights give 0.
func Neff(w []float64) float64 {
	sum := floats.Sum(w)
	if len(w) == 0 || sum == 0 {
		return 0
	}
	return sum * sum / floats.Dot(w, w)
}

// weightTolerance bounds how far a weight vector may drift from summing to one.
const weightTolerance = 1e-9

// Resampled is the outcome of a conditional resampling pass.
type Resampled struct {
	Particles []Particle
	Weights   []float64
	// Neff is the effective sample size of the input weights.
	Neff float64
	// Resampled is true when Neff fell below the threshold.
	Resampled bool
}

// Resample redraws the particle set with SystematicResample when the effective
// sample size of w is below threshold. Otherwise copies of the particles and
// weights pass through unchanged.
func Resample(particles []Particle, w []float64, threshold float64, rnd *rand.Rand) (Resampled, error) {
	if err := validateWeights(particles, w); err != nil {
		return Resampled{}, err
	}
	neff := Neff(w)
	if neff >= threshold {
		return Resampled{Particles: copyParticles(particles), Weights: copyWeights(w), Neff: neff}, nil
	}
	p, nw, err := SystematicResample(particles, w, rnd)
	if err != nil {
		return Resampled{}, err
	}
	return Resampled{Particles: p, Weights: nw, Neff: neff, Resampled: true}, nil
}

// SystematicResample draws len(particles) particles with probability
// proportional to w using one uniform offset u0 in [0, 1/N) and the evenly
// spaced points u0 + j/N, walking the cumulative weights once. The returned
// weights are uniform.
func SystematicResample(particles []Particle, w []float64, rnd *rand.Rand) ([]Particle, []float64, error) {
	if err := validateWeights(particles, w); err != nil {
		return nil, nil, err
	}
	if rnd == nil {
		return nil, nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}

	n := len(particles)
	idx := systematicIndices(w, distuv.Uniform{Min: 0, Max: 1 / float64(n), Src: rnd}.Rand())
	out := make([]Particle, n)
	for j, i := range idx {
		out[j] = particles[i]
	}
	return out, uniformWeights(n), nil
}

// systematicIndices maps the points u0 + j/N onto the cumulative distribution
// of w. Point u selects particle i when cdf[i-1] <= u < cdf[i].
func systematicIndices(w []float64, u0 float64) []int {
	n := len(w)
	cdf := floats.CumSum(make([]float64, n), w)
	floats.Scale(1/cdf[n-1], cdf)
	cdf[n-1] = 1

	idx := make([]int, n)
	step := 1 / float64(n)
	i := 0
	for j := 0; j < n; j++ {
		u := u0 + float64(j)*step
		for i < n-1 && u >= cdf[i] {
			i++
		}
		idx[j] = i
	}
	return idx
}

func validateWeights(particles []Particle, w []float64) error {
	if len(particles) == 0 {
		return fmt.Errorf("%w: empty particle set", ErrMalformedInput)
	}
	if len(w) != len(particles) {
		return fmt.Errorf("%w: %d weights for %d particles", ErrMalformedInput, len(w), len(particles))
	}
	for i, v := range w {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: weight[%d] must be a non-negative number, got %v", ErrMalformedInput, i, v)
		}
	}
	if sum := floats.Sum(w); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %v, not 1", ErrMalformedInput, sum)
	}
	return nil
}
