package particlefilter

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Propagate moves every particle one step forward under the noisy unicycle
// model and returns the new set. The input slice is not modified.
func Propagate(particles []Particle, u Control, q *mat.DiagDense, rnd *rand.Rand) ([]Particle, error) {
	return PropagateN(particles, u, q, rnd, 1)
}

// PropagateN is Propagate with the kinematics spread over workers goroutines.
// Noise is drawn from rnd in particle order before any worker starts, so the
// result does not depend on the worker count.
func PropagateN(particles []Particle, u Control, q *mat.DiagDense, rnd *rand.Rand, workers int) ([]Particle, error) {
	if err := validateParticles(particles); err != nil {
		return nil, err
	}
	if err := validateDiag("process noise", q); err != nil {
		return nil, err
	}
	if err := validateControl(u); err != nil {
		return nil, err
	}
	if rnd == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}

	noise := drawNoise(len(particles), q, rnd)
	out := make([]Particle, len(particles))
	forEachChunk(len(particles), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			p := particles[i]
			e := noise[3*i : 3*i+3]
			out[i] = Particle{
				X:       p.X + u.LinearVel*math.Cos(p.Heading)*u.Dt + e[0],
				Y:       p.Y + u.LinearVel*math.Sin(p.Heading)*u.Dt + e[1],
				Heading: Wrap(p.Heading + u.AngularVel*u.Dt + e[2]),
			}
		}
	})
	return out, nil
}

// drawNoise returns 3n samples laid out as (x, y, heading) per particle.
func drawNoise(n int, q *mat.DiagDense, rnd *rand.Rand) []float64 {
	var dists [3]distuv.Normal
	for k := range dists {
		dists[k] = distuv.Normal{Mu: 0, Sigma: math.Sqrt(q.At(k, k)), Src: rnd}
	}
	noise := make([]float64, 3*n)
	for i := 0; i < n; i++ {
		for k := range dists {
			noise[3*i+k] = dists[k].Rand()
		}
	}
	return noise
}

func validateControl(u Control) error {
	if !finite(u.LinearVel, u.AngularVel, u.Dt) {
		return fmt.Errorf("%w: non-finite control %+v", ErrMalformedInput, u)
	}
	if u.Dt <= 0 {
		return fmt.Errorf("%w: time step must be positive, got %v", ErrMalformedInput, u.Dt)
	}
	return nil
}
