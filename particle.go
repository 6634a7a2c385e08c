package particlefilter

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidConfig is wrapped by every error caused by filter configuration:
	// particle counts, noise matrices, thresholds and skip intervals.
	ErrInvalidConfig = errors.New("invalid filter configuration")
	// ErrMalformedInput is wrapped by every error caused by per-step input:
	// controls, measurements, weights and step indices.
	ErrMalformedInput = errors.New("malformed filter input")
)

// Particle is one pose hypothesis of the agent
type Particle struct {
	X       float64
	Y       float64
	Heading float64
}

// Landmark is a fixed, known point the range/bearing sensor observes
type Landmark struct {
	X float64
	Y float64
}

// Measurement is the range and bearing to a single landmark, bearing being
// relative to the agent heading.
type Measurement struct {
	Range   float64
	Bearing float64
}

// Control is the known unicycle input applied to every particle for one step.
type Control struct {
	LinearVel  float64
	AngularVel float64
	Dt         float64
}

// Estimate is the weighted point estimate reported after a step
type Estimate struct {
	X       float64
	Y       float64
	Heading float64
}

// Wrap normalizes an angle into (-pi, pi]. Angles already in range are
// returned untouched.
func Wrap(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	w := math.Mod(a+math.Pi, 2*math.Pi)
	if w <= 0 {
		w += 2 * math.Pi
	}
	// w just above zero rounds onto -pi, which belongs to the other end
	if r := w - math.Pi; r > -math.Pi {
		return r
	}
	return math.Pi
}

func finite(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// validateParticles rejects an empty set and any non-finite pose.
func validateParticles(particles []Particle) error {
	if len(particles) == 0 {
		return fmt.Errorf("%w: empty particle set", ErrMalformedInput)
	}
	for i, p := range particles {
		if !finite(p.X, p.Y, p.Heading) {
			return fmt.Errorf("%w: particle[%d] has a non-finite pose %+v", ErrMalformedInput, i, p)
		}
	}
	return nil
}

func copyParticles(p []Particle) []Particle {
	out := make([]Particle, len(p))
	copy(out, p)
	return out
}

func copyWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	return out
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}
