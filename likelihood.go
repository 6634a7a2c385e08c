package particlefilter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/jhoydich/unicycle-pf/internal/monitoring"
)

// Weigh scores every particle against a range/bearing measurement vector and
// returns normalized importance weights. z holds one measurement per landmark
// and r the measurement variances (one shared value or one per landmark).
//
// If every likelihood underflows to zero the weights fall back to uniform.
func Weigh(particles []Particle, landmarks []Landmark, z []Measurement, r []float64) ([]float64, error) {
	return WeighN(particles, landmarks, z, r, 1)
}

// WeighN is Weigh with the per-particle likelihoods spread over workers goroutines.
func WeighN(particles []Particle, landmarks []Landmark, z []Measurement, r []float64, workers int) ([]float64, error) {
	if err := validateParticles(particles); err != nil {
		return nil, err
	}
	if err := validateMeasurement(z, landmarks); err != nil {
		return nil, err
	}
	if err := validateMeasurementNoise(r, len(landmarks)); err != nil {
		return nil, err
	}

	w := make([]float64, len(particles))
	forEachChunk(len(particles), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			w[i] = math.Exp(logLikelihood(particles[i], landmarks, z, r))
		}
	})

	sum := floats.Sum(w)
	if sum == 0 {
		monitoring.Logf("particlefilter: all %d likelihoods underflowed, resetting to uniform weights", len(w))
		return uniformWeights(len(w)), nil
	}
	floats.Scale(1/sum, w)
	return w, nil
}

// Expected returns the range and bearing a sensor at particle p would report
// for landmark l.
func Expected(p Particle, l Landmark) Measurement {
	dx, dy := l.X-p.X, l.Y-p.Y
	return Measurement{
		Range:   math.Hypot(dx, dy),
		Bearing: Wrap(math.Atan2(dy, dx) - p.Heading),
	}
}

// logLikelihood is the unnormalized gaussian log-likelihood of z given p,
// summed over landmarks.
func logLikelihood(p Particle, landmarks []Landmark, z []Measurement, r []float64) float64 {
	ll := 0.0
	for j, l := range landmarks {
		h := Expected(p, l)
		dr := z[j].Range - h.Range
		db := Wrap(z[j].Bearing - h.Bearing)
		ll -= 0.5 * (dr*dr + db*db) / noiseFor(r, j)
	}
	return ll
}

func validateLandmarks(landmarks []Landmark) error {
	if len(landmarks) == 0 {
		return fmt.Errorf("%w: empty landmark table", ErrMalformedInput)
	}
	for i, l := range landmarks {
		if !finite(l.X, l.Y) {
			return fmt.Errorf("%w: non-finite landmark[%d] %+v", ErrMalformedInput, i, l)
		}
	}
	return nil
}

func validateMeasurement(z []Measurement, landmarks []Landmark) error {
	if err := validateLandmarks(landmarks); err != nil {
		return err
	}
	if len(z) != len(landmarks) {
		return fmt.Errorf("%w: %d measurements for %d landmarks", ErrMalformedInput, len(z), len(landmarks))
	}
	for i, m := range z {
		if !finite(m.Range, m.Bearing) {
			return fmt.Errorf("%w: non-finite measurement[%d] %+v", ErrMalformedInput, i, m)
		}
		if m.Range < 0 {
			return fmt.Errorf("%w: negative range in measurement[%d]: %v", ErrMalformedInput, i, m.Range)
		}
	}
	return nil
}
