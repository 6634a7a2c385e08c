package particlefilter

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"github.com/jhoydich/unicycle-pf/internal/monitoring"
)

// StepResult is the filter state after one discrete step.
type StepResult struct {
	Particles []Particle
	Weights   []float64
	Estimate  Estimate
	// Neff is the effective sample size of the weights produced by the
	// measurement update, or of the carried weights when no update ran.
	Neff float64
	// Updated is true when step k was a measurement step.
	Updated bool
	// Resampled is true when the update triggered systematic resampling.
	Resampled bool
}

// Step runs one SIR step k: predict every particle under control u, then on
// every cfg.Skip-th step weigh against z and conditionally resample, and
// finally compute the weighted estimate. Off-update steps carry the previous
// weights forward unchanged; z may be nil on those steps.
//
// All inputs are validated before any work, so a failed step never yields a
// partial state.
func Step(particles []Particle, w []float64, landmarks []Landmark, z []Measurement, u Control, k int, cfg Config, rnd *rand.Rand) (StepResult, error) {
	if err := cfg.Validate(); err != nil {
		return StepResult{}, err
	}
	if k < 0 {
		return StepResult{}, fmt.Errorf("%w: negative step index %d", ErrMalformedInput, k)
	}
	if err := validateParticles(particles); err != nil {
		return StepResult{}, err
	}
	if err := validateWeights(particles, w); err != nil {
		return StepResult{}, err
	}
	if err := validateControl(u); err != nil {
		return StepResult{}, err
	}
	update := k%cfg.Skip == 0
	if update || z != nil {
		if err := validateMeasurement(z, landmarks); err != nil {
			return StepResult{}, err
		}
		if err := validateMeasurementNoise(cfg.MeasurementNoise, len(landmarks)); err != nil {
			return StepResult{}, err
		}
	}

	predicted, err := PropagateN(particles, u, cfg.ProcessNoise, rnd, cfg.Workers)
	if err != nil {
		return StepResult{}, err
	}

	res := StepResult{Particles: predicted, Weights: copyWeights(w), Updated: update}
	if update {
		nw, err := WeighN(predicted, landmarks, z, cfg.MeasurementNoise, cfg.Workers)
		if err != nil {
			return StepResult{}, err
		}
		rs, err := Resample(predicted, nw, cfg.NeffThreshold, rnd)
		if err != nil {
			return StepResult{}, err
		}
		if rs.Resampled {
			monitoring.Logf("particlefilter: step %d resampling, neff %.2f below %.2f", k, rs.Neff, cfg.NeffThreshold)
		}
		res.Particles, res.Weights = rs.Particles, rs.Weights
		res.Neff, res.Resampled = rs.Neff, rs.Resampled
	} else {
		res.Neff = Neff(res.Weights)
	}

	res.Estimate = WeightedMean(res.Particles, res.Weights, cfg.HeadingMean)
	return res, nil
}

// WeightedMean computes the point estimate of a weighted particle set.
// Position is the weighted average; heading uses the selected estimator.
func WeightedMean(particles []Particle, w []float64, h HeadingMean) Estimate {
	xs := make([]float64, len(particles))
	ys := make([]float64, len(particles))
	hs := make([]float64, len(particles))
	for i, p := range particles {
		xs[i], ys[i], hs[i] = p.X, p.Y, p.Heading
	}
	est := Estimate{X: stat.Mean(xs, w), Y: stat.Mean(ys, w)}
	if h == HeadingLinear {
		est.Heading = stat.Mean(hs, w)
	} else {
		// atan2 may land on -pi
		est.Heading = Wrap(stat.CircularMean(hs, w))
	}
	return est
}
