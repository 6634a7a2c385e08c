package particlefilter

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// HeadingMean selects how the heading component of an Estimate is averaged.
type HeadingMean int

const (
	// HeadingCircular averages headings as unit vectors, which stays correct
	// when particles straddle the +-pi boundary.
	HeadingCircular HeadingMean = iota
	// HeadingLinear is the plain weighted average of raw heading values. A
	// cloud split across +-pi averages to roughly zero instead of pi.
	HeadingLinear
)

func (h HeadingMean) String() string {
	switch h {
	case HeadingCircular:
		return "circular"
	case HeadingLinear:
		return "linear"
	default:
		return fmt.Sprintf("HeadingMean(%d)", int(h))
	}
}

// ParseHeadingMean maps "circular" or "linear" to a HeadingMean. An empty
// string selects the circular mean.
func ParseHeadingMean(s string) (HeadingMean, error) {
	switch s {
	case "", "circular":
		return HeadingCircular, nil
	case "linear":
		return HeadingLinear, nil
	}
	return 0, fmt.Errorf("%w: unknown heading mean %q", ErrInvalidConfig, s)
}

// Config holds the tuning of a filter run.
type Config struct {
	// NumParticles is the fixed size of the particle set.
	NumParticles int
	// ProcessNoise is the 3x3 diagonal covariance (x, y, heading) used to
	// perturb predicted particles. It may differ from the true motion noise.
	ProcessNoise *mat.DiagDense
	// MeasurementNoise holds range/bearing variances: a single value shared by
	// every landmark, or one value per landmark.
	MeasurementNoise []float64
	// PriorNoise is the 3x3 diagonal covariance of the initial particle cloud
	// around the known starting pose.
	PriorNoise *mat.DiagDense
	// NeffThreshold triggers resampling when the effective sample size drops below it.
	NeffThreshold float64
	// Skip is the number of prediction steps between measurement updates.
	Skip int
	// HeadingMean selects the heading estimator.
	HeadingMean HeadingMean
	// Workers spreads per-particle work over goroutines. 0 or 1 runs serially.
	Workers int
}

// DefaultConfig returns the tuning used by the 2D localization demo.
func DefaultConfig() Config {
	return Config{
		NumParticles:     100,
		ProcessNoise:     mat.NewDiagDense(3, []float64{0.15, 0.15, 0.1}),
		MeasurementNoise: []float64{0.5},
		PriorNoise:       mat.NewDiagDense(3, []float64{0.1, 0.1, 0.05}),
		NeffThreshold:    50,
		Skip:             100,
		HeadingMean:      HeadingCircular,
	}
}

// Validate reports the first invalid field, wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	if c.NumParticles <= 0 {
		return fmt.Errorf("%w: particle count must be positive, got %d", ErrInvalidConfig, c.NumParticles)
	}
	if err := validateDiag("process noise", c.ProcessNoise); err != nil {
		return err
	}
	if err := validateDiag("prior noise", c.PriorNoise); err != nil {
		return err
	}
	if len(c.MeasurementNoise) == 0 {
		return fmt.Errorf("%w: measurement noise is empty", ErrInvalidConfig)
	}
	for i, r := range c.MeasurementNoise {
		if !finite(r) || r <= 0 {
			return fmt.Errorf("%w: measurement noise[%d] must be positive, got %v", ErrInvalidConfig, i, r)
		}
	}
	if !finite(c.NeffThreshold) || c.NeffThreshold < 0 {
		return fmt.Errorf("%w: neff threshold must be non-negative, got %v", ErrInvalidConfig, c.NeffThreshold)
	}
	if c.Skip <= 0 {
		return fmt.Errorf("%w: skip must be positive, got %d", ErrInvalidConfig, c.Skip)
	}
	if c.HeadingMean != HeadingCircular && c.HeadingMean != HeadingLinear {
		return fmt.Errorf("%w: unknown heading mean %d", ErrInvalidConfig, int(c.HeadingMean))
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// clone deep-copies the noise matrices and slices so a running filter is
// unaffected by later changes to the caller's Config.
func (c Config) clone() Config {
	out := c
	out.ProcessNoise = cloneDiag(c.ProcessNoise)
	out.PriorNoise = cloneDiag(c.PriorNoise)
	out.MeasurementNoise = copyWeights(c.MeasurementNoise)
	return out
}

func cloneDiag(d *mat.DiagDense) *mat.DiagDense {
	n := d.Diag()
	data := make([]float64, n)
	for i := range data {
		data[i] = d.At(i, i)
	}
	return mat.NewDiagDense(n, data)
}

// validateDiag checks a 3x3 diagonal covariance of non-negative variances.
func validateDiag(name string, d *mat.DiagDense) error {
	if d == nil {
		return fmt.Errorf("%w: %s is nil", ErrInvalidConfig, name)
	}
	if n := d.Diag(); n != 3 {
		return fmt.Errorf("%w: %s must be 3x3, got %dx%d", ErrInvalidConfig, name, n, n)
	}
	for i := 0; i < 3; i++ {
		v := d.At(i, i)
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: %s[%d] must be a non-negative variance, got %v", ErrInvalidConfig, name, i, v)
		}
	}
	return nil
}

// noiseFor returns the measurement variance for landmark i.
func noiseFor(r []float64, i int) float64 {
	if len(r) == 1 {
		return r[0]
	}
	return r[i]
}

func validateMeasurementNoise(r []float64, landmarks int) error {
	if len(r) != 1 && len(r) != landmarks {
		return fmt.Errorf("%w: measurement noise has %d entries for %d landmarks", ErrInvalidConfig, len(r), landmarks)
	}
	for i, v := range r {
		if !finite(v) || v <= 0 {
			return fmt.Errorf("%w: measurement noise[%d] must be positive, got %v", ErrInvalidConfig, i, v)
		}
	}
	return nil
}
