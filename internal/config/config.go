package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	particlefilter "github.com/jhoydich/unicycle-pf"
	"gonum.org/v1/gonum/mat"
)

// RunConfig is the JSON schema for a localization run: the simulated world
// (time grid, true noise, landmarks) and the filter tuning. Every field is
// optional; the Get* methods fall back to the demo defaults.
type RunConfig struct {
	// Time grid
	Dt        *float64 `json:"dt,omitempty"`
	FinalTime *float64 `json:"final_time,omitempty"`

	// Simulated world
	Seed                 *uint64      `json:"seed,omitempty"`
	InitialPose          []float64    `json:"initial_pose,omitempty"` // x, y, heading
	TrueProcessNoise     []float64    `json:"true_process_noise,omitempty"`
	TrueMeasurementNoise *float64     `json:"true_measurement_noise,omitempty"`
	Landmarks            [][2]float64 `json:"landmarks,omitempty"`

	// Filter tuning
	Particles        *int      `json:"particles,omitempty"`
	ProcessNoise     []float64 `json:"process_noise,omitempty"`
	MeasurementNoise []float64 `json:"measurement_noise,omitempty"`
	PriorNoise       []float64 `json:"prior_noise,omitempty"`
	NeffThreshold    *float64  `json:"neff_threshold,omitempty"`
	Skip             *int      `json:"skip,omitempty"`
	HeadingMean      *string   `json:"heading_mean,omitempty"`
	Workers          *int      `json:"workers,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }
func ptrString(v string) *string    { return &v }

// DefaultRunConfig returns a RunConfig with every field populated with the
// values of the 2D localization demo.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Dt:                   ptrFloat64(0.02),
		FinalTime:            ptrFloat64(100),
		Seed:                 ptrUint64(117),
		InitialPose:          []float64{0.1, 0.1, 0},
		TrueProcessNoise:     []float64{0.1, 0.1, 0.05},
		TrueMeasurementNoise: ptrFloat64(1.5),
		Particles:            ptrInt(100),
		ProcessNoise:         []float64{0.15, 0.15, 0.1},
		MeasurementNoise:     []float64{0.5},
		PriorNoise:           []float64{0.1, 0.1, 0.05},
		NeffThreshold:        ptrFloat64(50),
		Skip:                 ptrInt(100),
		HeadingMean:          ptrString("circular"),
		Workers:              ptrInt(0),
	}
}

// maxRunConfigSize caps run files; a landmark table never comes close.
const maxRunConfigSize = 1 << 20

// LoadRunConfig reads a run description from a .json file and validates it.
// Fields left out of the file fall back to the demo values through the Get*
// methods.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := readRunFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("run config %s: decode: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config %s: %w", path, err)
	}
	return cfg, nil
}

func readRunFile(path string) ([]byte, error) {
	if ext := filepath.Ext(path); ext != ".json" {
		return nil, fmt.Errorf("run config %s: want a .json file, got %q", path, ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	if info.Size() > maxRunConfigSize {
		return nil, fmt.Errorf("run config %s: %d bytes exceeds the %d byte limit", path, info.Size(), maxRunConfigSize)
	}
	return os.ReadFile(path)
}

// Validate checks the fields that are set. Filter tuning is checked by
// converting to a particlefilter.Config and validating that.
func (c *RunConfig) Validate() error {
	if c.Dt != nil && !(*c.Dt > 0) {
		return fmt.Errorf("%w: dt must be positive, got %v", particlefilter.ErrInvalidConfig, *c.Dt)
	}
	if c.FinalTime != nil && !(*c.FinalTime > 0) {
		return fmt.Errorf("%w: final_time must be positive, got %v", particlefilter.ErrInvalidConfig, *c.FinalTime)
	}
	if c.GetFinalTime() < c.GetDt() {
		return fmt.Errorf("%w: final_time %v is shorter than dt %v", particlefilter.ErrInvalidConfig, c.GetFinalTime(), c.GetDt())
	}
	if c.InitialPose != nil && len(c.InitialPose) != 3 {
		return fmt.Errorf("%w: initial_pose needs 3 values, got %d", particlefilter.ErrInvalidConfig, len(c.InitialPose))
	}
	if c.TrueProcessNoise != nil {
		if err := checkVariances("true_process_noise", c.TrueProcessNoise, 3, false); err != nil {
			return err
		}
	}
	if c.TrueMeasurementNoise != nil && !(*c.TrueMeasurementNoise >= 0) {
		return fmt.Errorf("%w: true_measurement_noise must be non-negative, got %v", particlefilter.ErrInvalidConfig, *c.TrueMeasurementNoise)
	}
	for _, f := range []struct {
		key string
		v   []float64
	}{{"process_noise", c.ProcessNoise}, {"prior_noise", c.PriorNoise}} {
		if f.v != nil {
			if err := checkVariances(f.key, f.v, 3, false); err != nil {
				return err
			}
		}
	}
	if c.MeasurementNoise != nil {
		if err := checkVariances("measurement_noise", c.MeasurementNoise, 0, true); err != nil {
			return err
		}
		if n := len(c.MeasurementNoise); n != 1 && c.Landmarks != nil && n != len(c.Landmarks) {
			return fmt.Errorf("%w: measurement_noise has %d entries for %d landmarks", particlefilter.ErrInvalidConfig, n, len(c.Landmarks))
		}
	}
	if c.HeadingMean != nil {
		if _, err := particlefilter.ParseHeadingMean(*c.HeadingMean); err != nil {
			return err
		}
	}
	_, err := c.FilterConfig()
	return err
}

// checkVariances verifies a variance list. n == 0 accepts any non-empty length.
func checkVariances(key string, v []float64, n int, strict bool) error {
	if n > 0 && len(v) != n {
		return fmt.Errorf("%w: %s needs %d values, got %d", particlefilter.ErrInvalidConfig, key, n, len(v))
	}
	if len(v) == 0 {
		return fmt.Errorf("%w: %s is empty", particlefilter.ErrInvalidConfig, key)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || (strict && x == 0) {
			return fmt.Errorf("%w: %s[%d] = %v", particlefilter.ErrInvalidConfig, key, i, x)
		}
	}
	return nil
}

// GetDt returns the time step in seconds or the default.
func (c *RunConfig) GetDt() float64 {
	if c.Dt == nil {
		return 0.02
	}
	return *c.Dt
}

// GetFinalTime returns the simulated duration in seconds or the default.
func (c *RunConfig) GetFinalTime() float64 {
	if c.FinalTime == nil {
		return 100
	}
	return *c.FinalTime
}

// GetSeed returns the random seed or the default.
func (c *RunConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 117
	}
	return *c.Seed
}

// GetInitialPose returns the true starting pose.
func (c *RunConfig) GetInitialPose() particlefilter.Particle {
	if len(c.InitialPose) != 3 {
		return particlefilter.Particle{X: 0.1, Y: 0.1}
	}
	return particlefilter.Particle{X: c.InitialPose[0], Y: c.InitialPose[1], Heading: c.InitialPose[2]}
}

// GetTrueProcessNoise returns the covariance used to simulate the truth.
func (c *RunConfig) GetTrueProcessNoise() *mat.DiagDense {
	return diagOr(c.TrueProcessNoise, 0.1, 0.1, 0.05)
}

// GetTrueMeasurementNoise returns the variance used to corrupt simulated measurements.
func (c *RunConfig) GetTrueMeasurementNoise() float64 {
	if c.TrueMeasurementNoise == nil {
		return 1.5
	}
	return *c.TrueMeasurementNoise
}

// GetLandmarks returns the configured landmark table, or nil when the
// landmarks were not set and the caller should use its own table.
func (c *RunConfig) GetLandmarks() []particlefilter.Landmark {
	if len(c.Landmarks) == 0 {
		return nil
	}
	out := make([]particlefilter.Landmark, len(c.Landmarks))
	for i, l := range c.Landmarks {
		out[i] = particlefilter.Landmark{X: l[0], Y: l[1]}
	}
	return out
}

// GetParticles returns the particle count or the default.
func (c *RunConfig) GetParticles() int {
	if c.Particles == nil {
		return 100
	}
	return *c.Particles
}

// GetNeffThreshold returns the resampling threshold or the default.
func (c *RunConfig) GetNeffThreshold() float64 {
	if c.NeffThreshold == nil {
		return 50
	}
	return *c.NeffThreshold
}

// GetSkip returns the number of steps between measurement updates or the default.
func (c *RunConfig) GetSkip() int {
	if c.Skip == nil {
		return 100
	}
	return *c.Skip
}

// GetWorkers returns the worker count or the default (serial).
func (c *RunConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetHeadingMean returns the heading estimator name or the default.
func (c *RunConfig) GetHeadingMean() string {
	if c.HeadingMean == nil {
		return "circular"
	}
	return *c.HeadingMean
}

// FilterConfig converts the tuning fields to a validated particlefilter.Config.
func (c *RunConfig) FilterConfig() (particlefilter.Config, error) {
	h, err := particlefilter.ParseHeadingMean(c.GetHeadingMean())
	if err != nil {
		return particlefilter.Config{}, err
	}
	r := []float64{0.5}
	if len(c.MeasurementNoise) > 0 {
		r = append([]float64(nil), c.MeasurementNoise...)
	}
	cfg := particlefilter.Config{
		NumParticles:     c.GetParticles(),
		ProcessNoise:     diagOr(c.ProcessNoise, 0.15, 0.15, 0.1),
		MeasurementNoise: r,
		PriorNoise:       diagOr(c.PriorNoise, 0.1, 0.1, 0.05),
		NeffThreshold:    c.GetNeffThreshold(),
		Skip:             c.GetSkip(),
		HeadingMean:      h,
		Workers:          c.GetWorkers(),
	}
	if err := cfg.Validate(); err != nil {
		return particlefilter.Config{}, err
	}
	return cfg, nil
}

func diagOr(v []float64, def ...float64) *mat.DiagDense {
	if len(v) != 3 {
		v = def
	}
	return mat.NewDiagDense(3, append([]float64(nil), v...))
}
