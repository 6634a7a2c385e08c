package particlefilter

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

var demoControl = Control{LinearVel: 0.5, AngularVel: 0.1, Dt: 0.02}

func TestStepCarriesWeightsBetweenUpdates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Skip = 100
	particles := randomParticles(50, 4)
	w := make([]float64, 50)
	for i := range w {
		w[i] = float64(i + 1)
	}
	floats.Scale(1/floats.Sum(w), w)
	wBefore := copyWeights(w)

	res, err := Step(particles, w, testLandmarks, nil, demoControl, 37, cfg, newRand(6))
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.False(t, res.Resampled)
	assert.Equal(t, wBefore, res.Weights)
	assert.NotEmpty(t, cmp.Diff(particles, res.Particles))
	assert.InDelta(t, Neff(w), res.Neff, 1e-12)
}

func TestStepUpdatesOnSkipMultiples(t *testing.T) {
	muteLogs(t)
	cfg := DefaultConfig()
	cfg.Skip = 5
	cfg.NeffThreshold = 0
	truth := Particle{X: 0.2, Y: -0.1, Heading: 0.05}
	particles := randomParticles(200, 9)
	z := measureFrom(truth, testLandmarks)

	for _, k := range []int{0, 5, 100} {
		res, err := Step(particles, uniformWeights(200), testLandmarks, z, demoControl, k, cfg, newRand(uint64(k)+1))
		require.NoError(t, err)
		assert.True(t, res.Updated, "k=%d", k)
		assert.False(t, res.Resampled, "threshold 0 never resamples")
		assert.InDelta(t, 1, floats.Sum(res.Weights), 1e-9)
		assert.Less(t, res.Neff, 200.0)
	}
}

func TestStepResamplesDegenerateUpdate(t *testing.T) {
	muteLogs(t)
	cfg := DefaultConfig()
	cfg.Skip = 1
	cfg.NeffThreshold = 50
	cfg.MeasurementNoise = []float64{0.05}
	cfg.ProcessNoise = zeroNoise()

	// standing still without process noise keeps the true pose in the set
	truth := Particle{X: 0.2, Y: -0.1, Heading: 0.05}
	particles := randomParticles(100, 12)
	particles[0] = truth
	res, err := Step(particles, uniformWeights(100), testLandmarks, measureFrom(truth, testLandmarks), Control{Dt: 0.02}, 3, cfg, newRand(3))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.True(t, res.Resampled)
	assert.Less(t, res.Neff, 50.0)
	assert.Len(t, res.Particles, 100)
	assert.Equal(t, uniformWeights(100), res.Weights)

	// the surviving particles concentrate near the truth
	assert.InDelta(t, truth.X, res.Estimate.X, 0.5)
	assert.InDelta(t, truth.Y, res.Estimate.Y, 0.5)
}

func TestStepIsAllOrNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Skip = 10
	particles := randomParticles(20, 2)
	w := uniformWeights(20)
	pSnap, wSnap := copyParticles(particles), copyWeights(w)
	z := measureFrom(Particle{}, testLandmarks)
	nanParticles := copyParticles(particles)
	nanParticles[4].X = math.NaN()
	infParticles := copyParticles(particles)
	infParticles[7].Heading = math.Inf(1)

	tests := []struct {
		name string
		ps   []Particle
		z    []Measurement
		u    Control
		k    int
		w    []float64
		cfg  func(*Config)
		want error
	}{
		{"nan particle on update", nanParticles, z, demoControl, 10, w, nil, ErrMalformedInput},
		{"nan particle off update", nanParticles, nil, demoControl, 3, w, nil, ErrMalformedInput},
		{"inf heading", infParticles, z, demoControl, 10, w, nil, ErrMalformedInput},
		{"unnormalized weights", nil, z, demoControl, 3, []float64{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}, nil, ErrMalformedInput},
		{"measurement arity", nil, z[:1], demoControl, 10, w, nil, ErrMalformedInput},
		{"missing measurement on update", nil, nil, demoControl, 20, w, nil, ErrMalformedInput},
		{"bad measurement off update", nil, []Measurement{{Range: math.NaN()}, z[1], z[2]}, demoControl, 3, w, nil, ErrMalformedInput},
		{"nan control", nil, z, Control{LinearVel: math.NaN(), Dt: 0.02}, 10, w, nil, ErrMalformedInput},
		{"negative step", nil, z, demoControl, -1, w, nil, ErrMalformedInput},
		{"weight arity", nil, z, demoControl, 10, w[:19], nil, ErrMalformedInput},
		{"zero skip", nil, z, demoControl, 10, w, func(c *Config) { c.Skip = 0 }, ErrInvalidConfig},
		{"noise arity", nil, z, demoControl, 10, w, func(c *Config) { c.MeasurementNoise = []float64{1, 1} }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg.clone()
			if tt.cfg != nil {
				tt.cfg(&c)
			}
			ps := particles
			if tt.ps != nil {
				ps = tt.ps
			}
			res, err := Step(ps, tt.w, testLandmarks, tt.z, tt.u, tt.k, c, newRand(1))
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res.Particles)
			assert.Nil(t, res.Weights)
			assert.Empty(t, cmp.Diff(pSnap, particles))
			assert.Empty(t, cmp.Diff(wSnap, w))
		})
	}
}

func TestStepWorkersDoNotChangeResult(t *testing.T) {
	muteLogs(t)
	cfg := DefaultConfig()
	cfg.Skip = 1
	particles := randomParticles(300, 31)
	z := measureFrom(Particle{X: 0.5}, testLandmarks)

	serial, err := Step(particles, uniformWeights(300), testLandmarks, z, demoControl, 1, cfg, newRand(10))
	require.NoError(t, err)

	cfg.Workers = 7
	parallel, err := Step(particles, uniformWeights(300), testLandmarks, z, demoControl, 1, cfg, newRand(10))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(serial, parallel))
}

func TestWeightedMean(t *testing.T) {
	particles := []Particle{
		{X: 0, Y: 0, Heading: math.Pi - 0.1},
		{X: 2, Y: 4, Heading: -math.Pi + 0.1},
	}
	w := []float64{0.5, 0.5}

	circ := WeightedMean(particles, w, HeadingCircular)
	assert.Empty(t, cmp.Diff(Estimate{X: 1, Y: 2}, Estimate{X: circ.X, Y: circ.Y}, cmpopts.EquateApprox(0, 1e-12)))
	assert.InDelta(t, math.Pi, math.Abs(circ.Heading), 1e-9)

	// the linear mean collapses a cloud straddling +-pi onto zero
	lin := WeightedMean(particles, w, HeadingLinear)
	assert.InDelta(t, 0, lin.Heading, 1e-9)

	skewed := WeightedMean(particles, []float64{0.75, 0.25}, HeadingCircular)
	assert.InDelta(t, 0.5, skewed.X, 1e-12)
	assert.Greater(t, skewed.Heading, 3.0)
}

func TestWeightedMeanHeadingStaysWrapped(t *testing.T) {
	// the sine sum is a tiny negative number, so atan2 rounds onto -pi
	particles := []Particle{{Heading: math.Pi}, {Heading: math.Nextafter(-math.Pi, 0)}}
	est := WeightedMean(particles, []float64{0.8, 0.2}, HeadingCircular)
	assert.Greater(t, est.Heading, -math.Pi)
	assert.LessOrEqual(t, est.Heading, math.Pi)
	assert.InDelta(t, math.Pi, math.Abs(est.Heading), 1e-9)
}
