package particlefilter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.NumParticles)
	assert.Equal(t, 50.0, cfg.NeffThreshold)
	assert.Equal(t, 100, cfg.Skip)
	assert.Equal(t, HeadingCircular, cfg.HeadingMean)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero particles", func(c *Config) { c.NumParticles = 0 }},
		{"negative particles", func(c *Config) { c.NumParticles = -3 }},
		{"nil process noise", func(c *Config) { c.ProcessNoise = nil }},
		{"2x2 process noise", func(c *Config) { c.ProcessNoise = mat.NewDiagDense(2, nil) }},
		{"negative heading variance", func(c *Config) { c.ProcessNoise = mat.NewDiagDense(3, []float64{0, 0, -0.1}) }},
		{"nan prior", func(c *Config) { c.PriorNoise = mat.NewDiagDense(3, []float64{math.NaN(), 0, 0}) }},
		{"empty measurement noise", func(c *Config) { c.MeasurementNoise = nil }},
		{"zero measurement noise", func(c *Config) { c.MeasurementNoise = []float64{0} }},
		{"negative neff threshold", func(c *Config) { c.NeffThreshold = -1 }},
		{"zero skip", func(c *Config) { c.Skip = 0 }},
		{"negative skip", func(c *Config) { c.Skip = -10 }},
		{"unknown heading mean", func(c *Config) { c.HeadingMean = HeadingMean(7) }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigZeroProcessNoiseIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProcessNoise = mat.NewDiagDense(3, nil)
	cfg.PriorNoise = mat.NewDiagDense(3, nil)
	assert.NoError(t, cfg.Validate())
}

func TestParseHeadingMean(t *testing.T) {
	for in, want := range map[string]HeadingMean{"": HeadingCircular, "circular": HeadingCircular, "linear": HeadingLinear} {
		got, err := ParseHeadingMean(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.Equal(t, in, got.String())
		}
	}
	_, err := ParseHeadingMean("median")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, "HeadingMean(9)", HeadingMean(9).String())
}
