package particlefilter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"

	"github.com/jhoydich/unicycle-pf/internal/monitoring"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// muteLogs silences the package logger for the duration of a test.
func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"in range untouched", 1.2345, 1.2345},
		{"pi stays pi", math.Pi, math.Pi},
		{"minus pi maps to pi", -math.Pi, math.Pi},
		{"just over pi", math.Pi + 0.5, -math.Pi + 0.5},
		{"just under minus pi", -math.Pi - 0.5, math.Pi - 0.5},
		{"full turn", 2 * math.Pi, 0},
		{"several turns", 7*math.Pi + 0.25, -math.Pi + 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Wrap(tt.in), 1e-9)
		})
	}
}

func TestWrapRange(t *testing.T) {
	rnd := newRand(3)
	for i := 0; i < 10000; i++ {
		a := (rnd.Float64() - 0.5) * 1e7
		w := Wrap(a)
		assert.Greater(t, w, -math.Pi)
		assert.LessOrEqual(t, w, math.Pi)
		assert.InDelta(t, math.Sin(a), math.Sin(w), 1e-6)
	}
}
