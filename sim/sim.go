// Package sim generates ground truth and noisy range/bearing measurements for
// the 2D localization demo, and drives a particle filter over them.
package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	particlefilter "github.com/jhoydich/unicycle-pf"
	"github.com/jhoydich/unicycle-pf/internal/monitoring"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultLandmarks returns the fixed landmark table of the demo. The points
// surround the loop the default control profile drives.
func DefaultLandmarks() []particlefilter.Landmark {
	return []particlefilter.Landmark{
		{X: 10, Y: 0},
		{X: 15, Y: 10},
		{X: 5, Y: 15},
		{X: -5, Y: 10},
		{X: 0, Y: -5},
	}
}

// Times returns finalTime/dt+1 evenly spaced sample times from 0 to finalTime.
func Times(finalTime, dt float64) []float64 {
	n := int(math.Round(finalTime/dt)) + 1
	if n < 2 {
		return []float64{0}
	}
	return floats.Span(make([]float64, n), 0, finalTime)
}

// Controls returns the demo velocity profile sampled at times: a constant
// 0.5 m/s forward speed and a turn rate of 0.2*sin(0.1*t) rad/s. Control k
// moves the agent from times[k] to times[k+1].
func Controls(times []float64) []particlefilter.Control {
	if len(times) < 2 {
		return nil
	}
	out := make([]particlefilter.Control, len(times)-1)
	for k := range out {
		out[k] = particlefilter.Control{
			LinearVel:  0.5,
			AngularVel: 0.2 * math.Sin(0.1*times[k]),
			Dt:         times[k+1] - times[k],
		}
	}
	return out
}

// Truth simulates the true trajectory by propagating a single pose with the
// true process noise q. It returns len(controls)+1 poses starting at x0.
func Truth(x0 particlefilter.Particle, controls []particlefilter.Control, q *mat.DiagDense, rnd *rand.Rand) ([]particlefilter.Particle, error) {
	out := make([]particlefilter.Particle, 0, len(controls)+1)
	out = append(out, x0)
	pose := []particlefilter.Particle{x0}
	for k, u := range controls {
		next, err := particlefilter.Propagate(pose, u, q, rnd)
		if err != nil {
			return nil, fmt.Errorf("truth step %d: %w", k, err)
		}
		pose = next
		out = append(out, next[0])
	}
	return out, nil
}

// RangeBearing simulates the sensor: for every true pose, the range and
// bearing to each landmark corrupted by zero-mean gaussian noise of the given
// variance. Ranges are reflected at zero so they stay non-negative.
func RangeBearing(truth []particlefilter.Particle, landmarks []particlefilter.Landmark, variance float64, rnd *rand.Rand) ([][]particlefilter.Measurement, error) {
	if len(landmarks) == 0 {
		return nil, fmt.Errorf("%w: no landmarks", particlefilter.ErrMalformedInput)
	}
	if math.IsNaN(variance) || math.IsInf(variance, 0) || variance < 0 {
		return nil, fmt.Errorf("%w: measurement variance %v", particlefilter.ErrInvalidConfig, variance)
	}
	if rnd == nil {
		return nil, fmt.Errorf("%w: nil random source", particlefilter.ErrInvalidConfig)
	}
	noise := distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance), Src: rnd}

	out := make([][]particlefilter.Measurement, len(truth))
	for k, p := range truth {
		z := make([]particlefilter.Measurement, len(landmarks))
		for i, l := range landmarks {
			m := particlefilter.Expected(p, l)
			z[i] = particlefilter.Measurement{
				Range:   math.Abs(m.Range + noise.Rand()),
				Bearing: particlefilter.Wrap(m.Bearing + noise.Rand()),
			}
		}
		out[k] = z
	}
	return out, nil
}

// Trajectory is the record of one filter run.
type Trajectory struct {
	// Estimates[0] is the prior estimate, Estimates[k] the estimate after step k.
	Estimates []particlefilter.Estimate
	// Timings[k-1] is the wall time spent in step k.
	Timings []time.Duration
	// Updates counts the steps that consumed a measurement.
	Updates int
}

// Run builds a filter around truth[0] and steps it through every control,
// handing it measurements[k] on update steps. The run stops early with the
// context error if ctx is cancelled.
func Run(ctx context.Context, cfg particlefilter.Config, landmarks []particlefilter.Landmark, truth []particlefilter.Particle,
	measurements [][]particlefilter.Measurement, controls []particlefilter.Control, src rand.Source) (Trajectory, error) {
	if len(truth) == 0 {
		return Trajectory{}, fmt.Errorf("%w: empty truth", particlefilter.ErrMalformedInput)
	}
	if len(controls) != len(truth)-1 || len(measurements) != len(truth) {
		return Trajectory{}, fmt.Errorf("%w: %d poses, %d controls and %d measurement vectors",
			particlefilter.ErrMalformedInput, len(truth), len(controls), len(measurements))
	}

	pf, err := particlefilter.CreatePF(cfg, landmarks, truth[0], src)
	if err != nil {
		return Trajectory{}, err
	}

	tr := Trajectory{
		Estimates: make([]particlefilter.Estimate, 1, len(truth)),
		Timings:   make([]time.Duration, 0, len(controls)),
	}
	tr.Estimates[0] = pf.LastEstimate()

	for k := 1; k < len(truth); k++ {
		if err := ctx.Err(); err != nil {
			return tr, err
		}
		var z []particlefilter.Measurement
		if k%cfg.Skip == 0 {
			z = measurements[k]
			tr.Updates++
		}

		start := time.Now()
		est, err := pf.Step(z, controls[k-1])
		tr.Timings = append(tr.Timings, time.Since(start))
		if err != nil {
			return tr, err
		}
		tr.Estimates = append(tr.Estimates, est)
	}
	return tr, nil
}

// Stats summarises step timings in milliseconds.
type Stats struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Profile computes timing statistics. The standard deviation is the
// population one. An empty input yields zero Stats.
func Profile(timings []time.Duration) Stats {
	if len(timings) == 0 {
		return Stats{}
	}
	ms := make([]float64, len(timings))
	for i, d := range timings {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	mean, std := stat.PopMeanStdDev(ms, nil)
	return Stats{Mean: mean, Std: std, Min: floats.Min(ms), Max: floats.Max(ms)}
}

// LogProfile writes the timing table the demo prints after a run.
func LogProfile(name string, s Stats) {
	monitoring.Logf("%s profiling statistics (ms):", name)
	monitoring.Logf("\tmean\t std\t min\t max")
	monitoring.Logf("pf:\t%.2f\t %.2f\t %.2f\t %.2f", s.Mean, s.Std, s.Min, s.Max)
}

// RMSE is the root mean square position error of estimates against truth.
func RMSE(truth []particlefilter.Particle, estimates []particlefilter.Estimate) (float64, error) {
	if len(truth) == 0 || len(truth) != len(estimates) {
		return 0, fmt.Errorf("%w: %d poses for %d estimates", particlefilter.ErrMalformedInput, len(truth), len(estimates))
	}
	sq := make([]float64, len(truth))
	for i, p := range truth {
		dx, dy := estimates[i].X-p.X, estimates[i].Y-p.Y
		sq[i] = dx*dx + dy*dy
	}
	return math.Sqrt(stat.Mean(sq, nil)), nil
}
