package particlefilter

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ParticleFilter is a stateful SIR particle filter over unicycle poses.
// It owns its random generator, so independent filters can run concurrently,
// but a single filter must not be stepped from several goroutines at once.
type ParticleFilter struct {
	cfg       Config
	landmarks []Landmark
	rnd       *rand.Rand

	particles []Particle
	weights   []float64
	iteration int
	estimate  Estimate
	neff      float64
}

// CreatePF validates cfg and draws the initial particle set from a gaussian
// prior (cfg.PriorNoise) around the known initial pose, with uniform weights.
func CreatePF(cfg Config, landmarks []Landmark, initial Particle, src rand.Source) (*ParticleFilter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateLandmarks(landmarks); err != nil {
		return nil, err
	}
	if err := validateMeasurementNoise(cfg.MeasurementNoise, len(landmarks)); err != nil {
		return nil, err
	}
	if !finite(initial.X, initial.Y, initial.Heading) {
		return nil, fmt.Errorf("%w: non-finite initial pose %+v", ErrMalformedInput, initial)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}

	lm := make([]Landmark, len(landmarks))
	copy(lm, landmarks)

	pf := &ParticleFilter{
		cfg:       cfg.clone(),
		landmarks: lm,
		rnd:       rand.New(src),
		weights:   uniformWeights(cfg.NumParticles),
	}

	// creating initial samples around the starting pose
	pf.createSampleList(initial)
	pf.estimate = WeightedMean(pf.particles, pf.weights, cfg.HeadingMean)
	pf.neff = Neff(pf.weights)

	return pf, nil
}

// createParticle draws one particle from the prior around pose
func (pf *ParticleFilter) createParticle(pose Particle, dists *[3]distuv.Normal) Particle {
	return Particle{
		X:       pose.X + dists[0].Rand(),
		Y:       pose.Y + dists[1].Rand(),
		Heading: Wrap(pose.Heading + dists[2].Rand()),
	}
}

// create initial sample list
func (pf *ParticleFilter) createSampleList(pose Particle) {
	var dists [3]distuv.Normal
	for k := range dists {
		dists[k] = distuv.Normal{Mu: 0, Sigma: math.Sqrt(pf.cfg.PriorNoise.At(k, k)), Src: pf.rnd}
	}
	pf.particles = make([]Particle, pf.cfg.NumParticles)
	for i := range pf.particles {
		pf.particles[i] = pf.createParticle(pose, &dists)
	}
}

// Step advances the filter by one time step with control u and measurement z
// (nil is allowed on steps without a measurement update). The step index
// starts at 1. On error the filter state is left as it was.
func (pf *ParticleFilter) Step(z []Measurement, u Control) (Estimate, error) {
	k := pf.iteration + 1
	res, err := Step(pf.particles, pf.weights, pf.landmarks, z, u, k, pf.cfg, pf.rnd)
	if err != nil {
		return Estimate{}, fmt.Errorf("step %d: %w", k, err)
	}
	pf.particles = res.Particles
	pf.weights = res.Weights
	pf.estimate = res.Estimate
	pf.neff = res.Neff
	pf.iteration = k
	return res.Estimate, nil
}

// Particles returns a copy of the current particle set.
func (pf *ParticleFilter) Particles() []Particle { return copyParticles(pf.particles) }

// Weights returns a copy of the current weight vector.
func (pf *ParticleFilter) Weights() []float64 { return copyWeights(pf.weights) }

// Landmarks returns a copy of the landmark table.
func (pf *ParticleFilter) Landmarks() []Landmark {
	lm := make([]Landmark, len(pf.landmarks))
	copy(lm, pf.landmarks)
	return lm
}

// Iteration is the index of the last completed step, 0 before the first one.
func (pf *ParticleFilter) Iteration() int { return pf.iteration }

// LastEstimate is the estimate of the last completed step, or of the prior.
func (pf *ParticleFilter) LastEstimate() Estimate { return pf.estimate }

// Neff is the effective sample size reported by the last step.
func (pf *ParticleFilter) Neff() float64 { return pf.neff }

// Config returns a copy of the configuration the filter was created with.
func (pf *ParticleFilter) Config() Config { return pf.cfg.clone() }
