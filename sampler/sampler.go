// Package sampler draws weekly demand for each state from its normal distribution.
package sampler

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"workforce-planner/metrics"
	"workforce-planner/models"
)

// Sampler draws one demand value per state per call to Sample.
// It is not safe for concurrent use.
type Sampler struct {
	src  rand.Source
	seed uint64
	log  *slog.Logger
}

// New returns a sampler seeded with seed. A zero seed is replaced by the current time.
func New(seed uint64, logger *slog.Logger) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sampler{
		src:  rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		seed: seed,
		log:  logger,
	}
}

// Seed returns the seed the sampler was created with.
func (s *Sampler) Seed() uint64 {
	return s.seed
}

// Draw returns ceil(N(mean, std)), clamped at zero.
func (s *Sampler) Draw(dist models.DemandDistribution) float64 {
	return math.Max(s.drawRaw(dist), 0)
}

// Sample returns a fresh state table with DemandPerWeek drawn for every state
// that has a distribution. States without one keep their fixed demand. The
// input slice is not modified.
func (s *Sampler) Sample(ctx context.Context, states []models.State) []models.State {
	out := make([]models.State, len(states))
	for i, st := range states {
		out[i] = st
		if st.Distribution == nil {
			continue
		}
		raw := s.drawRaw(*st.Distribution)
		if raw < 0 {
			metrics.SampledDemandClampedTotal.Inc()
			s.log.WarnContext(ctx, "negative demand draw clamped to zero",
				"state", st.ID, "draw", raw, "mean", st.Distribution.Mean, "std", st.Distribution.Std)
		}
		out[i].DemandPerWeek = math.Max(raw, 0)
	}
	return out
}

func (s *Sampler) drawRaw(dist models.DemandDistribution) float64 {
	if dist.Std <= 0 {
		return math.Ceil(dist.Mean)
	}
	n := distuv.Normal{Mu: dist.Mean, Sigma: dist.Std, Src: s.src}
	return math.Ceil(n.Rand())
}
