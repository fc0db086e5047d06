package topology

import (
	"math/rand/v2"

	"github.com/specialistvlad/pafigrid/internal/config"
)

// SeedPolicy decides whether every request gets a new random seed.
type SeedPolicy int

const (
	// FreshDraw draws a new seed for every request.
	FreshDraw SeedPolicy = iota
	// FixedReplay draws once and replays that seed for every request.
	FixedReplay
)

// SeedPolicyFromConfig maps the FreshSeed parameter to a policy.
func SeedPolicyFromConfig(cfg *config.Config) SeedPolicy {
	if v, _ := cfg.Parameters.Get(config.FreshSeed); v.Bool() {
		return FreshDraw
	}
	return FixedReplay
}

// Seeder is the random seed stream of one worker group. Every rank of a
// group builds the same Seeder and draws in lock-step, so the whole group
// agrees on each seed without communicating.
type Seeder struct {
	rng    *rand.Rand
	policy SeedPolicy
	fixed  int
	drawn  bool
}

// NewSeeder seeds the stream of group groupIndex with
// globalSeed*(groupIndex+1).
func NewSeeder(globalSeed, groupIndex int, policy SeedPolicy) *Seeder {
	seed := uint64(globalSeed * (groupIndex + 1))
	return &Seeder{
		rng:    rand.New(rand.NewPCG(seed, 0)),
		policy: policy,
	}
}

// Next returns the seed for the next request, in [100, 10000).
func (s *Seeder) Next() int {
	if s.policy == FixedReplay && s.drawn {
		return s.fixed
	}
	s.fixed = 100 + s.rng.IntN(9900)
	s.drawn = true
	return s.fixed
}
