// Package scoring merges detector tags into additive, capped suspicion scores.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
	"github.com/opensource-finance/ringwatch/internal/velocity"
)

// Signal weights. A signal counts at most once per account.
const (
	WeightCycle        = 40.0
	WeightFan          = 25.0
	WeightShell        = 20.0
	WeightVelocity     = 10.0
	WeightRoundAmounts = 5.0

	MaxScore = 100.0
)

// Round-amount signal: more than this share of sent amounts are whole
// multiples of RoundUnit.
const RoundAmountShare = 0.6

// RoundUnit is the divisor used by the round-amount signal.
var RoundUnit = decimal.NewFromInt(100)

// Input contains all data needed to score a run.
type Input struct {
	Graph *graph.Graph

	// Tags holds the detector tags merged per account.
	Tags map[string]domain.PatternSet
}

// Assessment is the scored view of one account.
type Assessment struct {
	Score    float64
	Patterns domain.PatternSet
}

// Scorer computes suspicion scores. It holds no state between runs.
type Scorer struct{}

// NewScorer creates a new scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Assess scores every account carrying at least one detector tag. The
// derived velocity and round-amount signals only amplify those accounts;
// they add their own tags to the returned pattern set. Input tags are not
// modified.
func (s *Scorer) Assess(in *Input) map[string]*Assessment {
	vel := velocity.NewService(in.Graph)
	out := make(map[string]*Assessment, len(in.Tags))

	for id, tags := range in.Tags {
		if len(tags) == 0 {
			continue
		}
		patterns := make(domain.PatternSet, len(tags)+2)
		for p := range tags {
			patterns.Add(p)
		}

		if vel.IsHighVelocity(id) {
			patterns.Add(domain.PatternHighVelocity)
		}
		if n := in.Graph.Node(id); n != nil && HasRoundAmounts(n.Out) {
			patterns.Add(domain.PatternRoundAmounts)
		}

		out[id] = &Assessment{Score: ScorePatterns(patterns), Patterns: patterns}
	}
	return out
}

// ScorePatterns sums the weights of the signals present, clamped to [0,100].
func ScorePatterns(p domain.PatternSet) float64 {
	score := 0.0
	if p.Has(domain.PatternCycle) {
		score += WeightCycle
	}
	if p.Has(domain.PatternFanIn) || p.Has(domain.PatternFanOut) {
		score += WeightFan
	}
	if p.Has(domain.PatternShellChain) {
		score += WeightShell
	}
	if p.Has(domain.PatternHighVelocity) {
		score += WeightVelocity
	}
	if p.Has(domain.PatternRoundAmounts) {
		score += WeightRoundAmounts
	}
	return math.Max(0, math.Min(MaxScore, score))
}

// HasRoundAmounts reports whether more than RoundAmountShare of the sent
// amounts are whole multiples of RoundUnit.
func HasRoundAmounts(sent []domain.Transaction) bool {
	if len(sent) == 0 {
		return false
	}
	round := 0
	for _, tx := range sent {
		if decimal.NewFromFloat(tx.Amount).Mod(RoundUnit).IsZero() {
			round++
		}
	}
	return float64(round)/float64(len(sent)) > RoundAmountShare
}
