package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-cli/internal/model"
)

func TestCompositeDefaultWeights(t *testing.T) {
	got := Composite(CompositeInputs{Fit: 1, Signal: 1, Originality: 1, CostEfficiency: 1}, nil)
	assert.InDelta(t, 1.0, got, 1e-9)

	got = Composite(CompositeInputs{Fit: 1}, nil)
	assert.InDelta(t, 0.35, got, 1e-9)

	got = Composite(CompositeInputs{Signal: 1}, nil)
	assert.InDelta(t, 0.30, got, 1e-9)
}

func TestCompositeStrategyOverride(t *testing.T) {
	strategy := &model.ScoringStrategy{FitWeight: 1, SignalWeight: 1}

	got := Composite(CompositeInputs{Fit: 0.8, Signal: 0.4}, strategy)

	// Weights renormalize to 0.5 each.
	assert.InDelta(t, 0.6, got, 1e-9)
}

func TestCompositeZeroWeightsScoreZero(t *testing.T) {
	strategy := &model.ScoringStrategy{}
	assert.Zero(t, Composite(CompositeInputs{Fit: 1}, strategy))
}

func TestCompositeClampsInputs(t *testing.T) {
	got := Composite(CompositeInputs{Fit: 2.0, Signal: -1.0}, nil)
	assert.InDelta(t, 0.35, got, 1e-9)
}

func TestOriginality(t *testing.T) {
	src := func(names ...string) []model.SourceRecord {
		out := make([]model.SourceRecord, len(names))
		for i, n := range names {
			out[i] = model.SourceRecord{Source: n}
		}
		return out
	}

	assert.InDelta(t, 0.5, Originality(&model.Company{}), 1e-9)
	assert.InDelta(t, 1.0, Originality(&model.Company{Sources: src("apollo")}), 1e-9)
	assert.InDelta(t, 0.75, Originality(&model.Company{Sources: src("apollo", "pdl")}), 1e-9)
	assert.InDelta(t, 0.25, Originality(&model.Company{Sources: src("a", "b", "c", "d", "e")}), 1e-9)
}

func TestCostEfficiency(t *testing.T) {
	assert.InDelta(t, 1.0, CostEfficiency(0, 0), 1e-9)
	assert.InDelta(t, 1.0, CostEfficiency(5, 0), 1e-9)
	assert.Zero(t, CostEfficiency(0, 0.10))

	// Spend at the reference rate scores a neutral 0.5.
	assert.InDelta(t, 0.5, CostEfficiency(10, 0.10), 1e-9)

	cheap := CostEfficiency(10, 0.02)
	expensive := CostEfficiency(2, 0.10)
	assert.Greater(t, cheap, expensive)
}
