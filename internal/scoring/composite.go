package scoring

import (
	"github.com/sells-group/prospect-cli/internal/model"
)

// Default composite weights. Overridable per client via ScoringStrategy.
const (
	defaultFitWeight         = 0.35
	defaultSignalWeight      = 0.30
	defaultOriginalityWeight = 0.20
	defaultCostWeight        = 0.15
)

// CompositeInputs carries the four axis scores, each in [0,1].
type CompositeInputs struct {
	Fit            float64
	Signal         float64
	Originality    float64
	CostEfficiency float64
}

// Composite blends the four axes into one ranked value. A nil strategy uses
// the default weights; a strategy's weights are renormalized so partial
// overrides still sum to one.
func Composite(in CompositeInputs, strategy *model.ScoringStrategy) float64 {
	fw, sw, ow, cw := defaultFitWeight, defaultSignalWeight, defaultOriginalityWeight, defaultCostWeight
	if strategy != nil {
		fw, sw, ow, cw = strategy.FitWeight, strategy.SignalWeight, strategy.OriginalityWeight, strategy.CostWeight
	}

	total := fw + sw + ow + cw
	if total <= 0 {
		return 0
	}
	return (fw*clamp01(in.Fit) +
		sw*clamp01(in.Signal) +
		ow*clamp01(in.Originality) +
		cw*clamp01(in.CostEfficiency)) / total
}

// Originality is the data-rarity axis: companies surfaced by a single source
// are harder-to-find prospects than ones every provider already carries.
// One source scores 1.0, each additional source costs a quarter, floored at
// 0.25. No provenance at all scores a neutral 0.5.
func Originality(company *model.Company) float64 {
	n := len(company.Sources)
	if n == 0 {
		return 0.5
	}
	score := 1.0 - 0.25*float64(n-1)
	if score < 0.25 {
		return 0.25
	}
	return score
}

// referenceCostPerFieldUSD is the spend per populated field at which the
// cost-efficiency axis scores 0.5.
const referenceCostPerFieldUSD = 0.01

// CostEfficiency scores how cheaply the record was assembled: fields gained
// per dollar spent, mapped into [0,1]. Zero spend is perfectly efficient.
func CostEfficiency(fieldsPopulated int, costUSD float64) float64 {
	if costUSD <= 0 {
		return 1.0
	}
	if fieldsPopulated <= 0 {
		return 0
	}
	perField := costUSD / float64(fieldsPopulated)
	return referenceCostPerFieldUSD / (referenceCostPerFieldUSD + perField)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
