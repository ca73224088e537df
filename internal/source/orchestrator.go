package source

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

// CallMetrics describes one adapter call for performance tracking.
type CallMetrics struct {
	Source          string
	Op              Capability
	LatencyMS       int64
	FieldsPopulated int
	CostUSD         float64
	Success         bool
	RateLimited     bool
}

// Recorder receives per-call metrics. Implementations must tolerate being
// called from concurrent enrichments.
type Recorder interface {
	Record(ctx context.Context, m CallMetrics)
}

// NopRecorder discards all metrics.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, CallMetrics) {}

// Ranker reorders source names for one operation using observed call
// performance. The perf tracker implements this over its running aggregates.
type Ranker interface {
	Rank(op Capability, names []string) []string
}

// Strategy controls how far down the waterfall an enrichment goes.
type Strategy struct {
	// SourceOrder is the strict priority order. Earlier sources win ties
	// because later sources only fill fields the earlier ones left empty.
	SourceOrder []string
	// QualityThreshold stops the waterfall once the merged record's core
	// field coverage reaches this fraction.
	QualityThreshold float64
	// MaxProviders caps how many sources are actually called per entity.
	MaxProviders int
	// CostBudgetUSD caps the total spend of one orchestrated operation.
	// Zero means unlimited.
	CostBudgetUSD float64
	// OrderByPerformance reorders SourceOrder per operation from observed
	// success rate and cost per field, when the recorder can rank. The
	// configured order remains the tie-break for unobserved sources.
	OrderByPerformance bool
}

// Skip records why a source was passed over during a waterfall run.
type Skip struct {
	Source string
	Reason string
}

// EnrichOutcome reports what an enrichment waterfall did.
type EnrichOutcome struct {
	Company      *model.Company
	SourcesUsed  []string
	FieldsFilled []string
	TotalCostUSD float64
	Skipped      []Skip
}

// SearchOutcome reports what a discovery search did.
type SearchOutcome struct {
	Companies    []model.Company
	SourcesUsed  []string
	TotalCostUSD float64
	Skipped      []Skip
}

// Orchestrator runs the source waterfall: sources are consulted in strict
// priority order, each one only filling fields its predecessors left empty,
// stopping early once coverage clears the quality threshold or the provider
// and cost caps are hit.
type Orchestrator struct {
	registry *Registry
	strategy Strategy
	recorder Recorder
	ranker   Ranker
	log      *zap.Logger
}

// NewOrchestrator builds an orchestrator over the registry. A nil recorder
// is replaced with NopRecorder.
func NewOrchestrator(registry *Registry, strategy Strategy, recorder Recorder) *Orchestrator {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if strategy.MaxProviders <= 0 {
		strategy.MaxProviders = len(strategy.SourceOrder)
	}
	o := &Orchestrator{
		registry: registry,
		strategy: strategy,
		recorder: recorder,
		log:      zap.L().Named("source"),
	}
	if strategy.OrderByPerformance {
		if r, ok := recorder.(Ranker); ok {
			o.ranker = r
		}
	}
	return o
}

// Strategy returns the orchestrator's configured strategy.
func (o *Orchestrator) Strategy() Strategy { return o.strategy }

// sourceOrder returns the walk order for one operation: the configured
// priority order, performance-ranked when enabled.
func (o *Orchestrator) sourceOrder(op Capability) []string {
	if o.ranker == nil {
		return o.strategy.SourceOrder
	}
	return o.ranker.Rank(op, o.strategy.SourceOrder)
}

// Enrich walks the waterfall for a single company. The input record is the
// merge base: fields it already has are never overwritten, sources only fill
// gaps. The returned outcome always carries a non-nil Company, even when every
// source failed.
func (o *Orchestrator) Enrich(ctx context.Context, company *model.Company, hints EnrichHints) (*EnrichOutcome, error) {
	if company == nil {
		company = &model.Company{}
	}
	if hints.Domain == "" {
		hints.Domain = company.Domain
	}
	if hints.Name == "" {
		hints.Name = company.Name
	}

	out := &EnrichOutcome{Company: company}

	for _, name := range o.sourceOrder(CapEnrich) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if len(out.SourcesUsed) >= o.strategy.MaxProviders {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "provider cap reached"})
			continue
		}
		if o.strategy.QualityThreshold > 0 && company.Coverage() >= o.strategy.QualityThreshold {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "quality threshold met"})
			continue
		}

		adapter, err := o.registry.Get(name)
		if err != nil {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "not registered"})
			continue
		}
		if !Supports(adapter, CapEnrich) {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "enrich not supported"})
			continue
		}

		cost := adapter.CostPerCall(CapEnrich)
		if o.strategy.CostBudgetUSD > 0 && out.TotalCostUSD+cost > o.strategy.CostBudgetUSD {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "cost budget exhausted"})
			continue
		}

		start := time.Now()
		found, err := adapter.Enrich(ctx, hints)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			rateLimited := errors.Is(err, ErrRateLimited)
			o.recorder.Record(ctx, CallMetrics{
				Source: name, Op: CapEnrich, LatencyMS: latency,
				RateLimited: rateLimited,
			})
			reason := "call failed"
			if rateLimited {
				reason = "rate limited"
			}
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: reason})
			o.log.Warn("source enrich failed",
				zap.String("source", name),
				zap.String("domain", hints.Domain),
				zap.Error(err))
			continue
		}

		filled := FillGaps(company, found)
		company.RecordSource(model.SourceRecord{Source: name, FetchedAt: time.Now(), Fields: filled})
		if company.PrimarySource == "" {
			company.PrimarySource = name
		}
		out.SourcesUsed = append(out.SourcesUsed, name)
		out.FieldsFilled = append(out.FieldsFilled, filled...)
		out.TotalCostUSD += cost

		o.recorder.Record(ctx, CallMetrics{
			Source: name, Op: CapEnrich, LatencyMS: latency,
			FieldsPopulated: len(filled), CostUSD: cost, Success: true,
		})
	}

	return out, nil
}

// SearchPeople walks capable sources in priority order and returns the first
// non-empty contact batch. People data does not merge field-by-field the way
// company records do, so one good batch wins.
func (o *Orchestrator) SearchPeople(ctx context.Context, q PeopleQuery) ([]model.Contact, error) {
	for _, adapter := range o.registry.Capable(o.sourceOrder(CapPeopleSearch), CapPeopleSearch) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := adapter.Name()

		start := time.Now()
		contacts, err := adapter.SearchPeople(ctx, q)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			o.recorder.Record(ctx, CallMetrics{
				Source: name, Op: CapPeopleSearch, LatencyMS: latency,
				RateLimited: errors.Is(err, ErrRateLimited),
			})
			o.log.Warn("source people search failed",
				zap.String("source", name),
				zap.String("domain", q.Domain),
				zap.Error(err))
			continue
		}

		o.recorder.Record(ctx, CallMetrics{
			Source: name, Op: CapPeopleSearch, LatencyMS: latency,
			FieldsPopulated: len(contacts), CostUSD: adapter.CostPerCall(CapPeopleSearch), Success: true,
		})
		if len(contacts) > 0 {
			return contacts, nil
		}
	}
	return nil, nil
}

// FindEmail walks capable sources in priority order and returns the first
// located address.
func (o *Orchestrator) FindEmail(ctx context.Context, q EmailQuery) (*model.Contact, error) {
	for _, adapter := range o.registry.Capable(o.sourceOrder(CapEmailFind), CapEmailFind) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := adapter.Name()

		start := time.Now()
		contact, err := adapter.FindEmail(ctx, q)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			o.recorder.Record(ctx, CallMetrics{
				Source: name, Op: CapEmailFind, LatencyMS: latency,
				RateLimited: errors.Is(err, ErrRateLimited),
			})
			o.log.Warn("source email find failed",
				zap.String("source", name),
				zap.String("domain", q.Domain),
				zap.Error(err))
			continue
		}

		o.recorder.Record(ctx, CallMetrics{
			Source: name, Op: CapEmailFind, LatencyMS: latency,
			CostUSD: adapter.CostPerCall(CapEmailFind), Success: true,
		})
		if contact != nil && contact.Email != "" {
			return contact, nil
		}
	}
	return nil, nil
}

// Search fans the query out across capable sources in priority order,
// concatenating result batches. Unlike Enrich there is no merge step here;
// dedup happens downstream once domains are normalized.
func (o *Orchestrator) Search(ctx context.Context, q SearchQuery) (*SearchOutcome, error) {
	out := &SearchOutcome{}

	for _, name := range o.sourceOrder(CapSearch) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if len(out.SourcesUsed) >= o.strategy.MaxProviders {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "provider cap reached"})
			continue
		}

		adapter, err := o.registry.Get(name)
		if err != nil {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "not registered"})
			continue
		}
		if !Supports(adapter, CapSearch) {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "search not supported"})
			continue
		}

		cost := adapter.CostPerCall(CapSearch)
		if o.strategy.CostBudgetUSD > 0 && out.TotalCostUSD+cost > o.strategy.CostBudgetUSD {
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: "cost budget exhausted"})
			continue
		}

		start := time.Now()
		batch, err := adapter.Search(ctx, q)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			rateLimited := errors.Is(err, ErrRateLimited)
			o.recorder.Record(ctx, CallMetrics{
				Source: name, Op: CapSearch, LatencyMS: latency,
				RateLimited: rateLimited,
			})
			reason := "call failed"
			if rateLimited {
				reason = "rate limited"
			}
			out.Skipped = append(out.Skipped, Skip{Source: name, Reason: reason})
			o.log.Warn("source search failed",
				zap.String("source", name),
				zap.Error(err))
			continue
		}

		now := time.Now()
		for i := range batch {
			batch[i].RecordSource(model.SourceRecord{Source: name, FetchedAt: now})
			if batch[i].PrimarySource == "" {
				batch[i].PrimarySource = name
			}
		}
		out.Companies = append(out.Companies, batch...)
		out.SourcesUsed = append(out.SourcesUsed, name)
		out.TotalCostUSD += cost

		o.recorder.Record(ctx, CallMetrics{
			Source: name, Op: CapSearch, LatencyMS: latency,
			FieldsPopulated: len(batch), CostUSD: cost, Success: true,
		})
	}

	return out, nil
}
