// Package perf tracks per-source call performance so the waterfall can favor
// sources that deliver and operators can compare providers on yield, latency,
// and spend.
package perf

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/source"
)

// Sink persists individual call records. The postgres store implements this;
// tests use an in-memory fake.
type Sink interface {
	InsertSourceMetric(ctx context.Context, m source.CallMetrics, at time.Time) error
}

// SourceStats aggregates one source's calls for a single operation.
type SourceStats struct {
	Source          string
	Op              source.Capability
	Calls           int
	Successes       int
	RateLimited     int
	TotalLatencyMS  int64
	FieldsPopulated int
	CostUSD         float64
}

// SuccessRate returns the fraction of calls that succeeded.
func (s SourceStats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Calls)
}

// AvgLatencyMS returns the mean call latency.
func (s SourceStats) AvgLatencyMS() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.TotalLatencyMS) / float64(s.Calls)
}

// FieldsPerCall returns the mean number of fields a successful call filled.
func (s SourceStats) FieldsPerCall() float64 {
	if s.Successes == 0 {
		return 0
	}
	return float64(s.FieldsPopulated) / float64(s.Successes)
}

// CostPerField returns the spend per populated field, the yield metric used
// to compare sources. Returns 0 when nothing was populated.
func (s SourceStats) CostPerField() float64 {
	if s.FieldsPopulated == 0 {
		return 0
	}
	return s.CostUSD / float64(s.FieldsPopulated)
}

type statKey struct {
	source string
	op     source.Capability
}

// Tracker implements source.Recorder: it keeps running in-process aggregates
// and forwards each call record to the sink. Sink failures are logged and
// dropped, never propagated into the waterfall.
type Tracker struct {
	mu    sync.Mutex
	stats map[statKey]*SourceStats
	sink  Sink
	log   *zap.Logger
	now   func() time.Time
}

// NewTracker builds a tracker. A nil sink keeps aggregates in memory only.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{
		stats: make(map[statKey]*SourceStats),
		sink:  sink,
		log:   zap.L().Named("perf"),
		now:   time.Now,
	}
}

// Record implements source.Recorder.
func (t *Tracker) Record(ctx context.Context, m source.CallMetrics) {
	t.mu.Lock()
	key := statKey{source: m.Source, op: m.Op}
	st, ok := t.stats[key]
	if !ok {
		st = &SourceStats{Source: m.Source, Op: m.Op}
		t.stats[key] = st
	}
	st.Calls++
	st.TotalLatencyMS += m.LatencyMS
	st.CostUSD += m.CostUSD
	if m.Success {
		st.Successes++
		st.FieldsPopulated += m.FieldsPopulated
	}
	if m.RateLimited {
		st.RateLimited++
	}
	t.mu.Unlock()

	if t.sink == nil {
		return
	}
	if err := t.sink.InsertSourceMetric(ctx, m, t.now()); err != nil {
		t.log.Warn("metric insert failed",
			zap.String("source", m.Source),
			zap.String("op", string(m.Op)),
			zap.Error(err))
	}
}

// Snapshot returns the aggregates collected so far, sorted by source then
// operation for stable output.
func (t *Tracker) Snapshot() []SourceStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SourceStats, 0, len(t.stats))
	for _, st := range t.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Op < out[j].Op
	})
	return out
}

// Rank orders names best-first for op: success rate descending, cost per
// populated field ascending. Sources with no recorded calls keep their
// configured position, so the caller's order stays the prior until evidence
// accumulates.
func (t *Tracker) Rank(op source.Capability, names []string) []string {
	t.mu.Lock()
	observed := make(map[string]SourceStats, len(names))
	for _, name := range names {
		if st, ok := t.stats[statKey{source: name, op: op}]; ok {
			observed[name] = *st
		}
	}
	t.mu.Unlock()

	ranked := make([]string, len(names))
	copy(ranked, names)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, iok := observed[ranked[i]]
		sj, jok := observed[ranked[j]]
		if !iok || !jok {
			return false
		}
		if si.SuccessRate() != sj.SuccessRate() {
			return si.SuccessRate() > sj.SuccessRate()
		}
		return si.CostPerField() < sj.CostPerField()
	})
	return ranked
}

var (
	_ source.Recorder = (*Tracker)(nil)
	_ source.Ranker   = (*Tracker)(nil)
)
