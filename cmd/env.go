package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/funnel"
	"github.com/sells-group/prospect-cli/internal/jobs"
	"github.com/sells-group/prospect-cli/internal/perf"
	"github.com/sells-group/prospect-cli/internal/signal"
	"github.com/sells-group/prospect-cli/internal/source"
	"github.com/sells-group/prospect-cli/internal/store"
	anthropicpkg "github.com/sells-group/prospect-cli/pkg/anthropic"
	"github.com/sells-group/prospect-cli/pkg/apollo"
	"github.com/sells-group/prospect-cli/pkg/hunter"
	"github.com/sells-group/prospect-cli/pkg/pdl"
)

func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("database URL is required (PROSPECT_STORE_DATABASE_URL)")
	}
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// buildRegistry registers every source with configured credentials. Missing
// keys just leave the source out of the registry; the orchestrator reports
// it as skipped.
func buildRegistry() *source.Registry {
	reg := source.NewRegistry()

	if cfg.Apollo.Key != "" {
		var opts []apollo.Option
		if cfg.Apollo.BaseURL != "" {
			opts = append(opts, apollo.WithBaseURL(cfg.Apollo.BaseURL))
		}
		adapter := source.NewApolloAdapter(apollo.NewClient(cfg.Apollo.Key, opts...))
		reg.Register(source.NewLimited(adapter, limitConfig(cfg.Apollo)))
	}
	if cfg.PDL.Key != "" {
		var opts []pdl.Option
		if cfg.PDL.BaseURL != "" {
			opts = append(opts, pdl.WithBaseURL(cfg.PDL.BaseURL))
		}
		adapter := source.NewPDLAdapter(pdl.NewClient(cfg.PDL.Key, opts...))
		reg.Register(source.NewLimited(adapter, limitConfig(cfg.PDL)))
	}
	if cfg.Hunter.Key != "" {
		var opts []hunter.Option
		if cfg.Hunter.BaseURL != "" {
			opts = append(opts, hunter.WithBaseURL(cfg.Hunter.BaseURL))
		}
		adapter := source.NewHunterAdapter(hunter.NewClient(cfg.Hunter.Key, opts...))
		reg.Register(source.NewLimited(adapter, limitConfig(cfg.Hunter)))
	}

	zap.L().Info("sources registered", zap.Strings("sources", reg.Names()))
	return reg
}

func limitConfig(p config.ProviderConfig) source.LimitConfig {
	return source.LimitConfig{
		PerSecond:   p.PerSecond,
		PerMinute:   p.PerMinute,
		WaitTimeout: time.Duration(p.WaitTimeoutMS) * time.Millisecond,
	}
}

func buildOrchestrator(st store.Store) *source.Orchestrator {
	strategy := source.Strategy{
		SourceOrder:        cfg.Orchestrator.SourceOrder,
		QualityThreshold:   cfg.Orchestrator.QualityThreshold,
		MaxProviders:       cfg.Orchestrator.MaxProviders,
		CostBudgetUSD:      cfg.Orchestrator.CostBudgetUSD,
		OrderByPerformance: cfg.Orchestrator.OrderByPerformance,
	}
	return source.NewOrchestrator(buildRegistry(), strategy, perf.NewTracker(st))
}

func buildDetector() *signal.Detector {
	if cfg.Anthropic.Key == "" {
		return nil
	}
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return signal.NewDetector(client, cfg.Anthropic.Model).
		WithThresholds(cfg.Signals.MinStrength, cfg.Signals.MinTextLen)
}

func buildDiscovery(st store.Store, orch *source.Orchestrator) *discovery.Service {
	blocklist := discovery.NewBlocklist(cfg.Discovery.BlockedDomains)

	var suggester *discovery.Suggester
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		suggester = discovery.NewSuggester(client, cfg.Anthropic.Model, cfg.Discovery.SuggestionLimit)
	}

	return discovery.NewService(orch, st, blocklist, suggester, orch, discovery.Policy{
		OverfetchMultiplier: cfg.Discovery.OverfetchMultiplier,
		AcceptThreshold:     cfg.Discovery.AcceptThreshold,
		BackfillBatch:       cfg.Discovery.BackfillBatch,
		DeepEnrichTop:       cfg.Discovery.DeepEnrichTop,
	})
}

func buildFunnel(st store.Store) *funnel.Builder {
	policy := funnel.Policy{
		AcceptThreshold:  cfg.Funnel.AcceptThreshold,
		AdvanceStrength:  cfg.Funnel.AdvanceStrength,
		PersonaThreshold: cfg.Funnel.PersonaThreshold,
	}
	// A typed-nil detector must not end up behind the interface.
	if det := buildDetector(); det != nil {
		return funnel.NewBuilder(st, det, policy)
	}
	return funnel.NewBuilder(st, nil, policy)
}

func buildRunner(st store.Store) *jobs.Runner {
	orch := buildOrchestrator(st)
	runner := jobs.NewRunner(st, cfg.Jobs)
	jobs.RegisterPipelines(runner, st, buildDiscovery(st, orch), buildFunnel(st))
	return runner
}
