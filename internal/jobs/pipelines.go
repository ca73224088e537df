package jobs

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/funnel"
	"github.com/sells-group/prospect-cli/internal/model"
)

// DiscoveryInput is the payload for discovery jobs.
type DiscoveryInput struct {
	ProfileID      string `json:"profile_id"`
	Limit          int    `json:"limit,omitempty"`
	SkipDeepEnrich bool   `json:"skip_deep_enrich,omitempty"`
}

// FunnelInput is the payload for funnel build, refresh, and signal jobs.
type FunnelInput struct {
	FunnelID  string `json:"funnel_id"`
	PersonaID string `json:"persona_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Discoverer runs a discovery pass for a profile.
type Discoverer interface {
	Discover(ctx context.Context, profile *model.TargetProfile, limit int, opts discovery.Options) (*discovery.Result, error)
}

// FunnelRunner drives funnel builds and stage transitions.
type FunnelRunner interface {
	Build(ctx context.Context, funnelID, personaID string, limit int, progress func(int, int)) (*funnel.BuildResult, error)
	Refresh(ctx context.Context, funnelID, personaID string, limit int, progress func(int, int)) (*funnel.BuildResult, error)
	RunCompanySignals(ctx context.Context, funnelID string, progress func(int, int)) (*funnel.AdvanceResult, error)
	RunPersonaSignals(ctx context.Context, funnelID, personaID string, progress func(int, int)) (*funnel.AdvanceResult, error)
}

// ProfileStore resolves job inputs to profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*model.TargetProfile, error)
}

// RegisterPipelines installs handlers for every job type onto the runner.
func RegisterPipelines(r *Runner, profiles ProfileStore, disc Discoverer, builder FunnelRunner) {
	r.Register(model.JobDiscovery, discoveryHandler(profiles, disc))
	r.Register(model.JobFunnelBuild, func(ctx context.Context, job *model.Job, progress func(int, int)) (any, error) {
		in, err := funnelInput(job)
		if err != nil {
			return nil, err
		}
		return builder.Build(ctx, in.FunnelID, in.PersonaID, in.Limit, progress)
	})
	r.Register(model.JobFunnelRefresh, func(ctx context.Context, job *model.Job, progress func(int, int)) (any, error) {
		in, err := funnelInput(job)
		if err != nil {
			return nil, err
		}
		return builder.Refresh(ctx, in.FunnelID, in.PersonaID, in.Limit, progress)
	})
	r.Register(model.JobCompanySignals, func(ctx context.Context, job *model.Job, progress func(int, int)) (any, error) {
		in, err := funnelInput(job)
		if err != nil {
			return nil, err
		}
		return builder.RunCompanySignals(ctx, in.FunnelID, progress)
	})
	r.Register(model.JobPersonaSignals, func(ctx context.Context, job *model.Job, progress func(int, int)) (any, error) {
		in, err := funnelInput(job)
		if err != nil {
			return nil, err
		}
		if in.PersonaID == "" {
			return nil, eris.New("jobs: persona_signals requires persona_id")
		}
		return builder.RunPersonaSignals(ctx, in.FunnelID, in.PersonaID, progress)
	})
}

func discoveryHandler(profiles ProfileStore, disc Discoverer) HandlerFunc {
	return func(ctx context.Context, job *model.Job, progress func(int, int)) (any, error) {
		var in DiscoveryInput
		if err := json.Unmarshal(job.Input, &in); err != nil {
			return nil, eris.Wrap(err, "jobs: parse discovery input")
		}
		if in.ProfileID == "" {
			return nil, eris.New("jobs: discovery requires profile_id")
		}
		profile, err := profiles.GetProfile(ctx, in.ProfileID)
		if err != nil {
			return nil, err
		}
		return disc.Discover(ctx, profile, in.Limit, discovery.Options{
			SkipDeepEnrich: in.SkipDeepEnrich,
			Progress:       progress,
		})
	}
}

func funnelInput(job *model.Job) (*FunnelInput, error) {
	var in FunnelInput
	if err := json.Unmarshal(job.Input, &in); err != nil {
		return nil, eris.Wrap(err, "jobs: parse funnel input")
	}
	if in.FunnelID == "" {
		return nil, eris.New("jobs: funnel jobs require funnel_id")
	}
	return &in, nil
}
