// Package store persists companies, contacts, funnels, signals, and jobs.
package store

import (
	"context"
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/source"
)

// CompanyFilter specifies criteria for listing companies.
type CompanyFilter struct {
	ClientID string              `json:"client_id,omitempty"`
	Stage    model.PipelineStage `json:"stage,omitempty"`
	Limit    int                 `json:"limit,omitempty"`
	Offset   int                 `json:"offset,omitempty"`
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Type   model.JobType   `json:"type,omitempty"`
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// SourceMetricsSummary aggregates persisted call metrics for one source and
// operation over a reporting window.
type SourceMetricsSummary struct {
	Source          string  `json:"source"`
	Op              string  `json:"op"`
	Calls           int     `json:"calls"`
	Successes       int     `json:"successes"`
	RateLimited     int     `json:"rate_limited"`
	AvgLatencyMS    float64 `json:"avg_latency_ms"`
	FieldsPopulated int     `json:"fields_populated"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
}

// MemberScores carries a score update for one funnel member.
type MemberScores struct {
	Fit       float64
	Signal    float64
	Composite float64
	Persona   float64
	Reasons   []string
}

// Store defines the persistence interface for the prospecting pipeline.
type Store interface {
	// Companies. UpsertCompany deduplicates by (client, lower-cased domain)
	// with fill-gaps semantics: existing populated fields are never
	// overwritten, provenance lists are unioned. Companies without a
	// domain always insert. Returns whether a new row was created and
	// leaves the canonical row in the passed company.
	UpsertCompany(ctx context.Context, company *model.Company) (bool, error)
	UpdateCompany(ctx context.Context, company *model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	GetCompanyByDomain(ctx context.Context, clientID, domain string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)
	AdvanceCompanyStage(ctx context.Context, id string, from, to model.PipelineStage) error

	// Contacts.
	UpsertContact(ctx context.Context, contact *model.Contact) error
	ListContactsByCompany(ctx context.Context, companyID string) ([]model.Contact, error)

	// Target profiles and persona filters, consumed read-mostly.
	CreateProfile(ctx context.Context, profile *model.TargetProfile) error
	GetProfile(ctx context.Context, id string) (*model.TargetProfile, error)
	CreatePersona(ctx context.Context, persona *model.PersonaFilter) error
	GetPersona(ctx context.Context, id string) (*model.PersonaFilter, error)

	// Funnels and members. AddFunnelMember is upsert-or-ignore against the
	// active-membership invariant: inserting a member for a (funnel,
	// entity) pair that already has an active row is a no-op. Company
	// members and contact members are distinct entities.
	CreateFunnel(ctx context.Context, funnel *model.Funnel) error
	GetFunnel(ctx context.Context, id string) (*model.Funnel, error)
	AddFunnelMember(ctx context.Context, member *model.FunnelMember) (bool, error)
	ListActiveMembers(ctx context.Context, funnelID string) ([]model.FunnelMember, error)
	ListActiveMembersAtStage(ctx context.Context, funnelID string, stage model.PipelineStage) ([]model.FunnelMember, error)
	UpdateMemberScores(ctx context.Context, memberID string, scores MemberScores) error
	RemoveActiveMembers(ctx context.Context, funnelID string) (int, error)
	CountActiveMembers(ctx context.Context, funnelID string) (int, error)

	// Signals. Reads filter expired rows; rows are never mutated.
	InsertSignals(ctx context.Context, signals []model.Signal) error
	GetSignalsForCompanies(ctx context.Context, companyIDs []string, now time.Time) (map[string][]model.Signal, error)

	// Source call metrics.
	InsertSourceMetric(ctx context.Context, m source.CallMetrics, at time.Time) error
	SummarizeSourceMetrics(ctx context.Context, since time.Time) ([]SourceMetricsSummary, error)

	// Jobs.
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	ClaimNextJob(ctx context.Context) (*model.Job, error)
	UpdateJobProgress(ctx context.Context, id string, processed, total int) error
	CompleteJob(ctx context.Context, id string, output []byte) error
	FailJob(ctx context.Context, id string, errText string) error
	CancelJob(ctx context.Context, id string) error
	IsJobCancelled(ctx context.Context, id string) (bool, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
