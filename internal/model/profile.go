package model

import "time"

// TargetProfile is a client-defined ideal-customer filter set. Unset
// dimensions (nil pointers, empty slices) contribute nothing to scoring.
type TargetProfile struct {
	ID       string `json:"id" yaml:"id" db:"id"`
	ClientID string `json:"client_id" yaml:"client_id" db:"client_id"`
	Name     string `json:"name" yaml:"name" db:"name"`

	Industries       []string `json:"industries,omitempty" yaml:"industries"`
	EmployeeCountMin *int     `json:"employee_count_min,omitempty" yaml:"employee_count_min"`
	EmployeeCountMax *int     `json:"employee_count_max,omitempty" yaml:"employee_count_max"`
	RevenueMinUSD    *float64 `json:"revenue_min_usd,omitempty" yaml:"revenue_min_usd"`
	RevenueMaxUSD    *float64 `json:"revenue_max_usd,omitempty" yaml:"revenue_max_usd"`
	FundingStages    []string `json:"funding_stages,omitempty" yaml:"funding_stages"`
	TechStack        []string `json:"tech_stack,omitempty" yaml:"tech_stack"`
	Countries        []string `json:"countries,omitempty" yaml:"countries"`
	Keywords         []string `json:"keywords,omitempty" yaml:"keywords"`

	// Exclusions applied after search, before scoring.
	ExcludedDomains    []string `json:"excluded_domains,omitempty" yaml:"excluded_domains"`
	ExcludedIndustries []string `json:"excluded_industries,omitempty" yaml:"excluded_industries"`

	// Pre-computed search hints used to drive source queries.
	SemanticQuery string   `json:"semantic_query,omitempty" yaml:"semantic_query"`
	SearchTerms   []string `json:"search_terms,omitempty" yaml:"search_terms"`

	// Strategy overrides the composite score weights for this client.
	// Nil keeps the defaults.
	Strategy *ScoringStrategy `json:"strategy,omitempty" yaml:"strategy"`

	CreatedAt time.Time `json:"created_at" yaml:"-" db:"created_at"`
}

// PersonaFilter selects contacts under a qualified company by title,
// seniority, and department match patterns. Patterns are case-insensitive
// substrings; an empty dimension matches everything.
type PersonaFilter struct {
	ID          string   `json:"id,omitempty" yaml:"id" db:"id"`
	ClientID    string   `json:"client_id,omitempty" yaml:"client_id" db:"client_id"`
	Name        string   `json:"name,omitempty" yaml:"name" db:"name"`
	Titles      []string `json:"titles,omitempty" yaml:"titles"`
	Seniorities []string `json:"seniorities,omitempty" yaml:"seniorities"`
	Departments []string `json:"departments,omitempty" yaml:"departments"`
}

// ClientContext carries the client-side facts signal detection compares
// companies against (the client's own product keywords and strategy).
type ClientContext struct {
	ClientID        string           `json:"client_id"`
	ProductKeywords []string         `json:"product_keywords,omitempty"`
	Strategy        *ScoringStrategy `json:"strategy,omitempty"`
}

// ScoringStrategy overrides composite score weights per client. Weights are
// normalized at use; a nil strategy means the documented defaults.
type ScoringStrategy struct {
	FitWeight         float64 `json:"fit_weight" yaml:"fit_weight"`
	SignalWeight      float64 `json:"signal_weight" yaml:"signal_weight"`
	OriginalityWeight float64 `json:"originality_weight" yaml:"originality_weight"`
	CostWeight        float64 `json:"cost_weight" yaml:"cost_weight"`
}
