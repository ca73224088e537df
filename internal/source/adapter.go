// Package source defines the data-source adapter contract and the waterfall
// orchestrator that queries adapters in priority order.
package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Capability identifies one operation a source adapter supports.
type Capability string

const (
	CapSearch       Capability = "search"
	CapEnrich       Capability = "enrich"
	CapPeopleSearch Capability = "people_search"
	CapEmailFind    Capability = "email_find"
)

// ErrRateLimited is returned when a source's call budget is exhausted and the
// bounded wait timed out. The orchestrator treats it the same as "source
// unavailable" and moves on.
var ErrRateLimited = eris.New("source: rate limited")

// ErrNotSupported is returned when an adapter is asked for an operation
// outside its capability set.
var ErrNotSupported = eris.New("source: operation not supported")

// SearchQuery holds provider-agnostic search parameters derived from a
// target profile.
type SearchQuery struct {
	SemanticQuery string
	Keywords      []string
	Industries    []string
	Countries     []string
	EmployeeMin   *int
	EmployeeMax   *int
	Limit         int
}

// EnrichHints identifies a company for enrichment lookups.
type EnrichHints struct {
	Domain      string
	Name        string
	Country     string
	ExternalIDs map[string]string
}

// PeopleQuery selects contacts at a company.
type PeopleQuery struct {
	Domain      string
	Titles      []string
	Seniorities []string
	Limit       int
}

// EmailQuery identifies a person for email finding.
type EmailQuery struct {
	Domain    string
	FirstName string
	LastName  string
}

// Adapter wraps one external data source. Implementations normalize provider
// responses into the canonical model types; the orchestrator never sees
// provider-specific formats. Unsupported operations return ErrNotSupported.
type Adapter interface {
	Name() string
	Capabilities() []Capability
	// CostPerCall advertises the marginal USD cost of one call for the
	// given operation, used for budget gating before the call is made.
	CostPerCall(op Capability) float64

	Search(ctx context.Context, q SearchQuery) ([]model.Company, error)
	Enrich(ctx context.Context, hints EnrichHints) (*model.Company, error)
	SearchPeople(ctx context.Context, q PeopleQuery) ([]model.Contact, error)
	FindEmail(ctx context.Context, q EmailQuery) (*model.Contact, error)
}

// Supports reports whether the adapter advertises the capability.
func Supports(a Adapter, op Capability) bool {
	for _, c := range a.Capabilities() {
		if c == op {
			return true
		}
	}
	return false
}
