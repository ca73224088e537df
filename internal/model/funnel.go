package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Funnel is a named, client-scoped collection of scored members built from a
// target profile.
type Funnel struct {
	ID        string    `json:"id" db:"id"`
	ClientID  string    `json:"client_id" db:"client_id"`
	ProfileID string    `json:"profile_id" db:"profile_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FunnelMember joins a funnel to a company (and optionally a contact) with
// independently-updatable scores. Scores are fixed-precision decimals so
// repeated reads never drift. At most one active (non-removed) member may
// exist per (funnel, company) pair; the store enforces this structurally.
type FunnelMember struct {
	ID        string  `json:"id" db:"id"`
	FunnelID  string  `json:"funnel_id" db:"funnel_id"`
	CompanyID string  `json:"company_id" db:"company_id"`
	ContactID *string `json:"contact_id,omitempty" db:"contact_id"`

	FitScore       decimal.Decimal `json:"fit_score" db:"fit_score"`
	SignalScore    decimal.Decimal `json:"signal_score" db:"signal_score"`
	CompositeScore decimal.Decimal `json:"composite_score" db:"composite_score"`
	PersonaScore   decimal.Decimal `json:"persona_score" db:"persona_score"`

	Reasons []string `json:"reasons,omitempty" db:"reasons"`

	AddedAt   time.Time  `json:"added_at" db:"added_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty" db:"removed_at"`
}

// Active reports whether the member has not been soft-removed.
func (m *FunnelMember) Active() bool {
	return m.RemovedAt == nil
}

// ScoreDecimal rounds a computed float score to the fixed precision used for
// persisted scores (4 decimal places).
func ScoreDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(4)
}
