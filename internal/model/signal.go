package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType identifies the kind of buying-intent evidence.
type SignalType string

const (
	SignalFundingRecency  SignalType = "funding_recency"
	SignalTechStackMatch  SignalType = "tech_stack_match"
	SignalHeadcountGrowth SignalType = "headcount_growth"
	SignalExpansion       SignalType = "expansion"
	SignalLLMInferred     SignalType = "llm_inferred"
)

// DefaultSignalTTLDays is the decay window applied when a signal type has no
// specific override.
const DefaultSignalTTLDays = 90

// signalTTLDays holds per-type decay windows in days.
var signalTTLDays = map[SignalType]int{
	SignalFundingRecency:  180,
	SignalTechStackMatch:  365,
	SignalHeadcountGrowth: 90,
	SignalExpansion:       90,
	SignalLLMInferred:     90,
}

// TTLDays returns the decay window for the signal type.
func (t SignalType) TTLDays() int {
	if d, ok := signalTTLDays[t]; ok {
		return d
	}
	return DefaultSignalTTLDays
}

// Signal is immutable evidence that a company may be ready to buy. Rows are
// never mutated after creation; expiry is a read-time filter, not a sweep.
type Signal struct {
	ID         string          `json:"id" db:"id"`
	CompanyID  string          `json:"company_id" db:"company_id"`
	Type       SignalType      `json:"type" db:"type"`
	Strength   decimal.Decimal `json:"strength" db:"strength"`
	Evidence   string          `json:"evidence" db:"evidence"`
	Source     string          `json:"source" db:"source"`
	DetectedAt time.Time       `json:"detected_at" db:"detected_at"`
	ExpiresAt  time.Time       `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the signal has passed its decay window.
func (s *Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
