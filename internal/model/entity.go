// Package model defines the canonical domain types shared across the
// discovery, scoring, and funnel subsystems.
package model

import (
	"strings"
	"time"
)

// PipelineStage is the qualification stage of a company. Stages are ordered;
// automated transitions only ever advance, never demote.
type PipelineStage string

const (
	StageTAM             PipelineStage = "tam"
	StageActiveSegment   PipelineStage = "active_segment"
	StageQualified       PipelineStage = "qualified"
	StageReadyToApproach PipelineStage = "ready_to_approach"
	StageInSequence      PipelineStage = "in_sequence"
	StageConverted       PipelineStage = "converted"
)

// stageOrder maps each stage to its rank in the funnel.
var stageOrder = map[PipelineStage]int{
	StageTAM:             0,
	StageActiveSegment:   1,
	StageQualified:       2,
	StageReadyToApproach: 3,
	StageInSequence:      4,
	StageConverted:       5,
}

// Rank returns the ordinal position of the stage, or -1 for unknown stages.
func (s PipelineStage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

// Next returns the following stage. The terminal stage returns itself.
func (s PipelineStage) Next() PipelineStage {
	switch s {
	case StageTAM:
		return StageActiveSegment
	case StageActiveSegment:
		return StageQualified
	case StageQualified:
		return StageReadyToApproach
	case StageReadyToApproach:
		return StageInSequence
	case StageInSequence:
		return StageConverted
	default:
		return s
	}
}

// Before reports whether s comes strictly before other in the funnel order.
func (s PipelineStage) Before(other PipelineStage) bool {
	return s.Rank() >= 0 && other.Rank() >= 0 && s.Rank() < other.Rank()
}

// SourceRecord records which source contributed data to a company and when.
type SourceRecord struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Fields    []string  `json:"fields,omitempty"`
}

// Company is the canonical entity record, scoped to a client. Numeric fields
// are pointers so an unknown value is distinguishable from zero.
type Company struct {
	ID          string            `json:"id" db:"id"`
	ClientID    string            `json:"client_id" db:"client_id"`
	Name        string            `json:"name" db:"name"`
	Domain      string            `json:"domain,omitempty" db:"domain"`
	ExternalIDs map[string]string `json:"external_ids,omitempty" db:"external_ids"`

	Industry        string     `json:"industry,omitempty" db:"industry"`
	EmployeeCount   *int       `json:"employee_count,omitempty" db:"employee_count"`
	RevenueUSD      *float64   `json:"revenue_usd,omitempty" db:"revenue_usd"`
	FundingTotalUSD *float64   `json:"funding_total_usd,omitempty" db:"funding_total_usd"`
	FundingStage    string     `json:"funding_stage,omitempty" db:"funding_stage"`
	LastFundingAt   *time.Time `json:"last_funding_at,omitempty" db:"last_funding_at"`
	Country         string     `json:"country,omitempty" db:"country"`
	City            string     `json:"city,omitempty" db:"city"`
	TechStack       []string   `json:"tech_stack,omitempty" db:"tech_stack"`
	Description     string     `json:"description,omitempty" db:"description"`

	Sources       []SourceRecord `json:"sources,omitempty" db:"sources"`
	PrimarySource string         `json:"primary_source,omitempty" db:"primary_source"`
	Stage         PipelineStage  `json:"stage" db:"stage"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizedDomain returns the lower-cased dedup key for the company, or ""
// when no domain is known. Companies without a domain are never merged.
func (c *Company) NormalizedDomain() string {
	return NormalizeDomain(c.Domain)
}

// NormalizeDomain lower-cases a domain and strips any leading "www." label.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "www.")
	return d
}

// HasSource reports whether a provenance record from the named source exists.
func (c *Company) HasSource(source string) bool {
	for _, s := range c.Sources {
		if s.Source == source {
			return true
		}
	}
	return false
}

// RecordSource appends a provenance record, deduplicating by source name.
// An existing record for the same source is replaced so FetchedAt and the
// contributed field list stay current.
func (c *Company) RecordSource(rec SourceRecord) {
	for i, s := range c.Sources {
		if s.Source == rec.Source {
			c.Sources[i] = rec
			return
		}
	}
	c.Sources = append(c.Sources, rec)
}

// CoreFieldKeys are the attributes the orchestrator counts toward its quality
// threshold and discovery uses to decide whether a candidate needs backfill.
var CoreFieldKeys = []string{
	"name", "domain", "industry", "employee_count", "revenue_usd",
	"funding_stage", "country", "tech_stack", "description",
}

// FieldPopulated reports whether the named core field carries a value.
func (c *Company) FieldPopulated(key string) bool {
	switch key {
	case "name":
		return c.Name != ""
	case "domain":
		return c.Domain != ""
	case "industry":
		return c.Industry != ""
	case "employee_count":
		return c.EmployeeCount != nil
	case "revenue_usd":
		return c.RevenueUSD != nil
	case "funding_total_usd":
		return c.FundingTotalUSD != nil
	case "funding_stage":
		return c.FundingStage != ""
	case "country":
		return c.Country != ""
	case "city":
		return c.City != ""
	case "tech_stack":
		return len(c.TechStack) > 0
	case "description":
		return c.Description != ""
	default:
		return false
	}
}

// Coverage returns the fraction of core fields currently populated.
func (c *Company) Coverage() float64 {
	populated := 0
	for _, key := range CoreFieldKeys {
		if c.FieldPopulated(key) {
			populated++
		}
	}
	return float64(populated) / float64(len(CoreFieldKeys))
}

// MissingCoreAttributes reports whether the record lacks the attributes
// discovery considers essential for scoring (industry, headcount, country).
func (c *Company) MissingCoreAttributes() bool {
	return c.Industry == "" || c.EmployeeCount == nil || c.Country == ""
}

// Contact is a person associated with exactly one company.
type Contact struct {
	ID            string    `json:"id" db:"id"`
	CompanyID     string    `json:"company_id" db:"company_id"`
	FullName      string    `json:"full_name" db:"full_name"`
	Title         string    `json:"title,omitempty" db:"title"`
	Seniority     string    `json:"seniority,omitempty" db:"seniority"`
	Department    string    `json:"department,omitempty" db:"department"`
	Email         string    `json:"email,omitempty" db:"email"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	LinkedInURL   string    `json:"linkedin_url,omitempty" db:"linkedin_url"`
	Source        string    `json:"source,omitempty" db:"source"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
