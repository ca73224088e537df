// Package signal detects time-decaying buying-intent evidence on companies,
// combining deterministic rule checks with an LLM pass over unstructured text.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
)

// Detection policy constants.
const (
	// MinLLMTextLen is the minimum description length before the LLM pass
	// is worth a call.
	MinLLMTextLen = 200
	// MinLLMStrength discards weak LLM-inferred signals.
	MinLLMStrength = 0.7
	// llmMaxTokens bounds the detection completion.
	llmMaxTokens = 1024
)

// Recent-funding window for the rule-based funding signal.
const fundingRecencyDays = 180

// Growth and expansion keyword sets for the rule-based text checks.
var (
	growthKeywords    = []string{"hiring", "growing team", "headcount", "scaling", "new roles"}
	expansionKeywords = []string{"expansion", "new office", "new market", "launching in", "international"}
)

// Detector finds signals on a company. The LLM client is optional; a nil
// client limits detection to the rule-based checks.
type Detector struct {
	llm         anthropic.Client
	llmModel    string
	minStrength float64
	minTextLen  int
	now         func() time.Time
	log         *zap.Logger
}

// NewDetector builds a detector. llm may be nil.
func NewDetector(llm anthropic.Client, llmModel string) *Detector {
	return &Detector{
		llm:         llm,
		llmModel:    llmModel,
		minStrength: MinLLMStrength,
		minTextLen:  MinLLMTextLen,
		now:         time.Now,
		log:         zap.L().Named("signal"),
	}
}

// WithThresholds overrides the LLM strength cutoff and minimum text length.
func (d *Detector) WithThresholds(minStrength float64, minTextLen int) *Detector {
	if minStrength > 0 {
		d.minStrength = minStrength
	}
	if minTextLen > 0 {
		d.minTextLen = minTextLen
	}
	return d
}

// WithNow overrides the clock for tests.
func (d *Detector) WithNow(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect runs every applicable check and returns the accepted signals with
// expiry stamped per type. Persistence is the caller's job.
func (d *Detector) Detect(ctx context.Context, company *model.Company, client model.ClientContext) ([]model.Signal, error) {
	now := d.now()

	signals := d.ruleBased(company, client, now)

	if d.llm != nil && len(company.Description) >= d.minTextLen {
		llmSignals, err := d.llmBased(ctx, company, client, now)
		if err != nil {
			// LLM trouble degrades to rule-based output only.
			d.log.Warn("llm signal detection failed",
				zap.String("company_id", company.ID),
				zap.Error(err))
		} else {
			signals = append(signals, llmSignals...)
		}
	}

	return signals, nil
}

// ruleBased runs the deterministic checks. Each check that fires emits
// exactly one signal.
func (d *Detector) ruleBased(company *model.Company, client model.ClientContext, now time.Time) []model.Signal {
	var out []model.Signal

	if company.LastFundingAt != nil {
		age := now.Sub(*company.LastFundingAt)
		if age >= 0 && age <= fundingRecencyDays*24*time.Hour {
			// Strength decays linearly across the recency window.
			strength := 1.0 - age.Hours()/(fundingRecencyDays*24)
			out = append(out, d.newSignal(company, model.SignalFundingRecency, strength,
				fmt.Sprintf("funding round %q closed %d days ago",
					company.FundingStage, int(age.Hours()/24)), "rule", now))
		}
	}

	if len(client.ProductKeywords) > 0 && len(company.TechStack) > 0 {
		matched := keywordOverlap(company.TechStack, client.ProductKeywords)
		if len(matched) > 0 {
			strength := 0.5 + 0.5*float64(len(matched))/float64(len(client.ProductKeywords))
			out = append(out, d.newSignal(company, model.SignalTechStackMatch, strength,
				fmt.Sprintf("tech stack includes %s", strings.Join(matched, ", ")), "rule", now))
		}
	}

	text := strings.ToLower(company.Description)
	if company.EmployeeCount != nil && *company.EmployeeCount > 0 {
		if kw := firstMatch(text, growthKeywords); kw != "" {
			out = append(out, d.newSignal(company, model.SignalHeadcountGrowth, 0.75,
				fmt.Sprintf("headcount %d with growth language (%q)", *company.EmployeeCount, kw), "rule", now))
		}
	}
	if kw := firstMatch(text, expansionKeywords); kw != "" {
		out = append(out, d.newSignal(company, model.SignalExpansion, 0.7,
			fmt.Sprintf("expansion language in description (%q)", kw), "rule", now))
	}

	return out
}

// llmSignal is the JSON shape the detection prompt requires.
type llmSignal struct {
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
	Evidence string  `json:"evidence"`
	Source   string  `json:"source"`
}

const llmSystemPrompt = `You analyze company descriptions for buying-intent signals.
Respond with a JSON array only. Each element: {"type", "strength" (0-1), "evidence", "source"}.
Every signal must cite a verifiable fact from the provided text and name where it appeared in "source".
Never treat AI-generated background analysis or speculation as evidence.
Return [] when no grounded signal exists.`

func (d *Detector) llmBased(ctx context.Context, company *model.Company, client model.ClientContext, now time.Time) ([]model.Signal, error) {
	prompt := fmt.Sprintf("Company: %s\nIndustry: %s\nClient product keywords: %s\n\nDescription:\n%s",
		company.Name, company.Industry, strings.Join(client.ProductKeywords, ", "), company.Description)

	resp, err := d.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.llmModel,
		MaxTokens: llmMaxTokens,
		System:    llmSystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(d.llmModel, "signal_detect")

	raw := StripCodeFence(resp.Text)
	var parsed []llmSignal
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		// Malformed model output yields zero signals, never an error.
		d.log.Warn("unparseable llm signal output",
			zap.String("company_id", company.ID))
		return nil, nil
	}

	var out []model.Signal
	for _, s := range parsed {
		if s.Strength < d.minStrength || s.Evidence == "" {
			continue
		}
		sig := d.newSignal(company, model.SignalLLMInferred, s.Strength, s.Evidence, "llm", now)
		if s.Source != "" {
			sig.Evidence = s.Evidence + " (" + s.Source + ")"
		}
		out = append(out, sig)
	}
	return out, nil
}

func (d *Detector) newSignal(company *model.Company, typ model.SignalType, strength float64, evidence, source string, now time.Time) model.Signal {
	return model.Signal{
		CompanyID:  company.ID,
		Type:       typ,
		Strength:   model.ScoreDecimal(clamp01(strength)),
		Evidence:   evidence,
		Source:     source,
		DetectedAt: now,
		ExpiresAt:  now.AddDate(0, 0, typ.TTLDays()),
	}
}

// StripCodeFence removes a markdown code fence wrapper, with or without a
// language tag, returning the inner text.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if idx := strings.Index(t, "\n"); idx >= 0 {
		// Drop the language tag line.
		t = t[idx+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func keywordOverlap(stack, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		for _, tech := range stack {
			if strings.EqualFold(tech, kw) {
				matched = append(matched, kw)
				break
			}
		}
	}
	return matched
}

func firstMatch(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
