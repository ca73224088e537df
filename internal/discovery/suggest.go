package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/signal"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
)

// suggestion is the JSON shape the fallback prompt requires per company.
type suggestion struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

const suggestSystemPrompt = `You suggest real companies matching a customer profile.
Respond with a JSON array only. Each element: {"name", "domain", "reason"}.
Only include companies you are confident actually exist. Never invent names or domains.
Return [] when you are not confident about any.`

// Suggester asks the LLM for candidate companies when every search source
// comes back empty.
type Suggester struct {
	llm      anthropic.Client
	llmModel string
	limit    int
	log      *zap.Logger
}

// NewSuggester builds the fallback suggester. llm may be nil, which disables
// the fallback entirely.
func NewSuggester(llm anthropic.Client, llmModel string, limit int) *Suggester {
	if limit <= 0 {
		limit = 10
	}
	return &Suggester{
		llm:      llm,
		llmModel: llmModel,
		limit:    limit,
		log:      zap.L().Named("discovery"),
	}
}

// Suggest returns bare name+domain candidates for the profile. Malformed or
// empty model output yields zero suggestions, never an error; only a failed
// API call errors.
func (s *Suggester) Suggest(ctx context.Context, profile *model.TargetProfile) ([]model.Company, error) {
	if s.llm == nil {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suggest up to %d companies matching this profile:\n", s.limit)
	if len(profile.Industries) > 0 {
		fmt.Fprintf(&b, "Industries: %s\n", strings.Join(profile.Industries, ", "))
	}
	if profile.EmployeeCountMin != nil || profile.EmployeeCountMax != nil {
		fmt.Fprintf(&b, "Employee count: %s\n", rangeText(profile.EmployeeCountMin, profile.EmployeeCountMax))
	}
	if len(profile.Countries) > 0 {
		fmt.Fprintf(&b, "Countries: %s\n", strings.Join(profile.Countries, ", "))
	}
	if len(profile.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(profile.Keywords, ", "))
	}
	if profile.SemanticQuery != "" {
		fmt.Fprintf(&b, "Description: %s\n", profile.SemanticQuery)
	}

	resp, err := s.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.llmModel,
		MaxTokens: 1024,
		System:    suggestSystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(s.llmModel, "discovery_suggest")

	var parsed []suggestion
	if err := json.Unmarshal([]byte(signal.StripCodeFence(resp.Text)), &parsed); err != nil {
		s.log.Warn("unparseable suggestion output")
		return nil, nil
	}

	var out []model.Company
	for _, sug := range parsed {
		if len(out) >= s.limit {
			break
		}
		if sug.Name == "" {
			continue
		}
		out = append(out, model.Company{
			Name:          sug.Name,
			Domain:        model.NormalizeDomain(sug.Domain),
			PrimarySource: "llm_suggestion",
			Sources:       []model.SourceRecord{{Source: "llm_suggestion"}},
		})
	}
	return out, nil
}

func rangeText(min, max *int) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%d-%d", *min, *max)
	case min != nil:
		return fmt.Sprintf("%d+", *min)
	case max != nil:
		return fmt.Sprintf("up to %d", *max)
	default:
		return "any"
	}
}
