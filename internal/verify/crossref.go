package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantcheck/internal/model"
	"github.com/sells-group/grantcheck/pkg/anthropic"
)

// CrossRefResult is the outcome of the cross-reference phase. When Signal is
// false the phase produced no usable confidence (malformed output or refusal)
// and contributes nothing to the combined score.
type CrossRefResult struct {
	Signal        bool
	Confidence    int // 0-100, meaningful only when Signal
	Corroborated  bool
	Discrepancies []string
	Summary       string
}

// CrossReferencer confirms or contradicts a grant's stated facts against
// current public information. The only phase with non-deterministic,
// externally sourced output.
type CrossReferencer interface {
	CrossReference(ctx context.Context, g *model.Grant) (*CrossRefResult, error)
}

const crossRefSystem = `You are a grant verification analyst. You are given the stored facts of a government or EU funding program. Use web search to confirm or contradict them against current public information.

Respond with a single JSON object, nothing else:
{"confidence": <0-100 integer, how confident you are that the stored facts are still accurate>, "corroborated": <true if you found current sources confirming the program exists and is as described>, "discrepancies": [<one short string per stored fact that current sources contradict, e.g. a passed deadline or changed amount>], "summary": "<one sentence>"}`

// AnthropicCrossReferencer implements CrossReferencer with a web-search
// enabled Claude call.
type AnthropicCrossReferencer struct {
	client           anthropic.Client
	model            string
	maxTokens        int64
	webSearchMaxUses int64
}

// NewAnthropicCrossReferencer creates the production cross-referencer.
func NewAnthropicCrossReferencer(client anthropic.Client, modelID string, maxTokens, webSearchMaxUses int64) *AnthropicCrossReferencer {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	if webSearchMaxUses <= 0 {
		webSearchMaxUses = 3
	}
	return &AnthropicCrossReferencer{
		client:           client,
		model:            modelID,
		maxTokens:        maxTokens,
		webSearchMaxUses: webSearchMaxUses,
	}
}

func (a *AnthropicCrossReferencer) CrossReference(ctx context.Context, g *model.Grant) (*CrossRefResult, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:            a.model,
		MaxTokens:        a.maxTokens,
		System:           anthropic.BuildCachedSystemBlocks(crossRefSystem),
		Messages:         []anthropic.Message{{Role: "user", Content: formatGrantFacts(g)}},
		WebSearchMaxUses: a.webSearchMaxUses,
	})
	if err != nil {
		return nil, eris.Wrap(err, "crossref: create message")
	}
	resp.Usage.LogCost(a.model, "cross_reference")

	return parseCrossRefResponse(resp.Text(), g.ID), nil
}

// formatGrantFacts renders the stored facts for the prompt.
func formatGrantFacts(g *model.Grant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stored grant facts:\n- Name: %s\n- Funding source: %s\n", g.Name, g.FundingSource)
	if g.AmountMin > 0 || g.AmountMax > 0 {
		fmt.Fprintf(&b, "- Amount range: %.0f to %.0f\n", g.AmountMin, g.AmountMax)
	}
	if g.OpensAt != nil {
		fmt.Fprintf(&b, "- Window opens: %s\n", g.OpensAt.Format("2006-01-02"))
	}
	if g.ClosesAt != nil {
		fmt.Fprintf(&b, "- Window closes: %s\n", g.ClosesAt.Format("2006-01-02"))
	}
	if g.OfficialURL != "" {
		fmt.Fprintf(&b, "- Official URL: %s\n", g.OfficialURL)
	}
	if g.RegulationRef != "" {
		fmt.Fprintf(&b, "- Regulation reference: %s\n", g.RegulationRef)
	}
	if g.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", g.Description)
	}
	fmt.Fprintf(&b, "\nToday's date: %s\n", time.Now().Format("2006-01-02"))
	return b.String()
}

// parseCrossRefResponse defensively parses the model output. Anything
// malformed degrades to no-signal rather than failing the check.
func parseCrossRefResponse(text, grantID string) *CrossRefResult {
	cleaned := cleanJSON(text)

	var raw struct {
		Confidence    any      `json:"confidence"`
		Corroborated  bool     `json:"corroborated"`
		Discrepancies []string `json:"discrepancies"`
		Summary       string   `json:"summary"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		zap.L().Warn("crossref: unparseable response, degrading to no signal",
			zap.String("grant_id", grantID),
			zap.Error(err),
		)
		return &CrossRefResult{Signal: false, Summary: "cross-reference response unparseable"}
	}

	conf, ok := toConfidence(raw.Confidence)
	if !ok {
		zap.L().Warn("crossref: confidence missing or out of range, degrading to no signal",
			zap.String("grant_id", grantID),
		)
		return &CrossRefResult{
			Signal:        false,
			Corroborated:  raw.Corroborated,
			Discrepancies: raw.Discrepancies,
			Summary:       raw.Summary,
		}
	}

	return &CrossRefResult{
		Signal:        true,
		Confidence:    conf,
		Corroborated:  raw.Corroborated,
		Discrepancies: raw.Discrepancies,
		Summary:       raw.Summary,
	}
}

// toConfidence coerces a JSON number (or numeric string) to a 0-100 int.
func toConfidence(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		if _, err := fmt.Sscanf(n, "%f", &f); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if f < 0 || f > 100 {
		return 0, false
	}
	return int(f + 0.5), true
}

// cleanJSON strips markdown fences and surrounding prose from model output,
// leaving the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
