package verify

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/grantcheck/internal/model"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// QualityRules is the ruleset driving the source-quality phase.
type QualityRules struct {
	OfficialDomainSuffixes []string `yaml:"official_domain_suffixes"`
	AmountMinFloor         float64  `yaml:"amount_min_floor"`
	AmountMaxCeiling       float64  `yaml:"amount_max_ceiling"`
}

// LoadDefaultRules parses the embedded ruleset.
func LoadDefaultRules() (QualityRules, error) {
	var r QualityRules
	if err := yaml.Unmarshal(defaultRulesYAML, &r); err != nil {
		return r, eris.Wrap(err, "quality: parse embedded rules")
	}
	return r, nil
}

// Sub-score weights. They sum to 100.
const (
	qualityIdentity      = 10 // name + funding source present
	qualityRegulationRef = 15
	qualityDescription   = 10
	qualityAmounts       = 20
	qualityWindow        = 20
	qualityOfficialURL   = 25
)

// QualityResult is the outcome of the source-quality phase.
type QualityResult struct {
	Score int
	Notes []string
}

// QualityScorer scores a grant's own metadata for completeness and internal
// consistency. Purely local: this phase never fails, it only scores lower
// for missing or implausible data.
type QualityScorer struct {
	rules QualityRules
}

// NewQualityScorer creates a QualityScorer with the given ruleset.
func NewQualityScorer(rules QualityRules) *QualityScorer {
	return &QualityScorer{rules: rules}
}

// Score produces a 0-100 sub-score with one note per deduction.
func (qs *QualityScorer) Score(g *model.Grant) QualityResult {
	var res QualityResult
	score := 0

	if g.Name != "" && g.FundingSource != "" {
		score += qualityIdentity
	} else {
		res.Notes = append(res.Notes, "missing name or funding source")
	}

	if g.RegulationRef != "" {
		score += qualityRegulationRef
	} else {
		res.Notes = append(res.Notes, "no regulation reference")
	}

	if g.Description != "" {
		score += qualityDescription
	} else {
		res.Notes = append(res.Notes, "no description")
	}

	score += qs.scoreAmounts(g, &res)
	score += scoreWindow(g, &res)
	score += qs.scoreOfficialURL(g, &res)

	res.Score = clamp(score, 0, 100)
	return res
}

func (qs *QualityScorer) scoreAmounts(g *model.Grant, res *QualityResult) int {
	if g.AmountMin == 0 && g.AmountMax == 0 {
		res.Notes = append(res.Notes, "no amount range")
		return 0
	}
	if g.AmountMin > g.AmountMax && g.AmountMax != 0 {
		res.Notes = append(res.Notes, "amount range inverted")
		return 5
	}
	maxAmount := g.AmountMax
	if maxAmount == 0 {
		maxAmount = g.AmountMin
	}
	if maxAmount < qs.rules.AmountMinFloor || maxAmount > qs.rules.AmountMaxCeiling {
		res.Notes = append(res.Notes, fmt.Sprintf("amount %.0f outside plausible bounds", maxAmount))
		return 5
	}
	return qualityAmounts
}

func scoreWindow(g *model.Grant, res *QualityResult) int {
	switch {
	case g.OpensAt != nil && g.ClosesAt != nil:
		if g.OpensAt.After(*g.ClosesAt) {
			res.Notes = append(res.Notes, "window dates contradictory")
			return 0
		}
		return qualityWindow
	case g.ClosesAt != nil:
		res.Notes = append(res.Notes, "no window open date")
		return qualityWindow / 2
	default:
		res.Notes = append(res.Notes, "no window dates")
		return 0
	}
}

func (qs *QualityScorer) scoreOfficialURL(g *model.Grant, res *QualityResult) int {
	if g.OfficialURL == "" {
		res.Notes = append(res.Notes, "no official URL")
		return 0
	}
	parsed, err := url.Parse(g.OfficialURL)
	if err != nil || parsed.Host == "" {
		res.Notes = append(res.Notes, "official URL unparseable")
		return 0
	}
	host := strings.ToLower(parsed.Hostname())
	for _, suffix := range qs.rules.OfficialDomainSuffixes {
		if strings.HasSuffix(host, suffix) {
			return qualityOfficialURL
		}
	}
	res.Notes = append(res.Notes, "official URL not on a known government domain")
	return qualityOfficialURL / 2
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
