package analyzer

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairclaim/protest-engine/internal/domain/comparable"
	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/money"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// flexScalar accepts any YAML scalar as its literal text.  The model emits
// accounts and dollar amounts sometimes quoted and sometimes bare, and a
// plain string field would reject the bare form.
type flexScalar string

func (f *flexScalar) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.New(errors.ErrCodeAIResponseInvalid, "expected a scalar value")
	}
	*f = flexScalar(value.Value)
	return nil
}

// rawComp mirrors the YAML shape the model answers with.
type rawComp struct {
	Rank          int        `yaml:"rank"`
	Account       flexScalar `yaml:"acct"`
	Address       string     `yaml:"address"`
	AdjustedValue flexScalar `yaml:"adjusted_value"`
	AdjustedPSF   flexScalar `yaml:"adjusted_psf"`
	Rationale     string     `yaml:"rationale"`
}

type rawExclusion struct {
	Account flexScalar `yaml:"acct"`
	Note    string     `yaml:"note"`
}

type rawAnalysis struct {
	TopComps []rawComp      `yaml:"top_comps"`
	Excluded []rawExclusion `yaml:"excluded"`
}

// ParseAnalysis decodes the model's YAML answer into AnalysisData.  The
// result is raw: callers run it through comparable.Clean before use.
// Individual comparables with unparseable dollar values come through with a
// zero value and are dropped by the cleaning pass; a document that is not
// YAML at all is an ErrCodeAIResponseInvalid error.
func ParseAnalysis(text string) (comparable.AnalysisData, error) {
	doc := stripFences(text)
	if strings.TrimSpace(doc) == "" {
		return comparable.AnalysisData{}, errors.New(errors.ErrCodeAIResponseInvalid, "empty model response")
	}

	var raw rawAnalysis
	if err := yaml.Unmarshal([]byte(doc), &raw); err != nil {
		return comparable.AnalysisData{}, errors.Wrap(err, errors.ErrCodeAIResponseInvalid, "parse analysis YAML")
	}
	if len(raw.TopComps) == 0 && len(raw.Excluded) == 0 {
		return comparable.AnalysisData{}, errors.New(errors.ErrCodeAIResponseInvalid, "response carries no comparables")
	}

	out := comparable.AnalysisData{
		TopComparables: make([]comparable.Comparable, 0, len(raw.TopComps)),
		Excluded:       make([]comparable.ExcludedProperty, 0, len(raw.Excluded)),
	}
	for _, rc := range raw.TopComps {
		c := comparable.Comparable{
			Rank:      rc.Rank,
			Account:   common.AccountNumber(strings.TrimSpace(string(rc.Account))),
			Address:   strings.TrimSpace(rc.Address),
			Rationale: strings.TrimSpace(rc.Rationale),
		}
		if v, err := money.Parse(string(rc.AdjustedValue)); err == nil {
			c.AdjustedValue = v
		}
		if v, err := money.Parse(string(rc.AdjustedPSF)); err == nil {
			c.AdjustedPSF = v
		}
		out.TopComparables = append(out.TopComparables, c)
	}
	for _, re := range raw.Excluded {
		out.Excluded = append(out.Excluded, comparable.ExcludedProperty{
			Account: common.AccountNumber(strings.TrimSpace(string(re.Account))),
			Note:    strings.TrimSpace(re.Note),
		})
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, which chat models add despite instructions not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line ("yaml", "yml", or empty).
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
