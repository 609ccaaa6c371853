// Package comparable holds the comparable-property model: the ranked
// comparables an analysis produces, the exclusion records that explain why a
// candidate was left out, and the sales-grid adjustment math used to put
// candidate properties on an equal footing with the subject.
package comparable

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// Comparable is a ranked comparable property accepted into the analysis.
// Rank 1 is the most relevant.  Order within a slice of Comparables is the
// relevance order and must never be re-sorted by filtering code.
type Comparable struct {
	Rank          int                  `json:"rank"`
	Account       common.AccountNumber `json:"account"`
	Address       string               `json:"address"`
	AdjustedValue decimal.Decimal      `json:"adjusted_value"`
	AdjustedPSF   decimal.Decimal      `json:"adjusted_psf"`
	Rationale     string               `json:"rationale,omitempty"`
}

// Valid reports whether the record has the minimum shape to participate in a
// valuation: a usable account number and a positive adjusted value.
func (c Comparable) Valid() bool {
	if c.Account.Validate() != nil {
		return false
	}
	return c.AdjustedValue.IsPositive()
}

// ExcludedProperty records a candidate that was considered and rejected,
// with the reason.  Exclusions are kept for the protest evidence package,
// not discarded.
type ExcludedProperty struct {
	Account common.AccountNumber `json:"account"`
	Note    string               `json:"note"`
}

// Exclusion notes applied by the cleaning pass.
const (
	NoteSubjectProperty = "subject property cannot be its own comparable"
	NoteDuplicate       = "duplicate of a higher-ranked comparable"
	NoteInvalidRecord   = "record is incomplete or carries no value"
)

// AnalysisData is the cleaned output of a comparable analysis: the ordered
// accepted comparables plus every exclusion recorded along the way.
type AnalysisData struct {
	TopComparables []Comparable       `json:"top_comps"`
	Excluded       []ExcludedProperty `json:"excluded"`
}

// Reliable reports whether the analysis carries enough accepted comparables
// to support a valuation (minComparables is configured, default 3).
func (a AnalysisData) Reliable(minComparables int) bool {
	return len(a.TopComparables) >= minComparables
}

// Accounts returns the accepted comparable accounts in relevance order.
func (a AnalysisData) Accounts() []common.AccountNumber {
	out := make([]common.AccountNumber, len(a.TopComparables))
	for i, c := range a.TopComparables {
		out[i] = c.Account
	}
	return out
}

// AdjustedValues returns the accepted comparables' adjusted values in
// relevance order, for the median calculation.
func (a AnalysisData) AdjustedValues() []decimal.Decimal {
	out := make([]decimal.Decimal, len(a.TopComparables))
	for i, c := range a.TopComparables {
		out[i] = c.AdjustedValue
	}
	return out
}

// normalizeAccount strips whitespace so account matching is not defeated by
// formatting differences in upstream data.
func normalizeAccount(a common.AccountNumber) common.AccountNumber {
	return common.AccountNumber(strings.TrimSpace(string(a)))
}
