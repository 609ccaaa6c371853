package session

import (
	"github.com/fairclaim/protest-engine/pkg/errors"
)

// Stage is one step of the protest preparation workflow.  The stages are
// strictly ordered; a session moves one step at a time in either direction.
type Stage string

const (
	// StageReviewDetails confirms the county record for the subject.
	StageReviewDetails Stage = "review_details"
	// StageUpdateAndAnalyze applies owner corrections and runs the
	// comparable analysis.
	StageUpdateAndAnalyze Stage = "update_and_analyze"
	// StageExtraFeatures disputes extra-feature line items on the roll.
	StageExtraFeatures Stage = "extra_features"
	// StageAdditionalDeductions itemizes repair-cost deductions.
	StageAdditionalDeductions Stage = "additional_deductions"
	// StageMarketAdjustment applies a market decline percentage.
	StageMarketAdjustment Stage = "market_adjustment"
	// StageGenerateReport assembles the evidence package.
	StageGenerateReport Stage = "generate_report"
)

var stageOrder = []Stage{
	StageReviewDetails,
	StageUpdateAndAnalyze,
	StageExtraFeatures,
	StageAdditionalDeductions,
	StageMarketAdjustment,
	StageGenerateReport,
}

// Stages returns the workflow stages in order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Index returns the stage's position in the workflow, or -1 if unknown.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// First reports whether s is the opening stage.
func (s Stage) First() bool { return s == stageOrder[0] }

// Last reports whether s is the closing stage.
func (s Stage) Last() bool { return s == stageOrder[len(stageOrder)-1] }

// next returns the following stage, or an invalid-transition error at the end.
func (s Stage) next() (Stage, error) {
	i := s.Index()
	if i < 0 {
		return "", errors.Newf(errors.ErrCodeInvalidTransition, "unknown stage %q", s)
	}
	if i == len(stageOrder)-1 {
		return "", errors.Newf(errors.ErrCodeInvalidTransition, "cannot advance past %s", s)
	}
	return stageOrder[i+1], nil
}

// prev returns the preceding stage, or an invalid-transition error at the start.
func (s Stage) prev() (Stage, error) {
	i := s.Index()
	if i < 0 {
		return "", errors.Newf(errors.ErrCodeInvalidTransition, "unknown stage %q", s)
	}
	if i == 0 {
		return "", errors.Newf(errors.ErrCodeInvalidTransition, "cannot step back from %s", s)
	}
	return stageOrder[i-1], nil
}
