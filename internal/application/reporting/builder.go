package reporting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/internal/domain/session"
	"github.com/fairclaim/protest-engine/internal/domain/valuation"
	"github.com/fairclaim/protest-engine/pkg/money"
)

// Builder renders a frozen session snapshot into the protest report text.
// Section order follows the filing package owners submit: subject details,
// corrections, comparable analysis, extra features, deductions, and the
// final value calculation.
type Builder struct {
	MinAdjustmentPercent float64
	MaxAdjustmentPercent float64
}

// NewBuilder returns a Builder with the default adjustment bounds.
func NewBuilder() *Builder {
	return &Builder{MinAdjustmentPercent: 0.5, MaxAdjustmentPercent: 3.5}
}

// Build renders the full report document.
func (b *Builder) Build(snap *session.Snapshot) string {
	var sb strings.Builder

	sb.WriteString("Property Tax Protest Report\n")
	sb.WriteString("=================================\n\n")
	fmt.Fprintf(&sb, "Account Number: %s\n", snap.Account)
	fmt.Fprintf(&sb, "Property Address: %s\n", orNA(snap.Subject.SiteAddress))
	fmt.Fprintf(&sb, "Original Total Market Value: %s\n", money.FormatUSD(snap.Subject.TotalMarketValue))
	fmt.Fprintf(&sb, "Original Total Appraised Value: %s\n", money.FormatUSD(snap.Subject.TotalAppraisedValue))

	sb.WriteString("\n--- Subject Property Details ---\n")
	fmt.Fprintf(&sb, "Year Built: %s\n", orNAInt(snap.Subject.YearImproved))
	fmt.Fprintf(&sb, "Building Area (SqFt): %s\n", orNAInt(snap.Subject.BuildingSqFt))
	fmt.Fprintf(&sb, "Land Area (SqFt): %s\n", orNAInt(snap.Subject.LandSqFt))
	fmt.Fprintf(&sb, "Neighborhood Code: %s\n", orNA(snap.Subject.NeighborhoodCode))
	sb.WriteString("\n")

	b.writeOverrides(&sb, snap)
	b.writeAnalysis(&sb, snap)
	b.writeExtraFeatures(&sb, snap)
	b.writeDeductions(&sb, snap)
	b.writeFinalValue(&sb, snap)

	sb.WriteString("\n\n--- End of Report ---\n")
	return sb.String()
}

func (b *Builder) writeOverrides(sb *strings.Builder, snap *session.Snapshot) {
	sb.WriteString("--- Corrected Property Details ---\n")
	o := snap.Overrides
	if o.Empty() {
		sb.WriteString("No property details were corrected.\n\n")
		return
	}
	if o.YearImproved != nil {
		fmt.Fprintf(sb, "Corrected Year Built: %d", *o.YearImproved)
		if o.EvidenceFileName != "" {
			fmt.Fprintf(sb, " (Evidence: %s)", o.EvidenceFileName)
		}
		sb.WriteString("\n")
	}
	if o.BuildingSqFt != nil {
		fmt.Fprintf(sb, "Corrected Building SqFt: %d", *o.BuildingSqFt)
		if o.EvidenceFileName != "" {
			fmt.Fprintf(sb, " (Evidence: %s)", o.EvidenceFileName)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (b *Builder) writeAnalysis(sb *strings.Builder, snap *session.Snapshot) {
	sb.WriteString("--- Comparables Analysis ---\n")
	a := snap.Analysis
	if a == nil {
		sb.WriteString("No analysis data available.\n\n")
		return
	}

	if len(a.TopComparables) > 0 {
		sb.WriteString("Top Comparable Properties:\n")
		for i, comp := range a.TopComparables {
			fmt.Fprintf(sb, "  %d. Account: %s\n", i+1, comp.Account)
			fmt.Fprintf(sb, "     Address: %s\n", orNA(comp.Address))
			fmt.Fprintf(sb, "     Adjusted Value: %s\n", money.FormatUSD(comp.AdjustedValue))
			fmt.Fprintf(sb, "     Adjusted PSF: %s\n", money.FormatUSDCents(comp.AdjustedPSF))
			fmt.Fprintf(sb, "     Rationale: %s\n\n", orNA(comp.Rationale))
		}
	} else {
		sb.WriteString("No comparable properties found.\n\n")
	}

	if len(a.Excluded) > 0 {
		sb.WriteString("Excluded Properties:\n")
		for _, ex := range a.Excluded {
			fmt.Fprintf(sb, "  Account: %s - Note: %s\n", ex.Account, ex.Note)
		}
		sb.WriteString("\n")
	}

	if r := snap.Assessment; r != nil {
		sb.WriteString("Median Assessment:\n")
		fmt.Fprintf(sb, "  Baseline (%s): %s\n", r.Baseline, money.FormatUSD(r.BaselineValue))
		fmt.Fprintf(sb, "  Median of %d comparables: %s\n", r.ComparableCount, money.FormatUSD(r.MedianValue))
		fmt.Fprintf(sb, "  Comparable Range: %s to %s\n", money.FormatUSD(r.MinValue), money.FormatUSD(r.MaxValue))
		fmt.Fprintf(sb, "  Potential Savings: %s\n", money.FormatUSD(r.PotentialSavings))
		if r.PercentAboveMedian != nil {
			fmt.Fprintf(sb, "  Assessed %s%% above the median\n", r.PercentAboveMedian.String())
		}
		if !r.Reliable {
			sb.WriteString("  Note: fewer comparables than recommended; treat as indicative only\n")
		}
		sb.WriteString("\n")
	}
}

func (b *Builder) writeExtraFeatures(sb *strings.Builder, snap *session.Snapshot) {
	sb.WriteString("--- Extra Features Review ---\n")
	if len(snap.ExtraFeatureDisputes) == 0 {
		sb.WriteString("No extra features were disputed.\n\n")
		return
	}

	fmt.Fprintf(sb, "Disputed Extra Features (%d):\n", len(snap.ExtraFeatureDisputes))
	total := decimal.Zero
	for i, d := range snap.ExtraFeatureDisputes {
		fmt.Fprintf(sb, "%d. %s\n", i+1, d.Description)
		fmt.Fprintf(sb, "   Feature Code: %s\n", d.FeatureCode)
		fmt.Fprintf(sb, "   Value Reduction: %s\n", money.FormatUSD(d.Reduction))
		if d.Note != "" {
			fmt.Fprintf(sb, "   Dispute Reason: %s\n", d.Note)
		}
		sb.WriteString("\n")
		total = total.Add(d.Reduction)
	}
	fmt.Fprintf(sb, "Total Value Reduction: %s\n\n", money.FormatUSD(total))
}

func (b *Builder) writeDeductions(sb *strings.Builder, snap *session.Snapshot) {
	sb.WriteString("--- Additional Deductions ---\n")
	if len(snap.Deductions) == 0 {
		sb.WriteString("No additional deductions specified.\n")
		return
	}

	total := decimal.Zero
	for i, d := range snap.Deductions {
		fmt.Fprintf(sb, "\nDeduction %d: %s\n", i+1, d.Category)
		fmt.Fprintf(sb, "  Description: %s\n", d.Description)
		fmt.Fprintf(sb, "  Estimated Cost: %s\n", money.FormatUSDCents(d.Amount))
		total = total.Add(d.Amount)

		if len(d.Evidence) > 0 {
			sb.WriteString("  Attached Evidence:\n")
			for _, ev := range d.Evidence {
				fmt.Fprintf(sb, "    - %s (%s)\n", ev.FileName, orNA(ev.ContentType))
			}
		} else {
			sb.WriteString("  Attached Evidence: None\n")
		}

		if len(d.Quotes) > 0 {
			sb.WriteString("  Attached Quotes:\n")
			for _, q := range d.Quotes {
				fmt.Fprintf(sb, "    - %s: %s (File: %s)\n", orNA(q.Contractor), money.FormatUSDCents(q.Amount), q.FileName)
			}
		} else {
			sb.WriteString("  Attached Quotes: None\n")
		}
	}
	fmt.Fprintf(sb, "\nTotal Estimated Deduction Value: %s\n", money.FormatUSDCents(total))
}

func (b *Builder) writeFinalValue(sb *strings.Builder, snap *session.Snapshot) {
	sb.WriteString("\n--- Final Value Calculation ---\n")

	starting := snap.Subject.TotalAppraisedValue
	label := "Original Total Appraised Value"
	if snap.Assessment != nil {
		starting = snap.Assessment.MedianValue
		label = "Median Comparable Value"
	}
	fmt.Fprintf(sb, "%s: %s\n", label, money.FormatUSD(starting))

	featureReduction := decimal.Zero
	for _, d := range snap.ExtraFeatureDisputes {
		featureReduction = featureReduction.Add(d.Reduction)
	}
	if featureReduction.IsPositive() {
		fmt.Fprintf(sb, "Extra Features Value Reduction: -%s\n", money.FormatUSD(featureReduction))
	}

	deductionTotal := decimal.Zero
	for _, d := range snap.Deductions {
		deductionTotal = deductionTotal.Add(d.Amount)
	}
	if deductionTotal.IsPositive() {
		fmt.Fprintf(sb, "Additional Deductions: -%s\n", money.FormatUSDCents(deductionTotal))
	}

	value := valuation.ProposedValue(starting, featureReduction, deductionTotal)
	if snap.MarketAdjustmentPercent != nil {
		adjusted, err := valuation.ApplyMarketAdjustment(value, *snap.MarketAdjustmentPercent,
			b.MinAdjustmentPercent, b.MaxAdjustmentPercent)
		if err == nil {
			fmt.Fprintf(sb, "Market Decline Adjustment: -%.2f%%\n", *snap.MarketAdjustmentPercent)
			value = adjusted
		}
	}

	fmt.Fprintf(sb, "\nProposed Total Value: %s\n", money.FormatUSD(value))

	if starting.IsPositive() {
		pct := starting.Sub(value).Div(starting).Mul(decimal.NewFromInt(100)).Round(1)
		fmt.Fprintf(sb, "Total Value Reduction: %s%%\n", pct.String())
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func orNAInt(n int) string {
	if n <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", n)
}
