// Package deduction models repair-cost deductions: itemized conditions the
// owner documents (foundation cracks, an aging roof) whose repair cost is
// subtracted from the proposed value.
package deduction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// Category buckets a deduction by the condition it documents.
type Category string

const (
	CategoryFoundation Category = "foundation"
	CategoryRoof       Category = "roof"
	CategoryPlumbing   Category = "plumbing"
	CategoryElectrical Category = "electrical"
	CategoryWindows    Category = "windows"
	CategoryHVAC       Category = "hvac"
	CategoryExterior   Category = "exterior"
	CategoryInterior   Category = "interior"
	CategoryDrainage   Category = "drainage"
	CategoryOther      Category = "other"
)

var knownCategories = map[Category]struct{}{
	CategoryFoundation: {}, CategoryRoof: {}, CategoryPlumbing: {},
	CategoryElectrical: {}, CategoryWindows: {}, CategoryHVAC: {},
	CategoryExterior: {}, CategoryInterior: {}, CategoryDrainage: {},
	CategoryOther: {},
}

// ParseCategory normalizes a category string; anything unrecognized folds
// into CategoryOther rather than failing, since category is descriptive, not
// load-bearing.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownCategories[c]; ok {
		return c
	}
	return CategoryOther
}

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{
		CategoryFoundation, CategoryRoof, CategoryPlumbing, CategoryElectrical,
		CategoryWindows, CategoryHVAC, CategoryExterior, CategoryInterior,
		CategoryDrainage, CategoryOther,
	}
}

// EvidenceFile is an uploaded photo or document backing a deduction.
type EvidenceFile struct {
	ID          common.ID `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Bucket      string    `json:"bucket,omitempty"`
	StorageKey  string    `json:"storage_key"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// QuoteFile is a contractor repair quote backing a deduction amount.
type QuoteFile struct {
	ID         common.ID       `json:"id"`
	FileName   string          `json:"file_name"`
	Contractor string          `json:"contractor,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Bucket     string          `json:"bucket,omitempty"`
	StorageKey string          `json:"storage_key"`
	UploadedAt time.Time       `json:"uploaded_at"`
}

// Deduction is one itemized repair-cost line.
type Deduction struct {
	ID          common.ID       `json:"id"`
	Category    Category        `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Evidence    []EvidenceFile  `json:"evidence,omitempty"`
	Quotes      []QuoteFile     `json:"quotes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the line is acceptable before it enters a ledger.  A zero
// amount is allowed (a documented condition with no quote yet); a negative
// amount is not.
func (d *Deduction) Validate() error {
	if d.Amount.IsNegative() {
		return errors.New(errors.ErrCodeInvalidAmount, "deduction amount cannot be negative")
	}
	if strings.TrimSpace(d.Description) == "" {
		return errors.New(errors.ErrCodeInvalidAmount, "deduction needs a description of the condition")
	}
	return nil
}
