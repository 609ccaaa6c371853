package deduction

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairclaim/protest-engine/pkg/errors"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// Ledger is the set of deductions attached to one protest session.  It is
// safe for concurrent use; all accessors return copies so callers can never
// reach the internal slice.
type Ledger struct {
	mu    sync.RWMutex
	items []Deduction
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RestoreLedger rebuilds a ledger from persisted items, e.g. when loading a
// session.  Items are copied in as-is without re-validation.
func RestoreLedger(items []Deduction) *Ledger {
	l := &Ledger{items: make([]Deduction, len(items))}
	copy(l.items, items)
	return l
}

// Add validates and appends a deduction, assigning it an ID and timestamp if
// it has none.  Returns the stored line.
func (l *Ledger) Add(d Deduction) (Deduction, error) {
	if err := d.Validate(); err != nil {
		return Deduction{}, err
	}
	if d.ID == "" {
		d.ID = common.NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Category == "" {
		d.Category = CategoryOther
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, d)
	return d, nil
}

// Remove deletes the deduction with the given ID.  Removing an ID that is
// not present is a no-op, so removal is idempotent.
func (l *Ledger) Remove(id common.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, d := range l.items {
		if d.ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

// Get returns the deduction with the given ID.
func (l *Ledger) Get(id common.ID) (Deduction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, d := range l.items {
		if d.ID == id {
			return d, nil
		}
	}
	return Deduction{}, errors.Newf(errors.ErrCodeDeductionNotFound, "deduction %s not in ledger", id)
}

// Items returns the deductions in insertion order.
func (l *Ledger) Items() []Deduction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Deduction, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of deductions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Total sums every deduction amount.  An empty ledger totals zero.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, d := range l.items {
		total = total.Add(d.Amount)
	}
	return total
}

// TotalsByCategory sums amounts per category, for the report's deduction
// breakdown.
func (l *Ledger) TotalsByCategory() map[Category]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[Category]decimal.Decimal)
	for _, d := range l.items {
		out[d.Category] = out[d.Category].Add(d.Amount)
	}
	return out
}

// AttachEvidence adds an evidence file to the deduction with the given ID.
func (l *Ledger) AttachEvidence(id common.ID, f EvidenceFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Evidence = append(l.items[i].Evidence, f)
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeDeductionNotFound, "deduction %s not in ledger", id)
}

// AttachQuote adds a contractor quote to the deduction with the given ID.
func (l *Ledger) AttachQuote(id common.ID, q QuoteFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Quotes = append(l.items[i].Quotes, q)
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeDeductionNotFound, "deduction %s not in ledger", id)
}

// DetachEvidence removes an evidence file by its ID.  Idempotent like Remove.
func (l *Ledger) DetachEvidence(id common.ID, fileID common.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID != id {
			continue
		}
		for j, f := range l.items[i].Evidence {
			if f.ID == fileID {
				l.items[i].Evidence = append(l.items[i].Evidence[:j], l.items[i].Evidence[j+1:]...)
				return
			}
		}
		return
	}
}

// DetachQuote removes a contractor quote by its ID.  Idempotent like Remove.
func (l *Ledger) DetachQuote(id common.ID, fileID common.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID != id {
			continue
		}
		for j, q := range l.items[i].Quotes {
			if q.ID == fileID {
				l.items[i].Quotes = append(l.items[i].Quotes[:j], l.items[i].Quotes[j+1:]...)
				return
			}
		}
		return
	}
}
