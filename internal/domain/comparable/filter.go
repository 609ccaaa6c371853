package comparable

import (
	"fmt"

	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// Clean normalizes a raw analysis into usable AnalysisData.  It is a pure
// function over its inputs: the raw slices are never modified.
//
// Every raw comparable lands in exactly one of the two output lists.  The
// rules, applied in rank order:
//
//   - records with a bad account number or a non-positive adjusted value are
//     excluded with NoteInvalidRecord
//   - the subject property itself is excluded with NoteSubjectProperty
//   - a repeat of an account already accepted is excluded with NoteDuplicate;
//     the first occurrence wins
//
// Exclusions already present in the raw analysis are carried through after
// the cleaning exclusions, minus any that duplicate an accepted account.
func Clean(raw AnalysisData, subject common.AccountNumber) AnalysisData {
	subject = normalizeAccount(subject)
	seen := make(map[common.AccountNumber]struct{}, len(raw.TopComparables))

	out := AnalysisData{
		TopComparables: make([]Comparable, 0, len(raw.TopComparables)),
		Excluded:       make([]ExcludedProperty, 0, len(raw.Excluded)),
	}

	for _, c := range raw.TopComparables {
		c.Account = normalizeAccount(c.Account)
		switch {
		case !c.Valid():
			out.Excluded = append(out.Excluded, ExcludedProperty{Account: c.Account, Note: NoteInvalidRecord})
		case c.Account == subject:
			out.Excluded = append(out.Excluded, ExcludedProperty{Account: c.Account, Note: NoteSubjectProperty})
		default:
			if _, dup := seen[c.Account]; dup {
				out.Excluded = append(out.Excluded, ExcludedProperty{Account: c.Account, Note: NoteDuplicate})
				continue
			}
			seen[c.Account] = struct{}{}
			c.Rank = len(out.TopComparables) + 1
			out.TopComparables = append(out.TopComparables, c)
		}
	}

	for _, e := range raw.Excluded {
		e.Account = normalizeAccount(e.Account)
		if _, accepted := seen[e.Account]; accepted {
			// The analysis contradicted itself; the accepted ranking wins.
			continue
		}
		out.Excluded = append(out.Excluded, e)
	}

	return out
}

// ApplyExclusions partitions candidates against an explicit exclusion list,
// preserving candidate order.  Each candidate appears in exactly one of the
// returned slices: candidates repeating an already-accepted account are
// excluded with NoteDuplicate (the first occurrence's value wins), accepted
// candidates are re-ranked contiguously.  Exclusion entries that match no
// candidate are dropped.
func ApplyExclusions(candidates []Comparable, exclusions []ExcludedProperty) (accepted []Comparable, excluded []ExcludedProperty) {
	notes := make(map[common.AccountNumber]string, len(exclusions))
	for _, e := range exclusions {
		acct := normalizeAccount(e.Account)
		if _, ok := notes[acct]; !ok {
			notes[acct] = e.Note
		}
	}

	seen := make(map[common.AccountNumber]struct{}, len(candidates))
	accepted = make([]Comparable, 0, len(candidates))
	excluded = make([]ExcludedProperty, 0, len(exclusions))
	for _, c := range candidates {
		acct := normalizeAccount(c.Account)
		if note, ok := notes[acct]; ok {
			if note == "" {
				note = fmt.Sprintf("excluded by reviewer: account %s", acct)
			}
			excluded = append(excluded, ExcludedProperty{Account: acct, Note: note})
			continue
		}
		if _, dup := seen[acct]; dup {
			excluded = append(excluded, ExcludedProperty{Account: acct, Note: NoteDuplicate})
			continue
		}
		seen[acct] = struct{}{}
		c.Account = acct
		c.Rank = len(accepted) + 1
		accepted = append(accepted, c)
	}
	return accepted, excluded
}
