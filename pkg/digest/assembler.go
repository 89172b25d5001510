// Package digest assembles the final daily digest and maintains the history
// ledger. Re-running for a date that already has output replaces it instead
// of appending a duplicate.
package digest

import (
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/aitides/aitides/pkg/domain"
)

// Assembler merges refined selections into the per-date digest.
type Assembler struct {
	ledgerCap int
}

// New creates an assembler with the configured ledger cap
func New(ledgerCap int) *Assembler {
	return &Assembler{ledgerCap: ledgerCap}
}

// Assemble builds the digest for one run date. When a prior digest exists
// for the same date (a partial earlier run), items are merged by id with the
// fresh recomputation taking precedence.
func (a *Assembler) Assemble(date string, generatedAt time.Time, papers, news []domain.RefinedItem,
	overview string, warnings []domain.Warning, prior *domain.Digest) domain.Digest {

	d := domain.Digest{
		Date:        date,
		GeneratedAt: generatedAt,
		Overview:    overview,
		Papers:      dedupeByID(papers),
		News:        dedupeByID(news),
		Warnings:    warnings,
	}

	if prior != nil && prior.Date == date {
		d.Papers = mergePrior(d.Papers, prior.Papers)
		d.News = mergePrior(d.News, prior.News)
		lgr.Printf("[INFO] assembler: merged with prior run for %s", date)
	}
	return d
}

// Entry summarizes a digest for the history ledger.
func (a *Assembler) Entry(d domain.Digest) domain.HistoryEntry {
	var titles []string
	for _, item := range append(append([]domain.RefinedItem{}, d.Papers...), d.News...) {
		titles = append(titles, item.Title)
		if len(titles) == 3 {
			break
		}
	}
	return domain.HistoryEntry{
		Date:       d.Date,
		PaperCount: len(d.Papers),
		NewsCount:  len(d.News),
		TopTitles:  titles,
	}
}

// UpdateLedger records the digest in the ledger, replacing any entry for the
// same date and evicting the oldest entries beyond the cap.
func (a *Assembler) UpdateLedger(ledger []domain.HistoryEntry, d domain.Digest) []domain.HistoryEntry {
	return domain.UpdateLedger(ledger, a.Entry(d), a.ledgerCap)
}

// mergePrior appends prior-run items whose ids are absent from the fresh set
func mergePrior(fresh, prior []domain.RefinedItem) []domain.RefinedItem {
	seen := make(map[string]struct{}, len(fresh))
	for _, item := range fresh {
		seen[item.ID] = struct{}{}
	}
	for _, item := range prior {
		if _, ok := seen[item.ID]; !ok {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

func dedupeByID(items []domain.RefinedItem) []domain.RefinedItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}
