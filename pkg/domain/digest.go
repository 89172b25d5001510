package domain

import (
	"sort"
	"time"
)

// Digest is the final output of one pipeline run, keyed by run date.
type Digest struct {
	Date        string        `json:"date"` // YYYY-MM-DD in the configured zone
	GeneratedAt time.Time     `json:"generated_at"`
	Overview    string        `json:"overview"`
	Papers      []RefinedItem `json:"papers"`
	News        []RefinedItem `json:"news"`
	Warnings    []Warning     `json:"warnings,omitempty"`
}

// HistoryEntry summarizes one completed run day in the history ledger.
type HistoryEntry struct {
	Date       string   `json:"date"`
	PaperCount int      `json:"paper_count"`
	NewsCount  int      `json:"news_count"`
	TopTitles  []string `json:"top_titles"`
}

// UpdateLedger replaces or appends entry in the date-ordered ledger and
// evicts the oldest entries beyond cap. The input slice is not modified.
// Dates stay unique and strictly ascending.
func UpdateLedger(ledger []HistoryEntry, entry HistoryEntry, cap int) []HistoryEntry {
	updated := make([]HistoryEntry, 0, len(ledger)+1)
	for _, e := range ledger {
		if e.Date != entry.Date {
			updated = append(updated, e)
		}
	}
	updated = append(updated, entry)

	sort.Slice(updated, func(i, j int) bool { return updated[i].Date < updated[j].Date })

	if cap > 0 && len(updated) > cap {
		updated = updated[len(updated)-cap:]
	}
	return updated
}
