package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateLedger_ReplacesSameDate(t *testing.T) {
	ledger := []HistoryEntry{
		{Date: "2026-08-28", PaperCount: 10},
		{Date: "2026-08-29", PaperCount: 12},
	}

	updated := UpdateLedger(ledger, HistoryEntry{Date: "2026-08-29", PaperCount: 18}, 30)
	require.Len(t, updated, 2)
	assert.Equal(t, "2026-08-28", updated[0].Date)
	assert.Equal(t, "2026-08-29", updated[1].Date)
	assert.Equal(t, 18, updated[1].PaperCount, "re-run entry replaces the old one")
}

func TestUpdateLedger_EvictsOldestBeyondCap(t *testing.T) {
	var ledger []HistoryEntry
	for _, d := range []string{"2026-08-01", "2026-08-02", "2026-08-03"} {
		ledger = UpdateLedger(ledger, HistoryEntry{Date: d}, 3)
	}
	require.Len(t, ledger, 3)

	ledger = UpdateLedger(ledger, HistoryEntry{Date: "2026-08-04"}, 3)
	require.Len(t, ledger, 3)
	assert.Equal(t, "2026-08-02", ledger[0].Date, "oldest entry evicted")
	assert.Equal(t, "2026-08-04", ledger[2].Date)
}

func TestUpdateLedger_KeepsDateOrder(t *testing.T) {
	ledger := []HistoryEntry{{Date: "2026-08-10"}, {Date: "2026-08-12"}}

	updated := UpdateLedger(ledger, HistoryEntry{Date: "2026-08-11"}, 30)
	require.Len(t, updated, 3)
	assert.Equal(t, []string{"2026-08-10", "2026-08-11", "2026-08-12"},
		[]string{updated[0].Date, updated[1].Date, updated[2].Date})
}

func TestSummary_Empty(t *testing.T) {
	assert.True(t, Summary{}.Empty())
	assert.False(t, Summary{MainPoint: "something"}.Empty())
	assert.False(t, Summary{KeyFacts: []string{"fact"}}.Empty())
}
