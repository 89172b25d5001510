// Package window decides which time span of candidate items is eligible for
// the current run.
package window

import (
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

// rejection reasons
const (
	ReasonNoTimestamp = "no_timestamp"
	ReasonOutOfWindow = "out_of_window"
	ReasonWeekendSkip = "weekend_skip"
)

// Rejection records a dropped item with the reason, for observability only.
type Rejection struct {
	Item   domain.CandidateItem
	Reason string
}

// Gate holds the resolved [start, end) range and per-category eligibility
// for one run.
type Gate struct {
	start         time.Time
	end           time.Time
	weekend       bool
	skipWeekend   map[string]struct{}
	noTimestampOK map[string]struct{}
}

// New resolves the window for the given reference time. Invalid bounds are a
// configuration error, fatal before any remote call.
func New(cfg config.WindowConfig, now time.Time) (*Gate, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.HorizonDays <= 0 {
		return nil, fmt.Errorf("window horizon must be positive, got %d days", cfg.HorizonDays)
	}

	local := now.In(loc)
	horizon := time.Duration(cfg.HorizonDays) * 24 * time.Hour

	var start, end time.Time
	switch cfg.Mode {
	case "calendar":
		dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		start, end = dayStart.Add(-horizon), dayStart
	case "rolling":
		start, end = local.Add(-horizon), local
	default:
		return nil, fmt.Errorf("unknown window mode %q", cfg.Mode)
	}

	if !start.Before(end) {
		return nil, fmt.Errorf("invalid window: start %s not before end %s", start, end)
	}

	g := &Gate{
		start:         start,
		end:           end,
		weekend:       local.Weekday() == time.Saturday || local.Weekday() == time.Sunday,
		skipWeekend:   toSet(cfg.SkipWeekend),
		noTimestampOK: toSet(cfg.NoTimestampOK),
	}

	lgr.Printf("[INFO] window %s: [%s, %s), weekend=%v", cfg.Mode,
		start.Format(time.RFC3339), end.Format(time.RFC3339), g.weekend)
	return g, nil
}

// Range returns the inclusive/exclusive instant range.
func (g *Gate) Range() (start, end time.Time) { return g.start, g.end }

// Eligible reports whether a source category participates in this run. False
// only for categories configured to skip when now falls on a weekend.
func (g *Gate) Eligible(category string) bool {
	if !g.weekend {
		return true
	}
	_, skip := g.skipWeekend[category]
	return !skip
}

// Filter drops items outside [start, end). Items without a publish timestamp
// pass only when their source category does not require one.
func (g *Gate) Filter(items []domain.CandidateItem) (kept []domain.CandidateItem, rejected []Rejection) {
	kept = make([]domain.CandidateItem, 0, len(items))
	for _, item := range items {
		if !g.Eligible(item.SourceCategory) {
			rejected = append(rejected, Rejection{Item: item, Reason: ReasonWeekendSkip})
			continue
		}
		if item.PublishedAt == nil {
			if _, ok := g.noTimestampOK[item.SourceCategory]; ok {
				kept = append(kept, item)
				continue
			}
			rejected = append(rejected, Rejection{Item: item, Reason: ReasonNoTimestamp})
			continue
		}
		ts := *item.PublishedAt
		if ts.Before(g.start) || !ts.Before(g.end) {
			rejected = append(rejected, Rejection{Item: item, Reason: ReasonOutOfWindow})
			continue
		}
		kept = append(kept, item)
	}

	if len(rejected) > 0 {
		lgr.Printf("[INFO] window gate: %d -> %d items (%d dropped)", len(items), len(kept), len(rejected))
	}
	return kept, rejected
}

func toSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}
