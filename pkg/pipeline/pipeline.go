// Package pipeline wires the funnel stages into one run: ingest, canonicalize,
// window gate, heuristic filter, remote scoring, refinement and digest
// persistence. One invocation produces exactly one digest for one date.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/aitides/aitides/pkg/canonical"
	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/digest"
	"github.com/aitides/aitides/pkg/domain"
	"github.com/aitides/aitides/pkg/filter"
	"github.com/aitides/aitides/pkg/ingest"
	"github.com/aitides/aitides/pkg/refiner"
	"github.com/aitides/aitides/pkg/repository"
	"github.com/aitides/aitides/pkg/scorer"
	"github.com/aitides/aitides/pkg/window"
)

// Source produces raw records for one run.
type Source interface {
	FetchAll(ctx context.Context) ingest.Result
}

// Enricher augments candidates with extracted article text.
type Enricher interface {
	Enrich(ctx context.Context, items []domain.CandidateItem)
}

// Store persists digests and the history ledger.
type Store interface {
	SaveDigest(ctx context.Context, d domain.Digest) error
	GetDigest(ctx context.Context, date string) (domain.Digest, error)
	ListHistory(ctx context.Context) ([]domain.HistoryEntry, error)
	ReplaceHistory(ctx context.Context, entries []domain.HistoryEntry) error
}

// Pipeline runs the full selection funnel.
type Pipeline struct {
	cfg       *config.Config
	source    Source
	enricher  Enricher
	scorer    *scorer.Scorer
	refiner   *refiner.Refiner
	assembler *digest.Assembler
	store     Store
}

// New creates a pipeline from pre-built stage components
func New(cfg *config.Config, source Source, enricher Enricher, sc *scorer.Scorer,
	rf *refiner.Refiner, asm *digest.Assembler, store Store) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		source:    source,
		enricher:  enricher,
		scorer:    sc,
		refiner:   rf,
		assembler: asm,
		store:     store,
	}
}

// Run executes one funnel pass for the given wall-clock time and persists the
// resulting digest. The whole run operates under the configured budget; an
// exceeded budget cancels in-flight remote calls and the stages degrade to
// their local fallbacks.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (domain.Digest, error) {
	if p.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Budget)
		defer cancel()
	}

	gate, err := window.New(p.cfg.Window, now)
	if err != nil {
		return domain.Digest{}, &ConfigurationError{Err: err}
	}
	heur, err := filter.New(p.cfg.Filter)
	if err != nil {
		return domain.Digest{}, &ConfigurationError{Err: err}
	}

	var warnings []domain.Warning

	// stage 0: ingest and canonicalize
	fetched := p.source.FetchAll(ctx)
	warnings = append(warnings, fetched.Warnings...)
	candidates := canonical.New().Canonicalize(fetched.Records)
	lgr.Printf("[INFO] pipeline: %d candidates after canonicalization", len(candidates))

	// stage 1: freshness window
	fresh, windowed := gate.Filter(candidates)
	lgr.Printf("[INFO] pipeline: window kept %d, rejected %d", len(fresh), len(windowed))

	// stage 2: heuristic filter, whitelisted items bypass it
	l1 := heur.Run(fresh)
	lgr.Printf("[INFO] pipeline: l1 pool %d, whitelisted %d, rejected %d",
		len(l1.Pool), len(l1.Whitelisted), len(l1.Rejected))

	// enrichment feeds the scorer better input, best effort
	if p.enricher != nil {
		p.enricher.Enrich(ctx, l1.Pool)
		p.enricher.Enrich(ctx, l1.Whitelisted)
	}

	// stage 3: remote scoring and composite ranking
	l2 := p.scorer.Run(ctx, l1.Pool, l1.Whitelisted)
	warnings = append(warnings, l2.Warnings...)

	// stage 4: quota selection, summaries, overview
	l3 := p.refiner.Run(ctx, l2.Papers, l2.News)
	warnings = append(warnings, l3.Warnings...)
	if l3.State == refiner.StateFailed {
		lgr.Printf("[WARN] pipeline: empty selection, digest for %s will be empty", runDate(now, p.cfg.Window.Timezone))
	}

	// stage 5: assemble and persist; the ledger is updated only after the
	// digest write succeeded
	date := runDate(now, p.cfg.Window.Timezone)
	prior := p.priorDigest(ctx, date)
	d := p.assembler.Assemble(date, now, l3.Papers, l3.News, l3.Overview, warnings, prior)

	if err := p.store.SaveDigest(ctx, d); err != nil {
		return domain.Digest{}, &OutputWriteFailure{Err: err}
	}
	if err := p.updateLedger(ctx, d); err != nil {
		return domain.Digest{}, &OutputWriteFailure{Err: err}
	}

	lgr.Printf("[INFO] pipeline: digest %s saved, %d papers, %d news, %d warnings",
		d.Date, len(d.Papers), len(d.News), len(d.Warnings))
	return d, nil
}

// priorDigest loads the already stored digest for the date, nil when absent
func (p *Pipeline) priorDigest(ctx context.Context, date string) *domain.Digest {
	prior, err := p.store.GetDigest(ctx, date)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		lgr.Printf("[WARN] pipeline: prior digest lookup failed: %v", err)
		return nil
	}
	return &prior
}

func (p *Pipeline) updateLedger(ctx context.Context, d domain.Digest) error {
	ledger, err := p.store.ListHistory(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	ledger = p.assembler.UpdateLedger(ledger, d)
	if err := p.store.ReplaceHistory(ctx, ledger); err != nil {
		return fmt.Errorf("store ledger: %w", err)
	}
	return nil
}

// runDate formats the digest date in the configured zone
func runDate(now time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}
