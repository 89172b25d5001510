// Package canonical normalizes heterogeneous source records into the single
// candidate-item shape the funnel operates on.
package canonical

import (
	"crypto/sha1" //nolint:gosec // used for stable ids, not security
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"

	"github.com/aitides/aitides/pkg/domain"
)

// RawRecord is what ingestion collaborators hand over. Only the fields the
// funnel needs; everything source-specific stays with the collaborator.
type RawRecord struct {
	NativeID       string // source-native id, may be empty
	Title          string
	Summary        string // may contain HTML
	URL            string
	SourceName     string
	SourceCategory string
	Kind           domain.ItemKind
	PublishedAt    *time.Time
	Popularity     *float64
	Whitelisted    bool
}

// tracking query parameters stripped during URL normalization
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "ref": {}, "ref_src": {}, "ref_url": {}, "source": {}, "spm": {},
}

// Canonicalizer converts raw records into deduplicated candidate items.
type Canonicalizer struct {
	sanitizer *bluemonday.Policy
}

// New creates a canonicalizer
func New() *Canonicalizer {
	return &Canonicalizer{sanitizer: bluemonday.StrictPolicy()}
}

// Canonicalize normalizes records into candidate items, dropping duplicates.
// The first occurrence of an id wins, so input order determines survivors.
func (c *Canonicalizer) Canonicalize(records []RawRecord) []domain.CandidateItem {
	seen := make(map[string]struct{}, len(records))
	items := make([]domain.CandidateItem, 0, len(records))

	for _, rec := range records {
		if rec.Title == "" && rec.URL == "" {
			continue
		}

		id := itemID(rec)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		kind := rec.Kind
		if kind == "" {
			kind = domain.KindNews
		}

		items = append(items, domain.CandidateItem{
			ID:             id,
			Kind:           kind,
			Title:          strings.TrimSpace(c.sanitizer.Sanitize(rec.Title)),
			SummaryRaw:     strings.TrimSpace(c.sanitizer.Sanitize(rec.Summary)),
			URL:            rec.URL,
			SourceName:     rec.SourceName,
			SourceCategory: rec.SourceCategory,
			PublishedAt:    rec.PublishedAt,
			Popularity:     rec.Popularity,
			Whitelisted:    rec.Whitelisted,
		})
	}

	if dropped := len(records) - len(items); dropped > 0 {
		lgr.Printf("[DEBUG] canonicalizer dropped %d duplicate/empty records, kept %d", dropped, len(items))
	}
	return items
}

// itemID derives the stable dedup key: source-native id when present,
// otherwise a digest of the normalized URL, otherwise of the title.
func itemID(rec RawRecord) string {
	if rec.NativeID != "" {
		return rec.SourceCategory + ":" + rec.NativeID
	}
	if norm := NormalizeURL(rec.URL); norm != "" {
		return rec.SourceCategory + ":" + digest(norm)
	}
	return rec.SourceCategory + ":" + digest(strings.ToLower(strings.TrimSpace(rec.Title)))
}

// NormalizeURL lowercases scheme and host, strips tracking parameters, the
// fragment and a trailing slash, so the same article from different referrers
// collapses to one key.
func NormalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if _, tracked := trackingParams[strings.ToLower(k)]; tracked {
			q.Del(k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rebuilt := url.Values{}
	for _, k := range keys {
		rebuilt[k] = q[k]
	}
	u.RawQuery = rebuilt.Encode()

	return u.String()
}

func digest(s string) string {
	h := sha1.Sum([]byte(s)) //nolint:gosec // non-cryptographic use
	return hex.EncodeToString(h[:])[:16]
}
