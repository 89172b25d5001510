package refiner

import (
	"sort"
	"strings"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

// Tagger assigns tags from the closed vocabulary by keyword matching against
// title, summary and scoring rationale. Local and deterministic: tag names
// are evaluated in lexical order so identical input yields identical tags.
type Tagger struct {
	names   []string
	vocab   map[string][]string
	maxTags int
}

// NewTagger builds a tagger from the configured vocabulary
func NewTagger(cfg config.TagsConfig) *Tagger {
	names := make([]string, 0, len(cfg.Vocabulary))
	vocab := make(map[string][]string, len(cfg.Vocabulary))
	for name, keywords := range cfg.Vocabulary {
		names = append(names, name)
		lowered := make([]string, len(keywords))
		for i, kw := range keywords {
			lowered[i] = strings.ToLower(kw)
		}
		vocab[name] = lowered
	}
	sort.Strings(names)

	maxTags := cfg.MaxTags
	if maxTags < 1 || maxTags > 4 {
		maxTags = 4
	}
	return &Tagger{names: names, vocab: vocab, maxTags: maxTags}
}

// Tags returns the ordered tag set for an item, at most maxTags entries.
func (t *Tagger) Tags(item domain.ScoredItem) []string {
	text := strings.ToLower(item.Title + " " + item.SummaryRaw + " " + item.Rationale)

	var tags []string
	for _, name := range t.names {
		for _, kw := range t.vocab[name] {
			if strings.Contains(text, kw) {
				tags = append(tags, name)
				break
			}
		}
		if len(tags) == t.maxTags {
			break
		}
	}
	return tags
}
