package memory

import (
	"sort"
	"strings"
	"unicode"
)

// SearchResult is a recalled memory entry with its relevance score.
type SearchResult struct {
	Index   int     `json:"index"` // Position in the source slice
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "with": {}, "that": {},
	"this": {}, "are": {}, "was": {}, "have": {}, "has": {}, "not": {}, "but": {},
	"can": {}, "how": {}, "what": {}, "when": {}, "from": {}, "our": {}, "please": {},
}

// Tokenize lower-cases text and splits it into keywords, dropping short
// tokens and common stop words. Duplicates are removed, order is preserved.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}

// Overlap returns the fraction of query keywords present in text.
func Overlap(query []string, text string) float64 {
	if len(query) == 0 {
		return 0
	}

	have := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		have[tok] = struct{}{}
	}

	hits := 0
	for _, q := range query {
		if _, ok := have[q]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(query))
}

// Recall ranks memory entries by keyword overlap with query. Entries without
// any overlap are skipped unless query has no keywords, in which case the most
// recent entries are returned. Ties prefer newer entries (higher index).
// A limit <= 0 returns every match.
func Recall(entries []string, query string, limit int) []SearchResult {
	keywords := Tokenize(query)

	results := make([]SearchResult, 0, len(entries))

	for i, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		if len(keywords) == 0 {
			results = append(results, SearchResult{Index: i, Content: entry})
			continue
		}
		if score := Overlap(keywords, entry); score > 0 {
			results = append(results, SearchResult{Index: i, Content: entry, Score: score})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Index > results[b].Index
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}

// Contents extracts the content of each result.
func Contents(results []SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Content
	}
	return out
}
