package topics

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/agenthands/micromatch/internal/core/model"
)

// CleanTopic case-folds and trims a raw topic and collapses inner whitespace.
// This is the key form used for oracle lookups.
func CleanTopic(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

var asciiFolder = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// Canonical returns the lowercase ASCII form of a topic ("Café " -> "cafe").
// Topics with no ASCII content at all keep their cleaned form so they are not
// silently dropped.
func Canonical(topic string) string {
	cleaned := CleanTopic(topic)
	folded, _, err := transform.String(asciiFolder, cleaned)
	if err != nil {
		return cleaned
	}
	folded = CleanTopic(folded)
	if folded == "" {
		return cleaned
	}
	return folded
}

// Collect returns the union of cleaned raw topics across all responses, in
// first-seen order, with empty strings discarded.
func Collect(responses []model.Response) []string {
	seen := make(map[string]struct{})
	var all []string
	for _, r := range responses {
		for _, t := range r.Topics {
			c := CleanTopic(t)
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			all = append(all, c)
		}
	}
	return all
}
