package search

import "strings"

// Words that never count toward a verbatim match
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "how": true, "does": true,
}

// significantWords lowercases text, trims punctuation from each word and
// drops stop words.
func significantWords(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			out = append(out, cleaned)
		}
	}
	return out
}

// wordSet holds the significant words of a document.
type wordSet map[string]struct{}

func newWordSet(text string) wordSet {
	words := significantWords(text)
	set := make(wordSet, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

// containsAll reports whether every query word is in the set.
// A query with no significant words never matches.
func (s wordSet) containsAll(queryWords []string) bool {
	if len(queryWords) == 0 {
		return false
	}
	for _, word := range queryWords {
		if _, ok := s[word]; !ok {
			return false
		}
	}
	return true
}
