package rank

import "strings"

const minTokenLength = 4

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "against": true,
	"because": true, "been": true, "before": true, "being": true,
	"between": true, "both": true, "could": true, "does": true,
	"doing": true, "down": true, "during": true, "each": true,
	"from": true, "further": true, "have": true, "having": true,
	"here": true, "into": true, "just": true, "more": true,
	"most": true, "only": true, "other": true, "over": true,
	"same": true, "says": true, "said": true, "should": true,
	"some": true, "such": true, "than": true, "that": true,
	"their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true,
	"through": true, "under": true, "until": true, "very": true,
	"were": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true,
}

// Keywords tokenizes the title and description into a keyword set.
// Tokens are lowercased; stop-words and tokens shorter than four
// characters are removed.
func Keywords(title, description string) map[string]bool {
	set := make(map[string]bool)

	for _, token := range strings.FieldsFunc(strings.ToLower(title+" "+description), isSeparator) {
		if len(token) < minTokenLength || stopwords[token] {
			continue
		}

		set[token] = true
	}

	return set
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z')
}

// Jaccard computes |A∩B| / |A∪B|. Two empty sets are treated as
// disjoint, not identical.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0

	for k := range a {
		if b[k] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection

	return float64(intersection) / float64(union)
}
