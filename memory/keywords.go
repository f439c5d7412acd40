package memory

import (
	"regexp"
	"sort"
	"strings"

	"github.com/becomeliminal/convctx/core"
)

var (
	wordPattern        = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
)

// stopWords are excluded from keyword extraction.
var stopWords = toSet(strings.Fields(`
	the and or but in on at to for of with by from up about into through during
	before after above below between among this that these those i me my myself
	we our you your yourself he him his she her it its they them their what which
	who when where why how all any both each few more most other some such only
	own same than too very can will just should now get got have has had do does
	did say said says tell told ask asked give gave take took come came go went
	see saw know knew think thought look looked want wanted use used find found
	work worked
`))

// tagPatterns map domain tags to the words that signal them.
var tagPatterns = []struct {
	tag     string
	pattern *regexp.Regexp
}{
	{"programming", regexp.MustCompile(`\b(python|javascript|code|programming|function|variable|class|method)\b`)},
	{"weather", regexp.MustCompile(`\b(weather|temperature|rain|sunny|cloudy|forecast)\b`)},
	{"system", regexp.MustCompile(`\b(cpu|memory|disk|system|server|performance)\b`)},
	{"scheduling", regexp.MustCompile(`\b(schedule|remind|alarm|task|timer|calendar)\b`)},
	{"help", regexp.MustCompile(`\b(help|how|what|explain|show|tell)\b`)},
}

// maxTags caps the tags attached to one exchange.
const maxTags = 5

// HeuristicExtractor is the regex and stop-word KeywordExtractor.
type HeuristicExtractor struct{}

var _ KeywordExtractor = HeuristicExtractor{}

// Keywords returns the most frequent words longer than three letters that are
// not stop words. Ties keep first-appearance order.
func (HeuristicExtractor) Keywords(text string, limit int) []string {
	var words []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 3 && !stopWords[w] {
			words = append(words, w)
		}
	}
	return topByFrequency(words, limit)
}

// CapitalizedWords returns capitalized words longer than three letters, lowercased.
func (HeuristicExtractor) CapitalizedWords(text string) []string {
	var out []string
	for _, w := range capitalizedPattern.FindAllString(text, -1) {
		if len(w) > 3 {
			out = append(out, strings.ToLower(w))
		}
	}
	return out
}

// Tags returns the normalized intent followed by matching domain tags.
func (HeuristicExtractor) Tags(ex *core.Exchange) []string {
	var tags []string
	if ex.Intent != "" {
		tags = append(tags, normalizeIntent(ex.Intent))
	}
	text := strings.ToLower(ex.UserMessage + " " + ex.Response)
	for _, tp := range tagPatterns {
		if tp.pattern.MatchString(text) {
			tags = append(tags, tp.tag)
		}
	}
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

// normalizeIntent turns SEARCH_QUERY into "search query".
func normalizeIntent(intent string) string {
	return strings.ReplaceAll(strings.ToLower(intent), "_", " ")
}

// topByFrequency ranks items by count, first appearance breaking ties.
func topByFrequency(items []string, limit int) []string {
	counts := make(map[string]int)
	var order []string
	for _, it := range items {
		if counts[it] == 0 {
			order = append(order, it)
		}
		counts[it]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if limit >= 0 && len(order) > limit {
		order = order[:limit]
	}
	return order
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
