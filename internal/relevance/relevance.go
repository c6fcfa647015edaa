// Package relevance scores discovered links against the user's question so
// the crawl frontier can be ordered by how promising each candidate looks.
package relevance

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Question words and glue words carry no signal for link scoring.
var stopWords = map[string]struct{}{
	"how": {}, "what": {}, "where": {}, "when": {}, "why": {}, "who": {},
	"which": {}, "can": {}, "could": {}, "would": {}, "should": {},
	"do": {}, "does": {}, "did": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "up": {}, "about": {}, "into": {}, "through": {}, "during": {},
	"before": {}, "after": {}, "above": {}, "below": {}, "between": {},
	"among": {}, "around": {},
}

// Pages with these words in their URL or anchor tend to answer customer
// questions regardless of keyword overlap.
var helpfulIndicators = []string{
	"support", "help", "faq", "contact", "about",
	"policy", "return", "refund", "shipping",
	"product", "service", "documentation", "guide",
}

// URL path tokens that name site plumbing rather than content.
var commonPathWords = map[string]struct{}{
	"www": {}, "index": {}, "home": {}, "page": {}, "default": {}, "main": {},
}

var (
	nonWordRE   = regexp.MustCompile(`[^\w\s]`)
	pathExtRE   = regexp.MustCompile(`\.(html|htm|php|asp|jsp)$`)
	pathSplitRE = regexp.MustCompile(`[/_\-.]`)
)

// ExtractKeywords derives the question's keyword set: lowercased tokens
// with punctuation, stop words and tokens shorter than three characters
// removed. The result is deterministic for a given question.
func ExtractKeywords(question string) []string {
	clean := nonWordRE.ReplaceAllString(strings.ToLower(question), "")
	seen := make(map[string]struct{})
	var keywords []string
	for _, word := range strings.Fields(clean) {
		if len(word) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	sort.Strings(keywords)
	return keywords
}

// URLKeywords extracts content-bearing tokens from a URL path: extension
// stripped, split on separators, plumbing words and short tokens dropped.
func URLKeywords(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	p := pathExtRE.ReplaceAllString(strings.ToLower(parsed.Path), "")
	var tokens []string
	for _, tok := range pathSplitRE.Split(p, -1) {
		if len(tok) < 3 {
			continue
		}
		if _, common := commonPathWords[tok]; common {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// ScoreLink rates how promising a discovered link is for the question.
// Keyword hits in URL path segments weigh heaviest, anchor-text occurrences
// next, and generically helpful pages (support, faq, ...) get a small
// bonus. A zero score means nothing matched; such links are still kept as
// low-priority candidates by the caller.
func ScoreLink(anchorText, linkURL string, keywords []string) int {
	urlLower := strings.ToLower(linkURL)
	textLower := strings.ToLower(anchorText)

	score := 0
	urlTokens := URLKeywords(linkURL)
	for _, kw := range keywords {
		for _, tok := range urlTokens {
			if strings.Contains(tok, kw) {
				score += 3
				break
			}
		}
		if strings.Contains(textLower, kw) {
			score += 2
		}
	}
	for _, indicator := range helpfulIndicators {
		if strings.Contains(urlLower, indicator) || strings.Contains(textLower, indicator) {
			score++
		}
	}
	return score
}
