package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/sitebot/internal/helpers"
	"github.com/mohammad-safakhou/sitebot/internal/session"
)

const (
	ActionExplore = "explore"
	ActionAnswer  = "answer"

	decisionExcerptChars = 300
	relevantPassageCount = 5
)

// Decision is the parsed form of the oracle's explore-vs-answer output.
type Decision struct {
	Action    string `json:"action"`
	Reasoning string `json:"reasoning"`
	NextURL   string `json:"next_url"`
}

// parseDecision extracts a Decision from raw oracle text. Anything that
// does not parse to a recognised action label collapses to answer: the
// oracle is treated as an untrusted data source and the safe default is
// to produce a best-effort result rather than loop.
func parseDecision(raw string) Decision {
	var d Decision
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &d); err != nil {
		return Decision{Action: ActionAnswer, Reasoning: "unparseable oracle response"}
	}
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	if d.Action != ActionExplore && d.Action != ActionAnswer {
		d.Action = ActionAnswer
	}
	d.NextURL = strings.TrimSpace(d.NextURL)
	return d
}

// extractFirstJSON finds the first top-level JSON object in a string,
// tolerating prose or code fences around it.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}

// buildDecisionContext summarises the session for the explore-vs-answer
// call: the question, what was collected, and what is left to explore.
func buildDecisionContext(st *session.State, maxPages, topCandidates int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a web research agent. Analyze the current situation and decide the next action.\n\n")
	fmt.Fprintf(&b, "QUESTION: %s\n\n", st.Question())

	pages := st.Pages()
	b.WriteString("INFORMATION COLLECTED SO FAR:\n")
	if len(pages) == 0 {
		b.WriteString("No information collected yet.\n")
	}
	for _, p := range pages {
		excerpt := helpers.Truncate(p.BodyText, decisionExcerptChars)
		fmt.Fprintf(&b, "Page: %s (%s)\nContent: %s\n\n", p.Title, p.URL, excerpt)
	}

	candidates := st.TopPending(topCandidates)
	b.WriteString("CANDIDATE URLS TO EXPLORE:\n")
	if len(candidates) == 0 {
		b.WriteString("No more URLs available.\n")
	}
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s (relevance %d)\n", c.URL, c.Score)
	}

	fmt.Fprintf(&b, "\nCURRENT STATUS:\n- Pages visited: %d of %d budget\n- Pending candidate URLs: %d\n\n",
		st.VisitedCount(), maxPages, st.PendingCount())

	b.WriteString(`DECISION CRITERIA:
1. If the collected information answers the question comprehensively, choose "answer".
2. If more specific information is needed and a relevant candidate URL exists, choose "explore".
3. If no candidate URLs remain or the page budget is spent, choose "answer".

Return ONLY strict JSON:
{"action": "explore" or "answer", "reasoning": string, "next_url": string (the candidate URL to fetch next when exploring, else empty)}
`)
	return b.String()
}

// buildSynthesisPrompt concatenates everything collected, in visitation
// order, into the final answer request.
func buildSynthesisPrompt(st *session.State) string {
	var b strings.Builder

	b.WriteString("Based on the information gathered from the website, provide a comprehensive answer to the user's question.\n\n")
	fmt.Fprintf(&b, "QUESTION: %s\n\n", st.Question())

	pages := st.Pages()
	if len(pages) == 0 {
		b.WriteString("NO CONTENT WAS RETRIEVED: every page fetch failed, so no information from the website is available. ")
		b.WriteString("Say clearly that the website could not be read and that no information was found.\n\n")
	} else {
		if excerpts := st.RelevantExcerpts(st.Question(), relevantPassageCount); len(excerpts) > 0 {
			b.WriteString("MOST RELEVANT PASSAGES:\n")
			for _, e := range excerpts {
				fmt.Fprintf(&b, "- From %s (%s): %s\n", e.Title, e.URL, e.Text)
			}
			b.WriteString("\n")
		}
		b.WriteString("INFORMATION FROM WEBSITE:\n")
		for _, p := range pages {
			fmt.Fprintf(&b, "From %s (%s):\n%s\n---\n", p.Title, p.URL, p.BodyText)
		}
		b.WriteString("\n")
	}

	b.WriteString("Provide a helpful, accurate answer based only on the information above. ")
	b.WriteString("If the information is incomplete, mention what additional details might be needed. ")
	b.WriteString("Reference the relevant pages when appropriate.\n\nANSWER:")
	return b.String()
}
