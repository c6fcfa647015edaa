package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/sitebot/internal/fetch"
	"github.com/mohammad-safakhou/sitebot/internal/session"
)

type stubFetcher struct {
	pages   map[string]fetch.PageContent
	errs    map[string]error
	fetched map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages:   map[string]fetch.PageContent{},
		errs:    map[string]error{},
		fetched: map[string]int{},
	}
}

func (f *stubFetcher) Fetch(_ context.Context, pageURL string) (fetch.PageContent, error) {
	f.fetched[pageURL]++
	if err, ok := f.errs[pageURL]; ok {
		return fetch.PageContent{}, err
	}
	if pc, ok := f.pages[pageURL]; ok {
		return pc, nil
	}
	return fetch.PageContent{}, &fetch.FetchError{Kind: fetch.KindNetworkError, URL: pageURL, Err: errors.New("no such page")}
}

// stubOracle answers a fixed script of decisions, then keeps answering.
type stubOracle struct {
	decisions    []string
	decideCalls  int
	decideErr    error
	answer       string
	synthErr     error
	lastSynthIn  string
	lastDecideIn string
}

func (o *stubOracle) Decide(_ context.Context, contextSummary string) (string, error) {
	o.lastDecideIn = contextSummary
	if o.decideErr != nil {
		return "", o.decideErr
	}
	i := o.decideCalls
	o.decideCalls++
	if i < len(o.decisions) {
		return o.decisions[i], nil
	}
	return `{"action": "answer", "reasoning": "script exhausted"}`, nil
}

func (o *stubOracle) Synthesize(_ context.Context, prompt string) (string, error) {
	o.lastSynthIn = prompt
	if o.synthErr != nil {
		return "", o.synthErr
	}
	return o.answer, nil
}

func page(url, title, body string, links ...fetch.Link) fetch.PageContent {
	return fetch.PageContent{URL: url, Title: title, BodyText: body, Links: links}
}

func TestRunExploresThenAnswers(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "Welcome to our shop.",
		fetch.Link{Href: "https://example.com/products", AnchorText: "Products"},
		fetch.Link{Href: "https://example.com/about", AnchorText: "About us"},
	)
	fetcher.pages["https://example.com/products"] = page("https://example.com/products", "Products", "We sell blue widgets for 5 dollars.")
	fetcher.pages["https://example.com/about"] = page("https://example.com/about", "About", "Founded in 1999.")

	oracle := &stubOracle{
		decisions: []string{
			`{"action": "explore", "reasoning": "need product details"}`,
			`{"action": "answer", "reasoning": "have enough"}`,
		},
		answer: "They sell blue widgets.",
	}

	st, err := session.New("What products do you sell?", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 10})
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Status() != session.StatusDone {
		t.Fatalf("status = %q, want done", st.Status())
	}
	answer, ok := st.FinalAnswer()
	if !ok || answer != "They sell blue widgets." {
		t.Fatalf("final answer = %q, %v", answer, ok)
	}
	if got := st.VisitedCount(); got != 2 {
		t.Fatalf("visited %d pages, want 2", got)
	}
	// The product page outranks the about page for a product question,
	// so the explore cycle must have fetched it.
	if fetcher.fetched["https://example.com/products"] != 1 {
		t.Fatalf("products page fetched %d times, want 1", fetcher.fetched["https://example.com/products"])
	}
	if fetcher.fetched["https://example.com/about"] != 0 {
		t.Fatalf("about page fetched %d times, want 0", fetcher.fetched["https://example.com/about"])
	}
	if !strings.Contains(oracle.lastSynthIn, "blue widgets") {
		t.Fatalf("synthesis prompt missing page content:\n%s", oracle.lastSynthIn)
	}
}

func TestRunNeverFetchesSameURLTwice(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	// Both pages link back to each other and to the start page.
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "home",
		fetch.Link{Href: "https://example.com/a", AnchorText: "a"},
	)
	fetcher.pages["https://example.com/a"] = page("https://example.com/a", "A", "a",
		fetch.Link{Href: "https://example.com/", AnchorText: "home"},
		fetch.Link{Href: "https://example.com/a", AnchorText: "self"},
	)

	oracle := &stubOracle{
		decisions: []string{
			`{"action": "explore", "reasoning": ""}`,
			`{"action": "explore", "reasoning": ""}`,
			`{"action": "explore", "reasoning": ""}`,
		},
		answer: "done",
	}

	st, err := session.New("anything interesting here", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 10})
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for url, n := range fetcher.fetched {
		if n > 1 {
			t.Fatalf("%s fetched %d times", url, n)
		}
	}
	if st.Status() != session.StatusDone {
		t.Fatalf("status = %q, want done", st.Status())
	}
}

func TestRunHonorsPageBudget(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "home",
		fetch.Link{Href: "https://example.com/a", AnchorText: "a"},
		fetch.Link{Href: "https://example.com/b", AnchorText: "b"},
		fetch.Link{Href: "https://example.com/c", AnchorText: "c"},
	)
	fetcher.pages["https://example.com/a"] = page("https://example.com/a", "A", "a")
	fetcher.pages["https://example.com/b"] = page("https://example.com/b", "B", "b")
	fetcher.pages["https://example.com/c"] = page("https://example.com/c", "C", "c")

	// The oracle always wants more, the budget must stop it.
	oracle := &stubOracle{
		decisions: []string{
			`{"action": "explore", "reasoning": ""}`,
			`{"action": "explore", "reasoning": ""}`,
			`{"action": "explore", "reasoning": ""}`,
			`{"action": "explore", "reasoning": ""}`,
			`{"action": "explore", "reasoning": ""}`,
		},
		answer: "capped",
	}

	st, err := session.New("question", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 2})
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := st.VisitedCount(); got != 2 {
		t.Fatalf("visited %d pages, want 2", got)
	}
	if st.Status() != session.StatusDone {
		t.Fatalf("status = %q, want done", st.Status())
	}
}

func TestRunSinglePageBudget(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "everything is here",
		fetch.Link{Href: "https://example.com/more", AnchorText: "more"},
	)

	oracle := &stubOracle{
		decisions: []string{`{"action": "explore", "reasoning": "greedy"}`},
		answer:    "answered from one page",
	}

	st, err := session.New("question", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 1})
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := st.VisitedCount(); got != 1 {
		t.Fatalf("visited %d pages, want 1", got)
	}
	if _, ok := st.FinalAnswer(); !ok {
		t.Fatal("expected a final answer")
	}
}

func TestRunStartURLUnreachable(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.errs["https://example.com/"] = &fetch.FetchError{
		Kind: fetch.KindNetworkError,
		URL:  "https://example.com/",
		Err:  errors.New("connection refused"),
	}

	oracle := &stubOracle{
		decisions: []string{`{"action": "answer", "reasoning": "nothing to work with"}`},
		answer:    "I could not read the website, so I have no information to answer with.",
	}

	st, err := session.New("question", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 10})
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Status() != session.StatusDone {
		t.Fatalf("status = %q, want done", st.Status())
	}
	if got := st.PageCount(); got != 0 {
		t.Fatalf("collected %d pages, want 0", got)
	}
	if got := st.VisitedCount(); got != 1 {
		t.Fatalf("visited %d URLs, want 1", got)
	}
	if !strings.Contains(oracle.lastSynthIn, "NO CONTENT WAS RETRIEVED") {
		t.Fatalf("synthesis prompt missing empty-content notice:\n%s", oracle.lastSynthIn)
	}
}

func TestRunDecisionOracleFailureStillAnswers(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "content")

	oracle := &stubOracle{
		decideErr: errors.New("oracle down"),
		answer:    "best effort",
	}

	st, err := session.New("question", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 10})
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	answer, ok := st.FinalAnswer()
	if !ok || answer != "best effort" {
		t.Fatalf("final answer = %q, %v", answer, ok)
	}
}

func TestRunSynthesisFailureFailsSession(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "content")

	oracle := &stubOracle{
		decisions: []string{`{"action": "answer", "reasoning": ""}`},
		synthErr:  errors.New("oracle down"),
	}

	st, err := session.New("question", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 10})
	err = eng.Run(context.Background(), st)
	if err == nil {
		t.Fatal("expected Run to return the synthesis error")
	}
	if st.Status() != session.StatusFailed {
		t.Fatalf("status = %q, want failed", st.Status())
	}
	if _, ok := st.FinalAnswer(); ok {
		t.Fatal("failed session must not carry an answer")
	}
}

func TestRunPromotesOracleNextURL(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "home",
		fetch.Link{Href: "https://example.com/popular", AnchorText: "question products popular stuff"},
		fetch.Link{Href: "https://example.com/obscure", AnchorText: "obscure"},
	)
	fetcher.pages["https://example.com/obscure"] = page("https://example.com/obscure", "Obscure", "the real detail")

	// The oracle overrides the score order and asks for the obscure page.
	oracle := &stubOracle{
		decisions: []string{
			`{"action": "explore", "reasoning": "obscure page looks right", "next_url": "https://example.com/obscure"}`,
			`{"action": "answer", "reasoning": ""}`,
		},
		answer: "found it",
	}

	st, err := session.New("question about products", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	eng := New(fetcher, oracle, Options{MaxPages: 10})
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetcher.fetched["https://example.com/obscure"] != 1 {
		t.Fatalf("obscure page fetched %d times, want 1", fetcher.fetched["https://example.com/obscure"])
	}
	if fetcher.fetched["https://example.com/popular"] != 0 {
		t.Fatalf("popular page fetched %d times, want 0", fetcher.fetched["https://example.com/popular"])
	}
}

func TestRunContextCancellation(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.pages["https://example.com/"] = page("https://example.com/", "Home", "home")
	oracle := &stubOracle{answer: "never reached"}

	st, err := session.New("question", "https://example.com/")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(fetcher, oracle, Options{MaxPages: 10})
	if err := eng.Run(ctx, st); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if st.Status() != session.StatusFailed {
		t.Fatalf("status = %q, want failed", st.Status())
	}
}

func TestParseDecision(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		action  string
		nextURL string
	}{
		{
			name:   "clean explore",
			raw:    `{"action": "explore", "reasoning": "x", "next_url": "https://e.com/a"}`,
			action: ActionExplore, nextURL: "https://e.com/a",
		},
		{
			name:   "clean answer",
			raw:    `{"action": "answer", "reasoning": "x"}`,
			action: ActionAnswer,
		},
		{
			name:   "uppercase action",
			raw:    `{"action": "EXPLORE", "reasoning": "x"}`,
			action: ActionExplore,
		},
		{
			name:   "json inside prose",
			raw:    "Sure, here is my decision:\n```json\n{\"action\": \"explore\", \"reasoning\": \"x\"}\n```",
			action: ActionExplore,
		},
		{
			name:   "garbage defaults to answer",
			raw:    "I will now explore the products page.",
			action: ActionAnswer,
		},
		{
			name:   "unknown action defaults to answer",
			raw:    `{"action": "retreat", "reasoning": "x"}`,
			action: ActionAnswer,
		},
		{
			name:   "empty string",
			raw:    "",
			action: ActionAnswer,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := parseDecision(tc.raw)
			if d.Action != tc.action {
				t.Fatalf("action = %q, want %q", d.Action, tc.action)
			}
			if d.NextURL != tc.nextURL {
				t.Fatalf("next_url = %q, want %q", d.NextURL, tc.nextURL)
			}
		})
	}
}
