// Package session owns the mutable state of one question-answering cycle:
// the visited set, the pending candidate queue, the collected page records
// and the terminal answer. One State serves exactly one question and is
// discarded afterwards.
package session

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/sitebot/internal/helpers"
	"github.com/mohammad-safakhou/sitebot/internal/relevance"
)

// Status is the session's position in the crawl-decide-answer loop.
type Status string

const (
	StatusCrawling  Status = "crawling"
	StatusDeciding  Status = "deciding"
	StatusAnswering Status = "answering"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// PageRecord is one successfully fetched page. Never mutated after creation.
type PageRecord struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	BodyText  string     `json:"body_text"`
	Links     []PageLink `json:"links"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// PageLink is an outbound link as found on a page (canonical href).
type PageLink struct {
	Href       string `json:"href"`
	AnchorText string `json:"anchor_text"`
}

// State is the shared aggregate the loop steps drive. It is not safe for
// concurrent use; a session runs its steps sequentially and distinct
// sessions own distinct States.
type State struct {
	id       string
	question string
	keywords []string
	startURL string

	visited  map[string]struct{}
	frontier *frontier
	pages    map[string]*PageRecord
	order    []string // successful fetches in visitation order

	finalAnswer string
	failure     error
	status      Status

	excerpts *ExcerptIndex // nil when the index could not be created
	logger   *log.Logger
}

// New creates a session for question seeded with startURL as the sole
// pending candidate.
func New(question, startURL string) (*State, error) {
	canonical, err := helpers.CanonicalURL(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start url: %w", err)
	}
	s := &State{
		id:       uuid.NewString(),
		question: question,
		keywords: relevance.ExtractKeywords(question),
		startURL: canonical,
		visited:  make(map[string]struct{}),
		frontier: newFrontier(),
		pages:    make(map[string]*PageRecord),
		status:   StatusCrawling,
		logger:   log.New(log.Writer(), "[SESSION] ", log.LstdFlags),
	}
	if idx, err := NewExcerptIndex(); err == nil {
		s.excerpts = idx
	} else {
		s.logger.Printf("excerpt index unavailable: %v", err)
	}
	s.frontier.add(canonical, 0, "", "")
	return s, nil
}

func (s *State) ID() string         { return s.id }
func (s *State) Question() string   { return s.question }
func (s *State) Keywords() []string { return s.keywords }
func (s *State) StartURL() string   { return s.startURL }
func (s *State) Status() Status     { return s.status }

// SetStatus moves the session between non-terminal loop states. Terminal
// transitions go through SetAnswer and Fail so their invariants hold.
func (s *State) SetStatus(status Status) { s.status = status }

// PopCandidate removes and returns the best pending candidate.
func (s *State) PopCandidate() (*Candidate, bool) { return s.frontier.pop() }

// MarkVisited records url as fetched (successfully or not). Visited URLs
// are never re-queued within the session.
func (s *State) MarkVisited(url string) { s.visited[url] = struct{}{} }

// IsVisited reports whether url was already fetched this session.
func (s *State) IsVisited(url string) bool {
	_, ok := s.visited[url]
	return ok
}

// VisitedCount is the number of fetch attempts, successful or failed.
func (s *State) VisitedCount() int { return len(s.visited) }

// AddPage stores the record for a successful fetch and indexes its text.
func (s *State) AddPage(rec *PageRecord) {
	if _, dup := s.pages[rec.URL]; dup {
		return
	}
	s.pages[rec.URL] = rec
	s.order = append(s.order, rec.URL)
	if s.excerpts != nil {
		if err := s.excerpts.AddPage(rec.URL, rec.Title, rec.BodyText); err != nil {
			s.logger.Printf("indexing %s failed: %v", rec.URL, err)
		}
	}
}

// Pages returns the collected records in visitation order.
func (s *State) Pages() []*PageRecord {
	out := make([]*PageRecord, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.pages[url])
	}
	return out
}

// PageCount is the number of successfully fetched pages.
func (s *State) PageCount() int { return len(s.pages) }

// AddCandidate enqueues a discovered link unless its URL was already
// visited. Rediscovery of a pending URL keeps the highest score seen.
// Reports whether the candidate entered the queue as a new entry.
func (s *State) AddCandidate(url string, score int, sourceURL, anchorText string) bool {
	canonical, err := helpers.CanonicalURL(url)
	if err != nil {
		return false
	}
	if s.IsVisited(canonical) {
		return false
	}
	return s.frontier.add(canonical, score, sourceURL, anchorText)
}

// PendingCount is the number of queued, unfetched candidates.
func (s *State) PendingCount() int { return s.frontier.len() }

// IsPending reports whether url is queued.
func (s *State) IsPending(url string) bool { return s.frontier.contains(url) }

// TopPending returns up to n pending candidates in pop order.
func (s *State) TopPending(n int) []*Candidate { return s.frontier.top(n) }

// Promote asks the queue to serve url next, honouring the oracle's choice.
func (s *State) Promote(url string) bool { return s.frontier.promote(url) }

// FindPending resolves a possibly loose URL reference (as an oracle tends
// to produce) to a queued candidate: exact canonical match first, then
// substring containment either way, earliest-discovered wins.
func (s *State) FindPending(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if canonical, err := helpers.CanonicalURL(raw); err == nil && s.frontier.contains(canonical) {
		return canonical, true
	}
	best := ""
	bestSeq := -1
	for url, c := range s.frontier.byURL {
		if strings.Contains(url, raw) || strings.Contains(raw, url) {
			if bestSeq == -1 || c.Seq < bestSeq {
				best, bestSeq = url, c.Seq
			}
		}
	}
	return best, bestSeq != -1
}

// RelevantExcerpts returns the indexed passages most related to query,
// falling back to the head of each page when the index is unavailable.
func (s *State) RelevantExcerpts(query string, k int) []Excerpt {
	if s.excerpts != nil {
		if out, err := s.excerpts.Search(query, k); err == nil && len(out) > 0 {
			return out
		}
	}
	var out []Excerpt
	for _, rec := range s.Pages() {
		if len(out) >= k {
			break
		}
		text := helpers.Truncate(rec.BodyText, excerptChunkChars)
		out = append(out, Excerpt{URL: rec.URL, Title: rec.Title, Text: text})
	}
	return out
}

// SetAnswer records the final answer and moves the session to done.
// finalAnswer is non-empty iff the session is done.
func (s *State) SetAnswer(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("refusing empty answer")
	}
	if s.finalAnswer != "" {
		return fmt.Errorf("answer already set")
	}
	s.finalAnswer = text
	s.status = StatusDone
	return nil
}

// FinalAnswer returns the answer and whether one was produced.
func (s *State) FinalAnswer() (string, bool) {
	return s.finalAnswer, s.finalAnswer != ""
}

// Fail terminates the session with a reason. No answer is recorded.
func (s *State) Fail(reason error) {
	s.failure = reason
	s.status = StatusFailed
}

// FailureReason returns why the session failed, nil otherwise.
func (s *State) FailureReason() error { return s.failure }

// Close releases the excerpt index. Safe to call once the session ends.
func (s *State) Close() {
	if s.excerpts != nil {
		_ = s.excerpts.Close()
		s.excerpts = nil
	}
}
