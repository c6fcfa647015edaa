package session

import (
	"container/heap"
	"sort"
)

// Candidate is a discovered, not-yet-fetched URL awaiting a fetch decision.
type Candidate struct {
	URL        string
	Score      int
	Seq        int // discovery order, breaks score ties
	SourceURL  string
	AnchorText string

	preferred bool // the decision oracle asked for this one next
	index     int  // heap bookkeeping
}

// candidateHeap orders candidates: oracle-preferred first, then score
// descending, then earliest discovery.
type candidateHeap []*Candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].preferred != h[j].preferred {
		return h[i].preferred
	}
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].Seq < h[j].Seq
}

func (h candidateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *candidateHeap) Push(x interface{}) {
	c := x.(*Candidate)
	c.index = len(*h)
	*h = append(*h, c)
}

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

// frontier is the pending queue with per-URL deduplication. A URL already
// queued keeps its discovery order; a rediscovery with a higher score only
// upgrades the score.
type frontier struct {
	heap    candidateHeap
	byURL   map[string]*Candidate
	nextSeq int
}

func newFrontier() *frontier {
	return &frontier{byURL: make(map[string]*Candidate)}
}

// add enqueues url, or upgrades the score of an existing candidate.
// Reports whether the candidate is new.
func (f *frontier) add(url string, score int, sourceURL, anchorText string) bool {
	if existing, ok := f.byURL[url]; ok {
		if score > existing.Score {
			existing.Score = score
			heap.Fix(&f.heap, existing.index)
		}
		return false
	}
	c := &Candidate{URL: url, Score: score, Seq: f.nextSeq, SourceURL: sourceURL, AnchorText: anchorText}
	f.nextSeq++
	heap.Push(&f.heap, c)
	f.byURL[url] = c
	return true
}

func (f *frontier) pop() (*Candidate, bool) {
	if f.heap.Len() == 0 {
		return nil, false
	}
	c := heap.Pop(&f.heap).(*Candidate)
	delete(f.byURL, c.URL)
	return c, true
}

func (f *frontier) contains(url string) bool {
	_, ok := f.byURL[url]
	return ok
}

// promote marks url as the next candidate to pop regardless of score.
func (f *frontier) promote(url string) bool {
	c, ok := f.byURL[url]
	if !ok {
		return false
	}
	c.preferred = true
	heap.Fix(&f.heap, c.index)
	return true
}

func (f *frontier) len() int { return f.heap.Len() }

// top returns up to n candidates in pop order without removing them.
func (f *frontier) top(n int) []*Candidate {
	out := make([]*Candidate, len(f.heap))
	copy(out, f.heap)
	sort.Slice(out, func(i, j int) bool {
		if out[i].preferred != out[j].preferred {
			return out[i].preferred
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Seq < out[j].Seq
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
