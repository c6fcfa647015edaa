package session

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/sitebot/internal/helpers"
)

// Excerpt is a question-relevant passage pulled from a fetched page.
type Excerpt struct {
	URL   string
	Title string
	Text  string
	Score float64
}

const excerptChunkChars = 400

// ExcerptIndex holds an in-memory full-text index over page passages so
// the decision and answer prompts can quote the passages most related to
// the question instead of whatever happened to come first on a page.
type ExcerptIndex struct {
	idx bleve.Index
}

// NewExcerptIndex creates an empty memory-only index.
func NewExcerptIndex() (*ExcerptIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create excerpt index: %w", err)
	}
	return &ExcerptIndex{idx: idx}, nil
}

// AddPage splits body into passages and indexes each one.
func (x *ExcerptIndex) AddPage(url, title, body string) error {
	for i, chunk := range chunkText(body, excerptChunkChars) {
		doc := map[string]interface{}{
			"url":   url,
			"title": title,
			"text":  chunk,
		}
		if err := x.idx.Index(fmt.Sprintf("%s#%d", url, i), doc); err != nil {
			return fmt.Errorf("index passage: %w", err)
		}
	}
	return nil
}

// Search returns up to k passages ranked by relevance to query.
func (x *ExcerptIndex) Search(query string, k int) ([]Excerpt, error) {
	if k <= 0 {
		k = 3
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	req.Fields = []string{"url", "title", "text"}
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search excerpts: %w", err)
	}
	var out []Excerpt
	for _, hit := range res.Hits {
		e := Excerpt{Score: hit.Score}
		if v, ok := hit.Fields["url"].(string); ok {
			e.URL = v
		}
		if v, ok := hit.Fields["title"].(string); ok {
			e.Title = v
		}
		if v, ok := hit.Fields["text"].(string); ok {
			e.Text = v
		}
		out = append(out, e)
	}
	return out, nil
}

// Close releases the index resources.
func (x *ExcerptIndex) Close() error { return x.idx.Close() }

// chunkText splits text into passages of roughly maxChars, preferring
// sentence boundaries.
func chunkText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}
	var chunks []string
	var b strings.Builder
	for _, sentence := range strings.SplitAfter(text, ". ") {
		if b.Len() > 0 && b.Len()+len(sentence) > maxChars {
			chunks = append(chunks, strings.TrimSpace(b.String()))
			b.Reset()
		}
		// A single oversized sentence is hard-split on rune boundaries.
		for len(sentence) > maxChars {
			head := helpers.Truncate(sentence, maxChars)
			if head == "" {
				break
			}
			chunks = append(chunks, strings.TrimSpace(head))
			sentence = sentence[len(head):]
		}
		b.WriteString(sentence)
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
