// Package fetch retrieves a single page and turns it into readable text
// plus the outbound links found on it. All failures are reported as a
// *FetchError with a kind; nothing escapes this boundary as a panic.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/sitebot/internal/helpers"
)

// ErrorKind categorises fetch failures for the session layer.
type ErrorKind string

const (
	KindTimeout                ErrorKind = "timeout"
	KindHTTPError              ErrorKind = "http_error"
	KindUnsupportedContentType ErrorKind = "unsupported_content_type"
	KindNetworkError           ErrorKind = "network_error"
)

// FetchError is the only error type returned by Fetcher.Fetch.
type FetchError struct {
	Kind   ErrorKind
	Status int // set for KindHTTPError
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPError:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Link is one outbound anchor discovered on a page. Href is canonical.
type Link struct {
	Href       string `json:"href"`
	AnchorText string `json:"anchor_text"`
}

// PageContent is the extracted form of a successfully fetched page.
type PageContent struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	BodyText string `json:"body_text"`
	Links    []Link `json:"links"`
}

// Options configures a Fetcher. Zero values are replaced by defaults.
type Options struct {
	Timeout      time.Duration
	Retries      int // extra attempts after the first, network/timeout errors only
	UserAgent    string
	MaxBodyChars int
	MaxLinks     int
	// AllowedHosts extends the same-origin link policy with additional
	// hosts. The origin of the fetched page is always allowed.
	AllowedHosts []string
}

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyChars = 20000
	defaultMaxLinks     = 40
	defaultUserAgent    = "sitebot/1.0 (+https://github.com/mohammad-safakhou/sitebot)"

	maxResponseBytes = 2 << 20
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Fetcher fetches pages over HTTP with a bounded per-URL latency:
// each attempt is capped by the client timeout and the number of attempts
// is capped by the retry budget, with no additional backoff.
type Fetcher struct {
	client       *http.Client
	retries      int
	userAgent    string
	maxBodyChars int
	maxLinks     int
	allowedHosts map[string]struct{}
	logger       *log.Logger
}

// New creates a Fetcher from options, clamping nonsensical values.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxBodyChars <= 0 {
		opts.MaxBodyChars = defaultMaxBodyChars
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = defaultMaxLinks
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	allowed := make(map[string]struct{}, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &Fetcher{
		client:       &http.Client{Timeout: opts.Timeout},
		retries:      opts.Retries,
		userAgent:    opts.UserAgent,
		maxBodyChars: opts.MaxBodyChars,
		maxLinks:     opts.MaxLinks,
		allowedHosts: allowed,
		logger:       log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
}

// Fetch retrieves pageURL and extracts title, readable body text and
// same-origin outbound links. The returned error, when non-nil, is always
// a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (PageContent, error) {
	var lastErr *FetchError
	attempts := f.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		content, ferr := f.fetchOnce(ctx, pageURL)
		if ferr == nil {
			return content, nil
		}
		lastErr = ferr
		// Only transient transport failures are worth another attempt.
		if ferr.Kind != KindNetworkError && ferr.Kind != KindTimeout {
			return PageContent{}, ferr
		}
		if ctx.Err() != nil {
			return PageContent{}, lastErr
		}
		if attempt < attempts-1 {
			f.logger.Printf("retrying %s after %s (%d/%d)", pageURL, ferr.Kind, attempt+1, f.retries)
		}
	}
	return PageContent{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (PageContent, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return PageContent{}, &FetchError{Kind: KindNetworkError, URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return PageContent{}, &FetchError{Kind: classifyTransportError(err), URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return PageContent{}, &FetchError{Kind: KindHTTPError, Status: resp.StatusCode, URL: pageURL}
	}

	ctype := resp.Header.Get("Content-Type")
	if !isHTML(ctype) {
		return PageContent{}, &FetchError{
			Kind: KindUnsupportedContentType, URL: pageURL,
			Err: fmt.Errorf("content type %q", ctype),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return PageContent{}, &FetchError{Kind: classifyTransportError(err), URL: pageURL, Err: err}
	}

	content, err := f.extract(pageURL, body)
	if err != nil {
		// Parsing never recovers on retry; report as unsupported content.
		return PageContent{}, &FetchError{Kind: KindUnsupportedContentType, URL: pageURL, Err: err}
	}
	return content, nil
}

// extract pulls title, links and readable text out of the raw HTML.
func (f *Fetcher) extract(pageURL string, body []byte) (PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return PageContent{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			title = strings.TrimSpace(og)
		}
	}

	links := f.extractLinks(pageURL, doc)

	text := f.readableText(pageURL, body)
	if text == "" {
		// Readability gives up on sparse pages; fall back to stripping
		// boilerplate elements and flattening what remains.
		doc.Find("script, style, nav, footer, header, noscript").Remove()
		text = doc.Find("body").Text()
	}
	text = whitespaceRE.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	text = helpers.Truncate(text, f.maxBodyChars)

	return PageContent{URL: pageURL, Title: title, BodyText: text, Links: links}, nil
}

func (f *Fetcher) readableText(pageURL string, body []byte) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

// extractLinks collects anchor targets in document order, canonicalised,
// deduplicated and restricted to the page's origin plus configured hosts.
func (f *Fetcher) extractLinks(pageURL string, doc *goquery.Document) []Link {
	var links []Link
	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		resolved, err := helpers.Resolve(pageURL, href)
		if err != nil {
			return true
		}
		if !f.originAllowed(pageURL, resolved) {
			return true
		}
		if _, dup := seen[resolved]; dup {
			return true
		}
		seen[resolved] = struct{}{}
		anchor := strings.TrimSpace(whitespaceRE.ReplaceAllString(s.Text(), " "))
		links = append(links, Link{Href: resolved, AnchorText: anchor})
		return len(links) < f.maxLinks
	})
	return links
}

func (f *Fetcher) originAllowed(pageURL, linkURL string) bool {
	if helpers.SameOrigin(pageURL, linkURL) {
		return true
	}
	parsed, err := url.Parse(linkURL)
	if err != nil {
		return false
	}
	_, ok := f.allowedHosts[strings.ToLower(parsed.Hostname())]
	return ok
}

func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return KindTimeout
	}
	var nerr interface{ Timeout() bool }
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	return KindNetworkError
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
