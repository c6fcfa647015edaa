package server

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AskRequest is the question payload.
type AskRequest struct {
	Question   string `json:"question"`
	WebsiteURL string `json:"website_url"`
}

// PageRef identifies one page the crawl visited.
type PageRef struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// AskResponse is the outcome of a completed session.
type AskResponse struct {
	SessionID    string    `json:"session_id"`
	Answer       string    `json:"answer"`
	Status       string    `json:"status"`
	PagesVisited int       `json:"pages_visited"`
	URLsExplored []PageRef `json:"urls_explored"`
}
