package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sitebot/internal/history"
	"github.com/mohammad-safakhou/sitebot/internal/session"
)

// Runner executes a session to a terminal status.
type Runner interface {
	Run(ctx context.Context, st *session.State) error
}

// SessionsHandler serves the ask endpoint and the session history.
type SessionsHandler struct {
	Engine         Runner
	History        history.Store
	DefaultSiteURL string
	Timeout        time.Duration

	logger *log.Logger
}

func (h *SessionsHandler) Register(g *echo.Group) {
	h.logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	g.POST("/ask", h.ask)
	g.GET("/sessions", h.list)
	g.GET("/sessions/:id", h.get)
}

func (h *SessionsHandler) ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}
	if req.WebsiteURL == "" {
		req.WebsiteURL = h.DefaultSiteURL
	}
	if req.WebsiteURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "website_url required")
	}

	st, err := session.New(req.Question, req.WebsiteURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid website_url: "+err.Error())
	}
	defer st.Close()

	ctx := c.Request().Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	runErr := h.Engine.Run(ctx, st)
	h.saveOutcome(st, runErr)

	if runErr != nil {
		h.logger.Printf("session %s failed: %v", st.ID(), runErr)
		return echo.NewHTTPError(http.StatusBadGateway, "could not produce an answer: "+runErr.Error())
	}

	answer, _ := st.FinalAnswer()
	return c.JSON(http.StatusOK, AskResponse{
		SessionID:    st.ID(),
		Answer:       answer,
		Status:       string(st.Status()),
		PagesVisited: st.VisitedCount(),
		URLsExplored: pageRefs(st),
	})
}

func (h *SessionsHandler) get(c echo.Context) error {
	rec, err := h.History.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *SessionsHandler) list(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	recs, err := h.History.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if recs == nil {
		recs = []history.Record{}
	}
	return c.JSON(http.StatusOK, recs)
}

// saveOutcome records the finished session. History is best effort, a
// storage error must not mask the answer.
func (h *SessionsHandler) saveOutcome(st *session.State, runErr error) {
	rec := history.Record{
		ID:        st.ID(),
		Question:  st.Question(),
		StartURL:  st.StartURL(),
		Status:    string(st.Status()),
		CreatedAt: time.Now(),
	}
	if answer, ok := st.FinalAnswer(); ok {
		rec.Answer = answer
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	for _, p := range st.Pages() {
		rec.Pages = append(rec.Pages, history.PageSummary{URL: p.URL, Title: p.Title})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.History.Save(ctx, rec); err != nil {
		h.logger.Printf("saving session %s failed: %v", st.ID(), err)
	}
}

func pageRefs(st *session.State) []PageRef {
	out := make([]PageRef, 0, st.PageCount())
	for _, p := range st.Pages() {
		out = append(out, PageRef{URL: p.URL, Title: p.Title})
	}
	return out
}
