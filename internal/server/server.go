package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/sitebot/config"
	"github.com/mohammad-safakhou/sitebot/internal/engine"
	"github.com/mohammad-safakhou/sitebot/internal/fetch"
	"github.com/mohammad-safakhou/sitebot/internal/history"
	"github.com/mohammad-safakhou/sitebot/internal/telemetry"
	"github.com/mohammad-safakhou/sitebot/provider"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	ctx := context.Background()

	llmProvider, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	tele := telemetry.New(cfg.Telemetry)
	oracle := engine.NewLLMOracle(llmProvider, cfg.LLM.Routing)
	fetcher := fetch.New(fetch.Options{
		Timeout:      cfg.Crawl.FetchTimeout,
		Retries:      cfg.Crawl.RetryBudget,
		UserAgent:    cfg.Crawl.UserAgent,
		MaxBodyChars: cfg.Crawl.MaxBodyChars,
		MaxLinks:     cfg.Crawl.MaxLinksPerPage,
		AllowedHosts: cfg.Crawl.AllowedHosts,
	})
	store, err := history.NewStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	eng := engine.New(fetcher, oracle, engine.Options{
		MaxPages:      cfg.Crawl.MaxPages,
		TopCandidates: cfg.Crawl.TopCandidates,
		Telemetry:     tele,
	})

	e := newEcho()
	h := &SessionsHandler{
		Engine:         eng,
		History:        store,
		DefaultSiteURL: cfg.General.DefaultWebsiteURL,
		Timeout:        cfg.General.MaxProcessingTime,
	}
	h.Register(e.Group("/api"))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/api", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "sitebot",
			"ask":     "POST /api/ask",
		})
	})
	e.GET("/metrics", echo.WrapHandler(telemetry.Handler()))

	return e.Start(cfg.Server.Address)
}

// newEcho builds the echo instance with recovery, CORS and a unified
// JSON error envelope.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	return e
}
