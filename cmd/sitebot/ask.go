package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/sitebot/config"
	"github.com/mohammad-safakhou/sitebot/internal/engine"
	"github.com/mohammad-safakhou/sitebot/internal/fetch"
	"github.com/mohammad-safakhou/sitebot/internal/session"
	"github.com/mohammad-safakhou/sitebot/internal/telemetry"
	"github.com/mohammad-safakhou/sitebot/provider"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var question string
	var siteURL string
	var ask = &cobra.Command{
		Use:   "ask",
		Short: "Answer a question about a website from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if question == "" {
				return errors.New("--question is required")
			}
			if siteURL == "" {
				siteURL = cfg.General.DefaultWebsiteURL
			}
			if siteURL == "" {
				return errors.New("--url is required (or set general.default_website_url)")
			}

			llmProvider, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			fetcher := fetch.New(fetch.Options{
				Timeout:      cfg.Crawl.FetchTimeout,
				Retries:      cfg.Crawl.RetryBudget,
				UserAgent:    cfg.Crawl.UserAgent,
				MaxBodyChars: cfg.Crawl.MaxBodyChars,
				MaxLinks:     cfg.Crawl.MaxLinksPerPage,
				AllowedHosts: cfg.Crawl.AllowedHosts,
			})
			eng := engine.New(fetcher, engine.NewLLMOracle(llmProvider, cfg.LLM.Routing), engine.Options{
				MaxPages:      cfg.Crawl.MaxPages,
				TopCandidates: cfg.Crawl.TopCandidates,
				Telemetry:     telemetry.New(cfg.Telemetry),
			})

			st, err := session.New(question, siteURL)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if cfg.General.MaxProcessingTime > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.General.MaxProcessingTime)
				defer cancel()
			}
			if err := eng.Run(ctx, st); err != nil {
				return err
			}

			answer, _ := st.FinalAnswer()
			fmt.Println(answer)
			fmt.Println()
			fmt.Printf("Pages explored (%d):\n", st.PageCount())
			for _, p := range st.Pages() {
				fmt.Printf("  - %s (%s)\n", p.Title, p.URL)
			}
			return nil
		},
	}
	ask.Flags().StringVarP(&question, "question", "q", "", "question to answer")
	ask.Flags().StringVarP(&siteURL, "url", "u", "", "website to crawl")
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}
