package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/news"
)

// NewCrawlCommand creates the crawl command group.
func NewCrawlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl news sources into the article store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "domestic",
		Short: "Crawl Korean news sources",
		Long: `Crawl the Korean news sources (Naver, Infomax, Hankyung, MK),
embed new articles and run the 5-level analysis inline.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			client, err := newLLM(ctx, cfg, logger)
			if err != nil {
				return err
			}

			analyzer := news.NewAnalyzer(st, client, logger)
			crawler := news.NewCrawler(st, client, analyzer, newFetcher(cfg), cfg.Crawler, logger)

			saved, err := crawler.CrawlDomestic(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "domestic crawl finished: %d articles saved\n", saved)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "international",
		Short: "Crawl international headlines via NewsAPI",
		Long: `Crawl international financial headlines from NewsAPI, embed new
articles and enqueue them for the analysis worker.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			client, err := newLLM(ctx, cfg, logger)
			if err != nil {
				return err
			}

			queue, err := news.NewQueue(cfg.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = queue.Close() }()

			// The domestic crawler doubles as the image prober.
			fetch := newFetcher(cfg)
			analyzer := news.NewAnalyzer(st, client, logger)
			img := news.NewCrawler(st, client, analyzer, fetch, cfg.Crawler, logger)
			crawler := news.NewInternationalCrawler(st, client, queue, fetch, img, cfg.NewsAPI, logger)

			saved, err := crawler.Crawl(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "international crawl finished: %d articles saved\n", saved)
			return nil
		},
	})

	return cmd
}
