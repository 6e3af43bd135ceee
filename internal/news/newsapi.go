package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/store"
)

const newsAPIEverything = "https://newsapi.org/v2/everything"

// masterTerms is the international coverage universe, batched into OR
// queries. Grouped by theme: AI/semis, battery/EV, clean energy,
// finance, platform/cloud, bio, auto, shipbuilding.
var masterTerms = []string{
	"AI", `"artificial intelligence"`, "LLM", "GenAI", "semiconductor",
	"chip", "GPU", "HBM", "DRAM", "foundry", "fab", "EUV", "ASML", "TSMC",
	"Nvidia", "NVDA", "AMD", "Intel", "Qualcomm", "ARM", "RISC-V",
	`"data center"`, "inference", "training", "accelerator",

	"battery", `"lithium-ion"`, `"solid-state"`, "cathode", "anode",
	"electrolyte", "lithium", "nickel", "cobalt", "LFP", "NMC", "CATL",
	`"battery recycling"`, "EV", "charging",

	"nuclear", "SMR", "uranium", `"clean energy"`, "renewable", "solar",
	"wind", "hydrogen", "geothermal", `"carbon capture"`, "grid",
	`"energy storage"`,

	"bank", "banking", "fintech", "payments", "Visa", "Mastercard",
	"JPMorgan", "Goldman", `"Morgan Stanley"`, `"interest rate"`,

	"cloud", "SaaS", "platform", "Microsoft", "Apple", "Google",
	"Alphabet", "Amazon", "Meta", "telecom", "5G", `"app store"`,

	"biotech", "pharma", "healthcare", `"clinical trial"`,
	`"drug approval"`, "FDA", `"medical device"`, "Novo", `"Eli Lilly"`,
	"Pfizer",

	"automotive", "automaker", "Tesla", "BYD", "Toyota", "Volkswagen",
	"Hyundai", "Kia", "ADAS", `"self-driving"`,

	"shipbuilding", "shipyard", "maritime", `"LNG carrier"`, "tanker",
	`"offshore wind"`,
}

// InternationalCrawler pulls English market news from NewsAPI, stores it
// with an embedding and queues each new article for worker analysis.
type InternationalCrawler struct {
	store  *store.Store
	embed  llm.Embedder
	queue  *Queue
	fetch  market.Fetcher
	img    *Crawler
	cfg    config.NewsAPIConfig
	logger *slog.Logger
}

// NewInternationalCrawler wires the NewsAPI pipeline. The domestic
// crawler is reused for image validation; queue may be nil to skip
// enqueueing.
func NewInternationalCrawler(st *store.Store, embed llm.Embedder, queue *Queue, fetch market.Fetcher, img *Crawler, cfg config.NewsAPIConfig, logger *slog.Logger) *InternationalCrawler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &InternationalCrawler{
		store: st, embed: embed, queue: queue, fetch: fetch, img: img,
		cfg: cfg, logger: logger,
	}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		URLToImage  string `json:"urlToImage"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Crawl runs every query batch and returns the count of new articles.
func (c *InternationalCrawler) Crawl(ctx context.Context) (int, error) {
	if len(c.cfg.Keys()) == 0 {
		return 0, fmt.Errorf("no NewsAPI keys configured")
	}

	total := 0
	batches := buildQueryBatches(masterTerms, 10)
	for i, query := range batches {
		n, err := c.crawlQuery(ctx, query)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			c.logger.Warn("query batch failed", "batch", i+1, "error", err)
		}
		if err := sleepCtx(ctx, 350*time.Millisecond); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *InternationalCrawler) crawlQuery(ctx context.Context, query string) (int, error) {
	from := time.Now().UTC().Add(-time.Duration(c.cfg.DaysLookback) * 24 * time.Hour)

	saved := 0
	for page := 1; page <= c.cfg.MaxPages; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("language", "en")
		params.Set("sortBy", "publishedAt")
		params.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
		params.Set("page", strconv.Itoa(page))
		params.Set("from", from.Format("2006-01-02T15:04:05Z"))

		resp, err := c.fetchPage(ctx, params)
		if err != nil {
			c.logger.Warn("newsapi page failed", "page", page, "error", err)
			continue
		}
		if len(resp.Articles) == 0 {
			break
		}

		for _, a := range resp.Articles {
			n, err := c.saveArticle(ctx, a.Title, a.Description, a.Content, a.URL, a.URLToImage, a.PublishedAt)
			if err != nil {
				if ctx.Err() != nil {
					return saved, err
				}
				c.logger.Debug("article skipped", "url", a.URL, "error", err)
				continue
			}
			saved += n
		}
		if err := sleepCtx(ctx, 200*time.Millisecond); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// fetchPage tries each configured API key in order until one succeeds.
func (c *InternationalCrawler) fetchPage(ctx context.Context, params url.Values) (*newsAPIResponse, error) {
	var lastErr error
	for _, key := range c.cfg.Keys() {
		params.Set("apiKey", key)
		body, err := c.fetch.GetJSON(ctx, newsAPIEverything, params, "")
		if err != nil {
			lastErr = err
			continue
		}

		var resp newsAPIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			lastErr = fmt.Errorf("failed to decode newsapi response: %w", err)
			continue
		}
		if resp.Status != "ok" {
			lastErr = fmt.Errorf("newsapi status %q", resp.Status)
			continue
		}
		return &resp, nil
	}
	return nil, lastErr
}

func (c *InternationalCrawler) saveArticle(ctx context.Context, title, description, content, rawURL, imageURL, publishedAt string) (int, error) {
	title = NormalizeTitle(title)
	link := NormalizeURLNoQuery(rawURL)
	if title == "" || link == "" {
		return 0, nil
	}

	exists, err := c.store.ArticleExists(ctx, title, link)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	// International cards render with a thumbnail; articles without a
	// real image are dropped.
	img := c.img.validImageURL(ctx, imageURL)
	if img == "" {
		return 0, nil
	}

	summary := strings.TrimSpace(description)
	if summary == "" {
		summary = title
	}

	article := &store.NewsArticle{
		URL:      link,
		Title:    title,
		Summary:  summary,
		Content:  strings.TrimSpace(content),
		Source:   "NewsAPI",
		ImageURL: img,
		Market:   store.NewsMarketInternational,
		Theme:    store.ThemeETC,
	}
	if t, ok := parseISOTime(publishedAt); ok {
		article.PublishedAt = &t
	} else {
		now := time.Now().UTC()
		article.PublishedAt = &now
	}

	vec, err := c.embed.EmbedDocument(ctx, summary)
	if err != nil {
		return 0, fmt.Errorf("failed to embed article: %w", err)
	}

	id, created, err := c.store.InsertArticle(ctx, article)
	if err != nil {
		return 0, err
	}
	if !created {
		return 0, nil
	}
	if err := c.store.SetArticleEmbedding(ctx, id, pgvector.NewVector(vec)); err != nil {
		return 0, err
	}

	if c.queue != nil {
		_, err := c.queue.Enqueue(ctx, ClassifyJob{
			ArticleID: id,
			Title:     title,
			Content:   firstNonEmpty(article.Content, summary),
		})
		if err != nil {
			// The stored article is picked up by the backlog sweep.
			c.logger.Warn("enqueue failed", "article_id", id, "error", err)
		}
	}
	return 1, nil
}

// buildQueryBatches joins terms into parenthesized OR queries of at
// most chunk terms each.
func buildQueryBatches(terms []string, chunk int) []string {
	if chunk < 3 {
		chunk = 3
	}
	if chunk > 20 {
		chunk = 20
	}

	var out []string
	for i := 0; i < len(terms); i += chunk {
		end := i + chunk
		if end > len(terms) {
			end = len(terms)
		}
		out = append(out, "("+strings.Join(terms[i:end], " OR ")+")")
	}
	return out
}
