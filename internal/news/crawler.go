package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/net/html"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/store"
)

const (
	sleepBetweenItems   = 80 * time.Millisecond
	sleepBetweenSources = 250 * time.Millisecond
	imageHeadTimeout    = 4 * time.Second
	minDomesticTitle    = 12
)

// domesticSource is one crawled KR outlet: its section page plus the
// href shape that identifies its article links.
type domesticSource struct {
	name    string
	listURL string
	baseURL string
	euckr   bool
	accept  func(href string) bool
}

var domesticSources = []domesticSource{
	{
		name:    "Naver",
		listURL: "https://finance.naver.com/news/mainnews.naver",
		baseURL: "https://finance.naver.com",
		euckr:   true,
		accept: func(href string) bool {
			return strings.Contains(href, "news_read") || strings.Contains(href, "article_id=")
		},
	},
	{
		name:    "Infomax",
		listURL: "https://news.einfomax.co.kr/news/articleList.html?sc_section_code=S1N1",
		baseURL: "https://news.einfomax.co.kr",
		accept: func(href string) bool {
			return strings.Contains(href, "articleView.html") && strings.Contains(href, "idxno")
		},
	},
	{
		name:    "Hankyung",
		listURL: "https://www.hankyung.com/economy",
		baseURL: "https://www.hankyung.com",
		accept: func(href string) bool {
			return strings.Contains(href, "/article/")
		},
	},
	{
		name:    "MK",
		listURL: "https://www.mk.co.kr/news/economy/",
		baseURL: "https://www.mk.co.kr",
		accept: func(href string) bool {
			return strings.Contains(href, "/news/")
		},
	},
}

// Crawler collects domestic market news: it scans outlet section pages
// for article links, confirms each candidate on its detail page, embeds
// and stores it, and runs the level analysis inline.
type Crawler struct {
	store    *store.Store
	embed    llm.Embedder
	analyzer *Analyzer
	fetch    market.Fetcher
	img      *http.Client
	cfg      config.CrawlerConfig
	logger   *slog.Logger
}

// NewCrawler wires the crawl pipeline. analyzer may be nil to store
// articles without inline analysis.
func NewCrawler(st *store.Store, embed llm.Embedder, analyzer *Analyzer, fetch market.Fetcher, cfg config.CrawlerConfig, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Crawler{
		store:    st,
		embed:    embed,
		analyzer: analyzer,
		fetch:    fetch,
		img:      &http.Client{Timeout: imageHeadTimeout},
		cfg:      cfg,
		logger:   logger,
	}
}

// CrawlDomestic crawls every KR source in turn. Per-source failures are
// logged and do not stop the run; the return value is the number of new
// articles stored.
func (c *Crawler) CrawlDomestic(ctx context.Context) (int, error) {
	total := 0
	for i, src := range domesticSources {
		if i > 0 {
			if err := sleepCtx(ctx, sleepBetweenSources); err != nil {
				return total, err
			}
		}

		n, err := c.crawlSource(ctx, src)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			c.logger.Warn("source crawl failed", "source", src.name, "error", err)
			continue
		}
		c.logger.Info("source crawled", "source", src.name, "saved", n)
	}
	return total, nil
}

func (c *Crawler) crawlSource(ctx context.Context, src domesticSource) (int, error) {
	var page string
	var err error
	if src.euckr {
		page, err = c.fetch.GetTextEUCKR(ctx, src.listURL, src.baseURL)
	} else {
		page, err = c.fetch.GetText(ctx, src.listURL, src.baseURL)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s list: %w", src.name, err)
	}

	saved := 0
	seen := make(map[string]bool)
	for _, link := range extractAnchors(page) {
		if saved >= c.cfg.MaxPerSource {
			break
		}
		if !usableHref(link.href) || !src.accept(link.href) {
			continue
		}

		abs := resolveURL(src.baseURL, link.href)
		canonical := NormalizeURLNoQuery(NormalizeURL(abs))
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true

		title := NormalizeTitle(link.text)
		if LooksLikeMenuTitle(title) || len([]rune(title)) < minDomesticTitle {
			continue
		}

		ok, err := c.saveCandidate(ctx, src, title, abs, canonical)
		if err != nil {
			if ctx.Err() != nil {
				return saved, err
			}
			c.logger.Debug("candidate skipped", "source", src.name, "url", canonical, "error", err)
			continue
		}
		if ok {
			saved++
		}
		if err := sleepCtx(ctx, sleepBetweenItems); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// saveCandidate confirms a link on its detail page, then embeds, stores
// and analyzes it. Returns true only for a newly stored article.
func (c *Crawler) saveCandidate(ctx context.Context, src domesticSource, title, link, canonical string) (bool, error) {
	if !LooksLikeArticleURL(canonical) {
		return false, nil
	}

	exists, err := c.store.ArticleExists(ctx, title, canonical)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	var page string
	if src.euckr {
		page, err = c.fetch.GetTextEUCKR(ctx, link, src.listURL)
	} else {
		page, err = c.fetch.GetText(ctx, link, src.listURL)
	}
	if err != nil {
		return false, err
	}

	sig := parseDetail(page)
	if !sig.articleLike && sig.publishedAt == nil {
		return false, nil
	}

	summary := sig.ogDesc
	if summary == "" {
		summary = title
	}

	article := &store.NewsArticle{
		URL:         canonical,
		Title:       title,
		Summary:     summary,
		Content:     sig.content,
		Source:      src.name,
		ImageURL:    c.validImageURL(ctx, sig.ogImage),
		Market:      store.NewsMarketKorea,
		Theme:       store.ThemeETC,
		PublishedAt: sig.publishedAt,
	}
	if article.PublishedAt == nil {
		now := time.Now().UTC()
		article.PublishedAt = &now
	}

	vec, err := c.embed.EmbedDocument(ctx, firstNonEmpty(summary, title))
	if err != nil {
		return false, fmt.Errorf("failed to embed article: %w", err)
	}

	id, created, err := c.store.InsertArticle(ctx, article)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}
	if err := c.store.SetArticleEmbedding(ctx, id, pgvector.NewVector(vec)); err != nil {
		return false, err
	}

	if c.analyzer != nil {
		article.ID = id
		if err := c.analyzer.Analyze(ctx, article); err != nil {
			// The article is stored; analysis can be retried by the worker.
			c.logger.Warn("inline analysis failed", "article_id", id, "error", err)
		}
	}
	return true, nil
}

// validImageURL filters placeholder URLs and confirms the target really
// serves an image. An empty result means no usable image.
func (c *Crawler) validImageURL(ctx context.Context, imageURL string) string {
	u := strings.TrimSpace(imageURL)
	if u == "" || LooksLikeBadImageURL(u) {
		return ""
	}
	if !c.isRealImage(ctx, u) {
		return ""
	}
	return u
}

func (c *Crawler) isRealImage(ctx context.Context, imageURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.img.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return false
		}
		if strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "image/") {
			return true
		}
	}

	// Some CDNs reject HEAD; retry with a ranged GET.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Range", "bytes=0-2047")

	resp, err = c.img.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return false
	}
	return strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "image/")
}

// anchor is one <a href> with its visible text.
type anchor struct {
	href string
	text string
}

func extractAnchors(page string) []anchor {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var out []anchor
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				out = append(out, anchor{
					href: strings.TrimSpace(href),
					text: strings.TrimSpace(textContent(n)),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
