package reco

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

const (
	// KeywordLimit is how many trend keywords each scope gets per day.
	KeywordLimit = 3
	// NewsLimit caps the stored articles per keyword.
	NewsLimit = 15

	candidatePoolLimit  = 100
	refillBatchSize     = 25
	maxRefillAttempts   = 10
	maxAgeDays          = 4
	contentMaxChars     = 6000
	minArticleTextChars = 180
	maxKeywordRunes     = 7
	maxExcludeURLs      = 80
)

var trendScopes = []store.Market{store.MarketKR, store.MarketUS}

const trendSystemPrompt = `너는 현재 시각 기준 주식/금융 시장의 실시간 트렌드를 분석하는 AI 엔진이다.
Google Search(실시간 검색)를 반드시 활용하여 최신 정보를 바탕으로 답해라.
출력은 반드시 JSON 포맷만 허용한다. (마크다운, 코드블록 금지)`

// TrendGenerator asks the LLM for the day's market trend keywords and
// candidate articles, verifies every article against the live page, and
// stores the survivors.
type TrendGenerator struct {
	store    *store.Store
	gen      llm.Generator
	analyzer *TrendAnalyzer
	pages    *pageFetcher
	logger   *slog.Logger
}

func NewTrendGenerator(st *store.Store, gen llm.Generator, analyzer *TrendAnalyzer, cfg config.CrawlerConfig, logger *slog.Logger) *TrendGenerator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TrendGenerator{
		store:    st,
		gen:      gen,
		analyzer: analyzer,
		pages:    newPageFetcher(cfg),
		logger:   logger,
	}
}

// Generate runs the full daily pipeline for both scopes, then analyzes
// whatever was stored without an analysis.
func (g *TrendGenerator) Generate(ctx context.Context) error {
	now := time.Now().In(kst)
	for _, scope := range trendScopes {
		if err := g.GenerateScope(ctx, scope, now); err != nil {
			return fmt.Errorf("trend generation failed for %s: %w", scope, err)
		}
	}

	done, err := g.analyzer.AnalyzePending(ctx, 0)
	if err != nil {
		g.logger.Error("trend analysis sweep failed", "error", err)
		return nil
	}
	g.logger.Info("trend analysis sweep finished", "analyzed", done)
	return nil
}

// GenerateScope builds and stores one scope's keywords and news.
func (g *TrendGenerator) GenerateScope(ctx context.Context, scope store.Market, now time.Time) error {
	g.logger.Info("requesting trend keywords", "scope", scope)

	raw, err := g.gen.GenerateJSON(ctx, trendSystemPrompt, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: buildTrendPrompt(scope, now)},
	})
	if err != nil {
		return fmt.Errorf("keyword generation failed: %w", err)
	}

	items := parseTrendItems(raw)
	for len(items) < KeywordLimit {
		items = append(items, trendItem{Keyword: "N/A", Reason: "데이터 없음"})
	}

	// Dedupe across the scope's keywords so the same article never
	// appears under two of them.
	globalURLs := make(map[string]bool)
	globalTitles := make(map[string]bool)

	keywords := make([]*store.TrendKeyword, 0, KeywordLimit)
	pickedPerKeyword := make([][]*trendCandidate, 0, KeywordLimit)

	for _, it := range items[:KeywordLimit] {
		candidates := g.collectForKeyword(ctx, scope, it, now)
		picked := rankAndPick(candidates, NewsLimit, globalURLs, globalTitles)
		g.logger.Info("trend keyword collected", "scope", scope, "keyword", it.Keyword,
			"candidates", len(candidates), "picked", len(picked))

		keywords = append(keywords, &store.TrendKeyword{
			Keyword: it.Keyword,
			Reason:  it.Reason,
		})
		pickedPerKeyword = append(pickedPerKeyword, picked)
	}

	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	ids, err := g.store.ReplaceTrendKeywords(ctx, date, scope, keywords)
	if err != nil {
		return err
	}

	for i, id := range ids {
		for _, c := range pickedPerKeyword[i] {
			published := c.published
			if _, _, err := g.store.InsertTrendNews(ctx, &store.TrendNews{
				KeywordID:     id,
				URL:           c.link,
				Title:         c.title,
				Summary:       c.summary,
				Content:       c.content,
				Source:        hostOf(c.link),
				ImageURL:      c.imageURL,
				PublishedAt:   &published,
				NeedsImageGen: c.needsImageGen,
			}); err != nil {
				g.logger.Warn("failed to store trend article", "url", c.link, "error", err)
			}
		}
	}
	return nil
}

// collectForKeyword verifies the seed articles and refills from the LLM
// until the candidate pool is full or attempts run out.
func (g *TrendGenerator) collectForKeyword(ctx context.Context, scope store.Market, it trendItem, now time.Time) []*trendCandidate {
	usedURLs := make(map[string]bool)
	usedTitles := make(map[string]bool)

	candidates := g.collectBatch(ctx, it.News, now, usedURLs, usedTitles, candidatePoolLimit)

	attempts := 0
	for len(candidates) < candidatePoolLimit && attempts < maxRefillAttempts {
		attempts++
		refill := g.refillNews(ctx, scope, it.Keyword, now, usedURLs)
		if len(refill) == 0 {
			if attempts >= 3 {
				break
			}
			continue
		}
		more := g.collectBatch(ctx, refill, now, usedURLs, usedTitles, candidatePoolLimit-len(candidates))
		candidates = append(candidates, more...)
		if attempts >= 3 && len(more) == 0 {
			break
		}
	}
	return candidates
}

func (g *TrendGenerator) collectBatch(ctx context.Context, raw []rawTrendNews, now time.Time, usedURLs, usedTitles map[string]bool, limit int) []*trendCandidate {
	var out []*trendCandidate
	for _, n := range raw {
		if ctx.Err() != nil {
			return out
		}
		c := g.verifyNewsItem(ctx, n, now)
		if c == nil {
			continue
		}
		if usedURLs[c.link] {
			continue
		}
		if c.normTitle != "" && usedTitles[c.normTitle] {
			continue
		}
		usedURLs[c.link] = true
		if c.normTitle != "" {
			usedTitles[c.normTitle] = true
		}
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func (g *TrendGenerator) refillNews(ctx context.Context, scope store.Market, keyword string, now time.Time, exclude map[string]bool) []rawTrendNews {
	raw, err := g.gen.GenerateJSON(ctx, "너는 JSON만 출력한다. 다른 텍스트 금지.", []llm.ChatMessage{
		{Role: llm.RoleUser, Content: buildRefillPrompt(scope, keyword, now, exclude)},
	})
	if err != nil {
		g.logger.Warn("trend refill failed", "keyword", keyword, "error", err)
		return nil
	}

	obj, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return nil
	}
	var resp struct {
		News []rawTrendNews `json:"news"`
	}
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil
	}
	return resp.News
}

// trendCandidate is a verified article ready to store.
type trendCandidate struct {
	title         string
	summary       string
	link          string
	imageURL      string
	published     time.Time
	needsImageGen bool
	content       string
	normTitle     string
}

func (c *trendCandidate) hasImage() bool { return hasRealImage(c.imageURL) }

type rawTrendNews struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Link        string `json:"link"`
	ImageURL    string `json:"image_url"`
	PublishedAt string `json:"published_at"`
}

type trendItem struct {
	Keyword string
	Reason  string
	News    []rawTrendNews
}

// verifyNewsItem confirms an LLM-proposed article against the live
// page. It must resolve to a real article URL, be recent, and carry
// enough body text to analyze.
func (g *TrendGenerator) verifyNewsItem(ctx context.Context, n rawTrendNews, now time.Time) *trendCandidate {
	link := unwrapRedirectURL(strings.TrimSpace(n.Link))
	if !isHTTPURL(link) {
		return nil
	}

	finalURL, pageHTML, err := g.pages.fetch(ctx, link)
	if err != nil {
		return nil
	}
	link = finalURL

	var page *articlePage
	if pageHTML != "" {
		page = parsePage(pageHTML, link)
		if page.canonicalURL != "" {
			link = stripFragment(page.canonicalURL)
		}
	}

	if isBlockedURL(link) || !looksLikeArticleURL(link) {
		return nil
	}

	published := parseWhen(n.PublishedAt)
	if published == nil && page != nil {
		published = page.publishedAt
	}
	if published == nil || !isRecent(*published, now) {
		return nil
	}

	if page == nil || len([]rune(page.text)) < minArticleTextChars {
		return nil
	}
	content := page.text
	if r := []rune(content); len(r) > contentMaxChars {
		content = string(r[:contentMaxChars])
	}

	imageURL, needsGen := g.resolveImage(ctx, link, n.ImageURL, page)

	title := clip(strings.TrimSpace(n.Title), 300)
	return &trendCandidate{
		title:         title,
		summary:       clip(strings.TrimSpace(n.Summary), 1000),
		link:          clip(link, 1000),
		imageURL:      clip(imageURL, 1000),
		published:     published.In(kst),
		needsImageGen: needsGen,
		content:       content,
		normTitle:     normalizeTrendTitle(title),
	}
}

func (g *TrendGenerator) resolveImage(ctx context.Context, link, candidate string, page *articlePage) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate != "" && g.pages.validImage(ctx, candidate) {
		return candidate, false
	}
	if page != nil && page.ogImage != "" && g.pages.validImage(ctx, page.ogImage) {
		return page.ogImage, false
	}
	if fav := faviconFallback(link); fav != "" {
		return fav, false
	}
	return "", true
}

// rankAndPick orders verified candidates newest first, preferring those
// with a real article image, and skips anything already used by another
// keyword in the scope.
func rankAndPick(cands []*trendCandidate, limit int, seenURLs, seenTitles map[string]bool) []*trendCandidate {
	if len(cands) == 0 {
		return nil
	}

	sorted := make([]*trendCandidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].published.After(sorted[j].published)
	})

	take := func(withImage bool, need int) []*trendCandidate {
		var picked []*trendCandidate
		for _, c := range sorted {
			if c.hasImage() != withImage {
				continue
			}
			if seenURLs[c.link] {
				continue
			}
			if c.normTitle != "" && seenTitles[c.normTitle] {
				continue
			}
			seenURLs[c.link] = true
			if c.normTitle != "" {
				seenTitles[c.normTitle] = true
			}
			picked = append(picked, c)
			if len(picked) >= need {
				break
			}
		}
		return picked
	}

	picked := take(true, limit)
	if len(picked) < limit {
		picked = append(picked, take(false, limit-len(picked))...)
	}
	return picked
}

var (
	reTrendTitlePrefix = regexp.MustCompile(`^\s*(\[[^\]]+\]|\([^)]+\)|<[^>]+>|[0-9]+[.)\]]\s*)\s*`)
	reTrendTitleSuffix = regexp.MustCompile(`\s*[-–—]\s*[^-–—]{1,25}\s*$`)
)

// normalizeTrendTitle reduces a headline to a dedupe key: wire-service
// prefixes like [속보] and trailing outlet names are stripped.
func normalizeTrendTitle(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return ""
	}
	t = strings.TrimSpace(reTrendTitlePrefix.ReplaceAllString(t, ""))
	t = strings.TrimSpace(reTrendTitleSuffix.ReplaceAllString(t, ""))
	t = strings.ToLower(reSpaces.ReplaceAllString(t, " "))
	r := []rune(strings.TrimSpace(t))
	if len(r) > 160 {
		r = r[:160]
	}
	return string(r)
}

func parseTrendItems(raw string) []trendItem {
	obj, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return nil
	}
	var resp struct {
		Items []struct {
			Keyword string         `json:"keyword"`
			Reason  string         `json:"reason"`
			News    []rawTrendNews `json:"news"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil
	}

	out := make([]trendItem, 0, KeywordLimit)
	for _, it := range resp.Items {
		if len(out) >= KeywordLimit {
			break
		}
		kw := strings.TrimSpace(it.Keyword)
		if r := []rune(kw); len(r) > maxKeywordRunes {
			kw = string(r[:maxKeywordRunes])
		}
		if kw == "" {
			continue
		}
		out = append(out, trendItem{
			Keyword: kw,
			Reason:  clip(strings.TrimSpace(it.Reason), 2000),
			News:    it.News,
		})
	}
	return out
}

func buildTrendPrompt(scope store.Market, now time.Time) string {
	target := "미국(US) 주식 시장 및 경제"
	ratio := fmt.Sprintf("키워드 %d개 모두 미국 관련 이슈로 선정.", KeywordLimit)
	if scope == store.MarketKR {
		target = "한국(KR) 주식 시장 및 경제"
		ratio = fmt.Sprintf("키워드 %d개 모두 한국 관련 이슈로 선정.", KeywordLimit)
	}

	var b strings.Builder
	b.WriteString("Google Search 도구를 사용하여 '현재 시간(Real-time)'의 뉴스를 검색해라.\n")
	fmt.Fprintf(&b, "현재 KST 시각: %s\n", now.In(kst).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "조건: 반드시 오늘 또는 최근 %d일 이내(KST) 기사만 사용.\n", maxAgeDays)
	b.WriteString("조건: link는 실제 기사 URL만. example.com/vertexaisearch 등 금지.\n")
	b.WriteString("조건: published_at은 YYYY-MM-DD HH:MM(KST)로 출력.\n")
	fmt.Fprintf(&b, "대상 시장: %s\n요청 사항: %s\n", target, ratio)
	fmt.Fprintf(&b, "각 키워드마다 관련 최신 뉴스 목록을 최대한 많이(최소 %d개 목표) 채워라.\n\n", refillBatchSize)
	b.WriteString(`출력 형식:
{
  "items": [
    {
      "keyword": "키워드(5글자이내)",
      "reason": "선정 이유(2문장 이내, 리스크 1개 포함)",
      "news": [
        {"title": "뉴스 제목", "summary": "뉴스 요약(1문장)", "link": "실제 기사 URL",
         "image_url": "이미지 URL (없으면 빈문자열)", "published_at": "YYYY-MM-DD HH:MM"}
      ]
    }
  ]
}`)
	fmt.Fprintf(&b, "\nitems 개수는 정확히 %d개.", KeywordLimit)
	return b.String()
}

func buildRefillPrompt(scope store.Market, keyword string, now time.Time, exclude map[string]bool) string {
	target := "미국(US)"
	if scope == store.MarketKR {
		target = "한국(KR)"
	}

	urls := make([]string, 0, len(exclude))
	for u := range exclude {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	if len(urls) > maxExcludeURLs {
		urls = urls[:maxExcludeURLs]
	}
	excl := "(없음)"
	if len(urls) > 0 {
		var lines []string
		for _, u := range urls {
			lines = append(lines, "- "+u)
		}
		excl = strings.Join(lines, "\n")
	}

	var b strings.Builder
	b.WriteString("Google Search 도구를 사용하여 최신 뉴스를 검색해라.\n")
	fmt.Fprintf(&b, "현재 KST 시각: %s\n\n", now.In(kst).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "[목표]\n키워드: %q (대상 시장: %s)\n", keyword, target)
	fmt.Fprintf(&b, "news를 최소 %d개 이상 반환하려고 노력해라.\n", refillBatchSize)
	fmt.Fprintf(&b, "반드시 오늘 또는 최근 %d일 이내(KST) 기사만 허용.\n", maxAgeDays)
	b.WriteString("link는 실제 기사 URL만 허용(placeholder/중계 URL 금지).\n")
	b.WriteString("published_at은 YYYY-MM-DD HH:MM(KST)로 출력.\n\n")
	fmt.Fprintf(&b, "[이미 사용한 URL - 중복 금지]\n%s\n\n", excl)
	b.WriteString(`출력은 반드시 아래 JSON만:
{
  "news": [
    {"title": "뉴스 제목", "summary": "뉴스 요약(1문장)", "link": "실제 기사 URL",
     "image_url": "이미지 URL(없으면 빈문자열)", "published_at": "YYYY-MM-DD HH:MM"}
  ]
}`)
	return b.String()
}

// isRecent accepts articles dated today or up to maxAgeDays back, by
// KST calendar date.
func isRecent(published, now time.Time) bool {
	p := published.In(kst)
	n := now.In(kst)
	pd := time.Date(p.Year(), p.Month(), p.Day(), 0, 0, 0, 0, time.UTC)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	days := int(nd.Sub(pd).Hours() / 24)
	return days >= 0 && days <= maxAgeDays
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
