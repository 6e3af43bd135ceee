package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

const (
	feedCandidates        = 300
	feedKeywordCandidates = 80
	feedDedupeFill        = 20
	feedSize              = 15
	feedKoreaShare        = 8
	feedIntlShare         = 7
)

// FeedItem is one card in the personalized news feed.
type FeedItem struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Summary     string           `json:"summary"`
	Tags        []string         `json:"tags"`
	PublishedAt *time.Time       `json:"published_at"`
	URL         string           `json:"url"`
	ImageURL    string           `json:"image_url"`
	Market      store.NewsMarket `json:"market"`
	Theme       store.Theme      `json:"theme"`
	Level       int              `json:"level"`
}

// Feed is the personalized recommendation response.
type Feed struct {
	News     []FeedItem `json:"news"`
	Keywords []string   `json:"keywords"`
}

// FeedRequest selects and personalizes one feed load.
type FeedRequest struct {
	// Market is all, domestic or international.
	Market  string
	Keyword string
	Profile *store.UserProfile
}

// FeedService assembles the personalized feed by embedding a profile
// query and ranking stored articles by vector similarity.
type FeedService struct {
	store  *store.Store
	embed  llm.Embedder
	logger *slog.Logger
}

// NewFeedService wires vector search to the article store.
func NewFeedService(st *store.Store, embed llm.Embedder, logger *slog.Logger) *FeedService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FeedService{store: st, embed: embed, logger: logger}
}

// Load builds the feed for one request.
func (s *FeedService) Load(ctx context.Context, req FeedRequest) (*Feed, error) {
	level := 1
	if req.Profile != nil {
		level = llm.ClampLevel(req.Profile.KnowledgeLevel)
	}

	market, balance := resolveMarketFilter(req.Market)

	queryText := buildQueryText(req.Keyword, req.Profile)
	vec, err := s.embed.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed feed query: %w", err)
	}

	limit := feedCandidates
	if req.Keyword != "" {
		limit = feedKeywordCandidates
	}
	candidates, err := s.store.SearchCandidates(ctx, pgvector.NewVector(vec), market, limit)
	if err != nil {
		return nil, err
	}

	picked := dedupeByTitle(candidates, feedDedupeFill)
	final := balanceMarkets(picked, balance)

	items := make([]FeedItem, 0, len(final))
	for _, a := range final {
		items = append(items, s.buildItem(ctx, a, level))
	}

	return &Feed{
		News:     items,
		Keywords: profileKeywords(req.Profile),
	}, nil
}

func (s *FeedService) buildItem(ctx context.Context, a *store.NewsArticle, level int) FeedItem {
	item := FeedItem{
		ID:          a.ID,
		Title:       a.Title,
		Summary:     a.Summary,
		Tags:        []string{},
		PublishedAt: a.PublishedAt,
		URL:         a.URL,
		ImageURL:    a.ImageURL,
		Market:      a.Market,
		Theme:       a.Theme,
		Level:       level,
	}

	na, err := s.store.GetAnalysis(ctx, a.ID, level)
	if err != nil {
		s.logger.Debug("analysis lookup failed", "article_id", a.ID, "error", err)
	}
	if na != nil {
		var payload struct {
			Summary  string   `json:"summary"`
			Keywords []string `json:"keywords"`
		}
		if json.Unmarshal(na.Analysis, &payload) == nil {
			if payload.Summary != "" {
				item.Summary = payload.Summary
			}
			for _, kw := range payload.Keywords {
				if kw == "" {
					continue
				}
				item.Tags = append(item.Tags, kw)
				if len(item.Tags) >= 2 {
					break
				}
			}
		}
	}

	if len(item.Tags) == 0 {
		if a.Theme != "" && a.Theme != store.ThemeETC {
			item.Tags = append(item.Tags, string(a.Theme))
		} else {
			item.Tags = append(item.Tags, "뉴스")
		}
	}
	return item
}

// resolveMarketFilter maps the request filter to the store-level market
// and reports whether KR/international balancing applies.
func resolveMarketFilter(filter string) (store.NewsMarket, bool) {
	switch filter {
	case "domestic":
		return store.NewsMarketKorea, false
	case "international":
		return store.NewsMarketInternational, false
	default:
		return "", true
	}
}

// buildQueryText personalizes the vector search text from the profile
// sectors and risk appetite, or from an explicit keyword.
func buildQueryText(keyword string, profile *store.UserProfile) string {
	if keyword != "" {
		return fmt.Sprintf("%s 관련 트렌드와 뉴스", keyword)
	}

	sectors := "경제"
	risk := "일반"
	if profile != nil {
		if len(profile.Sectors) > 0 {
			sectors = strings.Join(profile.Sectors, ", ")
		}
		if profile.RiskProfile != "" {
			risk = profile.RiskProfile
		}
	}
	return fmt.Sprintf("%s 산업의 트렌드와 %s 투자 정보", sectors, risk)
}

// dedupeByTitle keeps candidates in similarity order, dropping repeats
// of the same normalized headline, until max items are collected.
func dedupeByTitle(candidates []*store.NewsArticle, max int) []*store.NewsArticle {
	seen := make(map[string]bool)
	var out []*store.NewsArticle
	for _, a := range candidates {
		key := DedupeKey(a.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
		if len(out) >= max {
			break
		}
	}
	return out
}

// balanceMarkets cuts the pool to the feed size. In balanced mode the
// feed targets 8 domestic and 7 international cards, topping up with
// the freshest leftovers when one side runs short.
func balanceMarkets(pool []*store.NewsArticle, balance bool) []*store.NewsArticle {
	if !balance {
		if len(pool) > feedSize {
			return pool[:feedSize]
		}
		return pool
	}

	var kr, intl []*store.NewsArticle
	for _, a := range pool {
		if a.Market == store.NewsMarketKorea {
			kr = append(kr, a)
		} else {
			intl = append(intl, a)
		}
	}

	final := make([]*store.NewsArticle, 0, feedSize)
	final = append(final, takeN(kr, feedKoreaShare)...)
	final = append(final, takeN(intl, feedIntlShare)...)

	if len(final) < feedSize {
		used := make(map[int64]bool, len(final))
		for _, a := range final {
			used[a.ID] = true
		}
		var rest []*store.NewsArticle
		for _, a := range pool {
			if !used[a.ID] {
				rest = append(rest, a)
			}
		}
		sort.SliceStable(rest, func(i, j int) bool {
			pi, pj := rest[i].PublishedAt, rest[j].PublishedAt
			if (pi == nil) != (pj == nil) {
				return pj == nil
			}
			if pi == nil {
				return false
			}
			return pi.After(*pj)
		})
		need := feedSize - len(final)
		final = append(final, takeN(rest, need)...)
	}

	if len(final) > feedSize {
		final = final[:feedSize]
	}
	return final
}

func takeN(items []*store.NewsArticle, n int) []*store.NewsArticle {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// profileKeywords builds the hashtag suggestions under the feed: the
// profile sectors, up to two holdings and the risk profile, at most
// four with a generic floor of two.
func profileKeywords(profile *store.UserProfile) []string {
	var raw []string
	if profile != nil {
		for _, s := range profile.Sectors {
			raw = append(raw, "#"+s)
		}
		for i, t := range profile.Portfolio {
			if i >= 2 {
				break
			}
			raw = append(raw, "#"+t)
		}
		if profile.RiskProfile != "" {
			raw = append(raw, "#"+profile.RiskProfile)
		}
	} else {
		raw = []string{"#경제", "#시장동향", "#투자"}
	}

	seen := make(map[string]bool)
	out := make([]string, 0, 4)
	for _, k := range raw {
		if k == "#" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		if len(out) >= 4 {
			break
		}
	}

	if len(out) < 2 {
		for _, k := range []string{"#경제", "#시장동향"} {
			if !seen[k] {
				out = append(out, k)
				seen[k] = true
			}
			if len(out) >= 2 {
				break
			}
		}
	}
	return out
}
