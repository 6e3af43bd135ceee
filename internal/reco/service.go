package reco

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/marketlens/marketlens/internal/store"
)

// ThemePickItem is one recommended theme and symbol pair.
type ThemePickItem struct {
	Theme  string `json:"theme"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ThemePicksResponse is the home-screen theme recommendation payload.
type ThemePicksResponse struct {
	Scope store.Market    `json:"scope"`
	Date  string          `json:"date"`
	Items []ThemePickItem `json:"items"`
}

// TrendKeywordItem is one of the day's trend keywords.
type TrendKeywordItem struct {
	Keyword string `json:"keyword"`
	Reason  string `json:"reason"`
}

// TrendKeywordsResponse is the home-screen trend keyword payload.
type TrendKeywordsResponse struct {
	Scope store.Market       `json:"scope"`
	Date  string             `json:"date"`
	Items []TrendKeywordItem `json:"items"`
}

// Service serves the stored daily recommendations. When today has no
// data yet it falls back to the scope's latest earlier date.
type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// ThemePicks returns up to limit picks for the scope.
func (s *Service) ThemePicks(ctx context.Context, scope store.Market, limit int) (*ThemePicksResponse, error) {
	scope = coerceThemeScope(scope)
	limit = clampPickLimit(limit)
	today := todayKST()

	date, err := s.store.ThemePickDate(ctx, scope, today)
	if err != nil {
		return nil, err
	}

	resp := &ThemePicksResponse{Scope: scope, Date: today.Format("2006-01-02"), Items: []ThemePickItem{}}
	if date.IsZero() {
		return resp, nil
	}

	picks, err := s.store.ListThemePicks(ctx, date, scope, limit)
	if err != nil {
		return nil, err
	}
	resp.Date = date.Format("2006-01-02")
	for _, p := range picks {
		resp.Items = append(resp.Items, ThemePickItem{
			Theme: p.Theme, Symbol: p.Symbol, Name: p.Name, Reason: p.Reason,
		})
	}
	return resp, nil
}

// TrendKeywords returns up to limit keywords for the scope. The ALL
// scope maps to KR, which is what the home screen shows by default.
func (s *Service) TrendKeywords(ctx context.Context, scope store.Market, limit int) (*TrendKeywordsResponse, error) {
	if scope != store.MarketKR && scope != store.MarketUS {
		scope = store.MarketKR
	}
	limit = clampPickLimit(limit)
	today := todayKST()

	date, err := s.store.TrendKeywordDate(ctx, scope, today)
	if err != nil {
		return nil, err
	}

	resp := &TrendKeywordsResponse{Scope: scope, Date: today.Format("2006-01-02"), Items: []TrendKeywordItem{}}
	if date.IsZero() {
		return resp, nil
	}

	keywords, err := s.store.ListTrendKeywords(ctx, date, scope, limit)
	if err != nil {
		return nil, err
	}
	resp.Date = date.Format("2006-01-02")
	for _, kw := range keywords {
		resp.Items = append(resp.Items, TrendKeywordItem{Keyword: kw.Keyword, Reason: kw.Reason})
	}
	return resp, nil
}

// ParseScope normalizes a query parameter into a scope, defaulting to ALL.
func ParseScope(raw string) store.Market {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "KR":
		return store.MarketKR
	case "US":
		return store.MarketUS
	default:
		return store.MarketAll
	}
}

// ParseLimit normalizes a query parameter into the 1..5 pick limit.
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultPickLimit
	}
	return clampPickLimit(n)
}

func coerceThemeScope(scope store.Market) store.Market {
	switch scope {
	case store.MarketKR, store.MarketUS, store.MarketAll:
		return scope
	default:
		return store.MarketAll
	}
}

func todayKST() time.Time {
	now := time.Now().In(kst)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
