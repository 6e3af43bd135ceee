package reco

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

// DefaultPickLimit is how many theme picks each scope gets per refresh.
const DefaultPickLimit = 3

var themeScopes = []store.Market{store.MarketAll, store.MarketKR, store.MarketUS}

const themeSystemPrompt = `너는 주식 테마 기반 종목 추천 엔진이다.
반드시 아래 JSON만 출력해라. 다른 텍스트/설명/마크다운/코드블록 금지.

출력 스키마:
{
  "items": [
    { "theme": string, "symbol": string, "name": string, "reason": string }
  ]
}

규칙:
- items 길이는 요청된 limit과 동일 (기본 3)
- reason은 1~2문장, 과장/수익보장 금지, 리스크 1개 포함
- KR이면 한국 종목(티커 또는 종목코드), US이면 미국 티커`

// ThemeRefresher regenerates the daily theme and symbol picks for each
// scope, overwriting the day's previous set.
type ThemeRefresher struct {
	store  *store.Store
	gen    llm.Generator
	logger *slog.Logger
}

func NewThemeRefresher(st *store.Store, gen llm.Generator, logger *slog.Logger) *ThemeRefresher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ThemeRefresher{store: st, gen: gen, logger: logger}
}

// Refresh regenerates every scope's picks for today (KST).
func (r *ThemeRefresher) Refresh(ctx context.Context, limit int) error {
	limit = clampPickLimit(limit)
	now := time.Now().In(kst)
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, scope := range themeScopes {
		if err := r.RefreshScope(ctx, scope, date, limit); err != nil {
			return fmt.Errorf("theme refresh failed for %s: %w", scope, err)
		}
	}
	return nil
}

// RefreshScope regenerates one scope's picks for the given date.
func (r *ThemeRefresher) RefreshScope(ctx context.Context, scope store.Market, date time.Time, limit int) error {
	limit = clampPickLimit(limit)

	raw, err := r.gen.GenerateJSON(ctx, themeSystemPrompt, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: buildThemePrompt(scope, limit)},
	})
	if err != nil {
		return fmt.Errorf("theme pick generation failed: %w", err)
	}

	picks := parseThemePicks(raw, limit)
	if err := r.store.ReplaceThemePicks(ctx, date, scope, picks); err != nil {
		return err
	}
	r.logger.Info("theme picks refreshed", "scope", scope, "date", date.Format("2006-01-02"), "saved", len(picks))
	return nil
}

func buildThemePrompt(scope store.Market, limit int) string {
	market := "국내(KR)와 해외(US) 혼합"
	switch scope {
	case store.MarketKR:
		market = "국내(KR)"
	case store.MarketUS:
		market = "해외(US)"
	}
	return fmt.Sprintf(
		"오늘 기준으로 %s에서 시장에서 자주 언급되는 테마 1~3개를 선정하고,\n각 테마에서 대표 종목을 %d개 추천해라.",
		market, limit)
}

func parseThemePicks(raw string, limit int) []*store.ThemePick {
	obj, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return nil
	}
	var resp struct {
		Items []struct {
			Theme  string `json:"theme"`
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
			Reason string `json:"reason"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil
	}

	out := make([]*store.ThemePick, 0, limit)
	for _, it := range resp.Items {
		if len(out) >= limit {
			break
		}
		out = append(out, &store.ThemePick{
			Theme:  clip(strings.TrimSpace(it.Theme), 80),
			Symbol: clip(strings.TrimSpace(it.Symbol), 32),
			Name:   clip(strings.TrimSpace(it.Name), 128),
			Reason: clip(strings.TrimSpace(it.Reason), 2000),
		})
	}
	return out
}

func clampPickLimit(limit int) int {
	if limit < 1 {
		return DefaultPickLimit
	}
	if limit > 5 {
		return 5
	}
	return limit
}
