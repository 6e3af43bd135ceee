package reco

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

const (
	defaultAnalyzeLimit = 2000
	maxAnalyzeLimit     = 10000
	analyzeInputChars   = 6000
)

const trendAnalyzeSystem = "너는 JSON만 출력한다. 다른 텍스트/마크다운 금지."

// TrendAnalyzer produces the five-level reading of a trend article. The
// full LLM output lands on the news row, and the per-level merges land
// as analysis rows, mirroring the news article pipeline but without a
// theme classification.
type TrendAnalyzer struct {
	store  *store.Store
	gen    llm.Generator
	logger *slog.Logger
}

func NewTrendAnalyzer(st *store.Store, gen llm.Generator, logger *slog.Logger) *TrendAnalyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TrendAnalyzer{store: st, gen: gen, logger: logger}
}

// Analyze runs one trend article through the LLM and stores the result.
func (a *TrendAnalyzer) Analyze(ctx context.Context, tn *store.TrendNews) error {
	content := strings.TrimSpace(tn.Content)
	if content == "" {
		content = strings.TrimSpace(tn.Summary)
	}
	if content == "" {
		return fmt.Errorf("trend article %d has no analyzable text", tn.ID)
	}
	content = clip(content, analyzeInputChars)

	raw, err := a.gen.GenerateJSON(ctx, trendAnalyzeSystem, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: buildTrendAnalysisPrompt(tn.Title, content)},
	})
	if err != nil {
		return fmt.Errorf("trend analysis generation failed: %w", err)
	}

	obj, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return fmt.Errorf("no JSON object in trend analysis output")
	}
	var full map[string]any
	if err := json.Unmarshal([]byte(obj), &full); err != nil {
		return fmt.Errorf("failed to decode trend analysis: %w", err)
	}
	normalizeFullAnalysis(full)

	fullJSON, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("failed to encode trend analysis: %w", err)
	}
	if err := a.store.MarkTrendNewsAnalyzed(ctx, tn.ID, fullJSON, tn.NeedsImageGen); err != nil {
		return err
	}

	for level := 1; level <= 5; level++ {
		payload, err := json.Marshal(mergeLevelPayload(full, fmt.Sprintf("lv%d", level)))
		if err != nil {
			return fmt.Errorf("failed to encode level %d payload: %w", level, err)
		}
		if err := a.store.UpsertTrendNewsAnalysis(ctx, &store.TrendNewsAnalysis{
			NewsID:   tn.ID,
			Level:    level,
			Analysis: payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AnalyzePending sweeps trend articles that have no analysis yet. A
// limit of zero means the default batch.
func (a *TrendAnalyzer) AnalyzePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultAnalyzeLimit
	}
	if limit > maxAnalyzeLimit {
		limit = maxAnalyzeLimit
	}

	pending, err := a.store.ListUnanalyzedTrendNews(ctx, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, tn := range pending {
		if err := a.Analyze(ctx, tn); err != nil {
			if ctx.Err() != nil {
				return done, err
			}
			a.logger.Warn("trend analysis failed", "news_id", tn.ID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}

// normalizeFullAnalysis repairs the shape of the LLM output in place so
// the stored JSON is always safe to render: string reasoning, list
// keywords and vocabulary, clamped score, and all five level keys.
func normalizeFullAnalysis(full map[string]any) {
	if _, ok := full["deep_analysis_reasoning"].(string); !ok {
		full["deep_analysis_reasoning"] = ""
	}
	if _, ok := full["keywords"].([]any); !ok {
		full["keywords"] = []any{}
	}
	if _, ok := full["vocabulary"].([]any); !ok {
		full["vocabulary"] = []any{}
	}

	switch n := full["sentiment_score"].(type) {
	case float64:
		full["sentiment_score"] = llm.ClampScore(int(n))
	case nil:
	default:
		full["sentiment_score"] = nil
	}

	levels, ok := full["level_content"].(map[string]any)
	if !ok {
		levels = map[string]any{}
		full["level_content"] = levels
	}
	for _, key := range []string{"lv1", "lv2", "lv3", "lv4", "lv5"} {
		if _, ok := levels[key].(map[string]any); !ok {
			levels[key] = map[string]any{}
		}
	}
}

// mergeLevelPayload combines the shared metadata with one level's
// content block.
func mergeLevelPayload(full map[string]any, levelKey string) map[string]any {
	payload := map[string]any{
		"deep_analysis_reasoning": full["deep_analysis_reasoning"],
		"keywords":                full["keywords"],
		"sentiment_score":         full["sentiment_score"],
		"vocabulary":              full["vocabulary"],
	}
	if levels, ok := full["level_content"].(map[string]any); ok {
		if content, ok := levels[levelKey].(map[string]any); ok {
			for k, v := range content {
				payload[k] = v
			}
		}
	}
	return payload
}

func buildTrendAnalysisPrompt(title, content string) string {
	var b strings.Builder
	b.WriteString("다음 뉴스 기사를 심층 분석하여 아래 형식의 JSON으로만 응답해줘.\n")
	b.WriteString("다른 말은 덧붙이지 말고 반드시 JSON 데이터만 출력해. (마크다운/코드블록 금지)\n\n")
	b.WriteString("[기사 정보]\n제목: ")
	b.WriteString(title)
	b.WriteString("\n내용: ")
	b.WriteString(content)
	b.WriteString("\n\n[응답 형식 (JSON)]\n")
	b.WriteString(`{
  "deep_analysis_reasoning": "뉴스 분석을 위한 심층적인 사고 과정. 먼저 팩트를 나열하고 거시경제(금리, 환율)와 해당 산업 밸류체인에 미칠 영향을 논리적으로 추론.",
  "keywords": ["핵심키워드1", "핵심키워드2", "핵심키워드3"],
  "sentiment_score": 75,
  "vocabulary": [{"term": "기사에_나온_어려운_용어", "definition": "해당 용어에 대한 초보자용 해설"}],
  "level_content": {
    "lv1": {"summary": "주린이용: 아주 쉽고 친절한 말투, 전문 용어 금지",
      "bullet_points": [], "what_is_this": [], "why_important": [],
      "stock_impact": {"positives": [], "warnings": []},
      "strategy_guide": {"short_term": "...", "long_term": "..."}, "action_guide": "..."},
    "lv2": {"summary": "초보자용: 현상과 원인을 인과관계 중심으로"},
    "lv3": {"summary": "중급자용: 산업 트렌드와 포트폴리오 관점"},
    "lv4": {"summary": "숙련자용: 밸류에이션과 정량 지표 중심"},
    "lv5": {"summary": "전문가용: 펀드매니저 레벨, 매크로/컨센서스/리스크 프리미엄"}
  }
}`)
	b.WriteString("\n\n[작성 지침]\n")
	b.WriteString("1) deep_analysis_reasoning을 가장 먼저 작성.\n")
	b.WriteString("2) lv1~lv5는 lv1과 같은 구조로, 관점과 깊이를 확실히 다르게.\n")
	b.WriteString("3) sentiment_score는 0~100 정수.\n")
	return b.String()
}
