package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

const analyzeSystemPrompt = "당신은 월스트리트의 수석 애널리스트이자 친절한 금융 교육자입니다. " +
	"독자의 수준(Lv1~Lv5)에 맞춰 완전히 다른 톤앤매너로 정보를 전달하세요. JSON만 출력하세요."

var themeChoices = []store.Theme{
	store.ThemeSemiconductorAI,
	store.ThemeBattery,
	store.ThemeGreenEnergy,
	store.ThemeFinanceHolding,
	store.ThemeICTPlatform,
	store.ThemeBioHealth,
	store.ThemeAuto,
	store.ThemeETC,
}

// levelKeys maps the stored analysis level to its key in the LLM output.
var levelKeys = map[int]string{1: "lv1", 2: "lv2", 3: "lv3", 4: "lv4", 5: "lv5"}

// Analyzer produces per-level article analyses with the LLM and stores
// them alongside the classified theme.
type Analyzer struct {
	store  *store.Store
	gen    llm.Generator
	logger *slog.Logger
}

// NewAnalyzer wires the LLM to the analysis tables.
func NewAnalyzer(st *store.Store, gen llm.Generator, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{store: st, gen: gen, logger: logger}
}

// Analyze runs the full five-level analysis for one article: a single
// LLM call whose output carries the theme, shared metadata and one
// content block per level. The theme lands on the article row and each
// level lands as its own analysis row.
func (a *Analyzer) Analyze(ctx context.Context, article *store.NewsArticle) error {
	content := strings.TrimSpace(article.Content)
	if content == "" {
		content = strings.TrimSpace(article.Summary)
	}
	if content == "" {
		return fmt.Errorf("article %d has no analyzable text", article.ID)
	}

	raw, err := a.gen.GenerateJSON(ctx, analyzeSystemPrompt, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: buildAnalysisPrompt(article.Title, content)},
	})
	if err != nil {
		return fmt.Errorf("analysis generation failed: %w", err)
	}

	full, err := decodeAnalysis(raw)
	if err != nil {
		return err
	}

	theme := store.CoerceTheme(asString(full["theme"]))
	if err := a.store.UpdateArticleTheme(ctx, article.ID, theme); err != nil {
		return err
	}

	for level := 1; level <= 5; level++ {
		payload, err := json.Marshal(buildLevelPayload(full, theme, levelKeys[level]))
		if err != nil {
			return fmt.Errorf("failed to encode level %d payload: %w", level, err)
		}
		if err := a.store.UpsertAnalysis(ctx, &store.NewsAnalysis{
			ArticleID: article.ID,
			Level:     level,
			Theme:     theme,
			Analysis:  payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AnalyzeJob is the single-level variant used by the queue worker for
// international articles: one mid-depth analysis stored at level 3,
// plus the theme on the article row.
func (a *Analyzer) AnalyzeJob(ctx context.Context, job *ClassifyJob) error {
	content := strings.TrimSpace(job.Content)
	if content == "" {
		content = strings.TrimSpace(job.Title)
	}
	if content == "" {
		return fmt.Errorf("job for article %d has no analyzable text", job.ArticleID)
	}

	raw, err := a.gen.GenerateJSON(ctx, analyzeSystemPrompt, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: buildMainPrompt(job.Title, content)},
	})
	if err != nil {
		return fmt.Errorf("analysis generation failed: %w", err)
	}

	full, err := decodeAnalysis(raw)
	if err != nil {
		return err
	}

	theme := store.CoerceTheme(asString(full["theme"]))
	if err := a.store.UpdateArticleTheme(ctx, job.ArticleID, theme); err != nil {
		return err
	}

	payload, err := json.Marshal(buildMainPayload(full, theme))
	if err != nil {
		return fmt.Errorf("failed to encode analysis payload: %w", err)
	}
	return a.store.UpsertAnalysis(ctx, &store.NewsAnalysis{
		ArticleID: job.ArticleID,
		Level:     3,
		Theme:     theme,
		Analysis:  payload,
	})
}

// AnalyzeBacklog sweeps stored articles that have no analysis rows yet,
// up to limit. Failures are logged per article so one bad article does
// not wedge the sweep.
func (a *Analyzer) AnalyzeBacklog(ctx context.Context, limit int) (int, error) {
	articles, err := a.store.ListUnanalyzedArticles(ctx, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, article := range articles {
		if err := a.Analyze(ctx, article); err != nil {
			if ctx.Err() != nil {
				return done, err
			}
			a.logger.Warn("backlog analysis failed", "article_id", article.ID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}

func buildAnalysisPrompt(title, content string) string {
	var b strings.Builder
	b.WriteString("다음 뉴스 기사를 심층 분석하여 JSON으로만 응답해줘.\n\n")
	b.WriteString("[기사 정보]\n제목: ")
	b.WriteString(title)
	b.WriteString("\n내용: ")
	b.WriteString(content)
	b.WriteString("\n\n[Theme 분류]\n다음 중 하나를 \"theme\" 필드에 넣어줘: ")
	b.WriteString(themeChoiceList())
	b.WriteString("\n- 반도체/AI/칩/파운드리/HBM/GPU/데이터센터/LLM 인프라 중심이면 SEMICONDUCTOR_AI\n")
	b.WriteString("- 배터리/리튬/양극재/전해질/2차전지 밸류체인이면 BATTERY\n")
	b.WriteString("- 재생에너지/탄소중립/수소/태양광/풍력/정책이면 GREEN_ENERGY\n")
	b.WriteString("- 은행/증권/보험/금융지주/금리/대출/예대마진이면 FINANCE_HOLDING\n")
	b.WriteString("- 플랫폼/클라우드/SaaS/인터넷/ICT 서비스면 ICT_PLATFORM\n")
	b.WriteString("- 바이오/제약/헬스케어/임상/FDA면 BIO_HEALTH\n")
	b.WriteString("- 자동차/부품/자율주행/모빌리티면 AUTO\n")
	b.WriteString("- 그 외는 ETC\n\n")
	b.WriteString("[응답 형식]\n")
	b.WriteString(`{
  "theme": "ETC",
  "deep_analysis_reasoning": "팩트를 나열하고 거시경제와 산업 밸류체인에 미칠 영향을 추론한 사고 과정",
  "keywords": ["핵심키워드1", "핵심키워드2", "핵심키워드3"],
  "sentiment_score": 50,
  "vocabulary": [{"term": "어려운 용어", "definition": "초보자용 해설"}],
  "level_content": {
    "lv1": {"summary": "...", "bullet_points": [], "what_is_this": [], "why_important": [],
      "stock_impact": {"positives": [], "warnings": []},
      "strategy_guide": {"short_term": "...", "long_term": "..."}, "action_guide": "..."},
    "lv2": {}, "lv3": {}, "lv4": {}, "lv5": {}
  }
}`)
	b.WriteString("\n\n[작성 지침]\n")
	b.WriteString("1. deep_analysis_reasoning을 가장 먼저 작성할 것.\n")
	b.WriteString("2. lv1~lv5는 lv1과 같은 구조로, 레벨별 어조와 깊이를 명확히 차별화할 것. Lv1은 아주 쉽고 친절하게, Lv5는 펀드매니저 수준으로 전문적이고 냉철하게.\n")
	b.WriteString("3. sentiment_score는 0(매우 부정)~100(매우 긍정) 사이의 정수.\n")
	return b.String()
}

func buildMainPrompt(title, content string) string {
	var b strings.Builder
	b.WriteString("다음 뉴스 기사를 분석하여 JSON으로만 응답해줘.\n\n")
	b.WriteString("[기사 정보]\n제목: ")
	b.WriteString(title)
	b.WriteString("\n내용: ")
	b.WriteString(content)
	b.WriteString("\n\n[Theme 분류]\n다음 중 하나를 \"theme\" 필드에 넣어줘: ")
	b.WriteString(themeChoiceList())
	b.WriteString("\n\n[응답 형식]\n")
	b.WriteString(`{
  "theme": "ETC",
  "deep_analysis_reasoning": "...",
  "keywords": ["키워드1", "키워드2", "키워드3"],
  "sentiment_score": 50,
  "vocabulary": [{"term": "...", "definition": "..."}],
  "analysis": {"summary": "중급 투자자 관점의 분석", "bullet_points": [], "what_is_this": [],
    "why_important": [], "stock_impact": {"positives": [], "warnings": []},
    "strategy_guide": {"short_term": "...", "long_term": "..."}, "action_guide": "..."}
}`)
	b.WriteString("\n\nsentiment_score는 0~100 사이의 정수.\n")
	return b.String()
}

func themeChoiceList() string {
	names := make([]string, len(themeChoices))
	for i, t := range themeChoices {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func decodeAnalysis(raw string) (map[string]any, error) {
	obj, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in analysis output")
	}
	var full map[string]any
	if err := json.Unmarshal([]byte(obj), &full); err != nil {
		return nil, fmt.Errorf("failed to decode analysis output: %w", err)
	}
	return full, nil
}

// buildLevelPayload merges the shared metadata with one level's content
// block into the row payload for that level.
func buildLevelPayload(full map[string]any, theme store.Theme, levelKey string) map[string]any {
	payload := map[string]any{
		"deep_analysis_reasoning": asString(full["deep_analysis_reasoning"]),
		"theme":                   string(theme),
		"keywords":                coerceStrings(full["keywords"]),
		"sentiment_score":         coerceScore(full["sentiment_score"]),
		"vocabulary":              coerceVocabulary(full["vocabulary"]),
	}

	levels, _ := full["level_content"].(map[string]any)
	if content, ok := levels[levelKey].(map[string]any); ok {
		for k, v := range content {
			payload[k] = v
		}
	}
	return payload
}

// buildMainPayload normalizes the single-level output into the same row
// shape the five-level path produces.
func buildMainPayload(full map[string]any, theme store.Theme) map[string]any {
	payload := map[string]any{
		"deep_analysis_reasoning": asString(full["deep_analysis_reasoning"]),
		"theme":                   string(theme),
		"keywords":                coerceStrings(full["keywords"]),
		"sentiment_score":         coerceScore(full["sentiment_score"]),
		"vocabulary":              coerceVocabulary(full["vocabulary"]),
	}
	if content, ok := full["analysis"].(map[string]any); ok {
		for k, v := range content {
			payload[k] = v
		}
	}
	return payload
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// coerceStrings accepts either a JSON array or a comma-separated string.
func coerceStrings(v any) []string {
	switch vals := v.(type) {
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(vals, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func coerceScore(v any) int {
	switch n := v.(type) {
	case float64:
		return llm.ClampScore(int(n))
	case string:
		var x float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%f", &x); err == nil {
			return llm.ClampScore(int(x))
		}
	}
	return 50
}

func coerceVocabulary(v any) []map[string]string {
	items, ok := v.([]any)
	if !ok {
		return []map[string]string{}
	}
	out := make([]map[string]string, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		term := asString(entry["term"])
		def := asString(entry["definition"])
		if term != "" && def != "" {
			out = append(out, map[string]string{"term": term, "definition": def})
		}
	}
	return out
}
