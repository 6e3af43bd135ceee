package chat

import (
	"fmt"
	"strings"

	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

// fallbackGuardrails is the domain system prompt used when no template
// is configured.
const fallbackGuardrails = `당신은 금융/주식 도메인의 응답을 생성하는 어시스턴트다.

공통 규칙:
- 수익 보장/확실/무조건 같은 단정적 수익 약속 금지.
- 근거 없는 루머/미확인 사실 단정 금지. 사실/추정/의견을 구분.
- 장점만 나열하지 말고 리스크(하락 요인) 1~2개를 반드시 포함.
- 에둘러 말하지 말 것. 질문이 "추천"이면 종목을 직접 제시할 것.`

// levelInstruction tailors tone and answer shape to the user's
// knowledge level.
func levelInstruction(level int) string {
	switch llm.ClampLevel(level) {
	case 1:
		return `[System Instruction - Level 1 (주린이/입문자)]
- 친절한 해요체, 쉬운 비유.
- 결론 먼저.
- 마지막 문장은 행동지침 1줄.`
	case 2:
		return `[System Instruction - Level 2 (초보자/기초)]
- 편안한 해요체.
- 결론 먼저, 3~5 불릿.`
	case 3:
		return `[System Instruction - Level 3 (일반/중급)]
- 합쇼체, 팩트 중심.
- [추천] 먼저, [근거], [체크포인트/리스크]`
	case 4:
		return `[System Instruction - Level 4 (숙련자)]
- 하십시오체.
- Summary / Picks / Rationale / Risk`
	default:
		return `[System Instruction - Level 5 (전문가)]
- 개조식.
- Picks / Thesis / Triggers / Risk / Action`
	}
}

func riskProfileText(code string) string {
	switch code {
	case "A":
		return "공격형(고위험·고수익 선호, 성장/모멘텀 중심, 손절/변동성 관리 중요)"
	case "B":
		return "중립형(시장수익률 지향, 분산/우량/ETF 중심)"
	case "C":
		return "안정형(원금보존/변동성 최소화, 배당/방어 중심)"
	default:
		return "미지정"
	}
}

func riskOverlay(code string) string {
	switch code {
	case "A":
		return "[Risk Overlay - 공격형] 성장/모멘텀 관점. 수익보장 금지."
	case "C":
		return "[Risk Overlay - 안정형] 방어/현금흐름 관점. 수익보장 금지."
	default:
		return "[Risk Overlay - 중립형] 분산/균형 관점. 수익보장 금지."
	}
}

var recommendationKeywords = []string{
	"추천", "추천주", "종목 추천", "오늘 추천", "오늘의 추천",
	"top pick", "pick", "매수", "사볼", "담을",
}

// wantsRecommendation reports whether the message asks for stock picks.
func wantsRecommendation(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, k := range recommendationKeywords {
		if strings.Contains(m, k) {
			return true
		}
	}
	return false
}

func recommendationPolicy(level int) string {
	switch lv := llm.ClampLevel(level); {
	case lv <= 2:
		return "[Recommendation Policy] 추천이면 종목 2~3개 먼저 + 이유/체크포인트 + 리스크 1줄."
	case lv == 3:
		return "[Recommendation Policy] [추천] 먼저, 종목별 근거/체크포인트/리스크 포함."
	case lv == 4:
		return "[Recommendation Policy] Picks 먼저, Rationale, Risk/Invalidation."
	default:
		return "[Recommendation Policy] Picks/Thesis/Triggers/Risk/Action."
	}
}

// profileContext renders the user's onboarding profile as a prompt
// block the model can personalize against.
func profileContext(p *store.UserProfile) string {
	assetType := strings.TrimSpace(p.AssetType)
	if assetType == "" {
		assetType = "미지정"
	}
	sectors := "None"
	if len(p.Sectors) > 0 {
		sectors = strings.Join(p.Sectors, ", ")
	}
	portfolio := "Empty"
	if len(p.Portfolio) > 0 {
		portfolio = strings.Join(p.Portfolio, ", ")
	}

	var b strings.Builder
	b.WriteString("[User Profile]\n")
	fmt.Fprintf(&b, "- Asset Type: %s\n", assetType)
	fmt.Fprintf(&b, "- Interested Sectors: %s\n", sectors)
	fmt.Fprintf(&b, "- Risk Profile: %s\n", riskProfileText(p.RiskProfile))
	fmt.Fprintf(&b, "- Knowledge Level: Level %d\n", llm.ClampLevel(p.KnowledgeLevel))
	fmt.Fprintf(&b, "- Portfolio: %s\n", portfolio)
	b.WriteString("\n[Portfolio Rule]\n")
	b.WriteString("- 포트폴리오가 있으면 최소 1개는 연결 언급 + 체크포인트(실적/이슈/수급) 1~2개.")
	return b.String()
}

// buildSystemPrompt joins the non-empty prompt blocks in their fixed
// order: base guardrails, level instruction, risk overlay,
// recommendation policy, user context.
func buildSystemPrompt(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, "\n\n")
}

// renderUserPrompt substitutes the message into the template's user
// prompt. A template without the placeholder falls back to the raw
// message so the question is never dropped.
func renderUserPrompt(tmpl, message string) string {
	if !strings.Contains(tmpl, "{message}") {
		return message
	}
	return strings.ReplaceAll(tmpl, "{message}", message)
}
