package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketlens/marketlens/internal/store"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "   ", want: "새 대화"},
		{name: "collapses whitespace", in: "  삼성전자\n 실적   어때  ", want: "삼성전자 실적 어때"},
		{name: "short kept as is", in: "오늘 시장 요약", want: "오늘 시장 요약"},
		{
			name: "exactly at limit kept",
			in:   strings.Repeat("가", 28),
			want: strings.Repeat("가", 28),
		},
		{
			name: "long gets ellipsis",
			in:   strings.Repeat("가", 40),
			want: strings.Repeat("가", 27) + "…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveTitle(tt.in))
		})
	}
}

func TestWantsRecommendation(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"오늘 추천 종목 알려줘", true},
		{"Top Pick 하나만", true},
		{"지금 매수해도 될까요", true},
		{"담을 만한 ETF 있어?", true},
		{"삼성전자 실적 어땠어", false},
		{"금리가 주가에 미치는 영향", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, wantsRecommendation(tt.in), tt.in)
	}
}

func TestLevelInstruction_Clamps(t *testing.T) {
	assert.Contains(t, levelInstruction(0), "Level 1")
	assert.Contains(t, levelInstruction(3), "Level 3")
	assert.Contains(t, levelInstruction(99), "Level 5")
}

func TestRecommendationPolicy(t *testing.T) {
	assert.Contains(t, recommendationPolicy(1), "종목 2~3개")
	assert.Contains(t, recommendationPolicy(3), "[추천] 먼저")
	assert.Contains(t, recommendationPolicy(4), "Risk/Invalidation")
	assert.Contains(t, recommendationPolicy(5), "Picks/Thesis/Triggers")
}

func TestRiskTexts(t *testing.T) {
	assert.Contains(t, riskProfileText("A"), "공격형")
	assert.Contains(t, riskProfileText("C"), "안정형")
	assert.Equal(t, "미지정", riskProfileText(""))
	assert.Equal(t, "미지정", riskProfileText("X"))

	assert.Contains(t, riskOverlay("A"), "공격형")
	assert.Contains(t, riskOverlay("C"), "안정형")
	assert.Contains(t, riskOverlay("B"), "중립형")
}

func TestBuildSystemPrompt_SkipsEmptyParts(t *testing.T) {
	got := buildSystemPrompt("base", "", "  ", "overlay")
	assert.Equal(t, "base\n\noverlay", got)

	assert.Equal(t, "", buildSystemPrompt("", "   "))
}

func TestProfileContext(t *testing.T) {
	full := profileContext(&store.UserProfile{
		AssetType:      "주식",
		Sectors:        []string{"반도체", "2차전지"},
		Portfolio:      []string{"삼성전자"},
		RiskProfile:    "A",
		KnowledgeLevel: 4,
	})
	assert.Contains(t, full, "[User Profile]")
	assert.Contains(t, full, "- Asset Type: 주식")
	assert.Contains(t, full, "- Interested Sectors: 반도체, 2차전지")
	assert.Contains(t, full, "공격형")
	assert.Contains(t, full, "- Knowledge Level: Level 4")
	assert.Contains(t, full, "- Portfolio: 삼성전자")
	assert.Contains(t, full, "[Portfolio Rule]")

	empty := profileContext(&store.UserProfile{})
	assert.Contains(t, empty, "- Asset Type: 미지정")
	assert.Contains(t, empty, "- Interested Sectors: None")
	assert.Contains(t, empty, "- Portfolio: Empty")
	assert.Contains(t, empty, "미지정")
}

func TestRenderUserPrompt(t *testing.T) {
	assert.Equal(t, "질문: 삼성전자?", renderUserPrompt("질문: {message}", "삼성전자?"))
	// A template without the placeholder must not swallow the message.
	assert.Equal(t, "삼성전자?", renderUserPrompt("고정 프롬프트", "삼성전자?"))
	assert.Equal(t, "삼성전자?", renderUserPrompt("{message}", "삼성전자?"))
}
