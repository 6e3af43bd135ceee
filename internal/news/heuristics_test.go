package news

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"whitespace collapse", "  삼성전자   2분기  실적  발표  ", "삼성전자 2분기 실적 발표"},
		{"arrows and date stripped", "삼성전자 실적 ❯ 2026.08.28 10:30", "삼성전자 실적"},
		{"separator trim", "| 코스피 급등 마감 ·", "코스피 급등 마감"},
		{"newlines", "한줄\n두줄\t세줄", "한줄 두줄 세줄"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanTitle(tt.in))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "삼성전자 실적 발표", NormalizeTitle("1. 삼성전자 실적 발표"))
	assert.Equal(t, "코스피 마감", NormalizeTitle("12  코스피 마감"))
}

func TestDedupeKey(t *testing.T) {
	long := strings.Repeat("가", 120)
	key := DedupeKey(long)
	assert.Len(t, []rune(key), 80)

	// Same article listed with and without a rank number.
	assert.Equal(t, DedupeKey("3. 환율 1400원 돌파"), DedupeKey("환율 1400원 돌파"))
}

func TestLooksLikeMenuTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"경제", true},
		{"더보기", true},
		{"짧은제목", true},
		{"국내·해외", true},
		{"삼성전자, 2분기 영업이익 10조원 돌파", false},
		{"", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeMenuTitle(tt.title), tt.title)
	}
}

func TestLooksLikeArticleURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://finance.naver.com/news/news_read.naver", true},
		{"https://www.hankyung.com/article/2026083012345", true},
		{"https://news.einfomax.co.kr/news/articleView.html", true},
		{"https://biz.example.com/2026/08/28/markets-rally", true},
		{"https://www.mk.co.kr/news/economy/", false},
		{"https://example.com/photo/123", false},
		{"https://example.com/news/", false},
		{"https://example.com/login/", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeArticleURL(tt.url), tt.url)
	}
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://a.com/x?id=1", NormalizeURL("https://a.com/x?id=1#frag"))
	assert.Equal(t, "https://a.com/x", NormalizeURLNoQuery("https://a.com/x?id=1#frag"))
	assert.Equal(t, "", NormalizeURL("  "))
}

func TestLooksLikeBadImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/photos/a.jpg", false},
		{"https://cdn.example.com/img/default.jpg", true},
		{"https://cdn.example.com/1x1.gif", true},
		{"https://example.com/page.html", true},
		{"//cdn.example.com/a.jpg", true},
		{"", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeBadImageURL(tt.url), tt.url)
	}
}

func TestUsableHref(t *testing.T) {
	assert.True(t, usableHref("/news/view/123"))
	assert.False(t, usableHref("#"))
	assert.False(t, usableHref("javascript:void(0)"))
	assert.False(t, usableHref("mailto:desk@example.com"))
	assert.False(t, usableHref(""))
}
