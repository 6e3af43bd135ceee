package news

import (
	"net/url"
	"regexp"
	"strings"
)

// Link and title heuristics used to tell articles apart from menus,
// section hubs and navigation chrome on the crawled portals.

var (
	reArticleDate    = regexp.MustCompile(`/20\d{2}/\d{2}/\d{2}/`)
	reArticleHTMLDir = regexp.MustCompile(`/site/data/html_dir/`)

	articleLikelyRes = []*regexp.Regexp{
		reArticleDate,
		reArticleHTMLDir,
		regexp.MustCompile(`/article/`),
		regexp.MustCompile(`/news/view`),
		regexp.MustCompile(`/news/read`),
		regexp.MustCompile(`/news_read\b`),
		regexp.MustCompile(`/news/articleView\.html`),
		regexp.MustCompile(`/view\.php`),
		regexp.MustCompile(`/view/`),
		regexp.MustCompile(`/mtview\.php`),
		regexp.MustCompile(`/NewsView/`),
		regexp.MustCompile(`/news/article/`),
	}

	nonArticleRes = []*regexp.Regexp{
		regexp.MustCompile(`/(search|login|member|subscription|subscribe|mypage)(/|$)`),
		regexp.MustCompile(`/(photo|video|vod|podcast|gallery)(/|$)`),
		regexp.MustCompile(`/(section|category|categories|tag|tags|topic|topics)(/|$)`),
		regexp.MustCompile(`/(company|about|notice|event|press|policy)(/|$)`),
		regexp.MustCompile(`/news/?$`),
		regexp.MustCompile(`/news/section`),
		regexp.MustCompile(`/NewsList/`),
		regexp.MustCompile(`/(Stock|stock|economy|industry|it|weeklybiz)/?$`),
		regexp.MustCompile(`/(lists|list)\b`),
	}

	menuTitleKeywords = []string{
		"바로가기", "공지", "알림", "더보기", "전체보기", "전체", "검색", "로그인",
		"구독", "멤버십", "회원", "메뉴", "섹션", "카테고리", "라이브", "영상",
		"포토", "사진", "갤러리", "기획", "칼럼", "사설", "오피니언", "기자의",
		"특파원", "전문가", "시각", "방송", "미디어",
	}

	reMenuTitleShort  = regexp.MustCompile(`^(국내|해외|경제|산업|증권|정치|사회|국제|문화|스포츠|연예|IT|테크)$`)
	reTitleOnlyPipes  = regexp.MustCompile(`^[\s|\-–—·•]+$`)
	reTitleArrows     = regexp.MustCompile(`[❯›»>]+`)
	reTitleDateTime   = regexp.MustCompile(`(20\d{2}[-./]\d{2}[-./]\d{2})(\s+\d{2}:\d{2})?`)
	reTitleLeadDigits = regexp.MustCompile(`^[\d.\s]+`)
	reMultiSpace      = regexp.MustCompile(`\s+`)

	badImagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`placeholder`),
		regexp.MustCompile(`default`),
		regexp.MustCompile(`no[-_ ]?image`),
		regexp.MustCompile(`no[-_ ]?photo`),
		regexp.MustCompile(`image[-_ ]?not[-_ ]?available`),
		regexp.MustCompile(`not[-_ ]?found`),
		regexp.MustCompile(`spacer`),
		regexp.MustCompile(`sprite`),
		regexp.MustCompile(`blank`),
		regexp.MustCompile(`transparent`),
		regexp.MustCompile(`1x1`),
		regexp.MustCompile(`pixel`),
		regexp.MustCompile(`favicon`),
	}

	badImagePathExts = []string{".html", ".htm", ".php", ".aspx", ".jsp"}

	badHrefPrefixes = []string{"javascript:", "mailto:", "tel:"}
)

// NormalizeURL strips the fragment but keeps the query; some outlets
// identify the article by a view parameter.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	parsed.Fragment = ""
	return parsed.String()
}

// NormalizeURLNoQuery strips both query and fragment for the canonical
// stored form.
func NormalizeURLNoQuery(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// CleanTitle collapses whitespace and strips arrows, trailing dates and
// separator runs from a scraped headline.
func CleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return ""
	}
	t = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(t)
	t = reMultiSpace.ReplaceAllString(t, " ")
	t = reTitleArrows.ReplaceAllString(t, "")
	t = reTitleDateTime.ReplaceAllString(t, "")
	t = strings.Trim(t, " |·•-–—>›»❯")
	t = reMultiSpace.ReplaceAllString(strings.TrimSpace(t), " ")
	if len(t) > 500 {
		t = t[:500]
	}
	return t
}

// NormalizeTitle drops a leading list number before cleaning.
func NormalizeTitle(raw string) string {
	return CleanTitle(reTitleLeadDigits.ReplaceAllString(raw, ""))
}

// DedupeKey reduces a headline to a key for duplicate detection. The cap
// is in runes so multibyte titles are not cut mid-character.
func DedupeKey(title string) string {
	t := NormalizeTitle(title)
	r := []rune(t)
	if len(r) > 80 {
		r = r[:80]
	}
	return string(r)
}

// LooksLikeMenuTitle reports whether a headline is navigation chrome
// rather than an article title.
func LooksLikeMenuTitle(title string) bool {
	t := strings.TrimSpace(title)
	if t == "" {
		return true
	}
	if reMenuTitleShort.MatchString(t) {
		return true
	}
	if len([]rune(t)) < 8 {
		return true
	}
	if reTitleOnlyPipes.MatchString(t) {
		return true
	}

	low := strings.ToLower(t)
	for _, kw := range menuTitleKeywords {
		if strings.Contains(low, strings.ToLower(kw)) {
			return true
		}
	}

	if strings.Contains(t, "·") && len([]rune(t)) <= 16 {
		return true
	}
	return false
}

// LooksLikeArticleURL applies the negative list first, then the positive
// article-path patterns.
func LooksLikeArticleURL(raw string) bool {
	u := strings.TrimSpace(raw)
	if u == "" {
		return false
	}

	for _, rx := range nonArticleRes {
		if rx.MatchString(u) {
			return false
		}
	}
	for _, rx := range articleLikelyRes {
		if rx.MatchString(u) {
			return true
		}
	}
	return false
}

// LooksLikeBadImageURL rejects non-http URLs, page-like extensions and
// obvious placeholder assets.
func LooksLikeBadImageURL(raw string) bool {
	u := strings.TrimSpace(raw)
	if u == "" {
		return true
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return true
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return true
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range badImagePathExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	low := strings.ToLower(u)
	for _, rx := range badImagePatterns {
		if rx.MatchString(low) {
			return true
		}
	}
	return false
}

// usableHref rejects empty, fragment-only and non-navigational hrefs.
func usableHref(href string) bool {
	h := strings.TrimSpace(href)
	if h == "" || h == "#" {
		return false
	}
	low := strings.ToLower(h)
	for _, p := range badHrefPrefixes {
		if strings.HasPrefix(low, p) {
			return false
		}
	}
	return true
}
