// Package reco generates the daily trend keywords, collects and
// analyzes the news behind them, and refreshes the daily theme picks.
// The LLM proposes keywords and candidate articles; everything it
// returns is re-verified against the live page before it is stored.
package reco

import (
	"net/url"
	"regexp"
	"strings"
)

// Domains the LLM tends to hand back instead of real articles:
// placeholders and search relay hosts.
var blockedDomains = map[string]bool{
	"example.com":                     true,
	"vertexaisearch.cloud.google.com": true,
	"webcache.googleusercontent.com":  true,
	"news.google.com":                 true,
}

var blockedHostKeywords = []string{"vertexaisearch", "example.com"}

// Query parameters that relay URLs hide the target article in.
var redirectParamKeys = []string{"url", "u", "q", "target", "dest", "destination", "redirect", "redir"}

// Path fragments that mark section, list and ranking pages.
var nonArticlePathHints = []string{
	"/index", "/main", "/home", "/all", "/list", "/lists",
	"/section", "/sections", "/category", "/categories",
	"/market_cap", "/volume", "/rise_stocks", "/fall_stocks",
}

var (
	rePathDate   = regexp.MustCompile(`\b20\d{2}[./-]\d{1,2}[./-]\d{1,2}\b`)
	rePathLongID = regexp.MustCompile(`\b\d{6,}\b`)
)

// isHTTPURL reports whether raw is an absolute http(s) URL.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isBlockedURL rejects non-http URLs and known relay or placeholder hosts.
func isBlockedURL(raw string) bool {
	if !isHTTPURL(raw) {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if blockedDomains[host] {
		return true
	}
	for _, kw := range blockedHostKeywords {
		if strings.Contains(host, kw) {
			return true
		}
	}
	return false
}

// unwrapRedirectURL pulls the real article URL out of a relay link when
// it is carried in a known query parameter.
func unwrapRedirectURL(raw string) string {
	u := strings.TrimSpace(raw)
	if !isHTTPURL(u) {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	for _, key := range redirectParamKeys {
		cand := strings.TrimSpace(q.Get(key))
		if cand == "" {
			continue
		}
		if unescaped, err := url.QueryUnescape(cand); err == nil {
			cand = unescaped
		}
		if isHTTPURL(cand) {
			return cand
		}
	}
	return u
}

// stripFragment drops the #fragment from a URL, keeping the query.
func stripFragment(raw string) string {
	u := strings.TrimSpace(raw)
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	parsed.Fragment = ""
	return parsed.String()
}

// looksLikeArticleURL filters out section and list pages: a path with a
// date or long numeric id passes, a short single-segment path does not.
func looksLikeArticleURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	if path == "" || path == "/" {
		return false
	}

	for _, hint := range nonArticlePathHints {
		if strings.Contains(path, hint) {
			return false
		}
	}

	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) <= 1 && len(path) < 18 {
		return false
	}

	if rePathDate.MatchString(path) || rePathLongID.MatchString(path) {
		return true
	}
	return true
}

// faviconFallback points at the site's favicon when no usable article
// image exists. The frontend treats it as a placeholder.
func faviconFallback(articleURL string) string {
	parsed, err := url.Parse(articleURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return "https://www.google.com/s2/favicons?domain=" + parsed.Host + "&sz=128"
}

const faviconPrefix = "https://www.google.com/s2/favicons"

// hasRealImage distinguishes an article image from the favicon fallback.
func hasRealImage(imageURL string) bool {
	return imageURL != "" && !strings.HasPrefix(imageURL, faviconPrefix)
}
