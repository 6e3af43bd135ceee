package reco

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/marketlens/marketlens/internal/config"
)

const (
	pageBodyLimit   = 2 << 20
	imageProbeLimit = 2048
)

var reSpaces = regexp.MustCompile(`\s+`)

// pageFetcher retrieves article pages, following redirects and keeping
// the final URL so relay links can be canonicalized.
type pageFetcher struct {
	client    *http.Client
	userAgent string
}

func newPageFetcher(cfg config.CrawlerConfig) *pageFetcher {
	return &pageFetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

// fetch returns the final URL after redirects and the page HTML. A
// non-HTML response yields the final URL with empty HTML.
func (f *pageFetcher) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return rawURL, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return rawURL, "", err
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = stripFragment(resp.Request.URL.String())
	}

	if resp.StatusCode != http.StatusOK ||
		!strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return finalURL, "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, pageBodyLimit))
	if err != nil {
		return finalURL, "", err
	}
	return finalURL, string(body), nil
}

// validImage confirms a candidate image URL serves an image/* response.
func (f *pageFetcher) validImage(ctx context.Context, rawURL string) bool {
	if !isHTTPURL(rawURL) {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", f.userAgent)
	if resp, err := f.client.Do(req); err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK &&
			strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "image/") {
			return true
		}
	}

	// Some CDNs refuse HEAD; retry with a ranged GET.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", imageProbeLimit-1))
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	ok := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent
	return ok && strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "image/")
}

// articlePage holds what the trend pipeline needs from a fetched page.
type articlePage struct {
	canonicalURL string
	ogImage      string
	publishedAt  *time.Time
	text         string
}

var publishedMetaKeys = map[string]bool{
	"article:published_time": true,
	"og:published_time":      true,
	"article:modified_time":  true,
	"og:updated_time":        true,
	"pubdate":                true,
	"publishdate":            true,
	"timestamp":              true,
	"date":                   true,
}

var contentContainerIDs = map[string]bool{
	"articleBody": true, "article_body": true, "newsct_article": true,
	"content": true, "contents": true,
}

var contentContainerClasses = []string{
	"article-body", "articleBody", "news_body", "newsBody",
	"story-body", "entry-content", "post-content", "post_body",
}

// parsePage extracts the canonical URL, og image, published time and
// body text from article HTML.
func parsePage(pageHTML, baseURL string) *articlePage {
	out := &articlePage{}
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return out
	}

	var article, main, container *html.Node
	var timeNodes []*html.Node

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "link":
				if strings.Contains(strings.ToLower(nodeAttr(n, "rel")), "canonical") {
					if href := absolutize(nodeAttr(n, "href"), baseURL); isHTTPURL(href) && out.canonicalURL == "" {
						out.canonicalURL = href
					}
				}
			case "meta":
				prop := nodeAttr(n, "property")
				name := nodeAttr(n, "name")
				content := strings.TrimSpace(nodeAttr(n, "content"))
				if content == "" {
					break
				}
				switch {
				case prop == "og:url" && out.canonicalURL == "":
					if href := absolutize(content, baseURL); isHTTPURL(href) {
						out.canonicalURL = href
					}
				case prop == "og:image" && out.ogImage == "":
					out.ogImage = absolutize(content, baseURL)
				case (name == "twitter:image" || name == "twitter:image:src") && out.ogImage == "":
					out.ogImage = absolutize(content, baseURL)
				case publishedMetaKeys[prop] || publishedMetaKeys[name]:
					if out.publishedAt == nil {
						if ts := parseWhen(content); ts != nil {
							out.publishedAt = ts
						}
					}
				}
			case "time":
				if len(timeNodes) < 5 {
					timeNodes = append(timeNodes, n)
				}
			case "article":
				if article == nil {
					article = n
				}
			case "main":
				if main == nil {
					main = n
				}
			case "div", "section":
				if container == nil && isContentContainer(n) {
					container = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if out.publishedAt == nil {
		for _, tn := range timeNodes {
			if ts := parseWhen(nodeAttr(tn, "datetime")); ts != nil {
				out.publishedAt = ts
				break
			}
			if ts := parseWhen(nodeText(tn)); ts != nil {
				out.publishedAt = ts
				break
			}
		}
	}

	for _, node := range []*html.Node{article, main, container} {
		if node == nil {
			continue
		}
		if text := paragraphText(node); len(text) >= 200 {
			out.text = text
			return out
		}
	}
	out.text = paragraphText(root)
	return out
}

func isContentContainer(n *html.Node) bool {
	if contentContainerIDs[nodeAttr(n, "id")] {
		return true
	}
	classes := nodeAttr(n, "class")
	for _, c := range contentContainerClasses {
		if strings.Contains(classes, c) {
			return true
		}
	}
	return false
}

// paragraphText joins the text of every <p> under node, skipping script
// and navigation chrome.
func paragraphText(node *html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "header", "footer", "aside", "nav":
				return
			case "p":
				if t := strings.TrimSpace(nodeText(n)); t != "" {
					parts = append(parts, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.TrimSpace(reSpaces.ReplaceAllString(strings.Join(parts, " "), " "))
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func absolutize(href, base string) string {
	h := strings.TrimSpace(href)
	if h == "" || !strings.HasPrefix(h, "/") {
		return h
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return h
	}
	ref, err := url.Parse(h)
	if err != nil {
		return h
	}
	return baseURL.ResolveReference(ref).String()
}

var kst = mustLoadKST()

func mustLoadKST() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

var reDateTimeMin = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2})\b`)
var reDateOnly = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

// parseWhen accepts the timestamp formats news pages actually use:
// "YYYY-MM-DD HH:MM" (read as KST), RFC3339, and a bare date, which is
// pinned to noon KST.
func parseWhen(s string) *time.Time {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}

	if m := reDateTimeMin.FindStringSubmatch(t); m != nil {
		if ts, err := time.ParseInLocation("2006-01-02 15:04", m[1]+" "+m[2], kst); err == nil {
			return &ts
		}
	}

	iso := strings.Replace(t, "Z", "+00:00", 1)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02 15:04:05-07:00"} {
		if ts, err := time.Parse(layout, iso); err == nil {
			ts = ts.In(kst)
			return &ts
		}
	}

	if m := reDateOnly.FindString(t); m != "" {
		if d, err := time.ParseInLocation("2006-01-02", m, kst); err == nil {
			ts := d.Add(12 * time.Hour)
			return &ts
		}
	}
	return nil
}

func formatKSTMinute(t time.Time) string {
	return t.In(kst).Format("2006-01-02 15:04")
}
