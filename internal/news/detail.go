package news

import (
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

const maxContentChars = 4000

// detailSignals is what a fetched article page tells us about itself.
type detailSignals struct {
	ogImage     string
	ogDesc      string
	publishedAt *time.Time
	content     string
	articleLike bool
}

// parseDetail extracts OpenGraph metadata, the publication timestamp,
// a JSON-LD/og:type article hint and the body text from an article page.
func parseDetail(page string) *detailSignals {
	sig := &detailSignals{}

	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return sig
	}

	var articleNode, infomaxNode *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop, content := attr(n, "property"), attr(n, "content")
				switch prop {
				case "og:image":
					sig.ogImage = strings.TrimSpace(content)
				case "og:description":
					sig.ogDesc = strings.TrimSpace(content)
				case "og:type":
					switch strings.ToLower(strings.TrimSpace(content)) {
					case "article", "news", "newsarticle":
						sig.articleLike = true
					}
				case "article:published_time":
					if t, ok := parseISOTime(content); ok {
						sig.publishedAt = &t
					}
				}
			case "script":
				if attr(n, "type") == "application/ld+json" && !sig.articleLike {
					low := strings.ToLower(textContent(n))
					if strings.Contains(low, `"@type"`) &&
						(strings.Contains(low, "newsarticle") ||
							strings.Contains(low, `"article"`) ||
							strings.Contains(low, `"reportage"`)) {
						sig.articleLike = true
					}
				}
			case "article":
				if articleNode == nil {
					articleNode = n
				}
			case "div":
				if attr(n, "id") == "article-view-content-div" && infomaxNode == nil {
					infomaxNode = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	body := articleNode
	if body == nil {
		body = infomaxNode
	}
	if body != nil {
		var b strings.Builder
		if html.Render(&b, body) == nil {
			if md, err := htmltomarkdown.ConvertString(b.String()); err == nil {
				sig.content = truncateRunes(strings.TrimSpace(md), maxContentChars)
			}
		}
	}
	return sig
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// parseISOTime accepts RFC 3339 timestamps, tolerating a bare "Z" suffix
// and missing zone offsets.
func parseISOTime(s string) (time.Time, bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
