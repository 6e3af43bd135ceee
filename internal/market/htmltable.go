package market

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var codeRe = regexp.MustCompile(`code=(\d{6})`)

// htmlTable is one parsed <table>: rows of cell texts, header included.
type htmlTable struct {
	rows [][]string
}

// header returns the first row, or nil for an empty table.
func (t *htmlTable) header() []string {
	if len(t.rows) == 0 {
		return nil
	}
	return t.rows[0]
}

// columnIndex finds a header column by name, ignoring case and spaces.
// Falls back to a substring match. Returns -1 when absent.
func (t *htmlTable) columnIndex(names ...string) int {
	norm := func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	}
	header := t.header()
	for _, name := range names {
		want := norm(name)
		for i, h := range header {
			if norm(h) == want {
				return i
			}
		}
	}
	for _, name := range names {
		want := norm(name)
		for i, h := range header {
			if strings.Contains(norm(h), want) {
				return i
			}
		}
	}
	return -1
}

// parseTables extracts every <table> in the document as rows of
// whitespace-normalized cell texts.
func parseTables(doc string) ([]*htmlTable, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}

	var tables []*htmlTable
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			tables = append(tables, extractTable(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return tables, nil
}

func extractTable(table *html.Node) *htmlTable {
	t := &htmlTable{}
	var walkRows func(n *html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, nodeText(c))
				}
			}
			if len(cells) > 0 {
				t.rows = append(t.rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	return t
}

// nodeText joins the text content of a node, collapsing whitespace.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// extractCodeMap maps stock names to 6-digit codes from anchor hrefs
// like /item/main.naver?code=005930. First occurrence of a name wins.
func extractCodeMap(doc string) map[string]string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}

	out := make(map[string]string)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				m := codeRe.FindStringSubmatch(attr.Val)
				if m == nil {
					continue
				}
				name := nodeText(n)
				if name != "" {
					if _, exists := out[name]; !exists {
						out[name] = m[1]
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}
