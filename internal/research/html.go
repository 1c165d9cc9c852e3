package research

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLText flattens an HTML fragment (RSS descriptions are usually HTML)
// into whitespace-normalized plain text.
func HTMLText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteString(" ")
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.Join(strings.Fields(b.String()), " ")
}
