package worker

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/gleanit/core"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
}

// blocks end a paragraph.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Main: true, atom.Header: true,
	atom.Blockquote: true, atom.Pre: true, atom.Tr: true, atom.Table: true,
	atom.Ul: true, atom.Ol: true, atom.Dd: true, atom.Dt: true, atom.Figcaption: true,
}

// ParseHTML extracts the title, byline and readable text of an HTML page.
// Text comes from the first <article> or <main> element when the page has
// one, otherwise from <body>.
func ParseHTML(r io.Reader) (core.ParsedContent, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return core.ParsedContent{}, fmt.Errorf("parse html: %w", err)
	}

	var meta pageMeta
	meta.collect(doc)

	root := findFirst(doc, atom.Article)
	if root == nil {
		root = findFirst(doc, atom.Main)
	}
	if root == nil {
		root = findFirst(doc, atom.Body)
	}
	if root == nil {
		root = doc
	}

	var b strings.Builder
	writeText(&b, root)
	text := normalizeText(b.String())

	title := meta.ogTitle
	if title == "" {
		title = meta.title
	}
	if title == "" {
		if h1 := findFirst(doc, atom.H1); h1 != nil {
			title = textOf(h1)
		}
	}

	return core.ParsedContent{
		Title:  title,
		Text:   text,
		Byline: meta.author,
		Length: utf8.RuneCountInString(text),
	}, nil
}

type pageMeta struct {
	title   string
	ogTitle string
	author  string
}

func (m *pageMeta) collect(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if m.title == "" {
				m.title = textOf(n)
			}
		case atom.Meta:
			name := strings.ToLower(attr(n, "name") + attr(n, "property"))
			content := strings.TrimSpace(attr(n, "content"))
			switch name {
			case "og:title":
				m.ogTitle = content
			case "author", "article:author":
				if m.author == "" {
					m.author = content
				}
			}
		case atom.Body:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.collect(c)
	}
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
	}

	block := n.Type == html.ElementNode && blocks[n.DataAtom]
	if block {
		b.WriteString("\n\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteString("\n\n")
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	writeText(&b, n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
