package telegram

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToHTML converts model markdown to Telegram-safe HTML.
// Telegram accepts only <b>, <i>, <s>, <code>, <pre>, <a href="">, so
// the AST is rendered directly instead of trusting parse_mode=Markdown,
// which rejects unbalanced markers mid-stream.
func MarkdownToHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	r := &htmlRenderer{src: src}
	r.renderChildren(&buf, doc)
	return strings.TrimRight(buf.String(), "\n")
}

type htmlRenderer struct {
	src []byte
}

func (r *htmlRenderer) renderChildren(w *bytes.Buffer, node ast.Node) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		r.renderNode(w, child)
	}
}

func (r *htmlRenderer) renderNode(w *bytes.Buffer, node ast.Node) {
	switch n := node.(type) {
	case *ast.Paragraph:
		r.renderChildren(w, n)
		w.WriteString("\n\n")

	case *ast.Heading:
		// No heading tags in Telegram; bold stands in.
		w.WriteString("<b>")
		r.renderChildren(w, n)
		w.WriteString("</b>\n\n")

	case *ast.ThematicBreak:
		w.WriteString("———\n\n")

	case *ast.Blockquote:
		var inner bytes.Buffer
		r.renderChildren(&inner, n)
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			w.WriteString("▎" + line + "\n")
		}
		w.WriteString("\n")

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(r.src)); lang != "" {
			fmt.Fprintf(w, "<pre><code class=\"language-%s\">", html.EscapeString(lang))
		} else {
			w.WriteString("<pre><code>")
		}
		r.writeLines(w, n.Lines())
		w.WriteString("</code></pre>\n\n")

	case *ast.CodeBlock:
		w.WriteString("<pre><code>")
		r.writeLines(w, n.Lines())
		w.WriteString("</code></pre>\n\n")

	case *ast.List:
		r.renderList(w, n)

	case *ast.Text:
		w.WriteString(html.EscapeString(string(n.Segment.Value(r.src))))
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.WriteString("\n")
		}

	case *ast.String:
		w.WriteString(html.EscapeString(string(n.Value)))

	case *ast.CodeSpan:
		w.WriteString("<code>")
		r.renderChildren(w, n)
		w.WriteString("</code>")

	case *ast.Emphasis:
		tag := "i"
		if n.Level == 2 {
			tag = "b"
		}
		w.WriteString("<" + tag + ">")
		r.renderChildren(w, n)
		w.WriteString("</" + tag + ">")

	case *ast.Link:
		fmt.Fprintf(w, "<a href=\"%s\">", html.EscapeString(string(n.Destination)))
		r.renderChildren(w, n)
		w.WriteString("</a>")

	case *ast.AutoLink:
		url := html.EscapeString(string(n.URL(r.src)))
		fmt.Fprintf(w, "<a href=\"%s\">%s</a>", url, url)

	case *ast.Image:
		fmt.Fprintf(w, "[image: %s]", html.EscapeString(string(n.Destination)))

	default:
		r.renderChildren(w, node)
	}
}

func (r *htmlRenderer) writeLines(w *bytes.Buffer, lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.WriteString(html.EscapeString(string(seg.Value(r.src))))
	}
}

func (r *htmlRenderer) renderList(w *bytes.Buffer, list *ast.List) {
	idx := list.Start
	for child := list.FirstChild(); child != nil; child = child.NextSibling() {
		if list.IsOrdered() {
			fmt.Fprintf(w, "%d. ", idx)
			idx++
		} else {
			w.WriteString("• ")
		}

		var item bytes.Buffer
		r.renderChildren(&item, child)
		for i, line := range strings.Split(strings.TrimRight(item.String(), "\n"), "\n") {
			if i > 0 {
				w.WriteString("\n  ")
			}
			w.WriteString(line)
		}
		w.WriteString("\n")
	}
	w.WriteString("\n")
}
