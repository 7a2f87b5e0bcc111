package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRun     = regexp.MustCompile(`[ \t\r\n]+`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
	spaceOnly    = regexp.MustCompile(`(?m)^[ \t]+$`)
)

// toMarkdown renders the readable body as Markdown.
func toMarkdown(sel *goquery.Selection) string {
	var b strings.Builder
	renderChildren(&b, sel, 0)
	out := spaceOnly.ReplaceAllString(b.String(), "")
	out = blankLineRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func renderChildren(b *strings.Builder, sel *goquery.Selection, depth int) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		renderNode(b, c, depth)
	})
}

func renderNode(b *strings.Builder, s *goquery.Selection, depth int) {
	name := goquery.NodeName(s)
	switch name {
	case "#text":
		b.WriteString(spaceRun.ReplaceAllString(s.Text(), " "))
	case "script", "style", "noscript", "#comment":
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := strings.TrimSpace(spaceRun.ReplaceAllString(inline(s), " "))
		if text != "" {
			b.WriteString("\n\n" + strings.Repeat("#", int(name[1]-'0')) + " " + text + "\n\n")
		}
	case "p", "div", "section", "article", "main", "header", "footer", "figure", "figcaption":
		var inner strings.Builder
		renderChildren(&inner, s, depth)
		b.WriteString("\n\n" + strings.TrimSpace(inner.String()) + "\n\n")
	case "br":
		b.WriteString("  \n")
	case "hr":
		b.WriteString("\n\n---\n\n")
	case "strong", "b":
		if text := strings.TrimSpace(inline(s)); text != "" {
			b.WriteString("**" + text + "**")
		}
	case "em", "i":
		if text := strings.TrimSpace(inline(s)); text != "" {
			b.WriteString("_" + text + "_")
		}
	case "code":
		b.WriteString("`" + s.Text() + "`")
	case "pre":
		b.WriteString("\n\n```\n" + strings.TrimRight(s.Text(), "\n") + "\n```\n\n")
	case "a":
		text := strings.TrimSpace(spaceRun.ReplaceAllString(inline(s), " "))
		href, ok := s.Attr("href")
		if !ok || href == "" {
			b.WriteString(text)
			return
		}
		b.WriteString("[" + text + "](" + href + ")")
	case "img":
		if src, ok := s.Attr("src"); ok && src != "" {
			alt, _ := s.Attr("alt")
			b.WriteString("![" + alt + "](" + src + ")")
		}
	case "ul", "ol":
		b.WriteString("\n\n")
		n := 0
		s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			n++
			marker := "- "
			if name == "ol" {
				marker = strconv.Itoa(n) + ". "
			}
			var item strings.Builder
			renderChildren(&item, li, depth+1)
			text := strings.TrimSpace(blankLineRun.ReplaceAllString(item.String(), "\n"))
			b.WriteString(strings.Repeat("  ", depth) + marker + text + "\n")
		})
		b.WriteString("\n")
	case "blockquote":
		var inner strings.Builder
		renderChildren(&inner, s, depth)
		text := strings.TrimSpace(blankLineRun.ReplaceAllString(inner.String(), "\n\n"))
		b.WriteString("\n\n")
		for _, line := range strings.Split(text, "\n") {
			b.WriteString(strings.TrimRight("> "+strings.TrimSpace(line), " ") + "\n")
		}
		b.WriteString("\n")
	default:
		renderChildren(b, s, depth)
	}
}

// inline renders the children of s without block separators.
func inline(s *goquery.Selection) string {
	var b strings.Builder
	renderChildren(&b, s, 0)
	return strings.ReplaceAll(b.String(), "\n", " ")
}
