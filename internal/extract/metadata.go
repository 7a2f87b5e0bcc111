package extract

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kilupskalvis/avc/internal/models"
)

var (
	titleSelectors = []string{
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`,
		`meta[name="title"]`,
	}
	descriptionSelectors = []string{
		`meta[property="og:description"]`,
		`meta[name="twitter:description"]`,
		`meta[name="description"]`,
	}
	authorSelectors = []string{
		`meta[property="article:author"]`,
		`meta[name="author"]`,
	}
	thumbnailSelectors = []string{
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="og:image:url"]`,
	}
	publishedSelectors = []string{
		`meta[property="article:published_time"]`,
		`meta[name="published_time"]`,
		`meta[property="og:published_time"]`,
	}
	faviconSelectors = []string{
		`link[rel="icon"][sizes="32x32"]`,
		`link[rel="shortcut icon"][sizes="32x32"]`,
		`link[rel="icon"]`,
		`link[rel="shortcut icon"]`,
		`link[rel="apple-touch-icon"]`,
	}
)

// metadataFromDocument reads metadata from meta tags first and JSON-LD
// Article data second.
func metadataFromDocument(doc *goquery.Document, pageURL string) models.ExtractedMetadata {
	ld := findLDArticle(doc)

	meta := models.ExtractedMetadata{
		Title:        firstNonEmpty(metaContent(doc, titleSelectors), ld.Headline, strings.TrimSpace(doc.Find("title").First().Text())),
		Description:  firstNonEmpty(metaContent(doc, descriptionSelectors), ld.Description),
		Author:       firstNonEmpty(metaContent(doc, authorSelectors), ld.author()),
		Thumbnail:    firstNonEmpty(metaContent(doc, thumbnailSelectors), ld.image()),
		TextLanguage: documentLanguage(doc),
	}
	meta.Thumbnail = absoluteURL(meta.Thumbnail, pageURL)

	if published := firstNonEmpty(metaContent(doc, publishedSelectors), ld.DatePublished); published != "" {
		meta.PublishedAt = normalizeTime(published)
	}

	for _, sel := range faviconSelectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			meta.Favicon = absoluteURL(strings.TrimSpace(href), pageURL)
			break
		}
	}
	if meta.Favicon == "" {
		meta.Favicon = ld.publisherLogo()
	}
	return meta
}

func metaContent(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		s := doc.Find(sel).First()
		if content, ok := s.Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			return text
		}
	}
	return ""
}

// documentDirection is rtl when the html or body element says so.
func documentDirection(doc *goquery.Document) models.TextDirection {
	for _, sel := range []string{"html", "body"} {
		if dir, ok := doc.Find(sel).First().Attr("dir"); ok && strings.EqualFold(strings.TrimSpace(dir), "rtl") {
			return models.TextDirectionRTL
		}
	}
	return models.TextDirectionLTR
}

func documentLanguage(doc *goquery.Document) string {
	lang, _ := doc.Find("html").First().Attr("lang")
	return strings.ToLower(strings.TrimSpace(lang))
}

// absoluteURL resolves link against the page URL.
func absoluteURL(link, pageURL string) string {
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return link
	}
	return base.ResolveReference(ref).String()
}

// normalizeTime renders a parseable date as RFC 3339 UTC and keeps anything
// else unchanged.
func normalizeTime(s string) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ldArticle holds the schema.org Article fields used for metadata.
// Author, image and publisher vary in shape between sites.
type ldArticle struct {
	Type          any             `json:"@type"`
	Headline      string          `json:"headline"`
	Description   string          `json:"description"`
	DatePublished string          `json:"datePublished"`
	Author        json.RawMessage `json:"author"`
	Image         json.RawMessage `json:"image"`
	Publisher     json.RawMessage `json:"publisher"`
}

func (a ldArticle) isArticle() bool {
	switch t := a.Type.(type) {
	case string:
		return t == "Article" || t == "NewsArticle"
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && (s == "Article" || s == "NewsArticle") {
				return true
			}
		}
	}
	return false
}

func (a ldArticle) author() string {
	return nameOrString(first(a.Author), "name")
}

func (a ldArticle) image() string {
	return nameOrString(first(a.Image), "url")
}

func (a ldArticle) publisherLogo() string {
	var p struct {
		Logo json.RawMessage `json:"logo"`
	}
	if len(a.Publisher) == 0 || json.Unmarshal(a.Publisher, &p) != nil {
		return ""
	}
	return nameOrString(p.Logo, "url")
}

// first returns the first element of a JSON array, or raw itself.
func first(raw json.RawMessage) json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return raw
}

// nameOrString reads a JSON string, or field of a JSON object.
func nameOrString(raw json.RawMessage, field string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if v, ok := obj[field].(string); ok {
		return v
	}
	return ""
}

// findLDArticle returns the first Article or NewsArticle in the page's
// JSON-LD scripts, looking inside @graph. Unparseable scripts are ignored.
func findLDArticle(doc *goquery.Document) ldArticle {
	var found ldArticle
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, candidate := range ldCandidates([]byte(s.Text())) {
			if candidate.isArticle() {
				found = candidate
				return false
			}
		}
		return true
	})
	return found
}

func ldCandidates(data []byte) []ldArticle {
	var graph struct {
		Graph []ldArticle `json:"@graph"`
	}
	top := first(data)
	if len(top) == 0 {
		return nil
	}
	if err := json.Unmarshal(top, &graph); err == nil && len(graph.Graph) > 0 {
		return graph.Graph
	}
	var a ldArticle
	if err := json.Unmarshal(top, &a); err != nil {
		return nil
	}
	return []ldArticle{a}
}
