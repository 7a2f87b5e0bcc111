// Package slug derives stable storage names from article URLs.
package slug

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackHostname is the host used for items that have no public URL, such
// as newsletters received by email. The first path segment then stands in
// for the domain: https://curio-newsletter/<domain>/<slug>.
const FallbackHostname = "curio-newsletter"

// maxWords caps the words taken from the domain and from the path.
const maxWords = 7

var (
	hostPattern = regexp.MustCompile(`//([^/?#]+)`)
	pathPattern = regexp.MustCompile(`//[^/]+(/?[^?#]*)`)
	extPattern  = regexp.MustCompile(`\.[a-zA-Z0-9]+$`)
	nonAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
	hyphens     = regexp.MustCompile(`-+`)
)

// letters that do not decompose into an ASCII base letter
var foldReplacer = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "ae", "œ", "oe", "Œ", "oe",
	"ø", "o", "Ø", "o", "đ", "d", "Đ", "d", "ł", "l", "Ł", "l",
	"þ", "th", "Þ", "th", "ð", "d", "Ð", "d", "ı", "i",
)

// CleanURL strips the query, fragment and trailing slashes from raw.
// Input that is not an absolute URL is returned unchanged.
func CleanURL(raw string) string {
	u, err := parseAbsolute(raw)
	if err != nil {
		return raw
	}
	return strings.TrimRight(origin(u)+u.EscapedPath(), "/")
}

// Generate returns the slug for raw: words from the domain and from the
// longest path segment, folded to ASCII, followed by a short hash of the
// cleaned URL. Input that is not an absolute URL yields item-<hash>.
func Generate(raw string) string {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "item-" + shortHash(raw, 8)
	}

	hostname, pathname := splitPreservingUnicode(raw)

	domain := strings.TrimPrefix(hostname, "www.")
	if hostname == FallbackHostname {
		domain = ""
		if parts := strings.Split(pathname, "/"); len(parts) > 1 {
			domain = parts[1]
		}
	}

	domainWords := truncateWords(strings.Join(strings.FieldsFunc(domain, func(r rune) bool {
		return r == '.' || r == '-'
	}), "-"), maxWords)
	pathWords := truncateWords(longestSegment(pathname), maxWords)

	s := strings.ToLower(domainWords + "-" + pathWords)
	s = strings.Trim(hyphens.ReplaceAllString(s, "-"), "-")

	parts := strings.Split(s, "-")
	for i, part := range parts {
		parts[i] = asciiPart(part)
	}
	s = strings.Join(parts, "-")

	if strings.Contains(hostname, "youtube.com") {
		if id := u.Query().Get("v"); id != "" {
			return s + "-" + id + "-" + shortHash(id, 6)
		}
	}
	return s + "-" + shortHash(CleanURL(raw), 6)
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errNotAbsolute}
	}
	return u, nil
}

// origin renders scheme://host with the host lower-cased, IDNA-encoded and
// without a default port.
func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	port := u.Port()
	if port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	return scheme + "://" + host
}

// splitPreservingUnicode extracts hostname and path from raw as written,
// without the percent-encoding and punycode that url.Parse applies.
func splitPreservingUnicode(raw string) (hostname, pathname string) {
	if m := hostPattern.FindStringSubmatch(raw); m != nil {
		hostname = m[1]
	}
	if m := pathPattern.FindStringSubmatch(raw); m != nil {
		pathname = m[1]
	}
	return hostname, pathname
}

// longestSegment returns the longest path segment, first wins on ties.
// A file extension is dropped only when that segment ends the path.
func longestSegment(pathname string) string {
	var segments []string
	for _, s := range strings.Split(pathname, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return ""
	}

	longest := segments[0]
	for _, s := range segments[1:] {
		if utf8.RuneCountInString(s) > utf8.RuneCountInString(longest) {
			longest = s
		}
	}
	if segments[len(segments)-1] == longest {
		longest = extPattern.ReplaceAllString(longest, "")
	}
	return strings.ReplaceAll(longest, ".", "-")
}

func truncateWords(s string, n int) string {
	words := strings.Split(s, "-")
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, "-")
}

// asciiPart folds one slug word to lower-case ASCII. Words with nothing
// foldable, such as CJK or emoji, are punycode-encoded instead.
func asciiPart(part string) string {
	if folded := fold(part); folded != "" {
		return folded
	}
	if part == "" {
		return ""
	}
	encoded, err := idna.Punycode.ToASCII(part)
	if err != nil {
		return shortHash(part, 6)
	}
	return strings.TrimPrefix(encoded, "xn--")
}

func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, foldReplacer.Replace(s))
	if err != nil {
		out = s
	}
	out = nonAlnum.ReplaceAllString(strings.ToLower(out), "-")
	return strings.Trim(out, "-")
}

func shortHash(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}
