package crawler

import (
	"io"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Image is an image reference discovered on a page.
type Image struct {
	// URL is the absolute image URL without fragment.
	URL string

	// PageURL is the page the image was found on.
	PageURL string

	// Title comes from the alt or title attribute of the matching img tag.
	Title string

	// Width and Height are the declared attributes of the matching img tag.
	// Zero means unknown.
	Width  int
	Height int
}

// Parser extracts image references and links from HTML content.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL
}

// ParseResult contains what was extracted from one HTML page.
type ParseResult struct {
	// Title is the page title from <title> tag.
	Title string

	// Links contains every resolved a[href].
	Links []string

	// InternalLinks are links on the same host as the page.
	InternalLinks []string

	// Images are the image references in discovery order, unique by URL.
	Images []Image
}

// imageMeta is what an img tag says about the image it points to.
type imageMeta struct {
	title  string
	width  int
	height int
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts images and links.
//
// Images come from img src (or data-src, data-lazy-src), img and
// picture > source srcset, and inline CSS background-image declarations.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	raw, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Title:         strings.TrimSpace(doc.Find("title").First().Text()),
		Links:         make([]string, 0),
		InternalLinks: make([]string, 0),
		Images:        make([]Image, 0),
	}

	var (
		order  []string
		seen   = make(map[string]bool)
		byURL  = make(map[string]imageMeta)
		byBase = make(map[string]imageMeta)
	)
	add := func(u string) {
		if u == "" || !IsImageURL(u) || seen[u] {
			return
		}
		seen[u] = true
		order = append(order, u)
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		meta := imageMeta{
			title:  firstAttr(s, "alt", "title"),
			width:  intAttr(s, "width"),
			height: intAttr(s, "height"),
		}
		if src := firstAttr(s, "src", "data-src", "data-lazy-src"); src != "" {
			if u := p.resolveURL(src); u != "" {
				add(u)
				p.remember(u, meta, byURL, byBase)
			}
		}
		if srcset, ok := s.Attr("srcset"); ok {
			for _, u := range p.parseSrcset(srcset) {
				add(u)
				p.remember(u, meta, byURL, byBase)
			}
		}
	})

	doc.Find("picture > source").Each(func(_ int, s *goquery.Selection) {
		if srcset, ok := s.Attr("srcset"); ok {
			for _, u := range p.parseSrcset(srcset) {
				add(u)
			}
		}
	})

	for _, m := range cssBackgroundRegex.FindAllStringSubmatch(string(raw), -1) {
		add(p.resolveURL(m[1]))
	}

	for _, u := range order {
		meta, ok := byURL[u]
		if !ok {
			meta = byBase[basename(u)]
		}
		result.Images = append(result.Images, Image{
			URL:     u,
			PageURL: p.baseURL.String(),
			Title:   meta.title,
			Width:   meta.width,
			Height:  meta.height,
		})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := p.resolveURL(href)
		if resolved == "" {
			return
		}
		result.Links = append(result.Links, resolved)
		if p.isInternal(resolved) {
			result.InternalLinks = append(result.InternalLinks, resolved)
		}
	})

	return result, nil
}

func (p *Parser) remember(u string, meta imageMeta, byURL, byBase map[string]imageMeta) {
	if _, ok := byURL[u]; !ok {
		byURL[u] = meta
	}
	if b := basename(u); b != "" {
		if _, ok := byBase[b]; !ok {
			byBase[b] = meta
		}
	}
}

// parseSrcset resolves every candidate of a srcset attribute:
// "a.jpg 1x, b.jpg 2x" or "a.jpg 100w, b.jpg 200w".
func (p *Parser) parseSrcset(srcset string) []string {
	var out []string
	for part := range strings.SplitSeq(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if u := p.resolveURL(fields[0]); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// resolveURL resolves a relative URL against the base URL.
// It returns "" for URLs that can never be an image or a page to follow.
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		return ""
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasSuffix(lower, ".pdf") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func (p *Parser) isInternal(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, p.baseURL.Host)
}

// cssBackgroundRegex matches background-image:url(...) in style attributes and blocks.
var cssBackgroundRegex = regexp.MustCompile(`(?i)background-image:\s*url\(["']?([^"')\s]+)["']?\)`)

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}
	imageIndicators = []string{"image", "img", "photo", "picture", "pic"}
)

// IsImageURL reports whether a URL looks like it points to an image: its path
// mentions an image extension or an image-ish word.
func IsImageURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.Contains(p, ext) {
			return true
		}
	}
	for _, word := range imageIndicators {
		if strings.Contains(p, word) {
			return true
		}
	}
	return false
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intAttr(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func basename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	b := path.Base(u.Path)
	if b == "/" || b == "." {
		return ""
	}
	return b
}
