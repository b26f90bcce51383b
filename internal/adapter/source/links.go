package source

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selector names an element query and the attribute holding its URL
type Selector struct {
	Query string
	Attr  string
}

// AnchorSelectors match hyperlinks only
var AnchorSelectors = []Selector{
	{Query: "a[href]", Attr: "href"},
}

// PageSelectors match every resource a page refers to
var PageSelectors = []Selector{
	{Query: "a[href]", Attr: "href"},
	{Query: "img[src]", Attr: "src"},
	{Query: "link[href]", Attr: "href"},
	{Query: "script[src]", Attr: "src"},
	{Query: "frame[src]", Attr: "src"},
	{Query: "iframe[src]", Attr: "src"},
}

var followSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
}

// ExtractLinks parses an HTML document and returns the absolute URLs
// matched by selectors, in document order without duplicates. Relative
// links are resolved against the document's <base href> if present,
// otherwise against base.
func ExtractLinks(r io.Reader, base string, selectors []Selector) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var baseURL *url.URL
	if base != "" {
		if baseURL, err = url.Parse(base); err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := resolve(baseURL, href); err == nil {
			baseURL = u
		}
	}

	seen := make(map[string]struct{})
	var links []string
	for _, sel := range selectors {
		doc.Find(sel.Query).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr(sel.Attr)
			if !ok {
				return
			}
			href = strings.TrimSpace(href)
			if href == "" || strings.HasPrefix(href, "#") {
				return
			}

			u, err := resolve(baseURL, href)
			if err != nil || !u.IsAbs() || !followSchemes[strings.ToLower(u.Scheme)] {
				return
			}
			u.Fragment = ""

			key := u.String()
			if _, exists := seen[key]; exists {
				return
			}
			seen[key] = struct{}{}
			links = append(links, key)
		})
	}
	return links, nil
}

func resolve(base *url.URL, href string) (*url.URL, error) {
	if base == nil {
		return url.Parse(href)
	}
	return base.Parse(href)
}

// FileLinks implements port.LinkExtractor over local HTML files
type FileLinks struct {
	selectors []Selector
}

// NewFileLinks creates a link extractor. No selectors means PageSelectors.
func NewFileLinks(selectors ...Selector) *FileLinks {
	if len(selectors) == 0 {
		selectors = PageSelectors
	}
	return &FileLinks{selectors: selectors}
}

// Links parses localFile and returns the URLs it refers to
func (l *FileLinks) Links(localFile, baseURL string) ([]string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return nil, fmt.Errorf("open html file: %w", err)
	}
	defer f.Close()

	return ExtractLinks(f, baseURL, l.selectors)
}
