package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vertextoedge/url-retriever/internal/port"
)

// Slice yields a fixed list of URLs
type Slice struct {
	urls []string
	next int
}

// Ensure Slice implements port.URLSource
var _ port.URLSource = (*Slice)(nil)

// NewSlice creates a source over urls
func NewSlice(urls []string) *Slice {
	return &Slice{urls: urls}
}

// Next returns the next URL
func (s *Slice) Next() (string, bool) {
	if s.next >= len(s.urls) {
		return "", false
	}
	u := s.urls[s.next]
	s.next++
	return u, true
}

// Err always returns nil
func (s *Slice) Err() error {
	return nil
}

// Len returns the number of URLs
func (s *Slice) Len() int {
	return len(s.urls)
}

// PlainList reads one URL per line. Blank lines and lines starting
// with # are skipped.
type PlainList struct {
	scanner *bufio.Scanner
	err     error
}

// Ensure PlainList implements port.URLSource
var _ port.URLSource = (*PlainList)(nil)

// NewPlainList creates a plain list source reading r
func NewPlainList(r io.Reader) *PlainList {
	return &PlainList{scanner: bufio.NewScanner(r)}
}

// Next returns the next URL in the list
func (p *PlainList) Next() (string, bool) {
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, true
	}
	p.err = p.scanner.Err()
	return "", false
}

// Err returns the read error that ended the list, if any
func (p *PlainList) Err() error {
	return p.err
}

// NewHTMLLinks reads an HTML document and yields its hyperlinks,
// resolved against base
func NewHTMLLinks(r io.Reader, base string) (*Slice, error) {
	links, err := ExtractLinks(r, base, AnchorSelectors)
	if err != nil {
		return nil, err
	}
	return NewSlice(links), nil
}

// Options selects how an input file is read
type Options struct {
	// Path is the input file; "-" reads standard input
	Path string

	// HTML treats the input as an HTML document
	HTML bool

	// Base resolves relative links of HTML input
	Base string
}

// Open opens the input described by opts. The returned closer releases
// the file and is safe to call for standard input.
func Open(opts Options) (port.URLSource, io.Closer, error) {
	var r io.ReadCloser = io.NopCloser(os.Stdin)
	if opts.Path != "-" {
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open input file: %w", err)
		}
		r = f
	}

	if !opts.HTML {
		return NewPlainList(r), r, nil
	}

	src, err := NewHTMLLinks(r, opts.Base)
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return src, r, nil
}
