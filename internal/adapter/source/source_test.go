package source

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vertextoedge/url-retriever/internal/port"
)

func drain(src port.URLSource) []string {
	var urls []string
	for {
		u, ok := src.Next()
		if !ok {
			return urls
		}
		urls = append(urls, u)
	}
}

func TestPlainList(t *testing.T) {
	input := `
# mirror list
http://a.example/one

  http://b.example/two  
#http://skipped.example/
ftp://c.example/pub/
`
	src := NewPlainList(strings.NewReader(input))
	got := drain(src)
	want := []string{"http://a.example/one", "http://b.example/two", "ftp://c.example/pub/"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("urls = %v, want %v", got, want)
	}
	if src.Err() != nil {
		t.Errorf("Err() = %v", src.Err())
	}
}

func TestSlice(t *testing.T) {
	src := NewSlice([]string{"a", "b"})
	if src.Len() != 2 {
		t.Errorf("Len() = %d", src.Len())
	}
	if got := drain(src); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("urls = %v", got)
	}
	if _, ok := src.Next(); ok {
		t.Error("Next() after end returned a URL")
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<html><head>
<link rel="stylesheet" href="/style.css">
<script src="app.js"></script>
</head><body>
<a href="../up.html">up</a>
<a href="page.html#section">page</a>
<a href="page.html">again</a>
<a href="#top">top</a>
<a href="mailto:me@example.com">mail</a>
<a href="javascript:void(0)">js</a>
<a href="https://other.example/x">other</a>
<img src="img/logo.png">
</body></html>`

	tests := []struct {
		name      string
		selectors []Selector
		want      []string
	}{
		{
			name:      "anchors",
			selectors: AnchorSelectors,
			want: []string{
				"http://h.example/up.html",
				"http://h.example/dir/page.html",
				"https://other.example/x",
			},
		},
		{
			name:      "page resources",
			selectors: PageSelectors,
			want: []string{
				"http://h.example/up.html",
				"http://h.example/dir/page.html",
				"https://other.example/x",
				"http://h.example/dir/img/logo.png",
				"http://h.example/style.css",
				"http://h.example/dir/app.js",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractLinks(strings.NewReader(page), "http://h.example/dir/index.html", tt.selectors)
			if err != nil {
				t.Fatalf("ExtractLinks() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("links = %v\nwant    %v", got, tt.want)
			}
		})
	}
}

func TestExtractLinks_BaseElement(t *testing.T) {
	page := `<html><head><base href="http://cdn.example/assets/"></head>
<body><a href="file.zip">f</a></body></html>`

	got, err := ExtractLinks(strings.NewReader(page), "http://h.example/", AnchorSelectors)
	if err != nil {
		t.Fatalf("ExtractLinks() error = %v", err)
	}
	if want := []string{"http://cdn.example/assets/file.zip"}; !reflect.DeepEqual(got, want) {
		t.Errorf("links = %v, want %v", got, want)
	}
}

func TestExtractLinks_NoBase(t *testing.T) {
	page := `<a href="relative.html">r</a><a href="http://abs.example/">a</a>`

	got, err := ExtractLinks(strings.NewReader(page), "", AnchorSelectors)
	if err != nil {
		t.Fatalf("ExtractLinks() error = %v", err)
	}
	if want := []string{"http://abs.example/"}; !reflect.DeepEqual(got, want) {
		t.Errorf("links = %v, want %v", got, want)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "urls.txt")
	page := filepath.Join(dir, "links.html")
	if err := os.WriteFile(list, []byte("http://a.example/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(page, []byte(`<a href="x.html">x</a>`), 0644); err != nil {
		t.Fatal(err)
	}

	src, closer, err := Open(Options{Path: list})
	if err != nil {
		t.Fatalf("Open(list) error = %v", err)
	}
	if got := drain(src); !reflect.DeepEqual(got, []string{"http://a.example/"}) {
		t.Errorf("list urls = %v", got)
	}
	closer.Close()

	src, closer, err = Open(Options{Path: page, HTML: true, Base: "http://b.example/d/"})
	if err != nil {
		t.Fatalf("Open(html) error = %v", err)
	}
	if got := drain(src); !reflect.DeepEqual(got, []string{"http://b.example/d/x.html"}) {
		t.Errorf("html urls = %v", got)
	}
	closer.Close()

	if _, _, err := Open(Options{Path: filepath.Join(dir, "missing")}); err == nil {
		t.Error("Open(missing) error = nil")
	}
}

func TestFileLinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(path, []byte(`<a href="a.html">a</a><img src="i.png">`), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileLinks().Links(path, "http://h.example/")
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	want := []string{"http://h.example/a.html", "http://h.example/i.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Links() = %v, want %v", got, want)
	}

	if _, err := NewFileLinks(AnchorSelectors...).Links(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Error("Links(missing) error = nil")
	}
}
