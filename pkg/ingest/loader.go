package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/recall/internal/types"
)

type LoaderConfig struct {
	RateLimit     float64 // URL fetches per second
	Timeout       time.Duration
	MainSelectors []string // tried in order to find the content root of HTML pages
	NoisePatterns []string // boilerplate removed from every block
}

// Source is raw text ready to be wrapped in a models.Document.
type Source struct {
	Location string
	Title    string
	Text     string
}

// Loader reads plain text, markdown and HTML from files or URLs. HTML is
// flattened to markdown-like text: headings become "#" lines and blocks are
// separated by blank lines, so the section chunker can find structure.
type Loader struct {
	config  LoaderConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewLoader(config LoaderConfig) *Loader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.MainSelectors) == 0 {
		config.MainSelectors = []string{
			"main",
			"article",
			".content",
			"#content",
			".documentation",
			"#documentation",
		}
	}
	if config.NoisePatterns == nil {
		config.NoisePatterns = []string{
			"Cookie Policy",
			"Accept Cookies",
			"Privacy Policy",
			"Terms of Service",
		}
	}

	return &Loader{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Load reads location as a URL when it has an http(s) scheme and as a file
// path otherwise.
func (l *Loader) Load(ctx context.Context, location string) (Source, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return l.LoadURL(ctx, location)
	}
	return l.LoadFile(location)
}

func (l *Loader) LoadFile(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	src := Source{
		Location: abs,
		Title:    strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".html", ".htm":
		title, text, err := l.parseHTML(bytes.NewReader(data))
		if err != nil {
			return Source{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if title != "" {
			src.Title = title
		}
		src.Text = text
	default:
		src.Text = string(data)
	}
	return src, nil
}

func (l *Loader) LoadURL(ctx context.Context, url string) (Source, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Source{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("%w: fetch %s: %w", types.ErrDependencyUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Source{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}

	src := Source{Location: url, Title: url}
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return Source{}, fmt.Errorf("failed to read %s: %w", url, err)
		}
		src.Text = string(data)
		return src, nil
	}

	title, text, err := l.parseHTML(resp.Body)
	if err != nil {
		return Source{}, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	if title != "" {
		src.Title = title
	}
	src.Text = text
	return src, nil
}

var headingPrefix = map[string]string{
	"h1": "# ",
	"h2": "## ",
	"h3": "### ",
	"h4": "#### ",
	"h5": "#### ",
	"h6": "#### ",
}

func (l *Loader) parseHTML(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	title = l.cleanContent(doc.Find("title").First().Text())
	if title == "" {
		title = l.cleanContent(doc.Find("h1").First().Text())
	}

	root := doc.Find("body")
	for _, selector := range l.config.MainSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}
	if root.Length() == 0 {
		root = doc.Selection
	}
	root.Find("script, style, nav, footer, noscript").Remove()

	var blocks []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are emitted by their outermost ancestor.
		if s.ParentsFiltered("p, li, pre, blockquote").Length() > 0 {
			return
		}
		content := l.cleanContent(s.Text())
		if content == "" {
			return
		}
		name := goquery.NodeName(s)
		if prefix, ok := headingPrefix[name]; ok {
			content = prefix + content
		} else if name == "li" {
			content = "- " + content
		}
		blocks = append(blocks, content)
	})

	if len(blocks) == 0 {
		return title, l.cleanContent(root.Text()), nil
	}
	return title, strings.Join(blocks, "\n\n"), nil
}

func (l *Loader) cleanContent(content string) string {
	for _, pattern := range l.config.NoisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.Join(strings.Fields(content), " ")
}
