package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxPageChars     = 20000
)

// Page is the readable text of a fetched document.
type Page struct {
	URL     string
	Title   string
	Excerpt string
	Text    string
}

// Fetcher retrieves a page and reduces it to readable text.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// HTTPFetcher downloads pages with net/http and extracts them with readability.
type HTTPFetcher struct {
	UserAgent string
	Client    *http.Client
}

func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	parsedURL, err := parseHTTPURL(rawURL)
	if err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	return extract(resp.Body, parsedURL)
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("only http/https URLs can be read, got %q", u.Scheme)
	}
	return u, nil
}

// extract runs readability over an HTML document and strips any markup left
// in the text.
func extract(r io.Reader, pageURL *url.URL) (Page, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse article: %v", err)
	}

	p := bluemonday.StrictPolicy()
	text := strings.TrimSpace(p.Sanitize(article.TextContent))
	if len(text) > maxPageChars {
		text = text[:maxPageChars] + "\n... (content truncated) ..."
	}
	return Page{
		URL:     pageURL.String(),
		Title:   article.Title,
		Excerpt: article.Excerpt,
		Text:    text,
	}, nil
}

// ReadPageTool lets the search agent read a result in full. It never emits
// traces: the search that surfaced the URL already did.
type ReadPageTool struct {
	Fetcher Fetcher
}

func NewReadPageTool(f Fetcher) *ReadPageTool {
	return &ReadPageTool{Fetcher: f}
}

func (s *ReadPageTool) Name() string {
	return "read_page"
}

func (s *ReadPageTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (s *ReadPageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the webpage to read (e.g., https://example.com/article)",
			},
		},
		"required": []string{"url"},
	}
}

func (s *ReadPageTool) Execute(ctx context.Context, input string) (Result, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return Result{}, fmt.Errorf("invalid input: %v", err)
	}

	page, err := s.Fetcher.Fetch(ctx, args.URL)
	if err != nil {
		return Result{}, err
	}

	output := fmt.Sprintf("TITLE: %s\n", page.Title)
	if page.Excerpt != "" {
		output += fmt.Sprintf("EXCERPT: %s\n", page.Excerpt)
	}
	output += "\n-- CONTENT --\n" + page.Text
	return Text(output), nil
}
