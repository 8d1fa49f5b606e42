package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in a shared headless Chrome before extracting
// them, for sites that build their content with JavaScript.
type BrowserFetcher struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	timeout       time.Duration
}

func NewBrowserFetcher() *BrowserFetcher {
	return &BrowserFetcher{timeout: 60 * time.Second}
}

func (b *BrowserFetcher) initBrowser() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *BrowserFetcher) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
	return nil
}

func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	parsedURL, err := parseHTTPURL(rawURL)
	if err != nil {
		return Page{}, err
	}
	if err := b.initBrowser(); err != nil {
		return Page{}, fmt.Errorf("failed to initialize browser: %v", err)
	}

	b.mu.Lock()
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	b.mu.Unlock()
	defer tabCancel()

	actionCtx, cancel := context.WithTimeout(tabCtx, b.timeout)
	defer cancel()
	// follow the caller's cancellation as well as our own timeout
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err = chromedp.Run(actionCtx,
		chromedp.Navigate(rawURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Page{}, fmt.Errorf("browser fetch failed: %v", err)
	}

	return extract(strings.NewReader(html), parsedURL)
}
