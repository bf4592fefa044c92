package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/korjavin/caloriediary/internal/metrics"
)

// DefaultURL is the public product list the app was built against.
const DefaultURL = "https://raw.githubusercontent.com/goodwin74/prod_rus/main/products.json"

// maxBodySize caps the catalog document size.
const maxBodySize = 64 << 20

// Client fetches the whole product catalog from a fixed URL.
type Client struct {
	URL        string
	HTTPClient *http.Client
	// FetchHist, when set, receives the latency of every fetch.
	FetchHist *metrics.Histogram
}

// NewClient returns a Client for url. A zero timeout means no timeout.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// FetchAll downloads the catalog. It fails closed: any transport, status or
// decode error is logged and an empty list is returned.
func (c *Client) FetchAll(ctx context.Context) []Product {
	start := time.Now()
	products, err := c.fetch(ctx)
	if c.FetchHist != nil {
		c.FetchHist.Observe(time.Since(start))
	}
	if err != nil {
		slog.Warn("catalog fetch failed", "url", c.URL, "error", err)
		return []Product{}
	}
	slog.Debug("catalog fetched", "url", c.URL, "products", len(products), "duration", time.Since(start))
	return products
}

func (c *Client) fetch(ctx context.Context) ([]Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	products, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return products, nil
}
