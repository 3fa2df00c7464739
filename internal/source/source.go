package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"zeptobook/internal/types"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

type Source interface {
	Fetch(ctx context.Context) (*types.CatalogResponse, error)
}

// Fetcher performs rate-limited GET requests, retrying on 429 and 5xx with exponential backoff
type Fetcher struct {
	Client     *http.Client
	Limiter    *rate.Limiter
	UserAgent  string
	MaxRetries int
	// Backoff is the delay before the first retry, doubled on each next one
	Backoff time.Duration
}

func NewFetcher(rps float64, maxRetries int) *Fetcher {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Fetcher{
		Client:     &http.Client{Timeout: 15 * time.Second},
		Limiter:    limiter,
		UserAgent:  "zeptobook/1.0",
		MaxRetries: maxRetries,
		Backoff:    time.Second,
	}
}

// Get always sends at least one request, a negative MaxRetries counts as zero
func (f *Fetcher) Get(ctx context.Context, u *url.URL, accept string) ([]byte, error) {
	var lastErr error

	retries := max(f.MaxRetries, 0)
	for i := 0; i <= retries; i++ {
		if i > 0 {
			select {
			case <-time.After(f.Backoff * time.Duration(1<<uint(i-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		bs, retry, err := f.get(ctx, u, accept)
		if err == nil {
			return bs, nil
		}
		if !retry {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("after %d retries: %w", retries, lastErr)
}

func (f *Fetcher) get(ctx context.Context, u *url.URL, accept string) ([]byte, bool, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}

	var bs []byte
	func() {
		defer res.Body.Close()
		bs, err = io.ReadAll(res.Body)
	}()

	if res.StatusCode != http.StatusOK {
		retry := res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500
		return nil, retry, fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode)
	}

	if err != nil {
		return nil, true, fmt.Errorf("reading response: %w", err)
	}

	return bs, false, nil
}

func resolve(base *url.URL, href string, l *slog.Logger) *url.URL {
	if href == "" {
		return nil
	}

	u, err := url.Parse(href)
	if err != nil {
		l.Error("Failed to parse link " + href + ": " + err.Error())
		return nil
	}

	return base.ResolveReference(u)
}
