package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/models"
)

// DefaultSearchURL is the search endpoint queried when none is configured.
const DefaultSearchURL = "http://search.twitter.com/search.json?q=%22polar%20bear%22&result_type=mixed&rpp=100"

// maxBodySize bounds how much of a page response is read.
const maxBodySize = 8 << 20

var errMissingResults = errors.New("response has no results field")

// searchResponse is the JSON body of a search page.
type searchResponse struct {
	Results  *[]models.ResultItem `json:"results"`
	NextPage *string              `json:"next_page"`
}

// HTTPConfig holds configuration for the HTTP page source.
type HTTPConfig struct {
	Client   *http.Client
	URL      string
	Timeout  time.Duration
	PageRate float64
}

// HTTPSource fetches search pages over HTTP. The page number is sent as the
// "page" query parameter.
type HTTPSource struct {
	client  *http.Client
	limiter *rate.Limiter
	base    *url.URL
	timeout time.Duration
}

// NewHTTPSource creates an HTTP page source. A PageRate of zero disables
// request pacing.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	raw := cfg.URL
	if raw == "" {
		raw = DefaultSearchURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid search URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid search URL scheme %q", base.Scheme)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.PageRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PageRate), 1)
	}

	return &HTTPSource{
		client:  client,
		limiter: limiter,
		base:    base,
		timeout: cfg.Timeout,
	}, nil
}

// PageURL returns the request URL for a page number.
func (s *HTTPSource) PageURL(page int) string {
	u := *s.base
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage retrieves a single page. Failures are returned as *FetchError and
// are not retried.
func (s *HTTPSource) FetchPage(ctx context.Context, page int) (models.Page, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Page{}, &FetchError{Page: page, Err: err}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.PageURL(page), nil)
	if err != nil {
		return models.Page{}, &FetchError{Page: page, Err: fmt.Errorf("failed to create search request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Page{}, &FetchError{Page: page, Err: fmt.Errorf("search request failed: %w", err)}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Page{}, &FetchError{Page: page, Err: fmt.Errorf("failed to read search response: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return models.Page{}, &FetchError{
			Page: page,
			Err:  fmt.Errorf("search request failed (status %d): %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	return decodePage(page, body)
}

func decodePage(page int, body []byte) (models.Page, error) {
	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return models.Page{}, &FetchError{Page: page, Err: fmt.Errorf("failed to parse search response: %w", err)}
	}
	if sr.Results == nil {
		return models.Page{}, &FetchError{Page: page, Err: errMissingResults}
	}

	items := *sr.Results
	hasMore := len(items) > 0
	if sr.NextPage != nil {
		hasMore = hasMore && *sr.NextPage != ""
	}

	logger.Debug("fetched search page", "page", page, "items", len(items), "has_more", hasMore)

	return models.Page{Items: items, HasMore: hasMore}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
