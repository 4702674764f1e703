package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/utils"
)

const defaultPageSize = 30

// Client fetches knowledge-base articles from a Help Center style JSON
// API with cursor pagination: each page carries links.next and
// meta.has_more. Articles are deduplicated by id across pages and a
// repeating next link breaks the walk instead of looping forever.
type Client struct {
	apiURL     string
	pageSize   int
	httpClient *http.Client
	retrier    *Retrier
	cache      domain.Cache
	logger     *utils.Logger
}

// Options contains options for creating a Client
type Options struct {
	APIURL   string
	PageSize int
	Timeout  time.Duration
	Retrier  RetrierOptions
	Cache    domain.Cache
	Logger   *utils.Logger
}

// page mirrors one API response page.
type page struct {
	Articles []domain.Article `json:"articles"`
	Meta     struct {
		HasMore bool `json:"has_more"`
	} `json:"meta"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// NewClient creates a new article client
func NewClient(opts Options) (*Client, error) {
	if opts.APIURL == "" {
		return nil, domain.NewConfigurationError("source.api_url", "must be set")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}

	return &Client{
		apiURL:     opts.APIURL,
		pageSize:   opts.PageSize,
		httpClient: &http.Client{Timeout: opts.Timeout},
		retrier:    NewRetrier(opts.Retrier),
		cache:      opts.Cache,
		logger:     logger.WithComponent("fetcher"),
	}, nil
}

var _ domain.Source = (*Client)(nil)

// Fetch walks every page of the article listing and returns all
// published articles, deduplicated by id. Draft articles are skipped.
func (c *Client) Fetch(ctx context.Context) ([]domain.Article, error) {
	pageURL, err := c.firstPageURL()
	if err != nil {
		return nil, err
	}

	var articles []domain.Article
	seen := make(map[int64]bool)
	pageIdx := 0

	for pageURL != "" {
		pageIdx++

		p, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, a := range p.Articles {
			if a.Draft || seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			articles = append(articles, a)
			added++
		}

		c.logger.Debug().
			Int("page", pageIdx).
			Int("added", added).
			Int("total", len(articles)).
			Msg("Fetched article page")

		if !p.Meta.HasMore || p.Links.Next == "" {
			break
		}
		if p.Links.Next == pageURL {
			c.logger.Warn().
				Int("page", pageIdx).
				Str("next", p.Links.Next).
				Msg("Pagination loop detected, stopping")
			break
		}
		pageURL = p.Links.Next
	}

	c.logger.Info().
		Int("pages", pageIdx).
		Int("articles", len(articles)).
		Msg("Article fetch complete")

	return articles, nil
}

func (c *Client) firstPageURL() (string, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return "", domain.NewConfigurationError("source.api_url", err.Error())
	}
	q := u.Query()
	q.Set("page[size]", fmt.Sprintf("%d", c.pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*page, error) {
	if c.cache != nil {
		if data, err := c.cache.Get(ctx, pageURL); err == nil {
			var p page
			if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
				c.logger.Debug().Str("url", pageURL).Msg("Page cache hit")
				return &p, nil
			}
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Page cache read failed")
		}
	}

	body, err := RetryWithValue(ctx, c.retrier, func() ([]byte, error) {
		return c.get(ctx, pageURL)
	})
	if err != nil {
		return nil, err
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, domain.NewFetchError(pageURL, 0, fmt.Errorf("invalid JSON: %w", err))
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, pageURL, body); err != nil {
			c.logger.Warn().Err(err).Msg("Page cache write failed")
		}
	}

	return &p, nil
}

func (c *Client) get(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domain.NewFetchError(pageURL, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(pageURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFetchError(pageURL, resp.StatusCode,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	return io.ReadAll(resp.Body)
}
