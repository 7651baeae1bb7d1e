// Package crates is the single entry point for crate metadata. Search, detail
// and version history come from the crates.io HTTP API; dependency graphs come
// only from the local git index, whose availability is decided once when the
// client is built.
package crates

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ippclub/crates-mcp/internal/config"
	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/pkg/index"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client reads crate metadata from crates.io and the local index.
type Client struct {
	baseURL   *url.URL
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger

	// Set once by New, read-only afterwards.
	index      Index
	indexState IndexState
	indexTrace []IndexState
	indexPath  string
	indexCause error
}

// New builds a Client and settles the availability of the local index. A nil
// opener opens cfg.Index.Path (or cargo's default clone). The only error is a
// registry base URL that cannot be used for requests.
func New(ctx context.Context, cfg *config.Config, opener IndexOpener, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.Registry.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("failed to create HTTP client: invalid registry base url %q", cfg.Registry.BaseURL)
	}

	c := &Client{
		baseURL:   base,
		userAgent: cfg.Registry.UserAgent,
		http:      &http.Client{Timeout: cfg.Registry.Timeout.Duration},
		limiter:   cfg.RateLimit.NewLimiter(),
		logger:    logger,
		indexPath: cfg.Index.Path,
	}
	if c.indexPath == "" {
		c.indexPath = index.DefaultPath(os.LookupEnv)
	}

	if cfg.Index.Disabled {
		c.indexState = IndexUnavailable
		c.indexTrace = []IndexState{IndexUninitialized, IndexUnavailable}
		c.indexCause = fmt.Errorf("disabled by configuration")
		logger.Info("git index disabled by configuration")
		return c, nil
	}

	if opener == nil {
		opener = OpenIndexAt(c.indexPath)
	}
	outcome := indexInit{
		open:      opener,
		backoff:   cfg.Index.RecoveryBackoff.Duration,
		lookupEnv: os.LookupEnv,
		exists:    pathExists,
		logger:    logger,
	}.run(ctx)

	c.index = outcome.index
	c.indexState = outcome.state
	c.indexTrace = outcome.trace
	c.indexCause = outcome.cause

	logger.Info("git index state settled",
		zap.String("state", c.indexState.String()),
		zap.Stringers("trace", c.indexTrace),
		zap.String("path", c.indexPath),
	)
	return c, nil
}

// IndexState reports the settled availability of the local index.
func (c *Client) IndexState() IndexState {
	return c.indexState
}

// IndexTrace returns the states the index went through during construction.
func (c *Client) IndexTrace() []IndexState {
	return append([]IndexState(nil), c.indexTrace...)
}

// IndexPath is the on-disk location of the local index.
func (c *Client) IndexPath() string {
	return c.indexPath
}

// IndexCause is the error that made the index unavailable, if any.
func (c *Client) IndexCause() error {
	return c.indexCause
}

// endpoint joins path segments onto the registry base URL.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/" + strings.Join(escapeAll(segments), "/")
	u.RawQuery = query.Encode()
	return u.String()
}

func escapeAll(segments []string) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = url.PathEscape(s)
	}
	return out
}

// getJSON issues a rate-limited GET and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: request to %s not sent: %v", errors.ErrUnavailable, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("making request", zap.String("url", rawURL))
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send request to %s: %v", errors.ErrUnavailable, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: resource not found at %s", errors.ErrNotFound, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("request failed",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
		)
		return &errors.UpstreamError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to parse response from %s: %v", errors.ErrUpstream, rawURL, err)
	}

	c.logger.Debug("request done",
		zap.String("url", rawURL),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// requireName trims name and rejects empty values.
func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: crate name cannot be empty", errors.ErrInvalidArgument)
	}
	return name, nil
}

// isNotFound reports whether err is an index miss.
func isNotFound(err error) bool {
	return stderrors.Is(err, index.ErrCrateNotFound)
}
