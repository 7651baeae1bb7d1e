// Package docs gathers best-effort documentation for a crate from docs.rs:
// the resolved version, the readme and the module/item outline of the
// rendered crate root.
package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ippclub/crates-mcp/internal/config"
	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// readmeNames are tried in order under /{name}/{version}/src/{name}/.
var readmeNames = []string{"README.md", "readme.md", "Readme.md"}

// maxReadmeSize is the largest readme returned. Larger files are skipped
// rather than cut.
const maxReadmeSize = 1 << 20

type Client struct {
	baseURL   *url.URL
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.Docs.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("failed to create HTTP client: invalid docs base url %q", cfg.Docs.BaseURL)
	}

	return &Client{
		baseURL:   base,
		userAgent: cfg.Registry.UserAgent,
		http:      &http.Client{Timeout: cfg.Docs.Timeout.Duration},
		limiter:   cfg.RateLimit.NewLimiter(),
		logger:    logger,
	}, nil
}

// GetDocumentation returns what docs.rs knows about one version of a crate.
// An empty version, or "latest", follows the docs.rs redirect to the latest
// build.
func (c *Client) GetDocumentation(ctx context.Context, name, version string) (*model.CrateDocumentation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: crate name cannot be empty", errors.ErrInvalidArgument)
	}

	version = strings.TrimSpace(version)
	if version == "" || strings.EqualFold(version, "latest") {
		resolved, err := c.resolveVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		version = resolved
	}

	var (
		readme *string
		doc    *goquery.Document
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		readme = c.readme(gctx, name, version)
		return nil
	})
	g.Go(func() error {
		var err error
		doc, err = c.page(gctx, c.pageURL(name, version, libName(name)))
		if err != nil {
			return fmt.Errorf("%w: failed to get documentation page for %s %s: %v", errors.ErrUnavailable, name, version, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outline := extractOutline(doc)
	result := &model.CrateDocumentation{
		Name:        name,
		Version:     version,
		Description: outline.Description,
		Readme:      readme,
		Modules:     outline.Modules,
		Items:       outline.Items,
	}

	c.logger.Info("retrieved documentation structure",
		zap.String("crate", name),
		zap.String("version", version),
		zap.Int("modules", len(result.Modules)),
		zap.Int("items", len(result.Items)),
		zap.Bool("readme", readme != nil),
	)
	return result, nil
}

// resolveVersion loads /{name}/ and reads the version from the URL docs.rs
// redirected to. When that is the literal "latest", the version shown on the
// page is used if there is one.
func (c *Client) resolveVersion(ctx context.Context, name string) (string, error) {
	resp, err := c.get(ctx, c.pageURL(name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve latest version of %s: %w", name, err)
	}
	defer resp.Body.Close()

	version, ok := versionFromPath(resp.Request.URL.Path, name)
	if !ok {
		return "", fmt.Errorf("%w: could not extract version for %s from %s", errors.ErrParse, name, resp.Request.URL)
	}
	if version != "latest" {
		return version, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return version, nil
	}
	if shown := pageVersion(doc); shown != "" {
		return shown, nil
	}
	return version, nil
}

// versionFromPath returns the path segment right after name.
func versionFromPath(path, name string) (string, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if seg != name && seg != libName(name) {
			continue
		}
		if i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], true
		}
		return "", false
	}
	return "", false
}

// libName is the rustdoc directory of a crate's library target.
func libName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// readme returns the first readme variant that can be fetched, or nil.
func (c *Client) readme(ctx context.Context, name, version string) *string {
	for _, file := range readmeNames {
		u := c.pageURL(name, version, "src", libName(name)) + file
		resp, err := c.get(ctx, u)
		if err != nil {
			c.logger.Debug("readme not found", zap.String("url", u), zap.Error(err))
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadmeSize+1))
		resp.Body.Close()
		if err != nil {
			c.logger.Debug("failed to read readme", zap.String("url", u), zap.Error(err))
			continue
		}
		if len(body) > maxReadmeSize {
			c.logger.Warn("readme too large, skipping", zap.String("url", u), zap.Int("limit", maxReadmeSize))
			continue
		}

		c.logger.Debug("found readme", zap.String("crate", name), zap.String("url", u))
		content := string(body)
		return &content
	}
	return nil
}

// page fetches and parses an HTML page.
func (c *Client) page(ctx context.Context, u string) (*goquery.Document, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", u, err)
	}
	return doc, nil
}

// pageURL builds base/seg/seg/.../ with a trailing slash.
func (c *Client) pageURL(segments ...string) string {
	u := *c.baseURL
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(escaped, "/") + "/"
	return u.String()
}

// get issues a rate-limited GET. The caller closes the body of a 2xx response.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: request to %s not sent: %v", errors.ErrUnavailable, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("making request", zap.String("url", rawURL))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request to %s: %v", errors.ErrUnavailable, rawURL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: documentation not found at %s", errors.ErrNotFound, rawURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, &errors.UpstreamError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
