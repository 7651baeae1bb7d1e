package crates

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/internal/model"
	"go.uber.org/zap"
)

const (
	// DefaultSearchLimit applies when SearchOptions.Limit is zero.
	DefaultSearchLimit = 10

	// MaxPageSize is the largest per_page crates.io accepts.
	MaxPageSize = 100
)

// SortMode orders search results.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortDownloads SortMode = "downloads"
)

// ParseSortMode maps a tool argument onto a SortMode; empty means relevance.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortDownloads:
		return SortDownloads, nil
	default:
		return "", fmt.Errorf("%w: unsupported sort %q (use relevance or downloads)", errors.ErrInvalidArgument, s)
	}
}

// SearchOptions narrows a search.
type SearchOptions struct {
	Limit        int
	Sort         SortMode
	MinDownloads uint64
}

type searchResponse struct {
	Crates *[]searchCrate `json:"crates"`
	Meta   struct {
		Total uint64 `json:"total"`
	} `json:"meta"`
}

type searchCrate struct {
	Name        string  `json:"name"`
	MaxVersion  string  `json:"max_version"`
	Description *string `json:"description"`
	Downloads   uint64  `json:"downloads"`
}

// Search runs a crates.io full-text search. When a download floor or download
// ordering is requested, more results are fetched than asked for so that the
// filtered, re-sorted top of the list is still limit entries long.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]model.CrateSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", errors.ErrInvalidArgument)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if opts.Sort == "" {
		opts.Sort = SortRelevance
	}

	perPage := limit
	if opts.MinDownloads > 0 || opts.Sort == SortDownloads {
		perPage = min(limit*3, MaxPageSize)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(perPage))
	if opts.Sort == SortDownloads {
		params.Set("sort", string(SortDownloads))
	}

	var resp searchResponse
	if err := c.getJSON(ctx, c.endpoint(params, "crates"), &resp); err != nil {
		return nil, err
	}
	if resp.Crates == nil {
		return nil, fmt.Errorf("%w: search response has no crates field", errors.ErrUpstream)
	}

	results := make([]model.CrateSummary, 0, len(*resp.Crates))
	for _, hit := range *resp.Crates {
		if hit.Name == "" {
			return nil, fmt.Errorf("%w: search response contains a crate without a name", errors.ErrUpstream)
		}
		if hit.Downloads < opts.MinDownloads {
			continue
		}
		results = append(results, model.CrateSummary{
			Name:        hit.Name,
			MaxVersion:  hit.MaxVersion,
			Description: hit.Description,
			Downloads:   hit.Downloads,
		})
	}

	if opts.Sort == SortDownloads {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Downloads > results[j].Downloads
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}

	c.logger.Info("search done",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.String("sort", string(opts.Sort)),
		zap.Uint64("min_downloads", opts.MinDownloads),
	)
	return results, nil
}
