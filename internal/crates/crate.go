package crates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/internal/model"
	"go.uber.org/zap"
)

type crateResponse struct {
	Crate    *crateData    `json:"crate"`
	Versions []versionData `json:"versions"`
}

type crateData struct {
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	Documentation *string   `json:"documentation"`
	Homepage      *string   `json:"homepage"`
	Repository    *string   `json:"repository"`
	Downloads     uint64    `json:"downloads"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Keywords      []string  `json:"keywords"`
	Categories    []string  `json:"categories"`
}

type versionData struct {
	Num         string          `json:"num"`
	CreatedAt   time.Time       `json:"created_at"`
	Downloads   uint64          `json:"downloads"`
	Features    json.RawMessage `json:"features"`
	Yanked      bool            `json:"yanked"`
	License     *string         `json:"license"`
	PublishedBy *publisher      `json:"published_by"`
}

type publisher struct {
	Login string  `json:"login"`
	Name  *string `json:"name"`
}

// fetchCrate loads /api/v1/crates/{name}.
func (c *Client) fetchCrate(ctx context.Context, name string) (*crateResponse, error) {
	var resp crateResponse
	if err := c.getJSON(ctx, c.endpoint(nil, "crates", name), &resp); err != nil {
		return nil, fmt.Errorf("failed to get crate %q: %w", name, err)
	}
	if resp.Crate == nil || resp.Crate.Name == "" {
		return nil, fmt.Errorf("%w: response for crate %q has no crate object", errors.ErrUpstream, name)
	}
	for _, v := range resp.Versions {
		if v.Num == "" {
			return nil, fmt.Errorf("%w: response for crate %q has a version without num", errors.ErrUpstream, name)
		}
	}
	return &resp, nil
}

// latestVersion is the first non-yanked version in API order, or the first
// version when every one is yanked.
func latestVersion(versions []versionData) (versionData, bool) {
	for _, v := range versions {
		if !v.Yanked {
			return v, true
		}
	}
	if len(versions) > 0 {
		return versions[0], true
	}
	return versionData{}, false
}

// GetDetail returns the detailed record of a crate, describing its latest
// non-yanked version.
func (c *Client) GetDetail(ctx context.Context, name string) (*model.CrateInfo, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetchCrate(ctx, name)
	if err != nil {
		return nil, err
	}

	latest, ok := latestVersion(resp.Versions)
	if !ok {
		return nil, fmt.Errorf("%w: no versions found for crate %q", errors.ErrNotFound, name)
	}

	info := &model.CrateInfo{
		Name:          resp.Crate.Name,
		Version:       latest.Num,
		Description:   resp.Crate.Description,
		Documentation: resp.Crate.Documentation,
		Homepage:      resp.Crate.Homepage,
		Repository:    resp.Crate.Repository,
		License:       latest.License,
		Authors:       []string{},
		Keywords:      []string{},
		Categories:    []string{},
		Downloads:     resp.Crate.Downloads,
		CreatedAt:     resp.Crate.CreatedAt,
		UpdatedAt:     resp.Crate.UpdatedAt,
	}

	if c.indexedCrate(name) {
		if resp.Crate.Keywords != nil {
			info.Keywords = resp.Crate.Keywords
		}
		if resp.Crate.Categories != nil {
			info.Categories = resp.Crate.Categories
		}
		if p := latest.PublishedBy; p != nil {
			switch {
			case p.Name != nil && *p.Name != "":
				info.Authors = []string{*p.Name}
			case p.Login != "":
				info.Authors = []string{p.Login}
			}
		}
	}

	c.logger.Info("retrieved crate info",
		zap.String("crate", name),
		zap.String("version", info.Version),
	)
	return info, nil
}

// indexedCrate reports whether the local index is available and knows name.
func (c *Client) indexedCrate(name string) bool {
	if c.index == nil {
		return false
	}
	_, err := c.index.Crate(name)
	if err != nil && !isNotFound(err) {
		c.logger.Debug("index lookup failed", zap.String("crate", name), zap.Error(err))
	}
	return err == nil
}

// GetVersions returns the published versions of a crate in API order,
// truncated to limit when limit is positive.
func (c *Client) GetVersions(ctx context.Context, name string, limit int) ([]model.CrateVersion, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetchCrate(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]model.CrateVersion, 0, len(resp.Versions))
	for _, v := range resp.Versions {
		features := v.Features
		if len(features) == 0 || string(features) == "null" {
			features = json.RawMessage("{}")
		}
		versions = append(versions, model.CrateVersion{
			Num:       v.Num,
			CreatedAt: v.CreatedAt,
			Downloads: v.Downloads,
			Features:  features,
			Yanked:    v.Yanked,
		})
	}
	if limit > 0 && len(versions) > limit {
		versions = versions[:limit]
	}

	c.logger.Info("retrieved crate versions",
		zap.String("crate", name),
		zap.Int("versions", len(versions)),
	)
	return versions, nil
}
