package crates

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/internal/model"
	"github.com/ippclub/crates-mcp/pkg/index"
	"go.uber.org/zap"
)

// GetDependencies lists the dependencies of one version of a crate, read
// from the local index only. An empty version selects the highest version
// the index knows.
func (c *Client) GetDependencies(name, version string) ([]model.CrateDependency, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}

	if c.index == nil {
		return nil, c.unavailableError()
	}

	crate, err := c.index.Crate(name)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: crate %q not found in index", errors.ErrNotFound, name)
	}
	if stderrors.Is(err, index.ErrInvalidName) {
		return nil, fmt.Errorf("%w: %q is not a valid crate name", errors.ErrInvalidArgument, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read crate %q from index: %v", errors.ErrUpstream, name, err)
	}

	var selected index.Version
	version = strings.TrimSpace(version)
	if version == "" {
		selected = crate.HighestVersion()
	} else {
		v, ok := crate.Version(version)
		if !ok {
			return nil, fmt.Errorf("%w: version %s of crate %q not found in index", errors.ErrNotFound, version, name)
		}
		selected = v
	}

	deps := make([]model.CrateDependency, 0, len(selected.Deps))
	for _, d := range selected.Deps {
		features := d.Features
		if features == nil {
			features = []string{}
		}
		deps = append(deps, model.CrateDependency{
			Name:            d.CrateName(),
			VersionReq:      d.Req,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Features:        features,
			Target:          d.Target,
			Kind:            d.DependencyKind(),
		})
	}

	c.logger.Info("retrieved crate dependencies",
		zap.String("crate", name),
		zap.String("version", selected.Vers),
		zap.Int("dependencies", len(deps)),
	)
	return deps, nil
}

func (c *Client) unavailableError() error {
	cause := "unknown cause"
	if c.indexCause != nil {
		cause = c.indexCause.Error()
	}
	return fmt.Errorf("%w: dependency lookup requires the local crates.io git index, which failed to initialize (%s). "+
		"This may be due to a corrupted index: delete %s and restart the server to rebuild it "+
		"(or run `crates-mcp index update`)",
		errors.ErrUnavailable, cause, c.indexPath)
}
