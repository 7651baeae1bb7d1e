package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/ippclub/crates-mcp/internal/crates"
	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/internal/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CratesBackend is the registry side of the tools.
type CratesBackend interface {
	Search(ctx context.Context, query string, opts crates.SearchOptions) ([]model.CrateSummary, error)
	GetDetail(ctx context.Context, name string) (*model.CrateInfo, error)
	GetVersions(ctx context.Context, name string, limit int) ([]model.CrateVersion, error)
	GetDependencies(name, version string) ([]model.CrateDependency, error)
}

// DocsBackend is the documentation side of the tools.
type DocsBackend interface {
	GetDocumentation(ctx context.Context, name, version string) (*model.CrateDocumentation, error)
}

// toolFunc runs a tool with arguments that already passed schema validation.
type toolFunc func(ctx context.Context, args json.RawMessage) (any, error)

type tool struct {
	def      *mcp.Tool
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	call     toolFunc
}

// Registry is the fixed, ordered tool catalog.
type Registry struct {
	tools  []*tool
	byName map[string]*tool
}

type searchArgs struct {
	Query        string `json:"query"`
	Limit        int    `json:"limit"`
	Sort         string `json:"sort"`
	MinDownloads uint64 `json:"min_downloads"`
}

type nameArgs struct {
	Name string `json:"name"`
}

type versionsArgs struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

type nameVersionArgs struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NewRegistry builds the tool catalog on top of the two backends.
func NewRegistry(registry CratesBackend, docs DocsBackend) (*Registry, error) {
	r := &Registry{byName: make(map[string]*tool)}

	err := r.add("search_crates", "Search for Rust crates on crates.io",
		object([]string{"query"}, map[string]*jsonschema.Schema{
			"query": {Type: "string", Description: "Search query"},
			"limit": integer("Maximum number of results (default: 10)", 1, 100),
			"sort": {
				Type:        "string",
				Description: "Sort order: relevance (default) or downloads",
				Enum:        []any{string(crates.SortRelevance), string(crates.SortDownloads)},
			},
			"min_downloads": {Type: "integer", Description: "Only return crates with at least this many downloads", Minimum: floatPtr(0)},
		}),
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args searchArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			sort, err := crates.ParseSortMode(args.Sort)
			if err != nil {
				return nil, err
			}
			return registry.Search(ctx, args.Query, crates.SearchOptions{
				Limit:        args.Limit,
				Sort:         sort,
				MinDownloads: args.MinDownloads,
			})
		})
	if err != nil {
		return nil, err
	}

	err = r.add("get_crate_info", "Get detailed information about a specific Rust crate",
		object([]string{"name"}, map[string]*jsonschema.Schema{
			"name": {Type: "string", Description: "Crate name"},
		}),
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args nameArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			return registry.GetDetail(ctx, args.Name)
		})
	if err != nil {
		return nil, err
	}

	err = r.add("get_crate_versions", "Get version history for a Rust crate",
		object([]string{"name"}, map[string]*jsonschema.Schema{
			"name":  {Type: "string", Description: "Crate name"},
			"limit": integer("Maximum number of versions to return", 1, 50),
		}),
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args versionsArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			return registry.GetVersions(ctx, args.Name, args.Limit)
		})
	if err != nil {
		return nil, err
	}

	err = r.add("get_crate_dependencies", "Get dependencies for a specific version of a Rust crate",
		object([]string{"name"}, map[string]*jsonschema.Schema{
			"name":    {Type: "string", Description: "Crate name"},
			"version": {Type: "string", Description: "Specific version (defaults to latest)"},
		}),
		func(_ context.Context, raw json.RawMessage) (any, error) {
			var args nameVersionArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			return registry.GetDependencies(args.Name, args.Version)
		})
	if err != nil {
		return nil, err
	}

	err = r.add("get_crate_documentation", "Get documentation information for a Rust crate from docs.rs",
		object([]string{"name"}, map[string]*jsonschema.Schema{
			"name":    {Type: "string", Description: "Crate name"},
			"version": {Type: "string", Description: "Specific version (defaults to latest)"},
		}),
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args nameVersionArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			return docs.GetDocumentation(ctx, args.Name, args.Version)
		})
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) add(name, description string, schema *jsonschema.Schema, call toolFunc) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("failed to resolve schema for %s: %w", name, err)
	}

	t := &tool{
		def: &mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:  true,
				OpenWorldHint: boolPtr(true),
			},
		},
		schema:   schema,
		resolved: resolved,
		call:     call,
	}
	r.tools = append(r.tools, t)
	r.byName[name] = t
	return nil
}

// Tools returns the catalog in registration order.
func (r *Registry) Tools() []*mcp.Tool {
	defs := make([]*mcp.Tool, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

// Has reports whether a tool with that name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Call validates raw against the tool's schema and runs it. Validation
// failures wrap errors.ErrInvalidArgument.
func (r *Registry) Call(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrToolNotFound, name)
	}

	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("%w: arguments must be an object", errors.ErrInvalidArgument)
		}
	}

	for _, req := range t.schema.Required {
		if _, ok := args[req]; !ok {
			return nil, fmt.Errorf("%w: missing required argument '%s'", errors.ErrInvalidArgument, req)
		}
	}
	if err := t.resolved.Validate(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}

	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return t.call(ctx, normalized)
}

func decode(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func integer(description string, lo, hi float64) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "integer",
		Description: description,
		Minimum:     floatPtr(lo),
		Maximum:     floatPtr(hi),
	}
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }
