package model

import (
	"encoding/json"
	"time"
)

// CrateSummary represents one crates.io search hit
type CrateSummary struct {
	Name        string  `json:"name"`
	MaxVersion  string  `json:"max_version"`
	Description *string `json:"description"`
	Downloads   uint64  `json:"downloads"`
}

// CrateInfo represents the detailed view of a single crate
type CrateInfo struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Description   *string   `json:"description"`
	Documentation *string   `json:"documentation"`
	Homepage      *string   `json:"homepage"`
	Repository    *string   `json:"repository"`
	License       *string   `json:"license"`
	Authors       []string  `json:"authors"`
	Keywords      []string  `json:"keywords"`
	Categories    []string  `json:"categories"`
	Downloads     uint64    `json:"downloads"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CrateVersion represents one published version of a crate
type CrateVersion struct {
	Num       string          `json:"num"`
	CreatedAt time.Time       `json:"created_at"`
	Downloads uint64          `json:"downloads"`
	Features  json.RawMessage `json:"features"`
	Yanked    bool            `json:"yanked"`
}

// CrateDependency represents one dependency edge taken from the local index
type CrateDependency struct {
	Name            string   `json:"name"`
	VersionReq      string   `json:"version_req"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Features        []string `json:"features"`
	Target          *string  `json:"target"`
	Kind            string   `json:"kind"` // normal, dev, build
}

// CrateDocumentation represents what could be gathered from docs.rs
type CrateDocumentation struct {
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Description *string             `json:"description"`
	Readme      *string             `json:"readme"`
	Modules     []string            `json:"modules"`
	Items       []DocumentationItem `json:"items"`
}

// DocumentationItem is a single documented item (module, struct, function, ...)
type DocumentationItem struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Path        string  `json:"path"`
	Description *string `json:"description"`
}
