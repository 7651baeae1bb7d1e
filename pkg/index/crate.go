package index

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Crate is the parsed index file of one crate.
type Crate struct {
	versions []Version
}

// Version is one line of an index file.
type Version struct {
	Name        string              `json:"name"`
	Vers        string              `json:"vers"`
	Deps        []Dependency        `json:"deps"`
	Cksum       string              `json:"cksum"`
	Features    map[string][]string `json:"features"`
	Features2   map[string][]string `json:"features2,omitempty"`
	Yanked      bool                `json:"yanked"`
	Links       *string             `json:"links,omitempty"`
	RustVersion *string             `json:"rust_version,omitempty"`
}

// Dependency is one entry of Version.Deps.
type Dependency struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          *string  `json:"target"`
	Kind            *string  `json:"kind"`
	Package         *string  `json:"package"`
}

// UnmarshalJSON defaults default_features to true, as cargo does.
func (d *Dependency) UnmarshalJSON(data []byte) error {
	type plain Dependency
	dep := plain{DefaultFeatures: true}
	if err := json.Unmarshal(data, &dep); err != nil {
		return err
	}
	*d = Dependency(dep)
	return nil
}

// CrateName is the real name of the dependency, which differs from Name when
// the dependency was renamed in the manifest.
func (d Dependency) CrateName() string {
	if d.Package != nil && *d.Package != "" {
		return *d.Package
	}
	return d.Name
}

// DependencyKind is normal, dev or build. A missing kind means normal.
func (d Dependency) DependencyKind() string {
	if d.Kind == nil || *d.Kind == "" {
		return "normal"
	}
	return *d.Kind
}

// ParseCrate parses the newline-delimited records of an index file. A single
// malformed line fails the whole file.
func ParseCrate(data []byte) (*Crate, error) {
	c := &Crate{}
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var v Version
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("failed to parse index line %d: %w", i+1, err)
		}
		if v.Name == "" || v.Vers == "" {
			return nil, fmt.Errorf("failed to parse index line %d: missing name or vers", i+1)
		}
		c.versions = append(c.versions, v)
	}

	if len(c.versions) == 0 {
		return nil, fmt.Errorf("index file has no versions")
	}
	return c, nil
}

// Name returns the crate name as recorded in the index.
func (c *Crate) Name() string {
	return c.versions[len(c.versions)-1].Name
}

// Versions returns all versions in index (publication) order.
func (c *Crate) Versions() []Version {
	return c.versions
}

// Version returns the version whose number equals num exactly.
func (c *Crate) Version(num string) (Version, bool) {
	for _, v := range c.versions {
		if v.Vers == num {
			return v, true
		}
	}
	return Version{}, false
}

// HighestVersion returns the greatest version by semver precedence, yanked
// versions included. Numbers that do not parse rank below every valid one.
func (c *Crate) HighestVersion() Version {
	best := -1
	var bestVer *semver.Version
	for i, v := range c.versions {
		parsed, err := semver.NewVersion(v.Vers)
		if err != nil {
			if bestVer == nil {
				best = i
			}
			continue
		}
		if bestVer == nil || !parsed.LessThan(bestVer) {
			best, bestVer = i, parsed
		}
	}
	return c.versions[best]
}
