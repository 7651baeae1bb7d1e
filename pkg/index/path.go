package index

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DirName is the directory cargo uses for the crates.io git index under
// <cargo home>/registry/index.
const DirName = "github.com-1ecc6299db9ec823"

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// CratePath returns the path of name's file inside the index tree.
func CratePath(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	name = strings.ToLower(name)
	switch len(name) {
	case 1:
		return "1/" + name, nil
	case 2:
		return "2/" + name, nil
	case 3:
		return "3/" + name[:1] + "/" + name, nil
	default:
		return name[:2] + "/" + name[2:4] + "/" + name, nil
	}
}

func validName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// CargoHome returns $CARGO_HOME, or ~/.cargo.
func CargoHome(lookupEnv LookupEnv) string {
	if home, ok := lookupEnv("CARGO_HOME"); ok && home != "" {
		return home
	}
	for _, key := range []string{"HOME", "USERPROFILE"} {
		if home, ok := lookupEnv(key); ok && home != "" {
			return filepath.Join(home, ".cargo")
		}
	}
	return ".cargo"
}

// DefaultPath is where cargo keeps the crates.io git index.
func DefaultPath(lookupEnv LookupEnv) string {
	return filepath.Join(CargoHome(lookupEnv), "registry", "index", DirName)
}

// RegistryRoot locates cargo's registry directory for diagnostics. Candidates
// are tried in order: ~/.cargo/registry, %APPDATA%/.cargo/registry, then
// $CARGO_HOME/registry; the first that exists wins.
func RegistryRoot(lookupEnv LookupEnv, exists func(path string) bool) (string, bool) {
	if home, ok := lookupEnv("HOME"); ok && home != "" {
		path := filepath.Join(home, ".cargo", "registry")
		if exists(path) {
			return path, true
		}
	}

	if appData, ok := lookupEnv("APPDATA"); ok && appData != "" {
		if exists(filepath.Join(appData, ".cargo")) {
			path := filepath.Join(appData, ".cargo", "registry")
			if exists(path) {
				return path, true
			}
		}
	}

	if cargoHome, ok := lookupEnv("CARGO_HOME"); ok && cargoHome != "" {
		path := filepath.Join(cargoHome, "registry")
		if exists(path) {
			return path, true
		}
	}

	return "", false
}
