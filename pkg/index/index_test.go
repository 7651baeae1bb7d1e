package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const serdeIndexFile = `{"name":"serde","vers":"1.0.0","deps":[],"cksum":"aa","features":{},"yanked":false}
{"name":"serde","vers":"1.0.219","deps":[{"name":"serde_derive","req":"^1","features":[],"optional":true,"default_features":true,"target":null,"kind":"normal"},{"name":"serde_derive","req":"=1.0.219","features":[],"optional":false,"default_features":true,"target":"cfg(any())","kind":null}],"cksum":"bb","features":{"derive":["serde_derive"]},"yanked":false}
{"name":"serde","vers":"1.0.100","deps":[{"name":"derive_dep","req":"^1.0","features":["std"],"optional":false,"default_features":false,"target":null,"kind":"dev","package":"serde_derive"}],"cksum":"cc","features":{},"yanked":true}
`

// newIndexRepo commits files into a fresh git repository and returns its path.
func newIndexRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for rel, body := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
		_, err = wt.Add(rel)
		require.NoError(t, err)
	}

	_, err = wt.Commit("update index", &git.CommitOptions{
		Author: &object.Signature{Name: "index", Email: "index@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir
}

func TestCratePath(t *testing.T) {
	tests := map[string]string{
		"a":     "1/a",
		"ab":    "2/ab",
		"abc":   "3/a/abc",
		"serde": "se/rd/serde",
		"Tokio": "to/ki/tokio",
		"a-b_c": "a-/b_/a-b_c",
	}
	for name, want := range tests {
		got, err := CratePath(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	for _, bad := range []string{"", "../etc", "se rde", "ser/de", strings.Repeat("a", 65)} {
		_, err := CratePath(bad)
		require.ErrorIs(t, err, ErrInvalidName, bad)
	}
}

func TestOpenAndCrate(t *testing.T) {
	dir := newIndexRepo(t, map[string]string{
		"se/rd/serde": serdeIndexFile,
		"README.md":   "index",
	})

	idx, err := Open(dir)
	require.NoError(t, err)
	require.False(t, idx.Commit.IsZero())

	c, err := idx.Crate("serde")
	require.NoError(t, err)
	require.Equal(t, "serde", c.Name())
	require.Len(t, c.Versions(), 3)
	require.Equal(t, "1.0.0", c.Versions()[0].Vers)

	_, err = idx.Crate("tokio")
	require.ErrorIs(t, err, ErrCrateNotFound)

	_, err = idx.Crate("../x")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestOpen_PrefersFetchHead(t *testing.T) {
	dir := newIndexRepo(t, map[string]string{"se/rd/serde": serdeIndexFile})

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)

	fetchHead := head.Hash().String() + "\t\tbranch 'master' of https://github.com/rust-lang/crates.io-index\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "FETCH_HEAD"), []byte(fetchHead), 0o644))

	idx, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, head.Hash(), idx.Commit)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nothing-here"))
	require.ErrorIs(t, err, ErrNotExist)
	require.NotErrorIs(t, err, ErrCorrupt)
}

func TestOpen_CorruptObjects(t *testing.T) {
	dir := newIndexRepo(t, map[string]string{"se/rd/serde": serdeIndexFile})
	require.NoError(t, os.RemoveAll(filepath.Join(dir, ".git", "objects")))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))

	_, err := Open(dir)
	require.ErrorIs(t, err, ErrCorrupt)
	require.Contains(t, err.Error(), "git")
}

func TestParseCrate(t *testing.T) {
	c, err := ParseCrate([]byte(serdeIndexFile))
	require.NoError(t, err)

	t.Run("exact version lookup", func(t *testing.T) {
		v, ok := c.Version("1.0.219")
		require.True(t, ok)
		require.Len(t, v.Deps, 2)

		_, ok = c.Version("1.0")
		require.False(t, ok)
	})

	t.Run("highest version by semver", func(t *testing.T) {
		require.Equal(t, "1.0.219", c.HighestVersion().Vers)
	})

	t.Run("dependency defaults", func(t *testing.T) {
		v, _ := c.Version("1.0.219")
		require.Equal(t, "normal", v.Deps[1].DependencyKind())
		require.Equal(t, "cfg(any())", *v.Deps[1].Target)

		renamed, _ := c.Version("1.0.100")
		dep := renamed.Deps[0]
		require.Equal(t, "serde_derive", dep.CrateName())
		require.Equal(t, "dev", dep.DependencyKind())
		require.False(t, dep.DefaultFeatures)
		require.Equal(t, []string{"std"}, dep.Features)
	})

	t.Run("missing default_features means true", func(t *testing.T) {
		c, err := ParseCrate([]byte(`{"name":"x","vers":"0.1.0","deps":[{"name":"y","req":"*","features":[],"optional":false}],"cksum":"","features":{},"yanked":false}`))
		require.NoError(t, err)
		require.True(t, c.Versions()[0].Deps[0].DefaultFeatures)
	})

	t.Run("malformed line fails the file", func(t *testing.T) {
		_, err := ParseCrate([]byte(serdeIndexFile + "{not json}\n"))
		require.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ParseCrate([]byte("\n"))
		require.Error(t, err)
	})
}

func TestHighestVersion_Unparseable(t *testing.T) {
	c, err := ParseCrate([]byte(`{"name":"x","vers":"weird","deps":[],"cksum":"","features":{},"yanked":false}
{"name":"x","vers":"0.2.0-alpha.1","deps":[],"cksum":"","features":{},"yanked":false}
{"name":"x","vers":"0.1.9","deps":[],"cksum":"","features":{},"yanked":false}`))
	require.NoError(t, err)
	require.Equal(t, "0.2.0-alpha.1", c.HighestVersion().Vers)
}

func envFrom(m map[string]string) LookupEnv {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultPath(t *testing.T) {
	require.Equal(t,
		filepath.Join("/opt/cargo", "registry", "index", DirName),
		DefaultPath(envFrom(map[string]string{"CARGO_HOME": "/opt/cargo", "HOME": "/home/u"})))
	require.Equal(t,
		filepath.Join("/home/u", ".cargo", "registry", "index", DirName),
		DefaultPath(envFrom(map[string]string{"HOME": "/home/u"})))
}

func TestRegistryRoot_Priority(t *testing.T) {
	home := t.TempDir()
	appData := t.TempDir()
	cargoHome := t.TempDir()
	env := envFrom(map[string]string{"HOME": home, "APPDATA": appData, "CARGO_HOME": cargoHome})
	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}

	_, ok := RegistryRoot(env, exists)
	require.False(t, ok)

	require.NoError(t, os.MkdirAll(filepath.Join(cargoHome, "registry"), 0o755))
	root, ok := RegistryRoot(env, exists)
	require.True(t, ok)
	require.Equal(t, filepath.Join(cargoHome, "registry"), root)

	require.NoError(t, os.MkdirAll(filepath.Join(appData, ".cargo", "registry"), 0o755))
	root, _ = RegistryRoot(env, exists)
	require.Equal(t, filepath.Join(appData, ".cargo", "registry"), root)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".cargo", "registry"), 0o755))
	root, _ = RegistryRoot(env, exists)
	require.Equal(t, filepath.Join(home, ".cargo", "registry"), root)
}

func TestUpdate_CloneFailure(t *testing.T) {
	target := filepath.Join(t.TempDir(), "index")

	_, err := Update(context.Background(), UpdateOptions{
		Path: target,
		URL:  filepath.Join(t.TempDir(), "no-such-remote"),
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open/clone index")
}
