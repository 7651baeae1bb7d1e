package crates

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/ippclub/crates-mcp/internal/config"
	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/pkg/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const serdeDetail = `{
  "crate": {
    "name": "serde",
    "description": "A generic serialization/deserialization framework",
    "documentation": "https://docs.rs/serde",
    "homepage": "https://serde.rs",
    "repository": "https://github.com/serde-rs/serde",
    "downloads": 500000000,
    "created_at": "2014-12-05T20:20:39.487502+00:00",
    "updated_at": "2025-03-09T19:31:43.081818+00:00",
    "keywords": ["serde", "serialization", "no_std"],
    "categories": ["encoding", "no-std"]
  },
  "versions": [
    {"num": "2.0.0-rc.1", "created_at": "2025-04-01T00:00:00+00:00", "downloads": 10, "features": {}, "yanked": true, "license": "MIT"},
    {"num": "1.0.219", "created_at": "2025-03-09T19:31:43+00:00", "downloads": 9000, "features": {"derive": ["serde_derive"]}, "yanked": false, "license": "MIT OR Apache-2.0", "published_by": {"login": "dtolnay", "name": "David Tolnay"}},
    {"num": "1.0.218", "created_at": "2025-02-20T00:00:00+00:00", "downloads": 8000, "features": null, "yanked": false, "license": "MIT OR Apache-2.0"},
    {"num": "1.0.0", "created_at": "2017-04-20T00:00:00+00:00", "downloads": 7000, "features": {}, "yanked": false, "license": "MIT/Apache-2.0"}
  ]
}`

const allYankedDetail = `{
  "crate": {"name": "gone", "downloads": 3, "created_at": "2020-01-01T00:00:00+00:00", "updated_at": "2020-01-01T00:00:00+00:00"},
  "versions": [
    {"num": "0.2.0", "created_at": "2020-01-02T00:00:00+00:00", "downloads": 1, "features": {}, "yanked": true},
    {"num": "0.1.0", "created_at": "2020-01-01T00:00:00+00:00", "downloads": 2, "features": {}, "yanked": true}
  ]
}`

const emptyDetail = `{
  "crate": {"name": "empty", "downloads": 0, "created_at": "2020-01-01T00:00:00+00:00", "updated_at": "2020-01-01T00:00:00+00:00"},
  "versions": []
}`

const serdeIndexFile = `{"name":"serde","vers":"1.0.0","deps":[],"cksum":"aa","features":{},"yanked":false}
{"name":"serde","vers":"1.0.219","deps":[{"name":"serde_derive","req":"^1","features":[],"optional":true,"default_features":true,"target":null,"kind":"normal"},{"name":"derive_dep","req":"=1.0.219","features":["std"],"optional":false,"default_features":false,"target":"cfg(any())","kind":null,"package":"serde_derive"}],"cksum":"bb","features":{"derive":["serde_derive"]},"yanked":false}
{"name":"serde","vers":"1.0.100","deps":[{"name":"serde_test","req":"^1","features":null,"optional":false,"default_features":true,"target":null,"kind":"dev"}],"cksum":"cc","features":{},"yanked":true}
`

// registry is a crates.io fake that records what it was asked for.
type registry struct {
	server   *httptest.Server
	hits     atomic.Int32
	lastPath atomic.Value // query string of the last search
	search   []searchCrate
	crates   map[string]string
	status   int
}

func newRegistry(t *testing.T) *registry {
	t.Helper()

	reg := &registry{crates: map[string]string{
		"serde": serdeDetail,
		"gone":  allYankedDetail,
		"empty": emptyDetail,
	}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			reg.hits.Add(1)
			if req.Header.Get("User-Agent") == "" {
				http.Error(w, "user agent required", http.StatusForbidden)
				return
			}
			if reg.status != 0 {
				w.WriteHeader(reg.status)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/v1/crates", func(w http.ResponseWriter, req *http.Request) {
		reg.lastPath.Store(req.URL.RawQuery)
		perPage, _ := strconv.Atoi(req.URL.Query().Get("per_page"))
		hits := append([]searchCrate{}, reg.search...)
		if perPage < len(hits) {
			hits = hits[:perPage]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"crates": hits,
			"meta":   map[string]any{"total": len(reg.search)},
		})
	})
	r.Get("/api/v1/crates/{name}", func(w http.ResponseWriter, req *http.Request) {
		body, ok := reg.crates[chi.URLParam(req, "name")]
		if !ok {
			http.Error(w, `{"errors":[{"detail":"Not Found"}]}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	reg.server = httptest.NewServer(r)
	t.Cleanup(reg.server.Close)
	return reg
}

func (r *registry) lastQuery() string {
	q, _ := r.lastPath.Load().(string)
	return q
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Registry.BaseURL = baseURL
	cfg.Registry.Timeout = config.Duration{Duration: 5 * time.Second}
	cfg.RateLimit.RPS = 0
	cfg.Index.RecoveryBackoff = config.Duration{Duration: time.Millisecond}
	cfg.Index.Path = "/nonexistent/crates-index"
	return cfg
}

func missingIndex() (Index, error) {
	return nil, fmt.Errorf("%w: /nonexistent/crates-index", index.ErrNotExist)
}

func newTestClient(t *testing.T, baseURL string, opener IndexOpener) *Client {
	t.Helper()
	c, err := New(context.Background(), testConfig(baseURL), opener, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

// fakeIndex serves parsed index files from memory.
type fakeIndex map[string]string

func (f fakeIndex) Crate(name string) (*index.Crate, error) {
	body, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", index.ErrCrateNotFound, name)
	}
	return index.ParseCrate([]byte(body))
}

func openFake(f fakeIndex) IndexOpener {
	return func() (Index, error) { return f, nil }
}

func hit(name string, downloads uint64) searchCrate {
	return searchCrate{Name: name, MaxVersion: "1.0.0", Downloads: downloads}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	cfg := testConfig("::not a url")
	_, err := New(context.Background(), cfg, missingIndex, zaptest.NewLogger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to create HTTP client")
}

func TestSearch_EmptyQuery(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.server.URL, missingIndex)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := c.Search(context.Background(), q, SearchOptions{})
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
	}
	require.Zero(t, reg.hits.Load())
}

func TestSearch_Relevance(t *testing.T) {
	reg := newRegistry(t)
	reg.search = []searchCrate{hit("serde", 10), hit("serde_json", 500), hit("serde_yaml", 20)}
	c := newTestClient(t, reg.server.URL, missingIndex)

	results, err := c.Search(context.Background(), "serde", SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "serde", results[0].Name)
	assert.Equal(t, "serde_json", results[1].Name)
	assert.Equal(t, "per_page=2&q=serde", reg.lastQuery())
}

func TestSearch_DefaultLimit(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.server.URL, missingIndex)

	_, err := c.Search(context.Background(), "http", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "per_page=10&q=http", reg.lastQuery())
}

func TestSearch_MinDownloadsAndSort(t *testing.T) {
	reg := newRegistry(t)
	reg.search = []searchCrate{
		hit("a", 50), hit("b", 900), hit("c", 5), hit("d", 1200),
		hit("e", 100), hit("f", 700), hit("g", 99),
	}
	c := newTestClient(t, reg.server.URL, missingIndex)

	results, err := c.Search(context.Background(), "x", SearchOptions{
		Limit:        3,
		Sort:         SortDownloads,
		MinDownloads: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "per_page=9&q=x&sort=downloads", reg.lastQuery())

	require.Len(t, results, 3)
	for i, r := range results {
		assert.GreaterOrEqual(t, r.Downloads, uint64(100))
		if i > 0 {
			assert.LessOrEqual(t, r.Downloads, results[i-1].Downloads)
		}
	}
	assert.Equal(t, []string{"d", "b", "f"}, []string{results[0].Name, results[1].Name, results[2].Name})
}

func TestSearch_MinDownloadsKeepsRelevanceOrder(t *testing.T) {
	reg := newRegistry(t)
	reg.search = []searchCrate{hit("a", 50), hit("b", 900), hit("c", 5), hit("d", 1200)}
	c := newTestClient(t, reg.server.URL, missingIndex)

	results, err := c.Search(context.Background(), "x", SearchOptions{Limit: 5, MinDownloads: 60})
	require.NoError(t, err)
	assert.Equal(t, "per_page=15&q=x", reg.lastQuery())
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Name)
	assert.Equal(t, "d", results[1].Name)
}

func TestSearch_PageSizeCap(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.server.URL, missingIndex)

	_, err := c.Search(context.Background(), "x", SearchOptions{Limit: 50, Sort: SortDownloads})
	require.NoError(t, err)
	assert.Equal(t, "per_page=100&q=x&sort=downloads", reg.lastQuery())

	_, err = c.Search(context.Background(), "x", SearchOptions{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, "per_page=100&q=x", reg.lastQuery())
}

func TestSearch_MalformedPayload(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/crates", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{"total":0}}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, missingIndex)
	_, err := c.Search(context.Background(), "x", SearchOptions{})
	require.ErrorIs(t, err, errors.ErrUpstream)
}

func TestParseSortMode(t *testing.T) {
	mode, err := ParseSortMode("")
	require.NoError(t, err)
	assert.Equal(t, SortRelevance, mode)

	mode, err = ParseSortMode("Downloads")
	require.NoError(t, err)
	assert.Equal(t, SortDownloads, mode)

	_, err = ParseSortMode("stars")
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestGetDetail(t *testing.T) {
	reg := newRegistry(t)

	t.Run("skips yanked versions", func(t *testing.T) {
		c := newTestClient(t, reg.server.URL, missingIndex)
		info, err := c.GetDetail(context.Background(), "serde")
		require.NoError(t, err)
		assert.Equal(t, "serde", info.Name)
		assert.Equal(t, "1.0.219", info.Version)
		assert.Equal(t, "MIT OR Apache-2.0", *info.License)
		assert.Equal(t, uint64(500000000), info.Downloads)
		assert.Equal(t, 2014, info.CreatedAt.Year())
	})

	t.Run("metadata empty without index", func(t *testing.T) {
		c := newTestClient(t, reg.server.URL, missingIndex)
		info, err := c.GetDetail(context.Background(), "serde")
		require.NoError(t, err)
		assert.NotNil(t, info.Keywords)
		assert.Empty(t, info.Keywords)
		assert.Empty(t, info.Categories)
		assert.Empty(t, info.Authors)
	})

	t.Run("metadata filled with index", func(t *testing.T) {
		c := newTestClient(t, reg.server.URL, openFake(fakeIndex{"serde": serdeIndexFile}))
		info, err := c.GetDetail(context.Background(), "serde")
		require.NoError(t, err)
		assert.Equal(t, []string{"serde", "serialization", "no_std"}, info.Keywords)
		assert.Equal(t, []string{"encoding", "no-std"}, info.Categories)
		assert.Equal(t, []string{"David Tolnay"}, info.Authors)
	})

	t.Run("all yanked returns first listed", func(t *testing.T) {
		c := newTestClient(t, reg.server.URL, missingIndex)
		info, err := c.GetDetail(context.Background(), "gone")
		require.NoError(t, err)
		assert.Equal(t, "0.2.0", info.Version)
	})

	t.Run("no versions", func(t *testing.T) {
		c := newTestClient(t, reg.server.URL, missingIndex)
		_, err := c.GetDetail(context.Background(), "empty")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("unknown crate", func(t *testing.T) {
		c := newTestClient(t, reg.server.URL, missingIndex)
		_, err := c.GetDetail(context.Background(), "no-such-crate")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("empty name", func(t *testing.T) {
		c := newTestClient(t, reg.server.URL, missingIndex)
		_, err := c.GetDetail(context.Background(), "  ")
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
	})
}

func TestGetDetail_UpstreamStatus(t *testing.T) {
	reg := newRegistry(t)
	reg.status = http.StatusServiceUnavailable
	c := newTestClient(t, reg.server.URL, missingIndex)

	_, err := c.GetDetail(context.Background(), "serde")
	require.ErrorIs(t, err, errors.ErrUpstream)

	var upstream *errors.UpstreamError
	require.True(t, stderrors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
}

func TestGetDetail_TransportFailure(t *testing.T) {
	reg := newRegistry(t)
	url := reg.server.URL
	reg.server.Close()

	c := newTestClient(t, url, missingIndex)
	_, err := c.GetDetail(context.Background(), "serde")
	require.ErrorIs(t, err, errors.ErrUnavailable)
}

func TestGetVersions(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.server.URL, missingIndex)

	all, err := c.GetVersions(context.Background(), "serde", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2.0.0-rc.1", all[0].Num)
	assert.True(t, all[0].Yanked)
	assert.JSONEq(t, `{}`, string(all[2].Features))

	for _, n := range []int{1, 2, 4, 10} {
		got, err := c.GetVersions(context.Background(), "serde", n)
		require.NoError(t, err)
		require.Len(t, got, min(n, len(all)))
		for i := range got {
			assert.Equal(t, all[i].Num, got[i].Num)
		}
	}
}

func TestGetDependencies(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", openFake(fakeIndex{"serde": serdeIndexFile}))
	require.Equal(t, IndexAvailable, c.IndexState())

	t.Run("highest version when omitted", func(t *testing.T) {
		deps, err := c.GetDependencies("serde", "")
		require.NoError(t, err)
		require.Len(t, deps, 2)

		assert.Equal(t, "serde_derive", deps[0].Name)
		assert.Equal(t, "^1", deps[0].VersionReq)
		assert.True(t, deps[0].Optional)
		assert.Equal(t, "normal", deps[0].Kind)
		assert.Nil(t, deps[0].Target)

		assert.Equal(t, "serde_derive", deps[1].Name)
		assert.False(t, deps[1].DefaultFeatures)
		assert.Equal(t, []string{"std"}, deps[1].Features)
		assert.Equal(t, "cfg(any())", *deps[1].Target)
		assert.Equal(t, "normal", deps[1].Kind)
	})

	t.Run("exact version", func(t *testing.T) {
		deps, err := c.GetDependencies("serde", "1.0.100")
		require.NoError(t, err)
		require.Len(t, deps, 1)
		assert.Equal(t, "dev", deps[0].Kind)
		assert.Equal(t, []string{}, deps[0].Features)

		deps, err = c.GetDependencies("serde", "1.0.0")
		require.NoError(t, err)
		assert.Empty(t, deps)
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := c.GetDependencies("serde", "9.9.9")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("missing crate", func(t *testing.T) {
		_, err := c.GetDependencies("tokio", "")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := c.GetDependencies("", "")
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
	})
}

func TestGetDependencies_Unavailable(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.server.URL, missingIndex)
	require.Equal(t, IndexUnavailable, c.IndexState())

	for _, v := range []string{"", "1.0.219"} {
		_, err := c.GetDependencies("serde", v)
		require.ErrorIs(t, err, errors.ErrUnavailable)
		assert.Contains(t, err.Error(), "/nonexistent/crates-index")
		assert.Contains(t, err.Error(), "delete")
	}
	require.Zero(t, reg.hits.Load())

	// the HTTP paths keep working
	_, err := c.GetDetail(context.Background(), "serde")
	require.NoError(t, err)
	_, err = c.GetVersions(context.Background(), "serde", 1)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "serde", SearchOptions{})
	require.NoError(t, err)
}

// cargoHome points HOME at a fresh directory holding an index directory in
// cargo's layout, and clears the other locator variables.
func cargoHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("APPDATA", "")
	t.Setenv("CARGO_HOME", "")
	dir := filepath.Join(home, ".cargo", "registry", "index", index.DirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

// countingOpener fails with errs in turn, then succeeds with idx.
func countingOpener(idx Index, errs ...error) (IndexOpener, *int) {
	calls := 0
	return func() (Index, error) {
		calls++
		if calls <= len(errs) {
			return nil, errs[calls-1]
		}
		return idx, nil
	}, &calls
}

func TestIndexState_FirstAttempt(t *testing.T) {
	opener, calls := countingOpener(fakeIndex{})
	c := newTestClient(t, "http://127.0.0.1:1", opener)

	assert.Equal(t, IndexAvailable, c.IndexState())
	assert.Equal(t, []IndexState{IndexUninitialized, IndexAttempting, IndexAvailable}, c.IndexTrace())
	assert.Equal(t, 1, *calls)
}

func TestIndexState_RecoveryRetry(t *testing.T) {
	dir := cargoHome(t)
	core, logs := observer.New(zapcore.InfoLevel)

	opener, calls := countingOpener(fakeIndex{}, fmt.Errorf("%w: bad packfile", index.ErrCorrupt))
	c, err := New(context.Background(), testConfig("http://127.0.0.1:1"), opener, zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, IndexAvailable, c.IndexState())
	assert.Equal(t, []IndexState{IndexUninitialized, IndexAttempting, IndexAttemptingRecovery, IndexAvailable}, c.IndexTrace())
	assert.Equal(t, 2, *calls)

	diag := logs.FilterMessageSnippet("potentially corrupted")
	require.Equal(t, 1, diag.Len())
	assert.Equal(t, dir, diag.All()[0].ContextMap()["path"])
}

func TestIndexState_RetryFails(t *testing.T) {
	cargoHome(t)
	corrupt := fmt.Errorf("%w: object not found", index.ErrCorrupt)
	opener, calls := countingOpener(fakeIndex{}, corrupt, corrupt, corrupt)

	c := newTestClient(t, "http://127.0.0.1:1", opener)
	assert.Equal(t, IndexUnavailable, c.IndexState())
	assert.Equal(t, []IndexState{IndexUninitialized, IndexAttempting, IndexAttemptingRecovery, IndexUnavailable}, c.IndexTrace())
	assert.Equal(t, 2, *calls, "retried exactly once")
	assert.ErrorIs(t, c.IndexCause(), index.ErrCorrupt)
}

func TestIndexState_GitTextCountsAsCorruption(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	opener, calls := countingOpener(fakeIndex{}, stderrors.New("git: failed to read packed refs"))

	c := newTestClient(t, "http://127.0.0.1:1", opener)
	assert.Equal(t, IndexAvailable, c.IndexState())
	assert.Equal(t, 2, *calls)
}

func TestIndexState_OtherFailure(t *testing.T) {
	opener, calls := countingOpener(fakeIndex{}, stderrors.New("permission denied"))

	c := newTestClient(t, "http://127.0.0.1:1", opener)
	assert.Equal(t, IndexUnavailable, c.IndexState())
	assert.Equal(t, []IndexState{IndexUninitialized, IndexAttempting, IndexUnavailable}, c.IndexTrace())
	assert.Equal(t, 1, *calls)
}

func TestIndexState_MissingIsNotCorruption(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", missingIndex)
	assert.Equal(t, []IndexState{IndexUninitialized, IndexAttempting, IndexUnavailable}, c.IndexTrace())
}

func TestIndexState_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Index.Disabled = true
	opener, calls := countingOpener(fakeIndex{})

	c, err := New(context.Background(), cfg, opener, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, IndexUnavailable, c.IndexState())
	assert.Zero(t, *calls)

	_, err = c.GetDependencies("serde", "")
	require.ErrorIs(t, err, errors.ErrUnavailable)
}

func TestIndexState_String(t *testing.T) {
	assert.Equal(t, "attempting_recovery", IndexAttemptingRecovery.String())
	assert.Equal(t, "unknown", IndexState(42).String())
}

func TestOpenIndexAt_GitRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	full := filepath.Join(dir, "se", "rd", "serde")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(serdeIndexFile), 0o644))
	_, err = wt.Add("se/rd/serde")
	require.NoError(t, err)
	_, err = wt.Commit("index", &git.CommitOptions{
		Author: &object.Signature{Name: "index", Email: "index@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Index.Path = dir
	c, err := New(context.Background(), cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, IndexAvailable, c.IndexState())
	assert.Equal(t, dir, c.IndexPath())

	deps, err := c.GetDependencies("serde", "1.0.219")
	require.NoError(t, err)
	assert.Len(t, deps, 2)

	for _, bad := range []string{"serde json", "serde/json", strings.Repeat("a", 65)} {
		_, err := c.GetDependencies(bad, "")
		require.ErrorIs(t, err, errors.ErrInvalidArgument, bad)
		assert.Equal(t, "invalid_argument", errors.Kind(err), bad)
	}
}
