package cmd

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/org-stats/internal/config"
)

func newTestStatsCmd(t *testing.T, flags ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "stats"}
	addStatsFlags(c)
	require.NoError(t, c.ParseFlags(flags))
	return c
}

func TestConfigFromFlags(t *testing.T) {
	env := map[string]string{"GH_TOKEN": "from-env"}
	c := newTestStatsCmd(t,
		"--org", "acme",
		"--repo", "api",
		"-n", "3",
		"--since", "2024-01-01",
		"--until", "2024-06-30",
		"--include-forks",
		"--no-cache",
		"--exclude-repo", "a", "--exclude-repo", "b",
		"--exclude-bots",
		"--min-commits", "2",
		"--api-url", "https://ghe.example.com/api/v3",
		"-f", "json",
		"--sort-by", "lines",
		"--output", "out.json",
		"--insecure",
	)

	cfg := configFromFlags(c, nil, func(k string) string { return env[k] })

	assert.Equal(t, config.Config{
		Account:      "acme",
		Repository:   "api",
		Token:        "from-env",
		TopN:         3,
		Since:        "2024-01-01",
		Until:        "2024-06-30",
		IncludeForks: true,
		NoCache:      true,
		ExcludeRepos: []string{"a", "b"},
		ExcludeBots:  true,
		MinCommits:   2,
		APIURL:       "https://ghe.example.com/api/v3",
		Format:       "json",
		SortBy:       "lines",
		Output:       "out.json",
		Insecure:     true,
	}, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromFlags_DefaultsAndPositionalAccount(t *testing.T) {
	c := newTestStatsCmd(t, "--token", "explicit")
	cfg := configFromFlags(c, []string{"octocat"}, func(string) string { return "ignored" })

	assert.Equal(t, "octocat", cfg.Account)
	assert.Equal(t, "explicit", cfg.Token, "the flag wins over the environment")
	assert.Equal(t, config.DefaultTopN, cfg.TopN)
	assert.Equal(t, config.FormatTable, cfg.Format)
	assert.Equal(t, config.SortCommits, cfg.SortBy)
	assert.False(t, cfg.NoCache)
	assert.Empty(t, cfg.Repository)
}

// fakeGitHub serves one organization with a single repository and counts hits per path.
func fakeGitHub(t *testing.T) (*httptest.Server, func(path string) int) {
	t.Helper()
	var mu sync.Mutex
	hits := map[string]int{}
	mux := http.NewServeMux()
	handle := func(path, body string) {
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[path]++
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		})
	}
	handle("/orgs/acme/repos", `[{"name":"api","owner":{"login":"acme"},"language":"Go"}]`)
	handle("/repos/acme/api/stats/contributors", `[{"author":{"login":"alice"},"total":3,"weeks":[{"w":1704067200,"a":10,"d":2,"c":3}]}]`)
	handle("/repos/acme/api/languages", `{"Go":100}`)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, func(path string) int {
		mu.Lock()
		defer mu.Unlock()
		return hits[path]
	}
}

func TestRunStats_ResponseCache(t *testing.T) {
	switch runtime.GOOS {
	case "darwin", "ios", "windows", "plan9":
		t.Skip("the user cache dir does not follow XDG_CACHE_HOME here")
	}

	testCases := []struct {
		name         string
		noCache      bool
		listingHits  int
		cacheEntries bool
	}{
		{name: "cache on", listingHits: 1, cacheEntries: true},
		{name: "no-cache installs no cache", noCache: true, listingHits: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cacheHome := t.TempDir()
			t.Setenv("XDG_CACHE_HOME", cacheHome)
			server, hits := fakeGitHub(t)
			out := filepath.Join(t.TempDir(), "report.json")

			flags := []string{"--token", "test-token", "--api-url", server.URL, "-f", "json", "--output", out}
			if tc.noCache {
				flags = append(flags, "--no-cache")
			}
			c := newTestStatsCmd(t, flags...)
			require.NoError(t, runStats(c, []string{"acme"}))

			report, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Contains(t, string(report), `"username": "alice"`)

			// resolving the account and listing it request the same first page
			assert.Equal(t, tc.listingHits, hits("/orgs/acme/repos"))

			entries, err := filepath.Glob(filepath.Join(cacheHome, "org-stats", "*.json"))
			require.NoError(t, err)
			if tc.cacheEntries {
				assert.Len(t, entries, 3, "one entry per distinct request")
			} else {
				assert.Empty(t, entries)
				assert.NoDirExists(t, filepath.Join(cacheHome, "org-stats"))
			}
		})
	}
}
