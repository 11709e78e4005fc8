package cache

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/naka-gawa/org-stats/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestKey_IgnoresParameterOrder(t *testing.T) {
	a := Key("get", mustURL(t, "https://api.github.com/orgs/acme/repos?type=all&per_page=100&page=2"))
	b := Key("GET", mustURL(t, "https://api.github.com/orgs/acme/repos?page=2&per_page=100&type=all"))
	assert.Equal(t, a, b)
	assert.Equal(t, "GET /orgs/acme/repos?page=2&per_page=100&type=all", a)
}

func TestKey_DistinguishesRequests(t *testing.T) {
	keys := []string{
		Key("GET", mustURL(t, "https://api.github.com/orgs/acme/repos?page=1")),
		Key("GET", mustURL(t, "https://api.github.com/orgs/acme/repos?page=2")),
		Key("GET", mustURL(t, "https://api.github.com/users/acme/repos?page=1")),
		Key("HEAD", mustURL(t, "https://api.github.com/orgs/acme/repos?page=1")),
		Key("GET", mustURL(t, "https://api.github.com/orgs/acme/repos")),
	}
	seen := map[string]bool{}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %q", k)
		seen[k] = true
	}
}

func TestStore_RoundTripAndExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(t.TempDir(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	key := "GET /repos/acme/api/languages"
	h := http.Header{}
	h.Set("Link", `<https://api.github.com/x?page=2>; rel="next"`)
	h.Set("X-RateLimit-Remaining", "10")
	require.NoError(t, s.Put(key, []byte(`{"Go":100}`), h))

	e, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"Go":100}`), e.Payload)
	assert.Equal(t, `<https://api.github.com/x?page=2>; rel="next"`, e.Header.Get("Link"))
	assert.Empty(t, e.Header.Get("X-RateLimit-Remaining"), "rate headers are never replayed")

	now = now.Add(DefaultTTL - time.Second)
	_, ok, err = s.Get(key)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, err = s.Get(key)
	require.NoError(t, err)
	assert.False(t, ok, "an entry as old as the TTL is a miss")
}

func TestStore_PutOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put("k", []byte("one"), nil))
	require.NoError(t, s.Put("k", []byte("two"), nil))

	e, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("two"), e.Payload)
}

func TestStore_MissingEntryIsMiss(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Get("nothing here")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CorruptEntryIsCacheIOError(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.path("k"), []byte("{not json"), 0o644))

	_, ok, err := s.Get("k")
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrorCodeCacheIO))
}

func TestStore_ConcurrentWritersLeaveNoPartialFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Put("shared", []byte(`[1,2,3]`), nil))
		}()
	}
	wg.Wait()

	e, ok, err := s.Get("shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`[1,2,3]`), e.Payload)

	parts, err := filepath.Glob(filepath.Join(dir, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, parts)
}
