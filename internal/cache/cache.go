// Package cache stores raw GitHub API responses on disk for a bounded time.
// Each request key maps to one JSON file whose name is the SHA-256 of the key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/naka-gawa/org-stats/internal/domain"
)

// DefaultTTL is the fixed lifetime of an entry.
const DefaultTTL = time.Hour

const dirName = "org-stats"

// replayHeaders are the response headers kept alongside the payload.
// Link is needed so cached pages still paginate.
var replayHeaders = []string{"Content-Type", "Link"}

// Entry is a single cached response.
type Entry struct {
	Key      string      `json:"key"`
	StoredAt time.Time   `json:"stored_at"`
	Header   http.Header `json:"header,omitempty"`
	Payload  []byte      `json:"payload"`
}

// Store is a TTL-bounded, disk-backed response cache.
// It is safe for concurrent use: every write is a rename of a fully written temp file.
type Store struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DefaultDir returns the per-user cache directory for this tool.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", domain.Wrapf(err, domain.ErrorCodeCacheIO, "resolve user cache dir")
	}
	return filepath.Join(base, dirName), nil
}

// New opens (and creates if needed) a Store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.Wrapf(err, domain.ErrorCodeCacheIO, "create cache dir %s", dir)
	}
	s := &Store{dir: dir, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Key builds a stable request identity from the method, the URL path and the
// query parameters sorted by name and value.
func Key(method string, u *url.URL) string {
	q := u.Query()
	names := make([]string, 0, len(q))
	for k := range q {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(u.EscapedPath())
	for i, k := range names {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for j, v := range vals {
			if i == 0 && j == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func (s *Store) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// Get returns the entry for key when it is younger than the TTL.
// A missing or stale entry is a miss, not an error.
func (s *Store) Get(key string) (Entry, bool, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, domain.Wrapf(err, domain.ErrorCodeCacheIO, "read cache entry")
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, domain.Wrapf(err, domain.ErrorCodeCacheIO, "decode cache entry")
	}
	if e.Key != key {
		// hash collision or foreign file
		return Entry{}, false, nil
	}
	if s.now().Sub(e.StoredAt) >= s.ttl {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put stores payload under key, replacing any previous entry.
func (s *Store) Put(key string, payload []byte, header http.Header) error {
	e := Entry{
		Key:      key,
		StoredAt: s.now().UTC(),
		Header:   keepHeaders(header),
		Payload:  payload,
	}
	b, err := json.Marshal(e)
	if err != nil {
		return domain.Wrapf(err, domain.ErrorCodeCacheIO, "encode cache entry")
	}

	tmp, err := os.CreateTemp(s.dir, ".entry-*.part")
	if err != nil {
		return domain.Wrapf(err, domain.ErrorCodeCacheIO, "create temp cache file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return domain.Wrapf(err, domain.ErrorCodeCacheIO, "write temp cache file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return domain.Wrapf(err, domain.ErrorCodeCacheIO, "close temp cache file")
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return domain.Wrapf(err, domain.ErrorCodeCacheIO, "commit cache entry")
	}
	return nil
}

func keepHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := http.Header{}
	for _, name := range replayHeaders {
		if v := h.Values(name); len(v) > 0 {
			out[http.CanonicalHeaderKey(name)] = append([]string(nil), v...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
