package httpcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// entry is what gets serialised to disk for one cache key: the policy
// computed from the cached response's headers, plus the status line and
// body bytes needed to reconstruct an *http.Response on a later hit.
type entry struct {
	Policy     Policy
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Cache is a read-through, disk-backed store keyed by request method+URL.
// One file per key holds the gob-encoded entry; writes go to a temp file
// in the same directory followed by a rename, so a reader never observes
// a partially written entry.
type Cache struct {
	dir string
}

// Open returns a Cache rooted at dir, creating it if necessary.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("httpcache: creating cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// keyFor derives the cache filename for a request: sha256 of the method
// and the URL string exactly as given; a fragment, if present, is hashed
// along with the rest.
func keyFor(method, url string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".cache")
}

// load reads the entry for (method, url), returning ok=false on a miss.
func (c *Cache) load(method, url string) (entry, bool) {
	var e entry
	f, err := os.Open(c.path(keyFor(method, url)))
	if err != nil {
		return e, false
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&e); err != nil {
		return e, false
	}
	return e, true
}

// store writes e for (method, url) via the write-temp-then-rename pattern,
// so concurrent readers in this or another process never see a half
// written file; the rename is atomic on the same filesystem.
func (c *Cache) store(method, url string, e entry) error {
	dst := c.path(keyFor(method, url))
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("httpcache: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := gob.NewEncoder(tmp).Encode(&e); err != nil {
		tmp.Close()
		return fmt.Errorf("httpcache: encoding cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("httpcache: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("httpcache: renaming cache entry into place: %w", err)
	}
	return nil
}

func readAllBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("httpcache: reading response body: %w", err)
	}
	return buf.Bytes(), nil
}
