// Package cache stores compiled program images in SQLite, keyed by a hash of
// the compiler version and the source text.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/frospy/compiler"
	"github.com/chazu/frospy/image"
)

var log = commonlog.GetLogger("frospy.cache")

// ErrMiss indicates the requested key has no cached image.
var ErrMiss = errors.New("cache miss")

// Cache is a SQLite-backed store of program images.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		key TEXT PRIMARY KEY,
		compiler TEXT NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// DefaultPath returns $FROSPY_CACHE, or ~/.cache/frospy/cache.db.
func DefaultPath() (string, error) {
	if p := os.Getenv("FROSPY_CACHE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".cache", "frospy", "cache.db"), nil
}

// OpenDefault opens the cache at DefaultPath.
func OpenDefault() (*Cache, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Key returns the cache key for src under the running compiler version.
func Key(src string) string {
	h := sha256.New()
	h.Write([]byte(compiler.Version))
	h.Write([]byte{0})
	h.Write([]byte(src))
	return hex.EncodeToString(h.Sum(nil))
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached program for key, or ErrMiss.
func (c *Cache) Get(key string) (*compiler.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT data FROM images WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("miss %s", short(key))
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("querying image: %w", err)
	}

	prog, err := image.Unmarshal(data)
	if err != nil {
		// A corrupt or stale entry behaves like a miss; Put overwrites it.
		log.Warningf("dropping unreadable entry %s: %s", short(key), err)
		return nil, ErrMiss
	}
	log.Debugf("hit %s (%d blocks)", short(key), len(prog.Blocks))
	return prog, nil
}

// Put stores prog under key, replacing any previous entry.
func (c *Cache) Put(key string, prog *compiler.Program) error {
	data, err := image.Marshal(prog)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO images (key, compiler, data) VALUES (?, ?, ?)",
		key, compiler.Version, data,
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	log.Debugf("stored %s (%d bytes)", short(key), len(data))
	return nil
}

// Compile returns the cached program for src, compiling and storing it on a
// miss.
func (c *Cache) Compile(src string) (*compiler.Program, error) {
	key := Key(src)
	prog, err := c.Get(key)
	if err == nil {
		return prog, nil
	}
	if !errors.Is(err, ErrMiss) {
		return nil, err
	}

	res, err := compiler.Compile(src, compiler.Options{})
	if err != nil {
		return nil, err
	}
	if err := c.Put(key, res.Program); err != nil {
		return nil, err
	}
	return res.Program, nil
}

// Purge removes entries written by other compiler versions and returns how
// many were removed.
func (c *Cache) Purge() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM images WHERE compiler != ?", compiler.Version)
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
