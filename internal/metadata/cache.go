package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmunix/streamgrab/internal/media"
)

// DefaultCacheTTL is how long fetched lyrics and covers are reused.
const DefaultCacheTTL = 7 * 24 * time.Hour

const (
	keyPrefixLyrics = "lyrics:"
	keyPrefixCover  = "cover:"
)

// Cache provides SQLite-backed caching for lyrics and cover responses.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// NewCache creates a new metadata cache over a migrated database.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db, now: time.Now}
}

// Get retrieves a cached value by key.
// Returns nil, false if not found or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	var expiresAt time.Time

	err := c.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM metadata_cache WHERE key = ?", key,
	).Scan(&value, &expiresAt)

	if err != nil || c.now().After(expiresAt) {
		return nil, false
	}

	return value, true
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := c.now().Add(ttl)

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO metadata_cache (key, value, expires_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes a cached value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM metadata_cache WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Prune removes all expired entries.
// Returns the number of entries removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		"DELETE FROM metadata_cache WHERE expires_at < ?", c.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	return result.RowsAffected()
}

// cachedLyrics is the stored form of a lyrics lookup. Missing records a
// track without lyrics so it is not asked for again.
type cachedLyrics struct {
	Synced  string `json:"synced,omitempty"`
	Plain   string `json:"plain,omitempty"`
	Missing bool   `json:"missing,omitempty"`
}

// CachedLyrics wraps a LyricsSource with the cache.
type CachedLyrics struct {
	src   LyricsSource
	cache *Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachedLyrics creates a caching lyrics source. A ttl of zero uses
// DefaultCacheTTL.
func NewCachedLyrics(src LyricsSource, cache *Cache, ttl time.Duration, log *slog.Logger) *CachedLyrics {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedLyrics{src: src, cache: cache, ttl: ttl, log: log.With("component", "metadata_cache")}
}

// Lyrics returns cached lyrics, fetching and storing them on a miss.
func (c *CachedLyrics) Lyrics(ctx context.Context, trackID string) (Lyrics, error) {
	key := keyPrefixLyrics + trackID

	// Check cache first
	if data, ok := c.cache.Get(ctx, key); ok {
		var v cachedLyrics
		if err := json.Unmarshal(data, &v); err == nil {
			if v.Missing {
				return Lyrics{}, media.ErrNotAvailable
			}
			return Lyrics{Synced: v.Synced, Plain: v.Plain}, nil
		}
		c.log.Warn("discarding unreadable cache entry", "key", key)
	}

	lyrics, err := c.src.Lyrics(ctx, trackID)
	v := cachedLyrics{Synced: lyrics.Synced, Plain: lyrics.Plain}
	switch {
	case errors.Is(err, media.ErrNotAvailable):
		v = cachedLyrics{Missing: true}
	case err != nil:
		return Lyrics{}, err
	}

	data, mErr := json.Marshal(v)
	if mErr == nil {
		mErr = c.cache.Set(ctx, key, data, c.ttl)
	}
	if mErr != nil {
		c.log.Warn("failed to cache lyrics", "track", trackID, "error", mErr)
	}
	return lyrics, err
}

// CachedCovers wraps a CoverSource with the cache, keyed by cover id so
// every track of an album shares one fetch.
type CachedCovers struct {
	src   CoverSource
	cache *Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachedCovers creates a caching cover source. A ttl of zero uses
// DefaultCacheTTL.
func NewCachedCovers(src CoverSource, cache *Cache, ttl time.Duration, log *slog.Logger) *CachedCovers {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedCovers{src: src, cache: cache, ttl: ttl, log: log.With("component", "metadata_cache")}
}

// Cover returns cached cover bytes, fetching and storing them on a miss.
// Failures are not cached.
func (c *CachedCovers) Cover(ctx context.Context, tags Tags) ([]byte, error) {
	if tags.CoverID == "" {
		return c.src.Cover(ctx, tags)
	}
	key := keyPrefixCover + tags.CoverID

	if data, ok := c.cache.Get(ctx, key); ok && len(data) > 0 {
		return data, nil
	}

	data, err := c.src.Cover(ctx, tags)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Warn("failed to cache cover", "cover", tags.CoverID, "error", err)
	}
	return data, nil
}
