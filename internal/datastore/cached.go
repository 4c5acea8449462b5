package datastore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnet-artifacts/internal/logger"
	"github.com/tphakala/birdnet-artifacts/internal/observability/metrics"
)

// Cache key prefixes. Listing keys embed the quoted session name so a write
// can drop exactly the entries of the session it touched.
const (
	keySessions   = "sessions"
	keyProgress   = "progress"
	keyQuality    = "quality"
	keyOverview   = "overview"
	keyDetections = "detections|"
	keyDetection  = "detection|"
)

// CachedStore is a read cache in front of another store for the viewer.
// Successful path or review writes invalidate the listings of the affected
// session, the aggregate views and the cached row itself.
type CachedStore struct {
	Interface
	cache   *cache.Cache
	log     logger.Logger
	metrics metrics.Recorder
}

// NewCachedStore wraps inner with a TTL cache. The cache runs without a
// janitor goroutine; expired entries are dropped on access or invalidation.
func NewCachedStore(inner Interface, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{
		Interface: inner,
		cache:     cache.New(ttl, 0),
		log:       GetLogger().Module("cache"),
		metrics:   metrics.NoOpRecorder{},
	}
}

// SetMetrics sets the recorder for cache hits, misses and invalidations.
func (c *CachedStore) SetMetrics(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoOpRecorder{}
	}
	c.metrics = r
}

func (c *CachedStore) lookup(key string) (any, bool) {
	v, found := c.cache.Get(key)
	if found {
		c.metrics.RecordOperation(metrics.OpCacheGet, metrics.StatusHit)
	} else {
		c.metrics.RecordOperation(metrics.OpCacheGet, metrics.StatusMiss)
	}
	return v, found
}

func detectionsKey(f DetectionFilter) string {
	return fmt.Sprintf("%s%s|%s|%g|%s|%t|%d|%d", keyDetections,
		strconv.Quote(f.Session), f.Species, f.MinConfidence, f.Status, f.OnlyProcessed, f.Limit, f.Offset)
}

func detectionKey(id uint) string {
	return keyDetection + strconv.FormatUint(uint64(id), 10)
}

// Sessions returns cached session summaries.
func (c *CachedStore) Sessions(ctx context.Context) ([]SessionSummary, error) {
	if v, found := c.lookup(keySessions); found {
		return v.([]SessionSummary), nil
	}
	sessions, err := c.Interface.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(keySessions, sessions, cache.DefaultExpiration)
	return sessions, nil
}

// ListDetections returns a cached listing for filter.
func (c *CachedStore) ListDetections(ctx context.Context, filter DetectionFilter) ([]Detection, error) {
	key := detectionsKey(filter)
	if v, found := c.lookup(key); found {
		return v.([]Detection), nil
	}
	detections, err := c.Interface.ListDetections(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, detections, cache.DefaultExpiration)
	return detections, nil
}

// GetDetection returns a cached copy of one row.
func (c *CachedStore) GetDetection(ctx context.Context, id uint) (*Detection, error) {
	key := detectionKey(id)
	if v, found := c.lookup(key); found {
		d := v.(Detection)
		return &d, nil
	}
	d, err := c.Interface.GetDetection(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, *d, cache.DefaultExpiration)
	return d, nil
}

// ProgressCounts returns cached progress counters.
func (c *CachedStore) ProgressCounts(ctx context.Context) (ProgressCounts, error) {
	if v, found := c.lookup(keyProgress); found {
		return v.(ProgressCounts), nil
	}
	counts, err := c.Interface.ProgressCounts(ctx)
	if err != nil {
		return counts, err
	}
	c.cache.Set(keyProgress, counts, cache.DefaultExpiration)
	return counts, nil
}

// QualityCounts returns cached review counters.
func (c *CachedStore) QualityCounts(ctx context.Context) (QualityCounts, error) {
	if v, found := c.lookup(keyQuality); found {
		return v.(QualityCounts), nil
	}
	counts, err := c.Interface.QualityCounts(ctx)
	if err != nil {
		return counts, err
	}
	c.cache.Set(keyQuality, counts, cache.DefaultExpiration)
	return counts, nil
}

// Overview returns the cached dashboard summary.
func (c *CachedStore) Overview(ctx context.Context) (Overview, error) {
	if v, found := c.lookup(keyOverview); found {
		return v.(Overview), nil
	}
	ov, err := c.Interface.Overview(ctx)
	if err != nil {
		return ov, err
	}
	c.cache.Set(keyOverview, ov, cache.DefaultExpiration)
	return ov, nil
}

// UpdateArtifactPaths writes through and invalidates the row's session.
func (c *CachedStore) UpdateArtifactPaths(ctx context.Context, id uint, audioPath, spectrogramPath *string) (int64, error) {
	n, err := c.Interface.UpdateArtifactPaths(ctx, id, audioPath, spectrogramPath)
	if err == nil && n > 0 {
		c.invalidateDetection(ctx, id)
	}
	return n, err
}

// UpdateQualityStatus writes through and invalidates the row's session.
func (c *CachedStore) UpdateQualityStatus(ctx context.Context, id uint, status QualityStatus, notes string) (int64, error) {
	n, err := c.Interface.UpdateQualityStatus(ctx, id, status, notes)
	if err == nil && n > 0 {
		c.invalidateDetection(ctx, id)
	}
	return n, err
}

// Insert writes through and invalidates the new row's session.
func (c *CachedStore) Insert(ctx context.Context, d *Detection) error {
	if err := c.Interface.Insert(ctx, d); err != nil {
		return err
	}
	c.InvalidateSession(d.SessionName)
	return nil
}

// invalidateDetection resolves the session of id and drops its entries. When
// the session cannot be resolved the whole cache is flushed.
func (c *CachedStore) invalidateDetection(ctx context.Context, id uint) {
	c.cache.Delete(detectionKey(id))

	item, err := c.Interface.WorkItemByID(ctx, id)
	if err != nil {
		c.log.Debug("flushing viewer cache, session lookup failed",
			logger.Uint64("detection_id", uint64(id)),
			logger.Error(err))
		c.Flush()
		return
	}
	c.InvalidateSession(item.SessionName)
}

// InvalidateSession drops the listings of session, the unfiltered listings
// and every aggregate view.
func (c *CachedStore) InvalidateSession(session string) {
	sessionPrefix := keyDetections + strconv.Quote(session) + "|"
	unfilteredPrefix := keyDetections + strconv.Quote("") + "|"

	for key := range c.cache.Items() {
		if strings.HasPrefix(key, sessionPrefix) || strings.HasPrefix(key, unfilteredPrefix) {
			c.cache.Delete(key)
		}
	}
	c.cache.Delete(keySessions)
	c.cache.Delete(keyProgress)
	c.cache.Delete(keyQuality)
	c.cache.Delete(keyOverview)
	c.metrics.RecordOperation(metrics.OpCacheInvalidate, metrics.StatusSuccess)
}

// Flush empties the cache.
func (c *CachedStore) Flush() {
	c.cache.Flush()
}

// ItemCount returns the number of cached entries, including expired ones
// not yet dropped.
func (c *CachedStore) ItemCount() int {
	return c.cache.ItemCount()
}
