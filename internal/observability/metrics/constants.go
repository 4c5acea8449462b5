// Package metrics provides constants used across metric definitions.
package metrics

// Pipeline stage names used as the "stage" label.
const (
	// StageValidate covers field and time validation of a work item.
	StageValidate = "validate"
	// StageLocate covers the source audio lookup.
	StageLocate = "locate"
	// StageExtract covers decoding the padded window and writing the clip.
	StageExtract = "extract"
	// StageRender covers spectrogram rendering.
	StageRender = "render"
	// StagePersist covers the artifact path update.
	StagePersist = "persist"
	// StageItem covers one work item end to end.
	StageItem = "item"
)

// Item outcome label values.
const (
	// OutcomeSucceeded marks an item whose paths were persisted.
	OutcomeSucceeded = "succeeded"
	// OutcomeFailed marks an item that stopped at a terminal stage.
	OutcomeFailed = "failed"
)

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHit     = "hit"
	StatusMiss    = "miss"
)

// Datastore operation names.
const (
	// OpDbQuery represents database query operations.
	OpDbQuery = "db_query"
	// OpDbUpdate represents database update operations.
	OpDbUpdate = "db_update"
	// OpCacheGet represents viewer cache lookups.
	OpCacheGet = "cache_get"
	// OpCacheInvalidate represents viewer cache invalidations.
	OpCacheInvalidate = "cache_invalidate"
)

// Artifact kind label values.
const (
	KindAudio       = "audio_segments"
	KindSpectrogram = "spectrograms"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart100B is the starting bucket for 100 byte histograms (100B to ~100MB range).
	BucketStart100B = 100.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor10 is the exponential growth factor of 10 for larger ranges.
	BucketFactor10 = 10

	// BucketCount6 defines 6 exponential buckets.
	BucketCount6 = 6
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// Conversion constants.
const (
	// BytesPerMB converts the MB figures reported by the artifact tree.
	BytesPerMB = 1024 * 1024
	// PercentageFactor is the multiplier to convert ratio to percentage.
	PercentageFactor = 100.0
)
