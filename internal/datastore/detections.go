package datastore

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	topSpeciesLimit  = 10
)

// dbError wraps a GORM error with datastore context.
func dbError(err error, operation string) *errors.EnhancedError {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

func notFoundError(id uint) *errors.EnhancedError {
	return errors.Newf("detection %d not found", id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("detection_id", id).
		Build()
}

// nullable turns a nil pointer into SQL NULL for map based updates.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// PendingWork returns every detection without an audio segment, oldest first.
func (ds *DataStore) PendingWork(ctx context.Context) ([]WorkItem, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	var items []WorkItem
	err := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Select(workItemColumns).
		Where("audio_segment_path IS NULL").
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, dbError(err, "pending_work")
	}
	return items, nil
}

// WorkItemByID returns the pipeline projection of one detection. A missing
// id yields a not-found category error.
func (ds *DataStore) WorkItemByID(ctx context.Context, id uint) (*WorkItem, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	var item WorkItem
	result := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Select(workItemColumns).
		Where("id = ?", id).
		Limit(1).
		Find(&item)
	if result.Error != nil {
		return nil, dbError(result.Error, "work_item_by_id")
	}
	if result.RowsAffected == 0 {
		return nil, notFoundError(id)
	}
	return &item, nil
}

// UpdateArtifactPaths writes both artifact path columns in a single statement
// and returns the number of rows it matched.
func (ds *DataStore) UpdateArtifactPaths(ctx context.Context, id uint, audioPath, spectrogramPath *string) (int64, error) {
	if err := ds.ready(); err != nil {
		return 0, err
	}

	result := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"audio_segment_path": nullable(audioPath),
			"spectrogram_path":   nullable(spectrogramPath),
		})
	if result.Error != nil {
		return 0, errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryPersistence).
			Context("operation", "update_artifact_paths").
			Context("detection_id", id).
			Build()
	}
	return result.RowsAffected, nil
}

// ProgressCounts counts detections with and without artifacts.
func (ds *DataStore) ProgressCounts(ctx context.Context) (ProgressCounts, error) {
	var counts ProgressCounts
	if err := ds.ready(); err != nil {
		return counts, err
	}

	err := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Select("COUNT(*) AS total, " +
			"COUNT(audio_segment_path) AS processed_audio, " +
			"COUNT(spectrogram_path) AS processed_spectrogram").
		Scan(&counts).Error
	if err != nil {
		return counts, dbError(err, "progress_counts")
	}
	counts.Pending = counts.Total - counts.ProcessedAudio
	return counts, nil
}

// sessionRow mirrors SessionSummary with driver tolerant timestamps.
type sessionRow struct {
	SessionName    string
	DetectionCount int64
	FileCount      int64
	SpeciesCount   int64
	ProcessedCount int64
	AvgConfidence  float64
	FirstCreated   flexTime
	LastCreated    flexTime
}

// Sessions summarises detections per session, most recently imported first.
func (ds *DataStore) Sessions(ctx context.Context) ([]SessionSummary, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	var rows []sessionRow
	err := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Select("session_name, " +
			"COUNT(*) AS detection_count, " +
			"COUNT(DISTINCT filename) AS file_count, " +
			"COUNT(DISTINCT scientific_name) AS species_count, " +
			"COUNT(audio_segment_path) AS processed_count, " +
			"AVG(confidence) AS avg_confidence, " +
			"MIN(created_at) AS first_created, " +
			"MAX(created_at) AS last_created").
		Group("session_name").
		Order("last_created DESC, session_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "sessions")
	}

	sessions := make([]SessionSummary, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		sessions = append(sessions, SessionSummary{
			SessionName:    r.SessionName,
			DetectionCount: r.DetectionCount,
			FileCount:      r.FileCount,
			SpeciesCount:   r.SpeciesCount,
			ProcessedCount: r.ProcessedCount,
			AvgConfidence:  r.AvgConfidence,
			FirstCreated:   r.FirstCreated.Time,
			LastCreated:    r.LastCreated.Time,
		})
	}
	return sessions, nil
}

// ListDetections returns detections matching filter. Within a session rows
// are ordered by recording and start time; otherwise newest first.
func (ds *DataStore) ListDetections(ctx context.Context, filter DetectionFilter) ([]Detection, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	query := ds.DB.WithContext(ctx).Model(&Detection{})
	if filter.Session != "" {
		query = query.Where("session_name = ?", filter.Session)
	}
	if filter.Species != "" {
		query = query.Where("(common_name = ? OR scientific_name = ?)", filter.Species, filter.Species)
	}
	if filter.MinConfidence > 0 {
		query = query.Where("confidence >= ?", filter.MinConfidence)
	}
	if filter.Status != "" {
		query = query.Where("quality_status = ?", string(filter.Status))
	}
	if filter.OnlyProcessed {
		query = query.Where("audio_segment_path IS NOT NULL")
	}

	if filter.Session != "" {
		query = query.Order("filename ASC, start_time_seconds ASC, id ASC")
	} else {
		query = query.Order("created_at DESC, id DESC")
	}

	var detections []Detection
	if err := query.Limit(limit).Offset(max(filter.Offset, 0)).Find(&detections).Error; err != nil {
		return nil, dbError(err, "list_detections")
	}
	return detections, nil
}

// GetDetection returns one full detection row.
func (ds *DataStore) GetDetection(ctx context.Context, id uint) (*Detection, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	var d Detection
	if err := ds.DB.WithContext(ctx).First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(id)
		}
		return nil, dbError(err, "get_detection")
	}
	return &d, nil
}

// UpdateQualityStatus records a review decision and stamps reviewed_at.
func (ds *DataStore) UpdateQualityStatus(ctx context.Context, id uint, status QualityStatus, notes string) (int64, error) {
	if !status.Valid() {
		return 0, errors.Newf("invalid quality status %q", status).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("detection_id", id).
			Build()
	}
	if err := ds.ready(); err != nil {
		return 0, err
	}

	var notesValue any
	if notes != "" {
		notesValue = notes
	}

	result := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quality_status": string(status),
			"reviewed_at":    ds.clock(),
			"review_notes":   notesValue,
		})
	if result.Error != nil {
		return 0, dbError(result.Error, "update_quality_status")
	}
	return result.RowsAffected, nil
}

// QualityCounts counts detections per review state.
func (ds *DataStore) QualityCounts(ctx context.Context) (QualityCounts, error) {
	var counts QualityCounts
	if err := ds.ready(); err != nil {
		return counts, err
	}

	var rows []struct {
		QualityStatus string
		Count         int64
	}
	err := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Select("quality_status, COUNT(*) AS count").
		Group("quality_status").
		Scan(&rows).Error
	if err != nil {
		return counts, dbError(err, "quality_counts")
	}

	for _, r := range rows {
		switch QualityStatus(r.QualityStatus) {
		case QualityApproved:
			counts.Approved = r.Count
		case QualityRejected:
			counts.Rejected = r.Count
		case QualityPending:
			counts.Pending = r.Count
		}
		counts.Total += r.Count
	}
	return counts, nil
}

// Overview returns store-wide totals and the most detected species.
func (ds *DataStore) Overview(ctx context.Context) (Overview, error) {
	var ov Overview
	if err := ds.ready(); err != nil {
		return ov, err
	}

	var base struct {
		SessionCount   int64
		FileCount      int64
		DetectionCount int64
		SpeciesCount   int64
		AvgConfidence  *float64
		MinConfidence  *float64
		MaxConfidence  *float64
	}
	err := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Select("COUNT(DISTINCT session_name) AS session_count, " +
			"COUNT(DISTINCT filename) AS file_count, " +
			"COUNT(*) AS detection_count, " +
			"COUNT(DISTINCT scientific_name) AS species_count, " +
			"AVG(confidence) AS avg_confidence, " +
			"MIN(confidence) AS min_confidence, " +
			"MAX(confidence) AS max_confidence").
		Scan(&base).Error
	if err != nil {
		return ov, dbError(err, "overview")
	}

	ov.SessionCount = base.SessionCount
	ov.FileCount = base.FileCount
	ov.DetectionCount = base.DetectionCount
	ov.SpeciesCount = base.SpeciesCount
	if base.AvgConfidence != nil {
		ov.AvgConfidence = *base.AvgConfidence
	}
	if base.MinConfidence != nil {
		ov.MinConfidence = *base.MinConfidence
	}
	if base.MaxConfidence != nil {
		ov.MaxConfidence = *base.MaxConfidence
	}

	err = ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Select("common_name, COALESCE(scientific_name, '') AS scientific_name, COUNT(*) AS detection_count, AVG(confidence) AS avg_confidence").
		Where("common_name IS NOT NULL").
		Group("scientific_name, common_name").
		Order("detection_count DESC, common_name ASC").
		Limit(topSpeciesLimit).
		Scan(&ov.TopSpecies).Error
	if err != nil {
		return ov, dbError(err, "top_species")
	}
	return ov, nil
}

// Insert stores a new detection. Importers use it; the pipeline never does.
func (ds *DataStore) Insert(ctx context.Context, d *Detection) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if d.QualityStatus == "" {
		d.QualityStatus = QualityPending
	}
	if err := ds.DB.WithContext(ctx).Create(d).Error; err != nil {
		return dbError(err, "insert_detection")
	}
	return nil
}

// flexTime scans aggregate timestamps, which SQLite returns as text and
// MySQL returns as time values.
type flexTime struct {
	time.Time
}

var flexTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// Scan implements sql.Scanner.
func (f *flexTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		f.Time = time.Time{}
		return nil
	case time.Time:
		f.Time = v
		return nil
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

// Value implements driver.Valuer.
func (f flexTime) Value() (driver.Value, error) {
	return f.Time, nil
}

func (f *flexTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range flexTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
