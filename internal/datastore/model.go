// model.go this code defines the data model for the detection record store
package datastore

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// QualityStatus is the review state a human assigns to a detection.
type QualityStatus string

const (
	QualityPending  QualityStatus = "pending"
	QualityApproved QualityStatus = "approved"
	QualityRejected QualityStatus = "rejected"
)

// Valid reports whether s is one of the known review states.
func (s QualityStatus) Valid() bool {
	switch s {
	case QualityPending, QualityApproved, QualityRejected:
		return true
	}
	return false
}

// Detection is one species identification event within a source recording.
// Rows are created by an external importer; the pipeline only writes the two
// artifact path columns and the review UI only writes the quality columns.
type Detection struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SessionName      string    `gorm:"not null;index:idx_session_name" json:"session_name"`
	ModelName        *string   `json:"model_name,omitempty"`
	ModelType        *string   `json:"model_type,omitempty"`
	Filename         string    `gorm:"not null" json:"filename"`
	FilePath         *string   `json:"file_path,omitempty"`
	StartTimeSeconds TimeValue `gorm:"not null" json:"start_time_seconds"`
	EndTimeSeconds   TimeValue `gorm:"not null" json:"end_time_seconds"`
	ScientificName   *string   `gorm:"index:idx_species" json:"scientific_name,omitempty"`
	CommonName       *string   `gorm:"index:idx_species" json:"common_name,omitempty"`
	Confidence       float64   `gorm:"not null;index:idx_confidence" json:"confidence"`
	Location         *string   `json:"location,omitempty"`
	CreatedAt        time.Time `gorm:"index:idx_pending_order" json:"created_at"`

	AudioSegmentPath *string `gorm:"index:idx_pending_order" json:"audio_segment_path"`
	SpectrogramPath  *string `json:"spectrogram_path"`

	QualityStatus QualityStatus `gorm:"type:varchar(20);default:pending;index:idx_quality_status" json:"quality_status"`
	ReviewedAt    *time.Time    `json:"reviewed_at,omitempty"`
	ReviewNotes   *string       `gorm:"type:text" json:"review_notes,omitempty"`
}

// TableName keeps the table name shared with the importer and viewer.
func (Detection) TableName() string {
	return "bird_detections"
}

// WorkItem is the subset of detection columns the artifact pipeline reads.
type WorkItem struct {
	ID               uint
	SessionName      string
	Filename         string
	StartTimeSeconds TimeValue
	EndTimeSeconds   TimeValue
	CommonName       *string
	ScientificName   *string
	Confidence       *float64
	AudioSegmentPath *string
	SpectrogramPath  *string
	CreatedAt        time.Time
}

// workItemColumns lists the columns scanned into a WorkItem.
var workItemColumns = []string{
	"id", "session_name", "filename", "start_time_seconds", "end_time_seconds",
	"common_name", "scientific_name", "confidence", "audio_segment_path",
	"spectrogram_path", "created_at",
}

// Species returns the display name used for artifact naming.
func (w *WorkItem) Species() string {
	if w.CommonName != nil && *w.CommonName != "" {
		return *w.CommonName
	}
	return "Unknown"
}

// Scientific returns the scientific name, or "" when unset.
func (w *WorkItem) Scientific() string {
	if w.ScientificName == nil {
		return ""
	}
	return *w.ScientificName
}

// ProgressCounts summarises artifact generation progress across the store.
type ProgressCounts struct {
	Total                int64 `json:"total_detections"`
	ProcessedAudio       int64 `json:"processed_audio"`
	ProcessedSpectrogram int64 `json:"processed_spectrogram"`
	Pending              int64 `json:"pending_audio"`
}

// AudioPercent returns the share of detections with an audio segment.
func (p ProgressCounts) AudioPercent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.ProcessedAudio) / float64(p.Total) * 100
}

// SpectrogramPercent returns the share of detections with a spectrogram.
func (p ProgressCounts) SpectrogramPercent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.ProcessedSpectrogram) / float64(p.Total) * 100
}

// SessionSummary aggregates detections sharing one session name.
type SessionSummary struct {
	SessionName    string    `json:"session_name"`
	DetectionCount int64     `json:"detection_count"`
	FileCount      int64     `json:"file_count"`
	SpeciesCount   int64     `json:"species_count"`
	ProcessedCount int64     `json:"processed_count"`
	AvgConfidence  float64   `json:"avg_confidence"`
	FirstCreated   time.Time `json:"first_created"`
	LastCreated    time.Time `json:"last_created"`
}

// QualityCounts holds the number of detections in each review state.
type QualityCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Total    int64 `json:"total"`
}

// SpeciesCount is one row of the top species listing.
type SpeciesCount struct {
	CommonName     string  `json:"common_name"`
	ScientificName string  `json:"scientific_name"`
	DetectionCount int64   `json:"detection_count"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

// Overview is the store-wide summary shown on the viewer dashboard.
type Overview struct {
	SessionCount   int64          `json:"session_count"`
	FileCount      int64          `json:"file_count"`
	DetectionCount int64          `json:"detection_count"`
	SpeciesCount   int64          `json:"species_count"`
	AvgConfidence  float64        `json:"avg_confidence"`
	MinConfidence  float64        `json:"min_confidence"`
	MaxConfidence  float64        `json:"max_confidence"`
	TopSpecies     []SpeciesCount `json:"top_species"`
}

// DetectionFilter narrows ListDetections. Zero values disable a criterion.
type DetectionFilter struct {
	Session       string
	Species       string // matches common or scientific name
	MinConfidence float64
	Status        QualityStatus
	OnlyProcessed bool
	Limit         int
	Offset        int
}

// TimeKind tells how a TimeValue was stored.
type TimeKind uint8

const (
	TimeNull TimeKind = iota
	TimeNumeric
	TimeText
)

// TimeValue is a detection time column that may hold seconds as a number or
// one of several textual encodings ("626.0", "10m26s", "10:26").
type TimeValue struct {
	Kind   TimeKind
	Number float64
	Text   string
}

// NumericTime returns a TimeValue holding seconds.
func NumericTime(seconds float64) TimeValue {
	return TimeValue{Kind: TimeNumeric, Number: seconds}
}

// TextTime returns a TimeValue holding an unparsed textual encoding.
func TextTime(s string) TimeValue {
	return TimeValue{Kind: TimeText, Text: s}
}

// IsNull reports whether the column was NULL.
func (t TimeValue) IsNull() bool {
	return t.Kind == TimeNull
}

// String returns the raw stored form.
func (t TimeValue) String() string {
	switch t.Kind {
	case TimeNumeric:
		return strconv.FormatFloat(t.Number, 'f', -1, 64)
	case TimeText:
		return t.Text
	default:
		return "<null>"
	}
}

// Scan implements sql.Scanner.
func (t *TimeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = TimeValue{}
	case float64:
		*t = NumericTime(v)
	case float32:
		*t = NumericTime(float64(v))
	case int64:
		*t = NumericTime(float64(v))
	case int:
		*t = NumericTime(float64(v))
	case string:
		*t = TextTime(v)
	case []byte:
		*t = TextTime(string(v))
	default:
		return fmt.Errorf("unsupported time column type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (t TimeValue) Value() (driver.Value, error) {
	switch t.Kind {
	case TimeNumeric:
		return t.Number, nil
	case TimeText:
		return t.Text, nil
	default:
		return nil, nil
	}
}

// MarshalJSON renders numbers as numbers and text as strings.
func (t TimeValue) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TimeNumeric:
		return []byte(strconv.FormatFloat(t.Number, 'f', -1, 64)), nil
	case TimeText:
		return []byte(strconv.Quote(t.Text)), nil
	default:
		return []byte("null"), nil
	}
}

// GormDBDataType picks a column type per dialect. SQLite keeps text values
// in a REAL column through type affinity; MySQL needs a character column to
// hold the textual encodings.
func (TimeValue) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "VARCHAR(32)"
	default:
		return "REAL"
	}
}
