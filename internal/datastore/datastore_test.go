package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

func strPtr(s string) *string { return &s }

// createDatabase opens a SQLite store in a temp directory.
func createDatabase(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.Type = "sqlite"
	settings.Database.SQLite.Path = filepath.Join(t.TempDir(), "nested", "result.db")

	store, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, store.Close(), "Failed to close datastore")
	})

	return store.(*SQLiteStore)
}

// seed inserts a detection with sensible defaults.
func seed(t *testing.T, ds Interface, session, file, species string, created time.Time) *Detection {
	t.Helper()
	d := &Detection{
		SessionName:      session,
		Filename:         file,
		StartTimeSeconds: NumericTime(10),
		EndTimeSeconds:   NumericTime(13),
		CommonName:       strPtr(species),
		ScientificName:   strPtr(species + " sci"),
		Confidence:       0.8,
		CreatedAt:        created,
	}
	require.NoError(t, ds.Insert(context.Background(), d))
	return d
}

func TestNewRejectsUnknownType(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Database.Type = "postgres"

	_, err := New(settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOpenCreatesSchema(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	assert.True(t, ds.DB.Migrator().HasTable("bird_detections"))
	assert.True(t, ds.DB.Migrator().HasColumn(&Detection{}, "audio_segment_path"))
	assert.True(t, ds.DB.Migrator().HasIndex(&Detection{}, "idx_quality_status"))
}

func TestUnopenedStoreReturnsError(t *testing.T) {
	t.Parallel()

	ds := &DataStore{}
	_, err := ds.PendingWork(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
	assert.NoError(t, ds.Close())
}

func TestTimeValuePersistsNumericAndText(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()

	d := &Detection{
		SessionName:      "s",
		Filename:         "rec",
		StartTimeSeconds: NumericTime(626),
		EndTimeSeconds:   TextTime("10m29s"),
		Confidence:       0.5,
	}
	require.NoError(t, ds.Insert(ctx, d))

	item, err := ds.WorkItemByID(ctx, d.ID)
	require.NoError(t, err)

	assert.Equal(t, TimeNumeric, item.StartTimeSeconds.Kind)
	assert.InDelta(t, 626.0, item.StartTimeSeconds.Number, 1e-9)
	assert.Equal(t, TimeText, item.EndTimeSeconds.Kind)
	assert.Equal(t, "10m29s", item.EndTimeSeconds.Text)
	assert.Equal(t, "Unknown", item.Species())
	assert.Empty(t, item.Scientific())
}

func TestPendingWorkOrdersOldestFirst(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	second := seed(t, ds, "s", "b", "Robin", base.Add(time.Minute))
	first := seed(t, ds, "s", "a", "Robin", base)
	done := seed(t, ds, "s", "c", "Robin", base.Add(-time.Hour))
	third := seed(t, ds, "s", "d", "Robin", base.Add(2*time.Minute))

	_, err := ds.UpdateArtifactPaths(ctx, done.ID, strPtr("audio_segments/s/x.wav"), nil)
	require.NoError(t, err)

	items, err := ds.PendingWork(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []uint{first.ID, second.ID, third.ID}, []uint{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, "Robin", items[0].Species())
	assert.Equal(t, "Robin sci", items[0].Scientific())
	require.NotNil(t, items[0].Confidence)
	assert.InDelta(t, 0.8, *items[0].Confidence, 1e-9)
}

func TestWorkItemByIDNotFound(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	_, err := ds.WorkItemByID(context.Background(), 4242)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdateArtifactPaths(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()
	d := seed(t, ds, "s", "a", "Robin", time.Now())

	n, err := ds.UpdateArtifactPaths(ctx, d.ID, strPtr("audio_segments/s/a.wav"), strPtr("spectrograms/s/a.png"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Rewriting identical values still matches the row.
	n, err = ds.UpdateArtifactPaths(ctx, d.ID, strPtr("audio_segments/s/a.wav"), strPtr("spectrograms/s/a.png"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// A nil spectrogram path clears the column.
	n, err = ds.UpdateArtifactPaths(ctx, d.ID, strPtr("audio_segments/s/a_2.wav"), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := ds.GetDetection(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AudioSegmentPath)
	assert.Equal(t, "audio_segments/s/a_2.wav", *got.AudioSegmentPath)
	assert.Nil(t, got.SpectrogramPath)

	n, err = ds.UpdateArtifactPaths(ctx, 9999, strPtr("x"), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestProgressCounts(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()
	a := seed(t, ds, "s", "a", "Robin", time.Now())
	b := seed(t, ds, "s", "b", "Robin", time.Now())
	seed(t, ds, "s", "c", "Robin", time.Now())
	seed(t, ds, "s", "d", "Robin", time.Now())

	_, err := ds.UpdateArtifactPaths(ctx, a.ID, strPtr("a.wav"), strPtr("a.png"))
	require.NoError(t, err)
	_, err = ds.UpdateArtifactPaths(ctx, b.ID, strPtr("b.wav"), nil)
	require.NoError(t, err)

	counts, err := ds.ProgressCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProgressCounts{Total: 4, ProcessedAudio: 2, ProcessedSpectrogram: 1, Pending: 2}, counts)
	assert.InDelta(t, 50.0, counts.AudioPercent(), 1e-9)
	assert.InDelta(t, 25.0, counts.SpectrogramPercent(), 1e-9)
	assert.Zero(t, ProgressCounts{}.AudioPercent())
}

func TestSessionsSummaries(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	a := seed(t, ds, "morning", "rec1", "Robin", base)
	seed(t, ds, "morning", "rec1", "Wren", base.Add(time.Minute))
	seed(t, ds, "morning", "rec2", "Robin", base.Add(2*time.Minute))
	seed(t, ds, "evening", "rec3", "Owl", base.Add(time.Hour))

	_, err := ds.UpdateArtifactPaths(ctx, a.ID, strPtr("a.wav"), nil)
	require.NoError(t, err)

	sessions, err := ds.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "evening", sessions[0].SessionName)
	morning := sessions[1]
	assert.Equal(t, "morning", morning.SessionName)
	assert.EqualValues(t, 3, morning.DetectionCount)
	assert.EqualValues(t, 2, morning.FileCount)
	assert.EqualValues(t, 2, morning.SpeciesCount)
	assert.EqualValues(t, 1, morning.ProcessedCount)
	assert.InDelta(t, 0.8, morning.AvgConfidence, 1e-9)
	assert.False(t, morning.LastCreated.IsZero())
	assert.True(t, morning.LastCreated.After(morning.FirstCreated))
}

func TestListDetectionsFilters(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	robin := seed(t, ds, "s1", "rec", "Robin", base)
	wren := seed(t, ds, "s1", "rec", "Wren", base.Add(time.Second))
	seed(t, ds, "s2", "rec", "Robin", base.Add(2*time.Second))

	low := &Detection{
		SessionName: "s1", Filename: "rec", CommonName: strPtr("Robin"),
		StartTimeSeconds: NumericTime(1), EndTimeSeconds: NumericTime(2), Confidence: 0.2,
	}
	require.NoError(t, ds.Insert(ctx, low))

	all, err := ds.ListDetections(ctx, DetectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	s1, err := ds.ListDetections(ctx, DetectionFilter{Session: "s1"})
	require.NoError(t, err)
	assert.Len(t, s1, 3)

	robins, err := ds.ListDetections(ctx, DetectionFilter{Session: "s1", Species: "Robin", MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, robins, 1)
	assert.Equal(t, robin.ID, robins[0].ID)

	bySci, err := ds.ListDetections(ctx, DetectionFilter{Species: "Wren sci"})
	require.NoError(t, err)
	require.Len(t, bySci, 1)
	assert.Equal(t, wren.ID, bySci[0].ID)

	_, err = ds.UpdateQualityStatus(ctx, wren.ID, QualityApproved, "")
	require.NoError(t, err)
	approved, err := ds.ListDetections(ctx, DetectionFilter{Status: QualityApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, wren.ID, approved[0].ID)

	limited, err := ds.ListDetections(ctx, DetectionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	processed, err := ds.ListDetections(ctx, DetectionFilter{OnlyProcessed: true})
	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestQualityStatusUpdates(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()
	reviewTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ds.now = func() time.Time { return reviewTime }

	a := seed(t, ds, "s", "a", "Robin", time.Now())
	b := seed(t, ds, "s", "b", "Robin", time.Now())
	seed(t, ds, "s", "c", "Robin", time.Now())

	n, err := ds.UpdateQualityStatus(ctx, a.ID, QualityApproved, "clear song")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = ds.UpdateQualityStatus(ctx, b.ID, QualityRejected, "")
	require.NoError(t, err)

	_, err = ds.UpdateQualityStatus(ctx, a.ID, QualityStatus("maybe"), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	n, err = ds.UpdateQualityStatus(ctx, 9999, QualityApproved, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := ds.GetDetection(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, QualityApproved, got.QualityStatus)
	require.NotNil(t, got.ReviewNotes)
	assert.Equal(t, "clear song", *got.ReviewNotes)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, got.ReviewedAt.Equal(reviewTime))

	counts, err := ds.QualityCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, QualityCounts{Pending: 1, Approved: 1, Rejected: 1, Total: 3}, counts)
}

func TestGetDetectionNotFound(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	_, err := ds.GetDetection(context.Background(), 77)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestOverview(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t)
	ctx := context.Background()

	empty, err := ds.Overview(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.DetectionCount)
	assert.Empty(t, empty.TopSpecies)

	seed(t, ds, "s1", "r1", "Robin", time.Now())
	seed(t, ds, "s1", "r2", "Robin", time.Now())
	seed(t, ds, "s2", "r3", "Wren", time.Now())

	ov, err := ds.Overview(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ov.SessionCount)
	assert.EqualValues(t, 3, ov.FileCount)
	assert.EqualValues(t, 3, ov.DetectionCount)
	assert.EqualValues(t, 2, ov.SpeciesCount)
	assert.InDelta(t, 0.8, ov.MaxConfidence, 1e-9)
	require.Len(t, ov.TopSpecies, 2)
	assert.Equal(t, "Robin", ov.TopSpecies[0].CommonName)
	assert.EqualValues(t, 2, ov.TopSpecies[0].DetectionCount)
}

func TestQualityStatusValid(t *testing.T) {
	t.Parallel()

	assert.True(t, QualityPending.Valid())
	assert.True(t, QualityApproved.Valid())
	assert.True(t, QualityRejected.Valid())
	assert.False(t, QualityStatus("").Valid())
	assert.False(t, QualityStatus("unsure").Valid())
}
