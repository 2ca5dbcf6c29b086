package repository

import (
	"testing"
	"time"

	"lookout/internal/core/models"
	lookoutdb "lookout/internal/db"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, lookoutdb.Migrate(db))
	return NewSQLiteRepository(db)
}

func TestPersonCRUD(t *testing.T) {
	repo := newTestRepo(t)

	p := &models.Person{PersonID: "EMP-1", Name: "alice", Department: "engineering"}
	require.NoError(t, repo.CreatePerson(p))
	require.NotZero(t, p.ID)

	got, err := repo.GetPersonByPersonID("EMP-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Name)

	got.Position = "lead"
	require.NoError(t, repo.SavePerson(got))

	persons, total, err := repo.ListPersons(10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "lead", persons[0].Position)

	require.NoError(t, repo.DeletePerson(p.ID))
	missing, err := repo.GetPersonByPersonID("EMP-1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkAttendanceDuplicateWindow(t *testing.T) {
	repo := newTestRepo(t)
	p := &models.Person{PersonID: "EMP-1", Name: "alice"}
	require.NoError(t, repo.CreatePerson(p))

	day := "2026-08-23"
	t0 := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

	rec, changed, err := repo.MarkAttendance(p.ID, day, t0, 0.9, "rtsp://cam")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, t0, rec.CheckIn.UTC())
	assert.Nil(t, rec.CheckOut)

	// A second sighting two minutes later falls inside the duplicate window.
	_, changed, err = repo.MarkAttendance(p.ID, day, t0.Add(2*time.Minute), 0.8, "rtsp://cam")
	require.NoError(t, err)
	assert.False(t, changed)

	// A sighting past the window updates the checkout and duration.
	rec, changed, err = repo.MarkAttendance(p.ID, day, t0.Add(8*time.Hour), 0.95, "rtsp://cam")
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, rec.CheckOut)
	assert.InDelta(t, 480.0, rec.DurationMin, 0.01)
	assert.InDelta(t, 0.95, rec.Confidence, 1e-9)

	records, err := repo.ListAttendance(day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].Person.Name)
}

func TestListAttendanceRange(t *testing.T) {
	repo := newTestRepo(t)
	p := &models.Person{PersonID: "EMP-1", Name: "alice"}
	require.NoError(t, repo.CreatePerson(p))

	for _, day := range []string{"2026-08-20", "2026-08-21", "2026-08-23"} {
		at, _ := time.Parse("2006-01-02", day)
		_, _, err := repo.MarkAttendance(p.ID, day, at, 0.9, "cam")
		require.NoError(t, err)
	}

	records, err := repo.ListAttendanceRange("2026-08-20", "2026-08-21")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDeletePersonRemovesTemplates(t *testing.T) {
	repo := newTestRepo(t)
	p := &models.Person{PersonID: "EMP-1", Name: "alice"}
	require.NoError(t, repo.CreatePerson(p))
	require.NoError(t, repo.SaveTemplate(&models.FaceTemplate{
		PersonID:  p.ID,
		Embedding: []byte(`[0.1, 0.2, 0.3]`),
		Embedder:  "sface",
	}))

	require.NoError(t, repo.DeletePerson(p.ID))

	// No template may survive the person; a leftover row would reload into
	// the gallery as a nameless entry and keep matching.
	templates, err := repo.GetTemplates()
	require.NoError(t, err)
	assert.Empty(t, templates)

	byPerson, err := repo.GetTemplatesByPerson(p.ID)
	require.NoError(t, err)
	assert.Empty(t, byPerson)
}

func TestDeleteAttendanceBefore(t *testing.T) {
	repo := newTestRepo(t)
	p := &models.Person{PersonID: "EMP-1", Name: "alice"}
	require.NoError(t, repo.CreatePerson(p))

	for _, day := range []string{"2025-01-10", "2026-08-20", "2026-08-23"} {
		at, _ := time.Parse("2006-01-02", day)
		_, _, err := repo.MarkAttendance(p.ID, day, at, 0.9, "cam")
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteAttendanceBefore("2026-01-01")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	records, err := repo.ListAttendanceRange("2025-01-01", "2026-12-31")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDetectionEventsRetention(t *testing.T) {
	repo := newTestRepo(t)

	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now()
	require.NoError(t, repo.SaveDetectionEvent(&models.DetectionEvent{
		EventID: "ev-old", TrackID: 1, Name: "alice", Status: "Known", Timestamp: old,
	}))
	require.NoError(t, repo.SaveDetectionEvent(&models.DetectionEvent{
		EventID: "ev-new", TrackID: 2, Name: "bob", Status: "Unknown", Timestamp: recent,
	}))

	deleted, err := repo.DeleteEventsBefore(time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	events, total, err := repo.ListDetectionEvents(10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-new", events[0].EventID)
}

func TestAPIKeyLookup(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateAPIKey(&models.APIKey{
		Name: "ci", KeyHash: "abc123", Active: true,
	}))

	key, err := repo.FindActiveKeyByHash("abc123")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, "ci", key.Name)

	missing, err := repo.FindActiveKeyByHash("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.TouchAPIKey(key.ID, time.Now()))
}

func TestTemplatesForGalleryLoad(t *testing.T) {
	repo := newTestRepo(t)
	p := &models.Person{PersonID: "EMP-1", Name: "alice"}
	require.NoError(t, repo.CreatePerson(p))

	require.NoError(t, repo.SaveTemplate(&models.FaceTemplate{
		PersonID:  p.ID,
		Embedding: []byte(`[0.1, 0.2, 0.3]`),
		Embedder:  "sface",
		Quality:   0.8,
	}))

	templates, err := repo.GetTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "alice", templates[0].Person.Name)

	byPerson, err := repo.GetTemplatesByPerson(p.ID)
	require.NoError(t, err)
	assert.Len(t, byPerson, 1)
}

func TestStatistics(t *testing.T) {
	repo := newTestRepo(t)
	p := &models.Person{PersonID: "EMP-1", Name: "alice"}
	require.NoError(t, repo.CreatePerson(p))

	now := time.Now()
	today := now.Format("2006-01-02")
	_, _, err := repo.MarkAttendance(p.ID, today, now, 0.9, "cam")
	require.NoError(t, err)
	require.NoError(t, repo.SaveDetectionEvent(&models.DetectionEvent{
		EventID: "ev-1", TrackID: 1, Name: "alice", Status: "Known", Timestamp: now,
	}))

	stats, err := repo.GetStatistics(today)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalPersons)
	assert.EqualValues(t, 1, stats.TotalEvents)
	assert.EqualValues(t, 1, stats.TodayAttendance)
	assert.WithinDuration(t, now, stats.LatestEvent, time.Second)
}
