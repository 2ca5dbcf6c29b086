package sinks

import (
	"testing"
	"time"

	"lookout/internal/core/models"
	lookoutdb "lookout/internal/db"
	"lookout/internal/db/repository"
	"lookout/internal/detection"
	"lookout/internal/pipeline"
	"lookout/internal/tracking"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) repository.Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, lookoutdb.Migrate(db))
	return repository.NewSQLiteRepository(db)
}

func knownEvent(id string, ts time.Time) pipeline.Event {
	return pipeline.Event{
		ID:         id,
		TrackID:    1,
		PersonID:   "EMP-1",
		Name:       "alice",
		Status:     tracking.StatusKnown,
		Confidence: 0.9,
		Box:        detection.Detection{X1: 100, Y1: 100, X2: 200, Y2: 400, Confidence: 0.8},
		Source:     "rtsp://cam.local/stream",
		Timestamp:  ts,
	}
}

func TestRecorderPersistsEventsAndAttendance(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreatePerson(&models.Person{PersonID: "EMP-1", Name: "alice"}))

	rec := NewRecorder(repo, 16)
	ts := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	rec.Publish(knownEvent("ev-1", ts))
	rec.Publish(pipeline.Event{
		ID: "ev-2", TrackID: 2, Name: "-", Status: tracking.StatusTracking,
		Source: "rtsp://cam.local/stream", Timestamp: ts,
	})

	// Stop drains the queue, so everything published is persisted afterwards.
	rec.Start()
	rec.Stop()

	events, total, err := repo.ListDetectionEvents(10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, events, 2)

	records, err := repo.ListAttendance("2026-08-23")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ts, records[0].CheckIn.UTC())
	// The unrecognized track must not produce attendance.
	assert.Equal(t, "alice", records[0].Person.Name)
}

func TestRecorderUnknownPersonStillRecordsEvent(t *testing.T) {
	repo := newTestRepo(t)

	rec := NewRecorder(repo, 16)
	// Person EMP-1 is not registered in the database.
	rec.Publish(knownEvent("ev-1", time.Now()))
	rec.Start()
	rec.Stop()

	_, total, err := repo.ListDetectionEvents(10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	records, err := repo.ListAttendance(time.Now().UTC().Format("2006-01-02"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreatePerson(&models.Person{PersonID: "EMP-1", Name: "alice"}))

	rec := NewRecorder(repo, 1)
	ts := time.Now()
	// Worker is not running yet, so the second publish overflows the queue.
	rec.Publish(knownEvent("ev-1", ts))
	rec.Publish(knownEvent("ev-2", ts))

	rec.Start()
	rec.Stop()

	events, total, err := repo.ListDetectionEvents(10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-1", events[0].EventID)
}
