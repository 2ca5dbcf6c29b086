package sinks

import (
	"encoding/json"
	"time"

	"lookout/internal/core/models"
	"lookout/internal/db/repository"
	"lookout/internal/pipeline"
	"lookout/internal/tracking"
	"lookout/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Recorder persists pipeline events and marks attendance for recognized
// persons. Events are handed to a worker goroutine over a buffered channel so
// Publish never blocks the pipeline; when the buffer is full events are
// dropped.
type Recorder struct {
	repo   repository.Repository
	events chan pipeline.Event
	stopCh chan struct{}
	done   chan struct{}

	// person external ID -> database ID, filled lazily by the worker
	personIDs map[string]uint
}

// NewRecorder creates a recorder sink with the given queue capacity.
func NewRecorder(repo repository.Repository, queueSize int) *Recorder {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Recorder{
		repo:      repo,
		events:    make(chan pipeline.Event, queueSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		personIDs: make(map[string]uint),
	}
}

// Name identifies the sink in logs.
func (r *Recorder) Name() string { return "recorder" }

// Publish queues an event for persistence. Drops when the queue is full.
func (r *Recorder) Publish(ev pipeline.Event) {
	select {
	case r.events <- ev:
	default:
		log.Warnf("Recorder queue full, dropping event %s", ev.ID)
	}
}

// Start launches the persistence worker.
func (r *Recorder) Start() {
	go func() {
		defer close(r.done)
		for {
			select {
			case <-r.stopCh:
				// Drain what is already queued before exiting.
				for {
					select {
					case ev := <-r.events:
						r.handle(ev)
					default:
						return
					}
				}
			case ev := <-r.events:
				r.handle(ev)
			}
		}
	}()
	log.Info("Recorder sink started")
}

// Stop shuts the worker down after draining the queue.
func (r *Recorder) Stop() {
	close(r.stopCh)
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		log.Warn("Recorder worker did not stop in time")
	}
}

// handle persists one event and, for recognized persons, marks attendance.
func (r *Recorder) handle(ev pipeline.Event) {
	var personID *uint
	if ev.Status == tracking.StatusKnown && ev.PersonID != "" {
		if id, ok := r.resolvePerson(ev.PersonID); ok {
			personID = &id
			r.markAttendance(id, ev)
		}
	}

	box, err := json.Marshal(ev.Box)
	if err != nil {
		log.Errorf("Failed to marshal bounding box for event %s: %v", ev.ID, err)
		return
	}

	record := &models.DetectionEvent{
		EventID:     ev.ID,
		TrackID:     ev.TrackID,
		PersonID:    personID,
		Name:        ev.Name,
		Status:      string(ev.Status),
		Confidence:  ev.Confidence,
		Source:      ev.Source,
		BoundingBox: box,
		Timestamp:   ev.Timestamp,
	}
	if err := r.repo.SaveDetectionEvent(record); err != nil {
		log.Errorf("Failed to save detection event %s: %v", ev.ID, err)
	}
}

// resolvePerson maps the external person identifier to the database ID,
// caching the answer. The worker is the only goroutine touching the cache.
func (r *Recorder) resolvePerson(personID string) (uint, bool) {
	if id, ok := r.personIDs[personID]; ok {
		return id, true
	}
	person, err := r.repo.GetPersonByPersonID(personID)
	if err != nil {
		log.Errorf("Failed to look up person %s: %v", personID, err)
		return 0, false
	}
	if person == nil {
		log.Warnf("Recognized person %s has no database record", personID)
		return 0, false
	}
	r.personIDs[personID] = person.ID
	return person.ID, true
}

func (r *Recorder) markAttendance(personID uint, ev pipeline.Event) {
	date := timezone.DateOf(ev.Timestamp)
	record, changed, err := r.repo.MarkAttendance(personID, date, ev.Timestamp, ev.Confidence, ev.Source)
	if err != nil {
		log.Errorf("Failed to mark attendance for %s on %s: %v", ev.Name, date, err)
		return
	}
	if changed {
		log.WithFields(log.Fields{
			"person": ev.Name,
			"date":   date,
		}).Infof("Attendance updated (check-in %s)", record.CheckIn.Format(time.RFC3339))
	}
}
