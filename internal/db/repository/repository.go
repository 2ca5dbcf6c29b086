package repository

import (
	"errors"
	"time"

	"lookout/internal/core/models"

	"gorm.io/gorm"
)

// duplicateWindow suppresses repeated attendance marks for the same person
// arriving in quick succession.
const duplicateWindow = 5 * time.Minute

// Repository defines the database operations.
type Repository interface {
	// Persons
	CreatePerson(person *models.Person) error
	GetPersonByID(id uint) (*models.Person, error)
	GetPersonByPersonID(personID string) (*models.Person, error)
	ListPersons(limit, offset int) ([]models.Person, int64, error)
	SavePerson(person *models.Person) error
	DeletePerson(id uint) error

	// Face templates
	SaveTemplate(template *models.FaceTemplate) error
	GetTemplates() ([]models.FaceTemplate, error)
	GetTemplatesByPerson(personID uint) ([]models.FaceTemplate, error)

	// Attendance
	MarkAttendance(personID uint, date string, at time.Time, confidence float64, source string) (*models.AttendanceRecord, bool, error)
	ListAttendance(date string) ([]models.AttendanceRecord, error)
	ListAttendanceRange(from, to string) ([]models.AttendanceRecord, error)
	DeleteAttendanceBefore(cutoffDate string) (int64, error)

	// Detection events
	SaveDetectionEvent(event *models.DetectionEvent) error
	ListDetectionEvents(limit, offset int) ([]models.DetectionEvent, int64, error)
	DeleteEventsBefore(cutoff time.Time) (int64, error)

	// API keys
	CreateAPIKey(key *models.APIKey) error
	FindActiveKeyByHash(hash string) (*models.APIKey, error)
	TouchAPIKey(id uint, at time.Time) error

	// Statistics
	GetStatistics(today string) (models.Statistics, error)
}

// SQLiteRepository implements Repository on gorm/SQLite.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a repository instance.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Persons

// CreatePerson inserts a new person.
func (r *SQLiteRepository) CreatePerson(person *models.Person) error {
	return r.db.Create(person).Error
}

// GetPersonByID fetches a person by database ID; nil if not found.
func (r *SQLiteRepository) GetPersonByID(id uint) (*models.Person, error) {
	var person models.Person
	result := r.db.First(&person, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &person, nil
}

// GetPersonByPersonID fetches a person by external identifier; nil if not found.
func (r *SQLiteRepository) GetPersonByPersonID(personID string) (*models.Person, error) {
	var person models.Person
	result := r.db.Where("person_id = ?", personID).First(&person)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &person, nil
}

// ListPersons returns persons with pagination.
func (r *SQLiteRepository) ListPersons(limit, offset int) ([]models.Person, int64, error) {
	var persons []models.Person
	var total int64

	r.db.Model(&models.Person{}).Count(&total)
	result := r.db.Order("name ASC").Limit(limit).Offset(offset).Find(&persons)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return persons, total, nil
}

// SavePerson persists changes to a person.
func (r *SQLiteRepository) SavePerson(person *models.Person) error {
	return r.db.Save(person).Error
}

// DeletePerson removes a person and their face templates. Person deletes are
// soft, so the FK cascade never fires; the templates must go explicitly or
// orphaned embeddings resurface in the gallery on the next startup.
func (r *SQLiteRepository) DeletePerson(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("person_id = ?", id).Delete(&models.FaceTemplate{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Person{}, id).Error
	})
}

// Face templates

// SaveTemplate persists a face template.
func (r *SQLiteRepository) SaveTemplate(template *models.FaceTemplate) error {
	return r.db.Save(template).Error
}

// GetTemplates returns all face templates with their persons preloaded, for
// loading the gallery at startup.
func (r *SQLiteRepository) GetTemplates() ([]models.FaceTemplate, error) {
	var templates []models.FaceTemplate
	result := r.db.Preload("Person").Find(&templates)
	if result.Error != nil {
		return nil, result.Error
	}
	return templates, nil
}

// GetTemplatesByPerson returns the templates registered for one person.
func (r *SQLiteRepository) GetTemplatesByPerson(personID uint) ([]models.FaceTemplate, error) {
	var templates []models.FaceTemplate
	result := r.db.Where("person_id = ?", personID).Find(&templates)
	if result.Error != nil {
		return nil, result.Error
	}
	return templates, nil
}

// Attendance

// MarkAttendance records a sighting of a person. The first sighting of a day
// creates the record with CheckIn; later sightings outside the duplicate
// window update CheckOut and the duration. The bool reports whether anything
// changed.
func (r *SQLiteRepository) MarkAttendance(personID uint, date string, at time.Time, confidence float64, source string) (*models.AttendanceRecord, bool, error) {
	var record models.AttendanceRecord
	result := r.db.Where("person_id = ? AND date = ?", personID, date).First(&record)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, false, result.Error
		}
		record = models.AttendanceRecord{
			PersonID:   personID,
			Date:       date,
			CheckIn:    at,
			Confidence: confidence,
			Source:     source,
			MarkedBy:   "system",
		}
		if err := r.db.Create(&record).Error; err != nil {
			return nil, false, err
		}
		return &record, true, nil
	}

	last := record.CheckIn
	if record.CheckOut != nil {
		last = *record.CheckOut
	}
	if at.Sub(last) < duplicateWindow {
		return &record, false, nil
	}

	record.CheckOut = &at
	record.DurationMin = at.Sub(record.CheckIn).Minutes()
	if confidence > record.Confidence {
		record.Confidence = confidence
	}
	if err := r.db.Save(&record).Error; err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

// ListAttendance returns the attendance records for one date.
func (r *SQLiteRepository) ListAttendance(date string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	result := r.db.Preload("Person").Where("date = ?", date).Order("check_in ASC").Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// ListAttendanceRange returns the attendance records for an inclusive date
// range.
func (r *SQLiteRepository) ListAttendanceRange(from, to string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	result := r.db.Preload("Person").
		Where("date >= ? AND date <= ?", from, to).
		Order("date ASC, check_in ASC").
		Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// DeleteAttendanceBefore removes attendance records dated before the cutoff
// (YYYY-MM-DD) and reports how many were deleted.
func (r *SQLiteRepository) DeleteAttendanceBefore(cutoffDate string) (int64, error) {
	result := r.db.Unscoped().Where("date < ?", cutoffDate).Delete(&models.AttendanceRecord{})
	return result.RowsAffected, result.Error
}

// Detection events

// SaveDetectionEvent persists one pipeline event.
func (r *SQLiteRepository) SaveDetectionEvent(event *models.DetectionEvent) error {
	return r.db.Create(event).Error
}

// ListDetectionEvents returns events with pagination, newest first.
func (r *SQLiteRepository) ListDetectionEvents(limit, offset int) ([]models.DetectionEvent, int64, error) {
	var events []models.DetectionEvent
	var total int64

	r.db.Model(&models.DetectionEvent{}).Count(&total)
	result := r.db.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&events)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return events, total, nil
}

// DeleteEventsBefore removes events older than the cutoff and reports how
// many were deleted.
func (r *SQLiteRepository) DeleteEventsBefore(cutoff time.Time) (int64, error) {
	result := r.db.Unscoped().Where("timestamp < ?", cutoff).Delete(&models.DetectionEvent{})
	return result.RowsAffected, result.Error
}

// API keys

// CreateAPIKey inserts a new key record.
func (r *SQLiteRepository) CreateAPIKey(key *models.APIKey) error {
	return r.db.Create(key).Error
}

// FindActiveKeyByHash returns the active key with the given hash, or nil.
func (r *SQLiteRepository) FindActiveKeyByHash(hash string) (*models.APIKey, error) {
	var key models.APIKey
	result := r.db.Where("key_hash = ? AND active = ?", hash, true).First(&key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &key, nil
}

// TouchAPIKey records the last use of a key.
func (r *SQLiteRepository) TouchAPIKey(id uint, at time.Time) error {
	return r.db.Model(&models.APIKey{}).Where("id = ?", id).Update("last_used_at", at).Error
}

// Statistics

// GetStatistics summarizes the stored data.
func (r *SQLiteRepository) GetStatistics(today string) (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.Person{}).Count(&stats.TotalPersons).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.FaceTemplate{}).Count(&stats.TotalTemplates).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.DetectionEvent{}).Count(&stats.TotalEvents).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.AttendanceRecord{}).Where("date = ?", today).
		Count(&stats.TodayAttendance).Error; err != nil {
		return stats, err
	}

	var latest models.DetectionEvent
	if err := r.db.Order("timestamp DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestEvent = latest.Timestamp
	}

	return stats, nil
}
