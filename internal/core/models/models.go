package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Person is a registered individual attendance is tracked for.
type Person struct {
	gorm.Model
	PersonID   string         `gorm:"uniqueIndex;not null" json:"person_id"` // external identifier, e.g. employee number
	Name       string         `gorm:"index;not null" json:"name"`
	Email      string         `json:"email"`
	Department string         `gorm:"index" json:"department"`
	Position   string         `json:"position"`
	Phone      string         `json:"phone"`
	Status     string         `gorm:"index;default:active" json:"status"`
	Metadata   datatypes.JSON `gorm:"type:json;null" json:"metadata,omitempty"`
	Templates  []FaceTemplate `gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE;" json:"-"`
}

// FaceTemplate is one reference embedding for a person. The embedding is
// stored as a JSON array of floats.
type FaceTemplate struct {
	gorm.Model
	PersonID  uint           `gorm:"index;not null" json:"person_id"`
	Embedding datatypes.JSON `gorm:"type:json;not null" json:"-"`
	Embedder  string         `gorm:"index" json:"embedder"` // backend the embedding came from
	Quality   float64        `json:"quality"`
	Person    Person         `gorm:"foreignKey:PersonID" json:"-"`
}

// AttendanceRecord holds one person-day of attendance. The first sighting of
// a day sets CheckIn; later sightings update CheckOut and the duration.
type AttendanceRecord struct {
	gorm.Model
	PersonID    uint       `gorm:"index;not null" json:"person_id"`
	Date        string     `gorm:"index;not null" json:"date"` // YYYY-MM-DD in the configured timezone
	CheckIn     time.Time  `json:"check_in"`
	CheckOut    *time.Time `json:"check_out,omitempty"`
	DurationMin float64    `json:"duration_min"`
	Confidence  float64    `json:"confidence"`
	Source      string     `gorm:"index" json:"source"`
	MarkedBy    string     `gorm:"default:system" json:"marked_by"`
	Person      Person     `gorm:"foreignKey:PersonID" json:"-"`
}

// DetectionEvent is the audit trail of recognition events emitted by the
// pipeline.
type DetectionEvent struct {
	gorm.Model
	EventID     string         `gorm:"uniqueIndex;not null" json:"event_id"`
	TrackID     int64          `gorm:"index" json:"track_id"`
	PersonID    *uint          `gorm:"index" json:"person_id,omitempty"`
	Name        string         `gorm:"index" json:"name"`
	Status      string         `json:"status"`
	Confidence  float64        `json:"confidence"`
	Source      string         `gorm:"index" json:"source"`
	BoundingBox datatypes.JSON `gorm:"type:json" json:"bounding_box"`
	Timestamp   time.Time      `gorm:"index" json:"timestamp"`
}

// APIKey authenticates mutating API calls. Only the SHA-256 hash of the key
// is stored.
type APIKey struct {
	gorm.Model
	Name        string         `gorm:"not null" json:"name"`
	KeyHash     string         `gorm:"uniqueIndex;not null" json:"-"`
	Permissions datatypes.JSON `gorm:"type:json" json:"permissions"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time     `json:"last_used_at,omitempty"`
	Active      bool           `gorm:"default:true" json:"active"`
}

// Statistics summarizes the stored data for the stats endpoint.
type Statistics struct {
	TotalPersons    int64     `json:"total_persons"`
	TotalTemplates  int64     `json:"total_templates"`
	TotalEvents     int64     `json:"total_events"`
	TodayAttendance int64     `json:"today_attendance"`
	LatestEvent     time.Time `json:"latest_event"`
}
