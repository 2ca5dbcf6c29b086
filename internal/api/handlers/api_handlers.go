package handlers

import (
	"net/http"
	"strconv"
	"time"

	"lookout/config"
	"lookout/internal/core/models"
	"lookout/internal/db/repository"
	"lookout/internal/detection"
	"lookout/internal/recognition"
	"lookout/internal/server/sse"
	"lookout/internal/tracking"
	"lookout/internal/util/timezone"
	"lookout/internal/video"

	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"
)

// SourceController reports the health of the video source and switches it at
// runtime.
type SourceController interface {
	Status() video.Status
	Change(url string) error
}

// TrackLister exposes the live tracks of the pipeline.
type TrackLister interface {
	Tracks() []tracking.Track
}

// FaceEngine is the part of the recognition engine the API needs for
// registering reference faces.
type FaceEngine interface {
	LocateBest(region gocv.Mat) (recognition.Candidate, bool)
	Embed(face gocv.Mat) ([]float32, bool)
}

// BatchDetector is the asynchronous detection path used for snapshot
// analysis.
type BatchDetector interface {
	Submit(frameID int64, frame gocv.Mat) bool
	Poll(timeout time.Duration) (detection.Result, bool)
}

// APIHandler serves the REST API.
type APIHandler struct {
	cfg      *config.Config
	repo     repository.Repository
	source   SourceController
	tracks   TrackLister
	faces    FaceEngine
	dispatch *resultDispatcher
	gallery  *recognition.Gallery
	sseHub   *sse.Hub
}

// NewAPIHandler wires the API handler with its collaborators.
func NewAPIHandler(cfg *config.Config, repo repository.Repository, source SourceController,
	tracks TrackLister, faces FaceEngine, detector BatchDetector,
	gallery *recognition.Gallery, sseHub *sse.Hub) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		repo:     repo,
		source:   source,
		tracks:   tracks,
		faces:    faces,
		dispatch: newResultDispatcher(detector),
		gallery:  gallery,
		sseHub:   sseHub,
	}
}

// RegisterRoutes registers all API routes. Mutating routes go through the
// auth middleware; read-only routes stay open.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	// System endpoints
	router.GET("/health", h.GetHealth)
	router.GET("/stats", h.GetStats)
	router.GET("/source/status", h.GetSourceStatus)
	router.POST("/source/validate", h.ValidateSource)
	router.GET("/tracks", h.ListTracks)

	// Event endpoints
	router.GET("/events", h.ListEvents)
	router.GET("/events/stream", h.StreamEvents)

	// Attendance endpoints
	router.GET("/attendance", h.ListAttendance)
	router.GET("/attendance/range", h.ListAttendanceRange)
	router.GET("/attendance/summary", h.GetAttendanceSummary)

	// Person endpoints (reads open, writes authenticated)
	router.GET("/persons", h.ListPersons)
	router.GET("/persons/:id", h.GetPerson)

	protected := router.Group("", auth)
	protected.POST("/persons", h.CreatePerson)
	protected.PUT("/persons/:id", h.UpdatePerson)
	protected.DELETE("/persons/:id", h.DeletePerson)
	protected.POST("/persons/:id/faces", h.RegisterFace)
	protected.POST("/source/change", h.ChangeSource)
	protected.POST("/analyze", h.AnalyzeSnapshot)
	protected.POST("/keys", h.CreateAPIKey)
}

// personInput is the request body for creating and updating persons.
type personInput struct {
	PersonID   string `json:"person_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Phone      string `json:"phone"`
	Status     string `json:"status"`
}

// ListPersons returns registered persons with pagination.
func (h *APIHandler) ListPersons(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	persons, total, err := h.repo.ListPersons(pageSize, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch persons"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"persons": persons,
		"pagination": gin.H{
			"page":     page,
			"pageSize": pageSize,
			"total":    total,
		},
	})
}

// GetPerson returns a single person by database ID.
func (h *APIHandler) GetPerson(c *gin.Context) {
	person, ok := h.personFromPath(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, person)
}

// CreatePerson registers a new person.
func (h *APIHandler) CreatePerson(c *gin.Context) {
	var input personInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.repo.GetPersonByPersonID(input.PersonID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check person"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "person_id already registered"})
		return
	}

	person := &models.Person{
		PersonID:   input.PersonID,
		Name:       input.Name,
		Email:      input.Email,
		Department: input.Department,
		Position:   input.Position,
		Phone:      input.Phone,
		Status:     input.Status,
	}
	if person.Status == "" {
		person.Status = "active"
	}
	if err := h.repo.CreatePerson(person); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create person"})
		return
	}

	c.JSON(http.StatusCreated, person)
}

// UpdatePerson modifies an existing person.
func (h *APIHandler) UpdatePerson(c *gin.Context) {
	person, ok := h.personFromPath(c)
	if !ok {
		return
	}

	var input personInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person.PersonID = input.PersonID
	person.Name = input.Name
	person.Email = input.Email
	person.Department = input.Department
	person.Position = input.Position
	person.Phone = input.Phone
	if input.Status != "" {
		person.Status = input.Status
	}
	if err := h.repo.SavePerson(person); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update person"})
		return
	}

	c.JSON(http.StatusOK, person)
}

// DeletePerson removes a person and their face templates.
func (h *APIHandler) DeletePerson(c *gin.Context) {
	person, ok := h.personFromPath(c)
	if !ok {
		return
	}
	if err := h.repo.DeletePerson(person.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete person"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "person deleted"})
}

// ListAttendance returns the attendance records for one date (default today).
func (h *APIHandler) ListAttendance(c *gin.Context) {
	date := c.DefaultQuery("date", timezone.Today())
	records, err := h.repo.ListAttendance(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch attendance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "records": records})
}

// ListAttendanceRange returns attendance records for an inclusive date range.
func (h *APIHandler) ListAttendanceRange(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return
	}
	records, err := h.repo.ListAttendanceRange(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch attendance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "records": records})
}

// GetAttendanceSummary returns the headcount for one date (default today).
func (h *APIHandler) GetAttendanceSummary(c *gin.Context) {
	date := c.DefaultQuery("date", timezone.Today())
	stats, err := h.repo.GetStatistics(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to collect statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":          date,
		"present":       stats.TodayAttendance,
		"total_persons": stats.TotalPersons,
	})
}

// ListEvents returns persisted detection events, newest first.
func (h *APIHandler) ListEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	events, total, err := h.repo.ListDetectionEvents(pageSize, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"pagination": gin.H{
			"page":     page,
			"pageSize": pageSize,
			"total":    total,
		},
	})
}

// personFromPath resolves the :id path parameter to a person, writing the
// error response itself when that fails.
func (h *APIHandler) personFromPath(c *gin.Context) (*models.Person, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return nil, false
	}
	person, err := h.repo.GetPersonByID(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch person"})
		return nil, false
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return nil, false
	}
	return person, true
}
