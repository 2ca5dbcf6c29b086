package cleanup

import (
	"time"

	"lookout/config"
	"lookout/internal/db/repository"
	"lookout/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Service periodically deletes detection events and, with a separate longer
// retention, attendance records that have aged out.
type Service struct {
	repo          repository.Repository
	cfg           config.CleanupConfig
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates the cleanup service, or nil when cleanup is disabled.
func NewService(repo repository.Repository, cfg config.CleanupConfig, checkInterval time.Duration) *Service {
	if cfg.RetentionDays <= 0 && cfg.AttendanceRetentionDays <= 0 {
		log.Info("Automatic cleanup disabled (all retention periods <= 0).")
		return nil
	}
	if repo == nil {
		log.Error("Cannot initialize cleanup service: repository is nil")
		return nil
	}
	log.Infof("Initializing cleanup service: EventRetentionDays=%d, AttendanceRetentionDays=%d, CheckInterval=%s",
		cfg.RetentionDays, cfg.AttendanceRetentionDays, checkInterval)
	return &Service{
		repo:          repo,
		cfg:           cfg,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the
// cleanup cycle. Safe to call on a nil service.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		log.Info("Running initial cleanup check on startup...")
		s.RunCleanupCycle()
	}()

	ticker := time.NewTicker(s.checkInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Info("Running scheduled cleanup cycle...")
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
		// already closed
	default:
		close(s.stopChan)
	}
}

// RunCleanupCycle deletes data older than the configured retention periods.
func (s *Service) RunCleanupCycle() {
	if s == nil {
		return
	}

	if s.cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
		deleted, err := s.repo.DeleteEventsBefore(cutoff)
		if err != nil {
			log.Errorf("Cleanup: failed to delete old detection events: %v", err)
		} else if deleted > 0 {
			log.Infof("Cleanup: deleted %d detection event(s) older than %s", deleted, cutoff.Format(time.RFC3339))
		} else {
			log.Debug("Cleanup: no old detection events to delete.")
		}
	}

	if s.cfg.AttendanceRetentionDays > 0 {
		cutoffDate := timezone.DateOf(time.Now().AddDate(0, 0, -s.cfg.AttendanceRetentionDays))
		deleted, err := s.repo.DeleteAttendanceBefore(cutoffDate)
		if err != nil {
			log.Errorf("Cleanup: failed to delete old attendance records: %v", err)
		} else if deleted > 0 {
			log.Infof("Cleanup: deleted %d attendance record(s) dated before %s", deleted, cutoffDate)
		}
	}
}
