package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/database"
)

const (
	// publishedRetention is how long delivered outbox rows stay queryable.
	publishedRetention = 7 * 24 * time.Hour

	// auditRetention is how long audit rows are kept.
	auditRetention = 90 * 24 * time.Hour
)

// MaintenanceService manages scheduled background jobs
type MaintenanceService struct {
	cron       *cron.Cron
	outbox     *database.OutboxRepository
	audits     *database.BookingAuditRepository
	maxRetries int
	logger     *logrus.Logger
}

// NewMaintenanceService creates a new MaintenanceService
func NewMaintenanceService(
	outbox *database.OutboxRepository,
	audits *database.BookingAuditRepository,
	maxRetries int,
	logger *logrus.Logger,
) *MaintenanceService {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &MaintenanceService{
		cron:       c,
		outbox:     outbox,
		audits:     audits,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Start starts all cron jobs
func (s *MaintenanceService) Start() error {
	s.logger.Info("Starting maintenance service...")

	// Job 1: Purge delivered outbox rows daily at 2 AM
	// Cron format: second minute hour day month weekday
	_, err := s.cron.AddFunc("0 0 2 * * *", s.purgeOutboxJob)
	if err != nil {
		return fmt.Errorf("failed to schedule outbox purge job: %w", err)
	}
	s.logger.Info("Scheduled: Purge published outbox (Daily at 2:00 AM)")

	// Job 2: Purge old audit rows weekly on Sunday at 3 AM
	_, err = s.cron.AddFunc("0 0 3 * * 0", s.purgeAuditsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule audit purge job: %w", err)
	}
	s.logger.Info("Scheduled: Purge old audits (Sundays at 3:00 AM)")

	// Job 3: Report dead-letter backlog hourly
	_, err = s.cron.AddFunc("0 0 * * * *", s.reportDeadLettersJob)
	if err != nil {
		return fmt.Errorf("failed to schedule dead-letter report job: %w", err)
	}
	s.logger.Info("Scheduled: Dead-letter backlog report (Hourly)")

	s.cron.Start()
	s.logger.Info("Maintenance service started")

	return nil
}

// Stop stops all cron jobs
func (s *MaintenanceService) Stop() {
	s.logger.Info("Stopping maintenance service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Maintenance service stopped")
}

// purgeOutboxJob removes delivered outbox rows past the retention window
func (s *MaintenanceService) purgeOutboxJob() {
	startTime := time.Now()

	removed, err := s.outbox.PurgePublished(context.Background(), time.Now().Add(-publishedRetention))
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge published outbox rows")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"removed":  removed,
		"duration": time.Since(startTime),
	}).Info("Purged published outbox rows")
}

// purgeAuditsJob removes audit rows past the retention window
func (s *MaintenanceService) purgeAuditsJob() {
	startTime := time.Now()

	removed, err := s.audits.PurgeOlderThan(context.Background(), time.Now().Add(-auditRetention))
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge old audit rows")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"removed":  removed,
		"duration": time.Since(startTime),
	}).Info("Purged old audit rows")
}

// reportDeadLettersJob logs the dead-letter backlog so operators notice
// stuck deliveries without a metrics stack
func (s *MaintenanceService) reportDeadLettersJob() {
	count, err := s.outbox.CountDeadLetters(context.Background(), s.maxRetries)
	if err != nil {
		s.logger.WithError(err).Error("Failed to count dead letters")
		return
	}
	if count == 0 {
		return
	}
	s.logger.WithField("dead_letters", count).Warn("Outbox has dead-lettered messages awaiting operator action")
}

// JobStatus returns the status of scheduled jobs
func (s *MaintenanceService) JobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
