package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/regscout/regscout-backend/internal/data"
	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/platform/objectstore"
)

const feedbackLogPrefix = "feedback-logs"

// Contact is optional submitter contact info.
type Contact struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

type FeedbackService interface {
	// Submit stores the feedback row and uploads the attached frontend
	// log batch as a JSON blob. Returns the feedback ID.
	Submit(ctx context.Context, fingerprint, feedbackType, message string, logs []map[string]any, userAgent string, contact *Contact) (uuid.UUID, error)
	ListAll(ctx context.Context) ([]data.Feedback, error)
}

type feedbackService struct {
	log   *logger.Logger
	gdb   *gorm.DB
	blobs objectstore.Store
}

func NewFeedbackService(log *logger.Logger, gdb *gorm.DB, blobs objectstore.Store) FeedbackService {
	return &feedbackService{
		log:   log.With("service", "FeedbackService"),
		gdb:   gdb,
		blobs: blobs,
	}
}

func (s *feedbackService) Submit(ctx context.Context, fingerprint, feedbackType, message string, logs []map[string]any, userAgent string, contact *Contact) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()

	logsPath, err := s.uploadLogs(ctx, id, now, logs, userAgent)
	if err != nil {
		// Feedback is still worth keeping when the blob write fails.
		s.log.Warn("Failed to upload feedback logs", "feedback_id", id, "error", err)
		logsPath = ""
	}

	message = strutil.Truncate(message, 32000)
	userAgent = strutil.Truncate(userAgent, 1000)

	row := &data.Feedback{
		ID:             id,
		Fingerprint:    fingerprint,
		Type:           feedbackType,
		Message:        message,
		UserAgent:      userAgent,
		LogsObjectPath: logsPath,
		CreatedAt:      now,
	}
	if contact != nil {
		row.ContactName = contact.Name
		row.ContactEmail = contact.Email
		row.ContactPhone = contact.Phone
		row.ContactCompany = contact.Company
	}

	if err := s.gdb.WithContext(ctx).Create(row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("store feedback: %w", err)
	}

	s.log.Info("Feedback submitted", "feedback_id", id, "type", feedbackType, "fingerprint", fingerprint)
	return id, nil
}

func (s *feedbackService) uploadLogs(ctx context.Context, id uuid.UUID, now time.Time, logs []map[string]any, userAgent string) (string, error) {
	if s.blobs == nil {
		return "", nil
	}
	path := fmt.Sprintf("%s/%s/%s.json", feedbackLogPrefix, now.Format("2006-01-02"), id)

	payload, err := json.MarshalIndent(map[string]any{
		"feedbackId": id.String(),
		"uploadedAt": now.Format(time.RFC3339),
		"userAgent":  userAgent,
		"logCount":   len(logs),
		"logs":       logs,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal feedback logs: %w", err)
	}

	if err := s.blobs.Put(ctx, path, bytes.NewReader(payload), "application/json"); err != nil {
		return "", fmt.Errorf("upload feedback logs: %w", err)
	}
	s.log.Info("Uploaded feedback logs", "path", path, "entries", len(logs))
	return path, nil
}

func (s *feedbackService) ListAll(ctx context.Context) ([]data.Feedback, error) {
	var rows []data.Feedback
	if err := s.gdb.WithContext(ctx).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return rows, nil
}
