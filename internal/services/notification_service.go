package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/charlesng35/notifyd/internal/dispatcher"
	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/store"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/logger"
	"github.com/charlesng35/notifyd/pkg/metrics"
	"github.com/charlesng35/notifyd/pkg/validator"
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID   string         `json:"user_id" validate:"required"`
	Message  string         `json:"message" validate:"required"`
	Severity string         `json:"severity" validate:"omitempty,oneof=info warning error"`
	Metadata map[string]any `json:"metadata"`
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID string
	Limit  int
	Offset int
}

// NotificationService orchestrates create → persist → index update → dispatch
// and exposes the read/query/mark-read operations. The durable write always
// precedes the realtime push, and a push failure never reaches callers.
type NotificationService struct {
	store      store.Store
	unread     store.UnreadIndex
	dispatcher *dispatcher.Dispatcher
	log        *zap.Logger
}

// NewNotificationService constructs a NotificationService. The dispatcher may
// be nil, in which case creates are persisted without a realtime push.
func NewNotificationService(s store.Store, unread store.UnreadIndex, d *dispatcher.Dispatcher) (*NotificationService, error) {
	if s == nil {
		return nil, errors.New("notification service: store is required")
	}
	if unread == nil {
		return nil, errors.New("notification service: unread index is required")
	}
	return &NotificationService{
		store:      s,
		unread:     unread,
		dispatcher: d,
		log:        logger.WithModule("notifications"),
	}, nil
}

// Create validates, persists and dispatches a notification. The returned
// record is the persisted copy regardless of dispatch outcome.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.Message = strings.TrimSpace(input.Message)
	input.Severity = strings.TrimSpace(input.Severity)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	notification := models.Notification{
		UserID:   input.UserID,
		Message:  input.Message,
		Severity: defaultIfEmpty(input.Severity, "info"),
	}

	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("metadata not serialisable: %v", err))
		}
		notification.Metadata = datatypes.JSON(data)
	}

	persisted, err := s.store.Save(ctx, &notification)
	if err != nil {
		return nil, err
	}
	metrics.NotificationsCreated.Inc()

	if s.dispatcher != nil {
		s.dispatcher.Publish(*persisted)
		s.log.Debug("notification dispatched",
			zap.String("id", persisted.ID),
			zap.String("user_id", persisted.UserID),
		)
	}

	dto := mapNotification(*persisted)
	return &dto, nil
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	rows, err := s.store.FindByUser(ctx, store.ListInput{
		UserID: userID,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, err
	}

	return mapNotificationRows(rows), nil
}

// UnreadCount reports the number of unread notifications for the user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.NewBadRequest("user id is required")
	}
	return s.unread.Count(ctx, userID)
}

// MarkRead sets the read flag on a notification. Marking an already-read
// notification again succeeds without side effects.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) (*NotificationDTO, error) {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return nil, apperrors.NewBadRequest("notification id is required")
	}

	updated, err := s.store.SetRead(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	dto := mapNotification(*updated)
	return &dto, nil
}

// MarkAllRead marks every unread notification for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.NewBadRequest("user id is required")
	}
	return s.store.MarkAllRead(ctx, userID)
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Message:   row.Message,
		Severity:  defaultIfEmpty(row.Severity, "info"),
		Metadata:  decodeJSON(row.Metadata),
		Read:      row.Read,
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
