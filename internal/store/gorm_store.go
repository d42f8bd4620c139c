package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/notifyd/internal/models"
	apperrors "github.com/charlesng35/notifyd/pkg/errors"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

// GormStore implements Store and UnreadIndex on top of a gorm database handle.
// Record writes and counter mutations share one transaction so the unread
// index can never be observed ahead of the records it summarises.
type GormStore struct {
	db *gorm.DB
}

// NewStore constructs a GormStore.
func NewStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	return &GormStore{db: db}, nil
}

// Save persists a notification and increments the owner's unread counter.
func (s *GormStore) Save(ctx context.Context, notification *models.Notification) (*models.Notification, error) {
	if notification == nil {
		return nil, errors.New("notification store: nil notification")
	}
	userID := strings.TrimSpace(notification.UserID)
	if userID == "" {
		return nil, errors.New("notification store: user id is required")
	}
	notification.UserID = userID
	notification.Read = false
	notification.ReadAt = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(notification).Error; err != nil {
			return err
		}
		return incrementCounter(tx, userID)
	})
	if err != nil {
		return nil, storageFailure("save notification", err)
	}

	persisted := *notification
	return &persisted, nil
}

// FindByUser lists notifications newest first with a stable id tie-break.
func (s *GormStore) FindByUser(ctx context.Context, input ListInput) ([]models.Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification store: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []models.Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, storageFailure("list notifications", err)
	}

	return rows, nil
}

// FindByID loads a single notification.
func (s *GormStore) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	var row models.Notification
	if err := s.db.WithContext(ctx).First(&row, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, storageFailure("load notification", err)
	}
	return &row, nil
}

// SetRead marks a notification read, decrementing the unread counter only on
// the false→true transition so concurrent calls cannot double-decrement.
func (s *GormStore) SetRead(ctx context.Context, id string) (*models.Notification, error) {
	id = strings.TrimSpace(id)

	var updated models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Notification
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Notification{}).
			Where("id = ? AND read = ?", id, false).
			Updates(map[string]any{"read": true, "read_at": now})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected > 0 {
			if err := decrementCounter(tx, row.UserID); err != nil {
				return err
			}
			row.Read = true
			row.ReadAt = &now
		}

		updated = row
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, storageFailure("mark read", err)
	}

	return &updated, nil
}

// MarkAllRead flips every unread record for the user and zeroes the counter.
func (s *GormStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("notification store: user id is required")
	}

	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Notification{}).
			Where("user_id = ? AND read = ?", userID, false).
			Updates(map[string]any{"read": true, "read_at": now})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected

		return setCounter(tx, userID, 0)
	})
	if err != nil {
		return 0, storageFailure("mark all read", err)
	}

	return affected, nil
}

// Count returns the cached unread count, or a live scan when no counter row
// exists for the user yet.
func (s *GormStore) Count(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("notification store: user id is required")
	}

	var counter models.UnreadCounter
	err := s.db.WithContext(ctx).First(&counter, "user_id = ?", userID).Error
	switch {
	case err == nil:
		return counter.Count, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.liveCount(ctx, userID)
	default:
		return 0, storageFailure("read unread counter", err)
	}
}

// Recompute rebuilds the counter from read=false rows inside one transaction.
func (s *GormStore) Recompute(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("notification store: user id is required")
	}

	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Notification{}).
			Where("user_id = ? AND read = ?", userID, false).
			Count(&count).Error; err != nil {
			return err
		}
		return setCounter(tx, userID, count)
	})
	if err != nil {
		return 0, storageFailure("recompute unread counter", err)
	}

	return count, nil
}

// CounterUserIDs lists every user with a counter row, for reconcile sweeps.
func (s *GormStore) CounterUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	if err := s.db.WithContext(ctx).
		Model(&models.UnreadCounter{}).
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, storageFailure("list counter users", err)
	}
	return userIDs, nil
}

func (s *GormStore) liveCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, storageFailure("count unread notifications", err)
	}
	return count, nil
}

func incrementCounter(tx *gorm.DB, userID string) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&models.UnreadCounter{UserID: userID, Count: 1}).Error
}

func decrementCounter(tx *gorm.DB, userID string) error {
	return tx.Model(&models.UnreadCounter{}).
		Where("user_id = ? AND count > 0", userID).
		Updates(map[string]any{"count": gorm.Expr("count - 1"), "updated_at": time.Now().UTC()}).Error
}

func setCounter(tx *gorm.DB, userID string, count int64) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      count,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&models.UnreadCounter{UserID: userID, Count: count}).Error
}

func storageFailure(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.ErrStorageUnavailable.WithInternal(fmt.Errorf("notification store: %s: %w", op, err))
}
