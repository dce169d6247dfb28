package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, n model.Notification) (model.Notification, error)

	// 同じ宛先×種類×参照×ステータスの通知が既にあるか（重複抑止）
	ExistsDuplicate(ctx context.Context, userID int64, kind model.NotificationKind, referenceID string, status string) (bool, error)

	ListByUser(ctx context.Context, userID int64, page int, limit int) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, userID int64, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	CountUnread(ctx context.Context, userID int64) (int64, error)
}
