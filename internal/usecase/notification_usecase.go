package usecase

import (
	"context"
	"errors"
	"net/http"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type NotificationUsecase struct {
	notifications repo.NotificationRepository
}

func NewNotificationUsecase(notifications repo.NotificationRepository) *NotificationUsecase {
	return &NotificationUsecase{notifications: notifications}
}

type NotificationListOutput struct {
	Notifications []model.Notification `json:"notifications"`
	Page          int                  `json:"page"`
	Unread        int64                `json:"unread"`
}

func (u *NotificationUsecase) ListMy(ctx context.Context, actor Actor, page, limit int) (NotificationListOutput, error) {
	if actor.ID <= 0 {
		return NotificationListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	list, _, err := u.notifications.ListByUser(ctx, actor.ID, page, limit)
	if err != nil {
		return NotificationListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	unread, err := u.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return NotificationListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return NotificationListOutput{Notifications: list, Page: page, Unread: unread}, nil
}

func (u *NotificationUsecase) MarkRead(ctx context.Context, actor Actor, id int64) error {
	if actor.ID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if id <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	// 自分宛て以外は存在しないものとして扱う
	err := u.notifications.MarkRead(ctx, actor.ID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "notification not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *NotificationUsecase) MarkAllRead(ctx context.Context, actor Actor) error {
	if actor.ID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := u.notifications.MarkAllRead(ctx, actor.ID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *NotificationUsecase) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	if actor.ID <= 0 {
		return 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	n, err := u.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return n, nil
}
