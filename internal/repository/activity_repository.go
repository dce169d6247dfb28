package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

// 活動ログの絞り込み条件。
// SellerIDを入れると「本人の操作 or セラータグ付き」に絞る。
type ActivityFilter struct {
	UserID     *int64
	SellerID   *int64
	Role       *model.Role
	Type       *model.ActivityType
	TargetType *model.ActivityTargetType
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// 追記専用の活動ログ。
type ActivityRepository interface {
	// sellerIDsは対象商品のセラー。フィード割当のタグとして保存する。
	Create(ctx context.Context, a model.Activity, sellerIDs []int64) error
	List(ctx context.Context, f ActivityFilter) ([]model.Activity, error)
}
