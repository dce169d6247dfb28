package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// ユーザーの取得だけを約束。登録・認証は上流のサービスが持つ。
type UserRepository interface {
	FindByID(ctx context.Context, userID int64) (model.User, error)
	CountByRole(ctx context.Context, role model.Role) (int64, error)
}
