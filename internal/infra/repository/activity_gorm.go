package repository

import (
	"context"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type ActivityGormRepository struct {
	db *gorm.DB
}

func NewActivityGormRepository(db *gorm.DB) *ActivityGormRepository {
	return &ActivityGormRepository{db: db}
}

func (r *ActivityGormRepository) Create(ctx context.Context, a model.Activity, sellerIDs []int64) error {
	//タグごと1トランザクションで入れる
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		for _, sid := range sellerIDs {
			tag := model.ActivitySellerTag{ActivityID: a.ID, SellerID: sid}
			if err := tx.Create(&tag).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ActivityGormRepository) List(ctx context.Context, f repo.ActivityFilter) ([]model.Activity, error) {
	q := r.db.WithContext(ctx).Model(&model.Activity{})

	if f.SellerID != nil {
		//本人の操作 or 自分の商品が絡む操作
		q = q.Joins("LEFT JOIN activity_seller_tags ON activity_seller_tags.activity_id = activities.id").
			Where("activities.user_id = ? OR activity_seller_tags.seller_id = ?", *f.SellerID, *f.SellerID).
			Distinct()
	} else if f.UserID != nil {
		q = q.Where("activities.user_id = ?", *f.UserID)
	}

	if f.Role != nil {
		q = q.Where("activities.role = ?", *f.Role)
	}
	if f.Type != nil {
		q = q.Where("activities.type = ?", *f.Type)
	}
	if f.TargetType != nil {
		q = q.Where("activities.target_type = ?", *f.TargetType)
	}
	if f.From != nil {
		q = q.Where("activities.created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("activities.created_at <= ?", *f.To)
	}

	//新しい順
	q = q.Order("activities.id DESC")

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	q = q.Limit(limit).Offset(f.Offset)

	var activities []model.Activity
	if err := q.Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}
