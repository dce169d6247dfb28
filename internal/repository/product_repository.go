package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// 一覧検索
type ProductListQuery struct {
	Page     int
	Limit    int
	Q        string
	Category string
	SellerID *int64
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

// 商品の永続化と所有関係の解決だけを約束。
type ProductRepository interface {
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	// セラーが持つ商品ID一覧（注文の明細スコープ解決に使う）
	ListIDsBySeller(ctx context.Context, sellerID int64) ([]int64, error)
	// 商品ID→セラーIDの対応表
	FindOwners(ctx context.Context, productIDs []int64) (map[int64]int64, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
	UpdateRating(ctx context.Context, productID int64, rating float64, numReviews int64) error
}

type ReviewRepository interface {
	Create(ctx context.Context, r model.Review) (model.Review, error)
	ListByProduct(ctx context.Context, productID int64, limit int) ([]model.Review, error)
	// 件数と平均評価
	AggregateByProduct(ctx context.Context, productID int64) (int64, float64, error)
	ExistsByUserAndProduct(ctx context.Context, userID int64, productID int64) (bool, error)
}
