package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 楽観ロックの競合。呼び出し側が読み直してリトライする。
var ErrVersionConflict = errors.New("version conflict")

// 注文一覧の絞り込み条件。
// ProductIDsを入れるとその商品を含む注文だけに絞る（セラー向け）。
type OrderListFilter struct {
	Page       int
	Limit      int
	Status     string
	BuyerID    *int64
	ProductIDs []int64
	ActiveOnly bool
	From       *time.Time
	To         *time.Time
}

type OrderRepository interface {
	// 明細込みで1件取得。明細は作成順（表示順）。
	FindByID(ctx context.Context, orderID int64) (model.Order, error)

	// 明細ごと作成してIDの入った注文を返す。
	Create(ctx context.Context, order model.Order) (model.Order, error)

	ListByBuyer(ctx context.Context, buyerID int64, page int, limit int) ([]model.Order, int64, error)
	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)

	// 集計用。ページングなしで明細込みで返す。
	ListForStats(ctx context.Context, f OrderListFilter) ([]model.Order, error)

	// 注文行（ロールアップ・配達/支払フラグ）と全明細ステータスを
	// versionのCASつきで一括保存する。競合時は ErrVersionConflict。
	SaveStatuses(ctx context.Context, order model.Order) error

	MarkPaid(ctx context.Context, orderID int64, at time.Time) error

	// 購入者がその商品のDELIVERED明細を持っているか（レビュー資格）。
	HasDeliveredItem(ctx context.Context, buyerID int64, productID int64) (bool, error)
}
