package model

import "time"

// 注文明細。販売側の履行単位はこちら（複数セラー注文では
// 各セラーが自分の明細だけを進める）。
type OrderItem struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64 `gorm:"not null;index" json:"order_id"`
	ProductID int64 `gorm:"not null;index" json:"product_id"`

	// 購入時点のスナップショット。商品マスタから再導出しない。
	Name              string `gorm:"type:varchar(255);not null" json:"name"`
	Image             string `gorm:"type:varchar(500)" json:"image"`
	Size              string `gorm:"type:varchar(50);not null" json:"size"`
	Qty               int64  `gorm:"not null" json:"qty"`
	UnitPrice         int64  `gorm:"not null" json:"unit_price"`
	OriginalUnitPrice int64  `gorm:"not null" json:"original_unit_price"`

	// 空文字は明細ステータス導入前のレガシーデータ。
	// 読み取り時に注文ステータスでバックフィルされる。
	Status OrderStatus `gorm:"type:varchar(20);index" json:"status"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
