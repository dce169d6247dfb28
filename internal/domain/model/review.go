package model

import "time"

// 商品レビュー。購入（配達完了）した人だけが書ける。
type Review struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64  `gorm:"not null;index" json:"product_id"`
	UserID    int64  `gorm:"not null;index" json:"user_id"`
	// どの注文明細に対するレビューか。古いレビューはnull。
	OrderItemID *int64 `json:"order_item_id"`
	// 表示用の投稿者名スナップショット
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text;not null" json:"comment"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
