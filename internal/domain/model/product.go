package model

import (
	"time"

	"gorm.io/gorm"
)

// 商品。セラーはちょうど1人（SellerID）。
type Product struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerID      int64          `gorm:"not null;index" json:"seller_id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Description   string         `gorm:"type:text" json:"description"`
	Category      string         `gorm:"type:varchar(100);not null;index" json:"category"`
	Image         string         `gorm:"type:varchar(500)" json:"image"`
	Price         int64          `gorm:"not null" json:"price"`
	DiscountPrice *int64         `json:"discount_price"`
	Stock         int64          `gorm:"not null;default:0" json:"stock"`
	IsVisible     bool           `gorm:"not null;default:true" json:"is_visible"`
	Rating        float64        `gorm:"not null;default:0" json:"rating"`
	NumReviews    int64          `gorm:"not null;default:0" json:"num_reviews"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// EffectivePrice は値引きがあれば値引き後の単価。
func (p *Product) EffectivePrice() int64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 && *p.DiscountPrice < p.Price {
		return *p.DiscountPrice
	}
	return p.Price
}
