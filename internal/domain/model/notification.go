package model

import "time"

type NotificationKind string

const (
	NotificationOrder     NotificationKind = "ORDER"
	NotificationPromotion NotificationKind = "PROMOTION"
	NotificationSystem    NotificationKind = "SYSTEM"
)

// ユーザー向け通知の保存レコード。実際のプッシュ配送は
// キューの先のコンシューマが行う。
type Notification struct {
	ID     int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64            `gorm:"not null;index" json:"user_id"`
	Title  string           `gorm:"type:varchar(255);not null" json:"title"`
	Body   string           `gorm:"type:text;not null" json:"body"`
	Kind   NotificationKind `gorm:"type:varchar(20);not null" json:"kind"`

	// 対象の参照（注文IDなど）。重複抑止のキーにも使う。
	ReferenceID string `gorm:"type:varchar(100);index" json:"reference_id"`
	// 同じ注文×同じステータスの通知を二重に積まないためのラベル
	Status string `gorm:"type:varchar(50)" json:"status"`

	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"not null;index;autoCreateTime" json:"created_at"`
}
