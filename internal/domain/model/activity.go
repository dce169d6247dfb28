package model

import "time"

// 操作の種類
type ActivityType string

const (
	ActivityOrderPlaced       ActivityType = "order_placed"
	ActivityOrderStatusChange ActivityType = "order_status_change"
	ActivityOrderCancelled    ActivityType = "order_cancelled"
	ActivityReviewAdded       ActivityType = "review_added"
	ActivityProductCreated    ActivityType = "product_created"
	ActivityProductUpdated    ActivityType = "product_updated"
	ActivityProductDeleted    ActivityType = "product_deleted"
	ActivitySystemAction      ActivityType = "system_action"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityOrderPlaced, ActivityOrderStatusChange, ActivityOrderCancelled,
		ActivityReviewAdded, ActivityProductCreated, ActivityProductUpdated,
		ActivityProductDeleted, ActivitySystemAction:
		return true
	}
	return false
}

// 何に対する操作か
type ActivityTargetType string

const (
	ActivityTargetOrder   ActivityTargetType = "Order"
	ActivityTargetProduct ActivityTargetType = "Product"
	ActivityTargetUser    ActivityTargetType = "User"
	ActivityTargetSystem  ActivityTargetType = "System"
)

// 活動ログ（追記専用）。「誰が」「どの対象に」「何をしたか」を残す。
type Activity struct {
	ID       int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64        `gorm:"not null;index" json:"user_id"`
	Role     Role         `gorm:"type:varchar(20);not null" json:"role"`
	Type     ActivityType `gorm:"type:varchar(50);not null;index" json:"type"`

	TargetType ActivityTargetType `gorm:"type:varchar(50);not null" json:"target_type"`
	TargetID   int64              `gorm:"index" json:"target_id"`

	Description string `gorm:"type:text;not null" json:"description"`

	// 追加メタデータ。JSON文字列で保存する。
	DetailsJSON string `gorm:"type:text" json:"details_json"`

	// セラー向けフィードへの割当。自分が起こしていない操作
	// （自分の商品がキャンセルされた等）もここ経由で見える。
	SellerTags []ActivitySellerTag `gorm:"foreignKey:ActivityID" json:"-"`

	CreatedAt time.Time `gorm:"not null;index;autoCreateTime" json:"created_at"`
}

type ActivitySellerTag struct {
	ID         int64 `gorm:"primaryKey;autoIncrement" json:"-"`
	ActivityID int64 `gorm:"not null;index" json:"-"`
	SellerID   int64 `gorm:"not null;index" json:"-"`
}
