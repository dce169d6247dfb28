package model

import "time"

type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "PLACED"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// CANCELLEDは直線の外側（どこからでも入れるが出られない）
const CancelledRank = 99

var statusRank = map[OrderStatus]int{
	OrderStatusPlaced:         0,
	OrderStatusProcessing:     1,
	OrderStatusShipped:        2,
	OrderStatusOutForDelivery: 3,
	OrderStatusDelivered:      4,
	OrderStatusCancelled:      CancelledRank,
}

// StatusRank はステータスの進行度を返す。未知の値は0扱い。
func StatusRank(s OrderStatus) int {
	r, ok := statusRank[s]
	if !ok {
		return 0
	}
	return r
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsForwardOrEqual は from→to が前進（同値含む）かどうか。
func IsForwardOrEqual(from, to OrderStatus) bool {
	return StatusRank(to) >= StatusRank(from)
}

// Terminal はそれ以上遷移できないステータスかどうか。
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// 注文時点の購入者スナップショット。作成後は書き換えない。
// ユーザーが退会（論理削除）しても注文履歴の表示はこちらを使う。
type BuyerSnapshot struct {
	Name  string `gorm:"column:buyer_name;type:varchar(255);not null" json:"name"`
	Email string `gorm:"column:buyer_email;type:varchar(255);not null" json:"email"`
	Phone string `gorm:"column:buyer_phone;type:varchar(50)" json:"phone"`
}

// 配送先スナップショット（住所マスタへの参照ではない）。
type ShippingAddress struct {
	Street  string `gorm:"column:ship_street;type:varchar(255);not null" json:"street"`
	City    string `gorm:"column:ship_city;type:varchar(100);not null" json:"city"`
	State   string `gorm:"column:ship_state;type:varchar(100);not null" json:"state"`
	ZipCode string `gorm:"column:ship_zip_code;type:varchar(20);not null" json:"zip_code"`
	Country string `gorm:"column:ship_country;type:varchar(100);not null" json:"country"`
}

type Order struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// 購入者が退会済みならnull。表示はBuyerSnapshotが正。
	BuyerID       *int64        `gorm:"index" json:"buyer_id"`
	BuyerSnapshot BuyerSnapshot `gorm:"embedded" json:"buyer_snapshot"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	ShippingAddress ShippingAddress `gorm:"embedded" json:"shipping_address"`
	PaymentMethod   string          `gorm:"type:varchar(50);not null;default:'COD'" json:"payment_method"`

	ItemsPrice         int64 `gorm:"not null" json:"items_price"`
	TaxPrice           int64 `gorm:"not null" json:"tax_price"`
	ShippingPrice      int64 `gorm:"not null" json:"shipping_price"`
	TotalPrice         int64 `gorm:"not null" json:"total_price"`
	OriginalTotalPrice int64 `gorm:"not null" json:"original_total_price"`
	Savings            int64 `gorm:"not null" json:"savings"`

	// 明細ステータスから導出される表示用のロールアップ。
	Status OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	IsPaid      bool       `gorm:"not null;default:false" json:"is_paid"`
	PaidAt      *time.Time `json:"paid_at"`
	IsDelivered bool       `gorm:"not null;default:false" json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at"`

	// 楽観ロック用。更新のたびに+1。
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// EffectiveItemStatus は明細の実効ステータスを返す。
// 明細ステータス導入前の古い注文は注文側のステータスを引き継ぐ。
func (o *Order) EffectiveItemStatus(it OrderItem) OrderStatus {
	if it.Status == "" {
		return o.Status
	}
	return it.Status
}

// ActiveItems はキャンセルされていない明細を返す。
func (o *Order) ActiveItems() []OrderItem {
	active := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		if o.EffectiveItemStatus(it) != OrderStatusCancelled {
			active = append(active, it)
		}
	}
	return active
}

// AllActiveDelivered はキャンセル以外の明細が全部DELIVEREDかどうか。
// アクティブな明細が1つもないときはfalse。
func (o *Order) AllActiveDelivered() bool {
	active := o.ActiveItems()
	if len(active) == 0 {
		return false
	}
	for _, it := range active {
		if o.EffectiveItemStatus(it) != OrderStatusDelivered {
			return false
		}
	}
	return true
}
