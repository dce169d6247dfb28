package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

type OrderUsecase struct {
	tx       repo.TransactionManager
	activity repo.ActivityRepository
	notifier Notifier
	log      *zap.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, activity repo.ActivityRepository, notifier Notifier, log *zap.Logger) *OrderUsecase {
	return &OrderUsecase{tx: tx, activity: activity, notifier: notifier, log: log}
}

type OrderItemOutput struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Name              string `json:"name"`
	Image             string `json:"image"`
	Size              string `json:"size"`
	Qty               int64  `json:"qty"`
	UnitPrice         int64  `json:"unit_price"`
	OriginalUnitPrice int64  `json:"original_unit_price"`
	Status            string `json:"status"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	BuyerID         *int64                `json:"buyer_id"`
	BuyerSnapshot   model.BuyerSnapshot   `json:"buyer_snapshot"`
	Items           []OrderItemOutput     `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`

	ItemsPrice         int64 `json:"items_price"`
	TaxPrice           int64 `json:"tax_price"`
	ShippingPrice      int64 `json:"shipping_price"`
	TotalPrice         int64 `json:"total_price"`
	OriginalTotalPrice int64 `json:"original_total_price"`
	Savings            int64 `json:"savings"`

	Status      string     `json:"status"`
	IsPaid      bool       `json:"is_paid"`
	PaidAt      *time.Time `json:"paid_at"`
	IsDelivered bool       `json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at"`

	// セラー向けビューのときだけ詰める
	SellerTotal     *int64 `json:"seller_total,omitempty"`
	SellerItemCount *int   `json:"seller_item_count,omitempty"`
}

func toOrderOutput(o model.Order) OrderOutput {
	items := make([]OrderItemOutput, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemOutput{
			ID:                it.ID,
			ProductID:         it.ProductID,
			Name:              it.Name,
			Image:             it.Image,
			Size:              it.Size,
			Qty:               it.Qty,
			UnitPrice:         it.UnitPrice,
			OriginalUnitPrice: it.OriginalUnitPrice,
			//レガシー明細は表示時に実効ステータスへ読み替える
			Status: string(o.EffectiveItemStatus(it)),
		})
	}

	return OrderOutput{
		ID:                 o.ID,
		BuyerID:            o.BuyerID,
		BuyerSnapshot:      o.BuyerSnapshot,
		Items:              items,
		ShippingAddress:    o.ShippingAddress,
		PaymentMethod:      o.PaymentMethod,
		ItemsPrice:         o.ItemsPrice,
		TaxPrice:           o.TaxPrice,
		ShippingPrice:      o.ShippingPrice,
		TotalPrice:         o.TotalPrice,
		OriginalTotalPrice: o.OriginalTotalPrice,
		Savings:            o.Savings,
		Status:             string(o.Status),
		IsPaid:             o.IsPaid,
		PaidAt:             o.PaidAt,
		IsDelivered:        o.IsDelivered,
		DeliveredAt:        o.DeliveredAt,
		CreatedAt:          o.CreatedAt,
	}
}

// toSellerOrderOutput は明細をそのセラーの商品だけに絞った注文ビュー。
func toSellerOrderOutput(o model.Order, owned map[int64]bool) OrderOutput {
	out := toOrderOutput(o)

	filtered := make([]OrderItemOutput, 0, len(out.Items))
	var total int64
	for _, it := range out.Items {
		if !owned[it.ProductID] {
			continue
		}
		filtered = append(filtered, it)
		total += it.UnitPrice * it.Qty
	}

	count := len(filtered)
	out.Items = filtered
	out.SellerTotal = &total
	out.SellerItemCount = &count
	return out
}

type PlaceOrderItemInput struct {
	ProductID int64
	Qty       int64
	Size      string
}

type PlaceOrderInput struct {
	Items           []PlaceOrderItemInput
	ShippingAddress model.ShippingAddress
	PaymentMethod   string
	TaxPrice        int64
	ShippingPrice   int64
}

// PlaceOrder は注文を全明細PLACEDで一括作成する。
// 明細のスナップショット（名前・画像・単価）はこの時点の商品から固める。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, actor Actor, in PlaceOrderInput) (OrderOutput, error) {
	if actor.ID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "no order items")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Qty <= 0 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order item")
		}
	}
	if in.TaxPrice < 0 || in.ShippingPrice < 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}

	addr := in.ShippingAddress
	if strings.TrimSpace(addr.Street) == "" || strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.State) == "" || strings.TrimSpace(addr.ZipCode) == "" ||
		strings.TrimSpace(addr.Country) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping address")
	}

	paymentMethod := strings.TrimSpace(in.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = "COD"
	}

	var out OrderOutput
	var created model.Order
	var sellerIDs []int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		buyer, err := r.Users().FindByID(ctx, actor.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "user not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		var itemsPrice, originalItemsPrice int64
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		productIDs := make([]int64, 0, len(in.Items))

		for _, it := range in.Items {
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, "invalid product")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsVisible {
				return NewHTTPError(http.StatusBadRequest, "invalid product")
			}

			unit := p.EffectivePrice()
			orderItems = append(orderItems, model.OrderItem{
				ProductID:         p.ID,
				Name:              p.Name,
				Image:             p.Image,
				Size:              it.Size,
				Qty:               it.Qty,
				UnitPrice:         unit,
				OriginalUnitPrice: p.Price,
				Status:            model.OrderStatusPlaced,
			})

			itemsPrice += unit * it.Qty
			originalItemsPrice += p.Price * it.Qty
			productIDs = append(productIDs, p.ID)
		}

		buyerID := buyer.ID
		order := model.Order{
			BuyerID: &buyerID,
			//注文時点のスナップショット。以後ユーザーが変わっても追従しない。
			BuyerSnapshot: model.BuyerSnapshot{
				Name:  buyer.Name,
				Email: buyer.Email,
				Phone: buyer.Phone,
			},
			Items:              orderItems,
			ShippingAddress:    addr,
			PaymentMethod:      paymentMethod,
			ItemsPrice:         itemsPrice,
			TaxPrice:           in.TaxPrice,
			ShippingPrice:      in.ShippingPrice,
			TotalPrice:         itemsPrice + in.TaxPrice + in.ShippingPrice,
			OriginalTotalPrice: originalItemsPrice + in.TaxPrice + in.ShippingPrice,
			Savings:            originalItemsPrice - itemsPrice,
			Status:             model.OrderStatusPlaced,
		}

		created, err = r.Orders().Create(ctx, order)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		owners, err := r.Products().FindOwners(ctx, productIDs)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		seen := make(map[int64]bool, len(owners))
		for _, sid := range owners {
			if !seen[sid] {
				seen[sid] = true
				sellerIDs = append(sellerIDs, sid)
			}
		}

		out = toOrderOutput(created)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.emitPlaced(ctx, actor, created, sellerIDs)
	return out, nil
}

func (u *OrderUsecase) emitPlaced(ctx context.Context, actor Actor, o model.Order, sellerIDs []int64) {
	names := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		names = append(names, it.Name)
	}
	productNames := strings.Join(names, ", ")

	details, _ := json.Marshal(map[string]interface{}{
		"order_id":      o.ID,
		"product_names": productNames,
		"amount":        o.TotalPrice,
		"seller_ids":    sellerIDs,
	})

	act := model.Activity{
		UserID:      actor.ID,
		Role:        actor.Role,
		Type:        model.ActivityOrderPlaced,
		TargetType:  model.ActivityTargetOrder,
		TargetID:    o.ID,
		Description: fmt.Sprintf("Placed a new order #%d for %s", o.ID, productNames),
		DetailsJSON: string(details),
	}
	if err := u.activity.Create(ctx, act, sellerIDs); err != nil {
		u.log.Warn("activity append failed",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}

	n := model.Notification{
		UserID:      actor.ID,
		Title:       "Order placed",
		Body:        fmt.Sprintf("Your order #%d has been placed", o.ID),
		Kind:        model.NotificationOrder,
		ReferenceID: strconv.FormatInt(o.ID, 10),
		Status:      string(model.OrderStatusPlaced),
	}
	if err := u.notifier.Notify(ctx, n); err != nil {
		u.log.Warn("notification dispatch failed",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

// GetOrder は管理者・セラー・購入者本人だけが見られる。
func (u *OrderUsecase) GetOrder(ctx context.Context, actor Actor, orderID int64) (OrderOutput, error) {
	if actor.ID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		isOwner := o.BuyerID != nil && *o.BuyerID == actor.ID
		if !actor.IsAdmin() && !actor.IsSeller() && !isOwner {
			return NewHTTPError(http.StatusForbidden, "not authorized")
		}

		out = toOrderOutput(o)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

type OrderListOutput struct {
	Orders []OrderOutput `json:"orders"`
	Page   int           `json:"page"`
	Pages  int           `json:"pages"`
	Total  int64         `json:"total_orders"`
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, actor Actor, page int, limit int) (OrderListOutput, error) {
	if actor.ID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var out OrderListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByBuyer(ctx, actor.ID, page, limit)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = toOrderListOutput(orders, page, limit, total)
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

type OrderListInput struct {
	Page       int
	Limit      int
	Status     string
	BuyerID    *int64
	SellerID   *int64 // 管理者がセラーで絞るとき
	ActiveOnly bool
	From       *time.Time
	To         *time.Time
}

// ListOrders は管理者とセラー向け。セラーは自分の商品を含む注文に
// 自動的にスコープされ、明細も自分の分だけに絞られる。
func (u *OrderUsecase) ListOrders(ctx context.Context, actor Actor, in OrderListInput) (OrderListOutput, error) {
	if actor.ID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if !actor.IsAdmin() && !actor.IsSeller() {
		return OrderListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}
	if in.Status != "" && !model.OrderStatus(in.Status).Valid() {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var out OrderListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		f := repo.OrderListFilter{
			Page:       in.Page,
			Limit:      in.Limit,
			Status:     in.Status,
			BuyerID:    in.BuyerID,
			ActiveOnly: in.ActiveOnly,
			From:       in.From,
			To:         in.To,
		}

		var owned map[int64]bool

		scopeSeller := int64(0)
		if actor.IsSeller() {
			scopeSeller = actor.ID
		} else if in.SellerID != nil {
			scopeSeller = *in.SellerID
		}

		if scopeSeller > 0 {
			ids, err := r.Products().ListIDsBySeller(ctx, scopeSeller)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if len(ids) == 0 {
				out = OrderListOutput{Orders: []OrderOutput{}, Page: in.Page, Pages: 0, Total: 0}
				return nil
			}
			f.ProductIDs = ids

			if actor.IsSeller() {
				owned = make(map[int64]bool, len(ids))
				for _, id := range ids {
					owned[id] = true
				}
			}
		}

		orders, total, err := r.Orders().List(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs := make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			if owned != nil {
				outs = append(outs, toSellerOrderOutput(o, owned))
			} else {
				outs = append(outs, toOrderOutput(o))
			}
		}

		out = OrderListOutput{
			Orders: outs,
			Page:   in.Page,
			Pages:  pages(total, in.Limit),
			Total:  total,
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// GetSellerOrder はセラー視点の注文詳細。自分の商品が1つも
// 入っていない注文は403。管理者は全明細が見える。
func (u *OrderUsecase) GetSellerOrder(ctx context.Context, actor Actor, orderID int64) (OrderOutput, error) {
	if actor.ID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if !actor.IsAdmin() && !actor.IsSeller() {
		return OrderOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if actor.IsAdmin() {
			out = toOrderOutput(o)
			return nil
		}

		ids, err := r.Products().ListIDsBySeller(ctx, actor.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		owned := make(map[int64]bool, len(ids))
		for _, id := range ids {
			owned[id] = true
		}

		view := toSellerOrderOutput(o, owned)
		if len(view.Items) == 0 {
			return NewHTTPError(http.StatusForbidden, "you are not authorized to view this order")
		}

		out = view
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// ListOrdersByUser は管理者が特定ユーザーの注文を見るための一覧。
func (u *OrderUsecase) ListOrdersByUser(ctx context.Context, actor Actor, userID int64, page int, limit int) (OrderListOutput, error) {
	if !actor.IsAdmin() {
		return OrderListOutput{}, NewHTTPError(http.StatusForbidden, "admin only")
	}
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var out OrderListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByBuyer(ctx, userID, page, limit)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = toOrderListOutput(orders, page, limit, total)
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// MarkPaid は支払フラグを立てるだけのスタブ（決済はCODのみ）。
func (u *OrderUsecase) MarkPaid(ctx context.Context, actor Actor, orderID int64) (OrderOutput, error) {
	if actor.ID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		isOwner := o.BuyerID != nil && *o.BuyerID == actor.ID
		if !actor.IsAdmin() && !isOwner {
			return NewHTTPError(http.StatusForbidden, "not authorized")
		}
		if o.Status == model.OrderStatusCancelled {
			return NewHTTPError(http.StatusConflict, "order is cancelled")
		}

		now := time.Now()
		if err := r.Orders().MarkPaid(ctx, orderID, now); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.IsPaid = true
		o.PaidAt = &now
		out = toOrderOutput(o)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

type StatsInput struct {
	From     *time.Time
	To       *time.Time
	SellerID *int64 // 管理者がセラーで絞るとき
}

type StatsOutput struct {
	TotalOrders   int64 `json:"total_orders"`
	TotalRevenue  int64 `json:"total_revenue"`
	TotalBuyers   int64 `json:"total_buyers,omitempty"`
	TotalSellers  int64 `json:"total_sellers,omitempty"`
	TotalProducts int64 `json:"total_products,omitempty"`
}

// Stats は売上集計。キャンセルされた注文・明細は数えない。
func (u *OrderUsecase) Stats(ctx context.Context, actor Actor, in StatsInput) (StatsOutput, error) {
	if !actor.IsAdmin() && !actor.IsSeller() {
		return StatsOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	var out StatsOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		f := repo.OrderListFilter{From: in.From, To: in.To}

		var owned map[int64]bool

		scopeSeller := int64(0)
		if actor.IsSeller() {
			scopeSeller = actor.ID
		} else if in.SellerID != nil {
			scopeSeller = *in.SellerID
		}

		if scopeSeller > 0 {
			ids, err := r.Products().ListIDsBySeller(ctx, scopeSeller)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			owned = make(map[int64]bool, len(ids))
			for _, id := range ids {
				owned[id] = true
			}
			f.ProductIDs = ids
			out.TotalProducts = int64(len(ids))

			if len(ids) == 0 {
				return nil
			}
		}

		orders, err := r.Orders().ListForStats(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		for _, o := range orders {
			if o.Status == model.OrderStatusCancelled {
				continue
			}
			out.TotalOrders++
			for _, it := range o.Items {
				if o.EffectiveItemStatus(it) == model.OrderStatusCancelled {
					continue
				}
				if owned != nil && !owned[it.ProductID] {
					continue
				}
				out.TotalRevenue += it.UnitPrice * it.Qty
			}
		}

		if actor.IsAdmin() {
			buyers, err := r.Users().CountByRole(ctx, model.RoleUser)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			sellers, err := r.Users().CountByRole(ctx, model.RoleSeller)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out.TotalBuyers = buyers
			out.TotalSellers = sellers
		}

		return nil
	})
	if err != nil {
		return StatsOutput{}, err
	}
	return out, nil
}

func toOrderListOutput(orders []model.Order, page int, limit int, total int64) OrderListOutput {
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o))
	}
	return OrderListOutput{
		Orders: outs,
		Page:   page,
		Pages:  pages(total, limit),
		Total:  total,
	}
}

func pages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}
