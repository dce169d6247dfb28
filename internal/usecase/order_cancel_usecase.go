package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

type cancelChange struct {
	order        model.Order
	itemID       *int64
	productNames []string
	sellerIDs    []int64
	actor        Actor
}

// Cancel は注文全体または明細1件のキャンセル。
// キャンセルできるのは実効ステータスがPLACEDのうちだけ。
// 注文全体の場合はアクティブな明細が1件でも進んでいたら
// 全体を拒否する（暗黙の部分キャンセルはしない）。
func (u *OrderStatusUsecase) Cancel(ctx context.Context, actor Actor, orderID int64, itemID *int64) (OrderOutput, error) {
	if actor.ID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	var change cancelChange

	err := u.runWithRetry(ctx, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindByID(ctx, orderID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "order not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			//購入者本人か管理者だけ
			if !actor.IsAdmin() {
				if o.BuyerID == nil || *o.BuyerID != actor.ID {
					return NewHTTPError(http.StatusForbidden, "not authorized to cancel this order")
				}
			}

			if o.Status == model.OrderStatusCancelled {
				return NewHTTPError(http.StatusConflict, "order is already cancelled")
			}

			//レガシー明細のバックフィル
			for i := range o.Items {
				if o.Items[i].Status == "" {
					o.Items[i].Status = o.Status
				}
			}

			var cancelled []model.OrderItem

			if itemID != nil {
				//明細単位のキャンセル
				var target *model.OrderItem
				for i := range o.Items {
					if o.Items[i].ID == *itemID {
						target = &o.Items[i]
						break
					}
				}
				if target == nil {
					return NewHTTPError(http.StatusNotFound, "order item not found")
				}
				if target.Status == model.OrderStatusCancelled {
					return NewHTTPError(http.StatusConflict, "item is already cancelled")
				}
				if target.Status != model.OrderStatusPlaced {
					return NewHTTPError(http.StatusConflict,
						fmt.Sprintf("item cannot be cancelled as it is already %s", target.Status))
				}

				target.Status = model.OrderStatusCancelled
				cancelled = append(cancelled, *target)

				//全明細がキャンセルになったら注文もキャンセル
				allCancelled := true
				for _, it := range o.Items {
					if it.Status != model.OrderStatusCancelled {
						allCancelled = false
						break
					}
				}
				if allCancelled {
					o.Status = model.OrderStatusCancelled
				}
			} else {
				//注文全体のキャンセル。先に全アクティブ明細の資格を確認する。
				for _, it := range o.Items {
					if it.Status == model.OrderStatusCancelled {
						continue
					}
					if it.Status != model.OrderStatusPlaced {
						return NewHTTPError(http.StatusConflict,
							"order cannot be cancelled because one or more items are already being processed")
					}
				}

				o.Status = model.OrderStatusCancelled
				for i := range o.Items {
					if o.Items[i].Status == model.OrderStatusCancelled {
						continue
					}
					o.Items[i].Status = model.OrderStatusCancelled
					cancelled = append(cancelled, o.Items[i])
				}
			}

			if err := r.Orders().SaveStatuses(ctx, o); err != nil {
				if errors.Is(err, repo.ErrVersionConflict) {
					return err
				}
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			//巻き込まれたセラーを特定する（フィードのタグ付けに使う）
			productIDs := make([]int64, 0, len(cancelled))
			names := make([]string, 0, len(cancelled))
			for _, it := range cancelled {
				productIDs = append(productIDs, it.ProductID)
				names = append(names, it.Name)
			}
			owners, err := r.Products().FindOwners(ctx, productIDs)
			if err != nil {
				//タグ付けに失敗してもキャンセル自体は成立している
				u.log.Warn("seller lookup for cancellation failed",
					zap.Int64("order_id", o.ID), zap.Error(err))
				owners = map[int64]int64{}
			}
			seen := make(map[int64]bool, len(owners))
			sellerIDs := make([]int64, 0, len(owners))
			for _, sid := range owners {
				if !seen[sid] {
					seen[sid] = true
					sellerIDs = append(sellerIDs, sid)
				}
			}

			change = cancelChange{
				order:        o,
				itemID:       itemID,
				productNames: names,
				sellerIDs:    sellerIDs,
				actor:        actor,
			}
			out = toOrderOutput(o)
			return nil
		})
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.emitCancelled(ctx, change)
	return out, nil
}

// emitCancelled はキャンセルの活動ログと購入者通知。
// セラーは自分で起こした操作でなくてもタグ経由でフィードに出る。
func (u *OrderStatusUsecase) emitCancelled(ctx context.Context, c cancelChange) {
	names := strings.Join(c.productNames, ", ")

	var description string
	if c.itemID != nil {
		description = fmt.Sprintf("Cancelled item: %s in order #%d", names, c.order.ID)
	} else {
		description = fmt.Sprintf("Order #%d was cancelled by %s", c.order.ID, c.actor.Role)
	}

	details, _ := json.Marshal(map[string]interface{}{
		"order_id":      c.order.ID,
		"item_id":       c.itemID,
		"product_names": names,
		"seller_ids":    c.sellerIDs,
		"actor_id":      c.actor.ID,
	})

	act := model.Activity{
		UserID:      c.actor.ID,
		Role:        c.actor.Role,
		Type:        model.ActivityOrderCancelled,
		TargetType:  model.ActivityTargetOrder,
		TargetID:    c.order.ID,
		Description: description,
		DetailsJSON: string(details),
	}
	if err := u.activity.Create(ctx, act, c.sellerIDs); err != nil {
		u.log.Warn("activity append failed",
			zap.Int64("order_id", c.order.ID), zap.Error(err))
	}

	if c.order.BuyerID == nil {
		return
	}

	var body string
	if c.itemID != nil {
		body = fmt.Sprintf("%s in your order #%d has been cancelled", names, c.order.ID)
	} else {
		body = fmt.Sprintf("Your order #%d has been cancelled", c.order.ID)
	}

	//明細単位は同じ注文で複数回起きうるので重複抑止ラベルを付けない
	status := string(model.OrderStatusCancelled)
	if c.itemID != nil {
		status = ""
	}

	n := model.Notification{
		UserID:      *c.order.BuyerID,
		Title:       "Order cancelled",
		Body:        body,
		Kind:        model.NotificationOrder,
		ReferenceID: strconv.FormatInt(c.order.ID, 10),
		Status:      status,
	}
	if err := u.notifier.Notify(ctx, n); err != nil {
		u.log.Warn("notification dispatch failed",
			zap.Int64("order_id", c.order.ID), zap.Error(err))
	}
}
