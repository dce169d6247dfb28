package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

// 通知の送信口。失敗しても注文の状態変更は巻き戻さない。
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// 注文ステータス遷移とキャンセルのエンジン。
// 検証はすべて書き込み前に行い、書き込みは SaveStatuses の1回だけ。
type OrderStatusUsecase struct {
	tx       repo.TransactionManager
	activity repo.ActivityRepository
	notifier Notifier
	log      *zap.Logger
}

func NewOrderStatusUsecase(tx repo.TransactionManager, activity repo.ActivityRepository, notifier Notifier, log *zap.Logger) *OrderStatusUsecase {
	return &OrderStatusUsecase{tx: tx, activity: activity, notifier: notifier, log: log}
}

type UpdateOrderStatusInput struct {
	Status string
	ItemID *int64
}

// 楽観ロック競合時の読み直し回数
const casRetryLimit = 3

// runWithRetry はversion競合の間だけfnをやり直す。
// 競合が続いたらリトライ可能な409で返す。
func (u *OrderStatusUsecase) runWithRetry(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrVersionConflict) {
			return err
		}
	}
	return NewHTTPError(http.StatusConflict, "order was updated concurrently, please retry")
}

type statusChange struct {
	order     model.Order
	oldStatus model.OrderStatus
	newStatus model.OrderStatus
	updated   int
	actor     Actor
}

// UpdateStatus は要求されたステータスを権限内の明細に適用し、
// ロールアップを再計算して保存する。対象明細はすべて成功するか
// すべて失敗するかのどちらか（対象外の明細は触らない）。
func (u *OrderStatusUsecase) UpdateStatus(ctx context.Context, actor Actor, orderID int64, in UpdateOrderStatusInput) (OrderOutput, error) {
	if actor.ID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(strings.TrimSpace(in.Status))
	if !newStatus.Valid() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("invalid order status: '%s'", in.Status))
	}

	var out OrderOutput
	var change statusChange

	err := u.runWithRetry(ctx, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindByID(ctx, orderID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "order not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			//キャンセル済みの注文は凍結
			if o.Status == model.OrderStatusCancelled {
				return NewHTTPError(http.StatusConflict, "cannot update status of a cancelled order")
			}

			//レガシー明細のバックフィル。以降の比較を成立させるために
			//遷移計算より先にやる。
			for i := range o.Items {
				if o.Items[i].Status == "" {
					o.Items[i].Status = o.Status
				}
			}

			targets, err := resolveTargets(ctx, r.Products(), actor, &o, in.ItemID)
			if err != nil {
				return err
			}

			//PLACEDはシステムが付ける初期値。セラーは戻せない。
			if actor.IsSeller() && newStatus == model.OrderStatusPlaced {
				return NewHTTPError(http.StatusBadRequest, "sellers cannot set status back to PLACED")
			}

			//遷移チェック。1件でも違反したら全体を中止する。
			//管理者の逆方向（訂正）とキャンセルへの遷移は免除。
			if !actor.IsAdmin() && newStatus != model.OrderStatusCancelled {
				for _, it := range o.Items {
					if !targets[it.ID] || it.Status == model.OrderStatusCancelled {
						continue
					}
					if !model.IsForwardOrEqual(it.Status, newStatus) {
						return NewHTTPError(http.StatusBadRequest,
							fmt.Sprintf("invalid status transition: cannot move from %s to %s", it.Status, newStatus))
					}
				}
			}

			//適用。キャンセル済みの明細は終端なので飛ばす。
			updated := 0
			for i := range o.Items {
				it := &o.Items[i]
				if !targets[it.ID] || it.Status == model.OrderStatusCancelled {
					continue
				}
				it.Status = newStatus
				updated++
			}
			if updated == 0 {
				return NewHTTPError(http.StatusConflict, "no eligible active items to update")
			}

			//ロールアップ再計算。前進なら要求値を採用。
			//管理者の書き込みは訂正なのでそのまま反映する。
			oldStatus := o.Status
			if newStatus == model.OrderStatusCancelled {
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
			} else if actor.IsAdmin() || model.IsForwardOrEqual(o.Status, newStatus) {
				o.Status = newStatus
			}

			//アクティブな明細が全部届いたら注文を完了にする。
			//複数セラーが別々のタイミングで配達し終えるケース。
			if o.AllActiveDelivered() {
				o.Status = model.OrderStatusDelivered
				if !o.IsDelivered {
					o.IsDelivered = true
					now := time.Now()
					o.DeliveredAt = &now
				}
			}

			if err := r.Orders().SaveStatuses(ctx, o); err != nil {
				if errors.Is(err, repo.ErrVersionConflict) {
					return err
				}
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			change = statusChange{
				order:     o,
				oldStatus: oldStatus,
				newStatus: newStatus,
				updated:   updated,
				actor:     actor,
			}
			out = toOrderOutput(o)
			return nil
		})
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.emitStatusChanged(ctx, change)
	return out, nil
}

// emitStatusChanged は保存後の活動ログと購入者通知。失敗しても
// レスポンスには影響させない（状態変更はもう確定している）。
func (u *OrderStatusUsecase) emitStatusChanged(ctx context.Context, c statusChange) {
	details, _ := json.Marshal(map[string]interface{}{
		"order_id":            c.order.ID,
		"old_status":          c.oldStatus,
		"new_status":          c.newStatus,
		"updated_items_count": c.updated,
		"actor_id":            c.actor.ID,
		"is_admin_override":   c.actor.IsAdmin(),
	})

	act := model.Activity{
		UserID:      c.actor.ID,
		Role:        c.actor.Role,
		Type:        model.ActivityOrderStatusChange,
		TargetType:  model.ActivityTargetOrder,
		TargetID:    c.order.ID,
		Description: fmt.Sprintf("Status updated: %s -> %s (%s)", c.oldStatus, c.newStatus, c.actor.Role),
		DetailsJSON: string(details),
	}
	if err := u.activity.Create(ctx, act, nil); err != nil {
		u.log.Warn("activity append failed",
			zap.Int64("order_id", c.order.ID), zap.Error(err))
	}

	if c.order.BuyerID == nil {
		return
	}

	var body string
	if c.updated == len(c.order.Items) {
		body = fmt.Sprintf("Your order #%d is now %s", c.order.ID, c.newStatus)
	} else {
		body = fmt.Sprintf("%d item(s) in your order #%d are now %s", c.updated, c.order.ID, c.newStatus)
	}

	n := model.Notification{
		UserID:      *c.order.BuyerID,
		Title:       "Order update",
		Body:        body,
		Kind:        model.NotificationOrder,
		ReferenceID: strconv.FormatInt(c.order.ID, 10),
		Status:      string(c.newStatus),
	}
	if err := u.notifier.Notify(ctx, n); err != nil {
		u.log.Warn("notification dispatch failed",
			zap.Int64("order_id", c.order.ID), zap.Error(err))
	}
}
