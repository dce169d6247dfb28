package usecase

import (
	"context"
	"net/http"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

// 操作主体。上流の認証レイヤが確定させたID＋ロール。
type Actor struct {
	ID   int64
	Role model.Role
}

func (a Actor) IsAdmin() bool  { return a.Role == model.RoleAdmin }
func (a Actor) IsSeller() bool { return a.Role == model.RoleSeller }

// resolveTargets は操作主体が触ってよい明細IDの集合を返す。
//   - 管理者: 全明細（逆方向の訂正も可）
//   - セラー: 自分の商品の明細だけ。1つもなければ403
//   - それ以外のロール: 403（購入者のキャンセルは別経路）
//
// itemIDが指定されたら集合をその1件に絞る。存在しなければ404、
// 権限外なら403。
func resolveTargets(ctx context.Context, products repo.ProductRepository, actor Actor, order *model.Order, itemID *int64) (map[int64]bool, error) {
	targets := make(map[int64]bool, len(order.Items))

	switch actor.Role {
	case model.RoleAdmin:
		for _, it := range order.Items {
			targets[it.ID] = true
		}

	case model.RoleSeller:
		productIDs := make([]int64, 0, len(order.Items))
		for _, it := range order.Items {
			productIDs = append(productIDs, it.ProductID)
		}

		owners, err := products.FindOwners(ctx, productIDs)
		if err != nil {
			return nil, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		for _, it := range order.Items {
			if owners[it.ProductID] == actor.ID {
				targets[it.ID] = true
			}
		}

		if len(targets) == 0 {
			return nil, NewHTTPError(http.StatusForbidden, "you are not authorized to update this order")
		}

	default:
		return nil, NewHTTPError(http.StatusForbidden, "unauthorized role for status update")
	}

	if itemID != nil {
		found := false
		for _, it := range order.Items {
			if it.ID == *itemID {
				found = true
				break
			}
		}
		if !found {
			return nil, NewHTTPError(http.StatusNotFound, "order item not found")
		}
		if !targets[*itemID] {
			return nil, NewHTTPError(http.StatusForbidden, "you are not authorized to update this item")
		}
		targets = map[int64]bool{*itemID: true}
	}

	return targets, nil
}
