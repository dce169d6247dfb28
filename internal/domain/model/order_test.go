package model_test

import (
	"testing"

	"marketplace/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Valid(t *testing.T) {
	for _, s := range []model.OrderStatus{
		model.OrderStatusPlaced,
		model.OrderStatusProcessing,
		model.OrderStatusShipped,
		model.OrderStatusOutForDelivery,
		model.OrderStatusDelivered,
		model.OrderStatusCancelled,
	} {
		assert.True(t, s.Valid(), "%s", s)
	}

	assert.False(t, model.OrderStatus("").Valid())
	assert.False(t, model.OrderStatus("placed").Valid())
	assert.False(t, model.OrderStatus("RETURNED").Valid())
}

func TestIsForwardOrEqual(t *testing.T) {
	assert.True(t, model.IsForwardOrEqual(model.OrderStatusPlaced, model.OrderStatusProcessing))
	assert.True(t, model.IsForwardOrEqual(model.OrderStatusShipped, model.OrderStatusShipped))
	assert.True(t, model.IsForwardOrEqual(model.OrderStatusDelivered, model.OrderStatusCancelled))

	assert.False(t, model.IsForwardOrEqual(model.OrderStatusShipped, model.OrderStatusProcessing))
	assert.False(t, model.IsForwardOrEqual(model.OrderStatusDelivered, model.OrderStatusOutForDelivery))

	//未知のステータスは最下位扱い
	assert.True(t, model.IsForwardOrEqual(model.OrderStatus("???"), model.OrderStatusPlaced))
	assert.False(t, model.IsForwardOrEqual(model.OrderStatusShipped, model.OrderStatus("???")))
}

func TestStatusRank_CancelledIsTerminal(t *testing.T) {
	assert.Equal(t, model.CancelledRank, model.StatusRank(model.OrderStatusCancelled))
	assert.Greater(t, model.StatusRank(model.OrderStatusCancelled), model.StatusRank(model.OrderStatusDelivered))
}

func TestEffectiveItemStatus_LegacyFallsBackToOrder(t *testing.T) {
	o := model.Order{Status: model.OrderStatusShipped}

	assert.Equal(t, model.OrderStatusShipped, o.EffectiveItemStatus(model.OrderItem{Status: ""}))
	assert.Equal(t, model.OrderStatusPlaced, o.EffectiveItemStatus(model.OrderItem{Status: model.OrderStatusPlaced}))
}

func TestAllActiveDelivered(t *testing.T) {
	o := model.Order{
		Status: model.OrderStatusShipped,
		Items: []model.OrderItem{
			{Status: model.OrderStatusDelivered},
			{Status: model.OrderStatusCancelled},
		},
	}
	assert.True(t, o.AllActiveDelivered())

	o.Items[0].Status = model.OrderStatusShipped
	assert.False(t, o.AllActiveDelivered())

	//全明細キャンセルは「配達完了」ではない
	o.Items[0].Status = model.OrderStatusCancelled
	assert.False(t, o.AllActiveDelivered())

	//明細なしも同様
	assert.False(t, (&model.Order{Status: model.OrderStatusPlaced}).AllActiveDelivered())
}

func TestActiveItems_UsesEffectiveStatus(t *testing.T) {
	o := model.Order{
		Status: model.OrderStatusCancelled,
		Items: []model.OrderItem{
			{ID: 1, Status: ""}, //レガシー明細は注文のCANCELLEDを引き継ぐ
			{ID: 2, Status: model.OrderStatusPlaced},
		},
	}

	active := o.ActiveItems()
	assert.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].ID)
}
