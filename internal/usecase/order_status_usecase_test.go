package usecase_test

import (
	"context"
	"testing"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// =====================
// Fixtures
// =====================

func buyerID(id int64) *int64 { return &id }

// 2セラー混在の注文。item 1はセラー10（商品100）、item 2はセラー20（商品200）。
func twoSellerOrder(status1, status2 model.OrderStatus) model.Order {
	return model.Order{
		ID:      1,
		BuyerID: buyerID(5),
		Status:  model.OrderStatusPlaced,
		Items: []model.OrderItem{
			{ID: 1, OrderID: 1, ProductID: 100, Name: "Shirt", Qty: 1, UnitPrice: 1000, Status: status1},
			{ID: 2, OrderID: 1, ProductID: 200, Name: "Shoes", Qty: 1, UnitPrice: 2000, Status: status2},
		},
	}
}

var twoSellerOwners = map[int64]int64{100: 10, 200: 20}

type statusFixture struct {
	tx       *TxManagerMock
	orders   *OrderRepoMock
	products *ProductRepoMock
	activity *ActivityRepoMock
	notifier *NotifierMock
	uc       *usecase.OrderStatusUsecase
}

func newStatusFixture() *statusFixture {
	f := &statusFixture{
		tx:       new(TxManagerMock),
		orders:   new(OrderRepoMock),
		products: new(ProductRepoMock),
		activity: new(ActivityRepoMock),
		notifier: new(NotifierMock),
	}
	f.tx.Repos = &TxReposMock{orders: f.orders, products: f.products}
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.uc = usecase.NewOrderStatusUsecase(f.tx, f.activity, f.notifier, zap.NewNop())
	return f
}

func (f *statusFixture) expectEmit() {
	f.activity.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
}

// =====================
// UpdateStatus: validation
// =====================

func TestUpdateStatus_UnauthorizedActor(t *testing.T) {
	f := newStatusFixture()

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 0}, 1,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "unauthorized")
}

func TestUpdateStatus_InvalidOrderID(t *testing.T) {
	f := newStatusFixture()

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 0,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "invalid id")
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	f := newStatusFixture()

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "TELEPORTED"})
	assertErrContains(t, err, "invalid order status: 'TELEPORTED'")
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(99)).Return(model.Order{}, repo.ErrNotFound)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 99,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "order not found")
}

func TestUpdateStatus_BuyerRoleRejected(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 5, Role: model.RoleUser}, 1,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "unauthorized role")
}

func TestUpdateStatus_CancelledOrderIsFrozen(t *testing.T) {
	f := newStatusFixture()
	o := twoSellerOrder(model.OrderStatusCancelled, model.OrderStatusCancelled)
	o.Status = model.OrderStatusCancelled
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(o, nil)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING"})
	assertErrContains(t, err, "cancelled order")
	f.orders.AssertNotCalled(t, "SaveStatuses", mock.Anything, mock.Anything)
}

// =====================
// UpdateStatus: seller scope
// =====================

func TestUpdateStatus_SellerUpdatesOwnItemsOnly(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)

	var saved model.Order
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(model.Order)
	}).Return(nil)
	f.expectEmit()

	out, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 10, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assert.NoError(t, err)

	//セラー10の明細だけ進む
	assert.Equal(t, model.OrderStatusShipped, saved.Items[0].Status)
	assert.Equal(t, model.OrderStatusPlaced, saved.Items[1].Status)
	//ロールアップは前進なので要求値を採用
	assert.Equal(t, model.OrderStatusShipped, saved.Status)
	assert.Equal(t, "SHIPPED", out.Status)

	f.orders.AssertExpectations(t)
	f.activity.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestUpdateStatus_SellerWithNoItemsForbidden(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 77, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "not authorized to update this order")
}

func TestUpdateStatus_SellerCannotSetPlaced(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusProcessing, model.OrderStatusPlaced), nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 10, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "PLACED"})
	assertErrContains(t, err, "cannot set status back to PLACED")
}

func TestUpdateStatus_SellerBackwardRejected(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusShipped, model.OrderStatusPlaced), nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 10, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING"})
	assertErrContains(t, err, "invalid status transition: cannot move from SHIPPED to PROCESSING")
	f.orders.AssertNotCalled(t, "SaveStatuses", mock.Anything, mock.Anything)
}

func TestUpdateStatus_SameStatusIsIdempotent(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusShipped, model.OrderStatusPlaced), nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Return(nil)
	f.expectEmit()

	//同じ値の再適用は前進扱い（副作用なしで成功する）
	out, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 10, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assert.NoError(t, err)
	assert.Equal(t, "SHIPPED", out.Items[0].Status)
}

// =====================
// UpdateStatus: admin
// =====================

func TestUpdateStatus_AdminBackwardCorrection(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusShipped, model.OrderStatusShipped), nil)

	var saved model.Order
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(model.Order)
	}).Return(nil)
	f.expectEmit()

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING"})
	assert.NoError(t, err)

	//管理者の訂正は全明細とロールアップにそのまま反映される
	assert.Equal(t, model.OrderStatusProcessing, saved.Items[0].Status)
	assert.Equal(t, model.OrderStatusProcessing, saved.Items[1].Status)
	assert.Equal(t, model.OrderStatusProcessing, saved.Status)
}

func TestUpdateStatus_TargetSingleItem(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)

	var saved model.Order
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(model.Order)
	}).Return(nil)
	f.expectEmit()

	itemID := int64(2)
	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING", ItemID: &itemID})
	assert.NoError(t, err)

	assert.Equal(t, model.OrderStatusPlaced, saved.Items[0].Status)
	assert.Equal(t, model.OrderStatusProcessing, saved.Items[1].Status)
}

func TestUpdateStatus_TargetItemNotFound(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)

	itemID := int64(999)
	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING", ItemID: &itemID})
	assertErrContains(t, err, "order item not found")
}

// =====================
// UpdateStatus: roll-up / edge cases
// =====================

func TestUpdateStatus_AllActiveDeliveredCompletesOrder(t *testing.T) {
	f := newStatusFixture()
	//item 2は既にDELIVERED。セラー10が自分の明細を配達完了にする。
	o := twoSellerOrder(model.OrderStatusOutForDelivery, model.OrderStatusDelivered)
	o.Status = model.OrderStatusOutForDelivery
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(o, nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)

	var saved model.Order
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(model.Order)
	}).Return(nil)
	f.expectEmit()

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 10, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "DELIVERED"})
	assert.NoError(t, err)

	assert.Equal(t, model.OrderStatusDelivered, saved.Status)
	assert.True(t, saved.IsDelivered)
	assert.NotNil(t, saved.DeliveredAt)
}

func TestUpdateStatus_LegacyItemsBackfilled(t *testing.T) {
	f := newStatusFixture()
	//明細ステータス未導入時代の注文。空文字は注文ステータス扱い。
	o := twoSellerOrder("", "")
	o.Status = model.OrderStatusProcessing
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(o, nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)

	var saved model.Order
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(model.Order)
	}).Return(nil)
	f.expectEmit()

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 10, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assert.NoError(t, err)

	assert.Equal(t, model.OrderStatusShipped, saved.Items[0].Status)
	//触っていない明細もバックフィルの結果が永続化される
	assert.Equal(t, model.OrderStatusProcessing, saved.Items[1].Status)
}

func TestUpdateStatus_NoEligibleActiveItems(t *testing.T) {
	f := newStatusFixture()
	//セラー10の明細はキャンセル済み
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusCancelled, model.OrderStatusPlaced), nil)
	f.products.On("FindOwners", mock.Anything, []int64{100, 200}).Return(twoSellerOwners, nil)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 10, Role: model.RoleSeller}, 1,
		usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "no eligible active items")
	f.orders.AssertNotCalled(t, "SaveStatuses", mock.Anything, mock.Anything)
}

func TestUpdateStatus_VersionConflictRetriesThenGivesUp(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Return(repo.ErrVersionConflict)

	_, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING"})
	assertErrContains(t, err, "updated concurrently")

	//読み直し→再適用を上限までやる
	f.orders.AssertNumberOfCalls(t, "FindByID", 3)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestUpdateStatus_VersionConflictThenSuccess(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Return(repo.ErrVersionConflict).Once()
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Return(nil)
	f.expectEmit()

	out, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING"})
	assert.NoError(t, err)
	assert.Equal(t, "PROCESSING", out.Status)
	f.orders.AssertNumberOfCalls(t, "FindByID", 2)
}

// 通知が落ちても本体の更新は成功のまま
func TestUpdateStatus_NotifyFailureDoesNotFailUpdate(t *testing.T) {
	f := newStatusFixture()
	f.orders.On("FindByID", mock.Anything, int64(1)).Return(twoSellerOrder(model.OrderStatusPlaced, model.OrderStatusPlaced), nil)
	f.orders.On("SaveStatuses", mock.Anything, mock.Anything).Return(nil)
	f.activity.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(assert.AnError)

	out, err := f.uc.UpdateStatus(context.Background(), usecase.Actor{ID: 1, Role: model.RoleAdmin}, 1,
		usecase.UpdateOrderStatusInput{Status: "PROCESSING"})
	assert.NoError(t, err)
	assert.Equal(t, "PROCESSING", out.Status)
}
