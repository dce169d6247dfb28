package repository_test

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/domain/model"
	infraRepo "marketplace/internal/infra/repository"
	repo "marketplace/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// インメモリSQLiteで実SQLを通す
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
	))

	return db
}

func seedOrder(t *testing.T, db *gorm.DB, buyer int64, statuses ...model.OrderStatus) model.Order {
	t.Helper()

	items := make([]model.OrderItem, 0, len(statuses))
	for i, s := range statuses {
		items = append(items, model.OrderItem{
			ProductID: int64(100 + i),
			Name:      "item",
			Size:      "M",
			Qty:       1,
			UnitPrice: 1000,
			Status:    s,
		})
	}

	o := model.Order{
		BuyerID: &buyer,
		Items:   items,
		Status:  model.OrderStatusPlaced,
	}
	require.NoError(t, db.Create(&o).Error)
	return o
}

func TestOrderGorm_CreateAndFindByID(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)
	ctx := context.Background()

	created := seedOrder(t, db, 5, model.OrderStatusPlaced, model.OrderStatusPlaced)

	got, err := r.FindByID(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.Len(t, got.Items, 2)
	//明細は挿入順
	assert.Less(t, got.Items[0].ID, got.Items[1].ID)
}

func TestOrderGorm_FindByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)

	_, err := r.FindByID(context.Background(), 999)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestOrderGorm_SaveStatuses_CAS(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)
	ctx := context.Background()

	o := seedOrder(t, db, 5, model.OrderStatusPlaced)

	o.Status = model.OrderStatusProcessing
	o.Items[0].Status = model.OrderStatusProcessing
	require.NoError(t, r.SaveStatuses(ctx, o))

	got, err := r.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, got.Status)
	assert.Equal(t, model.OrderStatusProcessing, got.Items[0].Status)
	assert.Equal(t, o.Version+1, got.Version)

	//古いversionでの保存は競合
	stale := o
	stale.Status = model.OrderStatusShipped
	assert.ErrorIs(t, r.SaveStatuses(ctx, stale), repo.ErrVersionConflict)

	//競合した書き込みは反映されない
	got, err = r.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, got.Status)
}

func TestOrderGorm_SaveStatuses_DeliveredFlags(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)
	ctx := context.Background()

	o := seedOrder(t, db, 5, model.OrderStatusOutForDelivery)

	now := time.Now()
	o.Status = model.OrderStatusDelivered
	o.IsDelivered = true
	o.DeliveredAt = &now
	o.Items[0].Status = model.OrderStatusDelivered
	require.NoError(t, r.SaveStatuses(ctx, o))

	got, err := r.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDelivered)
	assert.NotNil(t, got.DeliveredAt)
}

func TestOrderGorm_MarkPaid(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)
	ctx := context.Background()

	o := seedOrder(t, db, 5, model.OrderStatusPlaced)

	require.NoError(t, r.MarkPaid(ctx, o.ID, time.Now()))

	got, err := r.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.NotNil(t, got.PaidAt)

	assert.ErrorIs(t, r.MarkPaid(ctx, 999, time.Now()), repo.ErrNotFound)
}

func TestOrderGorm_HasDeliveredItem(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)
	ctx := context.Background()

	o := seedOrder(t, db, 5, model.OrderStatusShipped)
	productID := o.Items[0].ProductID

	ok, err := r.HasDeliveredItem(ctx, 5, productID)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Model(&model.OrderItem{}).
		Where("id = ?", o.Items[0].ID).
		Update("status", model.OrderStatusDelivered).Error)

	ok, err = r.HasDeliveredItem(ctx, 5, productID)
	assert.NoError(t, err)
	assert.True(t, ok)

	//別の購入者では引っかからない
	ok, err = r.HasDeliveredItem(ctx, 6, productID)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderGorm_List_SellerProductScope(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)
	ctx := context.Background()

	//商品100と101を含む注文、商品100だけの注文、無関係な注文
	both := seedOrder(t, db, 5, model.OrderStatusPlaced, model.OrderStatusPlaced) // 100, 101
	one := seedOrder(t, db, 6, model.OrderStatusPlaced)                           // 100
	require.NoError(t, db.Model(&model.OrderItem{}).
		Where("order_id = ?", one.ID).
		Update("product_id", 100).Error)
	other := seedOrder(t, db, 7, model.OrderStatusPlaced)
	require.NoError(t, db.Model(&model.OrderItem{}).
		Where("order_id = ?", other.ID).
		Update("product_id", 900).Error)

	orders, total, err := r.List(ctx, repo.OrderListFilter{ProductIDs: []int64{100, 101}})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)

	ids := []int64{}
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []int64{both.ID, one.ID}, ids)

	//両商品を含む注文も1回しか出ない
	assert.Len(t, orders, 2)
}

func TestOrderGorm_ListByBuyer_Paginates(t *testing.T) {
	db := setupDB(t)
	r := infraRepo.NewOrderGormRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedOrder(t, db, 5, model.OrderStatusPlaced)
	}
	seedOrder(t, db, 6, model.OrderStatusPlaced)

	orders, total, err := r.ListByBuyer(ctx, 5, 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 2)

	orders, _, err = r.ListByBuyer(ctx, 5, 2, 2)
	assert.NoError(t, err)
	assert.Len(t, orders, 1)
}
