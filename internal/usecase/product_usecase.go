package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

type ProductUsecase struct {
	products repo.ProductRepository
	reviews  repo.ReviewRepository
	orders   repo.OrderRepository
	users    repo.UserRepository
	activity repo.ActivityRepository
	log      *zap.Logger
}

func NewProductUsecase(
	products repo.ProductRepository,
	reviews repo.ReviewRepository,
	orders repo.OrderRepository,
	users repo.UserRepository,
	activity repo.ActivityRepository,
	log *zap.Logger,
) *ProductUsecase {
	return &ProductUsecase{
		products: products,
		reviews:  reviews,
		orders:   orders,
		users:    users,
		activity: activity,
		log:      log,
	}
}

type ProductListInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	SellerID *int64
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

type ProductListOutput struct {
	Products []model.Product `json:"products"`
	Page     int             `json:"page"`
	Pages    int             `json:"pages"`
	Total    int64           `json:"total"`
}

func (u *ProductUsecase) ListProducts(ctx context.Context, in ProductListInput) (ProductListOutput, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid query")
	}

	products, total, err := u.products.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        in.Q,
		Category: in.Category,
		SellerID: in.SellerID,
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductListOutput{
		Products: products,
		Page:     in.Page,
		Pages:    pages(total, in.Limit),
		Total:    total,
	}, nil
}

type ProductDetailOutput struct {
	Product model.Product  `json:"product"`
	Reviews []model.Review `json:"reviews"`
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, id int64) (ProductDetailOutput, error) {
	if id <= 0 {
		return ProductDetailOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := u.products.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsVisible {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "product not found")
	}

	reviews, err := u.reviews.ListByProduct(ctx, id, 50)
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductDetailOutput{Product: p, Reviews: reviews}, nil
}

type ProductInput struct {
	Name          string
	Description   string
	Category      string
	Image         string
	Price         int64
	DiscountPrice *int64
	Stock         int64
	IsVisible     bool
}

func (u *ProductUsecase) CreateProduct(ctx context.Context, actor Actor, in ProductInput) (model.Product, error) {
	if !actor.IsSeller() && !actor.IsAdmin() {
		return model.Product{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if err := validateProductInput(in); err != nil {
		return model.Product{}, err
	}

	p := model.Product{
		SellerID:      actor.ID,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Category:      strings.TrimSpace(in.Category),
		Image:         in.Image,
		Price:         in.Price,
		DiscountPrice: in.DiscountPrice,
		Stock:         in.Stock,
		IsVisible:     in.IsVisible,
	}

	created, err := u.products.Create(ctx, p)
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.emitProductActivity(ctx, actor, created, model.ActivityProductCreated,
		fmt.Sprintf("Created product %q", created.Name))
	return created, nil
}

func (u *ProductUsecase) UpdateProduct(ctx context.Context, actor Actor, id int64, in ProductInput) (model.Product, error) {
	if id <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := validateProductInput(in); err != nil {
		return model.Product{}, err
	}

	p, err := u.products.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//自分の商品か管理者だけ
	if !actor.IsAdmin() && !(actor.IsSeller() && p.SellerID == actor.ID) {
		return model.Product{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Category = strings.TrimSpace(in.Category)
	p.Image = in.Image
	p.Price = in.Price
	p.DiscountPrice = in.DiscountPrice
	p.Stock = in.Stock
	p.IsVisible = in.IsVisible

	if err := u.products.Update(ctx, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, NewHTTPError(http.StatusNotFound, "product not found")
		}
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.emitProductActivity(ctx, actor, p, model.ActivityProductUpdated,
		fmt.Sprintf("Updated product %q", p.Name))
	return p, nil
}

func (u *ProductUsecase) DeleteProduct(ctx context.Context, actor Actor, id int64) error {
	if id <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := u.products.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if !actor.IsAdmin() && !(actor.IsSeller() && p.SellerID == actor.ID) {
		return NewHTTPError(http.StatusForbidden, "forbidden")
	}

	if err := u.products.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "product not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.emitProductActivity(ctx, actor, p, model.ActivityProductDeleted,
		fmt.Sprintf("Deleted product %q", p.Name))
	return nil
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" || len(in.Name) > 255 {
		return NewHTTPError(http.StatusBadRequest, "invalid name")
	}
	if strings.TrimSpace(in.Category) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid category")
	}
	if in.Price <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid price")
	}
	if in.DiscountPrice != nil && (*in.DiscountPrice <= 0 || *in.DiscountPrice >= in.Price) {
		return NewHTTPError(http.StatusBadRequest, "invalid discount price")
	}
	if in.Stock < 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid stock")
	}
	return nil
}

type AddReviewInput struct {
	Rating      int
	Comment     string
	OrderItemID *int64
}

// AddReview は配達済みの注文明細を持つ購入者だけが書ける。
func (u *ProductUsecase) AddReview(ctx context.Context, actor Actor, productID int64, in AddReviewInput) (model.Review, error) {
	if actor.ID <= 0 {
		return model.Review{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Review{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return model.Review{}, NewHTTPError(http.StatusBadRequest, "rating must be between 1 and 5")
	}
	if strings.TrimSpace(in.Comment) == "" {
		return model.Review{}, NewHTTPError(http.StatusBadRequest, "comment is required")
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Review{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return model.Review{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	delivered, err := u.orders.HasDeliveredItem(ctx, actor.ID, productID)
	if err != nil {
		return model.Review{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !delivered {
		return model.Review{}, NewHTTPError(http.StatusForbidden, "you can only review products you have purchased and received")
	}

	exists, err := u.reviews.ExistsByUserAndProduct(ctx, actor.ID, productID)
	if err != nil {
		return model.Review{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if exists {
		return model.Review{}, NewHTTPError(http.StatusConflict, "you have already reviewed this product")
	}

	user, err := u.users.FindByID(ctx, actor.ID)
	if err != nil {
		return model.Review{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	created, err := u.reviews.Create(ctx, model.Review{
		ProductID:   productID,
		UserID:      actor.ID,
		OrderItemID: in.OrderItemID,
		Name:        user.Name,
		Rating:      in.Rating,
		Comment:     in.Comment,
	})
	if err != nil {
		return model.Review{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//評価の再集計。失敗してもレビュー自体は残す。
	count, avg, err := u.reviews.AggregateByProduct(ctx, productID)
	if err == nil {
		err = u.products.UpdateRating(ctx, productID, avg, count)
	}
	if err != nil {
		u.log.Warn("rating recompute failed",
			zap.Int64("product_id", productID), zap.Error(err))
	}

	u.emitProductActivity(ctx, actor, p, model.ActivityReviewAdded,
		fmt.Sprintf("Reviewed product %q (%d/5)", p.Name, in.Rating))
	return created, nil
}

func (u *ProductUsecase) emitProductActivity(ctx context.Context, actor Actor, p model.Product, typ model.ActivityType, description string) {
	details, _ := json.Marshal(map[string]interface{}{
		"product_id": p.ID,
		"seller_id":  p.SellerID,
	})

	act := model.Activity{
		UserID:      actor.ID,
		Role:        actor.Role,
		Type:        typ,
		TargetType:  model.ActivityTargetProduct,
		TargetID:    p.ID,
		Description: description,
		DetailsJSON: string(details),
	}
	if err := u.activity.Create(ctx, act, []int64{p.SellerID}); err != nil {
		u.log.Warn("activity append failed",
			zap.Int64("product_id", p.ID), zap.Error(err))
	}
}
