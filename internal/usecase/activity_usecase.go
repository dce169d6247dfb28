package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

type ActivityUsecase struct {
	activity repo.ActivityRepository
	log      *zap.Logger
}

func NewActivityUsecase(activity repo.ActivityRepository, log *zap.Logger) *ActivityUsecase {
	return &ActivityUsecase{activity: activity, log: log}
}

type LogActivityInput struct {
	Type        string
	TargetType  string
	TargetID    int64
	Description string
	Details     map[string]interface{}
}

// LogActivity はクライアント発の行動記録。型は既知のものだけ受け付ける。
func (u *ActivityUsecase) LogActivity(ctx context.Context, actor Actor, in LogActivityInput) error {
	if actor.ID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	typ := model.ActivityType(strings.TrimSpace(in.Type))
	if !typ.Valid() {
		return NewHTTPError(http.StatusBadRequest, "invalid activity type")
	}
	if strings.TrimSpace(in.Description) == "" {
		return NewHTTPError(http.StatusBadRequest, "description is required")
	}

	var detailsJSON string
	if in.Details != nil {
		b, err := json.Marshal(in.Details)
		if err != nil {
			return NewHTTPError(http.StatusBadRequest, "invalid details")
		}
		detailsJSON = string(b)
	}

	act := model.Activity{
		UserID:      actor.ID,
		Role:        actor.Role,
		Type:        typ,
		TargetType:  model.ActivityTargetType(in.TargetType),
		TargetID:    in.TargetID,
		Description: in.Description,
		DetailsJSON: detailsJSON,
	}
	if err := u.activity.Create(ctx, act, nil); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

type ActivityListInput struct {
	Page       int
	Limit      int
	Type       string
	TargetType string
	UserID     *int64
	From       *time.Time
	To         *time.Time
}

type ActivityListOutput struct {
	Activities []model.Activity `json:"activities"`
	Page       int              `json:"page"`
}

func (u *ActivityUsecase) GetMyActivity(ctx context.Context, actor Actor, in ActivityListInput) (ActivityListOutput, error) {
	if actor.ID <= 0 {
		return ActivityListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	page, limit := normalizeActivityPage(in)

	f := repo.ActivityFilter{
		UserID: &actor.ID,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	applyActivityFilter(&f, in)

	acts, err := u.activity.List(ctx, f)
	if err != nil {
		return ActivityListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return ActivityListOutput{Activities: acts, Page: page}, nil
}

// ListActivities は管理者が全件、販売者は自分のタグ付き分だけ。
func (u *ActivityUsecase) ListActivities(ctx context.Context, actor Actor, in ActivityListInput) (ActivityListOutput, error) {
	if !actor.IsAdmin() && !actor.IsSeller() {
		return ActivityListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	page, limit := normalizeActivityPage(in)

	f := repo.ActivityFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	applyActivityFilter(&f, in)

	if actor.IsAdmin() {
		f.UserID = in.UserID
	} else {
		f.SellerID = &actor.ID
	}

	acts, err := u.activity.List(ctx, f)
	if err != nil {
		return ActivityListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return ActivityListOutput{Activities: acts, Page: page}, nil
}

func normalizeActivityPage(in ActivityListInput) (page, limit int) {
	page = in.Page
	if page < 1 {
		page = 1
	}
	limit = in.Limit
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return page, limit
}

func applyActivityFilter(f *repo.ActivityFilter, in ActivityListInput) {
	if in.Type != "" {
		t := model.ActivityType(in.Type)
		f.Type = &t
	}
	if in.TargetType != "" {
		t := model.ActivityTargetType(in.TargetType)
		f.TargetType = &t
	}
	f.From = in.From
	f.To = in.To
}
