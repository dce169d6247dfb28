package handler

import (
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ActivityHandler struct {
	uc *usecase.ActivityUsecase
}

func NewActivityHandler(uc *usecase.ActivityUsecase) *ActivityHandler {
	return &ActivityHandler{uc: uc}
}

type ActivityLogRequest struct {
	Type        string                 `json:"type" validate:"required"`
	TargetType  string                 `json:"target_type"`
	TargetID    int64                  `json:"target_id"`
	Description string                 `json:"description" validate:"required"`
	Details     map[string]interface{} `json:"details"`
}

func (h *ActivityHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/activity")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.log)
	g.GET("/my", h.my)

	s := g.Group("", middleware.SellerRoleGuard())
	s.GET("", h.list)
}

func (h *ActivityHandler) log(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req ActivityLogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.uc.LogActivity(c.Request().Context(), actor, usecase.LogActivityInput{
		Type:        req.Type,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		Description: req.Description,
		Details:     req.Details,
	}); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusCreated)
}

func (h *ActivityHandler) my(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	in, err := activityListInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query"})
	}

	out, err := h.uc.GetMyActivity(c.Request().Context(), actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ActivityHandler) list(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	in, err := activityListInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query"})
	}

	if v := c.QueryParam("user_id"); v != "" {
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user_id"})
		}
		in.UserID = &x
	}

	out, err := h.uc.ListActivities(c.Request().Context(), actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func activityListInput(c echo.Context) (usecase.ActivityListInput, error) {
	page, limit, err := pageLimit(c)
	if err != nil {
		return usecase.ActivityListInput{}, err
	}

	in := usecase.ActivityListInput{
		Page:       page,
		Limit:      limit,
		Type:       c.QueryParam("type"),
		TargetType: c.QueryParam("target_type"),
	}

	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return usecase.ActivityListInput{}, err
		}
		in.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return usecase.ActivityListInput{}, err
		}
		in.To = &t
	}

	return in, nil
}
