package claims

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/revcycle/revcycle/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/claims", h.Create)
	api.GET("/claims", h.List)
	api.GET("/claims/:id", h.Get)
}

func (h *Handler) Create(c echo.Context) error {
	var claim Claim
	if err := c.Bind(&claim); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &claim); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, claim)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	claim, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if payer := c.QueryParam("payer_code"); payer != "" {
		result, total, err := h.svc.ListByPayer(ctx, payer, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(result, total, pg.Limit, pg.Offset))
	}

	status := Status(c.QueryParam("status"))
	if status == "" {
		status = StatusRejected
	}
	result, total, err := h.svc.ListByStatus(ctx, status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(result, total, pg.Limit, pg.Offset))
}
