package resubmission

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/pkg/pagination"
)

type Handler struct {
	orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/claims/:id/resubmit", h.Resubmit)
	api.POST("/claims/:id/cancel", h.Cancel)
	api.GET("/claims/:id/status", h.Status)
	api.GET("/review-queue", h.ListReviewQueue)
}

// Resubmit accepts a rejected claim into the engine and returns immediately
// with an attempt handle. 409 means a cycle is already in flight.
// ?override=true lets a reviewer release a claim held for sign-off; the
// confidence gate is skipped for that cycle, structural validation is not.
func (h *Handler) Resubmit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	override, _ := strconv.ParseBool(c.QueryParam("override"))
	handle, err := h.orch.SubmitForResubmission(c.Request().Context(), id, override)
	if err != nil {
		var concurrent *ConcurrentResubmissionError
		switch {
		case errors.As(err, &concurrent):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, claims.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "claim not found")
		case errors.Is(err, ErrNotRejected):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusAccepted, handle)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	h.orch.Cancel(id)
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) Status(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	status, err := h.orch.GetStatus(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, claims.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "claim not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) ListReviewQueue(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.orch.review.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
