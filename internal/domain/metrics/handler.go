package metrics

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	agg *Aggregator
}

func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/metrics/resubmission", h.Snapshot)
}

// Snapshot serves the aggregate view, optionally filtered by payer_code
// and/or category query params.
func (h *Handler) Snapshot(c echo.Context) error {
	f := Filter{
		PayerCode: c.QueryParam("payer_code"),
		Category:  c.QueryParam("category"),
	}
	snap, err := h.agg.Snapshot(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}
