package inventory

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/money"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/inventory/items", h.CreateItem)
	api.GET("/inventory/items", h.ListItems)
	api.GET("/inventory/items/:id", h.GetItem)
	api.POST("/inventory/items/:id/adjust", h.AdjustStock)
	api.POST("/inventory/items/:id/dispense", h.Dispense)
	api.POST("/inventory/items/:id/batches", h.ReceiveBatch)
	api.GET("/inventory/items/:id/batches", h.ListBatches)
	api.POST("/inventory/items/:id/reservations", h.Reserve)
	api.DELETE("/inventory/items/:id/reservations/:reference", h.Release)
	api.GET("/inventory/items/:id/reservations", h.ListReservations)
	api.GET("/inventory/items/:id/adjustments", h.ListAdjustments)
	api.POST("/inventory/surgical-usage", h.RecordSurgicalUsage)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrReservationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case IsInsufficientStock(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// itemView decorates the stored unit cost with a display string.
type itemView struct {
	*StockItem
	UnitCostDisplay string `json:"unit_cost_display"`
}

func newItemView(item *StockItem) itemView {
	return itemView{StockItem: item, UnitCostDisplay: money.ToDisplay(item.UnitCost, item.Currency)}
}

func itemViews(items []*StockItem) []itemView {
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, newItemView(item))
	}
	return views
}

type createItemRequest struct {
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	Category     *string `json:"category"`
	Unit         string  `json:"unit"`
	CurrentStock int     `json:"current_stock"`
	ReorderLevel int     `json:"reorder_level"`
	UnitCost     string  `json:"unit_cost"`
	Currency     string  `json:"currency"`
}

func (h *Handler) CreateItem(c echo.Context) error {
	var req createItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item := &StockItem{
		SKU:          req.SKU,
		Name:         req.Name,
		Category:     req.Category,
		Unit:         req.Unit,
		CurrentStock: req.CurrentStock,
		ReorderLevel: req.ReorderLevel,
		UnitCost:     money.ToStorage(req.UnitCost, req.Currency),
		Currency:     req.Currency,
	}
	if err := h.svc.CreateItem(c.Request().Context(), item); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newItemView(item))
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	item, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newItemView(item))
}

func (h *Handler) ListItems(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListItems(c.Request().Context(),
		c.QueryParam("category"), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := pagination.NewResponse(itemViews(items), total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Path(), total)
	return c.JSON(http.StatusOK, resp)
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.Adjust(c.Request().Context(), id, req.Delta, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newItemView(item))
}

type dispenseRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req dispenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.Dispense(c.Request().Context(), id, req.Quantity)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type receiveBatchRequest struct {
	LotNumber string     `json:"lot_number"`
	Quantity  int        `json:"quantity"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) ReceiveBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req receiveBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	batch := &StockBatch{ItemID: id, LotNumber: req.LotNumber, Quantity: req.Quantity, ExpiresAt: req.ExpiresAt}
	item, err := h.svc.ReceiveBatch(c.Request().Context(), batch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"batch": batch,
		"item":  newItemView(item),
	})
}

func (h *Handler) ListBatches(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	batches, err := h.svc.ListBatches(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, batches)
}

type reserveRequest struct {
	Quantity  int       `json:"quantity"`
	Reference string    `json:"reference"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) Reserve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Reserve(c.Request().Context(), id, req.Quantity, req.Reference, req.ExpiresAt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Release(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Release(c.Request().Context(), id, c.Param("reference")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListReservations(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	reservations, err := h.svc.ListReservations(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, reservations)
}

func (h *Handler) ListAdjustments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	adjustments, err := h.svc.ListAdjustments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, adjustments)
}

type surgicalUsageRequest struct {
	Lines []UsageLine `json:"lines"`
}

func (h *Handler) RecordSurgicalUsage(c echo.Context) error {
	var req surgicalUsageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Lines) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one usage line is required")
	}
	return c.JSON(http.StatusOK, h.svc.RecordSurgicalUsage(c.Request().Context(), req.Lines))
}
