package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/money"
	"github.com/clinicore/clinicore/internal/platform/oplock"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/invoices", h.CreateInvoice)
	api.GET("/invoices", h.ListInvoices)
	api.GET("/invoices/:id", h.GetInvoice)
	api.GET("/invoices/:id/lines", h.GetInvoiceLines)
	api.GET("/invoices/:id/payments", h.ListInvoicePayments)
	api.GET("/invoices/:id/refunds", h.ListInvoiceRefunds)
	api.POST("/invoices/:id/refunds", h.RefundInvoice)
	api.POST("/invoices/:id/cancel", h.CancelInvoice)
	api.POST("/invoices/:id/void", h.VoidInvoice)
	api.POST("/payments", h.AllocatePayments)
	api.GET("/payments", h.ListPaymentsByBatch)
}

// httpError maps domain failures onto status codes: missing rows are 404,
// version conflicts 409, state-machine rejections 422, anything else 400.
func httpError(err error) *echo.HTTPError {
	var allocErr *AllocationError
	var refundErr *RefundError
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case oplock.IsConflict(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &allocErr), errors.As(err, &refundErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// expectedVersion resolves the version a caller holds. An If-Match header
// carrying a weak ETag wins over the expected_version body field.
func expectedVersion(c echo.Context, bodyVersion int) (int, error) {
	if etag := c.Request().Header.Get("If-Match"); etag != "" {
		return oplock.ParseETag(etag)
	}
	return bodyVersion, nil
}

// writeInvoice renders a single invoice with its version exposed as a weak
// ETag, so callers can replay it through If-Match on the next write.
func writeInvoice(c echo.Context, status int, inv *Invoice) error {
	c.Response().Header().Set("ETag", oplock.FormatETag(inv.VersionID))
	return c.JSON(status, newInvoiceView(inv))
}

// invoiceView decorates the stored integer amounts with display strings in
// the invoice currency.
type invoiceView struct {
	*Invoice
	TotalDisplay      string `json:"total_display"`
	AmountPaidDisplay string `json:"amount_paid_display"`
	AmountDueDisplay  string `json:"amount_due_display"`
}

func newInvoiceView(inv *Invoice) invoiceView {
	return invoiceView{
		Invoice:           inv,
		TotalDisplay:      money.ToDisplay(inv.Total, inv.Currency),
		AmountPaidDisplay: money.ToDisplay(inv.AmountPaid, inv.Currency),
		AmountDueDisplay:  money.ToDisplay(inv.AmountDue, inv.Currency),
	}
}

func invoiceViews(invoices []*Invoice) []invoiceView {
	views := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, newInvoiceView(inv))
	}
	return views
}

type createLineRequest struct {
	Description     string  `json:"description"`
	ServiceCode     *string `json:"service_code"`
	Quantity        int     `json:"quantity"`
	UnitPrice       string  `json:"unit_price"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent"`
}

type createInvoiceRequest struct {
	PatientID   uuid.UUID           `json:"patient_id"`
	EncounterID *uuid.UUID          `json:"encounter_id"`
	Currency    string              `json:"currency"`
	Note        *string             `json:"note"`
	Lines       []createLineRequest `json:"lines"`
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var req createInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv := &Invoice{
		PatientID:   req.PatientID,
		EncounterID: req.EncounterID,
		Currency:    req.Currency,
		Note:        req.Note,
	}
	lines := make([]*InvoiceLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, &InvoiceLine{
			Description:     l.Description,
			ServiceCode:     l.ServiceCode,
			Quantity:        l.Quantity,
			UnitPrice:       money.ToStorage(l.UnitPrice, req.Currency),
			DiscountPercent: l.DiscountPercent,
			TaxPercent:      l.TaxPercent,
		})
	}
	if err := h.svc.CreateInvoice(c.Request().Context(), inv, lines); err != nil {
		return httpError(err)
	}
	return writeInvoice(c, http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return writeInvoice(c, http.StatusOK, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID := uuid.Nil
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = pid
	}
	items, total, err := h.svc.ListInvoices(c.Request().Context(), patientID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := pagination.NewResponse(invoiceViews(items), total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Path(), total)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetInvoiceLines(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	lines, err := h.svc.GetInvoiceLines(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *Handler) ListInvoicePayments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	payments, err := h.svc.ListPayments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) ListInvoiceRefunds(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	refunds, err := h.svc.ListRefunds(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, refunds)
}

type allocationRequest struct {
	InvoiceID       uuid.UUID `json:"invoice_id"`
	Amount          string    `json:"amount"`
	ExpectedVersion int       `json:"expected_version"`
}

type allocatePaymentsRequest struct {
	BatchID     *uuid.UUID          `json:"batch_id"`
	Currency    string              `json:"currency"`
	Method      string              `json:"method"`
	Reference   *string             `json:"reference"`
	ReceivedBy  *string             `json:"received_by"`
	Note        *string             `json:"note"`
	Allocations []allocationRequest `json:"allocations"`
}

func (h *Handler) AllocatePayments(c echo.Context) error {
	var req allocatePaymentsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	batchID := uuid.New()
	if req.BatchID != nil {
		batchID = *req.BatchID
	}
	allocs := make([]AllocationRequest, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocs = append(allocs, AllocationRequest{
			InvoiceID:       a.InvoiceID,
			Amount:          money.ToStorage(a.Amount, req.Currency),
			ExpectedVersion: a.ExpectedVersion,
		})
	}
	details := PaymentDetails{Method: req.Method, Reference: req.Reference, ReceivedBy: req.ReceivedBy, Note: req.Note}
	invoices, err := h.svc.AllocatePayments(c.Request().Context(), batchID, allocs, details)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"invoices": invoiceViews(invoices),
	})
}

func (h *Handler) ListPaymentsByBatch(c echo.Context) error {
	batchID, err := uuid.Parse(c.QueryParam("batch_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch_id")
	}
	payments, err := h.svc.ListPaymentsByBatch(c.Request().Context(), batchID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, payments)
}

type refundRequest struct {
	Amount          string  `json:"amount"`
	Currency        string  `json:"currency"`
	Reason          string  `json:"reason"`
	Method          string  `json:"method"`
	RefundedBy      *string `json:"refunded_by"`
	ExpectedVersion int     `json:"expected_version"`
}

func (h *Handler) RefundInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, err := h.svc.Refund(c.Request().Context(), id,
		money.ToStorage(req.Amount, req.Currency), req.Reason, req.Method, req.RefundedBy, version)
	if err != nil {
		return httpError(err)
	}
	return writeInvoice(c, http.StatusOK, inv)
}

type terminateRequest struct {
	ExpectedVersion int `json:"expected_version"`
}

func (h *Handler) CancelInvoice(c echo.Context) error {
	return h.terminate(c, h.svc.CancelInvoice)
}

func (h *Handler) VoidInvoice(c echo.Context) error {
	return h.terminate(c, h.svc.VoidInvoice)
}

func (h *Handler) terminate(c echo.Context, op func(ctx context.Context, id uuid.UUID, expectedVersion int) (*Invoice, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req terminateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, err := op(c.Request().Context(), id, version)
	if err != nil {
		return httpError(err)
	}
	return writeInvoice(c, http.StatusOK, inv)
}
