package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	api.POST("/bookings", h.CreateBooking)
	api.GET("/bookings", h.ListBookings)
	api.GET("/bookings/:id", h.GetBooking)
	api.POST("/bookings/:id/status", h.UpdateStatus)
	api.POST("/bookings/:id/reschedule", h.Reschedule)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrBookingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case IsSlotConflict(err), oplock.IsConflict(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
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

// writeBooking renders a booking with its version exposed as a weak ETag.
func writeBooking(c echo.Context, status int, b *Booking) error {
	c.Response().Header().Set("ETag", oplock.FormatETag(b.VersionID))
	return c.JSON(status, b)
}

type createBookingRequest struct {
	ResourceID uuid.UUID `json:"resource_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Reason     *string   `json:"reason"`
	Note       *string   `json:"note"`
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := &Booking{
		ResourceID: req.ResourceID,
		PatientID:  req.PatientID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Reason:     req.Reason,
		Note:       req.Note,
	}
	if err := h.svc.Book(c.Request().Context(), b); err != nil {
		return httpError(err)
	}
	return writeBooking(c, http.StatusCreated, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBooking(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return writeBooking(c, http.StatusOK, b)
}

func (h *Handler) ListBookings(c echo.Context) error {
	pg := pagination.FromContext(c)

	if v := c.QueryParam("patient_id"); v != "" {
		patientID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		bookings, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		resp := pagination.NewResponse(bookings, total, pg.Limit, pg.Offset)
		resp.Links = pg.Links(c.Path(), total)
		return c.JSON(http.StatusOK, resp)
	}

	resourceID, err := uuid.Parse(c.QueryParam("resource_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "resource_id or patient_id is required")
	}
	from, err := parseTimeParam(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	to, err := parseTimeParam(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
	}

	bookings, total, err := h.svc.ListByResource(c.Request().Context(), resourceID, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := pagination.NewResponse(bookings, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Path(), total)
	return c.JSON(http.StatusOK, resp)
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

type updateStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion int    `json:"expected_version"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status, version)
	if err != nil {
		return httpError(err)
	}
	return writeBooking(c, http.StatusOK, b)
}

type rescheduleRequest struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	ExpectedVersion int       `json:"expected_version"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	version, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Reschedule(c.Request().Context(), id, req.StartTime, req.EndTime, version)
	if err != nil {
		return httpError(err)
	}
	return writeBooking(c, http.StatusOK, b)
}
