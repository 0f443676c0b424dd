package scheduling

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")
	g.GET("", h.ListAppointments)
	g.POST("", h.CreateAppointment)
	g.GET("/doctors", h.ListDoctors)
	g.GET("/available-slots", h.AvailableSlots)
	g.GET("/:id", h.GetAppointment)
	g.PATCH("/:id/status", h.UpdateStatus)
}

type createResponse struct {
	Message       string           `json:"message"`
	AppointmentID int64            `json:"appointment_id"`
	Appointment   *AppointmentView `json:"appointment"`
}

type statusRequest struct {
	Status Status  `json:"status"`
	Notes  *string `json:"notes"`
}

type slotsResponse struct {
	DoctorID       int64    `json:"doctor_id"`
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListAppointments(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f := ListFilter{Status: Status(c.QueryParam("status")), Date: c.QueryParam("date")}
	items, total, err := h.svc.List(c.Request().Context(), p, f, pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.svc.Create(c.Request().Context(), p, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createResponse{
		Message:       "appointment created successfully",
		AppointmentID: view.ID,
		Appointment:   view,
	})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	view, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.svc.Transition(c.Request().Context(), p, id, req.Status, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	docs, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"doctors": docs})
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	var doctorID int64
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		doctorID = id
	}
	date := c.QueryParam("date")
	slots, err := h.svc.ListAvailableSlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slotsResponse{DoctorID: doctorID, Date: date, AvailableSlots: slots})
}
