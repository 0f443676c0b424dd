package resource

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/pkg/pagination"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/resources", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.ListResources)
	g.POST("", h.CreateResource)
	g.GET("/alerts", h.Alerts)
	g.GET("/:id", h.GetResource)
	g.PUT("/:id", h.UpdateResource)
	g.GET("/:id/transactions", h.ListTransactions)
	g.POST("/:id/transactions", h.CreateTransaction)
	g.GET("/:id/reconciliation", h.Reconcile)
}

type createResponse struct {
	Message    string    `json:"message"`
	ResourceID int64     `json:"resource_id"`
	Resource   *Resource `json:"resource"`
}

type transactionResponse struct {
	Transaction *Transaction `json:"transaction"`
	Resource    *Resource    `json:"resource,omitempty"`
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListResources(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), Filter{Type: Type(c.QueryParam("type"))}, pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreateResource(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createResponse{
		Message:    "resource created successfully",
		ResourceID: r.ID,
		Resource:   r,
	})
}

func (h *Handler) GetResource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateResource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Alerts(c echo.Context) error {
	alerts, err := h.svc.Alerts(c.Request().Context(), h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (h *Handler) ListTransactions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTransactions(c.Request().Context(), id, pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// CreateTransaction records a ledger entry, and also moves available stock
// when apply_to_stock is set.
func (h *Handler) CreateTransaction(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req TransactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if req.ApplyToStock {
		t, r, err := h.svc.AdjustStock(ctx, p, id, req)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, transactionResponse{Transaction: t, Resource: r})
	}
	t, err := h.svc.RecordTransaction(ctx, p, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, transactionResponse{Transaction: t})
}

func (h *Handler) Reconcile(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Reconcile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}
