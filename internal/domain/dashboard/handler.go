package dashboard

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harms/harms/internal/platform/auth"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard")
	g.GET("/stats", h.GetStats)
	g.GET("/notifications", h.GetNotifications)
}

func (h *Handler) GetStats(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.Stats(c.Request().Context(), p, h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"stats": stats})
}

func (h *Handler) GetNotifications(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Notifications(c.Request().Context(), p, h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notifications": items})
}
