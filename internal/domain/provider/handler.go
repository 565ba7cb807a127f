package provider

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carematch/carematch/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleCoordinator, auth.RoleProviderAdmin, auth.RoleProvider))
	readGroup.GET("/providers/:id", h.GetProvider)
	readGroup.GET("/providers/:id/availability", h.ListWindows)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleProviderAdmin))
	writeGroup.POST("/providers", h.CreateProvider)
	writeGroup.POST("/providers/:id/deactivate", h.DeactivateProvider)
	writeGroup.PUT("/providers/:id/availability", h.ReplaceWindows)
	writeGroup.POST("/providers/:id/time-off", h.AddTimeOff)
}

func providerError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "provider not found")
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) CreateProvider(c echo.Context) error {
	var p Provider
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateProvider(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return providerError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeactivateProvider(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateProvider(c.Request().Context(), id); err != nil {
		return providerError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListWindows(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	windows, err := h.svc.ListWindows(c.Request().Context(), id)
	if err != nil {
		return providerError(err)
	}
	if windows == nil {
		windows = []AvailabilityWindow{}
	}
	return c.JSON(http.StatusOK, windows)
}

func (h *Handler) ReplaceWindows(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var windows []AvailabilityWindow
	if err := c.Bind(&windows); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ReplaceWindows(c.Request().Context(), id, windows); err != nil {
		return providerError(err)
	}
	return c.JSON(http.StatusOK, windows)
}

type timeOffRequest struct {
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Reason    *string `json:"reason,omitempty"`
}

func (h *Handler) AddTimeOff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req timeOffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "end_date must be YYYY-MM-DD")
	}
	t := &TimeOff{ProviderID: id, StartDate: start, EndDate: end, Reason: req.Reason}
	if err := h.svc.AddTimeOff(c.Request().Context(), t); err != nil {
		return providerError(err)
	}
	return c.JSON(http.StatusCreated, t)
}
