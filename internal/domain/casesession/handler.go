package casesession

import (
	"errors"
	"net/http"

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
	g := api.Group("", auth.RequireRole(auth.RoleCoordinator))
	g.POST("/case-sessions", h.Open)
	g.GET("/case-sessions/:id", h.Get)
	g.PUT("/case-sessions/:id/coverage", h.SetCoverage)
	g.PUT("/case-sessions/:id/profile", h.RecordProfile)
	g.PUT("/case-sessions/:id/availability", h.SubmitAvailability)
	g.POST("/case-sessions/:id/ready", h.MarkReadyToBook)
	g.POST("/case-sessions/:id/close", h.Close)
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "case session not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStaleProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type coverageRequest struct {
	PayerID      *string `json:"payer_id"`
	Jurisdiction *string `json:"jurisdiction"`
}

func (h *Handler) Open(c echo.Context) error {
	var req coverageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cs, err := h.svc.Open(c.Request().Context(), req.PayerID, req.Jurisdiction)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cs)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) SetCoverage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req coverageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetCoverage(c.Request().Context(), id, req.PayerID, req.Jurisdiction); err != nil {
		return sessionError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RecordProfile(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p ClinicalProfile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.CaseSessionID = id
	if err := h.svc.RecordProfile(c.Request().Context(), &p); err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SubmitAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var windows []RequesterWindow
	if err := c.Bind(&windows); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SubmitAvailability(c.Request().Context(), id, windows); err != nil {
		return sessionError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkReadyToBook(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.MarkReadyToBook(c.Request().Context(), id)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.Close(c.Request().Context(), id)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, cs)
}
