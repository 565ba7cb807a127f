package booking

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carematch/carematch/internal/platform/auth"
	"github.com/carematch/carematch/pkg/pagination"
)

type Handler struct {
	coord *Coordinator
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole(auth.RoleCoordinator))
	write.POST("/appointments", h.Create)
	write.POST("/appointments/:id/cancel", h.Cancel)
	write.POST("/appointments/:id/reschedule", h.Reschedule)

	read := api.Group("", auth.RequireRole(auth.RoleCoordinator, auth.RoleProviderAdmin, auth.RoleProvider))
	read.GET("/appointments/:id", h.Get)
	read.GET("/providers/:id/appointments", h.ListByProvider)
}

// respond renders the uniform outcome. Validation failures are 422, missing
// records 404; anything else propagates to the error handler.
func respond(c echo.Context, successStatus int, a *Appointment, err error) error {
	out, ok := OutcomeOf(a, err)
	if !ok {
		return err
	}
	switch out.ErrorKind {
	case KindValidation:
		return c.JSON(http.StatusUnprocessableEntity, out)
	case KindNotFound:
		return c.JSON(http.StatusNotFound, out)
	}
	return c.JSON(successStatus, out)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CaseSessionID == uuid.Nil || req.ProviderID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "case_session_id and provider_id are required")
	}
	if req.StartTime.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "start_time is required")
	}
	a, err := h.coord.Create(c.Request().Context(), req)
	return respond(c, http.StatusCreated, a, err)
}

type cancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	a, err := h.coord.Cancel(c.Request().Context(), id, req.Reason)
	return respond(c, http.StatusOK, a, err)
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
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
	if req.StartTime.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "start_time is required")
	}
	a, err := h.coord.Reschedule(c.Request().Context(), id, req.StartTime)
	return respond(c, http.StatusCreated, a, err)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.coord.Get(c.Request().Context(), id)
	if err != nil {
		if _, ok := OutcomeOf(nil, err); ok {
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListByProvider(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var from *time.Time
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC 3339")
		}
		from = &t
	}
	p := pagination.FromContext(c)
	items, total, err := h.coord.ListByProvider(c.Request().Context(), id, from, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p).WithLinks(c.Request().URL.Path, p))
}
