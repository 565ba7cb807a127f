package availability

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carematch/carematch/internal/domain/provider"
	"github.com/carematch/carematch/internal/platform/auth"
)

const (
	dateLayout   = "2006-01-02"
	maxRangeDays = 62
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleCoordinator, auth.RoleProviderAdmin, auth.RoleProvider))
	read.GET("/providers/:id/slots", h.GetAvailableSlots)
}

type slotsResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	TimeZone   string    `json:"time_zone"`
	Slots      []Slot    `json:"slots"`
}

// GetAvailableSlots handles GET /providers/:id/slots?start=YYYY-MM-DD&end=YYYY-MM-DD&tz=Area/City.
func (h *Handler) GetAvailableSlots(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}

	start, err := time.Parse(dateLayout, c.QueryParam("start"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start must be a date in YYYY-MM-DD format")
	}
	end := start
	if v := c.QueryParam("end"); v != "" {
		if end, err = time.Parse(dateLayout, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "end must be a date in YYYY-MM-DD format")
		}
	}
	if end.Before(start) {
		return echo.NewHTTPError(http.StatusBadRequest, "end must not be before start")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return echo.NewHTTPError(http.StatusBadRequest, "date range too large")
	}

	tz := c.QueryParam("tz")
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid time zone")
	}

	seq, err := h.resolver.ComputeSlots(c.Request().Context(), id, start, end, loc)
	if errors.Is(err, provider.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "provider not found")
	}
	if err != nil {
		return err
	}

	slots := slices.Collect(seq)
	if slots == nil {
		slots = []Slot{}
	}
	return c.JSON(http.StatusOK, slotsResponse{ProviderID: id, TimeZone: loc.String(), Slots: slots})
}
