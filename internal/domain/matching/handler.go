package matching

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carematch/carematch/internal/platform/auth"
)

type Handler struct {
	ranker *Ranker
}

func NewHandler(ranker *Ranker) *Handler {
	return &Handler{ranker: ranker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleCoordinator))
	g.GET("/case-sessions/:id/matches", h.GetMatches)
}

type matchesResponse struct {
	CaseSessionID uuid.UUID     `json:"case_session_id"`
	Results       []MatchResult `json:"results"`
}

func (h *Handler) GetMatches(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	results, err := h.ranker.Match(c.Request().Context(), id)
	if err != nil {
		var perr *PreconditionError
		switch {
		case errors.As(err, &perr):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, perr.Error())
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "case session not found")
		}
		return err
	}
	if results == nil {
		results = []MatchResult{}
	}
	return c.JSON(http.StatusOK, matchesResponse{CaseSessionID: id, Results: results})
}
