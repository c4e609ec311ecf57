package triage

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/groot/groot/internal/platform/auth"
	"github.com/groot/groot/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/growth", h.Growth)
	g.POST("/recommendation", h.Recommendation)
	g.POST("/risk", h.Risk)
	g.POST("/vitals", h.Vitals)

	doctors := g.Group("/assessments", auth.RequireRole(auth.RoleDoctor))
	doctors.GET("", h.ListAssessments)
	doctors.GET("/:id", h.GetAssessment)
}

func (h *Handler) Growth(c echo.Context) error {
	var p PatientData
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.PredictGrowth(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Recommendation(c echo.Context) error {
	var p PatientData
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.Recommend(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Risk(c echo.Context) error {
	var r RiskRequest
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.AssessRisk(c.Request().Context(), r)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Vitals(c echo.Context) error {
	var v VitalsRequest
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.CheckVitals(c.Request().Context(), v)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListAssessments(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListAssessments(c.Request().Context(), c.QueryParam("kind"), p.Limit, p.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Assessment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) GetAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAssessment(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func toHTTPError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
