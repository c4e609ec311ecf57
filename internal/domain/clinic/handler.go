package clinic

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/groot/groot/internal/platform/places"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/nearby", h.Nearby)
}

func (h *Handler) Nearby(c echo.Context) error {
	lat, err := requiredFloat(c, "lat")
	if err != nil {
		return err
	}
	lon, err := requiredFloat(c, "lon")
	if err != nil {
		return err
	}
	radius := DefaultRadius
	if raw := c.QueryParam("radius"); raw != "" {
		radius, err = strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "radius must be an integer")
		}
	}

	clinics, err := h.svc.Nearby(c.Request().Context(), lat, lon, radius)
	if err != nil {
		var ve *ValidationError
		var ue *UpstreamError
		switch {
		case errors.As(err, &ve):
			return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
		case errors.Is(err, places.ErrNotConfigured):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &ue):
			return echo.NewHTTPError(http.StatusBadGateway, "hospital lookup failed")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"clinics": clinics})
}

func requiredFloat(c echo.Context, name string) (float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a number")
	}
	return v, nil
}
