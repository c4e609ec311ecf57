package knowledge

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/groot/groot/internal/platform/auth"
	"github.com/groot/groot/internal/platform/vectorstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts POST /chat on chat and the search, stats and ingest
// routes on kb.
func (h *Handler) RegisterRoutes(chat *echo.Group, kb *echo.Group) {
	chat.POST("", h.Chat)
	chat.POST("/", h.Chat)

	kb.POST("/search", h.Search)
	kb.GET("/stats", h.Stats, auth.RequireRole(auth.RoleDoctor))
	kb.POST("/ingest", h.Ingest, auth.RequireRole(auth.RoleAdmin))
}

type chatRequest struct {
	Message string `json:"Message"`
}

func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.Chat(c.Request().Context(), req.Message)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

func (h *Handler) Search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	topK := DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	matches, err := h.svc.Search(c.Request().Context(), req.Query, topK)
	if err != nil {
		return toHTTPError(err)
	}
	if matches == nil {
		matches = []vectorstore.Match{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"matches": matches})
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Ingest(c echo.Context) error {
	report, err := h.svc.Ingest(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func toHTTPError(err error) error {
	if errors.Is(err, ErrNotConfigured) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
