package accesslog

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/groot/groot/pkg/pagination"
)

// exportLimit caps a single CSV export.
const exportLimit = 10000

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the trail under g, which the caller restricts to
// administrators.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/access-log", h.Search)
	g.GET("/access-log/export", h.ExportCSV)
}

func (h *Handler) Search(c echo.Context) error {
	params, err := parseSearchParams(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	params.Limit, params.Offset = pg.Limit, pg.Offset

	entries, total, err := h.store.Search(c.Request().Context(), params)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

// ExportCSV streams the matching entries, newest first.
func (h *Handler) ExportCSV(c echo.Context) error {
	params, err := parseSearchParams(c)
	if err != nil {
		return err
	}
	params.Limit = exportLimit

	entries, _, err := h.store.Search(c.Request().Context(), params)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=\"access_log_%s.csv\"", time.Now().UTC().Format("20060102_150405")))
	c.Response().WriteHeader(http.StatusOK)
	return WriteCSV(c.Response(), entries)
}

// WriteCSV renders entries with a header row.
func WriteCSV(w io.Writer, entries []*Entry) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "created_at", "doctor_id", "license_id", "roles",
		"resource_type", "resource_id", "action", "method", "path", "status_code",
		"ip_address", "user_agent", "request_id"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("access log csv: write header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			csvCell(e.DoctorID),
			csvCell(e.LicenseID),
			csvCell(strings.Join(e.Roles, ";")),
			csvCell(e.ResourceType),
			csvCell(e.ResourceID),
			csvCell(e.Action),
			csvCell(e.Method),
			csvCell(e.Path),
			strconv.Itoa(e.StatusCode),
			csvCell(e.IPAddress),
			csvCell(e.UserAgent),
			csvCell(e.RequestID),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("access log csv: write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell quotes a value that a spreadsheet would otherwise evaluate as a
// formula.
func csvCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

func parseSearchParams(c echo.Context) (SearchParams, error) {
	p := SearchParams{
		DoctorID:     c.QueryParam("doctor_id"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   c.QueryParam("resource_id"),
		Action:       c.QueryParam("action"),
	}
	for name, dst := range map[string]**time.Time{"since": &p.Since, "until": &p.Until} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
		}
		*dst = &t
	}
	return p, nil
}
