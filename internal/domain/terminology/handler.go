package terminology

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/namaste/internal/platform/fhir"
	"github.com/ehr/namaste/internal/platform/telemetry"
	"github.com/ehr/namaste/pkg/pagination"
)

// StatusMessage is returned from the root endpoint so clients can check liveness.
const StatusMessage = "NAMAST-E to ICD-11 Terminology Service is running!"

// TotalCountHeader carries the number of matches before pagination.
const TotalCountHeader = "X-Total-Count"

// Handler provides REST endpoints for term search and FHIR generation.
type Handler struct {
	svc     *Service
	metrics *telemetry.Provider
}

// NewHandler creates a new terminology handler. metrics may be nil.
func NewHandler(svc *Service, metrics *telemetry.Provider) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

// RegisterRoutes registers the terminology routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)

	api := e.Group("/api")
	api.GET("/search", h.Search)
	api.POST("/generate_fhir", h.GenerateFHIR)
	api.GET("/terms/:name", h.GetTerm)
}

// Root handles GET /.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": StatusMessage})
}

// Search handles GET /api/search?q=...
func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	page := pagination.FromContext(c)
	results, total, err := h.svc.Search(c.Request().Context(), query, page)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	h.metrics.ObserveSearch(len(results))

	c.Response().Header().Set(TotalCountHeader, strconv.Itoa(total))
	if page.HasNext(total) {
		c.Response().Header().Set("Link", nextLink(c, page))
	}
	return c.JSON(http.StatusOK, results)
}

// nextLink points at the page after the current one, keeping the other query parameters.
func nextLink(c echo.Context, page pagination.Params) string {
	u := *c.Request().URL
	q := u.Query()
	q.Del("_count")
	q.Del("_offset")
	q.Set("limit", strconv.Itoa(page.Limit))
	q.Set("offset", strconv.Itoa(page.Offset+page.Limit))
	return fmt.Sprintf(`<%s?%s>; rel="next"`, u.Path, q.Encode())
}

// GenerateFHIR handles POST /api/generate_fhir.
func (h *Handler) GenerateFHIR(c echo.Context) error {
	var term Term
	if err := c.Bind(&term); err != nil {
		h.metrics.ObserveGenerate(telemetry.OutcomeInvalid)
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return c.JSON(he.Code, fhir.NewOperationOutcome("error", "too-costly", "request body too large"))
		}
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome("error", "structure", "invalid request body"))
	}

	list, err := h.svc.GenerateFHIR(c.Request().Context(), &term)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			h.metrics.ObserveGenerate(telemetry.OutcomeInvalid)
			return c.JSON(http.StatusUnprocessableEntity, fhir.RequiredOutcome(ve.Fields))
		}
		h.metrics.ObserveGenerate(telemetry.OutcomeError)
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	h.metrics.ObserveGenerate(telemetry.OutcomeOK)
	return c.JSON(http.StatusOK, list)
}

// GetTerm handles GET /api/terms/:name.
func (h *Handler) GetTerm(c echo.Context) error {
	name := c.Param("name")
	// echo matches on the escaped path only when it differs from the decoded one
	// (an encoded "/" for instance); params are then still escaped.
	if c.Request().URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}
	term, err := h.svc.Lookup(c.Request().Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Term", name))
		case errors.Is(err, ErrInvalidTerm):
			return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome("error", "required", err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, term)
}
