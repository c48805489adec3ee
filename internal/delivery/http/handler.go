package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/registry"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// Result limits of the registry search endpoint
const (
	DefaultResultLimit = 10
	MaxResultLimit     = 200
	SupportedVersion   = "2.1"
)

// RegistrySearcher is the read side of a registry index.
type RegistrySearcher interface {
	Search(query domain.LookupQuery, limit int) ([]domain.LookupResult, error)
	Get(id domain.NPI) (*domain.LookupResult, error)
	Size() int
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	registry RegistrySearcher
	logger   zerolog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(registry RegistrySearcher, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   logging.Component(logger, "registry_api"),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "npimatch-registry",
		"holders": h.registry.Size(),
	})
}

// SearchRegistry answers NPI Registry API searches from the local index.
// Like the public API, invalid searches are reported as HTTP 200 with an Errors list.
func (h *Handler) SearchRegistry(c *gin.Context) {
	if version := c.Query("version"); version != "" && version != SupportedVersion {
		h.searchError(c, "version", "Unsupported Version")
		return
	}

	limit := DefaultResultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxResultLimit {
			h.searchError(c, "limit", "Field limit must be a number between 1 and 200")
			return
		}
		limit = n
	}

	if raw := strings.TrimSpace(c.Query("number")); raw != "" {
		h.searchByNumber(c, raw)
		return
	}

	query, ok := queryFromParams(c)
	if !ok {
		h.searchError(c, "generic", "No valid search criteria provided")
		return
	}

	results, err := h.registry.Search(query, limit)
	if err != nil {
		h.searchError(c, "generic", err.Error())
		return
	}

	h.logger.Debug().
		Str("type", string(query.Type)).
		Str("name", query.Name()).
		Int("results", len(results)).
		Msg("registry search")

	h.respond(c, results)
}

func (h *Handler) searchByNumber(c *gin.Context, raw string) {
	id, err := domain.ParseNPI(raw)
	if err != nil {
		h.searchError(c, "number", "Field number must be 10 digits")
		return
	}
	result, err := h.registry.Get(id)
	if err != nil {
		h.respond(c, nil)
		return
	}
	h.respond(c, []domain.LookupResult{*result})
}

// queryFromParams builds a lookup query. Without enumeration_type the holder
// type follows the name parameters given.
func queryFromParams(c *gin.Context) (domain.LookupQuery, bool) {
	q := domain.LookupQuery{
		Type:             domain.ParseHolderType(c.Query("enumeration_type")),
		FirstName:        strings.TrimSpace(c.Query("first_name")),
		LastName:         strings.TrimSpace(c.Query("last_name")),
		OrganizationName: strings.TrimSpace(c.Query("organization_name")),
	}
	if q.Type == domain.HolderUnknown {
		switch {
		case q.OrganizationName != "":
			q.Type = domain.HolderOrganization
		case q.FirstName != "" || q.LastName != "":
			q.Type = domain.HolderIndividual
		}
	}
	return q, q.Searchable()
}

func (h *Handler) respond(c *gin.Context, results []domain.LookupResult) {
	resp := domain.RegistrySearchResponse{
		ResultCount: len(results),
		Results:     make([]domain.RegistryResult, len(results)),
	}
	for i := range results {
		resp.Results[i] = registry.MapToRegistryResult(&results[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) searchError(c *gin.Context, field, description string) {
	c.JSON(http.StatusOK, domain.RegistrySearchResponse{
		Errors: []domain.RegistryError{{Description: description, Field: field}},
	})
}
