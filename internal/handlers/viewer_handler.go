package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/rdcourtney/flatmap/api/internal/annotation"
	"github.com/rdcourtney/flatmap/api/internal/bundle"
	apierrors "github.com/rdcourtney/flatmap/api/internal/errors"
	"github.com/rdcourtney/flatmap/api/internal/filter"
	"github.com/rdcourtney/flatmap/api/internal/middleware"
	"github.com/rdcourtney/flatmap/api/internal/models"
	"github.com/rdcourtney/flatmap/api/internal/services"
)

// ViewerHandler handles the per-map viewer session endpoints: annotation
// lookups, identifier resolution, facet management and filter evaluation.
type ViewerHandler struct {
	service services.ViewerService
}

// NewViewerHandler creates a new ViewerHandler instance.
func NewViewerHandler(service services.ViewerService) *ViewerHandler {
	return &ViewerHandler{
		service: service,
	}
}

// AnnotationResponse represents the response for the annotation endpoint.
type AnnotationResponse struct {
	Annotation *models.Annotation `json:"annotation"`
}

// FeaturesRequest represents the query parameters for the features endpoint.
type FeaturesRequest struct {
	IDs string `form:"ids" binding:"required"`
}

// FeaturesResponse represents the response for the features endpoint.
type FeaturesResponse struct {
	FeatureIDs []models.FeatureID `json:"featureIds"`
	Count      int                `json:"count"`
}

// PropertiesResponse represents the response for the property catalog.
type PropertiesResponse struct {
	Properties map[string][]string `json:"properties"`
}

// FilterResponse carries the combined facet filter in both of its forms: the
// predicate tree and the compiled renderer expression.
type FilterResponse struct {
	Facets    []string               `json:"facets"`
	Universal bool                   `json:"universal"`
	Filter    any                    `json:"filter"`
	Compiled  filter.StyleExpression `json:"compiled"`
}

// MatchRequest represents the body of the filter match endpoint.
type MatchRequest struct {
	Properties filter.Properties `json:"properties" binding:"required"`
}

// MatchResponse represents the response of the filter match endpoint.
type MatchResponse struct {
	Visible bool `json:"visible"`
}

// PathwaysRequest represents the query parameters for the pathways endpoint.
type PathwaysRequest struct {
	Models string `form:"models"`
}

// PathwaysResponse represents the response for the pathways endpoint.
type PathwaysResponse struct {
	Paths      []PathData         `json:"paths"`
	FeatureIDs []models.FeatureID `json:"featureIds"`
	Count      int                `json:"count"`
}

// PathData represents one flight path in API responses.
type PathData struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind,omitempty"`
	Label      string             `json:"label,omitempty"`
	Nerves     []string           `json:"nerves,omitempty"`
	Sckan      *bool              `json:"sckan,omitempty"`
	FeatureIDs []models.FeatureID `json:"featureIds"`
}

// Annotation handles GET /api/v1/maps/:mapID/annotations/:featureID.
func (h *ViewerHandler) Annotation(c *gin.Context) {
	mapID := c.Param("mapID")

	featureID, err := strconv.Atoi(c.Param("featureID"))
	if err != nil || featureID < 1 {
		apierrors.BadRequest(c, "Feature id must be a positive integer", nil)
		return
	}

	ann, err := h.service.Annotation(c.Request.Context(), mapID, models.FeatureID(featureID))
	if err != nil {
		h.respondSessionError(c, err, "Failed to load annotation")
		return
	}

	c.JSON(http.StatusOK, AnnotationResponse{Annotation: ann})
}

// Features handles GET /api/v1/maps/:mapID/features.
// It resolves external identifiers (anatomical terms, dataset ids, path model
// ids) to the map's feature ids.
func (h *ViewerHandler) Features(c *gin.Context) {
	log := middleware.GetLogger(c)
	mapID := c.Param("mapID")

	var req FeaturesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	externalIDs := splitList(req.IDs)
	if log != nil {
		log.Info("Processing feature resolution request", map[string]interface{}{
			"map": mapID,
			"ids": len(externalIDs),
		})
	}

	featureIDs, err := h.service.ResolveFeatures(c.Request.Context(), mapID, externalIDs)
	if err != nil {
		h.respondSessionError(c, err, "Failed to resolve features")
		return
	}

	c.JSON(http.StatusOK, FeaturesResponse{
		FeatureIDs: featureIDs,
		Count:      len(featureIDs),
	})
}

// Properties handles GET /api/v1/maps/:mapID/properties.
func (h *ViewerHandler) Properties(c *gin.Context) {
	mapID := c.Param("mapID")

	catalog, err := h.service.PropertyCatalog(c.Request.Context(), mapID)
	if err != nil {
		h.respondSessionError(c, err, "Failed to load property catalog")
		return
	}

	c.JSON(http.StatusOK, PropertiesResponse{Properties: catalog})
}

// RegisterFacet handles POST /api/v1/maps/:mapID/facets.
func (h *ViewerHandler) RegisterFacet(c *gin.Context) {
	mapID := c.Param("mapID")

	var def services.FacetDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid facet definition", nil)
		return
	}

	if err := h.service.RegisterFacet(c.Request.Context(), mapID, def); err != nil {
		if errors.Is(err, services.ErrInvalidFacet) {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		h.respondSessionError(c, err, "Failed to register facet")
		return
	}

	h.respondFilter(c, mapID, http.StatusCreated)
}

// UnregisterFacet handles DELETE /api/v1/maps/:mapID/facets/:facetID.
func (h *ViewerHandler) UnregisterFacet(c *gin.Context) {
	mapID := c.Param("mapID")
	facetID := c.Param("facetID")

	if err := h.service.UnregisterFacet(c.Request.Context(), mapID, facetID); err != nil {
		if errors.Is(err, services.ErrFacetNotFound) {
			apierrors.NotFound(c, "No facet registered with this id")
			return
		}
		h.respondSessionError(c, err, "Failed to unregister facet")
		return
	}

	h.respondFilter(c, mapID, http.StatusOK)
}

// RefreshFacets handles POST /api/v1/maps/:mapID/facets/refresh.
// Facet toggles are batched; this recomputes the combined filter and pushes
// it to the stylesheet and the flight-path overlay.
func (h *ViewerHandler) RefreshFacets(c *gin.Context) {
	mapID := c.Param("mapID")

	if _, err := h.service.RefreshFacets(c.Request.Context(), mapID); err != nil {
		h.respondSessionError(c, err, "Failed to refresh facets")
		return
	}

	h.respondFilter(c, mapID, http.StatusOK)
}

// Filter handles GET /api/v1/maps/:mapID/filter.
func (h *ViewerHandler) Filter(c *gin.Context) {
	h.respondFilter(c, c.Param("mapID"), http.StatusOK)
}

// MatchFilter handles POST /api/v1/maps/:mapID/filter/match.
// It evaluates the combined facet filter against a posted properties
// dictionary, the same predicate the compiled style expressions encode.
func (h *ViewerHandler) MatchFilter(c *gin.Context) {
	mapID := c.Param("mapID")

	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid properties dictionary", nil)
		return
	}

	visible, err := h.service.MatchProperties(c.Request.Context(), mapID, req.Properties)
	if err != nil {
		h.respondSessionError(c, err, "Failed to evaluate filter")
		return
	}

	c.JSON(http.StatusOK, MatchResponse{Visible: visible})
}

// Pathways handles GET /api/v1/maps/:mapID/pathways.
// It lists the flight paths passing the current visibility filter, optionally
// restricted to the given path model identifiers.
func (h *ViewerHandler) Pathways(c *gin.Context) {
	mapID := c.Param("mapID")

	var req PathwaysRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	paths, featureIDs, err := h.service.VisiblePathways(c.Request.Context(), mapID)
	if err != nil {
		h.respondSessionError(c, err, "Failed to list pathways")
		return
	}

	if req.Models != "" {
		paths, featureIDs = restrictPaths(paths, splitList(req.Models))
	}

	responsePaths := make([]PathData, 0, len(paths))
	for _, p := range paths {
		responsePaths = append(responsePaths, mapPathToDTO(p))
	}

	c.JSON(http.StatusOK, PathwaysResponse{
		Paths:      responsePaths,
		FeatureIDs: featureIDs,
		Count:      len(responsePaths),
	})
}

// respondFilter writes the current combined filter in both forms. Shared by
// every facet mutation endpoint so clients always see the resulting state.
func (h *ViewerHandler) respondFilter(c *gin.Context, mapID string, status int) {
	combined, err := h.service.CombinedFilter(c.Request.Context(), mapID)
	if err != nil {
		h.respondSessionError(c, err, "Failed to load filter state")
		return
	}

	facetIDs, err := h.service.FacetIDs(c.Request.Context(), mapID)
	if err != nil {
		h.respondSessionError(c, err, "Failed to load facet state")
		return
	}

	c.JSON(status, FilterResponse{
		Facets:    facetIDs,
		Universal: combined.IsUniversal(),
		Filter:    combined.Tree(),
		Compiled:  combined.StyleFilter(),
	})
}

// respondSessionError maps service errors shared by all session-backed
// endpoints.
func (h *ViewerHandler) respondSessionError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrMapNotFound):
		apierrors.NotFound(c, "No map found for this identifier")
	case errors.Is(err, services.ErrFeatureNotFound):
		apierrors.NotFound(c, "No feature with this id")
	default:
		apierrors.InternalServerError(c, message, err)
	}
}

// restrictPaths keeps only the paths whose model id is in the requested set
// and recomputes the feature id union for the kept paths.
func restrictPaths(paths []bundle.Path, modelIDs []string) ([]bundle.Path, []models.FeatureID) {
	wanted := make(map[string]struct{}, len(modelIDs))
	for _, id := range modelIDs {
		wanted[annotation.NormalizeIdentifier(id)] = struct{}{}
	}

	kept := make([]bundle.Path, 0, len(paths))
	seen := make(map[models.FeatureID]struct{})
	featureIDs := make([]models.FeatureID, 0)
	for _, p := range paths {
		if _, ok := wanted[annotation.NormalizeIdentifier(p.ID)]; !ok {
			continue
		}
		kept = append(kept, p)
		for _, id := range p.Lines {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			featureIDs = append(featureIDs, id)
		}
	}
	sort.Slice(featureIDs, func(i, j int) bool { return featureIDs[i] < featureIDs[j] })
	return kept, featureIDs
}

// mapPathToDTO converts a bundle path to its response DTO.
func mapPathToDTO(p bundle.Path) PathData {
	return PathData{
		ID:         p.ID,
		Kind:       p.Kind,
		Label:      p.Label,
		Nerves:     p.Nerves,
		Sckan:      p.Sckan,
		FeatureIDs: p.Lines,
	}
}

// splitList parses a comma separated query value, dropping empty entries.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
