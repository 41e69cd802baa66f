package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/rdcourtney/flatmap/api/internal/errors"
	"github.com/rdcourtney/flatmap/api/internal/middleware"
	"github.com/rdcourtney/flatmap/api/internal/models"
	"github.com/rdcourtney/flatmap/api/internal/services"
)

// FlatmapHandler handles flatmap registry HTTP requests.
type FlatmapHandler struct {
	service services.ViewerService
}

// NewFlatmapHandler creates a new FlatmapHandler instance.
func NewFlatmapHandler(service services.ViewerService) *FlatmapHandler {
	return &FlatmapHandler{
		service: service,
	}
}

// FlatmapListResponse represents the response for the map list endpoint.
type FlatmapListResponse struct {
	Maps  []FlatmapData `json:"maps"`
	Count int           `json:"count"`
}

// FlatmapData represents one flatmap in API responses.
type FlatmapData struct {
	UUID          string `json:"uuid"`
	Name          string `json:"name"`
	Describes     string `json:"describes,omitempty"`
	Taxon         string `json:"taxon"`
	BiologicalSex string `json:"biologicalSex,omitempty"`
	Style         string `json:"style"`
	Version       string `json:"version"`
	CreatedAt     string `json:"createdAt"`
	ID            uint   `json:"id"`
}

// FlatmapDetailResponse is the map detail with its compiled style document,
// which is what an embedding viewer hands to the renderer on load.
type FlatmapDetailResponse struct {
	Map   FlatmapData      `json:"map"`
	Style []map[string]any `json:"style"`
}

// List handles GET /api/v1/maps.
// It lists published flatmaps, optionally restricted to a taxon.
func (h *FlatmapHandler) List(c *gin.Context) {
	log := middleware.GetLogger(c)

	taxon := c.Query("taxon")
	if log != nil {
		log.Info("Processing map list request", map[string]interface{}{
			"taxon": taxon,
		})
	}

	maps, err := h.service.ListMaps(c.Request.Context(), taxon)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to list maps", err)
		return
	}

	responseMaps := make([]FlatmapData, 0, len(maps))
	for i := range maps {
		responseMaps = append(responseMaps, mapFlatmapToDTO(&maps[i]))
	}

	c.JSON(http.StatusOK, FlatmapListResponse{
		Maps:  responseMaps,
		Count: len(responseMaps),
	})
}

// Get handles GET /api/v1/maps/:mapID.
// It returns the map's registry entry together with its compiled style.
func (h *FlatmapHandler) Get(c *gin.Context) {
	mapID := c.Param("mapID")

	fm, err := h.service.GetMap(c.Request.Context(), mapID)
	if err != nil {
		if errors.Is(err, services.ErrMapNotFound) {
			apierrors.NotFound(c, "No map found for this identifier")
			return
		}
		apierrors.InternalServerError(c, "Failed to query map", err)
		return
	}

	style, err := h.service.CompiledStyle(c.Request.Context(), mapID)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to compile map style", err)
		return
	}

	c.JSON(http.StatusOK, FlatmapDetailResponse{
		Map:   mapFlatmapToDTO(fm),
		Style: style,
	})
}

// mapFlatmapToDTO converts a Flatmap model to its response DTO, flattening
// the optional pointer fields.
func mapFlatmapToDTO(fm *models.Flatmap) FlatmapData {
	dto := FlatmapData{
		ID:        fm.ID,
		UUID:      fm.UUID.String(),
		Name:      fm.Name,
		Taxon:     fm.Taxon,
		Style:     fm.Style,
		Version:   fm.Version,
		CreatedAt: fm.CreatedAt.UTC().Format(time.RFC3339),
	}

	if fm.Describes != nil {
		dto.Describes = *fm.Describes
	}
	if fm.BiologicalSex != nil {
		dto.BiologicalSex = *fm.BiologicalSex
	}

	return dto
}
