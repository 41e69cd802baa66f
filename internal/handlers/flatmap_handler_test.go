package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/rdcourtney/flatmap/api/internal/errors"
)

func TestListMaps_All(t *testing.T) {
	router := setupMapTestRouter(t, &stubFlatmapRepository{maps: testMaps()}, viewerTestBundle())

	w := doRequest(t, router, http.MethodGet, "/api/v1/maps", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var response FlatmapListResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	require.Equal(t, 2, response.Count)
	assert.Equal(t, "human-male", response.Maps[0].Name)
	assert.Equal(t, "6c47a8e2-94f5-4c43-8b7f-aa8f5b4b13c8", response.Maps[0].UUID)
	assert.Equal(t, "Human male", response.Maps[0].Describes)
	assert.Equal(t, "2025-03-14T09:00:00Z", response.Maps[0].CreatedAt)
	assert.Equal(t, "rat", response.Maps[1].Name)
	assert.Empty(t, response.Maps[1].Describes)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestListMaps_TaxonFilter(t *testing.T) {
	router := setupMapTestRouter(t, &stubFlatmapRepository{maps: testMaps()}, viewerTestBundle())

	// The taxon query value is normalized before the lookup.
	w := doRequest(t, router, http.MethodGet, "/api/v1/maps?taxon=ncbitaxon:10114", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var response FlatmapListResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	require.Equal(t, 1, response.Count)
	assert.Equal(t, "rat", response.Maps[0].Name)
}

func TestListMaps_RepositoryFailure(t *testing.T) {
	repo := &stubFlatmapRepository{err: errors.New("connection refused")}
	router := setupMapTestRouter(t, repo, viewerTestBundle())

	w := doRequest(t, router, http.MethodGet, "/api/v1/maps", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response apierrors.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, apierrors.ErrInternalServer, response.Error.Code)
}

func TestGetMap_Success(t *testing.T) {
	router := setupMapTestRouter(t, &stubFlatmapRepository{maps: testMaps()}, viewerTestBundle())

	w := doRequest(t, router, http.MethodGet, "/api/v1/maps/human-male", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var response FlatmapDetailResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.Equal(t, "human-male", response.Map.Name)
	assert.Equal(t, "NCBITAXON:9606", response.Map.Taxon)
	assert.Equal(t, "1.4", response.Map.Version)

	// Bundles without a layer list get the default stylesheet.
	require.Len(t, response.Style, 3)
	assert.Equal(t, "background", response.Style[0]["id"])
	assert.Equal(t, "features", response.Style[1]["id"])
	assert.Equal(t, "pathways", response.Style[2]["id"])
}

func TestGetMap_ByUUID(t *testing.T) {
	router := setupMapTestRouter(t, &stubFlatmapRepository{maps: testMaps()}, viewerTestBundle())

	w := doRequest(t, router, http.MethodGet, "/api/v1/maps/0b0f9c25-8a3f-4f86-9d21-3fb0c5f8a01e", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var response FlatmapDetailResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "rat", response.Map.Name)
}

func TestGetMap_HandlerNotFound(t *testing.T) {
	router := setupMapTestRouter(t, &stubFlatmapRepository{maps: testMaps()}, viewerTestBundle())

	w := doRequest(t, router, http.MethodGet, "/api/v1/maps/no-such-map", "")

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response apierrors.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, apierrors.ErrNotFound, response.Error.Code)
	assert.Equal(t, "No map found for this identifier", response.Error.Message)
	assert.NotEmpty(t, response.Error.RequestID)
}
