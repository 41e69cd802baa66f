package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rdcourtney/flatmap/api/internal/annotation"
	"github.com/rdcourtney/flatmap/api/internal/bundle"
	"github.com/rdcourtney/flatmap/api/internal/config"
	"github.com/rdcourtney/flatmap/api/internal/facets"
	"github.com/rdcourtney/flatmap/api/internal/filter"
	"github.com/rdcourtney/flatmap/api/internal/logger"
	"github.com/rdcourtney/flatmap/api/internal/models"
	"github.com/rdcourtney/flatmap/api/internal/pathways"
	"github.com/rdcourtney/flatmap/api/internal/repository"
	"github.com/rdcourtney/flatmap/api/internal/style"
)

// Service-level errors
var (
	ErrMapNotFound     = errors.New("flatmap not found")
	ErrFeatureNotFound = errors.New("feature not found")
	ErrFacetNotFound   = errors.New("facet not found")
	ErrInvalidFacet    = errors.New("invalid facet definition")
)

// ViewerSession is the per-map state an embedding viewer works against: the
// indexed annotation store, the map's stylesheet, the facet registry pushing
// compiled filters into it, and the connectivity model with its flight-path
// overlay. Built once per map and cached.
type ViewerSession struct {
	Map        models.Flatmap
	Store      *annotation.Store
	Stylesheet *style.Stylesheet
	Registry   *facets.Registry
	Pathways   *pathways.Model
	Overlay    *pathways.FlightPathOverlay
}

// BundleLoader loads a flatmap bundle directory. Injectable for tests.
type BundleLoader func(dir string) (*bundle.Bundle, error)

// ViewerService defines the business logic for serving flatmap viewer
// sessions and the queries embedding viewers run against them.
type ViewerService interface {
	// ListMaps lists published flatmaps, optionally restricted to a taxon.
	ListMaps(ctx context.Context, taxon string) ([]models.Flatmap, error)

	// GetMap finds one flatmap by id, uuid or name.
	// Returns ErrMapNotFound when no published map matches.
	GetMap(ctx context.Context, identifier string) (*models.Flatmap, error)

	// Session returns the viewer session for a map, building and caching
	// it on first use. Returns ErrMapNotFound for unknown maps.
	Session(ctx context.Context, identifier string) (*ViewerSession, error)

	// WarmUp builds sessions for every published map, with bounded
	// concurrency. Used at startup when WARM_CACHE is set.
	WarmUp(ctx context.Context) error

	// Annotation returns one feature's annotation.
	// Returns ErrFeatureNotFound for unknown feature ids.
	Annotation(ctx context.Context, identifier string, featureID models.FeatureID) (*models.Annotation, error)

	// ResolveFeatures resolves external identifiers to feature ids via the
	// store's resolution chain. Empty results are not an error.
	ResolveFeatures(ctx context.Context, identifier string, externalIDs []string) ([]models.FeatureID, error)

	// PropertyCatalog returns the map's observed property values.
	PropertyCatalog(ctx context.Context, identifier string) (map[string][]string, error)

	// RegisterFacet builds a facet from its definition and registers it.
	// Returns ErrInvalidFacet for definitions naming no buildable facet.
	RegisterFacet(ctx context.Context, identifier string, def FacetDefinition) error

	// UnregisterFacet removes a facet.
	// Returns ErrFacetNotFound when the facet is not registered.
	UnregisterFacet(ctx context.Context, identifier, facetID string) error

	// RefreshFacets recomputes the combined filter and re-pushes it.
	RefreshFacets(ctx context.Context, identifier string) (*filter.PropertiesFilter, error)

	// FacetIDs lists the registered facets in registration order.
	FacetIDs(ctx context.Context, identifier string) ([]string, error)

	// CombinedFilter returns the current combined facet filter.
	CombinedFilter(ctx context.Context, identifier string) (*filter.PropertiesFilter, error)

	// MatchProperties evaluates the combined filter against a properties
	// dictionary; the in-memory twin of the compiled style filter.
	MatchProperties(ctx context.Context, identifier string, props filter.Properties) (bool, error)

	// VisiblePathways returns the flight paths passing the current
	// visibility filter and the union of their member feature ids.
	VisiblePathways(ctx context.Context, identifier string) ([]bundle.Path, []models.FeatureID, error)

	// CompiledStyle returns the full compiled style document.
	CompiledStyle(ctx context.Context, identifier string) ([]map[string]any, error)

	// CachedSessions reports how many viewer sessions are cached.
	CachedSessions() int
}

// viewerService is the concrete implementation of ViewerService.
type viewerService struct {
	repo     repository.FlatmapRepository
	log      *logger.Logger
	loader   BundleLoader
	root     string
	warmN    int
	sessions *lru.Cache[string, *ViewerSession]
}

// NewViewerService creates a ViewerService with an LRU session cache sized
// from configuration.
func NewViewerService(repo repository.FlatmapRepository, cfg config.FlatmapConfig, log *logger.Logger) (ViewerService, error) {
	return newViewerService(repo, cfg, bundle.Load, log)
}

// NewViewerServiceWithLoader is NewViewerService with an injected bundle
// loader, for tests.
func NewViewerServiceWithLoader(repo repository.FlatmapRepository, cfg config.FlatmapConfig, loader BundleLoader, log *logger.Logger) (ViewerService, error) {
	return newViewerService(repo, cfg, loader, log)
}

func newViewerService(repo repository.FlatmapRepository, cfg config.FlatmapConfig, loader BundleLoader, log *logger.Logger) (ViewerService, error) {
	cache, err := lru.New[string, *ViewerSession](cfg.SessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &viewerService{
		repo:     repo,
		log:      log,
		loader:   loader,
		root:     cfg.Root,
		warmN:    cfg.WarmConcurrency,
		sessions: cache,
	}, nil
}

func (s *viewerService) ListMaps(ctx context.Context, taxon string) ([]models.Flatmap, error) {
	if taxon != "" {
		taxon = annotation.NormalizeIdentifier(taxon)
	}

	maps, err := s.repo.FindAll(ctx, taxon)
	if err != nil {
		s.log.Error("Failed to list flatmaps", err, map[string]interface{}{
			"taxon": taxon,
		})
		return nil, fmt.Errorf("failed to list flatmaps: %w", err)
	}

	s.log.Debug("Flatmaps listed", map[string]interface{}{
		"taxon": taxon,
		"count": len(maps),
	})
	return maps, nil
}

func (s *viewerService) GetMap(ctx context.Context, identifier string) (*models.Flatmap, error) {
	fm, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		s.log.Error("Failed to query flatmap", err, map[string]interface{}{
			"map": identifier,
		})
		return nil, fmt.Errorf("failed to query flatmap: %w", err)
	}
	if fm == nil {
		return nil, ErrMapNotFound
	}
	return fm, nil
}

func (s *viewerService) Session(ctx context.Context, identifier string) (*ViewerSession, error) {
	// Identifier aliases (id, uuid, name) hit the cache only under the
	// uuid key, so resolve the map first. Registry lookups are cheap next
	// to a session build.
	fm, err := s.GetMap(ctx, identifier)
	if err != nil {
		return nil, err
	}

	key := fm.UUID.String()
	if session, ok := s.sessions.Get(key); ok {
		return session, nil
	}

	session, err := s.buildSession(fm)
	if err != nil {
		return nil, err
	}
	s.sessions.Add(key, session)
	return session, nil
}

// buildSession does the one-time indexing pass for a map: load the bundle,
// index every annotation in dictionary order, and wire the facet registry
// between the stylesheet and the flight-path overlay.
func (s *viewerService) buildSession(fm *models.Flatmap) (*ViewerSession, error) {
	mapLog := s.log.WithMap(fm.UUID.String())

	b, err := s.loader(filepath.Join(s.root, fm.BundlePath))
	if err != nil {
		mapLog.Error("Failed to load flatmap bundle", err, map[string]interface{}{
			"bundle": fm.BundlePath,
		})
		return nil, fmt.Errorf("failed to load bundle for map %s: %w", fm.UUID, err)
	}

	pathModel := pathways.NewModel(b.Paths)

	store := annotation.NewStore(fm.Style, pathModel, mapLog)
	for _, ann := range b.Annotations {
		store.IndexAnnotation(ann)
	}

	layers := b.Layers
	if len(layers) == 0 {
		layers = defaultLayers(fm.Style)
	}
	stylesheet := style.NewStylesheet(layers)

	registry := facets.NewRegistry(stylesheet, stylesheet.FilterableLayerIDs(), mapLog)
	overlay := pathways.NewFlightPathOverlay(pathModel)
	registry.AddConsumer(overlay)

	mapLog.Info("Viewer session built", map[string]interface{}{
		"annotations": store.Len(),
		"paths":       len(pathModel.Paths()),
		"layers":      len(layers),
		"style":       fm.Style,
	})

	return &ViewerSession{
		Map:        *fm,
		Store:      store,
		Stylesheet: stylesheet,
		Registry:   registry,
		Pathways:   pathModel,
		Overlay:    overlay,
	}, nil
}

// defaultLayers is the stylesheet for bundles published before layer lists
// were included.
func defaultLayers(mapStyle string) []models.StyleLayer {
	layers := []models.StyleLayer{
		{ID: "background", Kind: models.LayerBackground},
		{ID: "features", Kind: models.LayerFeatures},
		{ID: "pathways", Kind: models.LayerPathways},
	}
	if mapStyle == models.StyleCentreline {
		layers = append(layers, models.StyleLayer{ID: "centrelines", Kind: models.LayerCentrelines})
	}
	return layers
}

func (s *viewerService) WarmUp(ctx context.Context) error {
	maps, err := s.repo.FindAll(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list flatmaps for warm-up: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.warmN)
	for _, fm := range maps {
		fm := fm
		g.Go(func() error {
			_, err := s.Session(ctx, fm.UUID.String())
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("session warm-up failed: %w", err)
	}

	s.log.Info("Session cache warmed", map[string]interface{}{
		"maps": len(maps),
	})
	return nil
}

func (s *viewerService) Annotation(ctx context.Context, identifier string, featureID models.FeatureID) (*models.Annotation, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, err
	}

	ann := session.Store.Annotation(featureID)
	if ann == nil {
		return nil, ErrFeatureNotFound
	}
	return ann, nil
}

func (s *viewerService) ResolveFeatures(ctx context.Context, identifier string, externalIDs []string) ([]models.FeatureID, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, err
	}

	featureIDs := session.Store.ResolveFeatureIDs(externalIDs)
	s.log.Debug("Resolved external identifiers", map[string]interface{}{
		"map":       session.Map.UUID.String(),
		"requested": len(externalIDs),
		"resolved":  len(featureIDs),
	})
	return featureIDs, nil
}

func (s *viewerService) PropertyCatalog(ctx context.Context, identifier string) (map[string][]string, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return session.Store.PropertyValueCatalog(), nil
}

func (s *viewerService) RegisterFacet(ctx context.Context, identifier string, def FacetDefinition) error {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return err
	}

	facet, err := buildFacet(def)
	if err != nil {
		return err
	}
	session.Registry.Register(facet)
	return nil
}

func (s *viewerService) UnregisterFacet(ctx context.Context, identifier, facetID string) error {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return err
	}

	if !session.Registry.Unregister(facetID) {
		return fmt.Errorf("%w: %s", ErrFacetNotFound, facetID)
	}
	return nil
}

func (s *viewerService) RefreshFacets(ctx context.Context, identifier string) (*filter.PropertiesFilter, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return session.Registry.Refresh(), nil
}

func (s *viewerService) FacetIDs(ctx context.Context, identifier string) ([]string, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return session.Registry.FacetIDs(), nil
}

func (s *viewerService) CombinedFilter(ctx context.Context, identifier string) (*filter.PropertiesFilter, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return session.Registry.CombinedFilter(), nil
}

func (s *viewerService) MatchProperties(ctx context.Context, identifier string, props filter.Properties) (bool, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return false, err
	}
	return session.Registry.CombinedFilter().Match(props), nil
}

func (s *viewerService) VisiblePathways(ctx context.Context, identifier string) ([]bundle.Path, []models.FeatureID, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, nil, err
	}
	return session.Overlay.VisiblePaths(), session.Overlay.VisibleFeatureIDs(), nil
}

func (s *viewerService) CachedSessions() int {
	return s.sessions.Len()
}

func (s *viewerService) CompiledStyle(ctx context.Context, identifier string) ([]map[string]any, error) {
	session, err := s.Session(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return session.Stylesheet.Compile(), nil
}
