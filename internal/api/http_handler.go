package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"catalog-ranking-service/internal/cache"
	"catalog-ranking-service/internal/catalog"
	"catalog-ranking-service/internal/domain"
	"catalog-ranking-service/internal/store"
)

// SearchService resolves free-text queries and serves trending hints.
type SearchService interface {
	Search(ctx context.Context, query string, limit int) ([]int64, error)
	Hints(ctx context.Context, limit int) ([]domain.SearchQuery, error)
}

// ResponseCache caches rendered listing responses. A nil cache disables
// caching entirely.
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	catalogStore  store.CatalogStorer
	productStore  store.ProductStorer
	engine        *catalog.Engine
	search        SearchService
	cache         ResponseCache
	searchMaxHits int
	validate      *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies. cache may be
// nil.
func NewHTTPHandler(cs store.CatalogStorer, ps store.ProductStorer, engine *catalog.Engine, search SearchService, cache ResponseCache, searchMaxHits int) *HTTPHandler {
	return &HTTPHandler{
		catalogStore:  cs,
		productStore:  ps,
		engine:        engine,
		search:        search,
		cache:         cache,
		searchMaxHits: searchMaxHits,
		validate:      validator.New(),
	}
}

// RegisterRoutes mounts the service routes on the router.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/catalogs", h.CreateCatalog)
		r.Get("/catalogs/{slug}", h.GetCatalog)
		r.Get("/catalogs/{slug}/products", h.ListCatalogProducts)
		r.Post("/products", h.CreateProduct)
		r.Get("/products/{productId}", h.GetProduct)
		r.Get("/search", h.Search)
		r.Get("/search/hints", h.SearchHints)
	})
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
			http.Error(w, `{"error": "Internal server error during JSON encoding"}`, http.StatusInternalServerError)
		}
	}
}

// ProductView is a product rendered for API responses, with the derived
// pricing and stock fields computed.
type ProductView struct {
	ID               int64                     `json:"id"`
	Slug             string                    `json:"slug"`
	Name             string                    `json:"name"`
	SKU              string                    `json:"sku"`
	ShortDescription *string                   `json:"short_description,omitempty"`
	Price            float64                   `json:"price"`
	DiscountPercent  float64                   `json:"discount_percent"`
	DiscountAmount   float64                   `json:"discount_amount"`
	DiscountedPrice  float64                   `json:"discounted_price"`
	Quantity         int                       `json:"quantity"`
	Status           string                    `json:"status"`
	PopularIndex     float64                   `json:"popular_index"`
	Tags             []string                  `json:"tags"`
	Attributes       []domain.ProductAttribute `json:"attributes,omitempty"`
	HasShopStock     *bool                     `json:"has_shop_stock,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
}

func newProductView(p *domain.Product, withShopStock bool) ProductView {
	view := ProductView{
		ID:               p.ID,
		Slug:             p.Slug,
		Name:             p.Name,
		SKU:              p.SKU,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		DiscountPercent:  p.DiscountPercent,
		DiscountAmount:   p.DiscountAmount(),
		DiscountedPrice:  p.DiscountedPrice(),
		Quantity:         p.Quantity,
		Status:           p.Status(),
		PopularIndex:     p.Popular.Index,
		Tags:             p.TagSlugs,
		Attributes:       p.Attributes,
		CreatedAt:        p.CreatedAt,
	}
	if withShopStock {
		hasStock := p.HasShopStock
		view.HasShopStock = &hasStock
	}
	return view
}

// --- Catalog Handlers ---

// CatalogCreateInput defines the expected input for creating a catalog node.
type CatalogCreateInput struct {
	Slug          string           `json:"slug" validate:"required,max=255"`
	Name          string           `json:"name" validate:"required,max=255"`
	ShortName     *string          `json:"short_name" validate:"omitempty,max=255"`
	ObjectClass   string           `json:"object_class" validate:"required,oneof=category listing collection brand selection freetag"`
	ParentSlug    *string          `json:"parent_slug" validate:"omitempty,max=255"`
	ActiveFilters *json.RawMessage `json:"active_filters,omitempty" validate:"omitempty"`
}

func (h *HTTPHandler) CreateCatalog(w http.ResponseWriter, r *http.Request) {
	var input CatalogCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	var parentID *int64
	var parentClass *domain.ObjectClass
	if input.ParentSlug != nil {
		parent, err := h.catalogStore.GetCatalogBySlug(r.Context(), *input.ParentSlug)
		if err != nil {
			if errors.Is(err, store.ErrCatalogNotFound) {
				respondWithError(w, http.StatusBadRequest, "Parent catalog does not exist")
				return
			}
			log.Printf("ERROR: CreateCatalog failed to resolve parent %q: %v", *input.ParentSlug, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create catalog")
			return
		}
		parentID = &parent.ID
		parentClass = &parent.ObjectClass
	}

	node, err := domain.NewCatalog(domain.ObjectClass(input.ObjectClass), input.Slug, input.Name, parentID, parentClass)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	node.ShortName = input.ShortName
	node.ActiveFilters = input.ActiveFilters

	created, err := h.catalogStore.CreateCatalog(r.Context(), node)
	if err != nil {
		log.Printf("ERROR: CreateCatalog store operation failed: %v", err)
		if errors.Is(err, store.ErrCatalogSlugExists) {
			respondWithError(w, http.StatusConflict, store.ErrCatalogSlugExists.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to create catalog")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// CatalogResponse is a catalog node with, for listing nodes, the count of
// published products it currently holds.
type CatalogResponse struct {
	*domain.Catalog
	ProductCount *int `json:"product_count,omitempty"`
}

func (h *HTTPHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	node, err := h.catalogStore.GetCatalogBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrCatalogNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrCatalogNotFound.Error())
			return
		}
		log.Printf("ERROR: GetCatalog store operation for slug %q failed: %v", slug, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve catalog")
		return
	}

	if err := h.catalogStore.RecordCatalogView(r.Context(), node.ID); err != nil {
		log.Printf("WARN: Failed to record catalog view for %q: %v", slug, err)
	}

	response := CatalogResponse{Catalog: node}
	if node.ObjectClass == domain.ClassListing {
		count, err := h.productStore.CountPublishedByListing(r.Context(), node.Slug)
		if err != nil {
			log.Printf("ERROR: GetCatalog failed to count products for %q: %v", slug, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve catalog")
			return
		}
		response.ProductCount = &count
	}

	respondWithJSON(w, http.StatusOK, response)
}

// CatalogProductsResponse is the full listing page payload: the filtered and
// sorted products plus the facet panel computed over the unfiltered candidate
// set.
type CatalogProductsResponse struct {
	Catalog      *domain.Catalog            `json:"catalog"`
	Products     []ProductView              `json:"products"`
	TotalCount   int                        `json:"total_count"`
	Facets       []catalog.Facet            `json:"facets"`
	PriceBounds  catalog.PriceBounds        `json:"price_bounds"`
	Availability *catalog.AvailabilityFacet `json:"availability,omitempty"`
}

func (h *HTTPHandler) ListCatalogProducts(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	query := r.URL.Query()

	filters, err := parseFilters(query)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	searchQuery := query.Get("q")
	city := query.Get("city")
	sortMode := query.Get("sort")
	pageLimit := parseLimit(query.Get("limit"), 0, 1000)
	pageOffset, _ := strconv.Atoi(query.Get("offset"))
	if pageOffset < 0 {
		pageOffset = 0
	}

	// Tag-class pages vary by the listing parameter, which is not part of the
	// cache key, so they are never cached.
	cacheKey := ""
	if h.cache != nil && filters.IsZero() && searchQuery == "" && city == "" &&
		pageLimit == 0 && pageOffset == 0 && query.Get("listing") == "" {
		cacheKey = cache.Key("listing", slug, "sort", sortMode)
		var cached CatalogProductsResponse
		hit, err := h.cache.GetJSON(r.Context(), cacheKey, &cached)
		if err != nil {
			log.Printf("WARN: Listing cache lookup failed for %q: %v", slug, err)
		} else if hit {
			respondWithJSON(w, http.StatusOK, cached)
			return
		}
	}

	node, err := h.catalogStore.GetCatalogBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrCatalogNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrCatalogNotFound.Error())
			return
		}
		log.Printf("ERROR: ListCatalogProducts failed to load catalog %q: %v", slug, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve catalog")
		return
	}

	listing, filters, err := h.resolveListing(r.Context(), node, query.Get("listing"), filters)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.catalogStore.RecordCatalogView(r.Context(), node.ID); err != nil {
		log.Printf("WARN: Failed to record catalog view for %q: %v", slug, err)
	}

	listParams := store.ListByListingParams{ListingSlug: listing.Slug}
	if searchQuery != "" {
		ids, err := h.search.Search(r.Context(), searchQuery, h.searchMaxHits)
		if err != nil {
			log.Printf("ERROR: ListCatalogProducts search for %q failed: %v", searchQuery, err)
			respondWithError(w, http.StatusBadGateway, "Search is temporarily unavailable")
			return
		}
		listParams.AllowedProductIDs = ids
	}

	candidates, err := h.productStore.ListPublishedByListing(r.Context(), listParams)
	if err != nil {
		log.Printf("ERROR: ListCatalogProducts failed to load products for %q: %v", listing.Slug, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	listingAttrs, err := h.catalogStore.ListingAttributes(r.Context(), listing.ID)
	if err != nil {
		log.Printf("ERROR: ListCatalogProducts failed to load listing attributes for %q: %v", listing.Slug, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve listing attributes")
		return
	}

	// Facets, price bounds and availability counts describe the whole
	// candidate set, not the filtered page.
	response := CatalogProductsResponse{
		Catalog:     node,
		Facets:      catalog.BuildFacets(candidates, listingAttrs),
		PriceBounds: catalog.ComputePriceBounds(candidates),
	}

	withShopStock := city != ""
	if withShopStock {
		if err := h.productStore.AnnotateShopStock(r.Context(), candidates, city); err != nil {
			log.Printf("ERROR: ListCatalogProducts failed to annotate shop stock for %q: %v", city, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to resolve availability")
			return
		}
		counts := catalog.CountAvailability(candidates)
		response.Availability = &counts
		candidates = catalog.FilterByAvailability(candidates, splitList(query.Get("availability")))
	}

	filtered, err := h.engine.FilterProducts(r.Context(), candidates, listingAttrs, filters)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownFilterAttribute) || errors.Is(err, catalog.ErrInvalidRange) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("ERROR: ListCatalogProducts filtering failed for %q: %v", slug, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to filter products")
		return
	}

	catalog.SortProducts(filtered, sortMode)

	// TotalCount covers the whole filtered set, not just the returned page.
	response.TotalCount = len(filtered)
	page := filtered
	if pageOffset > 0 {
		if pageOffset >= len(page) {
			page = nil
		} else {
			page = page[pageOffset:]
		}
	}
	if pageLimit > 0 && pageLimit < len(page) {
		page = page[:pageLimit]
	}
	response.Products = make([]ProductView, 0, len(page))
	for i := range page {
		response.Products = append(response.Products, newProductView(&page[i], withShopStock))
	}

	if cacheKey != "" {
		if err := h.cache.SetJSON(r.Context(), cacheKey, response); err != nil {
			log.Printf("WARN: Failed to cache listing response for %q: %v", slug, err)
		}
	}

	respondWithJSON(w, http.StatusOK, response)
}

// resolveListing maps the requested catalog node to the listing that scopes
// its products, folding node-specific narrowing into the filter spec:
//
//   - listing: the node itself
//   - collection: the parent listing, with the node's stored active filters
//     merged in
//   - brand, selection, freetag: an explicit ?listing= is required and the
//     node's slug is added as a tag filter
func (h *HTTPHandler) resolveListing(ctx context.Context, node *domain.Catalog, listingParam string, filters catalog.Filters) (*domain.Catalog, catalog.Filters, error) {
	switch node.ObjectClass {
	case domain.ClassListing:
		return node, filters, nil

	case domain.ClassCollection:
		if node.ParentSlug == nil {
			return nil, filters, errors.New("collection has no parent listing")
		}
		listing, err := h.catalogStore.GetCatalogBySlug(ctx, *node.ParentSlug)
		if err != nil {
			return nil, filters, errors.New("collection parent listing does not exist")
		}
		if node.ActiveFilters != nil {
			var preset catalog.Filters
			if err := json.Unmarshal(*node.ActiveFilters, &preset); err != nil {
				return nil, filters, errors.New("collection has malformed active filters")
			}
			filters = mergeFilters(preset, filters)
		}
		return listing, filters, nil

	case domain.ClassBrand, domain.ClassSelection, domain.ClassFreeTag:
		if listingParam == "" {
			return nil, filters, errors.New("a listing query parameter is required for tag catalogs")
		}
		listing, err := h.catalogStore.GetCatalogBySlug(ctx, listingParam)
		if err != nil || listing.ObjectClass != domain.ClassListing {
			return nil, filters, errors.New("listing query parameter does not name a listing")
		}
		filters.Tags = append(filters.Tags, node.Slug)
		return listing, filters, nil
	}
	return nil, filters, errors.New("catalog class has no product listing")
}

// mergeFilters layers request filters on top of a preset spec. Tag and price
// entries are concatenated; attribute filters merge per slug.
func mergeFilters(preset, request catalog.Filters) catalog.Filters {
	merged := catalog.Filters{
		Tags:   append(preset.Tags, request.Tags...),
		Prices: append(preset.Prices, request.Prices...),
	}
	if len(preset.Attributes) > 0 || len(request.Attributes) > 0 {
		merged.Attributes = make(map[string]catalog.AttributeFilter, len(preset.Attributes)+len(request.Attributes))
		for slug, af := range preset.Attributes {
			merged.Attributes[slug] = af
		}
		for slug, af := range request.Attributes {
			existing := merged.Attributes[slug]
			existing.Values = append(existing.Values, af.Values...)
			existing.Ranges = append(existing.Ranges, af.Ranges...)
			merged.Attributes[slug] = existing
		}
	}
	return merged
}

// --- Product Handlers ---

// ProductCreateInput defines the expected input for creating a product.
type ProductCreateInput struct {
	Slug             string   `json:"slug" validate:"required,max=255"`
	Name             string   `json:"name" validate:"required,max=255"`
	SKU              string   `json:"sku" validate:"required,max=100"`
	ShortDescription *string  `json:"short_description" validate:"omitempty"`
	Price            float64  `json:"price" validate:"required,gte=0"`
	DiscountPercent  float64  `json:"discount_percent" validate:"gte=0,lte=100"`
	Quantity         int      `json:"quantity" validate:"gte=0"`
	Publish          *bool    `json:"publish"`
	Tags             []string `json:"tags" validate:"omitempty,dive,required"`
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	publish := true
	if input.Publish != nil {
		publish = *input.Publish
	}

	product := &domain.Product{
		Slug:             input.Slug,
		Name:             input.Name,
		SKU:              input.SKU,
		ShortDescription: input.ShortDescription,
		Price:            input.Price,
		DiscountPercent:  input.DiscountPercent,
		Quantity:         input.Quantity,
		Publish:          publish,
		TagSlugs:         input.Tags,
	}

	created, err := h.productStore.CreateProduct(r.Context(), product)
	if err != nil {
		log.Printf("ERROR: CreateProduct store operation failed: %v", err)
		switch {
		case errors.Is(err, store.ErrProductSKUExists):
			respondWithError(w, http.StatusConflict, store.ErrProductSKUExists.Error())
		case errors.Is(err, store.ErrProductSlugExists):
			respondWithError(w, http.StatusConflict, store.ErrProductSlugExists.Error())
		case errors.Is(err, store.ErrTagNotFound):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, newProductView(created, false))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		log.Printf("ERROR: GetProduct store operation for ID %d failed: %v", productID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}

	// A product page open counts as a view.
	if err := h.productStore.RecordProductView(r.Context(), productID); err != nil {
		log.Printf("WARN: Failed to record product view for ID %d: %v", productID, err)
	}

	respondWithJSON(w, http.StatusOK, newProductView(product, false))
}

// --- Search Handlers ---

func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "The q query parameter is required")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 50, h.searchMaxHits)

	ids, err := h.search.Search(r.Context(), query, limit)
	if err != nil {
		log.Printf("ERROR: Search for %q failed: %v", query, err)
		respondWithError(w, http.StatusBadGateway, "Search is temporarily unavailable")
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Query      string  `json:"query"`
		ProductIDs []int64 `json:"product_ids"`
	}{Query: query, ProductIDs: ids})
}

func (h *HTTPHandler) SearchHints(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 10, 50)

	hints, err := h.search.Hints(r.Context(), limit)
	if err != nil {
		log.Printf("ERROR: SearchHints failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve search hints")
		return
	}

	type hintView struct {
		Text          string `json:"text"`
		CountRequests int    `json:"count_requests"`
	}
	views := make([]hintView, 0, len(hints))
	for _, hint := range hints {
		views = append(views, hintView{Text: hint.Text, CountRequests: hint.CountRequests})
	}
	respondWithJSON(w, http.StatusOK, struct {
		Hints []hintView `json:"hints"`
	}{Hints: views})
}

func parseLimit(raw string, fallback, max int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
