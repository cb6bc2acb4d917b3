package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	appCatalog "github.com/Zhima-Mochi/modushop/internal/application/catalog"
	appInventory "github.com/Zhima-Mochi/modushop/internal/application/inventory"
	domainCatalog "github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	domainInventory "github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/observability"
	"github.com/Zhima-Mochi/modushop/internal/observability/logctx"
)

type Handler struct {
	catalogService   *appCatalog.Service
	inventoryService *appInventory.Service
	log              observability.Logger
	tel              observability.Telemetry
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
)

func NewHandler(
	catalogSvc *appCatalog.Service,
	inventorySvc *appInventory.Service,
	logger observability.Logger,
	tel observability.Telemetry,
) *Handler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Handler{
		catalogService:   catalogSvc,
		inventoryService: inventorySvc,
		log:              baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:              tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → request logger → access log → handler. The literal
	// outOfStock route must beat the {productID} wildcard, which the
	// pattern matcher guarantees by specificity.
	h.muxHandle(mux, "POST /catalog/products", h.handleCreateProduct)
	h.muxHandle(mux, "GET /catalog", h.handleListProducts)
	h.muxHandle(mux, "GET /catalog/products/outOfStock", h.handleOutOfStockProducts)
	h.muxHandle(mux, "GET /catalog/products/{productID}", h.handleGetProduct)
	h.muxHandle(mux, "GET /catalog/search/by/nameAndDescription", h.handleSearchByNameAndDescription)
	h.muxHandle(mux, "GET /catalog/search/by/maxPrice", h.handleSearchByMaxPrice)
	h.muxHandle(mux, "POST /inventory/stock/{productID}", h.handlePurchase)
	h.muxHandle(mux, "PUT /inventory/stock/{productID}", h.handleAddStock)
	h.muxHandle(mux, "GET /inventory/stock/{productID}", h.handleGetStock)
	h.muxHandle(mux, "GET /health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := contextWithRoute(r.Context(), pattern)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				h.tel,
			)(
				h.withAccessLog(handler),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type productResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Quantity    int    `json:"quantity"`
}

func toProductResponse(p *domainCatalog.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.PriceAmount.String(),
		Currency:    p.PriceCurrency,
		Quantity:    p.CurrentQuantity,
	}
}

type createProductRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	InitialQuantity int    `json:"initial_quantity"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, domainCatalog.ErrInvalidPrice)
		return
	}

	product, err := h.catalogService.CreateProduct(r.Context(), appCatalog.CreateProductInput{
		Name:            req.Name,
		Description:     req.Description,
		PriceAmount:     price,
		PriceCurrency:   req.Currency,
		InitialQuantity: req.InitialQuantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	pageNumber, err := queryPageNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	products, err := h.catalogService.Products(r.Context(), pageNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := h.catalogService.Product(r.Context(), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleOutOfStockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalogService.OutOfStockProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// Search endpoints return bare id lists; clients fetch details per product.
func (h *Handler) handleSearchByNameAndDescription(w http.ResponseWriter, r *http.Request) {
	pageNumber, err := queryPageNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := r.URL.Query()
	ids, err := h.catalogService.SearchProductIDs(r.Context(), q.Get("name"), q.Get("description"), pageNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) handleSearchByMaxPrice(w http.ResponseWriter, r *http.Request) {
	pageNumber, err := queryPageNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	raw := r.URL.Query().Get("price")
	if raw == "" {
		writeError(w, http.StatusBadRequest, errors.New("price is required"))
		return
	}
	maxPrice, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, domainCatalog.ErrInvalidPrice)
		return
	}

	ids, err := h.catalogService.ProductIDsPricedAtMost(r.Context(), maxPrice, pageNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

type stockResponse struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quantity, err := queryQuantity(r, "purchaseQuantity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	remaining, err := h.inventoryService.Purchase(r.Context(), productID, quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{ProductID: productID, Quantity: remaining})
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quantity, err := queryQuantity(r, "quantity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	newQuantity, err := h.inventoryService.AddStock(r.Context(), productID, quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{ProductID: productID, Quantity: newQuantity})
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	quantity, err := h.inventoryService.Quantity(r.Context(), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{ProductID: productID, Quantity: quantity})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func pathProductID(r *http.Request) (int64, error) {
	raw := r.PathValue("productID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("productID must be a positive integer")
	}
	return id, nil
}

func queryPageNumber(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("pageNumber")
	if raw == "" {
		return 1, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return 0, errors.New("pageNumber must be a positive integer")
	}
	return parsed, nil
}

func queryQuantity(r *http.Request, param string) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return 0, errors.New(param + " is required")
	}
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(param + " must be an integer")
	}
	return quantity, nil
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("modushop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainCatalog.ErrNotFound),
		errors.Is(err, domainInventory.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domainInventory.ErrInsufficientStock):
		writeError(w, http.StatusPreconditionFailed, err)
	case errors.Is(err, domainCatalog.ErrNameRequired),
		errors.Is(err, domainCatalog.ErrInvalidPrice),
		errors.Is(err, domainCatalog.ErrInvalidQuantity),
		errors.Is(err, domainCatalog.ErrCurrencyRequired),
		errors.Is(err, domainInventory.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
