package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/observability"
	"github.com/Zhima-Mochi/modushop/internal/observability/logctx"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

const (
	catalogService = "catalog-service"

	useCaseCreateProduct    = "catalog.create_product"
	useCaseListProducts     = "catalog.list_products"
	useCaseGetProduct       = "catalog.get_product"
	useCaseListOutOfStock   = "catalog.list_out_of_stock"
	useCaseSearchProducts   = "catalog.search_products"
	useCaseSearchByMaxPrice = "catalog.search_by_max_price"
	useCaseSyncQuantity     = "catalog.sync_quantity"
	useCaseSeed             = "catalog.seed"
	spanPrefix              = "UC."
	DefaultPageSize         = 20
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("catalog: repository failure")
)

// Service drives the product catalog workflows. Writes run inside one
// transaction together with the events they publish.
type Service struct {
	repo      domain.Repository
	runner    storage.TxRunner
	publisher event.Publisher
	tel       observability.Telemetry

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(
	repo domain.Repository,
	runner storage.TxRunner,
	publisher event.Publisher,
	tel observability.Telemetry,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		repo:         repo,
		runner:       runner,
		publisher:    publisher,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", catalogService)),
		reqCounter:   tel.Counter(observability.MUsecaseRequests),
		durHistogram: tel.Histogram(observability.MUsecaseDuration),
	}
}

type CreateProductInput struct {
	Name            string
	Description     string
	PriceAmount     decimal.Decimal
	PriceCurrency   string
	InitialQuantity int
}

// CreateProduct stores the product and publishes its creation event in the
// same transaction, so either both happen or neither does.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (_ *domain.Product, err error) {
	ctx, finish := s.begin(ctx, useCaseCreateProduct, "CreateProduct",
		attribute.String("product.name", in.Name),
	)
	defer func() { finish(err) }()

	product, err := domain.NewProduct(in.Name, in.Description, in.PriceAmount, in.PriceCurrency, in.InitialQuantity)
	if err != nil {
		return nil, err
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := s.repo.Create(ctx, tx, product); err != nil {
			return fmt.Errorf("%w: %w", ErrRepository, err)
		}
		return s.publisher.Publish(ctx, tx, domain.NewProductCreatedEvent(product))
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Service) Product(ctx context.Context, productID int64) (_ *domain.Product, err error) {
	ctx, finish := s.begin(ctx, useCaseGetProduct, "GetProduct",
		attribute.Int64("product.id", productID),
	)
	defer func() { finish(err) }()

	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return product, nil
}

// Products returns one page of the catalog, first page is 1.
func (s *Service) Products(ctx context.Context, pageNumber int) (_ []*domain.Product, err error) {
	ctx, finish := s.begin(ctx, useCaseListProducts, "ListProducts",
		attribute.Int("page", pageNumber),
	)
	defer func() { finish(err) }()

	if pageNumber < 1 {
		pageNumber = 1
	}
	products, err := s.repo.List(ctx, (pageNumber-1)*DefaultPageSize, DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return products, nil
}

// SearchProductIDs returns ids of products whose name or description
// contains the given fragments, case-insensitive, one page at a time.
func (s *Service) SearchProductIDs(ctx context.Context, name, description string, pageNumber int) (_ []int64, err error) {
	ctx, finish := s.begin(ctx, useCaseSearchProducts, "SearchProducts",
		attribute.Int("page", pageNumber),
	)
	defer func() { finish(err) }()

	if pageNumber < 1 {
		pageNumber = 1
	}
	products, err := s.repo.SearchByNameOrDescription(ctx, name, description, (pageNumber-1)*DefaultPageSize, DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return productIDs(products), nil
}

// ProductIDsPricedAtMost returns ids of products priced at or below max,
// one page at a time.
func (s *Service) ProductIDsPricedAtMost(ctx context.Context, max decimal.Decimal, pageNumber int) (_ []int64, err error) {
	ctx, finish := s.begin(ctx, useCaseSearchByMaxPrice, "SearchByMaxPrice",
		attribute.String("max_price", max.String()),
		attribute.Int("page", pageNumber),
	)
	defer func() { finish(err) }()

	if pageNumber < 1 {
		pageNumber = 1
	}
	products, err := s.repo.ListPricedAtMost(ctx, max, (pageNumber-1)*DefaultPageSize, DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return productIDs(products), nil
}

func productIDs(products []*domain.Product) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func (s *Service) OutOfStockProducts(ctx context.Context) (_ []*domain.Product, err error) {
	ctx, finish := s.begin(ctx, useCaseListOutOfStock, "ListOutOfStock")
	defer func() { finish(err) }()

	products, err := s.repo.ListOutOfStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return products, nil
}

// OnQuantityChanged mirrors the stock level into the catalog's read model.
// The write is absolute, so replaying the same event converges instead of
// compounding.
func (s *Service) OnQuantityChanged(ctx context.Context, e inventory.QuantityChangedEvent) (err error) {
	ctx, finish := s.begin(ctx, useCaseSyncQuantity, "SyncQuantity",
		attribute.Int64("product.id", e.ProductID),
		attribute.Int("quantity", e.NewQuantity),
	)
	defer func() { finish(err) }()

	return s.runner.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := s.repo.SetQuantity(ctx, tx, e.ProductID, e.NewQuantity); err != nil {
			return fmt.Errorf("%w: %w", ErrRepository, err)
		}
		return nil
	})
}

// Seed inserts a few demo products when the catalog is empty. Seeding goes
// through CreateProduct so the usual creation events fire and downstream
// stock entries appear.
func (s *Service) Seed(ctx context.Context) (err error) {
	ctx, finish := s.begin(ctx, useCaseSeed, "Seed")
	defer func() { finish(err) }()

	existing, err := s.repo.List(ctx, 0, 1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
	if len(existing) > 0 {
		return nil
	}

	seeds := []CreateProductInput{
		{Name: "Sample product 1", Description: "First demo product", PriceAmount: decimal.NewFromInt(100), PriceCurrency: domain.DefaultCurrency},
		{Name: "Sample product 2", Description: "Second demo product", PriceAmount: decimal.NewFromInt(200), PriceCurrency: domain.DefaultCurrency},
		{Name: "Sample product 3", Description: "Third demo product", PriceAmount: decimal.NewFromInt(300), PriceCurrency: domain.DefaultCurrency},
	}
	for _, in := range seeds {
		if _, err := s.CreateProduct(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCase))

	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := s.tel.Tracer().Start(ctx, spanPrefix+spanName, attrs...)
	start := time.Now()

	return ctx, func(err error) {
		lat := time.Since(start).Seconds()

		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCase))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields, observability.F("trace_id", sc.TraceID().String()))
		}
		logger.Info("use_case_done", fields...)
	}
}
