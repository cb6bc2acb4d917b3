package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	domain "github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/observability"
	"github.com/Zhima-Mochi/modushop/internal/observability/logctx"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

const (
	inventoryService = "inventory-service"

	useCaseAddStock       = "inventory.add_stock"
	useCasePurchase       = "inventory.purchase"
	useCaseGetQuantity    = "inventory.get_quantity"
	useCaseListOutOfStock = "inventory.list_out_of_stock"
	useCaseInitialStock   = "inventory.initial_stock"
	spanPrefix            = "UC."
)

var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidQuantity   = domain.ErrInvalidQuantity
	ErrInsufficientStock = domain.ErrInsufficientStock
	ErrRepository        = errors.New("inventory: repository failure")
)

// Service drives stock mutations. Every mutation publishes the resulting
// absolute quantity in the same transaction, which keeps the catalog's
// mirrored quantity convergent under redelivery.
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
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		reqCounter:   tel.Counter(observability.MUsecaseRequests),
		durHistogram: tel.Histogram(observability.MUsecaseDuration),
	}
}

// AddStock increases the product's stock and returns the new quantity.
func (s *Service) AddStock(ctx context.Context, productID int64, quantity int) (_ int, err error) {
	ctx, finish := s.begin(ctx, useCaseAddStock, "AddStock",
		attribute.Int64("product.id", productID),
		attribute.Int("quantity", quantity),
	)
	defer func() { finish(err) }()

	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	return s.adjust(ctx, productID, quantity)
}

// Purchase removes stock and returns the remaining quantity. It fails with
// ErrInsufficientStock rather than letting the quantity go negative.
func (s *Service) Purchase(ctx context.Context, productID int64, quantity int) (_ int, err error) {
	ctx, finish := s.begin(ctx, useCasePurchase, "Purchase",
		attribute.Int64("product.id", productID),
		attribute.Int("quantity", quantity),
	)
	defer func() { finish(err) }()

	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	return s.adjust(ctx, productID, -quantity)
}

func (s *Service) adjust(ctx context.Context, productID int64, delta int) (int, error) {
	var newQuantity int
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		newQuantity, err = s.repo.AddQuantity(ctx, tx, productID, delta)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInsufficientStock) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrRepository, err)
		}
		return s.publisher.Publish(ctx, tx, domain.NewQuantityChangedEvent(productID, newQuantity))
	})
	if err != nil {
		return 0, err
	}
	return newQuantity, nil
}

func (s *Service) Quantity(ctx context.Context, productID int64) (_ int, err error) {
	ctx, finish := s.begin(ctx, useCaseGetQuantity, "GetQuantity",
		attribute.Int64("product.id", productID),
	)
	defer func() { finish(err) }()

	stock, err := s.repo.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return stock.Quantity, nil
}

func (s *Service) OutOfStockProductIDs(ctx context.Context) (_ []int64, err error) {
	ctx, finish := s.begin(ctx, useCaseListOutOfStock, "ListOutOfStock")
	defer func() { finish(err) }()

	ids, err := s.repo.ListOutOfStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return ids, nil
}

// OnProductCreated provisions the stock entry for a newly created product.
// Creation is insert-if-absent, so a redelivered event changes nothing; the
// follow-up quantity event fires only on first creation.
func (s *Service) OnProductCreated(ctx context.Context, e domain.ProductCreated) (err error) {
	ctx, finish := s.begin(ctx, useCaseInitialStock, "InitialStock",
		attribute.Int64("product.id", e.CreatedProductID()),
		attribute.Int("quantity", e.InitialQuantity()),
	)
	defer func() { finish(err) }()

	return s.runner.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		quantity, created, err := s.repo.EnsureStock(ctx, tx, e.CreatedProductID(), e.InitialQuantity())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRepository, err)
		}
		if !created {
			return nil
		}
		return s.publisher.Publish(ctx, tx, domain.NewQuantityChangedEvent(e.CreatedProductID(), quantity))
	})
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
