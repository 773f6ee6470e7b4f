package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/security"
	"github.com/proyectoio2/back/internal/repository"
)

const (
	orderNumberLength = 8
	reportDays        = 7
	reportWeeks       = 4
)

var (
	// ErrProductNotFound indicates the product is missing or no longer offered.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductUnavailable indicates the product cannot be added to a cart.
	ErrProductUnavailable = errors.New("product not available or insufficient stock")
	// ErrInsufficientStock indicates checkout found less stock than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCartNotFound indicates the user has no cart yet.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartEmpty indicates checkout was attempted on an empty cart.
	ErrCartEmpty = errors.New("cart is empty")
)

// ProductInput carries the fields of a new catalogue item.
type ProductInput struct {
	ImageURL    string
	Title       string
	Description string
	Price       float64
	Stock       int
}

// CheckoutResult is the created order and whether the seller was notified.
type CheckoutResult struct {
	Order        domain.Order
	WhatsAppSent bool
}

// StoreService runs the catalogue, cart and checkout flows.
type StoreService struct {
	cfg      *config.AppConfig
	store    port.StoreRepository
	users    port.UserRepository
	tx       port.TxManager
	notifier port.Notifier
	events   port.EventPublisher
	metrics  port.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewStoreService constructs a StoreService.
func NewStoreService(
	cfg *config.AppConfig,
	store port.StoreRepository,
	users port.UserRepository,
	tx port.TxManager,
	notifier port.Notifier,
	events port.EventPublisher,
	logger *zap.Logger,
) *StoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreService{
		cfg:      cfg,
		store:    store,
		users:    users,
		tx:       tx,
		notifier: notifier,
		events:   events,
		metrics:  nopMetrics{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *StoreService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches business counters.
func (s *StoreService) WithMetrics(metrics port.Metrics) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// ListProducts returns the active catalogue.
func (s *StoreService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetProduct returns an active product.
func (s *StoreService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Product{}, ErrProductNotFound
	}
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Product{}, ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if !product.IsActive {
		return domain.Product{}, ErrProductNotFound
	}
	return *product, nil
}

// CreateProduct adds an active product to the catalogue.
func (s *StoreService) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	switch {
	case in.Title == "":
		return domain.Product{}, newValidationError("title", "title is required")
	case in.Description == "":
		return domain.Product{}, newValidationError("description", "description is required")
	case in.ImageURL == "":
		return domain.Product{}, newValidationError("image_url", "image url is required")
	case in.Price <= 0:
		return domain.Product{}, newValidationError("price", "price must be greater than zero")
	case in.Stock < 0:
		return domain.Product{}, newValidationError("stock", "stock cannot be negative")
	}

	now := s.now()
	product := domain.Product{
		ID:          uuid.NewString(),
		ImageURL:    in.ImageURL,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	requestLogger(ctx, s.logger).Info("product created", zap.String("product_id", product.ID), zap.String("title", product.Title))
	return product, nil
}

// GetCart returns the user's cart.
func (s *StoreService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.store.GetCart(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Cart{}, ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return *cart, nil
}

// AddToCart adds quantity units of a product, creating the cart on first use.
func (s *StoreService) AddToCart(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, newValidationError("quantity", "quantity must be greater than zero")
	}
	if _, err := uuid.Parse(productID); err != nil {
		return domain.Cart{}, ErrProductNotFound
	}

	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		cart, err := s.ensureCart(ctx, stores.Store, userID)
		if err != nil {
			return err
		}
		product, err := stores.Store.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("get product: %w", err)
		}

		total := quantity
		for _, item := range cart.Items {
			if item.ProductID == productID {
				total += item.Quantity
			}
		}
		if !product.Available(total) {
			return ErrProductUnavailable
		}
		if err := stores.Store.UpsertCartItem(ctx, cart.ID, productID, total); err != nil {
			return fmt.Errorf("add cart item: %w", err)
		}
		return reloadCart(ctx, stores.Store, userID, &out)
	})
	if err != nil {
		return domain.Cart{}, storeError("add to cart", err)
	}
	return out, nil
}

// UpdateCartItem sets the quantity of a line. Zero removes the line.
func (s *StoreService) UpdateCartItem(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity < 0 {
		return domain.Cart{}, newValidationError("quantity", "quantity cannot be negative")
	}
	if quantity == 0 {
		return s.RemoveFromCart(ctx, userID, productID)
	}

	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		cart, err := stores.Store.GetCart(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCartNotFound
			}
			return fmt.Errorf("get cart: %w", err)
		}
		if !cartHas(cart, productID) {
			return ErrProductNotFound
		}
		product, err := stores.Store.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("get product: %w", err)
		}
		if !product.Available(quantity) {
			return ErrProductUnavailable
		}
		if err := stores.Store.UpsertCartItem(ctx, cart.ID, productID, quantity); err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return reloadCart(ctx, stores.Store, userID, &out)
	})
	if err != nil {
		return domain.Cart{}, storeError("update cart", err)
	}
	return out, nil
}

// RemoveFromCart deletes a product line.
func (s *StoreService) RemoveFromCart(ctx context.Context, userID, productID string) (domain.Cart, error) {
	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		cart, err := stores.Store.GetCart(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCartNotFound
			}
			return fmt.Errorf("get cart: %w", err)
		}
		if err := stores.Store.DeleteCartItem(ctx, cart.ID, productID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("remove cart item: %w", err)
		}
		return reloadCart(ctx, stores.Store, userID, &out)
	})
	if err != nil {
		return domain.Cart{}, storeError("remove from cart", err)
	}
	return out, nil
}

// ClearCart empties the cart.
func (s *StoreService) ClearCart(ctx context.Context, userID string) (domain.Cart, error) {
	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		cart, err := stores.Store.GetCart(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCartNotFound
			}
			return fmt.Errorf("get cart: %w", err)
		}
		if err := stores.Store.ClearCart(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return reloadCart(ctx, stores.Store, userID, &out)
	})
	if err != nil {
		return domain.Cart{}, storeError("clear cart", err)
	}
	return out, nil
}

// Checkout turns the cart into an order under product row locks, then
// notifies the seller over WhatsApp. A failed notification does not undo the order.
func (s *StoreService) Checkout(ctx context.Context, userID string) (CheckoutResult, error) {
	var order domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		user, err := stores.Users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lookup user: %w", err)
		}
		cart, err := stores.Store.GetCart(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCartEmpty
			}
			return fmt.Errorf("get cart: %w", err)
		}
		if len(cart.Items) == 0 {
			return ErrCartEmpty
		}

		ids := make([]string, 0, len(cart.Items))
		for _, item := range cart.Items {
			ids = append(ids, item.ProductID)
		}
		products, err := stores.Store.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		number, err := security.GenerateOrderNumber(orderNumberLength)
		if err != nil {
			return fmt.Errorf("generate order number: %w", err)
		}
		order = domain.Order{
			ID:          uuid.NewString(),
			OrderNumber: number,
			UserID:      user.ID,
			FullName:    user.FullName,
			PhoneNumber: user.PhoneNumber,
			Address:     user.Address,
			Status:      domain.OrderStatusSold,
			CreatedAt:   s.now(),
			Lines:       make([]domain.OrderLine, 0, len(cart.Items)),
		}
		for _, item := range cart.Items {
			product, ok := products[item.ProductID]
			if !ok || !product.Available(item.Quantity) {
				title := item.Product.Title
				if ok {
					title = product.Title
				}
				return fmt.Errorf("%w for %s", ErrInsufficientStock, title)
			}
			order.Total += product.Price * float64(item.Quantity)
			order.Lines = append(order.Lines, domain.OrderLine{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				ProductID: product.ID,
				Title:     product.Title,
				Quantity:  item.Quantity,
				Price:     product.Price,
			})
		}

		if err := stores.Store.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, line := range order.Lines {
			if err := stores.Store.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w for %s", ErrInsufficientStock, line.Title)
				}
				return fmt.Errorf("decrement stock: %w", err)
			}
		}
		if err := stores.Store.ClearCart(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, storeError("checkout", err)
	}

	log := requestLogger(ctx, s.logger)
	log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Float64("total", order.Total),
	)
	s.metrics.OrderPlaced(order.Total)

	result := CheckoutResult{Order: order, WhatsAppSent: s.notifySeller(ctx, order)}
	if s.events != nil {
		event := domain.OrderPlacedEvent{
			EventID:     uuid.NewString(),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			Total:       order.Total,
			PlacedAt:    order.CreatedAt,
		}
		if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
			log.Warn("publish order placed event failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	return result, nil
}

func (s *StoreService) notifySeller(ctx context.Context, order domain.Order) bool {
	seller := strings.TrimSpace(s.cfg.Twilio.SellerNumber)
	if s.notifier == nil || seller == "" {
		return false
	}
	timeout := s.cfg.Twilio.Timeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.notifier.Send(ctx, domain.Notification{
		Channel: domain.ChannelWhatsApp,
		To:      seller,
		Kind:    domain.NotificationOrderPlaced,
		Params:  map[string]any{"order": order},
	})
	if err != nil {
		requestLogger(ctx, s.logger).Error("seller whatsapp notification failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
		return false
	}
	return true
}

// SalesReport summarises sales per day for the last week, per ISO week for
// the last four weeks, and per product over all time.
func (s *StoreService) SalesReport(ctx context.Context) (domain.SalesReport, error) {
	lines, err := s.store.ListSoldLines(ctx, nil)
	if err != nil {
		return domain.SalesReport{}, fmt.Errorf("sales report: %w", err)
	}
	return BuildSalesReport(lines, s.now()), nil
}

// BuildSalesReport aggregates sold lines relative to now (UTC calendar days, Monday based weeks).
func BuildSalesReport(lines []domain.SoldLine, now time.Time) domain.SalesReport {
	today := startOfDay(now.UTC())

	report := domain.SalesReport{
		DailySales:     make([]domain.PeriodSales, 0, reportDays),
		WeeklySales:    make([]domain.PeriodSales, 0, reportWeeks),
		ProductSummary: summarizeProducts(lines),
	}

	for i := 0; i < reportDays; i++ {
		day := today.AddDate(0, 0, -i)
		report.DailySales = append(report.DailySales, aggregatePeriod(day.Format("2006-01-02"), lines, day, day.AddDate(0, 0, 1)))
	}

	offset := (int(today.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, -offset)
	for i := 0; i < reportWeeks; i++ {
		start := monday.AddDate(0, 0, -7*i)
		year, week := start.ISOWeek()
		label := fmt.Sprintf("%d-W%02d", year, week)
		report.WeeklySales = append(report.WeeklySales, aggregatePeriod(label, lines, start, start.AddDate(0, 0, 7)))
	}
	return report
}

func aggregatePeriod(label string, lines []domain.SoldLine, from, to time.Time) domain.PeriodSales {
	period := domain.PeriodSales{Label: label}
	in := make([]domain.SoldLine, 0)
	orders := make(map[string]struct{})
	for _, line := range lines {
		at := line.SoldAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		in = append(in, line)
		orders[line.OrderID] = struct{}{}
		period.TotalSales += line.Price * float64(line.Quantity)
	}
	period.TotalOrders = len(orders)
	period.Products = summarizeProducts(in)
	return period
}

func summarizeProducts(lines []domain.SoldLine) []domain.ProductSalesSummary {
	byProduct := make(map[string]*domain.ProductSalesSummary)
	order := make([]string, 0)
	for _, line := range lines {
		summary, ok := byProduct[line.ProductID]
		if !ok {
			summary = &domain.ProductSalesSummary{ProductID: line.ProductID, Title: line.Title}
			byProduct[line.ProductID] = summary
			order = append(order, line.ProductID)
		}
		summary.UnitsSold += line.Quantity
		summary.Total += line.Price * float64(line.Quantity)
	}

	out := make([]domain.ProductSalesSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byProduct[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UnitsSold > out[j].UnitsSold
	})
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *StoreService) ensureCart(ctx context.Context, store port.StoreRepository, userID string) (*domain.Cart, error) {
	cart, err := store.GetCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	now := s.now()
	created := domain.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := store.CreateCart(ctx, created); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return &created, nil
}

func reloadCart(ctx context.Context, store port.StoreRepository, userID string, out *domain.Cart) error {
	cart, err := store.GetCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload cart: %w", err)
	}
	*out = *cart
	return nil
}

func cartHas(cart *domain.Cart, productID string) bool {
	for _, item := range cart.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func storeError(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
