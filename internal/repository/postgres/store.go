package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/repository"
)

const (
	productsTable      = "products"
	cartsTable         = "carts"
	cartProductsTable  = "cart_products"
	ordersTable        = "orders"
	orderProductsTable = "order_products"
)

var productColumns = []string{
	"id",
	"image_url",
	"title",
	"description",
	"price",
	"stock",
	"is_active",
	"created_at",
	"updated_at",
}

// StoreRepository implements port.StoreRepository using PostgreSQL and pgxscan.
type StoreRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewStoreRepository constructs a store repository. exec may be a pool or a transaction.
func NewStoreRepository(exec pgExecutor) *StoreRepository {
	return &StoreRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// ListActiveProducts returns the purchasable catalogue ordered by creation time.
func (r *StoreRepository) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	stmt, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select products sql: %w", err)
	}

	products := make([]domain.Product, 0)
	if err := pgxscan.Select(ctx, r.exec, &products, stmt, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

// GetProduct retrieves a product regardless of its active flag.
func (r *StoreRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	stmt, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select product sql: %w", err)
	}

	var product domain.Product
	if err := pgxscan.Get(ctx, r.exec, &product, stmt, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &product, nil
}

// LockProducts loads the given products with FOR UPDATE, keyed by id.
func (r *StoreRepository) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	stmt, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock products sql: %w", err)
	}

	var products []domain.Product
	if err := pgxscan.Select(ctx, r.exec, &products, stmt, args...); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	for _, product := range products {
		result[product.ID] = product
	}
	return result, nil
}

// CreateProduct inserts a catalogue entry.
func (r *StoreRepository) CreateProduct(ctx context.Context, product domain.Product) error {
	stmt, args, err := r.builder.Insert(productsTable).
		Columns(productColumns...).
		Values(
			product.ID,
			product.ImageURL,
			product.Title,
			product.Description,
			product.Price,
			product.Stock,
			product.IsActive,
			product.CreatedAt,
			product.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert product sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return wrapWriteError("insert product", err)
	}
	return nil
}

// DecrementStock subtracts quantity from the product stock. Fails with
// repository.ErrNotFound when the product is missing or the stock would go negative.
func (r *StoreRepository) DecrementStock(ctx context.Context, productID string, quantity int) error {
	stmt, args, err := r.builder.Update(productsTable).
		Set("stock", squirrel.Expr("stock - ?", quantity)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": productID}).
		Where(squirrel.GtOrEq{"stock": quantity}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build decrement stock sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type cartRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type cartItemRow struct {
	ID               string    `db:"id"`
	ProductID        string    `db:"product_id"`
	Quantity         int       `db:"quantity"`
	ImageURL         string    `db:"image_url"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	Price            float64   `db:"price"`
	Stock            int       `db:"stock"`
	IsActive         bool      `db:"is_active"`
	ProductCreatedAt time.Time `db:"product_created_at"`
	ProductUpdatedAt time.Time `db:"product_updated_at"`
}

// GetCart loads the user's cart together with its product lines.
func (r *StoreRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "created_at", "updated_at").
		From(cartsTable).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select cart sql: %w", err)
	}

	var row cartRow
	if err := pgxscan.Get(ctx, r.exec, &row, stmt, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	itemsStmt, itemArgs, err := r.builder.Select(
		"cp.id",
		"cp.product_id",
		"cp.quantity",
		"p.image_url",
		"p.title",
		"p.description",
		"p.price",
		"p.stock",
		"p.is_active",
		"p.created_at AS product_created_at",
		"p.updated_at AS product_updated_at",
	).
		From(cartProductsTable + " cp").
		Join(productsTable + " p ON p.id = cp.product_id").
		Where(squirrel.Eq{"cp.cart_id": row.ID}).
		OrderBy("p.title").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select cart items sql: %w", err)
	}

	var items []cartItemRow
	if err := pgxscan.Select(ctx, r.exec, &items, itemsStmt, itemArgs...); err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}

	cart := &domain.Cart{
		ID:        row.ID,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Items:     make([]domain.CartItem, 0, len(items)),
	}
	for _, item := range items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product: domain.Product{
				ID:          item.ProductID,
				ImageURL:    item.ImageURL,
				Title:       item.Title,
				Description: item.Description,
				Price:       item.Price,
				Stock:       item.Stock,
				IsActive:    item.IsActive,
				CreatedAt:   item.ProductCreatedAt,
				UpdatedAt:   item.ProductUpdatedAt,
			},
		})
	}
	return cart, nil
}

// CreateCart inserts an empty cart for a user.
func (r *StoreRepository) CreateCart(ctx context.Context, cart domain.Cart) error {
	stmt, args, err := r.builder.Insert(cartsTable).
		Columns("id", "user_id", "created_at", "updated_at").
		Values(cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert cart sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return wrapWriteError("insert cart", err)
	}
	return nil
}

// UpsertCartItem sets the quantity of a product line, creating the line if needed.
func (r *StoreRepository) UpsertCartItem(ctx context.Context, cartID, productID string, quantity int) error {
	stmt, args, err := r.builder.Insert(cartProductsTable).
		Columns("cart_id", "product_id", "quantity").
		Values(cartID, productID, quantity).
		Suffix("ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert cart item sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

// DeleteCartItem removes a product line from a cart.
func (r *StoreRepository) DeleteCartItem(ctx context.Context, cartID, productID string) error {
	stmt, args, err := r.builder.Delete(cartProductsTable).
		Where(squirrel.Eq{"cart_id": cartID, "product_id": productID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete cart item sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ClearCart removes every product line from a cart.
func (r *StoreRepository) ClearCart(ctx context.Context, cartID string) error {
	stmt, args, err := r.builder.Delete(cartProductsTable).
		Where(squirrel.Eq{"cart_id": cartID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear cart sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// CreateOrder inserts the order header and its lines.
func (r *StoreRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	stmt, args, err := r.builder.Insert(ordersTable).
		Columns("id", "order_number", "user_id", "full_name", "phone_number", "address", "total", "status", "created_at").
		Values(order.ID, order.OrderNumber, order.UserID, order.FullName, order.PhoneNumber, order.Address, order.Total, order.Status, order.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return wrapWriteError("insert order", err)
	}

	if len(order.Lines) == 0 {
		return nil
	}

	lines := r.builder.Insert(orderProductsTable).
		Columns("id", "order_id", "product_id", "quantity", "price")
	for _, line := range order.Lines {
		lines = lines.Values(line.ID, order.ID, line.ProductID, line.Quantity, line.Price)
	}

	stmt, args, err = lines.ToSql()
	if err != nil {
		return fmt.Errorf("build insert order lines sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

// ListSoldLines returns every order line sold at or after since. A nil since returns all lines.
func (r *StoreRepository) ListSoldLines(ctx context.Context, since *time.Time) ([]domain.SoldLine, error) {
	query := r.builder.Select(
		"op.product_id",
		"p.title",
		"op.order_id",
		"op.quantity",
		"op.price",
		"o.created_at AS sold_at",
	).
		From(orderProductsTable + " op").
		Join(ordersTable + " o ON o.id = op.order_id").
		Join(productsTable + " p ON p.id = op.product_id").
		OrderBy("o.created_at")
	if since != nil {
		query = query.Where(squirrel.GtOrEq{"o.created_at": *since})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sold lines sql: %w", err)
	}

	lines := make([]domain.SoldLine, 0)
	if err := pgxscan.Select(ctx, r.exec, &lines, stmt, args...); err != nil {
		return nil, fmt.Errorf("select sold lines: %w", err)
	}
	return lines, nil
}

var _ port.StoreRepository = (*StoreRepository)(nil)
