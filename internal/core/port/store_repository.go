package port

import (
	"context"
	"time"

	"github.com/proyectoio2/back/internal/core/domain"
)

// StoreRepository persists the catalogue, carts and orders.
type StoreRepository interface {
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// LockProducts returns the listed products and locks their rows until the transaction ends.
	LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) error
	DecrementStock(ctx context.Context, productID string, quantity int) error

	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	CreateCart(ctx context.Context, cart domain.Cart) error
	UpsertCartItem(ctx context.Context, cartID, productID string, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, productID string) error
	ClearCart(ctx context.Context, cartID string) error

	CreateOrder(ctx context.Context, order domain.Order) error
	ListSoldLines(ctx context.Context, since *time.Time) ([]domain.SoldLine, error)
}
