package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/repository"
)

func TestStoreRepository_ListActiveProducts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStoreRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(productColumns).
		AddRow("p1", "https://cdn.example.com/plants/a.png", "Bolso", "Bolso de yute", 45000.0, 3, true, now, now).
		AddRow("p2", "https://cdn.example.com/plants/b.png", "Camisa", "Camisa de lino", 80000.0, 0, true, now, now)

	mock.ExpectQuery(`SELECT .* FROM products WHERE is_active = \$1 ORDER BY created_at DESC`).
		WithArgs(true).
		WillReturnRows(rows)

	products, err := repo.ListActiveProducts(context.Background())
	if err != nil {
		t.Fatalf("ListActiveProducts returned error: %v", err)
	}
	if len(products) != 2 || products[0].Title != "Bolso" || products[1].Stock != 0 {
		t.Fatalf("unexpected products: %+v", products)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreRepository_GetProductNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStoreRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM products WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(productColumns))

	if _, err := repo.GetProduct(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRepository_DecrementStockInsufficient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStoreRepository(mock)

	mock.ExpectExec(`UPDATE products SET stock = stock - \$1, updated_at = now\(\) WHERE id = \$2 AND stock >= \$3`).
		WithArgs(4, "p1", 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.DecrementStock(context.Background(), "p1", 4); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreRepository_CreateOrderWritesLines(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStoreRepository(mock)
	now := time.Now().UTC()
	order := domain.Order{
		ID:          "o1",
		OrderNumber: "AB12CD34",
		UserID:      "u1",
		FullName:    "Ana Gomez",
		PhoneNumber: "3001234567",
		Address:     "Calle 10 #4-20",
		Total:       170000,
		Status:      domain.OrderStatusSold,
		CreatedAt:   now,
		Lines: []domain.OrderLine{
			{ID: "l1", ProductID: "p1", Quantity: 2, Price: 45000},
			{ID: "l2", ProductID: "p2", Quantity: 1, Price: 80000},
		},
	}

	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(order.ID, order.OrderNumber, order.UserID, order.FullName, order.PhoneNumber, order.Address, order.Total, order.Status, order.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_products \(id,order_id,product_id,quantity,price\) VALUES \(\$1,\$2,\$3,\$4,\$5\),\(\$6,\$7,\$8,\$9,\$10\)`).
		WithArgs("l1", "o1", "p1", 2, 45000.0, "l2", "o1", "p2", 1, 80000.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	if err := repo.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
