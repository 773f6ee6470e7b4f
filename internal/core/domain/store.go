package domain

import "time"

// OrderStatusSold is the status assigned to every order created at checkout.
const OrderStatusSold = "sold"

// Product is an item offered in the store catalogue.
type Product struct {
	ID          string    `db:"id" json:"id"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Price       float64   `db:"price" json:"price"`
	Stock       int       `db:"stock" json:"stock"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Available reports whether quantity units can be sold.
func (p Product) Available(quantity int) bool {
	return p.IsActive && p.Stock >= quantity
}

// Cart is the per-user shopping cart.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"cart_products"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Total sums the current price of every cart line.
func (c Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Product.Price * float64(item.Quantity)
	}
	return total
}

// CartItem is a product line in a cart.
type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// Order is a completed checkout.
type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	UserID      string      `json:"user_id"`
	FullName    string      `json:"full_name"`
	PhoneNumber string      `json:"phone_number"`
	Address     string      `json:"address"`
	Total       float64     `json:"total"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	Lines       []OrderLine `json:"order_products"`
}

// OrderLine is a sold product with the unit price at checkout time.
type OrderLine struct {
	ID        string  `db:"id" json:"id"`
	OrderID   string  `db:"order_id" json:"order_id"`
	ProductID string  `db:"product_id" json:"product_id"`
	Title     string  `db:"title" json:"title"`
	Quantity  int     `db:"quantity" json:"quantity"`
	Price     float64 `db:"price" json:"price"`
}

// SoldLine is an order line joined with its order timestamp, used for reporting.
type SoldLine struct {
	ProductID string    `db:"product_id"`
	Title     string    `db:"title"`
	OrderID   string    `db:"order_id"`
	Quantity  int       `db:"quantity"`
	Price     float64   `db:"price"`
	SoldAt    time.Time `db:"sold_at"`
}

// ProductSalesSummary aggregates the sales of one product.
type ProductSalesSummary struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	UnitsSold int     `json:"units_sold"`
	Total     float64 `json:"total"`
}

// PeriodSales aggregates the sales in a day or an ISO week.
type PeriodSales struct {
	Label       string                `json:"label"`
	TotalSales  float64               `json:"total_sales"`
	TotalOrders int                   `json:"total_orders"`
	Products    []ProductSalesSummary `json:"products"`
}

// SalesReport is the admin sales overview.
type SalesReport struct {
	DailySales     []PeriodSales         `json:"daily_sales"`
	WeeklySales    []PeriodSales         `json:"weekly_sales"`
	ProductSummary []ProductSalesSummary `json:"product_summary"`
}
