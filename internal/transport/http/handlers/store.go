package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/transport/http/middleware"
	"github.com/proyectoio2/back/internal/usecase"
)

// Store is the catalogue, cart and checkout API.
type Store interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CreateProduct(ctx context.Context, in usecase.ProductInput) (domain.Product, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	AddToCart(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)
	UpdateCartItem(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)
	RemoveFromCart(ctx context.Context, userID, productID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) (domain.Cart, error)
	Checkout(ctx context.Context, userID string) (usecase.CheckoutResult, error)
	SalesReport(ctx context.Context) (domain.SalesReport, error)
}

// ImageUploader stores product images.
type ImageUploader interface {
	UploadImage(ctx context.Context, upload usecase.ImageUpload) (port.StoredObject, error)
}

// StoreHandler exposes the store endpoints.
type StoreHandler struct {
	store  Store
	images ImageUploader
}

func NewStoreHandler(store Store, images ImageUploader) *StoreHandler {
	return &StoreHandler{store: store, images: images}
}

// RegisterRoutes binds the store routes. Catalogue reads are public.
func (h *StoreHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth, requireAdmin gin.HandlerFunc) {
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.POST("/products", requireAuth, requireAdmin, h.CreateProduct)
	r.POST("/images", requireAuth, requireAdmin, h.UploadImage)

	cart := r.Group("/cart", requireAuth)
	cart.GET("", h.GetCart)
	cart.POST("/add", h.AddToCart)
	cart.PUT("/update", h.UpdateCartItem)
	cart.DELETE("/remove", h.RemoveFromCart)
	cart.DELETE("/clear", h.ClearCart)
	cart.POST("/checkout", h.Checkout)

	r.GET("/reports/sales", requireAuth, requireAdmin, h.SalesReport)
}

func (h *StoreHandler) ListProducts(c *gin.Context) {
	products, err := h.store.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (h *StoreHandler) GetProduct(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respondBadRequest(c, "product id must be a UUID")
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// CreateProduct godoc
// @Summary Add a product to the catalogue
// @Tags Store
// @Accept json
// @Produce json
// @Param request body ProductRequest true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/store/products [post]
func (h *StoreHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid product payload")
		return
	}

	product, err := h.store.CreateProduct(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// UploadImage godoc
// @Summary Upload a product image
// @Description Accepts a multipart "file" field with a JPEG or PNG image and an optional "folder".
// @Tags Store
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} ImageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/store/images [post]
func (h *StoreHandler) UploadImage(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "a multipart file field named \"file\" is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		respondBadRequest(c, "could not read the uploaded file")
		return
	}
	defer file.Close()

	obj, err := h.images.UploadImage(c.Request.Context(), usecase.ImageUpload{
		Folder:      c.PostForm("folder"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newImageResponse(obj))
}

func (h *StoreHandler) GetCart(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	cart, err := h.store.GetCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *StoreHandler) AddToCart(c *gin.Context) {
	h.changeCart(c, h.store.AddToCart)
}

func (h *StoreHandler) UpdateCartItem(c *gin.Context) {
	h.changeCart(c, h.store.UpdateCartItem)
}

type cartChange func(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)

func (h *StoreHandler) changeCart(c *gin.Context, apply cartChange) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "product_id and quantity are required")
		return
	}
	if _, err := uuid.Parse(req.ProductID); err != nil {
		respondBadRequest(c, "product_id must be a UUID")
		return
	}

	cart, err := apply(c.Request.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *StoreHandler) RemoveFromCart(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CartRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "product_id is required")
		return
	}

	cart, err := h.store.RemoveFromCart(c.Request.Context(), userID, req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *StoreHandler) ClearCart(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	cart, err := h.store.ClearCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// Checkout godoc
// @Summary Turn the cart into an order
// @Description The seller is notified over WhatsApp after the order is stored; whatsapp_sent reports the outcome.
// @Tags Store
// @Produce json
// @Success 200 {object} CheckoutResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/store/cart/checkout [post]
func (h *StoreHandler) Checkout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	result, err := h.store.Checkout(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		Order:        result.Order,
		Success:      true,
		Message:      "order placed successfully",
		WhatsAppSent: result.WhatsAppSent,
	})
}

func (h *StoreHandler) SalesReport(c *gin.Context) {
	report, err := h.store.SalesReport(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func requireUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "invalid authentication"))
		return "", false
	}
	return userID, true
}
