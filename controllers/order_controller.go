package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront-orders/middlewares"
	"storefront-orders/models"
	"storefront-orders/utils"
)

const TotalCountHeader = "X-Total-Count"

type OrderService interface {
	CreateOrder(ctx context.Context, customerID int64, req models.CreateOrderRequest) (models.OrderRef, error)
	ListOrders(ctx context.Context, customerID int64, page models.Page) ([]models.OrderResponse, int, error)
	GetOrder(ctx context.Context, customerID int64, code string) (*models.OrderResponse, error)
	AdminListOrders(ctx context.Context, page models.Page) ([]models.OrderResponse, int, error)
	AdminUpdateStatus(ctx context.Context, orderID int64, req models.UpdateStatusRequest) error
}

type OrderController struct {
	orders OrderService
}

func NewOrderController(orders OrderService) *OrderController {
	return &OrderController{orders: orders}
}

func (oc *OrderController) CreateOrder(c *gin.Context) {
	defer recordOperation(c, "create")

	customerID, ok := middlewares.CustomerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ref, err := oc.orders.CreateOrder(c.Request.Context(), customerID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.CreateOrderResponse{
		Message:   "Order created successfully",
		OrderID:   ref.ID,
		OrderCode: ref.Code,
	})
}

// GetUserOrders lists the caller's orders, newest first.
func (oc *OrderController) GetUserOrders(c *gin.Context) {
	defer recordOperation(c, "list")

	customerID, ok := middlewares.CustomerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	page, err := parsePage(c)
	if err != nil {
		respondError(c, err)
		return
	}

	orders, total, err := oc.orders.ListOrders(c.Request.Context(), customerID, page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header(TotalCountHeader, strconv.Itoa(total))
	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) GetOrderDetails(c *gin.Context) {
	defer recordOperation(c, "details")

	customerID, ok := middlewares.CustomerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	order, err := oc.orders.GetOrder(c.Request.Context(), customerID, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (oc *OrderController) AdminListOrders(c *gin.Context) {
	defer recordOperation(c, "admin_list")

	page, err := parsePage(c)
	if err != nil {
		respondError(c, err)
		return
	}

	orders, total, err := oc.orders.AdminListOrders(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header(TotalCountHeader, strconv.Itoa(total))
	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	defer recordOperation(c, "update_status")

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := oc.orders.AdminUpdateStatus(c.Request.Context(), orderID, req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order_id": orderID, "status": req.Status})
}

func recordOperation(c *gin.Context, operation string) {
	status := c.Writer.Status()
	middlewares.RecordOrderOperation(operation, status >= 200 && status < 300)
}

func parsePage(c *gin.Context) (models.Page, error) {
	var page models.Page
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, utils.NewValidationError("page", "must be a positive integer")
		}
		page.Number = n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, utils.NewValidationError("limit", "must be a positive integer")
		}
		page.Size = n
	}
	return page.Normalize(), nil
}

// respondError maps service errors onto status codes. Infrastructure detail
// is logged and never sent to the client.
func respondError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.Is(err, utils.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, utils.ErrMissingCredential), errors.Is(err, utils.ErrInvalidCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	case errors.Is(err, utils.ErrInsufficientPrivilege):
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin privileges required"})
	default:
		slog.ErrorContext(c.Request.Context(), "order request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", middlewares.GetRequestID(c),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
