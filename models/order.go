package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "cod"
	PaymentBank PaymentMethod = "bank"
	PaymentCard PaymentMethod = "card"
)

// OrderCodePrefix is the fixed lead of every order code.
const OrderCodePrefix = "ORD"

// OrderCode derives the public code for an order: prefix, UTC creation date
// as YYYYMMDD, then the order id padded to at least four digits.
func OrderCode(createdAt time.Time, orderID int64) string {
	return fmt.Sprintf("%s%s%04d", OrderCodePrefix, createdAt.UTC().Format("20060102"), orderID)
}

// Order is an order header with its line items. Contact and delivery fields
// are a snapshot taken at checkout, not a reference to the customer profile.
type Order struct {
	ID              int64
	Code            string
	CustomerID      int64
	FullName        string
	Email           string
	Phone           string
	ShippingAddress string
	PaymentMethod   PaymentMethod
	Notes           *string
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	OrderDate       time.Time
	Items           []OrderItem
}

type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductType ProductType
	Quantity    int
	UnitPrice   decimal.Decimal
	// Product is nil when the catalog row no longer exists.
	Product Product
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder is the validated input to the repository's create operation.
type NewOrder struct {
	FullName        string
	Email           string
	Phone           string
	ShippingAddress string
	PaymentMethod   PaymentMethod
	Notes           *string
	TotalAmount     decimal.Decimal
	Items           []NewOrderItem
}

type NewOrderItem struct {
	ProductID   int64
	ProductType ProductType
	Quantity    int
	UnitPrice   decimal.Decimal
}

// OrderRef identifies a freshly created order.
type OrderRef struct {
	ID   int64
	Code string
}

type OrderEvent struct {
	OrderID    int64       `json:"order_id"`
	OrderCode  string      `json:"order_code"`
	CustomerID int64       `json:"customer_id"`
	Type       string      `json:"type"` // created, status_updated
	Status     OrderStatus `json:"status"`
	Total      float64     `json:"total"`
	Occurred   time.Time   `json:"occurred"`
}

const (
	EventCreated       = "created"
	EventStatusUpdated = "status_updated"
)
