package models

import (
	"fmt"
	"time"
)

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	FullName      string             `json:"fullName" validate:"required"`
	Email         string             `json:"email" validate:"required,email"`
	Phone         string             `json:"phone" validate:"required"`
	Address       string             `json:"address" validate:"required"`
	PaymentMethod string             `json:"paymentMethod" validate:"required,oneof=cod bank card"`
	Items         []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Total         *float64           `json:"total" validate:"required,gte=0"`
	Notes         *string            `json:"notes,omitempty"`
}

// OrderItemRequest carries the product under the key named by ProductType.
type OrderItemRequest struct {
	ProductType string         `json:"productType" validate:"required,oneof=wine accessory"`
	Wine        *ProductRefDTO `json:"wine,omitempty" validate:"required_if=ProductType wine"`
	Accessory   *ProductRefDTO `json:"accessory,omitempty" validate:"required_if=ProductType accessory"`
	Quantity    int            `json:"quantity" validate:"required,gt=0"`
}

// Ref returns the product reference matching the item's discriminator.
func (r OrderItemRequest) Ref() *ProductRefDTO {
	switch ProductType(r.ProductType) {
	case ProductWine:
		return r.Wine
	case ProductAccessory:
		return r.Accessory
	}
	return nil
}

type ProductRefDTO struct {
	ID    string   `json:"id" validate:"required"`
	Price *float64 `json:"price" validate:"required,gte=0"`
}

type CreateOrderResponse struct {
	Message   string `json:"message"`
	OrderID   int64  `json:"orderId"`
	OrderCode string `json:"orderCode"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
}

type OrderResponse struct {
	OrderID         int64               `json:"order_id"`
	OrderCode       string              `json:"order_code"`
	CustomerID      int64               `json:"customer_id"`
	FullName        string              `json:"full_name"`
	Email           string              `json:"email"`
	Phone           string              `json:"phone"`
	OrderDate       time.Time           `json:"order_date"`
	TotalAmount     float64             `json:"total_amount"`
	Status          OrderStatus         `json:"status"`
	ShippingAddress string              `json:"shipping_address"`
	PaymentMethod   PaymentMethod       `json:"payment_method"`
	Notes           *string             `json:"notes"`
	Items           []OrderItemResponse `json:"items"`
}

// OrderItemResponse flattens the hydrated product. Type-specific fields of
// the other product kind are omitted; display fields of a product that no
// longer exists are null.
type OrderItemResponse struct {
	ProductID     int64       `json:"product_id"`
	ProductType   ProductType `json:"product_type"`
	Name          *string     `json:"name"`
	Price         float64     `json:"price"`
	Quantity      int         `json:"quantity"`
	Images        []string    `json:"images"`
	Winery        *string     `json:"winery,omitempty"`
	Country       *string     `json:"country,omitempty"`
	Year          *int        `json:"year,omitempty"`
	AccessoryType *string     `json:"accessory_type,omitempty"`
	Brand         *string     `json:"brand,omitempty"`
}

func NewOrderResponse(o Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, NewOrderItemResponse(it))
	}
	return OrderResponse{
		OrderID:         o.ID,
		OrderCode:       o.Code,
		CustomerID:      o.CustomerID,
		FullName:        o.FullName,
		Email:           o.Email,
		Phone:           o.Phone,
		OrderDate:       o.OrderDate,
		TotalAmount:     o.TotalAmount.InexactFloat64(),
		Status:          o.Status,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Notes:           o.Notes,
		Items:           items,
	}
}

func NewOrderItemResponse(it OrderItem) OrderItemResponse {
	resp := OrderItemResponse{
		ProductID:   it.ProductID,
		ProductType: it.ProductType,
		Price:       it.UnitPrice.InexactFloat64(),
		Quantity:    it.Quantity,
	}
	if it.Product == nil {
		return resp
	}
	name := it.Product.DisplayName()
	resp.Name = &name
	resp.Images = it.Product.ImageURLs()
	if resp.Images == nil {
		resp.Images = []string{}
	}
	switch p := it.Product.(type) {
	case WineProduct:
		resp.Winery = p.Winery
		resp.Country = p.Country
		resp.Year = p.Year
	case AccessoryProduct:
		resp.AccessoryType = p.AccessoryType
		resp.Brand = p.Brand
	default:
		panic(fmt.Sprintf("models: unhandled product type %T", p))
	}
	return resp
}
