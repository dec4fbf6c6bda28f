package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"storefront-orders/models"
	"storefront-orders/utils"
)

// Message priorities on the order queue.
const (
	PriorityNormal    uint8 = 5
	PriorityCancelled uint8 = 8
	PriorityHighValue uint8 = 9
)

// OrderStore is the persistence the service needs; *repository.OrderRepository
// satisfies it.
type OrderStore interface {
	Create(ctx context.Context, customerID int64, in models.NewOrder) (models.OrderRef, error)
	ListByCustomer(ctx context.Context, customerID int64, page models.Page) ([]models.Order, int, error)
	ListAll(ctx context.Context, page models.Page) ([]models.Order, int, error)
	GetByCode(ctx context.Context, customerID int64, code string) (*models.Order, error)
	GetByID(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent, priority uint8) error
}

type Options struct {
	// HighValueThreshold is the order total above which created events are
	// published with high priority.
	HighValueThreshold decimal.Decimal
	// VerifyTotal rejects orders whose total differs from the item sum
	// instead of only logging the difference.
	VerifyTotal bool
	Now         func() time.Time
}

type OrderService struct {
	repo     OrderStore
	events   EventPublisher
	opts     Options
	validate *validator.Validate
}

// NewOrderService wires the service. events may be nil, in which case no
// order events are published.
func NewOrderService(repo OrderStore, events EventPublisher, opts Options) *OrderService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &OrderService{
		repo:     repo,
		events:   events,
		opts:     opts,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateOrder validates the checkout request and stores it for the verified
// customer. Nothing touches the database until the whole request is valid.
func (s *OrderService) CreateOrder(ctx context.Context, customerID int64, req models.CreateOrderRequest) (models.OrderRef, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.OrderRef{}, toValidationError(err)
	}

	in := models.NewOrder{
		FullName:        strings.TrimSpace(req.FullName),
		Email:           strings.TrimSpace(req.Email),
		Phone:           strings.TrimSpace(req.Phone),
		ShippingAddress: strings.TrimSpace(req.Address),
		PaymentMethod:   models.PaymentMethod(req.PaymentMethod),
		Notes:           req.Notes,
		TotalAmount:     decimal.NewFromFloat(*req.Total),
		Items:           make([]models.NewOrderItem, 0, len(req.Items)),
	}

	itemSum := decimal.Zero
	for i, it := range req.Items {
		ref := it.Ref()
		field := fmt.Sprintf("items[%d].%s", i, it.ProductType)
		productID, err := strconv.ParseInt(strings.TrimSpace(ref.ID), 10, 64)
		if err != nil || productID <= 0 {
			return models.OrderRef{}, utils.NewValidationError(field+".id", "must be a positive integer")
		}
		item := models.NewOrderItem{
			ProductID:   productID,
			ProductType: models.ProductType(it.ProductType),
			Quantity:    it.Quantity,
			UnitPrice:   decimal.NewFromFloat(*ref.Price),
		}
		itemSum = itemSum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		in.Items = append(in.Items, item)
	}

	if !itemSum.Round(2).Equal(in.TotalAmount.Round(2)) {
		if s.opts.VerifyTotal {
			return models.OrderRef{}, utils.NewValidationError("total", "does not match the sum of the items ("+itemSum.StringFixed(2)+")")
		}
		slog.WarnContext(ctx, "order total differs from item sum",
			"customer_id", customerID,
			"total", in.TotalAmount.StringFixed(2),
			"item_sum", itemSum.StringFixed(2),
		)
	}

	ref, err := s.repo.Create(ctx, customerID, in)
	if err != nil {
		return models.OrderRef{}, err
	}

	priority := PriorityNormal
	if in.TotalAmount.GreaterThan(s.opts.HighValueThreshold) {
		priority = PriorityHighValue
	}
	s.publish(ctx, models.OrderEvent{
		OrderID:    ref.ID,
		OrderCode:  ref.Code,
		CustomerID: customerID,
		Type:       models.EventCreated,
		Status:     models.StatusPending,
		Total:      in.TotalAmount.InexactFloat64(),
		Occurred:   s.opts.Now().UTC(),
	}, priority)

	return ref, nil
}

// ListOrders returns one page of the customer's order history, newest first.
func (s *OrderService) ListOrders(ctx context.Context, customerID int64, page models.Page) ([]models.OrderResponse, int, error) {
	orders, total, err := s.repo.ListByCustomer(ctx, customerID, page)
	if err != nil {
		return nil, 0, err
	}
	return toResponses(orders), total, nil
}

func (s *OrderService) GetOrder(ctx context.Context, customerID int64, code string) (*models.OrderResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, utils.NewValidationError("code", "is required")
	}
	order, err := s.repo.GetByCode(ctx, customerID, code)
	if err != nil {
		return nil, err
	}
	resp := models.NewOrderResponse(*order)
	return &resp, nil
}

func (s *OrderService) AdminListOrders(ctx context.Context, page models.Page) ([]models.OrderResponse, int, error) {
	orders, total, err := s.repo.ListAll(ctx, page)
	if err != nil {
		return nil, 0, err
	}
	return toResponses(orders), total, nil
}

// AdminUpdateStatus moves an order to a new status and announces the change.
func (s *OrderService) AdminUpdateStatus(ctx context.Context, orderID int64, req models.UpdateStatusRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return toValidationError(err)
	}
	if orderID <= 0 {
		return utils.NewValidationError("id", "must be a positive integer")
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	status := models.OrderStatus(req.Status)
	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		return err
	}

	priority := PriorityNormal
	if status == models.StatusCancelled {
		priority = PriorityCancelled
	}
	s.publish(ctx, models.OrderEvent{
		OrderID:    order.ID,
		OrderCode:  order.Code,
		CustomerID: order.CustomerID,
		Type:       models.EventStatusUpdated,
		Status:     status,
		Total:      order.TotalAmount.InexactFloat64(),
		Occurred:   s.opts.Now().UTC(),
	}, priority)
	return nil
}

// publish sends an event after the order change has been committed. A failed
// publish is logged and never undoes or fails the change.
func (s *OrderService) publish(ctx context.Context, event models.OrderEvent, priority uint8) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event, priority); err != nil {
		slog.ErrorContext(ctx, "failed to publish order event",
			"order_id", event.OrderID,
			"type", event.Type,
			"error", err,
		)
	}
}

func toResponses(orders []models.Order) []models.OrderResponse {
	out := make([]models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, models.NewOrderResponse(o))
	}
	return out
}

// toValidationError reports the first failing field by its JSON path, e.g.
// "items[1].quantity".
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return utils.NewValidationError("", err.Error())
	}
	fe := fieldErrs[0]
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	return utils.NewValidationError(path, reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required for this product type"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must contain at least " + fe.Param() + " entry"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	}
	return "is invalid (" + fe.Tag() + ")"
}
