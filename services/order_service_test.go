package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-orders/models"
	"storefront-orders/utils"
)

type fakeStore struct {
	created  []models.NewOrder
	orders   map[int64]*models.Order
	updated  map[int64]models.OrderStatus
	createFn func(models.NewOrder) (models.OrderRef, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[int64]*models.Order{}, updated: map[int64]models.OrderStatus{}}
}

func (f *fakeStore) Create(_ context.Context, customerID int64, in models.NewOrder) (models.OrderRef, error) {
	f.created = append(f.created, in)
	if f.createFn != nil {
		return f.createFn(in)
	}
	id := int64(len(f.created))
	code := models.OrderCode(time.Date(2024, 1, 23, 0, 0, 0, 0, time.UTC), id)
	f.orders[id] = &models.Order{ID: id, Code: code, CustomerID: customerID, TotalAmount: in.TotalAmount, Status: models.StatusPending}
	return models.OrderRef{ID: id, Code: code}, nil
}

func (f *fakeStore) ListByCustomer(_ context.Context, customerID int64, _ models.Page) ([]models.Order, int, error) {
	var out []models.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListAll(_ context.Context, _ models.Page) ([]models.Order, int, error) {
	var out []models.Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (f *fakeStore) GetByCode(_ context.Context, customerID int64, code string) (*models.Order, error) {
	for _, o := range f.orders {
		if o.Code == code && o.CustomerID == customerID {
			return o, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeStore) GetByID(_ context.Context, orderID int64) (*models.Order, error) {
	if o, ok := f.orders[orderID]; ok {
		return o, nil
	}
	return nil, utils.ErrNotFound
}

func (f *fakeStore) UpdateStatus(_ context.Context, orderID int64, status models.OrderStatus) error {
	o, ok := f.orders[orderID]
	if !ok {
		return utils.ErrNotFound
	}
	o.Status = status
	f.updated[orderID] = status
	return nil
}

type publishedEvent struct {
	event    models.OrderEvent
	priority uint8
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, event models.OrderEvent, priority uint8) error {
	p.events = append(p.events, publishedEvent{event, priority})
	return p.err
}

func floatPtr(f float64) *float64 { return &f }

func validRequest() models.CreateOrderRequest {
	return models.CreateOrderRequest{
		FullName:      "Ada Lovelace",
		Email:         "ada@example.com",
		Phone:         "+44 20 7946 0000",
		Address:       "12 St James's Square, London",
		PaymentMethod: "card",
		Items: []models.OrderItemRequest{
			{ProductType: "wine", Wine: &models.ProductRefDTO{ID: "1", Price: floatPtr(45)}, Quantity: 2},
			{ProductType: "accessory", Accessory: &models.ProductRefDTO{ID: "3", Price: floatPtr(12.5)}, Quantity: 1},
		},
		Total: floatPtr(102.5),
	}
}

func newTestService(opts Options) (*OrderService, *fakeStore, *fakePublisher) {
	store := newFakeStore()
	pub := &fakePublisher{}
	if opts.HighValueThreshold.IsZero() {
		opts.HighValueThreshold = decimal.NewFromInt(1000)
	}
	return NewOrderService(store, pub, opts), store, pub
}

func TestCreateOrder(t *testing.T) {
	svc, store, pub := newTestService(Options{})

	ref, err := svc.CreateOrder(context.Background(), 7, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "ORD202401230001", ref.Code)

	require.Len(t, store.created, 1)
	in := store.created[0]
	assert.Equal(t, models.PaymentCard, in.PaymentMethod)
	assert.Equal(t, "12 St James's Square, London", in.ShippingAddress)
	require.Len(t, in.Items, 2)
	assert.Equal(t, models.NewOrderItem{
		ProductID:   3,
		ProductType: models.ProductAccessory,
		Quantity:    1,
		UnitPrice:   decimal.NewFromFloat(12.5),
	}, in.Items[1])

	require.Len(t, pub.events, 1)
	assert.Equal(t, PriorityNormal, pub.events[0].priority)
	assert.Equal(t, models.EventCreated, pub.events[0].event.Type)
	assert.Equal(t, ref.Code, pub.events[0].event.OrderCode)
	assert.Equal(t, int64(7), pub.events[0].event.CustomerID)
}

func TestCreateOrderHighValuePriority(t *testing.T) {
	svc, _, pub := newTestService(Options{})
	req := validRequest()
	req.Items = req.Items[:1]
	req.Items[0].Quantity = 40
	req.Total = floatPtr(1800)

	_, err := svc.CreateOrder(context.Background(), 7, req)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, PriorityHighValue, pub.events[0].priority)
}

func TestCreateOrderRejectsIncompleteRequests(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.CreateOrderRequest)
		field  string
	}{
		{"missing full name", func(r *models.CreateOrderRequest) { r.FullName = "" }, "fullName"},
		{"missing email", func(r *models.CreateOrderRequest) { r.Email = "" }, "email"},
		{"malformed email", func(r *models.CreateOrderRequest) { r.Email = "not-an-email" }, "email"},
		{"missing phone", func(r *models.CreateOrderRequest) { r.Phone = "" }, "phone"},
		{"missing address", func(r *models.CreateOrderRequest) { r.Address = "" }, "address"},
		{"missing payment method", func(r *models.CreateOrderRequest) { r.PaymentMethod = "" }, "paymentMethod"},
		{"unknown payment method", func(r *models.CreateOrderRequest) { r.PaymentMethod = "crypto" }, "paymentMethod"},
		{"missing items", func(r *models.CreateOrderRequest) { r.Items = nil }, "items"},
		{"empty items", func(r *models.CreateOrderRequest) { r.Items = []models.OrderItemRequest{} }, "items"},
		{"missing total", func(r *models.CreateOrderRequest) { r.Total = nil }, "total"},
		{"negative total", func(r *models.CreateOrderRequest) { r.Total = floatPtr(-1) }, "total"},
		{"unknown product type", func(r *models.CreateOrderRequest) { r.Items[0].ProductType = "cheese" }, "items[0].productType"},
		{"missing product reference", func(r *models.CreateOrderRequest) { r.Items[1].Accessory = nil }, "items[1].accessory"},
		{"missing product id", func(r *models.CreateOrderRequest) { r.Items[0].Wine.ID = "" }, "items[0].wine.id"},
		{"non-numeric product id", func(r *models.CreateOrderRequest) { r.Items[0].Wine.ID = "abc" }, "items[0].wine.id"},
		{"missing price", func(r *models.CreateOrderRequest) { r.Items[1].Accessory.Price = nil }, "items[1].accessory.price"},
		{"zero quantity", func(r *models.CreateOrderRequest) { r.Items[1].Quantity = 0 }, "items[1].quantity"},
		{"negative quantity", func(r *models.CreateOrderRequest) { r.Items[0].Quantity = -2 }, "items[0].quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, pub := newTestService(Options{})
			req := validRequest()
			tt.mutate(&req)

			_, err := svc.CreateOrder(context.Background(), 7, req)

			var verr *utils.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.NotEmpty(t, verr.Reason)
			assert.Empty(t, store.created)
			assert.Empty(t, pub.events)
		})
	}
}

func TestCreateOrderTotalMismatch(t *testing.T) {
	req := validRequest()
	req.Total = floatPtr(10)

	t.Run("trusted by default", func(t *testing.T) {
		svc, store, _ := newTestService(Options{})
		_, err := svc.CreateOrder(context.Background(), 7, req)
		require.NoError(t, err)
		require.Len(t, store.created, 1)
		assert.True(t, decimal.NewFromInt(10).Equal(store.created[0].TotalAmount))
	})

	t.Run("rejected when verified", func(t *testing.T) {
		svc, store, _ := newTestService(Options{VerifyTotal: true})
		_, err := svc.CreateOrder(context.Background(), 7, req)
		var verr *utils.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "total", verr.Field)
		assert.Contains(t, verr.Reason, "102.50")
		assert.Empty(t, store.created)
	})
}

func TestCreateOrderStoreFailure(t *testing.T) {
	svc, store, pub := newTestService(Options{})
	store.createFn = func(models.NewOrder) (models.OrderRef, error) {
		return models.OrderRef{}, utils.Infra("insert order header", errors.New("connection reset"))
	}

	_, err := svc.CreateOrder(context.Background(), 7, validRequest())

	var ierr *utils.InfraError
	assert.True(t, errors.As(err, &ierr))
	assert.Empty(t, pub.events)
}

func TestCreateOrderPublishFailureKeepsOrder(t *testing.T) {
	svc, store, pub := newTestService(Options{})
	pub.err = errors.New("channel closed")

	ref, err := svc.CreateOrder(context.Background(), 7, validRequest())
	require.NoError(t, err)
	assert.NotZero(t, ref.ID)
	assert.Len(t, store.created, 1)
}

func TestCreateOrderWithoutPublisher(t *testing.T) {
	svc := NewOrderService(newFakeStore(), nil, Options{})

	_, err := svc.CreateOrder(context.Background(), 7, validRequest())
	assert.NoError(t, err)
}

func TestGetOrder(t *testing.T) {
	svc, _, _ := newTestService(Options{})
	ctx := context.Background()
	ref, err := svc.CreateOrder(ctx, 7, validRequest())
	require.NoError(t, err)

	resp, err := svc.GetOrder(ctx, 7, ref.Code)
	require.NoError(t, err)
	assert.Equal(t, ref.ID, resp.OrderID)
	assert.Equal(t, 102.5, resp.TotalAmount)

	_, err = svc.GetOrder(ctx, 8, ref.Code)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	_, err = svc.GetOrder(ctx, 7, "  ")
	var verr *utils.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestListOrders(t *testing.T) {
	svc, _, _ := newTestService(Options{})
	ctx := context.Background()
	_, err := svc.CreateOrder(ctx, 7, validRequest())
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, 8, validRequest())
	require.NoError(t, err)

	orders, total, err := svc.ListOrders(ctx, 7, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(7), orders[0].CustomerID)

	all, total, err := svc.AdminListOrders(ctx, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)
}

func TestAdminUpdateStatus(t *testing.T) {
	svc, store, pub := newTestService(Options{})
	ctx := context.Background()
	ref, err := svc.CreateOrder(ctx, 7, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.AdminUpdateStatus(ctx, ref.ID, models.UpdateStatusRequest{Status: "cancelled"}))
	assert.Equal(t, models.StatusCancelled, store.updated[ref.ID])
	require.Len(t, pub.events, 2)
	assert.Equal(t, models.EventStatusUpdated, pub.events[1].event.Type)
	assert.Equal(t, PriorityCancelled, pub.events[1].priority)

	require.NoError(t, svc.AdminUpdateStatus(ctx, ref.ID, models.UpdateStatusRequest{Status: "shipped"}))
	assert.Equal(t, PriorityNormal, pub.events[2].priority)
}

func TestAdminUpdateStatusErrors(t *testing.T) {
	svc, store, pub := newTestService(Options{})
	ctx := context.Background()

	err := svc.AdminUpdateStatus(ctx, 1, models.UpdateStatusRequest{Status: "lost"})
	var verr *utils.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "status", verr.Field)

	err = svc.AdminUpdateStatus(ctx, 99, models.UpdateStatusRequest{Status: "shipped"})
	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.Empty(t, store.updated)
	assert.Empty(t, pub.events)
}
