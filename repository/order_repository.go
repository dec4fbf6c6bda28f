package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-orders/database"
	"storefront-orders/models"
	"storefront-orders/utils"
)

// OrderRepository persists order headers and their line items.
type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*OrderRepository)

// WithClock overrides the clock used to stamp order dates.
func WithClock(now func() time.Time) Option {
	return func(r *OrderRepository) { r.now = now }
}

func NewOrderRepository(db *sql.DB, opts ...Option) *OrderRepository {
	r := &OrderRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const orderColumns = `order_id, order_code, customer_id, full_name, email, phone,
	shipping_address, payment_method, notes, total_amount, status, order_date`

// Create writes the header and every line item in one transaction. The
// order code depends on the id the header insert is assigned, so the header
// goes in with a unique placeholder code that is replaced before commit.
// Any failure rolls the whole order back.
func (r *OrderRepository) Create(ctx context.Context, customerID int64, in models.NewOrder) (models.OrderRef, error) {
	if len(in.Items) == 0 {
		return models.OrderRef{}, utils.NewValidationError("items", "order must contain at least one item")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.OrderRef{}, utils.Infra("begin order transaction", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback() }()

	orderDate := r.now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_code, customer_id, full_name, email, phone,
			shipping_address, payment_method, notes, total_amount, status, order_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"TMP-"+uuid.NewString(),
		customerID,
		in.FullName,
		in.Email,
		in.Phone,
		in.ShippingAddress,
		string(in.PaymentMethod),
		in.Notes,
		in.TotalAmount,
		string(models.StatusPending),
		orderDate.Format(database.TimestampLayout),
	)
	if err != nil {
		return models.OrderRef{}, utils.Infra("insert order header", err)
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		return models.OrderRef{}, utils.Infra("read order id", err)
	}

	code := models.OrderCode(orderDate, orderID)
	res, err = tx.ExecContext(ctx, `UPDATE orders SET order_code = ? WHERE order_id = ?`, code, orderID)
	if err != nil {
		return models.OrderRef{}, utils.Infra("assign order code", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return models.OrderRef{}, utils.Infra("assign order code", fmt.Errorf("updated %d rows: %v", n, err))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, product_id, product_type, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return models.OrderRef{}, utils.Infra("prepare order item insert", err)
	}
	defer stmt.Close()

	for i, item := range in.Items {
		if _, err := stmt.ExecContext(ctx, orderID, item.ProductID, string(item.ProductType), item.Quantity, item.UnitPrice); err != nil {
			return models.OrderRef{}, utils.Infra(fmt.Sprintf("insert order item %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.OrderRef{}, utils.Infra("commit order", err)
	}
	return models.OrderRef{ID: orderID, Code: code}, nil
}

// ListByCustomer returns one page of the customer's orders, newest first,
// with hydrated items, plus the customer's total order count.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64, page models.Page) ([]models.Order, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE customer_id = ?`, customerID).Scan(&total); err != nil {
		return nil, 0, utils.Infra("count orders", err)
	}

	orders, err := r.queryHeaders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = ?
		ORDER BY order_date DESC, order_id DESC
		LIMIT ? OFFSET ?`,
		customerID, page.Size, page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListAll returns one page of every customer's orders, newest first.
func (r *OrderRepository) ListAll(ctx context.Context, page models.Page) ([]models.Order, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, utils.Infra("count orders", err)
	}

	orders, err := r.queryHeaders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY order_date DESC, order_id DESC
		LIMIT ? OFFSET ?`,
		page.Size, page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// GetByCode returns the customer's order with the given code. Orders owned
// by someone else are reported as not found.
func (r *OrderRepository) GetByCode(ctx context.Context, customerID int64, code string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_code = ? AND customer_id = ?`, code, customerID)
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
}

// UpdateStatus sets the header status, the only field that changes after
// creation.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE order_id = ?`, string(status), orderID)
	if err != nil {
		return utils.Infra("update order status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return utils.Infra("update order status", err)
	}
	if n == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) getOne(ctx context.Context, query string, args ...any) (*models.Order, error) {
	orders, err := r.queryHeaders(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, utils.ErrNotFound
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// queryHeaders reads every matching header and closes the result set before
// returning, so the connection is free for the item query.
func (r *OrderRepository) queryHeaders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.Infra("query orders", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var (
			o         models.Order
			payment   string
			status    string
			notes     sql.NullString
			orderDate dbTime
		)
		if err := rows.Scan(&o.ID, &o.Code, &o.CustomerID, &o.FullName, &o.Email, &o.Phone,
			&o.ShippingAddress, &payment, &notes, &o.TotalAmount, &status, &orderDate); err != nil {
			return nil, utils.Infra("scan order", err)
		}
		o.PaymentMethod = models.PaymentMethod(payment)
		o.Status = models.OrderStatus(status)
		o.Notes = nullStringPtr(notes)
		o.OrderDate = orderDate.Time
		o.Items = []models.OrderItem{}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.Infra("iterate orders", err)
	}
	return orders, nil
}

// attachItems loads the items of all given orders in one query, joining each
// item against the catalog table its product type names.
func (r *OrderRepository) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[int64]int, len(orders))
	args := make([]any, 0, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		args = append(args, o.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.order_item_id, oi.product_id, oi.product_type, oi.quantity, oi.unit_price,
		       w.id, w.name, w.images, w.winery, c.name, w.year,
		       a.id, a.name, a.images, t.name, a.brand
		FROM order_items oi
		LEFT JOIN wines w ON oi.product_type = 'wine' AND w.id = oi.product_id
		LEFT JOIN countries c ON c.id = w.country_id
		LEFT JOIN accessories a ON oi.product_type = 'accessory' AND a.id = oi.product_id
		LEFT JOIN accessory_types t ON t.id = a.accessory_type_id
		WHERE oi.order_id IN (`+placeholders(len(args))+`)
		ORDER BY oi.order_id, oi.order_item_id`,
		args...,
	)
	if err != nil {
		return utils.Infra("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item        models.OrderItem
			productType string
			unitPrice   decimal.Decimal

			wineID, wineYear                      sql.NullInt64
			wineName, wineImages, winery, country sql.NullString

			accID                                 sql.NullInt64
			accName, accImages, accType, accBrand sql.NullString
		)
		if err := rows.Scan(&item.OrderID, &item.ID, &item.ProductID, &productType, &item.Quantity, &unitPrice,
			&wineID, &wineName, &wineImages, &winery, &country, &wineYear,
			&accID, &accName, &accImages, &accType, &accBrand); err != nil {
			return utils.Infra("scan order item", err)
		}
		item.ProductType = models.ProductType(productType)
		item.UnitPrice = unitPrice

		switch item.ProductType {
		case models.ProductWine:
			if wineID.Valid {
				item.Product = models.WineProduct{
					Name:    wineName.String,
					Images:  parseImages(wineImages),
					Winery:  nullStringPtr(winery),
					Country: nullStringPtr(country),
					Year:    nullIntPtr(wineYear),
				}
			}
		case models.ProductAccessory:
			if accID.Valid {
				item.Product = models.AccessoryProduct{
					Name:          accName.String,
					Images:        parseImages(accImages),
					AccessoryType: nullStringPtr(accType),
					Brand:         nullStringPtr(accBrand),
				}
			}
		default:
			return utils.Infra("hydrate order item", fmt.Errorf("unknown product type %q on item %d", productType, item.ID))
		}

		i, ok := index[item.OrderID]
		if !ok {
			return utils.Infra("hydrate order item", errors.New("item for unrequested order"))
		}
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return utils.Infra("iterate order items", err)
	}
	return nil
}
