package notifier

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-orders/models"
)

func testOrder() *models.Order {
	return &models.Order{
		ID:              37,
		Code:            "ORD202403050037",
		FullName:        "Jean <Valjean>",
		Email:           "jean@example.com",
		ShippingAddress: "Rue Plumet 55, Paris",
		PaymentMethod:   models.PaymentBank,
		TotalAmount:     decimal.RequireFromString("90.00"),
		OrderDate:       time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC),
		Items: []models.OrderItem{
			{ProductID: 1, ProductType: models.ProductWine, Quantity: 2, UnitPrice: decimal.RequireFromString("33.00"),
				Product: models.WineProduct{Name: "Sancerre"}},
			{ProductID: 8, ProductType: models.ProductAccessory, Quantity: 1, UnitPrice: decimal.RequireFromString("24.00")},
		},
	}
}

func TestConfirmationText(t *testing.T) {
	text := confirmationText(newConfirmationData(testOrder()))

	assert.Contains(t, text, "Dear Jean <Valjean>,")
	assert.Contains(t, text, "Order ORD202403050037 was placed on 05 Mar 2024 18:00 UTC.")
	assert.Contains(t, text, "2 x Sancerre  66.00")
	assert.Contains(t, text, "1 x accessory #8  24.00")
	assert.Contains(t, text, "Total: 90.00")
	assert.Contains(t, text, "Payment: Bank transfer")
}

func TestConfirmationHTMLEscapesCustomerInput(t *testing.T) {
	var html bytes.Buffer
	require.NoError(t, confirmationHTML.Execute(&html, newConfirmationData(testOrder())))

	assert.Contains(t, html.String(), "Dear Jean &lt;Valjean&gt;,")
	assert.Contains(t, html.String(), `src="cid:order-qr"`)
	assert.NotContains(t, html.String(), "<Valjean>")
}

func TestConfirmationMessage(t *testing.T) {
	m := NewSMTPMailer("localhost", 2525, "", "", "orders@storefront.test")

	msg, err := m.ConfirmationMessage(testOrder())
	require.NoError(t, err)
	assert.Equal(t, []string{"Order ORD202403050037 confirmed"}, msg.GetHeader("Subject"))
	assert.Equal(t, []string{"orders@storefront.test"}, msg.GetHeader("From"))
	require.Len(t, msg.GetHeader("To"), 1)
	assert.Contains(t, msg.GetHeader("To")[0], "jean@example.com")

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "Content-ID: <order-qr>")
	assert.Contains(t, raw.String(), "multipart/alternative")
}

func TestSendOrderConfirmationHonoursCancelledContext(t *testing.T) {
	m := NewSMTPMailer("localhost", 2525, "", "", "orders@storefront.test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.SendOrderConfirmation(ctx, testOrder())
	assert.ErrorIs(t, err, context.Canceled)
}
