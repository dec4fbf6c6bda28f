package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/skip2/go-qrcode"
	"gopkg.in/gomail.v2"

	"storefront-orders/models"
)

// Mailer sends customer notifications about orders.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

// SMTPMailer delivers mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	msg, err := m.ConfirmationMessage(order)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("notifier: send confirmation for %s: %w", order.Code, err)
	}
	return nil
}

// ConfirmationMessage builds the order confirmation: a plain text part, an
// HTML alternative and an inline QR code of the order code.
func (m *SMTPMailer) ConfirmationMessage(order *models.Order) (*gomail.Message, error) {
	data := newConfirmationData(order)

	var html bytes.Buffer
	if err := confirmationHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("notifier: render confirmation for %s: %w", order.Code, err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", order.Email, order.FullName)
	msg.SetHeader("Subject", fmt.Sprintf("Order %s confirmed", order.Code))
	msg.SetBody("text/plain", confirmationText(data))
	msg.AddAlternative("text/html", html.String())

	png, err := qrcode.Encode(order.Code, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("notifier: qr code for %s: %w", order.Code, err)
	}
	msg.Embed("order-qr.png",
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(png)
			return err
		}),
		gomail.SetHeader(map[string][]string{
			"Content-Type":        {"image/png"},
			"Content-ID":          {"<order-qr>"},
			"Content-Disposition": {"inline"},
		}),
	)
	return msg, nil
}

type confirmationLine struct {
	Name     string
	Quantity int
	Subtotal string
}

type confirmationData struct {
	Code          string
	FullName      string
	OrderDate     string
	Address       string
	PaymentMethod string
	Total         string
	Lines         []confirmationLine
}

var paymentLabels = map[models.PaymentMethod]string{
	models.PaymentCOD:  "Cash on delivery",
	models.PaymentBank: "Bank transfer",
	models.PaymentCard: "Card",
}

func newConfirmationData(order *models.Order) confirmationData {
	data := confirmationData{
		Code:          order.Code,
		FullName:      order.FullName,
		OrderDate:     order.OrderDate.UTC().Format("02 Jan 2006 15:04 MST"),
		Address:       order.ShippingAddress,
		PaymentMethod: paymentLabels[order.PaymentMethod],
		Total:         order.TotalAmount.StringFixed(2),
	}
	if data.PaymentMethod == "" {
		data.PaymentMethod = string(order.PaymentMethod)
	}
	for _, it := range order.Items {
		name := fmt.Sprintf("%s #%d", it.ProductType, it.ProductID)
		if it.Product != nil {
			name = it.Product.DisplayName()
		}
		data.Lines = append(data.Lines, confirmationLine{
			Name:     name,
			Quantity: it.Quantity,
			Subtotal: it.Subtotal().StringFixed(2),
		})
	}
	return data
}

func confirmationText(d confirmationData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", d.FullName)
	fmt.Fprintf(&b, "Thank you for your order. Order %s was placed on %s.\n\n", d.Code, d.OrderDate)
	for _, l := range d.Lines {
		fmt.Fprintf(&b, "  %d x %s  %s\n", l.Quantity, l.Name, l.Subtotal)
	}
	fmt.Fprintf(&b, "\nTotal: %s\nPayment: %s\nShipping to: %s\n", d.Total, d.PaymentMethod, d.Address)
	b.WriteString("\nWe will let you know when your order ships.\n")
	return b.String()
}

var confirmationHTML = template.Must(template.New("confirmation").Parse(`<html>
<body>
<p>Dear {{.FullName}},</p>
<p>Thank you for your order. Order <strong>{{.Code}}</strong> was placed on {{.OrderDate}}.</p>
<table>
{{- range .Lines}}
<tr><td>{{.Quantity}} &times; {{.Name}}</td><td>{{.Subtotal}}</td></tr>
{{- end}}
<tr><td><strong>Total</strong></td><td><strong>{{.Total}}</strong></td></tr>
</table>
<p>Payment: {{.PaymentMethod}}<br>Shipping to: {{.Address}}</p>
<p><img src="cid:order-qr" alt="{{.Code}}" width="160" height="160"></p>
<p>We will let you know when your order ships.</p>
</body>
</html>
`))
