package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/utils"
)

// Mailer sends transactional email
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to string, order *models.Order) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService sends email through an SMTP relay
type EmailService struct {
	smtpHost     string
	smtpPort     int
	smtpUsername string
	smtpPassword string
	fromEmail    string
	siteURL      string
	sendMail     sendMailFunc
	logger       *zap.Logger
}

// NewEmailService creates an SMTP mailer
func NewEmailService(host string, port int, username, password, from, siteURL string, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Trim quotes from password if present
	if len(password) >= 2 && password[0] == '"' && password[len(password)-1] == '"' {
		password = password[1 : len(password)-1]
	}
	if from == "" {
		from = username
	}
	return &EmailService{
		smtpHost:     host,
		smtpPort:     port,
		smtpUsername: username,
		smtpPassword: password,
		fromEmail:    from,
		siteURL:      strings.TrimRight(siteURL, "/"),
		sendMail:     smtp.SendMail,
		logger:       logger,
	}
}

// SendOrderConfirmation emails the order summary to the customer
func (s *EmailService) SendOrderConfirmation(ctx context.Context, to string, order *models.Order) error {
	if to == "" {
		return fmt.Errorf("%w: no recipient", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderOrderConfirmation(order, s.siteURL)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("MediTrack - Order #%d confirmed", order.ID)
	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.fromEmail, to, subject, body)

	return s.sendEmail(to, message)
}

func (s *EmailService) sendEmail(to, message string) error {
	auth := smtp.PlainAuth("", s.smtpUsername, s.smtpPassword, s.smtpHost)
	addr := s.smtpHost + ":" + strconv.Itoa(s.smtpPort)

	if err := s.sendMail(addr, auth, s.fromEmail, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent", zap.String("to", to))
	return nil
}

// LogMailer records emails in the log instead of sending them
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer for environments without SMTP
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOrderConfirmation(_ context.Context, to string, order *models.Order) error {
	m.logger.Info("smtp not configured, skipping order confirmation",
		zap.String("to", to),
		zap.Int64("order_id", order.ID),
		zap.Float64("total", order.Total),
	)
	return nil
}

var orderConfirmationTemplate = template.Must(template.New("order").Funcs(template.FuncMap{
	"money": utils.FormatCurrency,
	"line": func(item models.OrderItem) string {
		return utils.FormatCurrency(item.Price * float64(item.Quantity))
	},
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Thank you for your order{{if .Name}}, {{.Name}}{{end}}!</h2>
  <p>Order <strong>#{{.Order.ID}}</strong> has been received and is {{.Order.Status}}.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th></tr>
    {{range .Order.Items}}<tr><td>{{.ProductName}}</td><td align="center">{{.Quantity}}</td><td align="right">{{line .}}</td></tr>
    {{end}}
  </table>
  <p>Subtotal: {{money .Order.Subtotal}}<br>
  Shipping ({{.Order.ShippingMethod}}): {{money .Order.ShippingCost}}<br>
  Tax: {{money .Order.Tax}}<br>
  <strong>Total: {{money .Order.Total}}</strong></p>
  {{if .OrderURL}}<p><a href="{{.OrderURL}}">View your order</a></p>{{end}}
</body>
</html>`))

func renderOrderConfirmation(order *models.Order, siteURL string) (string, error) {
	data := struct {
		Order    *models.Order
		Name     string
		OrderURL string
	}{
		Order: order,
		Name:  strings.TrimSpace(order.ShippingAddress.FirstName),
	}
	if siteURL != "" {
		data.OrderURL = fmt.Sprintf("%s/account/orders/%d", siteURL, order.ID)
	}

	var buf bytes.Buffer
	if err := orderConfirmationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render order confirmation: %w", err)
	}
	return buf.String(), nil
}
