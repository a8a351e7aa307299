package service

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"eventrental/internal/db"
	"eventrental/internal/entities"
)

//go:embed templates/order_confirmed.html
var templateFS embed.FS

var orderConfirmedTmpl = template.Must(template.ParseFS(templateFS, "templates/order_confirmed.html"))

// Notifier tells customers about order progress. Delivery is best effort.
type Notifier interface {
	NotifyOrderConfirmed(ctx context.Context, order *db.Order)
}

// NotificationService sends confirmation emails and text messages in the background.
type NotificationService struct {
	email    EmailSender
	sms      SMSSender
	currency string
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewNotificationService(email EmailSender, sms SMSSender, currency string, logger *zap.Logger) *NotificationService {
	return &NotificationService{email: email, sms: sms, currency: strings.ToUpper(currency), logger: logger}
}

func (s *NotificationService) NotifyOrderConfirmed(_ context.Context, order *db.Order) {
	data := s.emailData(order)
	subject := fmt.Sprintf("Your rental order %s is confirmed", order.Code)
	plain := fmt.Sprintf("Hello %s,\n\nYour rental order %s for %s to %s is confirmed.\nTotal: %s\nRefundable deposit: %s\n\nThank you for renting with us.",
		data.CustomerName, data.OrderCode, data.StartDate, data.EndDate, data.Total, data.Deposit)

	var html bytes.Buffer
	if err := orderConfirmedTmpl.Execute(&html, data); err != nil {
		s.logger.Error("render confirmation email", zap.String("order_code", order.Code), zap.Error(err))
	}

	log := s.logger.With(zap.String("order_code", order.Code))
	email, name, phone := order.CustomerEmail, order.CustomerName, order.CustomerPhone

	// Sends must outlive the request that triggered them.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if err := s.email.SendEmail(ctx, email, name, subject, plain, html.String()); err != nil {
			s.logFailure(log, "confirmation email", err)
		}
		if phone == "" {
			return
		}
		msg := fmt.Sprintf("Your rental %s (%s to %s) is confirmed. Details are in your email.", order.Code, data.StartDate, data.EndDate)
		if err := s.sms.SendSMS(ctx, phone, msg); err != nil {
			s.logFailure(log, "confirmation sms", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) logFailure(log *zap.Logger, what string, err error) {
	if errors.Is(err, errSenderNotConfigured) {
		log.Debug(what+" skipped", zap.Error(err))
		return
	}
	log.Warn(what+" failed", zap.Error(err))
}

func (s *NotificationService) emailData(order *db.Order) entities.OrderEmailData {
	lines := make([]entities.OrderEmailLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, entities.OrderEmailLine{
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Days:        l.Days,
			Amount:      s.money(l.LineTotal),
		})
	}
	return entities.OrderEmailData{
		CustomerName: order.CustomerName,
		OrderCode:    order.Code,
		StartDate:    order.StartDate.Time().Format("Jan 2, 2006"),
		EndDate:      order.EndDate.Time().Format("Jan 2, 2006"),
		Lines:        lines,
		Total:        s.money(order.Total),
		Deposit:      s.money(order.DepositTotal),
		CurrentYear:  time.Now().Year(),
	}
}

func (s *NotificationService) money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + s.currency
}
