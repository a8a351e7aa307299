package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var errSenderNotConfigured = errors.New("sender not configured")

type EmailSender interface {
	SendEmail(ctx context.Context, toEmail, toName, subject, plainText, html string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, toNumber, body string) error
}

type SendGridSender struct {
	apiKey    string
	fromEmail string
	fromName  string
}

func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{apiKey: apiKey, fromEmail: fromEmail, fromName: fromName}
}

func (s *SendGridSender) SendEmail(ctx context.Context, toEmail, toName, subject, plainText, html string) error {
	if s.apiKey == "" || s.fromEmail == "" {
		return fmt.Errorf("sendgrid: %w", errSenderNotConfigured)
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, html)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", toEmail, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioSender returns a sender that fails every call when credentials are missing.
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	s := &TwilioSender{fromNumber: fromNumber}
	if accountSID != "" && authToken != "" {
		s.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username:   accountSID,
			Password:   authToken,
			AccountSid: accountSID,
		})
	}
	return s
}

func (s *TwilioSender) SendSMS(_ context.Context, toNumber, body string) error {
	if s.client == nil || s.fromNumber == "" {
		return fmt.Errorf("twilio: %w", errSenderNotConfigured)
	}
	if !strings.HasPrefix(toNumber, "+") {
		return fmt.Errorf("twilio: destination %q is not in E.164 format", toNumber)
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(s.fromNumber)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send to %s: %w", toNumber, err)
	}
	return nil
}
