package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Receipt struct {
	Name        string
	Email       string
	EventTitle  string
	EventDate   string
	Venue       string
	TicketType  string
	Quantity    int
	AmountTotal int64
	Currency    string
}

type Mailer interface {
	SendTicketReceipt(ctx context.Context, r Receipt) error
}

type SendGridMailer struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

func NewSendGridMailer(apiKey, from, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

func (m *SendGridMailer) SendTicketReceipt(ctx context.Context, r Receipt) error {
	subject, plain, html := renderReceipt(r)
	message := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		subject,
		mail.NewEmail(r.Name, r.Email),
		plain,
		html,
	)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send receipt: sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogMailer stands in when no SendGrid key is configured.
type LogMailer struct{}

func (LogMailer) SendTicketReceipt(ctx context.Context, r Receipt) error {
	log.Info().
		Str("to", r.Email).
		Str("event", r.EventTitle).
		Int("quantity", r.Quantity).
		Msg("Receipt email skipped, mailer not configured")
	return nil
}

func renderReceipt(r Receipt) (subject, plain, html string) {
	amount := FormatAmount(r.AmountTotal, r.Currency)
	subject = fmt.Sprintf("Your tickets for %s", r.EventTitle)
	plain = fmt.Sprintf(
		"Hi %s,\n\nYou bought %d x %s for %s on %s at %s.\nTotal paid: %s\n\nShow the QR code in the app at the door.",
		r.Name, r.Quantity, r.TicketType, r.EventTitle, r.EventDate, r.Venue, amount,
	)
	html = fmt.Sprintf(
		"<p>Hi %s,</p><p>You bought <strong>%d x %s</strong> for <strong>%s</strong> on %s at %s.</p><p>Total paid: %s</p><p>Show the QR code in the app at the door.</p>",
		r.Name, r.Quantity, r.TicketType, r.EventTitle, r.EventDate, r.Venue, amount,
	)
	return subject, plain, html
}

// FormatAmount renders minor units, e.g. 1250 "usd" -> "12.50 USD".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, strings.ToUpper(currency))
}
