package notification

import (
	"context"
	"fmt"
	"html"
	"time"
)

// AlertNotice is the part of an alert that notifications render.
type AlertNotice struct {
	ID        string
	Message   string
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// MapLink points at the alert location on Google Maps.
func (a AlertNotice) MapLink() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", a.Latitude, a.Longitude)
}

func (a AlertNotice) EmailHTML() string {
	return fmt.Sprintf(`<h1>New Emergency Alert</h1>
<p><strong>Message:</strong> %s</p>
<p><strong>Location:</strong> <a href="%s">View on Map</a></p>
<p><strong>Timestamp:</strong> %s</p>`,
		html.EscapeString(a.Message), a.MapLink(), a.Timestamp.UTC().Format(time.RFC1123))
}

func (a AlertNotice) SMSBody() string {
	return fmt.Sprintf("Emergency Alert: %s. Location: %f,%f", a.Message, a.Latitude, a.Longitude)
}

type MailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// AlertNotifier sends the admin email and SMS for a new alert.
// Either channel may be nil; failures are returned, never retried.
type AlertNotifier struct {
	Mail       MailSender
	SMS        SMSSender
	AdminEmail string
	AdminPhone string
}

func (n *AlertNotifier) NotifyEmail(ctx context.Context, a AlertNotice) error {
	if n.Mail == nil || n.AdminEmail == "" {
		return nil
	}
	return n.Mail.Send(ctx, n.AdminEmail, "New Emergency Alert Received!", a.EmailHTML())
}

func (n *AlertNotifier) NotifySMS(ctx context.Context, a AlertNotice) error {
	if n.SMS == nil || n.AdminPhone == "" {
		return nil
	}
	return n.SMS.Send(ctx, n.AdminPhone, a.SMSBody())
}
