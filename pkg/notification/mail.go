package notification

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wneessen/go-mail"
)

type MailConfig struct {
	Host     string `env:"MAIL_HOST"`
	Username string `env:"MAIL_USERNAME"`
	Password string `env:"MAIL_PASSWORD"`
	Port     int    `env:"MAIL_PORT"`
	From     string `env:"MAIL_FROM"`

	// Timeout bounds one delivery when the caller's context has no deadline.
	Timeout time.Duration `env:"MAIL_TIMEOUT"`
}

// Enabled reports whether enough is configured to attempt delivery.
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Mailer sends HTML mail over SMTP with PLAIN auth. Every delivery is bound
// to the caller's context: cancelling it closes the connection.
type Mailer struct {
	cfg     MailConfig
	deliver func(ctx context.Context, msg *mail.Msg) error
}

func NewMailer(cfg MailConfig) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &Mailer{cfg: cfg}
	m.deliver = m.dialAndSend
	return m
}

func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	if !m.cfg.Enabled() {
		return fmt.Errorf("mail not configured")
	}
	if to == "" {
		return fmt.Errorf("mail recipient is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.message(to, subject, html)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	return m.deliver(ctx, msg)
}

func (m *Mailer) message(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithDialContextFunc(boundDialer(ctx)),
	}
	if m.cfg.Port > 0 {
		opts = append(opts, mail.WithPort(m.cfg.Port))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// boundDialer ties the SMTP connection to ctx. Reads and writes stop at the
// context deadline and the socket is closed once ctx is done, so a stalled
// server cannot hold the sender past its budget.
func boundDialer(ctx context.Context) mail.DialContextFunc {
	return func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		context.AfterFunc(ctx, func() { _ = conn.Close() })
		return conn, nil
	}
}
