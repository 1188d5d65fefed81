package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	chatapp "marketchat/internal/app/chat"
	"marketchat/internal/domain/chat"
)

// SMTPEmail delivers the email fallback notification. Template rendering
// stays deliberately minimal; the engine only decides whether and to whom
// to send.
type SMTPEmail struct {
	addr    string
	from    string
	auth    smtp.Auth
	enabled bool

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Enabled  bool
}

func NewSMTPEmail(cfg SMTPConfig) *SMTPEmail {
	e := &SMTPEmail{
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:    cfg.From,
		enabled: cfg.Enabled && cfg.Host != "" && cfg.From != "",
		send:    smtp.SendMail,
	}
	if cfg.Username != "" {
		e.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return e
}

var _ chatapp.NotificationTransport = (*SMTPEmail)(nil)

func (e *SMTPEmail) Kind() string { return chatapp.TransportEmail }

func (e *SMTPEmail) Enabled() bool { return e.enabled }

func (e *SMTPEmail) Send(ctx context.Context, to chatapp.Contact, msg *chat.Message, conv *chat.Conversation) (string, error) {
	subject := "You have a new message"
	if msg.SenderName != "" {
		subject = "New message from " + msg.SenderName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", to.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(renderText(msg))
	b.WriteString("\r\n")

	if err := e.send(e.addr, e.auth, e.from, []string{to.Email}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("notify: email send: %w", err)
	}
	// Email has no provider message id; retries are bounded by the dedup
	// window instead.
	return "", nil
}
