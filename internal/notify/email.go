package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inbucket/html2text"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	// Static recipient list; guard desk / society office inboxes.
	To []string `mapstructure:"to"`
}

// EmailGateway delivers notifications to the society office inbox over SMTP.
// Sending happens in a goroutine so the caller never waits on the mail server.
type EmailGateway struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewEmailGateway(cfg SMTPConfig) *EmailGateway {
	return &EmailGateway{
		cfg:    cfg,
		logger: slog.With("component", "notify-email"),
	}
}

func (g *EmailGateway) Dispatch(ctx context.Context, d Dispatch) {
	go func() {
		if err := g.send(d); err != nil {
			g.logger.Warn("Failed to send notification email",
				"recipient", d.Recipient, "title", d.Title, "error", err)
		}
	}()
}

func (g *EmailGateway) send(d Dispatch) error {
	html := fmt.Sprintf("<h2>%s</h2><p>%s</p>", d.Title, d.Body)
	text, err := html2text.FromString(html, html2text.Options{PrettyTables: true})
	if err != nil {
		text = d.Body
	}

	msg := mail.NewMsg()
	if err := msg.From(g.cfg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(g.cfg.To...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	subject := d.Title
	if d.Data["priority"] == PriorityHigh {
		subject = "[ALERT] " + subject
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	opts := []mail.Option{mail.WithPort(g.cfg.Port)}
	if g.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(g.cfg.Username),
			mail.WithPassword(g.cfg.Password),
		)
	}
	client, err := mail.NewClient(g.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	return client.DialAndSend(msg)
}
