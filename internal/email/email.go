// Package email delivers account lifecycle mail. Message bodies are plain
// templates where {PropertyName} placeholders are substituted from the
// record's schema fields, so templates can reference any registered
// attribute by name.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"authgate/internal/schema"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends through a plain-auth SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return &SMTPSender{
		addr: addr,
		from: from,
		auth: smtp.PlainAuth("", username, password, host),
	}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	return nil
}

// Render substitutes {FieldName} placeholders in the template with the
// record's field values. Unknown placeholders are left intact.
func Render(template string, sch *schema.Schema, rec any) string {
	out := template
	for _, field := range sch.Columns() {
		out = strings.ReplaceAll(out, "{"+field.Name+"}", field.Get(rec))
	}
	return out
}

// Notifier composes and sends the lifecycle messages around registration and
// password reset.
type Notifier struct {
	sender  Sender
	schemas *schema.Registry

	verificationSubject  string
	verificationTemplate string
	resetSubject         string
	resetTemplate        string
}

func NewNotifier(sender Sender, schemas *schema.Registry) *Notifier {
	return &Notifier{
		sender:  sender,
		schemas: schemas,

		verificationSubject:  "Verify your account",
		verificationTemplate: "Hello,\n\nUse the following token to verify your account: {VerificationToken}\n",
		resetSubject:         "Password reset requested",
		resetTemplate:        "Hello,\n\nUse the following token to reset your password: {PasswordResetToken}\n",
	}
}

// SetVerificationTemplate overrides the default verification message.
func (n *Notifier) SetVerificationTemplate(subject, template string) {
	n.verificationSubject = subject
	n.verificationTemplate = template
}

// SetResetTemplate overrides the default password reset message.
func (n *Notifier) SetResetTemplate(subject, template string) {
	n.resetSubject = subject
	n.resetTemplate = template
}

func (n *Notifier) sendFor(ctx context.Context, rec any, subject, template string) error {
	sch, ok := n.schemas.For(rec)
	if !ok {
		return fmt.Errorf("email: no schema registered for type")
	}
	to := recipientOf(sch, rec)
	if to == "" {
		return fmt.Errorf("email: record of type %s has no recipient address", sch.TypeName())
	}
	return n.sender.Send(ctx, to, subject, Render(template, sch, rec))
}

// SendVerification mails the record's verification token to its address.
func (n *Notifier) SendVerification(ctx context.Context, rec any) error {
	return n.sendFor(ctx, rec, n.verificationSubject, n.verificationTemplate)
}

// SendPasswordReset mails the record's reset token to its address.
func (n *Notifier) SendPasswordReset(ctx context.Context, rec any) error {
	return n.sendFor(ctx, rec, n.resetSubject, n.resetTemplate)
}

// recipientOf picks the destination address: the first identity field whose
// value contains "@", falling back to the first non-empty identity value.
func recipientOf(sch *schema.Schema, rec any) string {
	var fallback string
	for _, field := range sch.IdentityFields() {
		v := field.Get(rec)
		if v == "" {
			continue
		}
		if strings.Contains(v, "@") {
			return v
		}
		if fallback == "" {
			fallback = v
		}
	}
	return fallback
}
