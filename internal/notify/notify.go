// Package notify sends the booking-cancellation email (spec §1: "the SMTP
// sender" is out of scope for detailed specification beyond its
// interface). Grounded in the teacher's EmailService.sendSMTP, trimmed to
// Michael's one template and dropping the teacher's Mailgun/ICS-attachment
// branches, which Michael's spec has no use for.
package notify

import (
	"bytes"
	"fmt"
	"net/smtp"
	"time"

	"github.com/bromanko/michael/internal/config"
)

// Notifier sends cancellation notices. A nil SMTP config (per spec §6:
// "present only when every required SMTP variable is set") makes every
// call a no-op, since email notification itself is optional.
type Notifier struct {
	cfg *config.SMTPConfig
}

func New(cfg *config.SMTPConfig) *Notifier {
	return &Notifier{cfg: cfg}
}

// CancellationInput is the data needed to render the cancellation email.
type CancellationInput struct {
	To          string
	Title       string
	Start       time.Time
	CancelledBy string
	Reason      string
}

// SendCancellation emails the invitee that their booking was cancelled.
// Per spec §4.6's failure isolation: "Email send failures on cancellation
// are logged and swallowed; cancellation itself is still committed" —
// callers should log a returned error but must not fail the cancellation
// on it.
func (n *Notifier) SendCancellation(in CancellationInput) error {
	if n.cfg == nil {
		return nil
	}

	subject := fmt.Sprintf("Cancelled: %s", in.Title)
	body := fmt.Sprintf(`Hello,

Your meeting has been cancelled.

Meeting: %s
When: %s
Cancelled by: %s
%s
`, in.Title, in.Start.Format("Monday, January 2, 2006 at 3:04 PM MST"), in.CancelledBy, reasonLine(in.Reason))

	return n.send(in.To, subject, body)
}

func reasonLine(reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf("Reason: %s\n", reason)
}

func (n *Notifier) send(to, subject, body string) error {
	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	return smtp.SendMail(addr, auth, n.cfg.From, []string{to}, msg.Bytes())
}
