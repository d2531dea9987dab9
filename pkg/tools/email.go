package tools

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/harun/daisy/internal/observability"
	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/rs/zerolog"
)

// EmailMessage is a plain-text message ready to send.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPOptions configures SMTPSender.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender sends mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	opts SMTPOptions
	now  func() time.Time
}

func NewSMTPSender(opts SMTPOptions) *SMTPSender {
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &SMTPSender{opts: opts, now: time.Now}
}

// Configured reports whether a relay host and sender address are set.
func (s *SMTPSender) Configured() bool {
	return s.opts.Host != "" && s.opts.From != ""
}

func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	var auth smtp.Auth
	if s.opts.Username != "" {
		auth = smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host)
	}
	return smtp.SendMail(addr, auth, s.opts.From, []string{msg.To}, s.buildMessage(msg))
}

func (s *SMTPSender) buildMessage(msg EmailMessage) []byte {
	from := (&mail.Address{Name: s.opts.FromName, Address: s.opts.From}).String()

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// EmailTool sends an email on the user's behalf.
type EmailTool struct {
	sender Sender
	logger zerolog.Logger
}

// NewEmailTool creates the email tool. A nil sender leaves the tool
// advertised but failing at call time.
func NewEmailTool(sender Sender, logger zerolog.Logger) *EmailTool {
	return &EmailTool{sender: sender, logger: logger}
}

func (e *EmailTool) Declarations() []toolmanager.Declaration {
	return []toolmanager.Declaration{{
		Name:        "sendEmail",
		Description: "Sends an email to a specified recipient.",
		Parameters: toolmanager.Object(
			toolmanager.Parameter{Name: "to", Type: "string", Description: "The email address of the recipient.", Required: true},
			toolmanager.Parameter{Name: "subject", Type: "string", Description: "The subject of the email.", Required: true},
			toolmanager.Parameter{Name: "body", Type: "string", Description: "The body content of the email.", Required: true},
		),
	}}
}

func (e *EmailTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	to, err := requiredString(args, "to")
	if err != nil {
		return nil, err
	}
	subject, err := requiredString(args, "subject")
	if err != nil {
		return nil, err
	}
	body, err := requiredString(args, "body")
	if err != nil {
		return nil, err
	}

	addr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, toolmanager.ExecutionError("invalid recipient address: %s", to)
	}
	if strings.ContainsAny(subject, "\r\n") {
		return nil, toolmanager.ExecutionError("subject must be a single line")
	}

	if e.sender == nil {
		return nil, toolmanager.ExecutionError("email is not configured: missing tools.email.smtp_host")
	}

	if err := e.sender.Send(ctx, EmailMessage{To: addr.Address, Subject: subject, Body: body}); err != nil {
		observability.RecordEmailAudit(ctx, addr.Address, "failure")
		e.logger.Warn().Err(err).Str("call_id", toolmanager.CallIDFromContext(ctx)).Msg("Email delivery failed")
		return nil, toolmanager.ExecutionError("failed to send email: %v", err)
	}

	observability.RecordEmailAudit(ctx, addr.Address, "success")
	e.logger.Info().Int("body_len", len(body)).Str("call_id", toolmanager.CallIDFromContext(ctx)).Msg("Email sent")
	return "Email sent successfully.", nil
}
