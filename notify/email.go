package notify

import (
	"bytes"
	"context"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SendFunc submits one message. smtp.SendMail satisfies it.
type SendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// EmailConfig addresses the SMTP relay.
type EmailConfig struct {
	Addr     string
	From     string
	Username string
	Password string
}

// EmailHandler mails each event to the member it concerns. Events without
// an email address are skipped.
type EmailHandler struct {
	cfg  EmailConfig
	auth sasl.Client
	send SendFunc
}

// NewEmailHandler validates cfg. PLAIN authentication is used when a
// username is configured.
func NewEmailHandler(cfg EmailConfig) (*EmailHandler, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("smtp address is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp sender address is required")
	}

	h := &EmailHandler{cfg: cfg, send: smtp.SendMail}
	if cfg.Username != "" {
		h.auth = sasl.NewPlainClient("", cfg.Username, cfg.Password)
	}
	return h, nil
}

// WithSender replaces the SMTP submission function.
func (h *EmailHandler) WithSender(send SendFunc) *EmailHandler {
	if send != nil {
		h.send = send
	}
	return h
}

func (h *EmailHandler) Handle(_ context.Context, event Event) error {
	if event.Email == "" {
		return nil
	}

	from := h.cfg.From
	if v := event.Data["from"]; v != "" {
		from = v
	}
	msg := buildMessage(from, event.Email, event.Data["replyTo"], event)

	if err := h.send(h.cfg.Addr, h.auth, from, []string{event.Email}, bytes.NewReader(msg)); err != nil {
		return errors.Wrapf(err, "send %s notification", event.Type)
	}
	return nil
}

func buildMessage(from, to, replyTo string, event Event) []byte {
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	var b bytes.Buffer
	writeHeader(&b, "From", from)
	writeHeader(&b, "To", to)
	if replyTo != "" {
		writeHeader(&b, "Reply-To", replyTo)
	}
	writeHeader(&b, "Subject", mime.QEncoding.Encode("utf-8", headerValue(event.Title)))
	writeHeader(&b, "Date", at.Format(time.RFC1123Z))
	writeHeader(&b, "MIME-Version", "1.0")
	writeHeader(&b, "Content-Type", "text/plain; charset=utf-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(event.Description, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(headerValue(value))
	b.WriteString("\r\n")
}

// headerValue drops line breaks so event data cannot inject headers.
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
