package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ankaa/models"
	"ankaa/services/notification/delivery"
)

// SMTPConfig configures EmailTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailTransport sends multipart (text + HTML) mail over SMTP.
type EmailTransport struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
	now      func() time.Time
	logger   *zap.Logger
}

func NewEmailTransport(cfg SMTPConfig, logger *zap.Logger) *EmailTransport {
	return &EmailTransport{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		now:      time.Now,
		logger:   logger.Named("email_transport"),
	}
}

func (t *EmailTransport) Channel() models.Channel {
	return models.ChannelEmail
}

func (t *EmailTransport) IsReady(context.Context) bool {
	return t.cfg.Host != "" && t.cfg.From != ""
}

// Send does not honour ctx cancellation once the SMTP exchange started.
func (t *EmailTransport) Send(ctx context.Context, address string, payload models.ChannelPayload) (string, error) {
	to, err := mail.ParseAddress(address)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not an email address", delivery.ErrRecipientInvalid, address)
	}
	from, err := mail.ParseAddress(t.cfg.From)
	if err != nil {
		return "", fmt.Errorf("invalid SMTP_FROM %q: %w", t.cfg.From, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@%s>", randomID(), domainOf(from.Address))
	msg, err := t.buildMessage(from, to, messageID, payload)
	if err != nil {
		return "", err
	}

	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}
	addr := t.cfg.Host + ":" + strconv.Itoa(t.cfg.Port)
	if err := t.sendMail(addr, auth, from.Address, []string{to.Address}, msg); err != nil {
		return "", classifySMTP(err)
	}
	return messageID, nil
}

func (t *EmailTransport) buildMessage(from, to *mail.Address, messageID string, payload models.ChannelPayload) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", payload.Body},
		{"text/html; charset=UTF-8", payload.HTML},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	headers := [][2]string{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("UTF-8", payload.Title)},
		{"Date", t.now().Format(time.RFC1123Z)},
		{"Message-ID", messageID},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	}
	for _, h := range headers {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// classifySMTP marks 5xx replies about the mailbox as permanent.
func classifySMTP(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 550 || tpErr.Code == 551 || tpErr.Code == 553:
			return fmt.Errorf("%w: %s", delivery.ErrRecipientInvalid, tpErr.Msg)
		case tpErr.Code >= 400 && tpErr.Code < 500:
			return fmt.Errorf("%w: smtp %d %s", delivery.ErrTransportUnavailable, tpErr.Code, tpErr.Msg)
		}
	}
	return err
}

func randomID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return "localhost"
}
