package notifier

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	defaultSendTimeout = 30 * time.Second
	sslSMTPPort        = 465
)

// SMTPNotifier delivers completion and failure emails over SMTP.
type SMTPNotifier struct {
	client *mail.Client
	from   string
}

func NewSMTPNotifier(host string, port int, username, password string) (*SMTPNotifier, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("smtp credentials are required")
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTimeout(defaultSendTimeout),
	}
	if port == sslSMTPPort {
		opts = append(opts, mail.WithSSL())
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build smtp client: %w", err)
	}

	return &SMTPNotifier{
		client: client,
		from:   username,
	}, nil
}

func (n *SMTPNotifier) SendResult(ctx context.Context, to, batchID string, resultsCSV []byte) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("notifier is not initialized")
	}

	subject := fmt.Sprintf("Enrichment Results Ready – %s", batchID)
	body := fmt.Sprintf(
		"<html><body><h3>Enrichment Results Ready</h3>"+
			"<p>Your batch <b>%s</b> has completed. The CSV is attached.</p>"+
			"</body></html>",
		batchID,
	)

	msg, err := n.buildMessage(to, subject, body)
	if err != nil {
		return err
	}
	if err := msg.AttachReader(fmt.Sprintf("results_%s.csv", batchID), bytes.NewReader(resultsCSV)); err != nil {
		return fmt.Errorf("failed to attach results csv: %w", err)
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send result email: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) SendFailure(ctx context.Context, to, batchID, reason string) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("notifier is not initialized")
	}

	subject := fmt.Sprintf("Enrichment Processing Error – %s", batchID)
	body := fmt.Sprintf(
		"<html><body><h3>Enrichment Processing Error</h3>"+
			"<p>Batch <b>%s</b> encountered an error:</p><pre>%s</pre>"+
			"<p>Please try again later or contact support.</p></body></html>",
		batchID, reason,
	)

	msg, err := n.buildMessage(to, subject, body)
	if err != nil {
		return err
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send failure email: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) buildMessage(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}
