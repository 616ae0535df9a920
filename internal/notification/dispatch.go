package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Notifier delivers a notice to a patron. Callers treat delivery as
// fire-and-forget and only log failures.
type Notifier interface {
	Notify(ctx context.Context, patronID int64, n *Notice) []DispatchResult
}

// Contact is how a patron can be reached.
type Contact struct {
	Email string
	Phone string
}

// ContactLookup resolves a patron to contact details.
type ContactLookup func(ctx context.Context, patronID int64) (Contact, bool)

// DispatchResult records the outcome of a notification dispatch.
type DispatchResult struct {
	Channel string `json:"channel"` // e.g., "email", "webhook"
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher sends notices over the channel matching their transport, plus
// the webhook when one is configured.
type Dispatcher struct {
	emailCommand string
	webhookURL   string
	contacts     ContactLookup
	httpClient   *http.Client
	out          io.Writer
	logger       *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithEmailCommand sets the mail command (invoked as `cmd -s subject to`).
// Empty disables email delivery and logs instead.
func WithEmailCommand(cmd string) DispatcherOption {
	return func(d *Dispatcher) { d.emailCommand = cmd }
}

// WithWebhook posts every notice as JSON to url.
func WithWebhook(url string) DispatcherOption {
	return func(d *Dispatcher) { d.webhookURL = url }
}

// WithContacts sets the patron contact resolver.
func WithContacts(fn ContactLookup) DispatcherOption {
	return func(d *Dispatcher) { d.contacts = fn }
}

// WithOutput redirects the log channel (default stdout).
func WithOutput(w io.Writer) DispatcherOption {
	return func(d *Dispatcher) { d.out = w }
}

// WithDispatchLogger sets the structured logger.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		emailCommand: "mail",
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		out:          os.Stdout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify sends n to the patron and returns one result per channel tried.
func (d *Dispatcher) Notify(ctx context.Context, patronID int64, n *Notice) []DispatchResult {
	var contact Contact
	if d.contacts != nil {
		contact, _ = d.contacts(ctx, patronID)
	}

	var results []DispatchResult
	switch n.Transport {
	case TransportEmail:
		results = append(results, d.result("email", d.sendEmail(ctx, n, contact.Email)))
	case TransportSMS:
		results = append(results, d.result("sms", d.sendSMS(n, contact.Phone)))
	default:
		results = append(results, DispatchResult{Channel: string(n.Transport), Error: fmt.Sprintf("unknown transport: %s", n.Transport)})
	}
	if d.webhookURL != "" {
		results = append(results, d.result("webhook", d.sendWebhook(ctx, patronID, n)))
	}
	for _, r := range results {
		if !r.Success {
			d.logger.Warn("notice dispatch failed", "channel", r.Channel, "code", n.TemplateCode, "patron_id", patronID, "error", r.Error)
		}
	}
	return results
}

func (d *Dispatcher) result(channel string, err error) DispatchResult {
	r := DispatchResult{Channel: channel, Success: err == nil}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

var errNoRecipient = errors.New("no recipient configured")

// logNotice writes the notice to the log channel.
func (d *Dispatcher) logNotice(channel, to string, n *Notice) {
	_, _ = fmt.Fprintf(d.out, "%s notice %s (to %s)\n  %s\n%s\n\n", channel, n.TemplateCode, to, n.Title, indent(n.Content))
}

func (d *Dispatcher) sendEmail(ctx context.Context, n *Notice, to string) error {
	if to == "" {
		d.logNotice("email", "<unknown>", n)
		return fmt.Errorf("email: %w", errNoRecipient)
	}
	if d.emailCommand == "" {
		d.logNotice("email", to, n)
		return nil
	}
	// #nosec G204 - command comes from user config
	cmd := exec.CommandContext(ctx, d.emailCommand, "-s", n.Title, to)
	cmd.Stdin = strings.NewReader(n.Content)
	if err := cmd.Run(); err != nil {
		d.logNotice("email", to, n)
		return fmt.Errorf("mail command failed (logged instead): %w", err)
	}
	return nil
}

// sendSMS has no gateway; the message is logged for staff to forward.
func (d *Dispatcher) sendSMS(n *Notice, phone string) error {
	if phone == "" {
		d.logNotice("sms", "<unknown>", n)
		return fmt.Errorf("sms: %w", errNoRecipient)
	}
	d.logNotice("sms", phone, n)
	return nil
}

type webhookPayload struct {
	Type     string  `json:"type"`
	PatronID int64   `json:"patron_id"`
	Notice   *Notice `json:"notice"`
}

func (d *Dispatcher) sendWebhook(ctx context.Context, patronID int64, n *Notice) error {
	data, err := json.Marshal(webhookPayload{Type: "ill_notice", PatronID: patronID, Notice: n})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Illsync-Event", n.TemplateCode)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
