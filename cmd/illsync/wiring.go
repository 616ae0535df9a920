package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/steveyegge/illsync/internal/attrs"
	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/config"
	"github.com/steveyegge/illsync/internal/lifecycle"
	"github.com/steveyegge/illsync/internal/notification"
	"github.com/steveyegge/illsync/internal/statusgraph"
	"github.com/steveyegge/illsync/internal/storage/factory"
	"github.com/steveyegge/illsync/internal/telemetry"
)

// newLogger builds the process logger from log.level and log.json.
// --verbose forces debug level.
func newLogger(w io.Writer, cfg config.LogSettings, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openServices opens storage and builds the broker client and lifecycle
// service from settings.
func openServices(ctx context.Context) error {
	if err := statusgraph.Default().Validate(); err != nil {
		return fmt.Errorf("status graph: %w", err)
	}

	s, err := factory.NewFromConfig(ctx, settings.DB, factory.Options{Instrument: telemetry.Enabled()})
	if err != nil {
		return err
	}
	store = s

	client = newBrokerClient(settings.Broker)

	mode, err := attrs.ParseMode(settings.Lifecycle.AttributeMode)
	if err != nil {
		return err
	}
	templates, err := notification.LoadTemplates(settings.Notification.Templates)
	if err != nil {
		return err
	}

	svc, err = lifecycle.New(store, client,
		lifecycle.WithStrictTransitions(settings.Lifecycle.StrictTransitions),
		lifecycle.WithAttributeMode(mode),
		lifecycle.WithItemTypes(settings.Lifecycle.LoanItemType, settings.Lifecycle.ClosedItemType),
		lifecycle.WithTemplates(templates),
		lifecycle.WithNotifier(newDispatcher(settings.Notification)),
		lifecycle.WithLogger(logger),
		lifecycle.WithEventLog(eventDir()),
	)
	return err
}

func newBrokerClient(cfg config.BrokerSettings) *broker.Client {
	return broker.NewClient(cfg.BaseURL, cfg.Sigil, cfg.APIKey,
		broker.WithTimeout(cfg.Timeout),
		broker.WithCatalogURL(cfg.CatalogURL),
		broker.WithRetryMaxElapsed(cfg.FetchRetryMaxElapsed),
		broker.WithLogger(logger),
	)
}

// newDispatcher sends patron notices. illsync has no patron register of its
// own, so email and sms fall back to the log unless a webhook picks them up.
func newDispatcher(cfg config.NotificationSettings) *notification.Dispatcher {
	opts := []notification.DispatcherOption{
		notification.WithEmailCommand(cfg.EmailCommand),
		notification.WithDispatchLogger(logger),
		notification.WithOutput(stdout),
	}
	if cfg.WebhookURL != "" {
		opts = append(opts, notification.WithWebhook(cfg.WebhookURL))
	}
	return notification.NewDispatcher(opts...)
}

func closeServices() {
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage failed", "error", err)
		}
	}
	store, client, svc = nil, nil, nil
}
