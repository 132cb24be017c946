package notifier

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"signalledger/src/risk"
)

// Notifier delivers risk events to the external notification collaborator.
// Delivery is best-effort and happens strictly after the ledger transaction
// that produced the event has committed.
type Notifier interface {
	NotifyRiskBreach(ctx context.Context, event risk.RiskBreachEvent) error
	NotifyAutoStop(ctx context.Context, event risk.AutoStopEvent) error
}

// Deliver pushes whatever a recomputation produced. Failures are logged,
// not propagated: the ledger write already committed and must not be
// reported as failed because a webhook was down.
func Deliver(ctx context.Context, n Notifier, events risk.Events) {
	if n == nil || events.Empty() {
		return
	}

	if events.Breach != nil {
		if err := n.NotifyRiskBreach(ctx, *events.Breach); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "notifier",
				"event_id":  events.Breach.EventID,
				"user_id":   events.Breach.UserID,
			}).WithError(err).Error("Failed to deliver risk breach event")
		}
	}

	if events.AutoStop != nil {
		if err := n.NotifyAutoStop(ctx, *events.AutoStop); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "notifier",
				"event_id":  events.AutoStop.EventID,
				"user_id":   events.AutoStop.UserID,
			}).WithError(err).Error("Failed to deliver auto-stop event")
		}
	}
}

// Noop discards all events. Used when no transport is configured.
type Noop struct{}

func (Noop) NotifyRiskBreach(context.Context, risk.RiskBreachEvent) error { return nil }
func (Noop) NotifyAutoStop(context.Context, risk.AutoStopEvent) error     { return nil }

// FromConfig builds the configured transport.
func FromConfig(config Config) Notifier {
	switch config.Transport {
	case TransportWebhook:
		return NewWebhookNotifier(config.WebhookURL, config.WebhookSecret)
	case TransportWebsocket:
		return NewWebsocketNotifier(config.WebsocketURL)
	default:
		logger.WithField("transport", config.Transport).
			Warn("No notifier transport configured, events will be dropped")
		return Noop{}
	}
}
