package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"signalledger/src/risk"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 5 * time.Second
)

// WebhookNotifier POSTs risk events as JSON to a configured endpoint. The
// payload is signed with HMAC-SHA256 so the receiver can authenticate us.
type WebhookNotifier struct {
	url    string
	secret string
	http   *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r.StatusCode() == 429 || r.StatusCode() >= 500 {
		return true
	}
	return false
}

func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	retryCount := defaultRetryAttempts - 1

	httpClient := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &WebhookNotifier{
		url:    url,
		secret: secret,
		http:   httpClient,
	}
}

func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (n *WebhookNotifier) post(ctx context.Context, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	req := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Ledger-Event-Type", eventType).
		SetBody(body)

	if n.secret != "" {
		req.SetHeader("X-Ledger-Signature", signPayload(body, n.secret))
	}

	resp, err := req.Post(n.url)
	if err != nil {
		return fmt.Errorf("post %s event: %w", eventType, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post %s event: unexpected status %d", eventType, resp.StatusCode())
	}

	logger.WithFields(map[string]interface{}{
		"component":  "WebhookNotifier",
		"event_type": eventType,
		"status":     resp.StatusCode(),
	}).Debug("Event delivered")

	return nil
}

func (n *WebhookNotifier) NotifyRiskBreach(ctx context.Context, event risk.RiskBreachEvent) error {
	return n.post(ctx, "risk_breach", event)
}

func (n *WebhookNotifier) NotifyAutoStop(ctx context.Context, event risk.AutoStopEvent) error {
	return n.post(ctx, "auto_stop", event)
}
