package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/convoguard/convoguard/internal/alerts"
)

// WebhookDispatcher POSTs alert payloads to configured endpoints so
// on-call staff hear about critical alerts without watching a
// dashboard. Only alerts at or above the configured severity floor are
// delivered.
type WebhookDispatcher struct {
	urls        []string
	minSeverity string
	client      *http.Client
}

// NewWebhookDispatcher creates a dispatcher for the given endpoints.
// minSeverity defaults to critical when empty.
func NewWebhookDispatcher(urls []string, minSeverity string) *WebhookDispatcher {
	if minSeverity == "" {
		minSeverity = alerts.SeverityCritical
	}
	return &WebhookDispatcher{
		urls:        urls,
		minSeverity: minSeverity,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Event string             `json:"event"`
	Alert alerts.SafetyAlert `json:"alert"`
}

// Dispatch sends the alert to every endpoint if it clears the severity
// floor. Delivery failures are logged, never propagated: a down webhook
// endpoint must not fail the triage pipeline.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, a alerts.SafetyAlert) {
	if len(d.urls) == 0 {
		return
	}
	if !alerts.SeverityAtLeast(a.Severity, d.minSeverity) {
		return
	}

	payload, err := json.Marshal(webhookPayload{Event: "safety_alert", Alert: a})
	if err != nil {
		log.Printf("events: marshalling webhook payload: %v", err)
		return
	}

	for _, url := range d.urls {
		if err := d.send(ctx, url, payload); err != nil {
			log.Printf("events: webhook %s: %v", url, err)
		}
	}
}

func (d *WebhookDispatcher) send(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
