// Package notify turns significant price drops into delivered alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"farewatch/internal/model"
	"farewatch/internal/pricing"
)

// Sink delivers one alert. Delivery is fire-and-forget: the notifier logs
// failures and never retries or blocks the refresh on them.
type Sink interface {
	Deliver(ctx context.Context, alert model.Alert) error
}

// Notifier decides which routes crossed the significant-drop threshold and
// emits exactly one alert per qualifying route per refresh cycle.
type Notifier struct {
	sinks []Sink
	log   *slog.Logger
	now   func() time.Time
}

// New constructs a Notifier delivering through the given sinks.
func New(log *slog.Logger, sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, log: log, now: time.Now}
}

// CheckAndNotify compares current against previous fares for every enabled
// route and emits one alert per significant drop. Routes missing either
// observation are skipped. It returns the alerts it emitted.
func (n *Notifier) CheckAndNotify(ctx context.Context, routes []model.Route, current, previous map[string]model.Fare) []model.Alert {
	var alerts []model.Alert
	for _, route := range routes {
		if !route.Enabled {
			continue
		}
		cur, okCur := current[route.ID]
		prev, okPrev := previous[route.ID]
		if !okCur || !okPrev {
			continue
		}
		change := pricing.Compute(prev.Price, cur.Price)
		if !change.Significant {
			continue
		}
		alert := model.Alert{
			RouteID:         route.ID,
			Origin:          route.Origin,
			Destination:     route.Destination,
			DestinationName: route.DestinationName,
			PreviousPrice:   prev.Price,
			CurrentPrice:    cur.Price,
			Currency:        cur.Currency,
			DropPercent:     -change.Percent,
			TriggeredAt:     n.now().UTC(),
		}
		alerts = append(alerts, alert)
		n.deliver(ctx, alert)
	}
	return alerts
}

func (n *Notifier) deliver(ctx context.Context, alert model.Alert) {
	for _, sink := range n.sinks {
		if err := sink.Deliver(ctx, alert); err != nil {
			n.log.Warn("alert delivery failed",
				"route_id", alert.RouteID,
				"error", err)
		}
	}
}

// TerminalSink writes alerts to a writer, one line each.
type TerminalSink struct {
	W io.Writer
}

// Deliver implements Sink.
func (s TerminalSink) Deliver(_ context.Context, alert model.Alert) error {
	_, err := fmt.Fprintf(s.W, "ALERT %s: %s\n", alert.Title(), alert.Body())
	return err
}

// WebhookSink POSTs the alert as JSON to a configured URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// Deliver implements Sink.
func (s WebhookSink) Deliver(ctx context.Context, alert model.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
