package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/config"
	"github.com/sells-group/wrestlebot/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertErrorRate       AlertType = "error_rate"
	AlertCircuitOpen     AlertType = "circuit_open"
	AlertBudgetExhausted AlertType = "budget_exhausted"
	AlertStatusDegraded  AlertType = "status_degraded"
)

// defaultMinOperations is the smallest window that can trip the error-rate
// alert when none is configured.
const defaultMinOperations = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Status against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(st *Status) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Ledger error rate.
	minOps := a.cfg.MinOperations
	if minOps <= 0 {
		minOps = defaultMinOperations
	}
	if act := st.Activity; act != nil && act.Total >= minOps && a.cfg.ErrorRateThreshold > 0 {
		rate := float64(act.FailureCount) / float64(act.Total)
		if rate > a.cfg.ErrorRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertErrorRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Error rate %.1f%% exceeds threshold %.1f%% (%d failed / %d operations in last %dh)",
					rate*100, a.cfg.ErrorRateThreshold*100, act.FailureCount, act.Total, st.LookbackHours,
				),
				Details: map[string]any{
					"error_rate": rate,
					"threshold":  a.cfg.ErrorRateThreshold,
					"failed":     act.FailureCount,
					"total":      act.Total,
				},
				Timestamp: now,
			})
		}
	}

	// AI circuit breaker.
	if b := st.Breaker; b != nil && b.State == resilience.CircuitOpen.String() {
		details := map[string]any{
			"breaker":              b.Name,
			"consecutive_failures": b.ConsecutiveFailures,
			"trips":                b.Trips,
		}
		if b.OpenUntil != nil {
			details["open_until"] = b.OpenUntil.UTC()
		}
		if b.LastError != "" {
			details["last_error"] = b.LastError
		}
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "high",
			Message:   fmt.Sprintf("AI circuit breaker %q is open after %d consecutive failures", b.Name, b.ConsecutiveFailures),
			Details:   details,
			Timestamp: now,
		})
	}

	// Exhausted rate budgets.
	for _, b := range st.Budgets {
		for w, u := range b.Windows {
			if u.Limit > 0 && u.Used >= u.Limit {
				alerts = append(alerts, Alert{
					Type:     AlertBudgetExhausted,
					Severity: "medium",
					Message:  fmt.Sprintf("Rate budget %q exhausted for the current %s (%d/%d)", b.Name, w, u.Used, u.Limit),
					Details: map[string]any{
						"budget":    b.Name,
						"window":    string(w),
						"used":      u.Used,
						"limit":     u.Limit,
						"resets_at": u.ResetsAt,
					},
					Timestamp: now,
				})
			}
		}
	}

	if len(st.Warnings) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertStatusDegraded,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d status part(s) could not be collected", len(st.Warnings)),
			Details:   map[string]any{"warnings": st.Warnings},
			Timestamp: now,
		})
	}

	return alerts
}

// Notification is the webhook payload. Text is a one-line summary so that
// chat webhooks render something useful without reading Alerts.
type Notification struct {
	Source string    `json:"source"`
	Text   string    `json:"text"`
	Alerts []Alert   `json:"alerts"`
	SentAt time.Time `json:"sent_at"`
}

func summarize(alerts []Alert) string {
	if len(alerts) == 1 {
		return fmt.Sprintf("[%s] %s", alerts[0].Severity, alerts[0].Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d alerts:", len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&b, " [%s] %s;", a.Severity, a.Message)
	}
	return strings.TrimSuffix(b.String(), ";")
}

// SendAlerts posts alerts to the configured webhook as one notification and
// returns how many were delivered: all of them, or none on failure. A
// transient failure is retried once.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}
	log := zap.L().With(zap.String("component", "monitoring.alerter"))

	n := Notification{Source: "wrestlebot", Text: summarize(alerts), Alerts: alerts, SentAt: time.Now().UTC()}
	err := a.post(ctx, n)
	if err != nil && resilience.IsTransient(err) && ctx.Err() == nil {
		log.Warn("monitoring: webhook failed, retrying", zap.Error(err))
		err = a.post(ctx, n)
	}
	if err != nil {
		log.Error("monitoring: failed to send alerts", zap.Int("alerts", len(alerts)), zap.Error(err))
		return 0
	}
	for _, alert := range alerts {
		log.Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resilience.HTTPError("monitoring: webhook", resp.StatusCode, body)
	}
	return nil
}
