package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Instance  string                 `json:"instance"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL              string
	Instance                string
	MQTTDisconnectDelay     time.Duration // How long MQTT must be disconnected before alerting
	PostgresDisconnectDelay time.Duration // How long Postgres must be disconnected before alerting

	// Dependencies the process runs without are not polled by Run.
	IgnoreMQTT     bool
	IgnorePostgres bool
}

// AlertConfigFromEnv reads DEFUSAL_ALERT_WEBHOOK_URL and the optional
// DEFUSAL_MQTT_ALERT_DELAY and DEFUSAL_POSTGRES_ALERT_DELAY durations.
func AlertConfigFromEnv() AlertConfig {
	cfg := AlertConfig{
		WebhookURL:              os.Getenv("DEFUSAL_ALERT_WEBHOOK_URL"),
		Instance:                os.Getenv("DEFUSAL_INSTANCE"),
		MQTTDisconnectDelay:     30 * time.Second,
		PostgresDisconnectDelay: 5 * time.Second,
	}
	if d, err := time.ParseDuration(os.Getenv("DEFUSAL_MQTT_ALERT_DELAY")); err == nil {
		cfg.MQTTDisconnectDelay = d
	}
	if d, err := time.ParseDuration(os.Getenv("DEFUSAL_POSTGRES_ALERT_DELAY")); err == nil {
		cfg.PostgresDisconnectDelay = d
	}
	if cfg.Instance == "" {
		cfg.Instance, _ = os.Hostname()
	}
	return cfg
}

// dependencyWatch tracks one dependency's outage.
type dependencyWatch struct {
	event     string
	name      string
	severity  string
	delay     time.Duration
	downSince time.Time
	alerted   bool
	lastUp    bool
}

// Alerter posts a webhook when a dependency stays down longer than its
// delay, and again when it recovers. Without a webhook URL alerts are logged.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
	now    func() time.Time

	mu       sync.Mutex
	mqtt     dependencyWatch
	postgres dependencyWatch
	wg       sync.WaitGroup
}

// NewAlerter creates an alerter. Both dependencies are assumed up at start.
func NewAlerter(cfg AlertConfig) *Alerter {
	if cfg.Instance == "" {
		cfg.Instance = "unknown"
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		mqtt: dependencyWatch{
			event: AlertMQTTDisconnected, name: "MQTT broker", severity: SeverityWarning,
			delay: cfg.MQTTDisconnectDelay, lastUp: true,
		},
		postgres: dependencyWatch{
			event: AlertPostgresUnavailable, name: "PostgreSQL", severity: SeverityCritical,
			delay: cfg.PostgresDisconnectDelay, lastUp: true,
		},
	}
}

// CheckMQTT records the broker state and alerts if needed.
func (a *Alerter) CheckMQTT(connected bool) {
	a.check(&a.mqtt, connected)
}

// CheckPostgres records the database state and alerts if needed.
func (a *Alerter) CheckPostgres(connected bool) {
	a.check(&a.postgres, connected)
}

func (a *Alerter) check(w *dependencyWatch, up bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if up {
		// Recovery is only reported for outages that were alerted.
		if !w.lastUp && w.alerted {
			a.send(w.event, SeverityInfo, w.name+" connection restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		w.downSince = time.Time{}
		w.alerted = false
		w.lastUp = true
		return
	}

	if w.lastUp {
		w.downSince = now
	}
	w.lastUp = false

	if !w.alerted {
		down := now.Sub(w.downSince)
		if down >= w.delay {
			w.alerted = true
			a.send(w.event, w.severity, w.name+" unavailable", map[string]interface{}{
				"disconnected_since":   w.downSince.UTC().Format(time.RFC3339),
				"disconnected_seconds": int(down.Seconds()),
			})
		}
	}
}

// send delivers an alert in the background. Callers hold a.mu.
func (a *Alerter) send(event, severity, message string, details map[string]interface{}) {
	if a.cfg.WebhookURL == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}
	payload := AlertPayload{
		Instance:  a.cfg.Instance,
		Event:     event,
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.post(payload)
	}()
}

func (a *Alerter) post(payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}
	resp, err := a.client.Post(a.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// Run polls readiness every interval until ctx is cancelled, then waits for
// in-flight webhooks.
func (a *Alerter) Run(ctx context.Context, interval time.Duration, readiness *Readiness) error {
	if a.cfg.WebhookURL != "" {
		log.Printf("Alerts enabled: webhook URL configured (mqtt_delay=%s, pg_delay=%s)",
			a.cfg.MQTTDisconnectDelay, a.cfg.PostgresDisconnectDelay)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer a.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !a.cfg.IgnoreMQTT {
				a.CheckMQTT(readiness.MQTTConnected())
			}
			if !a.cfg.IgnorePostgres {
				a.CheckPostgres(readiness.PostgresConnected())
			}
		}
	}
}

// Wait blocks until every pending webhook has been delivered.
func (a *Alerter) Wait() {
	a.wg.Wait()
}
