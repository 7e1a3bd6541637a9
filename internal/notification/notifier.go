// Package notification delivers flat-base alerts to external channels
// (Telegram, generic webhooks) after a batch run.
package notification

import (
	"context"
	"log"
	"os"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log. It is the fallback when no
// external channel is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends. Delivery failures are logged
// per backend and the first error is returned.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var first error
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend delivery failed: %v", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// FromEnv builds a notifier from TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID and
// ALERT_WEBHOOK_URL. With neither configured, alerts go to the log.
func FromEnv() Notifier {
	var backends []Notifier
	if token, chat := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"); token != "" && chat != "" {
		backends = append(backends, NewTelegramNotifier(token, chat))
		log.Println("[notify] telegram backend enabled")
	}
	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		backends = append(backends, NewWebhookNotifier(url))
		log.Println("[notify] webhook backend enabled")
	}
	if len(backends) == 0 {
		return NewLogNotifier()
	}
	return NewMulti(backends...)
}
