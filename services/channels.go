package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"price-pulse/models"
)

// Publisher pubblica un messaggio JSON con una routing key (implementato da mq.Publisher)
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BrokerChannel inoltra le notifiche email, push e SMS al broker, dove le consumano
// i servizi di consegna
type BrokerChannel struct {
	pub Publisher
}

func NewBrokerChannel(pub Publisher) *BrokerChannel {
	return &BrokerChannel{pub: pub}
}

func (b *BrokerChannel) Name() string { return "broker" }

func (b *BrokerChannel) Enabled(rule *models.AlertRule) bool {
	return rule.NotifyEmail || rule.NotifyPush || rule.NotifySMS
}

// Send pubblica un messaggio alert.<canale> per ogni canale abilitato
func (b *BrokerChannel) Send(ctx context.Context, rule *models.AlertRule, msg Message) error {
	var errs []error
	for _, key := range brokerKeys(rule) {
		if err := b.pub.PublishJSON(ctx, key, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func brokerKeys(rule *models.AlertRule) []string {
	var keys []string
	if rule.NotifyEmail {
		keys = append(keys, "alert.email")
	}
	if rule.NotifyPush {
		keys = append(keys, "alert.push")
	}
	if rule.NotifySMS {
		keys = append(keys, "alert.sms")
	}
	return keys
}

// WebhookChannel invia la notifica in POST all'URL configurato dall'utente
type WebhookChannel struct {
	client *resty.Client
}

func NewWebhookChannel(timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		client: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Enabled(rule *models.AlertRule) bool {
	return rule.WebhookURL != ""
}

func (w *WebhookChannel) Send(ctx context.Context, rule *models.AlertRule, msg Message) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(rule.WebhookURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("risposta %s", resp.Status())
	}
	return nil
}

// ConsoleChannel scrive la notifica nel log. Si usa quando il broker non è configurato.
type ConsoleChannel struct{}

func (ConsoleChannel) Name() string { return "console" }

func (ConsoleChannel) Enabled(rule *models.AlertRule) bool {
	return rule.NotifyEmail || rule.NotifyPush || rule.NotifySMS
}

func (ConsoleChannel) Send(ctx context.Context, rule *models.AlertRule, msg Message) error {
	log.Printf("[Notify] utente %d :: %s", msg.UserID, msg.Text)
	return nil
}
