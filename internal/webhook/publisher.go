package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"budget-backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
)

type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Delivery is the outcome for one subscriber.
type Delivery struct {
	SubscriptionID uint
	URL            string
	Status         int
	Err            error
}

type Publisher struct {
	registry *Registry
	http     *http.Client
	log      *zap.Logger
}

func NewPublisher(registry *Registry, timeout time.Duration, log *zap.Logger) *Publisher {
	return &Publisher{registry: registry, http: &http.Client{Timeout: timeout}, log: log}
}

// Sign returns the X-Webhook-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Publish posts the event to every active subscriber concurrently. Every
// delivery runs to completion; the returned error joins the failures.
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) ([]Delivery, error) {
	subs, err := p.registry.Active(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("load webhook subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(Payload{Event: eventType, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	results := make([]Delivery, len(subs))
	var g errgroup.Group
	for i, sub := range subs {
		g.Go(func() error {
			results[i] = p.deliver(ctx, sub, eventType, body)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, d := range results {
		if d.Err != nil {
			p.log.Warn("webhook delivery failed",
				zap.String("event", eventType),
				zap.Uint("subscription_id", d.SubscriptionID),
				zap.String("url", d.URL),
				zap.Error(d.Err),
			)
			errs = append(errs, d.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (p *Publisher) deliver(ctx context.Context, sub models.WebhookSubscription, eventType string, body []byte) Delivery {
	d := Delivery{SubscriptionID: sub.ID, URL: sub.URL}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		d.Err = err
		return d
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	if sub.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(sub.Secret, body))
	}

	resp, err := p.http.Do(req)
	if err != nil {
		d.Err = fmt.Errorf("webhook %d: %w", sub.ID, err)
		return d
	}
	resp.Body.Close()
	d.Status = resp.StatusCode
	if resp.StatusCode >= 300 {
		d.Err = fmt.Errorf("webhook %d: status %d", sub.ID, resp.StatusCode)
	}
	return d
}
