package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// WebhookSink posts each notification as JSON. Delivery failures are logged and dropped.
type WebhookSink struct {
	url    string
	client *resty.Client
	log    *logrus.Entry
}

func NewWebhookSink(url string, timeout time.Duration, log *logrus.Entry) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url: url,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		log: log,
	}
}

func (w *WebhookSink) Notify(ctx context.Context, n Notification) {
	resp, err := w.client.R().
		SetContext(context.WithoutCancel(ctx)).
		SetBody(n).
		Post(w.url)
	if err != nil {
		w.log.WithError(err).WithField("id", n.ID).Warn("webhook delivery failed")
		return
	}
	if resp.IsError() {
		w.log.WithFields(logrus.Fields{"id": n.ID, "status": resp.StatusCode()}).Warn("webhook rejected notification")
	}
}
