package woowebhook

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/storefront-sync/pkg/enums"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

// Delivery carries the platform headers of one webhook request.
type Delivery struct {
	Topic      enums.WebhookTopic
	DeliveryID string
	Source     string
	Signature  string
}

// DeliveryFromRequest reads the webhook headers.
func DeliveryFromRequest(r *http.Request) Delivery {
	return Delivery{
		Topic:      enums.ParseWebhookTopic(r.Header.Get(woocommerce.HeaderTopic)),
		DeliveryID: strings.TrimSpace(r.Header.Get(woocommerce.HeaderDeliveryID)),
		Source:     strings.TrimSpace(r.Header.Get(woocommerce.HeaderSource)),
		Signature:  strings.TrimSpace(r.Header.Get(woocommerce.HeaderSignature)),
	}
}

// IsPing reports the creation ping: a form body of webhook_id=<n> sent
// without a topic header.
func IsPing(d Delivery, body []byte) bool {
	if d.Topic != "" {
		return false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '{' {
		return false
	}
	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return false
	}
	return values.Get("webhook_id") != ""
}
