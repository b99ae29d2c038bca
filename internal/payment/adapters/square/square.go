package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
)

const SignatureHeader = "X-Square-Hmacsha256-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderSquare
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	key := strings.TrimSpace(cfg.SignatureKey)
	notificationURL := strings.TrimSpace(cfg.NotificationURL)
	if key == "" || notificationURL == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{
		signatureKey:    key,
		notificationURL: notificationURL,
	}, nil
}

type Adapter struct {
	signatureKey    string
	notificationURL string
}

// Verify checks base64(HMAC-SHA256(key, notification URL + body)).
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.signatureKey, a.notificationURL, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature Square sends for a notification.
func Sign(key, notificationURL string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(notificationURL))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type squareEvent struct {
	MerchantID string          `json:"merchant_id"`
	Type       string          `json:"type"`
	EventID    string          `json:"event_id"`
	CreatedAt  string          `json:"created_at"`
	Data       squareEventData `json:"data"`
}

type squareEventData struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Object squareEventObject `json:"object"`
}

type squareEventObject struct {
	Payment *squarePayment `json:"payment"`
}

type squarePayment struct {
	ID          string      `json:"id"`
	OrderID     string      `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
	UpdatedAt   string      `json:"updated_at"`
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event squareEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.EventID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventType := strings.TrimSpace(event.Type)
	switch eventType {
	case "payment.created", "payment.updated":
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	payment := event.Data.Object.Payment
	if payment == nil || strings.TrimSpace(payment.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	status := strings.ToUpper(strings.TrimSpace(payment.Status))
	if status != paymentdomain.PaymentStatusCompleted {
		return nil, paymentdomain.ErrEventIgnored
	}

	return &paymentdomain.PaymentEvent{
		Provider:        paymentdomain.ProviderSquare,
		ProviderEventID: strings.TrimSpace(event.EventID),
		Type:            eventType,
		PaymentID:       strings.TrimSpace(payment.ID),
		OrderID:         strings.TrimSpace(payment.OrderID),
		CustomerID:      strings.TrimSpace(payment.CustomerID),
		Status:          status,
		Amount:          payment.AmountMoney.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(payment.AmountMoney.Currency)),
		OccurredAt:      occurredAt(payment.UpdatedAt, event.CreatedAt),
		RawPayload:      payload,
	}, nil
}

func occurredAt(values ...string) time.Time {
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}
