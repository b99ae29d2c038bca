package domain

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=../mock/mock_provider.go -package=mock github.com/smallbiznis/loadpass/internal/providers/payment/domain Provider

// Provider is the outbound side of the payment processor. Each call is attempted once.
type Provider interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (Customer, error)
	RetrieveOrder(ctx context.Context, orderID string) (Order, error)
}

type PaymentLinkRequest struct {
	IdempotencyKey string
	VariationID    string
	Quantity       string
	CustomerID     string
	RedirectURL    string
}

type PaymentLink struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version,string"`
	URL       string    `json:"url"`
	LongURL   string    `json:"long_url,omitempty"`
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerRequest struct {
	IdempotencyKey string
	EmailAddress   string
	ReferenceID    string
}

// Customer mirrors the provider's customer object and is returned to callers as is.
type Customer struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	EmailAddress   string    `json:"email_address,omitempty"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	CreationSource string    `json:"creation_source,omitempty"`
	Version        int64     `json:"version,string"`
}

type Order struct {
	ID         string          `json:"id"`
	LocationID string          `json:"location_id"`
	CustomerID string          `json:"customer_id,omitempty"`
	State      string          `json:"state"`
	LineItems  []OrderLineItem `json:"line_items"`
}

type OrderLineItem struct {
	UID             string `json:"uid"`
	Name            string `json:"name,omitempty"`
	Quantity        string `json:"quantity"`
	CatalogObjectID string `json:"catalog_object_id"`
}

// FirstVariationID returns the catalog variation of the first line item.
func (o Order) FirstVariationID() string {
	if len(o.LineItems) == 0 {
		return ""
	}
	return o.LineItems[0].CatalogObjectID
}

var (
	ErrProviderFailure = errors.New("payment_provider_failure")
	ErrInvalidRequest  = errors.New("invalid_provider_request")
)
