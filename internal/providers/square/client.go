package square

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/loadpass/internal/config"
	paymentdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
	"github.com/smallbiznis/loadpass/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 15 * time.Second
	providerName   = "square"
)

type Options struct {
	BaseURL     string
	AccessToken string
	APIVersion  string
	LocationID  string
	Timeout     time.Duration
}

// Client talks to the Square Connect v2 API.
type Client struct {
	http       *resty.Client
	locationID string
	log        *zap.Logger
	tracer     trace.Tracer
}

var _ paymentdomain.Provider = (*Client)(nil)

func NewFromConfig(cfg config.Config, log *zap.Logger) paymentdomain.Provider {
	return New(Options{
		BaseURL:     cfg.Square.BaseURL(),
		AccessToken: cfg.Square.AccessToken,
		APIVersion:  cfg.Square.APIVersion,
		LocationID:  cfg.Square.LocationID,
	}, log)
}

func New(opts Options, log *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetAuthToken(opts.AccessToken).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0)
	if opts.APIVersion != "" {
		httpClient.SetHeader("Square-Version", opts.APIVersion)
	}

	return &Client{
		http:       httpClient,
		locationID: opts.LocationID,
		log:        log.Named("square.client"),
		tracer:     otel.Tracer("loadpass/square"),
	}
}

type apiErrorItem struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
	Field    string `json:"field,omitempty"`
}

type lineItem struct {
	UID             string `json:"uid,omitempty"`
	Name            string `json:"name,omitempty"`
	Quantity        string `json:"quantity"`
	CatalogObjectID string `json:"catalog_object_id"`
}

type orderBody struct {
	ID         string     `json:"id,omitempty"`
	LocationID string     `json:"location_id"`
	CustomerID string     `json:"customer_id,omitempty"`
	State      string     `json:"state,omitempty"`
	LineItems  []lineItem `json:"line_items"`
}

type checkoutOptions struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}

type createPaymentLinkBody struct {
	IdempotencyKey  string           `json:"idempotency_key"`
	Order           orderBody        `json:"order"`
	CheckoutOptions *checkoutOptions `json:"checkout_options,omitempty"`
}

type paymentLinkBody struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	URL       string    `json:"url"`
	LongURL   string    `json:"long_url"`
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

type createPaymentLinkResponse struct {
	PaymentLink *paymentLinkBody `json:"payment_link"`
	Errors      []apiErrorItem   `json:"errors"`
}

type createCustomerBody struct {
	IdempotencyKey string `json:"idempotency_key"`
	EmailAddress   string `json:"email_address,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
}

type customerBody struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	EmailAddress   string    `json:"email_address"`
	ReferenceID    string    `json:"reference_id"`
	CreationSource string    `json:"creation_source"`
	Version        int64     `json:"version"`
}

type createCustomerResponse struct {
	Customer *customerBody  `json:"customer"`
	Errors   []apiErrorItem `json:"errors"`
}

type retrieveOrderResponse struct {
	Order  *orderBody     `json:"order"`
	Errors []apiErrorItem `json:"errors"`
}

func (c *Client) CreatePaymentLink(ctx context.Context, req paymentdomain.PaymentLinkRequest) (paymentdomain.PaymentLink, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" || strings.TrimSpace(req.VariationID) == "" {
		return paymentdomain.PaymentLink{}, paymentdomain.ErrInvalidRequest
	}
	quantity := req.Quantity
	if quantity == "" {
		quantity = "1"
	}

	body := createPaymentLinkBody{
		IdempotencyKey: req.IdempotencyKey,
		Order: orderBody{
			LocationID: c.locationID,
			CustomerID: req.CustomerID,
			LineItems: []lineItem{
				{Quantity: quantity, CatalogObjectID: req.VariationID},
			},
		},
	}
	if req.RedirectURL != "" {
		body.CheckoutOptions = &checkoutOptions{RedirectURL: req.RedirectURL}
	}

	var out createPaymentLinkResponse
	if err := c.do(ctx, "CreatePaymentLink", resty.MethodPost, "/v2/online-checkout/payment-links", body, &out); err != nil {
		return paymentdomain.PaymentLink{}, err
	}
	if out.PaymentLink == nil || out.PaymentLink.URL == "" {
		return paymentdomain.PaymentLink{}, fmt.Errorf("%w: payment link missing url", paymentdomain.ErrProviderFailure)
	}

	link := out.PaymentLink
	return paymentdomain.PaymentLink{
		ID:        link.ID,
		Version:   link.Version,
		URL:       link.URL,
		LongURL:   link.LongURL,
		OrderID:   link.OrderID,
		CreatedAt: link.CreatedAt,
	}, nil
}

func (c *Client) CreateCustomer(ctx context.Context, req paymentdomain.CustomerRequest) (paymentdomain.Customer, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return paymentdomain.Customer{}, paymentdomain.ErrInvalidRequest
	}

	body := createCustomerBody{
		IdempotencyKey: req.IdempotencyKey,
		EmailAddress:   req.EmailAddress,
		ReferenceID:    req.ReferenceID,
	}

	var out createCustomerResponse
	if err := c.do(ctx, "CreateCustomer", resty.MethodPost, "/v2/customers", body, &out); err != nil {
		return paymentdomain.Customer{}, err
	}
	if out.Customer == nil {
		return paymentdomain.Customer{}, nil
	}

	customer := out.Customer
	return paymentdomain.Customer{
		ID:             customer.ID,
		CreatedAt:      customer.CreatedAt,
		UpdatedAt:      customer.UpdatedAt,
		EmailAddress:   customer.EmailAddress,
		ReferenceID:    customer.ReferenceID,
		CreationSource: customer.CreationSource,
		Version:        customer.Version,
	}, nil
}

func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (paymentdomain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidRequest
	}

	var out retrieveOrderResponse
	if err := c.do(ctx, "RetrieveOrder", resty.MethodGet, "/v2/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return paymentdomain.Order{}, err
	}
	if out.Order == nil {
		return paymentdomain.Order{}, fmt.Errorf("%w: order %s missing from response", paymentdomain.ErrProviderFailure, orderID)
	}

	order := paymentdomain.Order{
		ID:         out.Order.ID,
		LocationID: out.Order.LocationID,
		CustomerID: out.Order.CustomerID,
		State:      out.Order.State,
		LineItems:  make([]paymentdomain.OrderLineItem, 0, len(out.Order.LineItems)),
	}
	for _, item := range out.Order.LineItems {
		order.LineItems = append(order.LineItems, paymentdomain.OrderLineItem{
			UID:             item.UID,
			Name:            item.Name,
			Quantity:        item.Quantity,
			CatalogObjectID: item.CatalogObjectID,
		})
	}
	return order, nil
}

// do sends one request and decodes the body into out. Square reports failures
// through errors[], sometimes alongside a 2xx status.
func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	ctx, span := c.tracer.Start(ctx, "square."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req := c.http.R().SetContext(ctx)
	if cid := correlation.FromContext(ctx); cid != "" {
		req.SetHeader(correlation.Header, cid)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		c.log.Warn("square request failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", paymentdomain.ErrProviderFailure, op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))

	raw := resp.Body()
	var envelope struct {
		Errors []apiErrorItem `json:"errors"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil && !resp.IsError() {
			span.SetStatus(codes.Error, "invalid response body")
			return fmt.Errorf("%w: %s: decode response: %v", paymentdomain.ErrProviderFailure, op, err)
		}
	}

	if resp.IsError() || len(envelope.Errors) > 0 {
		apiErr := newAPIError(resp.StatusCode(), envelope.Errors, raw)
		span.SetStatus(codes.Error, apiErr.Code)
		c.log.Warn("square rejected request",
			zap.String("operation", op),
			zap.Int("status", apiErr.Status),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			span.SetStatus(codes.Error, "invalid response body")
			return fmt.Errorf("%w: %s: decode response: %v", paymentdomain.ErrProviderFailure, op, err)
		}
	}
	return nil
}
