package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	authservice "github.com/smallbiznis/loadpass/internal/auth/service"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/loadpass/internal/checkout/domain"
	"github.com/smallbiznis/loadpass/internal/config"
	creditdomain "github.com/smallbiznis/loadpass/internal/credit/domain"
	customerdomain "github.com/smallbiznis/loadpass/internal/customer/domain"
	"github.com/smallbiznis/loadpass/internal/observability"
	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
	providerdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
	"github.com/smallbiznis/loadpass/internal/providers/square"
	usermetadomain "github.com/smallbiznis/loadpass/internal/usermeta/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "test-jwt-secret-test-jwt-secret-0123"

type fakeCatalog struct {
	catalogdomain.Service
	packages []catalogdomain.Package
	err      error
}

func (f *fakeCatalog) List(context.Context) ([]catalogdomain.Package, error) {
	return f.packages, f.err
}

type fakeCheckout struct {
	got    checkoutdomain.IssueRequest
	result checkoutdomain.IssueResult
	err    error
}

func (f *fakeCheckout) Issue(_ context.Context, req checkoutdomain.IssueRequest) (checkoutdomain.IssueResult, error) {
	f.got = req
	return f.result, f.err
}

type fakeCustomer struct {
	got      customerdomain.ProvisionRequest
	customer providerdomain.Customer
	err      error
}

func (f *fakeCustomer) Provision(_ context.Context, req customerdomain.ProvisionRequest) (providerdomain.Customer, error) {
	f.got = req
	return f.customer, f.err
}

type fakeCredit struct {
	gotGrant      creditdomain.GrantRequest
	grantResult   creditdomain.GrantResult
	grantErr      error
	gotConsume    creditdomain.ConsumeRequest
	consumeResult creditdomain.ConsumeResult
	consumeErr    error
}

func (f *fakeCredit) Grant(_ context.Context, req creditdomain.GrantRequest) (creditdomain.GrantResult, error) {
	f.gotGrant = req
	return f.grantResult, f.grantErr
}

func (f *fakeCredit) Consume(_ context.Context, req creditdomain.ConsumeRequest) (creditdomain.ConsumeResult, error) {
	f.gotConsume = req
	return f.consumeResult, f.consumeErr
}

type fakePayments struct {
	provider string
	payload  []byte
	result   paymentdomain.IngestResult
	err      error
}

func (f *fakePayments) IngestWebhook(_ context.Context, provider string, payload []byte, _ http.Header) (paymentdomain.IngestResult, error) {
	f.provider = provider
	f.payload = payload
	return f.result, f.err
}

func (f *fakePayments) ReplayPending(context.Context, string, int) (paymentdomain.ReplaySummary, error) {
	return paymentdomain.ReplaySummary{}, nil
}

type testDeps struct {
	catalog  *fakeCatalog
	checkout *fakeCheckout
	customer *fakeCustomer
	credit   *fakeCredit
	payments *fakePayments
}

func newTestServer(t *testing.T) (*gin.Engine, *testDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{Environment: "test", AuthJWTSecret: testJWTSecret}
	verifier, err := authservice.NewVerifier(cfg, zap.NewNop())
	require.NoError(t, err)

	deps := &testDeps{
		catalog:  &fakeCatalog{},
		checkout: &fakeCheckout{},
		customer: &fakeCustomer{},
		credit:   &fakeCredit{},
		payments: &fakePayments{},
	}

	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		Log:         zap.NewNop(),
		Verifier:    verifier,
		CatalogSvc:  deps.catalog,
		CheckoutSvc: deps.checkout,
		CustomerSvc: deps.customer,
		CreditSvc:   deps.credit,
		PaymentSvc:  deps.payments,
	})
	return engine, deps
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()

	token := jwt.New()
	require.NoError(t, token.Set(jwt.SubjectKey, subject))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(testJWTSecret)))
	require.NoError(t, err)
	return string(signed)
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body messageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body.Message
}

func TestCreateCheckoutLink(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.checkout.result = checkoutdomain.IssueResult{URL: "https://square.link/u/abc", OrderID: "order-1"}

	rec := doJSON(t, engine, http.MethodPost, "/functions/v1/create-checkout-link", `{"handle":"starter"}`, map[string]string{
		"Authorization": "Bearer " + signedToken(t, "user-1"),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"url":"https://square.link/u/abc"}`, rec.Body.String())
	require.Equal(t, "user-1", deps.checkout.got.UserID)
	require.Equal(t, "starter", deps.checkout.got.Handle)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateCheckoutLinkRequiresToken(t *testing.T) {
	engine, deps := newTestServer(t)

	cases := map[string]string{
		"missing": "",
		"invalid": "Bearer not-a-token",
		"scheme":  "Basic abc",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			headers := map[string]string{}
			if header != "" {
				headers["Authorization"] = header
			}
			rec := doJSON(t, engine, http.MethodPost, "/functions/v1/create-checkout-link", `{"handle":"starter"}`, headers)

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			require.Equal(t, "Error: user not found", decodeMessage(t, rec))
		})
	}
	require.Empty(t, deps.checkout.got.UserID)
}

func TestCreateCheckoutLinkErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"unknown handle", catalogdomain.ErrPackageNotFound, "Error: no variation found for handle: starter"},
		{"rate limited", checkoutdomain.ErrRateLimited, "Error: too many checkout requests, try again later"},
		{"provider", &square.APIError{Status: 400, Code: "INVALID_VALUE", Detail: "Invalid location id"}, "Error: Invalid location id"},
		{"internal", fmt.Errorf("insert pending transaction: %w", context.DeadlineExceeded), msgInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, deps := newTestServer(t)
			deps.checkout.err = tc.err

			rec := doJSON(t, engine, http.MethodPost, "/functions/v1/create-checkout-link", `{"handle":"starter"}`, map[string]string{
				"Authorization": "Bearer " + signedToken(t, "user-1"),
			})

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			require.Equal(t, tc.want, decodeMessage(t, rec))
		})
	}
}

func TestCreateSquareCustomer(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.customer.customer = providerdomain.Customer{ID: "CUST-1", EmailAddress: "a@b.co", ReferenceID: "user-1", Version: 9007199254740993}

	rec := doJSON(t, engine, http.MethodPost, "/functions/v1/create-squareup-customer", `{"record":{"user_id":"user-1","email":"a@b.co"}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, customerdomain.ProvisionRequest{UserID: "user-1", Email: "a@b.co"}, deps.customer.got)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "CUST-1", body["id"])
	require.Equal(t, "9007199254740993", body["version"])
}

func TestCreateSquareCustomerMissingID(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.customer.err = customerdomain.ErrMissingCustomerID

	rec := doJSON(t, engine, http.MethodPost, "/functions/v1/create-squareup-customer", `{"record":{"user_id":"user-1","email":"a@b.co"}}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Customer ID not found, there was an error creating the customer", decodeMessage(t, rec))
}

func TestSquarePaymentCallback(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.credit.grantResult = creditdomain.GrantResult{UserID: "user-1", PackageHandle: "starter", LoadsGranted: 10, Balance: 10}

	rec := doJSON(t, engine, http.MethodPost, "/functions/v1/square-payment-callback", `{"customer_id":"CUST-1","package_id":"VAR-1","payment_id":"PAY-1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Success: Added 10 loads to user user-1", decodeMessage(t, rec))
	require.Equal(t, creditdomain.GrantRequest{
		CustomerID:  "CUST-1",
		VariationID: "VAR-1",
		PaymentID:   "PAY-1",
		Source:      creditdomain.SourceCallback,
	}, deps.credit.gotGrant)
}

func TestSquarePaymentCallbackReplay(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.credit.grantErr = creditdomain.ErrAlreadyGranted

	rec := doJSON(t, engine, http.MethodPost, "/functions/v1/square-payment-callback", `{"customer_id":"CUST-1","package_id":"VAR-1","payment_id":"PAY-1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Success: payment PAY-1 already processed", decodeMessage(t, rec))
}

func TestSquarePaymentCallbackErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want string
	}{
		{"missing fields", `{"customer_id":""}`, creditdomain.ErrMissingGrantFields, "Error: Missing customer id or package variation id"},
		{"unknown user", `{"customer_id":"CUST-9","package_id":"VAR-1"}`, usermetadomain.ErrUserNotFound, "Error: user not found"},
		{"bad json", `{"customer_id":`, nil, "Error: invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, deps := newTestServer(t)
			deps.credit.grantErr = tc.err

			rec := doJSON(t, engine, http.MethodPost, "/functions/v1/square-payment-callback", tc.body, nil)

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			require.Equal(t, tc.want, decodeMessage(t, rec))
		})
	}
}

func TestUseLoad(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.credit.consumeResult = creditdomain.ConsumeResult{UserID: "user-1", Balance: 4}

	rec := doJSON(t, engine, http.MethodPost, "/functions/v1/use-load", `{"user_id":"user-1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Success: User has 4 loads left", decodeMessage(t, rec))
	require.Equal(t, "user-1", deps.credit.gotConsume.UserID)
}

func TestUseLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"empty balance", creditdomain.ErrInsufficientLoads, "Error: User has no loads left"},
		{"missing user id", creditdomain.ErrMissingUserID, "Error: Missing user id"},
		{"unknown user", usermetadomain.ErrUserNotFound, "Error: user not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, deps := newTestServer(t)
			deps.credit.consumeErr = tc.err

			rec := doJSON(t, engine, http.MethodPost, "/functions/v1/use-load", `{"user_id":"user-1"}`, nil)

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			require.Equal(t, tc.want, decodeMessage(t, rec))
		})
	}
}

func TestListPackages(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.catalog.packages = []catalogdomain.Package{
		{ID: 1, Handle: "starter", Name: "Starter", SquareVariationID: "VAR-1", Price: 500, Currency: "USD", UserReceivedLoads: 10},
	}

	rec := doJSON(t, engine, http.MethodGet, "/functions/v1/packages", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"packages":[{"handle":"starter","name":"Starter","square_variation_id":"VAR-1","price":500,"currency":"USD","user_received_loads":10}]}`, rec.Body.String())
}

func TestPaymentWebhook(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.payments.result = paymentdomain.IngestResult{Outcome: paymentdomain.OutcomeProcessed}

	payload := `{"event_id":"evt-1","type":"payment.updated"}`
	rec := doJSON(t, engine, http.MethodPost, "/api/payments/webhooks/square", payload, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","outcome":"processed"}`, rec.Body.String())
	require.Equal(t, "square", deps.payments.provider)
	require.Equal(t, payload, string(deps.payments.payload))
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.payments.err = paymentdomain.ErrInvalidSignature

	rec := doJSON(t, engine, http.MethodPost, "/api/payments/webhooks/square", `{}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Error: invalid webhook signature", decodeMessage(t, rec))
}

func TestPreflight(t *testing.T) {
	engine, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/create-checkout-link", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Body.String())

	plain := httptest.NewRequest(http.MethodOptions, "/functions/v1/use-load", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, plain)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Body.String())
}

func TestAllowOriginWithAndWithoutOrigin(t *testing.T) {
	engine, deps := newTestServer(t)
	deps.credit.consumeErr = creditdomain.ErrInsufficientLoads

	rec := doJSON(t, engine, http.MethodPost, "/functions/v1/use-load", `{"user_id":"user-1"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, []string{"*"}, rec.Header().Values("Access-Control-Allow-Origin"))

	rec = doJSON(t, engine, http.MethodPost, "/functions/v1/use-load", `{"user_id":"user-1"}`, map[string]string{
		"Origin": "https://app.example.com",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, []string{"*"}, rec.Header().Values("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	engine, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestClassifyErrorForLog(t *testing.T) {
	cases := []struct {
		err      error
		wantType string
		wantCode string
	}{
		{creditdomain.ErrInsufficientLoads, "validation", "insufficient_loads"},
		{fmt.Errorf("wrapped: %w", usermetadomain.ErrUserNotFound), "not_found", "user_not_found"},
		{checkoutdomain.ErrRateLimited, "rate_limited", "checkout_rate_limited"},
		{&square.APIError{Code: "UNAUTHORIZED"}, "provider", "UNAUTHORIZED"},
		{withMessage(catalogdomain.ErrPackageNotFound, "Error: no variation found for handle: x"), "not_found", "package_not_found"},
		{context.Canceled, "internal", "internal_error"},
	}
	for _, tc := range cases {
		gotType, gotCode := classifyErrorForLog(tc.err)
		if gotType != tc.wantType || gotCode != tc.wantCode {
			t.Fatalf("classify %v: got (%s, %s), want (%s, %s)", tc.err, gotType, gotCode, tc.wantType, tc.wantCode)
		}
	}
}
