package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewPayme(PaymeConfig{}), NewClick(ClickConfig{}), NewStripe(StripeConfig{}))

	assert.Equal(t, []string{"click", "payme", "stripe"}, r.Names())

	g, err := r.Get("stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", g.Name())

	_, err = r.Get("paypal")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestPayme_CreatePaymentEncodesOrder(t *testing.T) {
	p := NewPayme(PaymeConfig{MerchantID: "m-1", CheckoutURL: "https://checkout.test"})

	checkout, err := p.CreatePayment(context.Background(), 179200, "42", "Flight booking BK1")
	require.NoError(t, err)

	prefix := "https://checkout.test/m-1?"
	require.True(t, strings.HasPrefix(checkout.PaymentURL, prefix))
	decoded, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(checkout.PaymentURL, prefix))
	require.NoError(t, err)

	var params paymeCheckout
	require.NoError(t, json.Unmarshal(decoded, &params))
	assert.Equal(t, "42", params.Account.OrderID)
	assert.Equal(t, int64(179200), params.Amount)
}

func TestPayme_CheckPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "m-1", user)
		assert.Equal(t, "secret", pass)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"CheckTransaction"`)
		_, _ = w.Write([]byte(`{"result":{"state":2}}`))
	}))
	defer srv.Close()

	p := NewPayme(PaymeConfig{MerchantID: "m-1", SecretKey: "secret", APIURL: srv.URL})
	status, raw, err := p.CheckPayment(context.Background(), PaymentRef{OrderID: "42", ExternalID: "pm-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)
	assert.JSONEq(t, `{"result":{"state":2}}`, string(raw))

	status, _, err = p.CheckPayment(context.Background(), PaymentRef{OrderID: "42"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
}

func TestPayme_ParseCallback(t *testing.T) {
	p := NewPayme(PaymeConfig{SecretKey: "secret"})
	auth := http.Header{"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:secret"))}}

	cb, err := p.ParseCallback(auth, []byte(`{"method":"PerformTransaction","params":{"id":"pm-1","amount":179200,"account":{"order_id":"42"}}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cb.TransactionID)
	assert.Equal(t, StatusSucceeded, cb.Status)
	assert.Equal(t, "pm-1", cb.ExternalID)

	cb, err = p.ParseCallback(auth, []byte(`{"method":"CancelTransaction","params":{"id":"pm-1","account":{"order_id":"42"}}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cb.Status)

	cb, err = p.ParseCallback(auth, []byte(`{"method":"CreateTransaction","params":{"id":"pm-2","amount":179200,"account":{"order_id":"43"}}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(43), cb.TransactionID)
	assert.Equal(t, StatusPending, cb.Status)
	assert.Equal(t, "pm-2", cb.ExternalID)

	_, err = p.ParseCallback(auth, []byte(`{"method":"CheckPerformTransaction","params":{}}`))
	assert.ErrorIs(t, err, ErrIgnoredEvent)

	_, err = p.ParseCallback(http.Header{}, []byte(`{"method":"PerformTransaction"}`))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = p.ParseCallback(auth, []byte(`{"method":"PerformTransaction","params":{"account":{"order_id":"abc"}}}`))
	assert.ErrorIs(t, err, ErrMalformedCallback)
}

func TestClick_CreatePaymentFormatsAmount(t *testing.T) {
	c := NewClick(ClickConfig{MerchantID: "m", ServiceID: "s", CheckoutURL: "https://pay.test"})

	checkout, err := c.CreatePayment(context.Background(), 179205, "42", "")
	require.NoError(t, err)

	u, err := url.Parse(checkout.PaymentURL)
	require.NoError(t, err)
	assert.Equal(t, "1792.05", u.Query().Get("amount"))
	assert.Equal(t, "42", u.Query().Get("transaction_param"))
}

func TestClick_ParseCallbackVerifiesSign(t *testing.T) {
	c := NewClick(ClickConfig{ServiceID: "s", SecretKey: "k"})

	form := url.Values{
		"click_trans_id":      {"900"},
		"service_id":          {"s"},
		"merchant_trans_id":   {"42"},
		"merchant_prepare_id": {"7"},
		"amount":              {"1792.00"},
		"action":              {"1"},
		"error":               {"0"},
		"sign_time":           {"2026-05-01 10:00:00"},
	}
	form.Set("sign_string", md5Hex("900"+"s"+"k"+"42"+"7"+"1792.00"+"1"+"2026-05-01 10:00:00"))

	cb, err := c.ParseCallback(nil, []byte(form.Encode()))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cb.TransactionID)
	assert.Equal(t, StatusSucceeded, cb.Status)
	assert.Equal(t, int64(179200), cb.AmountCents)

	form.Set("error", "-9")
	cb, err = c.ParseCallback(nil, []byte(form.Encode()))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cb.Status)

	form.Set("amount", "1.00")
	_, err = c.ParseCallback(nil, []byte(form.Encode()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	form.Set("action", "9")
	_, err = c.ParseCallback(nil, []byte(form.Encode()))
	assert.ErrorIs(t, err, ErrMalformedCallback)
}

func TestClick_ParsePrepareRecordsClickID(t *testing.T) {
	c := NewClick(ClickConfig{ServiceID: "s", SecretKey: "k"})

	form := url.Values{
		"click_trans_id":    {"900"},
		"service_id":        {"s"},
		"merchant_trans_id": {"42"},
		"amount":            {"1792.00"},
		"action":            {"0"},
		"error":             {"0"},
		"sign_time":         {"2026-05-01 10:00:00"},
	}
	form.Set("sign_string", md5Hex("900"+"s"+"k"+"42"+"1792.00"+"0"+"2026-05-01 10:00:00"))

	cb, err := c.ParseCallback(nil, []byte(form.Encode()))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cb.TransactionID)
	assert.Equal(t, StatusPending, cb.Status)
	assert.Equal(t, "900", cb.ExternalID)
	assert.Equal(t, int64(179200), cb.AmountCents)

	form.Set("sign_string", "forged")
	_, err = c.ParseCallback(nil, []byte(form.Encode()))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestClick_CheckPaymentByOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/merchant/payment/status_by_mti/s/42", r.URL.Path)
		assert.Equal(t, md5Hex("42"+"s"+"k"), r.URL.Query().Get("sign"))
		_, _ = w.Write([]byte(`{"error_code":0,"payment_id":900,"payment_status":2}`))
	}))
	defer srv.Close()

	c := NewClick(ClickConfig{ServiceID: "s", SecretKey: "k", APIURL: srv.URL})
	status, raw, err := c.CheckPayment(context.Background(), PaymentRef{OrderID: "42"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)
	assert.JSONEq(t, `{"error_code":0,"payment_id":900,"payment_status":2}`, string(raw))
}

func TestStripe_CreatePayment(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "179200", r.PostForm.Get("amount"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[transaction_id]"))
		_, _ = w.Write([]byte(`{"id":"pi_1","client_secret":"pi_1_secret","status":"requires_payment_method"}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test", APIURL: srv.URL})
	for i := 0; i < 2; i++ {
		checkout, err := s.CreatePayment(context.Background(), 179200, "42", "Flight booking BK1")
		require.NoError(t, err)
		assert.Equal(t, "pi_1", checkout.ExternalID)
		assert.Equal(t, "pi_1_secret", checkout.ClientSecret)
	}
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestStripe_CreatePaymentSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"card declined"}}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test", APIURL: srv.URL})
	_, err := s.CreatePayment(context.Background(), 100, "42", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestStripe_ParseCallbackSignature(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := NewStripe(StripeConfig{WebhookSecret: "whsec"})
	s.now = func() time.Time { return now }

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":179200,"metadata":{"transaction_id":"42"}}}}`)
	sign := func(ts int64, payload []byte) string {
		mac := hmac.New(sha256.New, []byte("whsec"))
		fmt.Fprintf(mac, "%d.%s", ts, payload)
		return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
	}

	cb, err := s.ParseCallback(http.Header{"Stripe-Signature": {sign(now.Unix(), body)}}, body)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cb.TransactionID)
	assert.Equal(t, StatusSucceeded, cb.Status)
	assert.Equal(t, int64(179200), cb.AmountCents)

	_, err = s.ParseCallback(http.Header{"Stripe-Signature": {sign(now.Add(-time.Hour).Unix(), body)}}, body)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = s.ParseCallback(http.Header{"Stripe-Signature": {"t=1,v1=00"}}, body)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	other := []byte(`{"type":"charge.refunded","data":{"object":{}}}`)
	_, err = s.ParseCallback(http.Header{"Stripe-Signature": {sign(now.Unix(), other)}}, other)
	assert.ErrorIs(t, err, ErrIgnoredEvent)
}
