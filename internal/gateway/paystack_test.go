package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/money"

	"github.com/stretchr/testify/require"
)

func paystack(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body map[string]any)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		var body map[string]any
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				require.NoError(t, json.Unmarshal(raw, &body))
			}
		}
		handler(w, r, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "sk_test")
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	c := paystack(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "alice@x", body["email"])
		require.EqualValues(t, 150050, body["amount"])
		require.Equal(t, "FND-1", body["reference"])
		_, _ = io.WriteString(w, `{"status":true,"message":"ok","data":{"authorization_url":"https://pay/abc","access_code":"abc","reference":"FND-1"}}`)
	})

	out, err := c.Initialize(context.Background(), InitializeRequest{Email: "alice@x", Amount: money.Amount(150050), Reference: "FND-1"})
	require.NoError(t, err)
	require.Equal(t, "https://pay/abc", out.AuthorizationURL)
	require.Equal(t, "FND-1", out.Reference)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	c := paystack(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		require.Equal(t, "/transaction/verify/FND-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":true,"message":"ok","data":{"reference":"FND-1","status":"success","amount":50000}}`)
	})

	v, err := c.Verify(context.Background(), "FND-1")
	require.NoError(t, err)
	require.Equal(t, ChargeSuccess, v.Status)
	require.Equal(t, money.FromMajor(500), v.Amount)
}

func TestTransfer(t *testing.T) {
	t.Parallel()

	c := paystack(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		require.Equal(t, "/transfer", r.URL.Path)
		require.Equal(t, "balance", body["source"])
		require.Equal(t, "RCP_1", body["recipient"])
		_, _ = io.WriteString(w, `{"status":true,"message":"queued","data":{"reference":"WDR-1","status":"pending","transfer_code":"TRF_1"}}`)
	})

	out, err := c.Transfer(context.Background(), TransferRequest{Amount: money.FromMajor(20), Recipient: "RCP_1", Reference: "WDR-1"})
	require.NoError(t, err)
	require.Equal(t, TransferPending, out.Status)
}

func TestGatewayFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "status_false", status: http.StatusOK, body: `{"status":false,"message":"Invalid key"}`},
		{name: "http_error", status: http.StatusBadRequest, body: `{"status":true,"message":"bad"}`},
		{name: "not_json", status: http.StatusBadGateway, body: `<html>`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := paystack(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.Verify(context.Background(), "FND-1")
			require.ErrorIs(t, err, ErrGateway)
		})
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"charge.success","data":{"reference":"FND-1","amount":1000}}`)
	sig := Sign("sk_test", body)

	require.NoError(t, VerifySignature("sk_test", body, sig))
	require.ErrorIs(t, VerifySignature("other", body, sig), biddingerrors.ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("sk_test", append(body, ' '), sig), biddingerrors.ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("sk_test", body, ""), biddingerrors.ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("sk_test", body, "zz"), biddingerrors.ErrInvalidSignature)
}

func TestAllowlist(t *testing.T) {
	t.Parallel()

	al := ParseAllowlist("52.31.139.75, 52.49.173.169,not-an-ip")
	require.True(t, al.Allowed("52.31.139.75"))
	require.True(t, al.Allowed(" 52.49.173.169 "))
	require.False(t, al.Allowed("10.0.0.1"))
	require.False(t, al.Allowed(""))
	require.False(t, ParseAllowlist("").Allowed("52.31.139.75"))
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()

	ev, err := ParseWebhook([]byte(`{"event":"charge.success","data":{"reference":"FND-1","status":"success","amount":2500}}`))
	require.NoError(t, err)
	require.Equal(t, EventChargeSuccess, ev.Event)
	require.Equal(t, "FND-1", ev.Data.Reference)
	require.Equal(t, money.FromMajor(25), ev.Data.Amount)

	_, err = ParseWebhook([]byte(`{"event":"charge.success","data":{}}`))
	require.ErrorIs(t, err, biddingerrors.ErrValidation)
	_, err = ParseWebhook([]byte(`nope`))
	require.ErrorIs(t, err, biddingerrors.ErrValidation)
}
