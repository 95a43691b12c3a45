package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	handler "auction-engine/services/bidding/handler"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestWebhookClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		proxies   []string
		forwarded string
		wantIP    string
	}{
		{name: "no_trusted_proxies_ignores_header", forwarded: "52.31.139.75", wantIP: "10.9.9.9"},
		{name: "trusted_proxy_forwards_client", proxies: []string{"10.9.9.9"}, forwarded: "52.31.139.75", wantIP: "52.31.139.75"},
		{name: "other_proxy_not_trusted", proxies: []string{"10.0.0.1"}, forwarded: "52.31.139.75", wantIP: "10.9.9.9"},
		{name: "invalid_proxy_list_trusts_none", proxies: []string{"not-an-ip"}, forwarded: "52.31.139.75", wantIP: "10.9.9.9"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			wallet := handler.NewMockWalletServiceInterface(ctrl)
			wallet.EXPECT().HandleWebhook(gomock.Any(), gomock.Any(), gomock.Any(), tc.wantIP).Return(nil)

			router := SetupRouter(Deps{Wallet: wallet, TrustedProxies: tc.proxies})

			req := httptest.NewRequest(http.MethodPost, "/api/transactions/paystack/webhook", strings.NewReader(`{}`))
			req.RemoteAddr = "10.9.9.9:40000"
			req.Header.Set("X-Forwarded-For", tc.forwarded)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
		})
	}
}
