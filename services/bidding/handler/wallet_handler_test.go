package handler

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/gateway"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"
	"auction-engine/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func walletRouter(m *MockWalletServiceInterface) *gin.Engine {
	h := NewWalletHandler(m)
	router := gin.New()
	router.POST("/transactions/paystack/webhook", h.WebhookHandler)
	authed := router.Group("/transactions", asUser(alice))
	authed.GET("/init", h.InitFundingHandler)
	authed.POST("/verify", h.VerifyFundingHandler)
	authed.POST("/withdraw", h.WithdrawHandler)
	authed.GET("", h.HistoryHandler)
	return router
}

func TestInitFundingHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		query          string
		mockSetup      func(m *MockWalletServiceInterface)
		expectedStatus int
	}{
		{
			name:  "success",
			query: "?amount=500",
			mockSetup: func(m *MockWalletServiceInterface) {
				m.EXPECT().InitFunding(gomock.Any(), "user1", money.FromMajor(500)).
					Return(wallet.Checkout{AuthorizationURL: "https://checkout.test/abc", Reference: "FND01"}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing_amount",
			query:          "",
			mockSetup:      func(*MockWalletServiceInterface) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:  "non_positive",
			query: "?amount=0",
			mockSetup: func(m *MockWalletServiceInterface) {
				m.EXPECT().InitFunding(gomock.Any(), "user1", money.Amount(0)).Return(wallet.Checkout{}, biddingerrors.ErrValidation)
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:  "gateway_down",
			query: "?amount=10",
			mockSetup: func(m *MockWalletServiceInterface) {
				m.EXPECT().InitFunding(gomock.Any(), "user1", money.FromMajor(10)).Return(wallet.Checkout{}, gateway.ErrGateway)
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			m := NewMockWalletServiceInterface(ctrl)
			tc.mockSetup(m)

			w := serve(walletRouter(m), http.MethodGet, "/transactions/init"+tc.query, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			if w.Code == http.StatusOK {
				data := decode(t, w)["data"].(map[string]any)
				require.Equal(t, "https://checkout.test/abc", data["authorization_url"])
				require.Equal(t, "FND01", data["reference"])
			}
		})
	}
}

func TestVerifyAndWithdrawHandlers(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := NewMockWalletServiceInterface(ctrl)
	router := walletRouter(m)

	m.EXPECT().VerifyFunding(gomock.Any(), "user1", "FND01").
		Return(models.LedgerEntry{Reference: "FND01", Status: models.EntryCompleted, Amount: money.FromMajor(500)}, nil)
	w := serve(router, http.MethodPost, "/transactions/verify", `{"reference_id":"FND01"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "completed", decode(t, w)["data"].(map[string]any)["status"])

	w = serve(router, http.MethodPost, "/transactions/verify", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	m.EXPECT().VerifyFunding(gomock.Any(), "user1", "FND02").Return(models.LedgerEntry{}, biddingerrors.ErrForbidden)
	w = serve(router, http.MethodPost, "/transactions/verify", `{"reference_id":"FND02"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	m.EXPECT().Withdraw(gomock.Any(), "user1", money.FromMajor(50)).
		Return(models.LedgerEntry{Reference: "WDR01", Status: models.EntryCompleted, Amount: money.FromMajor(50)}, nil)
	w = serve(router, http.MethodPost, "/transactions/withdraw", `{"amount":50}`)
	require.Equal(t, http.StatusOK, w.Code)

	m.EXPECT().Withdraw(gomock.Any(), "user1", money.FromMajor(5000)).Return(models.LedgerEntry{}, biddingerrors.ErrInsufficientFunds)
	w = serve(router, http.MethodPost, "/transactions/withdraw", `{"amount":5000}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "InsufficientFunds", decode(t, w)["detail"])

	m.EXPECT().History(gomock.Any(), "user1", repository.Page{Page: 1, PerPage: 20}).Return(nil, nil)
	w = serve(router, http.MethodGet, "/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []any{}, decode(t, w)["data"])
}

func TestWebhookHandler(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"charge.success","data":{"reference":"FND01","status":"success","amount":50000}}`)

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "processed", expectedStatus: http.StatusOK},
		{name: "bad_signature", err: biddingerrors.ErrInvalidSignature, expectedStatus: http.StatusBadRequest},
		{name: "ip_not_allowed", err: biddingerrors.ErrForbidden, expectedStatus: http.StatusForbidden},
		{name: "unknown_reference", err: biddingerrors.ErrEntryNotFound, expectedStatus: http.StatusNotFound},
		{name: "store_down", err: errors.New("db down"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			m := NewMockWalletServiceInterface(ctrl)
			m.EXPECT().HandleWebhook(gomock.Any(), body, "sig", "52.31.139.75").Return(tc.err)

			req := httptest.NewRequest(http.MethodPost, "/transactions/paystack/webhook", bytes.NewReader(body))
			req.Header.Set(gateway.SignatureHeader, "sig")
			req.RemoteAddr = "52.31.139.75:443"
			w := httptest.NewRecorder()
			walletRouter(m).ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}
