package handler

import (
	"net/http"
	"testing"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestEscrowHandlers(t *testing.T) {
	t.Parallel()

	payment := func(status models.PaymentStatus) models.Payment {
		return models.Payment{PaymentID: "pay1", AuctionID: "a1", BuyerID: "user1", SellerID: "seller", Amount: money.FromMajor(250), Status: status}
	}

	tests := []struct {
		name           string
		method         string
		path           string
		mockSetup      func(m *MockEscrowServiceInterface)
		expectedStatus int
		expectedMsg    string
		expectedState  models.PaymentStatus
	}{
		{
			name:   "finalize",
			method: http.MethodGet,
			path:   "/auctions/finalize/a1",
			mockSetup: func(m *MockEscrowServiceInterface) {
				m.EXPECT().Finalize(gomock.Any(), "a1", "user1").Return(payment(models.PaymentCompleted), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "payment finalized successfully",
			expectedState:  models.PaymentCompleted,
		},
		{
			name:   "finalize_not_buyer",
			method: http.MethodGet,
			path:   "/auctions/finalize/a1",
			mockSetup: func(m *MockEscrowServiceInterface) {
				m.EXPECT().Finalize(gomock.Any(), "a1", "user1").Return(models.Payment{}, biddingerrors.ErrForbidden)
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "operation not permitted",
		},
		{
			name:   "set_inspecting",
			method: http.MethodPut,
			path:   "/auctions/set_inspecting/a1",
			mockSetup: func(m *MockEscrowServiceInterface) {
				m.EXPECT().MarkInspecting(gomock.Any(), "a1", "user1").Return(payment(models.PaymentInspecting), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "payment marked as inspecting",
			expectedState:  models.PaymentInspecting,
		},
		{
			name:   "set_inspecting_twice",
			method: http.MethodPut,
			path:   "/auctions/set_inspecting/a1",
			mockSetup: func(m *MockEscrowServiceInterface) {
				m.EXPECT().MarkInspecting(gomock.Any(), "a1", "user1").Return(models.Payment{}, biddingerrors.ErrInvalidTransition)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid status transition",
		},
		{
			name:   "request_refund",
			method: http.MethodPost,
			path:   "/auctions/refund/a1",
			mockSetup: func(m *MockEscrowServiceInterface) {
				m.EXPECT().RequestRefund(gomock.Any(), "a1", "user1").Return(payment(models.PaymentRefunding), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "refund requested successfully",
			expectedState:  models.PaymentRefunding,
		},
		{
			name:   "complete_refund",
			method: http.MethodPost,
			path:   "/auctions/complete_refund/a1",
			mockSetup: func(m *MockEscrowServiceInterface) {
				m.EXPECT().ConfirmRefund(gomock.Any(), "a1", "user1").Return(payment(models.PaymentRefunded), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "refund completed successfully",
			expectedState:  models.PaymentRefunded,
		},
		{
			name:   "payment_missing",
			method: http.MethodGet,
			path:   "/auctions/a1/payment",
			mockSetup: func(m *MockEscrowServiceInterface) {
				m.EXPECT().PaymentForAuction(gomock.Any(), "a1", "user1").Return(models.Payment{}, biddingerrors.ErrPaymentNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "payment not found",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			m := NewMockEscrowServiceInterface(ctrl)
			tc.mockSetup(m)

			h := NewEscrowHandler(m)
			router := gin.New()
			router.Use(asUser(alice))
			router.GET("/auctions/finalize/:auction_id", h.FinalizeHandler)
			router.PUT("/auctions/set_inspecting/:auction_id", h.SetInspectingHandler)
			router.POST("/auctions/refund/:auction_id", h.RequestRefundHandler)
			router.POST("/auctions/complete_refund/:auction_id", h.CompleteRefundHandler)
			router.GET("/auctions/:auction_id/payment", h.GetPaymentHandler)

			w := serve(router, tc.method, tc.path, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			resp := decode(t, w)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.expectedState != "" {
				data := resp["data"].(map[string]any)
				require.Equal(t, string(tc.expectedState), data["status"])
				require.Equal(t, 250.0, data["amount"])
			}
		})
	}
}
