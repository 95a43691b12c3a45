package handler

import (
	"net/http"
	"testing"
	"time"

	"auction-engine/internal/auctions"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func auctionRouter(m *MockAuctionServiceInterface, withUser bool) *gin.Engine {
	h := NewAuctionHandler(m)
	router := gin.New()
	if withUser {
		router.Use(asUser(alice))
	}
	router.POST("/auctions", h.CreateAuctionHandler)
	router.GET("/auctions", h.ListAuctionsHandler)
	router.GET("/auctions/:auction_id", h.GetAuctionHandler)
	router.PUT("/auctions/:auction_id", h.UpdateAuctionHandler)
	router.DELETE("/auctions/:auction_id", h.CancelAuctionHandler)
	return router
}

func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	valid := `{"item":{"name":"Brass lamp"},"start_price":100,"buy_now":true,"buy_now_price":"300.00",` +
		`"start_date":"2025-04-01T10:00:00Z","end_date":"2025-04-03T10:00:00Z","private":true,"participants":["bob@x"]}`

	tests := []struct {
		name           string
		requestBody    string
		mockSetup      func(m *MockAuctionServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "success",
			requestBody: valid,
			mockSetup: func(m *MockAuctionServiceInterface) {
				m.EXPECT().Create(gomock.Any(), alice, gomock.Any()).
					DoAndReturn(func(_ any, _ any, in auctions.CreateInput) (models.Auction, error) {
						require.Equal(t, "Brass lamp", in.Item.Name)
						require.Equal(t, money.FromMajor(100), in.StartPrice)
						require.Equal(t, money.FromMajor(300), in.BuyNowPrice)
						require.True(t, start.Equal(in.StartAt))
						require.True(t, in.Private)
						require.Equal(t, []string{"bob@x"}, in.Participants)
						return models.Auction{AuctionID: "a1", SellerID: alice.UserID, Status: models.AuctionPending}, nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created successfully",
		},
		{
			name:           "missing_item_name",
			requestBody:    `{"item":{},"start_price":100,"start_date":"2025-04-01T10:00:00Z","end_date":"2025-04-03T10:00:00Z"}`,
			mockSetup:      func(*MockAuctionServiceInterface) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "service_validation",
			requestBody: valid,
			mockSetup: func(m *MockAuctionServiceInterface) {
				m.EXPECT().Create(gomock.Any(), alice, gomock.Any()).
					Return(models.Auction{}, biddingerrors.ErrValidation)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "validation failed",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			m := NewMockAuctionServiceInterface(ctrl)
			tc.mockSetup(m)

			w := serve(auctionRouter(m, true), http.MethodPost, "/auctions", tc.requestBody)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, decode(t, w)["message"], tc.expectedMsg)
		})
	}
}

func TestListAuctionsHandler(t *testing.T) {
	t.Parallel()

	listing := auctions.Listing{Auctions: []models.Auction{{AuctionID: "a1"}}, Total: 1, Page: 2, PerPage: 10}

	tests := []struct {
		name           string
		query          string
		mockSetup      func(m *MockAuctionServiceInterface)
		expectedStatus int
	}{
		{
			name:  "filters_and_paging",
			query: "?status=active&category=CAT001&start_price=10-50&sort=end_at&page=2&per_page=10",
			mockSetup: func(m *MockAuctionServiceInterface) {
				m.EXPECT().List(gomock.Any(), gomock.Any(), repository.Page{Page: 2, PerPage: 10}).
					DoAndReturn(func(_ any, f repository.AuctionFilter, _ repository.Page) (auctions.Listing, error) {
						require.Equal(t, models.AuctionActive, f.Status)
						require.Equal(t, "CAT001", f.CategoryID)
						require.Equal(t, "end_at", f.Sort)
						require.Equal(t, &money.Range{Low: money.FromMajor(10), High: money.FromMajor(50)}, f.StartPrice)
						require.Nil(t, f.BuyNowPrice)
						require.Equal(t, repository.Viewer{UserID: alice.UserID, Email: alice.Email}, f.Viewer)
						return listing, nil
					})
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "search",
			query: "?search=lamp",
			mockSetup: func(m *MockAuctionServiceInterface) {
				m.EXPECT().Search(gomock.Any(), "lamp", gomock.Any(), gomock.Any()).Return(listing, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bad_range",
			query:          "?current_price=cheap",
			mockSetup:      func(*MockAuctionServiceInterface) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "bad_page",
			query:          "?page=zero",
			mockSetup:      func(*MockAuctionServiceInterface) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:  "bad_sort",
			query: "?sort=price",
			mockSetup: func(m *MockAuctionServiceInterface) {
				m.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return(auctions.Listing{}, biddingerrors.ErrValidation)
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			m := NewMockAuctionServiceInterface(ctrl)
			tc.mockSetup(m)

			w := serve(auctionRouter(m, true), http.MethodGet, "/auctions"+tc.query, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			if w.Code == http.StatusOK {
				data := decode(t, w)["data"].(map[string]any)
				require.Equal(t, 1.0, data["total"])
			}
		})
	}
}

func TestGetAuctionHandlerAnonymous(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := NewMockAuctionServiceInterface(ctrl)
	m.EXPECT().Get(gomock.Any(), repository.Viewer{}, "a1").Return(models.Auction{AuctionID: "a1"}, nil)
	m.EXPECT().Get(gomock.Any(), repository.Viewer{}, "private").Return(models.Auction{}, biddingerrors.ErrNotParticipant)

	router := auctionRouter(m, false)
	w := serve(router, http.MethodGet, "/auctions/a1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/auctions/private", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "NotParticipant", decode(t, w)["detail"])
}

func TestUpdateAndCancelAuctionHandler(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := NewMockAuctionServiceInterface(ctrl)
	router := auctionRouter(m, true)

	m.EXPECT().Update(gomock.Any(), alice, "a1", gomock.Any()).
		DoAndReturn(func(_ any, _ any, _ string, in auctions.UpdateInput) (models.Auction, error) {
			require.NotNil(t, in.StartPrice)
			require.Equal(t, money.FromMajor(120), *in.StartPrice)
			require.Nil(t, in.EndAt)
			return models.Auction{AuctionID: "a1", StartPrice: *in.StartPrice}, nil
		})
	w := serve(router, http.MethodPut, "/auctions/a1", `{"start_price":120}`)
	require.Equal(t, http.StatusOK, w.Code)

	m.EXPECT().Update(gomock.Any(), alice, "a2", gomock.Any()).Return(models.Auction{}, biddingerrors.ErrInvalidTransition)
	w = serve(router, http.MethodPut, "/auctions/a2", `{"start_price":120}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "InvalidTransition", decode(t, w)["detail"])

	m.EXPECT().Cancel(gomock.Any(), alice, "a1").Return(nil)
	w = serve(router, http.MethodDelete, "/auctions/a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "auction cancelled successfully", decode(t, w)["message"])

	m.EXPECT().Cancel(gomock.Any(), alice, "a3").Return(biddingerrors.ErrForbidden)
	w = serve(router, http.MethodDelete, "/auctions/a3", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	anon := auctionRouter(m, false)
	w = serve(anon, http.MethodDelete, "/auctions/a1", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
