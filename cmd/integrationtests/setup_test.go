package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/auctions"
	"auction-engine/internal/auth"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/cache"
	"auction-engine/internal/escrow"
	"auction-engine/internal/events"
	"auction-engine/internal/gateway"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/realtime"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/internal/wallet"
	"auction-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "integration-secret"
	gatewayIP  = "52.31.139.75"
)

// testEnv is the whole server wired on the in-memory store.
type testEnv struct {
	router   *gin.Engine
	repo     *repository.MemoryRepo
	driver   *lifecycle.Driver
	verifier *auth.Verifier
	events   <-chan events.Message

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// advance moves the lifecycle clock forward.
func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

// SetupTestRouter initializes the router with in-memory repository for integration testing.
func SetupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &testEnv{repo: repository.NewMemoryRepo(), now: time.Now().UTC()}

	mem := events.NewMemoryBus()
	env.events = mem.Subscribe(ctx)
	bus := events.NewBus(mem)

	verifier, err := auth.NewVerifier(testSecret, "")
	require.NoError(t, err)
	env.verifier = verifier

	hub := realtime.NewHub(env.repo, cache.New(nil, 64, time.Minute))
	go hub.Run(ctx)

	esc := escrow.NewManager(env.repo, bus, escrow.Options{PaymentDue: 72 * time.Hour, InspectionWindow: 120 * time.Hour, FrontendURL: "http://front.test"})
	env.driver = lifecycle.NewDriver(env.repo, esc, hub, lifecycle.Config{}).WithClock(env.clock)

	env.router = server.SetupRouter(server.Deps{
		Verifier:   verifier,
		Bids:       bidding.NewBiddingService(env.repo, esc, hub, bus),
		Auctions:   auctions.NewService(env.repo, bus, "http://front.test"),
		Escrow:     esc,
		Wallet:     wallet.NewService(env.repo, gateway.NewClient("http://127.0.0.1:1", "sk_test"), bus, wallet.Options{WebhookSecret: "sk_test", Allowlist: gateway.ParseAllowlist(gatewayIP)}),
		Hub:        hub,
		Watchers:   env.repo,
		BidLimiter: helpers.NewKeyedLimiter(1000, 1000),
	})
	return env
}

// SeedUser adds a user with balance and returns a bearer token for it.
func (e *testEnv) SeedUser(t *testing.T, userID string, balance int64) string {
	t.Helper()
	amt := money.FromMajor(balance)
	e.repo.AddUser(models.User{
		UserID:    userID,
		Username:  userID,
		Email:     userID + "@example.com",
		Role:      models.RoleClient,
		Wallet:    amt,
		Available: amt,
		CreatedAt: e.clock(),
	})
	token, err := e.verifier.Issue(auth.Principal{UserID: userID, Email: userID + "@example.com", Username: userID, Role: models.RoleClient}, time.Hour)
	require.NoError(t, err)
	return token
}

// SeedActiveAuction adds a running auction owned by sellerID.
func (e *testEnv) SeedActiveAuction(auctionID, sellerID string, start int64, buyNow int64) {
	now := e.clock()
	a := models.Auction{
		AuctionID:    auctionID,
		SellerID:     sellerID,
		StartPrice:   money.FromMajor(start),
		CurrentPrice: money.FromMajor(start),
		StartAt:      now.Add(-time.Minute),
		EndAt:        now.Add(time.Hour),
		Status:       models.AuctionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if buyNow > 0 {
		a.BuyNow = true
		a.BuyNowPrice = money.FromMajor(buyNow)
	}
	e.repo.AddAuction(a, models.Item{ItemID: "item-" + auctionID, OwnerID: sellerID, Name: "Item " + auctionID})
}

func (e *testEnv) User(t *testing.T, userID string) models.User {
	t.Helper()
	u, err := e.repo.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u
}

// Topics drains the events published so far.
func (e *testEnv) Topics() []events.Topic {
	var out []events.Topic
	for {
		select {
		case m := <-e.events:
			out = append(out, m.Topic)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, token, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// Data returns the data object of a success envelope.
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}
