package perftests

import (
	"fmt"
	"io"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/escrow"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

func init() {
	// per-bid info lines would dominate the measurements
	utils.SetLogOutput(io.Discard)
}

func userID(i int) string    { return fmt.Sprintf("user_%d", i) }
func auctionID(i int) string { return fmt.Sprintf("auction_%d", i) }

// setupRepo creates the repository and bidding service with numUsers funded
// bidders and numAuctions running auctions starting at startPrice.
func setupRepo(numAuctions, numUsers int, startPrice int64) (*repository.MemoryRepo, *bidding.BiddingService) {
	repo := repository.NewMemoryRepo()
	esc := escrow.NewManager(repo, nil, escrow.Options{PaymentDue: time.Hour, InspectionWindow: time.Hour})
	svc := bidding.NewBiddingService(repo, esc, nil, nil)

	now := time.Now().UTC()
	repo.AddUser(models.User{UserID: "seller", Username: "seller", Email: "seller@bench", Role: models.RoleClient})
	for i := 0; i < numUsers; i++ {
		balance := money.FromMajor(1_000_000_000)
		repo.AddUser(models.User{
			UserID:    userID(i),
			Username:  userID(i),
			Email:     userID(i) + "@bench",
			Role:      models.RoleClient,
			Wallet:    balance,
			Available: balance,
		})
	}
	for i := 0; i < numAuctions; i++ {
		repo.AddAuction(models.Auction{
			AuctionID:    auctionID(i),
			SellerID:     "seller",
			StartPrice:   money.FromMajor(startPrice),
			CurrentPrice: money.FromMajor(startPrice),
			StartAt:      now.Add(-time.Minute),
			EndAt:        now.Add(24 * time.Hour),
			Status:       models.AuctionActive,
		}, models.Item{ItemID: fmt.Sprintf("item_%d", i), OwnerID: "seller", Name: fmt.Sprintf("Load test item %d", i)})
	}
	return repo, svc
}
