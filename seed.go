package main

import (
	"time"

	"auction-engine/internal/auth"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

const seedPassword = "password123"

// seedDevData adds sample users and auctions to the in-memory store and logs
// a token per user so the API can be tried without a login service.
func seedDevData(repo *repository.MemoryRepo, verifier *auth.Verifier, ttl time.Duration) error {
	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	users := []models.User{
		{UserID: "user1", Username: "seller", Email: "seller@example.com", Role: models.RoleClient},
		{UserID: "user2", Username: "alice", Email: "alice@example.com", Role: models.RoleClient},
		{UserID: "user3", Username: "bob", Email: "bob@example.com", Role: models.RoleClient},
	}
	for _, u := range users {
		u.PasswordHash = hash
		u.Wallet = money.FromMajor(1000)
		u.Available = u.Wallet
		u.CreatedAt = now
		repo.AddUser(u)

		token, err := verifier.Issue(auth.Principal{UserID: u.UserID, Email: u.Email, Username: u.Username, Role: u.Role}, ttl)
		if err != nil {
			return err
		}
		utils.Info("seeded user", map[string]any{"user_id": u.UserID, "username": u.Username, "token": token})
	}

	items := []models.Item{
		{ItemID: "item1", OwnerID: "user1", Name: "Brass desk lamp", Description: "Early 1900s, rewired"},
		{ItemID: "item2", OwnerID: "user1", Name: "Film camera", Description: "35mm rangefinder with case"},
		{ItemID: "item3", OwnerID: "user1", Name: "Oak side table", Description: "Solid oak, minor scratches"},
	}
	starts := []money.Amount{money.FromMajor(100), money.FromMajor(200), money.FromMajor(150)}

	for i, item := range items {
		item.CreatedAt = now
		a := models.Auction{
			AuctionID:    "auction" + item.ItemID[len("item"):],
			SellerID:     item.OwnerID,
			StartPrice:   starts[i],
			CurrentPrice: starts[i],
			StartAt:      now.Add(-time.Minute),
			EndAt:        now.Add(time.Duration(i+1) * time.Hour),
			Status:       models.AuctionActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if i == 1 {
			a.BuyNow = true
			a.BuyNowPrice = money.FromMajor(500)
		}
		repo.AddAuction(a, item)
	}
	utils.Info("seeded sample auctions", map[string]any{"count": len(items), "password": seedPassword})
	return nil
}
