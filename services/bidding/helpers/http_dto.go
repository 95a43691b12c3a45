package helpers

import (
	"fmt"
	"time"

	"auction-engine/internal/auctions"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	AuctionID string       `json:"auction_id" binding:"required"`
	Amount    money.Amount `json:"amount" binding:"required,gt=0"`
}

type BuyNowRequest struct {
	AuctionID string `json:"auction_id" binding:"required"`
}

type UpdateBidRequest struct {
	Amount money.Amount `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	BidID        string          `json:"bid_id"`
	AuctionID    string          `json:"auction_id"`
	UserID       string          `json:"user_id"`
	Username     string          `json:"username"`
	Amount       money.Amount    `json:"amount"`
	CurrentPrice money.Amount    `json:"current_price,omitempty"`
	Payment      *models.Payment `json:"payment,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
}

// NewBidResponse renders a bid; price and payment are optional.
func NewBidResponse(b models.Bid, price money.Amount, payment *models.Payment) BidResponse {
	resp := BidResponse{
		BidID:        b.BidID,
		AuctionID:    b.AuctionID,
		UserID:       b.UserID,
		Username:     b.Username,
		Amount:       b.Amount,
		CurrentPrice: price,
		Payment:      payment,
		CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !b.UpdatedAt.IsZero() {
		resp.UpdatedAt = b.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type ItemRequest struct {
	Name          string            `json:"name" binding:"required"`
	Description   string            `json:"description"`
	CategoryID    string            `json:"category_id"`
	SubCategoryID string            `json:"sub_category_id"`
	Images        []models.Image    `json:"images" binding:"max=5"`
	Dimensions    models.Dimensions `json:"dimensions"`
}

type CreateAuctionRequest struct {
	Item         ItemRequest      `json:"item"`
	StartPrice   money.Amount     `json:"start_price" binding:"required,gt=0"`
	BuyNow       bool             `json:"buy_now"`
	BuyNowPrice  money.Amount     `json:"buy_now_price"`
	StartDate    time.Time        `json:"start_date" binding:"required"`
	EndDate      time.Time        `json:"end_date" binding:"required"`
	Private      bool             `json:"private"`
	Participants []string         `json:"participants"`
	Logistics    models.Logistics `json:"logistics"`
}

func (r CreateAuctionRequest) Input() auctions.CreateInput {
	return auctions.CreateInput{
		Item: auctions.ItemInput{
			Name:          r.Item.Name,
			Description:   r.Item.Description,
			CategoryID:    r.Item.CategoryID,
			SubCategoryID: r.Item.SubCategoryID,
			Images:        r.Item.Images,
			Dimensions:    r.Item.Dimensions,
		},
		StartPrice:   r.StartPrice,
		BuyNow:       r.BuyNow,
		BuyNowPrice:  r.BuyNowPrice,
		StartAt:      r.StartDate,
		EndAt:        r.EndDate,
		Private:      r.Private,
		Participants: r.Participants,
		Logistics:    r.Logistics,
	}
}

type UpdateAuctionRequest struct {
	StartPrice   *money.Amount     `json:"start_price"`
	BuyNow       *bool             `json:"buy_now"`
	BuyNowPrice  *money.Amount     `json:"buy_now_price"`
	StartDate    *time.Time        `json:"start_date"`
	EndDate      *time.Time        `json:"end_date"`
	Logistics    *models.Logistics `json:"logistics"`
	Participants []string          `json:"participants"`
}

func (r UpdateAuctionRequest) Input() auctions.UpdateInput {
	return auctions.UpdateInput{
		StartPrice:   r.StartPrice,
		BuyNow:       r.BuyNow,
		BuyNowPrice:  r.BuyNowPrice,
		StartAt:      r.StartDate,
		EndAt:        r.EndDate,
		Logistics:    r.Logistics,
		Participants: r.Participants,
	}
}

// AuctionQuery is the query string of GET /auctions.
type AuctionQuery struct {
	Status       string `form:"status"`
	Category     string `form:"category"`
	SubCategory  string `form:"sub_category"`
	Owner        string `form:"owner"`
	StartPrice   string `form:"start_price"`
	CurrentPrice string `form:"current_price"`
	BuyNowPrice  string `form:"buy_now_price"`
	Sort         string `form:"sort"`
	Search       string `form:"search"`
}

// Filter parses the price ranges into a repository filter.
func (q AuctionQuery) Filter(viewer repository.Viewer) (repository.AuctionFilter, error) {
	f := repository.AuctionFilter{
		Status:        models.AuctionStatus(q.Status),
		CategoryID:    q.Category,
		SubCategoryID: q.SubCategory,
		OwnerID:       q.Owner,
		Sort:          q.Sort,
		Viewer:        viewer,
	}
	ranges := []struct {
		name string
		raw  string
		dst  **money.Range
	}{
		{"start_price", q.StartPrice, &f.StartPrice},
		{"current_price", q.CurrentPrice, &f.CurrentPrice},
		{"buy_now_price", q.BuyNowPrice, &f.BuyNowPrice},
	}
	for _, r := range ranges {
		if r.raw == "" {
			continue
		}
		parsed, err := money.ParseRange(r.raw)
		if err != nil {
			return repository.AuctionFilter{}, fmt.Errorf("%w - %s: %v", biddingerrors.ErrValidation, r.name, err)
		}
		*r.dst = &parsed
	}
	return f, nil
}

type VerifyFundingRequest struct {
	ReferenceID string `json:"reference_id" binding:"required"`
}

type WithdrawRequest struct {
	Amount money.Amount `json:"amount" binding:"required,gt=0"`
}

// BidFrame is an inbound bid on the auction websocket.
type BidFrame struct {
	AuctionID string       `json:"auction_id"`
	Amount    money.Amount `json:"amount"`
}
