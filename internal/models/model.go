package models

import (
	"time"

	"auction-engine/internal/money"
)

type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// User represents an account with its three monetary buckets.
// Wallet always equals Available + Escrowed.
type User struct {
	UserID        string       `json:"user_id"`
	Username      string       `json:"username"`
	Email         string       `json:"email"`
	PasswordHash  string       `json:"-"`
	Role          Role         `json:"role"`
	Wallet        money.Amount `json:"wallet"`
	Available     money.Amount `json:"available"`
	Escrowed      money.Amount `json:"escrowed"`
	BankRecipient string       `json:"bank_recipient,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Balanced reports whether the money conservation rule holds.
func (u User) Balanced() bool {
	return u.Wallet == u.Available+u.Escrowed && u.Available >= 0 && u.Escrowed >= 0
}

type Image struct {
	URL     string `json:"url"`
	AssetID string `json:"asset_id"`
}

// MaxImages is the number of image references an item may carry.
const MaxImages = 5

type Dimensions struct {
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
	Weight float64 `json:"weight"`
}

// Item represents the thing being auctioned
type Item struct {
	ItemID        string     `json:"item_id"`
	OwnerID       string     `json:"owner_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	CategoryID    string     `json:"category_id,omitempty"`
	SubCategoryID string     `json:"sub_category_id,omitempty"`
	Images        []Image    `json:"images"`
	Dimensions    Dimensions `json:"dimensions"`
	CreatedAt     time.Time  `json:"created_at"`
}

type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// CanTransition reports whether the lifecycle allows from -> to.
func (s AuctionStatus) CanTransition(to AuctionStatus) bool {
	switch s {
	case AuctionPending:
		return to == AuctionActive || to == AuctionCancelled
	case AuctionActive:
		return to == AuctionCompleted
	}
	return false
}

type Logistics struct {
	PickupAddress string       `json:"pickup_address"`
	Fee           money.Amount `json:"fee"`
	Type          []string     `json:"type"`
}

type Auction struct {
	AuctionID     string        `json:"auction_id"`
	SellerID      string        `json:"seller_id"`
	ItemID        string        `json:"item_id"`
	Item          *Item         `json:"item,omitempty"`
	StartPrice    money.Amount  `json:"start_price"`
	CurrentPrice  money.Amount  `json:"current_price"`
	BuyNow        bool          `json:"buy_now"`
	BuyNowPrice   money.Amount  `json:"buy_now_price"`
	StartAt       time.Time     `json:"start_at"`
	EndAt         time.Time     `json:"end_at"`
	Status        AuctionStatus `json:"status"`
	Private       bool          `json:"private"`
	WatchersCount int           `json:"watchers_count"`
	Logistics     Logistics     `json:"logistics"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Bid is the single row a user holds on an auction; top-ups mutate Amount.
type Bid struct {
	BidID     string       `json:"bid_id"`
	AuctionID string       `json:"auction_id"`
	UserID    string       `json:"user_id"`
	Username  string       `json:"username"`
	Amount    money.Amount `json:"amount"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BidView is the shape pushed to websocket watchers and cached per auction.
type BidView struct {
	UserID   string       `json:"user"`
	Username string       `json:"username"`
	Amount   money.Amount `json:"amount"`
}

// ViewsOf converts bids (already ordered by amount desc) to their wire shape.
func ViewsOf(bids []Bid) []BidView {
	views := make([]BidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, BidView{UserID: b.UserID, Username: b.Username, Amount: b.Amount})
	}
	return views
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentInspecting PaymentStatus = "inspecting"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentRefunding  PaymentStatus = "refunding"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Terminal reports whether no further escrow transitions are possible.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentRefunded
}

// Payment is the escrow record opened when an auction completes with a winner.
type Payment struct {
	PaymentID string        `json:"payment_id"`
	AuctionID string        `json:"auction_id"`
	BuyerID   string        `json:"buyer_id"`
	SellerID  string        `json:"seller_id"`
	Amount    money.Amount  `json:"amount"`
	Status    PaymentStatus `json:"status"`
	DueAt     time.Time     `json:"due_at"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type EntryKind string

const (
	KindFunding      EntryKind = "funding"
	KindWithdrawal   EntryKind = "withdrawal"
	KindBidCommit    EntryKind = "bid-commit"
	KindBidRelease   EntryKind = "bid-release"
	KindEscrowCredit EntryKind = "escrow-credit"
	KindEscrowDebit  EntryKind = "escrow-debit"
)

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// LedgerEntry is one row of a user's wallet history.
type LedgerEntry struct {
	EntryID     string       `json:"entry_id"`
	UserID      string       `json:"user_id"`
	Amount      money.Amount `json:"amount"`
	Direction   Direction    `json:"direction"`
	Kind        EntryKind    `json:"kind"`
	Status      EntryStatus  `json:"status"`
	Reference   string       `json:"reference,omitempty"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Participant struct {
	AuctionID string `json:"auction_id"`
	Email     string `json:"email"`
}

type Notification struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Links          []string  `json:"links,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

type SenderRole string

const (
	SenderBuyer  SenderRole = "buyer"
	SenderSeller SenderRole = "seller"
)

type ChatMessage struct {
	Seq       int64      `json:"chat_number"`
	SenderID  string     `json:"sender_id"`
	Role      SenderRole `json:"sender_type"`
	Text      string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Read      bool       `json:"status"`
}

// ChatRoom binds the winning buyer and the seller of an auction.
type ChatRoom struct {
	ChatID       string        `json:"chat_id"`
	AuctionID    string        `json:"auction_id"`
	BuyerID      string        `json:"buyer_id"`
	SellerID     string        `json:"seller_id"`
	Conversation []ChatMessage `json:"conversation"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RoleOf returns the sender role of userID in the room, false if not bound.
func (c ChatRoom) RoleOf(userID string) (SenderRole, bool) {
	switch userID {
	case c.BuyerID:
		return SenderBuyer, true
	case c.SellerID:
		return SenderSeller, true
	}
	return "", false
}
