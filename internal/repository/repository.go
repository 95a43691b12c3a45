package repository

import (
	"context"
	"time"

	"auction-engine/internal/models"
	"auction-engine/internal/money"
)

// Store is the durable state of the auction core. Reads on Store see only
// committed data; every mutation that must be atomic runs through WithTx.
type Store interface {
	// WithTx runs fn in a single ACID unit. fn's error rolls everything back.
	// Calls must not nest.
	WithTx(ctx context.Context, fn func(Tx) error) error

	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListAuctions(ctx context.Context, f AuctionFilter, p Page) ([]models.Auction, int, error)
	SearchAuctions(ctx context.Context, term string, viewer Viewer, p Page) ([]models.Auction, int, error)
	IsParticipant(ctx context.Context, auctionID, email string) (bool, error)
	GetBid(ctx context.Context, bidID string) (models.Bid, error)
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetPayment(ctx context.Context, paymentID string) (models.Payment, error)
	GetPaymentByAuction(ctx context.Context, auctionID string) (models.Payment, error)
	ListLedgerEntries(ctx context.Context, userID string, p Page) ([]models.LedgerEntry, error)
	ListNotifications(ctx context.Context, userID string, p Page) ([]models.Notification, error)

	// FindDueAuctions returns ids of pending auctions whose start has passed
	// and active auctions whose end has passed. Callers re-lock each row.
	FindDueAuctions(ctx context.Context, now time.Time, limit int) ([]string, error)
	// FindDuePayments returns ids of open or refunding payments past due_at.
	FindDuePayments(ctx context.Context, now time.Time, limit int) ([]string, error)

	// RecordWatcher counts a distinct user watching an auction.
	RecordWatcher(ctx context.Context, auctionID, userID string) error

	GetChat(ctx context.Context, chatID string) (models.ChatRoom, error)
	// AppendChatMessage stores a message with the next sequence number of the room.
	AppendChatMessage(ctx context.Context, chatID, senderID, text string, at time.Time) (models.ChatMessage, error)
	// MarkChatRead flips the read flag of messages with seq <= upTo that were
	// authored by the other party. Returns the number of messages changed.
	MarkChatRead(ctx context.Context, chatID, readerID string, upTo int64) (int, error)
}

// Tx is the transactional view used by the bid engine, ledger and escrow.
// ForUpdate reads take a row lock held until the transaction ends.
type Tx interface {
	GetUserForUpdate(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, u models.User) error
	UpdateUserBalances(ctx context.Context, u models.User) error

	InsertLedgerEntry(ctx context.Context, e models.LedgerEntry) error
	FindLedgerEntryForUpdate(ctx context.Context, kind models.EntryKind, reference string) (models.LedgerEntry, error)
	UpdateLedgerEntryStatus(ctx context.Context, entryID string, status models.EntryStatus, at time.Time) error

	CreateItem(ctx context.Context, item models.Item) error
	CreateAuction(ctx context.Context, a models.Auction) error
	GetAuctionForUpdate(ctx context.Context, auctionID string) (models.Auction, error)
	UpdateAuction(ctx context.Context, a models.Auction) error
	AddParticipants(ctx context.Context, auctionID string, emails []string) error
	IsParticipant(ctx context.Context, auctionID, email string) (bool, error)

	TopBid(ctx context.Context, auctionID string) (models.Bid, error)
	GetBidForUpdate(ctx context.Context, bidID string) (models.Bid, error)
	GetUserBid(ctx context.Context, auctionID, userID string) (models.Bid, error)
	InsertBid(ctx context.Context, b models.Bid) error
	UpdateBidAmount(ctx context.Context, bidID string, amount money.Amount, at time.Time) error
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)

	InsertPayment(ctx context.Context, p models.Payment) error
	GetPaymentForUpdate(ctx context.Context, paymentID string) (models.Payment, error)
	GetPaymentByAuctionForUpdate(ctx context.Context, auctionID string) (models.Payment, error)
	UpdatePayment(ctx context.Context, p models.Payment) error

	InsertNotification(ctx context.Context, n models.Notification) error
	// CreateChat returns the existing room for the auction if one exists.
	CreateChat(ctx context.Context, c models.ChatRoom) (models.ChatRoom, error)
}

// Viewer identifies who is listing auctions, for private visibility.
type Viewer struct {
	UserID string
	Email  string
}

// AuctionFilter narrows ListAuctions. Zero values mean "any".
type AuctionFilter struct {
	Status        models.AuctionStatus
	CategoryID    string
	SubCategoryID string
	OwnerID       string
	StartPrice    *money.Range
	CurrentPrice  *money.Range
	BuyNowPrice   *money.Range
	Sort          string
	Viewer        Viewer
}

// Sort keys accepted by ListAuctions; all order descending.
const (
	SortWatchers     = "watchers_count"
	SortStartAt      = "start_at"
	SortEndAt        = "end_at"
	SortCurrentPrice = "current_price"
	SortCreatedAt    = "created_at"
)

// ValidSort reports whether s is a known sort key.
func ValidSort(s string) bool {
	switch s {
	case "", SortWatchers, SortStartAt, SortEndAt, SortCurrentPrice, SortCreatedAt:
		return true
	}
	return false
}

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Page is 1-based paging.
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps the page into the accepted bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PerPage
}

// visible reports whether a private auction can be shown to the viewer.
func visible(a models.Auction, v Viewer, isParticipant bool) bool {
	if !a.Private {
		return true
	}
	return v.UserID != "" && (a.SellerID == v.UserID || isParticipant)
}

// matches applies every AuctionFilter clause except visibility.
func (f AuctionFilter) matches(a models.Auction, item models.Item) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.OwnerID != "" && a.SellerID != f.OwnerID {
		return false
	}
	if f.CategoryID != "" && item.CategoryID != f.CategoryID {
		return false
	}
	if f.SubCategoryID != "" && item.SubCategoryID != f.SubCategoryID {
		return false
	}
	if f.StartPrice != nil && !f.StartPrice.Contains(a.StartPrice) {
		return false
	}
	if f.CurrentPrice != nil && !f.CurrentPrice.Contains(a.CurrentPrice) {
		return false
	}
	if f.BuyNowPrice != nil && (!a.BuyNow || !f.BuyNowPrice.Contains(a.BuyNowPrice)) {
		return false
	}
	return true
}
