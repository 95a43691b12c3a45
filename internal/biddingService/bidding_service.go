package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/ledger"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/notifications"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Broadcaster pushes accepted bids and status changes to watchers.
type Broadcaster interface {
	BidAccepted(ctx context.Context, auctionID string, bids []models.Bid)
	AuctionStatusChanged(auctionID string, status models.AuctionStatus)
}

// EscrowOpener opens the payment of a completed auction. OpenTx runs inside
// the caller's transaction; Opened runs after it commits.
type EscrowOpener interface {
	OpenTx(ctx context.Context, tx repository.Tx, a models.Auction) (models.Payment, error)
	Opened(ctx context.Context, p models.Payment)
}

// Result is the outcome of an accepted bid.
type Result struct {
	Bid          models.Bid      `json:"bid"`
	CurrentPrice money.Amount    `json:"current_price"`
	Payment      *models.Payment `json:"payment,omitempty"`
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	store       repository.Store
	escrow      EscrowOpener
	feed        Broadcaster
	bus         *events.Bus
	locks       *keyedMutex
	now         func() time.Time
	frontendURL string
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(store repository.Store, escrow EscrowOpener, feed Broadcaster, bus *events.Bus) *BiddingService {
	return &BiddingService{
		store:  store,
		escrow: escrow,
		feed:   feed,
		bus:    bus,
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *BiddingService) WithClock(now func() time.Time) *BiddingService {
	s.now = now
	return s
}

// WithFrontendURL sets the base used for links in notifications.
func (s *BiddingService) WithFrontendURL(u string) *BiddingService {
	s.frontendURL = u
	return s
}

// placement carries what a committed bid needs to publish.
type placement struct {
	auction  models.Auction
	bid      models.Bid
	bidder   models.User
	previous *models.Bid
	topUp    bool
	bids     []models.Bid
	payment  *models.Payment
}

// PlaceBid validates and records a user's bid on an auction. A bid equal to
// the buy-now price of an auction still eligible for buy-now takes the buy-now
// path; any other amount is an ordinary bid.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount money.Amount) (Result, error) {
	if auctionID == "" || userID == "" {
		return Result{}, s.rejected(fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid))
	}
	if !amount.IsPositive() {
		return Result{}, s.rejected(fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid))
	}
	return s.run(ctx, auctionID, func(tx repository.Tx, now time.Time) (placement, error) {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return placement{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}
		top, hasTop, err := topBid(ctx, tx, auctionID)
		if err != nil {
			return placement{}, err
		}
		if buyNowEligible(a, top, hasTop) && amount == a.BuyNowPrice {
			return s.buyNowTx(ctx, tx, a, userID, now)
		}
		return s.bidTx(ctx, tx, a, userID, amount, now)
	})
}

// BuyNow buys the auction at its buy-now price and closes it.
func (s *BiddingService) BuyNow(ctx context.Context, auctionID, userID string) (Result, error) {
	if auctionID == "" || userID == "" {
		return Result{}, s.rejected(fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid))
	}
	return s.run(ctx, auctionID, func(tx repository.Tx, now time.Time) (placement, error) {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return placement{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}
		return s.buyNowTx(ctx, tx, a, userID, now)
	})
}

// UpdateBid raises the caller's existing bid. Only the bid owner may update it.
func (s *BiddingService) UpdateBid(ctx context.Context, bidID, userID string, amount money.Amount) (Result, error) {
	if bidID == "" {
		return Result{}, s.rejected(fmt.Errorf("service: %w - empty bid ID", biddingerrors.ErrInvalidBid))
	}
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return Result{}, s.rejected(fmt.Errorf("service: failed to get bid %s: %w", bidID, err))
	}
	if bid.UserID != userID {
		return Result{}, s.rejected(fmt.Errorf("service: %w - bid %s belongs to another user", biddingerrors.ErrForbidden, bidID))
	}
	return s.PlaceBid(ctx, bid.AuctionID, userID, amount)
}

// GetBidsForAuction returns all bids of an auction, highest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the highest bid of an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	bids, err := s.GetBidsForAuction(ctx, auctionID)
	if err != nil {
		return models.Bid{}, err
	}
	if len(bids) == 0 {
		return models.Bid{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNoBids, auctionID)
	}

	return bids[0], nil
}

// run executes one bid transaction inside the auction's critical section.
// Watchers are told after commit and before the section is released, so
// broadcasts follow commit order.
func (s *BiddingService) run(ctx context.Context, auctionID string, fn func(repository.Tx, time.Time) (placement, error)) (Result, error) {
	unlock := s.locks.Lock(auctionID)
	defer unlock()

	now := s.now()
	var p placement
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		p, err = fn(tx, now)
		return err
	})
	if err != nil {
		return Result{}, s.rejected(err)
	}

	s.published(ctx, p)
	return Result{Bid: p.bid, CurrentPrice: p.auction.CurrentPrice, Payment: p.payment}, nil
}

func (s *BiddingService) bidTx(ctx context.Context, tx repository.Tx, a models.Auction, userID string, amount money.Amount, now time.Time) (placement, error) {
	if a.Status != models.AuctionActive || !now.Before(a.EndAt) {
		return placement{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotActive, a.AuctionID, a.Status)
	}
	bidder, err := s.eligibleBidder(ctx, tx, a, userID)
	if err != nil {
		return placement{}, err
	}

	top, hasTop, err := topBid(ctx, tx, a.AuctionID)
	if err != nil {
		return placement{}, err
	}
	floor := a.CurrentPrice
	if hasTop {
		floor = top.Amount
	}
	if amount <= floor {
		return placement{}, fmt.Errorf("service: %w - current highest bid is %s", biddingerrors.ErrBidTooLow, floor)
	}

	p, err := place(ctx, tx, a, bidder, amount, now)
	if err != nil {
		return placement{}, err
	}
	if hasTop {
		p.previous = &top
	}
	p.auction.CurrentPrice = amount
	p.auction.UpdatedAt = now
	if err := tx.UpdateAuction(ctx, p.auction); err != nil {
		return placement{}, fmt.Errorf("service: failed to update auction %s: %w", a.AuctionID, err)
	}
	if err := s.notifyPlaced(ctx, tx, p, now); err != nil {
		return placement{}, err
	}
	if p.bids, err = tx.ListBids(ctx, a.AuctionID); err != nil {
		return placement{}, fmt.Errorf("service: failed to list bids: %w", err)
	}
	return p, nil
}

func (s *BiddingService) buyNowTx(ctx context.Context, tx repository.Tx, a models.Auction, userID string, now time.Time) (placement, error) {
	if a.Status != models.AuctionActive || !now.Before(a.EndAt) {
		return placement{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotActive, a.AuctionID, a.Status)
	}
	top, hasTop, err := topBid(ctx, tx, a.AuctionID)
	if err != nil {
		return placement{}, err
	}
	if !buyNowEligible(a, top, hasTop) {
		return placement{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrBuyNowUnavailable, a.AuctionID)
	}
	bidder, err := s.eligibleBidder(ctx, tx, a, userID)
	if err != nil {
		return placement{}, err
	}

	p, err := place(ctx, tx, a, bidder, a.BuyNowPrice, now)
	if err != nil {
		return placement{}, err
	}
	if hasTop {
		p.previous = &top
	}
	p.auction.CurrentPrice = a.BuyNowPrice
	p.auction.Status = models.AuctionCompleted
	p.auction.UpdatedAt = now
	if err := tx.UpdateAuction(ctx, p.auction); err != nil {
		return placement{}, fmt.Errorf("service: failed to close auction %s: %w", a.AuctionID, err)
	}
	if err := s.notifyPlaced(ctx, tx, p, now); err != nil {
		return placement{}, err
	}

	payment, err := s.escrow.OpenTx(ctx, tx, p.auction)
	if err != nil {
		return placement{}, fmt.Errorf("service: failed to open escrow for %s: %w", a.AuctionID, err)
	}
	p.payment = &payment
	if p.bids, err = tx.ListBids(ctx, a.AuctionID); err != nil {
		return placement{}, fmt.Errorf("service: failed to list bids: %w", err)
	}
	return p, nil
}

// eligibleBidder applies the ownership and participant rules.
func (s *BiddingService) eligibleBidder(ctx context.Context, tx repository.Tx, a models.Auction, userID string) (models.User, error) {
	if a.SellerID == userID {
		return models.User{}, fmt.Errorf("service: %w - seller cannot bid on auction %s", biddingerrors.ErrOwnAuction, a.AuctionID)
	}
	u, err := tx.GetUserForUpdate(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to load bidder %s: %w", userID, err)
	}
	if a.Private {
		ok, err := tx.IsParticipant(ctx, a.AuctionID, u.Email)
		if err != nil {
			return models.User{}, fmt.Errorf("service: failed to check participants: %w", err)
		}
		if !ok {
			return models.User{}, fmt.Errorf("service: %w - %s is not invited to auction %s", biddingerrors.ErrNotParticipant, u.Email, a.AuctionID)
		}
	}
	return u, nil
}

// place commits the bidder's funds and inserts or raises their single bid
// row. A top-up commits only the difference.
func place(ctx context.Context, tx repository.Tx, a models.Auction, bidder models.User, amount money.Amount, now time.Time) (placement, error) {
	p := placement{auction: a, bidder: bidder}

	existing, err := tx.GetUserBid(ctx, a.AuctionID, bidder.UserID)
	switch {
	case err == nil:
		if delta := amount - existing.Amount; delta.IsPositive() {
			if _, err := ledger.CommitBid(ctx, tx, bidder.UserID, delta, a.AuctionID, now); err != nil {
				return placement{}, err
			}
		}
		if err := tx.UpdateBidAmount(ctx, existing.BidID, amount, now); err != nil {
			return placement{}, fmt.Errorf("service: failed to update bid %s: %w", existing.BidID, err)
		}
		existing.Amount = amount
		existing.UpdatedAt = now
		p.bid, p.topUp = existing, true
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		if _, err := ledger.CommitBid(ctx, tx, bidder.UserID, amount, a.AuctionID, now); err != nil {
			return placement{}, err
		}
		p.bid = models.Bid{
			BidID:     utils.GenerateID(),
			AuctionID: a.AuctionID,
			UserID:    bidder.UserID,
			Username:  bidder.Username,
			Amount:    amount,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertBid(ctx, p.bid); err != nil {
			return placement{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", a.AuctionID, bidder.UserID, err)
		}
	default:
		return placement{}, fmt.Errorf("service: failed to look up existing bid: %w", err)
	}
	return p, nil
}

func (s *BiddingService) notifyPlaced(ctx context.Context, tx repository.Tx, p placement, now time.Time) error {
	link := s.auctionLink(p.auction.AuctionID)
	params := notifications.Params{"auction": p.auction.AuctionID, "amount": p.bid.Amount.String()}

	kind := notifications.BidPlaced
	if p.topUp {
		kind = notifications.BidUpdated
	}
	if err := tx.InsertNotification(ctx, notifications.New(p.bidder.UserID, kind, params, now, link)); err != nil {
		return fmt.Errorf("service: failed to notify bidder: %w", err)
	}
	if outbid(p) {
		n := notifications.New(p.previous.UserID, notifications.Outbid, params, now, link)
		if err := tx.InsertNotification(ctx, n); err != nil {
			return fmt.Errorf("service: failed to notify outbid user: %w", err)
		}
	}
	return nil
}

// published runs the post-commit side effects of a placement.
func (s *BiddingService) published(ctx context.Context, p placement) {
	metrics.BidProcessed("accepted")
	utils.Info("bid accepted", map[string]any{
		"auction_id": p.auction.AuctionID,
		"user_id":    p.bidder.UserID,
		"amount":     p.bid.Amount.String(),
		"buy_now":    p.payment != nil,
	})

	if s.feed != nil {
		s.feed.BidAccepted(ctx, p.auction.AuctionID, p.bids)
		if p.payment != nil {
			s.feed.AuctionStatusChanged(p.auction.AuctionID, models.AuctionCompleted)
		}
	}
	if p.payment != nil {
		metrics.AuctionTransition(string(models.AuctionCompleted))
		s.escrow.Opened(ctx, *p.payment)
	}

	evs := []events.Event{{
		Topic: events.TopicBidPlaced,
		Payload: map[string]any{
			"email":      p.bidder.Email,
			"username":   p.bidder.Username,
			"auction_id": p.auction.AuctionID,
			"amount":     p.bid.Amount.String(),
			"link":       s.auctionLink(p.auction.AuctionID),
		},
	}}
	if outbid(p) {
		if prev, err := s.store.GetUser(ctx, p.previous.UserID); err == nil {
			evs = append(evs, events.Event{
				Topic: events.TopicOutbid,
				Payload: map[string]any{
					"email":      prev.Email,
					"username":   prev.Username,
					"auction_id": p.auction.AuctionID,
					"amount":     p.bid.Amount.String(),
					"link":       s.auctionLink(p.auction.AuctionID),
				},
			})
		} else {
			utils.Warn("outbid user lookup failed", map[string]any{"user_id": p.previous.UserID, "error": err.Error()})
		}
	}
	s.bus.Emit(ctx, evs...)
}

// rejected records a failed bid and passes err through.
func (s *BiddingService) rejected(err error) error {
	kind, detail := biddingerrors.Classify(err)
	switch kind {
	case biddingerrors.KindInternal:
		metrics.BidProcessed("error")
		utils.Error("bid failed", map[string]any{"error": err.Error()})
	case biddingerrors.KindConflict:
		metrics.BidProcessed("conflict")
	default:
		metrics.BidProcessed("rejected")
		utils.Debug("bid rejected", map[string]any{"detail": detail, "error": err.Error()})
	}
	return err
}

func (s *BiddingService) auctionLink(auctionID string) string {
	return s.frontendURL + "/auctions/" + auctionID
}

func outbid(p placement) bool {
	return p.previous != nil && p.previous.UserID != p.bidder.UserID
}

func topBid(ctx context.Context, tx repository.Tx, auctionID string) (models.Bid, bool, error) {
	top, err := tx.TopBid(ctx, auctionID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return models.Bid{}, false, nil
	}
	if err != nil {
		return models.Bid{}, false, fmt.Errorf("service: failed to check winning bid: %w", err)
	}
	return top, true, nil
}

// buyNowEligible reports whether buy-now is still offered: it is withdrawn
// once any bid exceeds the start price.
func buyNowEligible(a models.Auction, top models.Bid, hasTop bool) bool {
	if !a.BuyNow || !a.BuyNowPrice.IsPositive() {
		return false
	}
	return !hasTop || top.Amount <= a.StartPrice
}
