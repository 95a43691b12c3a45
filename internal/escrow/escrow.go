// Package escrow drives the payment of a completed auction from the winning
// bid's escrow to the seller, or back to the buyer on refund.
package escrow

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
	"auction-engine/internal/notifications"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

const (
	DefaultPaymentDue       = 72 * time.Hour
	DefaultInspectionWindow = 5 * 24 * time.Hour
	DefaultRefundWindow     = 7 * 24 * time.Hour
)

// Options configures the escrow deadlines.
type Options struct {
	PaymentDue       time.Duration
	InspectionWindow time.Duration
	// RefundWindow is how long the seller has to confirm a refund before it
	// is completed for them.
	RefundWindow time.Duration
	FrontendURL  string
}

// Manager owns the payment state machine.
type Manager struct {
	store repository.Store
	bus   *events.Bus
	opts  Options
	now   func() time.Time
}

func NewManager(store repository.Store, bus *events.Bus, opts Options) *Manager {
	if opts.PaymentDue <= 0 {
		opts.PaymentDue = DefaultPaymentDue
	}
	if opts.InspectionWindow <= 0 {
		opts.InspectionWindow = DefaultInspectionWindow
	}
	if opts.RefundWindow <= 0 {
		opts.RefundWindow = DefaultRefundWindow
	}
	return &Manager{store: store, bus: bus, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// allowed lists the payment transitions; completed and refunded are terminal.
var allowed = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentPending:    {models.PaymentInspecting, models.PaymentCompleted, models.PaymentRefunding},
	models.PaymentInspecting: {models.PaymentCompleted, models.PaymentRefunding},
	models.PaymentRefunding:  {models.PaymentRefunded},
}

func canTransition(from, to models.PaymentStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OpenTx creates the pending payment of a completed auction inside tx. The
// highest bidder becomes the buyer; every other bidder's escrow is released.
// Opening twice returns the existing payment.
func (m *Manager) OpenTx(ctx context.Context, tx repository.Tx, a models.Auction) (models.Payment, error) {
	if a.Status != models.AuctionCompleted {
		return models.Payment{}, fmt.Errorf("escrow: %w - auction %s is %s", biddingerrors.ErrInvalidTransition, a.AuctionID, a.Status)
	}
	existing, err := tx.GetPaymentByAuctionForUpdate(ctx, a.AuctionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, biddingerrors.ErrPaymentNotFound) {
		return models.Payment{}, fmt.Errorf("escrow: failed to look up payment: %w", err)
	}

	bids, err := tx.ListBids(ctx, a.AuctionID)
	if err != nil {
		return models.Payment{}, fmt.Errorf("escrow: failed to list bids: %w", err)
	}
	if len(bids) == 0 {
		return models.Payment{}, fmt.Errorf("escrow: %w - auction %s", biddingerrors.ErrNoBids, a.AuctionID)
	}

	now := m.now()
	winner := bids[0]
	p := models.Payment{
		PaymentID: utils.GenerateID(),
		AuctionID: a.AuctionID,
		BuyerID:   winner.UserID,
		SellerID:  a.SellerID,
		Amount:    winner.Amount,
		Status:    models.PaymentPending,
		DueAt:     now.Add(m.opts.PaymentDue),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertPayment(ctx, p); err != nil {
		return models.Payment{}, fmt.Errorf("escrow: failed to create payment: %w", err)
	}

	link := m.link(a.AuctionID)
	notes := []models.Notification{
		notifications.New(winner.UserID, notifications.AuctionWon, m.params(p), now, link),
		notifications.New(a.SellerID, notifications.AuctionClosed, m.params(p), now, link),
	}
	for _, loser := range bids[1:] {
		if _, err := ledger.ReleaseBid(ctx, tx, loser.UserID, loser.Amount, a.AuctionID, now); err != nil {
			return models.Payment{}, fmt.Errorf("escrow: failed to release bid of %s: %w", loser.UserID, err)
		}
		params := notifications.Params{"auction": a.AuctionID, "amount": loser.Amount.String()}
		notes = append(notes, notifications.New(loser.UserID, notifications.AuctionLost, params, now, link))
	}
	for _, n := range notes {
		if err := tx.InsertNotification(ctx, n); err != nil {
			return models.Payment{}, fmt.Errorf("escrow: failed to notify: %w", err)
		}
	}

	if _, err := tx.CreateChat(ctx, models.ChatRoom{
		ChatID:    utils.GenerateID(),
		AuctionID: a.AuctionID,
		BuyerID:   p.BuyerID,
		SellerID:  p.SellerID,
		CreatedAt: now,
	}); err != nil {
		return models.Payment{}, fmt.Errorf("escrow: failed to open chat: %w", err)
	}
	return p, nil
}

// Opened publishes the win once the opening transaction has committed.
func (m *Manager) Opened(ctx context.Context, p models.Payment) {
	metrics.EscrowTransition(string(models.PaymentPending))
	utils.Info("escrow opened", map[string]any{
		"auction_id": p.AuctionID,
		"payment_id": p.PaymentID,
		"buyer_id":   p.BuyerID,
		"amount":     p.Amount.String(),
		"due_at":     p.DueAt,
	})

	buyer, err := m.store.GetUser(ctx, p.BuyerID)
	if err != nil {
		utils.Warn("escrow: winner lookup failed", map[string]any{"user_id": p.BuyerID, "error": err.Error()})
		return
	}
	m.bus.Emit(ctx, events.Event{Topic: events.TopicWinAuction, Payload: map[string]any{
		"email":      buyer.Email,
		"username":   buyer.Username,
		"auction_id": p.AuctionID,
		"amount":     p.Amount.String(),
		"link":       m.link(p.AuctionID),
	}})
}

// MarkInspecting moves a pending payment to inspecting and extends its deadline
// by the inspection window. Only the buyer may do this.
func (m *Manager) MarkInspecting(ctx context.Context, auctionID, actorID string) (models.Payment, error) {
	return m.transition(ctx, auctionID, actorID, buyerOnly, models.PaymentInspecting, func(tx repository.Tx, p *models.Payment, now time.Time) error {
		p.DueAt = p.DueAt.Add(m.opts.InspectionWindow)
		params := m.params(*p)
		params["due"] = p.DueAt.Format(time.RFC1123)
		return tx.InsertNotification(ctx, notifications.New(p.SellerID, notifications.InspectionStarted, params, now, m.link(auctionID)))
	})
}

// Finalize completes the payment on the buyer's request and pays the seller.
func (m *Manager) Finalize(ctx context.Context, auctionID, actorID string) (models.Payment, error) {
	return m.transition(ctx, auctionID, actorID, buyerOnly, models.PaymentCompleted, func(tx repository.Tx, p *models.Payment, now time.Time) error {
		return m.settle(ctx, tx, p, now)
	})
}

// FinalizeDue closes a payment whose deadline has passed: an open payment is
// completed and paid to the seller, a refunding one is refunded to the buyer.
// Payments that are not due or already final are left untouched.
func (m *Manager) FinalizeDue(ctx context.Context, paymentID string) (bool, error) {
	var done models.Payment
	var applied bool
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		now := m.now()
		if p.DueAt.After(now) {
			return nil
		}
		switch p.Status {
		case models.PaymentPending, models.PaymentInspecting:
			if err := m.settle(ctx, tx, &p, now); err != nil {
				return err
			}
			p.Status = models.PaymentCompleted
		case models.PaymentRefunding:
			if err := m.refund(ctx, tx, &p, now); err != nil {
				return err
			}
			p.Status = models.PaymentRefunded
		default:
			return nil
		}
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		done, applied = p, true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("escrow: finalize due payment %s: %w", paymentID, err)
	}
	if applied {
		m.transitioned(done, "timeout")
	}
	return applied, nil
}

// RequestRefund moves an open payment to refunding. Only the buyer may ask.
func (m *Manager) RequestRefund(ctx context.Context, auctionID, actorID string) (models.Payment, error) {
	p, err := m.transition(ctx, auctionID, actorID, buyerOnly, models.PaymentRefunding, func(tx repository.Tx, p *models.Payment, now time.Time) error {
		p.DueAt = now.Add(m.opts.RefundWindow)
		link := m.link(auctionID)
		if err := tx.InsertNotification(ctx, notifications.New(p.SellerID, notifications.RefundRequestSeller, m.params(*p), now, link)); err != nil {
			return err
		}
		return tx.InsertNotification(ctx, notifications.New(p.BuyerID, notifications.RefundRequestBuyer, m.params(*p), now, link))
	})
	if err != nil {
		return p, err
	}

	buyer, berr := m.store.GetUser(ctx, p.BuyerID)
	seller, serr := m.store.GetUser(ctx, p.SellerID)
	if berr != nil || serr != nil {
		utils.Warn("escrow: refund parties lookup failed", map[string]any{"auction_id": auctionID})
		return p, nil
	}
	m.bus.Emit(ctx,
		events.Event{Topic: events.TopicRefundReqBuyer, Payload: map[string]any{
			"email": buyer.Email, "username": buyer.Username, "auction_id": auctionID, "amount": p.Amount.String(),
		}},
		events.Event{Topic: events.TopicRefundReqSeller, Payload: map[string]any{
			"email": seller.Email, "username": seller.Username, "auction_id": auctionID, "amount": p.Amount.String(),
			"link": m.opts.FrontendURL + "/auctions/complete_refund/" + auctionID,
		}},
	)
	return p, nil
}

// ConfirmRefund is the seller confirming the item came back. The buyer's
// escrow returns to their available balance.
func (m *Manager) ConfirmRefund(ctx context.Context, auctionID, actorID string) (models.Payment, error) {
	return m.transition(ctx, auctionID, actorID, sellerOnly, models.PaymentRefunded, func(tx repository.Tx, p *models.Payment, now time.Time) error {
		return m.refund(ctx, tx, p, now)
	})
}

// refund returns the buyer's escrow and notifies them.
func (m *Manager) refund(ctx context.Context, tx repository.Tx, p *models.Payment, now time.Time) error {
	if _, err := ledger.ReleaseBid(ctx, tx, p.BuyerID, p.Amount, p.AuctionID, now); err != nil {
		return err
	}
	return tx.InsertNotification(ctx, notifications.New(p.BuyerID, notifications.RefundCompleted, m.params(*p), now, m.link(p.AuctionID)))
}

// PaymentForAuction returns the payment to its buyer or seller.
func (m *Manager) PaymentForAuction(ctx context.Context, auctionID, actorID string) (models.Payment, error) {
	p, err := m.store.GetPaymentByAuction(ctx, auctionID)
	if err != nil {
		return models.Payment{}, fmt.Errorf("escrow: %w", err)
	}
	if actorID != p.BuyerID && actorID != p.SellerID {
		return models.Payment{}, fmt.Errorf("escrow: %w - not a party to auction %s", biddingerrors.ErrForbidden, auctionID)
	}
	return p, nil
}

type actorRule func(p models.Payment, actorID string) bool

func buyerOnly(p models.Payment, actorID string) bool  { return p.BuyerID == actorID }
func sellerOnly(p models.Payment, actorID string) bool { return p.SellerID == actorID }

// transition locks the auction's payment, checks the actor and the state
// machine, runs effect and stores the new status, all in one transaction.
func (m *Manager) transition(ctx context.Context, auctionID, actorID string, may actorRule, to models.PaymentStatus,
	effect func(tx repository.Tx, p *models.Payment, now time.Time) error) (models.Payment, error) {
	var out models.Payment
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPaymentByAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if !may(p, actorID) {
			return fmt.Errorf("%w - user %s cannot move payment to %s", biddingerrors.ErrForbidden, actorID, to)
		}
		if !canTransition(p.Status, to) {
			return fmt.Errorf("%w - payment is %s", biddingerrors.ErrInvalidTransition, p.Status)
		}
		now := m.now()
		if err := effect(tx, &p, now); err != nil {
			return err
		}
		p.Status = to
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return models.Payment{}, fmt.Errorf("escrow: %s auction %s: %w", to, auctionID, err)
	}
	m.transitioned(out, actorID)
	return out, nil
}

// settle pays the seller from the buyer's escrow and notifies both.
func (m *Manager) settle(ctx context.Context, tx repository.Tx, p *models.Payment, now time.Time) error {
	if err := ledger.SettleEscrow(ctx, tx, p.BuyerID, p.SellerID, p.Amount, p.AuctionID, now); err != nil {
		return err
	}
	link := m.link(p.AuctionID)
	if err := tx.InsertNotification(ctx, notifications.New(p.SellerID, notifications.PaymentReceived, m.params(*p), now, link)); err != nil {
		return err
	}
	return tx.InsertNotification(ctx, notifications.New(p.BuyerID, notifications.PaymentCompleted, m.params(*p), now, link))
}

func (m *Manager) transitioned(p models.Payment, by string) {
	metrics.EscrowTransition(string(p.Status))
	utils.Info("escrow transition", map[string]any{
		"auction_id": p.AuctionID,
		"payment_id": p.PaymentID,
		"status":     p.Status,
		"by":         by,
	})
}

func (m *Manager) params(p models.Payment) notifications.Params {
	return notifications.Params{"auction": p.AuctionID, "amount": p.Amount.String()}
}

func (m *Manager) link(auctionID string) string {
	return m.opts.FrontendURL + "/auctions/" + auctionID
}
