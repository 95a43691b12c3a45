// Package ledger moves money between the three balance buckets of a user.
// Every movement updates the user row and appends a wallet transaction in
// the same repository transaction, and re-checks wallet = available + escrowed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Ledger runs ledger operations in their own transaction.
type Ledger struct {
	store repository.Store
	now   func() time.Time
}

func New(store repository.Store) *Ledger {
	return &Ledger{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source. Used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// CommitBid moves amount from available to escrowed for a bid on auctionID.
func CommitBid(ctx context.Context, tx repository.Tx, userID string, amount money.Amount, auctionID string, now time.Time) (models.User, error) {
	if !amount.IsPositive() {
		return models.User{}, fmt.Errorf("ledger: %w - commit amount must be positive", biddingerrors.ErrValidation)
	}
	u, err := tx.GetUserForUpdate(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("ledger: commit bid: %w", err)
	}
	if u.Available < amount {
		return models.User{}, fmt.Errorf("ledger: %w - available %s, required %s", biddingerrors.ErrInsufficientFunds, u.Available, amount)
	}
	u.Available -= amount
	u.Escrowed += amount
	err = apply(ctx, tx, u, entry(userID, amount, models.Debit, models.KindBidCommit, auctionID,
		"Placed on bid for auction "+auctionID, now))
	return u, err
}

// ReleaseBid returns escrowed money to available.
func ReleaseBid(ctx context.Context, tx repository.Tx, userID string, amount money.Amount, auctionID string, now time.Time) (models.User, error) {
	if !amount.IsPositive() {
		return models.User{}, fmt.Errorf("ledger: %w - release amount must be positive", biddingerrors.ErrValidation)
	}
	u, err := tx.GetUserForUpdate(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("ledger: release bid: %w", err)
	}
	if u.Escrowed < amount {
		return models.User{}, fmt.Errorf("ledger: %w - escrowed %s below release %s", biddingerrors.ErrInvariantViolation, u.Escrowed, amount)
	}
	u.Escrowed -= amount
	u.Available += amount
	err = apply(ctx, tx, u, entry(userID, amount, models.Credit, models.KindBidRelease, auctionID,
		"Returned from bid on auction "+auctionID, now))
	return u, err
}

// SettleEscrow pays amount out of the buyer's escrow into the seller's wallet.
// Both rows are locked in id order.
func SettleEscrow(ctx context.Context, tx repository.Tx, buyerID, sellerID string, amount money.Amount, auctionID string, now time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("ledger: %w - settle amount must be positive", biddingerrors.ErrValidation)
	}
	if buyerID == sellerID {
		return fmt.Errorf("ledger: %w - buyer and seller are the same user", biddingerrors.ErrInvariantViolation)
	}
	users := map[string]models.User{}
	first, second := buyerID, sellerID
	if second < first {
		first, second = second, first
	}
	for _, id := range []string{first, second} {
		u, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("ledger: settle escrow: %w", err)
		}
		users[id] = u
	}

	buyer, seller := users[buyerID], users[sellerID]
	if buyer.Escrowed < amount {
		return fmt.Errorf("ledger: %w - buyer escrow %s below settlement %s", biddingerrors.ErrInvariantViolation, buyer.Escrowed, amount)
	}
	buyer.Escrowed -= amount
	buyer.Wallet -= amount
	seller.Wallet += amount
	seller.Available += amount

	if err := apply(ctx, tx, buyer, entry(buyerID, amount, models.Debit, models.KindEscrowDebit, auctionID,
		"Paid from escrow for auction "+auctionID, now)); err != nil {
		return err
	}
	return apply(ctx, tx, seller, entry(sellerID, amount, models.Credit, models.KindEscrowCredit, auctionID,
		"Received payment for auction "+auctionID, now))
}

// FundResult reports what a funding call did.
type FundResult struct {
	Entry   models.LedgerEntry
	Applied bool // balances moved during this call
}

// Fund records or settles a gateway funding identified by reference.
// It is idempotent: balances move only on the transition into completed, and
// the stored amount wins over the one supplied on later calls. An empty
// userID settles an existing entry for whoever owns it.
func Fund(ctx context.Context, tx repository.Tx, userID string, amount money.Amount, reference string, status models.EntryStatus, now time.Time) (FundResult, error) {
	return gatewayEntry(ctx, tx, gatewayOp{
		kind:        models.KindFunding,
		direction:   models.Credit,
		description: "Wallet funding",
		move: func(u *models.User, amount money.Amount) error {
			u.Wallet += amount
			u.Available += amount
			return nil
		},
	}, userID, amount, reference, status, now)
}

// Withdraw records or settles a payout identified by reference. The money
// leaves wallet and available when the pending entry is written, so a
// concurrent bid cannot spend it while the transfer runs. Completion only
// flips the status; failure credits the hold back with a compensating entry.
func Withdraw(ctx context.Context, tx repository.Tx, userID string, amount money.Amount, reference string, status models.EntryStatus, now time.Time) (FundResult, error) {
	return gatewayEntry(ctx, tx, gatewayOp{
		kind:        models.KindWithdrawal,
		direction:   models.Debit,
		description: "Wallet withdrawal",
		holds:       true,
		move: func(u *models.User, amount money.Amount) error {
			if u.Available < amount {
				return fmt.Errorf("ledger: %w - available %s, withdrawal %s", biddingerrors.ErrInsufficientFunds, u.Available, amount)
			}
			u.Wallet -= amount
			u.Available -= amount
			return nil
		},
		reverse: func(u *models.User, amount money.Amount) {
			u.Wallet += amount
			u.Available += amount
		},
	}, userID, amount, reference, status, now)
}

type gatewayOp struct {
	kind        models.EntryKind
	direction   models.Direction
	description string
	// holds moves balances when the pending entry is written instead of on completion
	holds   bool
	move    func(u *models.User, amount money.Amount) error
	reverse func(u *models.User, amount money.Amount)
}

func gatewayEntry(ctx context.Context, tx repository.Tx, op gatewayOp, userID string, amount money.Amount, reference string, status models.EntryStatus, now time.Time) (FundResult, error) {
	if reference == "" {
		return FundResult{}, fmt.Errorf("ledger: %w - missing %s reference", biddingerrors.ErrValidation, op.kind)
	}
	switch status {
	case models.EntryPending, models.EntryCompleted, models.EntryFailed:
	default:
		return FundResult{}, fmt.Errorf("ledger: %w - unknown status %q", biddingerrors.ErrValidation, status)
	}

	existing, err := tx.FindLedgerEntryForUpdate(ctx, op.kind, reference)
	switch {
	case errors.Is(err, biddingerrors.ErrEntryNotFound):
		return newGatewayEntry(ctx, tx, op, userID, amount, reference, status, now)
	case err != nil:
		return FundResult{}, fmt.Errorf("ledger: find %s %s: %w", op.kind, reference, err)
	}

	if userID != "" && existing.UserID != userID {
		return FundResult{}, fmt.Errorf("ledger: %w - reference %s belongs to another user", biddingerrors.ErrForbidden, reference)
	}
	if existing.Status != models.EntryPending || status == models.EntryPending {
		// completed and failed are terminal; repeated deliveries are no-ops
		return FundResult{Entry: existing}, nil
	}

	switch {
	case status == models.EntryCompleted && !op.holds:
		u, err := tx.GetUserForUpdate(ctx, existing.UserID)
		if err != nil {
			return FundResult{}, fmt.Errorf("ledger: settle %s: %w", op.kind, err)
		}
		if err := op.move(&u, existing.Amount); err != nil {
			return FundResult{}, err
		}
		if err := checkBalanced(u); err != nil {
			return FundResult{}, err
		}
		if err := tx.UpdateUserBalances(ctx, u); err != nil {
			return FundResult{}, fmt.Errorf("ledger: update balances: %w", err)
		}
	case status == models.EntryFailed && op.holds:
		u, err := tx.GetUserForUpdate(ctx, existing.UserID)
		if err != nil {
			return FundResult{}, fmt.Errorf("ledger: reverse %s: %w", op.kind, err)
		}
		op.reverse(&u, existing.Amount)
		rev := entry(existing.UserID, existing.Amount, opposite(op.direction), op.kind, reversalRef(reference),
			op.description+" reversed", now)
		if err := apply(ctx, tx, u, rev); err != nil {
			return FundResult{}, err
		}
	}
	if err := tx.UpdateLedgerEntryStatus(ctx, existing.EntryID, status, now); err != nil {
		return FundResult{}, fmt.Errorf("ledger: update %s status: %w", op.kind, err)
	}
	existing.Status = status
	existing.UpdatedAt = now
	utils.Info("ledger entry settled", map[string]any{
		"kind": op.kind, "reference": reference, "user_id": existing.UserID, "status": status,
	})
	return FundResult{Entry: existing, Applied: status == models.EntryCompleted && !op.holds}, nil
}

func newGatewayEntry(ctx context.Context, tx repository.Tx, op gatewayOp, userID string, amount money.Amount, reference string, status models.EntryStatus, now time.Time) (FundResult, error) {
	if userID == "" {
		return FundResult{}, fmt.Errorf("ledger: %w - unknown %s reference %s", biddingerrors.ErrEntryNotFound, op.kind, reference)
	}
	if !amount.IsPositive() {
		return FundResult{}, fmt.Errorf("ledger: %w - %s amount must be positive", biddingerrors.ErrValidation, op.kind)
	}
	u, err := tx.GetUserForUpdate(ctx, userID)
	if err != nil {
		return FundResult{}, fmt.Errorf("ledger: %s: %w", op.kind, err)
	}
	e := entry(userID, amount, op.direction, op.kind, reference, op.description, now)
	e.Status = status
	if status == models.EntryCompleted || (status == models.EntryPending && op.holds) {
		if err := op.move(&u, amount); err != nil {
			return FundResult{}, err
		}
		if err := apply(ctx, tx, u, e); err != nil {
			return FundResult{}, err
		}
		return FundResult{Entry: e, Applied: true}, nil
	}
	if err := tx.InsertLedgerEntry(ctx, e); err != nil {
		return FundResult{}, fmt.Errorf("ledger: insert %s entry: %w", op.kind, err)
	}
	return FundResult{Entry: e}, nil
}

// reversalRef names the compensating entry of a failed held payout.
func reversalRef(reference string) string {
	return reference + "-REV"
}

func opposite(d models.Direction) models.Direction {
	if d == models.Debit {
		return models.Credit
	}
	return models.Debit
}

func entry(userID string, amount money.Amount, dir models.Direction, kind models.EntryKind, reference, description string, now time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		EntryID:     utils.GenerateID(),
		UserID:      userID,
		Amount:      amount,
		Direction:   dir,
		Kind:        kind,
		Status:      models.EntryCompleted,
		Reference:   reference,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// apply persists new balances together with the entry that explains them.
func apply(ctx context.Context, tx repository.Tx, u models.User, e models.LedgerEntry) error {
	if err := checkBalanced(u); err != nil {
		return err
	}
	if err := tx.UpdateUserBalances(ctx, u); err != nil {
		return fmt.Errorf("ledger: update balances: %w", err)
	}
	if err := tx.InsertLedgerEntry(ctx, e); err != nil {
		return fmt.Errorf("ledger: insert %s entry: %w", e.Kind, err)
	}
	return nil
}

func checkBalanced(u models.User) error {
	if !u.Balanced() {
		return fmt.Errorf("ledger: %w - user %s wallet %s available %s escrowed %s", biddingerrors.ErrInvariantViolation,
			u.UserID, u.Wallet, u.Available, u.Escrowed)
	}
	return nil
}

// CommitBid runs CommitBid in its own transaction.
func (l *Ledger) CommitBid(ctx context.Context, userID string, amount money.Amount, auctionID string) (models.User, error) {
	var u models.User
	err := l.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		u, err = CommitBid(ctx, tx, userID, amount, auctionID, l.now())
		return err
	})
	return u, err
}

// ReleaseBid runs ReleaseBid in its own transaction.
func (l *Ledger) ReleaseBid(ctx context.Context, userID string, amount money.Amount, auctionID string) (models.User, error) {
	var u models.User
	err := l.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		u, err = ReleaseBid(ctx, tx, userID, amount, auctionID, l.now())
		return err
	})
	return u, err
}

// SettleEscrow runs SettleEscrow in its own transaction.
func (l *Ledger) SettleEscrow(ctx context.Context, buyerID, sellerID string, amount money.Amount, auctionID string) error {
	return l.store.WithTx(ctx, func(tx repository.Tx) error {
		return SettleEscrow(ctx, tx, buyerID, sellerID, amount, auctionID, l.now())
	})
}

// Fund runs Fund in its own transaction.
func (l *Ledger) Fund(ctx context.Context, userID string, amount money.Amount, reference string, status models.EntryStatus) (FundResult, error) {
	var res FundResult
	err := l.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = Fund(ctx, tx, userID, amount, reference, status, l.now())
		return err
	})
	return res, err
}

// Withdraw runs Withdraw in its own transaction.
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount money.Amount, reference string, status models.EntryStatus) (FundResult, error) {
	var res FundResult
	err := l.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = Withdraw(ctx, tx, userID, amount, reference, status, l.now())
		return err
	})
	return res, err
}

// History lists a user's wallet transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, page repository.Page) ([]models.LedgerEntry, error) {
	entries, err := l.store.ListLedgerEntries(ctx, userID, page)
	if err != nil {
		return nil, fmt.Errorf("ledger: history for %s: %w", userID, err)
	}
	return entries, nil
}
