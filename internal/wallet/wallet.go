// Package wallet moves money between users' wallets and the payment gateway:
// checkout funding, verification, webhooks and bank withdrawals.
package wallet

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/gateway"
	"auction-engine/internal/ledger"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/notifications"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Gateway is the payment provider surface the wallet uses.
type Gateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (gateway.Initialized, error)
	Verify(ctx context.Context, reference string) (gateway.Verification, error)
	Transfer(ctx context.Context, req gateway.TransferRequest) (gateway.Transfer, error)
}

type Options struct {
	WebhookSecret string
	Allowlist     gateway.Allowlist
	CallbackURL   string
}

type Service struct {
	store repository.Store
	gw    Gateway
	bus   *events.Bus
	opts  Options
	now   func() time.Time
}

func NewService(store repository.Store, gw Gateway, bus *events.Bus, opts Options) *Service {
	return &Service{
		store: store,
		gw:    gw,
		bus:   bus,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Checkout is what a client needs to complete a funding.
type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// InitFunding opens a gateway checkout and records a pending funding under
// its reference.
func (s *Service) InitFunding(ctx context.Context, userID string, amount money.Amount) (Checkout, error) {
	if !amount.IsPositive() {
		return Checkout{}, fmt.Errorf("wallet: %w - amount must be positive", biddingerrors.ErrValidation)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Checkout{}, fmt.Errorf("wallet: %w", err)
	}
	ref := utils.NewReference("FND")
	session, err := s.gw.Initialize(ctx, gateway.InitializeRequest{
		Email:       u.Email,
		Amount:      amount,
		Reference:   ref,
		CallbackURL: s.opts.CallbackURL,
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("wallet: %w", err)
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		_, err := ledger.Fund(ctx, tx, userID, amount, ref, models.EntryPending, s.now())
		return err
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("wallet: record funding %s: %w", ref, err)
	}
	utils.Info("funding initialized", map[string]any{"user_id": userID, "reference": ref, "amount": amount.String()})
	return Checkout{AuthorizationURL: session.AuthorizationURL, Reference: ref}, nil
}

// VerifyFunding asks the gateway about reference and settles the caller's
// pending funding accordingly. Repeated calls are no-ops once settled.
func (s *Service) VerifyFunding(ctx context.Context, userID, reference string) (models.LedgerEntry, error) {
	if reference == "" {
		return models.LedgerEntry{}, fmt.Errorf("wallet: %w - reference is required", biddingerrors.ErrValidation)
	}
	v, err := s.gw.Verify(ctx, reference)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("wallet: %w", err)
	}
	return s.settleFunding(ctx, userID, reference, v.Amount, chargeStatus(v.Status))
}

// HandleWebhook authenticates and applies a gateway delivery.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature, remoteIP string) error {
	if !s.opts.Allowlist.Allowed(remoteIP) {
		utils.Warn("webhook from unlisted address", map[string]any{"ip": remoteIP})
		return fmt.Errorf("wallet: %w - address %s not allowed", biddingerrors.ErrForbidden, remoteIP)
	}
	if err := gateway.VerifySignature(s.opts.WebhookSecret, body, signature); err != nil {
		utils.Warn("webhook signature rejected", map[string]any{"ip": remoteIP})
		return fmt.Errorf("wallet: %w", err)
	}
	ev, err := gateway.ParseWebhook(body)
	if err != nil {
		return fmt.Errorf("wallet: %w", err)
	}

	var status models.EntryStatus
	switch ev.Event {
	case gateway.EventChargeSuccess:
		status = models.EntryCompleted
	case gateway.EventChargeFailure:
		status = models.EntryFailed
	default:
		utils.Debug("webhook event ignored", map[string]any{"event": ev.Event})
		return nil
	}
	_, err = s.settleFunding(ctx, "", ev.Data.Reference, ev.Data.Amount, status)
	return err
}

func chargeStatus(s string) models.EntryStatus {
	switch s {
	case gateway.ChargeSuccess:
		return models.EntryCompleted
	case gateway.ChargeFailed, gateway.ChargeAbandoned:
		return models.EntryFailed
	}
	return models.EntryPending
}

func (s *Service) settleFunding(ctx context.Context, userID, reference string, amount money.Amount, status models.EntryStatus) (models.LedgerEntry, error) {
	var res ledger.FundResult
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		var err error
		res, err = ledger.Fund(ctx, tx, userID, amount, reference, status, now)
		if err != nil || !res.Applied {
			return err
		}
		return tx.InsertNotification(ctx, notifications.New(res.Entry.UserID, notifications.WalletFunded,
			notifications.Params{"amount": res.Entry.Amount.String()}, now))
	})
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("wallet: settle funding %s: %w", reference, err)
	}
	if res.Applied {
		s.funded(ctx, res.Entry)
	}
	return res.Entry, nil
}

func (s *Service) funded(ctx context.Context, e models.LedgerEntry) {
	utils.Info("wallet funded", map[string]any{"user_id": e.UserID, "reference": e.Reference, "amount": e.Amount.String()})
	u, err := s.store.GetUser(ctx, e.UserID)
	if err != nil {
		utils.Warn("funded user lookup failed", map[string]any{"user_id": e.UserID, "error": err.Error()})
		return
	}
	s.bus.Emit(ctx, events.Event{Topic: events.TopicFundAccount, Payload: map[string]any{
		"email":     u.Email,
		"username":  u.Username,
		"amount":    e.Amount.String(),
		"reference": e.Reference,
	}})
}

// Withdraw pays amount out to the user's registered bank recipient. The
// amount is held out of the wallet by the pending entry before the transfer
// and given back only if the transfer fails.
func (s *Service) Withdraw(ctx context.Context, userID string, amount money.Amount) (models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return models.LedgerEntry{}, fmt.Errorf("wallet: %w - amount must be positive", biddingerrors.ErrValidation)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("wallet: %w", err)
	}
	if u.BankRecipient == "" {
		return models.LedgerEntry{}, fmt.Errorf("wallet: %w - no bank account on file", biddingerrors.ErrValidation)
	}

	ref := utils.NewReference("WDR")
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		_, err := ledger.Withdraw(ctx, tx, userID, amount, ref, models.EntryPending, s.now())
		return err
	})
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("wallet: %w", err)
	}

	out, err := s.gw.Transfer(ctx, gateway.TransferRequest{
		Amount:    amount,
		Recipient: u.BankRecipient,
		Reference: ref,
		Reason:    "Wallet withdrawal",
	})
	status := models.EntryCompleted
	if err != nil || out.Status == gateway.TransferFailed {
		status = models.EntryFailed
		if err == nil {
			err = fmt.Errorf("%w - transfer %s failed", gateway.ErrGateway, ref)
		}
		utils.Error("withdrawal transfer failed", map[string]any{"user_id": userID, "reference": ref, "error": err.Error()})
	}

	entry, settleErr := s.settleWithdrawal(ctx, userID, ref, amount, status)
	if settleErr != nil {
		return models.LedgerEntry{}, settleErr
	}
	if status == models.EntryFailed {
		return entry, fmt.Errorf("wallet: %w", err)
	}
	utils.Info("withdrawal completed", map[string]any{"user_id": userID, "reference": ref, "amount": amount.String()})
	return entry, nil
}

func (s *Service) settleWithdrawal(ctx context.Context, userID, reference string, amount money.Amount, status models.EntryStatus) (models.LedgerEntry, error) {
	var res ledger.FundResult
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		var err error
		res, err = ledger.Withdraw(ctx, tx, userID, amount, reference, status, now)
		if err != nil {
			return err
		}
		kind := notifications.WalletWithdrawn
		if status == models.EntryFailed {
			kind = notifications.WithdrawalFailed
		}
		return tx.InsertNotification(ctx, notifications.New(userID, kind, notifications.Params{"amount": amount.String()}, now))
	})
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("wallet: settle withdrawal %s: %w", reference, err)
	}
	return res.Entry, nil
}

// History lists the user's wallet transactions, newest first.
func (s *Service) History(ctx context.Context, userID string, page repository.Page) ([]models.LedgerEntry, error) {
	entries, err := s.store.ListLedgerEntries(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("wallet: history for %s: %w", userID, err)
	}
	return entries, nil
}
