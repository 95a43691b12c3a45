// Package auctions creates, lists and manages auctions on behalf of sellers.
package auctions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/auth"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/notifications"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

type ItemInput struct {
	Name          string
	Description   string
	CategoryID    string
	SubCategoryID string
	Images        []models.Image
	Dimensions    models.Dimensions
}

type CreateInput struct {
	Item         ItemInput
	StartPrice   money.Amount
	BuyNow       bool
	BuyNowPrice  money.Amount
	StartAt      time.Time
	EndAt        time.Time
	Private      bool
	Participants []string
	Logistics    models.Logistics
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	StartPrice   *money.Amount
	BuyNow       *bool
	BuyNowPrice  *money.Amount
	StartAt      *time.Time
	EndAt        *time.Time
	Logistics    *models.Logistics
	Participants []string
}

// Listing is one page of auctions.
type Listing struct {
	Auctions []models.Auction `json:"auctions"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PerPage  int              `json:"per_page"`
}

type Service struct {
	store       repository.Store
	bus         *events.Bus
	frontendURL string
	now         func() time.Time
}

func NewService(store repository.Store, bus *events.Bus, frontendURL string) *Service {
	return &Service{
		store:       store,
		bus:         bus,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores the item and its auction in one transaction. Registered
// participants of a private auction are notified.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (models.Auction, error) {
	if err := auth.Authorize(&actor, auth.LevelClient, ""); err != nil {
		return models.Auction{}, err
	}
	now := s.now()
	item := models.Item{
		ItemID:        utils.GenerateID(),
		OwnerID:       actor.UserID,
		Name:          strings.TrimSpace(in.Item.Name),
		Description:   strings.TrimSpace(in.Item.Description),
		CategoryID:    in.Item.CategoryID,
		SubCategoryID: in.Item.SubCategoryID,
		Images:        in.Item.Images,
		Dimensions:    in.Item.Dimensions,
		CreatedAt:     now,
	}
	a := models.Auction{
		AuctionID:    utils.GenerateID(),
		SellerID:     actor.UserID,
		ItemID:       item.ItemID,
		StartPrice:   in.StartPrice,
		CurrentPrice: in.StartPrice,
		BuyNow:       in.BuyNow,
		BuyNowPrice:  in.BuyNowPrice,
		StartAt:      in.StartAt.UTC(),
		EndAt:        in.EndAt.UTC(),
		Status:       models.AuctionPending,
		Private:      in.Private,
		Logistics:    in.Logistics,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateItem(item); err != nil {
		return models.Auction{}, err
	}
	if err := validateAuction(a, now); err != nil {
		return models.Auction{}, err
	}
	participants := normalizeEmails(in.Participants)
	if !a.Private {
		participants = nil
	}

	var invited []models.User
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		if err := tx.CreateAuction(ctx, a); err != nil {
			return err
		}
		if err := tx.InsertNotification(ctx, notifications.New(actor.UserID, notifications.AuctionCreated, nil, now, s.link(a.AuctionID))); err != nil {
			return err
		}
		var err error
		invited, err = s.invite(ctx, tx, a, participants, now)
		return err
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("auctions: create: %w", err)
	}

	utils.Info("auction created", map[string]any{"auction_id": a.AuctionID, "seller_id": a.SellerID, "private": a.Private})
	evs := []events.Event{{Topic: events.TopicCreateAuction, Payload: map[string]any{
		"email":      actor.Email,
		"username":   actor.Username,
		"auction_id": a.AuctionID,
		"item":       item.Name,
		"link":       s.link(a.AuctionID),
	}}}
	evs = append(evs, s.inviteEvents(a, item.Name, participants, invited)...)
	s.bus.Emit(ctx, evs...)

	return s.store.GetAuction(ctx, a.AuctionID)
}

// invite records participants and notifies the ones already registered.
func (s *Service) invite(ctx context.Context, tx repository.Tx, a models.Auction, emails []string, now time.Time) ([]models.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	if err := tx.AddParticipants(ctx, a.AuctionID, emails); err != nil {
		return nil, err
	}
	var invited []models.User
	for _, email := range emails {
		u, err := tx.GetUserByEmail(ctx, email)
		if errors.Is(err, biddingerrors.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		n := notifications.New(u.UserID, notifications.AuctionInvite, notifications.Params{"auction": a.AuctionID}, now, s.link(a.AuctionID))
		if err := tx.InsertNotification(ctx, n); err != nil {
			return nil, err
		}
		invited = append(invited, u)
	}
	return invited, nil
}

func (s *Service) inviteEvents(a models.Auction, itemName string, emails []string, registered []models.User) []events.Event {
	names := make(map[string]string, len(registered))
	for _, u := range registered {
		names[strings.ToLower(u.Email)] = u.Username
	}
	evs := make([]events.Event, 0, len(emails))
	for _, email := range emails {
		evs = append(evs, events.Event{Topic: events.TopicParticipantInvite, Payload: map[string]any{
			"email":      email,
			"username":   names[email],
			"auction_id": a.AuctionID,
			"item":       itemName,
			"link":       s.link(a.AuctionID),
		}})
	}
	return evs
}

// Get returns the auction with its item. Private auctions are visible only
// to the seller and listed participants.
func (s *Service) Get(ctx context.Context, viewer repository.Viewer, auctionID string) (models.Auction, error) {
	a, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("auctions: %w", err)
	}
	if !a.Private || (viewer.UserID != "" && viewer.UserID == a.SellerID) {
		return a, nil
	}
	ok, err := s.store.IsParticipant(ctx, auctionID, viewer.Email)
	if err != nil {
		return models.Auction{}, fmt.Errorf("auctions: %w", err)
	}
	if !ok || viewer.UserID == "" {
		return models.Auction{}, fmt.Errorf("auctions: %w", biddingerrors.ErrNotParticipant)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, f repository.AuctionFilter, p repository.Page) (Listing, error) {
	if !repository.ValidSort(f.Sort) {
		return Listing{}, fmt.Errorf("auctions: %w - unknown sort %q", biddingerrors.ErrValidation, f.Sort)
	}
	p = p.Normalize()
	list, total, err := s.store.ListAuctions(ctx, f, p)
	if err != nil {
		return Listing{}, fmt.Errorf("auctions: list: %w", err)
	}
	return Listing{Auctions: list, Total: total, Page: p.Page, PerPage: p.PerPage}, nil
}

func (s *Service) Search(ctx context.Context, term string, viewer repository.Viewer, p repository.Page) (Listing, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Listing{}, fmt.Errorf("auctions: %w - search term is required", biddingerrors.ErrValidation)
	}
	p = p.Normalize()
	list, total, err := s.store.SearchAuctions(ctx, term, viewer, p)
	if err != nil {
		return Listing{}, fmt.Errorf("auctions: search: %w", err)
	}
	return Listing{Auctions: list, Total: total, Page: p.Page, PerPage: p.PerPage}, nil
}

// Update edits a pending auction. Only its seller may do so.
func (s *Service) Update(ctx context.Context, actor auth.Principal, auctionID string, in UpdateInput) (models.Auction, error) {
	var (
		updated models.Auction
		invited []models.User
		added   []string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(&actor, auth.LevelClient, a.SellerID); err != nil {
			return err
		}
		if a.Status != models.AuctionPending {
			return fmt.Errorf("%w - only pending auctions can be edited", biddingerrors.ErrInvalidTransition)
		}
		now := s.now()
		apply(&a, in)
		a.CurrentPrice = a.StartPrice
		a.UpdatedAt = now
		if err := validateAuction(a, now); err != nil {
			return err
		}
		if err := tx.UpdateAuction(ctx, a); err != nil {
			return err
		}
		if err := tx.InsertNotification(ctx, notifications.New(a.SellerID, notifications.AuctionUpdated, nil, now, s.link(a.AuctionID))); err != nil {
			return err
		}
		if a.Private {
			added = normalizeEmails(in.Participants)
			if invited, err = s.invite(ctx, tx, a, added, now); err != nil {
				return err
			}
		}
		updated = a
		return nil
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("auctions: update %s: %w", auctionID, err)
	}
	utils.Info("auction updated", map[string]any{"auction_id": auctionID, "seller_id": actor.UserID})
	name := ""
	if updated.Item != nil {
		name = updated.Item.Name
	}
	s.bus.Emit(ctx, s.inviteEvents(updated, name, added, invited)...)
	return s.store.GetAuction(ctx, auctionID)
}

func apply(a *models.Auction, in UpdateInput) {
	if in.StartPrice != nil {
		a.StartPrice = *in.StartPrice
	}
	if in.BuyNow != nil {
		a.BuyNow = *in.BuyNow
	}
	if in.BuyNowPrice != nil {
		a.BuyNowPrice = *in.BuyNowPrice
	}
	if in.StartAt != nil {
		a.StartAt = in.StartAt.UTC()
	}
	if in.EndAt != nil {
		a.EndAt = in.EndAt.UTC()
	}
	if in.Logistics != nil {
		a.Logistics = *in.Logistics
	}
}

// Cancel withdraws a pending auction. Only its seller may do so.
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, auctionID string) error {
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(&actor, auth.LevelClient, a.SellerID); err != nil {
			return err
		}
		if !a.Status.CanTransition(models.AuctionCancelled) {
			return fmt.Errorf("%w - %s auction cannot be cancelled", biddingerrors.ErrInvalidTransition, a.Status)
		}
		now := s.now()
		a.Status = models.AuctionCancelled
		a.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, a); err != nil {
			return err
		}
		return tx.InsertNotification(ctx, notifications.New(a.SellerID, notifications.AuctionCancelled,
			notifications.Params{"auction": a.AuctionID}, now))
	})
	if err != nil {
		return fmt.Errorf("auctions: cancel %s: %w", auctionID, err)
	}
	metrics.AuctionTransition(string(models.AuctionCancelled))
	utils.Info("auction cancelled", map[string]any{"auction_id": auctionID, "seller_id": actor.UserID})
	return nil
}

func (s *Service) link(auctionID string) string {
	return s.frontendURL + "/auctions/" + auctionID
}

func validateItem(item models.Item) error {
	if item.Name == "" {
		return fmt.Errorf("auctions: %w - item name is required", biddingerrors.ErrValidation)
	}
	if len(item.Images) > models.MaxImages {
		return fmt.Errorf("auctions: %w - at most %d images", biddingerrors.ErrValidation, models.MaxImages)
	}
	return nil
}

func validateAuction(a models.Auction, now time.Time) error {
	switch {
	case !a.StartPrice.IsPositive():
		return fmt.Errorf("auctions: %w - start price must be positive", biddingerrors.ErrValidation)
	case a.StartAt.IsZero() || a.EndAt.IsZero():
		return fmt.Errorf("auctions: %w - start and end dates are required", biddingerrors.ErrValidation)
	case !a.EndAt.After(a.StartAt):
		return fmt.Errorf("auctions: %w - end must be after start", biddingerrors.ErrValidation)
	case !a.EndAt.After(now):
		return fmt.Errorf("auctions: %w - end must be in the future", biddingerrors.ErrValidation)
	case a.BuyNow && a.BuyNowPrice <= a.StartPrice:
		return fmt.Errorf("auctions: %w - buy now price must exceed the start price", biddingerrors.ErrValidation)
	case a.Logistics.Fee < 0:
		return fmt.Errorf("auctions: %w - logistics fee cannot be negative", biddingerrors.ErrValidation)
	}
	return nil
}

func normalizeEmails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
