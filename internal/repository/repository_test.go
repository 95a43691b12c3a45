package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"

	"github.com/stretchr/testify/require"
)

// Helper to create a new User
func newUser(id, email string, available money.Amount) models.User {
	return models.User{
		UserID:    id,
		Username:  id,
		Email:     email,
		Role:      models.RoleClient,
		Wallet:    available,
		Available: available,
	}
}

// Helper to create an auction with its item
func newAuction(id, seller string, status models.AuctionStatus, start, end time.Time) (models.Auction, models.Item) {
	item := models.Item{
		ItemID:      "item-" + id,
		OwnerID:     seller,
		Name:        fmt.Sprintf("Vintage %s", id),
		Description: fmt.Sprintf("%s description", id),
		CategoryID:  "CAT001",
	}
	return models.Auction{
		AuctionID:    id,
		SellerID:     seller,
		StartPrice:   money.FromMajor(100),
		CurrentPrice: money.FromMajor(100),
		StartAt:      start,
		EndAt:        end,
		Status:       status,
	}, item
}

func seededRepo(t *testing.T) *MemoryRepo {
	t.Helper()
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	repo.AddUser(newUser("seller", "seller@x", 0))
	repo.AddUser(newUser("alice", "alice@x", money.FromMajor(1000)))
	repo.AddUser(newUser("bob", "bob@x", money.FromMajor(1000)))
	a, item := newAuction("a1", "seller", models.AuctionActive, now.Add(-time.Hour), now.Add(time.Hour))
	repo.AddAuction(a, item)
	return repo
}

func TestMemoryRepo_WithTxRollsBack(t *testing.T) {
	t.Parallel()

	repo := seededRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUserForUpdate(ctx, "alice")
		require.NoError(t, err)
		u.Available -= money.FromMajor(150)
		u.Escrowed += money.FromMajor(150)
		require.NoError(t, tx.UpdateUserBalances(ctx, u))
		require.NoError(t, tx.InsertBid(ctx, models.Bid{BidID: "b1", AuctionID: "a1", UserID: "alice", Amount: money.FromMajor(150)}))
		require.NoError(t, tx.InsertLedgerEntry(ctx, models.LedgerEntry{EntryID: "e1", UserID: "alice", Kind: models.KindBidCommit}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := repo.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(1000), u.Available)
	require.Zero(t, u.Escrowed)

	bids, err := repo.ListBids(ctx, "a1")
	require.NoError(t, err)
	require.Empty(t, bids)

	entries, err := repo.ListLedgerEntries(ctx, "alice", Page{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMemoryRepo_WithTxCancelledContext(t *testing.T) {
	t.Parallel()

	repo := seededRepo(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := repo.WithTx(ctx, func(tx Tx) error {
		cancel()
		return tx.InsertBid(ctx, models.Bid{BidID: "b1", AuctionID: "a1", UserID: "alice", Amount: money.FromMajor(150)})
	})
	require.ErrorIs(t, err, context.Canceled)

	bids, err := repo.ListBids(context.Background(), "a1")
	require.NoError(t, err)
	require.Empty(t, bids)
}

func TestMemoryRepo_Bids(t *testing.T) {
	t.Parallel()

	repo := seededRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name      string
		bid       models.Bid
		wantError error
	}{
		{name: "first_bid", bid: models.Bid{BidID: "b1", AuctionID: "a1", UserID: "alice", Amount: money.FromMajor(150), CreatedAt: now}},
		{name: "second_user", bid: models.Bid{BidID: "b2", AuctionID: "a1", UserID: "bob", Amount: money.FromMajor(250), CreatedAt: now}},
		{name: "duplicate_user_bid", bid: models.Bid{BidID: "b3", AuctionID: "a1", UserID: "alice", Amount: money.FromMajor(300), CreatedAt: now}, wantError: biddingerrors.ErrConflict},
	}

	for _, tc := range tests {
		err := repo.WithTx(ctx, func(tx Tx) error { return tx.InsertBid(ctx, tc.bid) })
		if tc.wantError != nil {
			require.ErrorIs(t, err, tc.wantError, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
	}

	err := repo.WithTx(ctx, func(tx Tx) error {
		top, err := tx.TopBid(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, "bob", top.UserID)

		mine, err := tx.GetUserBid(ctx, "a1", "alice")
		require.NoError(t, err)
		require.Equal(t, "b1", mine.BidID)

		_, err = tx.GetUserBid(ctx, "a1", "seller")
		require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)

		_, err = tx.TopBid(ctx, "missing")
		require.ErrorIs(t, err, biddingerrors.ErrNoBids)
		return tx.UpdateBidAmount(ctx, "b1", money.FromMajor(400), now)
	})
	require.NoError(t, err)

	bids, err := repo.ListBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, "alice", bids[0].UserID)
	require.Equal(t, money.FromMajor(400), bids[0].Amount)
}

func TestMemoryRepo_ListAuctionsVisibility(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	pub, pubItem := newAuction("public", "seller", models.AuctionActive, now, now.Add(time.Hour))
	pub.WatchersCount = 1
	priv, privItem := newAuction("private", "seller", models.AuctionActive, now, now.Add(time.Hour))
	priv.Private = true
	repo.AddAuction(pub, pubItem)
	repo.AddAuction(priv, privItem)
	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		return tx.AddParticipants(ctx, "private", []string{"Eve@X"})
	}))

	tests := []struct {
		name   string
		viewer Viewer
		want   int
	}{
		{name: "anonymous", viewer: Viewer{}, want: 1},
		{name: "stranger", viewer: Viewer{UserID: "bob", Email: "bob@x"}, want: 1},
		{name: "participant", viewer: Viewer{UserID: "eve", Email: "eve@x"}, want: 2},
		{name: "seller", viewer: Viewer{UserID: "seller", Email: "seller@x"}, want: 2},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			list, total, err := repo.ListAuctions(ctx, AuctionFilter{Viewer: tc.viewer}, Page{})
			require.NoError(t, err)
			require.Equal(t, tc.want, total)
			require.Len(t, list, tc.want)
			require.NotNil(t, list[0].Item)
		})
	}
}

func TestMemoryRepo_ListAuctionsFilters(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()
	for i, price := range []int64{100, 200, 300} {
		a, item := newAuction(fmt.Sprintf("a%d", i), "seller", models.AuctionActive, now, now.Add(time.Hour))
		a.StartPrice = money.FromMajor(price)
		a.CurrentPrice = money.FromMajor(price)
		a.WatchersCount = i
		repo.AddAuction(a, item)
	}

	rg, err := money.ParseRange("150-300")
	require.NoError(t, err)
	list, total, err := repo.ListAuctions(ctx, AuctionFilter{CurrentPrice: &rg}, Page{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "a2", list[0].AuctionID, "default order is watchers desc")

	list, total, err = repo.ListAuctions(ctx, AuctionFilter{}, Page{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, list, 1)

	list, _, err = repo.SearchAuctions(ctx, "VINTAGE A1", Viewer{}, Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "a1", list[0].AuctionID)
}

func TestMemoryRepo_FindDue(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	startDue, i1 := newAuction("start-due", "s", models.AuctionPending, now.Add(-time.Minute), now.Add(time.Hour))
	endDue, i2 := newAuction("end-due", "s", models.AuctionActive, now.Add(-time.Hour), now.Add(-time.Second))
	notYet, i3 := newAuction("not-yet", "s", models.AuctionPending, now.Add(time.Minute), now.Add(time.Hour))
	done, i4 := newAuction("done", "s", models.AuctionCompleted, now.Add(-time.Hour), now.Add(-time.Minute))
	for _, p := range []struct {
		a models.Auction
		i models.Item
	}{{startDue, i1}, {endDue, i2}, {notYet, i3}, {done, i4}} {
		repo.AddAuction(p.a, p.i)
	}

	ids, err := repo.FindDueAuctions(ctx, now, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"start-due", "end-due"}, ids)

	ids, err = repo.FindDueAuctions(ctx, now, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"start-due"}, ids, "earliest due first")

	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertPayment(ctx, models.Payment{PaymentID: "p1", AuctionID: "done", Status: models.PaymentPending, DueAt: now.Add(-time.Second)}); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, models.Payment{PaymentID: "p2", AuctionID: "end-due", Status: models.PaymentRefunding, DueAt: now.Add(-time.Second)}); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, models.Payment{PaymentID: "p3", AuctionID: "start-due", Status: models.PaymentRefunded, DueAt: now.Add(-time.Hour)})
	}))
	ids, err = repo.FindDuePayments(ctx, now, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"p1", "p2"}, ids)
}

func TestMemoryRepo_ChatMessages(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	var room models.ChatRoom
	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		var err error
		room, err = tx.CreateChat(ctx, models.ChatRoom{ChatID: "c1", AuctionID: "a1", BuyerID: "buyer", SellerID: "seller"})
		if err != nil {
			return err
		}
		again, err := tx.CreateChat(ctx, models.ChatRoom{ChatID: "c2", AuctionID: "a1", BuyerID: "buyer", SellerID: "seller"})
		require.Equal(t, "c1", again.ChatID)
		return err
	}))
	require.Equal(t, "c1", room.ChatID)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "buyer"
			if i%2 == 0 {
				sender = "seller"
			}
			_, err := repo.AppendChatMessage(ctx, "c1", sender, fmt.Sprintf("msg %d", i), now)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, err := repo.AppendChatMessage(ctx, "c1", "intruder", "hi", now)
	require.ErrorIs(t, err, biddingerrors.ErrForbidden)

	got, err := repo.GetChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Conversation, 20)
	for i, m := range got.Conversation {
		require.Equal(t, int64(i+1), m.Seq)
	}

	n, err := repo.MarkChatRead(ctx, "c1", "buyer", 10)
	require.NoError(t, err)
	for _, m := range got.Conversation[:10] {
		if m.SenderID == "seller" {
			n--
		}
	}
	require.Zero(t, n, "only the other party's messages up to seq are flipped")
}

func TestMemoryRepo_RecordWatcher(t *testing.T) {
	t.Parallel()

	repo := seededRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordWatcher(ctx, "a1", "alice"))
	require.NoError(t, repo.RecordWatcher(ctx, "a1", "alice"))
	require.NoError(t, repo.RecordWatcher(ctx, "a1", "bob"))
	require.ErrorIs(t, repo.RecordWatcher(ctx, "missing", "bob"), biddingerrors.ErrAuctionNotFound)

	a, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 2, a.WatchersCount)
}

func TestMemoryRepo_LedgerReferenceUnique(t *testing.T) {
	t.Parallel()

	repo := seededRepo(t)
	ctx := context.Background()
	entry := models.LedgerEntry{EntryID: "e1", UserID: "alice", Kind: models.KindFunding, Reference: "R1", Status: models.EntryPending}

	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error { return tx.InsertLedgerEntry(ctx, entry) }))

	entry.EntryID = "e2"
	err := repo.WithTx(ctx, func(tx Tx) error { return tx.InsertLedgerEntry(ctx, entry) })
	require.ErrorIs(t, err, biddingerrors.ErrConflict)

	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		found, err := tx.FindLedgerEntryForUpdate(ctx, models.KindFunding, "R1")
		require.NoError(t, err)
		require.Equal(t, "e1", found.EntryID)
		_, err = tx.FindLedgerEntryForUpdate(ctx, models.KindWithdrawal, "R1")
		require.ErrorIs(t, err, biddingerrors.ErrEntryNotFound)
		return nil
	}))
}
