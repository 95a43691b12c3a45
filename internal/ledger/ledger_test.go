package ledger

import (
	"context"
	"sync"
	"testing"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, users ...models.User) (*Ledger, *repository.MemoryRepo) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	for _, u := range users {
		repo.AddUser(u)
	}
	return New(repo), repo
}

func funded(id string, major int64) models.User {
	amt := money.FromMajor(major)
	return models.User{UserID: id, Username: id, Email: id + "@x", Role: models.RoleClient, Wallet: amt, Available: amt}
}

func requireUser(t *testing.T, repo *repository.MemoryRepo, id string, wallet, available, escrowed int64) {
	t.Helper()
	u, err := repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(wallet), u.Wallet, "wallet")
	require.Equal(t, money.FromMajor(available), u.Available, "available")
	require.Equal(t, money.FromMajor(escrowed), u.Escrowed, "escrowed")
	require.True(t, u.Balanced())
}

func TestCommitReleaseRoundTrip(t *testing.T) {
	t.Parallel()

	l, repo := setup(t, funded("alice", 1000))
	ctx := context.Background()

	_, err := l.CommitBid(ctx, "alice", money.FromMajor(150), "a1")
	require.NoError(t, err)
	requireUser(t, repo, "alice", 1000, 850, 150)

	_, err = l.ReleaseBid(ctx, "alice", money.FromMajor(150), "a1")
	require.NoError(t, err)
	requireUser(t, repo, "alice", 1000, 1000, 0)

	entries, err := l.History(ctx, "alice", repository.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, models.KindBidRelease, entries[0].Kind)
	require.Equal(t, models.Credit, entries[0].Direction)
	require.Contains(t, entries[0].Description, "Returned from bid")
	require.Equal(t, models.Debit, entries[1].Direction)
	require.Contains(t, entries[1].Description, "Placed on bid")
}

func TestCommitBidFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		userID  string
		amount  money.Amount
		wantErr error
	}{
		{name: "insufficient_funds", userID: "alice", amount: money.FromMajor(1001), wantErr: biddingerrors.ErrInsufficientFunds},
		{name: "zero_amount", userID: "alice", amount: 0, wantErr: biddingerrors.ErrValidation},
		{name: "unknown_user", userID: "ghost", amount: money.FromMajor(1), wantErr: biddingerrors.ErrUserNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l, repo := setup(t, funded("alice", 1000))
			_, err := l.CommitBid(context.Background(), tc.userID, tc.amount, "a1")
			require.ErrorIs(t, err, tc.wantErr)
			requireUser(t, repo, "alice", 1000, 1000, 0)

			entries, err := l.History(context.Background(), "alice", repository.Page{})
			require.NoError(t, err)
			require.Empty(t, entries, "no ledger entry survives a failed operation")
		})
	}
}

func TestReleaseBidBeyondEscrow(t *testing.T) {
	t.Parallel()

	l, repo := setup(t, funded("alice", 1000))
	_, err := l.ReleaseBid(context.Background(), "alice", money.FromMajor(1), "a1")
	require.ErrorIs(t, err, biddingerrors.ErrInvariantViolation)
	requireUser(t, repo, "alice", 1000, 1000, 0)
}

func TestSettleEscrow(t *testing.T) {
	t.Parallel()

	l, repo := setup(t, funded("buyer", 1000), funded("seller", 0))
	ctx := context.Background()

	_, err := l.CommitBid(ctx, "buyer", money.FromMajor(250), "a1")
	require.NoError(t, err)
	require.NoError(t, l.SettleEscrow(ctx, "buyer", "seller", money.FromMajor(250), "a1"))

	requireUser(t, repo, "buyer", 750, 750, 0)
	requireUser(t, repo, "seller", 250, 250, 0)

	err = l.SettleEscrow(ctx, "buyer", "seller", money.FromMajor(1), "a1")
	require.ErrorIs(t, err, biddingerrors.ErrInvariantViolation)
	requireUser(t, repo, "seller", 250, 250, 0)
}

func TestFundIsIdempotent(t *testing.T) {
	t.Parallel()

	l, repo := setup(t, funded("alice", 0))
	ctx := context.Background()

	first, err := l.Fund(ctx, "alice", money.FromMajor(500), "R1", models.EntryCompleted)
	require.NoError(t, err)
	require.True(t, first.Applied)

	for i := 0; i < 3; i++ {
		again, err := l.Fund(ctx, "alice", money.FromMajor(500), "R1", models.EntryCompleted)
		require.NoError(t, err)
		require.False(t, again.Applied)
		require.Equal(t, first.Entry.EntryID, again.Entry.EntryID)
	}
	requireUser(t, repo, "alice", 500, 500, 0)

	entries, err := l.History(ctx, "alice", repository.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.EntryCompleted, entries[0].Status)
}

func TestFundPendingTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		steps       []models.EntryStatus
		wantWallet  int64
		wantStatus  models.EntryStatus
		ownerOnLast string
	}{
		{name: "pending_then_completed", steps: []models.EntryStatus{models.EntryPending, models.EntryCompleted}, wantWallet: 200, wantStatus: models.EntryCompleted},
		{name: "pending_then_failed", steps: []models.EntryStatus{models.EntryPending, models.EntryFailed}, wantWallet: 0, wantStatus: models.EntryFailed},
		{name: "failed_is_terminal", steps: []models.EntryStatus{models.EntryPending, models.EntryFailed, models.EntryCompleted}, wantWallet: 0, wantStatus: models.EntryFailed},
		{name: "webhook_without_user", steps: []models.EntryStatus{models.EntryPending, models.EntryCompleted}, wantWallet: 200, wantStatus: models.EntryCompleted, ownerOnLast: "-"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l, repo := setup(t, funded("alice", 0))
			ctx := context.Background()
			var res FundResult
			for i, st := range tc.steps {
				user := "alice"
				if i == len(tc.steps)-1 && tc.ownerOnLast == "-" {
					user = ""
				}
				// later deliveries carry a different amount; the stored one wins
				amount := money.FromMajor(200 + int64(i))
				var err error
				res, err = l.Fund(ctx, user, amount, "R-"+tc.name, st)
				require.NoError(t, err)
			}
			require.Equal(t, tc.wantStatus, res.Entry.Status)
			requireUser(t, repo, "alice", tc.wantWallet, tc.wantWallet, 0)
		})
	}
}

func TestFundRejectsForeignReference(t *testing.T) {
	t.Parallel()

	l, _ := setup(t, funded("alice", 0), funded("mallory", 0))
	ctx := context.Background()
	_, err := l.Fund(ctx, "alice", money.FromMajor(10), "R1", models.EntryPending)
	require.NoError(t, err)

	_, err = l.Fund(ctx, "mallory", money.FromMajor(10), "R1", models.EntryCompleted)
	require.ErrorIs(t, err, biddingerrors.ErrForbidden)

	_, err = l.Fund(ctx, "", money.FromMajor(10), "unknown", models.EntryCompleted)
	require.ErrorIs(t, err, biddingerrors.ErrEntryNotFound)
}

func TestWithdraw(t *testing.T) {
	t.Parallel()

	l, repo := setup(t, funded("alice", 300))
	ctx := context.Background()

	_, err := l.Withdraw(ctx, "alice", money.FromMajor(400), "W0", models.EntryPending)
	require.ErrorIs(t, err, biddingerrors.ErrInsufficientFunds)

	// the pending payout is held out of the wallet right away
	res, err := l.Withdraw(ctx, "alice", money.FromMajor(100), "W1", models.EntryPending)
	require.NoError(t, err)
	require.Equal(t, models.EntryPending, res.Entry.Status)
	requireUser(t, repo, "alice", 200, 200, 0)

	_, err = l.CommitBid(ctx, "alice", money.FromMajor(250), "a1")
	require.ErrorIs(t, err, biddingerrors.ErrInsufficientFunds)

	res, err = l.Withdraw(ctx, "alice", 0, "W1", models.EntryCompleted)
	require.NoError(t, err)
	require.Equal(t, models.EntryCompleted, res.Entry.Status)
	requireUser(t, repo, "alice", 200, 200, 0)

	// escrow is not withdrawable
	_, err = l.CommitBid(ctx, "alice", money.FromMajor(150), "a1")
	require.NoError(t, err)
	_, err = l.Withdraw(ctx, "alice", money.FromMajor(100), "W2", models.EntryCompleted)
	require.ErrorIs(t, err, biddingerrors.ErrInsufficientFunds)
	requireUser(t, repo, "alice", 200, 50, 150)
}

func TestWithdrawFailedTransferReversesHold(t *testing.T) {
	t.Parallel()

	l, repo := setup(t, funded("alice", 300))
	ctx := context.Background()

	_, err := l.Withdraw(ctx, "alice", money.FromMajor(120), "W1", models.EntryPending)
	require.NoError(t, err)
	requireUser(t, repo, "alice", 180, 180, 0)

	res, err := l.Withdraw(ctx, "alice", 0, "W1", models.EntryFailed)
	require.NoError(t, err)
	require.Equal(t, models.EntryFailed, res.Entry.Status)
	requireUser(t, repo, "alice", 300, 300, 0)

	// a repeated failure report does not credit twice
	_, err = l.Withdraw(ctx, "alice", 0, "W1", models.EntryFailed)
	require.NoError(t, err)
	requireUser(t, repo, "alice", 300, 300, 0)

	entries, err := l.History(ctx, "alice", repository.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var reversal models.LedgerEntry
	for _, e := range entries {
		if e.Direction == models.Credit {
			reversal = e
		}
	}
	require.Equal(t, "W1-REV", reversal.Reference)
	require.Equal(t, models.KindWithdrawal, reversal.Kind)
	require.Equal(t, money.FromMajor(120), reversal.Amount)
}

func TestConcurrentCommitsConserveMoney(t *testing.T) {
	t.Parallel()

	l, repo := setup(t, funded("alice", 100))
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.CommitBid(ctx, "alice", money.FromMajor(3), "a1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 33, successes)
	requireUser(t, repo, "alice", 100, 1, 99)
}
