package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGRepo(db), mock
}

var userColumns = []string{"id", "username", "email", "password_hash", "role", "wallet", "available", "escrowed", "bank_recipient", "created_at"}

func TestPGRepo_GetUserNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("from users where id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, biddingerrors.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_WithTxCommitsBalanceUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("from users where id = $1 for update")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "alice", "alice@x", "", "client", int64(100000), int64(100000), int64(0), "", created))
	mock.ExpectExec(regexp.QuoteMeta("update users set wallet = $2, available = $3, escrowed = $4 where id = $1")).
		WithArgs("u1", int64(100000), int64(85000), int64(15000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUserForUpdate(ctx, "u1")
		if err != nil {
			return err
		}
		require.Equal(t, models.RoleClient, u.Role)
		require.Equal(t, money.FromMajor(1000), u.Available)
		u.Available -= money.FromMajor(150)
		u.Escrowed += money.FromMajor(150)
		return tx.UpdateUserBalances(ctx, u)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_WithTxRollsBackOnUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into bids")).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "bids_one_per_user"})
	mock.ExpectRollback()

	err := repo.WithTx(ctx, func(tx Tx) error {
		return tx.InsertBid(ctx, models.Bid{BidID: "b1", AuctionID: "a1", UserID: "u1", Amount: money.FromMajor(150)})
	})
	require.ErrorIs(t, err, biddingerrors.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_UpdateBidAmountMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("update bids set amount = $2, updated_at = $3 where id = $1")).
		WithArgs("b1", int64(20000), at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateBidAmount(ctx, "b1", money.FromMajor(200), at)
	})
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_FindDueAuctions(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("select id from auctions")).
		WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2"))

	ids, err := repo.FindDueAuctions(context.Background(), now, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_FindLedgerEntryForUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("where kind = $1 and reference = $2 for update")).
		WithArgs("funding", "R1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "direction", "kind", "status", "reference", "description", "created_at", "updated_at"}).
			AddRow("e1", "u1", int64(50000), "credit", "funding", "pending", "R1", "wallet funding", at, at))
	mock.ExpectCommit()

	err := repo.WithTx(ctx, func(tx Tx) error {
		e, err := tx.FindLedgerEntryForUpdate(ctx, models.KindFunding, "R1")
		if err != nil {
			return err
		}
		require.Equal(t, models.EntryPending, e.Status)
		require.Equal(t, money.FromMajor(500), e.Amount)
		require.Equal(t, models.Credit, e.Direction)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapPgError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "duplicate_email", err: &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: usersEmailUniqueConstraint}, want: biddingerrors.ErrDuplicateEmail},
		{name: "serialization", err: &pgconn.PgError{Code: pgErrSerializationFailure}, want: biddingerrors.ErrConflict},
		{name: "balance_check", err: &pgconn.PgError{Code: pgErrCheckViolation, ConstraintName: balanceCheckConstraint}, want: biddingerrors.ErrInvariantViolation},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, mapPgError(tc.err), tc.want)
		})
	}

	plain := sql.ErrConnDone
	require.Equal(t, plain, mapPgError(plain))
}

func TestMigrateAppliesPendingFiles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`create schema if not exists "auction_test"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists users")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations")).
		WithArgs("0001_init.up.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db, "auction_test"))
	require.NoError(t, mock.ExpectationsWereMet())
}
