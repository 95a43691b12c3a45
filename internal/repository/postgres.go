package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
)

const (
	pgErrUniqueViolation       = "23505"
	pgErrSerializationFailure  = "40001"
	pgErrDeadlockDetected      = "40P01"
	pgErrCheckViolation        = "23514"
	usersEmailUniqueConstraint = "users_email_uq"
	balanceCheckConstraint     = "users_balance_chk"
	defaultMaxOpenConns        = 20
	defaultConnMaxLifetime     = 15 * time.Minute
	defaultConnMaxIdleTime     = 5 * time.Minute
)

// PGRepo is the PostgreSQL implementation of Store.
type PGRepo struct {
	db *sql.DB
}

var _ Store = (*PGRepo)(nil)

// OpenPG connects through the pgx stdlib driver with search_path pinned to schema.
func OpenPG(dsn, schema string, maxConns int) (*PGRepo, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if schema != "" {
		cfg.RuntimeParams["search_path"] = schema
	}
	db := stdlib.OpenDB(*cfg)
	if maxConns <= 0 {
		maxConns = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
	return &PGRepo{db: db}, nil
}

// NewPGRepo wraps an existing handle. Tests pass a sqlmock handle here.
func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{db: db}
}

func (r *PGRepo) DB() *sql.DB { return r.db }

func (r *PGRepo) Close() error { return r.db.Close() }

func (r *PGRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PGRepo) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapPgError(err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapPgError(err))
	}
	return nil
}

// mapPgError turns constraint and serialization failures into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		if pgErr.ConstraintName == usersEmailUniqueConstraint {
			return fmt.Errorf("%w: %s", biddingerrors.ErrDuplicateEmail, pgErr.Message)
		}
		return fmt.Errorf("%w: %s", biddingerrors.ErrConflict, pgErr.Message)
	case pgErrSerializationFailure, pgErrDeadlockDetected:
		return fmt.Errorf("%w: %s", biddingerrors.ErrConflict, pgErr.Message)
	case pgErrCheckViolation:
		if pgErr.ConstraintName == balanceCheckConstraint {
			return fmt.Errorf("%w: %s", biddingerrors.ErrInvariantViolation, pgErr.Message)
		}
	}
	return err
}

func notFound(err error, target error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, target)...)
	}
	return fmt.Errorf(format+": %w", append(args, mapPgError(err))...)
}

// ----- users -----

const userCols = `id, username, email, password_hash, role, wallet, available, escrowed, bank_recipient, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.Wallet, &u.Available, &u.Escrowed, &u.BankRecipient, &u.CreatedAt)
	return u, err
}

func getUser(ctx context.Context, q querier, userID string, lock bool) (models.User, error) {
	query := `select ` + userCols + ` from users where id = $1`
	if lock {
		query += ` for update`
	}
	u, err := scanUser(q.QueryRowContext(ctx, query, userID))
	if err != nil {
		return models.User{}, notFound(err, biddingerrors.ErrUserNotFound, "get user %s", userID)
	}
	return u, nil
}

func getUserByEmail(ctx context.Context, q querier, email string) (models.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `select `+userCols+` from users where lower(email) = lower($1)`, email))
	if err != nil {
		return models.User{}, notFound(err, biddingerrors.ErrUserNotFound, "get user by email %s", email)
	}
	return u, nil
}

func (r *PGRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	return getUser(ctx, r.db, userID, false)
}

func (r *PGRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return getUserByEmail(ctx, r.db, email)
}

// ----- auctions -----

const auctionSelect = `select a.id, a.seller_id, a.item_id, a.start_price, a.current_price, a.buy_now,
	a.buy_now_price, a.start_at, a.end_at, a.status, a.private, a.watchers_count, a.logistics,
	a.created_at, a.updated_at, i.owner_id, i.name, i.description, i.category_id,
	i.sub_category_id, i.images, i.dimensions, i.created_at
	from auctions a join items i on i.id = a.item_id`

func scanAuction(row interface{ Scan(...any) error }) (models.Auction, error) {
	var (
		a                       models.Auction
		item                    models.Item
		logistics, images, dims []byte
	)
	err := row.Scan(&a.AuctionID, &a.SellerID, &a.ItemID, &a.StartPrice, &a.CurrentPrice, &a.BuyNow,
		&a.BuyNowPrice, &a.StartAt, &a.EndAt, &a.Status, &a.Private, &a.WatchersCount, &logistics,
		&a.CreatedAt, &a.UpdatedAt, &item.OwnerID, &item.Name, &item.Description, &item.CategoryID,
		&item.SubCategoryID, &images, &dims, &item.CreatedAt)
	if err != nil {
		return models.Auction{}, err
	}
	if err := unmarshalJSONB(logistics, &a.Logistics); err != nil {
		return models.Auction{}, err
	}
	if err := unmarshalJSONB(images, &item.Images); err != nil {
		return models.Auction{}, err
	}
	if err := unmarshalJSONB(dims, &item.Dimensions); err != nil {
		return models.Auction{}, err
	}
	item.ItemID = a.ItemID
	a.Item = &item
	return a, nil
}

func unmarshalJSONB(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func getAuction(ctx context.Context, q querier, auctionID string, lock bool) (models.Auction, error) {
	query := auctionSelect + ` where a.id = $1`
	if lock {
		query += ` for update of a`
	}
	a, err := scanAuction(q.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		return models.Auction{}, notFound(err, biddingerrors.ErrAuctionNotFound, "get auction %s", auctionID)
	}
	return a, nil
}

func (r *PGRepo) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	return getAuction(ctx, r.db, auctionID, false)
}

// whereBuilder accumulates positional predicates.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) addRange(col string, rg *money.Range) {
	if rg == nil {
		return
	}
	w.add(col+" between ? and ?", int64(rg.Low), int64(rg.High))
}

func (w *whereBuilder) addVisibility(v Viewer) {
	if v.UserID == "" {
		w.add("a.private = false")
		return
	}
	w.add(`(a.private = false or a.seller_id = ? or exists (
		select 1 from auction_participants p where p.auction_id = a.id and p.email = lower(?)))`, v.UserID, v.Email)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

func orderBy(key string) string {
	switch key {
	case SortStartAt:
		return " order by a.start_at desc, a.id"
	case SortEndAt:
		return " order by a.end_at desc, a.id"
	case SortCurrentPrice:
		return " order by a.current_price desc, a.id"
	case SortCreatedAt:
		return " order by a.created_at desc, a.id"
	}
	return " order by a.watchers_count desc, a.id"
}

func (r *PGRepo) ListAuctions(ctx context.Context, f AuctionFilter, p Page) ([]models.Auction, int, error) {
	w := &whereBuilder{}
	if f.Status != "" {
		w.add("a.status = ?", string(f.Status))
	}
	if f.OwnerID != "" {
		w.add("a.seller_id = ?", f.OwnerID)
	}
	if f.CategoryID != "" {
		w.add("i.category_id = ?", f.CategoryID)
	}
	if f.SubCategoryID != "" {
		w.add("i.sub_category_id = ?", f.SubCategoryID)
	}
	w.addRange("a.start_price", f.StartPrice)
	w.addRange("a.current_price", f.CurrentPrice)
	if f.BuyNowPrice != nil {
		w.add("a.buy_now = true")
		w.addRange("a.buy_now_price", f.BuyNowPrice)
	}
	w.addVisibility(f.Viewer)
	return r.pageAuctions(ctx, w, orderBy(f.Sort), p)
}

func (r *PGRepo) SearchAuctions(ctx context.Context, term string, viewer Viewer, p Page) ([]models.Auction, int, error) {
	w := &whereBuilder{}
	like := "%" + escapeLike(strings.TrimSpace(term)) + "%"
	w.add("(i.name ilike ? or i.description ilike ?)", like, like)
	w.addVisibility(viewer)
	return r.pageAuctions(ctx, w, orderBy(SortWatchers), p)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *PGRepo) pageAuctions(ctx context.Context, w *whereBuilder, order string, p Page) ([]models.Auction, int, error) {
	p = p.Normalize()
	var total int
	if err := r.db.QueryRowContext(ctx,
		`select count(*) from auctions a join items i on i.id = a.item_id`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count auctions: %w", err)
	}

	args := append(append([]any{}, w.args...), p.PerPage, p.Offset())
	query := fmt.Sprintf("%s%s%s limit $%d offset $%d", auctionSelect, w.String(), order, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	out := []models.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func isParticipant(ctx context.Context, q querier, auctionID, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	var ok bool
	err := q.QueryRowContext(ctx,
		`select exists (select 1 from auction_participants where auction_id = $1 and email = lower($2))`,
		auctionID, email).Scan(&ok)
	return ok, err
}

func (r *PGRepo) IsParticipant(ctx context.Context, auctionID, email string) (bool, error) {
	return isParticipant(ctx, r.db, auctionID, email)
}

func (r *PGRepo) FindDueAuctions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return r.ids(ctx, `select id from auctions
		where (status = 'pending' and start_at <= $1) or (status = 'active' and end_at <= $1)
		order by case when status = 'pending' then start_at else end_at end
		limit $2`, now, limitOrAll(limit))
}

func (r *PGRepo) FindDuePayments(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return r.ids(ctx, `select id from payments
		where status in ('pending', 'inspecting', 'refunding') and due_at <= $1
		order by due_at
		limit $2`, now, limitOrAll(limit))
}

func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func (r *PGRepo) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PGRepo) RecordWatcher(ctx context.Context, auctionID, userID string) error {
	return r.WithTx(ctx, func(t Tx) error {
		q := t.(*pgTx).q
		res, err := q.ExecContext(ctx,
			`insert into auction_watchers (auction_id, user_id) values ($1, $2) on conflict do nothing`,
			auctionID, userID)
		if err != nil {
			return fmt.Errorf("record watcher: %w", mapPgError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		_, err = q.ExecContext(ctx,
			`update auctions set watchers_count = watchers_count + 1 where id = $1`, auctionID)
		return err
	})
}

// ----- bids -----

const bidCols = `id, auction_id, user_id, username, amount, created_at, updated_at`

func scanBid(row interface{ Scan(...any) error }) (models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Username, &b.Amount, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func listBids(ctx context.Context, q querier, auctionID string) ([]models.Bid, error) {
	rows, err := q.QueryContext(ctx,
		`select `+bidCols+` from bids where auction_id = $1 order by amount desc, created_at asc`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids for %s: %w", auctionID, err)
	}
	defer rows.Close()
	out := []models.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetBid(ctx context.Context, bidID string) (models.Bid, error) {
	b, err := scanBid(r.db.QueryRowContext(ctx, `select `+bidCols+` from bids where id = $1`, bidID))
	if err != nil {
		return models.Bid{}, notFound(err, biddingerrors.ErrBidNotFound, "get bid %s", bidID)
	}
	return b, nil
}

func (r *PGRepo) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	return listBids(ctx, r.db, auctionID)
}

// ----- payments -----

const paymentCols = `id, auction_id, buyer_id, seller_id, amount, status, due_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.PaymentID, &p.AuctionID, &p.BuyerID, &p.SellerID, &p.Amount, &p.Status,
		&p.DueAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getPayment(ctx context.Context, q querier, col, val string, lock bool) (models.Payment, error) {
	query := `select ` + paymentCols + ` from payments where ` + col + ` = $1`
	if lock {
		query += ` for update`
	}
	p, err := scanPayment(q.QueryRowContext(ctx, query, val))
	if err != nil {
		return models.Payment{}, notFound(err, biddingerrors.ErrPaymentNotFound, "get payment by %s %s", col, val)
	}
	return p, nil
}

func (r *PGRepo) GetPayment(ctx context.Context, paymentID string) (models.Payment, error) {
	return getPayment(ctx, r.db, "id", paymentID, false)
}

func (r *PGRepo) GetPaymentByAuction(ctx context.Context, auctionID string) (models.Payment, error) {
	return getPayment(ctx, r.db, "auction_id", auctionID, false)
}

// ----- ledger & notifications -----

const entryCols = `id, user_id, amount, direction, kind, status, reference, description, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.EntryID, &e.UserID, &e.Amount, &e.Direction, &e.Kind, &e.Status,
		&e.Reference, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *PGRepo) ListLedgerEntries(ctx context.Context, userID string, p Page) ([]models.LedgerEntry, error) {
	p = p.Normalize()
	rows, err := r.db.QueryContext(ctx, `select `+entryCols+` from wallet_transactions
		where user_id = $1 order by created_at desc, id limit $2 offset $3`, userID, p.PerPage, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()
	out := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepo) ListNotifications(ctx context.Context, userID string, p Page) ([]models.Notification, error) {
	p = p.Normalize()
	rows, err := r.db.QueryContext(ctx, `select id, user_id, kind, title, message, links, read, created_at
		from notifications where user_id = $1 order by created_at desc, id limit $2 offset $3`,
		userID, p.PerPage, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := []models.Notification{}
	for rows.Next() {
		var (
			n     models.Notification
			links []byte
		)
		if err := rows.Scan(&n.NotificationID, &n.UserID, &n.Kind, &n.Title, &n.Message, &links, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSONB(links, &n.Links); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ----- chats -----

func (r *PGRepo) GetChat(ctx context.Context, chatID string) (models.ChatRoom, error) {
	var c models.ChatRoom
	err := r.db.QueryRowContext(ctx,
		`select id, auction_id, buyer_id, seller_id, created_at from chats where id = $1`, chatID).
		Scan(&c.ChatID, &c.AuctionID, &c.BuyerID, &c.SellerID, &c.CreatedAt)
	if err != nil {
		return models.ChatRoom{}, notFound(err, biddingerrors.ErrChatNotFound, "get chat %s", chatID)
	}
	rows, err := r.db.QueryContext(ctx, `select seq, sender_id, sender_role, message, read, created_at
		from chat_messages where chat_id = $1 order by seq`, chatID)
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("get chat %s messages: %w", chatID, err)
	}
	defer rows.Close()
	c.Conversation = []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Seq, &m.SenderID, &m.Role, &m.Text, &m.Read, &m.Timestamp); err != nil {
			return models.ChatRoom{}, err
		}
		c.Conversation = append(c.Conversation, m)
	}
	return c, rows.Err()
}

func (r *PGRepo) AppendChatMessage(ctx context.Context, chatID, senderID, text string, at time.Time) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.WithTx(ctx, func(t Tx) error {
		q := t.(*pgTx).q
		var c models.ChatRoom
		err := q.QueryRowContext(ctx, `select id, buyer_id, seller_id from chats where id = $1 for update`, chatID).
			Scan(&c.ChatID, &c.BuyerID, &c.SellerID)
		if err != nil {
			return notFound(err, biddingerrors.ErrChatNotFound, "append chat %s", chatID)
		}
		role, ok := c.RoleOf(senderID)
		if !ok {
			return fmt.Errorf("append chat %s: %w", chatID, biddingerrors.ErrForbidden)
		}
		var seq int64
		if err := q.QueryRowContext(ctx,
			`select coalesce(max(seq), 0) + 1 from chat_messages where chat_id = $1`, chatID).Scan(&seq); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `insert into chat_messages (chat_id, seq, sender_id, sender_role, message, read, created_at)
			values ($1, $2, $3, $4, $5, false, $6)`, chatID, seq, senderID, string(role), text, at); err != nil {
			return mapPgError(err)
		}
		msg = models.ChatMessage{Seq: seq, SenderID: senderID, Role: role, Text: text, Timestamp: at}
		return nil
	})
	return msg, err
}

func (r *PGRepo) MarkChatRead(ctx context.Context, chatID, readerID string, upTo int64) (int, error) {
	var c models.ChatRoom
	err := r.db.QueryRowContext(ctx, `select id, buyer_id, seller_id from chats where id = $1`, chatID).
		Scan(&c.ChatID, &c.BuyerID, &c.SellerID)
	if err != nil {
		return 0, notFound(err, biddingerrors.ErrChatNotFound, "mark chat %s read", chatID)
	}
	if _, ok := c.RoleOf(readerID); !ok {
		return 0, fmt.Errorf("mark chat %s read: %w", chatID, biddingerrors.ErrForbidden)
	}
	res, err := r.db.ExecContext(ctx, `update chat_messages set read = true
		where chat_id = $1 and seq <= $2 and sender_id <> $3 and read = false`, chatID, upTo, readerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ----- transactional view -----

type pgTx struct {
	q querier
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) GetUserForUpdate(ctx context.Context, userID string) (models.User, error) {
	return getUser(ctx, t.q, userID, true)
}

func (t *pgTx) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return getUserByEmail(ctx, t.q, email)
}

func (t *pgTx) CreateUser(ctx context.Context, u models.User) error {
	_, err := t.q.ExecContext(ctx, `insert into users (`+userCols+`) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.UserID, u.Username, u.Email, u.PasswordHash, string(u.Role), int64(u.Wallet), int64(u.Available),
		int64(u.Escrowed), u.BankRecipient, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, mapPgError(err))
	}
	return nil
}

func (t *pgTx) UpdateUserBalances(ctx context.Context, u models.User) error {
	res, err := t.q.ExecContext(ctx, `update users set wallet = $2, available = $3, escrowed = $4 where id = $1`,
		u.UserID, int64(u.Wallet), int64(u.Available), int64(u.Escrowed))
	if err != nil {
		return fmt.Errorf("update user %s balances: %w", u.UserID, mapPgError(err))
	}
	return expectOne(res, biddingerrors.ErrUserNotFound, "update user %s", u.UserID)
}

func expectOne(res sql.Result, target error, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf(format+": %w", append(args, target)...)
	}
	return nil
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e models.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx, `insert into wallet_transactions (`+entryCols+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.EntryID, e.UserID, int64(e.Amount), string(e.Direction), string(e.Kind), string(e.Status),
		e.Reference, e.Description, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) FindLedgerEntryForUpdate(ctx context.Context, kind models.EntryKind, reference string) (models.LedgerEntry, error) {
	e, err := scanEntry(t.q.QueryRowContext(ctx, `select `+entryCols+` from wallet_transactions
		where kind = $1 and reference = $2 for update`, string(kind), reference))
	if err != nil {
		return models.LedgerEntry{}, notFound(err, biddingerrors.ErrEntryNotFound, "find %s entry %s", kind, reference)
	}
	return e, nil
}

func (t *pgTx) UpdateLedgerEntryStatus(ctx context.Context, entryID string, status models.EntryStatus, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `update wallet_transactions set status = $2, updated_at = $3 where id = $1`,
		entryID, string(status), at)
	if err != nil {
		return fmt.Errorf("update ledger entry %s: %w", entryID, err)
	}
	return expectOne(res, biddingerrors.ErrEntryNotFound, "update ledger entry %s", entryID)
}

func (t *pgTx) CreateItem(ctx context.Context, item models.Item) error {
	images, err := json.Marshal(item.Images)
	if err != nil {
		return err
	}
	dims, err := json.Marshal(item.Dimensions)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `insert into items (id, owner_id, name, description, category_id, sub_category_id, images, dimensions, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ItemID, item.OwnerID, item.Name, item.Description, item.CategoryID, item.SubCategoryID,
		images, dims, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create item: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) CreateAuction(ctx context.Context, a models.Auction) error {
	logistics, err := json.Marshal(a.Logistics)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `insert into auctions (id, seller_id, item_id, start_price, current_price, buy_now,
		buy_now_price, start_at, end_at, status, private, watchers_count, logistics, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13, $14)`,
		a.AuctionID, a.SellerID, a.ItemID, int64(a.StartPrice), int64(a.CurrentPrice), a.BuyNow,
		int64(a.BuyNowPrice), a.StartAt, a.EndAt, string(a.Status), a.Private, logistics, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create auction: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) GetAuctionForUpdate(ctx context.Context, auctionID string) (models.Auction, error) {
	return getAuction(ctx, t.q, auctionID, true)
}

func (t *pgTx) UpdateAuction(ctx context.Context, a models.Auction) error {
	logistics, err := json.Marshal(a.Logistics)
	if err != nil {
		return err
	}
	res, err := t.q.ExecContext(ctx, `update auctions set start_price = $2, current_price = $3, buy_now = $4,
		buy_now_price = $5, start_at = $6, end_at = $7, status = $8, private = $9, logistics = $10, updated_at = $11
		where id = $1`,
		a.AuctionID, int64(a.StartPrice), int64(a.CurrentPrice), a.BuyNow, int64(a.BuyNowPrice),
		a.StartAt, a.EndAt, string(a.Status), a.Private, logistics, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, mapPgError(err))
	}
	return expectOne(res, biddingerrors.ErrAuctionNotFound, "update auction %s", a.AuctionID)
}

func (t *pgTx) AddParticipants(ctx context.Context, auctionID string, emails []string) error {
	for _, e := range emails {
		if _, err := t.q.ExecContext(ctx, `insert into auction_participants (auction_id, email)
			values ($1, lower($2)) on conflict do nothing`, auctionID, strings.TrimSpace(e)); err != nil {
			return fmt.Errorf("add participant: %w", mapPgError(err))
		}
	}
	return nil
}

func (t *pgTx) IsParticipant(ctx context.Context, auctionID, email string) (bool, error) {
	return isParticipant(ctx, t.q, auctionID, email)
}

func (t *pgTx) TopBid(ctx context.Context, auctionID string) (models.Bid, error) {
	b, err := scanBid(t.q.QueryRowContext(ctx, `select `+bidCols+` from bids where auction_id = $1
		order by amount desc, created_at asc limit 1`, auctionID))
	if err != nil {
		return models.Bid{}, notFound(err, biddingerrors.ErrNoBids, "top bid for auction %s", auctionID)
	}
	return b, nil
}

func (t *pgTx) GetBidForUpdate(ctx context.Context, bidID string) (models.Bid, error) {
	b, err := scanBid(t.q.QueryRowContext(ctx, `select `+bidCols+` from bids where id = $1 for update`, bidID))
	if err != nil {
		return models.Bid{}, notFound(err, biddingerrors.ErrBidNotFound, "get bid %s", bidID)
	}
	return b, nil
}

func (t *pgTx) GetUserBid(ctx context.Context, auctionID, userID string) (models.Bid, error) {
	b, err := scanBid(t.q.QueryRowContext(ctx, `select `+bidCols+` from bids
		where auction_id = $1 and user_id = $2 for update`, auctionID, userID))
	if err != nil {
		return models.Bid{}, notFound(err, biddingerrors.ErrBidNotFound, "bid of user %s on %s", userID, auctionID)
	}
	return b, nil
}

func (t *pgTx) InsertBid(ctx context.Context, b models.Bid) error {
	_, err := t.q.ExecContext(ctx, `insert into bids (`+bidCols+`) values ($1, $2, $3, $4, $5, $6, $7)`,
		b.BidID, b.AuctionID, b.UserID, b.Username, int64(b.Amount), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bid: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) UpdateBidAmount(ctx context.Context, bidID string, amount money.Amount, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `update bids set amount = $2, updated_at = $3 where id = $1`, bidID, int64(amount), at)
	if err != nil {
		return fmt.Errorf("update bid %s: %w", bidID, mapPgError(err))
	}
	return expectOne(res, biddingerrors.ErrBidNotFound, "update bid %s", bidID)
}

func (t *pgTx) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	return listBids(ctx, t.q, auctionID)
}

func (t *pgTx) InsertPayment(ctx context.Context, p models.Payment) error {
	_, err := t.q.ExecContext(ctx, `insert into payments (`+paymentCols+`) values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.PaymentID, p.AuctionID, p.BuyerID, p.SellerID, int64(p.Amount), string(p.Status), p.DueAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) GetPaymentForUpdate(ctx context.Context, paymentID string) (models.Payment, error) {
	return getPayment(ctx, t.q, "id", paymentID, true)
}

func (t *pgTx) GetPaymentByAuctionForUpdate(ctx context.Context, auctionID string) (models.Payment, error) {
	return getPayment(ctx, t.q, "auction_id", auctionID, true)
}

func (t *pgTx) UpdatePayment(ctx context.Context, p models.Payment) error {
	res, err := t.q.ExecContext(ctx, `update payments set status = $2, due_at = $3, updated_at = $4 where id = $1`,
		p.PaymentID, string(p.Status), p.DueAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.PaymentID, mapPgError(err))
	}
	return expectOne(res, biddingerrors.ErrPaymentNotFound, "update payment %s", p.PaymentID)
}

func (t *pgTx) InsertNotification(ctx context.Context, n models.Notification) error {
	links, err := json.Marshal(n.Links)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `insert into notifications (id, user_id, kind, title, message, links, read, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.NotificationID, n.UserID, n.Kind, n.Title, n.Message, links, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) CreateChat(ctx context.Context, c models.ChatRoom) (models.ChatRoom, error) {
	_, err := t.q.ExecContext(ctx, `insert into chats (id, auction_id, buyer_id, seller_id, created_at)
		values ($1, $2, $3, $4, $5) on conflict (auction_id) do nothing`,
		c.ChatID, c.AuctionID, c.BuyerID, c.SellerID, c.CreatedAt)
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("create chat: %w", mapPgError(err))
	}
	var out models.ChatRoom
	err = t.q.QueryRowContext(ctx, `select id, auction_id, buyer_id, seller_id, created_at from chats where auction_id = $1`,
		c.AuctionID).Scan(&out.ChatID, &out.AuctionID, &out.BuyerID, &out.SellerID, &out.CreatedAt)
	if err != nil {
		return models.ChatRoom{}, notFound(err, biddingerrors.ErrChatNotFound, "create chat for %s", c.AuctionID)
	}
	out.Conversation = []models.ChatMessage{}
	return out, nil
}
