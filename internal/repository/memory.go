package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
)

// MemoryRepo is a concurrency-safe in-memory implementation of Store.
// A transaction holds the write lock for its whole duration and keeps an
// undo log that is replayed in reverse on rollback.
type MemoryRepo struct {
	mu sync.RWMutex

	users      map[string]models.User
	emails     map[string]string // key: lower(email) -> userID
	items      map[string]models.Item
	auctions   map[string]models.Auction
	partics    map[string]map[string]struct{} // key: auctionID -> lower(email)
	watchers   map[string]map[string]struct{} // key: auctionID -> userID
	bids       map[string]models.Bid
	auctionBid map[string][]string // key: auctionID -> bidIDs
	userBid    map[string]string   // key: auctionID/userID -> bidID
	payments   map[string]models.Payment
	auctionPay map[string]string // key: auctionID -> paymentID
	entries    map[string]models.LedgerEntry
	userEntry  map[string][]string // key: userID -> entryIDs, oldest first
	entryRef   map[string]string   // key: kind/reference -> entryID, gateway kinds only
	notifs     map[string][]models.Notification
	chats      map[string]models.ChatRoom
	auctionCh  map[string]string // key: auctionID -> chatID
}

var _ Store = (*MemoryRepo)(nil)

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:      make(map[string]models.User),
		emails:     make(map[string]string),
		items:      make(map[string]models.Item),
		auctions:   make(map[string]models.Auction),
		partics:    make(map[string]map[string]struct{}),
		watchers:   make(map[string]map[string]struct{}),
		bids:       make(map[string]models.Bid),
		auctionBid: make(map[string][]string),
		userBid:    make(map[string]string),
		payments:   make(map[string]models.Payment),
		auctionPay: make(map[string]string),
		entries:    make(map[string]models.LedgerEntry),
		userEntry:  make(map[string][]string),
		entryRef:   make(map[string]string),
		notifs:     make(map[string][]models.Notification),
		chats:      make(map[string]models.ChatRoom),
		auctionCh:  make(map[string]string),
	}
}

// WithTx runs fn under the write lock, undoing every change if fn fails.
func (r *MemoryRepo) WithTx(ctx context.Context, fn func(Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{r: r}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	// A cancelled context aborts before the commit point, as a database would.
	if err = ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (r *MemoryRepo) GetUser(_ context.Context, userID string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.user(userID)
}

func (r *MemoryRepo) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userByEmail(email)
}

func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.auction(auctionID)
}

func (r *MemoryRepo) ListAuctions(_ context.Context, f AuctionFilter, p Page) ([]models.Auction, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Auction
	for _, a := range r.auctions {
		item := r.items[a.ItemID]
		if !f.matches(a, item) || !visible(a, f.Viewer, r.isParticipant(a.AuctionID, f.Viewer.Email)) {
			continue
		}
		out = append(out, r.withItem(a))
	}
	sortAuctions(out, f.Sort)
	return paginate(out, p), len(out), nil
}

func (r *MemoryRepo) SearchAuctions(_ context.Context, term string, viewer Viewer, p Page) ([]models.Auction, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(term))
	var out []models.Auction
	for _, a := range r.auctions {
		item := r.items[a.ItemID]
		if !strings.Contains(strings.ToLower(item.Name), needle) &&
			!strings.Contains(strings.ToLower(item.Description), needle) {
			continue
		}
		if !visible(a, viewer, r.isParticipant(a.AuctionID, viewer.Email)) {
			continue
		}
		out = append(out, r.withItem(a))
	}
	sortAuctions(out, SortWatchers)
	return paginate(out, p), len(out), nil
}

func (r *MemoryRepo) IsParticipant(_ context.Context, auctionID, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isParticipant(auctionID, email), nil
}

func (r *MemoryRepo) GetBid(_ context.Context, bidID string) (models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bids[bidID]
	if !ok {
		return models.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return b, nil
}

func (r *MemoryRepo) ListBids(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listBids(auctionID), nil
}

func (r *MemoryRepo) GetPayment(_ context.Context, paymentID string) (models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return models.Payment{}, fmt.Errorf("get payment %s: %w", paymentID, biddingerrors.ErrPaymentNotFound)
	}
	return p, nil
}

func (r *MemoryRepo) GetPaymentByAuction(_ context.Context, auctionID string) (models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paymentByAuction(auctionID)
}

func (r *MemoryRepo) ListLedgerEntries(_ context.Context, userID string, p Page) ([]models.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.userEntry[userID]
	out := make([]models.LedgerEntry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, r.entries[ids[i]])
	}
	return paginate(out, p), nil
}

func (r *MemoryRepo) ListNotifications(_ context.Context, userID string, p Page) ([]models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.notifs[userID]
	out := make([]models.Notification, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	return paginate(out, p), nil
}

func (r *MemoryRepo) FindDueAuctions(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []models.Auction
	for _, a := range r.auctions {
		if auctionDue(a, now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return dueTime(due[i]).Before(dueTime(due[j])) })
	ids := make([]string, 0, len(due))
	for _, a := range due {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, a.AuctionID)
	}
	return ids, nil
}

func (r *MemoryRepo) FindDuePayments(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []models.Payment
	for _, p := range r.payments {
		if paymentDue(p, now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	ids := make([]string, 0, len(due))
	for _, p := range due {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, p.PaymentID)
	}
	return ids, nil
}

func (r *MemoryRepo) RecordWatcher(_ context.Context, auctionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("record watcher on %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	set, ok := r.watchers[auctionID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[auctionID] = set
	}
	if _, seen := set[userID]; seen {
		return nil
	}
	set[userID] = struct{}{}
	a.WatchersCount = len(set)
	r.auctions[auctionID] = a
	return nil
}

func (r *MemoryRepo) GetChat(_ context.Context, chatID string) (models.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[chatID]
	if !ok {
		return models.ChatRoom{}, fmt.Errorf("get chat %s: %w", chatID, biddingerrors.ErrChatNotFound)
	}
	return cloneChat(c), nil
}

func (r *MemoryRepo) AppendChatMessage(_ context.Context, chatID, senderID, text string, at time.Time) (models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[chatID]
	if !ok {
		return models.ChatMessage{}, fmt.Errorf("append chat %s: %w", chatID, biddingerrors.ErrChatNotFound)
	}
	role, ok := c.RoleOf(senderID)
	if !ok {
		return models.ChatMessage{}, fmt.Errorf("append chat %s: %w", chatID, biddingerrors.ErrForbidden)
	}
	var seq int64 = 1
	if n := len(c.Conversation); n > 0 {
		seq = c.Conversation[n-1].Seq + 1
	}
	msg := models.ChatMessage{Seq: seq, SenderID: senderID, Role: role, Text: text, Timestamp: at}
	conv := make([]models.ChatMessage, len(c.Conversation), len(c.Conversation)+1)
	copy(conv, c.Conversation)
	c.Conversation = append(conv, msg)
	r.chats[chatID] = c
	return msg, nil
}

func (r *MemoryRepo) MarkChatRead(_ context.Context, chatID, readerID string, upTo int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[chatID]
	if !ok {
		return 0, fmt.Errorf("mark chat %s read: %w", chatID, biddingerrors.ErrChatNotFound)
	}
	if _, ok := c.RoleOf(readerID); !ok {
		return 0, fmt.Errorf("mark chat %s read: %w", chatID, biddingerrors.ErrForbidden)
	}
	conv := make([]models.ChatMessage, len(c.Conversation))
	copy(conv, c.Conversation)
	changed := 0
	for i := range conv {
		m := &conv[i]
		if m.Seq <= upTo && m.SenderID != readerID && !m.Read {
			m.Read = true
			changed++
		}
	}
	c.Conversation = conv
	r.chats[chatID] = c
	return changed, nil
}

// AddUser seeds a user outside of a transaction. Used by tests and the dev seed.
func (r *MemoryRepo) AddUser(u models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.UserID] = u
	r.emails[strings.ToLower(u.Email)] = u.UserID
}

// AddAuction seeds an auction and its item. This method is intended for tests only.
func (r *MemoryRepo) AddAuction(a models.Auction, item models.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.ItemID != "" {
		r.items[item.ItemID] = item
		a.ItemID = item.ItemID
	}
	a.Item = nil
	r.auctions[a.AuctionID] = a
}

// lookups shared by Store reads and memTx; callers hold the lock.

func (r *MemoryRepo) user(userID string) (models.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return u, nil
}

func (r *MemoryRepo) userByEmail(email string) (models.User, error) {
	id, ok := r.emails[strings.ToLower(email)]
	if !ok {
		return models.User{}, fmt.Errorf("get user by email %s: %w", email, biddingerrors.ErrUserNotFound)
	}
	return r.users[id], nil
}

func (r *MemoryRepo) auction(auctionID string) (models.Auction, error) {
	a, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return r.withItem(a), nil
}

func (r *MemoryRepo) withItem(a models.Auction) models.Auction {
	if item, ok := r.items[a.ItemID]; ok {
		a.Item = &item
	}
	return a
}

func (r *MemoryRepo) isParticipant(auctionID, email string) bool {
	if email == "" {
		return false
	}
	_, ok := r.partics[auctionID][strings.ToLower(email)]
	return ok
}

// listBids returns bids ordered by amount desc, earliest first on ties.
func (r *MemoryRepo) listBids(auctionID string) []models.Bid {
	ids := r.auctionBid[auctionID]
	out := make([]models.Bid, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.bids[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepo) paymentByAuction(auctionID string) (models.Payment, error) {
	id, ok := r.auctionPay[auctionID]
	if !ok {
		return models.Payment{}, fmt.Errorf("get payment for auction %s: %w", auctionID, biddingerrors.ErrPaymentNotFound)
	}
	return r.payments[id], nil
}

// memTx mutates the repo maps directly and records how to undo each change.
type memTx struct {
	r    *MemoryRepo
	undo []func()
}

var _ Tx = (*memTx)(nil)

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// remember captures the current state of m[k] so rollback can restore it.
func remember[K comparable, V any](t *memTx, m map[K]V, k K) {
	old, existed := m[k]
	t.undo = append(t.undo, func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (t *memTx) GetUserForUpdate(_ context.Context, userID string) (models.User, error) {
	return t.r.user(userID)
}

func (t *memTx) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	return t.r.userByEmail(email)
}

func (t *memTx) CreateUser(_ context.Context, u models.User) error {
	key := strings.ToLower(u.Email)
	if _, ok := t.r.emails[key]; ok {
		return fmt.Errorf("create user %s: %w", u.Email, biddingerrors.ErrDuplicateEmail)
	}
	remember(t, t.r.users, u.UserID)
	remember(t, t.r.emails, key)
	t.r.users[u.UserID] = u
	t.r.emails[key] = u.UserID
	return nil
}

func (t *memTx) UpdateUserBalances(_ context.Context, u models.User) error {
	cur, ok := t.r.users[u.UserID]
	if !ok {
		return fmt.Errorf("update user %s: %w", u.UserID, biddingerrors.ErrUserNotFound)
	}
	remember(t, t.r.users, u.UserID)
	cur.Wallet, cur.Available, cur.Escrowed = u.Wallet, u.Available, u.Escrowed
	t.r.users[u.UserID] = cur
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e models.LedgerEntry) error {
	if e.Kind == models.KindFunding || e.Kind == models.KindWithdrawal {
		key := string(e.Kind) + "/" + e.Reference
		if _, dup := t.r.entryRef[key]; dup {
			return fmt.Errorf("insert ledger entry %s: %w", e.Reference, biddingerrors.ErrConflict)
		}
		remember(t, t.r.entryRef, key)
		t.r.entryRef[key] = e.EntryID
	}
	remember(t, t.r.entries, e.EntryID)
	remember(t, t.r.userEntry, e.UserID)
	t.r.entries[e.EntryID] = e
	t.r.userEntry[e.UserID] = append(t.r.userEntry[e.UserID], e.EntryID)
	return nil
}

func (t *memTx) FindLedgerEntryForUpdate(_ context.Context, kind models.EntryKind, reference string) (models.LedgerEntry, error) {
	id, ok := t.r.entryRef[string(kind)+"/"+reference]
	if !ok {
		return models.LedgerEntry{}, fmt.Errorf("find %s entry %s: %w", kind, reference, biddingerrors.ErrEntryNotFound)
	}
	return t.r.entries[id], nil
}

func (t *memTx) UpdateLedgerEntryStatus(_ context.Context, entryID string, status models.EntryStatus, at time.Time) error {
	e, ok := t.r.entries[entryID]
	if !ok {
		return fmt.Errorf("update ledger entry %s: %w", entryID, biddingerrors.ErrEntryNotFound)
	}
	remember(t, t.r.entries, entryID)
	e.Status = status
	e.UpdatedAt = at
	t.r.entries[entryID] = e
	return nil
}

func (t *memTx) CreateItem(_ context.Context, item models.Item) error {
	remember(t, t.r.items, item.ItemID)
	t.r.items[item.ItemID] = item
	return nil
}

func (t *memTx) CreateAuction(_ context.Context, a models.Auction) error {
	if _, ok := t.r.items[a.ItemID]; !ok {
		return fmt.Errorf("create auction %s: %w", a.AuctionID, biddingerrors.ErrItemNotFound)
	}
	a.Item = nil
	remember(t, t.r.auctions, a.AuctionID)
	t.r.auctions[a.AuctionID] = a
	return nil
}

func (t *memTx) GetAuctionForUpdate(_ context.Context, auctionID string) (models.Auction, error) {
	return t.r.auction(auctionID)
}

func (t *memTx) UpdateAuction(_ context.Context, a models.Auction) error {
	cur, ok := t.r.auctions[a.AuctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	a.Item = nil
	a.WatchersCount = cur.WatchersCount
	remember(t, t.r.auctions, a.AuctionID)
	t.r.auctions[a.AuctionID] = a
	return nil
}

func (t *memTx) AddParticipants(_ context.Context, auctionID string, emails []string) error {
	next := make(map[string]struct{}, len(t.r.partics[auctionID])+len(emails))
	for e := range t.r.partics[auctionID] {
		next[e] = struct{}{}
	}
	for _, e := range emails {
		next[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	remember(t, t.r.partics, auctionID)
	t.r.partics[auctionID] = next
	return nil
}

func (t *memTx) IsParticipant(_ context.Context, auctionID, email string) (bool, error) {
	return t.r.isParticipant(auctionID, email), nil
}

func (t *memTx) TopBid(_ context.Context, auctionID string) (models.Bid, error) {
	bids := t.r.listBids(auctionID)
	if len(bids) == 0 {
		return models.Bid{}, fmt.Errorf("top bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return bids[0], nil
}

func (t *memTx) GetBidForUpdate(_ context.Context, bidID string) (models.Bid, error) {
	b, ok := t.r.bids[bidID]
	if !ok {
		return models.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return b, nil
}

func (t *memTx) GetUserBid(_ context.Context, auctionID, userID string) (models.Bid, error) {
	id, ok := t.r.userBid[auctionID+"/"+userID]
	if !ok {
		return models.Bid{}, fmt.Errorf("bid of user %s on %s: %w", userID, auctionID, biddingerrors.ErrBidNotFound)
	}
	return t.r.bids[id], nil
}

func (t *memTx) InsertBid(_ context.Context, b models.Bid) error {
	key := b.AuctionID + "/" + b.UserID
	if _, dup := t.r.userBid[key]; dup {
		return fmt.Errorf("insert bid on %s: %w", b.AuctionID, biddingerrors.ErrConflict)
	}
	remember(t, t.r.bids, b.BidID)
	remember(t, t.r.userBid, key)
	remember(t, t.r.auctionBid, b.AuctionID)
	t.r.bids[b.BidID] = b
	t.r.userBid[key] = b.BidID
	t.r.auctionBid[b.AuctionID] = append(t.r.auctionBid[b.AuctionID], b.BidID)
	return nil
}

func (t *memTx) UpdateBidAmount(_ context.Context, bidID string, amount money.Amount, at time.Time) error {
	b, ok := t.r.bids[bidID]
	if !ok {
		return fmt.Errorf("update bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	remember(t, t.r.bids, bidID)
	b.Amount = amount
	b.UpdatedAt = at
	t.r.bids[bidID] = b
	return nil
}

func (t *memTx) ListBids(_ context.Context, auctionID string) ([]models.Bid, error) {
	return t.r.listBids(auctionID), nil
}

func (t *memTx) InsertPayment(_ context.Context, p models.Payment) error {
	if _, dup := t.r.auctionPay[p.AuctionID]; dup {
		return fmt.Errorf("insert payment for %s: %w", p.AuctionID, biddingerrors.ErrConflict)
	}
	remember(t, t.r.payments, p.PaymentID)
	remember(t, t.r.auctionPay, p.AuctionID)
	t.r.payments[p.PaymentID] = p
	t.r.auctionPay[p.AuctionID] = p.PaymentID
	return nil
}

func (t *memTx) GetPaymentForUpdate(_ context.Context, paymentID string) (models.Payment, error) {
	p, ok := t.r.payments[paymentID]
	if !ok {
		return models.Payment{}, fmt.Errorf("get payment %s: %w", paymentID, biddingerrors.ErrPaymentNotFound)
	}
	return p, nil
}

func (t *memTx) GetPaymentByAuctionForUpdate(_ context.Context, auctionID string) (models.Payment, error) {
	return t.r.paymentByAuction(auctionID)
}

func (t *memTx) UpdatePayment(_ context.Context, p models.Payment) error {
	if _, ok := t.r.payments[p.PaymentID]; !ok {
		return fmt.Errorf("update payment %s: %w", p.PaymentID, biddingerrors.ErrPaymentNotFound)
	}
	remember(t, t.r.payments, p.PaymentID)
	t.r.payments[p.PaymentID] = p
	return nil
}

func (t *memTx) InsertNotification(_ context.Context, n models.Notification) error {
	remember(t, t.r.notifs, n.UserID)
	t.r.notifs[n.UserID] = append(t.r.notifs[n.UserID], n)
	return nil
}

func (t *memTx) CreateChat(_ context.Context, c models.ChatRoom) (models.ChatRoom, error) {
	if id, ok := t.r.auctionCh[c.AuctionID]; ok {
		return cloneChat(t.r.chats[id]), nil
	}
	remember(t, t.r.chats, c.ChatID)
	remember(t, t.r.auctionCh, c.AuctionID)
	t.r.chats[c.ChatID] = c
	t.r.auctionCh[c.AuctionID] = c.ChatID
	return cloneChat(c), nil
}

func auctionDue(a models.Auction, now time.Time) bool {
	switch a.Status {
	case models.AuctionPending:
		return !a.StartAt.After(now)
	case models.AuctionActive:
		return !a.EndAt.After(now)
	}
	return false
}

func dueTime(a models.Auction) time.Time {
	if a.Status == models.AuctionPending {
		return a.StartAt
	}
	return a.EndAt
}

func paymentDue(p models.Payment, now time.Time) bool {
	switch p.Status {
	case models.PaymentPending, models.PaymentInspecting, models.PaymentRefunding:
		return !p.DueAt.After(now)
	}
	return false
}

func cloneChat(c models.ChatRoom) models.ChatRoom {
	c.Conversation = append([]models.ChatMessage(nil), c.Conversation...)
	return c
}

func sortAuctions(list []models.Auction, key string) {
	less := func(a, b models.Auction) bool { return a.WatchersCount > b.WatchersCount }
	switch key {
	case SortStartAt:
		less = func(a, b models.Auction) bool { return a.StartAt.After(b.StartAt) }
	case SortEndAt:
		less = func(a, b models.Auction) bool { return a.EndAt.After(b.EndAt) }
	case SortCurrentPrice:
		less = func(a, b models.Auction) bool { return a.CurrentPrice > b.CurrentPrice }
	case SortCreatedAt:
		less = func(a, b models.Auction) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(list, func(i, j int) bool {
		if less(list[i], list[j]) {
			return true
		}
		if less(list[j], list[i]) {
			return false
		}
		return list[i].AuctionID < list[j].AuctionID
	})
}

func paginate[T any](list []T, p Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(list) {
		return []T{}
	}
	end := start + p.PerPage
	if end > len(list) {
		end = len(list)
	}
	return list[start:end]
}
