package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

// MemoryRepository is a thread-safe in-memory Repository. Rows locked inside
// WithinTx are guarded by one-slot channels, so a second transaction touching
// the same row waits until the first commits or rolls back.
type MemoryRepository struct {
	mu            sync.RWMutex
	users         map[int64]*models.User
	accounts      map[int64]*models.Account
	orders        map[int64]*models.Order
	transactions  map[int64]*models.Transaction
	cards         map[int64]*models.BankCard
	announcements map[int64]*models.Announcement
	adminLogs     []*models.AdminLog
	locks         map[string]chan struct{}

	lastUserID         int64
	lastOrderID        int64
	lastTransactionID  int64
	lastCardID         int64
	lastAnnouncementID int64
	lastAdminLogID     int64
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:         make(map[int64]*models.User),
		accounts:      make(map[int64]*models.Account),
		orders:        make(map[int64]*models.Order),
		transactions:  make(map[int64]*models.Transaction),
		cards:         make(map[int64]*models.BankCard),
		announcements: make(map[int64]*models.Announcement),
		locks:         make(map[string]chan struct{}),
	}
}

// InitDB is a no-op for the in-memory repository
func (r *MemoryRepository) InitDB(string) error { return nil }

// Close is a no-op for the in-memory repository
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) nextID(counter *int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	*counter++
	return *counter
}

func (r *MemoryRepository) rowLock(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		r.locks[key] = l
	}
	return l
}

// User operations
func (r *MemoryRepository) CreateUser(_ context.Context, user *models.User, acct *models.Account) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return 0, models.ErrUserExists
		}
	}

	r.lastUserID++
	now := time.Now().UTC()
	user.ID = r.lastUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	stored := *user
	r.users[user.ID] = &stored

	a := *acct
	a.UserID = user.ID
	a.Username = user.Username
	a.UpdatedAt = now
	r.accounts[user.ID] = &a

	return user.ID, nil
}

func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.User
	for _, u := range r.users {
		if (u.Username == login || u.Email == login) && (found == nil || u.ID < found.ID) {
			found = u
		}
	}
	if found == nil {
		return nil, nil
	}
	u := *found
	return &u, nil
}

func (r *MemoryRepository) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) GetAccount(_ context.Context, userID int64) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrAccountNotFound, userID)
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context, offset, limit int, search string) ([]models.UserSummary, int64, error) {
	offset, limit = clampPage(offset, limit)
	needle := strings.ToLower(search)

	r.mu.RLock()
	var matched []*models.User
	for _, u := range r.users {
		if needle == "" || strings.Contains(strings.ToLower(u.Username), needle) || strings.Contains(strings.ToLower(u.Email), needle) {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	var out []models.UserSummary
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		u := matched[i]
		a := r.accounts[u.ID]
		out = append(out, models.UserSummary{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Role:      u.Role,
			AICPoints: a.AICPoints,
			HHPoints:  a.HHPoints,
			Balance:   a.Balance,
			CreatedAt: u.CreatedAt,
		})
	}
	r.mu.RUnlock()

	return out, int64(len(matched)), nil
}

func (r *MemoryRepository) GetStats(_ context.Context, since time.Time) (*models.DashboardStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &models.DashboardStats{}
	for id, u := range r.users {
		stats.TotalUsers++
		if !u.CreatedAt.Before(since) {
			stats.TodayUsers++
		}
		a := r.accounts[id]
		stats.TotalAIC = stats.TotalAIC.Add(a.AICPoints)
		stats.TotalHH = stats.TotalHH.Add(a.HHPoints)
		stats.TotalBalance = stats.TotalBalance.Add(a.Balance)
	}
	return stats, nil
}

// Order operations
func (r *MemoryRepository) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) listOrders(match func(o *models.Order) bool) []models.Order {
	r.mu.RLock()
	var out []models.Order
	for _, o := range r.orders {
		if match(o) {
			out = append(out, *o)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *MemoryRepository) ListActiveOrders(_ context.Context, pointType models.PointType) ([]models.Order, error) {
	return r.listOrders(func(o *models.Order) bool {
		return o.Status == models.StatusActive && o.Type == models.OrderSell &&
			(pointType == "" || o.PointType == pointType)
	}), nil
}

func (r *MemoryRepository) ListUserOrders(_ context.Context, userID int64) ([]models.Order, error) {
	return r.listOrders(func(o *models.Order) bool { return o.UserID == userID }), nil
}

// Transaction log operations
func (r *MemoryRepository) listTransactions(match func(t *models.Transaction) bool, newestFirst bool) []models.Transaction {
	r.mu.RLock()
	var out []models.Transaction
	for _, t := range r.transactions {
		if match(t) {
			out = append(out, *t)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryRepository) ListUserTransactions(_ context.Context, userID int64) ([]models.Transaction, error) {
	return r.listTransactions(func(t *models.Transaction) bool { return t.UserID == userID }, true), nil
}

func (r *MemoryRepository) ListPendingRecharges(_ context.Context, limit int) ([]models.Transaction, error) {
	out := r.listTransactions(func(t *models.Transaction) bool {
		return t.Status == models.TxPending && t.Type == models.TxRecharge
	}, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Bank card operations
func (r *MemoryRepository) CreateCard(_ context.Context, card *models.BankCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastCardID++
	card.ID = r.lastCardID
	card.CreatedAt = time.Now().UTC()
	cp := *card
	r.cards[card.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListCards(_ context.Context, userID int64) ([]models.BankCard, error) {
	r.mu.RLock()
	var out []models.BankCard
	for _, c := range r.cards {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryRepository) GetCard(_ context.Context, id, userID int64) (*models.BankCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cards[id]
	if !ok || c.UserID != userID {
		return nil, models.ErrCardNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) DeleteCard(_ context.Context, id, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cards[id]
	if !ok || c.UserID != userID {
		return models.ErrCardNotFound
	}
	delete(r.cards, id)
	return nil
}

// Announcement operations
func (r *MemoryRepository) CreateAnnouncement(_ context.Context, a *models.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastAnnouncementID++
	now := time.Now().UTC()
	a.ID = r.lastAnnouncementID
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.announcements[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListAnnouncements(_ context.Context) ([]models.Announcement, error) {
	r.mu.RLock()
	var out []models.Announcement
	for _, a := range r.announcements {
		if a.Status == models.AnnouncementPublished {
			out = append(out, *a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) ViewAnnouncement(_ context.Context, id int64) (*models.Announcement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.announcements[id]
	if !ok || a.Status != models.AnnouncementPublished {
		return nil, models.ErrAnnouncementNotFound
	}
	a.ViewCount++
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListAdminLogs(_ context.Context, offset, limit int) ([]models.AdminLog, int64, error) {
	offset, limit = clampPage(offset, limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.adminLogs)
	var out []models.AdminLog
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		l := *r.adminLogs[i]
		if u, ok := r.users[l.AdminID]; ok {
			l.AdminName = u.Username
		}
		if l.TargetUserID != nil {
			if u, ok := r.users[*l.TargetUserID]; ok {
				l.TargetName = u.Username
			}
		}
		out = append(out, l)
	}
	return out, int64(total), nil
}

// WithinTx runs fn against a staging area that is published only on success
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		repo:         r,
		held:         make(map[string]chan struct{}),
		accounts:     make(map[int64]*models.Account),
		roles:        make(map[int64]string),
		orders:       make(map[int64]*models.Order),
		created:      make(map[int64]bool),
		transactions: make(map[int64]*models.Transaction),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	repo     *MemoryRepository
	held     map[string]chan struct{}
	heldKeys []string

	accounts      map[int64]*models.Account
	roles         map[int64]string
	orders        map[int64]*models.Order
	created       map[int64]bool
	transactions  map[int64]*models.Transaction
	adminLogs     []*models.AdminLog
	announcements []*models.Announcement
}

func (t *memTx) acquire(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	l := t.repo.rowLock(key)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.held[key] = l
	t.heldKeys = append(t.heldKeys, key)
	return nil
}

func (t *memTx) release() {
	for i := len(t.heldKeys) - 1; i >= 0; i-- {
		<-t.held[t.heldKeys[i]]
	}
	t.held = nil
	t.heldKeys = nil
}

func (t *memTx) commit() {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for id, a := range t.accounts {
		r.accounts[id] = a
	}
	for id, role := range t.roles {
		if u, ok := r.users[id]; ok {
			u.Role = role
			u.UpdatedAt = now
		}
	}
	for id, o := range t.orders {
		r.orders[id] = o
	}
	for id, rec := range t.transactions {
		r.transactions[id] = rec
	}
	r.adminLogs = append(r.adminLogs, t.adminLogs...)
	for _, a := range t.announcements {
		r.announcements[a.ID] = a
	}
}

func userKey(id int64) string  { return fmt.Sprintf("user:%d", id) }
func orderKey(id int64) string { return fmt.Sprintf("order:%d", id) }
func txKey(id int64) string    { return fmt.Sprintf("transaction:%d", id) }

func (t *memTx) LockAccount(ctx context.Context, userID int64) (*models.Account, error) {
	if err := t.acquire(ctx, userKey(userID)); err != nil {
		return nil, err
	}
	if a, ok := t.accounts[userID]; ok {
		cp := *a
		return &cp, nil
	}
	return t.repo.GetAccount(ctx, userID)
}

func (t *memTx) SaveAccount(_ context.Context, acct *models.Account) error {
	if _, ok := t.held[userKey(acct.UserID)]; !ok {
		return fmt.Errorf("account %d saved without lock", acct.UserID)
	}
	cp := *acct
	t.accounts[acct.UserID] = &cp
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	if err := t.acquire(ctx, orderKey(id)); err != nil {
		return nil, err
	}
	if o, ok := t.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return t.repo.GetOrder(ctx, id)
}

func (t *memTx) CreateOrder(_ context.Context, o *models.Order) error {
	o.ID = t.repo.nextID(&t.repo.lastOrderID)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	t.created[o.ID] = true
	cp := *o
	t.orders[o.ID] = &cp
	return nil
}

func (t *memTx) SaveOrder(_ context.Context, o *models.Order) error {
	if _, ok := t.held[orderKey(o.ID)]; !ok && !t.created[o.ID] {
		return fmt.Errorf("order %d saved without lock", o.ID)
	}
	cp := *o
	t.orders[o.ID] = &cp
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, rec *models.Transaction) error {
	rec.ID = t.repo.nextID(&t.repo.lastTransactionID)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cp := *rec
	t.transactions[rec.ID] = &cp
	return nil
}

func (t *memTx) LockTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	if err := t.acquire(ctx, txKey(id)); err != nil {
		return nil, err
	}
	if rec, ok := t.transactions[id]; ok {
		cp := *rec
		return &cp, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	rec, ok := t.repo.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrTransactionNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

func (t *memTx) CompleteTransaction(_ context.Context, rec *models.Transaction) error {
	if _, ok := t.held[txKey(rec.ID)]; !ok {
		return fmt.Errorf("transaction %d updated without lock", rec.ID)
	}
	cp := *rec
	t.transactions[rec.ID] = &cp
	return nil
}

func (t *memTx) LockUser(ctx context.Context, id int64) (*models.User, error) {
	if err := t.acquire(ctx, userKey(id)); err != nil {
		return nil, err
	}
	u, err := t.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %d", models.ErrAccountNotFound, id)
	}
	if role, ok := t.roles[id]; ok {
		u.Role = role
	}
	return u, nil
}

func (t *memTx) SaveUserRole(_ context.Context, id int64, role string) error {
	if _, ok := t.held[userKey(id)]; !ok {
		return fmt.Errorf("user %d saved without lock", id)
	}
	t.roles[id] = role
	return nil
}

func (t *memTx) AddAdminLog(_ context.Context, entry *models.AdminLog) error {
	entry.ID = t.repo.nextID(&t.repo.lastAdminLogID)
	entry.CreatedAt = time.Now().UTC()
	cp := *entry
	t.adminLogs = append(t.adminLogs, &cp)
	return nil
}

func (t *memTx) CreateAnnouncement(_ context.Context, a *models.Announcement) error {
	a.ID = t.repo.nextID(&t.repo.lastAnnouncementID)
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	t.announcements = append(t.announcements, &cp)
	return nil
}
