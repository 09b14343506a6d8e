package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// InitDB initializes the database connection and schema
func (r *PostgresRepository) InitDB(databaseURI string) error {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	r.db = db

	if err := r.createTables(); err != nil {
		db.Close()
		return err
	}

	return nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(255) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		aic_points NUMERIC(16, 4) NOT NULL DEFAULT 0 CHECK (aic_points >= 0),
		hh_points NUMERIC(16, 4) NOT NULL DEFAULT 0 CHECK (hh_points >= 0),
		frozen_aic_points NUMERIC(16, 4) NOT NULL DEFAULT 0 CHECK (frozen_aic_points >= 0),
		frozen_hh_points NUMERIC(16, 4) NOT NULL DEFAULT 0 CHECK (frozen_hh_points >= 0),
		balance NUMERIC(16, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		frozen_balance NUMERIC(16, 2) NOT NULL DEFAULT 0 CHECK (frozen_balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		type VARCHAR(8) NOT NULL,
		status VARCHAR(16) NOT NULL,
		point_type VARCHAR(8) NOT NULL,
		amount NUMERIC(16, 4) NOT NULL,
		remaining_amount NUMERIC(16, 4) NOT NULL CHECK (remaining_amount >= 0 AND remaining_amount <= amount),
		unit_price NUMERIC(12, 2) NOT NULL,
		total_price NUMERIC(16, 2) NOT NULL,
		fee NUMERIC(12, 2) NOT NULL DEFAULT 0,
		user_id BIGINT NOT NULL REFERENCES users(id),
		seller_id BIGINT REFERENCES users(id),
		seller_name VARCHAR(255) NOT NULL DEFAULT '',
		buyer_name VARCHAR(255) NOT NULL DEFAULT '',
		rating INTEGER CHECK (rating BETWEEN 1 AND 5),
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		paid_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_point_idx ON orders (status, point_type, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		type VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		amount NUMERIC(16, 2) NOT NULL,
		balance_after NUMERIC(16, 2) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		related_order_id BIGINT,
		payment_ref VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_idx ON transactions (user_id, id)`,
	`CREATE INDEX IF NOT EXISTS transactions_pending_idx ON transactions (status, type) WHERE status = 'PENDING'`,
	`CREATE TABLE IF NOT EXISTS bank_cards (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		card_number VARCHAR(32) NOT NULL,
		holder_name VARCHAR(255) NOT NULL,
		bank_name VARCHAR(255) NOT NULL,
		phone VARCHAR(32) NOT NULL DEFAULT '',
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS announcements (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		type VARCHAR(16) NOT NULL DEFAULT 'notice',
		status VARCHAR(16) NOT NULL DEFAULT 'published',
		is_important BOOLEAN NOT NULL DEFAULT FALSE,
		view_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS admin_logs (
		id BIGSERIAL PRIMARY KEY,
		admin_id BIGINT NOT NULL REFERENCES users(id),
		action VARCHAR(64) NOT NULL,
		target_user_id BIGINT REFERENCES users(id),
		details JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// createTables creates the necessary tables if they don't exist
func (r *PostgresRepository) createTables() error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

const accountColumns = `id, username, aic_points, hh_points, frozen_aic_points, frozen_hh_points, balance, frozen_balance, updated_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.UserID, &a.Username, &a.AICPoints, &a.HHPoints, &a.FrozenAICPoints,
		&a.FrozenHHPoints, &a.Balance, &a.FrozenBalance, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

const orderColumns = `id, type, status, point_type, amount, remaining_amount, unit_price, total_price, fee,
	user_id, COALESCE(seller_id, 0), seller_name, buyer_name, rating, comment, created_at, updated_at, paid_at, completed_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var rating sql.NullInt64
	var paidAt, completedAt sql.NullTime
	err := row.Scan(&o.ID, &o.Type, &o.Status, &o.PointType, &o.Amount, &o.RemainingAmount,
		&o.UnitPrice, &o.TotalPrice, &o.Fee, &o.UserID, &o.SellerID, &o.SellerName, &o.BuyerName,
		&rating, &o.Comment, &o.CreatedAt, &o.UpdatedAt, &paidAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := int(rating.Int64)
		o.Rating = &v
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if completedAt.Valid {
		o.CompletedAt = &completedAt.Time
	}
	return o, nil
}

const transactionColumns = `id, user_id, type, status, title, amount, balance_after, description, related_order_id, payment_ref, created_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	var related sql.NullInt64
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Status, &t.Title, &t.Amount, &t.BalanceAfter,
		&t.Description, &related, &t.PaymentRef, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if related.Valid {
		id := related.Int64
		t.RelatedOrderID = &id
	}
	return t, nil
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User, acct *models.Account) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(
		ctx,
		`INSERT INTO users (username, email, password_hash, role, aic_points, hh_points, balance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		user.Username, user.Email, user.PasswordHash, user.Role,
		acct.AICPoints, acct.HHPoints, acct.Balance,
	).Scan(&id, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.ErrUserExists
		}
		return 0, err
	}

	user.ID = id
	return id, nil
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(
		ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1 OR email = $1 ORDER BY id LIMIT 1",
		login,
	))

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

func (r *PostgresRepository) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	acct, err := scanAccount(r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM users WHERE id = $1", userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrAccountNotFound, userID)
		}
		return nil, err
	}
	return acct, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context, offset, limit int, search string) ([]models.UserSummary, int64, error) {
	offset, limit = clampPage(offset, limit)
	pattern := "%" + search + "%"

	var total int64
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM users WHERE $1 = '' OR username ILIKE $2 OR email ILIKE $2`,
		search, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, username, email, role, aic_points, hh_points, balance, created_at
		 FROM users
		 WHERE $1 = '' OR username ILIKE $2 OR email ILIKE $2
		 ORDER BY created_at DESC, id DESC
		 OFFSET $3 LIMIT $4`,
		search, pattern, offset, limit,
	)
	if err != nil {
		return nil, 0, err
	}

	users, err := collect(rows, func(row rowScanner) (*models.UserSummary, error) {
		var u models.UserSummary
		err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.AICPoints, &u.HHPoints, &u.Balance, &u.CreatedAt)
		return &u, err
	})
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *PostgresRepository) GetStats(ctx context.Context, since time.Time) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE created_at >= $1),
		        COALESCE(SUM(aic_points), 0),
		        COALESCE(SUM(hh_points), 0),
		        COALESCE(SUM(balance), 0)
		 FROM users`,
		since,
	).Scan(&stats.TotalUsers, &stats.TodayUsers, &stats.TotalAIC, &stats.TotalHH, &stats.TotalBalance)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Order repository methods
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
		}
		return nil, err
	}
	return order, nil
}

func (r *PostgresRepository) ListActiveOrders(ctx context.Context, pointType models.PointType) ([]models.Order, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = $1 AND type = $2 AND ($3 = '' OR point_type = $3)
		 ORDER BY created_at DESC, id DESC`,
		models.StatusActive, models.OrderSell, string(pointType),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrder)
}

func (r *PostgresRepository) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrder)
}

// Transaction log methods
func (r *PostgresRepository) ListUserTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTransaction)
}

func (r *PostgresRepository) ListPendingRecharges(ctx context.Context, limit int) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE status = $1 AND type = $2
		 ORDER BY id
		 LIMIT $3`,
		models.TxPending, models.TxRecharge, limit,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTransaction)
}

// Bank card methods
func (r *PostgresRepository) CreateCard(ctx context.Context, card *models.BankCard) error {
	return r.db.QueryRowContext(
		ctx,
		`INSERT INTO bank_cards (user_id, card_number, holder_name, bank_name, phone, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		card.UserID, card.CardNumber, card.HolderName, card.BankName, card.Phone, card.IsDefault,
	).Scan(&card.ID, &card.CreatedAt)
}

const cardColumns = `id, user_id, card_number, holder_name, bank_name, phone, is_default, created_at`

func scanCard(row rowScanner) (*models.BankCard, error) {
	c := &models.BankCard{}
	err := row.Scan(&c.ID, &c.UserID, &c.CardNumber, &c.HolderName, &c.BankName, &c.Phone, &c.IsDefault, &c.CreatedAt)
	return c, err
}

func (r *PostgresRepository) ListCards(ctx context.Context, userID int64) ([]models.BankCard, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+cardColumns+` FROM bank_cards WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCard)
}

func (r *PostgresRepository) GetCard(ctx context.Context, id, userID int64) (*models.BankCard, error) {
	card, err := scanCard(r.db.QueryRowContext(
		ctx,
		`SELECT `+cardColumns+` FROM bank_cards WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCardNotFound
		}
		return nil, err
	}
	return card, nil
}

func (r *PostgresRepository) DeleteCard(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM bank_cards WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrCardNotFound
	}
	return nil
}

// Announcement methods
const announcementColumns = `id, title, content, type, status, is_important, view_count, created_at, updated_at`

func scanAnnouncement(row rowScanner) (*models.Announcement, error) {
	a := &models.Announcement{}
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Type, &a.Status, &a.IsImportant, &a.ViewCount, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertAnnouncement(ctx context.Context, q queryRower, a *models.Announcement) error {
	return q.QueryRowContext(
		ctx,
		`INSERT INTO announcements (title, content, type, status, is_important)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		a.Title, a.Content, a.Type, a.Status, a.IsImportant,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *PostgresRepository) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	return insertAnnouncement(ctx, r.db, a)
}

func (r *PostgresRepository) ListAnnouncements(ctx context.Context) ([]models.Announcement, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+announcementColumns+` FROM announcements WHERE status = $1 ORDER BY created_at DESC, id DESC`,
		models.AnnouncementPublished,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAnnouncement)
}

func (r *PostgresRepository) ViewAnnouncement(ctx context.Context, id int64) (*models.Announcement, error) {
	a, err := scanAnnouncement(r.db.QueryRowContext(
		ctx,
		`UPDATE announcements SET view_count = view_count + 1
		 WHERE id = $1 AND status = $2
		 RETURNING `+announcementColumns,
		id, models.AnnouncementPublished,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrAnnouncementNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) ListAdminLogs(ctx context.Context, offset, limit int) ([]models.AdminLog, int64, error) {
	offset, limit = clampPage(offset, limit)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM admin_logs").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT l.id, l.admin_id, COALESCE(a.username, ''), l.action, l.target_user_id,
		        COALESCE(t.username, ''), l.details, l.created_at
		 FROM admin_logs l
		 LEFT JOIN users a ON a.id = l.admin_id
		 LEFT JOIN users t ON t.id = l.target_user_id
		 ORDER BY l.created_at DESC, l.id DESC
		 OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, 0, err
	}

	logs, err := collect(rows, func(row rowScanner) (*models.AdminLog, error) {
		var l models.AdminLog
		var target sql.NullInt64
		var details []byte
		if err := row.Scan(&l.ID, &l.AdminID, &l.AdminName, &l.Action, &target, &l.TargetName, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		if target.Valid {
			id := target.Int64
			l.TargetUserID = &id
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &l.Details); err != nil {
				return nil, fmt.Errorf("decode admin log details: %w", err)
			}
		}
		return &l, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// WithinTx runs fn inside a database transaction and commits if it succeeds
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// pgTx locks rows with SELECT ... FOR UPDATE; locks are held until commit or rollback
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockAccount(ctx context.Context, userID int64) (*models.Account, error) {
	acct, err := scanAccount(t.tx.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM users WHERE id = $1 FOR UPDATE", userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrAccountNotFound, userID)
		}
		return nil, err
	}
	return acct, nil
}

func (t *pgTx) SaveAccount(ctx context.Context, acct *models.Account) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE users
		 SET aic_points = $1, hh_points = $2, frozen_aic_points = $3, frozen_hh_points = $4,
		     balance = $5, frozen_balance = $6, updated_at = $7
		 WHERE id = $8`,
		acct.AICPoints, acct.HHPoints, acct.FrozenAICPoints, acct.FrozenHHPoints,
		acct.Balance, acct.FrozenBalance, acct.UpdatedAt, acct.UserID,
	)
	return err
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(t.tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
		}
		return nil, err
	}
	return order, nil
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func (t *pgTx) CreateOrder(ctx context.Context, o *models.Order) error {
	return t.tx.QueryRowContext(
		ctx,
		`INSERT INTO orders (type, status, point_type, amount, remaining_amount, unit_price, total_price, fee,
		                     user_id, seller_id, seller_name, buyer_name, created_at, updated_at, paid_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13, $14, $15)
		 RETURNING id`,
		o.Type, o.Status, o.PointType, o.Amount, o.RemainingAmount, o.UnitPrice, o.TotalPrice, o.Fee,
		o.UserID, nullInt(o.SellerID), o.SellerName, o.BuyerName, o.CreatedAt, o.PaidAt, o.CompletedAt,
	).Scan(&o.ID)
}

func (t *pgTx) SaveOrder(ctx context.Context, o *models.Order) error {
	var rating sql.NullInt64
	if o.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*o.Rating), Valid: true}
	}
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE orders
		 SET status = $1, remaining_amount = $2, rating = $3, comment = $4,
		     updated_at = $5, paid_at = $6, completed_at = $7
		 WHERE id = $8`,
		o.Status, o.RemainingAmount, rating, o.Comment, o.UpdatedAt, o.PaidAt, o.CompletedAt, o.ID,
	)
	return err
}

func (t *pgTx) AppendTransaction(ctx context.Context, rec *models.Transaction) error {
	var related sql.NullInt64
	if rec.RelatedOrderID != nil {
		related = sql.NullInt64{Int64: *rec.RelatedOrderID, Valid: true}
	}
	return t.tx.QueryRowContext(
		ctx,
		`INSERT INTO transactions (user_id, type, status, title, amount, balance_after, description,
		                           related_order_id, payment_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		rec.UserID, rec.Type, rec.Status, rec.Title, rec.Amount, rec.BalanceAfter, rec.Description,
		related, rec.PaymentRef, rec.CreatedAt,
	).Scan(&rec.ID)
}

func (t *pgTx) LockTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	rec, err := scanTransaction(t.tx.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrTransactionNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

func (t *pgTx) CompleteTransaction(ctx context.Context, rec *models.Transaction) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE transactions SET status = $1, balance_after = $2 WHERE id = $3 AND status = $4`,
		rec.Status, rec.BalanceAfter, rec.ID, models.TxPending,
	)
	return err
}

func (t *pgTx) LockUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(t.tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrAccountNotFound, id)
		}
		return nil, err
	}
	return user, nil
}

func (t *pgTx) SaveUserRole(ctx context.Context, id int64, role string) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2", role, id)
	return err
}

func (t *pgTx) AddAdminLog(ctx context.Context, entry *models.AdminLog) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode admin log details: %w", err)
	}
	var target sql.NullInt64
	if entry.TargetUserID != nil {
		target = sql.NullInt64{Int64: *entry.TargetUserID, Valid: true}
	}
	return t.tx.QueryRowContext(
		ctx,
		`INSERT INTO admin_logs (admin_id, action, target_user_id, details)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		entry.AdminID, entry.Action, target, details,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (t *pgTx) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	return insertAnnouncement(ctx, t.tx, a)
}
