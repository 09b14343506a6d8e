package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/ledger"
	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Admin log actions
const (
	ActionAddPoints          = "add_points"
	ActionUpdateUserRole     = "update_user_role"
	ActionCreateAnnouncement = "create_announcement"
)

// AdminService implements the back-office operations. Every method checks
// the caller's role against the stored user record.
type AdminService struct {
	repo   repository.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminService creates a new admin service
func NewAdminService(repo repository.Repository, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *AdminService) checkAdmin(ctx context.Context, userID int64) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || user.Role != models.RoleAdmin {
		return fmt.Errorf("%w: admin role required", models.ErrForbidden)
	}
	return nil
}

// DashboardStats returns platform totals
func (s *AdminService) DashboardStats(ctx context.Context, adminID int64) (*models.DashboardStats, error) {
	if err := s.checkAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.GetStats(ctx, startOfDay)
}

// ListUsers pages through users, newest first, optionally matching a
// substring of the username or email.
func (s *AdminService) ListUsers(ctx context.Context, adminID int64, page, limit int, search string) (*models.Page[models.UserSummary], error) {
	if err := s.checkAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)
	users, total, err := s.repo.ListUsers(ctx, (page-1)*limit, limit, search)
	if err != nil {
		return nil, err
	}
	p := models.NewPage(users, total, page, limit)
	return &p, nil
}

// AddUserPoints credits points to a user and records the change
func (s *AdminService) AddUserPoints(ctx context.Context, adminID, targetID int64, pointType models.PointType, amount decimal.Decimal, reason string) (*models.Account, error) {
	if err := s.checkAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	pointType, err := models.ParsePointType(string(pointType))
	if err != nil {
		return nil, err
	}
	amount = models.RoundPoints(amount)
	if err := models.ValidateQuantity("amount", amount); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "manual credit by administrator"
	}

	var acct *models.Account
	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		l := ledger.New(tx, tx)
		var err error
		acct, err = l.Account(ctx, targetID)
		if err != nil {
			return err
		}
		before := acct.Available(pointType)
		if err := l.ApplyDelta(ctx, targetID, ledger.AvailableField(pointType), amount); err != nil {
			return err
		}
		if err := tx.AddAdminLog(ctx, &models.AdminLog{
			AdminID:      adminID,
			Action:       ActionAddPoints,
			TargetUserID: &targetID,
			Details: map[string]any{
				"point_type":    pointType,
				"amount":        amount.String(),
				"reason":        reason,
				"before_points": before.String(),
				"after_points":  acct.Available(pointType).String(),
			},
		}); err != nil {
			return fmt.Errorf("write admin log: %w", err)
		}
		return l.Flush(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("points credited by admin",
		"admin_id", adminID, "user_id", targetID, "point_type", pointType, "amount", amount.String())
	return acct, nil
}

// UpdateUserRole changes another user's role
func (s *AdminService) UpdateUserRole(ctx context.Context, adminID, targetID int64, role string) (*models.User, error) {
	if err := s.checkAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, role)
	}
	if adminID == targetID {
		return nil, fmt.Errorf("%w: cannot change own role", models.ErrForbidden)
	}

	var user *models.User
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.LockUser(ctx, targetID)
		if err != nil {
			return err
		}
		oldRole := user.Role
		if err := tx.SaveUserRole(ctx, targetID, role); err != nil {
			return err
		}
		user.Role = role
		return tx.AddAdminLog(ctx, &models.AdminLog{
			AdminID:      adminID,
			Action:       ActionUpdateUserRole,
			TargetUserID: &targetID,
			Details: map[string]any{
				"old_role": oldRole,
				"new_role": role,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user role changed", "admin_id", adminID, "user_id", targetID, "role", role)
	return user, nil
}

// AdminLogs pages through the audit log, newest first
func (s *AdminService) AdminLogs(ctx context.Context, adminID int64, page, limit int) (*models.Page[models.AdminLog], error) {
	if err := s.checkAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)
	logs, total, err := s.repo.ListAdminLogs(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	p := models.NewPage(logs, total, page, limit)
	return &p, nil
}

// CreateAnnouncement publishes a notice
func (s *AdminService) CreateAnnouncement(ctx context.Context, adminID int64, a models.Announcement) (*models.Announcement, error) {
	if err := s.checkAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if a.Title == "" || a.Content == "" {
		return nil, fmt.Errorf("%w: title and content are required", models.ErrInvalidInput)
	}
	if a.Type == "" {
		a.Type = "notice"
	}
	switch a.Status {
	case "":
		a.Status = models.AnnouncementPublished
	case models.AnnouncementDraft, models.AnnouncementPublished, models.AnnouncementArchived:
	default:
		return nil, fmt.Errorf("%w: unknown announcement status %q", models.ErrInvalidInput, a.Status)
	}
	a.ID = 0
	a.ViewCount = 0
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateAnnouncement(ctx, &a); err != nil {
			return err
		}
		return tx.AddAdminLog(ctx, &models.AdminLog{
			AdminID: adminID,
			Action:  ActionCreateAnnouncement,
			Details: map[string]any{"announcement_id": a.ID, "title": a.Title},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("announcement created", "admin_id", adminID, "announcement_id", a.ID)
	return &a, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
