package service

import (
	"context"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
)

// AnnouncementService serves published notices
type AnnouncementService struct {
	repo repository.Repository
}

func NewAnnouncementService(repo repository.Repository) *AnnouncementService {
	return &AnnouncementService{repo: repo}
}

// List returns published announcements, newest first
func (s *AnnouncementService) List(ctx context.Context) ([]models.Announcement, error) {
	return s.repo.ListAnnouncements(ctx)
}

// Detail returns one announcement and counts the view
func (s *AnnouncementService) Detail(ctx context.Context, id int64) (*models.Announcement, error) {
	return s.repo.ViewAnnouncement(ctx, id)
}
