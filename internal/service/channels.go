package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/and161185/tubeaccount/internal/repository"
)

// ChannelService serves the channel profile and watch history views.
type ChannelService struct {
	repo repository.ChannelRepository
}

// NewChannelService constructs ChannelService.
func NewChannelService(repo repository.ChannelRepository) *ChannelService {
	return &ChannelService{repo: repo}
}

// Profile returns the channel named username as seen by viewerID.
func (s *ChannelService) Profile(ctx context.Context, username string, viewerID uuid.UUID) (*model.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, errs.BadRequest("username is missing")
	}
	p, err := s.repo.ChannelProfile(ctx, username, viewerID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, errs.NotFound("channel does not exist")
	case err != nil:
		return nil, errs.Internal("failed to load channel", err)
	}
	return p, nil
}

// History returns the user's watch history, oldest watch first.
func (s *ChannelService) History(ctx context.Context, userID uuid.UUID) ([]model.WatchedVideo, error) {
	list, err := s.repo.WatchHistory(ctx, userID)
	if err != nil {
		return nil, errs.Internal("failed to load watch history", err)
	}
	return list, nil
}
