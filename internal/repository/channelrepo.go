package repository

import (
	"context"

	"github.com/and161185/tubeaccount/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ChannelRepository serves the join/aggregate read views.
type ChannelRepository interface {
	// ChannelProfile returns the channel named username with subscription
	// counters; IsSubscribed is computed for viewerID.
	ChannelProfile(ctx context.Context, username string, viewerID uuid.UUID) (*model.ChannelProfile, error)
	// WatchHistory returns the user's watched videos in watch order with owners joined.
	WatchHistory(ctx context.Context, userID uuid.UUID) ([]model.WatchedVideo, error)
}
