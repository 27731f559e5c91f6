package postgres

import (
	"context"

	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ChannelRepo implements ChannelRepository using PostgreSQL.
type ChannelRepo struct{ db *DB }

// NewChannelRepo constructs a channel repository.
func NewChannelRepo(db *DB) *ChannelRepo { return &ChannelRepo{db: db} }

// ChannelProfile loads the channel with its subscriber counters.
func (r *ChannelRepo) ChannelProfile(ctx context.Context, username string, viewerID uuid.UUID) (*model.ChannelProfile, error) {
	const q = `
SELECT u.id, u.username, u.full_name, u.email, u.avatar, u.cover_image,
  (SELECT count(*) FROM subscriptions s WHERE s.channel_id = u.id),
  (SELECT count(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
  EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2)
FROM users u
WHERE u.username = $1`

	var p model.ChannelProfile
	err := r.db.Pool.QueryRow(ctx, q, username, viewerID).Scan(
		&p.ID, &p.Username, &p.FullName, &p.Email, &p.Avatar, &p.CoverImage,
		&p.SubscribersCount, &p.SubscribedToCount, &p.IsSubscribed,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// WatchHistory lists the user's watched videos in watch order.
func (r *ChannelRepo) WatchHistory(ctx context.Context, userID uuid.UUID) ([]model.WatchedVideo, error) {
	const q = `
SELECT v.id, v.video_file, v.thumbnail, v.title, v.description, v.duration, v.views, v.created_at,
  o.id, o.username, o.full_name, o.avatar
FROM watch_history w
JOIN videos v ON v.id = w.video_id
JOIN users o ON o.id = v.owner_id
WHERE w.user_id = $1
ORDER BY w.seq`

	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.WatchedVideo, 0)
	for rows.Next() {
		var v model.WatchedVideo
		if err := rows.Scan(&v.ID, &v.VideoFile, &v.Thumbnail, &v.Title, &v.Description, &v.Duration, &v.Views, &v.CreatedAt,
			&v.Owner.ID, &v.Owner.Username, &v.Owner.FullName, &v.Owner.Avatar); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
